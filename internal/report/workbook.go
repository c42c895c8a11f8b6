package report

import (
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"github.com/kozaktomas/class-attendance/internal/constants"
)

// Write writes the report as a workbook with one sheet per view. Low
// attendance percentages and statuses are filled light red.
func Write(w io.Writer, rep Report) error {
	f, err := workbook(rep)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// WriteFile saves the report workbook at path.
func WriteFile(path string, rep Report) error {
	f, err := workbook(rep)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

type sheetWriter struct {
	f      *excelize.File
	name   string
	widths []int
	row    int
	bold   int
	low    int
}

func (s *sheetWriter) write(values []any, lowCols ...int) error {
	s.row++
	cell, _ := excelize.CoordinatesToCellName(1, s.row)
	if err := s.f.SetSheetRow(s.name, cell, &values); err != nil {
		return fmt.Errorf("%s row %d: %w", s.name, s.row, err)
	}
	for i, v := range values {
		n := utf8.RuneCountInString(fmt.Sprint(v)) + 2
		if i >= len(s.widths) {
			s.widths = append(s.widths, n)
		} else if n > s.widths[i] {
			s.widths[i] = n
		}
	}
	if s.row == 1 {
		end, _ := excelize.CoordinatesToCellName(len(values), s.row)
		if err := s.f.SetCellStyle(s.name, cell, end, s.bold); err != nil {
			return err
		}
	}
	for _, col := range lowCols {
		c, _ := excelize.CoordinatesToCellName(col, s.row)
		if err := s.f.SetCellStyle(s.name, c, c, s.low); err != nil {
			return err
		}
	}
	return nil
}

func (s *sheetWriter) finish() error {
	for i, w := range s.widths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		if err := s.f.SetColWidth(s.name, col, col, float64(w)); err != nil {
			return err
		}
	}
	return nil
}

func workbook(rep Report) (*excelize.File, error) {
	f := excelize.NewFile()
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		f.Close()
		return nil, err
	}
	low, err := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{constants.LowAttendanceFill}},
	})
	if err != nil {
		f.Close()
		return nil, err
	}

	sheets := []struct {
		name string
		fill func(*sheetWriter) error
	}{
		{SheetOverall, rep.writeOverall},
		{SheetSubject, rep.writeSubject},
		{SheetStudent, rep.writeStudent},
		{SheetDaily, rep.writeDaily},
	}
	for i, sh := range sheets {
		if i == 0 {
			err = f.SetSheetName(f.GetSheetName(f.GetActiveSheetIndex()), sh.name)
		} else {
			_, err = f.NewSheet(sh.name)
		}
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("create sheet %s: %w", sh.name, err)
		}
		sw := &sheetWriter{f: f, name: sh.name, bold: bold, low: low}
		if err := sh.fill(sw); err != nil {
			f.Close()
			return nil, err
		}
		if err := sw.finish(); err != nil {
			f.Close()
			return nil, err
		}
	}
	return f, nil
}

func lowColumns(low bool, cols ...int) []int {
	if low {
		return cols
	}
	return nil
}

func (rep Report) writeOverall(s *sheetWriter) error {
	if err := s.write([]any{"Roll No", "Name", "Semester", "Year", "Total Classes", "Attended Classes", "Overall Percentage", "Status"}); err != nil {
		return err
	}
	for _, r := range rep.Overall {
		values := []any{r.RollNo, r.Name, r.Semester, r.Year, r.Total, r.Attended, r.Percentage, r.Status}
		if err := s.write(values, lowColumns(r.Low, 7, 8)...); err != nil {
			return err
		}
	}
	return nil
}

func (rep Report) writeSubject(s *sheetWriter) error {
	if err := s.write([]any{"Subject", "Roll No", "Name", "Total Classes", "Attended Classes", "Percentage", "Status"}); err != nil {
		return err
	}
	for _, r := range rep.Subject {
		values := []any{r.Subject, r.RollNo, r.Name, r.Total, r.Attended, r.Percentage, r.Status}
		if err := s.write(values, lowColumns(r.Low, 6, 7)...); err != nil {
			return err
		}
	}
	return nil
}

func (rep Report) writeStudent(s *sheetWriter) error {
	header := []any{"Roll No", "Name"}
	for _, subject := range rep.Subjects {
		header = append(header, subject)
	}
	header = append(header, "Overall Percentage")
	if err := s.write(header); err != nil {
		return err
	}

	for _, r := range rep.Student {
		values := []any{r.RollNo, r.Name}
		var lowCols []int
		for i, subject := range rep.Subjects {
			p, ok := r.Subjects[subject]
			if !ok {
				values = append(values, "")
				continue
			}
			values = append(values, p)
			if p < rep.Minimum {
				lowCols = append(lowCols, i+3)
			}
		}
		values = append(values, r.Overall)
		if r.Overall < rep.Minimum {
			lowCols = append(lowCols, len(values))
		}
		if err := s.write(values, lowCols...); err != nil {
			return err
		}
	}
	return nil
}

func (rep Report) writeDaily(s *sheetWriter) error {
	if err := s.write([]any{"Date", "Subject", "Present", "Absent", "Total"}); err != nil {
		return err
	}
	for _, r := range rep.Daily {
		if err := s.write([]any{r.Date, r.Subject, r.Present, r.Absent, r.Total}); err != nil {
			return err
		}
	}
	return nil
}
