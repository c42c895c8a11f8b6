// Package ledgerio reads and writes the tabular attendance sheet
// (Name, Roll No, Date, Time, Subject, Status) as an xlsx workbook.
package ledgerio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/kozaktomas/class-attendance/internal/constants"
	"github.com/kozaktomas/class-attendance/internal/database"
)

// ErrInvalidSheet is returned when the header row lacks a required column.
var ErrInvalidSheet = errors.New("attendance sheet has unexpected columns")

// RowError reports an invalid row by its 1-based sheet row number.
type RowError struct {
	Row int
	Err error
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Row, e.Err)
}

func (e RowError) Unwrap() error {
	return e.Err
}

// Export writes records as a workbook with a single Attendance sheet.
func Export(w io.Writer, records []database.AttendanceRecord) error {
	f, err := build(records)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// ExportFile writes records to an xlsx file at path.
func ExportFile(path string, records []database.AttendanceRecord) error {
	f, err := build(records)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

func build(records []database.AttendanceRecord) (*excelize.File, error) {
	f := excelize.NewFile()
	sheet := constants.LedgerSheet
	if err := f.SetSheetName(f.GetSheetName(f.GetActiveSheetIndex()), sheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	header := make([]any, len(constants.LedgerColumns))
	for i, h := range constants.LedgerColumns {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		f.Close()
		return nil, fmt.Errorf("write header: %w", err)
	}
	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		_ = f.SetRowStyle(sheet, 1, 1, style)
	}

	for i, r := range records {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		row := []any{r.Name, r.RollNo, r.Date, r.Time, r.Subject, r.Status}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			f.Close()
			return nil, fmt.Errorf("write row %d: %w", i+2, err)
		}
	}
	return f, nil
}

// ImportResult holds the valid rows of an imported sheet and the rows that
// were rejected.
type ImportResult struct {
	Records []database.AttendanceRecord
	Errors  []RowError
}

// Import reads an attendance sheet. The Attendance sheet is used when
// present, otherwise the active one. Columns are located by header name.
func Import(r io.Reader) (ImportResult, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return ImportResult{}, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	if idx, err := f.GetSheetIndex(constants.LedgerSheet); err == nil && idx >= 0 {
		sheet = constants.LedgerSheet
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return ImportResult{}, fmt.Errorf("read sheet %s: %w", sheet, err)
	}
	if len(rows) == 0 {
		return ImportResult{}, fmt.Errorf("%w: sheet %s is empty", ErrInvalidSheet, sheet)
	}

	cols, err := columnIndex(rows[0])
	if err != nil {
		return ImportResult{}, err
	}

	var result ImportResult
	for i, row := range rows[1:] {
		if blank(row) {
			continue
		}
		rec, err := parseRow(row, cols)
		if err != nil {
			result.Errors = append(result.Errors, RowError{Row: i + 2, Err: err})
			continue
		}
		result.Records = append(result.Records, rec)
	}
	return result, nil
}

// columnIndex maps each ledger column to its position in the header.
func columnIndex(header []string) ([]int, error) {
	cols := make([]int, len(constants.LedgerColumns))
	for i, want := range constants.LedgerColumns {
		cols[i] = -1
		for j, got := range header {
			if strings.EqualFold(strings.TrimSpace(got), want) {
				cols[i] = j
				break
			}
		}
		if cols[i] < 0 {
			return nil, fmt.Errorf("%w: missing %q", ErrInvalidSheet, want)
		}
	}
	return cols, nil
}

func parseRow(row []string, cols []int) (database.AttendanceRecord, error) {
	get := func(col int) string {
		if cols[col] < len(row) {
			return strings.TrimSpace(row[cols[col]])
		}
		return ""
	}
	rec := database.AttendanceRecord{
		Name:    get(0),
		RollNo:  get(1),
		Date:    get(2),
		Time:    get(3),
		Subject: get(4),
		Status:  get(5),
	}

	switch {
	case rec.Name == "":
		return rec, errors.New("name is empty")
	case rec.Subject == "":
		return rec, errors.New("subject is empty")
	}
	if _, err := time.Parse(constants.DateLayout, rec.Date); err != nil {
		return rec, fmt.Errorf("invalid date %q", rec.Date)
	}
	if _, err := time.Parse(constants.TimeLayout, rec.Time); err != nil {
		return rec, fmt.Errorf("invalid time %q", rec.Time)
	}
	switch {
	case strings.EqualFold(rec.Status, constants.StatusPresent):
		rec.Status = constants.StatusPresent
	case strings.EqualFold(rec.Status, constants.StatusAbsent):
		rec.Status = constants.StatusAbsent
	default:
		return rec, fmt.Errorf("invalid status %q", rec.Status)
	}
	return rec, nil
}

func blank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// Apply appends imported records to the ledger. Rows whose name, subject and
// date already have an entry are skipped.
func Apply(ctx context.Context, w database.AttendanceWriter, records []database.AttendanceRecord) (added, skipped int, err error) {
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return added, skipped, err
		}
		ok, err := w.AppendIfUnmarked(ctx, rec)
		if err != nil {
			return added, skipped, fmt.Errorf("append %s %s %s: %w", rec.Name, rec.Subject, rec.Date, err)
		}
		if ok {
			added++
		} else {
			skipped++
		}
	}
	return added, skipped, nil
}
