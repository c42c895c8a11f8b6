// Package report summarizes the attendance ledger per student, subject and
// day, and writes the summary as an xlsx workbook.
package report

import (
	"cmp"
	"math"
	"slices"

	"github.com/kozaktomas/class-attendance/internal/constants"
	"github.com/kozaktomas/class-attendance/internal/database"
)

// Sheet names
const (
	SheetOverall = "Overall Report"
	SheetSubject = "Subject-wise Report"
	SheetStudent = "Student-wise Report"
	SheetDaily   = "Daily Attendance"
)

const notAvailable = "N/A"

// Options configures the attendance threshold and status labels.
type Options struct {
	MinimumAttendance float64
	GoodLabel         string
	LowLabel          string
}

func (o Options) withDefaults() Options {
	if o.MinimumAttendance <= 0 {
		o.MinimumAttendance = constants.DefaultMinimumAttendance
	}
	if o.GoodLabel == "" {
		o.GoodLabel = "Good"
	}
	if o.LowLabel == "" {
		o.LowLabel = "Low"
	}
	return o
}

// Tally counts the classes of a student.
type Tally struct {
	Total      int     `json:"total_classes"`
	Attended   int     `json:"attended_classes"`
	Percentage float64 `json:"percentage"`
	Status     string  `json:"status"`
	Low        bool    `json:"-"`
}

// OverallRow is a student's attendance across all subjects.
type OverallRow struct {
	RollNo   string `json:"roll_no"`
	Name     string `json:"name"`
	Semester string `json:"semester"`
	Year     string `json:"year"`
	Tally
}

// SubjectRow is a student's attendance in one enrolled subject.
type SubjectRow struct {
	Subject string `json:"subject"`
	RollNo  string `json:"roll_no"`
	Name    string `json:"name"`
	Tally
}

// StudentRow lists a student's percentage per subject. Subjects the student
// is not enrolled in are absent from Subjects.
type StudentRow struct {
	RollNo   string             `json:"roll_no"`
	Name     string             `json:"name"`
	Subjects map[string]float64 `json:"subjects"`
	Overall  float64            `json:"overall"`
}

// DailyRow counts one subject's attendance on one day.
type DailyRow struct {
	Date    string `json:"date"`
	Subject string `json:"subject"`
	Present int    `json:"present"`
	Absent  int    `json:"absent"`
	Total   int    `json:"total"`
}

// Report is the computed attendance summary.
type Report struct {
	Subjects []string     `json:"subjects"`
	Overall  []OverallRow `json:"overall"`
	Subject  []SubjectRow `json:"subject"`
	Student  []StudentRow `json:"student"`
	Daily    []DailyRow   `json:"daily"`
	Minimum  float64      `json:"minimum_attendance"`
}

type counter struct{ total, present int }

func (c *counter) add(r *database.AttendanceRecord) {
	c.total++
	if r.Status == constants.StatusPresent {
		c.present++
	}
}

// Build computes the report. Ledger rows are attributed to students by roll
// number. Percentage is attended over total rows, rounded to two decimals.
func Build(students []database.Student, records []database.AttendanceRecord, opts Options) Report {
	opts = opts.withDefaults()

	type subjectKey struct{ roll, subject string }
	type dayKey struct{ date, subject string }
	overall := make(map[string]*counter)
	bySubject := make(map[subjectKey]*counter)
	byDay := make(map[dayKey]*DailyRow)

	for i := range records {
		r := &records[i]
		c := overall[r.RollNo]
		if c == nil {
			c = &counter{}
			overall[r.RollNo] = c
		}
		c.add(r)

		sk := subjectKey{r.RollNo, r.Subject}
		sc := bySubject[sk]
		if sc == nil {
			sc = &counter{}
			bySubject[sk] = sc
		}
		sc.add(r)

		dk := dayKey{r.Date, r.Subject}
		d := byDay[dk]
		if d == nil {
			d = &DailyRow{Date: r.Date, Subject: r.Subject}
			byDay[dk] = d
		}
		d.Total++
		if r.Status == constants.StatusPresent {
			d.Present++
		} else {
			d.Absent++
		}
	}

	sorted := slices.Clone(students)
	slices.SortStableFunc(sorted, func(a, b database.Student) int { return cmp.Compare(a.RollNo, b.RollNo) })

	subjectSet := make(map[string]struct{})
	for i := range sorted {
		for _, s := range sorted[i].Subjects {
			subjectSet[s] = struct{}{}
		}
	}
	rep := Report{Minimum: opts.MinimumAttendance}
	for s := range subjectSet {
		rep.Subjects = append(rep.Subjects, s)
	}
	slices.Sort(rep.Subjects)

	for i := range sorted {
		s := &sorted[i]
		tally := opts.tally(overall[s.RollNo])
		rep.Overall = append(rep.Overall, OverallRow{
			RollNo:   s.RollNo,
			Name:     s.Name,
			Semester: orNA(s.Semester),
			Year:     orNA(s.Year),
			Tally:    tally,
		})

		row := StudentRow{RollNo: s.RollNo, Name: s.Name, Subjects: make(map[string]float64), Overall: tally.Percentage}
		for _, subject := range rep.Subjects {
			if !s.HasSubject(subject) {
				continue
			}
			row.Subjects[subject] = opts.tally(bySubject[subjectKey{s.RollNo, subject}]).Percentage
		}
		rep.Student = append(rep.Student, row)
	}

	for _, subject := range rep.Subjects {
		for i := range sorted {
			s := &sorted[i]
			if !s.HasSubject(subject) {
				continue
			}
			rep.Subject = append(rep.Subject, SubjectRow{
				Subject: subject,
				RollNo:  s.RollNo,
				Name:    s.Name,
				Tally:   opts.tally(bySubject[subjectKey{s.RollNo, subject}]),
			})
		}
	}

	for _, d := range byDay {
		rep.Daily = append(rep.Daily, *d)
	}
	slices.SortFunc(rep.Daily, func(a, b DailyRow) int {
		if c := cmp.Compare(a.Date, b.Date); c != 0 {
			return c
		}
		return cmp.Compare(a.Subject, b.Subject)
	})
	return rep
}

func (o Options) tally(c *counter) Tally {
	var t Tally
	if c != nil {
		t.Total = c.total
		t.Attended = c.present
	}
	if t.Total > 0 {
		t.Percentage = Percentage(t.Attended, t.Total)
	}
	t.Low = t.Percentage < o.MinimumAttendance
	t.Status = o.GoodLabel
	if t.Low {
		t.Status = o.LowLabel
	}
	return t
}

// Percentage returns attended/total as a percentage rounded to two decimals.
func Percentage(attended, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(attended)/float64(total)*10000) / 100
}

func orNA(s string) string {
	if s == "" {
		return notAvailable
	}
	return s
}
