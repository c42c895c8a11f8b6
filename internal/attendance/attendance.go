// Package attendance records who attended which subject on which day.
package attendance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kozaktomas/class-attendance/internal/constants"
	"github.com/kozaktomas/class-attendance/internal/database"
	"github.com/kozaktomas/class-attendance/internal/facematch"
	"github.com/kozaktomas/class-attendance/internal/registry"
)

var (
	ErrInvalidSubject = errors.New("subject is required")
	ErrNotEnrolled    = errors.New("student not enrolled in subject")
	ErrNameMismatch   = errors.New("name does not match roll number")
	ErrInvalidDate    = errors.New("invalid date")
)

// Outcome is the result of a marking request.
type Outcome int

const (
	// Applied means a new row was written.
	Applied Outcome = iota + 1
	// AlreadyMarked means a row for the same name, subject and date existed
	// and nothing was written.
	AlreadyMarked
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case AlreadyMarked:
		return "already_marked"
	default:
		return "unknown"
	}
}

// Roster resolves students and subject enrollment.
type Roster interface {
	Get(ctx context.Context, rollNo string) (database.Student, error)
	Enrolled(ctx context.Context, subject string) ([]registry.Enrollee, error)
}

// Options configures a Ledger.
type Options struct {
	Logger *slog.Logger
	Now    func() time.Time
}

// Ledger marks attendance on top of an attendance store.
type Ledger struct {
	store  database.AttendanceWriter
	roster Roster
	logger *slog.Logger
	now    func() time.Time
}

// New creates a ledger service.
func New(store database.AttendanceWriter, roster Roster, opts Options) *Ledger {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Ledger{store: store, roster: roster, logger: opts.Logger, now: opts.Now}
}

// ParseDate parses a YYYY-MM-DD date. An empty string yields the zero time,
// which the ledger reads as today.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(constants.DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return t, nil
}

// Day formats date as stored in the ledger, today when date is zero.
func (l *Ledger) Day(date time.Time) string {
	if date.IsZero() {
		date = l.now()
	}
	return date.Format(constants.DateLayout)
}

// MarkPresent records that the student attended subject on date.
//
// A row that already exists for the same name, subject and date, whatever
// its status, makes this a no-op reported as AlreadyMarked.
func (l *Ledger) MarkPresent(ctx context.Context, name, rollNo, subject string, date time.Time) (Outcome, error) {
	return l.mark(ctx, constants.StatusPresent, name, rollNo, subject, date)
}

// MarkAbsent records an absence. Like MarkPresent it never writes a second
// row for the same name, subject and date.
func (l *Ledger) MarkAbsent(ctx context.Context, name, rollNo, subject string, date time.Time) (Outcome, error) {
	return l.mark(ctx, constants.StatusAbsent, name, rollNo, subject, date)
}

func (l *Ledger) mark(ctx context.Context, status, name, rollNo, subject string, date time.Time) (Outcome, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return 0, ErrInvalidSubject
	}

	student, err := l.roster.Get(ctx, rollNo)
	if err != nil {
		return 0, err
	}
	if facematch.NormalizePersonName(student.Name) != facematch.NormalizePersonName(name) {
		return 0, fmt.Errorf("%w: roll %s is %q, not %q", ErrNameMismatch, rollNo, student.Name, name)
	}
	if !student.HasSubject(subject) {
		return 0, fmt.Errorf("%w: %s (%s) in %s", ErrNotEnrolled, student.Name, rollNo, subject)
	}

	now := l.now()
	if date.IsZero() {
		date = now
	}
	rec := database.AttendanceRecord{
		Name:    student.Name,
		RollNo:  student.RollNo,
		Date:    date.Format(constants.DateLayout),
		Time:    now.Format(constants.TimeLayout),
		Subject: subject,
		Status:  status,
	}

	appended, err := l.store.AppendIfUnmarked(ctx, rec)
	if err != nil {
		return 0, fmt.Errorf("append attendance: %w", err)
	}
	if !appended {
		l.logger.Debug("attendance already marked",
			"name", rec.Name, "subject", rec.Subject, "date", rec.Date)
		return AlreadyMarked, nil
	}

	l.logger.Info("attendance marked",
		"name", rec.Name, "roll_no", rec.RollNo, "subject", rec.Subject,
		"date", rec.Date, "status", rec.Status)
	return Applied, nil
}

// Entry returns the row recorded for the student with rollNo in subject on
// date, nil when the slot is unmarked.
func (l *Ledger) Entry(ctx context.Context, rollNo, subject string, date time.Time) (*database.AttendanceRecord, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return nil, ErrInvalidSubject
	}
	student, err := l.roster.Get(ctx, rollNo)
	if err != nil {
		return nil, err
	}
	rec, err := l.store.Find(ctx, database.AttendanceKey{Name: student.Name, Subject: subject, Date: l.Day(date)})
	if err != nil {
		return nil, fmt.Errorf("find attendance: %w", err)
	}
	return rec, nil
}

// ComputeAbsentees returns the enrolled students with no Present row for
// subject on date, in the order given. Students are matched by name.
func (l *Ledger) ComputeAbsentees(ctx context.Context, subject string, date time.Time, enrolled []registry.Enrollee) ([]registry.Enrollee, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return nil, ErrInvalidSubject
	}

	present, err := l.store.PresentNames(ctx, subject, l.Day(date))
	if err != nil {
		return nil, fmt.Errorf("present names: %w", err)
	}

	absent := make([]registry.Enrollee, 0, len(enrolled))
	for _, e := range enrolled {
		if _, ok := present[e.Name]; !ok {
			absent = append(absent, e)
		}
	}
	return absent, nil
}

// Absentees computes absentees for subject on date from the current roster.
func (l *Ledger) Absentees(ctx context.Context, subject string, date time.Time) ([]registry.Enrollee, error) {
	enrolled, err := l.roster.Enrolled(ctx, subject)
	if err != nil {
		return nil, fmt.Errorf("enrolled students: %w", err)
	}
	return l.ComputeAbsentees(ctx, subject, date, enrolled)
}

// SweepResult reports what SweepAbsentees did.
type SweepResult struct {
	Subject string              `json:"subject"`
	Date    string              `json:"date"`
	Marked  []registry.Enrollee `json:"marked"`
	Skipped []registry.Enrollee `json:"skipped"`
}

// SweepAbsentees marks every absentee of subject on date as Absent.
// Absentees that already have a row are reported as skipped.
func (l *Ledger) SweepAbsentees(ctx context.Context, subject string, date time.Time) (SweepResult, error) {
	if date.IsZero() {
		date = l.now()
	}
	result := SweepResult{Subject: strings.TrimSpace(subject), Date: l.Day(date)}

	absentees, err := l.Absentees(ctx, subject, date)
	if err != nil {
		return result, err
	}

	for _, e := range absentees {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		outcome, err := l.MarkAbsent(ctx, e.Name, e.RollNo, result.Subject, date)
		if err != nil {
			return result, fmt.Errorf("mark %s absent: %w", e.Name, err)
		}
		if outcome == Applied {
			result.Marked = append(result.Marked, e)
		} else {
			result.Skipped = append(result.Skipped, e)
		}
	}

	l.logger.Info("absentee sweep finished", "subject", result.Subject, "date", result.Date,
		"marked", len(result.Marked), "skipped", len(result.Skipped))
	return result, nil
}

// Records returns ledger rows matching filter in ledger order.
func (l *Ledger) Records(ctx context.Context, filter database.AttendanceFilter) ([]database.AttendanceRecord, error) {
	records, err := l.store.Records(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}
	return records, nil
}
