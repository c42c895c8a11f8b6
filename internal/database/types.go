package database

import (
	"slices"
	"strings"
	"time"
)

// Student is an enrolled student together with their face embedding.
// Metadata and embedding live in one item so they can never drift apart.
type Student struct {
	RollNo    string
	Name      string
	Semester  string
	Year      string
	Subjects  []string
	ImagePath string    // reference photo, optional
	Embedding []float32 // face encoding captured at enrollment
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasSubject reports whether the student is enrolled in subject.
func (s *Student) HasSubject(subject string) bool {
	return slices.Contains(s.Subjects, subject)
}

// Clone returns a deep copy so callers cannot mutate stored slices.
func (s Student) Clone() Student {
	s.Subjects = slices.Clone(s.Subjects)
	s.Embedding = slices.Clone(s.Embedding)
	return s
}

// NormalizeSubjects trims subject names, drops empty ones and removes
// duplicates keeping the first occurrence.
func NormalizeSubjects(subjects []string) []string {
	seen := make(map[string]struct{}, len(subjects))
	out := make([]string, 0, len(subjects))
	for _, s := range subjects {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// AttendanceRecord is one immutable ledger row.
type AttendanceRecord struct {
	ID      string // UUID, used to de-duplicate log replay
	Name    string
	RollNo  string
	Date    string // YYYY-MM-DD
	Time    string // HH:MM:SS
	Subject string
	Status  string // Present or Absent
}

// Key returns the (subject, date, name) triple the ledger indexes rows by.
func (r *AttendanceRecord) Key() AttendanceKey {
	return AttendanceKey{Subject: r.Subject, Date: r.Date, Name: r.Name}
}

// AttendanceKey identifies the at-most-one row slot for a student, subject and day.
type AttendanceKey struct {
	Subject string
	Date    string
	Name    string
}

// AttendanceFilter selects ledger rows. Empty fields match everything;
// From and To bound the date inclusively.
type AttendanceFilter struct {
	Name    string
	RollNo  string
	Subject string
	Date    string
	From    string
	To      string
	Status  string
}

// Matches reports whether the record passes every set field of the filter.
func (f AttendanceFilter) Matches(r *AttendanceRecord) bool {
	switch {
	case f.Name != "" && r.Name != f.Name:
		return false
	case f.RollNo != "" && r.RollNo != f.RollNo:
		return false
	case f.Subject != "" && r.Subject != f.Subject:
		return false
	case f.Date != "" && r.Date != f.Date:
		return false
	case f.From != "" && r.Date < f.From:
		return false
	case f.To != "" && r.Date > f.To:
		return false
	case f.Status != "" && r.Status != f.Status:
		return false
	}
	return true
}
