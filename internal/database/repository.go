package database

import (
	"context"
)

// StudentReader provides read-only access to the enrolled students
type StudentReader interface {
	// GetStudent retrieves a student by roll number, returns nil if not found
	GetStudent(ctx context.Context, rollNo string) (*Student, error)
	// ListStudents returns all students in enrollment order
	ListStudents(ctx context.Context) ([]Student, error)
	// CountStudents returns the number of enrolled students
	CountStudents(ctx context.Context) (int, error)
}

// StudentWriter provides write access to the enrolled students
type StudentWriter interface {
	StudentReader

	// SaveStudent inserts a student or replaces an existing one with the same
	// roll number. A replaced student keeps its enrollment position.
	SaveStudent(ctx context.Context, student Student) error

	// DeleteStudent removes a student together with its embedding.
	// Returns false if no student had the roll number.
	DeleteStudent(ctx context.Context, rollNo string) (bool, error)
}

// AttendanceReader provides read-only access to the attendance ledger
type AttendanceReader interface {
	// Records returns ledger rows matching the filter in the order they were recorded
	Records(ctx context.Context, filter AttendanceFilter) ([]AttendanceRecord, error)
	// Find returns the row recorded for (name, subject, date), nil if none exists
	Find(ctx context.Context, key AttendanceKey) (*AttendanceRecord, error)
	// PresentNames returns the set of names marked Present for subject on date
	PresentNames(ctx context.Context, subject, date string) (map[string]struct{}, error)
	// CountRecords returns the total number of ledger rows
	CountRecords(ctx context.Context) (int, error)
}

// AttendanceWriter provides append-only write access to the attendance ledger
type AttendanceWriter interface {
	AttendanceReader

	// AppendIfUnmarked appends the record unless a row of any status already
	// exists for its (name, subject, date). The check and the append are atomic.
	// Returns true if the record was appended.
	AppendIfUnmarked(ctx context.Context, record AttendanceRecord) (bool, error)
}

// Compactor is implemented by ledgers that fold their log into a snapshot
type Compactor interface {
	// Compact writes a snapshot of every row and truncates the log
	Compact(ctx context.Context) error
}
