// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/kozaktomas/class-attendance/internal/constants"
	"github.com/kozaktomas/class-attendance/internal/database"
)

// MockStudentStore is a mock implementation of database.StudentWriter
type MockStudentStore struct {
	mu       sync.RWMutex
	students []database.Student

	// Error injection
	GetError    error
	ListError   error
	CountError  error
	SaveError   error
	DeleteError error
}

// NewMockStudentStore creates a new mock student store
func NewMockStudentStore(students ...database.Student) *MockStudentStore {
	m := &MockStudentStore{}
	for _, s := range students {
		m.students = append(m.students, s.Clone())
	}
	return m
}

func (m *MockStudentStore) indexOf(rollNo string) int {
	for i := range m.students {
		if m.students[i].RollNo == rollNo {
			return i
		}
	}
	return -1
}

// GetStudent retrieves a student by roll number
func (m *MockStudentStore) GetStudent(ctx context.Context, rollNo string) (*database.Student, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	i := m.indexOf(rollNo)
	if i < 0 {
		return nil, nil
	}
	s := m.students[i].Clone()
	return &s, nil
}

// ListStudents returns all students in insertion order
func (m *MockStudentStore) ListStudents(ctx context.Context) ([]database.Student, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]database.Student, len(m.students))
	for i := range m.students {
		out[i] = m.students[i].Clone()
	}
	return out, nil
}

// CountStudents returns the number of students
func (m *MockStudentStore) CountStudents(ctx context.Context) (int, error) {
	if m.CountError != nil {
		return 0, m.CountError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.students), nil
}

// SaveStudent inserts or replaces a student
func (m *MockStudentStore) SaveStudent(ctx context.Context, student database.Student) error {
	if m.SaveError != nil {
		return m.SaveError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if i := m.indexOf(student.RollNo); i >= 0 {
		m.students[i] = student.Clone()
		return nil
	}
	m.students = append(m.students, student.Clone())
	return nil
}

// DeleteStudent removes a student
func (m *MockStudentStore) DeleteStudent(ctx context.Context, rollNo string) (bool, error) {
	if m.DeleteError != nil {
		return false, m.DeleteError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.indexOf(rollNo)
	if i < 0 {
		return false, nil
	}
	m.students = append(m.students[:i], m.students[i+1:]...)
	return true, nil
}

// MockLedger is a mock implementation of database.AttendanceWriter
type MockLedger struct {
	mu      sync.RWMutex
	records []database.AttendanceRecord

	// Error injection
	RecordsError error
	FindError    error
	PresentError error
	AppendError  error

	// AppendCalls counts AppendIfUnmarked invocations, including rejected ones
	AppendCalls int
}

// NewMockLedger creates a new mock ledger
func NewMockLedger(records ...database.AttendanceRecord) *MockLedger {
	return &MockLedger{records: append([]database.AttendanceRecord(nil), records...)}
}

// Records returns rows matching the filter
func (m *MockLedger) Records(ctx context.Context, filter database.AttendanceFilter) ([]database.AttendanceRecord, error) {
	if m.RecordsError != nil {
		return nil, m.RecordsError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []database.AttendanceRecord
	for i := range m.records {
		if filter.Matches(&m.records[i]) {
			out = append(out, m.records[i])
		}
	}
	return out, nil
}

// Find returns the row for a key
func (m *MockLedger) Find(ctx context.Context, key database.AttendanceKey) (*database.AttendanceRecord, error) {
	if m.FindError != nil {
		return nil, m.FindError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := range m.records {
		if m.records[i].Key() == key {
			rec := m.records[i]
			return &rec, nil
		}
	}
	return nil, nil
}

// PresentNames returns names marked present for subject on date
func (m *MockLedger) PresentNames(ctx context.Context, subject, date string) (map[string]struct{}, error) {
	if m.PresentError != nil {
		return nil, m.PresentError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make(map[string]struct{})
	for i := range m.records {
		r := &m.records[i]
		if r.Subject == subject && r.Date == date && r.Status == constants.StatusPresent {
			names[r.Name] = struct{}{}
		}
	}
	return names, nil
}

// CountRecords returns the number of rows
func (m *MockLedger) CountRecords(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records), nil
}

// AppendIfUnmarked appends a row unless its slot is taken
func (m *MockLedger) AppendIfUnmarked(ctx context.Context, record database.AttendanceRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AppendCalls++
	if m.AppendError != nil {
		return false, m.AppendError
	}
	for i := range m.records {
		if m.records[i].Key() == record.Key() {
			return false, nil
		}
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	m.records = append(m.records, record)
	return true, nil
}

// All returns a copy of every stored row
func (m *MockLedger) All() []database.AttendanceRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]database.AttendanceRecord(nil), m.records...)
}
