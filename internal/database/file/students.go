package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/kozaktomas/class-attendance/internal/database"
)

const studentsFileVersion = 1

// studentsDocument is the on-disk layout of the registry file.
type studentsDocument struct {
	Version  int            `cbor:"version"`
	Dim      int            `cbor:"dim"`
	Students []studentEntry `cbor:"students"`
}

type studentEntry struct {
	RollNo    string    `cbor:"roll_no"`
	Name      string    `cbor:"name"`
	Semester  string    `cbor:"semester"`
	Year      string    `cbor:"year"`
	Subjects  []string  `cbor:"subjects"`
	ImagePath string    `cbor:"image_path,omitempty"`
	Embedding []float32 `cbor:"embedding"`
	CreatedAt time.Time `cbor:"created_at"`
	UpdatedAt time.Time `cbor:"updated_at"`
}

// StudentStore keeps the registry in memory in enrollment order and rewrites
// the whole file atomically on every change.
type StudentStore struct {
	path     string
	logger   *slog.Logger
	mu       sync.RWMutex
	students []database.Student
	byRoll   map[string]int
}

// OpenStudentStore loads the registry file. A missing file yields an empty
// store; an unreadable one is moved aside to <path>.corrupt and also yields
// an empty store with a warning.
func OpenStudentStore(path string, logger *slog.Logger) (*StudentStore, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &StudentStore{
		path:   path,
		logger: logger,
		byRoll: make(map[string]int),
	}

	data, err := os.ReadFile(path) //nolint:gosec // path is from trusted config
	if errors.Is(err, fs.ErrNotExist) {
		logger.Info("student registry not found, starting empty", "path", path)
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read student registry: %w", err)
	}

	var doc studentsDocument
	if err := unmarshal(data, &doc); err != nil {
		logger.Warn("student registry unreadable, starting empty", "path", path, "error", err)
		if err := os.Rename(path, path+".corrupt"); err != nil {
			logger.Warn("could not move unreadable registry aside", "error", err)
		}
		return s, nil
	}

	for _, e := range doc.Students {
		s.byRoll[e.RollNo] = len(s.students)
		s.students = append(s.students, fromEntry(e))
	}
	logger.Debug("student registry loaded", "path", path, "students", len(s.students))
	return s, nil
}

// GetStudent retrieves a student by roll number, returns nil if not found.
func (s *StudentStore) GetStudent(ctx context.Context, rollNo string) (*database.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.byRoll[rollNo]
	if !ok {
		return nil, nil
	}
	student := s.students[i].Clone()
	return &student, nil
}

// ListStudents returns all students in enrollment order.
func (s *StudentStore) ListStudents(ctx context.Context) ([]database.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]database.Student, len(s.students))
	for i := range s.students {
		out[i] = s.students[i].Clone()
	}
	return out, nil
}

// CountStudents returns the number of enrolled students.
func (s *StudentStore) CountStudents(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.students), nil
}

// SaveStudent inserts or replaces a student and persists the registry.
// On a write failure the in-memory state is rolled back.
func (s *StudentStore) SaveStudent(ctx context.Context, student database.Student) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.students
	next := make([]database.Student, len(prev), len(prev)+1)
	copy(next, prev)

	student = student.Clone()
	if i, ok := s.byRoll[student.RollNo]; ok {
		next[i] = student
	} else {
		next = append(next, student)
	}

	if err := s.persist(next); err != nil {
		return err
	}
	s.students = next
	s.reindex()
	return nil
}

// DeleteStudent removes a student and persists the registry.
func (s *StudentStore) DeleteStudent(ctx context.Context, rollNo string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.byRoll[rollNo]
	if !ok {
		return false, nil
	}

	next := make([]database.Student, 0, len(s.students)-1)
	next = append(next, s.students[:i]...)
	next = append(next, s.students[i+1:]...)

	if err := s.persist(next); err != nil {
		return false, err
	}
	s.students = next
	s.reindex()
	return true, nil
}

// Path returns the registry file location.
func (s *StudentStore) Path() string {
	return s.path
}

func (s *StudentStore) reindex() {
	s.byRoll = make(map[string]int, len(s.students))
	for i := range s.students {
		s.byRoll[s.students[i].RollNo] = i
	}
}

func (s *StudentStore) persist(students []database.Student) error {
	doc := studentsDocument{
		Version:  studentsFileVersion,
		Students: make([]studentEntry, len(students)),
	}
	for i := range students {
		doc.Students[i] = toEntry(&students[i])
		if doc.Dim == 0 {
			doc.Dim = len(students[i].Embedding)
		}
	}

	data, err := marshal(doc)
	if err != nil {
		return fmt.Errorf("encode student registry: %w", err)
	}
	if err := writeFileAtomic(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write student registry: %w", err)
	}
	return nil
}

func toEntry(s *database.Student) studentEntry {
	return studentEntry{
		RollNo:    s.RollNo,
		Name:      s.Name,
		Semester:  s.Semester,
		Year:      s.Year,
		Subjects:  s.Subjects,
		ImagePath: s.ImagePath,
		Embedding: s.Embedding,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

func fromEntry(e studentEntry) database.Student {
	return database.Student{
		RollNo:    e.RollNo,
		Name:      e.Name,
		Semester:  e.Semester,
		Year:      e.Year,
		Subjects:  e.Subjects,
		ImagePath: e.ImagePath,
		Embedding: e.Embedding,
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}
}
