// Package registry manages the enrolled students and their face embeddings.
package registry

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kozaktomas/class-attendance/internal/database"
	"github.com/kozaktomas/class-attendance/internal/facematch"
)

var (
	ErrNotFound          = errors.New("student not found")
	ErrAlreadyExists     = errors.New("roll number already registered")
	ErrDuplicateName     = errors.New("name already registered under another roll number")
	ErrInvalidStudent    = errors.New("invalid student")
	ErrDimensionMismatch = errors.New("embedding dimension differs from registry")
	ErrRegistryCorrupt   = errors.New("student registry corrupt")
	ErrNoFace            = errors.New("no face found")
	ErrMultipleFaces     = errors.New("more than one face found")
	ErrNameChange        = errors.New("overwrite cannot change the student's name")
)

// Record is the descriptive part of a student supplied at registration.
type Record struct {
	Name      string
	Semester  string
	Year      string
	Subjects  []string
	ImagePath string
}

// Enrollee is a student enrolled in a subject.
type Enrollee struct {
	Name   string `json:"name"`
	RollNo string `json:"roll_no"`
}

// Options configures a Registry.
type Options struct {
	Logger *slog.Logger
	Now    func() time.Time
}

// Registry is the set of enrolled students, each owning its embedding.
type Registry struct {
	store  database.StudentWriter
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex // serializes check-then-write mutations
	revision atomic.Uint64
}

// New wraps a student store.
func New(store database.StudentWriter, opts Options) *Registry {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	r := &Registry{store: store, logger: opts.Logger, now: opts.Now}
	r.revision.Store(1)
	return r
}

// Load wraps a store and verifies its invariants. A failed verification
// returns the registry together with an error wrapping ErrRegistryCorrupt.
func Load(ctx context.Context, store database.StudentWriter, opts Options) (*Registry, error) {
	r := New(store, opts)
	if err := r.Verify(ctx); err != nil {
		return r, err
	}
	return r, nil
}

// Verify checks that every student has a roll number, a name and an
// embedding, that roll numbers are unique and that all embeddings share one
// dimension.
func (r *Registry) Verify(ctx context.Context) error {
	students, err := r.store.ListStudents(ctx)
	if err != nil {
		return fmt.Errorf("list students: %w", err)
	}

	var problems []error
	seen := make(map[string]struct{}, len(students))
	dim := 0
	for i := range students {
		s := &students[i]
		switch {
		case strings.TrimSpace(s.RollNo) == "":
			problems = append(problems, fmt.Errorf("position %d: empty roll number", i))
		case strings.TrimSpace(s.Name) == "":
			problems = append(problems, fmt.Errorf("roll %s: empty name", s.RollNo))
		case len(s.Embedding) == 0:
			problems = append(problems, fmt.Errorf("roll %s: missing embedding", s.RollNo))
		}
		if _, dup := seen[s.RollNo]; dup {
			problems = append(problems, fmt.Errorf("roll %s: registered twice", s.RollNo))
		}
		seen[s.RollNo] = struct{}{}
		if len(s.Embedding) == 0 {
			continue
		}
		if dim == 0 {
			dim = len(s.Embedding)
		} else if len(s.Embedding) != dim {
			problems = append(problems, fmt.Errorf("roll %s: embedding has %d values, expected %d",
				s.RollNo, len(s.Embedding), dim))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %w", ErrRegistryCorrupt, errors.Join(problems...))
	}
	return nil
}

// Add registers a student with their embedding. An existing roll number is
// only replaced when overwrite is set, otherwise ErrAlreadyExists tells the
// caller to ask for confirmation. An overwrite keeps the student's name.
func (r *Registry) Add(ctx context.Context, rollNo string, rec Record, embedding []float32, overwrite bool) (database.Student, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	student, existing, err := r.prepare(ctx, rollNo, rec, embedding, overwrite)
	if err != nil {
		return database.Student{}, err
	}
	return r.save(ctx, student, existing)
}

// prepare validates a registration against the current students and builds
// the record to store. It has no side effects. Callers hold r.mu.
func (r *Registry) prepare(ctx context.Context, rollNo string, rec Record, embedding []float32,
	overwrite bool) (database.Student, *database.Student, error) {
	rollNo = strings.TrimSpace(rollNo)
	rec.Name = strings.TrimSpace(rec.Name)
	switch {
	case rollNo == "":
		return database.Student{}, nil, fmt.Errorf("%w: roll number is required", ErrInvalidStudent)
	case rec.Name == "":
		return database.Student{}, nil, fmt.Errorf("%w: name is required", ErrInvalidStudent)
	case len(embedding) == 0:
		return database.Student{}, nil, fmt.Errorf("%w: embedding is required", ErrInvalidStudent)
	}

	students, err := r.store.ListStudents(ctx)
	if err != nil {
		return database.Student{}, nil, fmt.Errorf("list students: %w", err)
	}

	var existing *database.Student
	normalized := facematch.NormalizePersonName(rec.Name)
	dim := 0
	for i := range students {
		s := &students[i]
		if s.RollNo == rollNo {
			existing = s
			continue
		}
		if facematch.NormalizePersonName(s.Name) == normalized {
			return database.Student{}, nil, fmt.Errorf("%w: %q is roll %s", ErrDuplicateName, s.Name, s.RollNo)
		}
		if dim == 0 {
			dim = len(s.Embedding)
		}
	}
	if existing != nil && !overwrite {
		return database.Student{}, nil, fmt.Errorf("%w: %s (%s)", ErrAlreadyExists, rollNo, existing.Name)
	}
	if existing != nil && facematch.NormalizePersonName(existing.Name) != normalized {
		return database.Student{}, nil, fmt.Errorf("%w: roll %s is %q, remove it to register %q",
			ErrNameChange, rollNo, existing.Name, rec.Name)
	}
	if dim != 0 && len(embedding) != dim {
		return database.Student{}, nil, fmt.Errorf("%w: got %d values, registry uses %d",
			ErrDimensionMismatch, len(embedding), dim)
	}

	now := r.now()
	student := database.Student{
		RollNo:    rollNo,
		Name:      rec.Name,
		Semester:  strings.TrimSpace(rec.Semester),
		Year:      strings.TrimSpace(rec.Year),
		Subjects:  database.NormalizeSubjects(rec.Subjects),
		ImagePath: rec.ImagePath,
		Embedding: slices.Clone(embedding),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if existing != nil {
		// Attendance rows are keyed by the stored spelling.
		student.Name = existing.Name
		student.CreatedAt = existing.CreatedAt
		if student.ImagePath == "" {
			student.ImagePath = existing.ImagePath
		}
	}
	return student, existing, nil
}

// save stores a prepared student. Callers hold r.mu.
func (r *Registry) save(ctx context.Context, student database.Student, existing *database.Student) (database.Student, error) {
	if err := r.store.SaveStudent(ctx, student); err != nil {
		return database.Student{}, fmt.Errorf("save student: %w", err)
	}
	r.revision.Add(1)

	if existing != nil {
		r.logger.Info("student overwritten", "roll_no", student.RollNo, "name", student.Name)
	} else {
		r.logger.Info("student registered", "roll_no", student.RollNo, "name", student.Name, "subjects", student.Subjects)
	}
	return student, nil
}

// restore puts back the state a failed save replaced. Callers hold r.mu.
func (r *Registry) restore(ctx context.Context, rollNo string, existing *database.Student) {
	var err error
	if existing != nil {
		err = r.store.SaveStudent(ctx, *existing)
	} else {
		_, err = r.store.DeleteStudent(ctx, rollNo)
	}
	if err != nil {
		r.logger.Error("could not roll back student", "roll_no", rollNo, "error", err)
		return
	}
	r.revision.Add(1)
}

// AddWithPhoto registers a student from a capture that must hold exactly one
// face. The photo is kept in dir as the student's reference image. The
// previous photo is only replaced once the student is stored.
func (r *Registry) AddWithPhoto(ctx context.Context, rollNo string, rec Record, faces []facematch.Face,
	photo []byte, dir string, overwrite bool) (database.Student, error) {
	embedding, err := EmbeddingFromFaces(faces)
	if err != nil {
		return database.Student{}, err
	}
	rollNo = strings.TrimSpace(rollNo)
	path := referenceImagePath(dir, rollNo)
	rec.ImagePath = path

	r.mu.Lock()
	defer r.mu.Unlock()

	student, existing, err := r.prepare(ctx, rollNo, rec, embedding, overwrite)
	if err != nil {
		return database.Student{}, err
	}
	if err := r.checkPhotoOwner(ctx, rollNo, path); err != nil {
		return database.Student{}, err
	}

	tmp, err := writeTempPhoto(dir, photo)
	if err != nil {
		return database.Student{}, err
	}
	saved, err := r.save(ctx, student, existing)
	if err != nil {
		os.Remove(tmp)
		return database.Student{}, err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		r.restore(ctx, rollNo, existing)
		return database.Student{}, fmt.Errorf("write reference photo: %w", err)
	}
	return saved, nil
}

// checkPhotoOwner rejects a photo path that another roll number already maps
// to. Callers hold r.mu.
func (r *Registry) checkPhotoOwner(ctx context.Context, rollNo, path string) error {
	students, err := r.store.ListStudents(ctx)
	if err != nil {
		return fmt.Errorf("list students: %w", err)
	}
	for i := range students {
		s := &students[i]
		if s.RollNo == rollNo {
			continue
		}
		if s.ImagePath == path || referenceImagePath(filepath.Dir(path), s.RollNo) == path {
			return fmt.Errorf("%w: roll %s shares the reference photo %s of roll %s",
				ErrInvalidStudent, rollNo, filepath.Base(path), s.RollNo)
		}
	}
	return nil
}

// Remove deletes a student with their embedding and best-effort deletes the
// reference photo. An unknown roll number returns ErrNotFound and changes nothing.
func (r *Registry) Remove(ctx context.Context, rollNo string) (database.Student, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	student, err := r.store.GetStudent(ctx, rollNo)
	if err != nil {
		return database.Student{}, fmt.Errorf("get student: %w", err)
	}
	if student == nil {
		return database.Student{}, fmt.Errorf("%w: %s", ErrNotFound, rollNo)
	}

	deleted, err := r.store.DeleteStudent(ctx, rollNo)
	if err != nil {
		return database.Student{}, fmt.Errorf("delete student: %w", err)
	}
	if !deleted {
		return database.Student{}, fmt.Errorf("%w: %s", ErrNotFound, rollNo)
	}
	r.revision.Add(1)

	if student.ImagePath != "" {
		if err := os.Remove(student.ImagePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			r.logger.Warn("could not delete reference photo", "path", student.ImagePath, "error", err)
		}
	}
	r.logger.Info("student removed", "roll_no", rollNo, "name", student.Name)
	return *student, nil
}

// Get returns a student by roll number.
func (r *Registry) Get(ctx context.Context, rollNo string) (database.Student, error) {
	student, err := r.store.GetStudent(ctx, rollNo)
	if err != nil {
		return database.Student{}, fmt.Errorf("get student: %w", err)
	}
	if student == nil {
		return database.Student{}, fmt.Errorf("%w: %s", ErrNotFound, rollNo)
	}
	return *student, nil
}

// FindByName returns the student whose normalized name equals name.
func (r *Registry) FindByName(ctx context.Context, name string) (database.Student, error) {
	students, err := r.store.ListStudents(ctx)
	if err != nil {
		return database.Student{}, fmt.Errorf("list students: %w", err)
	}
	want := facematch.NormalizePersonName(name)
	for i := range students {
		if facematch.NormalizePersonName(students[i].Name) == want {
			return students[i], nil
		}
	}
	return database.Student{}, fmt.Errorf("%w: %q", ErrNotFound, name)
}

// List returns all students in enrollment order.
func (r *Registry) List(ctx context.Context) ([]database.Student, error) {
	students, err := r.store.ListStudents(ctx)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	return students, nil
}

// Students lets the registry serve as a matcher gallery.
func (r *Registry) Students(ctx context.Context) ([]database.Student, error) {
	return r.List(ctx)
}

// Count returns the number of enrolled students.
func (r *Registry) Count(ctx context.Context) (int, error) {
	n, err := r.store.CountStudents(ctx)
	if err != nil {
		return 0, fmt.Errorf("count students: %w", err)
	}
	return n, nil
}

// Revision changes after every successful Add or Remove.
func (r *Registry) Revision() uint64 {
	return r.revision.Load()
}

// AllSubjects returns the sorted union of every student's subjects.
func (r *Registry) AllSubjects(ctx context.Context) ([]string, error) {
	students, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{})
	for i := range students {
		for _, s := range students[i].Subjects {
			set[s] = struct{}{}
		}
	}
	subjects := make([]string, 0, len(set))
	for s := range set {
		subjects = append(subjects, s)
	}
	slices.Sort(subjects)
	return subjects, nil
}

// Enrolled returns the students taking subject in enrollment order.
func (r *Registry) Enrolled(ctx context.Context, subject string) ([]Enrollee, error) {
	students, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []Enrollee
	for i := range students {
		if students[i].HasSubject(subject) {
			out = append(out, Enrollee{Name: students[i].Name, RollNo: students[i].RollNo})
		}
	}
	return out, nil
}

// IsEnrolled reports whether the student with rollNo takes subject.
func (r *Registry) IsEnrolled(ctx context.Context, rollNo, subject string) (bool, error) {
	student, err := r.Get(ctx, rollNo)
	if err != nil {
		return false, err
	}
	return student.HasSubject(subject), nil
}

// EmbeddingFromFaces picks the enrollment embedding from a capture. The
// capture must contain exactly one face.
func EmbeddingFromFaces(faces []facematch.Face) ([]float32, error) {
	switch len(faces) {
	case 0:
		return nil, ErrNoFace
	case 1:
		if len(faces[0].Embedding) == 0 {
			return nil, ErrNoFace
		}
		return faces[0].Embedding, nil
	default:
		return nil, fmt.Errorf("%w: %d faces", ErrMultipleFaces, len(faces))
	}
}

// referenceImagePath returns where the reference photo of rollNo lives in dir.
func referenceImagePath(dir, rollNo string) string {
	name := strings.NewReplacer("/", "_", `\`, "_", "..", "_").Replace(rollNo)
	return filepath.Join(dir, name+".jpg")
}

// writeTempPhoto writes data to a temporary file in dir so it can be renamed
// into place.
func writeTempPhoto(dir string, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create faces directory: %w", err)
	}
	f, err := os.CreateTemp(dir, ".photo-*.tmp")
	if err != nil {
		return "", fmt.Errorf("create reference photo: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("write reference photo: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("write reference photo: %w", err)
	}
	return f.Name(), nil
}
