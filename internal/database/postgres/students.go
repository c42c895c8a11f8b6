package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/kozaktomas/class-attendance/internal/database"
)

// StudentRepository provides PostgreSQL-backed student storage.
type StudentRepository struct {
	pool *Pool
}

// NewStudentRepository creates a new PostgreSQL student repository.
func NewStudentRepository(pool *Pool) *StudentRepository {
	return &StudentRepository{pool: pool}
}

const studentColumns = `roll_no, name, semester, year, subjects, image_path, embedding, created_at, updated_at`

// GetStudent retrieves a student by roll number, nil if not found.
func (r *StudentRepository) GetStudent(ctx context.Context, rollNo string) (*database.Student, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+studentColumns+` FROM students WHERE roll_no = $1`, rollNo)
	s, err := scanStudent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ListStudents returns all students in enrollment order.
func (r *StudentRepository) ListStudents(ctx context.Context) ([]database.Student, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+studentColumns+` FROM students ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("query students: %w", err)
	}
	defer rows.Close()

	var students []database.Student
	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		students = append(students, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate students: %w", err)
	}
	return students, nil
}

// CountStudents returns the number of students.
func (r *StudentRepository) CountStudents(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM students").Scan(&count); err != nil {
		return 0, fmt.Errorf("count students: %w", err)
	}
	return count, nil
}

// SaveStudent inserts a student or replaces one with the same roll number.
// A replaced student keeps its enrollment position.
func (r *StudentRepository) SaveStudent(ctx context.Context, s database.Student) error {
	subjects := s.Subjects
	if subjects == nil {
		subjects = []string{}
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO students (roll_no, name, semester, year, subjects, image_path, embedding, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (roll_no) DO UPDATE SET
			name = EXCLUDED.name,
			semester = EXCLUDED.semester,
			year = EXCLUDED.year,
			subjects = EXCLUDED.subjects,
			image_path = EXCLUDED.image_path,
			embedding = EXCLUDED.embedding,
			created_at = EXCLUDED.created_at,
			updated_at = EXCLUDED.updated_at
	`, s.RollNo, s.Name, s.Semester, s.Year, pq.Array(subjects), s.ImagePath,
		pgvector.NewVector(s.Embedding), s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save student %s: %w", s.RollNo, err)
	}
	return nil
}

// DeleteStudent removes a student and reports whether one existed.
func (r *StudentRepository) DeleteStudent(ctx context.Context, rollNo string) (bool, error) {
	res, err := r.pool.Exec(ctx, "DELETE FROM students WHERE roll_no = $1", rollNo)
	if err != nil {
		return false, fmt.Errorf("delete student %s: %w", rollNo, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete student %s: %w", rollNo, err)
	}
	return n > 0, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanStudent(row scanner) (database.Student, error) {
	var s database.Student
	var subjects pq.StringArray
	var vec pgvector.Vector
	err := row.Scan(&s.RollNo, &s.Name, &s.Semester, &s.Year, &subjects, &s.ImagePath,
		&vec, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return s, err
	}
	if err != nil {
		return s, fmt.Errorf("scan student: %w", err)
	}
	s.Subjects = []string(subjects)
	s.Embedding = vec.Slice()
	return s, nil
}
