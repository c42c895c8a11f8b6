package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/kozaktomas/class-attendance/internal/constants"
	"github.com/kozaktomas/class-attendance/internal/database"
)

// AttendanceRepository provides the PostgreSQL-backed attendance ledger.
type AttendanceRepository struct {
	pool *Pool
}

// NewAttendanceRepository creates a new PostgreSQL attendance repository.
func NewAttendanceRepository(pool *Pool) *AttendanceRepository {
	return &AttendanceRepository{pool: pool}
}

const attendanceColumns = `id, name, roll_no, to_char(day, 'YYYY-MM-DD'), to_char(at_time, 'HH24:MI:SS'), subject, status`

// Records returns rows matching the filter in insertion order.
func (r *AttendanceRepository) Records(ctx context.Context, filter database.AttendanceFilter) ([]database.AttendanceRecord, error) {
	var where []string
	var args []any
	add := func(cond, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		where = append(where, strings.ReplaceAll(cond, "?", "$"+strconv.Itoa(len(args))))
	}
	add("name = ?", filter.Name)
	add("roll_no = ?", filter.RollNo)
	add("subject = ?", filter.Subject)
	add("day = ?::date", filter.Date)
	add("day >= ?::date", filter.From)
	add("day <= ?::date", filter.To)
	add("status = ?", filter.Status)

	query := `SELECT ` + attendanceColumns + ` FROM attendance`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query attendance: %w", err)
	}
	defer rows.Close()

	var records []database.AttendanceRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attendance: %w", err)
	}
	return records, nil
}

// Find returns the row for a name, subject and day, nil if unmarked.
func (r *AttendanceRepository) Find(ctx context.Context, key database.AttendanceKey) (*database.AttendanceRecord, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+attendanceColumns+` FROM attendance
		WHERE name = $1 AND subject = $2 AND day = $3::date`, key.Name, key.Subject, key.Date)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// PresentNames returns the names marked present for subject on date.
func (r *AttendanceRepository) PresentNames(ctx context.Context, subject, date string) (map[string]struct{}, error) {
	rows, err := r.pool.Query(ctx, `SELECT name FROM attendance
		WHERE subject = $1 AND day = $2::date AND status = $3`, subject, date, constants.StatusPresent)
	if err != nil {
		return nil, fmt.Errorf("query present names: %w", err)
	}
	defer rows.Close()

	names := make(map[string]struct{})
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan name: %w", err)
		}
		names[name] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate present names: %w", err)
	}
	return names, nil
}

// CountRecords returns the number of ledger rows.
func (r *AttendanceRepository) CountRecords(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM attendance").Scan(&count); err != nil {
		return 0, fmt.Errorf("count attendance: %w", err)
	}
	return count, nil
}

// AppendIfUnmarked inserts the row unless its name, subject and day already
// have one. The unique slot index makes the check and insert atomic.
func (r *AttendanceRepository) AppendIfUnmarked(ctx context.Context, rec database.AttendanceRecord) (bool, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	res, err := r.pool.Exec(ctx, `
		INSERT INTO attendance (id, name, roll_no, day, at_time, subject, status)
		VALUES ($1, $2, $3, $4::date, $5::time, $6, $7)
		ON CONFLICT DO NOTHING
	`, rec.ID, rec.Name, rec.RollNo, rec.Date, rec.Time, rec.Subject, rec.Status)
	if err != nil {
		return false, fmt.Errorf("insert attendance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert attendance: %w", err)
	}
	return n > 0, nil
}

func scanRecord(row scanner) (database.AttendanceRecord, error) {
	var rec database.AttendanceRecord
	err := row.Scan(&rec.ID, &rec.Name, &rec.RollNo, &rec.Date, &rec.Time, &rec.Subject, &rec.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, err
	}
	if err != nil {
		return rec, fmt.Errorf("scan attendance: %w", err)
	}
	return rec, nil
}
