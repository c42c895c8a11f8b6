package postgres

import "github.com/kozaktomas/class-attendance/internal/database"

// BackendName identifies this backend in logs and the provider.
const BackendName = "postgres"

// Register makes the PostgreSQL repositories the active storage backend.
func Register(pool *Pool) {
	database.RegisterBackend(BackendName,
		func() database.StudentWriter { return NewStudentRepository(pool) },
		func() database.AttendanceWriter { return NewAttendanceRepository(pool) },
	)
}
