package file

import (
	"github.com/kozaktomas/class-attendance/internal/database"
)

// BackendName identifies this backend in logs and the provider.
const BackendName = "file"

// Register makes the stores the active storage backend.
func Register(students *StudentStore, ledger *Ledger) {
	database.RegisterBackend(BackendName,
		func() database.StudentWriter { return students },
		func() database.AttendanceWriter { return ledger },
	)
	database.RegisterCompactor(ledger)
}
