package constants

// Ledger export columns, in sheet order.
var LedgerColumns = []string{"Name", "Roll No", "Date", "Time", "Subject", "Status"}

// Sheet names
const (
	// LedgerSheet is the sheet holding the tabular attendance view
	LedgerSheet = "Attendance"
)

// File upload constants
const (
	// MaxUploadSize is the maximum file upload size in bytes (20MB)
	MaxUploadSize = 20 << 20
)

// Ledger storage constants
const (
	// DefaultCompactEvery is the number of appended log entries between snapshots
	DefaultCompactEvery = 500
)
