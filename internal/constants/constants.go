// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

// Attendance status values as stored in the ledger and its tabular export.
const (
	StatusPresent = "Present"
	StatusAbsent  = "Absent"
)

// Date and time layouts used for ledger rows.
const (
	// DateLayout is the calendar day format (YYYY-MM-DD)
	DateLayout = "2006-01-02"

	// TimeLayout is the wall clock format (HH:MM:SS)
	TimeLayout = "15:04:05"
)

// Face matching constants
const (
	// DefaultMatchTolerance is the maximum Euclidean distance for a face to be
	// accepted as a known student. Lower values = stricter matching
	DefaultMatchTolerance = 0.6

	// UnknownLabel is the identity reported for faces that match nobody
	UnknownLabel = "Unknown"

	// DefaultEmbeddingDim is the dimension of face_recognition/dlib encodings
	DefaultEmbeddingDim = 128

	// IndexCandidateCount is the number of HNSW neighbours re-ranked with
	// exact distances before applying the tolerance
	IndexCandidateCount = 8
)

// Frame processing constants
const (
	// FrameDownscale is the factor frames are shrunk by before detection.
	// Boxes reported on the small frame are multiplied back by the inverse.
	FrameDownscale = 0.25

	// MaxImageSize is the maximum dimension (width or height) for stored reference photos
	MaxImageSize = 1920
)

// Report constants
const (
	// DefaultMinimumAttendance is the percentage below which a student is flagged
	DefaultMinimumAttendance = 75.0

	// LowAttendanceFill is the background colour for flagged report rows
	LowAttendanceFill = "FF9999"
)
