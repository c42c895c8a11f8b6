package config

import (
	_ "embed"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed policy.yaml
var policyYAML []byte

type Config struct {
	Storage   StorageConfig
	Matching  MatchingConfig
	Embedding EmbeddingConfig
	Database  DatabaseConfig
	Ledger    LedgerConfig
	Session   SessionConfig
	Web       WebConfig
	LogLevel  slog.Level
	Policy    PolicyConfig
}

type StorageConfig struct {
	DataDir  string // defaults to ./data
	FacesDir string // reference photos, defaults to <DataDir>/faces
}

// StudentsPath returns the registry file location for the file backend.
func (c *StorageConfig) StudentsPath() string {
	return filepath.Join(c.DataDir, "students.cbor")
}

// LedgerDir returns the directory holding the attendance log and snapshot.
func (c *StorageConfig) LedgerDir() string {
	return filepath.Join(c.DataDir, "ledger")
}

type MatchingConfig struct {
	Tolerance float64 // max Euclidean distance accepted as a match
	Index     string  // "linear" (exact) or "hnsw" (approximate)
}

type EmbeddingConfig struct {
	URL string // defaults to http://localhost:8000
	Dim int    // defaults to 128
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL, empty selects the file backend
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type LedgerConfig struct {
	CompactEvery int    // appended entries between snapshots
	Compression  string // snapshot compression: zstd, lz4 or none
}

type SessionConfig struct {
	FrameSkipDistance int // max dHash distance treated as an unchanged frame, 0 disables
}

type WebConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string // CORS origins besides localhost
}

type PolicyConfig struct {
	Matching MatchingPolicy `yaml:"matching"`
	Report   ReportPolicy   `yaml:"report"`
}

type MatchingPolicy struct {
	Tolerance    float64 `yaml:"tolerance"`
	UnknownLabel string  `yaml:"unknown_label"`
}

type ReportPolicy struct {
	MinimumAttendance float64 `yaml:"minimum_attendance"`
	GoodLabel         string  `yaml:"good_label"`
	LowLabel          string  `yaml:"low_label"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable and parses it as a positive float.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// envList splits a comma separated environment variable, dropping empty items.
func envList(key string) []string {
	var out []string
	for item := range strings.SplitSeq(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// parseLevel maps LOG_LEVEL values onto slog levels, defaulting to info.
func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LoadPolicy parses the embedded attendance policy.
func LoadPolicy() PolicyConfig {
	var policy PolicyConfig
	if err := yaml.Unmarshal(policyYAML, &policy); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded policy.yaml: " + err.Error())
	}
	return policy
}

func Load() *Config {
	policy := LoadPolicy()

	dataDir := envString("DATA_DIR", "data")

	return &Config{
		Storage: StorageConfig{
			DataDir:  dataDir,
			FacesDir: envString("FACES_DIR", filepath.Join(dataDir, "faces")),
		},
		Matching: MatchingConfig{
			Tolerance: envFloat("MATCH_TOLERANCE", policy.Matching.Tolerance),
			Index:     envString("MATCH_INDEX", "linear"),
		},
		Embedding: EmbeddingConfig{
			URL: os.Getenv("EMBEDDING_URL"),
			Dim: envInt("EMBEDDING_DIM", 128),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Ledger: LedgerConfig{
			CompactEvery: envInt("LEDGER_COMPACT_EVERY", 500),
			Compression:  envString("LEDGER_SNAPSHOT_COMPRESSION", "zstd"),
		},
		Session: SessionConfig{
			FrameSkipDistance: envInt("FRAME_SKIP_DISTANCE", 0),
		},
		Web: WebConfig{
			Host:           envString("WEB_HOST", "0.0.0.0"),
			Port:           envInt("WEB_PORT", 8080),
			AllowedOrigins: envList("WEB_ALLOWED_ORIGINS"),
		},
		LogLevel: parseLevel(os.Getenv("LOG_LEVEL")),
		Policy:   policy,
	}
}
