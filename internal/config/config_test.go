package config

import (
	"log/slog"
	"path/filepath"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"DATA_DIR", "FACES_DIR", "MATCH_TOLERANCE", "MATCH_INDEX", "EMBEDDING_URL", "EMBEDDING_DIM",
		"DATABASE_URL", "LEDGER_COMPACT_EVERY", "LEDGER_SNAPSHOT_COMPRESSION", "FRAME_SKIP_DISTANCE",
		"WEB_HOST", "WEB_PORT", "LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()

	if cfg.Storage.DataDir != "data" {
		t.Errorf("expected data dir 'data', got '%s'", cfg.Storage.DataDir)
	}
	if cfg.Storage.FacesDir != filepath.Join("data", "faces") {
		t.Errorf("unexpected faces dir '%s'", cfg.Storage.FacesDir)
	}
	if cfg.Matching.Tolerance != 0.6 {
		t.Errorf("expected tolerance 0.6, got %v", cfg.Matching.Tolerance)
	}
	if cfg.Matching.Index != "linear" {
		t.Errorf("expected linear index, got '%s'", cfg.Matching.Index)
	}
	if cfg.Embedding.Dim != 128 {
		t.Errorf("expected dim 128, got %d", cfg.Embedding.Dim)
	}
	if cfg.Ledger.CompactEvery != 500 {
		t.Errorf("expected compact every 500, got %d", cfg.Ledger.CompactEvery)
	}
	if cfg.Ledger.Compression != "zstd" {
		t.Errorf("expected zstd compression, got '%s'", cfg.Ledger.Compression)
	}
	if cfg.Session.FrameSkipDistance != 0 {
		t.Errorf("expected frame skip disabled, got %d", cfg.Session.FrameSkipDistance)
	}
	if cfg.Web.Port != 8080 {
		t.Errorf("expected port 8080, got %d", cfg.Web.Port)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("expected info level, got %v", cfg.LogLevel)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DATA_DIR", "/var/lib/attendance")
	t.Setenv("FACES_DIR", "")
	t.Setenv("MATCH_TOLERANCE", "0.45")
	t.Setenv("MATCH_INDEX", "hnsw")
	t.Setenv("LEDGER_COMPACT_EVERY", "20")
	t.Setenv("LEDGER_SNAPSHOT_COMPRESSION", "lz4")
	t.Setenv("FRAME_SKIP_DISTANCE", "4")
	t.Setenv("LOG_LEVEL", "debug")

	cfg := Load()

	if cfg.Storage.StudentsPath() != "/var/lib/attendance/students.cbor" {
		t.Errorf("unexpected students path '%s'", cfg.Storage.StudentsPath())
	}
	if cfg.Storage.LedgerDir() != "/var/lib/attendance/ledger" {
		t.Errorf("unexpected ledger dir '%s'", cfg.Storage.LedgerDir())
	}
	if cfg.Storage.FacesDir != "/var/lib/attendance/faces" {
		t.Errorf("unexpected faces dir '%s'", cfg.Storage.FacesDir)
	}
	if cfg.Matching.Tolerance != 0.45 {
		t.Errorf("expected tolerance 0.45, got %v", cfg.Matching.Tolerance)
	}
	if cfg.Matching.Index != "hnsw" {
		t.Errorf("expected hnsw index, got '%s'", cfg.Matching.Index)
	}
	if cfg.Ledger.CompactEvery != 20 {
		t.Errorf("expected compact every 20, got %d", cfg.Ledger.CompactEvery)
	}
	if cfg.Ledger.Compression != "lz4" {
		t.Errorf("expected lz4, got '%s'", cfg.Ledger.Compression)
	}
	if cfg.Session.FrameSkipDistance != 4 {
		t.Errorf("expected frame skip 4, got %d", cfg.Session.FrameSkipDistance)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("expected debug level, got %v", cfg.LogLevel)
	}
}

func TestEnvFloat_Invalid(t *testing.T) {
	tests := []struct {
		value    string
		expected float64
	}{
		{"", 0.6},
		{"abc", 0.6},
		{"-1", 0.6},
		{"0", 0.6},
		{"0.5", 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("TEST_FLOAT", tt.value)
			if got := envFloat("TEST_FLOAT", 0.6); got != tt.expected {
				t.Errorf("envFloat(%q) = %v, want %v", tt.value, got, tt.expected)
			}
		})
	}
}

func TestLoadPolicy(t *testing.T) {
	policy := LoadPolicy()

	if policy.Matching.Tolerance != 0.6 {
		t.Errorf("expected policy tolerance 0.6, got %v", policy.Matching.Tolerance)
	}
	if policy.Matching.UnknownLabel != "Unknown" {
		t.Errorf("expected unknown label 'Unknown', got '%s'", policy.Matching.UnknownLabel)
	}
	if policy.Report.MinimumAttendance != 75 {
		t.Errorf("expected minimum attendance 75, got %v", policy.Report.MinimumAttendance)
	}
	if policy.Report.GoodLabel != "Good" || policy.Report.LowLabel != "Low" {
		t.Errorf("unexpected status labels %q/%q", policy.Report.GoodLabel, policy.Report.LowLabel)
	}
}

func TestEnvList(t *testing.T) {
	t.Setenv("WEB_ALLOWED_ORIGINS", " https://school.example , ,https://staff.example")
	got := envList("WEB_ALLOWED_ORIGINS")
	if len(got) != 2 || got[0] != "https://school.example" || got[1] != "https://staff.example" {
		t.Errorf("envList() = %v", got)
	}

	t.Setenv("WEB_ALLOWED_ORIGINS", "")
	if got := envList("WEB_ALLOWED_ORIGINS"); len(got) != 0 {
		t.Errorf("envList() on empty = %v", got)
	}
}
