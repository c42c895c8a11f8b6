package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/kozaktomas/class-attendance/internal/attendance"
	"github.com/kozaktomas/class-attendance/internal/config"
	"github.com/kozaktomas/class-attendance/internal/constants"
	"github.com/kozaktomas/class-attendance/internal/database"
	"github.com/kozaktomas/class-attendance/internal/database/file"
	"github.com/kozaktomas/class-attendance/internal/database/postgres"
	"github.com/kozaktomas/class-attendance/internal/detector"
	"github.com/kozaktomas/class-attendance/internal/facematch"
	"github.com/kozaktomas/class-attendance/internal/registry"
)

// app bundles the services every command works with.
type app struct {
	cfg        *config.Config
	logger     *slog.Logger
	registry   *registry.Registry
	ledger     *attendance.Ledger
	attendance database.AttendanceWriter
	close      func()
}

// newLogger writes text logs to stderr so command output stays clean.
func newLogger(cfg *config.Config) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
}

// openApp initializes the storage backend selected by the configuration and
// the services on top of it. DATABASE_URL selects PostgreSQL, otherwise the
// registry and ledger live in files under DATA_DIR. With verify set a registry
// that fails its consistency check is an error.
func openApp(ctx context.Context, verify bool) (*app, error) {
	cfg := config.Load()
	logger := newLogger(cfg)

	closeBackend, err := initBackend(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	students, err := database.GetStudentWriter(ctx)
	if err != nil {
		closeBackend()
		return nil, fmt.Errorf("failed to get student store: %w", err)
	}
	records, err := database.GetAttendanceWriter(ctx)
	if err != nil {
		closeBackend()
		return nil, fmt.Errorf("failed to get attendance store: %w", err)
	}

	reg := registry.New(students, registry.Options{Logger: logger})
	if verify {
		if err := reg.Verify(ctx); err != nil {
			closeBackend()
			return nil, fmt.Errorf("failed to load student registry: %w", err)
		}
	}

	return &app{
		cfg:        cfg,
		logger:     logger,
		registry:   reg,
		ledger:     attendance.New(records, reg, attendance.Options{Logger: logger}),
		attendance: records,
		close:      closeBackend,
	}, nil
}

// initBackend opens and registers the storage backend and returns its closer.
func initBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (func(), error) {
	if cfg.Database.URL != "" {
		pool, err := postgres.Initialize(ctx, &cfg.Database, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
		}
		logger.Debug("storage backend ready", "backend", postgres.BackendName)
		return func() {
			if err := pool.Close(); err != nil {
				logger.Warn("closing database", "error", err)
			}
		}, nil
	}

	compression, err := file.ParseCompressionTag(cfg.Ledger.Compression)
	if err != nil {
		return nil, fmt.Errorf("invalid LEDGER_SNAPSHOT_COMPRESSION: %w", err)
	}

	students, err := file.OpenStudentStore(cfg.Storage.StudentsPath(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open student registry: %w", err)
	}
	ledger, err := file.OpenLedger(cfg.Storage.LedgerDir(), file.LedgerOptions{
		CompactEvery: cfg.Ledger.CompactEvery,
		Compression:  compression,
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open attendance ledger: %w", err)
	}
	file.Register(students, ledger)
	logger.Debug("storage backend ready", "backend", file.BackendName, "dir", cfg.Storage.DataDir)

	return func() {
		if err := ledger.Close(); err != nil {
			logger.Warn("closing ledger", "error", err)
		}
	}, nil
}

// matcher builds the face matcher selected by MATCH_INDEX over the registry.
func (a *app) matcher() facematch.Matcher {
	return facematch.NewMatcher(a.cfg.Matching.Index, a.registry, facematch.Options{
		Tolerance:    a.cfg.Matching.Tolerance,
		UnknownLabel: a.cfg.Policy.Matching.UnknownLabel,
	})
}

// detector returns a client for the embedding service.
func (a *app) detector() *detector.Client {
	return detector.NewClient(a.cfg.Embedding.URL, constants.FrameDownscale)
}

// outputJSON prints data as indented JSON to stdout.
func outputJSON(data any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}
	return nil
}
