package file

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/kozaktomas/class-attendance/internal/constants"
	"github.com/kozaktomas/class-attendance/internal/database"
	"github.com/zeebo/blake3"
)

const (
	logFileName      = "ledger.log"
	snapshotFileName = "ledger.snapshot"

	snapshotMagic      = "ATTS"
	snapshotVersion    = 1
	snapshotHeaderSize = 4 + 1 + 1 + 2 + 32 + 8
)

var errSnapshotCorrupt = errors.New("ledger snapshot corrupt")

// logEntry is one attendance row as written to the log and the snapshot.
type logEntry struct {
	ID      string `cbor:"id"`
	Name    string `cbor:"name"`
	RollNo  string `cbor:"roll_no"`
	Date    string `cbor:"date"`
	Time    string `cbor:"time"`
	Subject string `cbor:"subject"`
	Status  string `cbor:"status"`
}

// LedgerOptions configures a file ledger.
type LedgerOptions struct {
	// CompactEvery folds the log into a snapshot after this many appends, 0 disables.
	CompactEvery int
	// Compression of the snapshot payload.
	Compression CompressionTag
	Logger      *slog.Logger
}

type dayKey struct {
	Subject string
	Date    string
}

// Ledger is an append-only attendance log with an in-memory index.
// Every append is a single write of one CBOR item followed by fsync.
// Compaction writes all rows to a snapshot and truncates the log; rows are
// identified by ID so a crash between those two steps replays harmlessly.
type Ledger struct {
	dir    string
	opts   LedgerOptions
	logger *slog.Logger

	mu      sync.RWMutex
	log     *os.File
	logSize int64
	pending int

	records []database.AttendanceRecord
	index   map[database.AttendanceKey]int
	byDay   map[dayKey][]int
	ids     map[string]struct{}
}

// OpenLedger loads the snapshot and replays the log found in dir.
// Missing files yield an empty ledger. An unreadable snapshot is moved aside
// and a torn entry at the end of the log is cut off, both with a warning.
func OpenLedger(dir string, opts LedgerOptions) (*Ledger, error) {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create ledger directory: %w", err)
	}

	l := &Ledger{
		dir:    dir,
		opts:   opts,
		logger: opts.Logger,
		index:  make(map[database.AttendanceKey]int),
		byDay:  make(map[dayKey][]int),
		ids:    make(map[string]struct{}),
	}

	if err := l.loadSnapshot(); err != nil {
		return nil, err
	}
	if err := l.replayLog(); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(l.logPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open ledger log: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat ledger log: %w", err)
	}
	l.log = f
	l.logSize = info.Size()

	l.logger.Debug("attendance ledger loaded", "dir", dir, "records", len(l.records), "pending", l.pending)
	return l, nil
}

func (l *Ledger) logPath() string {
	return filepath.Join(l.dir, logFileName)
}

func (l *Ledger) snapshotPath() string {
	return filepath.Join(l.dir, snapshotFileName)
}

func (l *Ledger) loadSnapshot() error {
	data, err := os.ReadFile(l.snapshotPath())
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read ledger snapshot: %w", err)
	}

	entries, err := decodeSnapshot(data)
	if err != nil {
		l.logger.Warn("ledger snapshot unreadable, ignoring it", "path", l.snapshotPath(), "error", err)
		if err := os.Rename(l.snapshotPath(), l.snapshotPath()+".corrupt"); err != nil {
			l.logger.Warn("could not move unreadable snapshot aside", "error", err)
		}
		return nil
	}

	for i := range entries {
		l.apply(entries[i])
	}
	return nil
}

func (l *Ledger) replayLog() error {
	data, err := os.ReadFile(l.logPath())
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read ledger log: %w", err)
	}

	rest := data
	for len(rest) > 0 {
		var e logEntry
		next, err := unmarshalFirst(rest, &e)
		if err != nil {
			good := int64(len(data) - len(rest))
			l.logger.Warn("discarding torn ledger log tail",
				"path", l.logPath(), "offset", good, "bytes", len(rest), "error", err)
			if err := os.Truncate(l.logPath(), good); err != nil {
				return fmt.Errorf("truncate torn ledger log: %w", err)
			}
			break
		}
		rest = next
		l.pending++
		l.apply(e)
	}
	return nil
}

// apply adds an entry to the in-memory state unless its ID was already seen.
func (l *Ledger) apply(e logEntry) {
	if _, dup := l.ids[e.ID]; dup {
		return
	}
	rec := database.AttendanceRecord{
		ID:      e.ID,
		Name:    e.Name,
		RollNo:  e.RollNo,
		Date:    e.Date,
		Time:    e.Time,
		Subject: e.Subject,
		Status:  e.Status,
	}
	key := rec.Key()
	if _, taken := l.index[key]; taken {
		l.logger.Warn("skipping second ledger row for the same day",
			"name", rec.Name, "subject", rec.Subject, "date", rec.Date, "id", rec.ID)
		return
	}

	i := len(l.records)
	l.records = append(l.records, rec)
	l.index[key] = i
	dk := dayKey{Subject: rec.Subject, Date: rec.Date}
	l.byDay[dk] = append(l.byDay[dk], i)
	l.ids[rec.ID] = struct{}{}
}

// Records returns ledger rows matching the filter in the order they were recorded.
func (l *Ledger) Records(ctx context.Context, filter database.AttendanceFilter) ([]database.AttendanceRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []database.AttendanceRecord
	for i := range l.records {
		if filter.Matches(&l.records[i]) {
			out = append(out, l.records[i])
		}
	}
	return out, nil
}

// Find returns the row recorded for the key, nil if none exists.
func (l *Ledger) Find(ctx context.Context, key database.AttendanceKey) (*database.AttendanceRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	i, ok := l.index[key]
	if !ok {
		return nil, nil
	}
	rec := l.records[i]
	return &rec, nil
}

// PresentNames returns the set of names marked Present for subject on date.
func (l *Ledger) PresentNames(ctx context.Context, subject, date string) (map[string]struct{}, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	names := make(map[string]struct{})
	for _, i := range l.byDay[dayKey{Subject: subject, Date: date}] {
		if l.records[i].Status == constants.StatusPresent {
			names[l.records[i].Name] = struct{}{}
		}
	}
	return names, nil
}

// CountRecords returns the total number of ledger rows.
func (l *Ledger) CountRecords(ctx context.Context) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records), nil
}

// AppendIfUnmarked appends the record unless its (name, subject, date) slot is
// already taken. A missing ID is filled with a fresh UUID.
func (l *Ledger) AppendIfUnmarked(ctx context.Context, rec database.AttendanceRecord) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.log == nil {
		return false, errors.New("ledger is closed")
	}
	if _, taken := l.index[rec.Key()]; taken {
		return false, nil
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	data, err := marshal(toLogEntry(&rec))
	if err != nil {
		return false, fmt.Errorf("encode ledger entry: %w", err)
	}
	if _, err := l.log.Write(data); err != nil {
		// Cut off whatever part of the entry reached the file.
		_ = l.log.Truncate(l.logSize)
		return false, fmt.Errorf("append ledger entry: %w", err)
	}
	if err := l.log.Sync(); err != nil {
		_ = l.log.Truncate(l.logSize)
		return false, fmt.Errorf("sync ledger log: %w", err)
	}
	l.logSize += int64(len(data))
	l.pending++
	l.apply(toLogEntry(&rec))

	if l.opts.CompactEvery > 0 && l.pending >= l.opts.CompactEvery {
		if err := l.compactLocked(); err != nil {
			l.logger.Warn("ledger compaction failed", "error", err)
		}
	}
	return true, nil
}

// Compact writes a snapshot of every row and truncates the log.
func (l *Ledger) Compact(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.log == nil {
		return errors.New("ledger is closed")
	}
	return l.compactLocked()
}

func (l *Ledger) compactLocked() error {
	entries := make([]logEntry, len(l.records))
	for i := range l.records {
		entries[i] = toLogEntry(&l.records[i])
	}

	data, err := encodeSnapshot(entries, l.opts.Compression)
	if err != nil {
		return err
	}
	if err := writeFileAtomic(l.snapshotPath(), data, 0o600); err != nil {
		return fmt.Errorf("write ledger snapshot: %w", err)
	}

	if err := l.log.Truncate(0); err != nil {
		return fmt.Errorf("truncate ledger log: %w", err)
	}
	if err := l.log.Sync(); err != nil {
		return fmt.Errorf("sync ledger log: %w", err)
	}
	l.logSize = 0
	l.pending = 0

	l.logger.Info("ledger compacted", "records", len(entries), "snapshot_bytes", len(data))
	return nil
}

// Pending returns the number of log entries not yet folded into a snapshot.
func (l *Ledger) Pending() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.pending
}

// Close closes the log file. The ledger cannot be written afterwards.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.log == nil {
		return nil
	}
	err := l.log.Close()
	l.log = nil
	if err != nil {
		return fmt.Errorf("close ledger log: %w", err)
	}
	return nil
}

func toLogEntry(r *database.AttendanceRecord) logEntry {
	return logEntry{
		ID:      r.ID,
		Name:    r.Name,
		RollNo:  r.RollNo,
		Date:    r.Date,
		Time:    r.Time,
		Subject: r.Subject,
		Status:  r.Status,
	}
}

// encodeSnapshot lays out a snapshot as
// magic(4) version(1) compression(1) reserved(2) blake3(32) size(8) payload.
// The digest and size cover the uncompressed CBOR payload.
func encodeSnapshot(entries []logEntry, tag CompressionTag) ([]byte, error) {
	payload, err := marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("encode ledger snapshot: %w", err)
	}
	compressed, usedTag, err := compress(payload, tag)
	if err != nil {
		return nil, err
	}

	digest := blake3.Sum256(payload)

	var buf bytes.Buffer
	buf.Grow(snapshotHeaderSize + len(compressed))
	buf.WriteString(snapshotMagic)
	buf.WriteByte(snapshotVersion)
	buf.WriteByte(byte(usedTag))
	buf.Write([]byte{0, 0})
	buf.Write(digest[:])
	buf.Write(binary.BigEndian.AppendUint64(nil, uint64(len(payload))))
	buf.Write(compressed)
	return buf.Bytes(), nil
}

func decodeSnapshot(data []byte) ([]logEntry, error) {
	if len(data) < snapshotHeaderSize {
		return nil, fmt.Errorf("%w: short header", errSnapshotCorrupt)
	}
	if string(data[:4]) != snapshotMagic {
		return nil, fmt.Errorf("%w: bad magic", errSnapshotCorrupt)
	}
	if data[4] != snapshotVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", errSnapshotCorrupt, data[4])
	}
	tag := CompressionTag(data[5])
	var digest [32]byte
	copy(digest[:], data[8:40])
	size := binary.BigEndian.Uint64(data[40:48])
	if size > uint64(len(data))*1024 {
		return nil, fmt.Errorf("%w: implausible size %d", errSnapshotCorrupt, size)
	}

	payload, err := decompress(data[snapshotHeaderSize:], tag, int(size))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errSnapshotCorrupt, err)
	}
	if blake3.Sum256(payload) != digest {
		return nil, fmt.Errorf("%w: digest mismatch", errSnapshotCorrupt)
	}

	var entries []logEntry
	if err := unmarshal(payload, &entries); err != nil {
		return nil, fmt.Errorf("%w: %w", errSnapshotCorrupt, err)
	}
	return entries, nil
}
