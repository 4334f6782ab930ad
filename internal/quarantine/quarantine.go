// Package quarantine relocates flagged files into an isolated store. The
// copy in the store is the authoritative evidence: removal of the original
// may fail under lock contention and is retried with backoff, with forced
// handle release late in the retry window. The record is persisted either
// way.
package quarantine

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/sloppy/infrared/internal/handles"
)

const (
	// SidecarSuffix marks the metadata file stored next to each copy.
	SidecarSuffix = ".meta"

	nameLayout = "20060102_150405"
	timeLayout = "2006-01-02 15:04:05"

	defaultMaxAttempts = 5
	defaultRetryUnit   = 500 * time.Millisecond
	defaultReleaseWait = time.Second

	// forcedReleaseAttempt is the first removal attempt that escalates to
	// terminating handle holders.
	forcedReleaseAttempt = 3
)

var (
	// ErrNotFound means the source file does not exist; the one quarantine
	// failure that is a hard error rather than a partial-success record.
	ErrNotFound = errors.New("quarantine: file not found")
	// ErrRestoreFailed means a restore left the store unchanged.
	ErrRestoreFailed = errors.New("quarantine: restore failed")
)

// Record describes one quarantined file. Its existence implies a copy
// physically exists in the store, even when OriginalDeleted is false.
type Record struct {
	File            string    `json:"file"`
	OriginalPath    string    `json:"original_path"`
	OriginalName    string    `json:"original_filename"`
	ThreatName      string    `json:"threat_name"`
	QuarantinedAt   time.Time `json:"quarantine_time"`
	OriginalDeleted bool      `json:"original_deleted"`
}

// sidecar is the on-disk metadata format, one JSON file per quarantined copy.
type sidecar struct {
	OriginalPath     string `json:"original_path"`
	OriginalFilename string `json:"original_filename"`
	ThreatName       string `json:"threat_name"`
	QuarantineTime   string `json:"quarantine_time"`
	OriginalDeleted  bool   `json:"original_deleted"`
}

// Manager owns one quarantine store directory.
type Manager struct {
	Dir      string
	Releaser handles.Releaser

	// MaxAttempts bounds original-file removal attempts.
	MaxAttempts int
	// RetryUnit is multiplied by the attempt number between retries.
	RetryUnit time.Duration
	// ReleaseWait is the pause after terminating handle holders.
	ReleaseWait time.Duration

	log *slog.Logger
	now func() time.Time
}

// NewManager returns a manager over dir. A nil releaser degrades to the
// unsupported fallback; a nil logger uses the default.
func NewManager(dir string, releaser handles.Releaser, log *slog.Logger) *Manager {
	if releaser == nil {
		releaser = handles.Unsupported{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		Dir:         dir,
		Releaser:    releaser,
		MaxAttempts: defaultMaxAttempts,
		RetryUnit:   defaultRetryUnit,
		ReleaseWait: defaultReleaseWait,
		log:         log,
		now:         time.Now,
	}
}

// Quarantine copies path into the store, attempts to remove the original,
// and persists a record reflecting the outcome. Lock contention on the
// original never surfaces as an error; a missing source or a failed copy
// does.
func (m *Manager) Quarantine(path, threatName string) (Record, error) {
	abs, err := filepath.Abs(path)
	if err == nil {
		path = abs
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return Record{}, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return Record{}, fmt.Errorf("stat source: %w", err)
	}
	if err := os.MkdirAll(m.Dir, 0o700); err != nil {
		return Record{}, fmt.Errorf("create quarantine store: %w", err)
	}

	original := filepath.Base(path)
	when := m.now()
	file := m.uniqueName(original, when)
	dest := filepath.Join(m.Dir, file)

	// Read-all-then-write-all keeps the source handle open only briefly and
	// avoids partial-write states in the store.
	data, err := os.ReadFile(path)
	if err != nil {
		return Record{}, fmt.Errorf("copy into quarantine: %w", err)
	}
	if err := os.WriteFile(dest, data, 0o600); err != nil {
		return Record{}, fmt.Errorf("copy into quarantine: %w", err)
	}

	record := Record{
		File:            file,
		OriginalPath:    path,
		OriginalName:    original,
		ThreatName:      threatName,
		QuarantinedAt:   when,
		OriginalDeleted: m.removeOriginal(path),
	}
	if err := m.writeSidecar(record); err != nil {
		return record, err
	}
	return record, nil
}

// quarantineName derives a collision-resistant, filesystem-safe store name:
// timestamp, a short hash of the original base name, original extension.
func quarantineName(original string, when time.Time) string {
	ext := filepath.Ext(original)
	stem := strings.TrimSuffix(original, ext)
	sum := md5.Sum([]byte(stem))
	return fmt.Sprintf("%s_%s%s", when.Format(nameLayout), hex.EncodeToString(sum[:])[:8], ext)
}

// uniqueName counters up when a same-second quarantine of an identically
// named file already produced the derived name, so neither copy nor sidecar
// gets overwritten.
func (m *Manager) uniqueName(original string, when time.Time) string {
	base := quarantineName(original, when)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	name := base
	for n := 1; ; n++ {
		if _, err := os.Lstat(filepath.Join(m.Dir, name)); os.IsNotExist(err) {
			return name
		}
		name = fmt.Sprintf("%s_%d%s", stem, n, ext)
	}
}

// removeOriginal tries to delete path with linear backoff. From the third
// attempt on, processes holding the file open are terminated first. Returns
// whether the original is gone.
func (m *Manager) removeOriginal(path string) bool {
	attempt := 0
	operation := func() error {
		attempt++
		err := os.Remove(path)
		if err == nil || os.IsNotExist(err) {
			return nil
		}
		m.log.Warn("quarantine: removal attempt failed",
			"path", path, "attempt", attempt, "error", err)
		if attempt >= forcedReleaseAttempt {
			m.forceRelease(path)
		}
		return err
	}

	err := backoff.Retry(operation, &linearBackOff{
		unit:        m.RetryUnit,
		maxAttempts: m.MaxAttempts,
	})
	if err != nil {
		m.log.Warn("quarantine: original left on disk after retries", "path", path)
		return false
	}
	return true
}

// forceRelease terminates the processes holding this exact path open and
// gives the OS a moment to reap them. Unsupported platforms are a no-op.
func (m *Manager) forceRelease(path string) {
	holders, err := m.Releaser.HoldersOf(path)
	if err != nil {
		if !errors.Is(err, handles.ErrUnsupported) {
			m.log.Warn("quarantine: holder enumeration failed", "path", path, "error", err)
		}
		return
	}
	released := 0
	for _, h := range holders {
		if err := m.Releaser.Release(h); err != nil {
			m.log.Warn("quarantine: failed to terminate holder",
				"pid", h.PID, "name", h.Name, "error", err)
			continue
		}
		m.log.Info("quarantine: terminated handle holder",
			"pid", h.PID, "name", h.Name, "path", path)
		released++
	}
	if released > 0 {
		time.Sleep(m.ReleaseWait)
	}
}

// Restore copies the quarantined file back to its original path (creating
// missing parents) and removes the copy and sidecar. On failure the store is
// left unchanged.
func (m *Manager) Restore(record Record) error {
	src := filepath.Join(m.Dir, record.File)
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("%w: read copy: %v", ErrRestoreFailed, err)
	}
	if err := os.MkdirAll(filepath.Dir(record.OriginalPath), 0o755); err != nil {
		return fmt.Errorf("%w: create destination dir: %v", ErrRestoreFailed, err)
	}
	if err := os.WriteFile(record.OriginalPath, data, 0o644); err != nil {
		return fmt.Errorf("%w: write destination: %v", ErrRestoreFailed, err)
	}
	if err := os.Remove(src); err != nil {
		return fmt.Errorf("remove quarantined copy: %w", err)
	}
	if err := os.Remove(src + SidecarSuffix); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove sidecar: %w", err)
	}
	return nil
}

// Delete permanently removes a quarantined copy and its sidecar.
func (m *Manager) Delete(record Record) error {
	src := filepath.Join(m.Dir, record.File)
	if err := os.Remove(src); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete quarantined copy: %w", err)
	}
	if err := os.Remove(src + SidecarSuffix); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete sidecar: %w", err)
	}
	return nil
}

// ClearAll removes every entry in the store, continuing past individual
// failures. It returns how many entries could not be removed.
func (m *Manager) ClearAll() (int, error) {
	entries, err := os.ReadDir(m.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read quarantine store: %w", err)
	}
	failed := 0
	for _, entry := range entries {
		if err := os.Remove(filepath.Join(m.Dir, entry.Name())); err != nil {
			m.log.Warn("quarantine: clear failed for entry",
				"entry", entry.Name(), "error", err)
			failed++
		}
	}
	return failed, nil
}

// List returns the store's records ordered by quarantine filename, which is
// chronological thanks to the timestamp prefix. A missing or corrupt sidecar
// degrades to placeholder metadata rather than hiding the copy.
func (m *Manager) List() ([]Record, error) {
	entries, err := os.ReadDir(m.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read quarantine store: %w", err)
	}

	var records []Record
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasSuffix(name, SidecarSuffix) {
			continue
		}
		records = append(records, m.readRecord(name))
	}
	sort.Slice(records, func(i, j int) bool { return records[i].File < records[j].File })
	return records, nil
}

// Find looks up one record by its quarantine filename.
func (m *Manager) Find(file string) (Record, bool) {
	if strings.ContainsRune(file, os.PathSeparator) || strings.HasSuffix(file, SidecarSuffix) {
		return Record{}, false
	}
	if _, err := os.Stat(filepath.Join(m.Dir, file)); err != nil {
		return Record{}, false
	}
	return m.readRecord(file), true
}

func (m *Manager) readRecord(file string) Record {
	record := Record{
		File:         file,
		OriginalName: file,
		ThreatName:   "Unknown",
	}
	data, err := os.ReadFile(filepath.Join(m.Dir, file+SidecarSuffix))
	if err != nil {
		return record
	}
	var meta sidecar
	if err := json.Unmarshal(data, &meta); err != nil {
		return record
	}
	record.OriginalPath = meta.OriginalPath
	record.OriginalName = meta.OriginalFilename
	record.ThreatName = meta.ThreatName
	record.OriginalDeleted = meta.OriginalDeleted
	if when, err := time.ParseInLocation(timeLayout, meta.QuarantineTime, time.Local); err == nil {
		record.QuarantinedAt = when
	}
	return record
}

func (m *Manager) writeSidecar(record Record) error {
	meta := sidecar{
		OriginalPath:     record.OriginalPath,
		OriginalFilename: record.OriginalName,
		ThreatName:       record.ThreatName,
		QuarantineTime:   record.QuarantinedAt.Format(timeLayout),
		OriginalDeleted:  record.OriginalDeleted,
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal sidecar: %w", err)
	}
	path := filepath.Join(m.Dir, record.File+SidecarSuffix)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write sidecar: %w", err)
	}
	return nil
}

// linearBackOff waits unit×attemptNumber between attempts and stops after
// maxAttempts operations.
type linearBackOff struct {
	unit        time.Duration
	maxAttempts int
	n           int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.n++
	if b.n >= b.maxAttempts {
		return backoff.Stop
	}
	return time.Duration(b.n) * b.unit
}

func (b *linearBackOff) Reset() { b.n = 0 }
