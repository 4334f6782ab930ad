package quarantine

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sloppy/infrared/internal/handles"
	"github.com/sloppy/infrared/internal/testutil"
)

// fakeReleaser records release requests and optionally unlocks a directory
// to mimic a process dropping its handle after termination.
type fakeReleaser struct {
	holders   []handles.Holder
	calls     int
	released  []int32
	onRelease func()
}

func (f *fakeReleaser) HoldersOf(path string) ([]handles.Holder, error) {
	f.calls++
	return f.holders, nil
}

func (f *fakeReleaser) Release(h handles.Holder) error {
	f.released = append(f.released, h.PID)
	if f.onRelease != nil {
		f.onRelease()
	}
	return nil
}

func newTestManager(t *testing.T, releaser handles.Releaser) *Manager {
	t.Helper()
	m := NewManager(filepath.Join(testutil.TempDir(t), "store"), releaser, nil)
	m.RetryUnit = time.Millisecond
	m.ReleaseWait = 0
	return m
}

func TestQuarantineUnlockedFile(t *testing.T) {
	m := newTestManager(t, nil)
	dir := testutil.TempDir(t)
	content := []byte("malicious payload bytes")
	src := testutil.WriteFile(t, filepath.Join(dir, "virus.exe"), content)

	record, err := m.Quarantine(src, "Trojan.Generic")
	if err != nil {
		t.Fatalf("quarantine: %v", err)
	}
	if !record.OriginalDeleted {
		t.Fatal("original should have been deleted")
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Fatalf("original still exists: %v", err)
	}

	copied, err := os.ReadFile(filepath.Join(m.Dir, record.File))
	if err != nil {
		t.Fatalf("read copy: %v", err)
	}
	if !bytes.Equal(copied, content) {
		t.Fatal("quarantined copy is not byte-identical")
	}
	if filepath.Ext(record.File) != ".exe" {
		t.Fatalf("extension not preserved: %s", record.File)
	}

	records, err := m.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 1 || records[0].ThreatName != "Trojan.Generic" ||
		records[0].OriginalPath != src || !records[0].OriginalDeleted {
		t.Fatalf("unexpected record: %#v", records)
	}
}

func TestQuarantineMissingSource(t *testing.T) {
	m := newTestManager(t, nil)
	if _, err := m.Quarantine(filepath.Join(testutil.TempDir(t), "ghost.bin"), "X"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// lockDir makes removal of files inside dir fail by dropping write permission.
func lockDir(t *testing.T, dir string) {
	t.Helper()
	if os.Getuid() == 0 {
		t.Skip("root bypasses directory permission checks; read-only dir cannot block removal")
	}
	if err := os.Chmod(dir, 0o555); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	t.Cleanup(func() { os.Chmod(dir, 0o755) })
}

func TestQuarantineHeldFileDegradesToPartialSuccess(t *testing.T) {
	releaser := &fakeReleaser{holders: []handles.Holder{{PID: 4242, Name: "locker"}}}
	m := newTestManager(t, releaser)

	dir := testutil.TempDir(t)
	content := []byte("held-open payload")
	src := testutil.WriteFile(t, filepath.Join(dir, "held.bin"), content)
	lockDir(t, dir)

	record, err := m.Quarantine(src, "Worm.Held")
	if err != nil {
		t.Fatalf("lock contention must not raise: %v", err)
	}
	if record.OriginalDeleted {
		t.Fatal("removal cannot have succeeded in a read-only dir")
	}
	if _, err := os.Stat(src); err != nil {
		t.Fatalf("original should still exist: %v", err)
	}
	copied, err := os.ReadFile(filepath.Join(m.Dir, record.File))
	if err != nil || !bytes.Equal(copied, content) {
		t.Fatalf("store copy missing or altered: %v", err)
	}
	// 5 attempts; escalation on attempts 3, 4 and 5.
	if releaser.calls != 3 {
		t.Fatalf("expected 3 forced-release escalations, got %d", releaser.calls)
	}
	if len(releaser.released) != 3 || releaser.released[0] != 4242 {
		t.Fatalf("holders not terminated as expected: %v", releaser.released)
	}
}

func TestForcedReleaseUnblocksRemoval(t *testing.T) {
	dir := testutil.TempDir(t)
	releaser := &fakeReleaser{
		holders:   []handles.Holder{{PID: 7, Name: "editor"}},
		onRelease: func() { os.Chmod(dir, 0o755) },
	}
	m := newTestManager(t, releaser)
	src := testutil.WriteFile(t, filepath.Join(dir, "blocked.doc"), []byte("x"))
	lockDir(t, dir)

	record, err := m.Quarantine(src, "Macro.Bad")
	if err != nil {
		t.Fatalf("quarantine: %v", err)
	}
	if !record.OriginalDeleted {
		t.Fatal("removal should succeed once the holder released the dir")
	}
	if releaser.calls == 0 {
		t.Fatal("forced release never attempted")
	}
}

func TestRestoreRoundTrip(t *testing.T) {
	m := newTestManager(t, nil)
	dir := testutil.TempDir(t)
	content := []byte("round trip me")
	src := testutil.WriteFile(t, filepath.Join(dir, "sample.bin"), content)

	first, err := m.Quarantine(src, "Test.RoundTrip")
	if err != nil {
		t.Fatalf("first quarantine: %v", err)
	}
	firstCopy, err := os.ReadFile(filepath.Join(m.Dir, first.File))
	if err != nil {
		t.Fatalf("read first copy: %v", err)
	}

	if err := m.Restore(first); err != nil {
		t.Fatalf("restore: %v", err)
	}
	restored, err := os.ReadFile(src)
	if err != nil || !bytes.Equal(restored, content) {
		t.Fatalf("restored file missing or altered: %v", err)
	}
	if records, _ := m.List(); len(records) != 0 {
		t.Fatalf("store should be empty after restore: %#v", records)
	}

	second, err := m.Quarantine(src, "Test.RoundTrip")
	if err != nil {
		t.Fatalf("second quarantine: %v", err)
	}
	secondCopy, err := os.ReadFile(filepath.Join(m.Dir, second.File))
	if err != nil {
		t.Fatalf("read second copy: %v", err)
	}
	if !bytes.Equal(firstCopy, secondCopy) {
		t.Fatal("round-trip copies differ")
	}
}

func TestRestoreRecreatesMissingParents(t *testing.T) {
	m := newTestManager(t, nil)
	dir := testutil.TempDir(t)
	nested := filepath.Join(dir, "deep", "nested")
	src := testutil.WriteFile(t, filepath.Join(nested, "f.txt"), []byte("f"))

	record, err := m.Quarantine(src, "T")
	if err != nil {
		t.Fatalf("quarantine: %v", err)
	}
	if err := os.RemoveAll(filepath.Join(dir, "deep")); err != nil {
		t.Fatalf("remove parents: %v", err)
	}
	if err := m.Restore(record); err != nil {
		t.Fatalf("restore with missing parents: %v", err)
	}
	if _, err := os.Stat(src); err != nil {
		t.Fatalf("file not restored: %v", err)
	}
}

func TestRestoreFailureLeavesStoreUnchanged(t *testing.T) {
	m := newTestManager(t, nil)
	dir := testutil.TempDir(t)
	src := testutil.WriteFile(t, filepath.Join(dir, "f.txt"), []byte("f"))

	record, err := m.Quarantine(src, "T")
	if err != nil {
		t.Fatalf("quarantine: %v", err)
	}
	// Occupy the parent path with a regular file so MkdirAll must fail.
	record.OriginalPath = filepath.Join(dir, "f.txt", "sub", "g.txt")
	testutil.WriteFile(t, filepath.Join(dir, "f.txt"), []byte("blocker"))

	if err := m.Restore(record); !errors.Is(err, ErrRestoreFailed) {
		t.Fatalf("expected ErrRestoreFailed, got %v", err)
	}
	if records, _ := m.List(); len(records) != 1 {
		t.Fatalf("store changed by failed restore: %#v", records)
	}
}

func TestDeleteRemovesCopyAndSidecar(t *testing.T) {
	m := newTestManager(t, nil)
	src := testutil.WriteFile(t, filepath.Join(testutil.TempDir(t), "d.txt"), []byte("d"))
	record, err := m.Quarantine(src, "T")
	if err != nil {
		t.Fatalf("quarantine: %v", err)
	}
	if err := m.Delete(record); err != nil {
		t.Fatalf("delete: %v", err)
	}
	entries, err := os.ReadDir(m.Dir)
	if err != nil {
		t.Fatalf("read store: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("store not empty after delete: %d entries", len(entries))
	}
}

func TestClearAllContinuesPastFailures(t *testing.T) {
	m := newTestManager(t, nil)
	dir := testutil.TempDir(t)
	for _, name := range []string{"a.bin", "b.bin"} {
		src := testutil.WriteFile(t, filepath.Join(dir, name), []byte(name))
		if _, err := m.Quarantine(src, "T"); err != nil {
			t.Fatalf("quarantine %s: %v", name, err)
		}
	}
	// A non-empty subdirectory cannot be removed with os.Remove.
	testutil.WriteFile(t, filepath.Join(m.Dir, "stuck", "inner"), []byte("x"))

	failed, err := m.ClearAll()
	if err != nil {
		t.Fatalf("clear all: %v", err)
	}
	if failed != 1 {
		t.Fatalf("expected 1 failure, got %d", failed)
	}
	records, err := m.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("regular records should all be gone: %#v", records)
	}
}

func TestListDegradesOnMissingSidecar(t *testing.T) {
	m := newTestManager(t, nil)
	if err := os.MkdirAll(m.Dir, 0o700); err != nil {
		t.Fatalf("mkdir store: %v", err)
	}
	testutil.WriteFile(t, filepath.Join(m.Dir, "orphan.bin"), []byte("x"))

	records, err := m.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 1 || records[0].ThreatName != "Unknown" || records[0].OriginalName != "orphan.bin" {
		t.Fatalf("orphan copy not surfaced with placeholders: %#v", records)
	}
}

func TestFindByQuarantineFilename(t *testing.T) {
	m := newTestManager(t, nil)
	src := testutil.WriteFile(t, filepath.Join(testutil.TempDir(t), "x.bin"), []byte("x"))
	record, err := m.Quarantine(src, "T")
	if err != nil {
		t.Fatalf("quarantine: %v", err)
	}
	found, ok := m.Find(record.File)
	if !ok || found.OriginalPath != record.OriginalPath {
		t.Fatalf("find failed: ok=%v %#v", ok, found)
	}
	if _, ok := m.Find("nope.bin"); ok {
		t.Fatal("find matched a missing file")
	}
	if _, ok := m.Find(record.File + SidecarSuffix); ok {
		t.Fatal("find matched a sidecar")
	}
}

func TestNameCollisionResistance(t *testing.T) {
	when := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)
	a := quarantineName("report.pdf", when)
	b := quarantineName("invoice.pdf", when)
	if a == b {
		t.Fatalf("distinct basenames collided: %s", a)
	}
	if quarantineName("report.pdf", when) != a {
		t.Fatal("name derivation not deterministic")
	}
}

func TestSameSecondSameBasenameKeepsBothCopies(t *testing.T) {
	m := newTestManager(t, nil)
	when := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return when }

	dir := testutil.TempDir(t)
	first := testutil.WriteFile(t, filepath.Join(dir, "a", "virus.exe"), []byte("first"))
	second := testutil.WriteFile(t, filepath.Join(dir, "b", "virus.exe"), []byte("second"))

	recA, err := m.Quarantine(first, "Trojan.A")
	if err != nil {
		t.Fatalf("quarantine first: %v", err)
	}
	recB, err := m.Quarantine(second, "Trojan.B")
	if err != nil {
		t.Fatalf("quarantine second: %v", err)
	}
	if recA.File == recB.File {
		t.Fatalf("store names collided: %s", recA.File)
	}

	data, err := os.ReadFile(filepath.Join(m.Dir, recA.File))
	if err != nil || string(data) != "first" {
		t.Fatalf("first copy clobbered: %q err=%v", data, err)
	}
	data, err = os.ReadFile(filepath.Join(m.Dir, recB.File))
	if err != nil || string(data) != "second" {
		t.Fatalf("second copy wrong: %q err=%v", data, err)
	}

	records, err := m.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
}
