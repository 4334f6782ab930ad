package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sloppy/infrared/internal/engine"
	"github.com/sloppy/infrared/internal/pathrule"
	"github.com/sloppy/infrared/internal/scan"
	"github.com/sloppy/infrared/internal/testutil"
)

func excludeMatcher(t *testing.T, dirs ...string) *pathrule.Matcher {
	t.Helper()
	return pathrule.NewMatcher(dirs)
}

func TestWatcherScansNewFiles(t *testing.T) {
	dir := testutil.TempDir(t)

	backend, err := engine.OpenDB("")
	if err != nil {
		t.Fatalf("open backend: %v", err)
	}
	if _, err := backend.AddSignature("EICAR-Test", "EICAR-STANDARD-ANTIVIRUS-TEST-FILE", 4); err != nil {
		t.Fatalf("add signature: %v", err)
	}

	results := make(chan scan.Result, 8)
	watcher := &Watcher{
		Dirs:    []string{dir},
		Scanner: backend,
		OnResult: func(r scan.Result) {
			results <- r
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- watcher.Run(ctx) }()

	// let the watcher register before creating files
	time.Sleep(100 * time.Millisecond)

	clean := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(clean, []byte("harmless"), 0o644); err != nil {
		t.Fatalf("write clean file: %v", err)
	}
	evil := filepath.Join(dir, "evil.com")
	if err := os.WriteFile(evil, []byte("X5O!EICAR-STANDARD-ANTIVIRUS-TEST-FILE!$H+H*"), 0o644); err != nil {
		t.Fatalf("write flagged file: %v", err)
	}

	seen := make(map[string]scan.Result)
	deadline := time.After(5 * time.Second)
	for len(seen) < 2 {
		select {
		case r := <-results:
			seen[r.Target.Path] = r
		case <-deadline:
			t.Fatalf("saw %d results, want 2", len(seen))
		}
	}

	if got := seen[clean]; got.Detail.Status != engine.Clean {
		t.Errorf("clean file verdict = %v", got.Detail.Status)
	}
	if got := seen[evil]; got.Detail.Status != engine.MaliciousSignature {
		t.Errorf("flagged file verdict = %v", got.Detail.Status)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != context.Canceled {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop on cancel")
	}
}

func TestWatcherExcludesQuarantineDir(t *testing.T) {
	dir := testutil.TempDir(t)
	store := filepath.Join(dir, "quarantine")
	if err := os.MkdirAll(store, 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	backend, err := engine.OpenDB("")
	if err != nil {
		t.Fatalf("open backend: %v", err)
	}

	results := make(chan scan.Result, 8)
	watcher := &Watcher{
		Dirs:     []string{dir},
		Scanner:  backend,
		Exclude:  excludeMatcher(t, store),
		OnResult: func(r scan.Result) { results <- r },
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = watcher.Run(ctx) }()
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(filepath.Join(store, "copy.bin"), []byte("x"), 0o600); err != nil {
		t.Fatalf("write excluded file: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "seen.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write watched file: %v", err)
	}

	select {
	case r := <-results:
		if r.Target.Path != filepath.Join(dir, "seen.txt") {
			t.Fatalf("unexpected result for %s", r.Target.Path)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watched file never scanned")
	}

	select {
	case r := <-results:
		t.Fatalf("excluded path scanned: %s", r.Target.Path)
	case <-time.After(300 * time.Millisecond):
	}
}
