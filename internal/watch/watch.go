// Package watch scans files as they appear in watched directories.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/sloppy/infrared/internal/engine"
	"github.com/sloppy/infrared/internal/enumerate"
	"github.com/sloppy/infrared/internal/pathrule"
	"github.com/sloppy/infrared/internal/scan"
)

// settleDelay gives a just-created file a moment to finish being written
// before it is read for scanning.
const settleDelay = 100 * time.Millisecond

// Watcher scans newly created files in a fixed set of directories.
type Watcher struct {
	Dirs           []string
	Scanner        engine.Scanner
	Quarantiner    scan.Quarantiner
	Exclude        *pathrule.Matcher
	AutoQuarantine bool
	Log            *slog.Logger

	// OnResult, when set, receives every scan outcome. Used by the CLI to
	// print verdicts as they happen.
	OnResult func(scan.Result)
}

// Run watches until ctx is cancelled. Scan failures are logged and watching
// continues; only watcher setup failures are fatal.
func (w *Watcher) Run(ctx context.Context) error {
	if w.Log == nil {
		w.Log = slog.Default()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	for _, dir := range w.Dirs {
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
		w.Log.Info("watching", "dir", dir)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) {
				continue
			}
			w.handleCreate(event.Name)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.Log.Warn("watch: watcher error", "error", err)
		}
	}
}

func (w *Watcher) handleCreate(path string) {
	if w.Exclude.Excluded(path) {
		return
	}

	time.Sleep(settleDelay)
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return
	}

	result := scan.Result{Target: enumerate.Target{Path: path, Category: enumerate.CategoryFolder}}
	detail, err := engine.ScanDetailed(w.Scanner, path)
	result.Detail = detail
	if err != nil {
		w.Log.Warn("watch: scan failed", "path", path, "error", err)
	}

	if detail.Status.Quarantinable() {
		w.Log.Warn("watch: threat detected",
			"path", path, "verdict", detail.Status, "threat", detail.ThreatName)
		if w.AutoQuarantine && w.Quarantiner != nil {
			record, err := w.Quarantiner.Quarantine(path, detail.ThreatName)
			if err != nil {
				result.QuarantineError = fmt.Sprintf("quarantine failed: %v", err)
				w.Log.Warn("watch: quarantine failed", "path", path, "error", err)
			} else {
				result.Quarantine = &record
				w.Log.Info("watch: quarantined", "path", path, "file", record.File)
			}
		}
	}

	if w.OnResult != nil {
		w.OnResult(result)
	}
}
