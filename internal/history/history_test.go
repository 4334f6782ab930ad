package history

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/sloppy/infrared/internal/db"
	"github.com/sloppy/infrared/internal/scan"
	"github.com/sloppy/infrared/internal/testutil"
)

func TestRecordScan(t *testing.T) {
	dir := testutil.TempDir(t)
	database, err := db.Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer database.Close()

	rec := NewRecorder(database, nil)
	summary := scan.Summary{
		JobID:     "job-1",
		Label:     "quick",
		Reason:    scan.ReasonCompleted,
		Scanned:   12,
		StartedAt: time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC),
	}
	summary.Stats = scan.Stats{Total: 12, Clean: 9, Malicious: 2, Suspicious: 1}

	if err := rec.RecordScan(summary); err != nil {
		t.Fatalf("RecordScan: %v", err)
	}

	entries, err := database.RecentHistory(0)
	if err != nil {
		t.Fatalf("RecentHistory: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	e := entries[0]
	if e.ScanType != "quick" {
		t.Errorf("ScanType = %q, want %q", e.ScanType, "quick")
	}
	if e.TotalFiles != 12 {
		t.Errorf("TotalFiles = %d, want 12", e.TotalFiles)
	}
	if e.Threats != 3 {
		t.Errorf("Threats = %d, want 3", e.Threats)
	}
	if e.Status != "completed" {
		t.Errorf("Status = %q, want %q", e.Status, "completed")
	}
}
