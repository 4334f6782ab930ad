// Package history persists finished scan summaries to the database.
package history

import (
	"log/slog"

	"github.com/sloppy/infrared/internal/db"
	"github.com/sloppy/infrared/internal/scan"
)

// Recorder appends one history row per finished job. It satisfies the
// orchestrator's Recorder interface; persistence failures are the caller's
// to log, never a job failure.
type Recorder struct {
	DB  *db.DB
	Log *slog.Logger
}

func NewRecorder(database *db.DB, log *slog.Logger) *Recorder {
	if log == nil {
		log = slog.Default()
	}
	return &Recorder{DB: database, Log: log}
}

// RecordScan converts a job summary into its append-only history entry.
func (r *Recorder) RecordScan(summary scan.Summary) error {
	entry := db.HistoryEntry{
		StartedAt:  summary.StartedAt,
		ScanType:   summary.Label,
		TotalFiles: summary.Scanned,
		Threats:    summary.Stats.Threats(),
		Status:     string(summary.Reason),
	}
	stored, err := r.DB.AppendHistory(entry)
	if err != nil {
		return err
	}
	r.Log.Debug("history appended",
		"id", stored.ID, "type", stored.ScanType, "threats", stored.Threats)
	return nil
}
