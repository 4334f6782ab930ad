package db

import "time"

// HistoryEntry is one completed (or cancelled) scan job summary. The history
// log is append-only; entries are never mutated.
type HistoryEntry struct {
	ID         int64
	StartedAt  time.Time
	ScanType   string
	TotalFiles int
	Threats    int
	Status     string
}

// ResultRow is one archived per-file scan result, kept so finished jobs can
// be exported after the event stream is gone.
type ResultRow struct {
	ID          int64
	JobID       string
	Path        string
	Verdict     int
	ThreatName  string
	MD5         string
	SHA256      string
	FileSize    int64
	Quarantined bool
	CreatedAt   time.Time
}
