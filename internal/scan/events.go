package scan

import (
	"time"

	"github.com/sloppy/infrared/internal/engine"
	"github.com/sloppy/infrared/internal/enumerate"
	"github.com/sloppy/infrared/internal/quarantine"
)

// EventKind discriminates the entries on a job's event stream.
type EventKind int

const (
	// EventResult carries the scan outcome for one target.
	EventResult EventKind = iota
	// EventStats carries the cumulative tally through the last completed
	// target; it is never ahead of the results already emitted.
	EventStats
	// EventProgress carries the 1-based index of the just-completed target.
	EventProgress
	// EventDone is the terminal event; the channel closes after it.
	EventDone
)

// Reason explains how a job reached its terminal state.
type Reason string

const (
	ReasonCompleted Reason = "completed"
	ReasonCancelled Reason = "cancelled"
	ReasonFailed    Reason = "failed"
)

// Result is the per-target outcome, including any auto-quarantine side
// effect that ran for it.
type Result struct {
	Target     enumerate.Target   `json:"target"`
	Detail     engine.Detail      `json:"detail"`
	Quarantine *quarantine.Record `json:"quarantine,omitempty"`
	// QuarantineError is set when auto-quarantine was attempted and failed
	// hard (missing source, copy failure). The job continues regardless.
	QuarantineError string `json:"quarantine_error,omitempty"`
}

// Summary describes a finished job.
type Summary struct {
	JobID        string    `json:"job_id"`
	Label        string    `json:"label"`
	Reason       Reason    `json:"reason"`
	Stats        Stats     `json:"stats"`
	Scanned      int       `json:"scanned"`
	TargetCount  int       `json:"target_count"`
	SkippedRoots int       `json:"skipped_roots"`
	Quarantined  int       `json:"quarantined"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
}

// Event is one entry on the ordered stream the worker writes and the
// consumer drains. Exactly one payload field is set per kind.
type Event struct {
	Kind     EventKind `json:"kind"`
	Result   *Result   `json:"result,omitempty"`
	Stats    Stats     `json:"stats,omitempty"`
	Progress int       `json:"progress,omitempty"`
	Summary  *Summary  `json:"summary,omitempty"`
}
