// Package scan drives a batch of enumerated targets through a detection
// backend, emitting ordered progress/result/stats events and honoring
// cooperative cancellation at iteration boundaries.
package scan

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/sloppy/infrared/internal/engine"
	"github.com/sloppy/infrared/internal/enumerate"
	"github.com/sloppy/infrared/internal/quarantine"
)

// State is the orchestrator lifecycle.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateCompleted
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// ErrBusy is returned by Start while another job is running; the orchestrator
// allows at most one active job.
var ErrBusy = errors.New("scan: a job is already running")

// Options controls one job run.
type Options struct {
	// Detailed requests the backend's detailed capability when present.
	Detailed bool
	// AutoQuarantine quarantines each flagged file synchronously before the
	// next target is scanned, keeping handle pressure at one file at a time.
	AutoQuarantine bool
}

// Quarantiner is the slice of the quarantine manager the orchestrator needs.
type Quarantiner interface {
	Quarantine(path, threatName string) (quarantine.Record, error)
}

// Recorder receives the summary of every finished job. Failures are logged,
// never propagated into the job outcome.
type Recorder interface {
	RecordScan(summary Summary) error
}

// Job is one ordered, finite batch of targets plus its cancellation flag.
type Job struct {
	ID           uuid.UUID
	Label        string
	Targets      []enumerate.Target
	SkippedRoots int

	stop atomic.Bool
}

// NewJob builds a job over already-enumerated targets. label is the
// operator-facing scan-type description recorded in history.
func NewJob(label string, targets []enumerate.Target, skippedRoots int) *Job {
	return &Job{
		ID:           uuid.New(),
		Label:        label,
		Targets:      targets,
		SkippedRoots: skippedRoots,
	}
}

// Cancel requests cooperative cancellation. The worker observes it at the
// next iteration boundary; the in-flight adapter call finishes first.
func (j *Job) Cancel() { j.stop.Store(true) }

// Orchestrator runs at most one job at a time against a fixed backend.
type Orchestrator struct {
	scanner     engine.Scanner
	quarantiner Quarantiner
	recorder    Recorder
	log         *slog.Logger

	mu      sync.Mutex
	state   State
	current *Job
}

// New builds an orchestrator. quarantiner and recorder may be nil when
// auto-quarantine or history recording are not wired.
func New(scanner engine.Scanner, quarantiner Quarantiner, recorder Recorder, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		scanner:     scanner,
		quarantiner: quarantiner,
		recorder:    recorder,
		log:         log,
		state:       StateIdle,
	}
}

// State reports the current lifecycle state and the job it applies to.
func (o *Orchestrator) State() (State, *Job) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state, o.current
}

// Cancel flags the running job, if any.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == StateRunning && o.current != nil {
		o.current.Cancel()
	}
}

// Start launches the job on a background worker and returns its ordered
// event stream. The channel is closed after the terminal event; the caller
// must drain it. Start fails with ErrBusy while another job runs.
func (o *Orchestrator) Start(job *Job, opts Options) (<-chan Event, error) {
	o.mu.Lock()
	if o.state == StateRunning {
		o.mu.Unlock()
		return nil, ErrBusy
	}
	o.state = StateRunning
	o.current = job
	o.mu.Unlock()

	events := make(chan Event, 64)
	go o.run(job, opts, events)
	return events, nil
}

func (o *Orchestrator) run(job *Job, opts Options, events chan<- Event) {
	defer close(events)

	summary := Summary{
		JobID:        job.ID.String(),
		Label:        job.Label,
		TargetCount:  len(job.Targets),
		SkippedRoots: job.SkippedRoots,
		StartedAt:    time.Now(),
	}
	reason := ReasonCompleted
	var stats Stats

	func() {
		defer func() {
			if r := recover(); r != nil {
				o.log.Error("scan: backend panicked", "job", job.ID, "panic", r)
				reason = ReasonFailed
			}
		}()

		for i, target := range job.Targets {
			if job.stop.Load() {
				reason = ReasonCancelled
				return
			}

			result := o.scanOne(target, opts)
			stats.Add(result.Detail.Status)
			if result.Quarantine != nil {
				summary.Quarantined++
			}

			events <- Event{Kind: EventResult, Result: result}
			events <- Event{Kind: EventStats, Stats: stats}
			events <- Event{Kind: EventProgress, Progress: i + 1}
			summary.Scanned = i + 1
		}
	}()

	summary.Reason = reason
	summary.Stats = stats
	summary.FinishedAt = time.Now()

	o.mu.Lock()
	switch reason {
	case ReasonCancelled:
		o.state = StateCancelled
	case ReasonFailed:
		o.state = StateFailed
	default:
		o.state = StateCompleted
	}
	o.mu.Unlock()

	if o.recorder != nil {
		if err := o.recorder.RecordScan(summary); err != nil {
			o.log.Warn("scan: history append failed", "job", job.ID, "error", err)
		}
	}
	o.log.Info("scan finished",
		"job", job.ID, "label", job.Label, "reason", reason,
		"scanned", summary.Scanned, "threats", stats.Threats())

	events <- Event{Kind: EventDone, Summary: &summary}
}

// scanOne scans a single target and, when enabled, quarantines it before the
// caller moves to the next target. Adapter failures become Error verdicts.
func (o *Orchestrator) scanOne(target enumerate.Target, opts Options) *Result {
	result := &Result{Target: target}

	if opts.Detailed {
		detail, err := engine.ScanDetailed(o.scanner, target.Path)
		result.Detail = detail
		if err != nil {
			o.log.Warn("scan: adapter failure", "path", target.Path, "error", err)
		}
	} else {
		verdict, err := o.scanner.Scan(target.Path)
		if err != nil {
			o.log.Warn("scan: adapter failure", "path", target.Path, "error", err)
			verdict = engine.VerdictError
		}
		result.Detail = engine.Detail{Status: verdict}
		if verdict != engine.Clean {
			result.Detail.ThreatType = "unknown"
			result.Detail.ThreatName = verdict.String()
		}
	}

	if opts.AutoQuarantine && o.quarantiner != nil && result.Detail.Status.Quarantinable() {
		record, err := o.quarantiner.Quarantine(target.Path, result.Detail.ThreatName)
		if err != nil {
			result.QuarantineError = fmt.Sprintf("quarantine failed: %v", err)
			o.log.Warn("scan: auto-quarantine failed", "path", target.Path, "error", err)
		} else {
			result.Quarantine = &record
		}
	}
	return result
}
