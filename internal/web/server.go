// Package web exposes the scanner, quarantine store, and history log over a
// JSON HTTP API.
package web

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/sloppy/infrared/internal/db"
	"github.com/sloppy/infrared/internal/engine"
	"github.com/sloppy/infrared/internal/pathrule"
	"github.com/sloppy/infrared/internal/quarantine"
	"github.com/sloppy/infrared/internal/scan"
)

// Server wires the API handlers and dependencies.
type Server struct {
	DB           *db.DB
	Orchestrator *scan.Orchestrator
	Quarantine   *quarantine.Manager
	Engine       engine.Scanner
	Exclude      *pathrule.Matcher
	Log          *slog.Logger
	Router       chi.Router

	mu   sync.Mutex
	jobs map[string]*jobState
}

// jobState is the server-side view of one job, updated by the drain
// goroutine as events arrive.
type jobState struct {
	mu       sync.Mutex
	job      *scan.Job
	results  []scan.Result
	stats    scan.Stats
	progress int
	summary  *scan.Summary
}

// NewServer constructs the router and registers routes.
func NewServer(database *db.DB, orchestrator *scan.Orchestrator, store *quarantine.Manager, backend engine.Scanner, exclude *pathrule.Matcher, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	server := &Server{
		DB:           database,
		Orchestrator: orchestrator,
		Quarantine:   store,
		Engine:       backend,
		Exclude:      exclude,
		Log:          log,
		jobs:         make(map[string]*jobState),
	}

	r := chi.NewRouter()
	r.Get("/api/status", server.handleStatus)
	r.Post("/api/scans", server.handleScanStart)
	r.Get("/api/scans/{id}", server.handleScanGet)
	r.Post("/api/scans/{id}/cancel", server.handleScanCancel)
	r.Get("/api/scans/{id}/results", server.handleScanResults)
	r.Get("/api/quarantine", server.handleQuarantineList)
	r.Post("/api/quarantine/{file}/restore", server.handleQuarantineRestore)
	r.Delete("/api/quarantine/{file}", server.handleQuarantineDelete)
	r.Post("/api/quarantine/clear", server.handleQuarantineClear)
	r.Get("/api/history", server.handleHistoryList)
	r.Delete("/api/history", server.handleHistoryClear)
	r.Post("/api/engine/signatures", server.handleSignatureAdd)
	r.Post("/api/engine/hashes", server.handleHashAdd)

	server.Router = r
	return server
}

// Handler exposes the configured router.
func (s *Server) Handler() http.Handler {
	return s.Router
}

func (s *Server) lookupJob(id string) (*jobState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.jobs[id]
	return state, ok
}

// drain consumes a job's event stream, keeps the server-side snapshot
// current, and archives the results once the stream closes.
func (s *Server) drain(state *jobState, events <-chan scan.Event) {
	for ev := range events {
		state.mu.Lock()
		switch ev.Kind {
		case scan.EventResult:
			state.results = append(state.results, *ev.Result)
		case scan.EventStats:
			state.stats = ev.Stats
		case scan.EventProgress:
			state.progress = ev.Progress
		case scan.EventDone:
			state.summary = ev.Summary
		}
		state.mu.Unlock()
	}

	state.mu.Lock()
	rows := make([]db.ResultRow, 0, len(state.results))
	jobID := state.job.ID.String()
	for _, result := range state.results {
		rows = append(rows, db.ResultRow{
			JobID:       jobID,
			Path:        result.Target.Path,
			Verdict:     int(result.Detail.Status),
			ThreatName:  result.Detail.ThreatName,
			MD5:         result.Detail.MD5,
			SHA256:      result.Detail.SHA256,
			FileSize:    result.Detail.FileSize,
			Quarantined: result.Quarantine != nil,
		})
	}
	state.mu.Unlock()

	if s.DB != nil {
		if err := s.DB.InsertResults(jobID, rows); err != nil {
			s.Log.Warn("web: result archive failed", "job", jobID, "error", err)
		}
	}
}
