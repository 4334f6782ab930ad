package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sloppy/infrared/internal/enumerate"
	"github.com/sloppy/infrared/internal/export"
	"github.com/sloppy/infrared/internal/scan"
)

type scanRequest struct {
	Mode           string   `json:"mode"`
	Paths          []string `json:"paths,omitempty"`
	Recursive      bool     `json:"recursive"`
	Detailed       bool     `json:"detailed"`
	AutoQuarantine bool     `json:"auto_quarantine"`
}

type scanStarted struct {
	JobID        string `json:"job_id"`
	Label        string `json:"label"`
	Targets      int    `json:"targets"`
	SkippedRoots int    `json:"skipped_roots"`
}

type scanSnapshot struct {
	JobID    string        `json:"job_id"`
	Label    string        `json:"label"`
	Progress int           `json:"progress"`
	Targets  int           `json:"targets"`
	Stats    scan.Stats    `json:"stats"`
	Summary  *scan.Summary `json:"summary,omitempty"`
}

func (s *Server) handleScanStart(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.badRequest(w, fmt.Errorf("decode request: %w", err))
		return
	}

	category, err := enumerate.ParseCategory(req.Mode)
	if err != nil {
		s.badRequest(w, err)
		return
	}

	targets, skipped, err := enumerate.Plan(category, req.Paths, req.Recursive, s.Exclude)
	if err != nil {
		if errors.Is(err, enumerate.ErrNoRoots) || errors.Is(err, enumerate.ErrPathsRequired) {
			s.badRequest(w, err)
			return
		}
		s.serverError(w, err)
		return
	}

	job := scan.NewJob(string(category), targets, skipped)
	events, err := s.Orchestrator.Start(job, scan.Options{
		Detailed:       req.Detailed,
		AutoQuarantine: req.AutoQuarantine,
	})
	if err != nil {
		if errors.Is(err, scan.ErrBusy) {
			s.errorResponse(w, err, http.StatusConflict)
			return
		}
		s.serverError(w, err)
		return
	}

	state := &jobState{job: job}
	s.mu.Lock()
	s.jobs[job.ID.String()] = state
	s.mu.Unlock()
	go s.drain(state, events)

	s.Log.Info("scan started", "job", job.ID, "mode", category, "targets", len(targets))
	s.jsonResponse(w, scanStarted{
		JobID:        job.ID.String(),
		Label:        job.Label,
		Targets:      len(targets),
		SkippedRoots: skipped,
	}, http.StatusCreated)
}

func (s *Server) handleScanGet(w http.ResponseWriter, r *http.Request) {
	state, ok := s.lookupJob(chi.URLParam(r, "id"))
	if !ok {
		s.errorResponse(w, fmt.Errorf("job not found"), http.StatusNotFound)
		return
	}

	state.mu.Lock()
	snapshot := scanSnapshot{
		JobID:    state.job.ID.String(),
		Label:    state.job.Label,
		Progress: state.progress,
		Targets:  len(state.job.Targets),
		Stats:    state.stats,
		Summary:  state.summary,
	}
	state.mu.Unlock()

	s.jsonResponse(w, snapshot, http.StatusOK)
}

func (s *Server) handleScanCancel(w http.ResponseWriter, r *http.Request) {
	state, ok := s.lookupJob(chi.URLParam(r, "id"))
	if !ok {
		s.errorResponse(w, fmt.Errorf("job not found"), http.StatusNotFound)
		return
	}
	state.job.Cancel()
	s.jsonResponse(w, map[string]string{"status": "cancelling"}, http.StatusAccepted)
}

func (s *Server) handleScanResults(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	format := r.URL.Query().Get("format")

	var report export.Report
	if state, ok := s.lookupJob(id); ok {
		state.mu.Lock()
		report.Results = append(report.Results, state.results...)
		if state.summary != nil {
			report.Summary = *state.summary
		} else {
			report.Summary = scan.Summary{
				JobID:   state.job.ID.String(),
				Label:   state.job.Label,
				Stats:   state.stats,
				Scanned: state.progress,
			}
		}
		state.mu.Unlock()
	} else {
		// Jobs from before a restart live only in the archive.
		rows, err := s.DB.ListResults(id)
		if err != nil {
			s.serverError(w, err)
			return
		}
		if len(rows) == 0 {
			s.errorResponse(w, fmt.Errorf("job not found"), http.StatusNotFound)
			return
		}
		report = export.FromRows(id, "archived", rows)
	}

	switch format {
	case "csv":
		w.Header().Set("Content-Type", "text/csv")
	case "", "json":
		format = "json"
		w.Header().Set("Content-Type", "application/json")
	case "text":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	default:
		s.badRequest(w, fmt.Errorf("unknown export format %q", format))
		return
	}
	if err := export.Write(format, report, w); err != nil {
		s.Log.Warn("web: export failed", "job", id, "error", err)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	state, job := s.Orchestrator.State()
	payload := map[string]interface{}{"state": state.String()}
	if job != nil {
		payload["job_id"] = job.ID.String()
		payload["label"] = job.Label
	}
	s.jsonResponse(w, payload, http.StatusOK)
}
