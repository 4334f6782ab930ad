package web

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/sloppy/infrared/internal/db"
)

type historyResponse struct {
	Entries []historyEntry `json:"entries"`
	Total   int            `json:"total"`
}

type historyEntry struct {
	ID         int64  `json:"id"`
	StartedAt  string `json:"started_at"`
	ScanType   string `json:"scan_type"`
	TotalFiles int    `json:"total_files"`
	Threats    int    `json:"threats"`
	Status     string `json:"status"`
}

func (s *Server) handleHistoryList(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.badRequest(w, fmt.Errorf("invalid limit %q", raw))
			return
		}
		limit = n
	}

	entries, err := s.DB.RecentHistory(limit)
	if err != nil {
		s.serverError(w, err)
		return
	}
	total, err := s.DB.CountHistory()
	if err != nil {
		s.serverError(w, err)
		return
	}

	resp := historyResponse{Entries: make([]historyEntry, 0, len(entries)), Total: total}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, toHistoryEntry(e))
	}
	s.jsonResponse(w, resp, http.StatusOK)
}

func (s *Server) handleHistoryClear(w http.ResponseWriter, r *http.Request) {
	if err := s.DB.ClearHistory(); err != nil {
		s.serverError(w, err)
		return
	}
	s.jsonResponse(w, map[string]string{"status": "cleared"}, http.StatusOK)
}

func toHistoryEntry(e db.HistoryEntry) historyEntry {
	return historyEntry{
		ID:         e.ID,
		StartedAt:  e.StartedAt.UTC().Format("2006-01-02 15:04:05"),
		ScanType:   e.ScanType,
		TotalFiles: e.TotalFiles,
		Threats:    e.Threats,
		Status:     e.Status,
	}
}
