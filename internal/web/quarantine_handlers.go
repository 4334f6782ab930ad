package web

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sloppy/infrared/internal/quarantine"
)

func (s *Server) handleQuarantineList(w http.ResponseWriter, r *http.Request) {
	records, err := s.Quarantine.List()
	if err != nil {
		s.serverError(w, err)
		return
	}
	if records == nil {
		// keep [] over null in the response
		records = []quarantine.Record{}
	}
	s.jsonResponse(w, records, http.StatusOK)
}

func (s *Server) handleQuarantineRestore(w http.ResponseWriter, r *http.Request) {
	file := chi.URLParam(r, "file")
	record, ok := s.Quarantine.Find(file)
	if !ok {
		s.errorResponse(w, fmt.Errorf("quarantine entry not found"), http.StatusNotFound)
		return
	}
	if err := s.Quarantine.Restore(record); err != nil {
		s.serverError(w, err)
		return
	}
	s.Log.Info("quarantine restored", "file", file, "to", record.OriginalPath)
	s.jsonResponse(w, record, http.StatusOK)
}

func (s *Server) handleQuarantineDelete(w http.ResponseWriter, r *http.Request) {
	file := chi.URLParam(r, "file")
	record, ok := s.Quarantine.Find(file)
	if !ok {
		s.errorResponse(w, fmt.Errorf("quarantine entry not found"), http.StatusNotFound)
		return
	}
	if err := s.Quarantine.Delete(record); err != nil {
		s.serverError(w, err)
		return
	}
	s.jsonResponse(w, map[string]string{"deleted": file}, http.StatusOK)
}

func (s *Server) handleQuarantineClear(w http.ResponseWriter, r *http.Request) {
	failed, err := s.Quarantine.ClearAll()
	if err != nil {
		s.serverError(w, err)
		return
	}
	s.jsonResponse(w, map[string]int{"failed": failed}, http.StatusOK)
}
