package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/sloppy/infrared/internal/engine"
)

type signatureRequest struct {
	Name     string `json:"name"`
	Pattern  string `json:"pattern"`
	Severity int    `json:"severity"`
}

type hashRequest struct {
	Hash       string `json:"hash"`
	ThreatName string `json:"threat_name"`
	Severity   int    `json:"severity"`
	SHA256     bool   `json:"sha256"`
}

func (s *Server) handleSignatureAdd(w http.ResponseWriter, r *http.Request) {
	var req signatureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.badRequest(w, fmt.Errorf("decode request: %w", err))
		return
	}

	id, err := engine.RegisterSignature(s.Engine, req.Name, req.Pattern, req.Severity)
	if err != nil {
		s.registerError(w, err)
		return
	}
	s.jsonResponse(w, map[string]int{"id": id}, http.StatusCreated)
}

func (s *Server) handleHashAdd(w http.ResponseWriter, r *http.Request) {
	var req hashRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.badRequest(w, fmt.Errorf("decode request: %w", err))
		return
	}

	id, err := engine.RegisterHash(s.Engine, req.Hash, req.ThreatName, req.Severity, req.SHA256)
	if err != nil {
		s.registerError(w, err)
		return
	}
	s.jsonResponse(w, map[string]int{"id": id}, http.StatusCreated)
}

// registerError maps engine registration failures onto status codes:
// invalid input is the caller's fault, a backend without the capability is
// not implemented here.
func (s *Server) registerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrInvalidInput):
		s.badRequest(w, err)
	case errors.Is(err, engine.ErrUnsupported):
		s.errorResponse(w, err, http.StatusNotImplemented)
	default:
		s.serverError(w, err)
	}
}
