package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hugo-lorenzo-mato/codepulse/internal/core"
)

// startAnalysisRequest is the POST /analyses body.
type startAnalysisRequest struct {
	ProjectID string               `json:"project_id"`
	Force     bool                 `json:"force"`
	Options   core.AnalysisOptions `json:"options"`
}

type cancelAnalysisRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleStartAnalysis(w http.ResponseWriter, r *http.Request) {
	var req startAnalysisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.ProjectID == "" {
		respondError(w, http.StatusBadRequest, "project_id is required")
		return
	}

	exec, err := s.service.Start(r.Context(), req.ProjectID, req.Options, req.Force)
	if err != nil {
		// A conflicting start reports the execution already in flight so
		// the caller can attach to it.
		if exec != nil && core.IsCategory(err, core.ErrCatConflict) {
			respondJSON(w, http.StatusConflict, map[string]any{
				"error":        err.Error(),
				"execution_id": exec.ID,
				"status":       exec.Status,
			})
			return
		}
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusAccepted, exec)
}

func (s *Server) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	id := core.ExecutionID(chi.URLParam(r, "executionID"))
	exec, err := s.service.Status(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, exec)
}

func (s *Server) handleCancelAnalysis(w http.ResponseWriter, r *http.Request) {
	id := core.ExecutionID(chi.URLParam(r, "executionID"))

	var req cancelAnalysisRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if req.Reason == "" {
		req.Reason = "cancelled via API"
	}

	exec, err := s.service.Cancel(r.Context(), id, req.Reason)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, exec)
}

func (s *Server) handleGetFindings(w http.ResponseWriter, r *http.Request) {
	id := core.ExecutionID(chi.URLParam(r, "executionID"))

	if _, err := s.service.Status(r.Context(), id); err != nil {
		respondDomainError(w, err)
		return
	}
	findings, err := s.executions.GetFindings(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"execution_id": id,
		"count":        len(findings),
		"findings":     findings,
	})
}

func (s *Server) handleListAnalyses(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")
	limit := queryLimit(r, 20)

	execs, err := s.service.List(r.Context(), projectID, limit)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"project_id": projectID,
		"executions": execs,
	})
}

func queryLimit(r *http.Request, fallback int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return fallback
	}
	return limit
}
