package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hugo-lorenzo-mato/codepulse/internal/core"
	"github.com/hugo-lorenzo-mato/codepulse/internal/snapshot"
)

type captureSnapshotRequest struct {
	ExecutionID string `json:"execution_id"`
}

func (s *Server) handleCaptureSnapshot(w http.ResponseWriter, r *http.Request) {
	var req captureSnapshotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.ExecutionID == "" {
		respondError(w, http.StatusBadRequest, "execution_id is required")
		return
	}

	meta, err := s.service.CaptureSnapshot(r.Context(), core.ExecutionID(req.ExecutionID))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, meta)
}

func (s *Server) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")
	limit := queryLimit(r, 20)

	metas, err := s.snapshots.List(r.Context(), projectID, limit)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"project_id": projectID,
		"snapshots":  metas,
	})
}

func (s *Server) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "snapshotID")
	snap, err := s.snapshots.Load(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

func (s *Server) handleCompareSnapshots(w http.ResponseWriter, r *http.Request) {
	base := r.URL.Query().Get("base")
	target := r.URL.Query().Get("target")
	if base == "" || target == "" {
		respondError(w, http.StatusBadRequest, "base and target query parameters are required")
		return
	}

	result, err := snapshot.Compare(r.Context(), s.snapshots, base, target)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleVerifySnapshot(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "snapshotID")
	ok, err := s.snapshots.Verify(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"snapshot_id": id,
		"valid":       ok,
	})
}
