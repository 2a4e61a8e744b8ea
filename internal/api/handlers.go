package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/ledger-sync/internal/storage"
	"github.com/ledger-sync/internal/worker"
)

const defaultMaxBodyBytes = 10 << 20

// handleImportStatement imports a raw statement document
func (s *Server) handleImportStatement(w http.ResponseWriter, r *http.Request) {
	limit := s.config.MaxBodyBytes
	if limit <= 0 {
		limit = defaultMaxBodyBytes
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, ErrCodeInvalidInput, "Statement exceeds the upload limit", map[string]interface{}{
				"limit": limit,
			})
			return
		}
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Could not read request body", nil)
		return
	}
	if len(body) == 0 {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Statement body is required", nil)
		return
	}

	result, err := s.importer.ImportRaw(r.Context(), body)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// handleListSnapshots lists the live snapshot keys of a prefix
func (s *Server) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")
	if prefix == "" {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "prefix query parameter is required", nil)
		return
	}

	keys, err := s.snapshots.ListKeys(r.Context(), prefix)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"prefix": prefix,
		"keys":   keys,
		"count":  len(keys),
	})
}

// handleLatestSnapshot returns the most recent snapshot of a prefix
func (s *Server) handleLatestSnapshot(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")
	if prefix == "" {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "prefix query parameter is required", nil)
		return
	}

	snapshot, err := s.snapshots.Latest(r.Context(), prefix)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, ErrCodeNotFound, "No snapshot for prefix", map[string]interface{}{
				"prefix": prefix,
			})
			return
		}
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, snapshot)
}

// handleJobs reports scheduled job status
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	jobs := []worker.JobStatus{}
	if s.jobs != nil {
		jobs = s.jobs.Status()
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"jobs": jobs})
}
