package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/steadyhq/steady/internal/store"
)

// enqueueRequest is the wire form of an enqueue call. Durations travel as
// strings ("30s", "5m") the way the rest of the API formats them.
type enqueueRequest struct {
	Name       string          `json:"name"`
	Payload    json.RawMessage `json:"payload"`
	Priority   int             `json:"priority,omitempty"`
	RetryLimit *int            `json:"retry_limit,omitempty"`
	RetryDelay string          `json:"retry_delay,omitempty"`
	UseBackoff bool            `json:"retry_backoff,omitempty"`
	StartAfter *time.Time      `json:"start_after,omitempty"`
	KeepFor    string          `json:"keep_for,omitempty"`
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON", "PARSE_ERROR")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required", "VALIDATION_ERROR")
		return
	}

	storeReq := store.EnqueueRequest{
		Name:       req.Name,
		Payload:    req.Payload,
		Priority:   req.Priority,
		RetryLimit: req.RetryLimit,
		UseBackoff: req.UseBackoff,
		StartAfter: req.StartAfter,
	}
	if req.RetryDelay != "" {
		d, err := time.ParseDuration(req.RetryDelay)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid retry_delay", "VALIDATION_ERROR")
			return
		}
		storeReq.RetryDelay = &d
	}
	if req.KeepFor != "" {
		d, err := time.ParseDuration(req.KeepFor)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid keep_for", "VALIDATION_ERROR")
			return
		}
		storeReq.KeepFor = &d
	}

	jobID, err := s.store.Enqueue(r.Context(), storeReq)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"job_id": jobID,
		"state":  store.StateCreated,
	})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	job, err := s.store.GetJob(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.store.Cancel(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"job_id": id,
		"state":  store.StateCancelled,
	})
}

func (s *Server) handleListQueues(w http.ResponseWriter, r *http.Request) {
	counts, err := s.store.CountsByName(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if counts == nil {
		counts = []store.QueueCounts{}
	}
	writeJSON(w, http.StatusOK, counts)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "database unreachable", "STORE_UNAVAILABLE")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeStoreError maps store errors onto HTTP statuses. Store outages are
// surfaced to the caller, never swallowed.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrJobNotFound):
		writeError(w, http.StatusNotFound, "job not found", "NOT_FOUND")
	case errors.Is(err, store.ErrInvalidState):
		writeError(w, http.StatusConflict, err.Error(), "INVALID_STATE")
	case store.IsUnavailable(err):
		writeError(w, http.StatusServiceUnavailable, err.Error(), "STORE_UNAVAILABLE")
	default:
		writeError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
	}
}
