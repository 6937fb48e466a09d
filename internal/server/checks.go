package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/voyagen/tvdeck/internal/cache"
	"github.com/voyagen/tvdeck/internal/service"
)

type checkAllRequest struct {
	StreamIDs []string `json:"streamIds"`
}

// handleCheckAll runs a check over every active stream, or over the
// streams listed in the body. With ?async=true the run is submitted and
// 202 is returned at once. Both forms answer 409 while a run is in progress.
func (s *Server) handleCheckAll(w http.ResponseWriter, r *http.Request) {
	var req checkAllRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err))
		return
	}
	for _, id := range req.StreamIDs {
		if _, err := uuid.Parse(id); err != nil {
			s.writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid stream id: %s", id))
			return
		}
	}

	async, err := parseBoolParam(r.URL.Query().Get("async"), "async")
	if err != nil {
		s.writeErr(w, http.StatusBadRequest, err)
		return
	}
	if async != nil && *async {
		jobID, err := s.runner.Submit(r.Context(), req.StreamIDs, service.TriggerQueue)
		if err != nil {
			if errors.Is(err, cache.ErrLocked) {
				s.writeErr(w, http.StatusConflict, fmt.Errorf("a check-all run is already in progress"))
				return
			}
			s.writeErr(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{
			"jobId":  jobID,
			"queued": true,
		})
		return
	}

	report, err := s.runner.Run(r.Context(), req.StreamIDs, service.TriggerAPI)
	if err != nil {
		if errors.Is(err, cache.ErrLocked) {
			s.writeErr(w, http.StatusConflict, fmt.Errorf("a check-all run is already in progress"))
			return
		}
		s.writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleLatestCheck(w http.ResponseWriter, r *http.Request) {
	report, err := s.runner.Latest(r.Context())
	if err != nil {
		if errors.Is(err, service.ErrNoReport) {
			s.writeErr(w, http.StatusNotFound, err)
			return
		}
		s.writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
