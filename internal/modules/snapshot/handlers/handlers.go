// Package handlers provides HTTP handlers for portfolio snapshot operations.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/dchernov/ibfolio/internal/clients/ibgateway"
	"github.com/dchernov/ibfolio/internal/modules/snapshot"
)

// Handler handles snapshot HTTP requests
type Handler struct {
	service *snapshot.Service
	log     zerolog.Logger
}

// NewHandler creates a new snapshot handler
func NewHandler(service *snapshot.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "snapshot").Logger(),
	}
}

// HandleBuild handles POST /api/snapshots - runs one snapshot computation
// against the live gateway and persists the result
func (h *Handler) HandleBuild(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.Build(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Snapshot build failed")
		h.writeUpstreamError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, snap)
}

// HandleList handles GET /api/snapshots
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	snapshots, err := h.service.List()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list snapshots")
		http.Error(w, "Failed to list snapshots", http.StatusInternalServerError)
		return
	}
	if snapshots == nil {
		snapshots = []snapshot.Snapshot{}
	}

	h.writeJSON(w, http.StatusOK, snapshots)
}

// HandleGet handles GET /api/snapshots/{id}
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.snapshotID(w, r)
	if !ok {
		return
	}

	snap, err := h.service.Get(id)
	if errors.Is(err, snapshot.ErrNotFound) {
		http.Error(w, "Snapshot not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.log.Error().Err(err).Int64("id", id).Msg("Failed to get snapshot")
		http.Error(w, "Failed to get snapshot", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, snap)
}

// HandleDelete handles DELETE /api/snapshots/{id}
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.snapshotID(w, r)
	if !ok {
		return
	}

	err := h.service.Delete(id)
	if errors.Is(err, snapshot.ErrNotFound) {
		http.Error(w, "Snapshot not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.log.Error().Err(err).Int64("id", id).Msg("Failed to delete snapshot")
		http.Error(w, "Failed to delete snapshot", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
}

// snapshotID parses the id path parameter
func (h *Handler) snapshotID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid snapshot id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// writeUpstreamError maps pipeline failures to response codes
func (h *Handler) writeUpstreamError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ibgateway.ErrUnavailable):
		http.Error(w, "Upstream gateway unavailable", http.StatusServiceUnavailable)
	case errors.Is(err, ibgateway.ErrMalformedPayload), errors.Is(err, ibgateway.ErrRequestFailed):
		http.Error(w, "Upstream gateway error", http.StatusBadGateway)
	default:
		http.Error(w, "Snapshot build failed", http.StatusInternalServerError)
	}
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}
