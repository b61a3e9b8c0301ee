package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"portfolio-analytics/cache"
	"portfolio-analytics/store"

	"github.com/rs/zerolog/log"
)

// HealthResponse reports service and backend status.
type HealthResponse struct {
	Status string `json:"status"`
	Store  string `json:"store"`
}

// HealthHandler answers liveness probes with a store round-trip.
type HealthHandler struct {
	store store.DocumentStore
	cache *cache.Bounded
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(st store.DocumentStore, userCache *cache.Bounded) *HealthHandler {
	return &HealthHandler{store: st, cache: userCache}
}

// Check handles GET /health.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		log.Error().Err(err).Msg("Health check failed")
		SendJSONError(w, http.StatusServiceUnavailable,
			errors.New("unhealthy"), "Document store is unreachable")
		return
	}

	SendJSONSuccess(w, http.StatusOK, HealthResponse{Status: "healthy", Store: "connected"})
}

// CacheMetrics handles GET /cache/metrics, exposing hit/miss/eviction
// counters for the user-document cache.
func (h *HealthHandler) CacheMetrics(w http.ResponseWriter, r *http.Request) {
	SendJSONSuccess(w, http.StatusOK, h.cache.GetMetricsSnapshot())
}
