package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"runtime"
	"time"

	"portfolio-analytics/analytics"
	"portfolio-analytics/cache"
	"portfolio-analytics/config"
	"portfolio-analytics/model"
	"portfolio-analytics/store"
	"portfolio-analytics/utils"

	"github.com/rs/zerolog/log"
)

var (
	ErrInvalidPayload = errors.New("invalid JSON payload")
	ErrMissingFields  = errors.New("missing required fields")
	ErrBodyTimeout    = errors.New("request body read timed out")
)

// ClickHandler ingests externally delivered click events.
type ClickHandler struct {
	store store.DocumentStore
	cache *cache.Bounded
	cfg   config.Config
}

// NewClickHandler creates a new click ingestion handler
func NewClickHandler(st store.DocumentStore, userCache *cache.Bounded, cfg config.Config) *ClickHandler {
	return &ClickHandler{
		store: st,
		cache: userCache,
		cfg:   cfg,
	}
}

// TrackExternal handles POST /track-external. It validates the payload,
// resolves the user (cache first), records the click and acknowledges
// with {"success":true}. Preflight requests are answered before any
// business logic runs.
func (h *ClickHandler) TrackExternal(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodPost {
		SendJSONError(w, http.StatusMethodNotAllowed,
			errors.New("method not allowed"), "Only POST is accepted")
		return
	}

	body, err := h.readBody(r)
	if err != nil {
		if errors.Is(err, ErrBodyTimeout) {
			SendJSONError(w, http.StatusRequestTimeout, ErrBodyTimeout,
				"Client took too long to send the request body")
			return
		}
		SendJSONError(w, http.StatusBadRequest, ErrInvalidPayload, "Unable to read request body")
		return
	}

	var payload model.ClickPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		log.Warn().Err(err).Msg("Malformed click payload")
		SendJSONError(w, http.StatusBadRequest, ErrInvalidPayload, "Request body is not valid JSON")
		return
	}

	if payload.UserID == "" || payload.URL == "" || payload.Title == "" {
		SendJSONError(w, http.StatusBadRequest, ErrMissingFields, "userId, url and title are required")
		return
	}

	timeout := time.Duration(h.cfg.Redis.OperationTimeout) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	user, err := h.lookupUser(ctx, payload.UserID)
	if err != nil {
		h.sendStoreError(w, err, payload.UserID, start)
		return
	}

	rec, err := analytics.RecordLinkClick(ctx, h.store, user, payload.URL, payload.Title, time.Now().UTC())
	if err != nil {
		h.sendStoreError(w, err, payload.UserID, start)
		return
	}

	// Write-through: keep the cached document consistent with what was
	// just persisted, so a follow-up click sees the updated count.
	updated := user.Clone()
	if updated.Interactions == nil {
		updated.Interactions = make(map[string]*model.LinkClick)
	}
	recCopy := *rec
	updated.Interactions[utils.Fingerprint(payload.URL)] = &recCopy
	h.cache.Set(payload.UserID, updated)

	log.Info().
		Str("user_id", payload.UserID).
		Str("url", payload.URL).
		Int64("click_count", rec.Count).
		Dur("elapsed", time.Since(start)).
		Msg("Click recorded")

	SendJSONSuccess(w, http.StatusOK, TrackResponse{Success: true})
}

// readBody reads the request body under a size cap and a deadline. A
// client that opens the connection but trickles the body must not pin a
// handler goroutine past the configured window.
func (h *ClickHandler) readBody(r *http.Request) ([]byte, error) {
	maxBytes := h.cfg.WebServer.MaxBodyBytes
	if maxBytes <= 0 {
		maxBytes = 16 * 1024
	}
	reader := http.MaxBytesReader(nil, r.Body, maxBytes)

	timeout := time.Duration(h.cfg.WebServer.BodyReadTimeout) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	type result struct {
		data []byte
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		data, err := io.ReadAll(reader)
		ch <- result{data, err}
	}()

	select {
	case res := <-ch:
		return res.data, res.err
	case <-time.After(timeout):
		return nil, ErrBodyTimeout
	}
}

// lookupUser resolves the user document, consulting the cache first.
// Only a document that actually exists is cached; misses always go to
// the store so a user created moments ago is found.
func (h *ClickHandler) lookupUser(ctx context.Context, userID string) (*model.User, error) {
	if cached, found := h.cache.Get(userID); found {
		if user, ok := cached.(*model.User); ok {
			return user, nil
		}
	}

	user, err := h.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	h.cache.Set(userID, user)
	return user, nil
}

// sendStoreError maps a persistence failure onto the right status code
// and attaches enough diagnostics to investigate a 500 from logs alone.
func (h *ClickHandler) sendStoreError(w http.ResponseWriter, err error, userID string, start time.Time) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		log.Warn().Str("user_id", userID).Msg("Click for unknown user")
		SendJSONError(w, http.StatusNotFound,
			errors.New("user not found"), "No analytics profile exists for this user")
	case store.IsUnavailable(err):
		log.Error().Err(err).Str("user_id", userID).Msg("Document store unavailable")
		SendJSONError(w, http.StatusServiceUnavailable,
			errors.New("service unavailable"), "Analytics backend is temporarily unreachable")
	default:
		var mem runtime.MemStats
		runtime.ReadMemStats(&mem)
		log.Error().
			Err(err).
			Str("user_id", userID).
			Dur("elapsed", time.Since(start)).
			Uint64("heap_alloc", mem.HeapAlloc).
			Int("goroutines", runtime.NumGoroutine()).
			Msg("Failed to record click")
		SendJSONError(w, http.StatusInternalServerError,
			errors.New("internal server error"), "Failed to record click")
	}
}
