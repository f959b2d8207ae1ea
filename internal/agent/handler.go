package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/YisroelArnson/AI-PERSONAL-TRAINER-sub011/internal/api"
	"github.com/YisroelArnson/AI-PERSONAL-TRAINER-sub011/internal/config"
	"github.com/YisroelArnson/AI-PERSONAL-TRAINER-sub011/internal/conversation"
	"github.com/YisroelArnson/AI-PERSONAL-TRAINER-sub011/internal/identity"
	"github.com/YisroelArnson/AI-PERSONAL-TRAINER-sub011/internal/workout"
)

const (
	defaultRateLimitPerMinute = 10
	defaultRateLimitBurst     = 3
	defaultKeepaliveInterval  = 10 * time.Second
	// Limiters idle this long are evicted.
	limiterIdleTTL = 10 * time.Minute
)

// Handler exposes the conversation over HTTP. Chat turns stream session
// snapshots as SSE; /ws/agent pushes every snapshot to a WebSocket.
type Handler struct {
	conv      *conversation.Coordinator
	resetter  SessionResetter
	limiter   *RateLimiter
	watchers  *WatcherRegistry
	keepalive time.Duration
	origins   []string
	isDev     bool
	logger    *slog.Logger
}

// RateLimiter implements a per-user token bucket.
// The key is userID only, not userID:sessionID, so clients cannot bypass
// throttling by rotating session IDs.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	done     chan struct{}
	once     sync.Once
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a limiter allowing perMinute requests with the
// given burst, and starts the background eviction goroutine. A perMinute of
// zero or less disables limiting.
func NewRateLimiter(perMinute, burst int) *RateLimiter {
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(perMinute))
	}
	if burst <= 0 {
		burst = 1
	}
	rl := &RateLimiter{
		visitors: make(map[string]*visitor),
		limit:    limit,
		burst:    burst,
		done:     make(chan struct{}),
	}
	go rl.evictLoop()
	return rl
}

// Allow reports whether a request for key may proceed now.
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(r.limit, r.burst)}
		r.visitors[key] = v
	}
	v.lastSeen = time.Now()
	return v.limiter.Allow()
}

func (r *RateLimiter) evictLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-r.done:
			return
		case now := <-ticker.C:
			r.evict(now.Add(-limiterIdleTTL))
		}
	}
}

// evict drops limiters not used since cutoff.
func (r *RateLimiter) evict(cutoff time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, v := range r.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(r.visitors, key)
		}
	}
}

// Close stops the eviction goroutine.
func (r *RateLimiter) Close() {
	r.once.Do(func() { close(r.done) })
}

// NewHandler creates the agent handler. resetter may be nil when the agent
// keeps no per-session memory. A nil cfg selects defaults.
func NewHandler(conv *conversation.Coordinator, resetter SessionResetter, cfg *config.Config, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}

	perMinute, burst := defaultRateLimitPerMinute, defaultRateLimitBurst
	keepalive := defaultKeepaliveInterval
	origins := []string{"*"}
	isDev := true
	if cfg != nil {
		perMinute, burst = cfg.RateLimit.PerMinute, cfg.RateLimit.Burst
		if cfg.SSEKeepaliveInterval > 0 {
			keepalive = cfg.SSEKeepaliveInterval
		}
		origins = cfg.AllowedOrigins()
		isDev = cfg.IsDevelopment()
	}

	return &Handler{
		conv:      conv,
		resetter:  resetter,
		limiter:   NewRateLimiter(perMinute, burst),
		watchers:  NewWatcherRegistry(),
		keepalive: keepalive,
		origins:   origins,
		isDev:     isDev,
		logger:    logger,
	}
}

// Watchers returns the registry of WebSocket watchers.
func (h *Handler) Watchers() *WatcherRegistry {
	return h.watchers
}

// RegisterRoutes registers agent routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/agent", func(r chi.Router) {
		r.Post("/chat", h.HandleChat)
		r.Get("/state", h.HandleState)
		r.Post("/overlay/{action}", h.HandleOverlay)
		r.Put("/input", h.HandleInput)
		r.Post("/cancel", h.HandleCancel)
		r.Post("/reset", h.HandleReset)
		r.Post("/messages/{id}/apply", h.HandleApply)
	})
	r.Get("/ws/agent", h.HandleWatch)
}

// Close releases handler resources. The coordinator is owned by the caller.
func (h *Handler) Close() {
	h.limiter.Close()
	h.watchers.CloseAll("server shutting down")
}

// sendStatus maps Coordinator.Send errors to HTTP status codes.
func sendStatus(err error) int {
	switch {
	case errors.Is(err, conversation.ErrEmptyMessage):
		return http.StatusBadRequest
	case errors.Is(err, conversation.ErrTurnInProgress):
		return http.StatusConflict
	case errors.Is(err, conversation.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// decodeBody reports a failed decode to the client and returns false.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			api.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// HandleChat handles POST /api/agent/chat. It starts a turn and streams
// `state` events until the turn finishes, then a `done` event. Leaving early
// does not stop the turn.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	if userID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if !h.limiter.Allow(userID) {
		api.Error(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	var req ChatRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		api.Error(w, http.StatusBadRequest, "message is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		api.Error(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	if err := h.conv.Send(r.Context(), req.Message); err != nil {
		api.Error(w, sendStatus(err), err.Error())
		return
	}

	h.logger.Info("Agent chat request",
		"user_id", userID,
		"session_id", sessionID,
		"request_id", chiMiddleware.GetReqID(r.Context()),
		"message_length", len(req.Message),
	)

	// Subscribing after Send still observes the turn: the first value is
	// the current snapshot.
	updates, unsubscribe := h.conv.Subscribe()
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	keepalive := time.NewTicker(h.keepalive)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			h.logger.Info("Agent chat stream disconnected", "user_id", userID, "session_id", sessionID)
			return
		case <-keepalive.C:
			if err := writeSSE(w, "ping", `{"status":"alive"}`); err != nil {
				h.logger.Warn("failed to write SSE keepalive ping", "error", err, "user_id", userID)
				return
			}
			flusher.Flush()
		case state, ok := <-updates:
			if !ok {
				if err := writeSSE(w, "error", `{"error":"conversation closed"}`); err != nil {
					h.logger.Warn("failed to write SSE error event", "error", err)
				}
				flusher.Flush()
				return
			}
			if err := writeSSEJSON(w, "state", state); err != nil {
				h.logger.Warn("failed to write SSE state event", "error", err, "user_id", userID)
				return
			}
			if !state.IsProcessing {
				if err := writeSSEJSON(w, "done", map[string]string{"sessionId": state.SessionID}); err != nil {
					h.logger.Warn("failed to write SSE done event", "error", err)
				}
				flusher.Flush()
				return
			}
			flusher.Flush()
		}
	}
}

// HandleState handles GET /api/agent/state.
func (h *Handler) HandleState(w http.ResponseWriter, _ *http.Request) {
	api.JSON(w, http.StatusOK, h.conv.Snapshot())
}

// HandleOverlay handles POST /api/agent/overlay/{action}.
func (h *Handler) HandleOverlay(w http.ResponseWriter, r *http.Request) {
	action, err := conversation.ParseOverlayAction(chi.URLParam(r, "action"))
	if err != nil {
		api.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	state, err := h.conv.Overlay(action)
	if err != nil {
		api.Error(w, sendStatus(err), err.Error())
		return
	}
	api.JSON(w, http.StatusOK, state)
}

// HandleInput handles PUT /api/agent/input.
func (h *Handler) HandleInput(w http.ResponseWriter, r *http.Request) {
	var req InputRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.conv.SetInputText(req.Text); err != nil {
		api.Error(w, sendStatus(err), err.Error())
		return
	}
	api.JSON(w, http.StatusOK, h.conv.Snapshot())
}

// HandleCancel handles POST /api/agent/cancel.
func (h *Handler) HandleCancel(w http.ResponseWriter, _ *http.Request) {
	api.JSON(w, http.StatusOK, map[string]bool{"cancelled": h.conv.Cancel()})
}

// HandleReset handles POST /api/agent/reset. The local session is always
// discarded; an agent-side reset failure is only logged.
func (h *Handler) HandleReset(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	agentSessionID := h.conv.Snapshot().SessionID

	h.conv.Reset()

	if h.resetter != nil && agentSessionID != "" {
		if err := h.resetter.ResetSession(r.Context(), userID, agentSessionID); err != nil {
			h.logger.Warn("Agent session reset failed", "error", err, "user_id", userID, "session_id", sessionID)
		}
	}
	api.JSON(w, http.StatusOK, h.conv.Snapshot())
}

// HandleApply handles POST /api/agent/messages/{id}/apply.
func (h *Handler) HandleApply(w http.ResponseWriter, r *http.Request) {
	var req ApplyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	verb, err := workout.ParseVerb(req.Verb)
	if err != nil {
		api.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	a, err := h.conv.ApplyArtifact(r.Context(), chi.URLParam(r, "id"), verb)
	switch {
	case errors.Is(err, conversation.ErrNoArtifact):
		api.Error(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		h.logger.Error("Failed to apply workout artifact", "error", err)
		api.Error(w, http.StatusInternalServerError, "failed to apply workout")
		return
	}

	api.JSON(w, http.StatusOK, ApplyResponse{
		ArtifactID: a.ArtifactID,
		Verb:       string(verb),
		Exercises:  len(a.Exercises),
	})
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || slices.Contains(h.origins, "*") || slices.Contains(h.origins, origin) {
		return true
	}
	h.logger.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.origins)
	return false
}

func writeSSE(w io.Writer, event, data string) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

func writeSSEJSON(w io.Writer, event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event, err)
	}
	return writeSSE(w, event, string(data))
}
