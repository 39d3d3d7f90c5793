package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/pairing-relay/internal/config"
	apperrors "github.com/openclaw/pairing-relay/internal/errors"
	"github.com/openclaw/pairing-relay/internal/httputil"
	"github.com/openclaw/pairing-relay/internal/hub"
	"github.com/openclaw/pairing-relay/internal/service"
)

// Checker reports the health of an optional backend.
type Checker interface {
	Check(ctx context.Context) error
}

type HealthHandler struct {
	hub      *hub.Hub
	registry *service.Registry
	backend  Checker
}

// NewHealthHandler builds the /health handler. backend may be nil when the
// relay runs without Redis.
func NewHealthHandler(h *hub.Hub, registry *service.Registry, backend Checker) *HealthHandler {
	return &HealthHandler{hub: h, registry: registry, backend: backend}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), config.RedisPingTimeout)
	defer cancel()

	var sessions int
	if err := h.hub.Call(ctx, func() { sessions = h.registry.Len() }); err != nil {
		log.Warn().Err(err).Msg("health check: hub not responding")
		httputil.WriteError(w, apperrors.Unavailable("Event loop is not responding"))
		return
	}

	if h.backend != nil {
		if err := h.backend.Check(ctx); err != nil {
			log.Warn().Err(err).Msg("health check: redis unreachable")
			httputil.WriteError(w, apperrors.Unavailable("Rate limit backend is unreachable"))
			return
		}
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"sessions":  sessions,
		"timestamp": time.Now().UnixMilli(),
	})
}
