package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/openclaw/pairing-relay/internal/audit"
	"github.com/openclaw/pairing-relay/internal/config"
	apperrors "github.com/openclaw/pairing-relay/internal/errors"
	"github.com/openclaw/pairing-relay/internal/httputil"
	"github.com/openclaw/pairing-relay/internal/hub"
	"github.com/openclaw/pairing-relay/internal/metrics"
	"github.com/openclaw/pairing-relay/internal/model"
	"github.com/openclaw/pairing-relay/internal/origin"
	"github.com/openclaw/pairing-relay/internal/service"
	"github.com/openclaw/pairing-relay/internal/util"
)

type WSOptions struct {
	MaxMessageBytes      int64
	MaxMessagesPerSecond int
	PingInterval         time.Duration
	SendQueueSize        int
}

func (o WSOptions) withDefaults() WSOptions {
	if o.MaxMessageBytes < config.MinMessageBytes {
		o.MaxMessageBytes = config.MinMessageBytes
	}
	if o.MaxMessagesPerSecond <= 0 {
		o.MaxMessagesPerSecond = 20
	}
	if o.PingInterval <= 0 {
		o.PingInterval = config.WSPingInterval
	}
	if o.SendQueueSize <= 0 {
		o.SendQueueSize = config.WSSendQueueSize
	}
	return o
}

// WSHandler serves GET /ws?role=initiator|joiner[&code=][&displayName=].
// Each connection runs its read loop on the request goroutine and submits
// every state change to the hub.
type WSHandler struct {
	hub      *hub.Hub
	registry *service.Registry
	limiter  service.JoinLimiter
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader
	opts     WSOptions
}

func NewWSHandler(
	h *hub.Hub,
	registry *service.Registry,
	limiter service.JoinLimiter,
	m *metrics.Metrics,
	policy *origin.Policy,
	opts WSOptions,
) *WSHandler {
	return &WSHandler{
		hub:      h,
		registry: registry,
		limiter:  limiter,
		metrics:  m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if policy.Allow(r) {
					return true
				}
				audit.LogFromRequest(r, audit.Event{
					Type:    audit.EventOriginForbidden,
					Details: map[string]interface{}{"request_origin": util.SanitizeText(r.Header.Get("Origin"), 128)},
				})
				return false
			},
			Error: writeUpgradeError,
		},
		opts: opts.withDefaults(),
	}
}

// writeUpgradeError renders handshake failures in the same JSON shape as
// every other HTTP error.
func writeUpgradeError(w http.ResponseWriter, _ *http.Request, status int, reason error) {
	switch status {
	case http.StatusForbidden:
		httputil.WriteError(w, apperrors.Forbidden("Origin is not allowed"))
	case http.StatusBadRequest:
		httputil.WriteError(w, apperrors.InvalidInput("upgrade", reason.Error()))
	default:
		w.Header().Set("Sec-Websocket-Version", "13")
		http.Error(w, http.StatusText(status), status)
	}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	role := model.Role(q.Get("role"))
	if !role.Valid() {
		httputil.WriteError(w, apperrors.InvalidInput("role", "must be initiator or joiner"))
		return
	}
	code := q.Get("code")
	if role == model.RoleJoiner && code == "" {
		httputil.WriteError(w, apperrors.InvalidInput("code", "required for joiners"))
		return
	}
	displayName := util.SanitizeText(q.Get("displayName"), config.MaxDisplayNameRunes)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written the HTTP error.
		log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	p := newPeer(conn, role, h.opts.SendQueueSize, h.opts.PingInterval)
	go p.writePump()

	gauge := h.metrics.Connections.WithLabelValues(string(role))
	gauge.Inc()
	log.Debug().Str("connId", p.ID()).Str("role", string(role)).Msg("websocket connected")

	defer func() {
		gauge.Dec()
		p.Close(model.CloseNormal, "")
		h.hub.Do(func() { h.registry.Disconnect(p, model.ReasonPeerClosed) })
		<-p.done
		log.Debug().Str("connId", p.ID()).Str("role", string(role)).Msg("websocket disconnected")
	}()

	ctx := r.Context()
	var ok bool
	switch role {
	case model.RoleInitiator:
		code, ok = h.openSession(ctx, p, displayName)
	case model.RoleJoiner:
		code, ok = h.joinSession(ctx, r, p, code)
	}
	if !ok {
		return
	}

	h.readLoop(p, code)
}

func (h *WSHandler) openSession(ctx context.Context, p *wsPeer, displayName string) (string, bool) {
	var code string
	var openErr error
	err := h.hub.Call(ctx, func() {
		s, err := h.registry.Open(p, displayName)
		if err != nil {
			openErr = err
			return
		}
		code = s.Code
	})
	if err != nil {
		reportError(p, apperrors.Unavailable("Relay is shutting down").WithCause(err))
		return "", false
	}
	if openErr != nil {
		reportError(p, openErr)
		return "", false
	}
	return code, true
}

// joinSession gates the attempt on the origin's rate limit before the hub
// sees it, then asks the registry to bind the joiner.
func (h *WSHandler) joinSession(ctx context.Context, r *http.Request, p *wsPeer, code string) (string, bool) {
	ip := util.ClientIP(r)
	key := util.OriginKey(ip)

	decision := h.limiter.Check(ctx, key)
	if decision.Locked {
		h.recordLockout(key)
	}
	if !decision.Allowed {
		h.metrics.JoinAttempts.WithLabelValues(metrics.JoinRateLimited).Inc()
		audit.Log(audit.Event{
			Type:    audit.EventJoinRefused,
			ConnID:  p.ID(),
			Role:    string(model.RoleJoiner),
			Origin:  key,
			Details: map[string]interface{}{"reason": string(apperrors.ErrCodeRateLimited)},
		})
		reportError(p, apperrors.RateLimited(decision.RetryAfter))
		return "", false
	}

	meta := service.JoinerMeta(ip, r.UserAgent())
	var joined string
	var joinErr error
	err := h.hub.Call(ctx, func() {
		s, err := h.registry.AttemptJoin(code, p, meta)
		if err != nil {
			joinErr = err
			return
		}
		joined = s.Code
	})
	if err != nil {
		reportError(p, apperrors.Unavailable("Relay is shutting down").WithCause(err))
		return "", false
	}

	if joinErr != nil {
		switch apperrors.GetCode(joinErr) {
		case apperrors.ErrCodeInvalidCode, apperrors.ErrCodeExpired:
			if h.limiter.RecordFailure(ctx, key) {
				h.recordLockout(key)
			}
		}
		audit.Log(audit.Event{
			Type:    audit.EventJoinRefused,
			ConnID:  p.ID(),
			Role:    string(model.RoleJoiner),
			Origin:  key,
			Details: map[string]interface{}{"reason": string(apperrors.GetCode(joinErr))},
		})
		reportError(p, joinErr)
		return "", false
	}
	return joined, true
}

func (h *WSHandler) recordLockout(key string) {
	h.metrics.Lockouts.Inc()
	audit.Log(audit.Event{Type: audit.EventLockout, Origin: key})
}

func (h *WSHandler) readLoop(p *wsPeer, code string) {
	pongWait := 2 * h.opts.PingInterval
	p.conn.SetReadLimit(h.opts.MaxMessageBytes)
	_ = p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	limiter := rate.NewLimiter(rate.Limit(h.opts.MaxMessagesPerSecond), h.opts.MaxMessagesPerSecond)

	for {
		msgType, data, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) && !errors.Is(err, websocket.ErrReadLimit) {
				log.Debug().Err(err).Str("connId", p.ID()).Msg("websocket read ended")
			}
			return
		}
		_ = p.conn.SetReadDeadline(time.Now().Add(pongWait))

		// Checked after the read so the frame is consumed and the client
		// reliably sees the close code.
		if !limiter.Allow() {
			h.metrics.Dropped.WithLabelValues(metrics.DropFlood).Inc()
			log.Warn().Str("connId", p.ID()).Str("code", util.MaskCode(code)).Msg("message rate exceeded, closing connection")
			p.Close(model.ClosePolicyViolation, "rate limit exceeded")
			return
		}

		if msgType != websocket.TextMessage {
			h.metrics.Dropped.WithLabelValues(metrics.DropMalformed).Inc()
			reportError(p, apperrors.MalformedMessage("Expected a text message"))
			continue
		}

		kind, err := model.ParseClientMessage(data)
		if err != nil {
			h.metrics.Dropped.WithLabelValues(metrics.DropMalformed).Inc()
			reportError(p, apperrors.MalformedMessage("Message is not a recognised JSON message"))
			continue
		}

		if !h.dispatch(p, code, kind, data) {
			p.Close(model.CloseGoingAway, model.ReasonServerShutdown)
			return
		}
	}
}

// dispatch hands one client message to the hub. It reports false when the
// hub is no longer accepting work.
func (h *WSHandler) dispatch(p *wsPeer, code string, kind model.MessageType, data []byte) bool {
	switch kind {
	case model.MessageApprove:
		return h.hub.Do(func() {
			if err := h.registry.Approve(code, p); err != nil {
				reportError(p, err)
			}
		})
	case model.MessageReject:
		var req model.RejectRequest
		if err := json.Unmarshal(data, &req); err != nil {
			h.metrics.Dropped.WithLabelValues(metrics.DropMalformed).Inc()
			reportError(p, apperrors.MalformedMessage("Reject reason must be a string"))
			return true
		}
		reason := util.SanitizeText(req.Reason, config.MaxRejectReasonRunes)
		return h.hub.Do(func() {
			if err := h.registry.Reject(code, p, reason); err != nil {
				reportError(p, err)
			}
		})
	case model.MessageLeave:
		return h.hub.Do(func() { h.registry.Leave(p) })
	default:
		return h.hub.Do(func() {
			if err := h.registry.Forward(code, p, kind, data); err != nil {
				reportError(p, err)
			}
		})
	}
}
