package service

import (
	"encoding/json"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/pairing-relay/internal/audit"
	apperrors "github.com/openclaw/pairing-relay/internal/errors"
	"github.com/openclaw/pairing-relay/internal/metrics"
	"github.com/openclaw/pairing-relay/internal/model"
	"github.com/openclaw/pairing-relay/internal/util"
)

// Registry is the authoritative table of pairing sessions and drives their
// handshake. It is not safe for concurrent use: every method must run on the
// hub's event loop.
type Registry struct {
	sessions map[string]*model.PairingSession
	// byConn maps a bound connection ID to its session code.
	byConn  map[string]string
	codes   *CodeGenerator
	ttl     time.Duration
	clock   clock.Clock
	metrics *metrics.Metrics
}

func NewRegistry(codes *CodeGenerator, ttl time.Duration, clk clock.Clock, m *metrics.Metrics) *Registry {
	return &Registry{
		sessions: make(map[string]*model.PairingSession),
		byConn:   make(map[string]string),
		codes:    codes,
		ttl:      ttl,
		clock:    clk,
		metrics:  m,
	}
}

// Open mints a code for initiator, stores a session awaiting a joiner and
// sends code-issued.
func (r *Registry) Open(initiator model.Conn, displayName string) (*model.PairingSession, error) {
	if _, bound := r.byConn[initiator.ID()]; bound {
		return nil, apperrors.InvalidInput("connection", "already bound to a session")
	}

	code, err := r.codes.Generate(func(c string) bool {
		_, taken := r.sessions[c]
		return taken
	})
	if err != nil {
		return nil, apperrors.Internal("Could not issue a pairing code").WithCause(err)
	}

	now := r.clock.Now()
	s := &model.PairingSession{
		Code:        code,
		DisplayName: displayName,
		State:       model.SessionStateAwaitingJoiner,
		Initiator:   initiator,
		CreatedAt:   now,
		ExpiresAt:   now.Add(r.ttl),
	}
	r.sessions[code] = s
	r.byConn[initiator.ID()] = code
	r.metrics.SessionsOpened.Inc()
	r.metrics.SessionsActive.Set(float64(len(r.sessions)))

	r.send(initiator, model.CodeIssuedMessage{
		Type:             model.MessageCodeIssued,
		Code:             code,
		ExpiresInSeconds: int(s.ExpiresIn(now) / time.Second),
	})

	audit.Log(audit.Event{
		Type:   audit.EventCodeIssued,
		Code:   code,
		ConnID: initiator.ID(),
		Role:   string(model.RoleInitiator),
	})
	return s, nil
}

// AttemptJoin binds joiner to the session for code and asks the initiator for
// approval. An expired session is torn down as part of the refusal.
func (r *Registry) AttemptJoin(code string, joiner model.Conn, meta model.JoinerMetadata) (*model.PairingSession, error) {
	code, err := NormalizeCode(code)
	if err != nil {
		r.metrics.JoinAttempts.WithLabelValues(metrics.JoinInvalid).Inc()
		return nil, err
	}
	if _, bound := r.byConn[joiner.ID()]; bound {
		return nil, apperrors.InvalidInput("connection", "already bound to a session")
	}

	s, ok := r.sessions[code]
	if !ok {
		r.metrics.JoinAttempts.WithLabelValues(metrics.JoinInvalid).Inc()
		return nil, apperrors.InvalidCode()
	}

	now := r.clock.Now()
	if s.IsExpired(now) {
		r.metrics.JoinAttempts.WithLabelValues(metrics.JoinExpired).Inc()
		r.metrics.SessionsExpired.Inc()
		r.teardown(s, model.ReasonCodeExpired, model.CloseNormal, nil)
		return nil, apperrors.Expired()
	}

	if s.State != model.SessionStateAwaitingJoiner {
		if s.State == model.SessionStateAwaitingApproval && !s.HasLiveJoiner() {
			// The previous joiner vanished without its close reaching us yet.
			r.unbindJoiner(s)
		} else {
			r.metrics.JoinAttempts.WithLabelValues(metrics.JoinInUse).Inc()
			return nil, apperrors.AlreadyJoining()
		}
	}

	meta.Version = model.JoinerMetadataVersion
	meta.RequestedAt = now
	s.Joiner = joiner
	s.JoinerMetadata = &meta
	s.State = model.SessionStateAwaitingApproval
	r.byConn[joiner.ID()] = code
	r.metrics.JoinAttempts.WithLabelValues(metrics.JoinAccepted).Inc()

	r.send(s.Initiator, model.ApprovalRequestedMessage{
		Type:           model.MessageApprovalRequested,
		JoinerMetadata: meta,
	})
	r.send(joiner, model.WaitingForApprovalMessage{
		Type:        model.MessageWaitingForApproval,
		DisplayName: s.DisplayName,
	})

	audit.Log(audit.Event{
		Type:   audit.EventJoinAttempt,
		Code:   code,
		ConnID: joiner.ID(),
		Role:   string(model.RoleJoiner),
		Origin: meta.Origin,
		Details: map[string]interface{}{
			"device_class": meta.DeviceClass,
		},
	})
	return s, nil
}

// Approve pairs the waiting joiner. Only the session's initiator may approve.
func (r *Registry) Approve(code string, from model.Conn) error {
	s, err := r.pendingDecision(code, from)
	if err != nil {
		return err
	}

	s.Approved = true
	s.State = model.SessionStatePaired
	r.metrics.Decisions.WithLabelValues("approve").Inc()

	r.send(s.Joiner, model.ApprovedMessage{
		Type:        model.MessageApproved,
		DisplayName: s.DisplayName,
	})

	audit.Log(audit.Event{
		Type:   audit.EventApproved,
		Code:   s.Code,
		ConnID: from.ID(),
		Role:   string(model.RoleInitiator),
	})
	return nil
}

// Reject refuses the waiting joiner and puts the code back on offer. The
// joiner's connection is closed; the initiator keeps its code.
func (r *Registry) Reject(code string, from model.Conn, reason string) error {
	s, err := r.pendingDecision(code, from)
	if err != nil {
		return err
	}

	if reason == "" {
		reason = model.ReasonRejected
	}
	joiner := s.Joiner
	r.unbindJoiner(s)
	r.metrics.Decisions.WithLabelValues("reject").Inc()

	r.send(joiner, model.RejectedMessage{Type: model.MessageRejected, Reason: reason})
	joiner.Close(model.CloseNormal, model.ReasonRejected)

	audit.Log(audit.Event{
		Type:   audit.EventRejected,
		Code:   s.Code,
		ConnID: joiner.ID(),
		Role:   string(model.RoleJoiner),
	})
	return nil
}

func (r *Registry) pendingDecision(code string, from model.Conn) (*model.PairingSession, error) {
	s, ok := r.Lookup(code)
	if !ok {
		return nil, apperrors.NotApproved("Session has ended")
	}
	role, ok := s.RoleOf(from)
	if !ok || role != model.RoleInitiator {
		return nil, apperrors.NotApproved("Only the initiator can decide on a joiner")
	}
	if s.State != model.SessionStateAwaitingApproval || !s.HasLiveJoiner() {
		return nil, apperrors.NotApproved("No joiner is waiting for approval")
	}
	return s, nil
}

// Leave handles an explicit leave message and then closes the sender.
func (r *Registry) Leave(from model.Conn) {
	r.Disconnect(from, model.ReasonPeerLeft)
	from.Close(model.CloseNormal, model.ReasonPeerLeft)
}

// Disconnect unbinds a connection that went away. The initiator leaving, or
// either leg of a paired session leaving, ends the session; a joiner leaving
// before approval only frees the code for another attempt.
func (r *Registry) Disconnect(c model.Conn, reason string) {
	code, ok := r.byConn[c.ID()]
	if !ok {
		return
	}
	s, ok := r.sessions[code]
	if !ok {
		delete(r.byConn, c.ID())
		return
	}
	role, ok := s.RoleOf(c)
	if !ok {
		delete(r.byConn, c.ID())
		return
	}

	if role == model.RoleJoiner && s.State == model.SessionStateAwaitingApproval {
		r.unbindJoiner(s)
		r.send(s.Initiator, model.PeerDisconnectedMessage{
			Type:   model.MessagePeerDisconnected,
			Reason: reason,
		})
		return
	}
	r.teardown(s, reason, model.CloseNormal, c)
}

// Teardown ends the session for code, notifying whichever legs are still
// connected. It reports whether a session was removed.
func (r *Registry) Teardown(code, reason string) bool {
	s, ok := r.sessions[code]
	if !ok {
		return false
	}
	r.teardown(s, reason, model.CloseNormal, nil)
	return true
}

func (r *Registry) teardown(s *model.PairingSession, reason string, closeCode model.CloseCode, except model.Conn) {
	s.State = model.SessionStateEnded
	delete(r.sessions, s.Code)

	for _, leg := range []model.Conn{s.Initiator, s.Joiner} {
		if leg == nil {
			continue
		}
		delete(r.byConn, leg.ID())
		if except != nil && leg.ID() == except.ID() {
			continue
		}
		if !leg.Live() {
			continue
		}
		r.send(leg, model.PeerDisconnectedMessage{
			Type:   model.MessagePeerDisconnected,
			Reason: reason,
		})
		leg.Close(closeCode, reason)
	}
	r.metrics.SessionsActive.Set(float64(len(r.sessions)))

	audit.Log(audit.Event{
		Type: audit.EventTeardown,
		Code: s.Code,
		Details: map[string]interface{}{
			"reason": reason,
		},
	})
}

func (r *Registry) unbindJoiner(s *model.PairingSession) {
	if s.Joiner != nil {
		delete(r.byConn, s.Joiner.ID())
	}
	s.Joiner = nil
	s.JoinerMetadata = nil
	s.Approved = false
	s.State = model.SessionStateAwaitingJoiner
}

// Lookup returns the live session for code. Expired sessions are evicted on
// access so a code is never honoured past its window, whatever the sweeper's
// cadence.
func (r *Registry) Lookup(code string) (*model.PairingSession, bool) {
	s, ok := r.sessions[code]
	if !ok {
		return nil, false
	}
	if s.IsExpired(r.clock.Now()) {
		r.metrics.SessionsExpired.Inc()
		r.teardown(s, model.ReasonCodeExpired, model.CloseNormal, nil)
		return nil, false
	}
	return s, true
}

// SweepExpired removes every session whose code has expired.
func (r *Registry) SweepExpired() int {
	now := r.clock.Now()
	var expired []string
	for code, s := range r.sessions {
		if s.IsExpired(now) {
			expired = append(expired, code)
		}
	}
	for _, code := range expired {
		r.Teardown(code, model.ReasonCodeExpired)
	}
	r.metrics.SessionsExpired.Add(float64(len(expired)))
	return len(expired)
}

// Shutdown drains every session, telling connected peers the server is
// going away.
func (r *Registry) Shutdown() int {
	sessions := make([]*model.PairingSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	for _, s := range sessions {
		r.teardown(s, model.ReasonServerShutdown, model.CloseGoingAway, nil)
	}
	return len(sessions)
}

func (r *Registry) Len() int {
	return len(r.sessions)
}

// send serialises msg onto c. A serialisation failure is an internal fault:
// it is logged and only c is closed.
func (r *Registry) send(c model.Conn, msg any) bool {
	if c == nil {
		return false
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("connId", c.ID()).Msg("failed to encode message")
		c.Close(model.CloseInternalError, "internal error")
		return false
	}
	return r.deliver(c, payload)
}

func (r *Registry) deliver(c model.Conn, payload []byte) bool {
	if c.Send(payload) {
		return true
	}
	if c.Live() {
		r.metrics.Dropped.WithLabelValues(metrics.DropQueueFull).Inc()
		log.Warn().Str("connId", c.ID()).Msg("send queue full, message dropped")
	}
	return false
}

// JoinerMeta builds the descriptive metadata shown to an initiator from the
// joiner's address and User-Agent.
func JoinerMeta(ip, userAgent string) model.JoinerMetadata {
	class, browser := util.DeviceClass(userAgent)
	return model.JoinerMetadata{
		Origin:      util.TruncateIP(ip),
		DeviceClass: class,
		Browser:     browser,
	}
}
