package service

import (
	"github.com/rs/zerolog/log"

	apperrors "github.com/openclaw/pairing-relay/internal/errors"
	"github.com/openclaw/pairing-relay/internal/metrics"
	"github.com/openclaw/pairing-relay/internal/model"
	"github.com/openclaw/pairing-relay/internal/util"
)

// Forward delivers raw, verbatim, to the other leg of a paired session. The
// payload is never decoded beyond the kind the caller already extracted.
// Anything outside a live, approved pairing is dropped and reported back to
// the sender as NotApproved; nothing is queued for later.
func (r *Registry) Forward(code string, from model.Conn, kind model.MessageType, raw []byte) error {
	if !kind.Relayable() {
		r.metrics.Dropped.WithLabelValues(metrics.DropMalformed).Inc()
		return apperrors.MalformedMessage("Message type cannot be relayed")
	}

	s, ok := r.Lookup(code)
	if !ok {
		r.dropUnpaired(code, from, kind, "session not found")
		return apperrors.NotApproved("Session has ended")
	}

	role, ok := s.RoleOf(from)
	if !ok {
		r.dropUnpaired(code, from, kind, "sender not bound to session")
		return apperrors.NotApproved("Not part of this session")
	}

	if !s.CanRelay() {
		r.dropUnpaired(code, from, kind, "session not paired")
		return apperrors.NotApproved("Pairing has not been approved")
	}

	if r.deliver(s.Counterpart(role), raw) {
		r.metrics.Relayed.WithLabelValues(string(kind)).Inc()
	}
	return nil
}

func (r *Registry) dropUnpaired(code string, from model.Conn, kind model.MessageType, why string) {
	r.metrics.Dropped.WithLabelValues(metrics.DropNotPaired).Inc()
	log.Warn().
		Str("code", util.MaskCode(code)).
		Str("connId", from.ID()).
		Str("kind", string(kind)).
		Msg("dropping signaling message: " + why)
}
