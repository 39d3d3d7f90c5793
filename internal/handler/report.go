package handler

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	apperrors "github.com/openclaw/pairing-relay/internal/errors"
	"github.com/openclaw/pairing-relay/internal/model"
)

// reportError turns err into the typed message a client understands and,
// for refusals and faults, hangs up. Remote input never escalates past this.
func reportError(c model.Conn, err error) {
	appErr, ok := apperrors.AsAppError(err)
	if !ok {
		log.Error().Err(err).Str("connId", c.ID()).Msg("unexpected error on connection")
		appErr = apperrors.Internal("An unexpected error occurred")
	}

	var msg any
	switch appErr.Code {
	case apperrors.ErrCodeInvalidCode, apperrors.ErrCodeExpired, apperrors.ErrCodeAlreadyJoining:
		reason := apperrors.ReasonUnknown
		if d, ok := appErr.Details.(apperrors.InvalidCodeDetails); ok {
			reason = d.Reason
		}
		msg = model.InvalidCodeMessage{Type: model.MessageInvalidCode, Reason: reason}
	case apperrors.ErrCodeRateLimited:
		d, _ := appErr.Details.(apperrors.RateLimitDetails)
		msg = model.RateLimitedMessage{Type: model.MessageRateLimited, RetryAfterSeconds: d.RetryAfterSeconds()}
	default:
		msg = model.ErrorMessage{Type: model.MessageError, Code: string(appErr.Code), Message: appErr.Message}
	}

	if appErr.Code == apperrors.ErrCodeInternal {
		log.Error().Err(appErr).Str("connId", c.ID()).Msg("internal error on connection")
	}

	payload, mErr := json.Marshal(msg)
	if mErr != nil {
		log.Error().Err(mErr).Str("connId", c.ID()).Msg("failed to encode error message")
		c.Close(model.CloseInternalError, "internal error")
		return
	}
	c.Send(payload)

	if !apperrors.ClosesConnection(appErr) {
		return
	}
	switch appErr.Code {
	case apperrors.ErrCodeInternal, apperrors.ErrCodeUnavailable:
		c.Close(model.CloseInternalError, string(appErr.Code))
	default:
		c.Close(model.ClosePolicyViolation, string(appErr.Code))
	}
}
