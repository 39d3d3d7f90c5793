package audit

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/pairing-relay/internal/util"
)

type EventType string

const (
	EventCodeIssued      EventType = "code_issued"
	EventJoinAttempt     EventType = "join_attempt"
	EventJoinRefused     EventType = "join_refused"
	EventApproved        EventType = "approved"
	EventRejected        EventType = "rejected"
	EventLockout         EventType = "lockout"
	EventTeardown        EventType = "teardown"
	EventOriginForbidden EventType = "origin_forbidden"
	EventRateLimitExceed EventType = "rate_limit_exceeded"
)

type Event struct {
	Type    EventType
	Code    string
	ConnID  string
	Role    string
	Origin  string
	Details map[string]interface{}
}

// Log writes a security audit line. Pairing codes are masked before they
// reach the log.
func Log(event Event) {
	logger := log.With().
		Str("audit", "security").
		Str("event_type", string(event.Type)).
		Time("timestamp", time.Now()).
		Logger()

	if event.Code != "" {
		logger = logger.With().Str("code", util.MaskCode(event.Code)).Logger()
	}
	if event.ConnID != "" {
		logger = logger.With().Str("connId", event.ConnID).Logger()
	}
	if event.Role != "" {
		logger = logger.With().Str("role", event.Role).Logger()
	}
	if event.Origin != "" {
		logger = logger.With().Str("origin", event.Origin).Logger()
	}

	logEvent := logger.Info()
	for k, v := range event.Details {
		logEvent = addField(logEvent, k, v)
	}
	logEvent.Msg("security audit event")
}

func addField(e *zerolog.Event, key string, value interface{}) *zerolog.Event {
	switch v := value.(type) {
	case string:
		return e.Str(key, v)
	case int:
		return e.Int(key, v)
	case int64:
		return e.Int64(key, v)
	case bool:
		return e.Bool(key, v)
	case time.Duration:
		return e.Dur(key, v)
	default:
		return e.Interface(key, v)
	}
}

func LogFromRequest(r *http.Request, event Event) {
	if event.Origin == "" {
		event.Origin = util.OriginKey(util.ClientIP(r))
	}
	if event.Details == nil {
		event.Details = map[string]interface{}{}
	}
	if ua := r.UserAgent(); ua != "" {
		event.Details["user_agent"] = util.SanitizeText(ua, 128)
	}
	Log(event)
}
