package handler

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/openclaw/pairing-relay/internal/errors"
	"github.com/openclaw/pairing-relay/internal/model"
)

type recordingConn struct {
	sent      [][]byte
	closed    bool
	closeCode model.CloseCode
}

func (c *recordingConn) ID() string { return "rec" }
func (c *recordingConn) Send(p []byte) bool {
	c.sent = append(c.sent, p)
	return true
}
func (c *recordingConn) Close(code model.CloseCode, reason string) {
	c.closed = true
	c.closeCode = code
}
func (c *recordingConn) Live() bool { return !c.closed }

func (c *recordingConn) message(t *testing.T) map[string]any {
	t.Helper()
	require.Len(t, c.sent, 1)
	var m map[string]any
	require.NoError(t, json.Unmarshal(c.sent[0], &m))
	return m
}

func TestReportError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantType  string
		wantField string
		wantValue any
		closes    bool
		closeCode model.CloseCode
	}{
		{"invalid code", apperrors.InvalidCode(), "invalid-code", "reason", "unknown", true, model.ClosePolicyViolation},
		{"expired", apperrors.Expired(), "invalid-code", "reason", "expired", true, model.ClosePolicyViolation},
		{"already joining", apperrors.AlreadyJoining(), "invalid-code", "reason", "in-use", true, model.ClosePolicyViolation},
		{"rate limited", apperrors.RateLimited(90*time.Second + time.Millisecond), "rate-limited", "retryAfterSeconds", float64(91), true, model.ClosePolicyViolation},
		{"not approved", apperrors.NotApproved("wait"), "error", "code", "NOT_APPROVED", false, 0},
		{"malformed", apperrors.MalformedMessage("bad"), "error", "code", "MALFORMED_MESSAGE", false, 0},
		{"internal", apperrors.Internal("boom"), "error", "code", "INTERNAL_ERROR", true, model.CloseInternalError},
		{"plain error", errors.New("surprise"), "error", "code", "INTERNAL_ERROR", true, model.CloseInternalError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := &recordingConn{}
			reportError(c, tc.err)

			msg := c.message(t)
			assert.Equal(t, tc.wantType, msg["type"])
			assert.Equal(t, tc.wantValue, msg[tc.wantField])
			assert.Equal(t, tc.closes, c.closed)
			if tc.closes {
				assert.Equal(t, tc.closeCode, c.closeCode)
			}
		})
	}

	t.Run("internal details are not leaked", func(t *testing.T) {
		c := &recordingConn{}
		reportError(c, errors.New("db password is hunter2"))
		assert.NotContains(t, string(c.sent[0]), "hunter2")
	})
}
