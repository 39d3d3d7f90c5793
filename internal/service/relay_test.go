package service

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/openclaw/pairing-relay/internal/errors"
	"github.com/openclaw/pairing-relay/internal/metrics"
	"github.com/openclaw/pairing-relay/internal/model"
)

func TestRegistry_Forward(t *testing.T) {
	offer := []byte(`{"type":"offer","sdp":{"type":"offer","sdp":"v=0\r\no=- 1 2 IN IP4 0.0.0.0"},"extra":[1,2,3]}`)

	t.Run("nothing relayed while awaiting approval", func(t *testing.T) {
		f := newRegistryFixture()
		initiator, code := f.open(t, "init")
		joiner := f.join(t, code, "join")
		before := len(initiator.payloads())

		err := f.registry.Forward(code, joiner, model.MessageOffer, offer)
		requireAppCode(t, err, apperrors.ErrCodeNotApproved)

		assert.Len(t, initiator.payloads(), before)
		assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.Dropped.WithLabelValues(metrics.DropNotPaired)))
	})

	t.Run("initiator cannot signal before a joiner exists", func(t *testing.T) {
		f := newRegistryFixture()
		initiator, code := f.open(t, "init")
		requireAppCode(t, f.registry.Forward(code, initiator, model.MessageOffer, offer), apperrors.ErrCodeNotApproved)
	})

	t.Run("paired peers exchange payloads verbatim", func(t *testing.T) {
		f := newRegistryFixture()
		initiator, joiner, code := f.pair(t)

		require.NoError(t, f.registry.Forward(code, joiner, model.MessageOffer, offer))
		got := initiator.payloads()
		assert.Equal(t, offer, got[len(got)-1])

		answer := []byte(`{"type":"answer","sdp":"whatever"}`)
		require.NoError(t, f.registry.Forward(code, initiator, model.MessageAnswer, answer))
		got = joiner.payloads()
		assert.Equal(t, answer, got[len(got)-1])

		assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.Relayed.WithLabelValues("offer")))
	})

	t.Run("control kinds are not relayed", func(t *testing.T) {
		f := newRegistryFixture()
		initiator, joiner, code := f.pair(t)
		before := len(initiator.payloads())

		err := f.registry.Forward(code, joiner, model.MessageApprove, []byte(`{"type":"approve"}`))
		requireAppCode(t, err, apperrors.ErrCodeMalformedMessage)
		assert.Len(t, initiator.payloads(), before)
	})

	t.Run("stranger with the code cannot inject", func(t *testing.T) {
		f := newRegistryFixture()
		initiator, _, code := f.pair(t)
		before := len(initiator.payloads())

		err := f.registry.Forward(code, newFakeConn("mallory"), model.MessageICECandidate, []byte(`{"type":"ice-candidate"}`))
		requireAppCode(t, err, apperrors.ErrCodeNotApproved)
		assert.Len(t, initiator.payloads(), before)
	})

	t.Run("dropped after teardown", func(t *testing.T) {
		f := newRegistryFixture()
		initiator, joiner, code := f.pair(t)
		f.registry.Disconnect(initiator, model.ReasonPeerClosed)

		err := f.registry.Forward(code, joiner, model.MessagePauseNotice, []byte(`{"type":"pause-notice"}`))
		requireAppCode(t, err, apperrors.ErrCodeNotApproved)
	})

	t.Run("dead counterpart is not relayed to", func(t *testing.T) {
		f := newRegistryFixture()
		initiator, joiner, code := f.pair(t)
		initiator.mu.Lock()
		initiator.live = false
		initiator.mu.Unlock()

		err := f.registry.Forward(code, joiner, model.MessageOffer, offer)
		requireAppCode(t, err, apperrors.ErrCodeNotApproved)
	})
}
