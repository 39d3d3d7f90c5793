package redis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	t.Run("rejects invalid url", func(t *testing.T) {
		_, err := NewClient("not a url://")
		assert.Error(t, err)
	})

	t.Run("fails when server unreachable", func(t *testing.T) {
		_, err := NewClient("redis://127.0.0.1:1/0")
		assert.Error(t, err)
	})

	t.Run("connects to local redis", func(t *testing.T) {
		c, err := NewClient("redis://localhost:6379/15")
		if err != nil {
			t.Skip("Redis not available for testing")
		}
		defer c.Close()
		require.NoError(t, c.Check(context.Background()))
	})
}
