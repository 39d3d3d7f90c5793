package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrustedRealIP(t *testing.T) {
	seen := func(m *TrustedRealIP, remote string, header http.Header) string {
		var got string
		h := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = r.RemoteAddr
		}))
		req := httptest.NewRequest(http.MethodGet, "/ws", nil)
		req.RemoteAddr = remote
		for k, vs := range header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
		h.ServeHTTP(httptest.NewRecorder(), req)
		return got
	}

	t.Run("headers ignored without trusted proxies", func(t *testing.T) {
		m, err := NewTrustedRealIP(nil)
		require.NoError(t, err)
		got := seen(m, "203.0.113.5:4000", http.Header{
			"X-Forwarded-For": {"198.51.100.1"},
			"X-Real-Ip":       {"198.51.100.2"},
		})
		assert.Equal(t, "203.0.113.5:4000", got)
	})

	t.Run("headers ignored from untrusted peer", func(t *testing.T) {
		m, err := NewTrustedRealIP([]string{"10.0.0.0/8"})
		require.NoError(t, err)
		got := seen(m, "203.0.113.5:4000", http.Header{"X-Forwarded-For": {"198.51.100.1"}})
		assert.Equal(t, "203.0.113.5:4000", got)
	})

	t.Run("trusted proxy forwards the client", func(t *testing.T) {
		m, err := NewTrustedRealIP([]string{"10.0.0.0/8"})
		require.NoError(t, err)
		got := seen(m, "10.1.2.3:4000", http.Header{"X-Forwarded-For": {"198.51.100.1"}})
		assert.Equal(t, "198.51.100.1:4000", got)
	})

	t.Run("spoofed leftmost hops are skipped", func(t *testing.T) {
		m, err := NewTrustedRealIP([]string{"10.0.0.0/8"})
		require.NoError(t, err)
		got := seen(m, "10.1.2.3:4000", http.Header{
			"X-Forwarded-For": {"192.0.2.99, 198.51.100.1, 10.9.9.9"},
		})
		assert.Equal(t, "198.51.100.1:4000", got)
	})

	t.Run("x-real-ip used when no forwarded chain", func(t *testing.T) {
		m, err := NewTrustedRealIP([]string{"10.1.2.3"})
		require.NoError(t, err)
		got := seen(m, "10.1.2.3:4000", http.Header{"X-Real-Ip": {"2001:db8::7"}})
		assert.Equal(t, "[2001:db8::7]:4000", got)
	})

	t.Run("unparseable hop leaves the proxy address", func(t *testing.T) {
		m, err := NewTrustedRealIP([]string{"10.0.0.0/8"})
		require.NoError(t, err)
		got := seen(m, "10.1.2.3:4000", http.Header{"X-Forwarded-For": {"garbage"}})
		assert.Equal(t, "10.1.2.3:4000", got)
	})

	t.Run("invalid proxy list rejected", func(t *testing.T) {
		_, err := NewTrustedRealIP([]string{"nope"})
		assert.Error(t, err)
	})
}
