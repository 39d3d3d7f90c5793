package origin

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	valid := []struct {
		name   string
		input  string
		origin string
		host   string
	}{
		{"lower cases scheme and host", "HTTPS://Example.COM", "https://example.com", "example.com"},
		{"drops default https port", "https://example.com:443", "https://example.com", "example.com"},
		{"drops default http port", "http://example.com:80", "http://example.com", "example.com"},
		{"keeps other ports", "http://localhost:5173/", "http://localhost:5173", "localhost:5173"},
		{"ipv6 literal", "http://[::1]:8080", "http://[::1]:8080", "[::1]:8080"},
	}
	for _, tc := range valid {
		t.Run(tc.name, func(t *testing.T) {
			origin, host, ok := Normalize(tc.input)
			require.True(t, ok)
			assert.Equal(t, tc.origin, origin)
			assert.Equal(t, tc.host, host)
		})
	}

	invalid := []string{
		"",
		"null",
		"ftp://example.com",
		"https://example.com/path",
		"https://example.com/?q=1",
		"https://user@example.com",
		"https://example.com/#frag",
		"https://example.com:0",
		"https://example.com:99999",
		"http://::1",
		"example.com",
	}
	for _, in := range invalid {
		t.Run("rejects "+in, func(t *testing.T) {
			_, _, ok := Normalize(in)
			assert.False(t, ok)
		})
	}
}

func TestPolicy(t *testing.T) {
	newReq := func(host string, origins ...string) *http.Request {
		r := httptest.NewRequest("GET", "http://"+host+"/ws", nil)
		for _, o := range origins {
			r.Header.Add("Origin", o)
		}
		return r
	}

	t.Run("same host by default", func(t *testing.T) {
		p, err := NewPolicy(nil)
		require.NoError(t, err)

		assert.True(t, p.Allow(newReq("relay.example.com", "https://relay.example.com")))
		assert.True(t, p.Allow(newReq("relay.example.com:443", "https://relay.example.com")))
		assert.False(t, p.Allow(newReq("relay.example.com", "https://evil.example.com")))
	})

	t.Run("native clients without origin pass", func(t *testing.T) {
		p, _ := NewPolicy(nil)
		assert.True(t, p.Allow(newReq("relay.example.com")))
	})

	t.Run("duplicate origin headers refused", func(t *testing.T) {
		p, _ := NewPolicy([]string{"*"})
		assert.False(t, p.Allow(newReq("relay.example.com", "https://a.example.com", "https://b.example.com")))
	})

	t.Run("allow list", func(t *testing.T) {
		p, err := NewPolicy([]string{"https://App.Example.com:443", " "})
		require.NoError(t, err)

		assert.True(t, p.Allow(newReq("relay.example.com", "https://app.example.com")))
		assert.False(t, p.Allow(newReq("relay.example.com", "https://relay.example.com")))
		assert.False(t, p.Allow(newReq("relay.example.com", "null")))
	})

	t.Run("wildcard", func(t *testing.T) {
		p, _ := NewPolicy([]string{"*"})
		assert.True(t, p.Allow(newReq("relay.example.com", "https://anything.test")))
		assert.False(t, p.Allow(newReq("relay.example.com", "garbage")))
	})

	t.Run("invalid allow list entry", func(t *testing.T) {
		_, err := NewPolicy([]string{"https://example.com/path"})
		assert.Error(t, err)
	})
}
