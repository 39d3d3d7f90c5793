package middleware

import (
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/openclaw/pairing-relay/internal/util"
)

// TrustedRealIP rewrites RemoteAddr from X-Forwarded-For or X-Real-IP, but
// only when the TCP peer is one of the configured proxies. Every limit and
// audit record keys on RemoteAddr, so a client must never be able to pick
// its own identity by sending a header.
type TrustedRealIP struct {
	trusted []netip.Prefix
}

func NewTrustedRealIP(proxies []string) (*TrustedRealIP, error) {
	trusted, err := util.ParsePrefixes(proxies)
	if err != nil {
		return nil, err
	}
	return &TrustedRealIP{trusted: trusted}, nil
}

func (m *TrustedRealIP) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(m.trusted) > 0 {
			if ip, ok := m.forwardedFor(r); ok {
				_, port, err := net.SplitHostPort(r.RemoteAddr)
				if err != nil {
					port = "0"
				}
				r.RemoteAddr = net.JoinHostPort(ip.String(), port)
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (m *TrustedRealIP) isTrusted(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, p := range m.trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// forwardedFor walks X-Forwarded-For from the right, skipping our own
// proxies, and returns the first hop they did not add.
func (m *TrustedRealIP) forwardedFor(r *http.Request) (netip.Addr, bool) {
	peer, err := netip.ParseAddr(util.ClientIP(r))
	if err != nil || !m.isTrusted(peer) {
		return netip.Addr{}, false
	}

	var hops []string
	for _, h := range r.Header.Values("X-Forwarded-For") {
		hops = append(hops, strings.Split(h, ",")...)
	}
	if len(hops) == 0 {
		if v := r.Header.Get("X-Real-IP"); v != "" {
			hops = []string{v}
		}
	}

	var last netip.Addr
	for i := len(hops) - 1; i >= 0; i-- {
		addr, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
		if err != nil {
			break
		}
		addr = addr.Unmap()
		if !m.isTrusted(addr) {
			return addr, true
		}
		last = addr
	}
	if last.IsValid() {
		return last, true
	}
	return netip.Addr{}, false
}
