package origin

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Normalize validates a browser Origin value and returns it as
// scheme://host[:port] with default ports dropped, plus the host[:port] part.
func Normalize(value string) (normalized string, host string, ok bool) {
	value = strings.TrimSpace(value)
	if value == "" || value == "null" {
		return "", "", false
	}

	u, err := url.Parse(value)
	if err != nil || u.Host == "" || u.User != nil || u.RawQuery != "" || u.Fragment != "" {
		return "", "", false
	}
	if u.Path != "" && u.Path != "/" {
		return "", "", false
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", "", false
	}

	host, ok = canonicalHost(u.Host, scheme)
	if !ok {
		return "", "", false
	}
	return scheme + "://" + host, host, true
}

// canonicalHost lower-cases an authority and removes the scheme's default
// port. IPv6 literals come back bracketed.
func canonicalHost(authority, scheme string) (string, bool) {
	authority = strings.ToLower(strings.TrimSpace(authority))
	if authority == "" {
		return "", false
	}

	hostname, port := authority, ""
	if strings.HasPrefix(authority, "[") || strings.Count(authority, ":") == 1 {
		h, p, err := net.SplitHostPort(authority)
		if err != nil {
			if !strings.HasSuffix(authority, "]") {
				return "", false
			}
			h = strings.Trim(authority, "[]")
		}
		hostname, port = h, p
	} else if strings.Contains(authority, ":") {
		// Unbracketed IPv6 is not a valid authority.
		return "", false
	}
	if hostname == "" {
		return "", false
	}

	if port != "" {
		n, err := strconv.ParseUint(port, 10, 16)
		if err != nil || n == 0 {
			return "", false
		}
		if (scheme == "http" && n == 80) || (scheme == "https" && n == 443) {
			port = ""
		}
	}

	if strings.Contains(hostname, ":") {
		hostname = "[" + hostname + "]"
	}
	if port != "" {
		return hostname + ":" + port, true
	}
	return hostname, true
}

// Policy decides which browser origins may open a WebSocket. With no
// allow-list only same-host origins pass.
type Policy struct {
	allowed []string
	any     bool
}

func NewPolicy(allowed []string) (*Policy, error) {
	p := &Policy{}
	for _, a := range allowed {
		a = strings.TrimSpace(a)
		switch a {
		case "":
			continue
		case "*":
			p.any = true
			continue
		}
		normalized, _, ok := Normalize(a)
		if !ok {
			return nil, fmt.Errorf("invalid allowed origin %q", a)
		}
		p.allowed = append(p.allowed, normalized)
	}
	return p, nil
}

// Allow is shaped for websocket.Upgrader.CheckOrigin. Requests without an
// Origin header come from native clients and are allowed.
func (p *Policy) Allow(r *http.Request) bool {
	values := r.Header.Values("Origin")
	if len(values) == 0 {
		return true
	}
	if len(values) > 1 {
		return false
	}

	normalized, host, ok := Normalize(values[0])
	if !ok {
		return false
	}
	if p.any {
		return true
	}
	if len(p.allowed) > 0 {
		for _, a := range p.allowed {
			if a == normalized {
				return true
			}
		}
		return false
	}

	// Scheme is not compared: a TLS-terminating proxy makes the request look
	// like plain HTTP while the page is HTTPS.
	scheme := "http"
	if strings.HasPrefix(normalized, "https://") {
		scheme = "https"
	}
	requestHost, ok := canonicalHost(r.Host, scheme)
	return ok && requestHost == host
}
