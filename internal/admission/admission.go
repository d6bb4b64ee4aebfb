// Package admission implements gateway request admission: a shared API
// key checked in constant time, with a CIDR allow-list bypass for
// trusted networks. Health and artifact-serving endpoints are exempt.
package admission

import (
	"crypto/subtle"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/rs/zerolog"
)

// HeaderAPIKey is the authentication header checked on every request.
const HeaderAPIKey = "X-API-Key"

// Guard decides whether a gateway request is admitted.
type Guard struct {
	apiKey        []byte
	allowedRanges []netip.Prefix
	exemptPaths   []string
	log           zerolog.Logger
}

// Config holds admission configuration.
type Config struct {
	// APIKey is the expected header value. Required.
	APIKey string

	// AllowedRanges are CIDR prefixes whose clients bypass the key
	// check.
	AllowedRanges []netip.Prefix

	// ExemptPaths are paths admitted without any check. Entries ending
	// in "/" match as prefixes; all others match exactly.
	ExemptPaths []string
}

// ParseRanges parses a comma-separated CIDR list. Bare addresses are
// accepted as /32 (or /128) prefixes.
func ParseRanges(s string) ([]netip.Prefix, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var prefixes []netip.Prefix
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if !strings.Contains(part, "/") {
			addr, err := netip.ParseAddr(part)
			if err != nil {
				return nil, fmt.Errorf("invalid allowed range %q: %w", part, err)
			}
			prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		p, err := netip.ParsePrefix(part)
		if err != nil {
			return nil, fmt.Errorf("invalid allowed range %q: %w", part, err)
		}
		prefixes = append(prefixes, p)
	}
	return prefixes, nil
}

// NewGuard creates a guard.
func NewGuard(cfg Config, log zerolog.Logger) *Guard {
	return &Guard{
		apiKey:        []byte(cfg.APIKey),
		allowedRanges: cfg.AllowedRanges,
		exemptPaths:   cfg.ExemptPaths,
		log:           log,
	}
}

// Middleware wraps a handler with the admission check. Rejections are
// 403 with a non-descriptive body and never advance broker state.
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.Admit(r) {
			next.ServeHTTP(w, r)
			return
		}
		g.log.Warn().Str("remote", r.RemoteAddr).Str("path", r.URL.Path).Msg("request rejected")
		http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
	})
}

// Admit reports whether the request passes admission.
func (g *Guard) Admit(r *http.Request) bool {
	for _, p := range g.exemptPaths {
		if strings.HasSuffix(p, "/") {
			if strings.HasPrefix(r.URL.Path, p) {
				return true
			}
		} else if r.URL.Path == p {
			return true
		}
	}
	if g.keyMatches(r.Header.Get(HeaderAPIKey)) {
		return true
	}
	return g.addrAllowed(r.RemoteAddr)
}

// keyMatches compares the presented key in constant time.
func (g *Guard) keyMatches(presented string) bool {
	if len(g.apiKey) == 0 || presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare(g.apiKey, []byte(presented)) == 1
}

// addrAllowed reports whether the client address lies in an allowed
// range.
func (g *Guard) addrAllowed(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range g.allowedRanges {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}
