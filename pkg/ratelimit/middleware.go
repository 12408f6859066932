package ratelimit

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"

	"github.com/go-chi/jwtauth/v5"
	"github.com/go-chi/render"
)

// Middleware applies a per-client limit to the routes it wraps. Authenticated
// requests are keyed by token subject, anonymous ones by client IP.
type Middleware struct {
	limiter        *Limiter
	retryAfter     int
	trustedProxies []netip.Prefix
}

// MiddlewareOption configures a Middleware
type MiddlewareOption func(*Middleware)

// WithTrustedProxies sets the peers whose X-Forwarded-For and X-Real-IP
// headers are believed. Without it the headers are ignored.
func WithTrustedProxies(proxies []netip.Prefix) MiddlewareOption {
	return func(m *Middleware) {
		m.trustedProxies = proxies
	}
}

// ParseTrustedProxies parses IP addresses and CIDR ranges
func ParseTrustedProxies(values []string) ([]netip.Prefix, error) {
	var prefixes []netip.Prefix
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if strings.Contains(v, "/") {
			p, err := netip.ParsePrefix(v)
			if err != nil {
				return nil, fmt.Errorf("invalid trusted proxy %q: %w", v, err)
			}
			prefixes = append(prefixes, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(v)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", v, err)
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

// NewMiddleware wraps limiter as HTTP middleware
func NewMiddleware(limiter *Limiter, opts ...MiddlewareOption) *Middleware {
	retry := 1
	if limiter.refillRate > 0 && limiter.refillRate < 1 {
		retry = int(1/limiter.refillRate + 0.5)
	}
	m := &Middleware{limiter: limiter, retryAfter: retry}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Handler returns the middleware handler
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := m.clientKey(r)
		if !m.limiter.Allow(key) {
			slog.Warn("Rate limit exceeded", "key", key, "method", r.Method, "path", r.URL.Path)
			w.Header().Set("Retry-After", strconv.Itoa(m.retryAfter))
			render.Status(r, http.StatusTooManyRequests)
			render.JSON(w, r, map[string]string{
				"error":   "RATE_LIMIT_EXCEEDED",
				"message": "Too many requests. Please try again later.",
			})
			return
		}
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(m.limiter.capacity))
		next.ServeHTTP(w, r)
	})
}

func (m *Middleware) clientKey(r *http.Request) string {
	if sub := subjectFromContext(r); sub != "" {
		return "user:" + sub
	}
	return "ip:" + m.clientIP(r)
}

func subjectFromContext(r *http.Request) string {
	_, claims, err := jwtauth.FromContext(r.Context())
	if err != nil || claims == nil {
		return ""
	}
	sub, _ := claims["sub"].(string)
	return sub
}

// clientIP returns the peer address. When the peer is a trusted proxy it walks
// X-Forwarded-For from the right and returns the first untrusted hop, falling
// back to X-Real-IP.
func (m *Middleware) clientIP(r *http.Request) string {
	remote := remoteHost(r)
	if !m.trusted(remote) {
		return remote
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if hop == "" {
				continue
			}
			if !m.trusted(hop) || i == 0 {
				return hop
			}
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	return remote
}

func (m *Middleware) trusted(ip string) bool {
	if len(m.trustedProxies) == 0 {
		return false
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range m.trustedProxies {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
