// Package api implements the Pledge REST API using chi.
package api

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	"github.com/starford/pledge/internal/market"
)

// SignerHeader carries the parties authorizing a request. It may repeat or
// hold a comma-separated list.
const SignerHeader = "X-Signer"

// AuthMiddleware returns middleware that validates a Bearer token.
// If enabled is false, all requests pass through (disabled mode).
// If enabled is true, requests must carry a valid "Authorization: Bearer <token>" header.
func AuthMiddleware(enabled bool, token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !enabled {
				next.ServeHTTP(w, r)
				return
			}
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") != token {
				writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// signers collects every X-Signer value on the request.
func signers(r *http.Request) market.Signers {
	var out market.Signers
	for _, v := range r.Header.Values(SignerHeader) {
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// RateLimiter throttles requests per client address with a token bucket.
type RateLimiter struct {
	limit    rate.Limit
	burst    int
	visitors *expirable.LRU[string, *rate.Limiter]
}

// NewRateLimiter allows requestsPerMinute per client with the given burst.
// Idle clients are forgotten after ten minutes.
func NewRateLimiter(requestsPerMinute float64, burst int) *RateLimiter {
	perSecond := requestsPerMinute / 60.0
	if perSecond <= 0 {
		perSecond = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		visitors: expirable.NewLRU[string, *rate.Limiter](10_000, nil, 10*time.Minute),
	}
}

// Middleware rejects clients over their budget with 429.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.limiter(clientID(r)).Allow() {
			writeJSON(w, http.StatusTooManyRequests, errResponse{Error: "rate limit exceeded", Code: "rate_limited"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (l *RateLimiter) limiter(id string) *rate.Limiter {
	if lim, ok := l.visitors.Get(id); ok {
		return lim
	}
	lim := rate.NewLimiter(l.limit, l.burst)
	l.visitors.Add(id, lim)
	return lim
}

// clientID keys the limiter on the connection address. Proxy headers are
// only honored when the root router rewrites RemoteAddr from them.
func clientID(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
