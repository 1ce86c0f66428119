package middleware

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/okapi/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/okapi/pkg/ratelimit"
)

// RateLimit rejects requests with 429 once the client address has used up
// its tokens. Health and metrics endpoints are never limited.
func RateLimit(limiter *ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/health") || r.URL.Path == "/metrics" {
				next.ServeHTTP(w, r)
				return
			}
			key := clientKey(r)
			if !limiter.Allow(key) {
				wait := limiter.RetryAfter(key)
				slog.Warn("rate limit exceeded", "client", key, "path", r.URL.Path, "request_id", GetRequestID(r))
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				apperrors.WriteJSON(w, apperrors.ErrRateLimited, GetRequestID(r))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
