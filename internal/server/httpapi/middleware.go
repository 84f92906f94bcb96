package httpapi

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/formvault/formvault/internal/common"
)

type contextKey string

const userIDKey contextKey = "userID"

// clientIdentity derives the throttling identity for a request: the first
// X-Forwarded-For hop when present, otherwise the peer address. An empty
// result falls into the shared unknown bucket downstream.
func clientIdentity(r *http.Request) string {
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

// bearerToken extracts the token from an Authorization: Bearer header.
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return ""
	}
	return h[len(prefix):]
}

// rateLimit admits requests within the endpoint class cap. Allowed
// requests carry X-RateLimit-Remaining; denials get 429 with Retry-After.
func (s *HTTPServer) rateLimit(endpoint string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d := s.limiter.Check(r.Context(), clientIdentity(r), endpoint)
		if !d.Allowed {
			w.Header().Set(common.RetryAfterHeader, strconv.Itoa(d.RetryAfter))
			w.Header().Set(common.RateLimitRemainingHeader, "0")
			s.writeError(w, r, common.ErrorRateLimited)
			return
		}
		if d.Remaining >= 0 {
			w.Header().Set(common.RateLimitRemainingHeader, strconv.Itoa(d.Remaining))
		}
		next.ServeHTTP(w, r)
	})
}

// requireAuth validates the bearer token (signature, expiry, blocklist)
// and stores the user id on the request context.
func (s *HTTPServer) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			s.writeError(w, r, common.ErrorUnauthorized)
			return
		}
		userID, err := s.auth.Authenticate(r.Context(), token)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey, userID)))
	})
}
