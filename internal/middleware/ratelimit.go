package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/josh-kwaku/chainfund-payouts/internal/auth"
	"github.com/josh-kwaku/chainfund-payouts/internal/handler"
	"github.com/josh-kwaku/chainfund-payouts/internal/logging"
)

type limiter interface {
	Consume(ctx context.Context, scope, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// RateLimit allows limit requests per authenticated user and window. When
// the limiter store is unreachable requests are let through.
func RateLimit(l limiter, scope string, limit int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := auth.UserIDFromContext(r.Context())
			if !ok || l == nil {
				next.ServeHTTP(w, r)
				return
			}

			count, retryAfter, err := l.Consume(r.Context(), scope, userID.String(), limit, window)
			if err != nil {
				logging.FromContext(r.Context()).Warn("rate limiter unavailable", "scope", scope, "error", err)
				next.ServeHTTP(w, r)
				return
			}

			if count > limit {
				logging.FromContext(r.Context()).Warn("rate limit exceeded", "scope", scope, "count", count, "limit", limit)
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				handler.RespondAppError(w, handler.ErrRateLimited, nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Timeout bounds the request context; handlers map the deadline to a
// retryable TIMEOUT error.
func Timeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
