package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/josh-kwaku/chainfund-payouts/internal/auth"
	"github.com/josh-kwaku/chainfund-payouts/internal/handler"
	"github.com/josh-kwaku/chainfund-payouts/internal/logging"
	"github.com/josh-kwaku/chainfund-payouts/internal/repository"
)

type idempotencyStore interface {
	Get(ctx context.Context, key string, userID uuid.UUID) (*repository.IdempotencyCacheEntry, error)
	Set(ctx context.Context, entry *repository.IdempotencyCacheEntry) error
}

const (
	idempotencyHeader = "Idempotency-Key"
	replayedHeader    = "X-Idempotent-Replayed"
	maxIdempotentBody = 64 << 10
)

// Idempotency replays the stored response when a caller repeats a payout
// request with the same Idempotency-Key. Without a key, or without a store,
// requests pass straight through. 5xx responses are never stored.
func Idempotency(store idempotencyStore) func(http.Handler) http.Handler {
	if store == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(idempotencyHeader)
			if key == "" || r.Method == http.MethodGet || r.Method == http.MethodHead {
				next.ServeHTTP(w, r)
				return
			}

			userID, ok := auth.UserIDFromContext(r.Context())
			if !ok {
				handler.RespondAppError(w, handler.ErrMissingToken, nil)
				return
			}
			log := logging.FromContext(r.Context()).With("idempotency_key", key)

			body, err := io.ReadAll(io.LimitReader(r.Body, maxIdempotentBody+1))
			if err != nil {
				handler.RespondAppError(w, handler.ErrInvalidRequest, nil)
				return
			}
			if len(body) > maxIdempotentBody {
				log.Warn("idempotent request body too large", "limit_bytes", maxIdempotentBody)
				handler.RespondAppError(w, handler.ErrInvalidRequest, map[string]string{
					"body": "request body too large",
				})
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			fingerprint := requestFingerprint(r.Method, r.URL.Path, body)

			cached, err := store.Get(r.Context(), key, userID)
			switch {
			case err != nil:
				log.Warn("idempotency lookup failed, serving uncached", "error", err)
				next.ServeHTTP(w, r)
				return
			case cached != nil && cached.RequestHash != fingerprint:
				handler.RespondAppError(w, handler.ErrIdempotencyConflict, nil)
				return
			case cached != nil:
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set(replayedHeader, "true")
				w.WriteHeader(cached.StatusCode)
				if _, err := w.Write(cached.ResponseBody); err != nil {
					log.Warn("idempotent replay write failed", "error", err)
				}
				return
			}

			var captured bytes.Buffer
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			ww.Tee(&captured)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			if status >= http.StatusInternalServerError {
				return
			}

			entry := &repository.IdempotencyCacheEntry{
				Key:          key,
				UserID:       userID,
				RequestHash:  fingerprint,
				StatusCode:   status,
				ResponseBody: captured.Bytes(),
				CreatedAt:    time.Now().UTC(),
			}
			if err := store.Set(context.WithoutCancel(r.Context()), entry); err != nil {
				log.Warn("idempotency store failed", "error", err)
			}
		})
	}
}

func requestFingerprint(method, path string, body []byte) string {
	sum := sha256.Sum256(append([]byte(method+" "+path+"\n"), body...))
	return hex.EncodeToString(sum[:])
}
