package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadiness(t *testing.T) {
	up := PingFunc(func(context.Context) error { return nil })
	down := PingFunc(func(context.Context) error { return errors.New("connection refused") })

	tests := []struct {
		name       string
		db         pinger
		redis      pinger
		wantStatus int
		wantChecks map[string]any
	}{
		{"database only", up, nil, http.StatusOK, map[string]any{"database": "ok"}},
		{"database and redis", up, up, http.StatusOK, map[string]any{"database": "ok", "redis": "ok"}},
		{"redis down", up, down, http.StatusServiceUnavailable, map[string]any{"database": "ok", "redis": "down"}},
		{"database down", down, nil, http.StatusServiceUnavailable, map[string]any{"database": "down"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHealthHandler(tc.db, tc.redis)
			rec := httptest.NewRecorder()
			h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

			assert.Equal(t, tc.wantStatus, rec.Code)
			var body map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tc.wantChecks, body["checks"])
		})
	}
}

func TestLiveness(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHealthHandler(PingFunc(func(context.Context) error { return nil }), nil).
		Liveness(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
