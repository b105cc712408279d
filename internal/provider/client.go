package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/josh-kwaku/chainfund-payouts/internal/domain"
	"github.com/josh-kwaku/chainfund-payouts/internal/logging"
)

const maxResponseBytes = 1 << 20

type httpClient struct {
	provider domain.Provider
	http     *http.Client
}

func newHTTPClient(p domain.Provider, timeout time.Duration) httpClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return httpClient{provider: p, http: &http.Client{Timeout: timeout}}
}

// do sends req and returns the status code and body. Transport failures come
// back as *Error with ErrTimeout or ErrUnavailable.
func (c httpClient) do(ctx context.Context, op string, req *http.Request) (int, []byte, error) {
	log := logging.FromContext(ctx)

	start := time.Now()
	log.Info("provider request sent", "provider", c.provider, "op", op, "method", req.Method, "path", req.URL.Path)

	resp, err := c.http.Do(req)
	if err != nil {
		kind := ErrUnavailable
		if isTimeout(err) {
			kind = ErrTimeout
		}
		log.Warn("provider request failed", "provider", c.provider, "op", op, "error", err)
		return 0, nil, &Error{Provider: c.provider, Kind: kind, Message: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, nil, &Error{Provider: c.provider, Kind: ErrUnavailable, StatusCode: resp.StatusCode, Message: fmt.Sprintf("read body: %v", err)}
	}

	log.Info("provider response received",
		"provider", c.provider,
		"op", op,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return resp.StatusCode, body, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// kindForStatus maps a non-2xx HTTP status onto an error kind. Adapters refine
// validation failures into bank-detail or duplicate errors from the body.
func kindForStatus(code int) error {
	switch {
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return ErrAuthFailure
	case code == http.StatusTooManyRequests:
		return ErrRateLimited
	case code == http.StatusConflict:
		return ErrRecipientAlreadyExists
	case code >= 500:
		return ErrUnavailable
	default:
		return ErrValidation
	}
}
