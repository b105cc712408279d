// Command mock-provider is a local stand-in for the Paystack transfer API.
// It accepts recipients and transfers, then posts a signed transfer webhook
// back to the payout service after a delay.
//
// Account numbers ending in 9999 are rejected at recipient creation and
// transfers to accounts ending in 0000 fail.
package main

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	env "github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"

	"github.com/josh-kwaku/chainfund-payouts/internal/logging"
	"github.com/josh-kwaku/chainfund-payouts/internal/middleware"
)

type Config struct {
	Port         int           `env:"MOCK_PROVIDER_PORT" envDefault:"8081"`
	SecretKey    string        `env:"PAYSTACK_SECRET_KEY" envDefault:"sk_test_mock"`
	WebhookURL   string        `env:"MOCK_WEBHOOK_URL" envDefault:"http://localhost:8080/api/v1/webhooks/paystack"`
	WebhookDelay time.Duration `env:"MOCK_WEBHOOK_DELAY" envDefault:"3s"`
	LogLevel     string        `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv       string        `env:"APP_ENV" envDefault:"development"`
}

type envelope struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type transfer struct {
	TransferCode string `json:"transfer_code"`
	Reference    string `json:"reference"`
	Status       string `json:"status"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
	Reason       string `json:"reason,omitempty"`
	recipient    string
}

type mockProvider struct {
	cfg    Config
	client *http.Client

	mu         sync.Mutex
	recipients map[string]string // recipient code -> account number
	transfers  map[string]*transfer
	references map[string]string // reference -> transfer code
}

func main() {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logging.Init("mock-provider", cfg.LogLevel, cfg.AppEnv)

	m := &mockProvider{
		cfg:        cfg,
		client:     &http.Client{Timeout: 10 * time.Second},
		recipients: map[string]string{},
		transfers:  map[string]*transfer{},
		references: map[string]string{},
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Logging)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Group(func(r chi.Router) {
		r.Use(m.requireSecret)
		r.Post("/transferrecipient", m.createRecipient)
		r.Post("/transfer", m.initiateTransfer)
		r.Get("/transfer/verify/{reference}", m.verifyReference)
		r.Get("/transfer/{code}", m.fetchTransfer)
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	slog.Info("mock provider started", "addr", addr, "webhook_url", cfg.WebhookURL)
	if err := http.ListenAndServe(addr, r); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func (m *mockProvider) requireSecret(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+m.cfg.SecretKey {
			writeJSON(w, http.StatusUnauthorized, envelope{Message: "Invalid key"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (m *mockProvider) createRecipient(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name          string `json:"name"`
		AccountNumber string `json:"account_number"`
		BankCode      string `json:"bank_code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{Message: "Invalid JSON"})
		return
	}
	if req.AccountNumber == "" || req.BankCode == "" {
		writeJSON(w, http.StatusBadRequest, envelope{Message: "Account number and bank code are required"})
		return
	}
	if strings.HasSuffix(req.AccountNumber, "9999") {
		writeJSON(w, http.StatusUnprocessableEntity, envelope{Message: "Could not resolve account name. Check parameters or try again."})
		return
	}

	code := "RCP_" + randomCode()
	m.mu.Lock()
	m.recipients[code] = req.AccountNumber
	m.mu.Unlock()

	writeJSON(w, http.StatusCreated, envelope{
		Status:  true,
		Message: "Transfer recipient created successfully",
		Data:    map[string]string{"recipient_code": code, "name": req.Name},
	})
}

func (m *mockProvider) initiateTransfer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount    int64  `json:"amount"`
		Recipient string `json:"recipient"`
		Currency  string `json:"currency"`
		Reference string `json:"reference"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{Message: "Invalid JSON"})
		return
	}
	if req.Amount <= 0 {
		writeJSON(w, http.StatusBadRequest, envelope{Message: "Invalid amount"})
		return
	}

	m.mu.Lock()
	account, ok := m.recipients[req.Recipient]
	if !ok {
		m.mu.Unlock()
		writeJSON(w, http.StatusBadRequest, envelope{Message: "Recipient not found"})
		return
	}
	// Repeating a reference returns the original transfer.
	if code, seen := m.references[req.Reference]; seen && req.Reference != "" {
		t := *m.transfers[code]
		m.mu.Unlock()
		writeJSON(w, http.StatusOK, envelope{Status: true, Message: "Transfer has been queued", Data: t})
		return
	}
	t := &transfer{
		TransferCode: "TRF_" + randomCode(),
		Reference:    req.Reference,
		Status:       "pending",
		Amount:       req.Amount,
		Currency:     req.Currency,
		recipient:    account,
	}
	m.transfers[t.TransferCode] = t
	m.references[t.Reference] = t.TransferCode
	snapshot := *t
	m.mu.Unlock()

	slog.Info("transfer queued", "transfer_code", t.TransferCode, "reference", t.Reference, "amount", t.Amount)
	go m.settle(t.TransferCode)

	writeJSON(w, http.StatusOK, envelope{Status: true, Message: "Transfer has been queued", Data: snapshot})
}

func (m *mockProvider) verifyReference(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	code := m.references[chi.URLParam(r, "reference")]
	m.mu.Unlock()
	m.writeTransfer(w, code)
}

func (m *mockProvider) fetchTransfer(w http.ResponseWriter, r *http.Request) {
	m.writeTransfer(w, chi.URLParam(r, "code"))
}

func (m *mockProvider) writeTransfer(w http.ResponseWriter, code string) {
	m.mu.Lock()
	t, ok := m.transfers[code]
	var snapshot transfer
	if ok {
		snapshot = *t
	}
	m.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusNotFound, envelope{Message: "Transfer not found"})
		return
	}
	writeJSON(w, http.StatusOK, envelope{Status: true, Message: "Transfer retrieved", Data: snapshot})
}

// settle finalizes a transfer after the configured delay and notifies the
// payout service.
func (m *mockProvider) settle(code string) {
	time.Sleep(m.cfg.WebhookDelay)

	m.mu.Lock()
	t := m.transfers[code]
	event := "transfer.success"
	t.Status = "success"
	if strings.HasSuffix(t.recipient, "0000") {
		event = "transfer.failed"
		t.Status = "failed"
		t.Reason = "Account is dormant"
	}
	snapshot := *t
	m.mu.Unlock()

	body, err := json.Marshal(map[string]any{
		"event": event,
		"data": map[string]any{
			"transfer_code":    snapshot.TransferCode,
			"reference":        snapshot.Reference,
			"status":           snapshot.Status,
			"amount":           snapshot.Amount,
			"currency":         snapshot.Currency,
			"gateway_response": snapshot.Reason,
		},
	})
	if err != nil {
		slog.Error("failed to encode webhook", "error", err)
		return
	}

	mac := hmac.New(sha512.New, []byte(m.cfg.SecretKey))
	mac.Write(body)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		slog.Error("failed to build webhook request", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-paystack-signature", hex.EncodeToString(mac.Sum(nil)))

	resp, err := m.client.Do(req)
	if err != nil {
		slog.Warn("webhook delivery failed", "transfer_code", code, "error", err)
		return
	}
	resp.Body.Close()
	slog.Info("webhook delivered", "transfer_code", code, "event", event, "status", resp.StatusCode)
}

func randomCode() string {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return strings.ToLower(hex.EncodeToString(b))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}
