package provider

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/josh-kwaku/chainfund-payouts/internal/domain"
	"github.com/josh-kwaku/chainfund-payouts/internal/logging"
)

type Paystack struct {
	baseURL   string
	secretKey string
	client    httpClient
}

func NewPaystack(baseURL, secretKey string, timeout time.Duration) *Paystack {
	return &Paystack{
		baseURL:   strings.TrimRight(baseURL, "/"),
		secretKey: secretKey,
		client:    newHTTPClient(domain.ProviderPaystack, timeout),
	}
}

func (p *Paystack) Name() domain.Provider { return domain.ProviderPaystack }

func (p *Paystack) SignatureHeader() string { return "x-paystack-signature" }

func (p *Paystack) EstimatedDelivery() string { return "1-3 business days" }

func (p *Paystack) RequiresVerifiedAccount() bool { return true }

type paystackEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type paystackRecipientRequest struct {
	Type          string `json:"type"`
	Name          string `json:"name"`
	AccountNumber string `json:"account_number"`
	BankCode      string `json:"bank_code"`
	Currency      string `json:"currency"`
}

type paystackRecipient struct {
	RecipientCode string `json:"recipient_code"`
}

type paystackTransferRequest struct {
	Source    string `json:"source"`
	Amount    int64  `json:"amount"`
	Recipient string `json:"recipient"`
	Reason    string `json:"reason"`
	Currency  string `json:"currency"`
	Reference string `json:"reference"`
}

type paystackTransfer struct {
	TransferCode string `json:"transfer_code"`
	Reference    string `json:"reference"`
	Status       string `json:"status"`
	Reason       string `json:"reason"`
}

func (p *Paystack) CreateRecipient(ctx context.Context, req RecipientRequest) (string, error) {
	payload := paystackRecipientRequest{
		Type:          "nuban",
		Name:          req.AccountName,
		AccountNumber: req.AccountNumber,
		BankCode:      req.BankCode,
		Currency:      string(req.Currency),
	}

	var recipient paystackRecipient
	if err := p.call(ctx, "create_recipient", http.MethodPost, "/transferrecipient", payload, &recipient); err != nil {
		return "", fmt.Errorf("CreateRecipient: %w", err)
	}
	if recipient.RecipientCode == "" {
		return "", fmt.Errorf("CreateRecipient: %w", &Error{Provider: p.Name(), Kind: ErrValidation, Message: "response missing recipient_code"})
	}
	return recipient.RecipientCode, nil
}

func (p *Paystack) InitiateTransfer(ctx context.Context, req TransferRequest) (TransferResult, error) {
	payload := paystackTransferRequest{
		Source:    "balance",
		Amount:    req.Amount,
		Recipient: req.Recipient,
		Reason:    req.Reason,
		Currency:  string(req.Currency),
		Reference: req.Reference,
	}

	var transfer paystackTransfer
	if err := p.call(ctx, "initiate_transfer", http.MethodPost, "/transfer", payload, &transfer); err != nil {
		return TransferResult{}, fmt.Errorf("InitiateTransfer: %w", err)
	}
	return p.result(ctx, transfer), nil
}

func (p *Paystack) VerifyTransfer(ctx context.Context, transactionID string) (TransferResult, error) {
	var transfer paystackTransfer
	path := "/transfer/" + url.PathEscape(transactionID)
	if err := p.call(ctx, "verify_transfer", http.MethodGet, path, nil, &transfer); err != nil {
		return TransferResult{}, fmt.Errorf("VerifyTransfer: %w", err)
	}
	if transfer.TransferCode == "" {
		transfer.TransferCode = transactionID
	}
	return p.result(ctx, transfer), nil
}

// LookupTransfer finds a transfer by the reference it was initiated with.
func (p *Paystack) LookupTransfer(ctx context.Context, reference string) (TransferResult, error) {
	var transfer paystackTransfer
	path := "/transfer/verify/" + url.PathEscape(reference)
	if err := p.call(ctx, "lookup_transfer", http.MethodGet, path, nil, &transfer); err != nil {
		var perr *Error
		if errors.As(err, &perr) && perr.StatusCode == http.StatusNotFound {
			return TransferResult{}, fmt.Errorf("LookupTransfer: %s: %w", reference, ErrTransferNotFound)
		}
		return TransferResult{}, fmt.Errorf("LookupTransfer: %w", err)
	}
	if transfer.TransferCode == "" {
		return TransferResult{}, fmt.Errorf("LookupTransfer: %s: %w", reference, ErrTransferNotFound)
	}
	return p.result(ctx, transfer), nil
}

func (p *Paystack) result(ctx context.Context, t paystackTransfer) TransferResult {
	status := paystackStatus(t.Status)
	if status == StatusUnknown {
		logging.FromContext(ctx).Error("unrecognized paystack transfer status",
			"provider_status", t.Status,
			"transfer_code", t.TransferCode,
		)
	}
	return TransferResult{
		TransactionID: t.TransferCode,
		Status:        status,
		RawStatus:     t.Status,
		FailureReason: t.Reason,
	}
}

func paystackStatus(s string) Status {
	switch strings.ToLower(s) {
	case "success":
		return StatusSuccess
	case "failed", "abandoned", "rejected":
		return StatusFailed
	case "reversed":
		return StatusReversed
	case "otp":
		return StatusRequiresApproval
	case "pending", "received", "queued", "processing":
		return StatusPending
	default:
		return StatusUnknown
	}
}

func (p *Paystack) call(ctx context.Context, op, method, path string, payload, out any) error {
	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal: %w", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.secretKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	code, raw, err := p.client.do(ctx, op, req)
	if err != nil {
		return err
	}

	var env paystackEnvelope
	decodeErr := json.Unmarshal(raw, &env)

	if code < 200 || code >= 300 || (decodeErr == nil && !env.Status) {
		msg := env.Message
		if decodeErr != nil || msg == "" {
			msg = http.StatusText(code)
		}
		return &Error{Provider: p.Name(), Kind: paystackErrorKind(code, msg), StatusCode: code, Message: msg}
	}
	if decodeErr != nil {
		return &Error{Provider: p.Name(), Kind: ErrUnavailable, StatusCode: code, Message: fmt.Sprintf("decode response: %v", decodeErr)}
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return &Error{Provider: p.Name(), Kind: ErrUnavailable, StatusCode: code, Message: fmt.Sprintf("decode data: %v", err)}
		}
	}
	return nil
}

func paystackErrorKind(code int, msg string) error {
	kind := kindForStatus(code)
	if kind != ErrValidation {
		return kind
	}
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "account number"),
		strings.Contains(lower, "resolve account"),
		strings.Contains(lower, "bank code"),
		strings.Contains(lower, "invalid bank"):
		return ErrInvalidBankDetails
	case strings.Contains(lower, "already exists"):
		return ErrRecipientAlreadyExists
	}
	return ErrValidation
}

// VerifyWebhookSignature checks the hex HMAC-SHA512 of the raw body.
func (p *Paystack) VerifyWebhookSignature(raw []byte, header string) bool {
	if header == "" || p.secretKey == "" {
		return false
	}
	mac := hmac.New(sha512.New, []byte(p.secretKey))
	mac.Write(raw)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(header))))
}

type paystackWebhook struct {
	Event string `json:"event"`
	Data  struct {
		ID           json.Number `json:"id"`
		TransferCode string      `json:"transfer_code"`
		Reference    string      `json:"reference"`
		Status       string      `json:"status"`
		Reason       string      `json:"reason"`
		Message      string      `json:"gateway_response"`
	} `json:"data"`
}

func (p *Paystack) ParseWebhookEvent(raw []byte) (Event, error) {
	var w paystackWebhook
	if err := json.Unmarshal(raw, &w); err != nil {
		return Event{}, fmt.Errorf("ParseWebhookEvent: %w: %v", ErrMalformedEvent, err)
	}
	if w.Event == "" {
		return Event{}, fmt.Errorf("ParseWebhookEvent: %w: missing event", ErrMalformedEvent)
	}

	ev := Event{
		Kind:          paystackEventKind(w.Event),
		RawType:       w.Event,
		Reference:     w.Data.Reference,
		TransactionID: w.Data.TransferCode,
	}

	// Paystack does not send an event id; a transfer emits each event type
	// at most once, so the pair is used as the delivery key.
	key := w.Data.TransferCode
	if key == "" {
		key = w.Data.ID.String()
	}
	if key == "" {
		key = w.Data.Reference
	}
	ev.EventID = w.Event + ":" + key

	if ev.Kind == EventTransferFailed || ev.Kind == EventTransferReversed {
		ev.Reason = w.Data.Reason
		if w.Data.Message != "" {
			ev.Reason = w.Data.Message
		}
		if ev.Reason == "" {
			ev.Reason = "transfer " + w.Event[strings.LastIndex(w.Event, ".")+1:]
		}
	}

	if ev.Kind != EventUnknown && ev.Reference == "" && ev.TransactionID == "" {
		return Event{}, fmt.Errorf("ParseWebhookEvent: %w: no transfer reference", ErrMalformedEvent)
	}
	return ev, nil
}

// paystackEventKind accepts both the transfer.* names Paystack sends and the
// provider-neutral payout.* names.
func paystackEventKind(event string) EventKind {
	switch strings.ToLower(event) {
	case "transfer.created", "payout.created":
		return EventTransferCreated
	case "transfer.success", "transfer.paid", "payout.paid", "payout.succeeded", "payout.success":
		return EventTransferSucceeded
	case "transfer.failed", "transfer.canceled", "payout.failed", "payout.canceled":
		return EventTransferFailed
	case "transfer.reversed", "payout.reversed":
		return EventTransferReversed
	default:
		return EventUnknown
	}
}
