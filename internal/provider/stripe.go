package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/josh-kwaku/chainfund-payouts/internal/domain"
	"github.com/josh-kwaku/chainfund-payouts/internal/logging"
)

const stripeSignatureTolerance = 5 * time.Minute

type StripeConfig struct {
	BaseURL          string
	SecretKey        string
	WebhookSecret    string
	ConnectedAccount string
	BankCountry      string
	Timeout          time.Duration
}

type Stripe struct {
	cfg    StripeConfig
	client httpClient
	now    func() time.Time
}

func NewStripe(cfg StripeConfig) *Stripe {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.BankCountry == "" {
		cfg.BankCountry = "US"
	}
	return &Stripe{
		cfg:    cfg,
		client: newHTTPClient(domain.ProviderStripe, cfg.Timeout),
		now:    time.Now,
	}
}

func (s *Stripe) Name() domain.Provider { return domain.ProviderStripe }

func (s *Stripe) SignatureHeader() string { return "Stripe-Signature" }

func (s *Stripe) EstimatedDelivery() string { return "2-7 business days" }

func (s *Stripe) RequiresVerifiedAccount() bool { return false }

type stripeBankAccount struct {
	ID string `json:"id"`
}

type stripePayout struct {
	ID             string `json:"id"`
	Status         string `json:"status"`
	FailureCode    string `json:"failure_code"`
	FailureMessage string `json:"failure_message"`
}

type stripeErrorBody struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
		Param   string `json:"param"`
	} `json:"error"`
}

func (s *Stripe) CreateRecipient(ctx context.Context, req RecipientRequest) (string, error) {
	form := url.Values{}
	form.Set("external_account[object]", "bank_account")
	form.Set("external_account[country]", s.cfg.BankCountry)
	form.Set("external_account[currency]", strings.ToLower(string(req.Currency)))
	form.Set("external_account[account_holder_name]", req.AccountName)
	form.Set("external_account[account_number]", req.AccountNumber)
	if req.BankCode != "" {
		form.Set("external_account[routing_number]", req.BankCode)
	}

	path := "/v1/accounts/" + url.PathEscape(s.cfg.ConnectedAccount) + "/external_accounts"
	var account stripeBankAccount
	if err := s.call(ctx, "create_recipient", http.MethodPost, path, form, "", &account); err != nil {
		return "", fmt.Errorf("CreateRecipient: %w", err)
	}
	if account.ID == "" {
		return "", fmt.Errorf("CreateRecipient: %w", &Error{Provider: s.Name(), Kind: ErrValidation, Message: "response missing id"})
	}
	return account.ID, nil
}

func (s *Stripe) InitiateTransfer(ctx context.Context, req TransferRequest) (TransferResult, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(req.Amount, 10))
	form.Set("currency", strings.ToLower(string(req.Currency)))
	form.Set("destination", req.Recipient)
	form.Set("description", req.Reason)
	form.Set("metadata[payout_reference]", req.Reference)
	if req.PayoutID != "" {
		form.Set("metadata[payout_id]", req.PayoutID)
	}

	var payout stripePayout
	if err := s.call(ctx, "initiate_transfer", http.MethodPost, "/v1/payouts", form, req.Reference, &payout); err != nil {
		return TransferResult{}, fmt.Errorf("InitiateTransfer: %w", err)
	}
	return s.result(ctx, payout), nil
}

func (s *Stripe) VerifyTransfer(ctx context.Context, transactionID string) (TransferResult, error) {
	var payout stripePayout
	path := "/v1/payouts/" + url.PathEscape(transactionID)
	if err := s.call(ctx, "verify_transfer", http.MethodGet, path, nil, "", &payout); err != nil {
		return TransferResult{}, fmt.Errorf("VerifyTransfer: %w", err)
	}
	if payout.ID == "" {
		payout.ID = transactionID
	}
	return s.result(ctx, payout), nil
}

type stripePayoutList struct {
	Data []struct {
		stripePayout
		Metadata map[string]string `json:"metadata"`
	} `json:"data"`
}

// LookupTransfer finds a payout by the reference stored in its metadata
// among the most recent payouts of the connected account.
func (s *Stripe) LookupTransfer(ctx context.Context, reference string) (TransferResult, error) {
	var list stripePayoutList
	if err := s.call(ctx, "lookup_transfer", http.MethodGet, "/v1/payouts?limit=100", nil, "", &list); err != nil {
		return TransferResult{}, fmt.Errorf("LookupTransfer: %w", err)
	}
	for _, p := range list.Data {
		if p.Metadata["payout_reference"] == reference {
			return s.result(ctx, p.stripePayout), nil
		}
	}
	return TransferResult{}, fmt.Errorf("LookupTransfer: %s: %w", reference, ErrTransferNotFound)
}

func (s *Stripe) result(ctx context.Context, p stripePayout) TransferResult {
	status := stripeStatus(p.Status)
	if status == StatusUnknown {
		logging.FromContext(ctx).Error("unrecognized stripe payout status",
			"provider_status", p.Status,
			"stripe_payout_id", p.ID,
		)
	}
	reason := p.FailureMessage
	if reason == "" {
		reason = p.FailureCode
	}
	return TransferResult{
		TransactionID: p.ID,
		Status:        status,
		RawStatus:     p.Status,
		FailureReason: reason,
	}
}

func stripeStatus(s string) Status {
	switch s {
	case "paid":
		return StatusSuccess
	case "pending", "in_transit":
		return StatusPending
	case "failed", "canceled":
		return StatusFailed
	default:
		return StatusUnknown
	}
}

func (s *Stripe) call(ctx context.Context, op, method, path string, form url.Values, idempotencyKey string, out any) error {
	var body *strings.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	} else {
		body = strings.NewReader("")
	}

	req, err := http.NewRequestWithContext(ctx, method, s.cfg.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.SetBasicAuth(s.cfg.SecretKey, "")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}
	if s.cfg.ConnectedAccount != "" && !strings.HasPrefix(path, "/v1/accounts/") {
		req.Header.Set("Stripe-Account", s.cfg.ConnectedAccount)
	}

	code, raw, err := s.client.do(ctx, op, req)
	if err != nil {
		return err
	}

	if code < 200 || code >= 300 {
		var e stripeErrorBody
		msg := http.StatusText(code)
		if jsonErr := json.Unmarshal(raw, &e); jsonErr == nil && e.Error.Message != "" {
			msg = e.Error.Message
		}
		return &Error{Provider: s.Name(), Kind: stripeErrorKind(code, e.Error.Code), StatusCode: code, Message: msg}
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return &Error{Provider: s.Name(), Kind: ErrUnavailable, StatusCode: code, Message: fmt.Sprintf("decode response: %v", err)}
		}
	}
	return nil
}

func stripeErrorKind(status int, code string) error {
	switch code {
	case "account_number_invalid", "routing_number_invalid", "bank_account_unusable",
		"bank_account_declined", "bank_account_unverified":
		return ErrInvalidBankDetails
	case "resource_already_exists", "bank_account_exists":
		return ErrRecipientAlreadyExists
	case "rate_limit":
		return ErrRateLimited
	}
	return kindForStatus(status)
}

// VerifyWebhookSignature checks a "t=<unix>,v1=<hex>" header: HMAC-SHA256 of
// "<t>.<body>" keyed with the webhook secret, within the replay tolerance.
func (s *Stripe) VerifyWebhookSignature(raw []byte, header string) bool {
	if header == "" || s.cfg.WebhookSecret == "" {
		return false
	}

	var timestamp string
	var signatures []string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			timestamp = v
		case "v1":
			signatures = append(signatures, v)
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return false
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	age := s.now().Sub(time.Unix(ts, 0))
	if age > stripeSignatureTolerance || age < -stripeSignatureTolerance {
		return false
	}

	mac := hmac.New(sha256.New, []byte(s.cfg.WebhookSecret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(raw)
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, sig := range signatures {
		if hmac.Equal([]byte(expected), []byte(sig)) {
			return true
		}
	}
	return false
}

type stripeWebhook struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID             string            `json:"id"`
			Status         string            `json:"status"`
			FailureCode    string            `json:"failure_code"`
			FailureMessage string            `json:"failure_message"`
			Metadata       map[string]string `json:"metadata"`
		} `json:"object"`
	} `json:"data"`
}

func (s *Stripe) ParseWebhookEvent(raw []byte) (Event, error) {
	var w stripeWebhook
	if err := json.Unmarshal(raw, &w); err != nil {
		return Event{}, fmt.Errorf("ParseWebhookEvent: %w: %v", ErrMalformedEvent, err)
	}
	if w.ID == "" || w.Type == "" {
		return Event{}, fmt.Errorf("ParseWebhookEvent: %w: missing id or type", ErrMalformedEvent)
	}

	obj := w.Data.Object
	ev := Event{
		Kind:      stripeEventKind(w.Type),
		EventID:   w.ID,
		RawType:   w.Type,
		PayoutID:  obj.Metadata["payout_id"],
		Reference: obj.Metadata["payout_reference"],
	}
	// Only payout objects carry the po_ id stored as the transaction id.
	// transfer.* objects are tr_ ids and resolve by metadata alone.
	if strings.HasPrefix(w.Type, "payout.") {
		ev.TransactionID = obj.ID
	}
	if ev.Kind == EventTransferFailed || ev.Kind == EventTransferReversed {
		ev.Reason = obj.FailureMessage
		if ev.Reason == "" {
			ev.Reason = obj.FailureCode
		}
		if ev.Reason == "" {
			ev.Reason = w.Type
		}
	}

	if ev.Kind != EventUnknown && ev.PayoutID == "" && ev.Reference == "" && ev.TransactionID == "" {
		return Event{}, fmt.Errorf("ParseWebhookEvent: %w: no payout identifier", ErrMalformedEvent)
	}
	return ev, nil
}

func stripeEventKind(t string) EventKind {
	switch t {
	case "payout.created":
		return EventTransferCreated
	case "payout.paid":
		return EventTransferSucceeded
	case "payout.failed", "payout.canceled":
		return EventTransferFailed
	case "transfer.reversed":
		return EventTransferReversed
	default:
		return EventUnknown
	}
}
