package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/chainfund-payouts/internal/domain"
)

func paystackServer(t *testing.T, handler http.HandlerFunc) *Paystack {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewPaystack(srv.URL, "sk_test_secret", 2*time.Second)
}

func TestPaystack_CreateRecipient(t *testing.T) {
	p := paystackServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/transferrecipient", r.URL.Path)
		assert.Equal(t, "Bearer sk_test_secret", r.Header.Get("Authorization"))

		var body paystackRecipientRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "nuban", body.Type)
		assert.Equal(t, "0123456789", body.AccountNumber)
		assert.Equal(t, "058", body.BankCode)
		assert.Equal(t, "NGN", body.Currency)

		w.Write([]byte(`{"status":true,"message":"Transfer recipient created","data":{"recipient_code":"RCP_abc"}}`))
	})

	code, err := p.CreateRecipient(context.Background(), RecipientRequest{
		AccountName:   "Ada Obi",
		AccountNumber: "0123456789",
		BankCode:      "058",
		Currency:      domain.CurrencyNGN,
	})
	require.NoError(t, err)
	assert.Equal(t, "RCP_abc", code)
}

func TestPaystack_CreateRecipient_InvalidAccount(t *testing.T) {
	p := paystackServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"status":false,"message":"Could not resolve account name. Check parameters or try again."}`))
	})

	_, err := p.CreateRecipient(context.Background(), RecipientRequest{AccountNumber: "000", Currency: domain.CurrencyNGN})
	require.ErrorIs(t, err, ErrInvalidBankDetails)

	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, http.StatusBadRequest, perr.StatusCode)
	assert.Equal(t, domain.ProviderPaystack, perr.Provider)
}

func TestPaystack_InitiateTransfer(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus Status
		wantTxID   string
		wantErr    error
	}{
		{
			name:       "queued transfer is pending",
			status:     http.StatusOK,
			body:       `{"status":true,"message":"Transfer has been queued","data":{"transfer_code":"TRF_1","status":"pending","reference":"PO-1"}}`,
			wantStatus: StatusPending,
			wantTxID:   "TRF_1",
		},
		{
			name:       "otp required",
			status:     http.StatusOK,
			body:       `{"status":true,"message":"Transfer requires OTP to continue","data":{"transfer_code":"TRF_2","status":"otp"}}`,
			wantStatus: StatusRequiresApproval,
			wantTxID:   "TRF_2",
		},
		{
			name:       "acknowledged without transfer code",
			status:     http.StatusOK,
			body:       `{"status":true,"message":"ok","data":{"status":"success"}}`,
			wantStatus: StatusSuccess,
			wantTxID:   "",
		},
		{
			name:    "unauthorized",
			status:  http.StatusUnauthorized,
			body:    `{"status":false,"message":"Invalid key"}`,
			wantErr: ErrAuthFailure,
		},
		{
			name:    "rate limited",
			status:  http.StatusTooManyRequests,
			body:    `{"status":false,"message":"Too many requests"}`,
			wantErr: ErrRateLimited,
		},
		{
			name:    "server error",
			status:  http.StatusBadGateway,
			body:    `not json`,
			wantErr: ErrUnavailable,
		},
		{
			name:    "status false on 200",
			status:  http.StatusOK,
			body:    `{"status":false,"message":"Your balance is not enough to fulfil this request"}`,
			wantErr: ErrValidation,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := paystackServer(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/transfer", r.URL.Path)
				var body paystackTransferRequest
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				assert.Equal(t, "balance", body.Source)
				assert.Equal(t, int64(98500), body.Amount)
				assert.Equal(t, "PO-1", body.Reference)

				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			})

			res, err := p.InitiateTransfer(context.Background(), TransferRequest{
				Amount:    98500,
				Recipient: "RCP_abc",
				Reason:    "Payout PO-1",
				Currency:  domain.CurrencyNGN,
				Reference: "PO-1",
			})
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantStatus, res.Status)
			assert.Equal(t, tc.wantTxID, res.TransactionID)
		})
	}
}

func TestPaystack_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	p := NewPaystack(srv.URL, "sk", 50*time.Millisecond)
	_, err := p.VerifyTransfer(context.Background(), "TRF_1")
	require.ErrorIs(t, err, ErrTimeout)
	assert.True(t, Retryable(err))
}

func TestPaystack_VerifyTransfer(t *testing.T) {
	p := paystackServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/transfer/TRF_9", r.URL.Path)
		w.Write([]byte(`{"status":true,"message":"Transfer retrieved","data":{"transfer_code":"TRF_9","status":"reversed","reason":"bank returned funds"}}`))
	})

	res, err := p.VerifyTransfer(context.Background(), "TRF_9")
	require.NoError(t, err)
	assert.Equal(t, StatusReversed, res.Status)
	assert.Equal(t, "TRF_9", res.TransactionID)
}

func TestPaystackStatus(t *testing.T) {
	tests := map[string]Status{
		"success":  StatusSuccess,
		"failed":   StatusFailed,
		"reversed": StatusReversed,
		"otp":      StatusRequiresApproval,
		"pending":  StatusPending,
		"received": StatusPending,
		"queued":   StatusPending,
		"blocked":  StatusUnknown,
		"":         StatusUnknown,
	}
	for raw, want := range tests {
		assert.Equal(t, want, paystackStatus(raw), raw)
	}
}

func signPaystack(secret string, body []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestPaystack_VerifyWebhookSignature(t *testing.T) {
	p := NewPaystack("http://unused", "sk_test_secret", time.Second)
	body := []byte(`{"event":"transfer.success","data":{"transfer_code":"TRF_1"}}`)

	assert.True(t, p.VerifyWebhookSignature(body, signPaystack("sk_test_secret", body)))
	assert.False(t, p.VerifyWebhookSignature(body, signPaystack("other", body)))
	assert.False(t, p.VerifyWebhookSignature(body, ""))
	assert.False(t, p.VerifyWebhookSignature(append(body, ' '), signPaystack("sk_test_secret", body)))
}

func TestPaystack_ParseWebhookEvent(t *testing.T) {
	p := NewPaystack("http://unused", "sk", time.Second)

	tests := []struct {
		name    string
		body    string
		want    Event
		wantErr bool
	}{
		{
			name: "success",
			body: `{"event":"transfer.success","data":{"id":42,"transfer_code":"TRF_1","reference":"PO-1","status":"success"}}`,
			want: Event{Kind: EventTransferSucceeded, EventID: "transfer.success:TRF_1", RawType: "transfer.success", Reference: "PO-1", TransactionID: "TRF_1"},
		},
		{
			name: "failed carries reason",
			body: `{"event":"transfer.failed","data":{"transfer_code":"TRF_2","reference":"PO-2","reason":"Insufficient balance"}}`,
			want: Event{Kind: EventTransferFailed, EventID: "transfer.failed:TRF_2", RawType: "transfer.failed", Reference: "PO-2", TransactionID: "TRF_2", Reason: "Insufficient balance"},
		},
		{
			name: "reversed without reason",
			body: `{"event":"transfer.reversed","data":{"transfer_code":"TRF_3"}}`,
			want: Event{Kind: EventTransferReversed, EventID: "transfer.reversed:TRF_3", RawType: "transfer.reversed", TransactionID: "TRF_3", Reason: "transfer reversed"},
		},
		{
			name: "unknown event",
			body: `{"event":"charge.success","data":{"reference":"abc"}}`,
			want: Event{Kind: EventUnknown, EventID: "charge.success:abc", RawType: "charge.success", Reference: "abc"},
		},
		{
			name:    "known event without identifiers",
			body:    `{"event":"transfer.success","data":{}}`,
			wantErr: true,
		},
		{
			name:    "not json",
			body:    `{`,
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := p.ParseWebhookEvent([]byte(tc.body))
			if tc.wantErr {
				require.ErrorIs(t, err, ErrMalformedEvent)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestPaystackEventKind(t *testing.T) {
	tests := map[string]EventKind{
		"transfer.created":  EventTransferCreated,
		"payout.created":    EventTransferCreated,
		"transfer.success":  EventTransferSucceeded,
		"transfer.paid":     EventTransferSucceeded,
		"payout.paid":       EventTransferSucceeded,
		"payout.succeeded":  EventTransferSucceeded,
		"transfer.failed":   EventTransferFailed,
		"transfer.canceled": EventTransferFailed,
		"payout.failed":     EventTransferFailed,
		"payout.canceled":   EventTransferFailed,
		"transfer.reversed": EventTransferReversed,
		"payout.reversed":   EventTransferReversed,
		"charge.success":    EventUnknown,
		"":                  EventUnknown,
	}
	for raw, want := range tests {
		assert.Equal(t, want, paystackEventKind(raw), raw)
	}
}

func TestPaystack_ParseWebhookEvent_PayoutVocabulary(t *testing.T) {
	p := NewPaystack("http://unused", "sk", time.Second)

	tests := []struct {
		body string
		want Event
	}{
		{
			body: `{"event":"payout.paid","data":{"transfer_code":"TRF_1"}}`,
			want: Event{Kind: EventTransferSucceeded, EventID: "payout.paid:TRF_1", RawType: "payout.paid", TransactionID: "TRF_1"},
		},
		{
			body: `{"event":"payout.created","data":{"transfer_code":"TRF_2","reference":"PO-2"}}`,
			want: Event{Kind: EventTransferCreated, EventID: "payout.created:TRF_2", RawType: "payout.created", Reference: "PO-2", TransactionID: "TRF_2"},
		},
		{
			body: `{"event":"payout.canceled","data":{"transfer_code":"TRF_3"}}`,
			want: Event{Kind: EventTransferFailed, EventID: "payout.canceled:TRF_3", RawType: "payout.canceled", TransactionID: "TRF_3", Reason: "transfer canceled"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.want.RawType, func(t *testing.T) {
			got, err := p.ParseWebhookEvent([]byte(tc.body))
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestPaystack_LookupTransfer(t *testing.T) {
	p := paystackServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		switch r.URL.Path {
		case "/transfer/verify/PO-1":
			w.Write([]byte(`{"status":true,"message":"Transfer retrieved","data":{"transfer_code":"TRF_1","reference":"PO-1","status":"success"}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"status":false,"message":"Transfer not found"}`))
		}
	})

	res, err := p.LookupTransfer(context.Background(), "PO-1")
	require.NoError(t, err)
	assert.Equal(t, "TRF_1", res.TransactionID)
	assert.Equal(t, StatusSuccess, res.Status)

	_, err = p.LookupTransfer(context.Background(), "PO-2")
	require.ErrorIs(t, err, ErrTransferNotFound)
	assert.False(t, Retryable(err))
}
