package payout

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/chainfund-payouts/internal/domain"
	"github.com/josh-kwaku/chainfund-payouts/internal/fees"
	"github.com/josh-kwaku/chainfund-payouts/internal/fx"
	"github.com/josh-kwaku/chainfund-payouts/internal/provider"
)

type fakePayouts struct {
	mu      sync.Mutex
	byID    map[uuid.UUID]domain.Payout
	listErr error
	// updateErr is returned by the next failUpdates calls to UpdateStatus.
	updateErr   error
	failUpdates int
}

func newFakePayouts() *fakePayouts {
	return &fakePayouts{byID: map[uuid.UUID]domain.Payout{}}
}

func (f *fakePayouts) Create(_ context.Context, _ *sql.Tx, p *domain.Payout) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.byID {
		if existing.SubjectType == p.SubjectType && existing.SubjectID == p.SubjectID && existing.Status.IsActive() {
			return fmt.Errorf("Create: %w", domain.ErrDuplicateActiveRequest)
		}
		if existing.Reference == p.Reference {
			return fmt.Errorf("Create: %w", domain.ErrDuplicateKey)
		}
	}
	f.byID[p.ID] = *p
	return nil
}

func (f *fakePayouts) put(p domain.Payout) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[p.ID] = p
}

func (f *fakePayouts) get(id uuid.UUID) domain.Payout {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byID[id]
}

func (f *fakePayouts) find(match func(domain.Payout) bool) (*domain.Payout, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.byID {
		if match(p) {
			cp := p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakePayouts) GetByID(_ context.Context, id uuid.UUID) (*domain.Payout, error) {
	return f.find(func(p domain.Payout) bool { return p.ID == id })
}

func (f *fakePayouts) GetByReference(_ context.Context, ref string) (*domain.Payout, error) {
	return f.find(func(p domain.Payout) bool { return p.Reference == ref })
}

func (f *fakePayouts) GetByTransactionID(_ context.Context, txID string) (*domain.Payout, error) {
	return f.find(func(p domain.Payout) bool { return p.TransactionID != nil && *p.TransactionID == txID })
}

func (f *fakePayouts) GetActiveBySubject(_ context.Context, st domain.SubjectType, id uuid.UUID) (*domain.Payout, error) {
	return f.find(func(p domain.Payout) bool { return p.SubjectType == st && p.SubjectID == id && p.Status.IsActive() })
}

func (f *fakePayouts) GetForUpdate(ctx context.Context, _ *sql.Tx, id uuid.UUID) (*domain.Payout, error) {
	return f.GetByID(ctx, id)
}

func (f *fakePayouts) ClaimForDispatch(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.byID[id]
	if !ok || p.Status != domain.PayoutStatusApproved || p.DispatchClaimedAt != nil {
		return false, nil
	}
	p.DispatchClaimedAt = &at
	f.byID[id] = p
	return true, nil
}

func (f *fakePayouts) UpdateStatus(_ context.Context, _ *sql.Tx, id uuid.UUID, from, to domain.PayoutStatus, c domain.StatusChange) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpdates > 0 {
		f.failUpdates--
		return f.updateErr
	}
	p, ok := f.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	if p.Status != from {
		return domain.ErrStatusConflict
	}
	p.Status = to
	if c.TransactionID != nil {
		p.TransactionID = c.TransactionID
	}
	if c.FailureReason != nil {
		p.FailureReason = c.FailureReason
	}
	if c.ProcessedAt != nil {
		p.ProcessedAt = c.ProcessedAt
	}
	f.byID[id] = p
	return nil
}

func (f *fakePayouts) ListReconcilable(_ context.Context, limit int) ([]domain.Payout, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Payout
	for _, p := range f.byID {
		if p.Status.IsActive() && p.TransactionID != nil && len(out) < limit {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakePayouts) ListStaleClaims(_ context.Context, claimedBefore time.Time, limit int) ([]domain.Payout, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Payout
	for _, p := range f.byID {
		if p.Status == domain.PayoutStatusApproved && p.TransactionID == nil &&
			p.DispatchClaimedAt != nil && p.DispatchClaimedAt.Before(claimedBefore) && len(out) < limit {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakePayouts) ReleaseClaim(_ context.Context, id uuid.UUID, claimedBefore time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.byID[id]
	if !ok || p.Status != domain.PayoutStatusApproved || p.TransactionID != nil ||
		p.DispatchClaimedAt == nil || !p.DispatchClaimedAt.Before(claimedBefore) {
		return false, nil
	}
	p.DispatchClaimedAt = nil
	f.byID[id] = p
	return true, nil
}

type fakeAudit struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

func (f *fakeAudit) Create(_ context.Context, _ *sql.Tx, e *domain.AuditEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, *e)
	return nil
}

func (f *fakeAudit) ListByPayout(_ context.Context, id uuid.UUID) ([]domain.AuditEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.AuditEntry
	for _, e := range f.entries {
		if e.PayoutID == id {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeSubjects struct {
	subjects map[uuid.UUID]*domain.Subject
}

func (f *fakeSubjects) Get(_ context.Context, st domain.SubjectType, id uuid.UUID) (*domain.Subject, error) {
	s, ok := f.subjects[id]
	if !ok || s.Type != st {
		return nil, fmt.Errorf("Get: %w", domain.ErrNotFound)
	}
	cp := *s
	return &cp, nil
}

type fakeRecipients struct {
	mu   sync.Mutex
	recs map[string]domain.ProviderRecipient
}

func (f *fakeRecipients) Get(_ context.Context, p domain.Provider, fp string) (*domain.ProviderRecipient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.recs[string(p)+fp]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &r, nil
}

func (f *fakeRecipients) Save(_ context.Context, r *domain.ProviderRecipient) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.recs[string(r.Provider)+r.Fingerprint]; !ok {
		f.recs[string(r.Provider)+r.Fingerprint] = *r
	}
	return nil
}

type fakeTx struct{}

func (fakeTx) WithTx(_ context.Context, fn func(tx *sql.Tx) error) error {
	return fn(nil)
}

type fakeAdapter struct {
	name     domain.Provider
	verified bool

	mu              sync.Mutex
	recipientCalls  int
	transferCalls   int
	createRecipient func(provider.RecipientRequest) (string, error)
	initiate        func(provider.TransferRequest) (provider.TransferResult, error)
	verify          func(string) (provider.TransferResult, error)
	lookup          func(string) (provider.TransferResult, error)
}

func (a *fakeAdapter) Name() domain.Provider { return a.name }

func (a *fakeAdapter) CreateRecipient(_ context.Context, req provider.RecipientRequest) (string, error) {
	a.mu.Lock()
	a.recipientCalls++
	a.mu.Unlock()
	if a.createRecipient != nil {
		return a.createRecipient(req)
	}
	return "RCP_" + req.AccountNumber, nil
}

func (a *fakeAdapter) InitiateTransfer(_ context.Context, req provider.TransferRequest) (provider.TransferResult, error) {
	a.mu.Lock()
	a.transferCalls++
	a.mu.Unlock()
	if a.initiate != nil {
		return a.initiate(req)
	}
	return provider.TransferResult{TransactionID: "TRF_" + req.Reference, Status: provider.StatusPending, RawStatus: "pending"}, nil
}

func (a *fakeAdapter) VerifyTransfer(_ context.Context, txID string) (provider.TransferResult, error) {
	if a.verify != nil {
		return a.verify(txID)
	}
	return provider.TransferResult{TransactionID: txID, Status: provider.StatusPending, RawStatus: "pending"}, nil
}

func (a *fakeAdapter) LookupTransfer(_ context.Context, reference string) (provider.TransferResult, error) {
	if a.lookup != nil {
		return a.lookup(reference)
	}
	return provider.TransferResult{}, fmt.Errorf("LookupTransfer: %s: %w", reference, provider.ErrTransferNotFound)
}

func (a *fakeAdapter) VerifyWebhookSignature([]byte, string) bool { return true }

func (a *fakeAdapter) ParseWebhookEvent([]byte) (provider.Event, error) {
	return provider.Event{}, nil
}

func (a *fakeAdapter) SignatureHeader() string { return "x-test-signature" }

func (a *fakeAdapter) EstimatedDelivery() string {
	if a.name == domain.ProviderStripe {
		return "2-7 business days"
	}
	return "1-3 business days"
}

func (a *fakeAdapter) RequiresVerifiedAccount() bool { return a.verified }

type harness struct {
	svc        *Service
	payouts    *fakePayouts
	audit      *fakeAudit
	subjects   *fakeSubjects
	recipients *fakeRecipients
	paystack   *fakeAdapter
	stripe     *fakeAdapter
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	rates, err := fx.NewRateTable("USD", "NGN", map[string]float64{
		"USD": 1,
		"GBP": 1.25,
		"NGN": 0.0005,
	})
	require.NoError(t, err)
	return newHarnessWith(rates, Config{MinPayoutReference: 100})
}

func newHarnessWith(rates *fx.RateTable, cfg Config) *harness {
	h := &harness{
		payouts:    newFakePayouts(),
		audit:      &fakeAudit{},
		subjects:   &fakeSubjects{subjects: map[uuid.UUID]*domain.Subject{}},
		recipients: &fakeRecipients{recs: map[string]domain.ProviderRecipient{}},
		paystack:   &fakeAdapter{name: domain.ProviderPaystack, verified: true},
		stripe:     &fakeAdapter{name: domain.ProviderStripe},
	}
	h.svc = NewService(
		h.payouts,
		h.audit,
		h.subjects,
		h.recipients,
		fakeTx{},
		provider.NewRouter(h.paystack, h.stripe),
		fees.NewCalculator(fees.DefaultSchedules(), rates),
		rates,
		cfg,
	)
	return h
}

func verifiedBank() domain.BankDetails {
	return domain.BankDetails{
		BankName:      "GTBank",
		AccountNumber: "0123456789",
		AccountName:   "Ada Obi",
		BankCode:      "058",
	}
}

func (h *harness) addCampaign(owner uuid.UUID, currency domain.Currency, raised int64) *domain.Subject {
	s := &domain.Subject{
		Type:            domain.SubjectTypeCampaign,
		ID:              uuid.New(),
		OwnerID:         owner,
		OwnerEmail:      "owner@example.com",
		OwnerName:       "Ada Obi",
		Title:           "School roof",
		Currency:        currency,
		RaisedAmount:    raised,
		Bank:            verifiedBank(),
		AccountVerified: true,
	}
	h.subjects.subjects[s.ID] = s
	return s
}

// seedPayout stores a payout in the given status for a fresh campaign.
func (h *harness) seedPayout(status domain.PayoutStatus, p domain.Provider, currency domain.Currency) domain.Payout {
	owner := uuid.New()
	subject := h.addCampaign(owner, currency, 1_000_000)
	now := time.Now().UTC()
	po := domain.Payout{
		ID:              uuid.New(),
		Reference:       newReference(now.Format("20060102150405"), subject.ID),
		SubjectType:     domain.SubjectTypeCampaign,
		SubjectID:       subject.ID,
		RequestedBy:     owner,
		RequestedAmount: 100000,
		GrossAmount:     100000,
		Fees:            1500,
		NetAmount:       98500,
		Currency:        currency,
		Provider:        p,
		Status:          status,
		Bank:            verifiedBank(),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if status == domain.PayoutStatusProcessing {
		txID := "TRF_" + po.Reference
		po.TransactionID = &txID
	}
	h.payouts.put(po)
	return po
}
