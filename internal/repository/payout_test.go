package repository_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/chainfund-payouts/internal/domain"
	"github.com/josh-kwaku/chainfund-payouts/internal/repository"
	"github.com/josh-kwaku/chainfund-payouts/internal/testutil"
)

func newPayout(subjectID, requestedBy uuid.UUID, amount int64) *domain.Payout {
	now := time.Now().UTC()
	return &domain.Payout{
		ID:              uuid.New(),
		Reference:       "PAY-" + uuid.NewString()[:8],
		SubjectType:     domain.SubjectTypeCampaign,
		SubjectID:       subjectID,
		RequestedBy:     requestedBy,
		RequestedAmount: amount,
		GrossAmount:     amount,
		Fees:            0,
		NetAmount:       amount,
		Currency:        domain.CurrencyNGN,
		Provider:        domain.ProviderPaystack,
		Status:          domain.PayoutStatusPending,
		Bank:            testutil.VerifiedBank,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func createPayout(t *testing.T, db *repository.DB, repo *repository.PayoutRepository, p *domain.Payout) {
	t.Helper()
	err := db.WithTx(context.Background(), func(tx *sql.Tx) error {
		return repo.Create(context.Background(), tx, p)
	})
	require.NoError(t, err)
}

func moveStatus(t *testing.T, db *repository.DB, repo *repository.PayoutRepository, id uuid.UUID, from, to domain.PayoutStatus, upd domain.StatusChange) {
	t.Helper()
	err := db.WithTx(context.Background(), func(tx *sql.Tx) error {
		return repo.UpdateStatus(context.Background(), tx, id, from, to, upd)
	})
	require.NoError(t, err)
}

func TestPayoutRepository(t *testing.T) {
	conn := testutil.SetupTestDB(t)
	db := repository.NewDB(conn)
	repo := repository.NewPayoutRepository(conn)
	ctx := context.Background()

	owner := testutil.SeedUser(t, conn, "owner@example.com", "Ada Obi", "user")

	t.Run("create and read back", func(t *testing.T) {
		campaign := testutil.SeedCampaign(t, conn, owner, "NGN", 500000)
		p := newPayout(campaign, owner, 200000)
		createPayout(t, db, repo, p)

		got, err := repo.GetByID(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, p.Reference, got.Reference)
		assert.Equal(t, domain.PayoutStatusPending, got.Status)
		assert.Equal(t, testutil.VerifiedBank, got.Bank)
		assert.Nil(t, got.TransactionID)

		byRef, err := repo.GetByReference(ctx, p.Reference)
		require.NoError(t, err)
		assert.Equal(t, p.ID, byRef.ID)

		active, err := repo.GetActiveBySubject(ctx, domain.SubjectTypeCampaign, campaign)
		require.NoError(t, err)
		assert.Equal(t, p.ID, active.ID)
	})

	t.Run("missing payout is not found", func(t *testing.T) {
		_, err := repo.GetByID(ctx, uuid.New())
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("second active payout for a subject is rejected", func(t *testing.T) {
		campaign := testutil.SeedCampaign(t, conn, owner, "NGN", 500000)
		createPayout(t, db, repo, newPayout(campaign, owner, 100000))

		err := db.WithTx(ctx, func(tx *sql.Tx) error {
			return repo.Create(ctx, tx, newPayout(campaign, owner, 50000))
		})
		assert.ErrorIs(t, err, domain.ErrDuplicateActiveRequest)
	})

	t.Run("concurrent requests leave exactly one active payout", func(t *testing.T) {
		campaign := testutil.SeedCampaign(t, conn, owner, "NGN", 500000)

		const workers = 8
		var wg sync.WaitGroup
		errs := make([]error, workers)
		for i := range workers {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs[i] = db.WithTx(ctx, func(tx *sql.Tx) error {
					return repo.Create(ctx, tx, newPayout(campaign, owner, 10000))
				})
			}(i)
		}
		wg.Wait()

		var ok, dup int
		for _, err := range errs {
			switch {
			case err == nil:
				ok++
			case errors.Is(err, domain.ErrDuplicateActiveRequest):
				dup++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}
		assert.Equal(t, 1, ok)
		assert.Equal(t, workers-1, dup)
	})

	t.Run("terminal payout frees the subject", func(t *testing.T) {
		campaign := testutil.SeedCampaign(t, conn, owner, "NGN", 500000)
		first := newPayout(campaign, owner, 100000)
		createPayout(t, db, repo, first)

		reason := "rejected by admin"
		moveStatus(t, db, repo, first.ID, domain.PayoutStatusPending, domain.PayoutStatusFailed,
			domain.StatusChange{FailureReason: &reason})

		createPayout(t, db, repo, newPayout(campaign, owner, 100000))
	})

	t.Run("stale status update conflicts", func(t *testing.T) {
		campaign := testutil.SeedCampaign(t, conn, owner, "NGN", 500000)
		p := newPayout(campaign, owner, 100000)
		createPayout(t, db, repo, p)
		moveStatus(t, db, repo, p.ID, domain.PayoutStatusPending, domain.PayoutStatusApproved, domain.StatusChange{})

		err := db.WithTx(ctx, func(tx *sql.Tx) error {
			return repo.UpdateStatus(ctx, tx, p.ID, domain.PayoutStatusPending, domain.PayoutStatusFailed, domain.StatusChange{})
		})
		assert.ErrorIs(t, err, domain.ErrStatusConflict)
		assert.Equal(t, domain.PayoutStatusApproved, testutil.PayoutStatus(t, conn, p.ID))
	})

	t.Run("processing requires a transaction id", func(t *testing.T) {
		campaign := testutil.SeedCampaign(t, conn, owner, "NGN", 500000)
		p := newPayout(campaign, owner, 100000)
		createPayout(t, db, repo, p)
		moveStatus(t, db, repo, p.ID, domain.PayoutStatusPending, domain.PayoutStatusApproved, domain.StatusChange{})

		err := db.WithTx(ctx, func(tx *sql.Tx) error {
			return repo.UpdateStatus(ctx, tx, p.ID, domain.PayoutStatusApproved, domain.PayoutStatusProcessing, domain.StatusChange{})
		})
		require.Error(t, err)

		txID := "TRF_" + uuid.NewString()[:8]
		moveStatus(t, db, repo, p.ID, domain.PayoutStatusApproved, domain.PayoutStatusProcessing,
			domain.StatusChange{TransactionID: &txID})

		got, err := repo.GetByTransactionID(ctx, txID)
		require.NoError(t, err)
		assert.Equal(t, p.ID, got.ID)
		assert.Equal(t, domain.PayoutStatusProcessing, got.Status)
	})

	t.Run("dispatch claim is granted once", func(t *testing.T) {
		campaign := testutil.SeedCampaign(t, conn, owner, "NGN", 500000)
		p := newPayout(campaign, owner, 100000)
		createPayout(t, db, repo, p)

		claimed, err := repo.ClaimForDispatch(ctx, p.ID, time.Now().UTC())
		require.NoError(t, err)
		assert.False(t, claimed, "pending payouts cannot be claimed")

		moveStatus(t, db, repo, p.ID, domain.PayoutStatusPending, domain.PayoutStatusApproved, domain.StatusChange{})

		var wg sync.WaitGroup
		results := make([]bool, 5)
		for i := range results {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i], _ = repo.ClaimForDispatch(ctx, p.ID, time.Now().UTC())
			}(i)
		}
		wg.Wait()

		var granted int
		for _, ok := range results {
			if ok {
				granted++
			}
		}
		assert.Equal(t, 1, granted)
	})

	t.Run("reconcilable payouts carry a transaction id", func(t *testing.T) {
		campaign := testutil.SeedCampaign(t, conn, owner, "NGN", 500000)
		p := newPayout(campaign, owner, 100000)
		createPayout(t, db, repo, p)
		moveStatus(t, db, repo, p.ID, domain.PayoutStatusPending, domain.PayoutStatusApproved, domain.StatusChange{})
		txID := fmt.Sprintf("TRF_%d", time.Now().UnixNano())
		moveStatus(t, db, repo, p.ID, domain.PayoutStatusApproved, domain.PayoutStatusProcessing,
			domain.StatusChange{TransactionID: &txID})

		list, err := repo.ListReconcilable(ctx, 100)
		require.NoError(t, err)

		var found bool
		for _, got := range list {
			require.NotNil(t, got.TransactionID)
			if got.ID == p.ID {
				found = true
			}
		}
		assert.True(t, found)
	})

	t.Run("stale claims can be listed and released", func(t *testing.T) {
		campaign := testutil.SeedCampaign(t, conn, owner, "NGN", 500000)
		p := newPayout(campaign, owner, 100000)
		createPayout(t, db, repo, p)
		moveStatus(t, db, repo, p.ID, domain.PayoutStatusPending, domain.PayoutStatusApproved, domain.StatusChange{})

		claimedAt := time.Now().UTC().Add(-time.Hour)
		claimed, err := repo.ClaimForDispatch(ctx, p.ID, claimedAt)
		require.NoError(t, err)
		require.True(t, claimed)

		fresh, err := repo.ListStaleClaims(ctx, claimedAt.Add(-time.Minute), 100)
		require.NoError(t, err)
		for _, got := range fresh {
			assert.NotEqual(t, p.ID, got.ID, "claim is newer than the cutoff")
		}

		cutoff := time.Now().UTC().Add(-15 * time.Minute)
		stale, err := repo.ListStaleClaims(ctx, cutoff, 100)
		require.NoError(t, err)
		var found bool
		for _, got := range stale {
			if got.ID == p.ID {
				found = true
				assert.NotNil(t, got.DispatchClaimedAt)
			}
		}
		assert.True(t, found)

		released, err := repo.ReleaseClaim(ctx, p.ID, cutoff)
		require.NoError(t, err)
		assert.True(t, released)

		again, err := repo.ReleaseClaim(ctx, p.ID, cutoff)
		require.NoError(t, err)
		assert.False(t, again)

		got, err := repo.GetByID(ctx, p.ID)
		require.NoError(t, err)
		assert.Nil(t, got.DispatchClaimedAt)
		assert.Equal(t, domain.PayoutStatusApproved, got.Status)
	})

	t.Run("processed_at is reserved for completed payouts", func(t *testing.T) {
		campaign := testutil.SeedCampaign(t, conn, owner, "NGN", 500000)
		p := newPayout(campaign, owner, 100000)
		createPayout(t, db, repo, p)

		now := time.Now().UTC()
		reason := "rejected"
		err := db.WithTx(ctx, func(tx *sql.Tx) error {
			return repo.UpdateStatus(ctx, tx, p.ID, domain.PayoutStatusPending, domain.PayoutStatusFailed,
				domain.StatusChange{FailureReason: &reason, ProcessedAt: &now})
		})
		require.Error(t, err)

		got, err := repo.GetByID(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.PayoutStatusPending, got.Status)
		assert.Nil(t, got.ProcessedAt)
	})
}

func TestPayoutRepository_ForUpdateLocksRow(t *testing.T) {
	conn := testutil.SetupTestDB(t)
	db := repository.NewDB(conn)
	repo := repository.NewPayoutRepository(conn)
	ctx := context.Background()

	owner := testutil.SeedUser(t, conn, "lock@example.com", "Lock Owner", "user")
	campaign := testutil.SeedCampaign(t, conn, owner, "NGN", 500000)
	p := newPayout(campaign, owner, 100000)
	createPayout(t, db, repo, p)

	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	defer tx.Rollback()

	locked, err := repo.GetForUpdate(ctx, tx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, locked.ID)

	waitCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	err = db.WithTx(waitCtx, func(other *sql.Tx) error {
		_, err := repo.GetForUpdate(waitCtx, other, p.ID)
		return err
	})
	assert.Error(t, err, "second locker should block until the deadline")

	_, err = repo.GetForUpdate(ctx, tx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
