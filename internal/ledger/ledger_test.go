package ledger_test

import (
	"context"
	"testing"

	"github.com/cuongbtq/jobledger/internal/domain"
	"github.com/cuongbtq/jobledger/internal/ledger"
	"github.com/cuongbtq/jobledger/internal/storage"
	"github.com/cuongbtq/jobledger/internal/storage/storagetest"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func setup(t *testing.T, credits int64) (*ledger.Ledger, *sqlx.DB, context.Context) {
	t.Helper()
	db := storagetest.NewDB(t)
	storagetest.SeedUser(t, db, "user-1", credits)
	return ledger.New(db, storagetest.Logger()), db, context.Background()
}

func debit(ctx context.Context, l *ledger.Ledger, db *sqlx.DB, jobID string, amount int64) (bool, error) {
	var applied bool
	err := storage.WithTx(ctx, db, func(tx *sqlx.Tx) error {
		var err error
		applied, err = l.Debit(ctx, tx, ledger.Entry{
			UserID: "user-1",
			JobID:  jobID,
			Amount: amount,
			Reason: domain.ReasonJobCharge,
		})
		return err
	})
	return applied, err
}

func assertConsistent(t *testing.T, l *ledger.Ledger, wantBalance int64) {
	t.Helper()
	audit, err := l.Audit(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, wantBalance, audit.Balance)
	assert.True(t, audit.Consistent(), "balance %d != ledger sum %d", audit.Balance, audit.LedgerSum)
}

func TestDebit(t *testing.T) {
	tests := []struct {
		name        string
		credits     int64
		amount      int64
		wantApplied bool
		wantErr     error
		wantBalance int64
	}{
		{name: "sufficient balance", credits: 3, amount: 1, wantApplied: true, wantBalance: 2},
		{name: "exact balance", credits: 1, amount: 1, wantApplied: true, wantBalance: 0},
		{name: "insufficient balance", credits: 0, amount: 1, wantErr: domain.ErrInsufficientCredits, wantBalance: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, db, ctx := setup(t, tt.credits)

			applied, err := debit(ctx, l, db, "job-1", tt.amount)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantApplied, applied)
			assertConsistent(t, l, tt.wantBalance)
		})
	}
}

func TestDebit_UnknownUser(t *testing.T) {
	l, db, ctx := setup(t, 0)

	err := storage.WithTx(ctx, db, func(tx *sqlx.Tx) error {
		_, err := l.Debit(ctx, tx, ledger.Entry{UserID: "ghost", JobID: "job-1", Amount: 1, Reason: domain.ReasonJobCharge})
		return err
	})
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestDebit_IsIdempotentPerJob(t *testing.T) {
	l, db, ctx := setup(t, 5)

	applied, err := debit(ctx, l, db, "job-1", 2)
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = debit(ctx, l, db, "job-1", 2)
	require.NoError(t, err)
	assert.False(t, applied)

	assertConsistent(t, l, 3)

	txs, err := l.JobTransactions(ctx, "job-1")
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, domain.TransactionDeduction, txs[0].Type)
	assert.Equal(t, int64(-2), txs[0].Amount)
	assert.Contains(t, txs[0].Metadata, `"job_id":"job-1"`)
}

func TestRefundJob(t *testing.T) {
	l, db, ctx := setup(t, 2)

	_, err := debit(ctx, l, db, "job-1", 2)
	require.NoError(t, err)
	assertConsistent(t, l, 0)

	refund := func() (bool, error) {
		var applied bool
		err := storage.WithTx(ctx, db, func(tx *sqlx.Tx) error {
			var err error
			applied, err = l.RefundJob(ctx, tx, "user-1", "job-1", domain.ReasonJobFailureExhausted)
			return err
		})
		return applied, err
	}

	applied, err := refund()
	require.NoError(t, err)
	assert.True(t, applied)
	assertConsistent(t, l, 2)

	// A second refund for the same job never double-credits
	applied, err = refund()
	require.NoError(t, err)
	assert.False(t, applied)
	assertConsistent(t, l, 2)

	txs, err := l.JobTransactions(ctx, "job-1")
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, domain.TransactionRefund, txs[1].Type)
	assert.Equal(t, int64(2), txs[1].Amount)
	assert.Equal(t, domain.ReasonJobFailureExhausted, txs[1].Reason)
}

func TestRefundJob_NeverCharged(t *testing.T) {
	l, db, ctx := setup(t, 1)

	err := storage.WithTx(ctx, db, func(tx *sqlx.Tx) error {
		applied, err := l.RefundJob(ctx, tx, "user-1", "free-job", domain.ReasonJobFailureFatal)
		assert.False(t, applied)
		return err
	})
	require.NoError(t, err)
	assertConsistent(t, l, 1)
}

func TestPurchase(t *testing.T) {
	l, _, ctx := setup(t, 0)

	applied, err := l.Purchase(ctx, "user-1", 10, "cs_123", domain.ReasonPurchase)
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = l.Purchase(ctx, "user-1", 10, "cs_123", domain.ReasonPurchase)
	require.NoError(t, err)
	assert.False(t, applied)

	assertConsistent(t, l, 10)

	// New users are created on first purchase
	applied, err = l.Purchase(ctx, "user-2", 4, "", domain.ReasonAdminGrant)
	require.NoError(t, err)
	assert.True(t, applied)

	balance, err := l.Balance(ctx, "user-2")
	require.NoError(t, err)
	assert.Equal(t, int64(4), balance)

	_, err = l.Purchase(ctx, "user-1", 0, "cs_456", domain.ReasonPurchase)
	var vErr *domain.ValidationError
	assert.ErrorAs(t, err, &vErr)
}

func TestBalance_UnknownUser(t *testing.T) {
	l, _, ctx := setup(t, 0)

	_, err := l.Balance(ctx, "ghost")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)

	_, err = l.Audit(ctx, "ghost")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestConcurrentDebits_NeverOverdraw(t *testing.T) {
	l, db, ctx := setup(t, 3)

	var g errgroup.Group
	results := make([]error, 10)
	for i := range results {
		i := i
		g.Go(func() error {
			_, results[i] = debit(ctx, l, db, "job-"+string(rune('a'+i)), 1)
			return nil
		})
	}
	require.NoError(t, g.Wait())

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrInsufficientCredits)
	}
	assert.Equal(t, 3, succeeded)
	assertConsistent(t, l, 0)
}

func TestAuditAll(t *testing.T) {
	l, db, ctx := setup(t, 2)
	storagetest.SeedUser(t, db, "user-0", 0)

	results, err := l.AuditAll(ctx)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "user-0", results[0].UserID)
	assert.Equal(t, int64(0), results[0].Transactions)
	assert.Equal(t, "user-1", results[1].UserID)
	assert.Equal(t, int64(2), results[1].LedgerSum)
	for _, r := range results {
		assert.True(t, r.Consistent())
	}
}
