package postgres_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediandev/prosellerv1-sub003/ledger"
	"github.com/mediandev/prosellerv1-sub003/store/postgres"
)

func setupTestDB(t *testing.T) *postgres.Store {
	_ = godotenv.Load("../../.env")

	// Reset truncates every table, so only a dedicated test database is used.
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	store, err := postgres.New(ctx, dbURL)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.Reset(ctx))
	return store
}

func TestPostgres_NumericPrecision(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	at := time.Date(2025, 10, 3, 12, 0, 0, 0, time.UTC)

	e := ledger.Entry{
		ID: "e1", Kind: ledger.KindCredit, SellerID: "s1", Period: "2025-10",
		Date: at, Amount: decimal.RequireFromString("0.1"), Description: "x",
		CreatedBy: "ops", CreatedAt: at,
	}
	require.NoError(t, store.CreateEntry(ctx, e))
	e.ID, e.Amount = "e2", decimal.RequireFromString("0.2")
	require.NoError(t, store.CreateEntry(ctx, e))

	entries, err := store.ListEntries(ctx, ledger.Key{SellerID: "s1", Period: "2025-10"})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	sum := entries[0].Amount.Add(entries[1].Amount)
	assert.Equal(t, "0.3", sum.String())
	assert.True(t, entries[0].Date.Equal(at))
}

func TestPostgres_DuplicateIdempotencyKey(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	at := time.Now().UTC()

	e := ledger.Entry{
		ID: "e1", Kind: ledger.KindPayment, SellerID: "s1", Period: "2025-10",
		Date: at, Amount: decimal.NewFromInt(5), PaymentMethod: "pix",
		IdempotencyKey: "k", CreatedBy: "ops", CreatedAt: at,
	}
	require.NoError(t, store.CreateEntry(ctx, e))
	e.ID = "e2"
	assert.ErrorIs(t, store.CreateEntry(ctx, e), ledger.ErrDuplicateIdempotencyKey)
}

func TestPostgres_WithTxRollsBack(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	at := time.Now().UTC()

	rec := ledger.PeriodRecord{
		ID: "r1", SellerID: "s1", Period: "2025-10", PeriodType: ledger.PeriodMonthly,
		Status: ledger.StatusOpen, GeneratedAt: at,
		PriorBalance: decimal.Zero, NetLiability: decimal.NewFromInt(10),
		TotalPaid: decimal.Zero, Balance: decimal.NewFromInt(10),
	}
	require.NoError(t, store.CreatePeriod(ctx, rec))

	boom := errors.New("boom")
	err := store.WithTx(ctx, func(s ledger.Store) error {
		locked, err := s.GetPeriod(ctx, rec.Key())
		require.NoError(t, err)
		locked.Balance = decimal.Zero
		require.NoError(t, s.UpdatePeriod(ctx, locked))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := store.GetPeriod(ctx, rec.Key())
	require.NoError(t, err)
	assert.Equal(t, "10", got.Balance.String())
}

func TestPostgres_LedgerEndToEnd(t *testing.T) {
	// GIVEN: a seller with a commission, a credit and a debit
	// WHEN: the period is closed and paid in full
	// THEN: the period is paid and the audit trail is complete

	store := setupTestDB(t)
	ctx := context.Background()
	require.NoError(t, store.SaveSeller(ctx, ledger.Seller{ID: "s1", Name: "Ana Souza"}))

	l := ledger.New(store, ledger.Options{Directory: store})
	k := ledger.Key{SellerID: "s1", Period: "2025-10"}

	_, err := l.RecordCommission(ctx, "feed", ledger.CommissionInput{
		SellerID: "s1", Period: "2025-10", SaleID: "sale-1",
		CommissionAmount: decimal.NewFromInt(1000), Rule: ledger.RuleFixedSellerRate,
	})
	require.NoError(t, err)
	_, err = l.AddManualEntry(ctx, "ops", ledger.ManualEntryInput{
		SellerID: "s1", Period: "2025-10", Kind: ledger.KindCredit,
		Amount: decimal.NewFromInt(200), Description: "bonus",
	})
	require.NoError(t, err)
	_, err = l.AddManualEntry(ctx, "ops", ledger.ManualEntryInput{
		SellerID: "s1", Period: "2025-10", Kind: ledger.KindDebit,
		Amount: decimal.NewFromInt(50), Description: "sample",
	})
	require.NoError(t, err)

	_, err = l.Close(ctx, "ops", k)
	require.NoError(t, err)
	_, err = l.RegisterPayment(ctx, "ops", ledger.PaymentInput{
		SellerID: "s1", Period: "2025-10", Amount: decimal.NewFromInt(1150), PaymentMethod: "pix",
	})
	require.NoError(t, err)

	st, err := l.Statement(ctx, k)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPaid, st.Record.Status)
	assert.True(t, st.Record.Balance.IsZero())
	require.NotNil(t, st.Seller)
	assert.Equal(t, "AS", st.Seller.Initials)

	audit, err := l.Audit(ctx, ledger.AuditFilter{SellerID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, ledger.AuditPeriodPaid, audit[len(audit)-1].Action)

	run, err := l.ReconcileAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, run.Drifted)
}

func TestPostgres_TwoLedgersShareKeyLocks(t *testing.T) {
	// GIVEN: two ledgers over one database, as two service instances would be
	// WHEN: both post commissions to the same new period concurrently
	// THEN: no write is lost and exactly one period record exists

	store := setupTestDB(t)
	ctx := context.Background()
	a := ledger.New(store, ledger.Options{})
	b := ledger.New(store, ledger.Options{})

	const perLedger = 10
	var wg sync.WaitGroup
	errs := make(chan error, 2*perLedger)
	for i, l := range []*ledger.Ledger{a, b} {
		for j := 0; j < perLedger; j++ {
			wg.Add(1)
			go func(l *ledger.Ledger, sale string) {
				defer wg.Done()
				_, err := l.RecordCommission(ctx, "feed", ledger.CommissionInput{
					SellerID: "s1", Period: "2025-10", SaleID: sale,
					CommissionAmount: decimal.NewFromInt(1), Rule: ledger.RuleFixedSellerRate,
				})
				errs <- err
			}(l, fmt.Sprintf("sale-%d-%d", i, j))
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	periods, err := store.ListPeriods(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, periods, 1)
	assert.True(t, decimal.NewFromInt(20).Equal(periods[0].NetLiability), "net liability %s", periods[0].NetLiability)
}
