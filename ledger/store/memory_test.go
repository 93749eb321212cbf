package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediandev/prosellerv1-sub003/ledger"
)

func testEntry(id string, period ledger.PeriodKey, day int) ledger.Entry {
	return ledger.Entry{
		ID:        ledger.EntryID(id),
		Kind:      ledger.KindCredit,
		SellerID:  "s1",
		Period:    period,
		Date:      time.Date(2025, 10, day, 0, 0, 0, 0, time.UTC),
		Amount:    decimal.NewFromInt(10),
		CreatedAt: time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC),
	}
}

func testPeriod(seller ledger.SellerID, period ledger.PeriodKey, balance int64) ledger.PeriodRecord {
	return ledger.PeriodRecord{
		ID:         ledger.RecordID(string(seller) + "-" + string(period)),
		SellerID:   seller,
		Period:     period,
		PeriodType: period.Type(),
		Status:     ledger.StatusOpen,
		Balance:    decimal.NewFromInt(balance),
	}
}

func TestMemory_WithTxRollsBack(t *testing.T) {
	// GIVEN: a committed entry
	// WHEN: a transaction writes more and then fails
	// THEN: only the committed entry survives

	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.CreateEntry(ctx, testEntry("e1", "2025-10", 1)))

	boom := errors.New("boom")
	err := m.WithTx(ctx, func(s ledger.Store) error {
		require.NoError(t, s.CreateEntry(ctx, testEntry("e2", "2025-10", 2)))
		require.NoError(t, s.CreatePeriod(ctx, testPeriod("s1", "2025-10", 0)))
		require.NoError(t, s.AppendAudit(ctx, ledger.AuditEntry{ID: "a1"}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	entries, err := m.ListEntries(ctx, ledger.Key{SellerID: "s1", Period: "2025-10"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ledger.EntryID("e1"), entries[0].ID)

	_, err = m.GetPeriod(ctx, ledger.Key{SellerID: "s1", Period: "2025-10"})
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	audit, err := m.QueryAudit(ctx, ledger.AuditFilter{})
	require.NoError(t, err)
	assert.Empty(t, audit)
}

func TestMemory_WithTxCommits(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	err := m.WithTx(ctx, func(s ledger.Store) error {
		if err := s.CreateEntry(ctx, testEntry("e1", "2025-10", 1)); err != nil {
			return err
		}
		_, err := s.GetEntry(ctx, "e1")
		return err
	})
	require.NoError(t, err)

	_, err = m.GetEntry(ctx, "e1")
	assert.NoError(t, err)
}

func TestMemory_IdempotencyKey(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	e1 := testEntry("e1", "2025-10", 1)
	e1.IdempotencyKey = "k"
	e2 := testEntry("e2", "2025-10", 1)
	e2.IdempotencyKey = "k"

	require.NoError(t, m.CreateEntry(ctx, e1))
	assert.ErrorIs(t, m.CreateEntry(ctx, e2), ledger.ErrDuplicateIdempotencyKey)

	// A rolled back create releases its key.
	m2 := NewMemory()
	_ = m2.WithTx(ctx, func(s ledger.Store) error {
		_ = s.CreateEntry(ctx, e1)
		return errors.New("abort")
	})
	assert.NoError(t, m2.CreateEntry(ctx, e2))
}

func TestMemory_ListEntriesOrdered(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.CreateEntry(ctx, testEntry("late", "2025-10", 20)))
	require.NoError(t, m.CreateEntry(ctx, testEntry("early", "2025-10", 2)))
	require.NoError(t, m.CreateEntry(ctx, testEntry("other", "2025-09", 1)))

	entries, err := m.ListEntries(ctx, ledger.Key{SellerID: "s1", Period: "2025-10"})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, ledger.EntryID("early"), entries[0].ID)
	assert.Equal(t, ledger.EntryID("late"), entries[1].ID)
}

func TestMemory_UpdateMissing(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	assert.ErrorIs(t, m.UpdateEntry(ctx, testEntry("nope", "2025-10", 1)), ledger.ErrNotFound)
	assert.ErrorIs(t, m.UpdatePeriod(ctx, testPeriod("s1", "2025-10", 0)), ledger.ErrNotFound)
}

func TestMemory_LatestPeriodBefore(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	for _, r := range []ledger.PeriodRecord{
		testPeriod("s1", "2025-07", 7),
		testPeriod("s1", "2025-08", 8),
		testPeriod("s1", "2025-11", 11),
		testPeriod("s1", "2025", 2025),
		testPeriod("s2", "2025-09", 9),
	} {
		require.NoError(t, m.CreatePeriod(ctx, r))
	}

	got, err := m.LatestPeriodBefore(ctx, "s1", "2025-10")
	require.NoError(t, err)
	assert.Equal(t, ledger.PeriodKey("2025-08"), got.Period)

	got, err = m.LatestPeriodBefore(ctx, "s1", "2026")
	require.NoError(t, err)
	assert.Equal(t, ledger.PeriodKey("2025"), got.Period)

	_, err = m.LatestPeriodBefore(ctx, "s1", "2025-07")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestMemory_ListPeriodsSorted(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.CreatePeriod(ctx, testPeriod("s2", "2025-01", 0)))
	require.NoError(t, m.CreatePeriod(ctx, testPeriod("s1", "2025-10", 0)))
	require.NoError(t, m.CreatePeriod(ctx, testPeriod("s1", "2025-02", 0)))

	all, err := m.ListAllPeriods(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, ledger.Key{SellerID: "s1", Period: "2025-02"}, all[0].Key())
	assert.Equal(t, ledger.Key{SellerID: "s1", Period: "2025-10"}, all[1].Key())
	assert.Equal(t, ledger.Key{SellerID: "s2", Period: "2025-01"}, all[2].Key())

	s1, err := m.ListPeriods(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, s1, 2)
}

func TestMemory_AuditFilter(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.AppendAudit(ctx, ledger.AuditEntry{ID: "1", SellerID: "s1", Period: "2025-10"}))
	require.NoError(t, m.AppendAudit(ctx, ledger.AuditEntry{ID: "2", SellerID: "s1", Period: "2025-09", EntryID: "e"}))
	require.NoError(t, m.AppendAudit(ctx, ledger.AuditEntry{ID: "3", SellerID: "s2", Period: "2025-10"}))

	got, err := m.QueryAudit(ctx, ledger.AuditFilter{SellerID: "s1"})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = m.QueryAudit(ctx, ledger.AuditFilter{EntryID: "e"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "2", got[0].ID)
}

func TestMemory_RunsNewestFirst(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	for _, id := range []string{"r1", "r2", "r3"} {
		require.NoError(t, m.SaveRun(ctx, ledger.ReconciliationRun{ID: id}))
	}

	runs, err := m.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "r3", runs[0].ID)
	assert.Equal(t, "r2", runs[1].ID)
}

func TestMemory_Sellers(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.SaveSeller(ctx, ledger.Seller{ID: "b", Name: "Bruno Lima"}))
	require.NoError(t, m.SaveSeller(ctx, ledger.Seller{ID: "a", Name: "Ana Souza", Initials: "AN"}))

	got, err := m.Lookup(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, "BL", got.Initials)

	_, err = m.Lookup(ctx, "zz")
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	all, err := m.ListSellers(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, ledger.SellerID("a"), all[0].ID)
	assert.Equal(t, "AN", all[0].Initials, "explicit initials are kept")

	require.NoError(t, m.Reset(ctx))
	all, err = m.ListSellers(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}
