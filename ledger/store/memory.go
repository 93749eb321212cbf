// Package store provides in-process ledger.TxStore implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/mediandev/prosellerv1-sub003/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements ledger.TxStore, ledger.RunStore and
// ledger.SellerDirectory. Transactions are simulated with a snapshot that
// is restored if the unit of work fails.
type Memory struct {
	mu          sync.RWMutex
	entries     map[ledger.EntryID]ledger.Entry
	idempotency map[string]ledger.EntryID
	periods     map[ledger.Key]ledger.PeriodRecord
	audit       []ledger.AuditEntry
	runs        []ledger.ReconciliationRun
	sellers     map[ledger.SellerID]ledger.Seller
}

func NewMemory() *Memory {
	m := &Memory{}
	m.reset()
	return m
}

func (m *Memory) reset() {
	m.entries = make(map[ledger.EntryID]ledger.Entry)
	m.idempotency = make(map[string]ledger.EntryID)
	m.periods = make(map[ledger.Key]ledger.PeriodRecord)
	m.audit = nil
	m.runs = nil
	m.sellers = make(map[ledger.SellerID]ledger.Seller)
}

// Reset clears all data (for testing/demo).
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reset()
	return nil
}

// Close is a no-op so Memory can stand in for the SQL stores.
func (m *Memory) Close() error { return nil }

// =============================================================================
// PUBLIC METHODS - Take the store lock, delegate to *Locked helpers
// =============================================================================

func (m *Memory) CreateEntry(_ context.Context, e ledger.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createEntryLocked(e)
}

func (m *Memory) UpdateEntry(_ context.Context, e ledger.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateEntryLocked(e)
}

func (m *Memory) GetEntry(_ context.Context, id ledger.EntryID) (ledger.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getEntryLocked(id)
}

func (m *Memory) ListEntries(_ context.Context, key ledger.Key) ([]ledger.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listEntriesLocked(key), nil
}

func (m *Memory) GetPeriod(_ context.Context, key ledger.Key) (ledger.PeriodRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getPeriodLocked(key)
}

func (m *Memory) LatestPeriodBefore(_ context.Context, seller ledger.SellerID, period ledger.PeriodKey) (ledger.PeriodRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latestBeforeLocked(seller, period)
}

func (m *Memory) CreatePeriod(_ context.Context, r ledger.PeriodRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createPeriodLocked(r)
}

func (m *Memory) UpdatePeriod(_ context.Context, r ledger.PeriodRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updatePeriodLocked(r)
}

func (m *Memory) ListPeriods(_ context.Context, seller ledger.SellerID) ([]ledger.PeriodRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listPeriodsLocked(seller), nil
}

func (m *Memory) ListAllPeriods(_ context.Context) ([]ledger.PeriodRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listPeriodsLocked(""), nil
}

func (m *Memory) AppendAudit(_ context.Context, a ledger.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit = append(m.audit, a)
	return nil
}

func (m *Memory) QueryAudit(_ context.Context, f ledger.AuditFilter) ([]ledger.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.queryAuditLocked(f), nil
}

// =============================================================================
// RECONCILIATION RUNS / SELLERS
// =============================================================================

func (m *Memory) SaveRun(_ context.Context, run ledger.ReconciliationRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, run)
	return nil
}

func (m *Memory) ListRuns(_ context.Context, limit int) ([]ledger.ReconciliationRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ledger.ReconciliationRun
	for i := len(m.runs) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, m.runs[i])
	}
	return out, nil
}

// SaveSeller inserts or replaces a seller. Initials are derived from the
// name when empty.
func (m *Memory) SaveSeller(_ context.Context, s ledger.Seller) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.Initials == "" {
		s.Initials = ledger.Initials(s.Name)
	}
	m.sellers[s.ID] = s
	return nil
}

func (m *Memory) Lookup(_ context.Context, id ledger.SellerID) (ledger.Seller, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sellers[id]
	if !ok {
		return ledger.Seller{}, ledger.ErrNotFound
	}
	return s, nil
}

func (m *Memory) ListSellers(_ context.Context) ([]ledger.Seller, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ledger.Seller, 0, len(m.sellers))
	for _, s := range m.sellers {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// =============================================================================
// LOCKED HELPERS - Caller holds m.mu
// =============================================================================

func (m *Memory) createEntryLocked(e ledger.Entry) error {
	if e.IdempotencyKey != "" {
		if _, dup := m.idempotency[e.IdempotencyKey]; dup {
			return ledger.ErrDuplicateIdempotencyKey
		}
	}
	m.entries[e.ID] = e
	if e.IdempotencyKey != "" {
		m.idempotency[e.IdempotencyKey] = e.ID
	}
	return nil
}

func (m *Memory) updateEntryLocked(e ledger.Entry) error {
	if _, ok := m.entries[e.ID]; !ok {
		return ledger.ErrNotFound
	}
	m.entries[e.ID] = e
	return nil
}

func (m *Memory) getEntryLocked(id ledger.EntryID) (ledger.Entry, error) {
	e, ok := m.entries[id]
	if !ok {
		return ledger.Entry{}, ledger.ErrNotFound
	}
	return e, nil
}

func (m *Memory) listEntriesLocked(key ledger.Key) []ledger.Entry {
	var out []ledger.Entry
	for _, e := range m.entries {
		if e.Key() == key {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (m *Memory) getPeriodLocked(key ledger.Key) (ledger.PeriodRecord, error) {
	r, ok := m.periods[key]
	if !ok {
		return ledger.PeriodRecord{}, ledger.ErrNotFound
	}
	return r, nil
}

func (m *Memory) latestBeforeLocked(seller ledger.SellerID, period ledger.PeriodKey) (ledger.PeriodRecord, error) {
	var (
		best  ledger.PeriodRecord
		found bool
	)
	typ := period.Type()
	for k, r := range m.periods {
		if k.SellerID != seller || k.Period.Type() != typ || !k.Period.Before(period) {
			continue
		}
		if !found || best.Period.Before(k.Period) {
			best, found = r, true
		}
	}
	if !found {
		return ledger.PeriodRecord{}, ledger.ErrNotFound
	}
	return best, nil
}

func (m *Memory) createPeriodLocked(r ledger.PeriodRecord) error {
	m.periods[r.Key()] = r
	return nil
}

func (m *Memory) updatePeriodLocked(r ledger.PeriodRecord) error {
	if _, ok := m.periods[r.Key()]; !ok {
		return ledger.ErrNotFound
	}
	m.periods[r.Key()] = r
	return nil
}

// listPeriodsLocked returns records ordered by seller, then period. An
// empty seller matches everyone.
func (m *Memory) listPeriodsLocked(seller ledger.SellerID) []ledger.PeriodRecord {
	var out []ledger.PeriodRecord
	for k, r := range m.periods {
		if seller == "" || k.SellerID == seller {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SellerID != out[j].SellerID {
			return out[i].SellerID < out[j].SellerID
		}
		return out[i].Period < out[j].Period
	})
	return out
}

func (m *Memory) queryAuditLocked(f ledger.AuditFilter) []ledger.AuditEntry {
	var out []ledger.AuditEntry
	for _, a := range m.audit {
		if f.Matches(a) {
			out = append(out, a)
		}
	}
	return out
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	if err := fn(&txView{parent: m}); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

type memorySnapshot struct {
	entries     map[ledger.EntryID]ledger.Entry
	idempotency map[string]ledger.EntryID
	periods     map[ledger.Key]ledger.PeriodRecord
	audit       []ledger.AuditEntry
}

func (m *Memory) snapshot() memorySnapshot {
	s := memorySnapshot{
		entries:     make(map[ledger.EntryID]ledger.Entry, len(m.entries)),
		idempotency: make(map[string]ledger.EntryID, len(m.idempotency)),
		periods:     make(map[ledger.Key]ledger.PeriodRecord, len(m.periods)),
		audit:       append([]ledger.AuditEntry(nil), m.audit...),
	}
	for k, v := range m.entries {
		s.entries[k] = v
	}
	for k, v := range m.idempotency {
		s.idempotency[k] = v
	}
	for k, v := range m.periods {
		s.periods[k] = v
	}
	return s
}

func (m *Memory) restore(s memorySnapshot) {
	m.entries = s.entries
	m.idempotency = s.idempotency
	m.periods = s.periods
	m.audit = s.audit
}

// txView is the ledger.Store handed to WithTx callbacks. The parent lock
// is already held, so it calls the *Locked helpers directly.
type txView struct {
	parent *Memory
}

func (tv *txView) CreateEntry(_ context.Context, e ledger.Entry) error {
	return tv.parent.createEntryLocked(e)
}

func (tv *txView) UpdateEntry(_ context.Context, e ledger.Entry) error {
	return tv.parent.updateEntryLocked(e)
}

func (tv *txView) GetEntry(_ context.Context, id ledger.EntryID) (ledger.Entry, error) {
	return tv.parent.getEntryLocked(id)
}

func (tv *txView) ListEntries(_ context.Context, key ledger.Key) ([]ledger.Entry, error) {
	return tv.parent.listEntriesLocked(key), nil
}

func (tv *txView) GetPeriod(_ context.Context, key ledger.Key) (ledger.PeriodRecord, error) {
	return tv.parent.getPeriodLocked(key)
}

func (tv *txView) LatestPeriodBefore(_ context.Context, seller ledger.SellerID, period ledger.PeriodKey) (ledger.PeriodRecord, error) {
	return tv.parent.latestBeforeLocked(seller, period)
}

func (tv *txView) CreatePeriod(_ context.Context, r ledger.PeriodRecord) error {
	return tv.parent.createPeriodLocked(r)
}

func (tv *txView) UpdatePeriod(_ context.Context, r ledger.PeriodRecord) error {
	return tv.parent.updatePeriodLocked(r)
}

func (tv *txView) ListPeriods(_ context.Context, seller ledger.SellerID) ([]ledger.PeriodRecord, error) {
	return tv.parent.listPeriodsLocked(seller), nil
}

func (tv *txView) ListAllPeriods(_ context.Context) ([]ledger.PeriodRecord, error) {
	return tv.parent.listPeriodsLocked(""), nil
}

func (tv *txView) AppendAudit(_ context.Context, a ledger.AuditEntry) error {
	tv.parent.audit = append(tv.parent.audit, a)
	return nil
}

func (tv *txView) QueryAudit(_ context.Context, f ledger.AuditFilter) ([]ledger.AuditEntry, error) {
	return tv.parent.queryAuditLocked(f), nil
}
