/*
store.go - Persistence interfaces for entries, period records and audit

PURPOSE:
  Defines the boundary between the ledger and its backing store. The ledger
  only needs get / get-by-id / create / update style verbs over a few
  collections; no backend-specific behaviour leaks past these interfaces.

KEY INTERFACES:
  EntryStore:  Commissions, manual entries and payments (one collection, Kind column)
  PeriodStore: One aggregate PeriodRecord per (SellerID, Period)
  AuditLog:    Append-only trail of who did what
  TxStore:     All of the above plus an atomic unit of work
  RunStore:    Optional, reconciliation run history
  SellerDirectory: Optional, display data for sellers

NO DELETE:
  None of the interfaces expose deletion. Entries are reassigned, never
  removed; period records are transitioned, never removed.

UNIT OF WORK:
  WithTx runs fn against a transactional view of the store. If fn returns
  an error every write made through the view is rolled back. Multi-period
  operations (transfers) rely on this to never leave two periods
  disagreeing about where an entry lives.

IMPLEMENTATIONS:
  - ledger/store/memory.go: In-memory, snapshot/restore transactions
  - store/sqlite/sqlite.go: SQLite, database/sql transactions
  - store/postgres/postgres.go: PostgreSQL via pgx
*/
package ledger

import (
	"context"
	"time"
)

// =============================================================================
// STORE INTERFACES
// =============================================================================

// EntryStore persists entries of every kind.
type EntryStore interface {
	// CreateEntry inserts e. Returns ErrDuplicateIdempotencyKey if
	// e.IdempotencyKey is set and already used.
	CreateEntry(ctx context.Context, e Entry) error

	// UpdateEntry replaces the stored entry with the same ID.
	// Returns ErrNotFound if it does not exist.
	UpdateEntry(ctx context.Context, e Entry) error

	// GetEntry returns ErrNotFound if the entry does not exist.
	GetEntry(ctx context.Context, id EntryID) (Entry, error)

	// ListEntries returns all entries for key ordered by Date, then CreatedAt.
	ListEntries(ctx context.Context, key Key) ([]Entry, error)
}

// PeriodStore persists period records.
type PeriodStore interface {
	// GetPeriod returns ErrNotFound if no record exists for key.
	GetPeriod(ctx context.Context, key Key) (PeriodRecord, error)

	// LatestPeriodBefore returns the record of the same seller and period
	// type with the greatest key strictly before period, or ErrNotFound.
	LatestPeriodBefore(ctx context.Context, seller SellerID, period PeriodKey) (PeriodRecord, error)

	CreatePeriod(ctx context.Context, r PeriodRecord) error

	// UpdatePeriod returns ErrNotFound if the record does not exist.
	UpdatePeriod(ctx context.Context, r PeriodRecord) error

	// ListPeriods returns a seller's records ordered by period.
	ListPeriods(ctx context.Context, seller SellerID) ([]PeriodRecord, error)

	// ListAllPeriods returns every record ordered by seller, then period.
	ListAllPeriods(ctx context.Context) ([]PeriodRecord, error)
}

// Store is the full persistence surface used by the ledger.
type Store interface {
	EntryStore
	PeriodStore
	AuditLog
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// KeyLocker is implemented by transaction views of stores shared between
// processes. LockKeys blocks until the keys are held and releases them
// when the transaction ends. Keys arrive sorted and deduplicated.
type KeyLocker interface {
	LockKeys(ctx context.Context, keys ...Key) error
}

// =============================================================================
// AUDIT LOG - Separate from entries, tracks who did what when
// =============================================================================

type AuditAction string

const (
	AuditEntryCreated       AuditAction = "entry_created"
	AuditEntryUpdated       AuditAction = "entry_updated"
	AuditEntryTransferred   AuditAction = "entry_transferred"
	AuditPeriodClosed       AuditAction = "period_closed"
	AuditPeriodReopened     AuditAction = "period_reopened"
	AuditPeriodPaid         AuditAction = "period_paid"
	AuditPeriodRecalc       AuditAction = "period_recalculated"
	AuditCarryOverRefreshed AuditAction = "carry_over_refreshed"
)

// AuditEntry records who did what when.
type AuditEntry struct {
	ID       string
	At       time.Time
	Actor    string
	Action   AuditAction
	SellerID SellerID
	Period   PeriodKey
	EntryID  EntryID
	Payload  map[string]string
}

// AuditFilter narrows an audit query. Zero fields match anything.
type AuditFilter struct {
	SellerID SellerID
	Period   PeriodKey
	EntryID  EntryID
}

// Matches reports whether a satisfies the filter.
func (f AuditFilter) Matches(a AuditEntry) bool {
	if f.SellerID != "" && a.SellerID != f.SellerID {
		return false
	}
	if f.Period != "" && a.Period != f.Period {
		return false
	}
	if f.EntryID != "" && a.EntryID != f.EntryID {
		return false
	}
	return true
}

// AuditLog stores audit entries. Append-only.
type AuditLog interface {
	AppendAudit(ctx context.Context, a AuditEntry) error

	// QueryAudit returns matching entries ordered by At.
	QueryAudit(ctx context.Context, f AuditFilter) ([]AuditEntry, error)
}

// =============================================================================
// OPTIONAL CAPABILITIES
// =============================================================================

// RunStatus is the outcome of a reconciliation run.
type RunStatus string

const (
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// ReconciliationRun summarizes one sweep over all period records.
type ReconciliationRun struct {
	ID          string
	StartedAt   time.Time
	CompletedAt time.Time
	Status      RunStatus
	Checked     int
	Drifted     int
	Repaired    int
	Error       string
}

// RunStore keeps reconciliation history. Stores that implement it get
// their sweeps recorded.
type RunStore interface {
	SaveRun(ctx context.Context, run ReconciliationRun) error

	// ListRuns returns the most recent runs first, at most limit.
	ListRuns(ctx context.Context, limit int) ([]ReconciliationRun, error)
}

// SellerDirectory resolves display data for a seller. Never used for
// ledger math.
type SellerDirectory interface {
	// Lookup returns ErrNotFound for unknown sellers.
	Lookup(ctx context.Context, id SellerID) (Seller, error)
}
