/*
ledger.go - Commission ledger service

PURPOSE:
  The only entry point for mutating the ledger. Every operation:
    1. Validates input
    2. Locks the affected (SellerID, Period) keys
    3. Runs inside one store transaction (WithTx)
    4. Gets or creates the period record(s)
    5. Checks the state machine gate
    6. Writes entries / state and appends an audit entry
    7. Recalculates every touched period and applies Settle

OPERATIONS:
  RecordCommission   Sale feed ingress (commission entries)
  AddManualEntry     Operator credit/debit
  RegisterPayment    Operator payment
  UpdateEntry        Edit fields, moves the entry if Period changes (transfer.go)
  TransferEntry      Move an entry to another period (transfer.go)
  Close / Reopen / MarkPaid   Period lifecycle
  Recalculate        Explicit recompute of one period
  RefreshCarryOver   Re-pull PriorBalance from the preceding period
  Reconcile / ReconcileAll    Drift detection and repair (reconcile.go)

CONCURRENCY:
  Per-key mutexes serialize writers of the same period; the store
  transaction makes multi-period writes all-or-nothing.

SEE ALSO:
  - state.go: Transition table
  - recalc.go: Arithmetic
*/
package ledger

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SystemActor is recorded when a caller does not name an operator.
const SystemActor = "system"

// Options configures a Ledger. Zero values are usable.
type Options struct {
	Logger     *zap.Logger
	Directory  SellerDirectory // nil skips seller existence checks
	LatePolicy LatePolicy
	Now        func() time.Time
}

// Ledger orchestrates stores, locks and the state machine.
type Ledger struct {
	store     TxStore
	directory SellerDirectory
	policy    LatePolicy
	log       *zap.Logger
	now       func() time.Time
	locks     *keyLocks
}

// New creates a ledger over store.
func New(store TxStore, opts Options) *Ledger {
	l := &Ledger{
		store:     store,
		directory: opts.Directory,
		policy:    opts.LatePolicy,
		log:       opts.Logger,
		now:       opts.Now,
		locks:     newKeyLocks(),
	}
	if l.log == nil {
		l.log = zap.NewNop()
	}
	if l.now == nil {
		l.now = func() time.Time { return time.Now().UTC() }
	}
	if l.policy == "" {
		l.policy = LateStrict
	}
	return l
}

// Policy returns the late-adjustment policy in force.
func (l *Ledger) Policy() LatePolicy { return l.policy }

// =============================================================================
// INPUTS
// =============================================================================

// CommissionInput is a SaleCommission fact from the sale feed.
type CommissionInput struct {
	SellerID          SellerID
	Period            PeriodKey
	SaleID            string
	SaleAmount        decimal.Decimal
	CommissionPercent decimal.Decimal
	CommissionAmount  decimal.Decimal
	Rule              CommissionRule
	PriceListID       string
	Note              string
	Date              time.Time
	IdempotencyKey    string
}

// ManualEntryInput is an operator credit or debit.
type ManualEntryInput struct {
	SellerID       SellerID
	Period         PeriodKey
	Kind           EntryKind
	Date           time.Time
	Amount         decimal.Decimal
	Description    string
	IdempotencyKey string
}

// PaymentInput is an operator payment.
type PaymentInput struct {
	SellerID       SellerID
	Period         PeriodKey
	Date           time.Time
	Amount         decimal.Decimal
	PaymentMethod  string
	ReceiptRef     string
	Note           string
	IdempotencyKey string
}

// =============================================================================
// ENTRY CREATION
// =============================================================================

// RecordCommission stores a commission supplied by the sale feed.
func (l *Ledger) RecordCommission(ctx context.Context, actor string, in CommissionInput) (Entry, error) {
	return l.addEntry(ctx, actor, Entry{
		Kind:              KindCommission,
		SellerID:          in.SellerID,
		Period:            in.Period,
		Date:              in.Date,
		Amount:            in.CommissionAmount,
		SaleID:            in.SaleID,
		SaleAmount:        in.SaleAmount,
		CommissionPercent: in.CommissionPercent,
		Rule:              in.Rule,
		PriceListID:       in.PriceListID,
		Note:              in.Note,
		IdempotencyKey:    in.IdempotencyKey,
	})
}

// AddManualEntry stores an operator credit or debit.
func (l *Ledger) AddManualEntry(ctx context.Context, actor string, in ManualEntryInput) (Entry, error) {
	if !in.Kind.IsManual() {
		return Entry{}, invalid("kind", "must be credit or debit")
	}
	return l.addEntry(ctx, actor, Entry{
		Kind:           in.Kind,
		SellerID:       in.SellerID,
		Period:         in.Period,
		Date:           in.Date,
		Amount:         in.Amount,
		Description:    in.Description,
		IdempotencyKey: in.IdempotencyKey,
	})
}

// RegisterPayment stores a payment to the seller.
func (l *Ledger) RegisterPayment(ctx context.Context, actor string, in PaymentInput) (Entry, error) {
	return l.addEntry(ctx, actor, Entry{
		Kind:           KindPayment,
		SellerID:       in.SellerID,
		Period:         in.Period,
		Date:           in.Date,
		Amount:         in.Amount,
		PaymentMethod:  in.PaymentMethod,
		ReceiptRef:     in.ReceiptRef,
		Note:           in.Note,
		IdempotencyKey: in.IdempotencyKey,
	})
}

func (l *Ledger) addEntry(ctx context.Context, actor string, e Entry) (Entry, error) {
	if err := validateEntry(e); err != nil {
		return Entry{}, err
	}
	if err := l.checkSeller(ctx, e.SellerID); err != nil {
		return Entry{}, err
	}

	now := l.now()
	actor = actorOrSystem(actor)
	e.ID = EntryID(ulid.Make().String())
	e.CreatedBy = actor
	e.CreatedAt = now
	if e.Date.IsZero() {
		e.Date = now
	}

	unlock := l.locks.Lock(e.Key())
	defer unlock()

	err := l.withTx(ctx, []Key{e.Key()}, func(s Store) error {
		rec, err := l.getOrCreate(ctx, s, e.Key(), now)
		if err != nil {
			return err
		}
		if err := checkAdmits(rec, e.Kind, l.policy, "add entry to"); err != nil {
			return err
		}
		if e.Kind == KindCommission && rec.Status == StatusClosed {
			l.log.Warn("commission recorded into closed period",
				zap.String("seller", string(e.SellerID)),
				zap.String("period", string(e.Period)),
				zap.String("status", string(rec.Status)),
				zap.String("sale", e.SaleID))
		}
		if err := s.CreateEntry(ctx, e); err != nil {
			return Persistence("create entry", err)
		}
		if err := l.audit(ctx, s, actor, AuditEntryCreated, e.Key(), e.ID, map[string]string{
			"kind":   string(e.Kind),
			"amount": e.Amount.String(),
		}); err != nil {
			return err
		}
		_, err = l.recalculate(ctx, s, e.Key(), actor)
		return err
	})
	if err != nil {
		return Entry{}, err
	}

	l.log.Info("entry created",
		zap.String("entry", string(e.ID)),
		zap.String("kind", string(e.Kind)),
		zap.String("seller", string(e.SellerID)),
		zap.String("period", string(e.Period)),
		zap.String("amount", e.Amount.String()))
	return e, nil
}

// validateEntry enforces the per-kind input rules.
func validateEntry(e Entry) error {
	if strings.TrimSpace(string(e.SellerID)) == "" {
		return invalid("sellerId", "is required")
	}
	if e.Period == "" {
		return invalid("period", "is required")
	}
	if _, err := ParsePeriodKey(string(e.Period)); err != nil {
		return invalid("period", err.Error())
	}
	switch e.Kind {
	case KindCommission:
		if strings.TrimSpace(e.SaleID) == "" {
			return invalid("saleId", "is required")
		}
		if !e.Rule.Valid() {
			return invalid("ruleApplied", "must be fixed_seller_rate, price_list_fixed or price_list_tiered")
		}
		if e.Amount.IsNegative() {
			return invalid("commissionAmount", "must not be negative")
		}
	case KindCredit, KindDebit:
		if !e.Amount.IsPositive() {
			return invalid("amount", "must be greater than zero")
		}
		if strings.TrimSpace(e.Description) == "" {
			return invalid("description", "is required")
		}
	case KindPayment:
		if !e.Amount.IsPositive() {
			return invalid("amount", "must be greater than zero")
		}
		if strings.TrimSpace(e.PaymentMethod) == "" {
			return invalid("paymentMethod", "is required")
		}
	default:
		return invalid("kind", "unknown entry kind "+string(e.Kind))
	}
	return nil
}

// =============================================================================
// PERIOD LIFECYCLE
// =============================================================================

// GetOrCreatePeriod returns the record for key, creating it (open, with
// the carried-over balance) if this is the first time it is referenced.
func (l *Ledger) GetOrCreatePeriod(ctx context.Context, key Key) (PeriodRecord, error) {
	if err := validateKey(key); err != nil {
		return PeriodRecord{}, err
	}
	unlock := l.locks.Lock(key)
	defer unlock()

	var rec PeriodRecord
	err := l.withTx(ctx, []Key{key}, func(s Store) error {
		if _, err := l.getOrCreate(ctx, s, key, l.now()); err != nil {
			return err
		}
		var err error
		rec, err = l.recalculate(ctx, s, key, SystemActor)
		return err
	})
	return rec, err
}

// Close moves an open period to closed, then recalculates. A period that
// is already settled lands directly in paid.
func (l *Ledger) Close(ctx context.Context, actor string, key Key) (PeriodRecord, error) {
	return l.transition(ctx, actor, key, AuditPeriodClosed, func(r PeriodRecord, now time.Time) (PeriodRecord, error) {
		return Close(r, now)
	}, true)
}

// Reopen moves a closed period back to open. Totals are unchanged.
func (l *Ledger) Reopen(ctx context.Context, actor string, key Key) (PeriodRecord, error) {
	return l.transition(ctx, actor, key, AuditPeriodReopened, func(r PeriodRecord, _ time.Time) (PeriodRecord, error) {
		return Reopen(r)
	}, false)
}

// MarkPaid settles a closed period whose balance is zero or below.
func (l *Ledger) MarkPaid(ctx context.Context, actor string, key Key) (PeriodRecord, error) {
	return l.transition(ctx, actor, key, AuditPeriodPaid, MarkPaid, false)
}

func (l *Ledger) transition(
	ctx context.Context,
	actor string,
	key Key,
	action AuditAction,
	fn func(PeriodRecord, time.Time) (PeriodRecord, error),
	recalc bool,
) (PeriodRecord, error) {
	if err := validateKey(key); err != nil {
		return PeriodRecord{}, err
	}
	actor = actorOrSystem(actor)
	unlock := l.locks.Lock(key)
	defer unlock()

	var out PeriodRecord
	err := l.withTx(ctx, []Key{key}, func(s Store) error {
		rec, err := l.loadPeriod(ctx, s, key)
		if err != nil {
			return err
		}
		from := rec.Status
		rec, err = fn(rec, l.now())
		if err != nil {
			return err
		}
		if err := s.UpdatePeriod(ctx, rec); err != nil {
			return Persistence("update period", err)
		}
		if err := l.audit(ctx, s, actor, action, key, "", map[string]string{
			"from": string(from),
			"to":   string(rec.Status),
		}); err != nil {
			return err
		}
		out = rec
		if recalc {
			out, err = l.recalculate(ctx, s, key, actor)
		}
		return err
	})
	if err != nil {
		return PeriodRecord{}, err
	}

	l.log.Info("period transition",
		zap.String("action", string(action)),
		zap.String("seller", string(key.SellerID)),
		zap.String("period", string(key.Period)),
		zap.String("status", string(out.Status)),
		zap.String("actor", actor))
	return out, nil
}

// Recalculate recomputes one period on operator request.
func (l *Ledger) Recalculate(ctx context.Context, actor string, key Key) (PeriodRecord, error) {
	if err := validateKey(key); err != nil {
		return PeriodRecord{}, err
	}
	actor = actorOrSystem(actor)
	unlock := l.locks.Lock(key)
	defer unlock()

	var out PeriodRecord
	err := l.withTx(ctx, []Key{key}, func(s Store) error {
		var err error
		if out, err = l.recalculate(ctx, s, key, actor); err != nil {
			return err
		}
		return l.audit(ctx, s, actor, AuditPeriodRecalc, key, "", map[string]string{
			"balance": out.Balance.String(),
		})
	})
	return out, err
}

// RefreshCarryOver re-pulls PriorBalance from the preceding period of the
// same seller and recalculates. Only open periods can be refreshed.
func (l *Ledger) RefreshCarryOver(ctx context.Context, actor string, key Key) (PeriodRecord, error) {
	if err := validateKey(key); err != nil {
		return PeriodRecord{}, err
	}
	actor = actorOrSystem(actor)
	unlock := l.locks.Lock(key)
	defer unlock()

	var out PeriodRecord
	err := l.withTx(ctx, []Key{key}, func(s Store) error {
		rec, err := l.loadPeriod(ctx, s, key)
		if err != nil {
			return err
		}
		if rec.Status != StatusOpen {
			return transitionError(rec, "refresh carry-over of", "only open periods can be refreshed")
		}
		prior, err := priorBalance(ctx, s, key)
		if err != nil {
			return err
		}
		old := rec.PriorBalance
		rec.PriorBalance = prior
		if err := s.UpdatePeriod(ctx, rec); err != nil {
			return Persistence("update period", err)
		}
		if err := l.audit(ctx, s, actor, AuditCarryOverRefreshed, key, "", map[string]string{
			"from": old.String(),
			"to":   prior.String(),
		}); err != nil {
			return err
		}
		out, err = l.recalculate(ctx, s, key, actor)
		return err
	})
	return out, err
}

// =============================================================================
// READS
// =============================================================================

// GetPeriod returns the record for key.
func (l *Ledger) GetPeriod(ctx context.Context, key Key) (PeriodRecord, error) {
	return l.loadPeriod(ctx, l.store, key)
}

// ListPeriods returns a seller's records ordered by period.
func (l *Ledger) ListPeriods(ctx context.Context, seller SellerID) ([]PeriodRecord, error) {
	recs, err := l.store.ListPeriods(ctx, seller)
	return recs, Persistence("list periods", err)
}

// ListEntries returns a period's entries grouped by kind.
func (l *Ledger) ListEntries(ctx context.Context, key Key) (EntrySet, error) {
	entries, err := l.store.ListEntries(ctx, key)
	if err != nil {
		return EntrySet{}, Persistence("list entries", err)
	}
	return GroupEntries(entries), nil
}

// GetEntry returns a single entry.
func (l *Ledger) GetEntry(ctx context.Context, id EntryID) (Entry, error) {
	e, err := l.store.GetEntry(ctx, id)
	return e, notFoundOr(err, "entry", string(id), "get entry")
}

// Audit returns the audit trail matching f.
func (l *Ledger) Audit(ctx context.Context, f AuditFilter) ([]AuditEntry, error) {
	entries, err := l.store.QueryAudit(ctx, f)
	return entries, Persistence("query audit", err)
}

// Statement is everything the presentation layer needs for one period.
type Statement struct {
	Record  PeriodRecord
	Entries EntrySet
	Seller  *Seller
}

// Statement loads a period record, its entries and the seller label.
func (l *Ledger) Statement(ctx context.Context, key Key) (Statement, error) {
	rec, err := l.GetPeriod(ctx, key)
	if err != nil {
		return Statement{}, err
	}
	set, err := l.ListEntries(ctx, key)
	if err != nil {
		return Statement{}, err
	}
	st := Statement{Record: rec, Entries: set}
	if l.directory != nil {
		if seller, err := l.directory.Lookup(ctx, key.SellerID); err == nil {
			st.Seller = &seller
		}
	}
	return st, nil
}

// =============================================================================
// INTERNALS - Always called inside WithTx with the key locked
// =============================================================================

// getOrCreate returns the record for key, creating it with zero totals
// and the carried-over balance if missing.
func (l *Ledger) getOrCreate(ctx context.Context, s Store, key Key, now time.Time) (PeriodRecord, error) {
	rec, err := s.GetPeriod(ctx, key)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return PeriodRecord{}, Persistence("get period", err)
	}

	prior, err := priorBalance(ctx, s, key)
	if err != nil {
		return PeriodRecord{}, err
	}
	rec = PeriodRecord{
		ID:           RecordID(uuid.NewString()),
		SellerID:     key.SellerID,
		Period:       key.Period,
		PeriodType:   key.Period.Type(),
		Status:       StatusOpen,
		GeneratedAt:  now,
		PriorBalance: prior,
		NetLiability: decimal.Zero,
		TotalPaid:    decimal.Zero,
		Balance:      decimal.Zero,
	}
	if err := s.CreatePeriod(ctx, rec); err != nil {
		return PeriodRecord{}, Persistence("create period", err)
	}
	l.log.Debug("period created",
		zap.String("seller", string(key.SellerID)),
		zap.String("period", string(key.Period)),
		zap.String("prior_balance", prior.String()))
	return rec, nil
}

// priorBalance is the balance of the most recent earlier period of the
// same seller and type, or zero.
func priorBalance(ctx context.Context, s Store, key Key) (decimal.Decimal, error) {
	prev, err := s.LatestPeriodBefore(ctx, key.SellerID, key.Period)
	if errors.Is(err, ErrNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, Persistence("find previous period", err)
	}
	return prev.Balance, nil
}

// recalculate runs the engine for key, applies Settle and persists.
func (l *Ledger) recalculate(ctx context.Context, s Store, key Key, actor string) (PeriodRecord, error) {
	rec, err := l.loadPeriod(ctx, s, key)
	if err != nil {
		return PeriodRecord{}, err
	}
	entries, err := s.ListEntries(ctx, key)
	if err != nil {
		return PeriodRecord{}, Persistence("list entries", err)
	}

	rec = rec.Apply(Compute(GroupEntries(entries), rec.PriorBalance))
	rec, settled := Settle(rec, l.now())

	if err := s.UpdatePeriod(ctx, rec); err != nil {
		return PeriodRecord{}, Persistence("update period", err)
	}
	if settled {
		if err := l.audit(ctx, s, actor, AuditPeriodPaid, key, "", map[string]string{
			"from":    string(StatusClosed),
			"to":      string(StatusPaid),
			"balance": rec.Balance.String(),
		}); err != nil {
			return PeriodRecord{}, err
		}
		l.log.Info("period settled",
			zap.String("seller", string(key.SellerID)),
			zap.String("period", string(key.Period)),
			zap.String("balance", rec.Balance.String()))
	}
	return rec, nil
}

func (l *Ledger) loadPeriod(ctx context.Context, s Store, key Key) (PeriodRecord, error) {
	rec, err := s.GetPeriod(ctx, key)
	return rec, notFoundOr(err, "period", key.String(), "get period")
}

func (l *Ledger) audit(ctx context.Context, s Store, actor string, action AuditAction, key Key, entry EntryID, payload map[string]string) error {
	err := s.AppendAudit(ctx, AuditEntry{
		ID:       uuid.NewString(),
		At:       l.now(),
		Actor:    actor,
		Action:   action,
		SellerID: key.SellerID,
		Period:   key.Period,
		EntryID:  entry,
		Payload:  payload,
	})
	return Persistence("append audit", err)
}

func (l *Ledger) checkSeller(ctx context.Context, id SellerID) error {
	if l.directory == nil {
		return nil
	}
	_, err := l.directory.Lookup(ctx, id)
	return notFoundOr(err, "seller", string(id), "lookup seller")
}

func validateKey(key Key) error {
	if strings.TrimSpace(string(key.SellerID)) == "" {
		return invalid("sellerId", "is required")
	}
	if _, err := ParsePeriodKey(string(key.Period)); err != nil {
		return invalid("period", err.Error())
	}
	return nil
}

func notFoundOr(err error, resource, id, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) {
		var nf *NotFoundError
		if errors.As(err, &nf) {
			return err
		}
		return &NotFoundError{Resource: resource, ID: id}
	}
	return Persistence(op, err)
}

func actorOrSystem(actor string) string {
	if strings.TrimSpace(actor) == "" {
		return SystemActor
	}
	return actor
}
