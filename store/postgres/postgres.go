/*
Package postgres provides a PostgreSQL-backed ledger store using pgx.

PURPOSE:
  Same tables and semantics as store/sqlite, for multi-instance
  deployments. Concurrency control is left to the database: WithTx opens
  a pgx transaction and the ledger's per-key locks serialize writers in
  this process.

TYPES:
  Money columns are NUMERIC. Values are written as decimal strings and
  read back through ::text so shopspring/decimal never sees a float.
  Times are TIMESTAMPTZ. Audit payloads are JSONB.

USAGE:
  store, err := postgres.New(ctx, os.Getenv("DATABASE_URL"))
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()
*/
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/mediandev/prosellerv1-sub003/ledger"
)

const uniqueViolation = "23505"

// Store implements ledger.TxStore, ledger.RunStore and ledger.SellerDirectory.
type Store struct {
	pool *pgxpool.Pool
}

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// New connects to connStr, pings and migrates the schema.
func New(ctx context.Context, connStr string) (*Store, error) {
	if connStr == "" {
		return nil, fmt.Errorf("DATABASE_URL not set")
	}
	config, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to parse DATABASE_URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	s := &Store{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// Close releases the pool. Returns nil so Store satisfies io.Closer.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
	CREATE TABLE IF NOT EXISTS entries (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		seller_id TEXT NOT NULL,
		period TEXT NOT NULL,
		date TIMESTAMPTZ NOT NULL,
		amount NUMERIC NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		sale_id TEXT NOT NULL DEFAULT '',
		sale_amount NUMERIC NOT NULL DEFAULT 0,
		commission_percent NUMERIC NOT NULL DEFAULT 0,
		rule TEXT NOT NULL DEFAULT '',
		price_list_id TEXT NOT NULL DEFAULT '',
		payment_method TEXT NOT NULL DEFAULT '',
		receipt_ref TEXT NOT NULL DEFAULT '',
		note TEXT NOT NULL DEFAULT '',
		idempotency_key TEXT UNIQUE,
		created_by TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		edited_by TEXT NOT NULL DEFAULT '',
		edited_at TIMESTAMPTZ
	);
	CREATE INDEX IF NOT EXISTS idx_entries_seller_period ON entries(seller_id, period);

	CREATE TABLE IF NOT EXISTS period_records (
		id TEXT PRIMARY KEY,
		seller_id TEXT NOT NULL,
		period TEXT NOT NULL,
		period_type TEXT NOT NULL,
		status TEXT NOT NULL,
		generated_at TIMESTAMPTZ NOT NULL,
		closed_at TIMESTAMPTZ,
		paid_at TIMESTAMPTZ,
		prior_balance NUMERIC NOT NULL,
		net_liability NUMERIC NOT NULL,
		total_paid NUMERIC NOT NULL,
		balance NUMERIC NOT NULL,
		UNIQUE (seller_id, period)
	);

	CREATE TABLE IF NOT EXISTS audit_log (
		seq BIGSERIAL PRIMARY KEY,
		id TEXT NOT NULL UNIQUE,
		at TIMESTAMPTZ NOT NULL,
		actor TEXT NOT NULL,
		action TEXT NOT NULL,
		seller_id TEXT NOT NULL DEFAULT '',
		period TEXT NOT NULL DEFAULT '',
		entry_id TEXT NOT NULL DEFAULT '',
		payload JSONB
	);
	CREATE INDEX IF NOT EXISTS idx_audit_log_seller_period ON audit_log(seller_id, period);

	CREATE TABLE IF NOT EXISTS reconciliation_runs (
		id TEXT PRIMARY KEY,
		started_at TIMESTAMPTZ NOT NULL,
		completed_at TIMESTAMPTZ NOT NULL,
		status TEXT NOT NULL,
		checked INTEGER NOT NULL,
		drifted INTEGER NOT NULL,
		repaired INTEGER NOT NULL,
		error TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS sellers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		initials TEXT NOT NULL DEFAULT ''
	);`)
	return err
}

// =============================================================================
// LEDGER STORE - Pool methods delegate to querier helpers
// =============================================================================

func (s *Store) CreateEntry(ctx context.Context, e ledger.Entry) error {
	return createEntry(ctx, s.pool, e)
}

func (s *Store) UpdateEntry(ctx context.Context, e ledger.Entry) error {
	return updateEntry(ctx, s.pool, e)
}

func (s *Store) GetEntry(ctx context.Context, id ledger.EntryID) (ledger.Entry, error) {
	return getEntry(ctx, s.pool, id)
}

func (s *Store) ListEntries(ctx context.Context, key ledger.Key) ([]ledger.Entry, error) {
	return listEntries(ctx, s.pool, key)
}

func (s *Store) GetPeriod(ctx context.Context, key ledger.Key) (ledger.PeriodRecord, error) {
	return getPeriod(ctx, s.pool, key)
}

func (s *Store) LatestPeriodBefore(ctx context.Context, seller ledger.SellerID, period ledger.PeriodKey) (ledger.PeriodRecord, error) {
	return latestPeriodBefore(ctx, s.pool, seller, period)
}

func (s *Store) CreatePeriod(ctx context.Context, r ledger.PeriodRecord) error {
	return createPeriod(ctx, s.pool, r)
}

func (s *Store) UpdatePeriod(ctx context.Context, r ledger.PeriodRecord) error {
	return updatePeriod(ctx, s.pool, r)
}

func (s *Store) ListPeriods(ctx context.Context, seller ledger.SellerID) ([]ledger.PeriodRecord, error) {
	return queryPeriods(ctx, s.pool, `WHERE seller_id = $1 ORDER BY period`, string(seller))
}

func (s *Store) ListAllPeriods(ctx context.Context) ([]ledger.PeriodRecord, error) {
	return queryPeriods(ctx, s.pool, `ORDER BY seller_id, period`)
}

func (s *Store) AppendAudit(ctx context.Context, a ledger.AuditEntry) error {
	return appendAudit(ctx, s.pool, a)
}

func (s *Store) QueryAudit(ctx context.Context, f ledger.AuditFilter) ([]ledger.AuditEntry, error) {
	return queryAudit(ctx, s.pool, f)
}

// WithTx executes fn inside a pgx transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&txStore{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type txStore struct {
	tx pgx.Tx
}

var _ ledger.KeyLocker = (*txStore)(nil)

func (ts *txStore) CreateEntry(ctx context.Context, e ledger.Entry) error {
	return createEntry(ctx, ts.tx, e)
}

func (ts *txStore) UpdateEntry(ctx context.Context, e ledger.Entry) error {
	return updateEntry(ctx, ts.tx, e)
}

// GetEntry locks the row so a concurrent transfer from another process
// waits, then sees the committed period.
func (ts *txStore) GetEntry(ctx context.Context, id ledger.EntryID) (ledger.Entry, error) {
	entries, err := queryEntries(ctx, ts.tx, `WHERE id = $1 FOR UPDATE`, string(id))
	if err != nil {
		return ledger.Entry{}, err
	}
	if len(entries) == 0 {
		return ledger.Entry{}, ledger.ErrNotFound
	}
	return entries[0], nil
}

// LockKeys takes a transaction-scoped advisory lock per period key. It
// also covers periods that do not exist yet, which FOR UPDATE cannot.
func (ts *txStore) LockKeys(ctx context.Context, keys ...ledger.Key) error {
	for _, k := range keys {
		if _, err := ts.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, k.String()); err != nil {
			return fmt.Errorf("failed to lock %s: %w", k, err)
		}
	}
	return nil
}

func (ts *txStore) ListEntries(ctx context.Context, key ledger.Key) ([]ledger.Entry, error) {
	return listEntries(ctx, ts.tx, key)
}

// GetPeriod locks the row for the rest of the transaction.
func (ts *txStore) GetPeriod(ctx context.Context, key ledger.Key) (ledger.PeriodRecord, error) {
	recs, err := queryPeriods(ctx, ts.tx, `WHERE seller_id = $1 AND period = $2 FOR UPDATE`,
		string(key.SellerID), string(key.Period))
	return first(recs, err)
}

func (ts *txStore) LatestPeriodBefore(ctx context.Context, seller ledger.SellerID, period ledger.PeriodKey) (ledger.PeriodRecord, error) {
	return latestPeriodBefore(ctx, ts.tx, seller, period)
}

func (ts *txStore) CreatePeriod(ctx context.Context, r ledger.PeriodRecord) error {
	return createPeriod(ctx, ts.tx, r)
}

func (ts *txStore) UpdatePeriod(ctx context.Context, r ledger.PeriodRecord) error {
	return updatePeriod(ctx, ts.tx, r)
}

func (ts *txStore) ListPeriods(ctx context.Context, seller ledger.SellerID) ([]ledger.PeriodRecord, error) {
	return queryPeriods(ctx, ts.tx, `WHERE seller_id = $1 ORDER BY period`, string(seller))
}

func (ts *txStore) ListAllPeriods(ctx context.Context) ([]ledger.PeriodRecord, error) {
	return queryPeriods(ctx, ts.tx, `ORDER BY seller_id, period`)
}

func (ts *txStore) AppendAudit(ctx context.Context, a ledger.AuditEntry) error {
	return appendAudit(ctx, ts.tx, a)
}

func (ts *txStore) QueryAudit(ctx context.Context, f ledger.AuditFilter) ([]ledger.AuditEntry, error) {
	return queryAudit(ctx, ts.tx, f)
}

// =============================================================================
// ENTRIES
// =============================================================================

const selectEntries = `SELECT id, kind, seller_id, period, date, amount::text, description,
	sale_id, sale_amount::text, commission_percent::text, rule, price_list_id, payment_method,
	receipt_ref, note, COALESCE(idempotency_key, ''), created_by, created_at, edited_by, edited_at
	FROM entries `

func createEntry(ctx context.Context, q querier, e ledger.Entry) error {
	_, err := q.Exec(ctx, `
		INSERT INTO entries (id, kind, seller_id, period, date, amount, description, sale_id,
			sale_amount, commission_percent, rule, price_list_id, payment_method, receipt_ref,
			note, idempotency_key, created_by, created_at, edited_by, edited_at)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8, $9::numeric, $10::numeric, $11, $12,
			$13, $14, $15, NULLIF($16, ''), $17, $18, $19, $20)`,
		string(e.ID), string(e.Kind), string(e.SellerID), string(e.Period), e.Date,
		e.Amount.String(), e.Description, e.SaleID, e.SaleAmount.String(),
		e.CommissionPercent.String(), string(e.Rule), e.PriceListID, e.PaymentMethod,
		e.ReceiptRef, e.Note, e.IdempotencyKey, e.CreatedBy, e.CreatedAt, e.EditedBy, e.EditedAt,
	)
	if isUniqueViolation(err) {
		return ledger.ErrDuplicateIdempotencyKey
	}
	if err != nil {
		return fmt.Errorf("failed to insert entry: %w", err)
	}
	return nil
}

func updateEntry(ctx context.Context, q querier, e ledger.Entry) error {
	tag, err := q.Exec(ctx, `
		UPDATE entries SET period = $1, date = $2, amount = $3::numeric, description = $4,
			payment_method = $5, receipt_ref = $6, note = $7, edited_by = $8, edited_at = $9
		WHERE id = $10`,
		string(e.Period), e.Date, e.Amount.String(), e.Description,
		e.PaymentMethod, e.ReceiptRef, e.Note, e.EditedBy, e.EditedAt, string(e.ID),
	)
	if err != nil {
		return fmt.Errorf("failed to update entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

func getEntry(ctx context.Context, q querier, id ledger.EntryID) (ledger.Entry, error) {
	entries, err := queryEntries(ctx, q, `WHERE id = $1`, string(id))
	if err != nil {
		return ledger.Entry{}, err
	}
	if len(entries) == 0 {
		return ledger.Entry{}, ledger.ErrNotFound
	}
	return entries[0], nil
}

func listEntries(ctx context.Context, q querier, key ledger.Key) ([]ledger.Entry, error) {
	return queryEntries(ctx, q, `WHERE seller_id = $1 AND period = $2 ORDER BY date, created_at, id`,
		string(key.SellerID), string(key.Period))
}

func queryEntries(ctx context.Context, q querier, where string, args ...any) ([]ledger.Entry, error) {
	rows, err := q.Query(ctx, selectEntries+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Entry
	for rows.Next() {
		var (
			e                              ledger.Entry
			id, kind, seller, period, rule string
			amount, saleAmount, percent    string
		)
		if err := rows.Scan(
			&id, &kind, &seller, &period, &e.Date, &amount, &e.Description,
			&e.SaleID, &saleAmount, &percent, &rule, &e.PriceListID, &e.PaymentMethod,
			&e.ReceiptRef, &e.Note, &e.IdempotencyKey, &e.CreatedBy, &e.CreatedAt, &e.EditedBy, &e.EditedAt,
		); err != nil {
			return nil, err
		}
		e.ID = ledger.EntryID(id)
		e.Kind = ledger.EntryKind(kind)
		e.SellerID = ledger.SellerID(seller)
		e.Period = ledger.PeriodKey(period)
		e.Rule = ledger.CommissionRule(rule)
		if e.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("entry %s amount: %w", id, err)
		}
		if e.SaleAmount, err = decimal.NewFromString(saleAmount); err != nil {
			return nil, fmt.Errorf("entry %s sale amount: %w", id, err)
		}
		if e.CommissionPercent, err = decimal.NewFromString(percent); err != nil {
			return nil, fmt.Errorf("entry %s commission percent: %w", id, err)
		}
		e.Date = e.Date.UTC()
		e.CreatedAt = e.CreatedAt.UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// =============================================================================
// PERIOD RECORDS
// =============================================================================

const selectPeriods = `SELECT id, seller_id, period, period_type, status, generated_at,
	closed_at, paid_at, prior_balance::text, net_liability::text, total_paid::text, balance::text
	FROM period_records `

func getPeriod(ctx context.Context, q querier, key ledger.Key) (ledger.PeriodRecord, error) {
	recs, err := queryPeriods(ctx, q, `WHERE seller_id = $1 AND period = $2`,
		string(key.SellerID), string(key.Period))
	return first(recs, err)
}

func latestPeriodBefore(ctx context.Context, q querier, seller ledger.SellerID, period ledger.PeriodKey) (ledger.PeriodRecord, error) {
	recs, err := queryPeriods(ctx, q,
		`WHERE seller_id = $1 AND period_type = $2 AND period < $3 ORDER BY period DESC LIMIT 1`,
		string(seller), string(period.Type()), string(period))
	return first(recs, err)
}

func createPeriod(ctx context.Context, q querier, r ledger.PeriodRecord) error {
	_, err := q.Exec(ctx, `
		INSERT INTO period_records (id, seller_id, period, period_type, status, generated_at,
			closed_at, paid_at, prior_balance, net_liability, total_paid, balance)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::numeric, $10::numeric, $11::numeric, $12::numeric)`,
		string(r.ID), string(r.SellerID), string(r.Period), string(r.PeriodType), string(r.Status),
		r.GeneratedAt, r.ClosedAt, r.PaidAt,
		r.PriorBalance.String(), r.NetLiability.String(), r.TotalPaid.String(), r.Balance.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert period record: %w", err)
	}
	return nil
}

func updatePeriod(ctx context.Context, q querier, r ledger.PeriodRecord) error {
	tag, err := q.Exec(ctx, `
		UPDATE period_records SET status = $1, closed_at = $2, paid_at = $3,
			prior_balance = $4::numeric, net_liability = $5::numeric,
			total_paid = $6::numeric, balance = $7::numeric
		WHERE seller_id = $8 AND period = $9`,
		string(r.Status), r.ClosedAt, r.PaidAt,
		r.PriorBalance.String(), r.NetLiability.String(), r.TotalPaid.String(), r.Balance.String(),
		string(r.SellerID), string(r.Period),
	)
	if err != nil {
		return fmt.Errorf("failed to update period record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

func queryPeriods(ctx context.Context, q querier, tail string, args ...any) ([]ledger.PeriodRecord, error) {
	rows, err := q.Query(ctx, selectPeriods+tail, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.PeriodRecord
	for rows.Next() {
		var (
			r                                      ledger.PeriodRecord
			id, seller, period, periodType, status string
			prior, net, paid, balance              string
		)
		if err := rows.Scan(&id, &seller, &period, &periodType, &status, &r.GeneratedAt,
			&r.ClosedAt, &r.PaidAt, &prior, &net, &paid, &balance); err != nil {
			return nil, err
		}
		r.ID = ledger.RecordID(id)
		r.SellerID = ledger.SellerID(seller)
		r.Period = ledger.PeriodKey(period)
		r.PeriodType = ledger.PeriodType(periodType)
		r.Status = ledger.Status(status)
		r.GeneratedAt = r.GeneratedAt.UTC()
		if r.PriorBalance, err = decimal.NewFromString(prior); err != nil {
			return nil, err
		}
		if r.NetLiability, err = decimal.NewFromString(net); err != nil {
			return nil, err
		}
		if r.TotalPaid, err = decimal.NewFromString(paid); err != nil {
			return nil, err
		}
		if r.Balance, err = decimal.NewFromString(balance); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// =============================================================================
// AUDIT LOG
// =============================================================================

func appendAudit(ctx context.Context, q querier, a ledger.AuditEntry) error {
	_, err := q.Exec(ctx, `
		INSERT INTO audit_log (id, at, actor, action, seller_id, period, entry_id, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.At, a.Actor, string(a.Action), string(a.SellerID), string(a.Period),
		string(a.EntryID), a.Payload,
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

func queryAudit(ctx context.Context, q querier, f ledger.AuditFilter) ([]ledger.AuditEntry, error) {
	rows, err := q.Query(ctx, `
		SELECT id, at, actor, action, seller_id, period, entry_id, payload
		FROM audit_log
		WHERE ($1 = '' OR seller_id = $1) AND ($2 = '' OR period = $2) AND ($3 = '' OR entry_id = $3)
		ORDER BY at, seq`,
		string(f.SellerID), string(f.Period), string(f.EntryID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.AuditEntry
	for rows.Next() {
		var (
			a                               ledger.AuditEntry
			action, seller, period, entryID string
		)
		if err := rows.Scan(&a.ID, &a.At, &a.Actor, &action, &seller, &period, &entryID, &a.Payload); err != nil {
			return nil, err
		}
		a.Action = ledger.AuditAction(action)
		a.SellerID = ledger.SellerID(seller)
		a.Period = ledger.PeriodKey(period)
		a.EntryID = ledger.EntryID(entryID)
		a.At = a.At.UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}

// =============================================================================
// RECONCILIATION RUNS / SELLERS
// =============================================================================

func (s *Store) SaveRun(ctx context.Context, r ledger.ReconciliationRun) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO reconciliation_runs (id, started_at, completed_at, status, checked, drifted, repaired, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		r.ID, r.StartedAt, r.CompletedAt, string(r.Status), r.Checked, r.Drifted, r.Repaired, r.Error)
	return err
}

func (s *Store) ListRuns(ctx context.Context, limit int) ([]ledger.ReconciliationRun, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, started_at, completed_at, status, checked, drifted, repaired, error
		FROM reconciliation_runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []ledger.ReconciliationRun
	for rows.Next() {
		var r ledger.ReconciliationRun
		var status string
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.CompletedAt, &status,
			&r.Checked, &r.Drifted, &r.Repaired, &r.Error); err != nil {
			return nil, err
		}
		r.Status = ledger.RunStatus(status)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func (s *Store) SaveSeller(ctx context.Context, seller ledger.Seller) error {
	if seller.Initials == "" {
		seller.Initials = ledger.Initials(seller.Name)
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sellers (id, name, email, initials) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, email = EXCLUDED.email,
			initials = EXCLUDED.initials`,
		string(seller.ID), seller.Name, seller.Email, seller.Initials)
	return err
}

func (s *Store) Lookup(ctx context.Context, id ledger.SellerID) (ledger.Seller, error) {
	var seller ledger.Seller
	var sid string
	err := s.pool.QueryRow(ctx, `SELECT id, name, email, initials FROM sellers WHERE id = $1`, string(id)).
		Scan(&sid, &seller.Name, &seller.Email, &seller.Initials)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Seller{}, ledger.ErrNotFound
	}
	seller.ID = ledger.SellerID(sid)
	return seller, err
}

func (s *Store) ListSellers(ctx context.Context) ([]ledger.Seller, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, email, initials FROM sellers ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Seller
	for rows.Next() {
		var seller ledger.Seller
		var sid string
		if err := rows.Scan(&sid, &seller.Name, &seller.Email, &seller.Initials); err != nil {
			return nil, err
		}
		seller.ID = ledger.SellerID(sid)
		out = append(out, seller)
	}
	return out, rows.Err()
}

// Reset truncates every table (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.pool.Exec(ctx,
		`TRUNCATE TABLE entries, period_records, audit_log, reconciliation_runs, sellers`)
	return err
}

// =============================================================================
// HELPERS
// =============================================================================

func first(recs []ledger.PeriodRecord, err error) (ledger.PeriodRecord, error) {
	if err != nil {
		return ledger.PeriodRecord{}, err
	}
	if len(recs) == 0 {
		return ledger.PeriodRecord{}, ledger.ErrNotFound
	}
	return recs[0], nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
