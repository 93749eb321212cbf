/*
Package sqlite provides a SQLite-backed implementation of the ledger store.

PURPOSE:
  Implements ledger.TxStore, ledger.RunStore and ledger.SellerDirectory
  using SQLite. The PostgreSQL store (store/postgres) follows the same
  schema with dialect changes only.

KEY TABLES:
  entries:             Commissions, manual entries and payments (kind column)
  period_records:      One row per (seller_id, period)
  audit_log:           Append-only trail of ledger mutations
  reconciliation_runs: History of drift sweeps
  sellers:             Display data (name, email, initials)

NO DELETE:
  There are no DELETE statements on entries or period_records outside of
  Reset, which exists for demos and tests.

MONEY AND TIME:
  Amounts are stored as TEXT decimal strings so no precision is lost.
  Times are stored as fixed-width UTC text so lexical order is time order.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety and a single connection, which also
  keeps ":memory:" databases shared between calls. Reads inside WithTx go
  through the open *sql.Tx.

USAGE:
  store, err := sqlite.New("./commissions.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  l := ledger.New(store, ledger.Options{Directory: store})

MIGRATION:
  Schema is auto-migrated on New().
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/mediandev/prosellerv1-sub003/ledger"
)

// timeFormat is fixed width so ORDER BY on the text column sorts by time.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS entries (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		seller_id TEXT NOT NULL,
		period TEXT NOT NULL,
		date TEXT NOT NULL,
		amount TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		sale_id TEXT NOT NULL DEFAULT '',
		sale_amount TEXT NOT NULL DEFAULT '0',
		commission_percent TEXT NOT NULL DEFAULT '0',
		rule TEXT NOT NULL DEFAULT '',
		price_list_id TEXT NOT NULL DEFAULT '',
		payment_method TEXT NOT NULL DEFAULT '',
		receipt_ref TEXT NOT NULL DEFAULT '',
		note TEXT NOT NULL DEFAULT '',
		idempotency_key TEXT UNIQUE,
		created_by TEXT NOT NULL,
		created_at TEXT NOT NULL,
		edited_by TEXT NOT NULL DEFAULT '',
		edited_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_entries_seller_period
		ON entries(seller_id, period);

	CREATE TABLE IF NOT EXISTS period_records (
		id TEXT PRIMARY KEY,
		seller_id TEXT NOT NULL,
		period TEXT NOT NULL,
		period_type TEXT NOT NULL,
		status TEXT NOT NULL,
		generated_at TEXT NOT NULL,
		closed_at TEXT,
		paid_at TEXT,
		prior_balance TEXT NOT NULL,
		net_liability TEXT NOT NULL,
		total_paid TEXT NOT NULL,
		balance TEXT NOT NULL,
		UNIQUE(seller_id, period)
	);

	CREATE INDEX IF NOT EXISTS idx_period_records_seller_type
		ON period_records(seller_id, period_type, period);

	CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		at TEXT NOT NULL,
		actor TEXT NOT NULL,
		action TEXT NOT NULL,
		seller_id TEXT NOT NULL DEFAULT '',
		period TEXT NOT NULL DEFAULT '',
		entry_id TEXT NOT NULL DEFAULT '',
		payload_json TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_audit_log_seller_period
		ON audit_log(seller_id, period);

	CREATE TABLE IF NOT EXISTS reconciliation_runs (
		id TEXT PRIMARY KEY,
		started_at TEXT NOT NULL,
		completed_at TEXT NOT NULL,
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
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// ENTRY STORE
// =============================================================================

const entryColumns = `id, kind, seller_id, period, date, amount, description, sale_id,
	sale_amount, commission_percent, rule, price_list_id, payment_method, receipt_ref,
	note, idempotency_key, created_by, created_at, edited_by, edited_at`

func (s *Store) CreateEntry(ctx context.Context, e ledger.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createEntry(ctx, s.db, e)
}

func (s *Store) UpdateEntry(ctx context.Context, e ledger.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateEntry(ctx, s.db, e)
}

func (s *Store) GetEntry(ctx context.Context, id ledger.EntryID) (ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getEntry(ctx, s.db, id)
}

func (s *Store) ListEntries(ctx context.Context, key ledger.Key) ([]ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listEntries(ctx, s.db, key)
}

func createEntry(ctx context.Context, q querier, e ledger.Entry) error {
	query := `INSERT INTO entries (` + entryColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := q.ExecContext(ctx, query,
		e.ID, e.Kind, e.SellerID, e.Period,
		formatTime(e.Date), e.Amount.String(), e.Description, e.SaleID,
		e.SaleAmount.String(), e.CommissionPercent.String(), e.Rule, e.PriceListID,
		e.PaymentMethod, e.ReceiptRef, e.Note, nullString(e.IdempotencyKey),
		e.CreatedBy, formatTime(e.CreatedAt), e.EditedBy, formatTimePtr(e.EditedAt),
	)
	if isUniqueConstraintError(err) {
		return ledger.ErrDuplicateIdempotencyKey
	}
	if err != nil {
		return fmt.Errorf("failed to insert entry: %w", err)
	}
	return nil
}

// updateEntry rewrites the mutable columns. Kind, seller, idempotency key
// and creation stamp never change.
func updateEntry(ctx context.Context, q querier, e ledger.Entry) error {
	query := `
		UPDATE entries SET period = ?, date = ?, amount = ?, description = ?,
			payment_method = ?, receipt_ref = ?, note = ?, edited_by = ?, edited_at = ?
		WHERE id = ?
	`
	res, err := q.ExecContext(ctx, query,
		e.Period, formatTime(e.Date), e.Amount.String(), e.Description,
		e.PaymentMethod, e.ReceiptRef, e.Note, e.EditedBy, formatTimePtr(e.EditedAt),
		e.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update entry: %w", err)
	}
	return requireRow(res)
}

func getEntry(ctx context.Context, q querier, id ledger.EntryID) (ledger.Entry, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+entryColumns+` FROM entries WHERE id = ?`, id)
	if err != nil {
		return ledger.Entry{}, err
	}
	entries, err := scanEntries(rows)
	if err != nil {
		return ledger.Entry{}, err
	}
	if len(entries) == 0 {
		return ledger.Entry{}, ledger.ErrNotFound
	}
	return entries[0], nil
}

func listEntries(ctx context.Context, q querier, key ledger.Key) ([]ledger.Entry, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+entryColumns+` FROM entries
		WHERE seller_id = ? AND period = ?
		ORDER BY date, created_at, id`,
		key.SellerID, key.Period)
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]ledger.Entry, error) {
	defer rows.Close()

	var out []ledger.Entry
	for rows.Next() {
		var (
			e                           ledger.Entry
			date, createdAt             string
			amount, saleAmount, percent string
			idempotencyKey, editedAt    sql.NullString
		)
		if err := rows.Scan(
			&e.ID, &e.Kind, &e.SellerID, &e.Period, &date, &amount, &e.Description, &e.SaleID,
			&saleAmount, &percent, &e.Rule, &e.PriceListID, &e.PaymentMethod, &e.ReceiptRef,
			&e.Note, &idempotencyKey, &e.CreatedBy, &createdAt, &e.EditedBy, &editedAt,
		); err != nil {
			return nil, err
		}

		var err error
		if e.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("entry %s amount: %w", e.ID, err)
		}
		if e.SaleAmount, err = decimal.NewFromString(saleAmount); err != nil {
			return nil, fmt.Errorf("entry %s sale amount: %w", e.ID, err)
		}
		if e.CommissionPercent, err = decimal.NewFromString(percent); err != nil {
			return nil, fmt.Errorf("entry %s commission percent: %w", e.ID, err)
		}
		if e.Date, err = parseTime(date); err != nil {
			return nil, fmt.Errorf("entry %s date: %w", e.ID, err)
		}
		if e.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("entry %s created_at: %w", e.ID, err)
		}
		if e.EditedAt, err = parseTimePtr(editedAt); err != nil {
			return nil, fmt.Errorf("entry %s edited_at: %w", e.ID, err)
		}
		e.IdempotencyKey = idempotencyKey.String
		out = append(out, e)
	}
	return out, rows.Err()
}

// =============================================================================
// PERIOD STORE
// =============================================================================

const periodColumns = `id, seller_id, period, period_type, status, generated_at, closed_at,
	paid_at, prior_balance, net_liability, total_paid, balance`

func (s *Store) GetPeriod(ctx context.Context, key ledger.Key) (ledger.PeriodRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getPeriod(ctx, s.db, key)
}

func (s *Store) LatestPeriodBefore(ctx context.Context, seller ledger.SellerID, period ledger.PeriodKey) (ledger.PeriodRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return latestPeriodBefore(ctx, s.db, seller, period)
}

func (s *Store) CreatePeriod(ctx context.Context, r ledger.PeriodRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createPeriod(ctx, s.db, r)
}

func (s *Store) UpdatePeriod(ctx context.Context, r ledger.PeriodRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updatePeriod(ctx, s.db, r)
}

func (s *Store) ListPeriods(ctx context.Context, seller ledger.SellerID) ([]ledger.PeriodRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryPeriods(ctx, s.db, `SELECT `+periodColumns+` FROM period_records
		WHERE seller_id = ? ORDER BY period`, seller)
}

func (s *Store) ListAllPeriods(ctx context.Context) ([]ledger.PeriodRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryPeriods(ctx, s.db, `SELECT `+periodColumns+` FROM period_records
		ORDER BY seller_id, period`)
}

func getPeriod(ctx context.Context, q querier, key ledger.Key) (ledger.PeriodRecord, error) {
	recs, err := queryPeriods(ctx, q, `SELECT `+periodColumns+` FROM period_records
		WHERE seller_id = ? AND period = ?`, key.SellerID, key.Period)
	if err != nil {
		return ledger.PeriodRecord{}, err
	}
	if len(recs) == 0 {
		return ledger.PeriodRecord{}, ledger.ErrNotFound
	}
	return recs[0], nil
}

func latestPeriodBefore(ctx context.Context, q querier, seller ledger.SellerID, period ledger.PeriodKey) (ledger.PeriodRecord, error) {
	recs, err := queryPeriods(ctx, q, `SELECT `+periodColumns+` FROM period_records
		WHERE seller_id = ? AND period_type = ? AND period < ?
		ORDER BY period DESC LIMIT 1`, seller, period.Type(), period)
	if err != nil {
		return ledger.PeriodRecord{}, err
	}
	if len(recs) == 0 {
		return ledger.PeriodRecord{}, ledger.ErrNotFound
	}
	return recs[0], nil
}

func createPeriod(ctx context.Context, q querier, r ledger.PeriodRecord) error {
	query := `INSERT INTO period_records (` + periodColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := q.ExecContext(ctx, query,
		r.ID, r.SellerID, r.Period, r.PeriodType, r.Status,
		formatTime(r.GeneratedAt), formatTimePtr(r.ClosedAt), formatTimePtr(r.PaidAt),
		r.PriorBalance.String(), r.NetLiability.String(), r.TotalPaid.String(), r.Balance.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert period record: %w", err)
	}
	return nil
}

func updatePeriod(ctx context.Context, q querier, r ledger.PeriodRecord) error {
	query := `
		UPDATE period_records SET status = ?, closed_at = ?, paid_at = ?,
			prior_balance = ?, net_liability = ?, total_paid = ?, balance = ?
		WHERE seller_id = ? AND period = ?
	`
	res, err := q.ExecContext(ctx, query,
		r.Status, formatTimePtr(r.ClosedAt), formatTimePtr(r.PaidAt),
		r.PriorBalance.String(), r.NetLiability.String(), r.TotalPaid.String(), r.Balance.String(),
		r.SellerID, r.Period,
	)
	if err != nil {
		return fmt.Errorf("failed to update period record: %w", err)
	}
	return requireRow(res)
}

func queryPeriods(ctx context.Context, q querier, query string, args ...any) ([]ledger.PeriodRecord, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.PeriodRecord
	for rows.Next() {
		var (
			r                         ledger.PeriodRecord
			generatedAt               string
			closedAt, paidAt          sql.NullString
			prior, net, paid, balance string
		)
		if err := rows.Scan(
			&r.ID, &r.SellerID, &r.Period, &r.PeriodType, &r.Status,
			&generatedAt, &closedAt, &paidAt, &prior, &net, &paid, &balance,
		); err != nil {
			return nil, err
		}
		var err error
		if r.GeneratedAt, err = parseTime(generatedAt); err != nil {
			return nil, fmt.Errorf("period %s/%s generated_at: %w", r.SellerID, r.Period, err)
		}
		if r.ClosedAt, err = parseTimePtr(closedAt); err != nil {
			return nil, fmt.Errorf("period %s/%s closed_at: %w", r.SellerID, r.Period, err)
		}
		if r.PaidAt, err = parseTimePtr(paidAt); err != nil {
			return nil, fmt.Errorf("period %s/%s paid_at: %w", r.SellerID, r.Period, err)
		}
		for _, f := range []struct {
			dst *decimal.Decimal
			src string
		}{{&r.PriorBalance, prior}, {&r.NetLiability, net}, {&r.TotalPaid, paid}, {&r.Balance, balance}} {
			d, err := decimal.NewFromString(f.src)
			if err != nil {
				return nil, fmt.Errorf("period %s/%s: %w", r.SellerID, r.Period, err)
			}
			*f.dst = d
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// =============================================================================
// AUDIT LOG
// =============================================================================

func (s *Store) AppendAudit(ctx context.Context, a ledger.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendAudit(ctx, s.db, a)
}

func (s *Store) QueryAudit(ctx context.Context, f ledger.AuditFilter) ([]ledger.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryAudit(ctx, s.db, f)
}

func appendAudit(ctx context.Context, q querier, a ledger.AuditEntry) error {
	payload, err := json.Marshal(a.Payload)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO audit_log (id, at, actor, action, seller_id, period, entry_id, payload_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, formatTime(a.At), a.Actor, a.Action, a.SellerID, a.Period, a.EntryID, string(payload),
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

func queryAudit(ctx context.Context, q querier, f ledger.AuditFilter) ([]ledger.AuditEntry, error) {
	query := `SELECT id, at, actor, action, seller_id, period, entry_id, payload_json
		FROM audit_log WHERE 1 = 1`
	var args []any
	if f.SellerID != "" {
		query += ` AND seller_id = ?`
		args = append(args, f.SellerID)
	}
	if f.Period != "" {
		query += ` AND period = ?`
		args = append(args, f.Period)
	}
	if f.EntryID != "" {
		query += ` AND entry_id = ?`
		args = append(args, f.EntryID)
	}
	query += ` ORDER BY at, rowid`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.AuditEntry
	for rows.Next() {
		var (
			a       ledger.AuditEntry
			at      string
			payload sql.NullString
		)
		if err := rows.Scan(&a.ID, &at, &a.Actor, &a.Action, &a.SellerID, &a.Period, &a.EntryID, &payload); err != nil {
			return nil, err
		}
		var err error
		if a.At, err = parseTime(at); err != nil {
			return nil, fmt.Errorf("audit %s at: %w", a.ID, err)
		}
		if payload.Valid && payload.String != "" {
			if err := json.Unmarshal([]byte(payload.String), &a.Payload); err != nil {
				return nil, fmt.Errorf("audit %s payload: %w", a.ID, err)
			}
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// =============================================================================
// TRANSACTIONAL STORE (ledger.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store ledger.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) CreateEntry(ctx context.Context, e ledger.Entry) error {
	return createEntry(ctx, ts.tx, e)
}

func (ts *txStore) UpdateEntry(ctx context.Context, e ledger.Entry) error {
	return updateEntry(ctx, ts.tx, e)
}

func (ts *txStore) GetEntry(ctx context.Context, id ledger.EntryID) (ledger.Entry, error) {
	return getEntry(ctx, ts.tx, id)
}

func (ts *txStore) ListEntries(ctx context.Context, key ledger.Key) ([]ledger.Entry, error) {
	return listEntries(ctx, ts.tx, key)
}

func (ts *txStore) GetPeriod(ctx context.Context, key ledger.Key) (ledger.PeriodRecord, error) {
	return getPeriod(ctx, ts.tx, key)
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
	return queryPeriods(ctx, ts.tx, `SELECT `+periodColumns+` FROM period_records
		WHERE seller_id = ? ORDER BY period`, seller)
}

func (ts *txStore) ListAllPeriods(ctx context.Context) ([]ledger.PeriodRecord, error) {
	return queryPeriods(ctx, ts.tx, `SELECT `+periodColumns+` FROM period_records
		ORDER BY seller_id, period`)
}

func (ts *txStore) AppendAudit(ctx context.Context, a ledger.AuditEntry) error {
	return appendAudit(ctx, ts.tx, a)
}

func (ts *txStore) QueryAudit(ctx context.Context, f ledger.AuditFilter) ([]ledger.AuditEntry, error) {
	return queryAudit(ctx, ts.tx, f)
}

// =============================================================================
// RECONCILIATION RUNS (ledger.RunStore interface)
// =============================================================================

// SaveRun saves a reconciliation run.
func (s *Store) SaveRun(ctx context.Context, r ledger.ReconciliationRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reconciliation_runs (id, started_at, completed_at, status, checked, drifted, repaired, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, formatTime(r.StartedAt), formatTime(r.CompletedAt), r.Status,
		r.Checked, r.Drifted, r.Repaired, r.Error,
	)
	return err
}

// ListRuns returns the most recent runs first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]ledger.ReconciliationRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, started_at, completed_at, status, checked, drifted, repaired, error
		FROM reconciliation_runs ORDER BY started_at DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []ledger.ReconciliationRun
	for rows.Next() {
		var r ledger.ReconciliationRun
		var startedAt, completedAt string
		if err := rows.Scan(&r.ID, &startedAt, &completedAt, &r.Status,
			&r.Checked, &r.Drifted, &r.Repaired, &r.Error); err != nil {
			return nil, err
		}
		var err error
		if r.StartedAt, err = parseTime(startedAt); err != nil {
			return nil, fmt.Errorf("run %s started_at: %w", r.ID, err)
		}
		if r.CompletedAt, err = parseTime(completedAt); err != nil {
			return nil, fmt.Errorf("run %s completed_at: %w", r.ID, err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// =============================================================================
// SELLER DIRECTORY (ledger.SellerDirectory interface)
// =============================================================================

// SaveSeller inserts or replaces a seller.
func (s *Store) SaveSeller(ctx context.Context, seller ledger.Seller) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if seller.Initials == "" {
		seller.Initials = ledger.Initials(seller.Name)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sellers (id, name, email, initials) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, email = excluded.email,
			initials = excluded.initials`,
		seller.ID, seller.Name, seller.Email, seller.Initials,
	)
	return err
}

// Lookup returns ledger.ErrNotFound for unknown sellers.
func (s *Store) Lookup(ctx context.Context, id ledger.SellerID) (ledger.Seller, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var seller ledger.Seller
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, email, initials FROM sellers WHERE id = ?`, id,
	).Scan(&seller.ID, &seller.Name, &seller.Email, &seller.Initials)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Seller{}, ledger.ErrNotFound
	}
	return seller, err
}

// ListSellers returns all sellers ordered by ID.
func (s *Store) ListSellers(ctx context.Context) ([]ledger.Seller, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT id, name, email, initials FROM sellers ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Seller
	for rows.Next() {
		var seller ledger.Seller
		if err := rows.Scan(&seller.ID, &seller.Name, &seller.Email, &seller.Initials); err != nil {
			return nil, err
		}
		out = append(out, seller)
	}
	return out, rows.Err()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"entries", "period_records", "audit_log", "reconciliation_runs", "sellers"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func formatTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeFormat, s)
}

func parseTimePtr(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}
