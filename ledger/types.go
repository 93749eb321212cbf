/*
Package ledger provides the commission period ledger.

PURPOSE:
  Accumulates per-seller, per-period financial facts (sale commissions,
  manual credits/debits, payments), derives the net liability owed to the
  seller for each period and carries unpaid balances forward. Each period
  follows a small lifecycle (open -> closed -> paid, with reopening) that
  decides which mutations are accepted.

KEY CONCEPTS IN THIS FILE (types.go):
  - Entry: One financial fact tagged with (SellerID, Period)
  - EntrySet: A period's entries grouped by kind
  - PeriodRecord: The persisted aggregate for one (SellerID, Period)
  - Totals: Output of the recalculation engine

LEDGER IDENTITY:
  netLiability = commissions + credits - debits + priorBalance
  balance      = netLiability - payments

  balance > 0  => still owed to the seller
  balance <= 0 => nothing owed (negative means overpaid)

DESIGN PRINCIPLES:
  1. Precision: All money is decimal.Decimal, never float64
  2. Derived totals: PeriodRecord totals are always recomputed from entries
  3. No deletion: Entries are created and edited, never removed
  4. Auditability: Every mutation appends an AuditEntry in the same unit of work

SEE ALSO:
  - recalc.go: Recalculation engine
  - state.go: Period state machine and mutation gate
  - transfer.go: Moving an entry between periods
  - ledger.go: Service orchestrating stores, locks and transactions
*/
package ledger

import (
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type SellerID string
type EntryID string
type RecordID string

// =============================================================================
// ENTRY - One financial fact
// =============================================================================

type EntryKind string

const (
	KindCommission EntryKind = "commission" // Earned on a sale, supplied by the sale feed
	KindCredit     EntryKind = "credit"     // Manual adjustment in the seller's favour
	KindDebit      EntryKind = "debit"      // Manual adjustment against the seller
	KindPayment    EntryKind = "payment"    // Disbursement to the seller
)

// Valid reports whether k is one of the known entry kinds.
func (k EntryKind) Valid() bool {
	switch k {
	case KindCommission, KindCredit, KindDebit, KindPayment:
		return true
	}
	return false
}

// IsManual reports whether k is an operator-created credit or debit.
func (k EntryKind) IsManual() bool {
	return k == KindCredit || k == KindDebit
}

// CommissionRule records which pricing rule produced a commission upstream.
type CommissionRule string

const (
	RuleFixedSellerRate CommissionRule = "fixed_seller_rate"
	RulePriceListFixed  CommissionRule = "price_list_fixed"
	RulePriceListTiered CommissionRule = "price_list_tiered"
)

func (r CommissionRule) Valid() bool {
	switch r {
	case RuleFixedSellerRate, RulePriceListFixed, RulePriceListTiered:
		return true
	}
	return false
}

// Entry is a single commission, manual adjustment or payment.
//
// Amount holds commissionAmount for commissions and the (positive) amount
// for every other kind. Kind-specific fields are left zero when they do not
// apply.
type Entry struct {
	ID       EntryID
	Kind     EntryKind
	SellerID SellerID
	Period   PeriodKey
	Date     time.Time
	Amount   decimal.Decimal

	// Manual entries
	Description string

	// Sale commissions
	SaleID            string
	SaleAmount        decimal.Decimal
	CommissionPercent decimal.Decimal
	Rule              CommissionRule
	PriceListID       string

	// Payments
	PaymentMethod string
	ReceiptRef    string

	// Free text for commissions and payments
	Note string

	IdempotencyKey string

	// Audit fields
	CreatedBy string
	CreatedAt time.Time
	EditedBy  string
	EditedAt  *time.Time
}

// Key returns the period record key this entry belongs to.
func (e Entry) Key() Key {
	return Key{SellerID: e.SellerID, Period: e.Period}
}

// Contribution is the entry's effect on netLiability: +amount for
// commissions and credits, -amount for debits, zero for payments.
func (e Entry) Contribution() decimal.Decimal {
	switch e.Kind {
	case KindCommission, KindCredit:
		return e.Amount
	case KindDebit:
		return e.Amount.Neg()
	default:
		return decimal.Zero
	}
}

// EntrySet is a period's entries grouped by kind.
type EntrySet struct {
	Commissions []Entry
	Credits     []Entry
	Debits      []Entry
	Payments    []Entry
}

// GroupEntries splits a flat entry list into an EntrySet, preserving order.
func GroupEntries(entries []Entry) EntrySet {
	var set EntrySet
	for _, e := range entries {
		switch e.Kind {
		case KindCommission:
			set.Commissions = append(set.Commissions, e)
		case KindCredit:
			set.Credits = append(set.Credits, e)
		case KindDebit:
			set.Debits = append(set.Debits, e)
		case KindPayment:
			set.Payments = append(set.Payments, e)
		}
	}
	return set
}

// =============================================================================
// PERIOD RECORD - Persisted aggregate per (SellerID, Period)
// =============================================================================

type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
	StatusPaid   Status = "paid"
)

// Key identifies one period record.
type Key struct {
	SellerID SellerID
	Period   PeriodKey
}

func (k Key) String() string {
	return string(k.SellerID) + "/" + string(k.Period)
}

// PeriodRecord holds the persisted totals and lifecycle state of one period.
// Entries are not embedded; they are queried by Key.
type PeriodRecord struct {
	ID          RecordID
	SellerID    SellerID
	Period      PeriodKey
	PeriodType  PeriodType
	Status      Status
	GeneratedAt time.Time
	ClosedAt    *time.Time
	PaidAt      *time.Time

	PriorBalance decimal.Decimal
	NetLiability decimal.Decimal
	TotalPaid    decimal.Decimal
	Balance      decimal.Decimal
}

func (r PeriodRecord) Key() Key {
	return Key{SellerID: r.SellerID, Period: r.Period}
}

// Owed reports whether money is still owed to the seller.
func (r PeriodRecord) Owed() bool {
	return r.Balance.IsPositive()
}

// Totals is the output of the recalculation engine.
type Totals struct {
	Commissions  decimal.Decimal
	Credits      decimal.Decimal
	Debits       decimal.Decimal
	Paid         decimal.Decimal
	NetLiability decimal.Decimal
	Balance      decimal.Decimal
}

// =============================================================================
// SELLER - Display data from the seller directory
// =============================================================================

type Seller struct {
	ID       SellerID
	Name     string
	Email    string
	Initials string
}

// Initials derives a short label from a display name: the first letter of
// the first and last words, upper-cased.
func Initials(name string) string {
	words := strings.Fields(name)
	if len(words) == 0 {
		return ""
	}
	first := []rune(words[0])[0]
	if len(words) == 1 {
		return string(unicode.ToUpper(first))
	}
	last := []rune(words[len(words)-1])[0]
	return string([]rune{unicode.ToUpper(first), unicode.ToUpper(last)})
}
