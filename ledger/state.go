/*
state.go - Period state machine and mutation gate

STATES:
  open    Initial. Accepts every kind of entry.
  closed  Period is being settled. Accepts payments and upstream commissions.
  paid    Terminal. Nothing is owed and nothing more can be booked.

TRANSITIONS:
  open   -> closed   Close     stamps ClosedAt
  closed -> paid     Settle    automatic once Balance <= 0, stamps PaidAt once
  closed -> paid     MarkPaid  explicit, same precondition as Settle
  closed -> open     Reopen    clears ClosedAt, totals unchanged

  Every other (state, action) pair is an InvalidStateTransition. No
  transition touches entries.

MUTATION GATE:
               commission   credit/debit          payment
    open       yes          yes                   yes
    closed     yes          LateAllow policy only yes
    paid       no           no                    no

  A paid period is frozen. The sale feed must target an open or closed
  period instead. Transfers need
  both periods to admit the entry and neither to be paid.
*/
package ledger

import (
	"fmt"
	"time"
)

// LatePolicy decides whether manual adjustments may target closed periods.
type LatePolicy string

const (
	LateStrict LatePolicy = "strict"
	LateAllow  LatePolicy = "allow"
)

// ParseLatePolicy maps a config value to a policy.
func ParseLatePolicy(s string) (LatePolicy, error) {
	switch LatePolicy(s) {
	case LateStrict, LateAllow:
		return LatePolicy(s), nil
	}
	return "", fmt.Errorf("late policy must be %s or %s, got %q", LateStrict, LateAllow, s)
}

// Close moves an open period to closed.
func Close(r PeriodRecord, now time.Time) (PeriodRecord, error) {
	if r.Status != StatusOpen {
		return r, transitionError(r, "close", "only open periods can be closed")
	}
	r.Status = StatusClosed
	r.ClosedAt = &now
	return r, nil
}

// Reopen moves a closed period back to open. Totals are not touched.
func Reopen(r PeriodRecord) (PeriodRecord, error) {
	switch r.Status {
	case StatusPaid:
		return r, transitionError(r, "reopen", "a paid period cannot be reopened")
	case StatusOpen:
		return r, transitionError(r, "reopen", "only closed periods can be reopened")
	}
	r.Status = StatusOpen
	r.ClosedAt = nil
	return r, nil
}

// MarkPaid settles a closed period explicitly. The balance must already be
// zero or negative.
func MarkPaid(r PeriodRecord, now time.Time) (PeriodRecord, error) {
	if r.Status != StatusClosed {
		return r, transitionError(r, "mark paid", "only closed periods can be marked paid")
	}
	if r.Owed() {
		return r, transitionError(r, "mark paid", "balance "+r.Balance.String()+" is still owed")
	}
	r, _ = Settle(r, now)
	return r, nil
}

// Settle is the post-condition run after every recalculation: a closed
// period with nothing owed becomes paid. PaidAt is stamped only the first
// time. Reports whether the status changed.
func Settle(r PeriodRecord, now time.Time) (PeriodRecord, bool) {
	if r.Status != StatusClosed || r.Owed() {
		return r, false
	}
	r.Status = StatusPaid
	if r.PaidAt == nil {
		r.PaidAt = &now
	}
	return r, true
}

// Admits reports whether a period in status accepts an entry of kind.
func Admits(status Status, kind EntryKind, policy LatePolicy) bool {
	switch status {
	case StatusOpen:
		return true
	case StatusClosed:
		return kind == KindCommission || kind == KindPayment || policy == LateAllow
	default:
		return false
	}
}

// checkAdmits returns a StateTransitionError when r does not accept kind.
func checkAdmits(r PeriodRecord, kind EntryKind, policy LatePolicy, action string) error {
	if Admits(r.Status, kind, policy) {
		return nil
	}
	return transitionError(r, action, "period does not accept "+string(kind)+" entries")
}

// checkTransferable guards both ends of a transfer.
func checkTransferable(r PeriodRecord, kind EntryKind, policy LatePolicy) error {
	if r.Status == StatusPaid {
		return transitionError(r, "transfer", "a paid period cannot be changed")
	}
	return checkAdmits(r, kind, policy, "transfer")
}

func transitionError(r PeriodRecord, action, reason string) error {
	return &StateTransitionError{Key: r.Key(), From: r.Status, Action: action, Reason: reason}
}
