/*
recalc.go - Recalculation engine

PURPOSE:
  Derives a period's totals from its entries and carried-over balance.
  This is the only place ledger arithmetic happens.

ALGORITHM:
  commissions = sum(commission.Amount)
  credits     = sum(credit.Amount)
  debits      = sum(debit.Amount)
  paid        = sum(payment.Amount)

  netLiability = commissions + credits - debits + priorBalance
  balance      = netLiability - paid

PURITY:
  Compute has no side effects and does not look at status. The
  closed -> paid auto-transition is a separate post-condition (Settle in
  state.go) so the transition table can be tested without arithmetic.
  Running Compute twice on the same input yields identical output.
*/
package ledger

import "github.com/shopspring/decimal"

// Compute derives totals for one period from its entries and prior balance.
func Compute(set EntrySet, priorBalance decimal.Decimal) Totals {
	t := Totals{
		Commissions: sum(set.Commissions),
		Credits:     sum(set.Credits),
		Debits:      sum(set.Debits),
		Paid:        sum(set.Payments),
	}
	t.NetLiability = t.Commissions.Add(t.Credits).Sub(t.Debits).Add(priorBalance)
	t.Balance = t.NetLiability.Sub(t.Paid)
	return t
}

func sum(entries []Entry) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		total = total.Add(e.Amount)
	}
	return total
}

// Apply writes totals into r. Status and timestamps are left untouched.
func (r PeriodRecord) Apply(t Totals) PeriodRecord {
	r.NetLiability = t.NetLiability
	r.TotalPaid = t.Paid
	r.Balance = t.Balance
	return r
}

// Drift reports whether r's stored totals disagree with t.
func (r PeriodRecord) Drift(t Totals) bool {
	return !r.NetLiability.Equal(t.NetLiability) ||
		!r.TotalPaid.Equal(t.Paid) ||
		!r.Balance.Equal(t.Balance)
}
