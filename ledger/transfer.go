/*
transfer.go - Editing entries and moving them between periods

PURPOSE:
  An entry belongs to exactly one (SellerID, Period). Changing the period
  removes its contribution from the source period and adds it to the
  target, which must happen in one unit of work.

ALGORITHM (TransferEntry / UpdateEntry with a new Period):
  1. Lock source and target keys (sorted, so two opposing transfers
     cannot deadlock)
  2. WithTx:
     a. Reload the entry, check it is still in the locked source period
     b. Check both periods admit the entry and neither is paid
     c. Get or create the target period
     d. Rewrite the entry with the new Period and edit stamp
     e. Recalculate source, then target
     f. Append the audit entry
  3. On failure: log, reconcile both periods best effort, return the error

CONSERVATION:
  Neither period's PriorBalance changes during a transfer, so the sum of
  NetLiability (and of Balance) across the two periods is identical
  before and after.
*/
package ledger

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// maxRelockAttempts bounds how often UpdateEntry retries when the entry
// moved between reading it and acquiring the locks.
const maxRelockAttempts = 3

// EntryPatch lists the editable fields. Nil fields are left unchanged.
//
// Commissions only accept Note and Period; their amounts are upstream facts.
type EntryPatch struct {
	Amount        *decimal.Decimal
	Description   *string
	Date          *time.Time
	PaymentMethod *string
	ReceiptRef    *string
	Note          *string
	Period        *PeriodKey
}

// IsEmpty reports whether the patch changes nothing.
func (p EntryPatch) IsEmpty() bool {
	return p.Amount == nil && p.Description == nil && p.Date == nil &&
		p.PaymentMethod == nil && p.ReceiptRef == nil && p.Note == nil && p.Period == nil
}

// TransferEntry moves an entry to another period of the same seller.
func (l *Ledger) TransferEntry(ctx context.Context, actor string, id EntryID, to PeriodKey) (Entry, error) {
	return l.UpdateEntry(ctx, actor, id, EntryPatch{Period: &to})
}

// UpdateEntry applies patch to the entry. If the patch changes Period the
// entry is transferred and both periods are recalculated atomically.
func (l *Ledger) UpdateEntry(ctx context.Context, actor string, id EntryID, patch EntryPatch) (Entry, error) {
	if patch.IsEmpty() {
		return Entry{}, invalid("patch", "no fields to update")
	}
	if patch.Period != nil {
		if _, err := ParsePeriodKey(string(*patch.Period)); err != nil {
			return Entry{}, invalid("period", err.Error())
		}
	}
	actor = actorOrSystem(actor)

	for attempt := 0; attempt < maxRelockAttempts; attempt++ {
		current, err := l.GetEntry(ctx, id)
		if err != nil {
			return Entry{}, err
		}
		from := current.Key()
		to := from
		if patch.Period != nil {
			to.Period = *patch.Period
		}

		updated, err := l.updateLocked(ctx, actor, id, patch, from, to)
		if errors.Is(err, errEntryMoved) {
			continue
		}
		if err != nil && from != to {
			l.transferFailed(ctx, id, from, to, err)
		}
		return updated, err
	}
	return Entry{}, Persistence("update entry", errEntryMoved)
}

var errEntryMoved = errors.New("entry moved concurrently")

func (l *Ledger) updateLocked(ctx context.Context, actor string, id EntryID, patch EntryPatch, from, to Key) (Entry, error) {
	unlock := l.locks.Lock(from, to)
	defer unlock()

	var out Entry
	err := l.withTx(ctx, []Key{from, to}, func(s Store) error {
		e, err := s.GetEntry(ctx, id)
		if err != nil {
			return notFoundOr(err, "entry", string(id), "get entry")
		}
		if e.Key() != from {
			return errEntryMoved
		}

		updated, err := applyPatch(e, patch)
		if err != nil {
			return err
		}
		now := l.now()
		updated.EditedBy = actor
		updated.EditedAt = &now

		fromRec, err := l.loadPeriod(ctx, s, from)
		if err != nil {
			return err
		}

		if from == to {
			if err := checkAdmits(fromRec, e.Kind, l.policy, "edit entry in"); err != nil {
				return err
			}
			if err := s.UpdateEntry(ctx, updated); err != nil {
				return Persistence("update entry", err)
			}
			if err := l.audit(ctx, s, actor, AuditEntryUpdated, from, id, diff(e, updated)); err != nil {
				return err
			}
			if _, err := l.recalculate(ctx, s, from, actor); err != nil {
				return err
			}
			out = updated
			return nil
		}

		if err := checkTransferable(fromRec, e.Kind, l.policy); err != nil {
			return err
		}
		toRec, err := l.getOrCreate(ctx, s, to, now)
		if err != nil {
			return err
		}
		if err := checkTransferable(toRec, e.Kind, l.policy); err != nil {
			return err
		}
		if err := s.UpdateEntry(ctx, updated); err != nil {
			return Persistence("update entry", err)
		}
		if _, err := l.recalculate(ctx, s, from, actor); err != nil {
			return err
		}
		if _, err := l.recalculate(ctx, s, to, actor); err != nil {
			return err
		}
		payload := diff(e, updated)
		payload["from"] = string(from.Period)
		payload["to"] = string(to.Period)
		if err := l.audit(ctx, s, actor, AuditEntryTransferred, to, id, payload); err != nil {
			return err
		}
		out = updated
		return nil
	})
	if err != nil {
		return Entry{}, err
	}

	if from != to {
		l.log.Info("entry transferred",
			zap.String("entry", string(id)),
			zap.String("seller", string(from.SellerID)),
			zap.String("from", string(from.Period)),
			zap.String("to", string(to.Period)),
			zap.String("actor", actor))
	} else {
		l.log.Info("entry updated",
			zap.String("entry", string(id)),
			zap.String("seller", string(from.SellerID)),
			zap.String("period", string(from.Period)),
			zap.String("actor", actor))
	}
	return out, nil
}

// transferFailed is the compensating path. The transaction has already
// rolled back; reconciliation confirms both periods agree with their
// entries and repairs them if the backend left them inconsistent.
func (l *Ledger) transferFailed(ctx context.Context, id EntryID, from, to Key, err error) {
	if IsClientError(err) || IsNotFound(err) {
		return
	}
	l.log.Error("entry transfer failed",
		zap.String("entry", string(id)),
		zap.String("seller", string(from.SellerID)),
		zap.String("from", string(from.Period)),
		zap.String("to", string(to.Period)),
		zap.Error(err))
	for _, key := range []Key{from, to} {
		if _, rerr := l.Reconcile(ctx, key); rerr != nil && !IsNotFound(rerr) {
			l.log.Error("reconcile after failed transfer",
				zap.String("seller", string(key.SellerID)),
				zap.String("period", string(key.Period)),
				zap.Error(rerr))
		}
	}
}

// applyPatch returns e with patch applied, enforcing per-kind editability.
func applyPatch(e Entry, p EntryPatch) (Entry, error) {
	if e.Kind == KindCommission {
		switch {
		case p.Amount != nil:
			return e, invalid("amount", "commission amounts cannot be edited")
		case p.Date != nil:
			return e, invalid("date", "commission dates cannot be edited")
		case p.Description != nil:
			return e, invalid("description", "commissions have no description")
		case p.PaymentMethod != nil, p.ReceiptRef != nil:
			return e, invalid("paymentMethod", "only payments carry payment details")
		}
	}
	if e.Kind.IsManual() {
		switch {
		case p.PaymentMethod != nil, p.ReceiptRef != nil:
			return e, invalid("paymentMethod", "only payments carry payment details")
		case p.Note != nil:
			return e, invalid("note", "manual entries use description")
		}
	}
	if e.Kind == KindPayment && p.Description != nil {
		return e, invalid("description", "payments use note")
	}

	if p.Amount != nil {
		e.Amount = *p.Amount
	}
	if p.Description != nil {
		e.Description = *p.Description
	}
	if p.Date != nil {
		e.Date = *p.Date
	}
	if p.PaymentMethod != nil {
		e.PaymentMethod = *p.PaymentMethod
	}
	if p.ReceiptRef != nil {
		e.ReceiptRef = *p.ReceiptRef
	}
	if p.Note != nil {
		e.Note = *p.Note
	}
	if p.Period != nil {
		e.Period = *p.Period
	}
	if e.Kind.IsManual() && strings.TrimSpace(e.Description) == "" {
		return e, invalid("description", "is required")
	}
	return e, validateEntry(e)
}

// diff records changed fields as "old -> new" for the audit payload.
func diff(before, after Entry) map[string]string {
	out := map[string]string{}
	if !before.Amount.Equal(after.Amount) {
		out["amount"] = before.Amount.String() + " -> " + after.Amount.String()
	}
	if before.Description != after.Description {
		out["description"] = before.Description + " -> " + after.Description
	}
	if !before.Date.Equal(after.Date) {
		out["date"] = before.Date.Format(time.RFC3339) + " -> " + after.Date.Format(time.RFC3339)
	}
	if before.PaymentMethod != after.PaymentMethod {
		out["paymentMethod"] = before.PaymentMethod + " -> " + after.PaymentMethod
	}
	if before.ReceiptRef != after.ReceiptRef {
		out["receiptRef"] = before.ReceiptRef + " -> " + after.ReceiptRef
	}
	if before.Note != after.Note {
		out["note"] = before.Note + " -> " + after.Note
	}
	return out
}
