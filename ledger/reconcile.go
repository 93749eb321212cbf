package ledger

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ReconcileResult describes one period checked against its entries.
type ReconcileResult struct {
	Key     Key
	Drifted bool
	Before  PeriodRecord
	After   PeriodRecord
}

// Reconcile recomputes key from its entries and rewrites the record if the
// stored totals drifted. Settle is applied either way.
func (l *Ledger) Reconcile(ctx context.Context, key Key) (ReconcileResult, error) {
	unlock := l.locks.Lock(key)
	defer unlock()

	res := ReconcileResult{Key: key}
	err := l.withTx(ctx, []Key{key}, func(s Store) error {
		before, err := l.loadPeriod(ctx, s, key)
		if err != nil {
			return err
		}
		entries, err := s.ListEntries(ctx, key)
		if err != nil {
			return Persistence("list entries", err)
		}
		res.Before = before
		res.Drifted = before.Drift(Compute(GroupEntries(entries), before.PriorBalance))
		res.After, err = l.recalculate(ctx, s, key, SystemActor)
		return err
	})
	if err != nil {
		return ReconcileResult{}, err
	}
	if res.Drifted {
		l.log.Warn("period drift repaired",
			zap.String("seller", string(key.SellerID)),
			zap.String("period", string(key.Period)),
			zap.String("stored_balance", res.Before.Balance.String()),
			zap.String("balance", res.After.Balance.String()))
	}
	return res, nil
}

// ReconcileAll sweeps every period record. A failing period is logged and
// the sweep continues; the run is marked failed if any period failed.
// Runs are persisted when the store implements RunStore.
func (l *Ledger) ReconcileAll(ctx context.Context) (ReconciliationRun, error) {
	run := ReconciliationRun{
		ID:        uuid.NewString(),
		StartedAt: l.now(),
		Status:    RunCompleted,
	}

	recs, err := l.store.ListAllPeriods(ctx)
	if err != nil {
		run.Status = RunFailed
		run.Error = err.Error()
		run.CompletedAt = l.now()
		l.saveRun(ctx, run)
		return run, Persistence("list periods", err)
	}

	var firstErr error
	for _, rec := range recs {
		if ctx.Err() != nil {
			firstErr = ctx.Err()
			break
		}
		run.Checked++
		res, err := l.Reconcile(ctx, rec.Key())
		if err != nil {
			l.log.Error("reconcile period",
				zap.String("seller", string(rec.SellerID)),
				zap.String("period", string(rec.Period)),
				zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if res.Drifted {
			run.Drifted++
			run.Repaired++
		}
	}

	run.CompletedAt = l.now()
	if firstErr != nil {
		run.Status = RunFailed
		run.Error = firstErr.Error()
	}
	l.saveRun(ctx, run)

	l.log.Info("reconciliation run",
		zap.String("run", run.ID),
		zap.String("status", string(run.Status)),
		zap.Int("checked", run.Checked),
		zap.Int("drifted", run.Drifted))
	return run, firstErr
}

// Runs returns recent reconciliation runs, or nil if the store keeps none.
func (l *Ledger) Runs(ctx context.Context, limit int) ([]ReconciliationRun, error) {
	rs, ok := l.store.(RunStore)
	if !ok {
		return nil, nil
	}
	runs, err := rs.ListRuns(ctx, limit)
	return runs, Persistence("list runs", err)
}

func (l *Ledger) saveRun(ctx context.Context, run ReconciliationRun) {
	rs, ok := l.store.(RunStore)
	if !ok {
		return
	}
	if err := rs.SaveRun(ctx, run); err != nil {
		l.log.Error("save reconciliation run", zap.String("run", run.ID), zap.Error(err))
	}
}
