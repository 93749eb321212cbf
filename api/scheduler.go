/*
scheduler.go - Background reconciliation sweep

PURPOSE:
  Periodically recomputes every period record from its entries and
  repairs any whose stored totals drifted (for example after a crash
  between writes on a backend without transactions, or manual edits to
  the database). Each sweep is recorded as a ReconciliationRun.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Runs once immediately on Start
  - One sweep at a time; RunNow from the API shares the same mutex

USAGE:
  scheduler := NewReconciliationScheduler(l, logger, time.Hour)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - ledger/reconcile.go: Reconcile / ReconcileAll
*/
package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mediandev/prosellerv1-sub003/ledger"
)

// ReconciliationScheduler runs ledger.ReconcileAll on a ticker.
type ReconciliationScheduler struct {
	Ledger        *ledger.Ledger
	Log           *zap.Logger
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
	sweep  sync.Mutex
}

// NewReconciliationScheduler creates a scheduler. An interval of zero
// disables it.
func NewReconciliationScheduler(l *ledger.Ledger, log *zap.Logger, interval time.Duration) *ReconciliationScheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &ReconciliationScheduler{
		Ledger:        l,
		Log:           log,
		CheckInterval: interval,
		Enabled:       interval > 0,
		stop:          make(chan struct{}),
	}
}

// Start begins the scheduler.
func (rs *ReconciliationScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled {
		rs.Log.Info("reconciliation scheduler disabled")
		return
	}
	if rs.ticker != nil {
		return
	}

	rs.ticker = time.NewTicker(rs.CheckInterval)
	rs.wg.Add(1)
	go rs.run()

	rs.Log.Info("reconciliation scheduler started", zap.Duration("interval", rs.CheckInterval))
}

// Stop stops the scheduler and waits for an in-flight sweep.
func (rs *ReconciliationScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker != nil {
		rs.ticker.Stop()
		close(rs.stop)
		rs.wg.Wait()
		rs.ticker = nil
		rs.Log.Info("reconciliation scheduler stopped")
	}
}

func (rs *ReconciliationScheduler) run() {
	defer rs.wg.Done()

	rs.RunNow(context.Background())

	for {
		select {
		case <-rs.ticker.C:
			rs.RunNow(context.Background())
		case <-rs.stop:
			return
		}
	}
}

// RunNow performs one sweep synchronously.
func (rs *ReconciliationScheduler) RunNow(ctx context.Context) ledger.ReconciliationRun {
	rs.sweep.Lock()
	defer rs.sweep.Unlock()

	run, err := rs.Ledger.ReconcileAll(ctx)
	if err != nil {
		rs.Log.Error("reconciliation sweep failed", zap.String("run", run.ID), zap.Error(err))
	}
	return run
}
