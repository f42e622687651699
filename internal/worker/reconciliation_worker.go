package worker

import (
	"context"
	"sync"
	"time"

	"github.com/bmptec/ledger-core/internal/observability"
	"go.uber.org/zap"
)

const reconciliationWorkerName = "reconciliation"

// Reconciler reports how many accounts drifted from their movement history.
type Reconciler interface {
	Run(ctx context.Context) (int, error)
}

// ReconciliationWorker runs periodic ledger reconciliation checks.
type ReconciliationWorker struct {
	svc      Reconciler
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewReconciliationWorker constructs a worker with a default daily interval.
func NewReconciliationWorker(svc Reconciler) *ReconciliationWorker {
	return &ReconciliationWorker{
		svc:      svc,
		interval: 24 * time.Hour,
		stopCh:   make(chan struct{}),
	}
}

// WithInterval updates the run interval.
func (w *ReconciliationWorker) WithInterval(interval time.Duration) *ReconciliationWorker {
	if interval > 0 {
		w.interval = interval
	}
	return w
}

// Start blocks and runs reconciliation at the configured interval.
func (w *ReconciliationWorker) Start(ctx context.Context) {
	zap.L().Info("reconciliation worker starting", zap.Duration("interval", w.interval))
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// Run once immediately at startup.
	w.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("reconciliation worker context canceled")
			return
		case <-w.stopCh:
			zap.L().Info("reconciliation worker stop signal received")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// Stop stops the running worker loop.
func (w *ReconciliationWorker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
}

// Run starts the worker in a goroutine and returns a stop function.
func (w *ReconciliationWorker) Run(ctx context.Context) func() {
	go w.Start(ctx)
	return w.Stop
}

// RunOnce performs a single reconciliation pass and returns the drift count.
func (w *ReconciliationWorker) RunOnce(ctx context.Context) int {
	drifted, err := w.svc.Run(ctx)
	if err != nil {
		observability.IncrementWorkerRun(reconciliationWorkerName, "failed")
		zap.L().Error("reconciliation run failed", zap.Error(err))
		return 0
	}
	if drifted > 0 {
		observability.IncrementWorkerRun(reconciliationWorkerName, "drift")
		return drifted
	}
	observability.IncrementWorkerRun(reconciliationWorkerName, "success")
	return 0
}
