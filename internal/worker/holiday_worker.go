package worker

import (
	"context"
	"sync"
	"time"

	"github.com/bmptec/ledger-core/internal/observability"
	"go.uber.org/zap"
)

const holidayWorkerName = "holiday_refresh"

// HolidayRefresher reloads the holiday list of one year.
type HolidayRefresher interface {
	Refresh(ctx context.Context, year int) error
}

// HolidayWorker keeps the holiday cache warm for the current and the
// following year, so the first transfer of January never waits on the
// upstream calendar.
type HolidayWorker struct {
	calendar HolidayRefresher
	interval time.Duration
	loc      *time.Location
	now      func() time.Time
	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewHolidayWorker(calendar HolidayRefresher, loc *time.Location) *HolidayWorker {
	if loc == nil {
		loc = time.UTC
	}
	return &HolidayWorker{
		calendar: calendar,
		interval: 12 * time.Hour,
		loc:      loc,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
}

func (w *HolidayWorker) WithInterval(interval time.Duration) *HolidayWorker {
	if interval > 0 {
		w.interval = interval
	}
	return w
}

func (w *HolidayWorker) WithClock(now func() time.Time) *HolidayWorker {
	if now != nil {
		w.now = now
	}
	return w
}

// Start blocks and refreshes holidays at the configured interval.
func (w *HolidayWorker) Start(ctx context.Context) {
	zap.L().Info("holiday worker starting", zap.Duration("interval", w.interval))
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

func (w *HolidayWorker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
}

// Run starts the worker in a goroutine and returns a stop function.
func (w *HolidayWorker) Run(ctx context.Context) func() {
	go w.Start(ctx)
	return w.Stop
}

// RunOnce refreshes both years and reports whether every refresh succeeded.
func (w *HolidayWorker) RunOnce(ctx context.Context) bool {
	year := w.now().In(w.loc).Year()
	ok := true
	for _, y := range []int{year, year + 1} {
		if err := w.calendar.Refresh(ctx, y); err != nil {
			ok = false
			zap.L().Warn("holiday refresh failed", zap.Int("year", y), zap.Error(err))
		}
	}
	if ok {
		observability.IncrementWorkerRun(holidayWorkerName, "success")
	} else {
		observability.IncrementWorkerRun(holidayWorkerName, "failed")
	}
	return ok
}
