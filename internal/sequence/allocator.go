package sequence

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bmptec/ledger-core/internal/domain"
	"github.com/bmptec/ledger-core/internal/observability"
	"go.uber.org/zap"
)

const (
	DefaultRestartValue = 1000
	DefaultTransferCode = "CHU"
)

// Store is the persisted authority for named counters.
type Store interface {
	// Allocate advances the counter and returns the new value, which is never
	// below floor.
	Allocate(ctx context.Context, name string, floor int64) (int64, error)
	// Reset stores value as the last issued number.
	Reset(ctx context.Context, name string, value int64) error
	// MaxObserved derives the highest number already in use from the
	// records the counter feeds.
	MaxObserved(ctx context.Context, name string) (int64, error)
}

// Allocator issues strictly increasing numbers per counter name. Calls are
// serialized within the process; the store decides across processes.
type Allocator struct {
	mu      sync.Mutex
	store   Store
	cache   Cache
	restart int64
	prefix  string
	now     func() time.Time
}

func NewAllocator(store Store, cache Cache) *Allocator {
	if cache == nil {
		cache = NewMemoryCache()
	}
	return &Allocator{
		store:   store,
		cache:   cache,
		restart: DefaultRestartValue,
		prefix:  DefaultTransferCode,
		now:     time.Now,
	}
}

// WithRestartValue sets the first number handed out after Reset.
func (a *Allocator) WithRestartValue(v int64) *Allocator {
	if v > 0 {
		a.restart = v
	}
	return a
}

// WithTransferPrefix sets the prefix of transfer codes.
func (a *Allocator) WithTransferPrefix(prefix string) *Allocator {
	if prefix != "" {
		a.prefix = prefix
	}
	return a
}

func (a *Allocator) WithClock(now func() time.Time) *Allocator {
	if now != nil {
		a.now = now
	}
	return a
}

// Next returns the next value of counter name.
func (a *Allocator) Next(ctx context.Context, name string) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var floor int64
	cached, warm := a.cached(ctx, name)
	if warm {
		floor = cached + 1
	}

	value, err := a.store.Allocate(ctx, name, floor)
	if err != nil {
		observability.IncrementSequenceFallback(name)
		zap.L().Warn("counter store unavailable, using best-effort value",
			zap.String("counter", name), zap.Bool("cache_warm", warm), zap.Error(err))

		value, err = a.fallback(ctx, name, warm, floor)
		if err != nil {
			return 0, err
		}
	}

	if err := a.cache.Set(ctx, name, value); err != nil {
		zap.L().Warn("sequence cache write failed", zap.String("counter", name), zap.Error(err))
	}
	return value, nil
}

// fallback values are not guaranteed unique when several writers race.
func (a *Allocator) fallback(ctx context.Context, name string, warm bool, floor int64) (int64, error) {
	if warm {
		return floor, nil
	}
	maxObserved, err := a.store.MaxObserved(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("derive %s sequence from existing records: %w", name, err)
	}
	return maxObserved + 1, nil
}

func (a *Allocator) cached(ctx context.Context, name string) (int64, bool) {
	v, ok, err := a.cache.Get(ctx, name)
	if err != nil {
		zap.L().Warn("sequence cache read failed", zap.String("counter", name), zap.Error(err))
		return 0, false
	}
	return v, ok
}

// GenerateAccountNumber allocates the next account sequence and renders it
// as NNNNNN-D.
func (a *Allocator) GenerateAccountNumber(ctx context.Context) (string, error) {
	seq, err := a.Next(ctx, domain.CounterAccount)
	if err != nil {
		return "", err
	}
	return domain.FormatAccountNumber(seq)
}

// CheckDigit computes the modulo-11 verification digit of digits.
func (a *Allocator) CheckDigit(digits string) (int, error) {
	return domain.CheckDigit(digits)
}

// GenerateTransferCode returns PREFIX-yyyyMMdd-NNNNNN using the UTC date.
func (a *Allocator) GenerateTransferCode(ctx context.Context) (string, error) {
	seq, err := a.Next(ctx, domain.CounterTransfer)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s-%06d", a.prefix, a.now().UTC().Format("20060102"), seq), nil
}

// Reset drops the cached value and restarts the persisted counter so the
// next allocation returns the restart value. Failures are only logged.
func (a *Allocator) Reset(ctx context.Context, name string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.cache.Delete(ctx, name); err != nil {
		zap.L().Warn("sequence cache delete failed", zap.String("counter", name), zap.Error(err))
	}
	if err := a.store.Reset(ctx, name, a.restart-1); err != nil {
		zap.L().Warn("could not reset counter", zap.String("counter", name), zap.Int64("restart", a.restart), zap.Error(err))
		return
	}
	zap.L().Info("counter reset", zap.String("counter", name), zap.Int64("restart", a.restart))
}
