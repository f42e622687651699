package sequence

import (
	"context"
	"errors"
	"os"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/bmptec/ledger-core/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu          sync.Mutex
	values      map[string]int64
	allocateErr error
	resetErr    error
	maxObserved int64
	maxErr      error
	floors      []int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{values: make(map[string]int64)}
}

func (s *fakeStore) Allocate(_ context.Context, name string, floor int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.floors = append(s.floors, floor)
	if s.allocateErr != nil {
		return 0, s.allocateErr
	}
	next := max(s.values[name]+1, floor)
	s.values[name] = next
	return next, nil
}

func (s *fakeStore) Reset(_ context.Context, name string, value int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resetErr != nil {
		return s.resetErr
	}
	s.values[name] = value
	return nil
}

func (s *fakeStore) MaxObserved(context.Context, string) (int64, error) {
	return s.maxObserved, s.maxErr
}

func TestNext_StrictlyIncreasingPerCounter(t *testing.T) {
	alloc := NewAllocator(newFakeStore(), NewMemoryCache())
	ctx := context.Background()

	for want := int64(1); want <= 5; want++ {
		got, err := alloc.Next(ctx, "A")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	got, err := alloc.Next(ctx, "B")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)
}

func TestNext_ConcurrentCallersGetDistinctValues(t *testing.T) {
	alloc := NewAllocator(newFakeStore(), nil)
	ctx := context.Background()

	const n = 200
	results := make(chan int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := alloc.Next(ctx, domain.CounterAccount)
			if err == nil {
				results <- v
			}
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[int64]struct{}, n)
	for v := range results {
		seen[v] = struct{}{}
	}
	assert.Len(t, seen, n)
}

func TestNext_WarmCacheFeedsFloorAndCoversStoreOutage(t *testing.T) {
	store := newFakeStore()
	alloc := NewAllocator(store, NewMemoryCache())
	ctx := context.Background()

	v, err := alloc.Next(ctx, "A")
	require.NoError(t, err)
	require.Equal(t, int64(1), v)

	store.allocateErr = errors.New("connection refused")
	v, err = alloc.Next(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)

	store.allocateErr = nil
	v, err = alloc.Next(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, int64(3), v)
	assert.Equal(t, []int64{0, 2, 3}, store.floors)
}

func TestNext_ColdCacheFallsBackToMaxObserved(t *testing.T) {
	store := newFakeStore()
	store.allocateErr = errors.New("no such table")
	store.maxObserved = 41
	alloc := NewAllocator(store, NewMemoryCache())

	v, err := alloc.Next(context.Background(), "A")
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)

	store.maxErr = errors.New("database down")
	_, err = alloc.Next(context.Background(), "B")
	require.Error(t, err)
}

func TestGenerateAccountNumber(t *testing.T) {
	alloc := NewAllocator(newFakeStore(), nil)

	number, err := alloc.GenerateAccountNumber(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "000001-9", number)

	number, err = alloc.GenerateAccountNumber(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "000002-7", number)

	digit, err := alloc.CheckDigit("000001")
	require.NoError(t, err)
	assert.Equal(t, 9, digit)
}

func TestGenerateTransferCode(t *testing.T) {
	fixed := time.Date(2026, 10, 14, 23, 30, 0, 0, time.FixedZone("X", -5*3600))
	alloc := NewAllocator(newFakeStore(), nil).WithClock(func() time.Time { return fixed })

	code, err := alloc.GenerateTransferCode(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "CHU-20261015-000001", code)

	alloc.WithTransferPrefix("TRX")
	code, err = alloc.GenerateTransferCode(context.Background())
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^TRX-\d{8}-000002$`), code)
}

func TestReset_RestartsAtConfiguredValue(t *testing.T) {
	store := newFakeStore()
	alloc := NewAllocator(store, NewMemoryCache())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := alloc.Next(ctx, "A")
		require.NoError(t, err)
	}
	alloc.Reset(ctx, "A")

	v, err := alloc.Next(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, int64(DefaultRestartValue), v)

	alloc.WithRestartValue(50)
	alloc.Reset(ctx, "A")
	v, err = alloc.Next(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, int64(50), v)
}

func TestReset_FailureIsSwallowed(t *testing.T) {
	store := newFakeStore()
	store.resetErr = errors.New("permission denied")
	alloc := NewAllocator(store, NewMemoryCache())
	ctx := context.Background()

	_, err := alloc.Next(ctx, "A")
	require.NoError(t, err)

	assert.NotPanics(t, func() { alloc.Reset(ctx, "A") })

	v, err := alloc.Next(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)
}

func TestMemoryCache(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "A")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "A", 7))
	v, ok, err := c.Get(ctx, "A")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(7), v)

	require.NoError(t, c.Delete(ctx, "A"))
	_, ok, _ = c.Get(ctx, "A")
	assert.False(t, ok)
}

func TestRedisCache(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	opt, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opt)
	defer client.Close()

	ctx := context.Background()
	name := "test-" + time.Now().Format("150405.000000")
	c := NewRedisCache(client)
	defer c.Delete(ctx, name)

	_, ok, err := c.Get(ctx, name)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, name, 1234))
	v, ok, err := c.Get(ctx, name)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(1234), v)
}
