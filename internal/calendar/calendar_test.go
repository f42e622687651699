package calendar

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bmptec/ledger-core/internal/gateway"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSource struct {
	calls    atomic.Int32
	err      error
	holidays gateway.StaticHolidays
	delay    time.Duration
}

func (s *countingSource) Holidays(ctx context.Context, year int) ([]gateway.Holiday, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.holidays.Holidays(ctx, year)
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestBusinessDays(t *testing.T) {
	src := &countingSource{holidays: gateway.StaticHolidays{
		{Date: day(2026, 10, 12), Name: "Nossa Senhora Aparecida", Type: "national"},
	}}
	cal := New(src, time.UTC)
	ctx := context.Background()

	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{name: "weekday", at: time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC), want: true},
		{name: "saturday", at: time.Date(2026, 10, 17, 10, 0, 0, 0, time.UTC), want: false},
		{name: "sunday", at: time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC), want: false},
		{name: "holiday", at: time.Date(2026, 10, 12, 15, 0, 0, 0, time.UTC), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cal.IsBusinessDay(ctx, tt.at))
		})
	}
	assert.Equal(t, int32(1), src.calls.Load(), "year is fetched once")
}

func TestDatesEvaluatedInCalendarLocation(t *testing.T) {
	loc := time.FixedZone("BRT", -3*60*60)
	src := &countingSource{holidays: gateway.StaticHolidays{{Date: day(2026, 10, 12), Name: "Aparecida"}}}
	cal := New(src, loc)

	// 02:00 UTC on the 13th is still the 12th in BRT.
	assert.True(t, cal.IsHoliday(context.Background(), time.Date(2026, 10, 13, 2, 0, 0, 0, time.UTC)))
	assert.False(t, cal.IsHoliday(context.Background(), time.Date(2026, 10, 13, 4, 0, 0, 0, time.UTC)))
}

func TestFailsOpen(t *testing.T) {
	src := &countingSource{err: errors.New("connection refused")}
	cal := New(src, time.UTC)
	ctx := context.Background()

	assert.False(t, cal.IsHoliday(ctx, day(2026, 12, 25)))
	assert.True(t, cal.IsBusinessDay(ctx, day(2026, 12, 25)))

	_, err := cal.Holidays(ctx, 2026)
	assert.Error(t, err)

	// failures are not cached
	src.err = nil
	src.holidays = gateway.StaticHolidays{{Date: day(2026, 12, 25), Name: "Natal"}}
	assert.True(t, cal.IsHoliday(ctx, day(2026, 12, 25)))
}

func TestConcurrentLookupsShareOneFetch(t *testing.T) {
	src := &countingSource{delay: 50 * time.Millisecond}
	cal := New(src, time.UTC)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cal.IsHoliday(context.Background(), day(2027, 1, 1))
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), src.calls.Load())
}

func TestRefreshReplacesCachedYear(t *testing.T) {
	src := &countingSource{}
	cal := New(src, time.UTC)
	ctx := context.Background()

	assert.False(t, cal.IsHoliday(ctx, day(2026, 11, 20)))

	src.holidays = gateway.StaticHolidays{{Date: day(2026, 11, 20), Name: "Consciência Negra"}}
	require.NoError(t, cal.Refresh(ctx, 2026))
	assert.True(t, cal.IsHoliday(ctx, day(2026, 11, 20)))

	holidays, err := cal.Holidays(ctx, 2026)
	require.NoError(t, err)
	require.Len(t, holidays, 1)
	assert.Equal(t, "Consciência Negra", holidays[0].Name)
}

func TestRedisSharedCache(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("Skipping redis test: REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	defer client.Close()

	ctx := context.Background()
	require.NoError(t, client.Del(ctx, redisKey(2031)).Err())

	first := &countingSource{holidays: gateway.StaticHolidays{{Date: day(2031, 1, 1), Name: "Ano Novo"}}}
	require.True(t, New(first, time.UTC).WithRedis(client, time.Minute).IsHoliday(ctx, day(2031, 1, 1)))

	second := &countingSource{err: errors.New("unreachable")}
	assert.True(t, New(second, time.UTC).WithRedis(client, time.Minute).IsHoliday(ctx, day(2031, 1, 1)))
	assert.Equal(t, int32(0), second.calls.Load())
}
