// Package calendar decides business days from weekends and a yearly holiday
// list. Lookups fail open: when the list cannot be loaded the year is treated
// as having no holidays.
package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/bmptec/ledger-core/internal/domain"
	"github.com/bmptec/ledger-core/internal/gateway"
	"github.com/bmptec/ledger-core/internal/observability"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	redisKeyPrefix  = "holidays"
	DefaultCacheTTL = 24 * time.Hour
)

type Calendar struct {
	source gateway.HolidaySource
	redis  redis.Cmdable
	ttl    time.Duration
	loc    *time.Location

	group singleflight.Group
	mu    sync.RWMutex
	years map[int]yearList
}

type yearList struct {
	holidays []gateway.Holiday
	byDate   map[string]int
}

func newYearList(holidays []gateway.Holiday) yearList {
	l := yearList{holidays: holidays, byDate: make(map[string]int, len(holidays))}
	for i, h := range holidays {
		l.byDate[domain.DateKey(h.Date)] = i
	}
	return l
}

// New builds a calendar evaluating dates in loc. A nil loc means UTC.
func New(source gateway.HolidaySource, loc *time.Location) *Calendar {
	if loc == nil {
		loc = time.UTC
	}
	return &Calendar{
		source: source,
		ttl:    DefaultCacheTTL,
		loc:    loc,
		years:  make(map[int]yearList),
	}
}

// WithRedis shares fetched lists between processes under holidays:<year>.
func (c *Calendar) WithRedis(client redis.Cmdable, ttl time.Duration) *Calendar {
	c.redis = client
	if ttl > 0 {
		c.ttl = ttl
	}
	return c
}

func (c *Calendar) Location() *time.Location {
	return c.loc
}

// IsHoliday reports whether the calendar day of t, in the calendar's
// location, is in the holiday list of its year.
func (c *Calendar) IsHoliday(ctx context.Context, t time.Time) bool {
	local := t.In(c.loc)
	list, err := c.year(ctx, local.Year())
	if err != nil {
		observability.IncrementHolidayLookupFailure()
		zap.L().Warn("holiday lookup failed, assuming no holidays",
			zap.Int("year", local.Year()), zap.Error(err))
		return false
	}
	_, ok := list.byDate[domain.DateKey(local)]
	return ok
}

// IsBusinessDay reports whether t falls on a weekday that is not a holiday.
func (c *Calendar) IsBusinessDay(ctx context.Context, t time.Time) bool {
	local := t.In(c.loc)
	if domain.IsWeekend(local) {
		return false
	}
	return !c.IsHoliday(ctx, local)
}

// Holidays returns the list for year. Unlike IsHoliday it reports load errors.
func (c *Calendar) Holidays(ctx context.Context, year int) ([]gateway.Holiday, error) {
	list, err := c.year(ctx, year)
	if err != nil {
		return nil, err
	}
	return append([]gateway.Holiday(nil), list.holidays...), nil
}

// Refresh fetches year from the source, replacing any cached copy.
func (c *Calendar) Refresh(ctx context.Context, year int) error {
	list, err := c.fetch(ctx, year, true)
	if err != nil {
		return err
	}
	c.store(year, list)
	return nil
}

func (c *Calendar) year(ctx context.Context, year int) (yearList, error) {
	c.mu.RLock()
	list, ok := c.years[year]
	c.mu.RUnlock()
	if ok {
		return list, nil
	}

	list, err := c.fetch(ctx, year, false)
	if err != nil {
		return yearList{}, err
	}
	c.store(year, list)
	return list, nil
}

func (c *Calendar) store(year int, list yearList) {
	c.mu.Lock()
	c.years[year] = list
	c.mu.Unlock()
}

// fetch loads a year once across concurrent callers, consulting Redis first
// unless skipRedis is set.
func (c *Calendar) fetch(ctx context.Context, year int, skipRedis bool) (yearList, error) {
	key := strconv.Itoa(year)
	if skipRedis {
		key = "refresh:" + key
	}
	v, err, _ := c.group.Do(key, func() (any, error) {
		if !skipRedis {
			if holidays, ok := c.readRedis(ctx, year); ok {
				return newYearList(holidays), nil
			}
		}
		if c.source == nil {
			return nil, errors.New("no holiday source configured")
		}

		holidays, err := c.source.Holidays(ctx, year)
		if err != nil {
			return nil, err
		}
		zap.L().Info("holidays loaded", zap.Int("year", year), zap.Int("count", len(holidays)))
		c.writeRedis(ctx, year, holidays)
		return newYearList(holidays), nil
	})
	if err != nil {
		return yearList{}, err
	}
	return v.(yearList), nil
}

type cachedHoliday struct {
	Date string `json:"date"`
	Name string `json:"name"`
	Type string `json:"type"`
}

func (c *Calendar) readRedis(ctx context.Context, year int) ([]gateway.Holiday, bool) {
	if c.redis == nil {
		return nil, false
	}
	val, err := c.redis.Get(ctx, redisKey(year)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			zap.L().Warn("redis holiday lookup failed", zap.Int("year", year), zap.Error(err))
		}
		return nil, false
	}

	var cached []cachedHoliday
	if err := json.Unmarshal(val, &cached); err != nil {
		zap.L().Warn("discarding malformed holiday cache", zap.Int("year", year), zap.Error(err))
		return nil, false
	}
	holidays := make([]gateway.Holiday, 0, len(cached))
	for _, h := range cached {
		date, err := time.Parse(time.DateOnly, h.Date)
		if err != nil {
			return nil, false
		}
		holidays = append(holidays, gateway.Holiday{Date: date, Name: h.Name, Type: h.Type})
	}
	return holidays, true
}

func (c *Calendar) writeRedis(ctx context.Context, year int, holidays []gateway.Holiday) {
	if c.redis == nil {
		return
	}
	cached := make([]cachedHoliday, 0, len(holidays))
	for _, h := range holidays {
		cached = append(cached, cachedHoliday{Date: domain.DateKey(h.Date), Name: h.Name, Type: h.Type})
	}
	payload, err := json.Marshal(cached)
	if err != nil {
		zap.L().Warn("marshal holiday cache", zap.Error(err))
		return
	}
	if err := c.redis.Set(ctx, redisKey(year), payload, c.ttl).Err(); err != nil {
		zap.L().Warn("redis holiday cache set failed", zap.Int("year", year), zap.Error(err))
	}
}

func redisKey(year int) string {
	return fmt.Sprintf("%s:%d", redisKeyPrefix, year)
}
