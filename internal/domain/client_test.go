package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	birth := time.Date(1990, 5, 20, 0, 0, 0, 0, time.UTC)

	c, err := NewClient(" Maria Silva ", "12345678900", "maria@example.com", birth, "11999990000", testNow)
	require.NoError(t, err)
	assert.Equal(t, "Maria Silva", c.Name)
	assert.True(t, c.Active)

	_, err = NewClient("Al", "1", "a@b.c", birth, "1", testNow)
	require.ErrorIs(t, err, ErrInvalidClient)

	_, err = NewClient("Maria", "", "a@b.c", birth, "1", testNow)
	require.ErrorIs(t, err, ErrInvalidClient)

	minor := testNow.AddDate(-17, 0, 0)
	_, err = NewClient("Maria", "1", "a@b.c", minor, "1", testNow)
	require.ErrorIs(t, err, ErrInvalidClient)
}

func TestAge(t *testing.T) {
	now := time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 18, Age(time.Date(2008, 10, 14, 0, 0, 0, 0, time.UTC), now))
	assert.Equal(t, 17, Age(time.Date(2008, 10, 15, 0, 0, 0, 0, time.UTC), now))
	assert.Equal(t, 18, Age(time.Date(2008, 9, 30, 0, 0, 0, 0, time.UTC), now))
}

func TestClient_UpdateContact(t *testing.T) {
	c := &Client{Email: "old@example.com", Phone: "1"}
	c.UpdateContact("", "2")
	assert.Equal(t, "old@example.com", c.Email)
	assert.Equal(t, "2", c.Phone)

	c.Deactivate()
	assert.False(t, c.Active)
	c.Activate()
	assert.True(t, c.Active)
}

func TestPeriod(t *testing.T) {
	loc := time.FixedZone("BRT", -3*3600)
	from := time.Date(2026, 7, 17, 0, 0, 0, 0, loc)
	assert.Equal(t, 90, PeriodDays(from, from.AddDate(0, 0, 90)))
	assert.Equal(t, 91, PeriodDays(from, from.AddDate(0, 0, 90).Add(time.Minute)))
	assert.Equal(t, 0, PeriodDays(from, from))
	assert.False(t, PeriodExceeds(from, from.AddDate(0, 0, 90), 90))
	assert.True(t, PeriodExceeds(from, from.AddDate(0, 0, 90).Add(23*time.Hour), 90))
	assert.True(t, IsWeekend(time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)))
	assert.False(t, IsWeekend(time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)))
}
