package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bmptec/ledger-core/internal/domain"
	"github.com/bmptec/ledger-core/internal/repository"
	"github.com/bmptec/ledger-core/internal/sequence"
	"github.com/bmptec/ledger-core/internal/statement"
	"github.com/bmptec/ledger-core/internal/testutil/memstore"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// Wednesday.
var testNow = time.Date(2026, 10, 14, 13, 0, 0, 0, time.UTC)

type stubCalendar struct {
	mu       sync.Mutex
	business bool
}

func (c *stubCalendar) IsBusinessDay(context.Context, time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.business
}

func (c *stubCalendar) set(business bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.business = business
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type harness struct {
	store      *memstore.Store
	calendar   *stubCalendar
	clock      *testClock
	allocator  *sequence.Allocator
	accounts   *AccountService
	transfers  *TransferService
	statements *StatementService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:    memstore.New(),
		calendar: &stubCalendar{business: true},
		clock:    &testClock{now: testNow},
	}
	h.allocator = sequence.NewAllocator(repository.NewCounterStore(h.store), sequence.NewMemoryCache()).
		WithClock(h.clock.Now)
	h.accounts = NewAccountService(h.store, h.allocator).WithClock(h.clock.Now)
	h.transfers = NewTransferService(h.store, h.calendar, h.allocator).WithClock(h.clock.Now)
	h.statements = NewStatementService(h.store, statement.NewEngine(statement.DefaultMaxDays, time.UTC)).
		WithClock(h.clock.Now)
	return h
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func (h *harness) openAccount(t *testing.T, cpf, initial string) *domain.Account {
	t.Helper()
	account, err := h.accounts.CreateAccount(context.Background(), CreateAccountCmd{
		Name:           "Cliente " + cpf,
		CPF:            cpf,
		Email:          cpf + "@example.com",
		BirthDate:      time.Date(1990, 3, 15, 0, 0, 0, 0, time.UTC),
		Phone:          "11988887777",
		InitialBalance: dec(initial),
	})
	require.NoError(t, err)
	return account
}

func (h *harness) balance(t *testing.T, id uuid.UUID) string {
	t.Helper()
	account, err := h.store.GetAccount(context.Background(), id)
	require.NoError(t, err)
	return account.Balance.StringFixed(2)
}
