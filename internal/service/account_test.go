package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/bmptec/ledger-core/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedNumbers string

func (n fixedNumbers) GenerateAccountNumber(context.Context) (string, error) {
	return string(n), nil
}

func newAccountCmd(cpf string) CreateAccountCmd {
	return CreateAccountCmd{
		Name:      "Maria Silva",
		CPF:       cpf,
		Email:     "maria@example.com",
		BirthDate: time.Date(1985, 7, 1, 0, 0, 0, 0, time.UTC),
		Phone:     "11999990000",
	}
}

func TestCreateAccount(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	cmd := newAccountCmd("12345678900")
	cmd.InitialBalance = dec("250.75")
	first, err := h.accounts.CreateAccount(ctx, cmd)
	require.NoError(t, err)
	assert.Equal(t, "000001-9", first.Number)
	assert.Equal(t, domain.DefaultBranch, first.Branch)
	assert.Equal(t, domain.AccountKindChecking, first.Kind)
	assert.Equal(t, domain.AccountStatusActive, first.Status)
	assert.Equal(t, "250.75", first.Balance.StringFixed(2))
	assert.True(t, first.OpeningBalance.Equal(first.Balance))
	assert.Equal(t, "Maria Silva", first.HolderName)

	cmd.InitialBalance = dec("0")
	cmd.Kind = domain.AccountKindSavings
	second, err := h.accounts.CreateAccount(ctx, cmd)
	require.NoError(t, err)
	assert.Equal(t, "000002-7", second.Number)
	assert.Equal(t, first.ClientID, second.ClientID)
	assert.True(t, domain.ValidAccountNumber(second.Number))

	accounts, err := h.accounts.ListAccountsByClient(ctx, first.ClientID)
	require.NoError(t, err)
	assert.Len(t, accounts, 2)

	var opened map[string]any
	for _, entry := range h.store.AuditLog() {
		if entry.EntityID == first.ID {
			assert.Equal(t, "opened", entry.Action)
			require.NoError(t, json.Unmarshal(entry.Metadata, &opened))
		}
	}
	assert.Equal(t, "250.75", opened["opening_balance"])
}

func TestCreateAccountValidation(t *testing.T) {
	ctx := context.Background()

	t.Run("negative initial balance", func(t *testing.T) {
		h := newHarness(t)
		cmd := newAccountCmd("12345678900")
		cmd.InitialBalance = dec("-1")

		_, err := h.accounts.CreateAccount(ctx, cmd)
		require.ErrorIs(t, err, domain.ErrInvalidAmount)
	})

	t.Run("short name", func(t *testing.T) {
		h := newHarness(t)
		cmd := newAccountCmd("12345678900")
		cmd.Name = "Al"

		_, err := h.accounts.CreateAccount(ctx, cmd)
		require.ErrorIs(t, err, domain.ErrInvalidClient)
	})

	t.Run("underage client", func(t *testing.T) {
		h := newHarness(t)
		cmd := newAccountCmd("12345678900")
		cmd.BirthDate = testNow.AddDate(-17, 0, 0)

		_, err := h.accounts.CreateAccount(ctx, cmd)
		require.ErrorIs(t, err, domain.ErrInvalidClient)
	})

	t.Run("inactive client", func(t *testing.T) {
		h := newHarness(t)
		client, err := domain.NewClient("Joana Lima", "99988877766", "joana@example.com",
			time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC), "1133334444", testNow)
		require.NoError(t, err)
		client.Deactivate()
		require.NoError(t, h.store.InsertClient(ctx, client))

		_, err = h.accounts.CreateAccount(ctx, newAccountCmd("99988877766"))
		require.ErrorIs(t, err, domain.ErrClientInactive)
	})
}

func TestCreateAccountNumberCollision(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	squatter, err := domain.NewAccount(uuid.New(), "000001-9", domain.DefaultBranch, domain.AccountKindChecking, testNow)
	require.NoError(t, err)
	inserted, err := h.store.InsertAccountIfAbsent(ctx, squatter)
	require.NoError(t, err)
	require.True(t, inserted)

	account, err := h.accounts.CreateAccount(ctx, newAccountCmd("12345678900"))
	require.NoError(t, err)
	assert.Equal(t, "000002-7", account.Number)
}

func TestCreateAccountNumberExhausted(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	accounts := NewAccountService(h.store, fixedNumbers("000001-9")).WithClock(h.clock.Now)

	_, err := accounts.CreateAccount(ctx, newAccountCmd("12345678900"))
	require.NoError(t, err)

	_, err = accounts.CreateAccount(ctx, newAccountCmd("12345678900"))
	require.ErrorIs(t, err, domain.ErrSequenceExhausted)
	assert.Contains(t, err.Error(), "10 attempts")
}

func TestAccountLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	funded := h.openAccount(t, "10000000001", "10")
	_, err := h.accounts.CloseAccount(ctx, funded.ID)
	require.ErrorIs(t, err, domain.ErrNonZeroBalance)

	empty := h.openAccount(t, "10000000002", "0")

	blocked, err := h.accounts.BlockAccount(ctx, empty.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AccountStatusBlocked, blocked.Status)

	unblocked, err := h.accounts.UnblockAccount(ctx, empty.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AccountStatusActive, unblocked.Status)

	closed, err := h.accounts.CloseAccount(ctx, empty.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AccountStatusClosed, closed.Status)
	require.NotNil(t, closed.ClosedAt)

	_, err = h.accounts.CloseAccount(ctx, empty.ID)
	require.ErrorIs(t, err, domain.ErrAlreadyClosed)
	_, err = h.accounts.BlockAccount(ctx, empty.ID)
	require.ErrorIs(t, err, domain.ErrAlreadyClosed)

	stored, err := h.accounts.GetAccountByID(ctx, empty.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AccountStatusClosed, stored.Status)

	var actions []string
	for _, entry := range h.store.AuditLog() {
		if entry.EntityID == empty.ID {
			actions = append(actions, entry.Action)
		}
	}
	assert.Equal(t, []string{"opened", "blocked", "unblocked", "closed"}, actions)
}

func TestUnblockActiveAccountIsNoop(t *testing.T) {
	h := newHarness(t)
	a := h.openAccount(t, "10000000001", "0")
	before := len(h.store.AuditLog())

	account, err := h.accounts.UnblockAccount(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AccountStatusActive, account.Status)
	assert.Len(t, h.store.AuditLog(), before)
}

func TestAccountNotFound(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.accounts.GetAccountByID(ctx, uuid.New())
	require.ErrorIs(t, err, domain.ErrAccountNotFound)

	_, err = h.accounts.CloseAccount(ctx, uuid.New())
	require.ErrorIs(t, err, domain.ErrAccountNotFound)

	_, err = h.accounts.ListAccountsByClient(ctx, uuid.New())
	require.ErrorIs(t, err, domain.ErrClientNotFound)
}
