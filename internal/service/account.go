package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bmptec/ledger-core/internal/domain"
	"github.com/bmptec/ledger-core/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const DefaultAccountNumberAttempts = 10

// AccountNumberGenerator issues candidate account numbers.
type AccountNumberGenerator interface {
	GenerateAccountNumber(ctx context.Context) (string, error)
}

type AccountService struct {
	store       QueryStore
	audit       *AuditService
	numbers     AccountNumberGenerator
	branch      string
	maxAttempts int
	now         func() time.Time
}

func NewAccountService(store QueryStore, numbers AccountNumberGenerator) *AccountService {
	return &AccountService{
		store:       store,
		audit:       NewAuditService(),
		numbers:     numbers,
		branch:      domain.DefaultBranch,
		maxAttempts: DefaultAccountNumberAttempts,
		now:         time.Now,
	}
}

func (s *AccountService) WithBranch(branch string) *AccountService {
	if branch != "" {
		s.branch = branch
	}
	return s
}

func (s *AccountService) WithMaxAttempts(n int) *AccountService {
	if n > 0 {
		s.maxAttempts = n
	}
	return s
}

func (s *AccountService) WithClock(now func() time.Time) *AccountService {
	if now != nil {
		s.now = now
	}
	return s
}

type CreateAccountCmd struct {
	Name           string
	CPF            string
	Email          string
	BirthDate      time.Time
	Phone          string
	Kind           domain.AccountKind
	InitialBalance decimal.Decimal
}

// CreateAccount opens an account for the client identified by CPF, creating
// the client on first use.
func (s *AccountService) CreateAccount(ctx context.Context, cmd CreateAccountCmd) (*domain.Account, error) {
	if cmd.InitialBalance.IsNegative() {
		return nil, domain.Errorf(domain.ErrInvalidAmount, "initial balance must not be negative")
	}
	now := s.now().UTC()

	var account *domain.Account
	err := s.store.RunInTx(ctx, func(qtx repository.Querier) error {
		client, err := s.resolveClient(ctx, qtx, cmd, now)
		if err != nil {
			return err
		}

		for attempt := 1; attempt <= s.maxAttempts; attempt++ {
			number, err := s.numbers.GenerateAccountNumber(ctx)
			if err != nil {
				return fmt.Errorf("generate account number: %w", err)
			}

			candidate, err := domain.NewAccount(client.ID, number, s.branch, cmd.Kind, now)
			if err != nil {
				return err
			}
			if err := candidate.Open(cmd.InitialBalance); err != nil {
				return err
			}

			inserted, err := qtx.InsertAccountIfAbsent(ctx, candidate)
			if err != nil {
				return err
			}
			if !inserted {
				zap.L().Warn("account number already taken, retrying",
					zap.String("account_number", number), zap.Int("attempt", attempt))
				continue
			}

			candidate.HolderName = client.Name
			account = candidate
			return s.audit.Write(ctx, qtx, entityAccount, candidate.ID, "opened", "", string(candidate.Status), map[string]any{
				"account_number":  candidate.Number,
				"kind":            string(candidate.Kind),
				"opening_balance": candidate.OpeningBalance.StringFixed(2),
			})
		}
		return domain.Errorf(domain.ErrSequenceExhausted,
			"could not allocate a unique account number after %d attempts", s.maxAttempts)
	})
	if err != nil {
		if domain.KindOf(err) == domain.KindUnknown {
			zap.L().Error("create account failed", zap.Error(err))
			return nil, fmt.Errorf("create account: %w", err)
		}
		return nil, err
	}

	zap.L().Info("account opened",
		zap.String("account_id", account.ID.String()),
		zap.String("account_number", account.Number))
	return account, nil
}

func (s *AccountService) resolveClient(ctx context.Context, qtx repository.Querier, cmd CreateAccountCmd, now time.Time) (*domain.Client, error) {
	existing, err := qtx.GetClientByCPF(ctx, cmd.CPF)
	if err == nil {
		if !existing.Active {
			return nil, domain.Errorf(domain.ErrClientInactive, "client %s is inactive", existing.ID)
		}
		return existing, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("lookup client: %w", err)
	}

	client, err := domain.NewClient(cmd.Name, cmd.CPF, cmd.Email, cmd.BirthDate, cmd.Phone, now)
	if err != nil {
		return nil, err
	}
	if err := qtx.InsertClient(ctx, client); err != nil {
		return nil, err
	}
	return client, nil
}

func (s *AccountService) GetAccountByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	account, err := s.store.Queries().GetAccount(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.Errorf(domain.ErrAccountNotFound, "account %s not found", id)
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	return account, nil
}

func (s *AccountService) ListAccountsByClient(ctx context.Context, clientID uuid.UUID) ([]*domain.Account, error) {
	if _, err := s.store.Queries().GetClient(ctx, clientID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.Errorf(domain.ErrClientNotFound, "client %s not found", clientID)
		}
		return nil, fmt.Errorf("get client: %w", err)
	}
	accounts, err := s.store.Queries().ListAccountsByClient(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return accounts, nil
}

func (s *AccountService) CloseAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	return s.mutate(ctx, id, "closed", func(a *domain.Account) error {
		return a.Close(s.now())
	})
}

func (s *AccountService) BlockAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	return s.mutate(ctx, id, "blocked", func(a *domain.Account) error {
		if a.Status == domain.AccountStatusClosed {
			return domain.Errorf(domain.ErrAlreadyClosed, "account %s is closed", a.Number)
		}
		a.Block()
		return nil
	})
}

func (s *AccountService) UnblockAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	return s.mutate(ctx, id, "unblocked", func(a *domain.Account) error {
		a.Unblock()
		return nil
	})
}

// mutate applies a status change under a row lock and audits it when the
// status actually moved.
func (s *AccountService) mutate(ctx context.Context, id uuid.UUID, action string, change func(*domain.Account) error) (*domain.Account, error) {
	var account *domain.Account
	err := s.store.RunInTx(ctx, func(qtx repository.Querier) error {
		a, err := qtx.GetAccountForUpdate(ctx, id)
		if err != nil {
			return accountNotFound(err, "account %s not found", id)
		}
		prev := a.Status
		if err := change(a); err != nil {
			return err
		}
		account = a
		if a.Status == prev {
			return nil
		}
		if err := persistBalance(ctx, qtx, a); err != nil {
			return err
		}
		return s.audit.Write(ctx, qtx, entityAccount, a.ID, action, string(prev), string(a.Status), nil)
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}
