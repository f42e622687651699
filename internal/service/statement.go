package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bmptec/ledger-core/internal/domain"
	"github.com/bmptec/ledger-core/internal/observability"
	"github.com/bmptec/ledger-core/internal/repository"
	"github.com/bmptec/ledger-core/internal/statement"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultStatementRequestMaxDays = 365
	DefaultStatementPageSize       = 50
	DefaultStatementTimeout        = 10 * time.Second
)

// StatementService loads movement history and hands it to the engine.
type StatementService struct {
	store          QueryStore
	engine         *statement.Engine
	requestMaxDays int
	pageSize       int
	timeout        time.Duration
	now            func() time.Time
}

func NewStatementService(store QueryStore, engine *statement.Engine) *StatementService {
	return &StatementService{
		store:          store,
		engine:         engine,
		requestMaxDays: DefaultStatementRequestMaxDays,
		pageSize:       DefaultStatementPageSize,
		timeout:        DefaultStatementTimeout,
		now:            time.Now,
	}
}

// WithLimits sets the request-level period cap, the default page size and
// the time budget of one statement.
func (s *StatementService) WithLimits(requestMaxDays, pageSize int, timeout time.Duration) *StatementService {
	if requestMaxDays > 0 {
		s.requestMaxDays = requestMaxDays
	}
	if pageSize > 0 {
		s.pageSize = pageSize
	}
	if timeout > 0 {
		s.timeout = timeout
	}
	return s
}

func (s *StatementService) WithClock(now func() time.Time) *StatementService {
	if now != nil {
		s.now = now
	}
	return s
}

type StatementQuery struct {
	AccountID uuid.UUID
	From      time.Time
	To        time.Time
	Page      int
	PageSize  int
}

// GenerateStatement returns one page of the statement. Totals and summary
// always cover the whole period.
func (s *StatementService) GenerateStatement(ctx context.Context, q StatementQuery) (*statement.Statement, error) {
	started := time.Now()
	defer func() { observability.ObserveStatement("json", time.Since(started)) }()

	st, err := s.build(ctx, q.AccountID, q.From, q.To)
	if err != nil {
		return nil, err
	}
	size := q.PageSize
	if size < 1 {
		size = s.pageSize
	}
	return st.Paginate(q.Page, size), nil
}

// GenerateStatementText renders every entry of the period as plain text and
// returns the download file name with the content.
func (s *StatementService) GenerateStatementText(ctx context.Context, accountID uuid.UUID, from, to time.Time) (string, []byte, error) {
	started := time.Now()
	defer func() { observability.ObserveStatement("text", time.Since(started)) }()

	st, err := s.build(ctx, accountID, from, to)
	if err != nil {
		return "", nil, err
	}
	var buf bytes.Buffer
	if err := statement.RenderText(&buf, st, s.engine.Location()); err != nil {
		return "", nil, fmt.Errorf("render statement: %w", err)
	}
	return statement.FileName(st.GeneratedAt), buf.Bytes(), nil
}

func (s *StatementService) build(ctx context.Context, accountID uuid.UUID, from, to time.Time) (*statement.Statement, error) {
	if from.After(to) {
		return nil, domain.ErrInvalidRange
	}
	if domain.PeriodExceeds(from, to, s.requestMaxDays) {
		return nil, domain.Errorf(domain.ErrRangeTooLarge,
			"requested period of %d days exceeds the %d day limit", domain.PeriodDays(from, to), s.requestMaxDays)
	}
	if err := s.engine.ValidateRange(from, to); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	queries := s.store.Queries()
	account, err := queries.GetAccount(ctx, accountID)
	if err != nil {
		return nil, s.loadFailed(accountNotFound(err, "account %s not found", accountID), accountID)
	}
	if !account.IsActive() {
		return nil, domain.Errorf(domain.ErrAccountNotFound, "account %s is not active", account.Number)
	}

	var prior []*domain.MoneyMovement
	if _, err := queries.GetLatestMovementBefore(ctx, accountID, from); err == nil {
		if prior, err = queries.ListMovementsBefore(ctx, accountID, from); err != nil {
			return nil, s.loadFailed(fmt.Errorf("load prior movements: %w", err), accountID)
		}
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, s.loadFailed(fmt.Errorf("load latest prior movement: %w", err), accountID)
	}

	movements, err := queries.ListMovementsForAccount(ctx, accountID, from, to)
	if err != nil {
		return nil, s.loadFailed(fmt.Errorf("load movements: %w", err), accountID)
	}

	return s.engine.Build(ctx, statement.Input{
		Account:     account,
		ClientName:  account.HolderName,
		From:        from,
		To:          to,
		Prior:       prior,
		Movements:   movements,
		GeneratedAt: s.now(),
	})
}

func (s *StatementService) loadFailed(err error, accountID uuid.UUID) error {
	if domain.KindOf(err) == domain.KindUnknown {
		zap.L().Error("statement load failed", zap.String("account_id", accountID.String()), zap.Error(err))
	}
	return err
}
