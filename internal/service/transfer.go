package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bmptec/ledger-core/internal/domain"
	"github.com/bmptec/ledger-core/internal/events"
	"github.com/bmptec/ledger-core/internal/observability"
	"github.com/bmptec/ledger-core/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// BusinessCalendar decides whether money may move on a given instant.
type BusinessCalendar interface {
	IsBusinessDay(ctx context.Context, t time.Time) bool
}

// TransferCodeGenerator issues counter-backed tracking codes.
type TransferCodeGenerator interface {
	GenerateTransferCode(ctx context.Context) (string, error)
}

// TransferService moves money between ledger accounts. Balance changes, the
// movement row and its audit trail commit as one transaction.
type TransferService struct {
	store     QueryStore
	audit     *AuditService
	calendar  BusinessCalendar
	codes     TransferCodeGenerator
	publisher events.Publisher
	applyFees bool
	now       func() time.Time
}

func NewTransferService(store QueryStore, calendar BusinessCalendar, codes TransferCodeGenerator) *TransferService {
	return &TransferService{
		store:     store,
		audit:     NewAuditService(),
		calendar:  calendar,
		codes:     codes,
		publisher: events.NopPublisher{},
		now:       time.Now,
	}
}

func (s *TransferService) WithPublisher(p events.Publisher) *TransferService {
	if p != nil {
		s.publisher = p
	}
	return s
}

// WithFees makes transfers charge the assessed fee to the source account.
func (s *TransferService) WithFees(apply bool) *TransferService {
	s.applyFees = apply
	return s
}

func (s *TransferService) WithClock(now func() time.Time) *TransferService {
	if now != nil {
		s.now = now
	}
	return s
}

// RequestKey, when set, ties the movement to the client's Idempotency-Key. A
// retry carrying the key gets the movement an earlier attempt committed.
type TransferCmd struct {
	SourceAccountID      uuid.UUID
	DestinationAccountID uuid.UUID
	Amount               decimal.Decimal
	RequestKey           string
}

type DepositCmd struct {
	AccountID  uuid.UUID
	Amount     decimal.Decimal
	RequestKey string
}

// Transfer debits the source and credits the destination. It is rejected
// outside business days.
func (s *TransferService) Transfer(ctx context.Context, cmd TransferCmd) (*domain.MoneyMovement, error) {
	if !cmd.Amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}
	if cmd.SourceAccountID == cmd.DestinationAccountID {
		return nil, domain.ErrSameAccount
	}
	sourceID := cmd.SourceAccountID
	if prior, err := s.priorAttempt(ctx, cmd.RequestKey, &sourceID, cmd.DestinationAccountID, cmd.Amount); prior != nil || err != nil {
		return prior, err
	}

	now := s.now().UTC()
	businessDay := s.calendar.IsBusinessDay(ctx, now)
	if !businessDay {
		observability.IncrementMovement(domain.MovementKindTransfer, "rejected")
		return nil, domain.Errorf(domain.ErrNonBusinessDay,
			"transfer not allowed: %s is not a business day", now.Format("02/01/2006"))
	}

	code := s.trackingCode(ctx)

	var movement *domain.MoneyMovement
	err := s.store.RunInTx(ctx, func(qtx repository.Querier) error {
		source, destination, err := lockPair(ctx, qtx, cmd.SourceAccountID, cmd.DestinationAccountID)
		if err != nil {
			return err
		}

		m, err := domain.NewMovement(&source.ID, destination.ID, cmd.Amount,
			fmt.Sprintf("Transferência de Saldo de %s para %s", source.Number, destination.Number), now)
		if err != nil {
			return err
		}
		if code != "" {
			m.TrackingCode = code
		}
		m.RequestKey = cmd.RequestKey
		m.SourceAccountNumber = source.Number
		m.DestinationAccountNumber = destination.Number

		fee := m.ComputeFee(businessDay)
		debit := m.Amount
		var charged *decimal.Decimal
		if s.applyFees && fee.IsPositive() {
			debit = debit.Add(fee)
			charged = &fee
		}
		if source.Balance.LessThan(debit) {
			return domain.Errorf(domain.ErrInsufficientFunds,
				"insufficient funds in account %s: balance %s, requested %s",
				source.Number, source.Balance.StringFixed(2), debit.StringFixed(2))
		}

		if err := createMovement(ctx, qtx, s.audit, m, map[string]any{"assessed_fee": fee.StringFixed(2)}); err != nil {
			return err
		}
		if err := transitionMovement(ctx, qtx, s.audit, m, domain.MovementStatusProcessing, "processing", m.StartProcessing, nil); err != nil {
			return err
		}

		if err := source.Debit(debit); err != nil {
			return err
		}
		if err := destination.Credit(m.Amount); err != nil {
			return err
		}
		if err := persistBalance(ctx, qtx, source); err != nil {
			return err
		}
		if err := persistBalance(ctx, qtx, destination); err != nil {
			return err
		}

		complete := func() error { return m.Complete(charged, s.now()) }
		if err := transitionMovement(ctx, qtx, s.audit, m, domain.MovementStatusCompleted, "completed", complete, map[string]any{
			"assessed_fee": fee.StringFixed(2),
			"fee_charged":  charged != nil,
		}); err != nil {
			return err
		}
		if err := insertMovement(ctx, qtx, m); err != nil {
			return err
		}
		movement = m
		return nil
	})
	if err != nil {
		return nil, s.failed(domain.MovementKindTransfer, err,
			zap.String("source_account_id", cmd.SourceAccountID.String()),
			zap.String("destination_account_id", cmd.DestinationAccountID.String()))
	}

	s.committed(ctx, movement)
	return movement, nil
}

// Deposit credits an account from outside the ledger. Deposits on
// non-business days are accepted and logged.
func (s *TransferService) Deposit(ctx context.Context, cmd DepositCmd) (*domain.MoneyMovement, error) {
	if !cmd.Amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}
	if prior, err := s.priorAttempt(ctx, cmd.RequestKey, nil, cmd.AccountID, cmd.Amount); prior != nil || err != nil {
		return prior, err
	}

	now := s.now().UTC()
	if !s.calendar.IsBusinessDay(ctx, now) {
		zap.L().Warn("deposit on a non-business day",
			zap.String("account_id", cmd.AccountID.String()),
			zap.Time("requested_at", now))
	}

	code := s.trackingCode(ctx)

	var movement *domain.MoneyMovement
	err := s.store.RunInTx(ctx, func(qtx repository.Querier) error {
		account, err := qtx.GetAccountForUpdate(ctx, cmd.AccountID)
		if err != nil {
			return accountNotFound(err, "destination account %s not found", cmd.AccountID)
		}

		m, err := domain.NewMovement(nil, account.ID, cmd.Amount,
			fmt.Sprintf("Depósito para %s", account.Number), now)
		if err != nil {
			return err
		}
		if code != "" {
			m.TrackingCode = code
		}
		m.RequestKey = cmd.RequestKey
		m.DestinationAccountNumber = account.Number

		if err := createMovement(ctx, qtx, s.audit, m, nil); err != nil {
			return err
		}
		if err := transitionMovement(ctx, qtx, s.audit, m, domain.MovementStatusProcessing, "processing", m.StartProcessing, nil); err != nil {
			return err
		}
		if err := account.Credit(m.Amount); err != nil {
			return err
		}
		if err := persistBalance(ctx, qtx, account); err != nil {
			return err
		}
		complete := func() error { return m.Complete(nil, s.now()) }
		if err := transitionMovement(ctx, qtx, s.audit, m, domain.MovementStatusCompleted, "completed", complete, nil); err != nil {
			return err
		}
		if err := insertMovement(ctx, qtx, m); err != nil {
			return err
		}
		movement = m
		return nil
	})
	if err != nil {
		return nil, s.failed(domain.MovementKindDeposit, err, zap.String("account_id", cmd.AccountID.String()))
	}

	s.committed(ctx, movement)
	return movement, nil
}

// GetMovement loads a movement with its account numbers.
func (s *TransferService) GetMovement(ctx context.Context, id uuid.UUID) (*domain.MoneyMovement, error) {
	m, err := s.store.Queries().GetMovement(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.Errorf(domain.ErrMovementNotFound, "movement %s not found", id)
		}
		return nil, fmt.Errorf("get movement: %w", err)
	}
	return m, nil
}

// ListMovements returns the most recent movements first.
func (s *TransferService) ListMovements(ctx context.Context, page, pageSize int) ([]*domain.MoneyMovement, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 50
	}
	offset := (page - 1) * pageSize
	movements, err := s.store.Queries().ListMovements(ctx, int32(pageSize), int32(offset))
	if err != nil {
		return nil, fmt.Errorf("list movements: %w", err)
	}
	return movements, nil
}

// priorAttempt returns the movement already committed under key. It returns
// nil when key is empty or unused, and ErrRequestKeyReused when the key
// belongs to a movement with different accounts or amount.
func (s *TransferService) priorAttempt(ctx context.Context, key string, source *uuid.UUID, destination uuid.UUID, amount decimal.Decimal) (*domain.MoneyMovement, error) {
	if key == "" {
		return nil, nil
	}
	m, err := s.store.Queries().GetMovementByRequestKey(ctx, key)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("look up request key: %w", err)
	}
	if !m.Matches(source, destination, amount) {
		return nil, domain.Errorf(domain.ErrRequestKeyReused,
			"request key already used for movement %s", m.TrackingCode)
	}

	zap.L().Info("movement already committed for request key",
		zap.String("movement_id", m.ID.String()),
		zap.String("tracking_code", m.TrackingCode))
	observability.IncrementMovement(m.Kind(), "recovered")
	s.publish(ctx, m)
	return m, nil
}

func insertMovement(ctx context.Context, qtx repository.Querier, m *domain.MoneyMovement) error {
	err := qtx.InsertMovement(ctx, m)
	if errors.Is(err, repository.ErrDuplicateRequestKey) {
		return domain.Errorf(domain.ErrRequestKeyReused, "request key already used by another movement")
	}
	if err != nil {
		return fmt.Errorf("persist movement: %w", err)
	}
	return nil
}

// trackingCode returns a counter-backed code, or "" to keep the movement's
// default code when the allocator cannot serve one.
func (s *TransferService) trackingCode(ctx context.Context) string {
	if s.codes == nil {
		return ""
	}
	code, err := s.codes.GenerateTransferCode(ctx)
	if err != nil {
		zap.L().Warn("transfer code unavailable, using default tracking code", zap.Error(err))
		return ""
	}
	return code
}

// lockPair locks both accounts in id order so concurrent opposite transfers
// cannot deadlock.
func lockPair(ctx context.Context, qtx repository.Querier, sourceID, destinationID uuid.UUID) (*domain.Account, *domain.Account, error) {
	first, second := sourceID, destinationID
	if first.String() > second.String() {
		first, second = second, first
	}

	locked := make(map[uuid.UUID]*domain.Account, 2)
	for _, id := range []uuid.UUID{first, second} {
		account, err := qtx.GetAccountForUpdate(ctx, id)
		if err != nil {
			role := "source"
			if id == destinationID {
				role = "destination"
			}
			return nil, nil, accountNotFound(err, "%s account %s not found", role, id)
		}
		locked[id] = account
	}
	return locked[sourceID], locked[destinationID], nil
}

func (s *TransferService) failed(kind string, err error, fields ...zap.Field) error {
	if errors.Is(err, repository.ErrCommitOutcomeUnknown) {
		observability.IncrementMovement(kind, "unknown")
		zap.L().Error("movement commit outcome unknown", append(fields, zap.Error(err))...)
		return domain.Wrap(domain.ErrPartialTransferFailure, err)
	}

	observability.IncrementMovement(kind, "rejected")
	if domain.KindOf(err) == domain.KindUnknown || domain.KindOf(err) == domain.KindInfrastructure {
		zap.L().Error("movement failed", append(fields, zap.Error(err))...)
		return fmt.Errorf("%s: %w", kind, err)
	}
	return err
}

func (s *TransferService) committed(ctx context.Context, m *domain.MoneyMovement) {
	observability.IncrementMovement(m.Kind(), "completed")
	zap.L().Info("movement completed",
		zap.String("movement_id", m.ID.String()),
		zap.String("tracking_code", m.TrackingCode),
		zap.String("kind", m.Kind()),
		zap.String("summary", m.Summary()))
	s.publish(ctx, m)
}

// publish is best-effort; the movement is already committed.
func (s *TransferService) publish(ctx context.Context, m *domain.MoneyMovement) {
	if err := s.publisher.PublishMovement(ctx, events.NewMovementEvent(m)); err != nil {
		observability.IncrementEventPublish("error")
		zap.L().Warn("movement event not published",
			zap.String("movement_id", m.ID.String()), zap.Error(err))
		return
	}
	observability.IncrementEventPublish("ok")
}
