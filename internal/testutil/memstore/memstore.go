// Package memstore is an in-memory implementation of repository.Querier with
// snapshot transactions, for tests that should not need Postgres.
package memstore

import (
	"context"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bmptec/ledger-core/internal/domain"
	"github.com/bmptec/ledger-core/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	accountNumberPattern = regexp.MustCompile(`^[0-9]+-[0-9]$`)
	transferCodePattern  = regexp.MustCompile(`^[A-Z]+-[0-9]{8}-[0-9]+$`)
)

type state struct {
	clients     map[uuid.UUID]domain.Client
	accounts    map[uuid.UUID]domain.Account
	movements   []domain.MoneyMovement
	audit       []repository.InsertAuditLogParams
	counters    map[string]int64
	idempotency map[string]repository.IdempotencyKey
}

func newState() *state {
	return &state{
		clients:     make(map[uuid.UUID]domain.Client),
		accounts:    make(map[uuid.UUID]domain.Account),
		counters:    make(map[string]int64),
		idempotency: make(map[string]repository.IdempotencyKey),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.clients {
		c.clients[k] = v
	}
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	c.movements = append(c.movements, s.movements...)
	c.audit = append(c.audit, s.audit...)
	for k, v := range s.counters {
		c.counters[k] = v
	}
	for k, v := range s.idempotency {
		c.idempotency[k] = v
	}
	return c
}

// Store mirrors repository.Store. Transactions are serialized and roll back
// to a snapshot when fn fails, except for sequence counters and idempotency
// keys.
type Store struct {
	txMu sync.Mutex

	mu        sync.Mutex
	data      *state
	faults    map[string]error
	commitErr error
}

func New() *Store {
	return &Store{data: newState(), faults: make(map[string]error)}
}

var _ repository.Querier = (*Store)(nil)

func (s *Store) Queries() repository.Querier {
	return s
}

func (s *Store) RunInTx(ctx context.Context, fn func(q repository.Querier) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapshot := s.data.clone()
	s.mu.Unlock()

	if err := fn(s); err != nil {
		s.mu.Lock()
		// Counters and idempotency keys live outside the transaction in
		// Postgres, so a rollback keeps them.
		snapshot.counters = s.data.counters
		snapshot.idempotency = s.data.idempotency
		s.data = snapshot
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.commitErr; err != nil {
		// The write is kept: a commit error does not prove the commit failed.
		s.commitErr = nil
		return err
	}
	return nil
}

// FailOn makes every call to the named Querier method return err until
// cleared with a nil err.
func (s *Store) FailOn(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.faults, method)
		return
	}
	s.faults[method] = err
}

// FailNextCommit makes the next successful transaction report err after its
// changes were applied.
func (s *Store) FailNextCommit(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commitErr = err
}

// AuditLog returns a copy of every audit entry written so far.
func (s *Store) AuditLog() []repository.InsertAuditLogParams {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]repository.InsertAuditLogParams(nil), s.data.audit...)
}

// MovementCount returns how many movements are stored.
func (s *Store) MovementCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data.movements)
}

// SetBalance overwrites a stored balance without a movement.
func (s *Store) SetBalance(id uuid.UUID, balance decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.data.accounts[id]; ok {
		a.Balance = balance
		s.data.accounts[id] = a
	}
}

// PutMovement stores m as is, bypassing account balances.
func (s *Store) PutMovement(m *domain.MoneyMovement) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.movements = append(s.data.movements, *m)
}

func (s *Store) fault(method string) error {
	return s.faults[method]
}

func (s *Store) InsertClient(_ context.Context, c *domain.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("InsertClient"); err != nil {
		return err
	}
	s.data.clients[c.ID] = *c
	return nil
}

func (s *Store) GetClient(_ context.Context, id uuid.UUID) (*domain.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.data.clients[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &c, nil
}

func (s *Store) GetClientByCPF(_ context.Context, cpf string) (*domain.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.data.clients {
		if c.CPF == cpf {
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *Store) InsertAccountIfAbsent(_ context.Context, a *domain.Account) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("InsertAccountIfAbsent"); err != nil {
		return false, err
	}
	for _, existing := range s.data.accounts {
		if existing.Number == a.Number {
			return false, nil
		}
	}
	s.data.accounts[a.ID] = *a
	return true, nil
}

func (s *Store) account(id uuid.UUID) (*domain.Account, error) {
	a, ok := s.data.accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	a.HolderName = s.data.clients[a.ClientID].Name
	return &a, nil
}

func (s *Store) GetAccount(_ context.Context, id uuid.UUID) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("GetAccount"); err != nil {
		return nil, err
	}
	return s.account(id)
}

func (s *Store) GetAccountForUpdate(_ context.Context, id uuid.UUID) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("GetAccountForUpdate"); err != nil {
		return nil, err
	}
	return s.account(id)
}

func (s *Store) ListAccountsByClient(_ context.Context, clientID uuid.UUID) ([]*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Account
	for id, a := range s.data.accounts {
		if a.ClientID == clientID {
			acc, _ := s.account(id)
			out = append(out, acc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenedAt.Before(out[j].OpenedAt) })
	return out, nil
}

func (s *Store) UpdateAccount(_ context.Context, a *domain.Account) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("UpdateAccount"); err != nil {
		return 0, err
	}
	existing, ok := s.data.accounts[a.ID]
	if !ok {
		return 0, nil
	}
	existing.Balance = a.Balance
	existing.Status = a.Status
	existing.ClosedAt = a.ClosedAt
	s.data.accounts[a.ID] = existing
	return 1, nil
}

func (s *Store) InsertMovement(_ context.Context, m *domain.MoneyMovement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("InsertMovement"); err != nil {
		return err
	}
	if m.RequestKey != "" {
		for _, existing := range s.data.movements {
			if existing.RequestKey == m.RequestKey {
				return repository.ErrDuplicateRequestKey
			}
		}
	}
	s.data.movements = append(s.data.movements, *m)
	return nil
}

func (s *Store) joined(m domain.MoneyMovement) *domain.MoneyMovement {
	if m.SourceAccountID != nil {
		m.SourceAccountNumber = s.data.accounts[*m.SourceAccountID].Number
	}
	m.DestinationAccountNumber = s.data.accounts[m.DestinationAccountID].Number
	return &m
}

func (s *Store) GetMovement(_ context.Context, id uuid.UUID) (*domain.MoneyMovement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.data.movements {
		if m.ID == id {
			return s.joined(m), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *Store) GetMovementByRequestKey(_ context.Context, key string) (*domain.MoneyMovement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("GetMovementByRequestKey"); err != nil {
		return nil, err
	}
	for _, m := range s.data.movements {
		if key != "" && m.RequestKey == key {
			return s.joined(m), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *Store) ListMovements(_ context.Context, limit, offset int32) ([]*domain.MoneyMovement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.filter(func(domain.MoneyMovement) bool { return true })
	sort.SliceStable(all, func(i, j int) bool { return all[i].RequestedAt.After(all[j].RequestedAt) })
	if int(offset) >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if int(limit) < len(all) {
		all = all[:limit]
	}
	return all, nil
}

// filter returns joined copies in ascending request time.
func (s *Store) filter(keep func(domain.MoneyMovement) bool) []*domain.MoneyMovement {
	var out []*domain.MoneyMovement
	for _, m := range s.data.movements {
		if keep(m) {
			out = append(out, s.joined(m))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].RequestedAt.Before(out[j].RequestedAt) })
	return out
}

func (s *Store) ListMovementsForAccount(_ context.Context, accountID uuid.UUID, from, to time.Time) ([]*domain.MoneyMovement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("ListMovementsForAccount"); err != nil {
		return nil, err
	}
	return s.filter(func(m domain.MoneyMovement) bool {
		return m.Touches(accountID) && !m.RequestedAt.Before(from) && !m.RequestedAt.After(to)
	}), nil
}

func (s *Store) ListMovementsBefore(_ context.Context, accountID uuid.UUID, before time.Time) ([]*domain.MoneyMovement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter(func(m domain.MoneyMovement) bool {
		return m.Touches(accountID) && m.RequestedAt.Before(before)
	}), nil
}

func (s *Store) GetLatestMovementBefore(ctx context.Context, accountID uuid.UUID, before time.Time) (*domain.MoneyMovement, error) {
	movements, err := s.ListMovementsBefore(ctx, accountID, before)
	if err != nil {
		return nil, err
	}
	if len(movements) == 0 {
		return nil, repository.ErrNotFound
	}
	return movements[len(movements)-1], nil
}

func (s *Store) ListBalanceDrifts(_ context.Context) ([]repository.BalanceDrift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("ListBalanceDrifts"); err != nil {
		return nil, err
	}
	var drifts []repository.BalanceDrift
	for _, a := range s.data.accounts {
		expected := a.OpeningBalance
		for _, m := range s.data.movements {
			if m.Status == domain.MovementStatusCancelled || m.Status == domain.MovementStatusFailed {
				continue
			}
			if m.DestinationAccountID == a.ID {
				expected = expected.Add(m.Amount)
			}
			if m.IsSource(a.ID) {
				expected = expected.Sub(m.TotalDebit())
			}
		}
		if !expected.Equal(a.Balance) {
			drifts = append(drifts, repository.BalanceDrift{
				AccountID:     a.ID,
				AccountNumber: a.Number,
				Balance:       a.Balance,
				Expected:      expected,
			})
		}
	}
	sort.Slice(drifts, func(i, j int) bool { return drifts[i].AccountNumber < drifts[j].AccountNumber })
	return drifts, nil
}

func (s *Store) InsertAuditLog(_ context.Context, arg repository.InsertAuditLogParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("InsertAuditLog"); err != nil {
		return err
	}
	s.data.audit = append(s.data.audit, arg)
	return nil
}

func (s *Store) AllocateSequence(_ context.Context, name string, floor int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("AllocateSequence"); err != nil {
		return 0, err
	}
	current, ok := s.data.counters[name]
	next := max(floor, 1)
	if ok {
		next = max(current+1, floor)
	}
	s.data.counters[name] = next
	return next, nil
}

func (s *Store) ResetSequence(_ context.Context, name string, value int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("ResetSequence"); err != nil {
		return err
	}
	s.data.counters[name] = value
	return nil
}

func (s *Store) MaxObservedSequence(_ context.Context, name string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var highest int64
	observe := func(field string, part int) {
		v, err := strconv.ParseInt(strings.Split(field, "-")[part], 10, 64)
		if err == nil && v > highest {
			highest = v
		}
	}
	switch name {
	case domain.CounterAccount:
		for _, a := range s.data.accounts {
			if accountNumberPattern.MatchString(a.Number) {
				observe(a.Number, 0)
			}
		}
	case domain.CounterTransfer:
		for _, m := range s.data.movements {
			if transferCodePattern.MatchString(m.TrackingCode) {
				observe(m.TrackingCode, 2)
			}
		}
	}
	return highest, nil
}

func (s *Store) GetIdempotencyKey(_ context.Context, key string) (*repository.IdempotencyKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.data.idempotency[key]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &row, nil
}

func (s *Store) ReserveIdempotencyKey(_ context.Context, arg repository.ReserveIdempotencyKeyParams) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.idempotency[arg.IdempotencyKey]; ok {
		return false, nil
	}
	s.data.idempotency[arg.IdempotencyKey] = repository.IdempotencyKey{
		IdempotencyKey: arg.IdempotencyKey,
		RequestHash:    arg.RequestHash,
		Method:         arg.Method,
		Path:           arg.Path,
		ContentType:    "application/json",
		InProgress:     true,
	}
	return true, nil
}

func (s *Store) FinalizeIdempotencyKey(_ context.Context, arg repository.FinalizeIdempotencyKeyParams) (*repository.IdempotencyKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.data.idempotency[arg.IdempotencyKey]
	if !ok || row.RequestHash != arg.RequestHash {
		return nil, repository.ErrNotFound
	}
	row.ResponseStatus = arg.ResponseStatus
	row.ResponseBody = append([]byte(nil), arg.ResponseBody...)
	row.ContentType = arg.ContentType
	row.InProgress = false
	s.data.idempotency[arg.IdempotencyKey] = row
	return &row, nil
}

func (s *Store) ReleaseIdempotencyKey(_ context.Context, key, requestHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("ReleaseIdempotencyKey"); err != nil {
		return err
	}
	if row, ok := s.data.idempotency[key]; ok && row.InProgress && row.RequestHash == requestHash {
		delete(s.data.idempotency, key)
	}
	return nil
}
