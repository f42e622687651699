package statement

import (
	"context"
	"sort"
	"time"

	"github.com/bmptec/ledger-core/internal/domain"
	"github.com/shopspring/decimal"
)

const DefaultMaxDays = 90

// Engine rebuilds statements from movement history. It holds no state
// between calls, so the same input always yields the same statement.
type Engine struct {
	maxDays int
	loc     *time.Location
}

// NewEngine returns an engine capping periods at maxDays calendar days as
// seen in loc.
func NewEngine(maxDays int, loc *time.Location) *Engine {
	if maxDays <= 0 {
		maxDays = DefaultMaxDays
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{maxDays: maxDays, loc: loc}
}

func (e *Engine) Location() *time.Location { return e.loc }

// Input is everything Build needs. Prior holds the movements touching the
// account strictly before From; Movements holds those within [From, To].
type Input struct {
	Account     *domain.Account
	ClientName  string
	From        time.Time
	To          time.Time
	Prior       []*domain.MoneyMovement
	Movements   []*domain.MoneyMovement
	GeneratedAt time.Time
}

// ValidateRange rejects inverted periods and periods longer than the cap.
func (e *Engine) ValidateRange(from, to time.Time) error {
	if from.After(to) {
		return domain.ErrInvalidRange
	}
	if domain.PeriodExceeds(from, to, e.maxDays) {
		return domain.Errorf(domain.ErrRangeTooLarge, "statement period of %d days exceeds the %d day limit",
			domain.PeriodDays(from, to), e.maxDays)
	}
	return nil
}

// Build reconstructs the statement for in.Account over [in.From, in.To].
func (e *Engine) Build(ctx context.Context, in Input) (*Statement, error) {
	if err := e.ValidateRange(in.From, in.To); err != nil {
		return nil, err
	}
	if in.Account == nil || !in.Account.IsActive() {
		return nil, domain.ErrAccountNotFound
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	account := in.Account
	opening := OpeningBalance(account, in.Prior)

	movements := make([]*domain.MoneyMovement, 0, len(in.Movements))
	for _, m := range in.Movements {
		if affectsBalance(m) && m.Touches(account.ID) {
			movements = append(movements, m)
		}
	}
	sort.SliceStable(movements, func(i, j int) bool {
		return movements[i].RequestedAt.Before(movements[j].RequestedAt)
	})

	entries := make([]Entry, 0, len(movements))
	running := opening
	credits, debits := decimal.Zero, decimal.Zero
	for i, m := range movements {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		entry := Entry{
			MovementID:   m.ID,
			Date:         m.RequestedAt,
			Description:  m.Description,
			TrackingCode: m.TrackingCode,
		}
		if m.IsSource(account.ID) {
			amount := m.TotalDebit()
			entry.Type = EntryDebit
			entry.Amount = domain.NewMoney(amount)
			entry.Counterparty = m.DestinationAccountNumber
			running = running.Sub(amount)
			debits = debits.Add(amount)
		} else {
			entry.Type = EntryCredit
			entry.Amount = domain.NewMoney(m.Amount)
			entry.Counterparty = m.SourceAccountNumber
			if m.IsDeposit() || entry.Counterparty == "" {
				entry.Counterparty = domain.ExternalCounterparty
			}
			running = running.Add(m.Amount)
			credits = credits.Add(m.Amount)
		}
		entry.RunningBalance = domain.NewMoney(running)
		entries = append(entries, entry)
	}

	// Newest first for presentation.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}

	return &Statement{
		AccountID:      account.ID,
		AccountNumber:  account.Number,
		Branch:         account.Branch,
		ClientName:     in.ClientName,
		Period:         in.From.In(e.loc).Format(periodLayout) + " a " + in.To.In(e.loc).Format(periodLayout),
		GeneratedAt:    in.GeneratedAt.UTC(),
		OpeningBalance: domain.NewMoney(opening),
		ClosingBalance: domain.NewMoney(running),
		CurrentBalance: domain.NewMoney(account.Balance),
		TotalCredits:   domain.NewMoney(credits),
		TotalDebits:    domain.NewMoney(debits),
		EntryCount:     len(entries),
		Entries:        entries,
		Summary:        e.summarize(entries),
		Page:           1,
		PageSize:       len(entries),
		TotalPages:     min(len(entries), 1),
	}, nil
}

// OpeningBalance replays prior movements on top of the balance the account
// was opened with: the source side pays amount plus fee, the destination
// side receives the amount.
func OpeningBalance(account *domain.Account, prior []*domain.MoneyMovement) decimal.Decimal {
	balance := account.OpeningBalance
	for _, m := range prior {
		if !affectsBalance(m) {
			continue
		}
		switch {
		case m.IsSource(account.ID):
			balance = balance.Sub(m.TotalDebit())
		case m.DestinationAccountID == account.ID:
			balance = balance.Add(m.Amount)
		}
	}
	return balance
}

// Cancelled and failed movements never moved money.
func affectsBalance(m *domain.MoneyMovement) bool {
	return m.Status != domain.MovementStatusCancelled && m.Status != domain.MovementStatusFailed
}

type dayTotals struct {
	date    time.Time
	count   int
	credits decimal.Decimal
	debits  decimal.Decimal
	hasCr   bool
	hasDb   bool
}

// summarize expects entries newest first; the busiest day on a tie is the
// first one met in that order.
func (e *Engine) summarize(entries []Entry) Summary {
	if len(entries) == 0 {
		return Summary{BusiestDay: noBusiestDay}
	}

	days := make([]*dayTotals, 0)
	byKey := make(map[string]*dayTotals)
	largestCredit, largestDebit := decimal.Zero, decimal.Zero

	for _, entry := range entries {
		local := entry.Date.In(e.loc)
		key := domain.DateKey(local)
		day, ok := byKey[key]
		if !ok {
			day = &dayTotals{date: local, credits: decimal.Zero, debits: decimal.Zero}
			byKey[key] = day
			days = append(days, day)
		}
		day.count++

		amount := entry.Amount.Decimal()
		if entry.Type == EntryCredit {
			day.credits = day.credits.Add(amount)
			day.hasCr = true
			if amount.GreaterThan(largestCredit) {
				largestCredit = amount
			}
			continue
		}
		day.debits = day.debits.Add(amount)
		day.hasDb = true
		if amount.GreaterThan(largestDebit) {
			largestDebit = amount
		}
	}

	var busiest *dayTotals
	creditSum, debitSum := decimal.Zero, decimal.Zero
	creditDays, debitDays := 0, 0
	for _, day := range days {
		if busiest == nil || day.count > busiest.count {
			busiest = day
		}
		if day.hasCr {
			creditSum = creditSum.Add(day.credits)
			creditDays++
		}
		if day.hasDb {
			debitSum = debitSum.Add(day.debits)
			debitDays++
		}
	}

	return Summary{
		AverageDailyCredits: domain.NewMoney(average(creditSum, creditDays)),
		AverageDailyDebits:  domain.NewMoney(average(debitSum, debitDays)),
		ActiveDays:          len(days),
		BusiestDay:          busiest.date.Format(periodLayout),
		LargestCredit:       domain.NewMoney(largestCredit),
		LargestDebit:        domain.NewMoney(largestDebit),
	}
}

func average(sum decimal.Decimal, n int) decimal.Decimal {
	if n == 0 {
		return decimal.Zero
	}
	return sum.Div(decimal.NewFromInt(int64(n)))
}
