package statement

import (
	"time"

	"github.com/bmptec/ledger-core/internal/domain"
	"github.com/google/uuid"
)

// EntryType classifies an entry relative to the statement's account.
type EntryType string

const (
	EntryCredit EntryType = "CREDIT"
	EntryDebit  EntryType = "DEBIT"
)

const (
	periodLayout = "02/01/2006"
	noBusiestDay = "N/A"
)

// Entry is one movement seen from the statement's account.
type Entry struct {
	MovementID     uuid.UUID    `json:"movement_id"`
	Date           time.Time    `json:"date"`
	Type           EntryType    `json:"type"`
	Description    string       `json:"description"`
	Amount         domain.Money `json:"amount"`
	RunningBalance domain.Money `json:"running_balance"`
	TrackingCode   string       `json:"tracking_code"`
	Counterparty   string       `json:"counterparty"`
}

// Summary aggregates entries by calendar day.
type Summary struct {
	AverageDailyCredits domain.Money `json:"average_daily_credits"`
	AverageDailyDebits  domain.Money `json:"average_daily_debits"`
	ActiveDays          int          `json:"active_days"`
	BusiestDay          string       `json:"busiest_day"`
	LargestCredit       domain.Money `json:"largest_credit"`
	LargestDebit        domain.Money `json:"largest_debit"`
}

// Statement is the reconstructed history of an account over a period.
// Entries are ordered newest first.
type Statement struct {
	AccountID      uuid.UUID    `json:"account_id"`
	AccountNumber  string       `json:"account_number"`
	Branch         string       `json:"branch"`
	ClientName     string       `json:"client_name"`
	Period         string       `json:"period"`
	GeneratedAt    time.Time    `json:"generated_at"`
	OpeningBalance domain.Money `json:"opening_balance"`
	ClosingBalance domain.Money `json:"closing_balance"`
	CurrentBalance domain.Money `json:"current_balance"`
	TotalCredits   domain.Money `json:"total_credits"`
	TotalDebits    domain.Money `json:"total_debits"`
	EntryCount     int          `json:"entry_count"`
	Entries        []Entry      `json:"entries"`
	Summary        Summary      `json:"summary"`
	Page           int          `json:"page"`
	PageSize       int          `json:"page_size"`
	TotalPages     int          `json:"total_pages"`
}

// Paginate returns a copy of s holding only the requested page of entries.
// Totals and summary still describe the whole period.
func (s *Statement) Paginate(page, size int) *Statement {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = len(s.Entries)
		if size == 0 {
			size = 1
		}
	}

	out := *s
	out.Page = page
	out.PageSize = size
	out.TotalPages = (len(s.Entries) + size - 1) / size

	start := (page - 1) * size
	if start >= len(s.Entries) {
		out.Entries = []Entry{}
		return &out
	}
	end := min(start+size, len(s.Entries))
	out.Entries = append([]Entry(nil), s.Entries[start:end]...)
	return &out
}
