package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const DefaultHolidayAPIURL = "https://brasilapi.com.br/api/feriados/v1"

// Holiday is one entry of a yearly holiday list.
type Holiday struct {
	Date time.Time
	Name string
	Type string
}

// HolidaySource returns the holidays of a calendar year.
type HolidaySource interface {
	Holidays(ctx context.Context, year int) ([]Holiday, error)
}

// BrasilAPI fetches national holidays from a BrasilAPI compatible endpoint
// serving GET {base}/{year}.
type BrasilAPI struct {
	baseURL string
	client  *http.Client
}

func NewBrasilAPI(baseURL string, timeout time.Duration) *BrasilAPI {
	if baseURL == "" {
		baseURL = DefaultHolidayAPIURL
	}
	return &BrasilAPI{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type holidayPayload struct {
	Date string `json:"date"`
	Name string `json:"name"`
	Type string `json:"type"`
}

func (b *BrasilAPI) Holidays(ctx context.Context, year int) ([]Holiday, error) {
	url := fmt.Sprintf("%s/%d", b.baseURL, year)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build holiday request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch holidays for %d: %w", year, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("fetch holidays for %d: unexpected status %d", year, resp.StatusCode)
	}

	var payload []holidayPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode holidays for %d: %w", year, err)
	}

	holidays := make([]Holiday, 0, len(payload))
	for _, p := range payload {
		date, err := time.Parse(time.DateOnly, p.Date)
		if err != nil {
			return nil, fmt.Errorf("parse holiday date %q: %w", p.Date, err)
		}
		holidays = append(holidays, Holiday{Date: date, Name: p.Name, Type: p.Type})
	}
	return holidays, nil
}

// StaticHolidays serves a fixed list, filtered by year.
type StaticHolidays []Holiday

func (s StaticHolidays) Holidays(_ context.Context, year int) ([]Holiday, error) {
	var out []Holiday
	for _, h := range s {
		if h.Date.Year() == year {
			out = append(out, h)
		}
	}
	return out, nil
}
