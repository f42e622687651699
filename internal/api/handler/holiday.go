package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/bmptec/ledger-core/internal/gateway"
	"github.com/bmptec/ledger-core/internal/models"
	"go.uber.org/zap"
)

// HolidayLister is the part of the business calendar exposed for diagnostics.
type HolidayLister interface {
	Holidays(ctx context.Context, year int) ([]gateway.Holiday, error)
	Location() *time.Location
}

type HolidayHandler struct {
	calendar HolidayLister
	now      func() time.Time
}

func NewHolidayHandler(calendar HolidayLister) *HolidayHandler {
	return &HolidayHandler{calendar: calendar, now: time.Now}
}

// ListHolidays returns the holidays of ?year=, defaulting to the current year.
func (h *HolidayHandler) ListHolidays(w http.ResponseWriter, r *http.Request) {
	year := h.now().In(h.calendar.Location()).Year()
	if raw := r.URL.Query().Get("year"); raw != "" {
		y, err := strconv.Atoi(raw)
		if err != nil || y < 1900 || y > 2199 {
			RespondError(w, r, http.StatusBadRequest, "request/invalid-year", "year must be a four digit number")
			return
		}
		year = y
	}

	holidays, err := h.calendar.Holidays(r.Context(), year)
	if err != nil {
		zap.L().Warn("holiday listing failed", zap.Int("year", year), zap.Error(err))
		RespondError(w, r, http.StatusBadGateway, "holidays/unavailable", "holiday calendar unavailable")
		return
	}

	out := make([]models.HolidayResponse, 0, len(holidays))
	for _, hd := range holidays {
		out = append(out, models.HolidayResponse{
			Date: hd.Date.Format(dateLayout),
			Name: hd.Name,
			Type: hd.Type,
		})
	}
	RespondJSON(w, http.StatusOK, out)
}
