package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/bmptec/ledger-core/internal/models"
	"github.com/bmptec/ledger-core/internal/service"
)

const dateLayout = "2006-01-02"

type StatementHandler struct {
	svc *service.StatementService
	loc *time.Location
}

// NewStatementHandler reads bare dates in loc: from starts at midnight and
// to runs until the end of its day.
func NewStatementHandler(svc *service.StatementService, loc *time.Location) *StatementHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &StatementHandler{svc: svc, loc: loc}
}

func (h *StatementHandler) GetStatement(w http.ResponseWriter, r *http.Request) {
	req, ok := h.parseRequest(w, r)
	if !ok {
		return
	}
	st, err := h.svc.GenerateStatement(r.Context(), service.StatementQuery(req))
	if err != nil {
		RespondDomainError(w, r, err, "generate statement failed")
		return
	}
	RespondJSON(w, http.StatusOK, st)
}

func (h *StatementHandler) DownloadStatement(w http.ResponseWriter, r *http.Request) {
	req, ok := h.parseRequest(w, r)
	if !ok {
		return
	}
	name, body, err := h.svc.GenerateStatementText(r.Context(), req.AccountID, req.From, req.To)
	if err != nil {
		RespondDomainError(w, r, err, "generate statement failed")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (h *StatementHandler) parseRequest(w http.ResponseWriter, r *http.Request) (models.StatementRequest, bool) {
	var req models.StatementRequest
	id, ok := uuidParam(w, r, "account_id")
	if !ok {
		return req, false
	}
	req.AccountID = id

	q := r.URL.Query()
	from, err := h.parseBound(q.Get("from"), false)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-from", err.Error())
		return req, false
	}
	to, err := h.parseBound(q.Get("to"), true)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-to", err.Error())
		return req, false
	}
	req.From, req.To = from, to
	req.Page, _ = strconv.Atoi(q.Get("page"))
	req.PageSize, _ = strconv.Atoi(q.Get("page_size"))
	return req, true
}

// parseBound accepts RFC 3339 timestamps or bare dates.
func (h *StatementHandler) parseBound(raw string, end bool) (time.Time, error) {
	if raw == "" {
		return time.Time{}, fmt.Errorf("date is required")
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	day, err := time.ParseInLocation(dateLayout, raw, h.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q must be YYYY-MM-DD or RFC 3339", raw)
	}
	if end {
		day = day.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return day.UTC(), nil
}
