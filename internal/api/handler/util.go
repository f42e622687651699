package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/bmptec/ledger-core/internal/api/problem"
	"github.com/bmptec/ledger-core/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// RespondJSON writes a JSON response.
func RespondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// RespondError writes a problem response; problemType may be a slug.
func RespondError(w http.ResponseWriter, r *http.Request, status int, problemType, message string) {
	problem.Send(w, r, problem.New(status, problemType, message))
}

func respondLedgerError(w http.ResponseWriter, r *http.Request, status int, err error, message string) {
	code := domain.CodeOf(err)
	problem.Send(w, r, problem.New(status, "ledger/"+code, message).WithCode(code))
}

// RespondDomainError maps a service error onto a problem response by kind.
// Unclassified errors are logged and hidden behind a generic message.
func RespondDomainError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	var status int
	switch domain.KindOf(err) {
	case domain.KindValidation:
		status = http.StatusBadRequest
	case domain.KindNotFound:
		status = http.StatusNotFound
	case domain.KindConflict:
		status = http.StatusConflict
	case domain.KindInfrastructure:
		if domain.IsRetryable(err) {
			w.Header().Set("Retry-After", "1")
		}
		zap.L().Error(fallback, zap.Error(err), zap.String("path", r.URL.Path))
		respondLedgerError(w, r, http.StatusInternalServerError, err, domainMessage(err))
		return
	default:
		if status, pType, msg, ok := mapDBError(err); ok {
			RespondError(w, r, status, pType, msg)
			return
		}
		zap.L().Error(fallback, zap.Error(err), zap.String("path", r.URL.Path))
		RespondError(w, r, http.StatusInternalServerError, "internal-server-error", fallback)
		return
	}
	respondLedgerError(w, r, status, err, err.Error())
}

func domainMessage(err error) string {
	var e *domain.Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-"+name, "Invalid "+strings.ReplaceAll(name, "_", " "))
		return uuid.Nil, false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return false
	}
	return true
}

func mapDBError(err error) (status int, problemType, message string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return 0, "", "", false
	}

	switch pgErr.Code {
	case "23505": // unique_violation
		return http.StatusConflict, "db/unique-violation", "resource already exists", true
	case "23503": // foreign_key_violation
		return http.StatusBadRequest, "db/foreign-key-violation", "invalid reference", true
	case "23514": // check_violation
		return http.StatusBadRequest, "db/check-violation", "request violates data constraints", true
	case "23502": // not_null_violation
		return http.StatusBadRequest, "db/not-null-violation", "missing required field", true
	default:
		return 0, "", "", false
	}
}
