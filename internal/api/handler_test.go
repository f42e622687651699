package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/bmptec/ledger-core/internal/api"
	"github.com/bmptec/ledger-core/internal/api/handler"
	"github.com/bmptec/ledger-core/internal/calendar"
	"github.com/bmptec/ledger-core/internal/config"
	"github.com/bmptec/ledger-core/internal/gateway"
	"github.com/bmptec/ledger-core/internal/idempotency"
	"github.com/bmptec/ledger-core/internal/models"
	"github.com/bmptec/ledger-core/internal/observability"
	"github.com/bmptec/ledger-core/internal/repository"
	"github.com/bmptec/ledger-core/internal/sequence"
	"github.com/bmptec/ledger-core/internal/service"
	"github.com/bmptec/ledger-core/internal/statement"
	"github.com/bmptec/ledger-core/internal/testutil/memstore"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// Wednesday.
var testNow = time.Date(2026, 10, 14, 13, 0, 0, 0, time.UTC)

func TestMain(m *testing.M) {
	zap.ReplaceGlobals(zap.NewNop())
	observability.Init()
	os.Exit(m.Run())
}

type testAPI struct {
	handler http.Handler
	store   *memstore.Store
}

func setupAPI(t *testing.T) *testAPI {
	t.Helper()
	store := memstore.New()
	clock := func() time.Time { return testNow }

	holidays := gateway.StaticHolidays{
		{Date: time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC), Name: "Nossa Senhora Aparecida", Type: "national"},
		{Date: time.Date(2026, 11, 2, 0, 0, 0, 0, time.UTC), Name: "Finados", Type: "national"},
	}
	cal := calendar.New(holidays, time.UTC)
	allocator := sequence.NewAllocator(repository.NewCounterStore(store), nil).WithClock(clock)

	cfg := &config.Config{
		PublicRateLimitRPS: 1000,
		IdempotencyTTL:     time.Hour,
		Location:           time.UTC,
	}
	svc := api.Services{
		Accounts:  service.NewAccountService(store, allocator).WithClock(clock),
		Transfers: service.NewTransferService(store, cal, allocator).WithClock(clock),
		Statements: service.NewStatementService(store, statement.NewEngine(statement.DefaultMaxDays, time.UTC)).
			WithClock(clock),
		Calendar: cal,
	}
	idemStore := idempotency.NewStore(nil, store, cfg.IdempotencyTTL)
	health := handler.NewHealthHandler(nil, nil)

	return &testAPI{
		handler: api.NewRouter(cfg, zap.NewNop(), health, idemStore, svc).Routes(),
		store:   store,
	}
}

func (a *testAPI) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, req)
	return w
}

func (a *testAPI) createAccount(t *testing.T, cpf, initial string) models.AccountResponse {
	t.Helper()
	w := a.do(t, http.MethodPost, "/v1/accounts", map[string]any{
		"name":            "Cliente " + cpf,
		"cpf":             cpf,
		"email":           cpf + "@example.com",
		"birth_date":      "1990-01-01",
		"phone":           "11988887777",
		"initial_balance": initial,
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var account models.AccountResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &account))
	return account
}

func idemKey(key string) map[string]string {
	return map[string]string{"Idempotency-Key": key}
}

func TestRFC7807ProblemDetails(t *testing.T) {
	a := setupAPI(t)

	accountID := uuid.New().String()
	w := a.do(t, http.MethodGet, "/v1/accounts/"+accountID, nil, nil)

	require.Equal(t, http.StatusNotFound, w.Code)
	require.Contains(t, w.Header().Get("Content-Type"), "application/problem+json")

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "https://errors.ledger-core.dev/ledger/account_not_found", body["type"])
	assert.Equal(t, float64(http.StatusNotFound), body["status"])
	assert.NotEmpty(t, body["title"])
	assert.NotEmpty(t, body["detail"])
	assert.Equal(t, "/v1/accounts/"+accountID, body["instance"])
	assert.Equal(t, "account_not_found", body["code"])
	assert.Equal(t, w.Header().Get("X-Trace-ID"), body["trace_id"])
	assert.NotEmpty(t, body["trace_id"])
}

func TestCreateAccount(t *testing.T) {
	a := setupAPI(t)

	account := a.createAccount(t, "12345678900", "150.5")
	assert.Equal(t, "000001-9", account.AccountNumber)
	assert.Equal(t, "0001", account.Branch)
	assert.Equal(t, "CHECKING", account.Kind)
	assert.Equal(t, "ACTIVE", account.Status)
	assert.Equal(t, "150.50", account.Balance.String())

	w := a.do(t, http.MethodGet, "/v1/accounts/"+account.ID.String(), nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var fetched models.AccountResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &fetched))
	assert.Equal(t, account.ID, fetched.ID)
	assert.Equal(t, "Cliente 12345678900", fetched.HolderName)

	second := a.createAccount(t, "12345678900", "0")
	w = a.do(t, http.MethodGet, "/v1/clients/"+account.ClientID.String()+"/accounts", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var listed []models.AccountResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	require.Len(t, listed, 2)
	assert.Equal(t, second.ClientID, account.ClientID)
}

func TestCreateAccountValidation(t *testing.T) {
	a := setupAPI(t)

	base := map[string]any{
		"name":       "Maria Souza",
		"cpf":        "98765432100",
		"email":      "maria@example.com",
		"birth_date": "1990-01-01",
		"phone":      "11988887777",
	}
	with := func(k string, v any) map[string]any {
		out := map[string]any{}
		for key, val := range base {
			out[key] = val
		}
		out[k] = v
		return out
	}

	tests := []struct {
		name     string
		body     any
		wantType string
	}{
		{name: "bad birth date", body: with("birth_date", "01/01/1990"), wantType: "request/invalid-birth-date"},
		{name: "unknown kind", body: with("account_kind", "gold"), wantType: "ledger/invalid_input"},
		{name: "short name", body: with("name", "Al"), wantType: "ledger/invalid_client"},
		{name: "negative balance", body: with("initial_balance", "-1"), wantType: "ledger/invalid_amount"},
		{name: "unknown field", body: with("currency", "BRL"), wantType: "request/invalid-body"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := a.do(t, http.MethodPost, "/v1/accounts", tc.body, nil)
			require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			var body map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.True(t, strings.HasSuffix(body["type"].(string), tc.wantType), body["type"])
		})
	}
}

func TestDepositTransferAndStatement(t *testing.T) {
	a := setupAPI(t)
	ana := a.createAccount(t, "11122233344", "1000")
	bruno := a.createAccount(t, "55566677788", "0")

	w := a.do(t, http.MethodPost, "/v1/deposits", map[string]any{
		"account_id": ana.ID,
		"amount":     "500",
	}, idemKey("dep-1"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var deposit models.MovementResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &deposit))
	assert.Equal(t, "deposit", deposit.Kind)
	assert.Equal(t, "COMPLETED", deposit.Status)
	assert.Equal(t, "CHU-20261014-000001", deposit.TrackingCode)

	w = a.do(t, http.MethodPost, "/v1/transfers", map[string]any{
		"source_account_id":      ana.ID,
		"destination_account_id": bruno.ID,
		"amount":                 300,
	}, idemKey("trf-1"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var transfer models.MovementResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &transfer))
	assert.Equal(t, ana.AccountNumber, transfer.SourceAccountNumber)
	assert.Equal(t, bruno.AccountNumber, transfer.DestinationAccountNumber)

	w = a.do(t, http.MethodGet, "/v1/movements/"+transfer.ID.String(), nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = a.do(t, http.MethodGet, "/v1/movements?page=1&page_size=10", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var movements []models.MovementResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &movements))
	assert.Len(t, movements, 2)

	w = a.do(t, http.MethodGet, "/v1/accounts/"+ana.ID.String()+"/statement?from=2026-10-01&to=2026-10-14", nil, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var st statement.Statement
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Equal(t, "1000.00", st.OpeningBalance.String())
	assert.Equal(t, "500.00", st.TotalCredits.String())
	assert.Equal(t, "300.00", st.TotalDebits.String())
	assert.Equal(t, "1200.00", st.ClosingBalance.String())
	assert.Equal(t, "01/10/2026 a 14/10/2026", st.Period)

	w = a.do(t, http.MethodGet, "/v1/accounts/"+ana.ID.String()+"/statement.txt?from=2026-10-01&to=2026-10-14", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `attachment; filename="extrato_20261014130000.txt"`, w.Header().Get("Content-Disposition"))
	assert.True(t, strings.HasPrefix(w.Body.String(), "EXTRATO BANCÁRIO"))
}

func TestTransferErrors(t *testing.T) {
	a := setupAPI(t)
	src := a.createAccount(t, "10000000001", "10")
	dst := a.createAccount(t, "10000000002", "0")

	w := a.do(t, http.MethodPost, "/v1/transfers", map[string]any{
		"source_account_id":      src.ID,
		"destination_account_id": dst.ID,
		"amount":                 "10.01",
	}, idemKey("trf-insufficient"))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "insufficient_funds")

	w = a.do(t, http.MethodPost, "/v1/transfers", map[string]any{
		"source_account_id":      src.ID,
		"destination_account_id": src.ID,
		"amount":                 "1",
	}, idemKey("trf-same"))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(t, http.MethodPost, "/v1/transfers", map[string]any{
		"source_account_id":      src.ID,
		"destination_account_id": uuid.New(),
		"amount":                 "1",
	}, idemKey("trf-missing"))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTransferIdempotency(t *testing.T) {
	a := setupAPI(t)
	src := a.createAccount(t, "10000000001", "100")
	dst := a.createAccount(t, "10000000002", "0")
	body := map[string]any{
		"source_account_id":      src.ID,
		"destination_account_id": dst.ID,
		"amount":                 "25",
	}

	first := a.do(t, http.MethodPost, "/v1/transfers", body, idemKey("same-key"))
	require.Equal(t, http.StatusCreated, first.Code)

	replay := a.do(t, http.MethodPost, "/v1/transfers", body, idemKey("same-key"))
	require.Equal(t, http.StatusCreated, replay.Code)
	assert.Equal(t, first.Body.String(), replay.Body.String())
	assert.NotEmpty(t, replay.Header().Get("X-Idempotent-Replay"))
	assert.Equal(t, 1, a.store.MovementCount())

	body["amount"] = "30"
	conflict := a.do(t, http.MethodPost, "/v1/transfers", body, idemKey("same-key"))
	assert.Equal(t, http.StatusConflict, conflict.Code)

	missing := a.do(t, http.MethodPost, "/v1/transfers", body, nil)
	assert.Equal(t, http.StatusBadRequest, missing.Code)
	assert.Equal(t, 1, a.store.MovementCount())
}

func TestTransferRetryAfterUnknownCommitOutcome(t *testing.T) {
	a := setupAPI(t)
	src := a.createAccount(t, "10000000001", "100")
	dst := a.createAccount(t, "10000000002", "0")
	body := map[string]any{
		"source_account_id":      src.ID,
		"destination_account_id": dst.ID,
		"amount":                 "40",
	}

	a.store.FailNextCommit(repository.ErrCommitOutcomeUnknown)
	first := a.do(t, http.MethodPost, "/v1/transfers", body, idemKey("k-1"))
	require.Equal(t, http.StatusInternalServerError, first.Code, first.Body.String())
	assert.Equal(t, "1", first.Header().Get("Retry-After"))
	assert.Contains(t, first.Body.String(), "partial_transfer_failure")
	require.Equal(t, 1, a.store.MovementCount())

	retry := a.do(t, http.MethodPost, "/v1/transfers", body, idemKey("k-1"))
	require.Equal(t, http.StatusCreated, retry.Code, retry.Body.String())
	assert.Empty(t, retry.Header().Get("X-Idempotent-Replay"))
	var movement models.MovementResponse
	require.NoError(t, json.Unmarshal(retry.Body.Bytes(), &movement))
	stored, err := a.store.GetMovementByRequestKey(context.Background(), "k-1")
	require.NoError(t, err)
	assert.Equal(t, stored.ID, movement.ID)
	assert.Equal(t, 1, a.store.MovementCount())

	replay := a.do(t, http.MethodPost, "/v1/transfers", body, idemKey("k-1"))
	require.Equal(t, http.StatusCreated, replay.Code)
	assert.Equal(t, "postgres", replay.Header().Get("X-Idempotent-Replay"))
	assert.Equal(t, retry.Body.String(), replay.Body.String())

	w := a.do(t, http.MethodGet, "/v1/accounts/"+src.ID.String(), nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var account models.AccountResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &account))
	assert.Equal(t, "60.00", account.Balance.String())
	assert.Equal(t, 1, a.store.MovementCount())
}

func TestAccountStatusEndpoints(t *testing.T) {
	a := setupAPI(t)
	funded := a.createAccount(t, "10000000001", "5")

	w := a.do(t, http.MethodPost, "/v1/accounts/"+funded.ID.String()+"/block", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"BLOCKED"`)

	w = a.do(t, http.MethodPost, "/v1/accounts/"+funded.ID.String()+"/unblock", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ACTIVE"`)

	w = a.do(t, http.MethodPost, "/v1/accounts/"+funded.ID.String()+"/close", nil, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "non_zero_balance")

	w = a.do(t, http.MethodPost, "/v1/accounts/not-a-uuid/close", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStatementRequestValidation(t *testing.T) {
	a := setupAPI(t)
	account := a.createAccount(t, "10000000001", "0")
	base := "/v1/accounts/" + account.ID.String() + "/statement"

	tests := []struct {
		name   string
		query  string
		status int
	}{
		{name: "missing from", query: "?to=2026-10-14", status: http.StatusBadRequest},
		{name: "bad to", query: "?from=2026-10-01&to=14-10-2026", status: http.StatusBadRequest},
		{name: "inverted", query: "?from=2026-10-14&to=2026-10-01", status: http.StatusBadRequest},
		{name: "too long", query: "?from=2026-01-01&to=2026-10-14", status: http.StatusBadRequest},
		{name: "rfc3339", query: "?from=2026-10-14T00:00:00Z&to=2026-10-14T23:00:00Z", status: http.StatusOK},
		{name: "ninety whole days", query: "?from=2026-07-17&to=2026-10-14", status: http.StatusOK},
		{name: "ninety one whole days", query: "?from=2026-07-16&to=2026-10-14", status: http.StatusBadRequest},
		{name: "one minute over ninety days", query: "?from=2026-07-16T00:00:00Z&to=2026-10-14T00:01:00Z", status: http.StatusBadRequest},
		{name: "exactly ninety days", query: "?from=2026-07-16T00:00:00Z&to=2026-10-14T00:00:00Z", status: http.StatusOK},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := a.do(t, http.MethodGet, base+tc.query, nil, nil)
			assert.Equal(t, tc.status, w.Code, w.Body.String())
		})
	}
}

func TestHolidays(t *testing.T) {
	a := setupAPI(t)

	w := a.do(t, http.MethodGet, "/v1/holidays?year=2026", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var holidays []models.HolidayResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &holidays))
	require.Len(t, holidays, 2)
	assert.Equal(t, "2026-10-12", holidays[0].Date)

	w = a.do(t, http.MethodGet, "/v1/holidays?year=abc", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	a := setupAPI(t)

	w := a.do(t, http.MethodGet, "/health/live", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = a.do(t, http.MethodGet, "/health/ready", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	a.do(t, http.MethodGet, "/v1/holidays?year=2026", nil, nil)
	w = a.do(t, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http_request_duration_seconds")
}
