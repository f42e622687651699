package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBrasilAPIHolidays(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"date":"2026-01-01","name":"Confraternização mundial","type":"national"},
			{"date":"2026-10-12","name":"Nossa Senhora Aparecida","type":"national"}
		]`))
	}))
	defer srv.Close()

	api := NewBrasilAPI(srv.URL+"/api/feriados/v1/", time.Second)
	holidays, err := api.Holidays(context.Background(), 2026)
	require.NoError(t, err)

	assert.Equal(t, "/api/feriados/v1/2026", gotPath)
	require.Len(t, holidays, 2)
	assert.Equal(t, time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC), holidays[1].Date)
	assert.Equal(t, "Nossa Senhora Aparecida", holidays[1].Name)
	assert.Equal(t, "national", holidays[1].Type)
}

func TestBrasilAPIErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "server error", status: http.StatusInternalServerError, body: `oops`},
		{name: "malformed body", status: http.StatusOK, body: `{"date":`},
		{name: "bad date", status: http.StatusOK, body: `[{"date":"12/10/2026","name":"x","type":"national"}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewBrasilAPI(srv.URL, time.Second).Holidays(context.Background(), 2026)
			assert.Error(t, err)
		})
	}
}

func TestStaticHolidaysFiltersYear(t *testing.T) {
	static := StaticHolidays{
		{Date: time.Date(2025, 12, 25, 0, 0, 0, 0, time.UTC), Name: "Natal"},
		{Date: time.Date(2026, 12, 25, 0, 0, 0, 0, time.UTC), Name: "Natal"},
	}
	got, err := static.Holidays(context.Background(), 2026)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 2026, got[0].Date.Year())
}
