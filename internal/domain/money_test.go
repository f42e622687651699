package domain

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMoney_String(t *testing.T) {
	m := NewMoney(decimal.RequireFromString("10.5"))
	assert.Equal(t, "10.50", m.String())
}

func TestMoney_Rounding(t *testing.T) {
	m := NewMoney(decimal.RequireFromString("10.005"))
	assert.Equal(t, "10.01", m.String())
}

func TestMoney_MarshalJSON(t *testing.T) {
	payload := struct {
		Amount Money `json:"amount"`
	}{Amount: NewMoney(decimal.NewFromInt(1200))}

	b, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{"amount":1200.00}`, string(b))
}

func TestMoney_UnmarshalJSON(t *testing.T) {
	var payload struct {
		A Money `json:"a"`
		B Money `json:"b"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":300.5,"b":"42.10"}`), &payload))
	assert.True(t, payload.A.Decimal().Equal(decimal.RequireFromString("300.5")))
	assert.True(t, payload.B.Decimal().Equal(decimal.RequireFromString("42.1")))
}

func TestParseMoney(t *testing.T) {
	m, err := ParseMoney(" 99.9 ")
	require.NoError(t, err)
	assert.Equal(t, "99.90", m.String())

	_, err = ParseMoney("abc")
	require.ErrorIs(t, err, ErrInvalidInput)
}
