package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Ticker string  `json:"ticker"`
	Unit   string  `json:"unit"`
	Price  float64 `json:"price"`
}

func TestDecodeLenient(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		strategy Strategy
	}{
		{"strict json", `{"ticker": "XYZ", "unit": "millions", "price": 12.5}`, StrategyJSON},
		{"trailing comma", `{"ticker": "XYZ", "unit": "millions", "price": 12.5,}`, StrategyHJSON},
		{"single quotes", `{'ticker': 'XYZ', 'unit': 'millions', 'price': 12.5}`, StrategyHJSON},
		{"unclosed object", `{"ticker": "XYZ", "unit": "millions", "price": 12.5`, StrategyRepaired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p payload
			got, err := DecodeLenient([]byte(tt.input), &p)
			require.NoError(t, err)
			assert.Equal(t, tt.strategy, got)
			assert.Equal(t, "XYZ", p.Ticker)
			assert.Equal(t, 12.5, p.Price)
		})
	}
}

func TestDecodeLenient_KeepsDecimals(t *testing.T) {
	var v struct {
		Revenue float64 `json:"revenue"`
		Shares  float64 `json:"shares"`
	}
	got, err := DecodeLenient([]byte("{revenue: 2500.3, shares: 150000123,}"), &v)
	require.NoError(t, err)
	assert.Equal(t, StrategyHJSON, got)
	assert.Equal(t, 2500.3, v.Revenue)
	assert.Equal(t, 150000123.0, v.Shares)
}

func TestDecodeLenient_RejectsLossyRepair(t *testing.T) {
	var p payload
	_, err := DecodeLenient([]byte(`{"ticker": "XYZ", "price": 2500.3`), &p)
	assert.ErrorIs(t, err, ErrLossyRepair)
}

func TestCheckNumbers(t *testing.T) {
	assert.NoError(t, checkNumbers([]byte(`{a: 1.5, b: -2e3}`), []byte(`{"a":1.5,"b":-2000}`)))
	assert.ErrorIs(t, checkNumbers([]byte(`{a: 1.1}`), []byte(`{"a":1.100000023841858}`)), ErrLossyRepair)
}

func TestHJSONToJSON(t *testing.T) {
	out, err := HJSONToJSON([]byte("{\n  # snapshot\n  ticker: XYZ\n  price: 12.5\n  shares: 150000123.25\n}"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"ticker":"XYZ","price":12.5,"shares":150000123.25}`, string(out))
}

func TestDecodeLenientRejectsGarbage(t *testing.T) {
	var p payload
	_, err := DecodeLenient([]byte(`[1, 2, 3]`), &p)
	assert.Error(t, err)
}
