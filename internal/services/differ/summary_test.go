package differ

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/poswatch/internal/domain"
)

func payload(t *testing.T, raw string) domain.Payload {
	t.Helper()
	p, err := domain.ParsePayload([]byte(raw))
	require.NoError(t, err)
	return p
}

const base = `{"data":[{"trades":[
	{"trading_symbol":"NIFTY24FEB25000PE","product":"NRML","quantity":50,"last_price":10,"instrument_info":{"strike":25000,"instrument_type":"PE"}},
	{"trading_symbol":"NIFTY24FEB25500CE","product":"NRML","quantity":-50,"last_price":12,"instrument_info":{"strike":25500,"instrument_type":"CE"}}
]}]}`

func TestStructureChanged(t *testing.T) {
	priceOnly := `{"data":[{"trades":[
		{"trading_symbol":"NIFTY24FEB25500CE","product":"NRML","quantity":-50,"last_price":14,"instrument_info":{"strike":25500,"instrument_type":"CE"}},
		{"trading_symbol":"NIFTY24FEB25000PE","product":"NRML","quantity":50,"last_price":9,"instrument_info":{"strike":25000,"instrument_type":"PE"}}
	]}]}`
	qtyChange := `{"data":[{"trades":[
		{"trading_symbol":"NIFTY24FEB25000PE","product":"NRML","quantity":25,"instrument_info":{"strike":25000,"instrument_type":"PE"}},
		{"trading_symbol":"NIFTY24FEB25500CE","product":"NRML","quantity":-50,"instrument_info":{"strike":25500,"instrument_type":"CE"}}
	]}]}`

	assert.False(t, StructureChanged(payload(t, base), payload(t, priceOnly)))
	assert.True(t, StructureChanged(payload(t, base), payload(t, qtyChange)))
	assert.True(t, StructureChanged(payload(t, base), payload(t, `{"data":[]}`)))
}

func TestSummarize(t *testing.T) {
	tests := []struct {
		name string
		curr string
		want string
	}{
		{
			name: "added",
			curr: `{"data":[{"trades":[
				{"trading_symbol":"NIFTY24FEB25000PE","product":"NRML","quantity":50,"instrument_info":{"strike":25000,"instrument_type":"PE"}},
				{"trading_symbol":"NIFTY24FEB25500CE","product":"NRML","quantity":-50,"instrument_info":{"strike":25500,"instrument_type":"CE"}},
				{"trading_symbol":"SBIN","product":"CNC","quantity":10}
			]}]}`,
			want: "Positions Added (1)",
		},
		{
			name: "reduced",
			curr: `{"data":[{"trades":[
				{"trading_symbol":"NIFTY24FEB25000PE","product":"NRML","quantity":50,"instrument_info":{"strike":25000,"instrument_type":"PE"}}
			]}]}`,
			want: "Positions Reduced (1)",
		},
		{
			name: "modified",
			curr: `{"data":[{"trades":[
				{"trading_symbol":"NIFTY24FEB25000PE","product":"NRML","quantity":75,"instrument_info":{"strike":25000,"instrument_type":"PE"}},
				{"trading_symbol":"NIFTY24FEB25500CE","product":"NRML","quantity":-25,"instrument_info":{"strike":25500,"instrument_type":"CE"}}
			]}]}`,
			want: "Positions Modified (2)",
		},
		{
			name: "mixed",
			curr: `{"data":[{"trades":[
				{"trading_symbol":"NIFTY24FEB25000PE","product":"NRML","quantity":75,"instrument_info":{"strike":25000,"instrument_type":"PE"}},
				{"trading_symbol":"SBIN","product":"CNC","quantity":10}
			]}]}`,
			want: "Positions Changed (Added: 1, Removed: 1, Modified: 1)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Summarize(payload(t, base), payload(t, tt.curr)))
		})
	}
}
