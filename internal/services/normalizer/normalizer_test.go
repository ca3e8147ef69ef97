package normalizer

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/poswatch/internal/domain"
)

func parse(t *testing.T, raw string) domain.TradeMap {
	t.Helper()
	payload, err := domain.ParsePayload([]byte(raw))
	require.NoError(t, err)
	return Normalize(payload.Groups)
}

func TestNormalize_Aliases(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		qty      int64
		avg      string
		last     string
		unbooked string
		booked   string
	}{
		{
			name: "canonical names",
			raw: `{"data":[{"trades":[{"trading_symbol":"NIFTY","product":"NRML","quantity":50,
				"average_price":101.5,"last_price":110,"unbooked_pnl":425,"booked_profit_loss":-10}]}]}`,
			qty: 50, avg: "101.5", last: "110", unbooked: "425", booked: "-10",
		},
		{
			name: "net_qty alias",
			raw:  `{"data":[{"trades":[{"trading_symbol":"NIFTY","product":"NRML","net_qty":5}]}]}`,
			qty:  5, avg: "0", last: "0", unbooked: "0", booked: "0",
		},
		{
			name: "zero primary falls through to alias",
			raw: `{"data":[{"trades":[{"trading_symbol":"NIFTY","product":"NRML","quantity":0,"qty":-25,
				"avg_price":"99.25","ltp":"98","unbooked":"-31.25","bookedpnl":"12"}]}]}`,
			qty: -25, avg: "99.25", last: "98", unbooked: "-31.25", booked: "12",
		},
		{
			name: "malformed values read as zero",
			raw: `{"data":[{"trades":[{"trading_symbol":"NIFTY","product":"NRML","quantity":"abc",
				"average_price":null,"last_price":{"x":1}}]}]}`,
			qty: 0, avg: "0", last: "0", unbooked: "0", booked: "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trades := parse(t, tt.raw)
			require.Len(t, trades, 1)

			got, ok := trades["NIFTY|NRML"]
			require.True(t, ok)
			assert.Equal(t, tt.qty, got.Quantity)
			assert.True(t, decimal.RequireFromString(tt.avg).Equal(got.AveragePrice), "expected avg %s, got %s", tt.avg, got.AveragePrice)
			assert.True(t, decimal.RequireFromString(tt.last).Equal(got.LastPrice), "expected last %s, got %s", tt.last, got.LastPrice)
			assert.True(t, decimal.RequireFromString(tt.unbooked).Equal(got.UnbookedPnL), "expected unbooked %s, got %s", tt.unbooked, got.UnbookedPnL)
			assert.True(t, decimal.RequireFromString(tt.booked).Equal(got.BookedProfitLoss), "expected booked %s, got %s", tt.booked, got.BookedProfitLoss)
		})
	}
}

func TestNormalize_MergeDuplicates(t *testing.T) {
	raw := `{"data":[
		{"trades":[{"trading_symbol":"BANKNIFTY","product":"MIS","quantity":15,"average_price":200,"last_price":210,"unbooked_pnl":150,"booked_profit_loss":30}]},
		{"trades":[{"trading_symbol":"BANKNIFTY","product":"MIS","quantity":0,"average_price":0,"last_price":215,"unbooked_pnl":0,"booked_profit_loss":0}]}
	]}`

	trades := parse(t, raw)
	require.Len(t, trades, 1)

	got := trades["BANKNIFTY|MIS"]
	assert.Equal(t, int64(15), got.Quantity)
	assert.True(t, decimal.NewFromInt(200).Equal(got.AveragePrice))
	assert.True(t, decimal.NewFromInt(215).Equal(got.LastPrice))
	assert.True(t, got.UnbookedPnL.IsZero(), "P&L takes the latest entry")
	assert.True(t, got.BookedProfitLoss.IsZero(), "P&L takes the latest entry")
}

func TestNormalize_KeysAndDegenerateEntries(t *testing.T) {
	raw := `{"data":[
		{"trades":[
			{"trading_symbol":"NIFTY24FEB25000PE","product":"NRML","quantity":50},
			{"trading_symbol":"NIFTY24FEB25000PE","product":"MIS","quantity":25},
			{"quantity":1},
			"not an object"
		]},
		{"no_trades":true},
		{"trades":"broken"}
	]}`

	trades := parse(t, raw)
	assert.Equal(t, []string{"NIFTY24FEB25000PE|MIS", "NIFTY24FEB25000PE|NRML", "|"}, trades.Keys())
	assert.Equal(t, int64(1), trades["|"].Quantity)
}

func TestNormalize_InstrumentInfo(t *testing.T) {
	raw := `{"data":[{"trades":[{"trading_symbol":"NIFTY24FEB25000PE","product":"NRML","quantity":50,
		"instrument_info":{"strike":25000,"instrument_type":"PE","expiry":"2024-02-29"}}]}]}`

	got := parse(t, raw)["NIFTY24FEB25000PE|NRML"]
	assert.True(t, decimal.NewFromInt(25000).Equal(got.Instrument.Strike))
	assert.Equal(t, "PE", got.Instrument.InstrumentType)
	assert.Equal(t, "2024-02-29", got.Instrument.Expiry)
}

func TestNormalize_Empty(t *testing.T) {
	assert.Empty(t, Normalize(nil))
	assert.Empty(t, parse(t, `{}`))
	assert.Empty(t, parse(t, `[]`))
}

func TestNormalizeSnapshot(t *testing.T) {
	t.Run("valid payload", func(t *testing.T) {
		snap, err := NormalizeSnapshot(domain.StoredSnapshot{
			ID:  7,
			Raw: []byte(`{"data":[{"trades":[{"trading_symbol":"SBIN","product":"CNC","quantity":10}]}]}`),
		})
		require.NoError(t, err)
		assert.Equal(t, int64(7), snap.ID)
		assert.Equal(t, 1, snap.Payload.TradeCount())
		assert.Equal(t, int64(10), snap.Trades["SBIN|CNC"].Quantity)
	})

	t.Run("invalid json", func(t *testing.T) {
		_, err := NormalizeSnapshot(domain.StoredSnapshot{ID: 8, Raw: []byte(`{not json`)})
		assert.Error(t, err)
	})
}

func TestRawPnL(t *testing.T) {
	unbooked, booked := RawPnL(domain.RawTrade{"unbookedpnl": "12.5", "booked_pnl": "-3"})
	assert.True(t, decimal.RequireFromString("12.5").Equal(unbooked))
	assert.True(t, decimal.RequireFromString("-3").Equal(booked))
}
