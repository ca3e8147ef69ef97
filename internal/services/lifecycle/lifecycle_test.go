package lifecycle

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/poswatch/internal/domain"
)

var t0 = time.Date(2024, 2, 5, 9, 15, 0, 0, time.UTC)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func trade(symbol, product string, qty int64, avg, last string) domain.Trade {
	return domain.Trade{
		TradingSymbol: symbol,
		Product:       product,
		Quantity:      qty,
		AveragePrice:  d(avg),
		LastPrice:     d(last),
	}
}

func snap(id int64, trades ...domain.Trade) domain.Snapshot {
	m := make(domain.TradeMap, len(trades))
	for _, t := range trades {
		m[t.Key()] = t
	}
	return domain.Snapshot{ID: id, Timestamp: t0.Add(time.Duration(id) * time.Minute), Trades: m}
}

func types(events []domain.Event) []domain.EventType {
	out := make([]domain.EventType, 0, len(events))
	for _, e := range events {
		out = append(out, e.Type)
	}
	return out
}

func TestReplay_EnterAndExit(t *testing.T) {
	snaps := []domain.Snapshot{
		snap(1, trade("NIFTY", "NRML", 0, "0", "0")),
		snap(2, trade("NIFTY", "NRML", 5, "100", "101")),
		snap(3, trade("NIFTY", "NRML", 5, "100", "103")),
		snap(4, trade("NIFTY", "NRML", 0, "0", "0")),
	}

	events := Replay(snaps, Filter{})
	require.Len(t, events, 2)

	assert.Equal(t, domain.EventEntered, events[0].Type)
	assert.Equal(t, int64(2), events[0].SnapshotID)
	assert.Equal(t, int64(0), events[0].BeforeQuantity)
	assert.Equal(t, int64(5), events[0].AfterQuantity)

	assert.Equal(t, domain.EventExited, events[1].Type)
	assert.Equal(t, int64(4), events[1].SnapshotID)
	assert.Equal(t, int64(5), events[1].BeforeQuantity)
	assert.Equal(t, int64(-5), events[1].QuantityDiff)
	assert.True(t, d("103").Equal(events[1].ExitPrice), "got %s", events[1].ExitPrice)
	assert.True(t, d("15").Equal(events[1].ExitPnL), "got %s", events[1].ExitPnL)
}

func TestReplay_ExitUsesBackfilledAverage(t *testing.T) {
	snaps := []domain.Snapshot{
		snap(1, trade("NIFTY", "NRML", 5, "100", "100")),
		snap(2, trade("NIFTY", "NRML", 5, "0", "110")),
		snap(3),
	}

	events := Replay(snaps, Filter{})
	require.Equal(t, []domain.EventType{domain.EventEntered, domain.EventExited}, types(events))

	exit := events[1]
	assert.True(t, d("100").Equal(exit.BeforeAveragePrice), "got %s", exit.BeforeAveragePrice)
	assert.True(t, d("110").Equal(exit.ExitPrice), "got %s", exit.ExitPrice)
	assert.True(t, d("50").Equal(exit.ExitPnL), "got %s", exit.ExitPnL)
}

func TestReplay_ExitUsesBookedFromClosingSnapshot(t *testing.T) {
	closing := trade("NIFTY", "NRML", 0, "0", "0")
	closing.BookedProfitLoss = d("42")

	events := Replay([]domain.Snapshot{
		snap(1, trade("NIFTY", "NRML", 5, "100", "100")),
		snap(2, closing),
	}, Filter{})

	require.Len(t, events, 2)
	assert.True(t, d("42").Equal(events[1].ExitPnL), "got %s", events[1].ExitPnL)
}

func TestReplay_ModifiedReduction(t *testing.T) {
	reduced := trade("NIFTY", "NRML", 4, "100", "111")
	reduced.BookedProfitLoss = d("60")

	events := Replay([]domain.Snapshot{
		snap(1, trade("NIFTY", "NRML", 10, "100", "105")),
		snap(2, reduced),
		snap(3, trade("NIFTY", "NRML", 9, "108", "112")),
	}, Filter{})

	require.Equal(t, []domain.EventType{domain.EventEntered, domain.EventModified, domain.EventModified}, types(events))

	reduce := events[1]
	assert.Equal(t, domain.FillSell, reduce.ImpliedFillSide)
	assert.Equal(t, int64(6), reduce.ImpliedFillQty)
	assert.True(t, d("60").Equal(reduce.ExitPnL), "got %s", reduce.ExitPnL)
	assert.True(t, d("105").Equal(reduce.ExitPrice), "got %s", reduce.ExitPrice)

	add := events[2]
	assert.Equal(t, domain.FillBuy, add.ImpliedFillSide)
	assert.Equal(t, int64(5), add.ImpliedFillQty)
	// (108*9 - 100*4) / 5
	assert.True(t, d("114.4").Equal(add.ImpliedFillPrice), "got %s", add.ImpliedFillPrice)
	assert.True(t, add.ExitPnL.IsZero())
	assert.True(t, add.ExitPrice.IsZero())
}

func TestReplay_PartialReduceWithUnchangedAverage(t *testing.T) {
	events := Replay([]domain.Snapshot{
		snap(1, trade("NIFTY", "NRML", 10, "100", "110")),
		snap(2, trade("NIFTY", "NRML", 4, "100", "112")),
	}, Filter{})

	require.Equal(t, []domain.EventType{domain.EventEntered, domain.EventModified}, types(events))

	reduce := events[1]
	assert.Equal(t, domain.FillSell, reduce.ImpliedFillSide)
	assert.Equal(t, int64(6), reduce.ImpliedFillQty)
	assert.True(t, d("100").Equal(reduce.ImpliedFillPrice), "got %s", reduce.ImpliedFillPrice)
	assert.True(t, d("110").Equal(reduce.ExitPrice), "got %s", reduce.ExitPrice)
	assert.True(t, d("100").Equal(reduce.ExitPnL), "got %s", reduce.ExitPnL)
}

func TestReplay_ShortPartialReduce(t *testing.T) {
	events := Replay([]domain.Snapshot{
		snap(1, trade("BANKNIFTY", "NRML", -15, "200", "190")),
		snap(2, trade("BANKNIFTY", "NRML", -5, "200", "185")),
	}, Filter{})

	require.Len(t, events, 2)
	reduce := events[1]
	assert.Equal(t, domain.EventModified, reduce.Type)
	assert.Equal(t, domain.FillBuy, reduce.ImpliedFillSide)
	assert.True(t, d("190").Equal(reduce.ExitPrice), "got %s", reduce.ExitPrice)
	// (190 - 200) * -15
	assert.True(t, d("150").Equal(reduce.ExitPnL), "got %s", reduce.ExitPnL)
}

func TestReplay_ReentryKeepsBackfillHistory(t *testing.T) {
	events := Replay([]domain.Snapshot{
		snap(1, trade("NIFTY", "NRML", 5, "100", "100")),
		snap(2),
		snap(3, trade("NIFTY", "NRML", 3, "0", "120")),
		snap(4),
	}, Filter{})

	require.Equal(t, []domain.EventType{
		domain.EventEntered, domain.EventExited, domain.EventEntered, domain.EventExited,
	}, types(events))

	last := events[3]
	assert.True(t, d("100").Equal(last.BeforeAveragePrice), "got %s", last.BeforeAveragePrice)
	assert.True(t, d("60").Equal(last.ExitPnL), "got %s", last.ExitPnL)
}

func TestReplay_FilterDoesNotChangeState(t *testing.T) {
	snaps := []domain.Snapshot{
		snap(1, trade("NIFTY24FEB25000PE", "NRML", 50, "10", "10"), trade("BANKNIFTY24FEB48000CE", "NRML", -15, "200", "190")),
		snap(2, trade("NIFTY24FEB25000PE", "NRML", 25, "10", "12"), trade("BANKNIFTY24FEB48000CE", "NRML", -15, "0", "180")),
		snap(3, trade("NIFTY24FEB25000PE", "NRML", 25, "10", "12")),
	}

	all := Replay(snaps, Filter{})
	bank := Replay(snaps, Filter{Underlying: "banknifty"})
	nifty := Replay(snaps, Filter{Symbol: "nifty24feb25000pe", Product: "NRML"})

	var expectedBank, expectedNifty []domain.Event
	for _, e := range all {
		if e.Symbol == "BANKNIFTY24FEB48000CE" {
			expectedBank = append(expectedBank, e)
		} else {
			expectedNifty = append(expectedNifty, e)
		}
	}

	assert.Equal(t, expectedBank, bank)
	assert.Equal(t, expectedNifty, nifty)
	assert.Empty(t, Replay(snaps, Filter{Symbol: "NIFTY24FEB25000PE", Product: "MIS"}))

	require.Len(t, bank, 2)
	assert.True(t, d("200").Equal(bank[1].BeforeAveragePrice), "got %s", bank[1].BeforeAveragePrice)
}

func TestReplay_Empty(t *testing.T) {
	assert.Empty(t, Replay(nil, Filter{}))
	assert.Empty(t, Replay([]domain.Snapshot{snap(1)}, Filter{}))
}

func TestReverse(t *testing.T) {
	events := []domain.Event{
		{Timestamp: t0, Symbol: "A"},
		{Timestamp: t0.Add(time.Minute), Symbol: "B"},
		{Timestamp: t0.Add(time.Minute), Symbol: "C"},
		{Timestamp: t0.Add(2 * time.Minute), Symbol: "D"},
	}

	reversed := Reverse(events)
	symbols := make([]string, 0, len(reversed))
	for _, e := range reversed {
		symbols = append(symbols, e.Symbol)
	}
	assert.Equal(t, []string{"D", "B", "C", "A"}, symbols)
	assert.Equal(t, "A", events[0].Symbol)
}

func TestGroupingHelpers(t *testing.T) {
	snaps := []domain.Snapshot{
		snap(1, trade("NIFTY24FEB25000PE", "NRML", 50, "10", "10"), trade("M&M", "CNC", 10, "1500", "1510")),
		snap(2, trade("NIFTY24FEB25000PE", "MIS", 25, "11", "12"), trade("123", "CNC", 1, "1", "1")),
	}

	assert.Equal(t, []string{"M&M", "NIFTY"}, Underlyings(snaps))
	assert.Equal(t, []string{"MIS", "NRML"}, ProductsSeen(snaps, "nifty24feb25000pe"))
	assert.Equal(t, []string{"123", "M&M", "NIFTY24FEB25000PE"}, Symbols(snaps))

	groups := GroupByUnderlying(Replay(snaps, Filter{}))
	assert.Len(t, groups, 2)
	assert.Len(t, groups["NIFTY"], 3)
	assert.Len(t, groups["M&M"], 2)
}
