// Package normalizer converts raw feed trades into canonical domain trades.
package normalizer

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/poswatch/internal/domain"
)

var (
	quantityAliases     = []string{"quantity", "qty", "net_qty", "net_quantity"}
	averagePriceAliases = []string{"average_price", "avg_price", "averageprice", "avg"}
	lastPriceAliases    = []string{"last_price", "lastprice", "ltp", "last"}
	unbookedAliases     = []string{"unbooked_pnl", "unbookedpnl", "unbooked"}
	bookedAliases       = []string{"booked_profit_loss", "bookedprofitloss", "booked_pnl", "bookedpnl"}
)

// Normalize merges all trades of a snapshot into one canonical trade per
// instrument key. Repeated keys keep non-zero quantity and prices from later
// entries, while P&L always takes the latest entry. Malformed values read as zero.
func Normalize(groups []domain.PositionGroup) domain.TradeMap {
	trades := make(domain.TradeMap)

	for _, group := range groups {
		for _, raw := range group.Trades {
			t := Canonical(raw)
			key := t.Key()

			existing, ok := trades[key]
			if !ok {
				trades[key] = t
				continue
			}

			if t.Quantity != 0 {
				existing.Quantity = t.Quantity
			}
			if !t.AveragePrice.IsZero() {
				existing.AveragePrice = t.AveragePrice
			}
			if !t.LastPrice.IsZero() {
				existing.LastPrice = t.LastPrice
			}
			existing.UnbookedPnL = t.UnbookedPnL
			existing.BookedProfitLoss = t.BookedProfitLoss
			trades[key] = existing
		}
	}

	return trades
}

// NormalizeSnapshot decodes a stored snapshot and normalizes its trades.
func NormalizeSnapshot(stored domain.StoredSnapshot) (domain.Snapshot, error) {
	payload, err := domain.ParsePayload(stored.Raw)
	if err != nil {
		return domain.Snapshot{}, errors.Wrapf(err, "snapshot %d", stored.ID)
	}

	return domain.Snapshot{
		ID:        stored.ID,
		ProfileID: stored.ProfileID,
		Timestamp: stored.Timestamp,
		Payload:   payload,
		Trades:    Normalize(payload.Groups),
	}, nil
}

// RawPnL reads the unbooked and booked P&L of a single raw trade using the
// same aliases as Normalize.
func RawPnL(raw domain.RawTrade) (unbooked, booked decimal.Decimal) {
	return firstDecimal(raw, unbookedAliases), firstDecimal(raw, bookedAliases)
}

// Canonical converts one raw trade without merging.
func Canonical(raw domain.RawTrade) domain.Trade {
	unbooked, booked := RawPnL(raw)

	t := domain.Trade{
		TradingSymbol:    raw.String("trading_symbol"),
		Product:          raw.String("product"),
		Quantity:         firstDecimal(raw, quantityAliases).IntPart(),
		AveragePrice:     firstDecimal(raw, averagePriceAliases),
		LastPrice:        firstDecimal(raw, lastPriceAliases),
		UnbookedPnL:      unbooked,
		BookedProfitLoss: booked,
	}

	if info := raw.Object("instrument_info"); info != nil {
		t.Instrument = domain.InstrumentInfo{
			Strike:         toDecimal(info["strike"]),
			InstrumentType: info.String("instrument_type"),
			Expiry:         info.String("expiry"),
		}
	}

	return t
}

func firstDecimal(raw domain.RawTrade, aliases []string) decimal.Decimal {
	for _, alias := range aliases {
		v, ok := raw[alias]
		if !ok {
			continue
		}
		if d := toDecimal(v); !d.IsZero() {
			return d
		}
	}
	return decimal.Zero
}

func toDecimal(v interface{}) decimal.Decimal {
	switch val := v.(type) {
	case json.Number:
		d, err := decimal.NewFromString(val.String())
		if err != nil {
			return decimal.Zero
		}
		return d
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(val))
		if err != nil {
			return decimal.Zero
		}
		return d
	case float64:
		return decimal.NewFromFloat(val)
	case int64:
		return decimal.NewFromInt(val)
	case int:
		return decimal.NewFromInt(int64(val))
	default:
		return decimal.Zero
	}
}
