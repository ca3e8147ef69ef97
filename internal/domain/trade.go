package domain

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// InstrumentInfo carries the contract details the feed attaches to a leg.
type InstrumentInfo struct {
	Strike         decimal.Decimal `json:"strike"`
	InstrumentType string          `json:"instrument_type,omitempty"`
	Expiry         string          `json:"expiry,omitempty"`
}

// Trade is the canonical form of one position leg inside a snapshot.
type Trade struct {
	TradingSymbol    string          `json:"trading_symbol"`
	Product          string          `json:"product"`
	Quantity         int64           `json:"quantity"`
	AveragePrice     decimal.Decimal `json:"average_price"`
	LastPrice        decimal.Decimal `json:"last_price"`
	UnbookedPnL      decimal.Decimal `json:"unbooked_pnl"`
	BookedProfitLoss decimal.Decimal `json:"booked_profit_loss"`
	Instrument       InstrumentInfo  `json:"instrument_info"`
}

// InstrumentKey identifies a position leg across snapshots.
func InstrumentKey(symbol, product string) string {
	return symbol + "|" + product
}

// SplitKey is the inverse of InstrumentKey.
func SplitKey(key string) (symbol, product string) {
	symbol, product, _ = strings.Cut(key, "|")
	return symbol, product
}

// Key returns the instrument key of the trade.
func (t Trade) Key() string {
	return InstrumentKey(t.TradingSymbol, t.Product)
}

// IsGood reports whether the trade carries both a quantity and an average price.
// Only good trades are used as backfill sources.
func (t Trade) IsGood() bool {
	return t.Quantity != 0 && !t.AveragePrice.IsZero()
}

// BackfilledFrom returns a copy of t where zero quantity, average price and
// last price are replaced by the values of src.
func (t Trade) BackfilledFrom(src *Trade) Trade {
	if src == nil {
		return t
	}
	out := t
	if out.Quantity == 0 && src.Quantity != 0 {
		out.Quantity = src.Quantity
	}
	if out.AveragePrice.IsZero() && !src.AveragePrice.IsZero() {
		out.AveragePrice = src.AveragePrice
	}
	if out.LastPrice.IsZero() && !src.LastPrice.IsZero() {
		out.LastPrice = src.LastPrice
	}
	return out
}

// TradeMap holds the normalized trades of one snapshot keyed by instrument key.
type TradeMap map[string]Trade

// Keys returns the instrument keys in ascending order.
func (m TradeMap) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Lookup returns a pointer to a copy of the trade stored under key, or nil.
func (m TradeMap) Lookup(key string) *Trade {
	t, ok := m[key]
	if !ok {
		return nil
	}
	return &t
}

// Underlying extracts the underlying name from a trading symbol,
// e.g. NIFTY24FEB25000PE -> NIFTY. Returns an empty string when the symbol
// does not start with a letter.
func Underlying(symbol string) string {
	end := 0
	for end < len(symbol) {
		c := symbol[end]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '&' || c == '-' {
			end++
			continue
		}
		break
	}
	return strings.ToUpper(symbol[:end])
}
