package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventType is a lifecycle transition of an instrument.
type EventType string

const (
	EventEntered  EventType = "ENTERED"
	EventModified EventType = "MODIFIED"
	EventExited   EventType = "EXITED"
)

// FillSide is the direction of an implied fill.
type FillSide string

const (
	FillNone FillSide = ""
	FillBuy  FillSide = "BUY"
	FillSell FillSide = "SELL"
)

// SideOf returns the fill side for a signed quantity change.
func SideOf(quantityDiff int64) FillSide {
	switch {
	case quantityDiff > 0:
		return FillBuy
	case quantityDiff < 0:
		return FillSell
	default:
		return FillNone
	}
}

// Event is one lifecycle transition emitted by replaying snapshots.
type Event struct {
	Timestamp          time.Time       `json:"timestamp"`
	SnapshotID         int64           `json:"snapshot_id"`
	ChangeID           *int64          `json:"change_id"`
	Type               EventType       `json:"type"`
	Symbol             string          `json:"symbol"`
	Product            string          `json:"product"`
	BeforeQuantity     int64           `json:"before_quantity"`
	AfterQuantity      int64           `json:"after_quantity"`
	QuantityDiff       int64           `json:"quantity_diff"`
	BeforeAveragePrice decimal.Decimal `json:"before_average_price"`
	AfterAveragePrice  decimal.Decimal `json:"after_average_price"`
	AfterLastPrice     decimal.Decimal `json:"after_last_price"`
	AfterUnbookedPnL   decimal.Decimal `json:"after_unbooked_pnl"`
	ExitPnL            decimal.Decimal `json:"exit_pnl"`
	ExitPrice          decimal.Decimal `json:"exit_price"`
	ImpliedFillSide    FillSide        `json:"implied_fill_side"`
	ImpliedFillQty     int64           `json:"implied_fill_qty"`
	ImpliedFillPrice   decimal.Decimal `json:"implied_fill_price"`
}

// Key returns the instrument key of the event.
func (e Event) Key() string {
	return InstrumentKey(e.Symbol, e.Product)
}
