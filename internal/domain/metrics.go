package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// StartSource tells where the start-of-day P&L baseline came from.
type StartSource string

const (
	// StartPreviousDay is the unbooked P&L of the last snapshot before the day.
	StartPreviousDay StartSource = "previous_day"
	// StartFirstOfDay is the total P&L of the day's first snapshot. It is not
	// reduced by booked P&L, unlike StartPreviousDay.
	StartFirstOfDay StartSource = "first_of_day"
	StartNone       StartSource = "none"
)

// DailyMetrics is the P&L summary of one profile for one calendar day.
type DailyMetrics struct {
	StartPnL    decimal.Decimal `json:"start_pnl"`
	CurrentPnL  decimal.Decimal `json:"current_pnl"`
	TodaysPnL   decimal.Decimal `json:"todays_pnl"`
	BookedPnL   decimal.Decimal `json:"booked_pnl"`
	LastUpdated *time.Time      `json:"last_updated"`
	StartSource StartSource     `json:"start_source"`
}
