package domain

import "github.com/shopspring/decimal"

// ChangeType classifies a diff entry.
type ChangeType string

const (
	ChangeAdded    ChangeType = "ADDED"
	ChangeRemoved  ChangeType = "REMOVED"
	ChangeModified ChangeType = "MODIFIED"
)

// DiffEntry is a trade enriched with the fields describing how it changed.
// Added entries carry zero change fields.
type DiffEntry struct {
	Trade
	ChangeType           ChangeType      `json:"change_type"`
	OldQuantity          int64           `json:"old_quantity"`
	QuantityDiff         int64           `json:"quantity_diff"`
	OriginalQuantity     int64           `json:"original_quantity"`
	OriginalAveragePrice decimal.Decimal `json:"original_average_price"`
	ExitPnL              decimal.Decimal `json:"exit_pnl"`
	ExitPrice            decimal.Decimal `json:"exit_price"`
	BookedPnL            decimal.Decimal `json:"booked_pnl"`
	ImpliedFillSide      FillSide        `json:"implied_fill_side"`
	ImpliedFillQty       int64           `json:"implied_fill_qty"`
	ImpliedFillPrice     decimal.Decimal `json:"implied_fill_price"`
}

// DiffResult partitions the changed keys of two snapshots.
type DiffResult struct {
	Added    []DiffEntry `json:"added"`
	Removed  []DiffEntry `json:"removed"`
	Modified []DiffEntry `json:"modified"`
}

// IsEmpty reports whether nothing changed.
func (d DiffResult) IsEmpty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Modified) == 0
}
