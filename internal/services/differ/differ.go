// Package differ compares two normalized snapshots of the same profile.
package differ

import (
	"github.com/vadiminshakov/poswatch/internal/domain"
)

// Diff classifies every key of prev and curr as added, removed or modified.
// Keys present in both with an unchanged quantity are not reported.
// historical may be nil; it only patches zero quantity or average price in prev.
func Diff(prev, curr, historical domain.TradeMap) domain.DiffResult {
	result := domain.DiffResult{
		Added:    []domain.DiffEntry{},
		Removed:  []domain.DiffEntry{},
		Modified: []domain.DiffEntry{},
	}

	for _, key := range unionKeys(prev, curr) {
		p, inPrev := prev[key]
		c, inCurr := curr[key]

		switch {
		case !inPrev:
			result.Added = append(result.Added, added(c))
		case !inCurr:
			result.Removed = append(result.Removed, removed(p, historical.Lookup(key)))
		case p.Quantity != c.Quantity:
			result.Modified = append(result.Modified, modified(p, c, historical.Lookup(key)))
		}
	}

	return result
}

// BuildHistorical returns, for every key, the most recent trade with non-zero
// quantity and average price found in earlier. Snapshots must be in insertion order.
func BuildHistorical(earlier []domain.Snapshot) domain.TradeMap {
	historical := make(domain.TradeMap)
	for _, snap := range earlier {
		for key, t := range snap.Trades {
			if t.IsGood() {
				historical[key] = t
			}
		}
	}
	return historical
}

func added(c domain.Trade) domain.DiffEntry {
	return domain.DiffEntry{Trade: c, ChangeType: domain.ChangeAdded}
}

func removed(p domain.Trade, hist *domain.Trade) domain.DiffEntry {
	before := backfill(p, hist)
	exit := ExitOnClose(before, nil)

	shown := p
	if shown.AveragePrice.IsZero() {
		shown.AveragePrice = before.AveragePrice
	}

	return domain.DiffEntry{
		Trade:                shown,
		ChangeType:           domain.ChangeRemoved,
		OldQuantity:          p.Quantity,
		QuantityDiff:         -before.Quantity,
		OriginalQuantity:     before.Quantity,
		OriginalAveragePrice: before.AveragePrice,
		ExitPnL:              exit.PnL,
		ExitPrice:            exit.Price,
		BookedPnL:            exit.Booked,
	}
}

func modified(p, c domain.Trade, hist *domain.Trade) domain.DiffEntry {
	before := backfill(p, hist)
	entry := before.AveragePrice
	fill := ImpliedFill(p.Quantity, entry, c.Quantity, c.AveragePrice)

	out := domain.DiffEntry{
		ChangeType:           domain.ChangeModified,
		OldQuantity:          p.Quantity,
		QuantityDiff:         c.Quantity - p.Quantity,
		OriginalQuantity:     before.Quantity,
		OriginalAveragePrice: entry,
		ImpliedFillSide:      fill.Side,
		ImpliedFillQty:       fill.Qty,
		ImpliedFillPrice:     fill.Price,
	}

	if IsReducing(p.Quantity, c.Quantity) {
		lastPrice := c.LastPrice
		if lastPrice.IsZero() {
			lastPrice = before.LastPrice
		}
		exit := ExitOnReduce(p.Quantity, entry, c, fill, lastPrice)
		out.ExitPnL, out.ExitPrice, out.BookedPnL = exit.PnL, exit.Price, exit.Booked
	}

	out.Trade = c
	if out.Trade.AveragePrice.IsZero() {
		out.Trade.AveragePrice = entry
	}

	return out
}

// backfill patches a degenerate trade from its historical counterpart.
func backfill(t domain.Trade, hist *domain.Trade) domain.Trade {
	if t.IsGood() {
		return t
	}
	return t.BackfilledFrom(hist)
}

func unionKeys(a, b domain.TradeMap) []string {
	merged := make(domain.TradeMap, len(a)+len(b))
	for k, v := range a {
		merged[k] = v
	}
	for k, v := range b {
		merged[k] = v
	}
	return merged.Keys()
}
