// Package lifecycle replays a profile's snapshots into per-instrument events.
package lifecycle

import (
	"sort"
	"strings"

	"github.com/vadiminshakov/poswatch/internal/domain"
	"github.com/vadiminshakov/poswatch/internal/services/differ"
)

// Filter selects which instruments produce events. Zero value selects all.
type Filter struct {
	Symbol     string
	Product    string
	Underlying string
}

// Matches reports whether events of symbol/product should be emitted.
// Symbol and underlying compare case-insensitively, product exactly.
func (f Filter) Matches(symbol, product string) bool {
	if f.Symbol != "" && !strings.EqualFold(f.Symbol, symbol) {
		return false
	}
	if f.Product != "" && f.Product != product {
		return false
	}
	if f.Underlying != "" && !strings.EqualFold(f.Underlying, domain.Underlying(symbol)) {
		return false
	}
	return true
}

type keyState struct {
	present  bool
	last     *domain.Trade
	lastGood *domain.Trade
}

// before returns the last seen trade with zero fields patched from the last good one.
func (s *keyState) before() *domain.Trade {
	if s.last == nil {
		return nil
	}
	t := s.last.BackfilledFrom(s.lastGood)
	return &t
}

// Replay walks snapshots in the given order and emits ENTERED, MODIFIED and
// EXITED events in chronological order. State is tracked for every key on
// every snapshot; the filter only decides which events are returned.
func Replay(snapshots []domain.Snapshot, filter Filter) []domain.Event {
	state := make(map[string]*keyState)
	events := make([]domain.Event, 0)

	for _, snap := range snapshots {
		for _, key := range keysToCheck(snap.Trades, state) {
			st, ok := state[key]
			if !ok {
				st = &keyState{}
				state[key] = st
			}

			curr := snap.Trades.Lookup(key)
			prev := st.before()
			currPresent := curr != nil && curr.Quantity != 0

			if ev, ok := transition(st.present, currPresent, prev, curr); ok {
				ev.Timestamp = snap.Timestamp
				ev.SnapshotID = snap.ID
				ev.Symbol, ev.Product = identity(key, curr, st.last)
				if filter.Matches(ev.Symbol, ev.Product) {
					events = append(events, ev)
				}
			}

			if curr != nil && curr.IsGood() {
				st.lastGood = curr
			}
			st.present = currPresent
			st.last = curr
		}
	}

	return events
}

func transition(prevPresent, currPresent bool, prev, curr *domain.Trade) (domain.Event, bool) {
	var before, after domain.Trade
	if prev != nil {
		before = *prev
	}
	if curr != nil {
		after = *curr
	}

	var ev domain.Event
	switch {
	case !prevPresent && currPresent:
		ev.Type = domain.EventEntered
	case prevPresent && !currPresent:
		ev.Type = domain.EventExited
		exit := differ.ExitOnClose(before, curr)
		ev.ExitPnL, ev.ExitPrice = exit.PnL, exit.Price
	case prevPresent && currPresent && before.Quantity != after.Quantity:
		ev.Type = domain.EventModified
		fill := differ.ImpliedFill(before.Quantity, before.AveragePrice, after.Quantity, after.AveragePrice)
		ev.ImpliedFillSide, ev.ImpliedFillQty, ev.ImpliedFillPrice = fill.Side, fill.Qty, fill.Price
		if differ.IsReducing(before.Quantity, after.Quantity) {
			exit := differ.ExitOnClose(before, curr)
			ev.ExitPnL, ev.ExitPrice = exit.PnL, exit.Price
		}
	default:
		return domain.Event{}, false
	}

	ev.BeforeQuantity = before.Quantity
	ev.AfterQuantity = after.Quantity
	ev.QuantityDiff = after.Quantity - before.Quantity
	ev.BeforeAveragePrice = before.AveragePrice
	ev.AfterAveragePrice = after.AveragePrice
	ev.AfterLastPrice = after.LastPrice
	ev.AfterUnbookedPnL = after.UnbookedPnL

	return ev, true
}

func identity(key string, curr, last *domain.Trade) (symbol, product string) {
	switch {
	case curr != nil:
		return curr.TradingSymbol, curr.Product
	case last != nil:
		return last.TradingSymbol, last.Product
	default:
		return domain.SplitKey(key)
	}
}

func keysToCheck(trades domain.TradeMap, state map[string]*keyState) []string {
	keys := make([]string, 0, len(trades)+len(state))
	seen := make(map[string]struct{}, len(trades)+len(state))
	for k := range trades {
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	for k := range state {
		if _, ok := seen[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Reverse returns a latest-first copy of events. Events sharing a timestamp
// keep their relative order.
func Reverse(events []domain.Event) []domain.Event {
	out := make([]domain.Event, len(events))
	copy(out, events)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out
}

// GroupByUnderlying buckets events by the underlying of their symbol.
// Events without an underlying are dropped.
func GroupByUnderlying(events []domain.Event) map[string][]domain.Event {
	groups := make(map[string][]domain.Event)
	for _, ev := range events {
		u := domain.Underlying(ev.Symbol)
		if u == "" {
			continue
		}
		groups[u] = append(groups[u], ev)
	}
	return groups
}

// Underlyings lists every underlying seen in snapshots, sorted.
func Underlyings(snapshots []domain.Snapshot) []string {
	seen := make(map[string]struct{})
	for _, snap := range snapshots {
		for _, t := range snap.Trades {
			if u := domain.Underlying(t.TradingSymbol); u != "" {
				seen[u] = struct{}{}
			}
		}
	}
	return sortedSet(seen)
}

// ProductsSeen lists every product traded under symbol, sorted.
func ProductsSeen(snapshots []domain.Snapshot, symbol string) []string {
	seen := make(map[string]struct{})
	for _, snap := range snapshots {
		for _, t := range snap.Trades {
			if strings.EqualFold(t.TradingSymbol, symbol) {
				seen[t.Product] = struct{}{}
			}
		}
	}
	return sortedSet(seen)
}

// Symbols lists every trading symbol seen in snapshots, sorted.
func Symbols(snapshots []domain.Snapshot) []string {
	seen := make(map[string]struct{})
	for _, snap := range snapshots {
		for _, t := range snap.Trades {
			if t.TradingSymbol != "" {
				seen[t.TradingSymbol] = struct{}{}
			}
		}
	}
	return sortedSet(seen)
}

func sortedSet(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
