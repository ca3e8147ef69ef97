package differ

import (
	"fmt"
	"sort"

	"github.com/vadiminshakov/poswatch/internal/domain"
	"github.com/vadiminshakov/poswatch/internal/services/normalizer"
)

// InitialSummary labels the first snapshot stored for a profile.
const InitialSummary = "Initial Snapshot"

// leg is the structural identity of a raw trade. Prices and P&L are not part of it.
type leg struct {
	Symbol         string
	Product        string
	Strike         string
	InstrumentType string
}

type structuralLeg struct {
	leg
	Quantity int64
}

func structure(payload domain.Payload) []structuralLeg {
	legs := make([]structuralLeg, 0, payload.TradeCount())
	for _, g := range payload.Groups {
		for _, raw := range g.Trades {
			t := normalizer.Canonical(raw)
			legs = append(legs, structuralLeg{
				leg: leg{
					Symbol:         t.TradingSymbol,
					Product:        t.Product,
					Strike:         t.Instrument.Strike.String(),
					InstrumentType: t.Instrument.InstrumentType,
				},
				Quantity: t.Quantity,
			})
		}
	}

	sort.Slice(legs, func(i, j int) bool {
		a, b := legs[i], legs[j]
		if a.Symbol != b.Symbol {
			return a.Symbol < b.Symbol
		}
		if a.Product != b.Product {
			return a.Product < b.Product
		}
		if a.Strike != b.Strike {
			return a.Strike < b.Strike
		}
		if a.InstrumentType != b.InstrumentType {
			return a.InstrumentType < b.InstrumentType
		}
		return a.Quantity < b.Quantity
	})

	return legs
}

// StructureChanged reports whether the set of legs or any leg quantity differs.
// Price-only fluctuations do not count as a change.
func StructureChanged(prev, curr domain.Payload) bool {
	a, b := structure(prev), structure(curr)
	if len(a) != len(b) {
		return true
	}
	for i := range a {
		if a[i] != b[i] {
			return true
		}
	}
	return false
}

// Summarize describes how the legs of curr differ from prev.
func Summarize(prev, curr domain.Payload) string {
	oldLegs := quantities(prev)
	newLegs := quantities(curr)

	var added, removed, modified int
	for l, q := range newLegs {
		prevQty, ok := oldLegs[l]
		switch {
		case !ok:
			added++
		case prevQty != q:
			modified++
		}
	}
	for l := range oldLegs {
		if _, ok := newLegs[l]; !ok {
			removed++
		}
	}

	switch {
	case added > 0 && removed == 0 && modified == 0:
		return fmt.Sprintf("Positions Added (%d)", added)
	case removed > 0 && added == 0 && modified == 0:
		return fmt.Sprintf("Positions Reduced (%d)", removed)
	case modified > 0 && added == 0 && removed == 0:
		return fmt.Sprintf("Positions Modified (%d)", modified)
	default:
		return fmt.Sprintf("Positions Changed (Added: %d, Removed: %d, Modified: %d)", added, removed, modified)
	}
}

// quantities maps each leg to its quantity; the last entry wins on duplicates.
func quantities(payload domain.Payload) map[leg]int64 {
	out := make(map[leg]int64)
	for _, l := range structure(payload) {
		out[l.leg] = l.Quantity
	}
	return out
}
