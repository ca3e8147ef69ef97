package differ

import (
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/poswatch/internal/domain"
)

// Fill is the implied fill that explains a quantity change between two snapshots.
type Fill struct {
	Side  domain.FillSide
	Qty   int64
	Price decimal.Decimal
}

// Exit is a best-effort estimate of a realized exit.
type Exit struct {
	PnL    decimal.Decimal
	Price  decimal.Decimal
	Booked decimal.Decimal
}

// ImpliedFill derives the average price of the fill that moved a position from
// prevQty@prevAvg to currQty@currAvg, treating avg*qty as the notional value.
// The price is zero when either average is missing.
func ImpliedFill(prevQty int64, prevAvg decimal.Decimal, currQty int64, currAvg decimal.Decimal) Fill {
	dq := currQty - prevQty
	fill := Fill{Side: domain.SideOf(dq), Qty: abs(dq), Price: decimal.Zero}

	if dq == 0 || prevAvg.IsZero() || currAvg.IsZero() {
		return fill
	}

	v0 := prevAvg.Mul(decimal.NewFromInt(prevQty))
	v1 := currAvg.Mul(decimal.NewFromInt(currQty))
	fill.Price = v1.Sub(v0).Div(decimal.NewFromInt(dq)).Abs()

	return fill
}

// IsReducing reports whether the magnitude of the position moved toward flat.
func IsReducing(prevQty, currQty int64) bool {
	return (prevQty > 0 && currQty < prevQty) || (prevQty < 0 && currQty > prevQty)
}

// ExitOnClose estimates the exit of a leg from its last observed state: the
// mark price and booked figure of before, or (last-avg)*qty. before must be
// already backfilled. after is the trade seen on the closing snapshot, if any;
// its booked figure is used when before carries none.
func ExitOnClose(before domain.Trade, after *domain.Trade) Exit {
	exit := Exit{
		PnL:    decimal.Zero,
		Price:  before.LastPrice,
		Booked: before.BookedProfitLoss,
	}

	if exit.Booked.IsZero() && after != nil {
		exit.Booked = after.BookedProfitLoss
	}

	switch {
	case !exit.Booked.IsZero():
		exit.PnL = exit.Booked
	case before.Quantity != 0 && !before.AveragePrice.IsZero() && !exit.Price.IsZero():
		exit.PnL = exit.Price.Sub(before.AveragePrice).Mul(decimal.NewFromInt(before.Quantity))
	}

	return exit
}

// ExitOnReduce estimates the exit of the closed portion of a reducing leg.
// The closed quantity is |prevQty-currQty| even when the leg flips sign.
// entry is the backfilled average price before the change, fill the implied
// fill of the change and lastPrice the fallback mark price.
func ExitOnReduce(prevQty int64, entry decimal.Decimal, after domain.Trade, fill Fill, lastPrice decimal.Decimal) Exit {
	exit := Exit{PnL: decimal.Zero, Price: decimal.Zero, Booked: decimal.Zero}

	closed := abs(prevQty - after.Quantity)
	if closed == 0 {
		return exit
	}
	closedQty := decimal.NewFromInt(closed)
	long := prevQty > 0

	if !after.BookedProfitLoss.IsZero() {
		exit.Booked = after.BookedProfitLoss
		exit.PnL = exit.Booked

		base := entry
		if base.IsZero() {
			base = lastPrice
		}
		if base.IsZero() {
			return exit
		}

		perUnit := exit.Booked.Div(closedQty)
		if long {
			exit.Price = base.Add(perUnit)
		} else {
			exit.Price = base.Sub(perUnit)
		}
		return exit
	}

	exit.Price = fill.Price
	if after.Quantity == 0 && (exit.Price.IsZero() || exit.Price.Equal(entry)) && !lastPrice.IsZero() {
		exit.Price = lastPrice
	}
	if exit.Price.IsZero() || entry.IsZero() {
		return exit
	}

	if long {
		exit.PnL = exit.Price.Sub(entry).Mul(closedQty)
	} else {
		exit.PnL = entry.Sub(exit.Price).Mul(closedQty)
	}
	exit.Booked = exit.PnL

	return exit
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
