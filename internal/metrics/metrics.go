// Package metrics computes per-tick liquidity and spread metrics from a
// normalized order book. All functions are pure; nil pointers stand for
// "no value" and propagate rather than erroring.
package metrics

import "github.com/mpaquette/depthmetrics/internal/domain"

// Tick bundles the metrics derived from one order book snapshot. Pointer
// fields are nil when the underlying quantity is undefined for this tick
// (empty or too-shallow book, missing mid).
type Tick struct {
	Price         *float64
	BestBid       *float64
	BestAsk       *float64
	SpreadRaw     *float64
	SpreadL5Pct   *float64
	SpreadL20Pct  *float64
	SpreadL50Pct  *float64
	SpreadL100Pct *float64
	// SpreadL5000Pct is only computed for exchanges whose adapter fetches a
	// deep enough book; nil otherwise.
	SpreadL5000Pct *float64
	BidVolumeL50   float64
	AskVolumeL50   float64
}

// LayeredAvgSpread returns the mean of ask[i]-bid[i] over the first
// min(depth, len(bids), len(asks)) rungs, or nil when that range is empty.
// Rung i of each side is treated as a liquidity-comparable level; this is an
// approximation of realizable spread at depth, not walk-the-book slippage.
func LayeredAvgSpread(bids, asks []domain.PriceLevel, depth int) *float64 {
	d := depth
	if len(bids) < d {
		d = len(bids)
	}
	if len(asks) < d {
		d = len(asks)
	}
	if d <= 0 {
		return nil
	}
	sum := 0.0
	for i := 0; i < d; i++ {
		sum += asks[i].Price - bids[i].Price
	}
	v := sum / float64(d)
	return &v
}

// PctOfMid expresses x as a percentage of mid. Nil when either operand is
// missing or mid is not a positive price.
func PctOfMid(x, mid *float64) *float64 {
	if x == nil || mid == nil || *mid <= 0 {
		return nil
	}
	v := (*x / *mid) * 100.0
	return &v
}

// SumDepthSizes sums the sizes of the first min(depth, len(rows)) levels.
// Returns 0.0 when there are no levels.
func SumDepthSizes(rows []domain.PriceLevel, depth int) float64 {
	d := depth
	if len(rows) < d {
		d = len(rows)
	}
	sum := 0.0
	for i := 0; i < d; i++ {
		sum += rows[i].Size
	}
	return sum
}

// Compute derives all tick metrics from a normalized book. deep enables the
// depth-5000 spread percent for exchanges that serve books that deep.
func Compute(book domain.OrderBook, deep bool) Tick {
	t := Tick{
		Price:   book.Price,
		BestBid: book.BestBid,
		BestAsk: book.BestAsk,
	}

	if book.BestBid != nil && book.BestAsk != nil {
		raw := *book.BestAsk - *book.BestBid
		t.SpreadRaw = &raw
	}

	t.SpreadL5Pct = PctOfMid(LayeredAvgSpread(book.Bids, book.Asks, 5), book.Price)
	t.SpreadL20Pct = PctOfMid(LayeredAvgSpread(book.Bids, book.Asks, 20), book.Price)
	t.SpreadL50Pct = PctOfMid(LayeredAvgSpread(book.Bids, book.Asks, 50), book.Price)
	t.SpreadL100Pct = PctOfMid(LayeredAvgSpread(book.Bids, book.Asks, 100), book.Price)
	if deep {
		t.SpreadL5000Pct = PctOfMid(LayeredAvgSpread(book.Bids, book.Asks, 5000), book.Price)
	}

	t.BidVolumeL50 = SumDepthSizes(book.Bids, 50)
	t.AskVolumeL50 = SumDepthSizes(book.Asks, 50)

	return t
}
