package domain

// PriceLevel is a single price+size entry in an order book.
type PriceLevel struct {
	Price float64
	Size  float64
}

// OrderBook is a normalized snapshot of one exchange's book for a trading
// pair. Bids are sorted strictly descending by price, asks strictly
// ascending. Price is the mid between best bid and best ask.
//
// Invariant: when either side is empty, Price, BestBid, and BestAsk are all
// nil — an adapter never reports a partial quote as valid.
type OrderBook struct {
	Price   *float64
	BestBid *float64
	BestAsk *float64
	Bids    []PriceLevel
	Asks    []PriceLevel
}

// Empty reports whether the book has no usable quote.
func (b OrderBook) Empty() bool {
	return len(b.Bids) == 0 || len(b.Asks) == 0
}
