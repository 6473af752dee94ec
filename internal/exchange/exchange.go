// Package exchange provides per-venue order book adapters. Each adapter
// normalizes a vendor-specific REST response into a domain.OrderBook with
// bids descending and asks ascending by price, and guarantees that an empty
// side never produces a partial quote.
package exchange

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/mpaquette/depthmetrics/internal/domain"
)

// Adapter fetches and normalizes one exchange's order book for a pair.
// A Fetch error means "no data this tick" for the caller, never a fatal
// condition for the polling loop.
type Adapter interface {
	// Name returns the exchange identifier used in config, keys, and CSV rows.
	Name() string

	// MaxDepth is the deepest book the adapter requests. Exchanges that
	// serve 5000 levels get the depth-5000 spread metric.
	MaxDepth() int

	// Fetch retrieves the order book for base/quote.
	Fetch(ctx context.Context, base, quote string) (domain.OrderBook, error)
}

// Options configures an adapter instance.
type Options struct {
	// HTTPClient is the shared client; a default with a 5s timeout is used
	// when nil.
	HTTPClient *http.Client

	// BaseURL overrides the exchange's production endpoint (tests).
	BaseURL string

	// Symbols maps configured asset symbols to exchange-specific ones,
	// on top of each adapter's built-in mapping (e.g. BTC -> XBT on Kraken).
	Symbols map[string]string
}

func (o Options) client() *http.Client {
	if o.HTTPClient != nil {
		return o.HTTPClient
	}
	return &http.Client{Timeout: 5 * time.Second}
}

// constructors is the static mapping from exchange identifier to adapter
// factory, resolved once at startup from configuration.
var constructors = map[string]func(Options) Adapter{
	"coinbase":  func(o Options) Adapter { return newCoinbase(o) },
	"binanceus": func(o Options) Adapter { return newBinanceUS(o) },
	"kraken":    func(o Options) Adapter { return newKraken(o) },
	"bybit":     func(o Options) Adapter { return newBybit(o) },
	"cryptocom": func(o Options) Adapter { return newCryptoCom(o) },
}

// New builds the adapter for the named exchange. Unknown names are a
// configuration error, fatal at startup.
func New(name string, opts Options) (Adapter, error) {
	ctor, ok := constructors[name]
	if !ok {
		return nil, fmt.Errorf("exchange: unknown exchange %q (valid: %v)", name, Names())
	}
	return ctor(opts), nil
}

// Names returns the supported exchange identifiers, sorted.
func Names() []string {
	names := make([]string, 0, len(constructors))
	for n := range constructors {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// normalize sorts both sides and derives the quote fields. When either side
// is empty, all quote fields stay nil.
func normalize(bids, asks []domain.PriceLevel) domain.OrderBook {
	sort.Slice(bids, func(i, j int) bool { return bids[i].Price > bids[j].Price })
	sort.Slice(asks, func(i, j int) bool { return asks[i].Price < asks[j].Price })

	book := domain.OrderBook{Bids: bids, Asks: asks}
	if len(bids) == 0 || len(asks) == 0 {
		return book
	}

	bestBid := bids[0].Price
	bestAsk := asks[0].Price
	mid := (bestBid + bestAsk) / 2.0
	book.BestBid = &bestBid
	book.BestAsk = &bestAsk
	book.Price = &mid
	return book
}

// parseLevels converts rows of [price, size, ...] into price levels. Vendors
// mix strings and numbers inside the same row, so each cell goes through
// toFloat. Rows shorter than two cells or with unparseable cells are skipped.
func parseLevels(rows [][]any) []domain.PriceLevel {
	levels := make([]domain.PriceLevel, 0, len(rows))
	for _, row := range rows {
		if len(row) < 2 {
			continue
		}
		price, err := toFloat(row[0])
		if err != nil {
			continue
		}
		size, err := toFloat(row[1])
		if err != nil {
			continue
		}
		levels = append(levels, domain.PriceLevel{Price: price, Size: size})
	}
	return levels
}

func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case string:
		return strconv.ParseFloat(x, 64)
	default:
		return 0, fmt.Errorf("exchange: unsupported level cell type %T", v)
	}
}

// mapSymbol applies the per-adapter override map, falling back to the
// configured symbol unchanged.
func mapSymbol(overrides map[string]string, symbol string) string {
	if mapped, ok := overrides[symbol]; ok {
		return mapped
	}
	return symbol
}
