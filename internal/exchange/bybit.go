package exchange

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/mpaquette/depthmetrics/internal/domain"
)

const bybitBaseURL = "https://api.bybit.com"

// bybit fetches the v5 spot order book:
// GET /v5/market/orderbook?category=spot&symbol=ADAUSDT&limit=200.
// Levels live under result.b / result.a as ["price","size"] pairs.
// A non-zero retCode is degraded to an empty book rather than an error.
type bybit struct {
	baseURL string
	client  *http.Client
	symbols map[string]string
}

func newBybit(o Options) *bybit {
	baseURL := bybitBaseURL
	if o.BaseURL != "" {
		baseURL = o.BaseURL
	}
	return &bybit{
		baseURL: baseURL,
		client:  o.client(),
		symbols: o.Symbols,
	}
}

func (b *bybit) Name() string  { return "bybit" }
func (b *bybit) MaxDepth() int { return 200 }

func (b *bybit) Fetch(ctx context.Context, base, quote string) (domain.OrderBook, error) {
	symbol := strings.ToUpper(mapSymbol(b.symbols, strings.ToUpper(base)) + quote)
	url := fmt.Sprintf("%s/v5/market/orderbook?category=spot&symbol=%s&limit=200", b.baseURL, symbol)

	var resp struct {
		RetCode int `json:"retCode"`
		Result  struct {
			Bids [][]string `json:"b"`
			Asks [][]string `json:"a"`
		} `json:"result"`
	}
	if err := getJSON(ctx, b.client, url, &resp); err != nil {
		return domain.OrderBook{}, fmt.Errorf("bybit: fetch %s: %w", symbol, err)
	}
	if resp.RetCode != 0 {
		return domain.OrderBook{}, nil
	}

	return normalize(parseStringLevels(resp.Result.Bids), parseStringLevels(resp.Result.Asks)), nil
}
