package exchange

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/mpaquette/depthmetrics/internal/domain"
)

const coinbaseBaseURL = "https://api.exchange.coinbase.com"

// coinbase fetches the aggregated level-2 public book, e.g.
// GET /products/ADA-USD/book?level=2. Rows come back as
// ["price", "size", num_orders].
type coinbase struct {
	baseURL string
	client  *http.Client
	symbols map[string]string
}

func newCoinbase(o Options) *coinbase {
	baseURL := coinbaseBaseURL
	if o.BaseURL != "" {
		baseURL = o.BaseURL
	}
	return &coinbase{
		baseURL: baseURL,
		client:  o.client(),
		symbols: o.Symbols,
	}
}

func (c *coinbase) Name() string  { return "coinbase" }
func (c *coinbase) MaxDepth() int { return 200 }

func (c *coinbase) Fetch(ctx context.Context, base, quote string) (domain.OrderBook, error) {
	product := mapSymbol(c.symbols, strings.ToUpper(base)) + "-" + strings.ToUpper(quote)
	url := fmt.Sprintf("%s/products/%s/book?level=2", c.baseURL, product)

	var resp struct {
		Bids [][]any `json:"bids"`
		Asks [][]any `json:"asks"`
	}
	if err := getJSON(ctx, c.client, url, &resp); err != nil {
		return domain.OrderBook{}, fmt.Errorf("coinbase: fetch %s: %w", product, err)
	}

	return normalize(parseLevels(resp.Bids), parseLevels(resp.Asks)), nil
}
