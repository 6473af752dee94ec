package exchange

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/mpaquette/depthmetrics/internal/domain"
)

const cryptoComBaseURL = "https://api.crypto.com"

// cryptoCom fetches GET /v2/public/get-book?instrument_name=ADA_USDT&depth=2000.
// Instruments use BASE_QUOTE naming; levels are [price, size, num_orders]
// rows under result.data[0].
type cryptoCom struct {
	baseURL string
	client  *http.Client
	symbols map[string]string
}

func newCryptoCom(o Options) *cryptoCom {
	baseURL := cryptoComBaseURL
	if o.BaseURL != "" {
		baseURL = o.BaseURL
	}
	return &cryptoCom{
		baseURL: baseURL,
		client:  o.client(),
		symbols: o.Symbols,
	}
}

func (c *cryptoCom) Name() string  { return "cryptocom" }
func (c *cryptoCom) MaxDepth() int { return 2000 }

func (c *cryptoCom) Fetch(ctx context.Context, base, quote string) (domain.OrderBook, error) {
	instrument := strings.ToUpper(mapSymbol(c.symbols, strings.ToUpper(base)) + "_" + quote)
	url := fmt.Sprintf("%s/v2/public/get-book?instrument_name=%s&depth=2000", c.baseURL, instrument)

	var resp struct {
		Result struct {
			Data []struct {
				Bids [][]any `json:"bids"`
				Asks [][]any `json:"asks"`
			} `json:"data"`
		} `json:"result"`
	}
	if err := getJSON(ctx, c.client, url, &resp); err != nil {
		return domain.OrderBook{}, fmt.Errorf("cryptocom: fetch %s: %w", instrument, err)
	}
	if len(resp.Result.Data) == 0 {
		return domain.OrderBook{}, nil
	}

	entry := resp.Result.Data[0]
	return normalize(parseLevels(entry.Bids), parseLevels(entry.Asks)), nil
}
