package exchange

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/mpaquette/depthmetrics/internal/domain"
)

const krakenBaseURL = "https://api.kraken.com"

// krakenSymbolMap covers Kraken's legacy ticker names. Config symbol
// overrides are applied on top.
var krakenSymbolMap = map[string]string{
	"BTC": "XBT",
}

// kraken fetches GET /0/public/Depth?pair=XBTUSD&count=5000. The result is
// keyed by Kraken's canonical pair name, which differs from the requested
// one, so the first (only) entry is taken. Rows are
// ["price", "volume", timestamp].
type kraken struct {
	baseURL string
	client  *http.Client
	symbols map[string]string
}

func newKraken(o Options) *kraken {
	baseURL := krakenBaseURL
	if o.BaseURL != "" {
		baseURL = o.BaseURL
	}
	return &kraken{
		baseURL: baseURL,
		client:  o.client(),
		symbols: o.Symbols,
	}
}

func (k *kraken) Name() string  { return "kraken" }
func (k *kraken) MaxDepth() int { return 5000 }

func (k *kraken) Fetch(ctx context.Context, base, quote string) (domain.OrderBook, error) {
	symbol := strings.ToUpper(base)
	symbol = mapSymbol(krakenSymbolMap, symbol)
	symbol = mapSymbol(k.symbols, symbol)
	pair := strings.ToUpper(symbol + quote)

	url := fmt.Sprintf("%s/0/public/Depth?pair=%s&count=5000", k.baseURL, pair)

	var resp struct {
		Error  []string `json:"error"`
		Result map[string]struct {
			Bids [][]any `json:"bids"`
			Asks [][]any `json:"asks"`
		} `json:"result"`
	}
	if err := getJSON(ctx, k.client, url, &resp); err != nil {
		return domain.OrderBook{}, fmt.Errorf("kraken: fetch %s: %w", pair, err)
	}
	if len(resp.Error) > 0 {
		return domain.OrderBook{}, fmt.Errorf("kraken: fetch %s: api error: %s", pair, strings.Join(resp.Error, "; "))
	}
	if len(resp.Result) == 0 {
		// Pair not listed: no data this tick, not a transport failure.
		return domain.OrderBook{}, nil
	}

	for _, book := range resp.Result {
		return normalize(parseLevels(book.Bids), parseLevels(book.Asks)), nil
	}
	return domain.OrderBook{}, nil
}
