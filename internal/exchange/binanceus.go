package exchange

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/mpaquette/depthmetrics/internal/domain"
)

const binanceUSBaseURL = "https://api.binance.us"

// depthFallbacks is the limit ladder tried in order; the deepest book the
// venue will serve wins. Requesting 5000 levels can be rejected for some
// symbols, so smaller limits are retried before giving up.
var depthFallbacks = []int{5000, 1000, 500, 100}

// binanceUS fetches GET /api/v3/depth?symbol=ADAUSD&limit=N. Rows are
// ["price", "size"] string pairs.
type binanceUS struct {
	baseURL string
	client  *http.Client
	symbols map[string]string
}

func newBinanceUS(o Options) *binanceUS {
	baseURL := binanceUSBaseURL
	if o.BaseURL != "" {
		baseURL = o.BaseURL
	}
	return &binanceUS{
		baseURL: baseURL,
		client:  o.client(),
		symbols: o.Symbols,
	}
}

func (b *binanceUS) Name() string  { return "binanceus" }
func (b *binanceUS) MaxDepth() int { return 5000 }

func (b *binanceUS) Fetch(ctx context.Context, base, quote string) (domain.OrderBook, error) {
	symbol := strings.ToUpper(mapSymbol(b.symbols, strings.ToUpper(base)) + quote)

	var resp struct {
		Bids [][]string `json:"bids"`
		Asks [][]string `json:"asks"`
	}

	var lastErr error
	for _, limit := range depthFallbacks {
		url := fmt.Sprintf("%s/api/v3/depth?symbol=%s&limit=%d", b.baseURL, symbol, limit)
		if err := getJSON(ctx, b.client, url, &resp); err != nil {
			lastErr = err
			continue
		}
		lastErr = nil
		break
	}
	if lastErr != nil {
		return domain.OrderBook{}, fmt.Errorf("binanceus: fetch %s: %w", symbol, lastErr)
	}

	return normalize(parseStringLevels(resp.Bids), parseStringLevels(resp.Asks)), nil
}

// parseStringLevels handles the ["price","size"] pair shape used by Binance
// and Bybit.
func parseStringLevels(rows [][]string) []domain.PriceLevel {
	converted := make([][]any, 0, len(rows))
	for _, row := range rows {
		cells := make([]any, len(row))
		for i, cell := range row {
			cells[i] = cell
		}
		converted = append(converted, cells)
	}
	return parseLevels(converted)
}
