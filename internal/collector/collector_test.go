package collector

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mpaquette/depthmetrics/internal/aggregate"
	"github.com/mpaquette/depthmetrics/internal/blob"
	"github.com/mpaquette/depthmetrics/internal/domain"
	"github.com/mpaquette/depthmetrics/internal/metrics"
)

// memBlob is an in-memory blob store implementing both domain.BlobReader and
// domain.BlobWriter.
type memBlob struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemBlob() *memBlob {
	return &memBlob{objects: make(map[string][]byte)}
}

func (m *memBlob) Get(_ context.Context, path string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memBlob) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var infos []domain.BlobInfo
	for path, data := range m.objects {
		if strings.HasPrefix(path, prefix) {
			infos = append(infos, domain.BlobInfo{Path: path, Size: int64(len(data))})
		}
	}
	return infos, nil
}

func (m *memBlob) Exists(_ context.Context, path string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[path]
	return ok, nil
}

func (m *memBlob) Put(_ context.Context, path string, data io.Reader, _ string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[path] = b
	return nil
}

func (m *memBlob) PutAtomic(ctx context.Context, path string, data []byte, contentType string) error {
	return m.Put(ctx, path, bytes.NewReader(data), contentType)
}

func (m *memBlob) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	return m.Put(ctx, path, data, "")
}

// fakeAdapter serves canned books keyed by "BASE/QUOTE".
type fakeAdapter struct {
	name     string
	maxDepth int
	books    map[string]domain.OrderBook
	calls    []string
}

func (f *fakeAdapter) Name() string  { return f.name }
func (f *fakeAdapter) MaxDepth() int { return f.maxDepth }

func (f *fakeAdapter) Fetch(_ context.Context, base, quote string) (domain.OrderBook, error) {
	f.calls = append(f.calls, base+"/"+quote)
	return f.books[base+"/"+quote], nil
}

func fp(v float64) *float64 { return &v }

func testBook(bid, ask float64) domain.OrderBook {
	mid := (bid + ask) / 2
	return domain.OrderBook{
		Price:   &mid,
		BestBid: &bid,
		BestAsk: &ask,
		Bids:    []domain.PriceLevel{{Price: bid, Size: 1}},
		Asks:    []domain.PriceLevel{{Price: ask, Size: 2}},
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestCollector(t *testing.T, store *memBlob, pairs []Pair) *Collector {
	t.Helper()
	cfg := Config{
		Pairs:          pairs,
		DataDir:        t.TempDir(),
		RowInterval:    time.Second,
		UploadInterval: 60 * time.Second,
		FetchTimeout:   time.Second,
	}
	return New(cfg, aggregate.New(), store, store, nil, testLogger())
}

func TestTickWritesRowAndUploads(t *testing.T) {
	ad := &fakeAdapter{
		name:     "coinbase",
		maxDepth: 200,
		books:    map[string]domain.OrderBook{"ADA/USD": testBook(0.90, 0.92)},
	}
	store := newMemBlob()
	c := newTestCollector(t, store, []Pair{{Adapter: ad, Asset: "ADA", Quote: "USD"}})

	now := time.Date(2026, 8, 30, 14, 10, 5, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.tick(context.Background())

	path := LocalShardPath(c.cfg.DataDir, "coinbase", "ADA", "2026-08-30", 14)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("shard not written: %v", err)
	}
	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		t.Fatalf("shard not parseable: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("shard rows = %d, want header + 1", len(rows))
	}
	if rows[0][0] != "timestamp" || rows[0][11] != "spread_L5000_pct" {
		t.Errorf("unexpected header: %v", rows[0])
	}
	if rows[1][1] != "coinbase" || rows[1][2] != "ADA" {
		t.Errorf("unexpected row identity: %v", rows[1])
	}
	if rows[1][3] != "0.9100000000" {
		t.Errorf("price cell = %q, want 0.9100000000", rows[1][3])
	}
	if rows[1][11] != "" {
		t.Errorf("shallow exchange must leave spread_L5000_pct empty, got %q", rows[1][11])
	}

	// First tick uploads immediately (lastUpload zero value).
	if _, ok := store.objects[blob.HourlyCSVKey("coinbase", "ADA", "2026-08-30", 14)]; !ok {
		t.Error("hourly shard not uploaded")
	}
	jsonData, ok := store.objects[blob.DailyJSONKey("coinbase", "ADA", "2026-08-30")]
	if !ok {
		t.Fatal("daily JSON not uploaded")
	}
	var records []domain.AverageRecord
	if err := json.Unmarshal(jsonData, &records); err != nil {
		t.Fatalf("daily JSON not parseable: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("records = %d, want 0 (minute still open)", len(records))
	}
}

func TestFallbackQuote(t *testing.T) {
	ad := &fakeAdapter{
		name:     "bybit",
		maxDepth: 200,
		books: map[string]domain.OrderBook{
			"ADA/USDT": {}, // empty on primary
			"ADA/USD":  testBook(0.90, 0.92),
		},
	}
	store := newMemBlob()
	c := newTestCollector(t, store, []Pair{{Adapter: ad, Asset: "ADA", Quote: "USDT", FallbackQuote: "USD"}})
	now := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.tick(context.Background())

	if len(ad.calls) != 2 || ad.calls[1] != "ADA/USD" {
		t.Fatalf("calls = %v, want primary then fallback", ad.calls)
	}
	if got := c.avg.OpenSampleCount(domain.SeriesKey("bybit", "ADA")); got != 1 {
		t.Errorf("open sample count = %d, want 1 (fallback book recorded)", got)
	}
}

func TestResumeSeriesFromDailyJSON(t *testing.T) {
	store := newMemBlob()
	existing := []domain.AverageRecord{{
		T:        time.Date(2026, 8, 30, 0, 1, 0, 0, time.UTC),
		Exchange: "kraken",
		Asset:    "BTC",
		PriceAvg: 60000,
	}}
	payload, _ := json.Marshal(existing)
	store.objects[blob.DailyJSONKey("kraken", "BTC", "2026-08-30")] = payload

	ad := &fakeAdapter{
		name:     "kraken",
		maxDepth: 5000,
		books:    map[string]domain.OrderBook{"BTC/USD": testBook(60000, 60001)},
	}
	c := newTestCollector(t, store, []Pair{{Adapter: ad, Asset: "BTC", Quote: "USD"}})
	now := time.Date(2026, 8, 30, 0, 5, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.tick(context.Background())

	series := c.avg.Series(domain.SeriesKey("kraken", "BTC"))
	if len(series) != 1 || series[0].PriceAvg != 60000 {
		t.Fatalf("series = %v, want resumed record", series)
	}
}

func TestResumeShardFromBlobStore(t *testing.T) {
	store := newMemBlob()
	shard := "timestamp,exchange,asset,price,best_bid,best_ask,spread_raw,spread_L5_pct,spread_L20_pct,spread_L50_pct,spread_L100_pct,spread_L5000_pct,bid_volume_L50,ask_volume_L50\n" +
		"2026-08-30T07:59:59Z,coinbase,ADA,0.9,0.89,0.91,0.02,,,,,,1.0,2.0\n"
	store.objects[blob.HourlyCSVKey("coinbase", "ADA", "2026-08-30", 8)] = []byte(shard)

	ad := &fakeAdapter{
		name:     "coinbase",
		maxDepth: 200,
		books:    map[string]domain.OrderBook{"ADA/USD": testBook(0.90, 0.92)},
	}
	c := newTestCollector(t, store, []Pair{{Adapter: ad, Asset: "ADA", Quote: "USD"}})
	now := time.Date(2026, 8, 30, 8, 0, 30, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.tick(context.Background())

	path := LocalShardPath(c.cfg.DataDir, "coinbase", "ADA", "2026-08-30", 8)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("local shard missing: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("shard lines = %d, want header + resumed row + new row", len(lines))
	}
	if !strings.Contains(lines[1], "2026-08-30T07:59:59Z") {
		t.Errorf("resumed row missing: %q", lines[1])
	}
}

func TestFormatParseRowRoundTrip(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 1, 500000000, time.UTC)
	tick := metrics.Tick{
		Price:        fp(0.905),
		BestBid:      fp(0.90),
		BestAsk:      fp(0.91),
		SpreadRaw:    fp(0.01),
		SpreadL5Pct:  fp(1.1049723757),
		BidVolumeL50: 100,
		AskVolumeL50: 80,
	}

	cells := FormatRow(now, "coinbase", "ADA", tick)
	if len(cells) != len(CSVHeader) {
		t.Fatalf("row width = %d, want %d", len(cells), len(CSVHeader))
	}
	if cells[11] != "" {
		t.Errorf("nil spread_L5000_pct must be empty, got %q", cells[11])
	}

	pt, parsed, err := ParseRow(cells)
	if err != nil {
		t.Fatalf("ParseRow: %v", err)
	}
	if !pt.Equal(now) {
		t.Errorf("timestamp = %v, want %v", pt, now)
	}
	if parsed.Price == nil || *parsed.Price != 0.905 {
		t.Errorf("price = %v, want 0.905", parsed.Price)
	}
	if parsed.SpreadL5000Pct != nil {
		t.Error("spread_L5000_pct must parse back to nil")
	}
	if parsed.BidVolumeL50 != 100 || parsed.AskVolumeL50 != 80 {
		t.Errorf("volumes = %v/%v, want 100/80", parsed.BidVolumeL50, parsed.AskVolumeL50)
	}
}
