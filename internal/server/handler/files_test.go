package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mpaquette/depthmetrics/internal/domain"
)

type fakeReader struct {
	objects map[string][]byte
	listErr error
}

func (f *fakeReader) Get(_ context.Context, path string) (io.ReadCloser, error) {
	data, ok := f.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeReader) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var infos []domain.BlobInfo
	for path := range f.objects {
		if strings.HasPrefix(path, prefix) {
			infos = append(infos, domain.BlobInfo{Path: path})
		}
	}
	return infos, nil
}

func (f *fakeReader) Exists(_ context.Context, path string) (bool, error) {
	_, ok := f.objects[path]
	return ok, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFileHandler(objects map[string][]byte) *FileHandler {
	return NewFileHandler(&fakeReader{objects: objects}, testLogger())
}

func TestGetDailyJSON(t *testing.T) {
	h := newFileHandler(map[string][]byte{
		"coinbase/ADA/ADA-2026-08-30.json": []byte(`[{"asset":"ADA"}]`),
	})

	tests := []struct {
		name       string
		query      string
		wantStatus int
	}{
		{"found", "exchange=coinbase&asset=ADA&day=2026-08-30", http.StatusOK},
		{"case normalized", "exchange=Coinbase&asset=ada&day=2026-08-30", http.StatusOK},
		{"missing day", "exchange=coinbase&asset=ADA", http.StatusBadRequest},
		{"malformed day", "exchange=coinbase&asset=ADA&day=30-08-2026", http.StatusBadRequest},
		{"unknown day", "exchange=coinbase&asset=ADA&day=2026-01-01", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/files/json?"+tt.query, nil)
			rec := httptest.NewRecorder()
			h.GetDailyJSON(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK {
				if got := rec.Header().Get("Cache-Control"); got != "public, max-age=300" {
					t.Errorf("Cache-Control = %q", got)
				}
				if !strings.Contains(rec.Body.String(), "ADA") {
					t.Errorf("body = %q", rec.Body.String())
				}
			}
		})
	}
}

func TestGetDailyCSVContentType(t *testing.T) {
	h := newFileHandler(map[string][]byte{
		"kraken/BTC/BTC-2026-08-30.csv": []byte("timestamp,exchange\n"),
	})

	req := httptest.NewRequest(http.MethodGet, "/files/csv?exchange=kraken&asset=BTC&day=2026-08-30", nil)
	rec := httptest.NewRecorder()
	h.GetDailyCSV(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "text/csv; charset=utf-8" {
		t.Errorf("Content-Type = %q", got)
	}
}

func TestListDays(t *testing.T) {
	h := newFileHandler(map[string][]byte{
		"coinbase/ADA/ADA-2026-08-29.json": nil,
		"coinbase/ADA/ADA-2026-08-30.json": nil,
		"coinbase/ADA/ADA-2026-08-30.csv":  nil, // not a JSON artifact
		"coinbase/ADA/2026-08-30_14.csv":   nil, // shard, not a daily artifact
		"coinbase/ETH/ETH-2026-08-30.json": nil, // other asset
	})

	req := httptest.NewRequest(http.MethodGet, "/list/days?exchange=coinbase&asset=ADA", nil)
	rec := httptest.NewRecorder()
	h.ListDays(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		Exchange string   `json:"exchange"`
		Asset    string   `json:"asset"`
		Days     []string `json:"days"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := []string{"2026-08-29", "2026-08-30"}
	if len(resp.Days) != 2 || resp.Days[0] != want[0] || resp.Days[1] != want[1] {
		t.Errorf("days = %v, want %v", resp.Days, want)
	}
}

func TestListExchangesAndAssets(t *testing.T) {
	h := newFileHandler(map[string][]byte{
		"coinbase/ADA/ADA-2026-08-30.json": nil,
		"kraken/BTC/BTC-2026-08-30.json":   nil,
		"kraken/ETH/ETH-2026-08-30.json":   nil,
	})

	rec := httptest.NewRecorder()
	h.ListExchanges(rec, httptest.NewRequest(http.MethodGet, "/list/exchanges", nil))
	var exResp struct {
		Exchanges []string `json:"exchanges"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &exResp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(exResp.Exchanges) != 2 || exResp.Exchanges[0] != "coinbase" || exResp.Exchanges[1] != "kraken" {
		t.Errorf("exchanges = %v", exResp.Exchanges)
	}

	rec = httptest.NewRecorder()
	h.ListAssets(rec, httptest.NewRequest(http.MethodGet, "/list/assets?exchange=kraken", nil))
	var asResp struct {
		Assets []string `json:"assets"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &asResp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(asResp.Assets) != 2 || asResp.Assets[0] != "BTC" || asResp.Assets[1] != "ETH" {
		t.Errorf("assets = %v", asResp.Assets)
	}

	rec = httptest.NewRecorder()
	h.ListAssets(rec, httptest.NewRequest(http.MethodGet, "/list/assets", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing exchange status = %d, want 400", rec.Code)
	}
}

type fakeCache struct {
	ticks map[string]domain.LatestTick
}

func (f *fakeCache) SetLatest(_ context.Context, tick domain.LatestTick) error {
	f.ticks[tick.Exchange+":"+tick.Asset] = tick
	return nil
}

func (f *fakeCache) GetLatest(_ context.Context, exchange, asset string) (domain.LatestTick, error) {
	tick, ok := f.ticks[exchange+":"+asset]
	if !ok {
		return domain.LatestTick{}, domain.ErrNotFound
	}
	return tick, nil
}

func TestGetLatest(t *testing.T) {
	price := 0.905
	cache := &fakeCache{ticks: map[string]domain.LatestTick{
		"coinbase:ADA": {
			Exchange: "coinbase",
			Asset:    "ADA",
			Time:     time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
			Price:    &price,
		},
	}}
	h := NewLatestHandler(cache, testLogger())

	rec := httptest.NewRecorder()
	h.GetLatest(rec, httptest.NewRequest(http.MethodGet, "/latest?exchange=coinbase&asset=ADA", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var tick domain.LatestTick
	if err := json.Unmarshal(rec.Body.Bytes(), &tick); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if tick.Price == nil || *tick.Price != 0.905 {
		t.Errorf("price = %v, want 0.905", tick.Price)
	}

	rec = httptest.NewRecorder()
	h.GetLatest(rec, httptest.NewRequest(http.MethodGet, "/latest?exchange=coinbase&asset=SOL", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("cold cache status = %d, want 404", rec.Code)
	}
}

func TestGetLatestCacheDisabled(t *testing.T) {
	h := NewLatestHandler(nil, testLogger())

	rec := httptest.NewRecorder()
	h.GetLatest(rec, httptest.NewRequest(http.MethodGet, "/latest?exchange=coinbase&asset=ADA", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("disabled cache status = %d, want 404", rec.Code)
	}
}
