// Package collector runs the order-book polling loop: fetch every enabled
// (exchange, asset) pair roughly once per second, derive tick metrics, append
// them to local hourly CSV shards, fold them into the minute averager, and
// periodically push shards and the daily JSON series to object storage.
package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mpaquette/depthmetrics/internal/aggregate"
	"github.com/mpaquette/depthmetrics/internal/blob"
	"github.com/mpaquette/depthmetrics/internal/domain"
	"github.com/mpaquette/depthmetrics/internal/exchange"
	"github.com/mpaquette/depthmetrics/internal/metrics"
)

// Pair is one polled (exchange, asset) combination. FallbackQuote, when set,
// is retried transparently if the primary quote yields an empty book.
type Pair struct {
	Adapter       exchange.Adapter
	Asset         string
	Quote         string
	FallbackQuote string
}

// Config holds the collector's operational parameters.
type Config struct {
	Pairs          []Pair
	DataDir        string
	RowInterval    time.Duration
	UploadInterval time.Duration
	FetchTimeout   time.Duration
}

// Collector drives the polling loop. Run owns all mutable state; nothing here
// is safe for concurrent use from outside.
type Collector struct {
	cfg    Config
	avg    *aggregate.Averager
	reader domain.BlobReader
	writer domain.BlobWriter
	cache  domain.TickCache
	log    *slog.Logger

	day        string
	hour       int
	lastUpload time.Time
	now        func() time.Time
}

// New creates a Collector. cache may be nil to disable latest-tick publishing.
func New(cfg Config, avg *aggregate.Averager, reader domain.BlobReader, writer domain.BlobWriter, cache domain.TickCache, logger *slog.Logger) *Collector {
	return &Collector{
		cfg:    cfg,
		avg:    avg,
		reader: reader,
		writer: writer,
		cache:  cache,
		log:    logger.With(slog.String("component", "collector")),
		now:    time.Now,
	}
}

// Run polls until ctx is cancelled. A final upload is attempted on shutdown
// so at most one upload interval of rows is lost.
func (c *Collector) Run(ctx context.Context) error {
	c.log.InfoContext(ctx, "collector starting",
		slog.Int("pairs", len(c.cfg.Pairs)),
		slog.Duration("row_interval", c.cfg.RowInterval),
		slog.Duration("upload_interval", c.cfg.UploadInterval))

	ticker := time.NewTicker(c.cfg.RowInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.finalUpload()
			return ctx.Err()
		case <-ticker.C:
			c.tick(ctx)
		}
	}
}

type fetchResult struct {
	pair Pair
	book domain.OrderBook
	err  error
}

// tick runs one polling cycle: resume bookkeeping, concurrent fetches, then
// serial processing (the averager and shard files are single-writer).
func (c *Collector) tick(ctx context.Context) {
	now := c.now().UTC()
	day := now.Format(time.DateOnly)
	hour := now.Hour()

	if day != c.day {
		c.rollover(ctx, day, hour)
	} else if hour != c.hour {
		c.hour = hour
		for _, pair := range c.cfg.Pairs {
			if err := c.ensureShard(ctx, pair.Adapter.Name(), pair.Asset, day, hour); err != nil {
				c.log.WarnContext(ctx, "shard init failed",
					slog.String("exchange", pair.Adapter.Name()),
					slog.String("asset", pair.Asset),
					slog.Any("error", err))
			}
		}
	}

	results := make([]fetchResult, len(c.cfg.Pairs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(16)
	for i, pair := range c.cfg.Pairs {
		g.Go(func() error {
			book, err := c.fetch(gctx, pair)
			results[i] = fetchResult{pair: pair, book: book, err: err}
			return nil
		})
	}
	_ = g.Wait()

	for _, res := range results {
		if res.err != nil {
			c.log.WarnContext(ctx, "fetch failed",
				slog.String("exchange", res.pair.Adapter.Name()),
				slog.String("asset", res.pair.Asset),
				slog.Any("error", res.err))
			continue
		}
		if res.book.Empty() {
			continue
		}
		c.process(ctx, res.pair, res.book, now, day, hour)
	}

	if now.Sub(c.lastUpload) >= c.cfg.UploadInterval {
		c.upload(ctx, day, hour)
		c.lastUpload = now
	}
}

// fetch retrieves one pair's book with the per-fetch timeout, falling back to
// the secondary quote when the primary yields nothing.
func (c *Collector) fetch(ctx context.Context, pair Pair) (domain.OrderBook, error) {
	fctx, cancel := context.WithTimeout(ctx, c.cfg.FetchTimeout)
	defer cancel()

	book, err := pair.Adapter.Fetch(fctx, pair.Asset, pair.Quote)
	if err == nil && !book.Empty() {
		return book, nil
	}
	if pair.FallbackQuote == "" || pair.FallbackQuote == pair.Quote {
		return book, err
	}

	fbCtx, fbCancel := context.WithTimeout(ctx, c.cfg.FetchTimeout)
	defer fbCancel()
	fbBook, fbErr := pair.Adapter.Fetch(fbCtx, pair.Asset, pair.FallbackQuote)
	if fbErr == nil && !fbBook.Empty() {
		return fbBook, nil
	}
	// Prefer the primary outcome in logs; the fallback was best-effort.
	return book, err
}

// process derives metrics from one successful fetch and records them.
func (c *Collector) process(ctx context.Context, pair Pair, book domain.OrderBook, now time.Time, day string, hour int) {
	exName := pair.Adapter.Name()
	deep := pair.Adapter.MaxDepth() >= 5000
	tick := metrics.Compute(book, deep)

	path := LocalShardPath(c.cfg.DataDir, exName, pair.Asset, day, hour)
	if err := ensureHeader(path); err != nil {
		c.log.WarnContext(ctx, "shard header failed",
			slog.String("exchange", exName),
			slog.String("asset", pair.Asset),
			slog.Any("error", err))
	}
	if err := appendRow(path, FormatRow(now, exName, pair.Asset, tick)); err != nil {
		c.log.WarnContext(ctx, "csv append failed",
			slog.String("exchange", exName),
			slog.String("asset", pair.Asset),
			slog.Any("error", err))
	}

	c.avg.Add(aggregate.Sample{
		Exchange:       exName,
		Asset:          pair.Asset,
		Time:           now,
		Price:          tick.Price,
		SpreadRaw:      tick.SpreadRaw,
		SpreadL5Pct:    tick.SpreadL5Pct,
		SpreadL20Pct:   tick.SpreadL20Pct,
		SpreadL50Pct:   tick.SpreadL50Pct,
		SpreadL100Pct:  tick.SpreadL100Pct,
		SpreadL5000Pct: tick.SpreadL5000Pct,
		BidVolumeL50:   &tick.BidVolumeL50,
		AskVolumeL50:   &tick.AskVolumeL50,
	})

	if c.cache != nil {
		latest := domain.LatestTick{
			Exchange:     exName,
			Asset:        pair.Asset,
			Time:         now,
			Price:        tick.Price,
			BestBid:      tick.BestBid,
			BestAsk:      tick.BestAsk,
			SpreadRaw:    tick.SpreadRaw,
			SpreadL50Pct: tick.SpreadL50Pct,
			BidVolumeL50: tick.BidVolumeL50,
			AskVolumeL50: tick.AskVolumeL50,
		}
		if err := c.cache.SetLatest(ctx, latest); err != nil {
			c.log.WarnContext(ctx, "latest-tick publish failed",
				slog.String("exchange", exName),
				slog.String("asset", pair.Asset),
				slog.Any("error", err))
		}
	}
}

// rollover prepares local shards and in-memory series for a new UTC day (or
// process start). Existing remote artifacts are pulled so a restart resumes
// mid-day instead of overwriting.
func (c *Collector) rollover(ctx context.Context, day string, hour int) {
	c.log.InfoContext(ctx, "day rollover", slog.String("day", day))
	c.day = day
	c.hour = hour

	for _, pair := range c.cfg.Pairs {
		exName := pair.Adapter.Name()
		if err := c.ensureShard(ctx, exName, pair.Asset, day, hour); err != nil {
			c.log.WarnContext(ctx, "shard init failed",
				slog.String("exchange", exName),
				slog.String("asset", pair.Asset),
				slog.Any("error", err))
		}
		c.loadSeries(ctx, exName, pair.Asset, day)
	}
}

// ensureShard makes the local hourly shard present: downloaded from the blob
// store when a previous process already uploaded it, freshly headered
// otherwise.
func (c *Collector) ensureShard(ctx context.Context, exName, asset, day string, hour int) error {
	path := LocalShardPath(c.cfg.DataDir, exName, asset, day, hour)
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	key := blob.HourlyCSVKey(exName, asset, day, hour)
	rc, err := c.reader.Get(ctx, key)
	if errors.Is(err, domain.ErrNotFound) {
		return ensureHeader(path)
	}
	if err != nil {
		// Blob store unreachable: a fresh header keeps collection going.
		if hErr := ensureHeader(path); hErr != nil {
			return hErr
		}
		return fmt.Errorf("collector: resume shard %s: %w", key, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return fmt.Errorf("collector: read remote shard %s: %w", key, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("collector: mkdir shard dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("collector: write local shard %s: %w", path, err)
	}
	c.log.InfoContext(ctx, "resumed shard from blob store", slog.String("key", key))
	return nil
}

// loadSeries seeds the averager series for a pair from the persisted daily
// JSON, or with an empty series when none exists yet.
func (c *Collector) loadSeries(ctx context.Context, exName, asset, day string) {
	key := domain.SeriesKey(exName, asset)
	jsonKey := blob.DailyJSONKey(exName, asset, day)

	rc, err := c.reader.Get(ctx, jsonKey)
	if errors.Is(err, domain.ErrNotFound) {
		c.avg.ReplaceSeries(key, nil)
		return
	}
	if err != nil {
		c.log.WarnContext(ctx, "series resume failed",
			slog.String("key", jsonKey),
			slog.Any("error", err))
		c.avg.ReplaceSeries(key, nil)
		return
	}
	defer rc.Close()

	var records []domain.AverageRecord
	if err := json.NewDecoder(rc).Decode(&records); err != nil {
		c.log.WarnContext(ctx, "series decode failed",
			slog.String("key", jsonKey),
			slog.Any("error", err))
		c.avg.ReplaceSeries(key, nil)
		return
	}
	c.avg.ReplaceSeries(key, records)
	c.log.InfoContext(ctx, "resumed series from blob store",
		slog.String("key", jsonKey),
		slog.Int("records", len(records)))
}

// upload pushes the current hourly shard and the daily JSON series for every
// pair. Failures are logged and retried on the next interval; the local file
// stays the source of truth.
func (c *Collector) upload(ctx context.Context, day string, hour int) {
	for _, pair := range c.cfg.Pairs {
		exName := pair.Adapter.Name()

		path := LocalShardPath(c.cfg.DataDir, exName, pair.Asset, day, hour)
		if data, err := os.ReadFile(path); err == nil {
			key := blob.HourlyCSVKey(exName, pair.Asset, day, hour)
			if err := c.writer.Put(ctx, key, bytes.NewReader(data), "text/csv; charset=utf-8"); err != nil {
				c.log.WarnContext(ctx, "shard upload failed",
					slog.String("key", key),
					slog.Any("error", err))
			}
		}

		records := c.avg.Series(domain.SeriesKey(exName, pair.Asset))
		if records == nil {
			records = []domain.AverageRecord{}
		}
		payload, err := json.Marshal(records)
		if err != nil {
			c.log.WarnContext(ctx, "series marshal failed",
				slog.String("exchange", exName),
				slog.String("asset", pair.Asset),
				slog.Any("error", err))
			continue
		}
		jsonKey := blob.DailyJSONKey(exName, pair.Asset, day)
		if err := c.writer.PutAtomic(ctx, jsonKey, payload, "application/json; charset=utf-8"); err != nil {
			c.log.WarnContext(ctx, "series upload failed",
				slog.String("key", jsonKey),
				slog.Any("error", err))
		}
	}
}

// finalUpload flushes once more on shutdown with a short detached context;
// the run context is already cancelled at this point.
func (c *Collector) finalUpload() {
	if c.day == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	now := c.now().UTC()
	c.upload(ctx, c.day, now.Hour())
	c.log.Info("collector stopped")
}
