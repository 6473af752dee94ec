// Package composer publishes canonical daily artifacts shortly after UTC
// midnight: it merges the previous day's hourly CSV shards per (exchange,
// asset), publishes the combined daily CSV, and regenerates the daily JSON
// view by replaying the merged rows through the minute averager.
package composer

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/mpaquette/depthmetrics/internal/aggregate"
	"github.com/mpaquette/depthmetrics/internal/blob"
	"github.com/mpaquette/depthmetrics/internal/collector"
	"github.com/mpaquette/depthmetrics/internal/domain"
	"github.com/mpaquette/depthmetrics/internal/metrics"
)

// multipartThreshold switches large daily CSVs to a multipart upload. A full
// day at 1 Hz is ~10 MB per pair.
const multipartThreshold = 8 << 20

// Config holds the composer's schedule and scope.
type Config struct {
	// Exchanges and Assets span the (exchange, asset) grid to compose.
	Exchanges []string
	Assets    []string

	// ComposeAfter is the UTC wall-clock time ("00:03") at/after which the
	// previous day becomes eligible for composition.
	ComposeAfter string

	// CheckInterval is how often the loop wakes to check the clock.
	CheckInterval time.Duration

	// Day, when set ("2026-08-30"), composes that one day immediately and
	// returns instead of looping.
	Day string
}

// Composer runs the daily composition job.
type Composer struct {
	cfg    Config
	reader domain.BlobReader
	writer domain.BlobWriter
	log    *slog.Logger

	lastDayDone string
	now         func() time.Time
}

// New creates a Composer.
func New(cfg Config, reader domain.BlobReader, writer domain.BlobWriter, logger *slog.Logger) *Composer {
	return &Composer{
		cfg:    cfg,
		reader: reader,
		writer: writer,
		log:    logger.With(slog.String("component", "composer")),
		now:    time.Now,
	}
}

// Run executes the composition loop until ctx is cancelled. With Config.Day
// set it composes that single day and returns.
func (c *Composer) Run(ctx context.Context) error {
	if c.cfg.Day != "" {
		c.log.InfoContext(ctx, "one-shot compose", slog.String("day", c.cfg.Day))
		c.ComposeDay(ctx, c.cfg.Day)
		return nil
	}

	after, err := time.Parse("15:04", c.cfg.ComposeAfter)
	if err != nil {
		return fmt.Errorf("composer: parse compose_after: %w", err)
	}

	c.log.InfoContext(ctx, "composer starting",
		slog.String("compose_after", c.cfg.ComposeAfter),
		slog.Duration("check_interval", c.cfg.CheckInterval))

	ticker := time.NewTicker(c.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			now := c.now().UTC()
			gate := time.Date(now.Year(), now.Month(), now.Day(), after.Hour(), after.Minute(), 0, 0, time.UTC)
			if now.Before(gate) {
				continue
			}
			yesterday := now.AddDate(0, 0, -1).Format(time.DateOnly)
			if yesterday == c.lastDayDone {
				continue
			}
			c.ComposeDay(ctx, yesterday)
			c.lastDayDone = yesterday
		}
	}
}

// ComposeDay composes every (exchange, asset) pair for one day. Per-pair
// failures are logged and do not abort the rest of the grid; republishing an
// already-composed day is safe.
func (c *Composer) ComposeDay(ctx context.Context, day string) {
	for _, exName := range c.cfg.Exchanges {
		for _, asset := range c.cfg.Assets {
			ok, err := c.composePair(ctx, exName, asset, day)
			switch {
			case err != nil:
				c.log.ErrorContext(ctx, "compose failed",
					slog.String("exchange", exName),
					slog.String("asset", asset),
					slog.String("day", day),
					slog.Any("error", err))
			case ok:
				c.log.InfoContext(ctx, "composed",
					slog.String("exchange", exName),
					slog.String("asset", asset),
					slog.String("day", day))
			default:
				c.log.InfoContext(ctx, "no parts",
					slog.String("exchange", exName),
					slog.String("asset", asset),
					slog.String("day", day))
			}
		}
	}
}

// mergedRow keeps the raw cells for the CSV republish alongside the parsed
// form used for the JSON replay.
type mergedRow struct {
	t     time.Time
	tick  metrics.Tick
	cells []string
}

func (c *Composer) composePair(ctx context.Context, exName, asset, day string) (bool, error) {
	rows, err := c.collectShardRows(ctx, exName, asset, day)
	if err != nil {
		return false, err
	}

	// No shards: a prior compose (or a manual upload) may have left a single
	// daily CSV behind; regenerate the JSON view from it.
	if rows == nil {
		rows, err = c.readDailyCSV(ctx, exName, asset, day)
		if err != nil {
			return false, err
		}
		if rows == nil {
			return false, nil
		}
	}

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].t.Before(rows[j].t) })

	if err := c.publishCSV(ctx, exName, asset, day, rows); err != nil {
		return false, err
	}
	if len(rows) > 0 {
		if err := c.publishJSON(ctx, exName, asset, day, rows); err != nil {
			return false, err
		}
	}
	return true, nil
}

// collectShardRows lists and merges the day's hourly shards in both naming
// generations. Returns nil when no shard exists or none yields a row, so the
// caller falls through to the existing-daily-CSV path instead of publishing
// an empty artifact.
func (c *Composer) collectShardRows(ctx context.Context, exName, asset, day string) ([]mergedRow, error) {
	infos, err := c.reader.List(ctx, blob.ShardPrefix(exName, asset))
	if err != nil {
		return nil, fmt.Errorf("composer: list shards %s/%s: %w", exName, asset, err)
	}

	var keys []string
	for _, info := range infos {
		if blob.IsShardKey(info.Path, exName, asset, day) {
			keys = append(keys, info.Path)
		}
	}
	if len(keys) == 0 {
		return nil, nil
	}
	sort.Strings(keys)

	var rows []mergedRow
	for _, key := range keys {
		shardRows, err := c.readCSVBlob(ctx, key)
		if err != nil {
			// A single corrupt shard must not sink the day.
			c.log.WarnContext(ctx, "shard read failed",
				slog.String("key", key),
				slog.Any("error", err))
			continue
		}
		rows = append(rows, shardRows...)
	}
	return rows, nil
}

// readDailyCSV loads an already-published daily CSV, or nil when absent.
func (c *Composer) readDailyCSV(ctx context.Context, exName, asset, day string) ([]mergedRow, error) {
	key := blob.DailyCSVKey(exName, asset, day)
	rows, err := c.readCSVBlob(ctx, key)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *Composer) readCSVBlob(ctx context.Context, key string) ([]mergedRow, error) {
	rc, err := c.reader.Get(ctx, key)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("composer: get %s: %w", key, err)
	}
	defer rc.Close()

	r := csv.NewReader(rc)
	r.FieldsPerRecord = -1

	rows := []mergedRow{}
	for {
		cells, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("composer: read %s: %w", key, err)
		}
		if len(cells) > 0 && cells[0] == "timestamp" {
			continue
		}
		t, tick, perr := collector.ParseRow(cells)
		if perr != nil {
			// Malformed rows are dropped, matching the lenient merge the
			// artifacts have always had.
			continue
		}
		rows = append(rows, mergedRow{t: t, tick: tick, cells: cells})
	}
	return rows, nil
}

// publishCSV uploads the canonical daily CSV, atomically for typical sizes
// and multipart beyond the threshold.
func (c *Composer) publishCSV(ctx context.Context, exName, asset, day string, rows []mergedRow) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(collector.CSVHeader); err != nil {
		return fmt.Errorf("composer: write header: %w", err)
	}
	for _, row := range rows {
		if err := w.Write(row.cells); err != nil {
			return fmt.Errorf("composer: write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("composer: flush csv: %w", err)
	}

	key := blob.DailyCSVKey(exName, asset, day)
	if buf.Len() > multipartThreshold {
		if err := c.writer.PutMultipart(ctx, key, &buf, 0); err != nil {
			return fmt.Errorf("composer: upload csv %s: %w", key, err)
		}
		return nil
	}
	if err := c.writer.PutAtomic(ctx, key, buf.Bytes(), "text/csv; charset=utf-8"); err != nil {
		return fmt.Errorf("composer: upload csv %s: %w", key, err)
	}
	return nil
}

// publishJSON replays the merged rows through a fresh averager and uploads
// the resulting minute records as the daily JSON artifact.
func (c *Composer) publishJSON(ctx context.Context, exName, asset, day string, rows []mergedRow) error {
	avg := aggregate.New()
	for _, row := range rows {
		tick := row.tick
		avg.Add(aggregate.Sample{
			Exchange:       exName,
			Asset:          asset,
			Time:           row.t,
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
	}
	avg.Flush()

	records := avg.Series(domain.SeriesKey(exName, asset))
	if records == nil {
		records = []domain.AverageRecord{}
	}
	payload, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("composer: marshal json %s/%s: %w", exName, asset, err)
	}

	key := blob.DailyJSONKey(exName, asset, day)
	if err := c.writer.PutAtomic(ctx, key, payload, "application/json; charset=utf-8"); err != nil {
		return fmt.Errorf("composer: upload json %s: %w", key, err)
	}
	return nil
}
