package collector

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/mpaquette/depthmetrics/internal/metrics"
)

// CSVHeader is the column set of every hourly shard and daily CSV artifact.
// Column order is part of the on-disk contract; downstream notebooks index by
// name but the composer merges by position.
var CSVHeader = []string{
	"timestamp", "exchange", "asset",
	"price", "best_bid", "best_ask", "spread_raw",
	"spread_L5_pct", "spread_L20_pct", "spread_L50_pct", "spread_L100_pct", "spread_L5000_pct",
	"bid_volume_L50", "ask_volume_L50",
}

// LocalShardPath returns the local mirror of the hourly shard blob key:
// {dataDir}/{exchange}/{asset}/{day}_{HH}.csv.
func LocalShardPath(dataDir, exchange, asset, day string, hour int) string {
	return filepath.Join(dataDir, exchange, asset, fmt.Sprintf("%s_%02d.csv", day, hour))
}

// FormatRow renders one tick as CSV cells. Floats use ten decimal places;
// nil metrics become empty cells.
func FormatRow(t time.Time, exchange, asset string, tick metrics.Tick) []string {
	return []string{
		t.UTC().Format(time.RFC3339Nano),
		exchange,
		asset,
		fmtPtr(tick.Price),
		fmtPtr(tick.BestBid),
		fmtPtr(tick.BestAsk),
		fmtPtr(tick.SpreadRaw),
		fmtPtr(tick.SpreadL5Pct),
		fmtPtr(tick.SpreadL20Pct),
		fmtPtr(tick.SpreadL50Pct),
		fmtPtr(tick.SpreadL100Pct),
		fmtPtr(tick.SpreadL5000Pct),
		fmtFloat(tick.BidVolumeL50),
		fmtFloat(tick.AskVolumeL50),
	}
}

// ParseRow is the inverse of FormatRow for composer merges. Empty cells come
// back as nil pointers; a malformed timestamp fails the whole row.
func ParseRow(cells []string) (time.Time, metrics.Tick, error) {
	if len(cells) < len(CSVHeader) {
		return time.Time{}, metrics.Tick{}, fmt.Errorf("collector: short csv row: %d cells", len(cells))
	}
	t, err := time.Parse(time.RFC3339Nano, cells[0])
	if err != nil {
		return time.Time{}, metrics.Tick{}, fmt.Errorf("collector: parse row timestamp: %w", err)
	}
	tick := metrics.Tick{
		Price:          parsePtr(cells[3]),
		BestBid:        parsePtr(cells[4]),
		BestAsk:        parsePtr(cells[5]),
		SpreadRaw:      parsePtr(cells[6]),
		SpreadL5Pct:    parsePtr(cells[7]),
		SpreadL20Pct:   parsePtr(cells[8]),
		SpreadL50Pct:   parsePtr(cells[9]),
		SpreadL100Pct:  parsePtr(cells[10]),
		SpreadL5000Pct: parsePtr(cells[11]),
	}
	if v := parsePtr(cells[12]); v != nil {
		tick.BidVolumeL50 = *v
	}
	if v := parsePtr(cells[13]); v != nil {
		tick.AskVolumeL50 = *v
	}
	return t, tick, nil
}

func fmtPtr(v *float64) string {
	if v == nil {
		return ""
	}
	return fmtFloat(*v)
}

func fmtFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 10, 64)
}

func parsePtr(cell string) *float64 {
	if cell == "" {
		return nil
	}
	v, err := strconv.ParseFloat(cell, 64)
	if err != nil {
		return nil
	}
	return &v
}

// ensureHeader creates the shard file with a header row when it does not
// exist yet, creating parent directories as needed.
func ensureHeader(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("collector: mkdir shard dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return fmt.Errorf("collector: create shard %s: %w", path, err)
	}
	defer f.Close()
	return writeCSVLine(f, CSVHeader)
}

// appendRow appends one CSV line to an existing shard file.
func appendRow(path string, cells []string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("collector: open shard %s: %w", path, err)
	}
	defer f.Close()
	return writeCSVLine(f, cells)
}

func writeCSVLine(f *os.File, cells []string) error {
	w := csv.NewWriter(f)
	if err := w.Write(cells); err != nil {
		return fmt.Errorf("collector: write shard row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("collector: flush shard row: %w", err)
	}
	return nil
}
