package domain

import "time"

// AverageRecord is one finalized minute of per-second tick metrics for a
// (exchange, asset) series. T is the minute bucket (UTC, seconds zeroed).
// Records are immutable once produced; the daily JSON artifact is an ordered
// array of these, newest appended last, capped at one calendar day.
type AverageRecord struct {
	T                 time.Time `json:"t"`
	Exchange          string    `json:"exchange"`
	Asset             string    `json:"asset"`
	PriceAvg          float64   `json:"price_avg"`
	SpreadRawAvg      float64   `json:"spread_raw_avg"`
	SpreadL5PctAvg    float64   `json:"spread_L5_pct_avg"`
	SpreadL20PctAvg   float64   `json:"spread_L20_pct_avg"`
	SpreadL50PctAvg   float64   `json:"spread_L50_pct_avg"`
	SpreadL100PctAvg  float64   `json:"spread_L100_pct_avg"`
	SpreadL5000PctAvg *float64  `json:"spread_L5000_pct_avg,omitempty"`
	BidVolumeL50Avg   float64   `json:"bid_volume_L50_avg"`
	AskVolumeL50Avg   float64   `json:"ask_volume_L50_avg"`
}

// SeriesKey is the conventional series key for a (exchange, asset) pair.
func SeriesKey(exchange, asset string) string {
	return exchange + ":" + asset
}
