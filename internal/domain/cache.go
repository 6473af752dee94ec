package domain

import (
	"context"
	"time"
)

// LatestTick is the most recent per-second metric snapshot for a series,
// published by the collector and served by the read API.
type LatestTick struct {
	Exchange     string    `json:"exchange"`
	Asset        string    `json:"asset"`
	Time         time.Time `json:"t"`
	Price        *float64  `json:"price"`
	BestBid      *float64  `json:"best_bid"`
	BestAsk      *float64  `json:"best_ask"`
	SpreadRaw    *float64  `json:"spread_raw"`
	SpreadL50Pct *float64  `json:"spread_L50_pct"`
	BidVolumeL50 float64   `json:"bid_volume_L50"`
	AskVolumeL50 float64   `json:"ask_volume_L50"`
}

// TickCache stores the latest tick per (exchange, asset) for cheap reads
// without touching object storage.
type TickCache interface {
	SetLatest(ctx context.Context, tick LatestTick) error
	GetLatest(ctx context.Context, exchange, asset string) (LatestTick, error)
}
