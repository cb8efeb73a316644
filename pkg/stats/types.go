package stats

import (
	"context"
	"time"

	"github.com/1satmarket/marketapi/pkg/market"
	"github.com/1satmarket/marketapi/pkg/upstream"
)

// Cache keys owned by the aggregate jobs.
const (
	CurrentRateKey  = "bsv_usd_rate:current"
	RateHistoryKey  = "bsv_usd_rates:history"
	MarketStatsKey  = "market_stats:current"
	RateSource      = "whatsonchain"
	currentRateTTL  = 120 * time.Second
	marketStatsTTL  = 5 * time.Minute
	rateRetention   = 7 * 24 * time.Hour
	rateLookback    = 24 * time.Hour
	rateMatchWindow = 30 * time.Second
)

// RatePoint is one stored BSV/USD observation. Timestamp is unix millis.
type RatePoint struct {
	Rate      float64 `json:"rate"`
	Timestamp int64   `json:"timestamp"`
}

type AssetCounts struct {
	BSV20 int `json:"bsv20_count"`
	BSV21 int `json:"bsv21_count"`
}

// MarketStats aggregates every cached token.
type MarketStats struct {
	TotalMarketCapBSV float64     `json:"total_market_cap_bsv"`
	TotalMarketCapUSD float64     `json:"total_market_cap_usd"`
	TotalVolume24hBSV float64     `json:"total_volume_24h_bsv"`
	TotalVolume24hUSD float64     `json:"total_volume_24h_usd"`
	Assets            AssetCounts `json:"assets"`
}

type BsvUsd struct {
	Rate      float64   `json:"rate"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
	Change24h float64   `json:"change_24h"`
}

type MarketStatus struct {
	BsvUsd BsvUsd `json:"bsv_usd"`
	MarketStats
}

// Status is the /status payload.
type Status struct {
	ChainInfo    *upstream.ChainInfo `json:"chainInfo"`
	ExchangeRate float64             `json:"exchangeRate"`
	Indexers     map[string]uint64   `json:"indexers"`
	Market       MarketStatus        `json:"market"`
	Timestamp    time.Time           `json:"timestamp"`
	Height       uint64              `json:"height"`
}

// TokenSnapshot is one token's derived values at snapshot time.
type TokenSnapshot struct {
	Family    market.Family
	Key       string
	Price     float64
	MarketCap float64
	PctChange float64
	Holders   int64
}

// Snapshot is what a stats pass hands to the history sink.
type Snapshot struct {
	At     time.Time
	Rate   float64
	Height uint64
	Stats  MarketStats
	Tokens []TokenSnapshot
}

// Sink persists snapshots for later analysis.
type Sink interface {
	WriteSnapshot(ctx context.Context, snap Snapshot) error
}
