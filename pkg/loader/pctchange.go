package loader

import (
	"context"
	"math"
	"strconv"
	"time"

	"github.com/1satmarket/marketapi/pkg/cache"
	"github.com/1satmarket/marketapi/pkg/market"
)

// BlocksPerDay approximates ten-minute blocks.
const BlocksPerDay = 144

// Timeframe is a percent-change lookback window in days.
type Timeframe struct {
	Label string
	Days  float64
}

var Timeframes = []Timeframe{
	{Label: "1H", Days: 0.041667},
	{Label: "3H", Days: 0.125},
	{Label: "1D", Days: 1},
	{Label: "1W", Days: 7},
	{Label: "1M", Days: 30},
	{Label: "1Y", Days: 365},
	{Label: "ALL", Days: 9999},
}

// ReferenceTimeframe is the window served as pctChange.
var ReferenceTimeframe = Timeframes[2]

// Cutoff is the lowest block height inside tf as seen from height.
func Cutoff(height uint64, tf Timeframe) uint64 {
	span := uint64(math.Floor(tf.Days * BlocksPerDay))
	if span >= height {
		return 0
	}
	return height - span
}

// PctChange computes the price move across the sales inside tf. sales must be
// most recent first. Unconfirmed sales are always inside the window.
func PctChange(sales []market.Listing, height uint64, tf Timeframe) (float64, bool) {
	cutoff := Cutoff(height, tf)
	var window []market.Listing
	for _, s := range sales {
		if s.Pending() || uint64(s.SpendHeight) >= cutoff {
			window = append(window, s)
		}
	}
	if len(window) == 0 {
		return 0, false
	}
	latest := window[0].PricePer.Float64()
	oldest := window[len(window)-1].PricePer.Float64()
	if oldest == 0 {
		return 0, true
	}
	return ((latest - oldest) / oldest) * 100, true
}

// Tracker caches percent change per token for the reference timeframe.
type Tracker struct {
	store cache.Store
	ttl   time.Duration
}

func NewTracker(store cache.Store, ttl time.Duration) *Tracker {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Tracker{store: store, ttl: ttl}
}

// SetPctChange computes and caches the reference-window change. It is 0 when
// no sale falls inside the window.
func (t *Tracker) SetPctChange(ctx context.Context, f market.Family, key string, sales []market.Listing, height uint64) (float64, error) {
	pct, _ := PctChange(sales, height, ReferenceTimeframe)
	err := t.store.Set(ctx, market.PctChangeKey(ReferenceTimeframe.Label, f, key), strconv.FormatFloat(pct, 'f', -1, 64), t.ttl)
	return pct, err
}

// GetPctChange reads the cached value without recomputing it.
func (t *Tracker) GetPctChange(ctx context.Context, f market.Family, key string) (float64, bool, error) {
	raw, ok, err := t.store.Get(ctx, market.PctChangeKey(ReferenceTimeframe.Label, f, key))
	if err != nil || !ok {
		return 0, false, err
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false, nil
	}
	return v, true, nil
}
