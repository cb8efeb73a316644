package upstream

import (
	"context"
	"encoding/json"
	"time"

	"github.com/1satmarket/marketapi/pkg/cache"
	"go.uber.org/zap"
)

const (
	ChainInfoKey    = "chainInfo"
	ExchangeRateKey = "exchangeRate"

	chainInfoTTL = 60 * time.Second
)

// Cached is a Source that serves the chain tip and exchange rate from the
// cache when fresh. Blocks can arrive within a minute, so the tip is kept
// for 60s; the rate lives for rateTTL.
type Cached struct {
	Source
	store   cache.Store
	logger  *zap.Logger
	rateTTL time.Duration
}

// NewCached wraps src.
func NewCached(src Source, store cache.Store, rateTTL time.Duration, logger *zap.Logger) *Cached {
	if rateTTL <= 0 {
		rateTTL = 15 * time.Minute
	}
	return &Cached{Source: src, store: store, logger: logger, rateTTL: rateTTL}
}

func (c *Cached) ChainTip(ctx context.Context) *ChainInfo {
	if raw, ok, err := c.store.Get(ctx, ChainInfoKey); err == nil && ok {
		var info ChainInfo
		if json.Unmarshal([]byte(raw), &info) == nil {
			return &info
		}
	} else if err != nil {
		c.logger.Warn("chain info cache read failed", zap.Error(err))
	}

	info := c.Source.ChainTip(ctx)
	if info == nil {
		return nil
	}
	if b, err := json.Marshal(info); err == nil {
		if err := c.store.Set(ctx, ChainInfoKey, string(b), chainInfoTTL); err != nil {
			c.logger.Warn("chain info cache write failed", zap.Error(err))
		}
	}
	return info
}

// Height is the cached chain tip height, 0 when unknown.
func (c *Cached) Height(ctx context.Context) uint64 {
	return Height(ctx, c)
}

func (c *Cached) ExchangeRate(ctx context.Context) float64 {
	if raw, ok, err := c.store.Get(ctx, ExchangeRateKey); err == nil && ok {
		var r exchangeRate
		if json.Unmarshal([]byte(raw), &r) == nil && r.Rate > 0 {
			return r.Rate
		}
	}

	rate := c.Source.ExchangeRate(ctx)
	if rate <= 0 {
		return 0
	}
	b, _ := json.Marshal(exchangeRate{Rate: rate})
	if err := c.store.Set(ctx, ExchangeRateKey, string(b), c.rateTTL); err != nil {
		c.logger.Warn("exchange rate cache write failed", zap.Error(err))
	}
	return rate
}
