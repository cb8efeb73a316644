package upstream

import (
	"context"
	"time"
)

// ChainInfo is the chain tip in the shape the status endpoint has always served.
type ChainInfo struct {
	Blocks        uint64 `json:"blocks"`
	Headers       uint64 `json:"headers"`
	BestBlockHash string `json:"bestblockhash"`
	Chain         string `json:"chain"`
	MedianTime    int64  `json:"mediantime"`
}

type blockHeaderTip struct {
	Hash   string `json:"hash"`
	Height uint64 `json:"height"`
	Time   int64  `json:"time"`
}

type exchangeRate struct {
	Rate float64 `json:"rate"`
}

// ChainTip fetches the current block header tip and normalizes it.
func (c *Client) ChainTip(ctx context.Context) *ChainInfo {
	tip := FetchJSON[blockHeaderTip](ctx, c.http, c.logger, "chain_tip", c.cfg.ChainTipURL)
	if tip == nil {
		return nil
	}
	median := tip.Time
	if median == 0 {
		median = time.Now().Unix()
	}
	return &ChainInfo{
		Blocks:        tip.Height,
		Headers:       tip.Height,
		BestBlockHash: tip.Hash,
		Chain:         "main",
		MedianTime:    median,
	}
}

// ExchangeRate returns the BSV/USD rate, or 0 when unavailable.
func (c *Client) ExchangeRate(ctx context.Context) float64 {
	r := FetchJSON[exchangeRate](ctx, c.http, c.logger, "exchange_rate", c.cfg.RateURL)
	if r == nil {
		return 0
	}
	return r.Rate
}

// Height is the chain tip height reported by src, 0 when unknown.
func Height(ctx context.Context, src Source) uint64 {
	if info := src.ChainTip(ctx); info != nil {
		return info.Blocks
	}
	return 0
}
