// Package stats runs the periodic aggregate jobs: BSV/USD rate history and
// whole-market totals, and assembles the status snapshot.
package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/1satmarket/marketapi/pkg/cache"
	"github.com/1satmarket/marketapi/pkg/loader"
	"github.com/1satmarket/marketapi/pkg/market"
	"github.com/1satmarket/marketapi/pkg/upstream"
	"go.uber.org/zap"
)

type Service struct {
	store   cache.Store
	records *loader.Records
	source  upstream.Source
	sink    Sink
	logger  *zap.Logger
	now     func() time.Time
}

// New returns a Service. sink may be nil.
func New(store cache.Store, source upstream.Source, sink Sink, logger *zap.Logger) *Service {
	return &Service{
		store:   store,
		records: loader.NewRecords(store),
		source:  source,
		sink:    sink,
		logger:  logger.Named("stats"),
		now:     time.Now,
	}
}

// StoreRateInHistory records the current rate and trims history older than
// seven days. A zero rate is not stored.
func (s *Service) StoreRateInHistory(ctx context.Context) error {
	rate := s.source.ExchangeRate(ctx)
	if rate <= 0 {
		s.logger.Debug("no exchange rate to store")
		return nil
	}
	now := s.now()
	point := RatePoint{Rate: rate, Timestamp: now.UnixMilli()}
	b, err := json.Marshal(point)
	if err != nil {
		return err
	}
	if err := s.store.Set(ctx, CurrentRateKey, string(b), currentRateTTL); err != nil {
		return fmt.Errorf("store current rate: %w", err)
	}
	if err := s.store.ZAdd(ctx, RateHistoryKey, cache.Member{Score: float64(point.Timestamp), Member: string(b)}); err != nil {
		return fmt.Errorf("append rate history: %w", err)
	}
	cutoff := now.Add(-rateRetention).UnixMilli()
	if err := s.store.ZRemRangeByScore(ctx, RateHistoryKey, 0, float64(cutoff)); err != nil {
		return fmt.Errorf("trim rate history: %w", err)
	}
	return nil
}

// Get24hRateChange compares the current rate with the one stored closest to
// 24h ago, within 30s either side. It is 0 when either side is unknown.
func (s *Service) Get24hRateChange(ctx context.Context) (float64, error) {
	target := s.now().Add(-rateLookback)
	lo := float64(target.Add(-rateMatchWindow).UnixMilli())
	hi := float64(target.Add(rateMatchWindow).UnixMilli())
	members, err := s.store.ZRangeByScore(ctx, RateHistoryKey, lo, hi)
	if err != nil {
		return 0, fmt.Errorf("read rate history: %w", err)
	}
	if len(members) == 0 {
		return 0, nil
	}
	var old RatePoint
	if err := json.Unmarshal([]byte(members[0].Member), &old); err != nil || old.Rate <= 0 {
		return 0, nil
	}
	current := s.source.ExchangeRate(ctx)
	if current <= 0 {
		return 0, nil
	}
	return ((current - old.Rate) / old.Rate) * 100, nil
}

// CalculateMarketStats totals market cap and 24h sale volume over every cached
// record, caches the result for five minutes and hands a snapshot to the sink.
func (s *Service) CalculateMarketStats(ctx context.Context) (MarketStats, error) {
	var st MarketStats
	rate := s.source.ExchangeRate(ctx)
	height := upstream.Height(ctx, s.source)
	var cutoff uint64
	if height > 0 {
		cutoff = loader.Cutoff(height, loader.ReferenceTimeframe)
	}

	var tokens []TokenSnapshot
	for _, f := range market.Families {
		prefix := market.TokenKey(f, "")
		keys, err := s.store.Scan(ctx, prefix+"*")
		if err != nil {
			return st, fmt.Errorf("scan %s records: %w", f, err)
		}
		for _, k := range keys {
			key := strings.TrimPrefix(k, prefix)
			rec, err := s.records.Get(ctx, f, key)
			if err != nil {
				s.logger.Warn("skipping unreadable record", zap.String("key", k), zap.Error(err))
				continue
			}
			if rec == nil {
				continue
			}
			if f == market.BSV20 {
				st.Assets.BSV20++
			} else {
				st.Assets.BSV21++
			}
			st.TotalMarketCapBSV += rec.MarketCap

			if height > 0 {
				sales, err := s.records.SalesSince(ctx, f, key, cutoff)
				if err != nil {
					return st, err
				}
				for _, sale := range sales {
					st.TotalVolume24hBSV += sale.Price.Float64()
				}
			}
			tokens = append(tokens, TokenSnapshot{
				Family:    f,
				Key:       key,
				Price:     rec.Price,
				MarketCap: rec.MarketCap,
				PctChange: rec.PctChange,
				Holders:   rec.Accounts,
			})
		}
	}
	st.TotalMarketCapUSD = st.TotalMarketCapBSV * rate
	st.TotalVolume24hUSD = st.TotalVolume24hBSV * rate

	b, err := json.Marshal(st)
	if err != nil {
		return st, err
	}
	if err := s.store.Set(ctx, MarketStatsKey, string(b), marketStatsTTL); err != nil {
		return st, fmt.Errorf("cache market stats: %w", err)
	}
	s.logger.Info("market stats updated",
		zap.Int("bsv20_count", st.Assets.BSV20),
		zap.Int("bsv21_count", st.Assets.BSV21),
		zap.Float64("total_market_cap_bsv", st.TotalMarketCapBSV),
	)

	if s.sink != nil {
		snap := Snapshot{At: s.now(), Rate: rate, Height: height, Stats: st, Tokens: tokens}
		if err := s.sink.WriteSnapshot(ctx, snap); err != nil {
			s.logger.Warn("history sink write failed", zap.Error(err))
		}
	}
	return st, nil
}

// CachedMarketStats returns the last computed stats, if still cached.
func (s *Service) CachedMarketStats(ctx context.Context) (*MarketStats, error) {
	raw, ok, err := s.store.Get(ctx, MarketStatsKey)
	if err != nil || !ok {
		return nil, err
	}
	var st MarketStats
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return nil, nil
	}
	return &st, nil
}

// Status assembles chain, rate, indexer and market information. Each part
// degrades to its zero value independently.
func (s *Service) Status(ctx context.Context) (*Status, error) {
	now := s.now()
	out := &Status{
		ChainInfo:    s.source.ChainTip(ctx),
		ExchangeRate: s.source.ExchangeRate(ctx),
		Indexers:     s.source.IndexerStats(ctx),
		Timestamp:    now.UTC(),
	}
	if out.ChainInfo != nil {
		out.Height = out.ChainInfo.Blocks
	}
	if out.Indexers == nil {
		out.Indexers = map[string]uint64{}
	}

	st, err := s.CachedMarketStats(ctx)
	if err != nil {
		s.logger.Warn("read cached market stats", zap.Error(err))
	}
	if st == nil {
		computed, err := s.CalculateMarketStats(ctx)
		if err != nil {
			s.logger.Warn("compute market stats", zap.Error(err))
		}
		st = &computed
	}
	out.Market.MarketStats = *st

	change, err := s.Get24hRateChange(ctx)
	if err != nil {
		s.logger.Warn("rate change unavailable", zap.Error(err))
	}
	out.Market.BsvUsd = BsvUsd{
		Rate:      out.ExchangeRate,
		Timestamp: now.UTC(),
		Source:    RateSource,
		Change24h: change,
	}
	if raw, ok, err := s.store.Get(ctx, CurrentRateKey); err == nil && ok {
		var p RatePoint
		if json.Unmarshal([]byte(raw), &p) == nil && p.Timestamp > 0 {
			out.Market.BsvUsd.Timestamp = time.UnixMilli(p.Timestamp).UTC()
		}
	}
	return out, nil
}
