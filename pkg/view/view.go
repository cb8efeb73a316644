// Package view serves the read side: market lists, token detail, search and
// autofill. It only reads the cache, except that a detail miss asks the
// loader for the token.
package view

import (
	"context"
	"strings"

	"github.com/1satmarket/marketapi/pkg/loader"
	"github.com/1satmarket/marketapi/pkg/market"
	"github.com/1satmarket/marketapi/pkg/upstream"
	"github.com/1satmarket/marketapi/pkg/utils"
	"go.uber.org/zap"
)

const (
	DefaultListLimit   = 20
	MaxListLimit       = 100
	DefaultSearchLimit = 20
	DetailSalesLimit   = 20
	// detailMatchLimit bounds the prefix fallback of Detail.
	detailMatchLimit = 20
)

type Service struct {
	loader  *loader.Loader
	records *loader.Records
	source  upstream.Source
	logger  *zap.Logger
}

// New returns a Service. source should be the cached adapter; it supplies
// the exchange rate and chain height.
func New(ld *loader.Loader, source upstream.Source, logger *zap.Logger) *Service {
	return &Service{
		loader:  ld,
		records: ld.Records(),
		source:  source,
		logger:  logger.Named("view"),
	}
}

// List returns one page of included tokens that have open listings, ordered
// within the page.
func (s *Service) List(ctx context.Context, f market.Family, p ListParams) ([]MarketItem, error) {
	if p.Limit <= 0 {
		p.Limit = DefaultListLimit
	}
	if p.Limit > MaxListLimit {
		p.Limit = MaxListLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	keys, err := s.records.IncludedPage(ctx, f, p.Offset, p.Limit)
	if err != nil {
		return nil, err
	}

	records := make([]market.Record, 0, len(keys))
	for _, key := range keys {
		rec, err := s.records.Get(ctx, f, key)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			continue
		}
		n, err := s.records.ListingCount(ctx, f, key)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			continue
		}
		records = append(records, *rec)
	}
	market.SortRecords(records, p.Sort, p.Desc)
	return s.WithQuotes(ctx, records), nil
}

// Detail returns the token addressed by id with its listings and recent
// sales. A miss, or refresh, loads it first. When the token is still unknown
// the autofill entries starting with id are served instead, largest market cap
// first.
func (s *Service) Detail(ctx context.Context, f market.Family, id string, refresh bool) ([]MarketItem, error) {
	key := market.NormalizeKey(id)
	if key == "" {
		return []MarketItem{}, nil
	}
	rec, err := s.records.Get(ctx, f, key)
	if err != nil {
		return nil, err
	}
	if rec == nil || refresh {
		loaded, err := s.loader.LoadOne(ctx, f, key, upstream.Height(ctx, s.source))
		if err != nil {
			s.logger.Warn("detail load failed", zap.String("family", string(f)), zap.String("key", key), zap.Error(err))
		}
		if loaded != nil {
			rec = loaded
		}
	}

	var records []market.Record
	if rec != nil {
		records = append(records, *rec)
	} else {
		entries, err := s.records.MatchAutofill(ctx, f, utils.EscapeGlob(key)+"*")
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if len(records) == detailMatchLimit {
				break
			}
			r, err := s.records.Get(ctx, f, e.ID)
			if err != nil {
				return nil, err
			}
			if r != nil {
				records = append(records, *r)
			}
		}
	}
	market.SortRecords(records, market.SortMarketCap, true)

	items := s.WithQuotes(ctx, records)
	for i := range items {
		k := items[i].Key()
		if items[i].Listings, err = s.records.Listings(ctx, f, k); err != nil {
			return nil, err
		}
		if items[i].Sales, err = s.records.RecentSales(ctx, f, k, DetailSalesLimit); err != nil {
			return nil, err
		}
	}
	return items, nil
}

// Mint is Detail restricted to tokens that can still be minted.
func (s *Service) Mint(ctx context.Context, f market.Family, id string) ([]MarketItem, error) {
	items, err := s.Detail(ctx, f, id, false)
	if err != nil {
		return nil, err
	}
	out := items[:0]
	for _, it := range items {
		if it.Supply != "" && it.Max != "" && it.Supply.Decimal().Equal(it.Max.Decimal()) {
			continue
		}
		out = append(out, it)
	}
	return out, nil
}

// Autofill returns the autofill entries whose key starts with prefix, by rank.
func (s *Service) Autofill(ctx context.Context, f market.Family, prefix string, limit int) ([]market.AutofillEntry, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	entries, err := s.records.MatchAutofill(ctx, f, utils.EscapeGlob(market.NormalizeKey(prefix))+"*")
	if err != nil {
		return nil, err
	}
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// Search ranks cached tokens of the given families by name relevance to term.
// bsv20 names are the autofill keys; bsv21 names are symbols, so every
// bsv21 entry is checked against its symbol.
func (s *Service) Search(ctx context.Context, term string, families []market.Family, limit int) ([]SearchResult, error) {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return []SearchResult{}, nil
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	if len(families) == 0 {
		families = market.Families
	}

	var candidates []market.Scored
	for _, f := range families {
		match := "*" + utils.EscapeGlob(term) + "*"
		if f == market.BSV21 {
			match = "*"
		}
		entries, err := s.records.MatchAutofill(ctx, f, match)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if market.Relevance(term, e.Tick) == 0 {
				continue
			}
			rec, err := s.records.Get(ctx, f, e.ID)
			if err != nil {
				return nil, err
			}
			if rec != nil {
				candidates = append(candidates, market.Scored{Record: *rec, Family: f})
			}
		}
	}

	ranked := market.RankByRelevance(term, candidates, limit)
	rate := s.source.ExchangeRate(ctx)
	out := make([]SearchResult, 0, len(ranked))
	for _, r := range ranked {
		res := SearchResult{
			Type:      r.Family,
			ID:        r.Record.Key(),
			Name:      r.Record.Name(),
			Tick:      r.Record.Tick,
			Sym:       r.Record.Sym,
			Icon:      r.Record.Icon,
			Price:     r.Record.Price,
			MarketCap: r.Record.MarketCap,
			Holders:   r.Record.Accounts,
			Score:     r.Score,
		}
		if rate > 0 {
			res.PriceUSD = res.Price * rate
			res.MarketCapUSD = res.MarketCap * rate
		}
		out = append(out, res)
	}
	return out, nil
}

// WithQuotes annotates records with BSV and USD quotes. Without a rate the
// records are returned unannotated.
func (s *Service) WithQuotes(ctx context.Context, records []market.Record) []MarketItem {
	rate := s.source.ExchangeRate(ctx)
	items := make([]MarketItem, 0, len(records))
	for _, r := range records {
		items = append(items, MarketItem{Record: r, Quotes: QuotesFor(r, rate)})
	}
	return items
}

// QuotesFor prices r in BSV and USD, or returns nil without a rate.
func QuotesFor(r market.Record, rate float64) *Quotes {
	if rate <= 0 {
		return nil
	}
	bsvCap, usdCap := r.MarketCap, r.MarketCap*rate
	return &Quotes{
		BSV: Quote{Price: r.Price, MarketCap: &bsvCap},
		USD: Quote{Price: r.Price * rate, MarketCap: &usdCap},
	}
}
