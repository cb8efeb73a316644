// Package refresh runs the bulk jobs that page the upstream token lists:
// ticker refresh through the detail loader and the autofill name index.
package refresh

import (
	"context"
	"fmt"

	"github.com/1satmarket/marketapi/pkg/loader"
	"github.com/1satmarket/marketapi/pkg/market"
	"github.com/1satmarket/marketapi/pkg/upstream"
	"go.uber.org/zap"
)

const (
	TickerPageSize = 100
	NamesPageSize  = 200
	// maxPages bounds a pass when the upstream keeps returning full pages.
	maxPages = 500
)

type Refresher struct {
	source  upstream.Source
	loader  *loader.Loader
	records *loader.Records
	logger  *zap.Logger
}

func New(source upstream.Source, ld *loader.Loader, logger *zap.Logger) *Refresher {
	return &Refresher{
		source:  source,
		loader:  ld,
		records: ld.Records(),
		logger:  logger.Named("refresh"),
	}
}

// TickersResult reports one FetchTickers pass.
type TickersResult struct {
	Family  market.Family
	Pages   int
	Fetched int
	Height  uint64
	loader.Result
}

// FetchTickers pages the included token list newest first, dedupes it and
// hands the batch to the loader. A failed page ends paging early; whatever was
// collected is still loaded.
func (r *Refresher) FetchTickers(ctx context.Context, f market.Family) (TickersResult, error) {
	res := TickersResult{Family: f}
	included := true
	seen := make(map[string]struct{})
	var batch []market.Stub

	for page := 0; page < maxPages; page++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		stubs := r.source.ListTokens(ctx, f, upstream.ListQuery{
			Limit:    TickerPageSize,
			Offset:   page * TickerPageSize,
			Sort:     "height",
			Dir:      "desc",
			Included: &included,
		})
		if stubs == nil {
			r.logger.Warn("ticker page unavailable", zap.String("family", string(f)), zap.Int("page", page))
			break
		}
		res.Pages++
		for _, s := range stubs {
			key := s.Key(f)
			if key == "" {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			batch = append(batch, s)
		}
		if len(stubs) < TickerPageSize {
			break
		}
	}
	res.Fetched = len(batch)
	if len(batch) == 0 {
		return res, nil
	}

	res.Height = upstream.Height(ctx, r.source)
	res.Result = r.loader.Load(ctx, f, batch, res.Height)
	r.logger.Info("tickers refreshed",
		zap.String("family", string(f)),
		zap.Int("pages", res.Pages),
		zap.Int("fetched", res.Fetched),
		zap.Int("loaded", res.Loaded),
		zap.Int("skipped", res.Skipped),
		zap.Int("failed", res.Failed),
		zap.Uint64("height", res.Height),
	)
	return res, nil
}

// LoadAllNames rebuilds the autofill index for f. bsv20 pages included
// tickers before unincluded ones; num counts up across both passes.
func (r *Refresher) LoadAllNames(ctx context.Context, f market.Family) (int, error) {
	var passes []*bool
	if f == market.BSV20 {
		yes, no := true, false
		passes = []*bool{&yes, &no}
	} else {
		passes = []*bool{nil}
	}

	num := 0
	for _, included := range passes {
		for page := 0; page < maxPages; page++ {
			if err := ctx.Err(); err != nil {
				return num, err
			}
			stubs := r.source.ListTokens(ctx, f, upstream.ListQuery{
				Limit:    NamesPageSize,
				Offset:   page * NamesPageSize,
				Included: included,
			})
			if stubs == nil {
				r.logger.Warn("names page unavailable", zap.String("family", string(f)), zap.Int("page", page))
				break
			}
			entries := make([]market.AutofillEntry, 0, len(stubs))
			for i := range stubs {
				e, ok := autofillEntry(f, &stubs[i])
				if !ok {
					continue
				}
				num++
				e.Num = num
				entries = append(entries, e)
			}
			if len(entries) > 0 {
				if err := r.records.PutAutofill(ctx, f, entries); err != nil {
					return num, fmt.Errorf("write autofill page %d: %w", page, err)
				}
			}
			if len(stubs) < NamesPageSize {
				break
			}
		}
	}
	r.logger.Info("names cached", zap.String("family", string(f)), zap.Int("count", num))
	return num, nil
}

func autofillEntry(f market.Family, s *market.Stub) (market.AutofillEntry, bool) {
	e := market.AutofillEntry{Type: f}
	if s.Icon != nil {
		e.Icon = *s.Icon
	}
	switch {
	case f == market.BSV20 && s.Tick != nil && *s.Tick != "":
		e.Tick, e.ID = *s.Tick, *s.Tick
	case f == market.BSV21 && s.ID != nil && *s.ID != "":
		e.ID = *s.ID
		if s.Sym != nil {
			e.Tick = *s.Sym
		}
	default:
		return e, false
	}
	return e, true
}

// Boot warms the cache: names first so loaded records pick up their num,
// then tickers. Per-family failures are logged; only cancellation stops it.
func (r *Refresher) Boot(ctx context.Context) error {
	for _, f := range market.Families {
		if _, err := r.LoadAllNames(ctx, f); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logger.Error("boot names failed", zap.String("family", string(f)), zap.Error(err))
		}
	}
	for _, f := range market.Families {
		if _, err := r.FetchTickers(ctx, f); err != nil {
			return err
		}
	}
	return nil
}
