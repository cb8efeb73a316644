// Package loader builds canonical market records. It fetches token detail and
// per-token collections from the upstream source, merges them onto the cached
// record, recomputes derived fields and publishes an update.
package loader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/1satmarket/marketapi/pkg/cache"
	"github.com/1satmarket/marketapi/pkg/market"
	"github.com/1satmarket/marketapi/pkg/metrics"
	"github.com/1satmarket/marketapi/pkg/upstream"
	"github.com/alitto/pond/v2"
	"go.uber.org/zap"
)

const (
	DefaultSalesSample = 20
	// DefaultRecordWorkers keeps bulk passes sequential across tokens.
	DefaultRecordWorkers = 1
	DefaultFetchWorkers  = 32
	DefaultPctChangeTTL  = 15 * time.Minute
)

// Config tunes the loader.
type Config struct {
	// RecordTTL applies to canonical records. Zero keeps them without expiry.
	RecordTTL     time.Duration
	PctChangeTTL  time.Duration
	SalesSample   int
	RecordWorkers int
	FetchWorkers  int
}

// Result summarizes one Load call.
type Result struct {
	Loaded  int
	Skipped int
	Failed  int
	Records []market.Record
}

var errSkipped = errors.New("detail unavailable")

type Loader struct {
	store   cache.Store
	records *Records
	tracker *Tracker
	source  upstream.Source
	logger  *zap.Logger
	cfg     Config

	recordPool pond.Pool
	fetchPool  pond.Pool
	locks      *keyedLocks
	now        func() time.Time
}

func New(store cache.Store, source upstream.Source, cfg Config, logger *zap.Logger) *Loader {
	if cfg.SalesSample <= 0 {
		cfg.SalesSample = DefaultSalesSample
	}
	if cfg.RecordWorkers <= 0 {
		cfg.RecordWorkers = DefaultRecordWorkers
	}
	if cfg.FetchWorkers <= 0 {
		cfg.FetchWorkers = DefaultFetchWorkers
	}
	if cfg.PctChangeTTL <= 0 {
		cfg.PctChangeTTL = DefaultPctChangeTTL
	}
	return &Loader{
		store:      store,
		records:    NewRecords(store),
		tracker:    NewTracker(store, cfg.PctChangeTTL),
		source:     source,
		logger:     logger.Named("loader"),
		cfg:        cfg,
		recordPool: pond.NewPool(cfg.RecordWorkers),
		fetchPool:  pond.NewPool(cfg.FetchWorkers),
		locks:      newKeyedLocks(),
		now:        time.Now,
	}
}

// Records exposes the collection accessors the loader writes through.
func (l *Loader) Records() *Records { return l.records }

// Stop waits for in-flight work and releases the worker pools.
func (l *Loader) Stop() {
	l.recordPool.StopAndWait()
	l.fetchPool.StopAndWait()
}

// Load refreshes every stub in parallel. Stubs whose detail fetch yields
// nothing are skipped; the rest are merged onto their cached record and
// written back. Records that fail on a cache error are counted and logged
// without aborting the batch.
func (l *Loader) Load(ctx context.Context, f market.Family, stubs []market.Stub, height uint64) Result {
	var loaded, skipped, failed atomic.Int32
	out := make([]*market.Record, len(stubs))

	group := l.recordPool.NewGroupContext(ctx)
	groupCtx := group.Context()
	for i := range stubs {
		i := i
		group.Submit(func() {
			if groupCtx.Err() != nil {
				failed.Add(1)
				return
			}
			start := time.Now()
			rec, err := l.loadRecord(groupCtx, f, stubs[i].Key(f), &stubs[i], height)
			metrics.LoaderLatency.WithLabelValues(string(f)).Observe(time.Since(start).Seconds())
			switch {
			case errors.Is(err, errSkipped):
				skipped.Add(1)
				metrics.LoaderRecordsSkipped.WithLabelValues(string(f)).Inc()
			case err != nil:
				failed.Add(1)
				metrics.LoaderErrors.WithLabelValues(string(f)).Inc()
				l.logger.Warn("failed to load record",
					zap.String("family", string(f)),
					zap.String("key", stubs[i].Key(f)),
					zap.Error(err),
				)
			default:
				loaded.Add(1)
				metrics.LoaderRecordsWritten.WithLabelValues(string(f)).Inc()
				out[i] = rec
			}
		})
	}
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, pond.ErrGroupStopped) {
		l.logger.Warn("load group encountered error", zap.String("family", string(f)), zap.Error(err))
	}

	res := Result{Loaded: int(loaded.Load()), Skipped: int(skipped.Load()), Failed: int(failed.Load())}
	for _, rec := range out {
		if rec != nil {
			res.Records = append(res.Records, *rec)
		}
	}
	l.logger.Debug("load complete",
		zap.String("family", string(f)),
		zap.Int("loaded", res.Loaded),
		zap.Int("skipped", res.Skipped),
		zap.Int("failed", res.Failed),
	)
	return res
}

// LoadOne refreshes a single token by key. It returns nil without error when
// the upstream has no detail for it.
func (l *Loader) LoadOne(ctx context.Context, f market.Family, key string, height uint64) (*market.Record, error) {
	rec, err := l.loadRecord(ctx, f, market.NormalizeKey(key), nil, height)
	if errors.Is(err, errSkipped) {
		metrics.LoaderRecordsSkipped.WithLabelValues(string(f)).Inc()
		return nil, nil
	}
	if err != nil {
		metrics.LoaderErrors.WithLabelValues(string(f)).Inc()
		return nil, err
	}
	metrics.LoaderRecordsWritten.WithLabelValues(string(f)).Inc()
	return rec, nil
}

// Patch layers stub onto the cached record without asking the upstream for
// detail. Derived fields are recomputed from the cached sales and the cached
// percent change. It returns nil when the token is not cached.
func (l *Loader) Patch(ctx context.Context, f market.Family, stub *market.Stub) (*market.Record, error) {
	key := stub.Key(f)
	if key == "" {
		return nil, nil
	}
	unlock := l.locks.lock(f, key)
	defer unlock()

	base, err := l.records.Get(ctx, f, key)
	if err != nil || base == nil {
		return nil, err
	}
	rec := market.Merge(base, stub)

	sales, err := l.records.RecentSales(ctx, f, key, l.cfg.SalesSample)
	if err != nil {
		return nil, err
	}
	pct, ok, err := l.tracker.GetPctChange(ctx, f, key)
	if err != nil {
		return nil, fmt.Errorf("read pct change: %w", err)
	}
	if !ok {
		pct = base.PctChange
	}
	market.Derive(&rec, sales, pct)

	if rec.Included {
		if err := l.records.AddIncluded(ctx, f, key, l.now()); err != nil {
			return nil, err
		}
	}
	if err := l.records.Put(ctx, f, &rec, l.cfg.RecordTTL); err != nil {
		return nil, fmt.Errorf("write record: %w", err)
	}
	metrics.LoaderRecordsWritten.WithLabelValues(string(f)).Inc()
	l.publish(ctx, f, key, &rec)
	return &rec, nil
}

func (l *Loader) loadRecord(ctx context.Context, f market.Family, key string, stub *market.Stub, height uint64) (*market.Record, error) {
	if key == "" {
		return nil, errSkipped
	}
	unlock := l.locks.lock(f, key)
	defer unlock()

	detail := l.source.TokenDetail(ctx, f, key)
	if detail == nil {
		return nil, errSkipped
	}
	base, err := l.records.Get(ctx, f, key)
	if err != nil {
		return nil, err
	}
	rec := market.Merge(base, detail, stub)

	extra, err := l.fetchCollections(ctx, f, key, &rec)
	if err != nil {
		return nil, err
	}
	rec = market.Merge(&rec, extra...)

	sales, err := l.records.RecentSales(ctx, f, key, l.cfg.SalesSample)
	if err != nil {
		return nil, err
	}
	pct, err := l.tracker.SetPctChange(ctx, f, key, sales, height)
	if err != nil {
		return nil, fmt.Errorf("cache pct change: %w", err)
	}
	market.Derive(&rec, sales, pct)

	entry, err := l.records.Autofill(ctx, f, key)
	if err != nil {
		return nil, err
	}
	if entry != nil {
		rec.Num = entry.Num
	}

	if err := l.records.Put(ctx, f, &rec, l.cfg.RecordTTL); err != nil {
		return nil, fmt.Errorf("write record: %w", err)
	}
	l.publish(ctx, f, key, &rec)
	return &rec, nil
}

// fetchCollections runs the per-token sub-fetches concurrently. Sales and
// listings are written to their collections; holders and contract metadata
// come back as merge layers.
func (l *Loader) fetchCollections(ctx context.Context, f market.Family, key string, rec *market.Record) ([]*market.Stub, error) {
	var (
		holders  []market.Holder
		contract *market.ContractInfo
		errs     [3]error
	)
	group := l.fetchPool.NewGroupContext(ctx)
	groupCtx := group.Context()

	group.Submit(func() {
		if sales := l.source.Sales(groupCtx, f, key); len(sales) > 0 {
			errs[0] = l.records.AddSales(groupCtx, f, key, sales)
		}
	})
	group.Submit(func() {
		// nil means the fetch failed and the previous snapshot stays.
		if listings := l.source.Listings(groupCtx, f, key); listings != nil {
			errs[1] = l.records.ReplaceListings(groupCtx, f, key, listings)
		}
	})
	if len(rec.Holders) == 0 {
		group.Submit(func() {
			holders = l.source.Holders(groupCtx, f, key)
		})
	}
	if f == market.BSV21 && rec.Contract != "" {
		id := rec.ID
		if id == "" {
			id = key
		}
		group.Submit(func() {
			contract = l.source.ContractInfo(groupCtx, id)
		})
	}
	if rec.Included {
		group.Submit(func() {
			errs[2] = l.records.AddIncluded(groupCtx, f, key, l.now())
		})
	}
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, pond.ErrGroupStopped) {
		return nil, err
	}
	if err := errors.Join(errs[:]...); err != nil {
		return nil, err
	}

	var layers []*market.Stub
	if len(holders) > 0 {
		layers = append(layers, &market.Stub{Holders: holders})
	}
	if s := contract.Stub(); s != nil {
		layers = append(layers, s)
	}
	return layers, nil
}

func (l *Loader) publish(ctx context.Context, f market.Family, key string, rec *market.Record) {
	b, err := json.Marshal(market.Update{
		Family:    f,
		Key:       key,
		Price:     rec.Price,
		MarketCap: rec.MarketCap,
		PctChange: rec.PctChange,
		Timestamp: l.now().UnixMilli(),
	})
	if err != nil {
		return
	}
	l.store.Publish(ctx, market.UpdatedChannel(f), string(b))
}
