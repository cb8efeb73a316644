package loader

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/1satmarket/marketapi/pkg/cache"
	"github.com/1satmarket/marketapi/pkg/market"
)

// DefaultMaxSales is how many sales are kept per token.
const DefaultMaxSales = 1000

// Records reads and writes the per-token collections: canonical records,
// listings, sales, the autofill index and the included index.
type Records struct {
	store    cache.Store
	maxSales int64
}

func NewRecords(store cache.Store) *Records {
	return &Records{store: store, maxSales: DefaultMaxSales}
}

// Store exposes the backing store.
func (r *Records) Store() cache.Store {
	return r.store
}

// Get returns the canonical record, or nil when it is not cached.
func (r *Records) Get(ctx context.Context, f market.Family, key string) (*market.Record, error) {
	raw, ok, err := r.store.Get(ctx, market.TokenKey(f, key))
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	if !ok {
		return nil, nil
	}
	var rec market.Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("decode record %s/%s: %w", f, key, err)
	}
	return &rec, nil
}

// Put writes the canonical record. ttl of zero keeps it without expiry.
func (r *Records) Put(ctx context.Context, f market.Family, rec *market.Record, ttl time.Duration) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return r.store.Set(ctx, market.TokenKey(f, rec.Key()), string(b), ttl)
}

// Listings returns the open listings for a token, cheapest first.
func (r *Records) Listings(ctx context.Context, f market.Family, key string) ([]market.Listing, error) {
	raw, err := r.store.HGetAll(ctx, market.ListingsKey(f, key))
	if err != nil {
		return nil, fmt.Errorf("get listings: %w", err)
	}
	out := make([]market.Listing, 0, len(raw))
	for _, v := range raw {
		var l market.Listing
		if json.Unmarshal([]byte(v), &l) == nil {
			out = append(out, l)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].PricePer.Decimal(), out[j].PricePer.Decimal()
		if !a.Equal(b) {
			return a.LessThan(b)
		}
		return out[i].Ref() < out[j].Ref()
	})
	return out, nil
}

func (r *Records) ListingCount(ctx context.Context, f market.Family, key string) (int64, error) {
	return r.store.HLen(ctx, market.ListingsKey(f, key))
}

// Listing looks up one open listing by txid_vout.
func (r *Records) Listing(ctx context.Context, f market.Family, key, ref string) (*market.Listing, error) {
	raw, ok, err := r.store.HGet(ctx, market.ListingsKey(f, key), ref)
	if err != nil || !ok {
		return nil, err
	}
	var l market.Listing
	if err := json.Unmarshal([]byte(raw), &l); err != nil {
		return nil, fmt.Errorf("decode listing %s: %w", ref, err)
	}
	return &l, nil
}

// ReplaceListings swaps the listings snapshot for the given set.
func (r *Records) ReplaceListings(ctx context.Context, f market.Family, key string, listings []market.Listing) error {
	values, err := encodeByRef(listings)
	if err != nil {
		return err
	}
	return r.store.ReplaceHash(ctx, market.ListingsKey(f, key), values)
}

func (r *Records) UpsertListing(ctx context.Context, f market.Family, key string, l market.Listing) error {
	values, err := encodeByRef([]market.Listing{l})
	if err != nil {
		return err
	}
	return r.store.HSet(ctx, market.ListingsKey(f, key), values)
}

func (r *Records) RemoveListing(ctx context.Context, f market.Family, key, ref string) error {
	return r.store.HDel(ctx, market.ListingsKey(f, key), ref)
}

// AddSales records executed sales. Re-adding a sale updates its score, so a
// pending sale moves to its mined height once reported. Only the newest
// sales are kept.
func (r *Records) AddSales(ctx context.Context, f market.Family, key string, sales []market.Listing) error {
	if len(sales) == 0 {
		return nil
	}
	values, err := encodeByRef(sales)
	if err != nil {
		return err
	}
	members := make([]cache.Member, 0, len(sales))
	for _, s := range sales {
		members = append(members, cache.Member{Score: s.SaleScore(), Member: s.Ref()})
	}
	if err := r.store.HSet(ctx, market.SaleBodiesKey(f, key), values); err != nil {
		return fmt.Errorf("store sale bodies: %w", err)
	}
	if err := r.store.ZAdd(ctx, market.SalesKey(f, key), members...); err != nil {
		return fmt.Errorf("index sales: %w", err)
	}
	return r.trimSales(ctx, f, key)
}

// trimSales drops the oldest sales beyond maxSales from the index and the
// body hash. Unconfirmed sales score highest and are never trimmed first.
func (r *Records) trimSales(ctx context.Context, f market.Family, key string) error {
	n, err := r.store.ZCard(ctx, market.SalesKey(f, key))
	if err != nil {
		return fmt.Errorf("count sales: %w", err)
	}
	if n <= r.maxSales {
		return nil
	}
	oldest, err := r.store.ZRange(ctx, market.SalesKey(f, key), 0, n-r.maxSales-1)
	if err != nil || len(oldest) == 0 {
		return err
	}
	if err := r.store.ZRem(ctx, market.SalesKey(f, key), oldest...); err != nil {
		return fmt.Errorf("trim sales index: %w", err)
	}
	if err := r.store.HDel(ctx, market.SaleBodiesKey(f, key), oldest...); err != nil {
		return fmt.Errorf("trim sale bodies: %w", err)
	}
	return nil
}

// RecentSales returns up to n sales, most recent first. Unconfirmed sales lead.
func (r *Records) RecentSales(ctx context.Context, f market.Family, key string, n int) ([]market.Listing, error) {
	if n <= 0 {
		return nil, nil
	}
	refs, err := r.store.ZRevRange(ctx, market.SalesKey(f, key), 0, int64(n-1))
	if err != nil {
		return nil, fmt.Errorf("read sales index: %w", err)
	}
	out := make([]market.Listing, 0, len(refs))
	for _, ref := range refs {
		raw, ok, err := r.store.HGet(ctx, market.SaleBodiesKey(f, key), ref)
		if err != nil {
			return nil, fmt.Errorf("read sale %s: %w", ref, err)
		}
		if !ok {
			continue
		}
		var s market.Listing
		if json.Unmarshal([]byte(raw), &s) == nil {
			out = append(out, s)
		}
	}
	return out, nil
}

// SalesSince returns every sale at or above minHeight, unconfirmed ones
// included, oldest first.
func (r *Records) SalesSince(ctx context.Context, f market.Family, key string, minHeight uint64) ([]market.Listing, error) {
	members, err := r.store.ZRangeByScore(ctx, market.SalesKey(f, key), float64(minHeight), math.Inf(1))
	if err != nil {
		return nil, fmt.Errorf("read sales index: %w", err)
	}
	if len(members) == 0 {
		return nil, nil
	}
	bodies, err := r.store.HGetAll(ctx, market.SaleBodiesKey(f, key))
	if err != nil {
		return nil, fmt.Errorf("read sale bodies: %w", err)
	}
	out := make([]market.Listing, 0, len(members))
	for _, m := range members {
		raw, ok := bodies[m.Member]
		if !ok {
			continue
		}
		var s market.Listing
		if json.Unmarshal([]byte(raw), &s) == nil {
			out = append(out, s)
		}
	}
	return out, nil
}

// AddIncluded adds key to the included index unless it is already there.
func (r *Records) AddIncluded(ctx context.Context, f market.Family, key string, at time.Time) error {
	return r.store.ZAddNX(ctx, market.IncludedKey(f), cache.Member{
		Score:  float64(at.UnixMilli()),
		Member: market.NormalizeKey(key),
	})
}

// IncludedPage returns included keys in first-observed order.
func (r *Records) IncludedPage(ctx context.Context, f market.Family, offset, limit int) ([]string, error) {
	if limit <= 0 {
		return []string{}, nil
	}
	return r.store.ZRange(ctx, market.IncludedKey(f), int64(offset), int64(offset+limit-1))
}

// Autofill returns the autofill entry for key.
func (r *Records) Autofill(ctx context.Context, f market.Family, key string) (*market.AutofillEntry, error) {
	raw, ok, err := r.store.HGet(ctx, market.AutofillKey(f), market.NormalizeKey(key))
	if err != nil || !ok {
		return nil, err
	}
	var e market.AutofillEntry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return nil, fmt.Errorf("decode autofill %s: %w", key, err)
	}
	return &e, nil
}

// PutAutofill writes a batch of autofill entries keyed by their normalized id.
func (r *Records) PutAutofill(ctx context.Context, f market.Family, entries []market.AutofillEntry) error {
	values := make(map[string]string, len(entries))
	for _, e := range entries {
		b, err := json.Marshal(e)
		if err != nil {
			return err
		}
		values[market.NormalizeKey(e.ID)] = string(b)
	}
	return r.store.HSet(ctx, market.AutofillKey(f), values)
}

// MatchAutofill returns autofill entries whose key matches a glob pattern.
func (r *Records) MatchAutofill(ctx context.Context, f market.Family, match string) ([]market.AutofillEntry, error) {
	raw, err := r.store.HScan(ctx, market.AutofillKey(f), match)
	if err != nil {
		return nil, fmt.Errorf("scan autofill: %w", err)
	}
	out := make([]market.AutofillEntry, 0, len(raw))
	for _, v := range raw {
		var e market.AutofillEntry
		if json.Unmarshal([]byte(v), &e) == nil {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Num != out[j].Num {
			return out[i].Num < out[j].Num
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func encodeByRef(ls []market.Listing) (map[string]string, error) {
	values := make(map[string]string, len(ls))
	for _, l := range ls {
		b, err := json.Marshal(l)
		if err != nil {
			return nil, err
		}
		values[l.Ref()] = string(b)
	}
	return values, nil
}
