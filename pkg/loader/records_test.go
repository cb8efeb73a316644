package loader

import (
	"context"
	"testing"
	"time"

	"github.com/1satmarket/marketapi/pkg/cache/cachetest"
	"github.com/1satmarket/marketapi/pkg/market"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordsRoundTripAndTTL(t *testing.T) {
	ctx := context.Background()
	store := cachetest.New(t)
	r := NewRecords(store)

	got, err := r.Get(ctx, market.BSV20, "ordi")
	require.NoError(t, err)
	assert.Nil(t, got, "a miss is not an error")

	rec := &market.Record{Tick: "ORDI", Max: "21000000", Price: 5}
	require.NoError(t, r.Put(ctx, market.BSV20, rec, time.Hour))
	assert.Equal(t, time.Hour, store.TTL("token-bsv20-ordi"))

	got, err = r.Get(ctx, market.BSV20, "ORDI")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, *rec, *got)

	require.NoError(t, r.Put(ctx, market.BSV20, rec, 0))
	assert.Zero(t, store.TTL("token-bsv20-ordi"), "zero ttl keeps the record without expiry")
}

func TestRecordsListingsSortedByPricePer(t *testing.T) {
	ctx := context.Background()
	r := NewRecords(cachetest.New(t))

	require.NoError(t, r.ReplaceListings(ctx, market.BSV20, "ordi", []market.Listing{
		{Txid: "a", Vout: 0, PricePer: "10"},
		{Txid: "b", Vout: 1, PricePer: "2.5"},
		{Txid: "c", Vout: 0, PricePer: "7"},
	}))

	ls, err := r.Listings(ctx, market.BSV20, "ordi")
	require.NoError(t, err)
	require.Len(t, ls, 3)
	assert.Equal(t, []string{"b_1", "c_0", "a_0"}, []string{ls[0].Ref(), ls[1].Ref(), ls[2].Ref()})

	require.NoError(t, r.RemoveListing(ctx, market.BSV20, "ordi", "c_0"))
	n, err := r.ListingCount(ctx, market.BSV20, "ordi")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	require.NoError(t, r.UpsertListing(ctx, market.BSV20, "ordi", market.Listing{Txid: "d", PricePer: "1"}))
	one, err := r.Listing(ctx, market.BSV20, "ordi", "d_0")
	require.NoError(t, err)
	require.NotNil(t, one)
	assert.Equal(t, market.Amount("1"), one.PricePer)
}

func TestRecordsRecentSalesPendingFirst(t *testing.T) {
	ctx := context.Background()
	r := NewRecords(cachetest.New(t))

	require.NoError(t, r.AddSales(ctx, market.BSV21, "abc_0", []market.Listing{
		{Txid: "old", PricePer: "1", SpendHeight: 10},
		{Txid: "new", PricePer: "2", SpendHeight: 20},
		{Txid: "mempool", PricePer: "3"},
	}))

	sales, err := r.RecentSales(ctx, market.BSV21, "abc_0", 2)
	require.NoError(t, err)
	require.Len(t, sales, 2)
	assert.Equal(t, "mempool", sales[0].Txid)
	assert.Equal(t, "new", sales[1].Txid)

	// Once mined, the sale moves to its height.
	require.NoError(t, r.AddSales(ctx, market.BSV21, "abc_0", []market.Listing{
		{Txid: "mempool", PricePer: "3", SpendHeight: 15},
	}))
	sales, err = r.RecentSales(ctx, market.BSV21, "abc_0", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"new", "mempool", "old"}, []string{sales[0].Txid, sales[1].Txid, sales[2].Txid})
}

func TestRecordsIncludedKeepsFirstSeen(t *testing.T) {
	ctx := context.Background()
	r := NewRecords(cachetest.New(t))

	t0 := time.UnixMilli(1000)
	require.NoError(t, r.AddIncluded(ctx, market.BSV20, "b", t0))
	require.NoError(t, r.AddIncluded(ctx, market.BSV20, "a", t0.Add(time.Second)))
	require.NoError(t, r.AddIncluded(ctx, market.BSV20, "B", t0.Add(time.Hour)))

	keys, err := r.IncludedPage(ctx, market.BSV20, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, keys)
}

func TestRecordsAutofill(t *testing.T) {
	ctx := context.Background()
	r := NewRecords(cachetest.New(t))

	require.NoError(t, r.PutAutofill(ctx, market.BSV20, []market.AutofillEntry{
		{Tick: "ORDI", ID: "ORDI", Type: market.BSV20, Num: 1},
		{Tick: "ORDX", ID: "ORDX", Type: market.BSV20, Num: 2},
		{Tick: "PEPE", ID: "PEPE", Type: market.BSV20, Num: 3},
	}))

	e, err := r.Autofill(ctx, market.BSV20, "ordi")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, 1, e.Num)

	matched, err := r.MatchAutofill(ctx, market.BSV20, "ord*")
	require.NoError(t, err)
	require.Len(t, matched, 2)
	assert.Equal(t, "ORDI", matched[0].Tick)
	assert.Equal(t, "ORDX", matched[1].Tick)
}

func TestRecordsSalesSince(t *testing.T) {
	ctx := context.Background()
	r := NewRecords(cachetest.New(t))

	require.NoError(t, r.AddSales(ctx, market.BSV20, "ordi", []market.Listing{
		{Txid: "old", Price: "1", SpendHeight: 10},
		{Txid: "edge", Price: "2", SpendHeight: 100},
		{Txid: "mempool", Price: "3"},
	}))

	sales, err := r.SalesSince(ctx, market.BSV20, "ordi", 100)
	require.NoError(t, err)
	require.Len(t, sales, 2)
	assert.Equal(t, "edge", sales[0].Txid)
	assert.Equal(t, "mempool", sales[1].Txid)
}

func TestRecordsAddSalesKeepsNewest(t *testing.T) {
	ctx := context.Background()
	store := cachetest.New(t)
	r := NewRecords(store)
	r.maxSales = 3

	require.NoError(t, r.AddSales(ctx, market.BSV20, "ordi", []market.Listing{
		{Txid: "h1", PricePer: "1", SpendHeight: 1},
		{Txid: "h2", PricePer: "2", SpendHeight: 2},
		{Txid: "pending", PricePer: "9"},
	}))
	require.NoError(t, r.AddSales(ctx, market.BSV20, "ordi", []market.Listing{
		{Txid: "h3", PricePer: "3", SpendHeight: 3},
		{Txid: "h4", PricePer: "4", SpendHeight: 4},
	}))

	n, err := store.ZCard(ctx, market.SalesKey(market.BSV20, "ordi"))
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	bodies, err := store.HLen(ctx, market.SaleBodiesKey(market.BSV20, "ordi"))
	require.NoError(t, err)
	assert.Equal(t, int64(3), bodies, "trimmed sales lose their bodies too")

	sales, err := r.RecentSales(ctx, market.BSV20, "ordi", 10)
	require.NoError(t, err)
	var txids []string
	for _, s := range sales {
		txids = append(txids, s.Txid)
	}
	assert.Equal(t, []string{"pending", "h4", "h3"}, txids)
}
