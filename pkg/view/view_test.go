package view

import (
	"context"
	"testing"
	"time"

	"github.com/1satmarket/marketapi/pkg/cache/cachetest"
	"github.com/1satmarket/marketapi/pkg/loader"
	"github.com/1satmarket/marketapi/pkg/market"
	"github.com/1satmarket/marketapi/pkg/upstream/upstreamtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func ptr[T any](v T) *T { return &v }

type fixture struct {
	svc *Service
	ld  *loader.Loader
	src *upstreamtest.Fake
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	src := upstreamtest.New()
	src.Rate = 40
	ld := loader.New(cachetest.New(t), src, loader.Config{}, zaptest.NewLogger(t))
	t.Cleanup(ld.Stop)
	return &fixture{svc: New(ld, src, zaptest.NewLogger(t)), ld: ld, src: src}
}

func (fx *fixture) seed(t *testing.T, f market.Family, rec market.Record, listings int, included bool) {
	t.Helper()
	ctx := context.Background()
	r := fx.ld.Records()
	require.NoError(t, r.Put(ctx, f, &rec, 0))
	var ls []market.Listing
	for i := 0; i < listings; i++ {
		ls = append(ls, market.Listing{Txid: rec.Key(), Vout: uint32(i), PricePer: "1"})
	}
	require.NoError(t, r.ReplaceListings(ctx, f, rec.Key(), ls))
	if included {
		require.NoError(t, r.AddIncluded(ctx, f, rec.Key(), time.Now()))
	}
	require.NoError(t, r.PutAutofill(ctx, f, []market.AutofillEntry{{
		Tick: rec.Name(), ID: idOf(rec), Type: f, Num: 1,
	}}))
}

func idOf(r market.Record) string {
	if r.Tick != "" {
		return r.Tick
	}
	return r.ID
}

func TestListDropsUnlistedAndSorts(t *testing.T) {
	fx := newFixture(t)
	fx.seed(t, market.BSV20, market.Record{Tick: "AAA", MarketCap: 10, Price: 1}, 1, true)
	fx.seed(t, market.BSV20, market.Record{Tick: "BBB", MarketCap: 30, Price: 2}, 2, true)
	fx.seed(t, market.BSV20, market.Record{Tick: "EMPTY", MarketCap: 99}, 0, true)
	fx.seed(t, market.BSV20, market.Record{Tick: "HIDDEN", MarketCap: 50}, 1, false)

	items, err := fx.svc.List(context.Background(), market.BSV20, ListParams{Sort: market.SortMarketCap, Desc: true})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "BBB", items[0].Tick)
	assert.Equal(t, "AAA", items[1].Tick)
	require.NotNil(t, items[0].Quotes)
	assert.Equal(t, 80.0, items[0].Quotes.USD.Price)
	assert.Equal(t, 1200.0, *items[0].Quotes.USD.MarketCap)
	assert.Nil(t, items[0].Listings, "lists do not carry listings")
}

func TestListPagesIncludedIndex(t *testing.T) {
	fx := newFixture(t)
	for _, tick := range []string{"A1", "A2", "A3"} {
		fx.seed(t, market.BSV20, market.Record{Tick: tick}, 1, true)
		time.Sleep(2 * time.Millisecond)
	}

	items, err := fx.svc.List(context.Background(), market.BSV20, ListParams{Limit: 2, Offset: 1, Sort: market.SortName})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "A2", items[0].Tick)
	assert.Equal(t, "A3", items[1].Tick)
}

func TestDetailHitAttachesCollections(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	fx.seed(t, market.BSV20, market.Record{Tick: "ORDI", Price: 3}, 2, true)
	require.NoError(t, fx.ld.Records().AddSales(ctx, market.BSV20, "ordi", []market.Listing{{Txid: "s", PricePer: "3", SpendHeight: 9}}))

	items, err := fx.svc.Detail(ctx, market.BSV20, "ORDI", false)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Len(t, items[0].Listings, 2)
	assert.Len(t, items[0].Sales, 1)
	assert.Zero(t, fx.src.Calls("TokenDetail"), "a hit does not touch the upstream")
}

func TestDetailMissLoadsToken(t *testing.T) {
	fx := newFixture(t)
	fx.src.AddToken(market.BSV21, market.Stub{ID: ptr("abc_0"), Sym: ptr("TKN")})

	items, err := fx.svc.Detail(context.Background(), market.BSV21, "abc_0", false)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "TKN", items[0].Sym)
	assert.Equal(t, 1, fx.src.Calls("TokenDetail"))
}

func TestDetailRefreshReloads(t *testing.T) {
	fx := newFixture(t)
	fx.seed(t, market.BSV20, market.Record{Tick: "ORDI", Max: "1"}, 0, false)
	fx.src.AddToken(market.BSV20, market.Stub{Tick: ptr("ORDI"), Max: ptr(market.Amount("21000000"))})

	items, err := fx.svc.Detail(context.Background(), market.BSV20, "ordi", true)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, market.Amount("21000000"), items[0].Max)
}

func TestDetailFallsBackToPrefixMatches(t *testing.T) {
	fx := newFixture(t)
	fx.seed(t, market.BSV20, market.Record{Tick: "PEPE", MarketCap: 5}, 0, false)
	fx.seed(t, market.BSV20, market.Record{Tick: "PEPX", MarketCap: 50}, 0, false)
	fx.seed(t, market.BSV20, market.Record{Tick: "DOGE", MarketCap: 500}, 0, false)

	items, err := fx.svc.Detail(context.Background(), market.BSV20, "pep", false)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "PEPX", items[0].Tick)
	assert.Equal(t, "PEPE", items[1].Tick)
}

func TestMintExcludesFullyMinted(t *testing.T) {
	fx := newFixture(t)
	fx.seed(t, market.BSV20, market.Record{Tick: "DONE1", Max: "100", Supply: "100"}, 0, false)
	fx.seed(t, market.BSV20, market.Record{Tick: "DONE2", Max: "100", Supply: "40"}, 0, false)

	items, err := fx.svc.Mint(context.Background(), market.BSV20, "done")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "DONE2", items[0].Tick)
}

func TestSearchRelevanceOrdering(t *testing.T) {
	fx := newFixture(t)
	fx.seed(t, market.BSV20, market.Record{Tick: "myordi", MarketCap: 1000}, 0, false)
	fx.seed(t, market.BSV20, market.Record{Tick: "ordi", MarketCap: 1}, 0, false)
	fx.seed(t, market.BSV20, market.Record{Tick: "ord", MarketCap: 2, Price: 0.5}, 0, false)
	fx.seed(t, market.BSV20, market.Record{Tick: "xyz", MarketCap: 9999}, 0, false)

	res, err := fx.svc.Search(context.Background(), "ORD", []market.Family{market.BSV20}, 10)
	require.NoError(t, err)
	require.Len(t, res, 3)
	assert.Equal(t, []string{"ord", "ordi", "myordi"}, []string{res[0].Name, res[1].Name, res[2].Name})
	assert.Equal(t, []float64{1.0, 0.8, 0.5}, []float64{res[0].Score, res[1].Score, res[2].Score})
	assert.Equal(t, 20.0, res[0].PriceUSD)
	assert.Equal(t, 80.0, res[0].MarketCapUSD)
}

func TestSearchMatchesBSV21Symbol(t *testing.T) {
	fx := newFixture(t)
	fx.seed(t, market.BSV21, market.Record{ID: "abc_0", Sym: "PEPE"}, 0, false)
	fx.seed(t, market.BSV20, market.Record{Tick: "PEPE2"}, 0, false)

	res, err := fx.svc.Search(context.Background(), "pepe", nil, 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, market.BSV21, res[0].Type)
	assert.Equal(t, "abc_0", res[0].ID)

	empty, err := fx.svc.Search(context.Background(), "  ", nil, 10)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestAutofillByPrefixAndRank(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	require.NoError(t, fx.ld.Records().PutAutofill(ctx, market.BSV20, []market.AutofillEntry{
		{Tick: "ORDX", ID: "ORDX", Type: market.BSV20, Num: 9},
		{Tick: "ORDI", ID: "ORDI", Type: market.BSV20, Num: 2},
		{Tick: "ORDA", ID: "ORDA", Type: market.BSV20, Num: 5},
		{Tick: "MYORD", ID: "MYORD", Type: market.BSV20, Num: 1},
	}))

	got, err := fx.svc.Autofill(ctx, market.BSV20, "Ord", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "ORDI", got[0].Tick)
	assert.Equal(t, "ORDA", got[1].Tick)
}

func TestQuotesForWithoutRate(t *testing.T) {
	assert.Nil(t, QuotesFor(market.Record{Price: 1}, 0))

	q := QuotesFor(market.Record{Price: 2, MarketCap: 10}, 0.5)
	require.NotNil(t, q)
	assert.Equal(t, 2.0, q.BSV.Price)
	assert.Equal(t, 1.0, q.USD.Price)
	assert.Equal(t, 5.0, *q.USD.MarketCap)
}
