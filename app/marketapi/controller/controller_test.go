package controller

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/1satmarket/marketapi/app/marketapi/types"
	"github.com/1satmarket/marketapi/pkg/cache"
	"github.com/1satmarket/marketapi/pkg/cache/cachetest"
	"github.com/1satmarket/marketapi/pkg/loader"
	"github.com/1satmarket/marketapi/pkg/market"
	"github.com/1satmarket/marketapi/pkg/refresh"
	"github.com/1satmarket/marketapi/pkg/stats"
	"github.com/1satmarket/marketapi/pkg/upstream"
	"github.com/1satmarket/marketapi/pkg/upstream/upstreamtest"
	"github.com/1satmarket/marketapi/pkg/view"
	"github.com/go-jose/go-jose/v4/json"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func ptr[T any](v T) *T { return &v }

// brokenStore fails every sorted-set range read.
type brokenStore struct {
	*cachetest.Store
}

func (brokenStore) ZRange(context.Context, string, int64, int64) ([]string, error) {
	return nil, errors.New("connection reset")
}

type testEnv struct {
	app    *types.App
	ctl    *Controller
	router *mux.Router
	src    *upstreamtest.Fake
}

func newTestEnv(t *testing.T, store cache.Store) *testEnv {
	t.Helper()
	t.Setenv("ADMIN_TOKEN", "test-token")
	t.Setenv("ADMIN_USER", "admin")
	t.Setenv("ADMIN_PASSWORD", "hunter2")
	t.Setenv("SESSION_SECRET", "test-secret")

	logger := zaptest.NewLogger(t)
	src := upstreamtest.New()
	src.Rate = 40
	src.Tip = &upstream.ChainInfo{Blocks: 1000}

	ld := loader.New(store, src, loader.Config{}, logger)
	t.Cleanup(ld.Stop)

	app := &types.App{
		Store:     store,
		Source:    src,
		Loader:    ld,
		Refresher: refresh.New(src, ld, logger),
		View:      view.New(ld, src, logger),
		Stats:     stats.New(store, src, nil, logger),
		Logger:    logger,
	}
	ctl := NewController(app)
	router, err := ctl.NewRouter()
	require.NoError(t, err)
	return &testEnv{app: app, ctl: ctl, router: router, src: src}
}

func (e *testEnv) do(t *testing.T, method, target string, body string, mods ...func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for _, m := range mods {
		m(req)
	}
	rr := httptest.NewRecorder()
	WithCORS(e.router).ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

// seedListed writes an included record with n open listings and an autofill entry.
func (e *testEnv) seedListed(t *testing.T, f market.Family, rec market.Record, n int) {
	t.Helper()
	ctx := context.Background()
	r := e.app.Loader.Records()
	require.NoError(t, r.Put(ctx, f, &rec, 0))
	var ls []market.Listing
	for i := 0; i < n; i++ {
		ls = append(ls, market.Listing{Txid: rec.Key(), Vout: uint32(i), PricePer: "1"})
	}
	require.NoError(t, r.ReplaceListings(ctx, f, rec.Key(), ls))
	require.NoError(t, r.AddIncluded(ctx, f, rec.Key(), time.Now()))
	require.NoError(t, r.PutAutofill(ctx, f, []market.AutofillEntry{{
		Tick: rec.Name(), ID: rec.Key(), Type: f, Num: 1,
	}}))
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t, cachetest.New(t))
	rr := e.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", decode[map[string]string](t, rr)["status"])
}

func TestCORSPreflight(t *testing.T) {
	e := newTestEnv(t, cachetest.New(t))
	rr := e.do(t, http.MethodOptions, "/market/bsv20", "", func(r *http.Request) {
		r.Header.Set("Origin", "https://1sat.market")
	})
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "https://1sat.market", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rr.Header().Get("Access-Control-Allow-Credentials"))
}

func TestMarketList(t *testing.T) {
	e := newTestEnv(t, cachetest.New(t))
	e.seedListed(t, market.BSV20, market.Record{Tick: "AAA", MarketCap: 10, Price: 1}, 1)
	e.seedListed(t, market.BSV20, market.Record{Tick: "BBB", MarketCap: 30, Price: 2}, 1)
	e.seedListed(t, market.BSV20, market.Record{Tick: "NONE", MarketCap: 99}, 0)

	rr := e.do(t, http.MethodGet, "/market/bsv20?sort=market_cap&dir=desc&limit=10", "")
	require.Equal(t, http.StatusOK, rr.Code)
	items := decode[[]view.MarketItem](t, rr)
	require.Len(t, items, 2)
	assert.Equal(t, "BBB", items[0].Tick)
	assert.Equal(t, "AAA", items[1].Tick)
	require.NotNil(t, items[0].Quotes)
	assert.Equal(t, 80.0, items[0].Quotes.USD.Price)

	rr = e.do(t, http.MethodGet, "/market/bsv20?sort=market_cap&dir=asc", "")
	require.Equal(t, http.StatusOK, rr.Code)
	items = decode[[]view.MarketItem](t, rr)
	require.Len(t, items, 2)
	assert.Equal(t, "AAA", items[0].Tick)
}

func TestMarketListBadParams(t *testing.T) {
	e := newTestEnv(t, cachetest.New(t))
	for _, target := range []string{
		"/market/nft",
		"/market/bsv20?limit=0",
		"/market/bsv20?limit=abc",
		"/market/bsv20?offset=-1",
		"/market/bsv20?dir=sideways",
	} {
		rr := e.do(t, http.MethodGet, target, "")
		assert.Equal(t, http.StatusBadRequest, rr.Code, target)
		assert.NotEmpty(t, decode[map[string]string](t, rr)["error"], target)
	}
}

func TestMarketListStoreFailure(t *testing.T) {
	e := newTestEnv(t, brokenStore{cachetest.New(t)})
	rr := e.do(t, http.MethodGet, "/market/bsv20", "")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.JSONEq(t, `[]`, rr.Body.String())
}

func TestMarketDetailLoadsOnMiss(t *testing.T) {
	e := newTestEnv(t, cachetest.New(t))
	e.src.AddToken(market.BSV20, market.Stub{
		Tick:     ptr("ORDI"),
		Max:      ptr(market.Amount("21000000")),
		Supply:   ptr(market.Amount("21000000")),
		Included: ptr(true),
	})
	e.src.SetListings(market.BSV20, "ordi", []market.Listing{{Txid: "aa", Vout: 0, PricePer: "3"}})

	rr := e.do(t, http.MethodGet, "/market/bsv20/ORDI", "")
	require.Equal(t, http.StatusOK, rr.Code)
	items := decode[[]view.MarketItem](t, rr)
	require.Len(t, items, 1)
	assert.Equal(t, "ORDI", items[0].Tick)
	assert.Len(t, items[0].Listings, 1)

	rec, err := e.app.Loader.Records().Get(context.Background(), market.BSV20, "ordi")
	require.NoError(t, err)
	require.NotNil(t, rec, "detail miss writes the canonical record")
}

func TestMarketDetailAcceptsLegacyFamilyName(t *testing.T) {
	e := newTestEnv(t, cachetest.New(t))
	id := strings.Repeat("ab", 32) + "_0"
	e.seedListed(t, market.BSV21, market.Record{ID: id, Sym: "PEPE", MarketCap: 5}, 1)

	rr := e.do(t, http.MethodGet, "/market/bsv20v2/"+id, "")
	require.Equal(t, http.StatusOK, rr.Code)
	items := decode[[]view.MarketItem](t, rr)
	require.Len(t, items, 1)
	assert.Equal(t, "PEPE", items[0].Sym)
}

func TestMintExcludesFullyMinted(t *testing.T) {
	e := newTestEnv(t, cachetest.New(t))
	e.seedListed(t, market.BSV20, market.Record{Tick: "DONE", Max: "100", Supply: "100"}, 1)
	e.seedListed(t, market.BSV20, market.Record{Tick: "DOING", Max: "100", Supply: "40"}, 1)

	rr := e.do(t, http.MethodGet, "/mint/bsv20/DONE", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, decode[[]view.MarketItem](t, rr))

	rr = e.do(t, http.MethodGet, "/mint/bsv20/DOING", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]view.MarketItem](t, rr), 1)
}

func TestSearchRoutes(t *testing.T) {
	e := newTestEnv(t, cachetest.New(t))
	e.seedListed(t, market.BSV20, market.Record{Tick: "ORD", MarketCap: 1}, 1)
	e.seedListed(t, market.BSV20, market.Record{Tick: "ORDI", MarketCap: 2}, 1)
	e.seedListed(t, market.BSV20, market.Record{Tick: "MYORDI", MarketCap: 3}, 1)

	rr := e.do(t, http.MethodGet, "/search?q=ord", "")
	require.Equal(t, http.StatusOK, rr.Code)
	results := decode[[]view.SearchResult](t, rr)
	require.Len(t, results, 3)
	assert.Equal(t, "ORD", results[0].Tick)
	assert.Equal(t, "ORDI", results[1].Tick)
	assert.Equal(t, "MYORDI", results[2].Tick)
	assert.Equal(t, 40.0*results[1].Price, results[1].PriceUSD)

	rr = e.do(t, http.MethodGet, "/market/bsv20/search/ordi", "")
	require.Equal(t, http.StatusOK, rr.Code)
	results = decode[[]view.SearchResult](t, rr)
	require.Len(t, results, 2)
	assert.Equal(t, "ORDI", results[0].Tick)

	rr = e.do(t, http.MethodGet, "/search?q=ord&type=bsv21", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, decode[[]view.SearchResult](t, rr))

	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodGet, "/search", "").Code)
	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodGet, "/search?q=ord&type=nft", "").Code)
}

func TestAutofillRoute(t *testing.T) {
	e := newTestEnv(t, cachetest.New(t))
	require.NoError(t, e.app.Loader.Records().PutAutofill(context.Background(), market.BSV20, []market.AutofillEntry{
		{Tick: "pepe", ID: "pepe", Type: market.BSV20, Num: 2},
		{Tick: "pep", ID: "pep", Type: market.BSV20, Num: 1},
		{Tick: "ordi", ID: "ordi", Type: market.BSV20, Num: 3},
	}))

	rr := e.do(t, http.MethodGet, "/ticker/autofill/bsv20/PE", "")
	require.Equal(t, http.StatusOK, rr.Code)
	entries := decode[[]market.AutofillEntry](t, rr)
	require.Len(t, entries, 2)
	assert.Equal(t, "pep", entries[0].ID)
	assert.Equal(t, "pepe", entries[1].ID)
}

func TestStatus(t *testing.T) {
	e := newTestEnv(t, cachetest.New(t))
	e.seedListed(t, market.BSV20, market.Record{Tick: "AAA", MarketCap: 10}, 1)

	rr := e.do(t, http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, rr.Code)
	st := decode[stats.Status](t, rr)
	assert.Equal(t, uint64(1000), st.Height)
	assert.Equal(t, 40.0, st.ExchangeRate)
	assert.Equal(t, 10.0, st.Market.TotalMarketCapBSV)
	assert.Equal(t, 1, st.Market.Assets.BSV20)
}
