package upstream

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/1satmarket/marketapi/pkg/market"
	"go.uber.org/zap"
)

// Source is the read-only view of the upstream indexer and third-party
// providers. Every method returns nil or an empty value when data is
// unavailable; none of them fail.
type Source interface {
	ListTokens(ctx context.Context, f market.Family, q ListQuery) []market.Stub
	TokenDetail(ctx context.Context, f market.Family, key string) *market.Stub
	Listings(ctx context.Context, f market.Family, key string) []market.Listing
	Sales(ctx context.Context, f market.Family, key string) []market.Listing
	Holders(ctx context.Context, f market.Family, key string) []market.Holder
	ContractInfo(ctx context.Context, id string) *market.ContractInfo
	ChainTip(ctx context.Context) *ChainInfo
	ExchangeRate(ctx context.Context) float64
	IndexerStats(ctx context.Context) map[string]uint64
}

// ListQuery pages the token list endpoints.
type ListQuery struct {
	Limit    int
	Offset   int
	Sort     string
	Dir      string
	Included *bool
}

func (q ListQuery) values() url.Values {
	v := url.Values{}
	v.Set("limit", strconv.Itoa(q.Limit))
	v.Set("offset", strconv.Itoa(q.Offset))
	if q.Sort != "" {
		v.Set("sort", q.Sort)
	}
	if q.Dir != "" {
		v.Set("dir", q.Dir)
	}
	if q.Included != nil {
		v.Set("included", strconv.FormatBool(*q.Included))
	}
	return v
}

// Config locates the upstream services.
type Config struct {
	APIHost     string
	ORDFSHost   string
	ChainTipURL string
	RateURL     string
	SalesSample int
}

// Client implements Source over HTTP.
type Client struct {
	http   *HTTPClient
	cfg    Config
	logger *zap.Logger
}

// NewClient returns a Client. Empty config fields fall back to the public hosts.
func NewClient(h *HTTPClient, cfg Config, logger *zap.Logger) *Client {
	if cfg.APIHost == "" {
		cfg.APIHost = DefaultAPIHost
	}
	if cfg.ORDFSHost == "" {
		cfg.ORDFSHost = DefaultORDFSHost
	}
	if cfg.ChainTipURL == "" {
		cfg.ChainTipURL = DefaultChainTipURL
	}
	if cfg.RateURL == "" {
		cfg.RateURL = DefaultRateURL
	}
	if cfg.SalesSample <= 0 {
		cfg.SalesSample = DefaultSalesSample
	}
	cfg.APIHost = strings.TrimRight(cfg.APIHost, "/")
	cfg.ORDFSHost = strings.TrimRight(cfg.ORDFSHost, "/")
	return &Client{http: h, cfg: cfg, logger: logger.Named("upstream")}
}

// SubscribeURL is the push-event endpoint for the given channels.
func (c *Client) SubscribeURL(channels ...string) string {
	v := url.Values{}
	for _, ch := range channels {
		v.Add("channel", ch)
	}
	return c.cfg.APIHost + subscribePath + "?" + v.Encode()
}

func (c *Client) api(path string, q url.Values) string {
	if len(q) == 0 {
		return c.cfg.APIHost + path
	}
	return c.cfg.APIHost + path + "?" + q.Encode()
}

// tokenFilter is the query parameter that scopes market endpoints to one token.
func tokenFilter(f market.Family, key string) (string, string) {
	if f == market.BSV20 {
		return "tick", key
	}
	return "id", key
}

var _ Source = (*Client)(nil)

func (c *Client) ListTokens(ctx context.Context, f market.Family, q ListQuery) []market.Stub {
	path := bsv20ListPath
	if f == market.BSV21 {
		path = bsv21ListPath
	}
	out := FetchJSON[[]market.Stub](ctx, c.http, c.logger, "list_"+string(f), c.api(path, q.values()))
	if out == nil {
		return nil
	}
	return *out
}

func (c *Client) TokenDetail(ctx context.Context, f market.Family, key string) *market.Stub {
	var u string
	if f == market.BSV20 {
		u = c.api(fmt.Sprintf(bsv20DetailPath, url.PathEscape(key)), nil)
	} else {
		u = c.api(fmt.Sprintf(bsv21DetailPath, url.PathEscape(key)), url.Values{"refresh": {"false"}})
	}
	return FetchJSON[market.Stub](ctx, c.http, c.logger, "detail_"+string(f), u)
}

func (c *Client) Listings(ctx context.Context, f market.Family, key string) []market.Listing {
	name, val := tokenFilter(f, key)
	q := url.Values{
		"sort":   {"price_per_token"},
		"dir":    {"asc"},
		"limit":  {strconv.Itoa(DefaultListingsLimit)},
		"offset": {"0"},
		name:     {val},
	}
	out := FetchJSON[[]market.Listing](ctx, c.http, c.logger, "listings", c.api(marketListingPath, q))
	if out == nil {
		return nil
	}
	if *out == nil {
		return []market.Listing{}
	}
	return *out
}

func (c *Client) Sales(ctx context.Context, f market.Family, key string) []market.Listing {
	name, val := tokenFilter(f, key)
	q := url.Values{
		"dir":    {"desc"},
		"limit":  {strconv.Itoa(c.cfg.SalesSample)},
		"offset": {"0"},
		name:     {val},
	}
	out := FetchJSON[[]market.Listing](ctx, c.http, c.logger, "sales", c.api(marketSalesPath, q))
	if out == nil {
		return nil
	}
	return *out
}

func (c *Client) Holders(ctx context.Context, f market.Family, key string) []market.Holder {
	path := fmt.Sprintf(bsv20HoldersPath, url.PathEscape(key))
	if f == market.BSV21 {
		path = fmt.Sprintf(bsv21HoldersPath, url.PathEscape(key))
	}
	q := url.Values{"limit": {strconv.Itoa(DefaultHoldersLimit)}, "offset": {"0"}}
	out := FetchJSON[[]market.Holder](ctx, c.http, c.logger, "holders", c.api(path, q))
	if out == nil {
		return nil
	}
	return *out
}

func (c *Client) ContractInfo(ctx context.Context, id string) *market.ContractInfo {
	u := c.cfg.ORDFSHost + fmt.Sprintf(ordfsContentPath, url.PathEscape(id))
	return FetchJSON[market.ContractInfo](ctx, c.http, c.logger, "contract", u)
}

func (c *Client) IndexerStats(ctx context.Context) map[string]uint64 {
	out := FetchJSON[map[string]uint64](ctx, c.http, c.logger, "stats", c.api(indexerStatsPath, nil))
	if out == nil {
		return nil
	}
	return *out
}
