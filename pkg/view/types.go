package view

import "github.com/1satmarket/marketapi/pkg/market"

// Quote is a price and optional market cap in one currency.
type Quote struct {
	Price     float64  `json:"price"`
	MarketCap *float64 `json:"market_cap,omitempty"`
}

type Quotes struct {
	BSV Quote `json:"BSV"`
	USD Quote `json:"USD"`
}

// MarketItem is a canonical record as served to clients. Listings and sales
// are attached only on detail responses.
type MarketItem struct {
	market.Record
	Listings []market.Listing `json:"listings,omitempty"`
	Sales    []market.Listing `json:"sales,omitempty"`
	Quotes   *Quotes          `json:"quotes,omitempty"`
}

// SearchResult is one hit of the unified search.
type SearchResult struct {
	Type         market.Family `json:"type"`
	ID           string        `json:"id"`
	Name         string        `json:"name,omitempty"`
	Tick         string        `json:"tick,omitempty"`
	Sym          string        `json:"sym,omitempty"`
	Icon         string        `json:"icon,omitempty"`
	Price        float64       `json:"price,omitempty"`
	PriceUSD     float64       `json:"price_usd,omitempty"`
	MarketCap    float64       `json:"market_cap,omitempty"`
	MarketCapUSD float64       `json:"market_cap_usd,omitempty"`
	Holders      int64         `json:"holders,omitempty"`
	Score        float64       `json:"score"`
}

// ListParams pages and orders List.
type ListParams struct {
	Limit  int
	Offset int
	Sort   market.SortKey
	Desc   bool
}
