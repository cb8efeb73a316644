package market

import (
	"math"
	"sort"
	"strings"
)

// SortKey selects the ordering of market list responses.
type SortKey string

const (
	SortMostRecentSale SortKey = "most_recent_sale"
	SortName           SortKey = "name"
	SortMarketCap      SortKey = "market_cap"
	SortPrice          SortKey = "price"
	SortPctChange      SortKey = "pct_change"
	SortHolders        SortKey = "holders"
)

// ParseSortKey maps a query value to a SortKey. Empty and unknown values fall
// back to most-recent-sale; "mode_recent_sale" is accepted for older clients.
func ParseSortKey(s string) SortKey {
	switch SortKey(strings.ToLower(strings.TrimSpace(s))) {
	case SortName:
		return SortName
	case SortMarketCap:
		return SortMarketCap
	case SortPrice:
		return SortPrice
	case SortPctChange:
		return SortPctChange
	case SortHolders:
		return SortHolders
	default:
		return SortMostRecentSale
	}
}

// SortRecords orders records in place. For most-recent-sale, ascending means
// most recent first: unconfirmed sales (height 0) lead, records without any
// sale trail in both directions. Other keys sort naturally by value.
func SortRecords(records []Record, key SortKey, desc bool) {
	if key == SortMostRecentSale {
		sort.SliceStable(records, func(i, j int) bool {
			a, b := records[i].LastSaleHeight, records[j].LastSaleHeight
			if a == nil || b == nil {
				return a != nil && b == nil
			}
			ra, rb := recency(*a), recency(*b)
			if desc {
				return ra < rb
			}
			return ra > rb
		})
		return
	}

	value := func(r *Record) float64 {
		switch key {
		case SortMarketCap:
			return r.MarketCap
		case SortPrice:
			return r.Price
		case SortPctChange:
			return r.PctChange
		case SortHolders:
			return float64(r.Accounts)
		}
		return 0
	}
	sort.SliceStable(records, func(i, j int) bool {
		if key == SortName {
			a, b := strings.ToLower(records[i].Name()), strings.ToLower(records[j].Name())
			if desc {
				return a > b
			}
			return a < b
		}
		a, b := value(&records[i]), value(&records[j])
		if desc {
			return a > b
		}
		return a < b
	})
}

func recency(height uint64) float64 {
	if height == 0 {
		return math.Inf(1)
	}
	return float64(height)
}
