package market

import (
	"github.com/shopspring/decimal"
)

// Derive recomputes every derived field of r from the most-recent-first sales
// sample. pctChange is computed by the percent-change tracker and passed in.
func Derive(r *Record, sales []Listing, pctChange float64) {
	r.Price = 0
	r.LastSaleHeight = nil
	if len(sales) > 0 {
		latest := sales[0]
		r.Price = latest.PricePer.Float64()
		h := uint64(latest.SpendHeight)
		r.LastSaleHeight = &h
	}
	r.MarketCap = MarketCap(r.Price, r)
	r.PctChange = pctChange
	r.FundBalance = FundBalance(r.FundTotal, r.FundUsed)
}

// EffectiveSupply is the raw supply market cap is computed on: max supply for
// bsv20 and total amount for bsv21, falling back to the minted supply.
func EffectiveSupply(r *Record) Amount {
	var s Amount
	if r.Family() == BSV20 {
		s = r.Max
	} else {
		s = r.Amt
	}
	if s == "" {
		s = r.Supply
	}
	return s
}

// AdjustedSupply shifts the effective supply by the token's decimals.
func AdjustedSupply(r *Record) decimal.Decimal {
	return EffectiveSupply(r).Decimal().Shift(-int32(r.Dec))
}

// MarketCap is price times the decimal-adjusted supply.
func MarketCap(price float64, r *Record) float64 {
	if price == 0 {
		return 0
	}
	mc, _ := decimal.NewFromFloat(price).Mul(AdjustedSupply(r)).Float64()
	return mc
}

// FundBalance is total minus used, or empty when nothing was funded.
func FundBalance(total, used Amount) Amount {
	if total == "" && used == "" {
		return ""
	}
	return AmountFromDecimal(total.Decimal().Sub(used.Decimal()))
}
