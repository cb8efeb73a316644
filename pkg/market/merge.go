package market

// Merge folds partial layers onto base and returns the merged record. Layers
// are applied in order, so later layers win; the loader passes them as
// detail, stub, contract metadata.
//
//	field group                         winner
//	identity, supply, funding inputs    last layer that reports the field
//	accounts                            last layer that reports it
//	included                            sticky: true once any source says so
//	holders                             base when non-empty, else first reported list
//	contract tag and variant fields     last layer (contract metadata is passed last)
//	price, marketCap, pctChange,        left untouched; Derive recomputes them
//	lastSaleHeight, fundBalance, num
//
// Merge never mutates base or the layers.
func Merge(base *Record, layers ...*Stub) Record {
	var r Record
	if base != nil {
		r = *base
		if base.Holders != nil {
			r.Holders = append([]Holder(nil), base.Holders...)
		}
		if base.LastSaleHeight != nil {
			h := *base.LastSaleHeight
			r.LastSaleHeight = &h
		}
	}
	for _, l := range layers {
		if l != nil {
			apply(&r, l)
		}
	}
	return r
}

func apply(r *Record, s *Stub) {
	str(&r.Tick, s.Tick)
	str(&r.ID, s.ID)
	str(&r.Sym, s.Sym)
	str(&r.Icon, s.Icon)
	if s.Dec != nil {
		r.Dec = *s.Dec
	}
	amt(&r.Max, s.Max)
	amt(&r.Amt, s.Amt)
	amt(&r.Lim, s.Lim)
	amt(&r.Supply, s.Supply)
	amt(&r.Available, s.Available)
	amt(&r.PctMinted, s.PctMinted)
	if s.Status != nil {
		r.Status = *s.Status
	}
	if s.Height != nil {
		r.Height = *s.Height
	}

	str(&r.FundAddress, s.FundAddress)
	amt(&r.FundTotal, s.FundTotal)
	amt(&r.FundUsed, s.FundUsed)
	if s.PendingOps != nil {
		r.PendingOps = *s.PendingOps
	}
	amt(&r.Pending, s.Pending)
	if s.Included != nil && *s.Included {
		r.Included = true
	}

	if s.Accounts != nil {
		r.Accounts = *s.Accounts
	}
	if len(r.Holders) == 0 && len(s.Holders) > 0 {
		r.Holders = append([]Holder(nil), s.Holders...)
	}

	str(&r.Contract, s.Contract)
	amt(&r.Difficulty, s.Difficulty)
	amt(&r.StartingReward, s.StartingReward)
	amt(&r.ContractStart, s.ContractStart)
	amt(&r.LockTime, s.LockTime)
	amt(&r.LockPerToken, s.LockPerToken)
}

func str(dst *string, v *string) {
	if v != nil && *v != "" {
		*dst = *v
	}
}

func amt(dst *Amount, v *Amount) {
	if v != nil && *v != "" {
		*dst = *v
	}
}
