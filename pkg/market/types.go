package market

import "fmt"

// PendingSaleScore is the sales sorted-set score of a sale whose spend is not
// yet mined. It sorts above every real height.
const PendingSaleScore = float64(1<<53 - 1)

// Holder is one address balance from the holders snapshot.
type Holder struct {
	Address string `json:"address"`
	Amt     Amount `json:"amt"`
}

// Listing is an open sell offer. Executed listings are kept in the sales
// collection with the same shape; Spend and SpendHeight then describe the
// purchase.
type Listing struct {
	Tick        string `json:"tick,omitempty"`
	ID          string `json:"id,omitempty"`
	Txid        string `json:"txid"`
	Vout        uint32 `json:"vout"`
	Outpoint    string `json:"outpoint,omitempty"`
	Height      Uint   `json:"height,omitempty"`
	Idx         Uint   `json:"idx,omitempty"`
	Amt         Amount `json:"amt,omitempty"`
	Price       Amount `json:"price,omitempty"`
	PricePer    Amount `json:"pricePer,omitempty"`
	Owner       string `json:"owner,omitempty"`
	Sale        bool   `json:"sale"`
	Payout      string `json:"payout,omitempty"`
	Script      string `json:"script,omitempty"`
	Spend       string `json:"spend,omitempty"`
	SpendIdx    Uint   `json:"spendIdx,omitempty"`
	SpendHeight Uint   `json:"spendHeight,omitempty"`
}

// Ref is the txid_vout identity of the listing output.
func (l Listing) Ref() string {
	if l.Outpoint != "" {
		return l.Outpoint
	}
	return fmt.Sprintf("%s_%d", l.Txid, l.Vout)
}

// Pending reports whether a sale has been broadcast but not mined.
func (l Listing) Pending() bool {
	return l.SpendHeight == 0
}

// SaleScore is the sorted-set score for a sale: its spend height, or
// PendingSaleScore while unconfirmed.
func (l Listing) SaleScore() float64 {
	if l.Pending() {
		return PendingSaleScore
	}
	return float64(l.SpendHeight)
}

// Stub is a partial token record as reported by one source: a bulk listing
// page, a detail response, or a funding event. Nil fields were not reported.
type Stub struct {
	Tick      *string `json:"tick,omitempty"`
	ID        *string `json:"id,omitempty"`
	Sym       *string `json:"sym,omitempty"`
	Icon      *string `json:"icon,omitempty"`
	Dec       *int    `json:"dec,omitempty"`
	Max       *Amount `json:"max,omitempty"`
	Amt       *Amount `json:"amt,omitempty"`
	Lim       *Amount `json:"lim,omitempty"`
	Supply    *Amount `json:"supply,omitempty"`
	Available *Amount `json:"available,omitempty"`
	PctMinted *Amount `json:"pctMinted,omitempty"`
	Status    *int    `json:"status,omitempty"`
	Height    *Uint   `json:"height,omitempty"`

	FundAddress *string `json:"fundAddress,omitempty"`
	FundTotal   *Amount `json:"fundTotal,omitempty"`
	FundUsed    *Amount `json:"fundUsed,omitempty"`
	PendingOps  *int64  `json:"pendingOps,omitempty"`
	Pending     *Amount `json:"pending,omitempty"`
	Included    *bool   `json:"included,omitempty"`

	Accounts *int64   `json:"accounts,omitempty"`
	Holders  []Holder `json:"holders,omitempty"`

	Contract       *string `json:"contract,omitempty"`
	Difficulty     *Amount `json:"difficulty,omitempty"`
	StartingReward *Amount `json:"startingReward,omitempty"`
	ContractStart  *Amount `json:"contractStart,omitempty"`
	LockTime       *Amount `json:"lockTime,omitempty"`
	LockPerToken   *Amount `json:"lockPerToken,omitempty"`
}

// Key returns the normalized TokenKey the stub addresses within family f.
func (s *Stub) Key(f Family) string {
	if s == nil {
		return ""
	}
	if f == BSV20 && s.Tick != nil {
		return NormalizeKey(*s.Tick)
	}
	if s.ID != nil {
		return NormalizeKey(*s.ID)
	}
	return ""
}

// KeyStub returns a stub carrying only the identity of key.
func KeyStub(f Family, key string) Stub {
	if f == BSV20 {
		return Stub{Tick: &key}
	}
	return Stub{ID: &key}
}

// ContractInfo is the contract-variant metadata from a token's deploy inscription.
type ContractInfo struct {
	Contract       string `json:"contract"`
	Difficulty     Amount `json:"difficulty,omitempty"`
	StartingReward Amount `json:"startingReward,omitempty"`
	ContractStart  Amount `json:"contractStart,omitempty"`
	LockTime       Amount `json:"lockTime,omitempty"`
	LockPerToken   Amount `json:"lockPerToken,omitempty"`
}

// Stub lifts the reported contract fields into a merge layer.
func (c *ContractInfo) Stub() *Stub {
	if c == nil || c.Contract == "" {
		return nil
	}
	s := &Stub{Contract: &c.Contract}
	set := func(dst **Amount, v Amount) {
		if v != "" {
			v := v
			*dst = &v
		}
	}
	set(&s.Difficulty, c.Difficulty)
	set(&s.StartingReward, c.StartingReward)
	set(&s.ContractStart, c.ContractStart)
	set(&s.LockTime, c.LockTime)
	set(&s.LockPerToken, c.LockPerToken)
	return s
}

// Contract tags with variant metadata.
const (
	ContractPow20      = "pow-20"
	ContractLockToMint = "LockToMintBsv20"
)

// Record is the canonical cached market record for one token.
type Record struct {
	Tick      string `json:"tick,omitempty"`
	ID        string `json:"id,omitempty"`
	Sym       string `json:"sym,omitempty"`
	Icon      string `json:"icon,omitempty"`
	Dec       int    `json:"dec"`
	Max       Amount `json:"max,omitempty"`
	Amt       Amount `json:"amt,omitempty"`
	Lim       Amount `json:"lim,omitempty"`
	Supply    Amount `json:"supply,omitempty"`
	Available Amount `json:"available,omitempty"`
	PctMinted Amount `json:"pctMinted,omitempty"`
	Status    int    `json:"status"`
	Height    Uint   `json:"height,omitempty"`

	FundAddress string `json:"fundAddress,omitempty"`
	FundTotal   Amount `json:"fundTotal,omitempty"`
	FundUsed    Amount `json:"fundUsed,omitempty"`
	FundBalance Amount `json:"fundBalance,omitempty"`
	PendingOps  int64  `json:"pendingOps"`
	Pending     Amount `json:"pending,omitempty"`
	Included    bool   `json:"included"`

	Accounts int64    `json:"accounts"`
	Holders  []Holder `json:"holders,omitempty"`

	Contract       string `json:"contract,omitempty"`
	Difficulty     Amount `json:"difficulty,omitempty"`
	StartingReward Amount `json:"startingReward,omitempty"`
	ContractStart  Amount `json:"contractStart,omitempty"`
	LockTime       Amount `json:"lockTime,omitempty"`
	LockPerToken   Amount `json:"lockPerToken,omitempty"`

	Price          float64 `json:"price"`
	MarketCap      float64 `json:"marketCap"`
	PctChange      float64 `json:"pctChange"`
	LastSaleHeight *uint64 `json:"lastSaleHeight,omitempty"`
	Num            int     `json:"num,omitempty"`
}

// Family infers the family from the identity fields.
func (r *Record) Family() Family {
	if r.Tick != "" {
		return BSV20
	}
	return BSV21
}

// Key is the normalized TokenKey of the record.
func (r *Record) Key() string {
	if r.Tick != "" {
		return NormalizeKey(r.Tick)
	}
	return NormalizeKey(r.ID)
}

// Name is the display symbol: tick for bsv20, sym for bsv21.
func (r *Record) Name() string {
	if r.Tick != "" {
		return r.Tick
	}
	return r.Sym
}

// AutofillEntry is one row of the autofill index.
type AutofillEntry struct {
	Tick string `json:"tick"`
	ID   string `json:"id"`
	Type Family `json:"type"`
	Num  int    `json:"num"`
	Icon string `json:"icon,omitempty"`
}

// Update is the payload published on UpdatedChannel after a canonical write.
type Update struct {
	Family    Family  `json:"type"`
	Key       string  `json:"id"`
	Price     float64 `json:"price"`
	MarketCap float64 `json:"marketCap"`
	PctChange float64 `json:"pctChange"`
	Timestamp int64   `json:"timestamp"`
}
