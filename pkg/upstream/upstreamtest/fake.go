// Package upstreamtest provides an in-memory upstream.Source for tests.
package upstreamtest

import (
	"context"
	"sync"

	"github.com/1satmarket/marketapi/pkg/market"
	"github.com/1satmarket/marketapi/pkg/upstream"
)

// Fake serves canned upstream data keyed by family and normalized key. Unset
// entries behave like a failed fetch and return nil.
type Fake struct {
	mu sync.Mutex

	Tokens    map[market.Family][]market.Stub
	Details   map[string]*market.Stub
	Listing   map[string][]market.Listing
	Sale      map[string][]market.Listing
	Holder    map[string][]market.Holder
	Contracts map[string]*market.ContractInfo
	Tip       *upstream.ChainInfo
	Rate      float64
	Stats     map[string]uint64

	calls map[string]int
}

func New() *Fake {
	return &Fake{
		Tokens:    map[market.Family][]market.Stub{},
		Details:   map[string]*market.Stub{},
		Listing:   map[string][]market.Listing{},
		Sale:      map[string][]market.Listing{},
		Holder:    map[string][]market.Holder{},
		Contracts: map[string]*market.ContractInfo{},
		calls:     map[string]int{},
	}
}

var _ upstream.Source = (*Fake)(nil)

func ref(f market.Family, key string) string {
	return string(f) + "/" + market.NormalizeKey(key)
}

// AddToken registers stub both as a list entry and as its own detail.
func (s *Fake) AddToken(f market.Family, stub market.Stub) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Tokens[f] = append(s.Tokens[f], stub)
	d := stub
	s.Details[ref(f, stub.Key(f))] = &d
}

func (s *Fake) SetDetail(f market.Family, key string, stub *market.Stub) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Details[ref(f, key)] = stub
}

func (s *Fake) SetListings(f market.Family, key string, ls []market.Listing) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Listing[ref(f, key)] = ls
}

func (s *Fake) SetSales(f market.Family, key string, ls []market.Listing) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Sale[ref(f, key)] = ls
}

func (s *Fake) SetHolders(f market.Family, key string, hs []market.Holder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Holder[ref(f, key)] = hs
}

// Calls reports how often a method was invoked.
func (s *Fake) Calls(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

func (s *Fake) note(method string) {
	s.calls[method]++
}

func (s *Fake) ListTokens(_ context.Context, f market.Family, q upstream.ListQuery) []market.Stub {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.note("ListTokens")
	var matched []market.Stub
	for _, t := range s.Tokens[f] {
		if q.Included != nil {
			inc := t.Included != nil && *t.Included
			if inc != *q.Included {
				continue
			}
		}
		matched = append(matched, t)
	}
	if q.Offset >= len(matched) {
		return []market.Stub{}
	}
	end := q.Offset + q.Limit
	if q.Limit <= 0 || end > len(matched) {
		end = len(matched)
	}
	return append([]market.Stub(nil), matched[q.Offset:end]...)
}

func (s *Fake) TokenDetail(_ context.Context, f market.Family, key string) *market.Stub {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.note("TokenDetail")
	d := s.Details[ref(f, key)]
	if d == nil {
		return nil
	}
	cp := *d
	return &cp
}

func (s *Fake) Listings(_ context.Context, f market.Family, key string) []market.Listing {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.note("Listings")
	return s.Listing[ref(f, key)]
}

func (s *Fake) Sales(_ context.Context, f market.Family, key string) []market.Listing {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.note("Sales")
	return s.Sale[ref(f, key)]
}

func (s *Fake) Holders(_ context.Context, f market.Family, key string) []market.Holder {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.note("Holders")
	return s.Holder[ref(f, key)]
}

func (s *Fake) ContractInfo(_ context.Context, id string) *market.ContractInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.note("ContractInfo")
	return s.Contracts[id]
}

func (s *Fake) ChainTip(context.Context) *upstream.ChainInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.note("ChainTip")
	return s.Tip
}

func (s *Fake) ExchangeRate(context.Context) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.note("ExchangeRate")
	return s.Rate
}

func (s *Fake) IndexerStats(context.Context) map[string]uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.note("IndexerStats")
	return s.Stats
}
