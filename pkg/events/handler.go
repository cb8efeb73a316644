// Package events applies the upstream push feed to the cache. Listing and
// sale events edit the per-token collections directly; funding events and
// sales that move the price go through the detail loader.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/1satmarket/marketapi/pkg/loader"
	"github.com/1satmarket/marketapi/pkg/market"
	"github.com/1satmarket/marketapi/pkg/upstream"
	"go.uber.org/zap"
)

// Event names delivered by the subscription endpoint.
const (
	EventV1Funds  = upstream.ChannelV1Funds
	EventV2Funds  = upstream.ChannelV2Funds
	EventListings = upstream.ChannelListings
	EventSales    = upstream.ChannelSales
)

// ErrUnknownEvent is returned for event names the handler does not apply.
var ErrUnknownEvent = errors.New("unknown event")

type saleEvent struct {
	Tick        string      `json:"tick"`
	ID          string      `json:"id"`
	Outpoint    string      `json:"outpoint"`
	Txid        string      `json:"txid"`
	Sale        bool        `json:"sale"`
	SpendHeight market.Uint `json:"spendHeight"`
}

type fundsEvent struct {
	Tick       *string        `json:"tick"`
	ID         *string        `json:"id"`
	FundTotal  *market.Amount `json:"fundTotal"`
	FundUsed   *market.Amount `json:"fundUsed"`
	PendingOps *int64         `json:"pendingOps"`
	Included   *bool          `json:"included"`
}

// Handler applies events one at a time in arrival order.
type Handler struct {
	loader  *loader.Loader
	records *loader.Records
	source  upstream.Source
	logger  *zap.Logger
}

func NewHandler(ld *loader.Loader, source upstream.Source, logger *zap.Logger) *Handler {
	return &Handler{
		loader:  ld,
		records: ld.Records(),
		source:  source,
		logger:  logger.Named("events"),
	}
}

// Handle dispatches one named event.
func (h *Handler) Handle(ctx context.Context, name string, data []byte) error {
	switch name {
	case EventListings:
		return h.handleListing(ctx, data)
	case EventSales:
		return h.handleSale(ctx, data)
	case EventV1Funds:
		return h.handleFunds(ctx, market.BSV20, data)
	case EventV2Funds:
		return h.handleFunds(ctx, market.BSV21, data)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, name)
	}
}

func familyOf(tick, id string) (market.Family, string) {
	if tick != "" {
		return market.BSV20, market.NormalizeKey(tick)
	}
	return market.BSV21, market.NormalizeKey(id)
}

func (h *Handler) handleListing(ctx context.Context, data []byte) error {
	var l market.Listing
	if err := json.Unmarshal(data, &l); err != nil {
		return fmt.Errorf("decode listing: %w", err)
	}
	f, key := familyOf(l.Tick, l.ID)
	if key == "" || (l.Txid == "" && l.Outpoint == "") {
		return fmt.Errorf("listing event without identity")
	}
	return h.records.UpsertListing(ctx, f, key, l)
}

// handleSale moves a sold listing into the sales collection and drops it from
// the listings. A cancel only drops it.
func (h *Handler) handleSale(ctx context.Context, data []byte) error {
	var ev saleEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return fmt.Errorf("decode sale: %w", err)
	}
	f, key := familyOf(ev.Tick, ev.ID)
	if key == "" || ev.Outpoint == "" {
		return fmt.Errorf("sale event without identity")
	}

	if ev.Sale {
		listing, err := h.records.Listing(ctx, f, key, ev.Outpoint)
		if err != nil {
			return err
		}
		if listing != nil {
			listing.Sale = true
			listing.Spend = ev.Txid
			listing.SpendHeight = ev.SpendHeight
			if err := h.records.AddSales(ctx, f, key, []market.Listing{*listing}); err != nil {
				return err
			}
		} else {
			h.logger.Debug("sale for unknown listing", zap.String("family", string(f)), zap.String("outpoint", ev.Outpoint))
		}
	}
	if err := h.records.RemoveListing(ctx, f, key, ev.Outpoint); err != nil {
		return err
	}
	if !ev.Sale {
		return nil
	}

	rec, err := h.records.Get(ctx, f, key)
	if err != nil || rec == nil {
		return err
	}
	_, err = h.loader.LoadOne(ctx, f, key, upstream.Height(ctx, h.source))
	return err
}

// handleFunds loads the token with the reported funding fields layered on
// top of its detail. Unknown tokens are loaded only once included. When the
// detail fetch comes back empty, a cached record is patched in place.
func (h *Handler) handleFunds(ctx context.Context, f market.Family, data []byte) error {
	var ev fundsEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return fmt.Errorf("decode funds: %w", err)
	}
	stub := market.Stub{
		FundTotal:  ev.FundTotal,
		FundUsed:   ev.FundUsed,
		PendingOps: ev.PendingOps,
		Included:   ev.Included,
	}
	if f == market.BSV20 {
		stub.Tick = ev.Tick
	} else {
		stub.ID = ev.ID
	}
	key := stub.Key(f)
	if key == "" {
		return fmt.Errorf("funds event without identity")
	}

	rec, err := h.records.Get(ctx, f, key)
	if err != nil {
		return err
	}
	if rec == nil && (ev.Included == nil || !*ev.Included) {
		return nil
	}

	res := h.loader.Load(ctx, f, []market.Stub{stub}, upstream.Height(ctx, h.source))
	if res.Failed > 0 {
		return fmt.Errorf("load %s/%s after funding event failed", f, key)
	}
	if res.Skipped == 0 {
		return nil
	}
	if rec == nil {
		return fmt.Errorf("detail for %s/%s unavailable, funding event not applied", f, key)
	}

	// Detail unavailable: the reported funding fields still land on the cached record.
	if _, err := h.loader.Patch(ctx, f, &stub); err != nil {
		return fmt.Errorf("apply funding event to %s/%s: %w", f, key, err)
	}
	h.logger.Debug("funding event applied without detail", zap.String("family", string(f)), zap.String("key", key))
	return nil
}
