package controller

import (
	"net/http"

	"github.com/1satmarket/marketapi/pkg/view"
	"go.uber.org/zap"
)

// HandleMarketList serves one page of included tokens with open listings.
func (c *Controller) HandleMarketList(w http.ResponseWriter, r *http.Request) {
	f, err := parseFamily(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	params, err := parseListParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	items, err := c.App.View.List(r.Context(), f, params)
	if err != nil {
		c.App.Logger.Error("market list failed", zap.String("family", string(f)), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, emptyList)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// HandleMarketDetail serves a token with listings and recent sales. With
// ?refresh=true the record is reloaded from upstream first.
func (c *Controller) HandleMarketDetail(w http.ResponseWriter, r *http.Request) {
	f, err := parseFamily(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	id, err := parseID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	items, err := c.App.View.Detail(r.Context(), f, id, parseBool(r, "refresh"))
	if err != nil {
		c.App.Logger.Error("market detail failed", zap.String("family", string(f)), zap.String("id", id), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, emptyList)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// HandleMint serves the tokens matching id that are not fully minted.
func (c *Controller) HandleMint(w http.ResponseWriter, r *http.Request) {
	f, err := parseFamily(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	id, err := parseID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	items, err := c.App.View.Mint(r.Context(), f, id)
	if err != nil {
		c.App.Logger.Error("mint lookup failed", zap.String("family", string(f)), zap.String("id", id), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, emptyList)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (c *Controller) HandleAutofill(w http.ResponseWriter, r *http.Request) {
	f, err := parseFamily(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	id, err := parseID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := parseLimit(r, view.DefaultSearchLimit, view.MaxListLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := c.App.View.Autofill(r.Context(), f, id, limit)
	if err != nil {
		c.App.Logger.Error("autofill failed", zap.String("family", string(f)), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, emptyList)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
