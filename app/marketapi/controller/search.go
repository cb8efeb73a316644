package controller

import (
	"net/http"
	"strings"

	"github.com/1satmarket/marketapi/pkg/market"
	"github.com/1satmarket/marketapi/pkg/view"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// HandleMarketSearch searches one family by the {term} route variable.
func (c *Controller) HandleMarketSearch(w http.ResponseWriter, r *http.Request) {
	f, err := parseFamily(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	c.search(w, r, mux.Vars(r)["term"], []market.Family{f})
}

// HandleSearch searches every family, or the one named by ?type=.
func (c *Controller) HandleSearch(w http.ResponseWriter, r *http.Request) {
	var families []market.Family
	if t := r.URL.Query().Get("type"); t != "" && t != "all" {
		f, err := market.ParseFamily(t)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		families = []market.Family{f}
	}
	c.search(w, r, r.URL.Query().Get("q"), families)
}

func (c *Controller) search(w http.ResponseWriter, r *http.Request, term string, families []market.Family) {
	term = strings.TrimSpace(term)
	if term == "" {
		writeError(w, http.StatusBadRequest, errMissingTerm.Error())
		return
	}
	limit, err := parseLimit(r, view.DefaultSearchLimit, view.MaxListLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	results, err := c.App.View.Search(r.Context(), term, families, limit)
	if err != nil {
		c.App.Logger.Error("search failed", zap.String("term", term), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, emptyList)
		return
	}
	writeJSON(w, http.StatusOK, results)
}
