package controller

import (
	"net/http"

	"go.uber.org/zap"
)

// HandleStatus serves chain, rate, indexer and market figures.
func (c *Controller) HandleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := c.App.Stats.Status(r.Context())
	if err != nil {
		c.App.Logger.Error("status failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, emptyObject)
		return
	}
	writeJSON(w, http.StatusOK, status)
}
