package controller

import (
	"net/http"

	"go.uber.org/zap"
)

func (c *Controller) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if err := c.App.Store.Ping(r.Context()); err != nil {
		c.App.Logger.Warn("health check failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "errored", "error": "cache connection error"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
