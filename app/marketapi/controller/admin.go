package controller

import (
	"net/http"
	"time"

	"github.com/1satmarket/marketapi/app/marketapi/types"
	"github.com/1satmarket/marketapi/pkg/market"
	"github.com/1satmarket/marketapi/pkg/upstream"
	"github.com/go-jose/go-jose/v4/json"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// refreshResponse summarizes a manual ticker refresh.
type refreshResponse struct {
	Family  market.Family `json:"type"`
	Pages   int           `json:"pages"`
	Fetched int           `json:"fetched"`
	Height  uint64        `json:"height"`
	Loaded  int           `json:"loaded"`
	Skipped int           `json:"skipped"`
	Failed  int           `json:"failed"`
}

// HandleAdminLogin handles admin login
func (c *Controller) HandleAdminLogin(w http.ResponseWriter, r *http.Request) {
	var in types.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	u, ok := c.Users[in.Username]
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err := bcrypt.CompareHashAndPassword(u.Hash, []byte(in.Password)); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err := c.IssueSession(w, u.Username, u.Role); err != nil {
		c.App.Logger.Error("issue session", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, emptyObject)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"ok": "1"})
}

// HandleAdminLogout handles admin logout
func (c *Controller) HandleAdminLogout(w http.ResponseWriter, _ *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
	})
	w.WriteHeader(http.StatusNoContent)
}

// HandleRefreshTickers runs a ticker refresh for one family and reports it.
func (c *Controller) HandleRefreshTickers(w http.ResponseWriter, r *http.Request) {
	f, err := parseFamily(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := c.App.Refresher.FetchTickers(r.Context(), f)
	if err != nil {
		c.App.Logger.Error("manual ticker refresh failed", zap.String("family", string(f)), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, emptyObject)
		return
	}
	writeJSON(w, http.StatusOK, refreshResponse{
		Family:  res.Family,
		Pages:   res.Pages,
		Fetched: res.Fetched,
		Height:  res.Height,
		Loaded:  res.Loaded,
		Skipped: res.Skipped,
		Failed:  res.Failed,
	})
}

// HandleRefreshOne reloads a single token.
func (c *Controller) HandleRefreshOne(w http.ResponseWriter, r *http.Request) {
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

	ctx := r.Context()
	rec, err := c.App.Loader.LoadOne(ctx, f, id, upstream.Height(ctx, c.App.Source))
	if err != nil {
		c.App.Logger.Error("manual reload failed", zap.String("family", string(f)), zap.String("id", id), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, emptyObject)
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "token not found upstream")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// HandleRefreshNames rebuilds the autofill index for one family.
func (c *Controller) HandleRefreshNames(w http.ResponseWriter, r *http.Request) {
	f, err := parseFamily(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	n, err := c.App.Refresher.LoadAllNames(r.Context(), f)
	if err != nil {
		c.App.Logger.Error("manual names refresh failed", zap.String("family", string(f)), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, emptyObject)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"type": f, "count": n})
}
