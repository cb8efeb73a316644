package controller

import (
	"net/http"

	"github.com/1satmarket/marketapi/app/marketapi/types"
	"github.com/1satmarket/marketapi/pkg/utils"
	"github.com/go-jose/go-jose/v4/json"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Controller struct {
	App        *types.App
	AdminToken string
	Users      map[string]types.User
	JWTSecret  []byte
}

// NewController returns a new controller.
func NewController(app *types.App) *Controller {
	adminToken := utils.Env("ADMIN_TOKEN", "devtoken")
	adminUser := utils.Env("ADMIN_USER", "admin")
	adminPass := utils.Env("ADMIN_PASSWORD", "admin")
	jwtSecret := []byte(utils.Env("SESSION_SECRET", "change-me-please"))

	phash, err := utils.HashOrRead(adminPass)
	if err != nil {
		app.Logger.Error("Unable to hash admin password", zap.Error(err))
	}
	users := map[string]types.User{
		adminUser: {Username: adminUser, Hash: phash, Role: "admin"},
	}

	return &Controller{
		App:        app,
		AdminToken: adminToken,
		Users:      users,
		JWTSecret:  jwtSecret,
	}
}

// WithCORS is a middleware that adds CORS headers to the response.
func WithCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		} else {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", http.MethodGet+", "+http.MethodPost+", "+http.MethodOptions)

		// Fast-path the preflight
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// NewRouter returns a new router with all the routes defined in this file.
func (c *Controller) NewRouter() (*mux.Router, error) {
	r := mux.NewRouter()

	r.Handle("/health", http.HandlerFunc(c.HandleHealth)).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/status", c.HandleStatus).Methods(http.MethodGet)

	// Market views
	r.HandleFunc("/market/{assetType}", c.HandleMarketList).Methods(http.MethodGet)
	r.HandleFunc("/market/{assetType}/search/{term}", c.HandleMarketSearch).Methods(http.MethodGet)
	r.HandleFunc("/market/{assetType}/{id}", c.HandleMarketDetail).Methods(http.MethodGet)
	r.HandleFunc("/mint/{assetType}/{id}", c.HandleMint).Methods(http.MethodGet)
	r.HandleFunc("/search", c.HandleSearch).Methods(http.MethodGet)
	r.HandleFunc("/ticker/autofill/{assetType}/{id}", c.HandleAutofill).Methods(http.MethodGet)

	// Live record updates
	r.HandleFunc("/ws", c.HandleWebSocket).Methods(http.MethodGet)

	// Admin
	r.HandleFunc("/admin/login", c.HandleAdminLogin).Methods(http.MethodPost)
	r.HandleFunc("/admin/logout", c.HandleAdminLogout).Methods(http.MethodPost)
	r.Handle("/admin/refresh/{assetType}", c.RequireAdmin(http.HandlerFunc(c.HandleRefreshTickers))).Methods(http.MethodPost)
	r.Handle("/admin/refresh/{assetType}/{id}", c.RequireAdmin(http.HandlerFunc(c.HandleRefreshOne))).Methods(http.MethodPost)
	r.Handle("/admin/names/{assetType}", c.RequireAdmin(http.HandlerFunc(c.HandleRefreshNames))).Methods(http.MethodPost)

	return r, nil
}

// Empty bodies served on handler failure.
var (
	emptyList   = []any{}
	emptyObject = map[string]any{}
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
