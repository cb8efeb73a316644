package types

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/1satmarket/marketapi/pkg/cache"
	"github.com/1satmarket/marketapi/pkg/db/history"
	"github.com/1satmarket/marketapi/pkg/events"
	"github.com/1satmarket/marketapi/pkg/loader"
	"github.com/1satmarket/marketapi/pkg/refresh"
	"github.com/1satmarket/marketapi/pkg/stats"
	"github.com/1satmarket/marketapi/pkg/upstream"
	"github.com/1satmarket/marketapi/pkg/view"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type App struct {
	Config Config

	// Store holds every cached record and index. Redis is the same store
	// when it is Redis-backed and carries the pub/sub feed for /ws.
	Store cache.Store
	Redis *cache.Redis

	// Source is the upstream indexer, with tip and rate cached.
	Source upstream.Source

	Loader    *loader.Loader
	Refresher *refresh.Refresher
	View      *view.Service
	Stats     *stats.Service

	// Events is nil when SSE_ENABLED=false.
	Events *events.Subscriber

	// History is nil unless CLICKHOUSE_ENABLED=true.
	History *history.DB

	Cron *cron.Cron

	// Zap Logger
	Logger *zap.Logger

	// HTTP Server
	Server *http.Server
}

// Start runs background work and the HTTP server until ctx is done, then
// shuts everything down in reverse order.
func (a *App) Start(ctx context.Context) {
	var wg sync.WaitGroup

	if a.Config.BootRefresh && a.Refresher != nil {
		if err := a.Refresher.Boot(ctx); err != nil && ctx.Err() == nil {
			a.Logger.Error("boot refresh failed", zap.Error(err))
		}
	}

	if a.Events != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.Events.Run(ctx)
		}()
	}

	a.StartCron()

	go func() {
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.Logger.Error("server stopped", zap.Error(err))
		}
	}()
	<-ctx.Done()

	a.StopCron()

	a.Logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = a.Server.Shutdown(shutdownCtx)

	wg.Wait()

	if a.Loader != nil {
		a.Loader.Stop()
	}

	if a.History != nil {
		if err := a.History.Close(); err != nil {
			a.Logger.Error("Failed to close history database", zap.Error(err))
		}
	}

	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			a.Logger.Error("Failed to close cache connection", zap.Error(err))
		}
	}

	time.Sleep(200 * time.Millisecond)
	a.Logger.Info("さようなら!")
}
