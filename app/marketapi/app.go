package marketapi

import (
	"context"

	"github.com/1satmarket/marketapi/app/marketapi/types"
	"github.com/1satmarket/marketapi/pkg/cache"
	"github.com/1satmarket/marketapi/pkg/db/history"
	"github.com/1satmarket/marketapi/pkg/events"
	"github.com/1satmarket/marketapi/pkg/loader"
	"github.com/1satmarket/marketapi/pkg/logging"
	"github.com/1satmarket/marketapi/pkg/refresh"
	"github.com/1satmarket/marketapi/pkg/stats"
	"github.com/1satmarket/marketapi/pkg/upstream"
	"github.com/1satmarket/marketapi/pkg/view"
	"go.uber.org/zap"
)

// Initialize builds the application from the environment.
func Initialize(ctx context.Context) *types.App {
	logger, err := logging.New()
	if err != nil {
		// nothing else to do here, we'll just log to stderr'
		panic(err)
	}

	cfg := types.LoadConfig()

	redisStore, err := cache.NewRedis(ctx, logger)
	if err != nil {
		logger.Fatal("Unable to connect to Redis", zap.Error(err))
	}

	httpClient := upstream.NewHTTPWithOpts(upstream.Opts{
		Timeout: cfg.UpstreamTimeout,
		RPS:     cfg.UpstreamRPS,
		Burst:   cfg.UpstreamBurst,
	})
	client := upstream.NewClient(httpClient, upstream.Config{
		APIHost:     cfg.APIHost,
		ORDFSHost:   cfg.ORDFSHost,
		ChainTipURL: cfg.ChainInfoHost,
		RateURL:     cfg.RateHost,
	}, logger)
	source := upstream.NewCached(client, redisStore, cfg.ExpirationTime, logger)

	ld := loader.New(redisStore, source, loader.Config{
		RecordTTL:     cfg.RecordTTL,
		PctChangeTTL:  cfg.ExpirationTime,
		RecordWorkers: cfg.RecordWorkers,
	}, logger)

	// Snapshot history is optional; the rest of the service runs without it.
	var historyDB *history.DB
	var sink stats.Sink
	if cfg.ClickHouseEnabled {
		historyDB, err = history.New(ctx, logger, cfg.ClickHouseAddr, cfg.ClickHouseDB)
		if err != nil {
			logger.Warn("Failed to initialize ClickHouse - market snapshots will not be recorded", zap.Error(err))
			historyDB = nil
		} else {
			sink = historyDB
			logger.Info("ClickHouse snapshot history enabled", zap.String("database", cfg.ClickHouseDB))
		}
	}

	app := &types.App{
		Config:    cfg,
		Store:     redisStore,
		Redis:     redisStore,
		Source:    source,
		Loader:    ld,
		Refresher: refresh.New(source, ld, logger),
		View:      view.New(ld, source, logger),
		Stats:     stats.New(redisStore, source, sink, logger),
		History:   historyDB,
		Logger:    logger,
	}

	if cfg.SSEEnabled {
		url := client.SubscribeURL(
			events.EventV1Funds,
			events.EventV2Funds,
			events.EventListings,
			events.EventSales,
		)
		app.Events = events.NewSubscriber(url, events.NewHandler(ld, source, logger), nil, logger)
	} else {
		logger.Info("SSE disabled - live events will not be applied")
	}

	if err := app.SetupScheduler(ctx); err != nil {
		logger.Fatal("Unable to set up scheduler", zap.Error(err))
	}

	return app
}
