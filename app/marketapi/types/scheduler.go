package types

import (
	"context"
	"fmt"
	"time"

	"github.com/1satmarket/marketapi/pkg/market"
	"github.com/1satmarket/marketapi/pkg/metrics"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduled job names, also used as metric labels.
const (
	JobTickers = "tickers"
	JobNames   = "names"
	JobRates   = "rates"
	JobStats   = "stats"
)

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}

// SetupScheduler registers the periodic jobs. Each job is skipped while its
// previous run is still going, and a panicking job is recovered and logged.
func (a *App) SetupScheduler(ctx context.Context) error {
	logger := cronLogger{s: a.Logger.Named("cron").Sugar()}
	a.Cron = cron.New(
		cron.WithSeconds(),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	jobs := []struct {
		name string
		expr string
		fn   func(context.Context) error
	}{
		{JobTickers, a.Config.CronTickers, a.refreshTickers},
		{JobNames, a.Config.CronNames, a.refreshNames},
		{JobRates, a.Config.CronRates, a.Stats.StoreRateInHistory},
		{JobStats, a.Config.CronStats, func(ctx context.Context) error {
			_, err := a.Stats.CalculateMarketStats(ctx)
			return err
		}},
	}

	for _, j := range jobs {
		if j.expr == "" || j.expr == "off" {
			a.Logger.Info("job disabled", zap.String("job", j.name))
			continue
		}
		if _, err := a.Cron.AddFunc(j.expr, a.runJob(ctx, j.name, j.fn)); err != nil {
			return fmt.Errorf("schedule %s (%q): %w", j.name, j.expr, err)
		}
	}
	return nil
}

// runJob wraps fn with metrics and error logging.
func (a *App) runJob(ctx context.Context, name string, fn func(context.Context) error) func() {
	return func() {
		if ctx.Err() != nil {
			return
		}
		start := time.Now()
		metrics.JobRuns.WithLabelValues(name).Inc()
		err := fn(ctx)
		metrics.JobLatency.WithLabelValues(name).Observe(time.Since(start).Seconds())
		if err != nil && ctx.Err() == nil {
			metrics.JobErrors.WithLabelValues(name).Inc()
			a.Logger.Error("job failed", zap.String("job", name), zap.Error(err))
			return
		}
		a.Logger.Debug("job done", zap.String("job", name), zap.Duration("took", time.Since(start)))
	}
}

func (a *App) refreshTickers(ctx context.Context) error {
	var firstErr error
	for _, f := range market.Families {
		res, err := a.Refresher.FetchTickers(ctx, f)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		a.Logger.Info("tickers refreshed",
			zap.String("family", string(f)),
			zap.Int("fetched", res.Fetched),
			zap.Int("loaded", res.Loaded),
			zap.Int("skipped", res.Skipped),
			zap.Int("failed", res.Failed),
		)
	}
	return firstErr
}

func (a *App) refreshNames(ctx context.Context) error {
	var firstErr error
	for _, f := range market.Families {
		n, err := a.Refresher.LoadAllNames(ctx, f)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		a.Logger.Info("names refreshed", zap.String("family", string(f)), zap.Int("count", n))
	}
	return firstErr
}

// StartCron starts the scheduler when one was set up.
func (a *App) StartCron() {
	if a.Cron == nil {
		return
	}
	a.Cron.Start()
	a.Logger.Info("Cron started", zap.Int("jobs", len(a.Cron.Entries())))
}

// StopCron stops the scheduler and waits for running jobs.
func (a *App) StopCron() {
	if a.Cron != nil {
		<-a.Cron.Stop().Done()
	}
}
