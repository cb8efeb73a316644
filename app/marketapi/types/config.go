package types

import (
	"time"

	"github.com/1satmarket/marketapi/pkg/loader"
	"github.com/1satmarket/marketapi/pkg/upstream"
	"github.com/1satmarket/marketapi/pkg/utils"
)

// Config is the process configuration, read once from the environment.
type Config struct {
	Addr string

	APIHost       string
	ORDFSHost     string
	ChainInfoHost string
	RateHost      string

	// RecordTTL expires canonical records. Zero keeps them until overwritten.
	RecordTTL time.Duration
	// ExpirationTime bounds the cached exchange rate and percent changes.
	ExpirationTime time.Duration
	// RecordWorkers is how many tokens of one batch load at once.
	RecordWorkers int

	UpstreamTimeout time.Duration
	UpstreamRPS     int
	UpstreamBurst   int

	SSEEnabled  bool
	BootRefresh bool

	CronTickers string
	CronNames   string
	CronRates   string
	CronStats   string

	ClickHouseEnabled bool
	ClickHouseAddr    string
	ClickHouseDB      string
}

// LoadConfig reads Config from the environment.
func LoadConfig() Config {
	return Config{
		Addr: utils.Env("ADDR", ":3000"),

		APIHost:       utils.Env("API_HOST", upstream.DefaultAPIHost),
		ORDFSHost:     utils.Env("ORDFS_HOST", upstream.DefaultORDFSHost),
		ChainInfoHost: utils.Env("CHAIN_INFO_HOST", upstream.DefaultChainTipURL),
		RateHost:      utils.Env("RATE_HOST", upstream.DefaultRateURL),

		RecordTTL:      utils.EnvDuration("RECORD_TTL", 0),
		ExpirationTime: utils.EnvDuration("EXPIRATION_TIME", 15*time.Minute),
		RecordWorkers:  utils.EnvInt("LOADER_RECORD_WORKERS", loader.DefaultRecordWorkers),

		UpstreamTimeout: utils.EnvDuration("UPSTREAM_TIMEOUT", 15*time.Second),
		UpstreamRPS:     utils.EnvInt("UPSTREAM_RPS", 20),
		UpstreamBurst:   utils.EnvInt("UPSTREAM_BURST", 40),

		SSEEnabled:  utils.EnvBool("SSE_ENABLED", true),
		BootRefresh: utils.EnvBool("BOOT_REFRESH", true),

		CronTickers: utils.Env("CRON_TICKERS", "@every 10m"),
		CronNames:   utils.Env("CRON_NAMES", "@every 1h"),
		CronRates:   utils.Env("CRON_RATES", "@every 60s"),
		CronStats:   utils.Env("CRON_STATS", "@every 5m"),

		ClickHouseEnabled: utils.EnvBool("CLICKHOUSE_ENABLED", false),
		ClickHouseAddr:    utils.Env("CLICKHOUSE_ADDR", "clickhouse://localhost:9000"),
		ClickHouseDB:      utils.Env("CLICKHOUSE_DB", "marketapi"),
	}
}
