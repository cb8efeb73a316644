// Package history persists market snapshots to ClickHouse.
package history

import (
	"context"
	"fmt"

	"github.com/1satmarket/marketapi/pkg/db/clickhouse"
	"github.com/1satmarket/marketapi/pkg/stats"
	"go.uber.org/zap"
)

const (
	MarketTable = "market_snapshots"
	TokenTable  = "token_snapshots"
)

// DB is a stats.Sink backed by ClickHouse.
type DB struct {
	Client *clickhouse.Client
	Logger *zap.Logger
}

var _ stats.Sink = (*DB)(nil)

// New connects and creates the snapshot tables when missing.
func New(ctx context.Context, logger *zap.Logger, dsn, dbName string) (*DB, error) {
	client, err := clickhouse.New(ctx, logger, dsn, dbName, clickhouse.DefaultPoolConfig())
	if err != nil {
		return nil, err
	}
	db := &DB{Client: client, Logger: logger.Named("history")}
	if err := db.InitializeDB(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return db, nil
}

func (db *DB) InitializeDB(ctx context.Context) error {
	for _, q := range schema(db.Client.Database) {
		if err := db.Client.Exec(ctx, q); err != nil {
			return fmt.Errorf("create snapshot table: %w", err)
		}
	}
	return nil
}

func schema(database string) []string {
	return []string{
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS "%s"."%s" (
			at DateTime64(3),
			height UInt64,
			rate Float64,
			total_market_cap Float64,
			total_volume_24h Float64,
			bsv20_count UInt32,
			bsv21_count UInt32
		) ENGINE = %s
		ORDER BY at
	`, database, MarketTable, clickhouse.MergeTree),
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS "%s"."%s" (
			at DateTime64(3),
			family LowCardinality(String),
			token_key String,
			price Float64,
			market_cap Float64,
			pct_change Float64,
			holders Int64
		) ENGINE = %s
		ORDER BY (family, token_key, at)
	`, database, TokenTable, clickhouse.MergeTree),
	}
}

// WriteSnapshot appends one market row and one row per token.
func (db *DB) WriteSnapshot(ctx context.Context, snap stats.Snapshot) error {
	if err := db.insert(ctx, MarketTable, marketColumns, [][]any{marketRow(snap)}); err != nil {
		return err
	}
	return db.insert(ctx, TokenTable, tokenColumns, tokenRows(snap))
}

func (db *DB) Close() error {
	return db.Client.Close()
}

const (
	marketColumns = "at, height, rate, total_market_cap, total_volume_24h, bsv20_count, bsv21_count"
	tokenColumns  = "at, family, token_key, price, market_cap, pct_change, holders"
)

func (db *DB) insert(ctx context.Context, table, columns string, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}
	query := fmt.Sprintf(`INSERT INTO "%s"."%s" (%s) VALUES`, db.Client.Database, table, columns)
	batch, err := db.Client.PrepareBatch(ctx, query)
	if err != nil {
		return err
	}
	defer func() { _ = batch.Close() }()

	for _, row := range rows {
		if err := batch.Append(row...); err != nil {
			_ = batch.Abort()
			return err
		}
	}
	return batch.Send()
}

func marketRow(snap stats.Snapshot) []any {
	return []any{
		snap.At.UTC(),
		snap.Height,
		snap.Rate,
		snap.Stats.TotalMarketCapBSV,
		snap.Stats.TotalVolume24hBSV,
		uint32(snap.Stats.Assets.BSV20),
		uint32(snap.Stats.Assets.BSV21),
	}
}

func tokenRows(snap stats.Snapshot) [][]any {
	rows := make([][]any, 0, len(snap.Tokens))
	for _, t := range snap.Tokens {
		rows = append(rows, []any{
			snap.At.UTC(),
			string(t.Family),
			t.Key,
			t.Price,
			t.MarketCap,
			t.PctChange,
			t.Holders,
		})
	}
	return rows
}
