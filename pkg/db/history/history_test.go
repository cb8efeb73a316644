package history

import (
	"strings"
	"testing"
	"time"

	"github.com/1satmarket/marketapi/pkg/market"
	"github.com/1satmarket/marketapi/pkg/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotRows(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.FixedZone("x", 3600))
	snap := stats.Snapshot{
		At:     at,
		Rate:   40,
		Height: 850000,
		Stats: stats.MarketStats{
			TotalMarketCapBSV: 1000,
			TotalVolume24hBSV: 12,
			Assets:            stats.AssetCounts{BSV20: 2, BSV21: 1},
		},
		Tokens: []stats.TokenSnapshot{
			{Family: market.BSV20, Key: "ordi", Price: 2, MarketCap: 900, PctChange: 5, Holders: 10},
			{Family: market.BSV21, Key: "abc_0", Price: 1, MarketCap: 100},
		},
	}

	m := marketRow(snap)
	require.Len(t, m, len(strings.Split(marketColumns, ",")))
	assert.Equal(t, at.UTC(), m[0])
	assert.Equal(t, uint64(850000), m[1])
	assert.Equal(t, uint32(2), m[5])

	rows := tokenRows(snap)
	require.Len(t, rows, 2)
	for _, r := range rows {
		assert.Len(t, r, len(strings.Split(tokenColumns, ",")))
	}
	assert.Equal(t, "bsv20", rows[0][1])
	assert.Equal(t, "ordi", rows[0][2])
	assert.Equal(t, int64(10), rows[0][6])
}

func TestSchemaTargetsDatabase(t *testing.T) {
	qs := schema("market_history")
	require.Len(t, qs, 2)
	assert.Contains(t, qs[0], `"market_history"."market_snapshots"`)
	assert.Contains(t, qs[1], `"market_history"."token_snapshots"`)
	assert.Contains(t, qs[1], "ENGINE = MergeTree")
}
