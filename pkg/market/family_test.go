package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFamily(t *testing.T) {
	f, err := ParseFamily("BSV20")
	require.NoError(t, err)
	assert.Equal(t, BSV20, f)

	f, err = ParseFamily("bsv20v2")
	require.NoError(t, err)
	assert.Equal(t, BSV21, f)

	_, err = ParseFamily("lrc20")
	assert.Error(t, err)
}

func TestKeyLayout(t *testing.T) {
	assert.Equal(t, "token-bsv20-ordi", TokenKey(BSV20, " ORDI "))
	assert.Equal(t, "listings-bsv21-abc_0", ListingsKey(BSV21, "ABC_0"))
	assert.Equal(t, "sales-bsv20-pepe", SalesKey(BSV20, "pepe"))
	assert.Equal(t, "sale-bsv20-pepe", SaleBodiesKey(BSV20, "pepe"))
	assert.Equal(t, "autofill-bsv21", AutofillKey(BSV21))
	assert.Equal(t, "included-bsv20", IncludedKey(BSV20))
	assert.Equal(t, "pct-1d-bsv20-ordi", PctChangeKey("1D", BSV20, "ORDI"))
	assert.Equal(t, "market:bsv21:updated", UpdatedChannel(BSV21))
	assert.Equal(t, "bsv21", FamilyFromChannel("market:bsv21:updated"))
	assert.Empty(t, FamilyFromChannel("bogus"))
}

func TestListingRefAndScore(t *testing.T) {
	l := Listing{Txid: "abc", Vout: 1}
	assert.Equal(t, "abc_1", l.Ref())
	assert.Equal(t, PendingSaleScore, l.SaleScore())

	l.Outpoint = "def_0"
	l.SpendHeight = 10
	assert.Equal(t, "def_0", l.Ref())
	assert.Equal(t, 10.0, l.SaleScore())
}
