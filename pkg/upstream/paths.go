package upstream

const (
	bsv20ListPath     = "/api/bsv20"
	bsv21ListPath     = "/api/bsv20/v2"
	bsv20DetailPath   = "/api/bsv20/tick/%s"
	bsv21DetailPath   = "/api/bsv20/id/%s"
	bsv20HoldersPath  = "/api/bsv20/tick/%s/holders"
	bsv21HoldersPath  = "/api/bsv20/id/%s/holders"
	marketListingPath = "/api/bsv20/market"
	marketSalesPath   = "/api/bsv20/market/sales"
	indexerStatsPath  = "/api/stats"
	subscribePath     = "/api/subscribe"
	ordfsContentPath  = "/content/%s"
)

// Default hosts.
const (
	DefaultAPIHost       = "https://ordinals.gorillapool.io"
	DefaultORDFSHost     = "https://ordfs.network"
	DefaultChainTipURL   = "https://junglebus.gorillapool.io/v1/block_header/tip"
	DefaultRateURL       = "https://api.whatsonchain.com/v1/bsv/main/exchangerate"
	DefaultSalesSample   = 20
	DefaultListingsLimit = 100
	DefaultHoldersLimit  = 100
)

// Push channels carried by the subscription endpoint.
const (
	ChannelV1Funds  = "v1funds"
	ChannelV2Funds  = "v2funds"
	ChannelListings = "bsv20listings"
	ChannelSales    = "bsv20sales"
)
