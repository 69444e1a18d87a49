package market

import "time"

// Instrument is the metadata a provider exposes for a tradeable symbol.
type Instrument struct {
	Symbol     string
	Token      int64
	LotSize    int
	StrikeStep float64
	Expiry     time.Time
	Strike     float64
	Type       OptionType
}

// Underlyings holds static defaults for the index underlyings we trade.
var Underlyings = map[string]Instrument{
	"NIFTY": {
		Symbol:     "NIFTY",
		Token:      256265,
		LotSize:    75,
		StrikeStep: 50,
	},
	"BANKNIFTY": {
		Symbol:     "BANKNIFTY",
		Token:      260105,
		LotSize:    35,
		StrikeStep: 100,
	},
	"FINNIFTY": {
		Symbol:     "FINNIFTY",
		Token:      257801,
		LotSize:    65,
		StrikeStep: 50,
	},
}
