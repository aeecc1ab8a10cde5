package models

// MarketType classifies a canonical symbol by its shape.
type MarketType string

const (
	MarketSpot    MarketType = "spot"
	MarketLinear  MarketType = "linear"
	MarketInverse MarketType = "inverse"
	MarketOption  MarketType = "option"
)

// Market is the parsed form of a canonical symbol. Symbol keeps the
// BASE/QUOTE part only; drivers rewrite it into their native token.
type Market struct {
	Symbol     string     `json:"symbol"`
	MarketType MarketType `json:"marketType"`
}

// Base returns the part of the symbol before the slash.
func (m Market) Base() string {
	for i := 0; i < len(m.Symbol); i++ {
		if m.Symbol[i] == '/' {
			return m.Symbol[:i]
		}
	}
	return m.Symbol
}

// Quote returns the part of the symbol after the slash.
func (m Market) Quote() string {
	for i := 0; i < len(m.Symbol); i++ {
		if m.Symbol[i] == '/' {
			return m.Symbol[i+1:]
		}
	}
	return ""
}

// Ticker numeric fields are zero when the exchange does not report them.
type Ticker struct {
	Symbol string  `json:"symbol"`
	Last   float64 `json:"last"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Volume float64 `json:"volume"`
}

// Level is a single [price, size] order book entry.
type Level [2]float64

func (l Level) Price() float64 { return l[0] }
func (l Level) Size() float64  { return l[1] }

// OrderBook keeps asks ascending and bids descending by price.
type OrderBook struct {
	Symbol    string      `json:"symbol"`
	Timestamp int64       `json:"timestamp"`
	Asks      []Level     `json:"asks"`
	Bids      []Level     `json:"bids"`
	Info      interface{} `json:"info,omitempty"`
}

// OHLCV is [timestamp, open, high, low, close, volume].
type OHLCV [6]float64

func (c OHLCV) Timestamp() int64 { return int64(c[0]) }
