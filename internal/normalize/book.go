package normalize

import (
	"sort"
	"time"

	"github.com/valyala/fastjson"

	"cointrade/models"
)

// LevelSpec describes how one book level is encoded. Array levels
// ([price, size, ...]) need no keys; object levels name their fields.
// Decimals > 0 marks fixed point values.
type LevelSpec struct {
	Price    string
	Size     string
	Decimals int32
}

// ArrayLevels is the common [price, size] encoding.
var ArrayLevels = LevelSpec{}

// Levels converts a raw level array.
func Levels(raw []*fastjson.Value, spec LevelSpec) []models.Level {
	out := make([]models.Level, 0, len(raw))
	for _, el := range raw {
		var price, size string
		if el.Type() == fastjson.TypeArray {
			price, size = Str(el, "0"), Str(el, "1")
		} else {
			price, size = Str(el, spec.Price), Str(el, spec.Size)
		}
		if spec.Decimals > 0 {
			out = append(out, models.Level{Scale(price, spec.Decimals), Scale(size, spec.Decimals)})
			continue
		}
		out = append(out, models.Level{parseFloat(price), parseFloat(size)})
	}
	return out
}

// Book assembles an order book in the asks ascending, bids descending
// convention, truncated to limit levels per side when limit > 0. A zero
// timestamp is replaced with the current time.
func Book(symbol string, ts int64, asks, bids []models.Level, limit int, info interface{}) models.OrderBook {
	if ts == 0 {
		ts = time.Now().UnixMilli()
	}
	book := models.OrderBook{Symbol: symbol, Timestamp: ts, Asks: asks, Bids: bids, Info: info}
	EnforceConvention(&book)
	if limit > 0 {
		if len(book.Asks) > limit {
			book.Asks = book.Asks[:limit]
		}
		if len(book.Bids) > limit {
			book.Bids = book.Bids[:limit]
		}
	}
	if book.Asks == nil {
		book.Asks = []models.Level{}
	}
	if book.Bids == nil {
		book.Bids = []models.Level{}
	}
	return book
}

// EnforceConvention stable-sorts asks ascending and bids descending by
// price. Already ordered input is left untouched.
func EnforceConvention(book *models.OrderBook) {
	sort.SliceStable(book.Asks, func(i, j int) bool { return book.Asks[i][0] < book.Asks[j][0] })
	sort.SliceStable(book.Bids, func(i, j int) bool { return book.Bids[i][0] > book.Bids[j][0] })
}

// Reverse reverses levels in place and returns them.
func Reverse(levels []models.Level) []models.Level {
	for i, j := 0, len(levels)-1; i < j; i, j = i+1, j-1 {
		levels[i], levels[j] = levels[j], levels[i]
	}
	return levels
}

// CandleSpec names the object keys of a candle; array candles use
// positions 0..5.
type CandleSpec struct {
	Time, Open, High, Low, Close, Volume string
	// Decimals > 0 scales prices and volume from fixed point.
	Decimals int32
}

// Candles converts raw candles and sorts them oldest first.
func Candles(raw []*fastjson.Value, spec CandleSpec) []models.OHLCV {
	out := make([]models.OHLCV, 0, len(raw))
	for _, el := range raw {
		var fields [6]string
		if el.Type() == fastjson.TypeArray {
			for i := range fields {
				fields[i] = Str(el, itoa(i))
			}
		} else {
			fields = [6]string{
				Str(el, spec.Time), Str(el, spec.Open), Str(el, spec.High),
				Str(el, spec.Low), Str(el, spec.Close), Str(el, spec.Volume),
			}
		}
		var c models.OHLCV
		c[0] = float64(Millis(int64(parseFloat(fields[0]))))
		for i := 1; i < 6; i++ {
			if spec.Decimals > 0 {
				c[i] = Scale(fields[i], spec.Decimals)
			} else {
				c[i] = parseFloat(fields[i])
			}
		}
		out = append(out, c)
	}
	SortCandles(out)
	return out
}

// SortCandles orders candles by timestamp ascending.
func SortCandles(c []models.OHLCV) {
	sort.SliceStable(c, func(i, j int) bool { return c[i][0] < c[j][0] })
}
