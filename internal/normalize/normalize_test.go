package normalize

import (
	"testing"

	"github.com/valyala/fastjson"

	"cointrade/models"
)

func mustParse(t *testing.T, s string) *fastjson.Value {
	t.Helper()
	v, err := Parse([]byte(s))
	if err != nil {
		t.Fatalf("parse %s: %v", s, err)
	}
	return v
}

func TestNumAndStr(t *testing.T) {
	v := mustParse(t, `{"a":"1.5","b":2,"c":"","d":null,"e":"x","n":{"arr":[{"p":"3"}]},"nan":"NaN","inf":"Inf","ninf":"-infinity","big":"1e400"}`)
	tests := []struct {
		path []string
		want float64
	}{
		{[]string{"a"}, 1.5},
		{[]string{"b"}, 2},
		{[]string{"c"}, 0},
		{[]string{"d"}, 0},
		{[]string{"e"}, 0},
		{[]string{"missing"}, 0},
		{[]string{"n", "arr", "0", "p"}, 3},
		{[]string{"nan"}, 0},
		{[]string{"inf"}, 0},
		{[]string{"ninf"}, 0},
		{[]string{"big"}, 0},
	}
	for _, tt := range tests {
		if got := Num(v, tt.path...); got != tt.want {
			t.Errorf("Num(%v)=%v want %v", tt.path, got, tt.want)
		}
	}
	if Str(v, "b") != "2" || Str(v, "d") != "" || Str(v, "a") != "1.5" {
		t.Fatalf("unexpected string rendering")
	}
	if Num(nil, "a") != 0 || Str(nil, "a") != "" {
		t.Fatal("nil value must read as zero")
	}
}

func TestMillis(t *testing.T) {
	tests := []struct{ in, want int64 }{
		{0, 0},
		{1714566645, 1714566645000},
		{1714566645123, 1714566645123},
		{1714566645123456, 1714566645123},
		{1714566645123456789, 1714566645123},
	}
	for _, tt := range tests {
		if got := Millis(tt.in); got != tt.want {
			t.Errorf("Millis(%d)=%d want %d", tt.in, got, tt.want)
		}
	}
}

func TestStatusTablePassThrough(t *testing.T) {
	table := StatusTable{"NEW": models.StatusOpen, "FILLED": models.StatusClosed}
	if table.Map("NEW") != models.StatusOpen {
		t.Fatal("mapped value lost")
	}
	if got := table.Map("SOMETHING_ELSE"); got != "SOMETHING_ELSE" {
		t.Fatalf("unmapped status must pass through, got %q", got)
	}
}

func TestOrderMapping(t *testing.T) {
	m := OrderMapping{
		ID:            At("orderId"),
		ClientOrderID: At("clientOrderId"),
		Price:         NumAt("price"),
		Amount:        NumAt("origQty"),
		Filled:        NumAt("executedQty"),
		Side:          LowerAt("side"),
		Type:          LowerAt("type"),
		Status:        At("status"),
		Timestamp:     MillisAt("time"),
		Statuses:      StatusTable{"PARTIALLY_FILLED": models.StatusOpen},
	}
	v := mustParse(t, `{"orderId":123,"clientOrderId":"c1","price":"100.1","origQty":"0.3","executedQty":"0.1","side":"BUY","type":"LIMIT","status":"PARTIALLY_FILLED","time":1714566645}`)
	o := m.Order(v, "BTC/USDT")
	if o.ID != "123" || o.ClientOrderID != "c1" || o.Symbol != "BTC/USDT" {
		t.Fatalf("identity fields: %+v", o)
	}
	if o.Side != "buy" || o.Type != "limit" || o.Status != models.StatusOpen {
		t.Fatalf("transforms: %+v", o)
	}
	if o.Remaining != 0.2 {
		t.Fatalf("remaining %v", o.Remaining)
	}
	if o.Timestamp != 1714566645000 {
		t.Fatalf("timestamp %d", o.Timestamp)
	}
	if len(o.Info) == 0 {
		t.Fatal("raw info missing")
	}
}

func TestOrderMappingSymbolAndSides(t *testing.T) {
	m := OrderMapping{
		Symbol:     At("symbol"),
		Side:       At("side"),
		Status:     LowerAt("status"),
		Sides:      Sides{"Bid": "buy", "Ask": "sell"},
		SymbolFrom: func(s string) string { return "X:" + s },
	}
	o := m.Order(mustParse(t, `{"symbol":"SOL_USDC","side":"Ask","status":"New"}`), "fallback")
	if o.Symbol != "X:SOL_USDC" || o.Side != "sell" || o.Status != "new" {
		t.Fatalf("unexpected %+v", o)
	}
}

func TestScale(t *testing.T) {
	if got := ScaleE18("1500000000000000000"); got != 1.5 {
		t.Fatalf("e18 %v", got)
	}
	if got := Scale("123456", 6); got != 0.123456 {
		t.Fatalf("e6 %v", got)
	}
	if got := Unscale(0.0015, 9); got != "1500000" {
		t.Fatalf("unscale %s", got)
	}
	if got := Unscale(1.23456789019, 9); got != "1234567890" {
		t.Fatalf("unscale must truncate, got %s", got)
	}
	if got := E18At("v").Float(mustParse(t, `{"v":"25000000000000000000000"}`)); got != 25000 {
		t.Fatalf("field e18 %v", got)
	}
}

func TestBookConvention(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		spec LevelSpec
	}{
		{"native order", `{"asks":[["1","1"],["2","1"],["3","1"]],"bids":[["0.9","1"],["0.8","1"],["0.7","1"]]}`, ArrayLevels},
		{"reversed", `{"asks":[["3","1"],["2","1"],["1","1"]],"bids":[["0.7","1"],["0.8","1"],["0.9","1"]]}`, ArrayLevels},
		{"objects", `{"asks":[{"p":"2","s":1},{"p":"1","s":1},{"p":"3","s":1}],"bids":[{"p":"0.8","s":1},{"p":"0.9","s":1},{"p":"0.7","s":1}]}`, LevelSpec{Price: "p", Size: "s"}},
	}
	for _, tt := range tests {
		v := mustParse(t, tt.raw)
		book := Book("BTC/USDT", 42, Levels(Array(v, "asks"), tt.spec), Levels(Array(v, "bids"), tt.spec), 2, nil)
		if len(book.Asks) != 2 || len(book.Bids) != 2 {
			t.Fatalf("%s: limit not applied: %+v", tt.name, book)
		}
		if book.Asks[0].Price() != 1 || book.Asks[1].Price() != 2 {
			t.Errorf("%s: asks %v", tt.name, book.Asks)
		}
		if book.Bids[0].Price() != 0.9 || book.Bids[1].Price() != 0.8 {
			t.Errorf("%s: bids %v", tt.name, book.Bids)
		}
		if book.Timestamp != 42 {
			t.Errorf("%s: timestamp %d", tt.name, book.Timestamp)
		}
	}
}

func TestBookDefaultsTimestampAndEmptySides(t *testing.T) {
	book := Book("BTC/USDT", 0, nil, nil, 5, nil)
	if book.Timestamp == 0 {
		t.Fatal("timestamp must default to now")
	}
	if book.Asks == nil || book.Bids == nil {
		t.Fatal("sides must be empty slices, not nil")
	}
}

func TestCandlesSortedAscending(t *testing.T) {
	arr := mustParse(t, `[["1714566720000","2","3","1","2.5","10"],["1714566660000","1","2","0.5","2","5"]]`)
	c := Candles(arr.GetArray(), CandleSpec{})
	if len(c) != 2 || c[0].Timestamp() != 1714566660000 || c[1][4] != 2.5 {
		t.Fatalf("unexpected candles %v", c)
	}

	obj := mustParse(t, `[{"t":1714566660,"o":"1","h":"2","l":"0.5","c":"1.5","v":"7"}]`)
	c = Candles(obj.GetArray(), CandleSpec{Time: "t", Open: "o", High: "h", Low: "l", Close: "c", Volume: "v"})
	if c[0].Timestamp() != 1714566660000 || c[0][5] != 7 {
		t.Fatalf("object candles %v", c)
	}
}
