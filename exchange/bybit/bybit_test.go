package bybit

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"cointrade/exchange"
	"cointrade/models"
)

var keys = models.ApiKeys{APIKey: "key", Secret: "secret"}

func newDriver(t *testing.T, h http.HandlerFunc) (*Driver, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		h(w, r)
	}))
	t.Cleanup(srv.Close)
	return New(exchange.Options{
		BaseURL: srv.URL,
		Backoff: time.Millisecond,
		Now:     func() time.Time { return time.UnixMilli(1714566645123) },
	}), &hits
}

func TestFetchTicker(t *testing.T) {
	d, _ := newDriver(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if r.URL.Path != "/v5/market/tickers" || q.Get("category") != "linear" || q.Get("symbol") != "BTCUSDT" {
			t.Errorf("unexpected %s", r.URL)
		}
		w.Write([]byte(`{"retCode":0,"retMsg":"OK","result":{"category":"linear","list":[
			{"symbol":"BTCUSDT","lastPrice":"64000","bid1Price":"63999.5","ask1Price":"64000.5","highPrice24h":"65000","lowPrice24h":"63000","volume24h":"1234.5"}]}}`))
	})
	tk, err := d.FetchTicker(context.Background(), "", "BTC/USDT:USDT")
	if err != nil {
		t.Fatal(err)
	}
	want := models.Ticker{Symbol: "BTC/USDT:USDT", Last: 64000, Bid: 63999.5, Ask: 64000.5, High: 65000, Low: 63000, Volume: 1234.5}
	if tk != want {
		t.Fatalf("ticker %+v", tk)
	}
}

func TestFetchOrderBookViaSDK(t *testing.T) {
	d, _ := newDriver(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v5/market/orderbook" || r.URL.Query().Get("limit") != "5" {
			t.Errorf("unexpected %s", r.URL)
		}
		w.Write([]byte(`{"retCode":0,"retMsg":"OK","result":{"s":"BTCUSDT",
			"a":[["101","1"],["102","1"],["103","1"],["104","1"],["105","1"]],
			"b":[["100","1"],["99","1"],["98","1"],["97","1"],["96","1"]],
			"ts":1714566600000,"u":1},"time":1714566600001}`))
	})
	book, err := d.FetchOrderBook(context.Background(), "", "BTC/USDT", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(book.Asks) != 5 || len(book.Bids) != 5 || book.Timestamp != 1714566600000 {
		t.Fatalf("book %+v", book)
	}
	if book.Asks[0][0] != 101 || book.Bids[0][0] != 100 {
		t.Fatalf("best levels %v %v", book.Asks[0], book.Bids[0])
	}
}

func TestFetchOrderBookRejectsLimit(t *testing.T) {
	d, hits := newDriver(t, func(w http.ResponseWriter, r *http.Request) {})
	if _, err := d.FetchOrderBook(context.Background(), "", "BTC/USDT", 1000); !errors.Is(err, models.ErrExchange) {
		t.Fatalf("expected exchange error, got %v", err)
	}
	if *hits != 0 {
		t.Fatal("no request expected")
	}
}

func TestEnvelopeError(t *testing.T) {
	d, hits := newDriver(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"retCode":10001,"retMsg":"params error: symbol invalid","result":{}}`))
	})
	_, err := d.FetchTicker(context.Background(), "", "FOO/USDT")
	var ex *models.ExchangeError
	if !errors.As(err, &ex) || ex.Message != "params error: symbol invalid" || ex.Code != "10001" {
		t.Fatalf("unexpected %v", err)
	}
	if *hits != 1 {
		t.Fatalf("business error retried %d times", *hits)
	}
}

func TestCreateOrder(t *testing.T) {
	d, hits := newDriver(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v5/order/create" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("X-BAPI-SIGN") == "" || r.Header.Get("X-BAPI-TIMESTAMP") != "1714566645123" || r.Header.Get("X-BAPI-RECV-WINDOW") != "10000" {
			t.Errorf("missing signature headers: %v", r.Header)
		}
		var body map[string]interface{}
		b, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(b, &body); err != nil {
			t.Fatal(err)
		}
		if body["side"] != "Sell" || body["orderType"] != "Market" || body["marketUnit"] != "baseCoin" || body["qty"] != "0.5" || body["category"] != "spot" {
			t.Errorf("body %s", b)
		}
		if _, ok := body["price"]; ok {
			t.Errorf("market order must not carry a price")
		}
		w.Write([]byte(`{"retCode":0,"retMsg":"OK","result":{"orderId":"1321003749386327552","orderLinkId":"spot-test-postonly"},"time":1714566645200}`))
	})
	o, err := d.CreateOrder(context.Background(), "", keys, models.OrderRequest{Symbol: "BTC/USDT", Type: "market", Side: "sell", Amount: 0.5, Price: 123})
	if err != nil {
		t.Fatal(err)
	}
	if o.ID != "1321003749386327552" || o.ClientOrderID != "spot-test-postonly" || o.Status != models.StatusOpen || *hits != 1 {
		t.Fatalf("order %+v", o)
	}
}

func TestFetchOrderFallsBackToHistory(t *testing.T) {
	d, _ := newDriver(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v5/order/realtime":
			w.Write([]byte(`{"retCode":0,"result":{"list":[]}}`))
		case "/v5/order/history":
			w.Write([]byte(`{"retCode":0,"result":{"list":[{"orderId":"42","orderLinkId":"","price":"60000","avgPrice":"60000",
				"qty":"0.01","cumExecQty":"0.01","leavesQty":"0","side":"Buy","orderType":"Limit","orderStatus":"Filled","createdTime":"1714566645000"}]}}`))
		default:
			t.Errorf("unexpected %s", r.URL.Path)
		}
	})
	o, err := d.FetchOrder(context.Background(), "", keys, "42", "BTC/USDT:USDT", nil)
	if err != nil {
		t.Fatal(err)
	}
	if o.ID != "42" || o.Status != models.StatusClosed || o.Side != "buy" || o.Type != "limit" || o.Timestamp != 1714566645000 {
		t.Fatalf("order %+v", o)
	}
}

func TestFetchBalance(t *testing.T) {
	d, _ := newDriver(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("accountType") != "UNIFIED" || r.Header.Get("X-BAPI-API-KEY") != "key" {
			t.Errorf("unexpected %s", r.URL)
		}
		w.Write([]byte(`{"retCode":0,"result":{"list":[{"accountType":"UNIFIED","coin":[{"coin":"USDT","walletBalance":"100.5","locked":"0.5"}]}]},"time":1714566645000}`))
	})
	bal, err := d.FetchBalance(context.Background(), "", keys, "")
	if err != nil {
		t.Fatal(err)
	}
	if e := bal.Assets["USDT"]; e.Free != 100 || e.Used != 0.5 || e.Total != 100.5 {
		t.Fatalf("balance %+v", bal.Assets)
	}
}

func TestFetchOHLCVAscending(t *testing.T) {
	d, _ := newDriver(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("interval") != "60" {
			t.Errorf("interval %s", r.URL.Query().Get("interval"))
		}
		w.Write([]byte(`{"retCode":0,"result":{"list":[
			["1714563600000","2","3","1","2.5","10","25"],
			["1714560000000","1","2","0.5","1.5","5","7"]]}}`))
	})
	c, err := d.FetchOHLCV(context.Background(), "", "BTC/USDT", "1h", 0, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(c) != 2 || c[0][0] > c[1][0] {
		t.Fatalf("candles not ascending: %v", c)
	}
}

func TestStatusesComplete(t *testing.T) {
	for _, raw := range []string{"New", "PartiallyFilled", "Untriggered", "Rejected", "PartiallyFilledCanceled", "Filled", "Cancelled", "Triggered", "Deactivated"} {
		if !Statuses.Map(raw).Known() {
			t.Errorf("status %s is not mapped", raw)
		}
	}
}
