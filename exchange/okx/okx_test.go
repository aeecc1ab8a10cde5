package okx

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

var keys = models.ApiKeys{APIKey: "key", Secret: "secret", Password: "pass"}

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

func TestFetchOrderBook(t *testing.T) {
	d, _ := newDriver(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("instId") != "BTC-USDT-SWAP" || r.URL.Query().Get("sz") != "5" {
			t.Errorf("unexpected %s", r.URL)
		}
		w.Write([]byte(`{"code":"0","msg":"","data":[{
			"asks":[["101","1","0","1"],["102","1","0","1"],["103","1","0","1"],["104","1","0","1"],["105","1","0","1"]],
			"bids":[["100","1","0","1"],["99","1","0","1"],["98","1","0","1"],["97","1","0","1"],["96","1","0","1"]],
			"ts":"1714566600000"}]}`))
	})
	book, err := d.FetchOrderBook(context.Background(), "", "BTC/USDT:USDT", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(book.Asks) != 5 || len(book.Bids) != 5 || book.Timestamp != 1714566600000 {
		t.Fatalf("book %+v", book)
	}
	for i := 1; i < 5; i++ {
		if book.Asks[i][0] < book.Asks[i-1][0] || book.Bids[i][0] > book.Bids[i-1][0] {
			t.Fatalf("book out of order: %+v", book)
		}
	}
}

func TestInverseUnsupported(t *testing.T) {
	d, hits := newDriver(t, func(w http.ResponseWriter, r *http.Request) {})
	if _, err := d.FetchTicker(context.Background(), "", "BTC/USD:BTC"); !errors.Is(err, models.ErrExchange) {
		t.Fatalf("expected exchange error, got %v", err)
	}
	if *hits != 0 {
		t.Fatal("no request expected")
	}
}

func TestCreateOrderRejectedUsesSubMessage(t *testing.T) {
	d, hits := newDriver(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("OK-ACCESS-PASSPHRASE") != "pass" || r.Header.Get("OK-ACCESS-TIMESTAMP") != "2024-05-01T12:30:45.123Z" {
			t.Errorf("headers %v", r.Header)
		}
		var body map[string]interface{}
		b, _ := io.ReadAll(r.Body)
		json.Unmarshal(b, &body)
		if body["tdMode"] != "cash" || body["tgtCcy"] != "base_ccy" || body["instId"] != "BTC-USDT" {
			t.Errorf("body %s", b)
		}
		w.Write([]byte(`{"code":"1","msg":"Operation failed.","data":[{"ordId":"","sCode":"51008","sMsg":"Order failed. Insufficient USDT balance in account."}]}`))
	})
	_, err := d.CreateOrder(context.Background(), "", keys, models.OrderRequest{Symbol: "BTC/USDT", Type: "market", Side: "buy", Amount: 0.01})
	var ex *models.ExchangeError
	if !errors.As(err, &ex) || ex.Message != "Order failed. Insufficient USDT balance in account." {
		t.Fatalf("unexpected %v", err)
	}
	if *hits != 1 {
		t.Fatalf("hits %d", *hits)
	}
}

func TestCredentialsNeedPassphrase(t *testing.T) {
	d, hits := newDriver(t, func(w http.ResponseWriter, r *http.Request) {})
	_, err := d.FetchBalance(context.Background(), "", models.ApiKeys{APIKey: "k", Secret: "s"}, "")
	var ce *models.CredentialError
	if !errors.As(err, &ce) || len(ce.Missing) != 1 || ce.Missing[0] != "password" {
		t.Fatalf("unexpected %v", err)
	}
	if *hits != 0 {
		t.Fatal("no request expected")
	}
}

func TestFetchOpenOrders(t *testing.T) {
	d, _ := newDriver(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v5/trade/orders-pending" || r.URL.Query().Get("instType") != "SPOT" {
			t.Errorf("unexpected %s", r.URL)
		}
		w.Write([]byte(`{"code":"0","data":[{"ordId":"1","clOrdId":"c1","px":"60000","avgPx":"","sz":"0.02","accFillSz":"0.005",
			"side":"buy","ordType":"limit","state":"partially_filled","cTime":"1714566645000"}]}`))
	})
	got, err := d.FetchOpenOrders(context.Background(), "", keys, models.OrderQuery{Symbol: "BTC/USDT"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Status != models.StatusOpen || got[0].Remaining != 0.015 || got[0].ClientOrderID != "c1" {
		t.Fatalf("orders %+v", got)
	}
}

func TestFetchOHLCV(t *testing.T) {
	d, _ := newDriver(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("bar") != "1H" {
			t.Errorf("bar %s", r.URL.Query().Get("bar"))
		}
		w.Write([]byte(`{"code":"0","data":[["1714563600000","2","3","1","2.5","10","0","0","1"],["1714560000000","1","2","0.5","1.5","5","0","0","1"]]}`))
	})
	c, err := d.FetchOHLCV(context.Background(), "", "BTC/USDT", "1h", 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(c) != 2 || c[0][0] != 1714560000000 {
		t.Fatalf("candles %v", c)
	}
}

func TestWithdrawAppendsTag(t *testing.T) {
	d, _ := newDriver(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		b, _ := io.ReadAll(r.Body)
		json.Unmarshal(b, &body)
		if body["toAddr"] != "addr:memo" || body["dest"] != "4" || body["chain"] != "USDT-TRC20" {
			t.Errorf("body %s", b)
		}
		w.Write([]byte(`{"code":"0","data":[{"wdId":"67485","ccy":"USDT","amt":"10"}]}`))
	})
	raw, err := d.Withdraw(context.Background(), "", keys, models.WithdrawRequest{Coin: "usdt", Amount: 10, Address: "addr", Tag: "memo", Network: "USDT-TRC20"})
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != `[{"wdId":"67485","ccy":"USDT","amt":"10"}]` {
		t.Fatalf("raw %s", raw)
	}
}

func TestTradesFeeIsPositive(t *testing.T) {
	d, _ := newDriver(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"0","data":[{"tradeId":"9","ordId":"1","side":"sell","fillPx":"100","fillSz":"2","fee":"-0.2","feeCcy":"USDT","ts":"1714566645000"}]}`))
	})
	tr, err := d.FetchMyTrades(context.Background(), "", keys, models.OrderQuery{Symbol: "BTC/USDT"})
	if err != nil {
		t.Fatal(err)
	}
	if len(tr) != 1 || tr[0].Fee != 0.2 || tr[0].Side != "sell" {
		t.Fatalf("trades %+v", tr)
	}
}

func TestStatusesComplete(t *testing.T) {
	for _, raw := range []string{"live", "partially_filled", "filled", "canceled", "mmp_canceled"} {
		if !Statuses.Map(raw).Known() {
			t.Errorf("status %s is not mapped", raw)
		}
	}
}
