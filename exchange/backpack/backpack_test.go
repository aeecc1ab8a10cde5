package backpack

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cointrade/exchange"
	"cointrade/internal/signer"
	"cointrade/models"
)

func testKeys() (models.ApiKeys, ed25519.PublicKey) {
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = byte(i + 1)
	}
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	return models.ApiKeys{
		APIKey: base64.StdEncoding.EncodeToString(pub),
		Secret: base64.StdEncoding.EncodeToString(seed),
	}, pub
}

func newDriver(t *testing.T, h http.HandlerFunc) *Driver {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(exchange.Options{
		BaseURL: srv.URL,
		Backoff: time.Millisecond,
		Now:     func() time.Time { return time.UnixMilli(1714566645123) },
	})
}

func verify(t *testing.T, r *http.Request, pub ed25519.PublicKey, want string) {
	t.Helper()
	sig, err := base64.StdEncoding.DecodeString(r.Header.Get("X-Signature"))
	if err != nil {
		t.Fatalf("signature header: %v", err)
	}
	if !ed25519.Verify(pub, []byte(want), sig) {
		t.Errorf("signature does not cover %q", want)
	}
}

func TestBookReversesBids(t *testing.T) {
	d := newDriver(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("symbol") != "SOL_USDC_PERP" {
			t.Errorf("query %s", r.URL.RawQuery)
		}
		w.Write([]byte(`{"asks":[["150.1","2"],["150.2","1"]],"bids":[["149.7","1"],["149.8","4"],["149.9","3"]],"lastUpdateId":"1","timestamp":1714566645123456}`))
	})
	book, err := d.FetchOrderBook(context.Background(), "", "SOL/USDC:USDC", 2)
	if err != nil {
		t.Fatal(err)
	}
	if book.Bids[0] != (models.Level{149.9, 3}) || len(book.Bids) != 2 {
		t.Fatalf("bids %+v", book.Bids)
	}
	if book.Timestamp != 1714566645123 {
		t.Errorf("timestamp %d", book.Timestamp)
	}
}

func TestCreateOrderInstruction(t *testing.T) {
	keys, pub := testKeys()
	d := newDriver(t, func(w http.ResponseWriter, r *http.Request) {
		io.ReadAll(r.Body)
		verify(t, r, pub, "instruction=orderExecute&orderType=Limit&price=150&quantity=2&side=Bid&symbol=SOL_USDC&timestamp=1714566645123&window=15000")
		if r.Header.Get("X-Window") != "15000" {
			t.Errorf("window %q", r.Header.Get("X-Window"))
		}
		w.Write([]byte(`{"id":"111","clientId":null,"symbol":"SOL_USDC","side":"Bid","orderType":"Limit","price":"150","quantity":"2","executedQuantity":"0","status":"New","createdAt":1714566645123}`))
	})
	o, err := d.CreateOrder(context.Background(), "", keys, models.OrderRequest{Symbol: "SOL/USDC", Type: "limit", Side: "buy", Amount: 2, Price: 150})
	if err != nil {
		t.Fatal(err)
	}
	if o.ID != "111" || o.Side != "buy" || o.Status != models.StatusOpen || o.Remaining != 2 {
		t.Fatalf("order %+v", o)
	}
}

func TestOpenOrdersSignsQuery(t *testing.T) {
	keys, pub := testKeys()
	d := newDriver(t, func(w http.ResponseWriter, r *http.Request) {
		verify(t, r, pub, "instruction=orderQueryAll&symbol=SOL_USDC&timestamp=1714566645123&window=15000")
		w.Write([]byte(`[{"id":"1","side":"Ask","orderType":"Limit","price":"160","quantity":"1","executedQuantity":"0.5","status":"PartiallyFilled"}]`))
	})
	got, err := d.FetchOpenOrders(context.Background(), "", keys, models.OrderQuery{Symbol: "SOL/USDC"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Side != "sell" || got[0].Remaining != 0.5 {
		t.Fatalf("orders %+v", got)
	}
}

func TestErrorPrefix(t *testing.T) {
	keys, _ := testKeys()
	d := newDriver(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":"INVALID_ORDER","message":"Order would immediately match"}`))
	})
	_, err := d.CancelOrder(context.Background(), "", keys, "1", "SOL/USDC", nil)
	var ex *models.ExchangeError
	if !errors.As(err, &ex) || ex.Message != "Backpack error:Order would immediately match" {
		t.Fatalf("unexpected %v", err)
	}
}

func TestCustomRequestInstruction(t *testing.T) {
	keys, pub := testKeys()
	d := newDriver(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("instruction") != "" {
			t.Errorf("instruction leaked into query")
		}
		verify(t, r, pub, "instruction=balanceQuery&timestamp=1714566645123&window=15000")
		w.Write([]byte(`{"SOL":{"available":"1","locked":"0","staked":"0"}}`))
	})
	_, err := d.CustomRequest(context.Background(), "", &keys, models.CustomRequest{
		Path:   "/api/v1/capital",
		Method: "get",
		Extra:  models.Params{"instruction": "balanceQuery"},
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestMissingSecret(t *testing.T) {
	d := newDriver(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("request sent without credentials")
	})
	_, err := d.FetchBalance(context.Background(), "", models.ApiKeys{APIKey: "k"}, "")
	if !errors.Is(err, models.ErrCredential) {
		t.Fatalf("expected credential error, got %v", err)
	}
}

func TestStatuses(t *testing.T) {
	tests := map[string]models.OrderStatus{
		"New":             models.StatusOpen,
		"PartiallyFilled": models.StatusOpen,
		"TriggerPending":  models.StatusOpen,
		"TriggerFailed":   models.StatusRejected,
		"Filled":          models.StatusClosed,
		"Cancelled":       models.StatusCanceled,
		"Expired":         models.StatusExpired,
	}
	for raw, want := range tests {
		if got := Statuses.Map(raw); got != want {
			t.Errorf("%s: got %q want %q", raw, got, want)
		}
	}
}

var _ signer.Signer = instruction{}
