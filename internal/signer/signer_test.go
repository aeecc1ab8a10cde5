package signer

import (
	"crypto/ed25519"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
	"testing"
	"time"

	"cointrade/models"
)

var fixed = time.Date(2024, 5, 1, 12, 30, 45, 123000000, time.UTC)

func fixedClock() time.Time { return fixed }

const fixedMillis = "1714566645123"

func TestBinanceSign(t *testing.T) {
	req := NewRequest("get", "/api/v3/order")
	req.Query.Add("symbol", "BTCUSDT").Add("orderId", 42)

	s := Binance{Now: fixedClock}
	if err := s.Sign(req, models.ApiKeys{APIKey: "key", Secret: "secret"}); err != nil {
		t.Fatalf("sign: %v", err)
	}
	payload := "symbol=BTCUSDT&orderId=42&timestamp=" + fixedMillis + "&recvWindow=10000"
	want := payload + "&signature=" + HMACSHA256Hex("secret", payload)
	if got := req.Query.Encode(); got != want {
		t.Fatalf("query\n got %s\nwant %s", got, want)
	}
	if req.Header.Get("X-MBX-APIKEY") != "key" {
		t.Fatalf("missing api key header")
	}
}

func TestSignDeterministic(t *testing.T) {
	keys := models.ApiKeys{APIKey: "k", Secret: "s", Password: "p"}
	signers := map[string]Signer{
		"binance": Binance{Now: fixedClock},
		"bybit":   Bybit{Now: fixedClock},
		"okx":     OKX{Now: fixedClock},
		"bitget":  Bitget{Now: fixedClock},
		"gate":    Gate{Now: fixedClock},
		"kucoin":  KuCoin{Now: fixedClock},
	}
	for name, s := range signers {
		build := func() *Request {
			r := NewRequest("POST", "/v1/order")
			r.Query.Add("b", "2").Add("a", "1")
			r.Body = []byte(`{"qty":"1"}`)
			return r
		}
		a, b := build(), build()
		if err := s.Sign(a, keys); err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if err := s.Sign(b, keys); err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if a.URL() != b.URL() {
			t.Errorf("%s: url differs %s vs %s", name, a.URL(), b.URL())
		}
		for k := range a.Header {
			if a.Header.Get(k) != b.Header.Get(k) {
				t.Errorf("%s: header %s differs", name, k)
			}
		}
	}
}

func TestBybitSign(t *testing.T) {
	keys := models.ApiKeys{APIKey: "key", Secret: "secret"}
	get := NewRequest("GET", "/v5/order/realtime")
	get.Query.Add("category", "linear").Add("symbol", "BTCUSDT")
	if err := (Bybit{Now: fixedClock}).Sign(get, keys); err != nil {
		t.Fatalf("sign: %v", err)
	}
	want := HMACSHA256Hex("secret", fixedMillis+"key10000category=linear&symbol=BTCUSDT")
	if got := get.Header.Get("X-BAPI-SIGN"); got != want {
		t.Fatalf("get sign %s want %s", got, want)
	}

	post := NewRequest("POST", "/v5/order/cancel")
	post.Body = []byte(`{"category":"spot","orderId":"1"}`)
	if err := (Bybit{Now: fixedClock}).Sign(post, keys); err != nil {
		t.Fatalf("sign: %v", err)
	}
	want = HMACSHA256Hex("secret", fixedMillis+"key10000"+`{"category":"spot","orderId":"1"}`)
	if got := post.Header.Get("X-BAPI-SIGN"); got != want {
		t.Fatalf("post sign %s want %s", got, want)
	}
	if post.Header.Get("X-BAPI-RECV-WINDOW") != "10000" || post.Header.Get("X-BAPI-TIMESTAMP") != fixedMillis {
		t.Fatalf("unexpected headers: %v", post.Header)
	}
}

func TestOKXSign(t *testing.T) {
	req := NewRequest("GET", "/api/v5/asset/balances")
	req.Query.Add("ccy", "BTC")
	keys := models.ApiKeys{APIKey: "key", Secret: "secret", Password: "pass"}
	if err := (OKX{Now: fixedClock}).Sign(req, keys); err != nil {
		t.Fatalf("sign: %v", err)
	}
	ts := "2024-05-01T12:30:45.123Z"
	if req.Header.Get("OK-ACCESS-TIMESTAMP") != ts {
		t.Fatalf("timestamp %s", req.Header.Get("OK-ACCESS-TIMESTAMP"))
	}
	want := HMACSHA256Base64("secret", ts+"GET/api/v5/asset/balances?ccy=BTC")
	if got := req.Header.Get("OK-ACCESS-SIGN"); got != want {
		t.Fatalf("sign %s want %s", got, want)
	}
	if req.Header.Get("OK-ACCESS-PASSPHRASE") != "pass" {
		t.Fatal("passphrase header missing")
	}
}

func TestBitgetSortsQuery(t *testing.T) {
	req := NewRequest("GET", "/api/v2/spot/account/assets")
	req.Query.Add("symbol", "BTCUSDT").Add("coin", "USDT")
	keys := models.ApiKeys{APIKey: "key", Secret: "secret", Password: "pass"}
	if err := (Bitget{Now: fixedClock}).Sign(req, keys); err != nil {
		t.Fatalf("sign: %v", err)
	}
	if req.Query.Encode() != "coin=USDT&symbol=BTCUSDT" {
		t.Fatalf("query not sorted: %s", req.Query.Encode())
	}
	want := HMACSHA256Base64("secret", fixedMillis+"GET/api/v2/spot/account/assets?coin=USDT&symbol=BTCUSDT")
	if got := req.Header.Get("ACCESS-SIGN"); got != want {
		t.Fatalf("sign %s want %s", got, want)
	}
}

func TestGateSign(t *testing.T) {
	req := NewRequest("POST", "/api/v4/spot/orders")
	req.Body = []byte(`{"currency_pair":"BTC_USDT"}`)
	if err := (Gate{Now: fixedClock}).Sign(req, models.ApiKeys{APIKey: "key", Secret: "secret"}); err != nil {
		t.Fatalf("sign: %v", err)
	}
	sum := sha512.Sum512(req.Body)
	payload := "POST\n/api/v4/spot/orders\n\n" + hex.EncodeToString(sum[:]) + "\n1714566645"
	if got, want := req.Header.Get("SIGN"), HMACSHA512Hex("secret", payload); got != want {
		t.Fatalf("sign %s want %s", got, want)
	}
	if req.Header.Get("Timestamp") != "1714566645" {
		t.Fatalf("timestamp %s", req.Header.Get("Timestamp"))
	}
}

func TestKuCoinSign(t *testing.T) {
	keys := models.ApiKeys{APIKey: "key", Secret: "secret", Password: "pass"}
	get := NewRequest("GET", "/api/v1/accounts")
	get.Query.Add("currency", "USDT")
	if err := (KuCoin{Now: fixedClock}).Sign(get, keys); err != nil {
		t.Fatalf("sign: %v", err)
	}
	if got, want := get.Header.Get("KC-API-SIGN"), HMACSHA256Base64("secret", fixedMillis+"GET/api/v1/accounts?currency=USDT"); got != want {
		t.Fatalf("get sign %s want %s", got, want)
	}
	if got, want := get.Header.Get("KC-API-PASSPHRASE"), HMACSHA256Base64("secret", "pass"); got != want {
		t.Fatalf("passphrase %s want %s", got, want)
	}

	post := NewRequest("POST", "/api/v1/orders")
	post.Query.Add("ignored", "1")
	post.Body = []byte(`{"symbol":"BTC-USDT"}`)
	if err := (KuCoin{Now: fixedClock}).Sign(post, keys); err != nil {
		t.Fatalf("sign: %v", err)
	}
	if got, want := post.Header.Get("KC-API-SIGN"), HMACSHA256Base64("secret", fixedMillis+`POST/api/v1/orders{"symbol":"BTC-USDT"}`); got != want {
		t.Fatalf("post sign %s want %s", got, want)
	}
}

func TestCredentialValidation(t *testing.T) {
	tests := []struct {
		name string
		s    Signer
		keys models.ApiKeys
	}{
		{"binance", Binance{}, models.ApiKeys{APIKey: "k"}},
		{"okx", OKX{}, models.ApiKeys{APIKey: "k", Secret: "s"}},
		{"bitget", Bitget{}, models.ApiKeys{APIKey: "k", Secret: "s"}},
		{"kucoin", KuCoin{}, models.ApiKeys{Secret: "s", Password: "p"}},
		{"polymarket", Polymarket{}, models.ApiKeys{APIKey: "k", Secret: "c2VjcmV0"}},
		{"backpack", Backpack{}, models.ApiKeys{APIKey: "k"}},
	}
	for _, tt := range tests {
		req := NewRequest("GET", "/x")
		err := tt.s.Sign(req, tt.keys)
		if !errors.Is(err, models.ErrCredential) {
			t.Errorf("%s: expected credential error, got %v", tt.name, err)
		}
		if len(req.Header) != 0 {
			t.Errorf("%s: headers written despite missing credentials", tt.name)
		}
	}
}

func TestBackpackSign(t *testing.T) {
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = byte(i)
	}
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	keys := models.ApiKeys{
		APIKey: base64.StdEncoding.EncodeToString(pub),
		Secret: base64.StdEncoding.EncodeToString(seed),
	}

	req := NewRequest("POST", "/api/v1/order")
	req.Instruction = "orderExecute"
	req.Body = []byte(`{"symbol":"SOL_USDC","side":"Bid","quantity":1.5,"orderType":"Limit","price":"20"}`)
	if err := (Backpack{Now: fixedClock}).Sign(req, keys); err != nil {
		t.Fatalf("sign: %v", err)
	}
	msg := "instruction=orderExecute&orderType=Limit&price=20&quantity=1.5&side=Bid&symbol=SOL_USDC&timestamp=" + fixedMillis + "&window=15000"
	sig, err := base64.StdEncoding.DecodeString(req.Header.Get("X-Signature"))
	if err != nil {
		t.Fatalf("decode signature: %v", err)
	}
	if !ed25519.Verify(pub, []byte(msg), sig) {
		t.Fatalf("signature does not verify over %q", msg)
	}
	if req.Header.Get("X-Window") != "15000" || req.Header.Get("X-Timestamp") != fixedMillis {
		t.Fatalf("unexpected headers %v", req.Header)
	}

	get := NewRequest("GET", "/api/v1/account")
	get.Instruction = "accountQuery"
	if err := (Backpack{Now: fixedClock}).Sign(get, keys); err != nil {
		t.Fatalf("sign: %v", err)
	}
	sig, _ = base64.StdEncoding.DecodeString(get.Header.Get("X-Signature"))
	if !ed25519.Verify(pub, []byte("instruction=accountQuery&timestamp="+fixedMillis+"&window=15000"), sig) {
		t.Fatal("parameterless signature does not verify")
	}
}

func TestPolymarketL2Sign(t *testing.T) {
	secret := base64.URLEncoding.EncodeToString([]byte("polymarket-secret"))
	keys := models.ApiKeys{APIKey: "key", Secret: secret, Password: "pass", UID: "0xabc"}
	req := NewRequest("POST", "https://clob.polymarket.com/order")
	req.Body = []byte(`{"owner":"key"}`)
	if err := (Polymarket{Now: fixedClock}).Sign(req, keys); err != nil {
		t.Fatalf("sign: %v", err)
	}
	raw := base64.StdEncoding.EncodeToString(hmacSHA256([]byte("polymarket-secret"), []byte(`1714566645POST/order{"owner":"key"}`)))
	want := strings.NewReplacer("+", "-", "/", "_").Replace(raw)
	if got := req.Header.Get("POLY_SIGNATURE"); got != want {
		t.Fatalf("sign %s want %s", got, want)
	}
	if strings.ContainsAny(req.Header.Get("POLY_SIGNATURE"), "+/") {
		t.Fatal("signature is not url safe")
	}
	if req.Header.Get("POLY_ADDRESS") != "0xabc" {
		t.Fatal("address header missing")
	}
}

func TestParamsHelpers(t *testing.T) {
	var p Params
	p.Add("symbol", "BTCUSDT").AddIf("price", 0.0).AddIf("qty", 0.25)
	p.AddExtra(models.Params{"timeInForce": "GTC", "symbol": "ETHUSDT"})
	if got := p.Encode(); got != "symbol=ETHUSDT&qty=0.25&timeInForce=GTC" {
		t.Fatalf("encode %s", got)
	}
	req := &Request{Path: "/a?x=1", Query: p}
	if !strings.HasPrefix(req.URL(), "/a?x=1&symbol=") {
		t.Fatalf("url %s", req.URL())
	}
	abs := &Request{Path: "https://api.example.com/v1/x"}
	if abs.RequestPath() != "/v1/x" {
		t.Fatalf("request path %s", abs.RequestPath())
	}
}

func TestCloneResignsCleanly(t *testing.T) {
	orig := NewRequest("GET", "/api/v3/openOrders")
	orig.Query.Add("symbol", "BTCUSDT")
	keys := models.ApiKeys{APIKey: "k", Secret: "s"}

	first := orig.Clone()
	second := orig.Clone()
	if err := (Binance{Now: fixedClock}).Sign(first, keys); err != nil {
		t.Fatal(err)
	}
	if err := (Binance{Now: fixedClock}).Sign(second, keys); err != nil {
		t.Fatal(err)
	}
	if first.URL() != second.URL() {
		t.Fatalf("clones signed differently: %s vs %s", first.URL(), second.URL())
	}
	if orig.Query.Len() != 1 || len(orig.Header) != 0 {
		t.Fatal("signing a clone mutated the original")
	}
}
