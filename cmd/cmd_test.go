package cmd

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cointrade/config"
	"cointrade/models"
)

func TestParseParams(t *testing.T) {
	p, err := parseParams(`{"tickSize":"0.01","leverage":5,"reduceOnly":true}`)
	if err != nil {
		t.Fatal(err)
	}
	if p.String("tickSize") != "0.01" || models.FormatValue(p["leverage"]) != "5" || models.FormatValue(p["reduceOnly"]) != "true" {
		t.Fatalf("params %v", p)
	}
	if p, err := parseParams("  "); err != nil || p != nil {
		t.Fatalf("empty: %v %v", p, err)
	}
	if _, err := parseParams(`[1,2]`); err == nil {
		t.Fatal("array should be rejected")
	}
}

func TestParseOrder(t *testing.T) {
	cases := []struct {
		args []string
		ok   bool
	}{
		{[]string{"BTC/USDT", "BUY", "limit", "0.5", "60000"}, true},
		{[]string{"BTC/USDT", "sell", "market", "1"}, true},
		{[]string{"BTC/USDT", "buy", "limit", "1"}, false},
		{[]string{"BTC/USDT", "buy", "market", "-1"}, false},
		{[]string{"BTC/USDT", "buy", "limit", "1", "abc"}, false},
	}
	for _, c := range cases {
		req, err := parseOrder(c.args)
		if (err == nil) != c.ok {
			t.Errorf("%v: %v", c.args, err)
		}
		if c.ok && req.Side != strings.ToLower(c.args[1]) {
			t.Errorf("side %s", req.Side)
		}
	}
}

func TestExchangeOptions(t *testing.T) {
	cfg := config.Default()
	cfg.Exchanges["binance"] = config.ExchangeConfig{Timeout: 2 * time.Second, AltBaseURLs: map[string]string{"papi": "http://papi"}, RecvWindow: 5000}
	cfg.Sessions.GRVTTTL = time.Hour
	_, opts := exchangeOptions(&cfg, nil)
	if len(opts) != 10 {
		t.Fatalf("options for %d exchanges", len(opts))
	}
	b := opts["binance"]
	if b.Timeout != 2*time.Second || b.URL("papi", "x") != "http://papi" || b.RecvWindow != 5000 {
		t.Errorf("binance %+v", b)
	}
	if opts["grvt"].SessionTTL != time.Hour || opts["bluefin"].SessionTTL != 30*time.Minute {
		t.Errorf("session ttls %v %v", opts["grvt"].SessionTTL, opts["bluefin"].SessionTTL)
	}
}

func TestPrintError(t *testing.T) {
	var buf bytes.Buffer
	printError(&buf, &models.CredentialError{Exchange: "okx", Missing: []string{"password"}})
	if buf.String() != "credential: okx: password required\n" {
		t.Errorf("got %q", buf.String())
	}
	buf.Reset()
	printError(&buf, errors.New("boom"))
	if buf.String() != "error: boom\n" {
		t.Errorf("got %q", buf.String())
	}
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cfgPath := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(cfgPath, []byte("app:\n  name: test\nlogging:\n  level: error\n  output: stderr\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	root, a := newRootCmd()
	var out bytes.Buffer
	a.out = &out
	root.SetArgs(append([]string{"--config", cfgPath}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestTickerCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("instId") != "BTC-USDT" {
			t.Errorf("query %s", r.URL.RawQuery)
		}
		w.Write([]byte(`{"code":"0","msg":"","data":[{"instId":"BTC-USDT","last":"64000.1","bidPx":"64000","askPx":"64000.2","high24h":"65000","low24h":"63000","vol24h":"1200","ts":"1714566645123"}]}`))
	}))
	defer srv.Close()

	t.Setenv("APP_ENV", "")
	cfgDir := t.TempDir()
	cfgPath := filepath.Join(cfgDir, "config.yml")
	os.WriteFile(cfgPath, []byte("app:\n  name: test\nlogging:\n  level: error\n  output: stderr\nexchanges:\n  okx:\n    base_url: "+srv.URL+"\n"), 0o600)

	root, a := newRootCmd()
	var out bytes.Buffer
	a.out = &out
	root.SetArgs([]string{"--config", cfgPath, "-e", "okx", "ticker", "BTC/USDT"})
	if err := root.ExecuteContext(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), `"last": 64000.1`) {
		t.Fatalf("output %s", out.String())
	}
}

func TestCommandErrors(t *testing.T) {
	t.Setenv("COINTRADE_API_KEY", "")
	t.Setenv("COINTRADE_SECRET", "")
	if _, err := run(t, "ticker", "BTC/USDT"); err == nil || !strings.Contains(err.Error(), "--exchange is required") {
		t.Fatalf("missing exchange: %v", err)
	}
	if _, err := run(t, "-e", "mtgox", "ticker", "BTC/USDT"); err == nil || !strings.Contains(err.Error(), "unknown exchange") {
		t.Fatalf("unknown exchange: %v", err)
	}
	if _, err := run(t, "-e", "binance", "balance"); !errors.Is(err, models.ErrCredential) {
		t.Fatalf("missing credentials: %v", err)
	}
	if _, err := run(t, "-e", "binance", "keys", "derive"); err == nil || !strings.Contains(err.Error(), "does not manage") {
		t.Fatalf("key manager: %v", err)
	}
}

func TestExchangesCommand(t *testing.T) {
	out, err := run(t, "exchanges")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, `"name": "polymarket"`) || !strings.Contains(out, `"keyManager": true`) {
		t.Fatalf("output %s", out)
	}
}
