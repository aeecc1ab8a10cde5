package models

import (
	"errors"
	"fmt"
	"testing"
)

func TestKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&InvalidSymbolError{Input: "BTCUSDT"}, "invalid_symbol"},
		{&CredentialError{Exchange: "okx", Missing: []string{"password"}}, "credential"},
		{&ExchangeError{Exchange: "bybit", Message: "insufficient balance"}, "exchange"},
		{fmt.Errorf("fetch ticker: %w", &NetworkRequestError{Exchange: "gate", Retryable: true}), "network"},
		{&NotImplementedError{Exchange: "gate", Operation: "withdraw"}, "not_implemented"},
		{errors.New("boom"), "unknown"},
		{nil, ""},
	}
	for _, tt := range tests {
		if got := Kind(tt.err); got != tt.want {
			t.Errorf("Kind(%v)=%q want %q", tt.err, got, tt.want)
		}
	}
}

func TestRequireKeys(t *testing.T) {
	err := RequireKeys("okx", ApiKeys{APIKey: "k", Secret: " "}, "apiKey", "secret", "password")
	var ce *CredentialError
	if !errors.As(err, &ce) {
		t.Fatalf("expected CredentialError, got %v", err)
	}
	if len(ce.Missing) != 2 || ce.Missing[0] != "secret" || ce.Missing[1] != "password" {
		t.Fatalf("unexpected missing fields: %v", ce.Missing)
	}
	if err.Error() != "okx: secret and password required" {
		t.Fatalf("unexpected message: %s", err.Error())
	}
	if err := RequireKeys("binance", ApiKeys{APIKey: "k", Secret: "s"}, "apiKey", "secret"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(fmt.Errorf("wrap: %w", &NetworkRequestError{Retryable: true})) {
		t.Fatal("wrapped retryable network error not detected")
	}
	if IsRetryable(&NetworkRequestError{Status: 429}) {
		t.Fatal("429 must not be retryable")
	}
	if IsRetryable(&ExchangeError{Message: "bad"}) {
		t.Fatal("exchange errors are never retryable")
	}
}

func TestParamsString(t *testing.T) {
	p := Params{"qty": 0.5, "n": 3, "s": "x", "b": true}
	if got := p.String("qty"); got != "0.5" {
		t.Errorf("qty=%s", got)
	}
	if got := p.String("n"); got != "3" {
		t.Errorf("n=%s", got)
	}
	if got := p.String("missing"); got != "" {
		t.Errorf("missing=%s", got)
	}
	if keys := p.Keys(); len(keys) != 4 || keys[0] != "b" || keys[3] != "s" {
		t.Errorf("keys=%v", keys)
	}
	if w := p.Without("s", "b"); len(w) != 2 || len(p) != 4 {
		t.Errorf("Without mutated or failed: %v %v", w, p)
	}
}

func TestMarketBaseQuote(t *testing.T) {
	m := Market{Symbol: "ETH/USDT", MarketType: MarketLinear}
	if m.Base() != "ETH" || m.Quote() != "USDT" {
		t.Fatalf("base=%s quote=%s", m.Base(), m.Quote())
	}
}
