package rate

import (
	"net/http"
	"testing"

	"cointrade/internal/metrics"
	"cointrade/logger"
)

func TestParseUsage(t *testing.T) {
	tests := []struct {
		exchange string
		headers  map[string]string
		want     Usage
		ok       bool
	}{
		{"binance", map[string]string{"X-MBX-USED-WEIGHT-1m": "37"}, Usage{Used: 37}, true},
		{"bybit", map[string]string{"X-Bapi-Limit": "120", "X-Bapi-Limit-Status": "100"}, Usage{Used: 20, Limit: 120, Remaining: 100}, true},
		{"bybit", map[string]string{"X-RateLimit-Limit": "10", "X-RateLimit-Remaining": "9"}, Usage{Used: 1, Limit: 10, Remaining: 9}, true},
		{"kucoin", map[string]string{"gw-ratelimit-limit": "2000", "gw-ratelimit-remaining": "1990"}, Usage{Used: 10, Limit: 2000, Remaining: 1990}, true},
		{"gate", map[string]string{"X-Gate-RateLimit-Limit": "200", "X-Gate-RateLimit-Requests-Remain": "150"}, Usage{Used: 50, Limit: 200, Remaining: 150}, true},
		{"okx", map[string]string{"Rate-Limit-Limit": "20", "Rate-Limit-Remaining": "15"}, Usage{Used: 5}, true},
		{"binance", map[string]string{}, Usage{}, false},
		{"backpack", map[string]string{"X-MBX-USED-WEIGHT-1m": "1"}, Usage{}, false},
	}
	for _, tt := range tests {
		h := http.Header{}
		for k, v := range tt.headers {
			h.Set(k, v)
		}
		got, ok := ParseUsage(tt.exchange, h)
		if ok != tt.ok || got != tt.want {
			t.Errorf("%s %v: got %+v,%v want %+v,%v", tt.exchange, tt.headers, got, ok, tt.want, tt.ok)
		}
	}
}

func TestReportUsedWeightEmits(t *testing.T) {
	events := make(chan metrics.Metric, 4)
	t.Cleanup(metrics.Subscribe(func(m metrics.Metric) { events <- m }, "used_weight", "remaining_weight"))

	h := http.Header{}
	h.Set("X-Bapi-Limit", "120")
	h.Set("X-Bapi-Limit-Status", "119")
	ReportUsedWeight(logger.GetLogger(), "bybit", h, "")

	first := <-events
	if first.Name != "used_weight" || first.Value != int64(1) || first.Component != "bybit_transport" {
		t.Fatalf("unexpected metric %+v", first)
	}
	second := <-events
	if second.Name != "remaining_weight" || second.Value != int64(119) {
		t.Fatalf("unexpected metric %+v", second)
	}
}

func TestReportStatus(t *testing.T) {
	events := make(chan metrics.Metric, 2)
	t.Cleanup(metrics.Subscribe(func(m metrics.Metric) { events <- m }))

	ReportStatus(nil, "binance", "/api/v3/depth", "", 418)
	ReportStatus(nil, "binance", "/api/v3/depth", "", 200)
	if m := <-events; m.Name != "ip_ban" {
		t.Fatalf("unexpected metric %s", m.Name)
	}
	select {
	case m := <-events:
		t.Fatalf("unexpected extra metric %s", m.Name)
	default:
	}
}

func TestDetectLimit(t *testing.T) {
	cases := []struct {
		exchange string
		msg      string
		rate     bool
		ban      bool
	}{
		{"binance", "Too many requests", true, false},
		{"binance", "Way too much request weight used; IP banned until 1714566645", true, true},
		{"okx", "IP has been blocked for 60 seconds", false, true},
		{"kucoin", "429 Too Many Requests", true, false},
		{"bybit", "IP rate limit reached", false, true},
		{"gate", "TOO_MANY_REQUESTS", true, false},
		{"bitget", "Request too frequent", true, false},
		{"unknown", "hello world", false, false},
	}
	for _, c := range cases {
		rl, ban := detectLimit(c.exchange, c.msg)
		if rl != c.rate {
			t.Errorf("exchange %s: expected rateLimit %v got %v", c.exchange, c.rate, rl)
		}
		if ban != c.ban {
			t.Errorf("exchange %s: expected ipBan %v got %v", c.exchange, c.ban, ban)
		}
	}
}

func TestOkxMultiWindowUsage(t *testing.T) {
	h := http.Header{}
	h.Set("Rate-Limit-Limit", "20;w=2, 600;w=60")
	h.Set("Rate-Limit-Remaining", "18;w=2, 540;w=60")
	u, ok := ParseUsage("okx", h)
	if !ok || u.Used != 60 {
		t.Fatalf("got %+v,%v want used 60", u, ok)
	}
}
