package logger

import (
	"bytes"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestWithComponent(t *testing.T) {
	log := Logger()
	entry := log.WithComponent("test")
	if v, ok := entry.Entry.Data["component"]; !ok || v != "test" {
		t.Fatalf("component field missing: %v", entry.Entry.Data)
	}
}

func TestConfigureInvalidLevel(t *testing.T) {
	// Ensure environment variables do not override the provided level
	t.Setenv("LOG_LEVEL", "")

	log := Logger()
	if err := log.Configure("invalid", "json", "stdout", 0); err == nil {
		t.Fatalf("expected error for invalid level")
	}
	if err := log.Configure("info", "xml", "stdout", 0); err == nil {
		t.Fatalf("expected error for invalid format")
	}
}

func TestConfigureFileOutput(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	path := filepath.Join(t.TempDir(), "cointrade.log")

	log := Logger()
	if err := log.Configure("info", "json", path, 0); err != nil {
		t.Fatalf("configure: %v", err)
	}
	log.WithComponent("test").Info("hello")

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(b), `"message":"hello"`) {
		t.Fatalf("unexpected log output: %s", b)
	}
}

func TestWithExchange(t *testing.T) {
	entry := Logger().WithExchange("okx")
	if entry.Entry.Data["component"] != "okx_transport" || entry.Entry.Data["exchange"] != "okx" {
		t.Fatalf("unexpected fields: %v", entry.Entry.Data)
	}
}

func TestRedactsCredentialFields(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	var buf bytes.Buffer
	log := Logger()
	log.Logger.SetOutput(&buf)

	log.WithFields(Fields{"api_key": "abc", "private_key": "0x01", "order_key": "visible"}).Info("keys")

	out := buf.String()
	if strings.Contains(out, "abc") || strings.Contains(out, "0x01") {
		t.Fatalf("credential leaked: %s", out)
	}
	if !strings.Contains(out, `"order_key":"visible"`) {
		t.Fatalf("unrelated field masked: %s", out)
	}
}

func TestLevelReportAndDebug(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	log := Logger()
	if err := log.Configure("report", "text", "stderr", 0); err != nil {
		t.Fatalf("configure: %v", err)
	}
	if log.DebugEnabled() {
		t.Fatalf("report level should log at info")
	}
	if err := log.Configure("debug", "json", "stderr", 0); err != nil {
		t.Fatalf("configure: %v", err)
	}
	if !log.DebugEnabled() {
		t.Fatalf("debug level not applied")
	}
}

func TestLogPerformanceEntryKeepsCallerFields(t *testing.T) {
	var buf bytes.Buffer
	log := Logger()
	log.Logger.SetOutput(&buf)

	fields := Fields{"exchange": "binance"}
	LogPerformanceEntry(log.WithComponent("x"), "binance_transport", "http_request", 1500*time.Microsecond, fields)
	if len(fields) != 1 {
		t.Fatalf("caller fields mutated: %v", fields)
	}
	if !strings.Contains(buf.String(), `"duration_ms":1.5`) {
		t.Fatalf("duration missing: %s", buf.String())
	}
}

func TestSafeHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("X-MBX-APIKEY", "k")
	h.Set("OK-ACCESS-SIGN", "s")
	h.Set("Cookie", "gravity=abc")
	h.Set("Content-Type", "application/json")

	got := SafeHeaders(h)
	for _, k := range []string{"X-Mbx-Apikey", "Ok-Access-Sign", "Cookie"} {
		if got[k] != "***" {
			t.Errorf("%s not masked: %v", k, got[k])
		}
	}
	if got["Content-Type"] != "application/json" {
		t.Errorf("content type should pass through")
	}
}

func TestRecordRequestCounters(t *testing.T) {
	RecordRequest("unit-test", 0, false, false)
	RecordRequest("unit-test", 1, true, true)

	c := ExchangeCounters()["unit-test"]
	if c["requests"] != 2 || c["retries"] != 1 || c["errors"] != 1 || c["rate_limited"] != 1 {
		t.Fatalf("unexpected counters %v", c)
	}
}

func TestDashboardBody(t *testing.T) {
	body := dashboardBody("CoinTrade", []string{"binance"})
	if !strings.Contains(body, `["CoinTrade","Retries","Exchange","binance"]`) {
		t.Fatalf("dashboard missing retry series: %s", body)
	}
}
