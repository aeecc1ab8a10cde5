// Package rate tracks exchange request budgets: used-weight headers on
// every response and rate-limit or ban wording in error messages.
package rate

import (
	"net/http"
	"strings"

	"cointrade/internal/metrics"
	"cointrade/logger"
)

// Usage is the request budget state reported by one response. Zero
// fields were not reported.
type Usage struct {
	Used      int64
	Limit     int64
	Remaining int64
}

// ParseUsage extracts the usage headers of exchange, if it sends any.
func ParseUsage(exchange string, h http.Header) (Usage, bool) {
	switch strings.ToLower(exchange) {
	case "binance":
		return binanceUsage(h)
	case "bybit":
		return bybitUsage(h)
	case "okx":
		return okxUsage(h)
	case "kucoin":
		return kucoinUsage(h)
	case "gate":
		return gateUsage(h)
	}
	return Usage{}, false
}

// ReportUsedWeight emits used_weight (and remaining_weight when known) for
// a response. Exchanges without usage headers emit nothing.
func ReportUsedWeight(log *logger.Log, exchange string, h http.Header, proxy string) {
	u, ok := ParseUsage(exchange, h)
	if !ok {
		return
	}
	fields := logger.Fields{"exchange": strings.ToLower(exchange), "proxy": proxy}
	metrics.EmitMetric(log, component(exchange), "used_weight", u.Used, "gauge", fields)
	if u.Limit > 0 {
		metrics.EmitMetric(log, component(exchange), "remaining_weight", u.Remaining, "gauge", fields)
	}
}
