package rate

import (
	"strings"

	"cointrade/internal/metrics"
	"cointrade/logger"
)

func component(exchange string) string { return strings.ToLower(exchange) + "_transport" }

// ReportRateLimitExceeded increments the rate limit exceeded counter for the given
// exchange and request path. Additional fields such as exchange, path and proxy
// are attached to the log entry.
func ReportRateLimitExceeded(log *logger.Log, exchange, path, proxy string) {
	fields := logger.Fields{
		"exchange": strings.ToLower(exchange),
		"path":     path,
		"proxy":    proxy,
	}
	metrics.EmitMetric(log, component(exchange), "rate_limit_exceeded", int64(1), "counter", fields)
	logOrDefault(log).WithComponent(component(exchange)).WithFields(fields).Warn("rate limit exceeded")
}

// ReportIPBan increments the IP ban counter for the given exchange.
func ReportIPBan(log *logger.Log, exchange, path, proxy string) {
	fields := logger.Fields{
		"exchange": strings.ToLower(exchange),
		"path":     path,
		"proxy":    proxy,
	}
	metrics.EmitMetric(log, component(exchange), "ip_ban", int64(1), "counter", fields)
	logOrDefault(log).WithComponent(component(exchange)).WithFields(fields).Error("ip banned")
}

// detectLimit inspects the message returned from an exchange and determines whether
// it signals a rate limit exceed or an IP ban. The detection logic is customised per
// exchange as each one uses different wording.
func detectLimit(exchange, msg string) (rateLimit bool, ipBan bool) {
	lowerMsg := strings.ToLower(msg)
	switch strings.ToLower(exchange) {
	case "binance":
		rateLimit = strings.Contains(lowerMsg, "too many requests") || strings.Contains(lowerMsg, "rate limit") || strings.Contains(lowerMsg, "request weight")
		ipBan = strings.Contains(lowerMsg, "ip") && strings.Contains(lowerMsg, "ban")
	case "okx":
		rateLimit = strings.Contains(lowerMsg, "too many requests") || strings.Contains(lowerMsg, "frequency limit")
		ipBan = strings.Contains(lowerMsg, "ip") && (strings.Contains(lowerMsg, "blocked") || strings.Contains(lowerMsg, "ban"))
	case "kucoin":
		rateLimit = strings.Contains(lowerMsg, "too many requests") || strings.Contains(lowerMsg, "rate limit")
		ipBan = strings.Contains(lowerMsg, "ip") && strings.Contains(lowerMsg, "limit") && strings.Contains(lowerMsg, "triggered")
	case "bybit":
		ipBan = strings.Contains(lowerMsg, "ip rate limit") || (strings.Contains(lowerMsg, "ip") && strings.Contains(lowerMsg, "ban"))
		rateLimit = !ipBan && (strings.Contains(lowerMsg, "rate limit") || strings.Contains(lowerMsg, "too many requests") || strings.Contains(lowerMsg, "too many visits"))
	case "gate":
		rateLimit = strings.Contains(lowerMsg, "too_many_requests") || strings.Contains(lowerMsg, "too many requests") || strings.Contains(lowerMsg, "request rate limit")
		ipBan = strings.Contains(lowerMsg, "ip") && strings.Contains(lowerMsg, "forbidden")
	case "bitget":
		rateLimit = strings.Contains(lowerMsg, "too many requests") || strings.Contains(lowerMsg, "request too frequent") || strings.Contains(lowerMsg, "frequency")
		ipBan = strings.Contains(lowerMsg, "ip") && (strings.Contains(lowerMsg, "ban") || strings.Contains(lowerMsg, "blocked"))
	default:
		rateLimit = strings.Contains(lowerMsg, "rate limit") || strings.Contains(lowerMsg, "too many requests")
		ipBan = strings.Contains(lowerMsg, "ip") && strings.Contains(lowerMsg, "ban")
	}
	return
}

// ReportLimitFromMessage checks the provided message for rate limit or IP ban events
// based on exchange-specific keywords and records the appropriate metrics. No action
// is taken if the message does not match any known patterns.
func ReportLimitFromMessage(log *logger.Log, exchange, path, proxy, msg string) {
	rateLimit, ipBan := detectLimit(exchange, msg)
	if rateLimit {
		ReportRateLimitExceeded(log, exchange, path, proxy)
	}
	if ipBan {
		ReportIPBan(log, exchange, path, proxy)
	}
}

// ReportStatus records limits signalled by HTTP status alone: 429 is a
// rate limit, 418 is Binance's ban response.
func ReportStatus(log *logger.Log, exchange, path, proxy string, status int) {
	switch status {
	case 429:
		ReportRateLimitExceeded(log, exchange, path, proxy)
	case 418:
		ReportIPBan(log, exchange, path, proxy)
	}
}

func logOrDefault(log *logger.Log) *logger.Log {
	if log == nil {
		return logger.GetLogger()
	}
	return log
}
