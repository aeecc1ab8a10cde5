package rate

import "net/http"

// bybitUsage reads Bybit rate-limit headers. Bybit has changed header
// names over time, so both the X-Bapi-* and the X-RateLimit-* variants
// are accepted.
func bybitUsage(h http.Header) (Usage, bool) {
	limit, okLimit := headerInt(h, "X-Bapi-Limit", "X-RateLimit-Limit")
	remaining, okRemaining := headerInt(h, "X-Bapi-Limit-Status", "X-RateLimit-Remaining")
	if !okLimit || !okRemaining {
		return Usage{}, false
	}
	used := limit - remaining
	if used < 0 {
		used = 0
	}
	return Usage{Used: used, Limit: limit, Remaining: remaining}, true
}
