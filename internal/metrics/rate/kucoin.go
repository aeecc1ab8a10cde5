package rate

import "net/http"

// kucoinUsage reads the gw-ratelimit-* headers KuCoin attaches to REST
// responses.
func kucoinUsage(h http.Header) (Usage, bool) {
	remaining, okRemaining := headerInt(h, "gw-ratelimit-remaining")
	limit, okLimit := headerInt(h, "gw-ratelimit-limit")
	if !okRemaining {
		return Usage{}, false
	}
	u := Usage{Remaining: remaining}
	if okLimit {
		u.Limit = limit
		u.Used = limit - remaining
		if u.Used < 0 {
			u.Used = 0
		}
	}
	return u, true
}

// gateUsage reads Gate's X-Gate-RateLimit-* headers.
func gateUsage(h http.Header) (Usage, bool) {
	limit, okLimit := headerInt(h, "X-Gate-RateLimit-Limit")
	remaining, okRemaining := headerInt(h, "X-Gate-RateLimit-Requests-Remain")
	if !okLimit || !okRemaining {
		return Usage{}, false
	}
	used := limit - remaining
	if used < 0 {
		used = 0
	}
	return Usage{Used: used, Limit: limit, Remaining: remaining}, true
}
