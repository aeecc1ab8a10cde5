package rate

import (
	"net/http"
	"strings"
)

// okxUsage reads OKX rate-limit headers. Both the standard and the "X-"
// prefixed variants are accepted. A header may carry several windows
// ("20;w=2, 600;w=60"); the busiest window wins.
func okxUsage(h http.Header) (Usage, bool) {
	limits := okxWindows(h, "Rate-Limit-Limit", "X-RateLimit-Limit")
	remaining := okxWindows(h, "Rate-Limit-Remaining", "X-RateLimit-Remaining")
	used := okxWindows(h, "Rate-Limit-Used", "X-RateLimit-Used")
	if len(limits) == 0 && len(used) == 0 {
		return Usage{}, false
	}

	var best int64
	for _, u := range used {
		if u > best {
			best = u
		}
	}
	for w, limit := range limits {
		r, ok := remaining[w]
		if !ok {
			continue
		}
		if diff := limit - r; diff > best {
			best = diff
		}
	}
	return Usage{Used: best}, true
}

// okxWindows maps window name to the largest value seen for it.
func okxWindows(h http.Header, names ...string) map[string]int64 {
	out := map[string]int64{}
	for _, name := range names {
		for _, raw := range h.Values(name) {
			for _, part := range strings.Split(raw, ",") {
				nums := extractInts(part)
				if len(nums) == 0 {
					continue
				}
				w := okxWindowName(part)
				if cur, ok := out[w]; !ok || nums[0] > cur {
					out[w] = nums[0]
				}
			}
		}
	}
	return out
}

func okxWindowName(part string) string {
	lower := strings.ToLower(part)
	for _, prefix := range []string{"window=", "w="} {
		if idx := strings.Index(lower, prefix); idx != -1 {
			rest := lower[idx+len(prefix):]
			if end := strings.IndexAny(rest, "; ,"); end != -1 {
				rest = rest[:end]
			}
			return rest
		}
	}
	return ""
}
