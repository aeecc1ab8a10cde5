package rate

import (
	"net/http"
	"strconv"
	"strings"
)

// extractInts returns all integer substrings contained in s. Any non-digit
// characters are treated as separators. Missing or unparsable values result in
// an empty slice.
func extractInts(s string) []int64 {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r < '0' || r > '9'
	})
	nums := make([]int64, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		if n, err := strconv.ParseInt(p, 10, 64); err == nil {
			nums = append(nums, n)
		}
	}
	return nums
}

// headerInt returns the first integer in the first present header.
func headerInt(h http.Header, names ...string) (int64, bool) {
	for _, name := range names {
		if v := h.Get(name); v != "" {
			if nums := extractInts(v); len(nums) > 0 {
				return nums[0], true
			}
		}
	}
	return 0, false
}
