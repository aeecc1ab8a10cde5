// Package normalize maps raw exchange JSON onto the models types.
//
// Drivers describe each shape with a typed table of Fields instead of
// hand-written extraction code. Numeric fields accept both JSON numbers
// and numeric strings since exchanges mix the two freely.
package normalize

import (
	"math"
	"strconv"
	"strings"

	"github.com/valyala/fastjson"
)

// Parse parses body with a fresh parser, so the tree may outlive the call.
func Parse(body []byte) (*fastjson.Value, error) {
	return fastjson.ParseBytes(body)
}

// Num reads path as a float. Numeric strings are parsed; missing,
// empty or malformed values yield 0.
func Num(v *fastjson.Value, path ...string) float64 {
	if v == nil {
		return 0
	}
	f := v.Get(path...)
	if f == nil {
		return 0
	}
	switch f.Type() {
	case fastjson.TypeNumber:
		n, _ := f.Float64()
		return n
	case fastjson.TypeString:
		return parseFloat(string(f.GetStringBytes()))
	}
	return 0
}

// Int reads path as an integer, truncating fractional values.
func Int(v *fastjson.Value, path ...string) int64 {
	return int64(Num(v, path...))
}

// Str reads path as a string. Numbers and booleans are rendered as they
// appear on the wire; null and missing values yield "".
func Str(v *fastjson.Value, path ...string) string {
	if v == nil {
		return ""
	}
	f := v.Get(path...)
	if f == nil {
		return ""
	}
	switch f.Type() {
	case fastjson.TypeString:
		return string(f.GetStringBytes())
	case fastjson.TypeNull:
		return ""
	default:
		return string(f.MarshalTo(nil))
	}
}

// Array returns the array at path, or nil.
func Array(v *fastjson.Value, path ...string) []*fastjson.Value {
	if v == nil {
		return nil
	}
	return v.GetArray(path...)
}

// Raw returns the JSON text at path, or nil when absent.
func Raw(v *fastjson.Value, path ...string) []byte {
	if v == nil {
		return nil
	}
	f := v.Get(path...)
	if f == nil {
		return nil
	}
	return f.MarshalTo(nil)
}

// Millis converts a seconds timestamp to milliseconds and leaves
// millisecond (or finer) values alone.
func Millis(ts int64) int64 {
	switch {
	case ts <= 0:
		return 0
	case ts < 1e12:
		return ts * 1000
	case ts >= 1e17:
		return ts / 1e6
	case ts >= 1e14:
		return ts / 1e3
	}
	return ts
}

func parseFloat(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0
	}
	return n
}

func itoa(i int) string { return strconv.Itoa(i) }
