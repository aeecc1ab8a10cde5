package normalize

import (
	"github.com/shopspring/decimal"
	"github.com/valyala/fastjson"
)

// Scale interprets raw as an integer in base units of 10^-decimals.
func Scale(raw string, decimals int32) float64 {
	if raw == "" {
		return 0
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0
	}
	return d.Shift(-decimals).InexactFloat64()
}

// ScaleE18 scales an 18-decimal fixed point value.
func ScaleE18(raw string) float64 { return Scale(raw, 18) }

// Unscale renders f in base units of 10^-decimals, rounding toward zero.
func Unscale(f float64, decimals int32) string {
	return decimal.NewFromFloat(f).Shift(decimals).Truncate(0).String()
}

// E18At reads an 18-decimal fixed point field.
func E18At(path ...string) Field {
	return Func(func(v *fastjson.Value) string {
		raw := Str(v, path...)
		if raw == "" {
			return ""
		}
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return ""
		}
		return d.Shift(-18).String()
	})
}

// Sub returns a - b without binary float drift.
func Sub(a, b float64) float64 {
	return decimal.NewFromFloat(a).Sub(decimal.NewFromFloat(b)).InexactFloat64()
}
