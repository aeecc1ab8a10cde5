package symbols

import (
	"strings"

	"cointrade/models"
)

// Native rewrites a parsed market into the exchange's own symbol format.
// Unknown exchanges get the canonical BASE/QUOTE form back.
func Native(exchange string, m models.Market) string {
	base, quote := m.Base(), m.Quote()
	switch strings.ToLower(exchange) {
	case "binance", "bybit", "bitget":
		return base + quote
	case "okx":
		return base + "-" + quote
	case "gate":
		return base + "_" + quote
	case "kucoin":
		if m.MarketType == models.MarketLinear {
			if base == "BTC" {
				base = "XBT"
			}
			return base + quote + "M"
		}
		return base + "-" + quote
	case "backpack":
		if m.MarketType == models.MarketLinear {
			return base + "_USDC_PERP"
		}
		return base + "_USDC"
	case "grvt":
		return base + "_USDT_Perp"
	case "bluefin":
		return base + "-PERP"
	}
	return m.Symbol
}

// OKXInstID is the instId used by OKX market and trade endpoints. Only spot
// and USDT swaps are addressable.
func OKXInstID(m models.Market) string {
	switch m.MarketType {
	case models.MarketSpot:
		return Native("okx", m)
	case models.MarketLinear:
		return Native("okx", m) + "-SWAP"
	}
	return ""
}

// OKXInstType maps a market type onto OKX instType.
func OKXInstType(m models.Market) string {
	switch m.MarketType {
	case models.MarketSpot:
		return "SPOT"
	case models.MarketLinear:
		return "SWAP"
	case models.MarketOption:
		return "OPTION"
	}
	return "FUTURES"
}

// FromNative converts an exchange symbol back into its canonical form.
// It understands the perp-style symbols that carry their own market type.
func FromNative(exchange, sym string) string {
	switch strings.ToLower(exchange) {
	case "bluefin":
		return strings.TrimSuffix(sym, "-PERP") + "/USDT:USDT"
	case "grvt":
		return strings.TrimSuffix(sym, "_USDT_Perp") + "/USDT:USDT"
	case "backpack":
		if strings.HasSuffix(sym, "_PERP") {
			return strings.TrimSuffix(sym, "_USDC_PERP") + "/USDC:USDC"
		}
		return strings.ReplaceAll(sym, "_", "/")
	case "kucoin":
		if strings.HasSuffix(sym, "M") && !strings.Contains(sym, "-") {
			sym = strings.TrimSuffix(sym, "M")
			if strings.HasPrefix(sym, "XBT") {
				sym = "BTC" + sym[3:]
			}
			return strings.TrimSuffix(sym, "USDT") + "/USDT:USDT"
		}
		return strings.ReplaceAll(sym, "-", "/")
	case "okx":
		if strings.HasSuffix(sym, "-SWAP") {
			return strings.TrimSuffix(strings.TrimSuffix(sym, "-SWAP"), "-USDT") + "/USDT:USDT"
		}
		return strings.ReplaceAll(sym, "-", "/")
	case "gate":
		return strings.ReplaceAll(sym, "_", "/")
	}
	return sym
}
