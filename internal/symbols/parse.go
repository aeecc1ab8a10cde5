// Package symbols parses canonical trading-pair strings and rewrites them
// into each exchange's native token.
package symbols

import (
	"regexp"
	"strings"

	"cointrade/models"
)

var patterns = []struct {
	re         *regexp.Regexp
	marketType models.MarketType
}{
	{regexp.MustCompile(`^[A-Z]+/[A-Z]+$`), models.MarketSpot},
	{regexp.MustCompile(`^[A-Z]+/USDT:USDT$`), models.MarketLinear},
	{regexp.MustCompile(`^[A-Z]+/USD:[A-Z]+$`), models.MarketInverse},
	{regexp.MustCompile(`^[A-Z]+/[A-Z]+:[A-Z]+-[0-9]+-[0-9]+-[CP]$`), models.MarketOption},
}

// Parse converts a canonical symbol such as BTC/USDT, BTC/USDT:USDT,
// BTC/USD:BTC or BTC/USD:BTC-211225-60000-P into a Market. Patterns are
// tried in fixed order; dated futures are not recognized.
func Parse(input string) (models.Market, error) {
	s := strings.ToUpper(strings.TrimSpace(input))
	for _, p := range patterns {
		if !p.re.MatchString(s) {
			continue
		}
		if i := strings.IndexByte(s, ':'); i >= 0 {
			s = s[:i]
		}
		return models.Market{Symbol: s, MarketType: p.marketType}, nil
	}
	return models.Market{}, &models.InvalidSymbolError{Input: input}
}

// Canonical renders a Market back into the canonical string that Parse
// accepts for spot, linear and inverse markets.
func Canonical(m models.Market) string {
	switch m.MarketType {
	case models.MarketLinear:
		return m.Symbol + ":USDT"
	case models.MarketInverse:
		return m.Symbol + ":" + m.Base()
	}
	return m.Symbol
}
