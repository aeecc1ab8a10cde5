package polymarket

import (
	"strings"

	"github.com/shopspring/decimal"
)

const tokenDecimals = 6

// rounding holds the decimal places for price, size and notional at one
// tick size.
type rounding struct {
	price, size, amount int32
}

var roundings = map[string]rounding{
	"0.1":    {price: 1, size: 2, amount: 3},
	"0.01":   {price: 2, size: 2, amount: 4},
	"0.001":  {price: 3, size: 2, amount: 5},
	"0.0001": {price: 4, size: 2, amount: 6},
}

func places(d decimal.Decimal) int32 {
	s := d.String()
	if i := strings.IndexByte(s, '.'); i >= 0 {
		return int32(len(s) - i - 1)
	}
	return 0
}

func roundNormal(d decimal.Decimal, n int32) decimal.Decimal {
	if places(d) <= n {
		return d
	}
	return d.Round(n)
}

func roundDown(d decimal.Decimal, n int32) decimal.Decimal {
	if places(d) <= n {
		return d
	}
	return d.RoundFloor(n)
}

func roundUp(d decimal.Decimal, n int32) decimal.Decimal {
	if places(d) <= n {
		return d
	}
	return d.RoundCeil(n)
}

func units(d decimal.Decimal) string {
	return d.Shift(tokenDecimals).Truncate(0).String()
}

// rawAmounts converts size and price into maker and taker amounts in
// 6-decimal token units. Buyers give collateral and take outcome tokens;
// sellers do the reverse.
func rawAmounts(side string, size, price float64, r rounding) (maker, taker string) {
	p := roundNormal(decimal.NewFromFloat(price), r.price)
	give := roundDown(decimal.NewFromFloat(size), r.size)
	notional := give.Mul(p)
	if places(notional) > r.amount {
		notional = roundUp(notional, r.amount+4)
		if places(notional) > r.amount {
			notional = roundDown(notional, r.amount)
		}
	}
	if side == "BUY" {
		return units(notional), units(give)
	}
	return units(give), units(notional)
}
