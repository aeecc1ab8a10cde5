package grvt

import "strings"

// Instrument is the subset of GRVT instrument metadata needed to scale
// and sign orders.
type Instrument struct {
	Name         string
	Hash         string
	Base         string
	BaseDecimals int32
	TickSize     string
	MinSize      string
}

var instruments = []Instrument{
	{"BTC_USDT_Perp", "0x030501", "BTC", 9, "0.1", "0.001"},
	{"ETH_USDT_Perp", "0x030401", "ETH", 9, "0.01", "0.01"},
	{"SOL_USDT_Perp", "0x030601", "SOL", 9, "0.01", "0.1"},
	{"ARB_USDT_Perp", "0x030701", "ARB", 6, "0.0001", "1.0"},
	{"BNB_USDT_Perp", "0x030801", "BNB", 9, "0.01", "0.01"},
	{"TON_USDT_Perp", "0x030e01", "TON", 6, "0.0001", "1.0"},
	{"ZK_USDT_Perp", "0x030901", "ZK", 6, "0.00001", "1.0"},
	{"POL_USDT_Perp", "0x030a01", "POL", 6, "0.0001", "1.0"},
	{"OP_USDT_Perp", "0x030b01", "OP", 6, "0.0001", "1.0"},
	{"ATOM_USDT_Perp", "0x030c01", "ATOM", 6, "0.001", "1.0"},
	{"KPEPE_USDT_Perp", "0x030d01", "KPEPE", 3, "0.000001", "100.0"},
	{"XRP_USDT_Perp", "0x030f01", "XRP", 6, "0.0001", "10.0"},
	{"TRUMP_USDT_Perp", "0x031401", "TRUMP", 6, "0.001", "1.0"},
	{"SUI_USDT_Perp", "0x031501", "SUI", 6, "0.0001", "10.0"},
	{"FARTCOIN_USDT_Perp", "0x031c01", "FARTCOIN", 6, "0.0001", "100.0"},
	{"BERA_USDT_Perp", "0x032301", "BERA", 6, "0.0001", "10.0"},
}

// Lookup finds an instrument by its native name.
func Lookup(name string) (Instrument, bool) {
	for _, in := range instruments {
		if strings.EqualFold(in.Name, name) {
			return in, true
		}
	}
	return Instrument{}, false
}
