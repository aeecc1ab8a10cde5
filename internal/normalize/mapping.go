package normalize

import (
	"encoding/json"

	"github.com/valyala/fastjson"

	"cointrade/models"
)

// OrderMapping declares where each Order attribute lives in a raw order.
// Empty fields stay zero. Remaining defaults to Amount - Filled.
type OrderMapping struct {
	ID            Field
	ClientOrderID Field
	Symbol        Field
	Price         Field
	Average       Field
	Amount        Field
	Filled        Field
	Remaining     Field
	Side          Field
	Type          Field
	Status        Field
	Timestamp     Field

	Statuses StatusTable
	Sides    Sides
	// SymbolFrom rewrites a native symbol read through Symbol.
	SymbolFrom func(native string) string
}

// Order maps one raw order. symbol is used when the mapping has no
// Symbol field or the field is empty.
func (m OrderMapping) Order(v *fastjson.Value, symbol string) models.Order {
	o := models.Order{
		ID:            m.ID.String(v),
		ClientOrderID: m.ClientOrderID.String(v),
		Symbol:        symbol,
		Price:         m.Price.Float(v),
		Average:       m.Average.Float(v),
		Amount:        m.Amount.Float(v),
		Filled:        m.Filled.Float(v),
		Side:          m.Side.String(v),
		Type:          m.Type.String(v),
		Timestamp:     m.Timestamp.Int(v),
		Info:          json.RawMessage(v.MarshalTo(nil)),
	}
	if s := m.Symbol.String(v); s != "" {
		if m.SymbolFrom != nil {
			s = m.SymbolFrom(s)
		}
		o.Symbol = s
	}
	if m.Sides != nil {
		o.Side = m.Sides.Map(o.Side)
	}
	o.Status = m.Statuses.Map(m.Status.String(v))
	if m.Remaining.empty() {
		o.Remaining = Sub(o.Amount, o.Filled)
		if o.Remaining < 0 {
			o.Remaining = 0
		}
	} else {
		o.Remaining = m.Remaining.Float(v)
	}
	return o
}

// Orders maps every element of raw.
func (m OrderMapping) Orders(raw []*fastjson.Value, symbol string) []models.Order {
	out := make([]models.Order, 0, len(raw))
	for _, el := range raw {
		out = append(out, m.Order(el, symbol))
	}
	return out
}

// TickerMapping declares the Ticker fields.
type TickerMapping struct {
	Last, Bid, Ask, High, Low, Volume Field
}

func (m TickerMapping) Ticker(v *fastjson.Value, symbol string) models.Ticker {
	return models.Ticker{
		Symbol: symbol,
		Last:   m.Last.Float(v),
		Bid:    m.Bid.Float(v),
		Ask:    m.Ask.Float(v),
		High:   m.High.Float(v),
		Low:    m.Low.Float(v),
		Volume: m.Volume.Float(v),
	}
}

// TradeMapping declares the Trade fields.
type TradeMapping struct {
	ID, OrderID, Side, Price, Amount, Fee, FeeCurrency, Timestamp Field

	Sides Sides
}

func (m TradeMapping) Trade(v *fastjson.Value, symbol string) models.Trade {
	t := models.Trade{
		ID:          m.ID.String(v),
		OrderID:     m.OrderID.String(v),
		Symbol:      symbol,
		Side:        m.Side.String(v),
		Price:       m.Price.Float(v),
		Amount:      m.Amount.Float(v),
		Fee:         m.Fee.Float(v),
		FeeCurrency: m.FeeCurrency.String(v),
		Timestamp:   m.Timestamp.Int(v),
		Info:        json.RawMessage(v.MarshalTo(nil)),
	}
	if m.Sides != nil {
		t.Side = m.Sides.Map(t.Side)
	}
	return t
}

func (m TradeMapping) Trades(raw []*fastjson.Value, symbol string) []models.Trade {
	out := make([]models.Trade, 0, len(raw))
	for _, el := range raw {
		out = append(out, m.Trade(el, symbol))
	}
	return out
}
