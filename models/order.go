package models

import "encoding/json"

// OrderStatus is the normalized order state. Raw exchange values that have
// no mapping are carried through unchanged.
type OrderStatus string

const (
	StatusOpen     OrderStatus = "open"
	StatusClosed   OrderStatus = "closed"
	StatusCanceled OrderStatus = "canceled"
	StatusRejected OrderStatus = "rejected"
	StatusExpired  OrderStatus = "expired"
)

// Known reports whether s is one of the five normalized states.
func (s OrderStatus) Known() bool {
	switch s {
	case StatusOpen, StatusClosed, StatusCanceled, StatusRejected, StatusExpired:
		return true
	}
	return false
}

type Order struct {
	ID            string          `json:"id"`
	ClientOrderID string          `json:"clientOrderId"`
	Symbol        string          `json:"symbol"`
	Price         float64         `json:"price"`
	Average       float64         `json:"average"`
	Amount        float64         `json:"amount"`
	Filled        float64         `json:"filled"`
	Remaining     float64         `json:"remaining"`
	Side          string          `json:"side"`
	Type          string          `json:"type"`
	Status        OrderStatus     `json:"status"`
	Timestamp     int64           `json:"timestamp"`
	Info          json.RawMessage `json:"info,omitempty"`
}

// OrderRequest describes a new order. Price is ignored for market orders
// and required for limit orders.
type OrderRequest struct {
	Symbol string  `json:"symbol"`
	Type   string  `json:"type"`
	Side   string  `json:"side"`
	Amount float64 `json:"amount"`
	Price  float64 `json:"price,omitempty"`
	Extra  Params  `json:"params,omitempty"`
}

// IsMarket reports whether the request is a market order.
func (r OrderRequest) IsMarket() bool { return r.Type == "market" }

// OrderQuery selects orders or trades for a symbol.
type OrderQuery struct {
	Symbol string `json:"symbol"`
	Since  int64  `json:"since,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Extra  Params `json:"params,omitempty"`
}

type CancelResult struct {
	ID            string          `json:"id"`
	ClientOrderID string          `json:"clientOrderId,omitempty"`
	Symbol        string          `json:"symbol"`
	Info          json.RawMessage `json:"info,omitempty"`
}

// Trade is a single fill on the account.
type Trade struct {
	ID          string          `json:"id"`
	OrderID     string          `json:"orderId"`
	Symbol      string          `json:"symbol"`
	Side        string          `json:"side"`
	Price       float64         `json:"price"`
	Amount      float64         `json:"amount"`
	Fee         float64         `json:"fee"`
	FeeCurrency string          `json:"feeCurrency,omitempty"`
	Timestamp   int64           `json:"timestamp"`
	Info        json.RawMessage `json:"info,omitempty"`
}
