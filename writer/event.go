// Package writer records order activity and account fills. Events are
// journaled to S3 as parquet and optionally published to Kafka.
package writer

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"cointrade/models"
)

const (
	ActionCreate = "create"
	ActionCancel = "cancel"
	ActionTrade  = "trade"
)

// Event is one journal entry. The parquet tags define the S3 schema.
type Event struct {
	ID         string  `json:"id" parquet:"name=id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Exchange   string  `json:"exchange" parquet:"name=exchange, type=BYTE_ARRAY, convertedtype=UTF8"`
	Action     string  `json:"action" parquet:"name=action, type=BYTE_ARRAY, convertedtype=UTF8"`
	Symbol     string  `json:"symbol" parquet:"name=symbol, type=BYTE_ARRAY, convertedtype=UTF8"`
	OrderID    string  `json:"orderId" parquet:"name=order_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	TradeID    string  `json:"tradeId,omitempty" parquet:"name=trade_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Side       string  `json:"side,omitempty" parquet:"name=side, type=BYTE_ARRAY, convertedtype=UTF8"`
	Type       string  `json:"type,omitempty" parquet:"name=type, type=BYTE_ARRAY, convertedtype=UTF8"`
	Status     string  `json:"status,omitempty" parquet:"name=status, type=BYTE_ARRAY, convertedtype=UTF8"`
	Price      float64 `json:"price" parquet:"name=price, type=DOUBLE"`
	Amount     float64 `json:"amount" parquet:"name=amount, type=DOUBLE"`
	Filled     float64 `json:"filled" parquet:"name=filled, type=DOUBLE"`
	Fee        float64 `json:"fee" parquet:"name=fee, type=DOUBLE"`
	FeeAsset   string  `json:"feeAsset,omitempty" parquet:"name=fee_asset, type=BYTE_ARRAY, convertedtype=UTF8"`
	EventTime  int64   `json:"eventTime" parquet:"name=event_time, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	RecordedAt int64   `json:"recordedAt" parquet:"name=recorded_at, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	Info       string  `json:"info,omitempty" parquet:"name=info, type=BYTE_ARRAY, convertedtype=UTF8"`
}

var now = time.Now

func newEvent(exchange, action string) Event {
	return Event{ID: uuid.NewString(), Exchange: exchange, Action: action, RecordedAt: now().UnixMilli()}
}

func OrderEvent(exchange string, o models.Order) Event {
	e := newEvent(exchange, ActionCreate)
	e.Symbol = o.Symbol
	e.OrderID = o.ID
	e.Side = o.Side
	e.Type = o.Type
	e.Status = string(o.Status)
	e.Price = o.Price
	e.Amount = o.Amount
	e.Filled = o.Filled
	e.EventTime = o.Timestamp
	e.Info = string(o.Info)
	return e
}

func CancelEvent(exchange string, c models.CancelResult) Event {
	e := newEvent(exchange, ActionCancel)
	e.Symbol = c.Symbol
	e.OrderID = c.ID
	e.Status = string(models.StatusCanceled)
	e.EventTime = e.RecordedAt
	e.Info = string(c.Info)
	return e
}

func TradeEvents(exchange string, trades []models.Trade) []Event {
	out := make([]Event, 0, len(trades))
	for _, t := range trades {
		e := newEvent(exchange, ActionTrade)
		e.Symbol = t.Symbol
		e.OrderID = t.OrderID
		e.TradeID = t.ID
		e.Side = t.Side
		e.Price = t.Price
		e.Amount = t.Amount
		e.Filled = t.Amount
		e.Fee = t.Fee
		e.FeeAsset = t.FeeCurrency
		e.EventTime = t.Timestamp
		e.Info = string(t.Info)
		out = append(out, e)
	}
	return out
}

func (e Event) key() []byte { return []byte(e.Exchange + "|" + e.Symbol) }

func (e Event) marshal() ([]byte, error) { return json.Marshal(e) }
