package exchange

import (
	"context"
	"encoding/json"

	"cointrade/models"
)

// Base answers every Driver method with a NotImplementedError. Drivers
// embed it and override what their exchange supports.
type Base struct {
	Exchange string
}

func (b Base) Name() string { return b.Exchange }

// Unsupported returns the error for an operation the driver lacks.
func (b Base) Unsupported(op string) error {
	return &models.NotImplementedError{Exchange: b.Exchange, Operation: op}
}

func (b Base) FetchTicker(ctx context.Context, proxy, symbol string) (models.Ticker, error) {
	return models.Ticker{}, b.Unsupported("fetchTicker")
}

func (b Base) FetchOrderBook(ctx context.Context, proxy, symbol string, limit int) (models.OrderBook, error) {
	return models.OrderBook{}, b.Unsupported("fetchOrderBook")
}

func (b Base) FetchOHLCV(ctx context.Context, proxy, symbol, timeframe string, since int64, limit int) ([]models.OHLCV, error) {
	return nil, b.Unsupported("fetchOHLCV")
}

func (b Base) FetchBalance(ctx context.Context, proxy string, keys models.ApiKeys, coin string) (models.Balance, error) {
	return models.Balance{}, b.Unsupported("fetchBalance")
}

func (b Base) CreateOrder(ctx context.Context, proxy string, keys models.ApiKeys, req models.OrderRequest) (models.Order, error) {
	return models.Order{}, b.Unsupported("createOrder")
}

func (b Base) CancelOrder(ctx context.Context, proxy string, keys models.ApiKeys, id, symbol string, extra models.Params) (models.CancelResult, error) {
	return models.CancelResult{}, b.Unsupported("cancelOrder")
}

func (b Base) CancelAllOrders(ctx context.Context, proxy string, keys models.ApiKeys, symbol string, extra models.Params) (models.CancelResult, error) {
	return models.CancelResult{}, b.Unsupported("cancelAllOrders")
}

func (b Base) FetchOrder(ctx context.Context, proxy string, keys models.ApiKeys, id, symbol string, extra models.Params) (models.Order, error) {
	return models.Order{}, b.Unsupported("fetchOrder")
}

func (b Base) FetchOpenOrders(ctx context.Context, proxy string, keys models.ApiKeys, q models.OrderQuery) ([]models.Order, error) {
	return nil, b.Unsupported("fetchOpenOrders")
}

func (b Base) FetchClosedOrders(ctx context.Context, proxy string, keys models.ApiKeys, q models.OrderQuery) ([]models.Order, error) {
	return nil, b.Unsupported("fetchClosedOrders")
}

func (b Base) FetchMyTrades(ctx context.Context, proxy string, keys models.ApiKeys, q models.OrderQuery) ([]models.Trade, error) {
	return nil, b.Unsupported("fetchMyTrades")
}

func (b Base) CustomRequest(ctx context.Context, proxy string, keys *models.ApiKeys, req models.CustomRequest) (json.RawMessage, error) {
	return nil, b.Unsupported("customRequest")
}

func (b Base) Withdraw(ctx context.Context, proxy string, keys models.ApiKeys, req models.WithdrawRequest) (json.RawMessage, error) {
	return nil, b.Unsupported("withdraw")
}
