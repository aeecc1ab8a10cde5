// Package exchange defines the adapter contract every exchange driver
// implements, plus the pieces drivers share.
package exchange

import (
	"context"
	"encoding/json"

	"cointrade/models"
)

// Driver is the uniform adapter surface. Every call takes the proxy URI to
// dial through (empty for a direct connection). Private calls validate the
// credentials before any network I/O.
type Driver interface {
	Name() string

	FetchTicker(ctx context.Context, proxy, symbol string) (models.Ticker, error)
	FetchOrderBook(ctx context.Context, proxy, symbol string, limit int) (models.OrderBook, error)
	FetchOHLCV(ctx context.Context, proxy, symbol, timeframe string, since int64, limit int) ([]models.OHLCV, error)

	FetchBalance(ctx context.Context, proxy string, keys models.ApiKeys, coin string) (models.Balance, error)
	CreateOrder(ctx context.Context, proxy string, keys models.ApiKeys, req models.OrderRequest) (models.Order, error)
	CancelOrder(ctx context.Context, proxy string, keys models.ApiKeys, id, symbol string, extra models.Params) (models.CancelResult, error)
	CancelAllOrders(ctx context.Context, proxy string, keys models.ApiKeys, symbol string, extra models.Params) (models.CancelResult, error)
	FetchOrder(ctx context.Context, proxy string, keys models.ApiKeys, id, symbol string, extra models.Params) (models.Order, error)
	FetchOpenOrders(ctx context.Context, proxy string, keys models.ApiKeys, q models.OrderQuery) ([]models.Order, error)
	FetchClosedOrders(ctx context.Context, proxy string, keys models.ApiKeys, q models.OrderQuery) ([]models.Order, error)
	FetchMyTrades(ctx context.Context, proxy string, keys models.ApiKeys, q models.OrderQuery) ([]models.Trade, error)

	// CustomRequest signs the request when keys is non-nil and returns the
	// raw response body without normalization.
	CustomRequest(ctx context.Context, proxy string, keys *models.ApiKeys, req models.CustomRequest) (json.RawMessage, error)
	Withdraw(ctx context.Context, proxy string, keys models.ApiKeys, req models.WithdrawRequest) (json.RawMessage, error)
}
