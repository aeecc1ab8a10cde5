// Package bitget drives the Bitget v2 spot and USDT-M futures API.
package bitget

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/valyala/fastjson"

	"cointrade/exchange"
	"cointrade/internal/normalize"
	"cointrade/internal/signer"
	"cointrade/internal/symbols"
	"cointrade/internal/transport"
	"cointrade/models"
)

const (
	Name    = "bitget"
	BaseURL = "https://api.bitget.com"
	Timeout = 5 * time.Second

	productType = "USDT-FUTURES"
	marginCoin  = "USDT"
)

var Statuses = normalize.StatusTable{
	"live":             models.StatusOpen,
	"new":              models.StatusOpen,
	"init":             models.StatusOpen,
	"partially_filled": models.StatusOpen,
	"partial_fill":     models.StatusOpen,
	"filled":           models.StatusClosed,
	"full_fill":        models.StatusClosed,
	"cancelled":        models.StatusCanceled,
	"canceled":         models.StatusCanceled,
}

var orders = normalize.OrderMapping{
	ID:            normalize.At("orderId"),
	ClientOrderID: normalize.At("clientOid"),
	Price:         normalize.NumAt("price"),
	Average:       normalize.NumAt("priceAvg"),
	Amount:        normalize.NumAt("size"),
	Filled:        normalize.NumAt("baseVolume"),
	Side:          normalize.LowerAt("side"),
	Type:          normalize.LowerAt("orderType"),
	Status:        normalize.At("status"),
	Timestamp:     normalize.MillisAt("cTime"),
	Statuses:      Statuses,
}

var tickers = normalize.TickerMapping{
	Last:   normalize.NumAt("lastPr"),
	Bid:    normalize.NumAt("bidPr"),
	Ask:    normalize.NumAt("askPr"),
	High:   normalize.NumAt("high24h"),
	Low:    normalize.NumAt("low24h"),
	Volume: normalize.NumAt("baseVolume"),
}

var trades = normalize.TradeMapping{
	ID:          normalize.At("tradeId"),
	OrderID:     normalize.At("orderId"),
	Side:        normalize.LowerAt("side"),
	Price:       normalize.NumAt("priceAvg"),
	Amount:      normalize.NumAt("size"),
	Fee:         normalize.Func(func(v *fastjson.Value) string { return strings.TrimPrefix(normalize.Str(v, "feeDetail", "totalFee"), "-") }),
	FeeCurrency: normalize.At("feeDetail", "feeCoin"),
	Timestamp:   normalize.MillisAt("cTime"),
}

var codeEnvelope = transport.CodeEnvelope("code", []string{"00000"}, []string{"msg"})

func envelope(status int, v *fastjson.Value) *models.ExchangeError {
	ex := codeEnvelope(status, v)
	if ex != nil {
		ex.Message = "Bitget error:" + ex.Message
	}
	return ex
}

type Driver struct {
	exchange.Base
	now    func() int64
	client *transport.Client
	signer signer.Bitget
}

func New(opts exchange.Options) *Driver {
	return &Driver{
		Base:   exchange.Base{Exchange: Name},
		now:    opts.NowMillis,
		client: opts.Client(Name, BaseURL, Timeout, envelope, map[string]string{"Content-Type": "application/json", "locale": "en-US"}),
		signer: signer.Bitget{Now: opts.Clock()},
	}
}

func (d *Driver) market(symbol string) (models.Market, string, error) {
	m, err := symbols.Parse(symbol)
	if err != nil {
		return m, "", err
	}
	if m.MarketType != models.MarketSpot && m.MarketType != models.MarketLinear {
		return m, "", exchange.UnsupportedMarket(Name, m)
	}
	return m, symbols.Native(Name, m), nil
}

// pick returns the spot or futures path for m.
func pick(m models.Market, spot, mix string) string {
	if m.MarketType == models.MarketSpot {
		return spot
	}
	return mix
}

func (d *Driver) do(ctx context.Context, proxy, method, path string, q signer.Params, body interface{}, keys *models.ApiKeys, opts ...transport.Option) (*fastjson.Value, error) {
	req := signer.NewRequest(method, path)
	req.Query = q
	if body != nil {
		if err := req.SetJSON(body); err != nil {
			return nil, err
		}
	}
	if keys != nil {
		opts = append(opts, transport.Signed(d.signer, *keys))
	}
	resp, err := d.client.Do(ctx, proxy, req, opts...)
	if err != nil {
		return nil, err
	}
	v, err := exchange.Decode(Name, resp)
	if err != nil {
		return nil, err
	}
	return v.Get("data"), nil
}

// list unwraps futures responses that nest rows under entrustedList.
func list(data *fastjson.Value) []*fastjson.Value {
	if data == nil {
		return nil
	}
	if data.Type() == fastjson.TypeObject {
		return normalize.Array(data, "entrustedList")
	}
	return data.GetArray()
}

func (d *Driver) FetchTicker(ctx context.Context, proxy, symbol string) (models.Ticker, error) {
	m, native, err := d.market(symbol)
	if err != nil {
		return models.Ticker{}, err
	}
	var q signer.Params
	q.Add("symbol", native)
	if m.MarketType == models.MarketLinear {
		q.Add("productType", productType)
	}
	data, err := d.do(ctx, proxy, http.MethodGet, pick(m, "/api/v2/spot/market/tickers", "/api/v2/mix/market/ticker"), q, nil, nil)
	if err != nil {
		return models.Ticker{}, err
	}
	rows := list(data)
	if len(rows) == 0 {
		return models.Ticker{}, &models.ExchangeError{Exchange: Name, Message: "no ticker for " + native}
	}
	return tickers.Ticker(rows[0], symbol), nil
}

func (d *Driver) FetchOrderBook(ctx context.Context, proxy, symbol string, limit int) (models.OrderBook, error) {
	m, native, err := d.market(symbol)
	if err != nil {
		return models.OrderBook{}, err
	}
	limit, err = exchange.CheckLimit(Name, limit, 5)
	if err != nil {
		return models.OrderBook{}, err
	}
	var q signer.Params
	q.Add("symbol", native).Add("limit", limit)
	if m.MarketType == models.MarketLinear {
		q.Add("productType", productType)
	}
	data, err := d.do(ctx, proxy, http.MethodGet, pick(m, "/api/v2/spot/market/orderbook", "/api/v2/mix/market/merge-depth"), q, nil, nil)
	if err != nil {
		return models.OrderBook{}, err
	}
	return normalize.Book(symbol, normalize.Int(data, "ts"),
		normalize.Levels(normalize.Array(data, "asks"), normalize.ArrayLevels),
		normalize.Levels(normalize.Array(data, "bids"), normalize.ArrayLevels),
		limit, nil), nil
}

func (d *Driver) FetchBalance(ctx context.Context, proxy string, keys models.ApiKeys, coin string) (models.Balance, error) {
	var q signer.Params
	q.AddIf("coin", strings.ToUpper(coin))
	data, err := d.do(ctx, proxy, http.MethodGet, "/api/v2/spot/account/assets", q, nil, &keys)
	if err != nil {
		return models.Balance{}, err
	}
	bal := models.Balance{Info: exchange.RawJSON(data), Timestamp: d.now(), Assets: map[string]models.BalanceEntry{}}
	for _, r := range list(data) {
		free := normalize.Num(r, "available")
		used := normalize.Num(r, "frozen") + normalize.Num(r, "locked")
		bal.Assets[strings.ToUpper(normalize.Str(r, "coin"))] = models.BalanceEntry{Free: free, Used: used, Total: free + used}
	}
	return bal, nil
}

func (d *Driver) CreateOrder(ctx context.Context, proxy string, keys models.ApiKeys, req models.OrderRequest) (models.Order, error) {
	if err := exchange.CheckOrder(Name, req); err != nil {
		return models.Order{}, err
	}
	m, native, err := d.market(req.Symbol)
	if err != nil {
		return models.Order{}, err
	}
	body := map[string]interface{}{
		"symbol":    native,
		"side":      strings.ToLower(req.Side),
		"orderType": strings.ToLower(req.Type),
		"force":     "gtc",
		"size":      models.FormatValue(req.Amount),
	}
	if !req.IsMarket() {
		body["price"] = models.FormatValue(req.Price)
	}
	if m.MarketType == models.MarketLinear {
		body["productType"] = productType
		body["marginMode"] = "crossed"
		body["marginCoin"] = marginCoin
	}
	for k, v := range req.Extra {
		body[k] = v
	}
	data, err := d.do(ctx, proxy, http.MethodPost, pick(m, "/api/v2/spot/trade/place-order", "/api/v2/mix/order/place-order"), signer.Params{}, body, &keys, transport.NoRetry())
	if err != nil {
		return models.Order{}, err
	}
	return models.Order{
		ID:            normalize.Str(data, "orderId"),
		ClientOrderID: normalize.Str(data, "clientOid"),
		Symbol:        req.Symbol,
		Price:         req.Price,
		Amount:        req.Amount,
		Remaining:     req.Amount,
		Side:          strings.ToLower(req.Side),
		Type:          strings.ToLower(req.Type),
		Status:        models.StatusOpen,
		Info:          exchange.RawJSON(data),
	}, nil
}

func (d *Driver) CancelOrder(ctx context.Context, proxy string, keys models.ApiKeys, id, symbol string, extra models.Params) (models.CancelResult, error) {
	m, native, err := d.market(symbol)
	if err != nil {
		return models.CancelResult{}, err
	}
	body := map[string]interface{}{"symbol": native, "orderId": id}
	if m.MarketType == models.MarketLinear {
		body["productType"] = productType
		body["marginCoin"] = marginCoin
	}
	for k, v := range extra {
		body[k] = v
	}
	data, err := d.do(ctx, proxy, http.MethodPost, pick(m, "/api/v2/spot/trade/cancel-order", "/api/v2/mix/order/cancel-order"), signer.Params{}, body, &keys)
	if err != nil {
		return models.CancelResult{}, err
	}
	return models.CancelResult{
		ID:            normalize.Str(data, "orderId"),
		ClientOrderID: normalize.Str(data, "clientOid"),
		Symbol:        symbol,
		Info:          exchange.RawJSON(data),
	}, nil
}

func (d *Driver) listOrders(ctx context.Context, proxy string, keys models.ApiKeys, oq models.OrderQuery, spotPath, mixPath string) ([]models.Order, error) {
	m, native, err := d.market(oq.Symbol)
	if err != nil {
		return nil, err
	}
	var q signer.Params
	q.Add("symbol", native)
	if m.MarketType == models.MarketLinear {
		q.Add("productType", productType)
	}
	q.AddIf("startTime", oq.Since).AddIf("limit", oq.Limit).AddExtra(oq.Extra)
	data, err := d.do(ctx, proxy, http.MethodGet, pick(m, spotPath, mixPath), q, nil, &keys)
	if err != nil {
		return nil, err
	}
	return orders.Orders(list(data), oq.Symbol), nil
}

func (d *Driver) FetchOpenOrders(ctx context.Context, proxy string, keys models.ApiKeys, q models.OrderQuery) ([]models.Order, error) {
	return d.listOrders(ctx, proxy, keys, q, "/api/v2/spot/trade/unfilled-orders", "/api/v2/mix/order/orders-pending")
}

func (d *Driver) FetchClosedOrders(ctx context.Context, proxy string, keys models.ApiKeys, q models.OrderQuery) ([]models.Order, error) {
	return d.listOrders(ctx, proxy, keys, q, "/api/v2/spot/trade/history-orders", "/api/v2/mix/order/orders-history")
}

// FetchMyTrades covers spot fills only.
func (d *Driver) FetchMyTrades(ctx context.Context, proxy string, keys models.ApiKeys, oq models.OrderQuery) ([]models.Trade, error) {
	m, native, err := d.market(oq.Symbol)
	if err != nil {
		return nil, err
	}
	if m.MarketType != models.MarketSpot {
		return nil, exchange.UnsupportedMarket(Name, m)
	}
	var q signer.Params
	q.Add("symbol", native).AddIf("startTime", oq.Since).AddIf("limit", oq.Limit).AddExtra(oq.Extra)
	data, err := d.do(ctx, proxy, http.MethodGet, "/api/v2/spot/trade/fills", q, nil, &keys)
	if err != nil {
		return nil, err
	}
	return trades.Trades(list(data), oq.Symbol), nil
}

func (d *Driver) CustomRequest(ctx context.Context, proxy string, keys *models.ApiKeys, req models.CustomRequest) (json.RawMessage, error) {
	return exchange.Custom(ctx, d.client, proxy, keys, d.signer, req)
}
