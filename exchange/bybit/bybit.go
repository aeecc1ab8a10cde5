// Package bybit drives the Bybit v5 unified API.
package bybit

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
	Name    = "bybit"
	BaseURL = "https://api.bybit.com"
	Timeout = 5 * time.Second
)

var Statuses = normalize.StatusTable{
	"New":                     models.StatusOpen,
	"PartiallyFilled":         models.StatusOpen,
	"Untriggered":             models.StatusOpen,
	"Triggered":               models.StatusOpen,
	"Created":                 models.StatusOpen,
	"Active":                  models.StatusOpen,
	"Filled":                  models.StatusClosed,
	"Deactivated":             models.StatusClosed,
	"Cancelled":               models.StatusCanceled,
	"PartiallyFilledCanceled": models.StatusCanceled,
	"Rejected":                models.StatusRejected,
}

var orders = normalize.OrderMapping{
	ID:            normalize.At("orderId"),
	ClientOrderID: normalize.At("orderLinkId"),
	Price:         normalize.NumAt("price"),
	Average:       normalize.NumAt("avgPrice"),
	Amount:        normalize.NumAt("qty"),
	Filled:        normalize.NumAt("cumExecQty"),
	Remaining:     normalize.NumAt("leavesQty"),
	Side:          normalize.LowerAt("side"),
	Type:          normalize.LowerAt("orderType"),
	Status:        normalize.At("orderStatus"),
	Timestamp:     normalize.MillisAt("createdTime"),
	Statuses:      Statuses,
}

var tickers = normalize.TickerMapping{
	Last:   normalize.NumAt("lastPrice"),
	Bid:    normalize.NumAt("bid1Price"),
	Ask:    normalize.NumAt("ask1Price"),
	High:   normalize.NumAt("highPrice24h"),
	Low:    normalize.NumAt("lowPrice24h"),
	Volume: normalize.NumAt("volume24h"),
}

var trades = normalize.TradeMapping{
	ID:          normalize.At("execId"),
	OrderID:     normalize.At("orderId"),
	Side:        normalize.LowerAt("side"),
	Price:       normalize.NumAt("execPrice"),
	Amount:      normalize.NumAt("execQty"),
	Fee:         normalize.NumAt("execFee"),
	FeeCurrency: normalize.At("feeCurrency"),
	Timestamp:   normalize.MillisAt("execTime"),
}

var envelope = transport.CodeEnvelope("retCode", []string{"0"}, []string{"retMsg"})

type Driver struct {
	exchange.Base
	opts   exchange.Options
	client *transport.Client
	signer signer.Bybit
}

func New(opts exchange.Options) *Driver {
	return &Driver{
		Base:   exchange.Base{Exchange: Name},
		opts:   opts,
		client: opts.Client(Name, BaseURL, Timeout, envelope, map[string]string{"Content-Type": "application/json"}),
		signer: signer.Bybit{Now: opts.Clock(), RecvWindow: opts.RecvWindow},
	}
}

func (d *Driver) market(symbol string) (category, native string, err error) {
	m, err := symbols.Parse(symbol)
	if err != nil {
		return "", "", err
	}
	return string(m.MarketType), symbols.Native(Name, m), nil
}

// capitalize turns buy/limit into the Buy/Limit form Bybit expects.
func capitalize(s string) string {
	if s == "" {
		return s
	}
	s = strings.ToLower(s)
	return strings.ToUpper(s[:1]) + s[1:]
}

func (d *Driver) get(ctx context.Context, proxy, path string, q signer.Params, keys *models.ApiKeys) (*fastjson.Value, error) {
	req := signer.NewRequest(http.MethodGet, path)
	req.Query = q
	var opts []transport.Option
	if keys != nil {
		opts = append(opts, transport.Signed(d.signer, *keys))
	}
	resp, err := d.client.Do(ctx, proxy, req, opts...)
	if err != nil {
		return nil, err
	}
	return exchange.Decode(Name, resp)
}

func (d *Driver) post(ctx context.Context, proxy, path string, keys models.ApiKeys, body map[string]interface{}, opts ...transport.Option) (*fastjson.Value, error) {
	req := signer.NewRequest(http.MethodPost, path)
	if err := req.SetJSON(body); err != nil {
		return nil, err
	}
	resp, err := d.client.Do(ctx, proxy, req, append(opts, transport.Signed(d.signer, keys))...)
	if err != nil {
		return nil, err
	}
	return exchange.Decode(Name, resp)
}

func (d *Driver) FetchTicker(ctx context.Context, proxy, symbol string) (models.Ticker, error) {
	category, native, err := d.market(symbol)
	if err != nil {
		return models.Ticker{}, err
	}
	var q signer.Params
	q.Add("category", category).Add("symbol", native)
	v, err := d.get(ctx, proxy, "/v5/market/tickers", q, nil)
	if err != nil {
		return models.Ticker{}, err
	}
	list := normalize.Array(v, "result", "list")
	if len(list) == 0 {
		return models.Ticker{}, &models.ExchangeError{Exchange: Name, Message: "no ticker for " + native}
	}
	return tickers.Ticker(list[0], symbol), nil
}

func (d *Driver) FetchOHLCV(ctx context.Context, proxy, symbol, timeframe string, since int64, limit int) ([]models.OHLCV, error) {
	category, native, err := d.market(symbol)
	if err != nil {
		return nil, err
	}
	if timeframe == "" {
		timeframe = "1m"
	}
	var q signer.Params
	q.Add("category", category).Add("symbol", native).Add("interval", interval(timeframe)).
		AddIf("start", since).AddIf("limit", limit)
	v, err := d.get(ctx, proxy, "/v5/market/kline", q, nil)
	if err != nil {
		return nil, err
	}
	return normalize.Candles(normalize.Array(v, "result", "list"), normalize.CandleSpec{}), nil
}

// interval converts 1m/1h/1d style timeframes to Bybit's minute counts
// and letters.
func interval(tf string) string {
	switch tf {
	case "1m", "3m", "5m", "15m", "30m":
		return strings.TrimSuffix(tf, "m")
	case "1h":
		return "60"
	case "2h":
		return "120"
	case "4h":
		return "240"
	case "6h":
		return "360"
	case "12h":
		return "720"
	case "1d":
		return "D"
	case "1w":
		return "W"
	case "1M":
		return "M"
	}
	return tf
}

func (d *Driver) FetchBalance(ctx context.Context, proxy string, keys models.ApiKeys, coin string) (models.Balance, error) {
	var q signer.Params
	q.Add("accountType", "UNIFIED").AddIf("coin", strings.ToUpper(coin))
	v, err := d.get(ctx, proxy, "/v5/account/wallet-balance", q, &keys)
	if err != nil {
		return models.Balance{}, err
	}
	bal := models.Balance{
		Info:      exchange.RawJSON(v.Get("result", "list")),
		Timestamp: normalize.Int(v, "time"),
		Assets:    map[string]models.BalanceEntry{},
	}
	for _, acct := range normalize.Array(v, "result", "list") {
		for _, c := range normalize.Array(acct, "coin") {
			total := normalize.Num(c, "walletBalance")
			used := normalize.Num(c, "locked")
			bal.Assets[normalize.Str(c, "coin")] = models.BalanceEntry{Free: normalize.Sub(total, used), Used: used, Total: total}
		}
	}
	return bal, nil
}

func (d *Driver) CreateOrder(ctx context.Context, proxy string, keys models.ApiKeys, req models.OrderRequest) (models.Order, error) {
	if err := exchange.CheckOrder(Name, req); err != nil {
		return models.Order{}, err
	}
	category, native, err := d.market(req.Symbol)
	if err != nil {
		return models.Order{}, err
	}
	body := map[string]interface{}{
		"category":  category,
		"symbol":    native,
		"side":      capitalize(req.Side),
		"orderType": capitalize(req.Type),
		"qty":       models.FormatValue(req.Amount),
	}
	if req.IsMarket() {
		if category == "spot" {
			body["marketUnit"] = "baseCoin"
		}
	} else {
		body["price"] = models.FormatValue(req.Price)
	}
	for k, val := range req.Extra {
		body[k] = val
	}
	v, err := d.post(ctx, proxy, "/v5/order/create", keys, body, transport.NoRetry())
	if err != nil {
		return models.Order{}, err
	}
	return models.Order{
		ID:            normalize.Str(v, "result", "orderId"),
		ClientOrderID: normalize.Str(v, "result", "orderLinkId"),
		Symbol:        req.Symbol,
		Price:         req.Price,
		Amount:        req.Amount,
		Remaining:     req.Amount,
		Side:          strings.ToLower(req.Side),
		Type:          strings.ToLower(req.Type),
		Status:        models.StatusOpen,
		Timestamp:     normalize.Int(v, "time"),
		Info:          exchange.RawJSON(v.Get("result")),
	}, nil
}

func (d *Driver) CancelOrder(ctx context.Context, proxy string, keys models.ApiKeys, id, symbol string, extra models.Params) (models.CancelResult, error) {
	category, native, err := d.market(symbol)
	if err != nil {
		return models.CancelResult{}, err
	}
	body := map[string]interface{}{"category": category, "symbol": native}
	if id != "" {
		body["orderId"] = id
	}
	for k, val := range extra {
		body[k] = val
	}
	v, err := d.post(ctx, proxy, "/v5/order/cancel", keys, body)
	if err != nil {
		return models.CancelResult{}, err
	}
	return models.CancelResult{
		ID:            normalize.Str(v, "result", "orderId"),
		ClientOrderID: normalize.Str(v, "result", "orderLinkId"),
		Symbol:        symbol,
		Info:          exchange.RawJSON(v.Get("result")),
	}, nil
}

func (d *Driver) CancelAllOrders(ctx context.Context, proxy string, keys models.ApiKeys, symbol string, extra models.Params) (models.CancelResult, error) {
	category, native, err := d.market(symbol)
	if err != nil {
		return models.CancelResult{}, err
	}
	body := map[string]interface{}{"category": category, "symbol": native}
	for k, val := range extra {
		body[k] = val
	}
	v, err := d.post(ctx, proxy, "/v5/order/cancel-all", keys, body)
	if err != nil {
		return models.CancelResult{}, err
	}
	return models.CancelResult{Symbol: symbol, Info: exchange.RawJSON(v.Get("result"))}, nil
}

// FetchOrder looks in the live order list first and falls back to the
// history for orders that are no longer working.
func (d *Driver) FetchOrder(ctx context.Context, proxy string, keys models.ApiKeys, id, symbol string, extra models.Params) (models.Order, error) {
	category, native, err := d.market(symbol)
	if err != nil {
		return models.Order{}, err
	}
	for _, path := range []string{"/v5/order/realtime", "/v5/order/history"} {
		var q signer.Params
		q.Add("category", category).Add("symbol", native).Add("orderId", id).AddExtra(extra)
		v, err := d.get(ctx, proxy, path, q, &keys)
		if err != nil {
			return models.Order{}, err
		}
		if list := normalize.Array(v, "result", "list"); len(list) > 0 {
			return orders.Order(list[0], symbol), nil
		}
	}
	return models.Order{}, &models.ExchangeError{Exchange: Name, Code: "order_not_found", Message: "order " + id + " not found"}
}

func (d *Driver) listOrders(ctx context.Context, proxy, path string, keys models.ApiKeys, oq models.OrderQuery) ([]models.Order, error) {
	category, native, err := d.market(oq.Symbol)
	if err != nil {
		return nil, err
	}
	var q signer.Params
	q.Add("category", category).Add("symbol", native).AddIf("limit", oq.Limit).AddIf("startTime", oq.Since).AddExtra(oq.Extra)
	v, err := d.get(ctx, proxy, path, q, &keys)
	if err != nil {
		return nil, err
	}
	return orders.Orders(normalize.Array(v, "result", "list"), oq.Symbol), nil
}

func (d *Driver) FetchOpenOrders(ctx context.Context, proxy string, keys models.ApiKeys, q models.OrderQuery) ([]models.Order, error) {
	return d.listOrders(ctx, proxy, "/v5/order/realtime", keys, q)
}

func (d *Driver) FetchClosedOrders(ctx context.Context, proxy string, keys models.ApiKeys, q models.OrderQuery) ([]models.Order, error) {
	return d.listOrders(ctx, proxy, "/v5/order/history", keys, q)
}

func (d *Driver) FetchMyTrades(ctx context.Context, proxy string, keys models.ApiKeys, oq models.OrderQuery) ([]models.Trade, error) {
	category, native, err := d.market(oq.Symbol)
	if err != nil {
		return nil, err
	}
	var q signer.Params
	q.Add("category", category).Add("symbol", native).AddIf("startTime", oq.Since).AddIf("limit", oq.Limit).AddExtra(oq.Extra)
	v, err := d.get(ctx, proxy, "/v5/execution/list", q, &keys)
	if err != nil {
		return nil, err
	}
	return trades.Trades(normalize.Array(v, "result", "list"), oq.Symbol), nil
}

func (d *Driver) CustomRequest(ctx context.Context, proxy string, keys *models.ApiKeys, req models.CustomRequest) (json.RawMessage, error) {
	return exchange.Custom(ctx, d.client, proxy, keys, d.signer, req)
}

func (d *Driver) Withdraw(ctx context.Context, proxy string, keys models.ApiKeys, req models.WithdrawRequest) (json.RawMessage, error) {
	if req.Coin == "" || req.Address == "" || req.Amount <= 0 {
		return nil, exchange.Invalid(Name, "coin, address and a positive amount are required")
	}
	body := map[string]interface{}{
		"coin":        strings.ToUpper(req.Coin),
		"chain":       req.Network,
		"address":     req.Address,
		"amount":      models.FormatValue(req.Amount),
		"timestamp":   d.opts.NowMillis(),
		"accountType": "FUND",
	}
	if req.Tag != "" {
		body["tag"] = req.Tag
	}
	for k, val := range req.Extra {
		body[k] = val
	}
	v, err := d.post(ctx, proxy, "/v5/asset/withdraw/create", keys, body, transport.NoRetry())
	if err != nil {
		return nil, err
	}
	return exchange.RawJSON(v.Get("result")), nil
}
