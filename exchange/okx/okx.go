// Package okx drives the OKX v5 API for spot and USDT swap markets.
package okx

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
	Name    = "okx"
	BaseURL = "https://www.okx.com"
	Timeout = 5 * time.Second

	maxBookDepth = 400
)

var Statuses = normalize.StatusTable{
	"live":             models.StatusOpen,
	"partially_filled": models.StatusOpen,
	"filled":           models.StatusClosed,
	"canceled":         models.StatusCanceled,
	"mmp_canceled":     models.StatusCanceled,
}

var orders = normalize.OrderMapping{
	ID:            normalize.At("ordId"),
	ClientOrderID: normalize.At("clOrdId"),
	Price:         normalize.NumAt("px"),
	Average:       normalize.NumAt("avgPx"),
	Amount:        normalize.NumAt("sz"),
	Filled:        normalize.NumAt("accFillSz"),
	Side:          normalize.LowerAt("side"),
	Type:          normalize.LowerAt("ordType"),
	Status:        normalize.At("state"),
	Timestamp:     normalize.MillisAt("cTime"),
	Statuses:      Statuses,
}

var tickers = normalize.TickerMapping{
	Last:   normalize.NumAt("last"),
	Bid:    normalize.NumAt("bidPx"),
	Ask:    normalize.NumAt("askPx"),
	High:   normalize.NumAt("high24h"),
	Low:    normalize.NumAt("low24h"),
	Volume: normalize.NumAt("vol24h"),
}

// OKX reports fees as negative amounts charged.
var trades = normalize.TradeMapping{
	ID:          normalize.At("tradeId"),
	OrderID:     normalize.At("ordId"),
	Side:        normalize.LowerAt("side"),
	Price:       normalize.NumAt("fillPx"),
	Amount:      normalize.NumAt("fillSz"),
	Fee:         normalize.Func(func(v *fastjson.Value) string { return strings.TrimPrefix(normalize.Str(v, "fee"), "-") }),
	FeeCurrency: normalize.At("feeCcy"),
	Timestamp:   normalize.MillisAt("ts"),
}

var envelope = transport.CodeEnvelope("code", []string{"0"}, []string{"data", "0", "sMsg"}, []string{"msg"})

type Driver struct {
	exchange.Base
	now    func() int64
	client *transport.Client
	signer signer.OKX
}

func New(opts exchange.Options) *Driver {
	return &Driver{
		Base:   exchange.Base{Exchange: Name},
		now:    opts.NowMillis,
		client: opts.Client(Name, BaseURL, Timeout, envelope, map[string]string{"Content-Type": "application/json"}),
		signer: signer.OKX{Now: opts.Clock()},
	}
}

type instrument struct {
	market models.Market
	id     string
	typ    string
}

func (d *Driver) instrument(symbol string) (instrument, error) {
	m, err := symbols.Parse(symbol)
	if err != nil {
		return instrument{}, err
	}
	id := symbols.OKXInstID(m)
	if id == "" {
		return instrument{}, exchange.UnsupportedMarket(Name, m)
	}
	return instrument{market: m, id: id, typ: symbols.OKXInstType(m)}, nil
}

func (d *Driver) do(ctx context.Context, proxy, method, path string, q signer.Params, body interface{}, keys *models.ApiKeys, opts ...transport.Option) ([]*fastjson.Value, error) {
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
	return normalize.Array(v, "data"), nil
}

func first(list []*fastjson.Value, what string) (*fastjson.Value, error) {
	if len(list) == 0 {
		return nil, &models.ExchangeError{Exchange: Name, Message: "empty " + what + " response"}
	}
	return list[0], nil
}

func (d *Driver) FetchTicker(ctx context.Context, proxy, symbol string) (models.Ticker, error) {
	inst, err := d.instrument(symbol)
	if err != nil {
		return models.Ticker{}, err
	}
	var q signer.Params
	q.Add("instId", inst.id)
	data, err := d.do(ctx, proxy, http.MethodGet, "/api/v5/market/ticker", q, nil, nil)
	if err != nil {
		return models.Ticker{}, err
	}
	v, err := first(data, "ticker")
	if err != nil {
		return models.Ticker{}, err
	}
	return tickers.Ticker(v, symbol), nil
}

func (d *Driver) FetchOrderBook(ctx context.Context, proxy, symbol string, limit int) (models.OrderBook, error) {
	inst, err := d.instrument(symbol)
	if err != nil {
		return models.OrderBook{}, err
	}
	limit, err = exchange.CheckLimit(Name, limit, 5)
	if err != nil {
		return models.OrderBook{}, err
	}
	if limit > maxBookDepth {
		return models.OrderBook{}, exchange.Invalid(Name, "limit must not exceed %d", maxBookDepth)
	}
	var q signer.Params
	q.Add("instId", inst.id).Add("sz", limit)
	data, err := d.do(ctx, proxy, http.MethodGet, "/api/v5/market/books", q, nil, nil)
	if err != nil {
		return models.OrderBook{}, err
	}
	v, err := first(data, "order book")
	if err != nil {
		return models.OrderBook{}, err
	}
	return normalize.Book(symbol, normalize.Int(v, "ts"),
		normalize.Levels(normalize.Array(v, "asks"), normalize.ArrayLevels),
		normalize.Levels(normalize.Array(v, "bids"), normalize.ArrayLevels),
		limit, nil), nil
}

// bar converts lowercase hour/day/week timeframes to OKX's uppercase form.
func bar(tf string) string {
	if tf == "" {
		return "1m"
	}
	switch tf[len(tf)-1] {
	case 'h', 'd', 'w':
		return tf[:len(tf)-1] + strings.ToUpper(tf[len(tf)-1:])
	}
	return tf
}

func (d *Driver) FetchOHLCV(ctx context.Context, proxy, symbol, timeframe string, since int64, limit int) ([]models.OHLCV, error) {
	inst, err := d.instrument(symbol)
	if err != nil {
		return nil, err
	}
	var q signer.Params
	q.Add("instId", inst.id).Add("bar", bar(timeframe)).AddIf("before", since).AddIf("limit", limit)
	data, err := d.do(ctx, proxy, http.MethodGet, "/api/v5/market/candles", q, nil, nil)
	if err != nil {
		return nil, err
	}
	return normalize.Candles(data, normalize.CandleSpec{}), nil
}

func (d *Driver) FetchBalance(ctx context.Context, proxy string, keys models.ApiKeys, coin string) (models.Balance, error) {
	var q signer.Params
	q.AddIf("ccy", strings.ToUpper(coin))
	data, err := d.do(ctx, proxy, http.MethodGet, "/api/v5/asset/balances", q, nil, &keys)
	if err != nil {
		return models.Balance{}, err
	}
	bal := models.Balance{Timestamp: d.now(), Assets: map[string]models.BalanceEntry{}}
	for _, r := range data {
		bal.Assets[normalize.Str(r, "ccy")] = models.BalanceEntry{
			Free:  normalize.Num(r, "availBal"),
			Used:  normalize.Num(r, "frozenBal"),
			Total: normalize.Num(r, "bal"),
		}
	}
	bal.Info, _ = json.Marshal(rawList(data))
	return bal, nil
}

func (d *Driver) CreateOrder(ctx context.Context, proxy string, keys models.ApiKeys, req models.OrderRequest) (models.Order, error) {
	if err := exchange.CheckOrder(Name, req); err != nil {
		return models.Order{}, err
	}
	inst, err := d.instrument(req.Symbol)
	if err != nil {
		return models.Order{}, err
	}
	body := map[string]interface{}{
		"instId":  inst.id,
		"tdMode":  "cross",
		"side":    strings.ToLower(req.Side),
		"ordType": strings.ToLower(req.Type),
		"sz":      models.FormatValue(req.Amount),
	}
	if inst.market.MarketType == models.MarketSpot {
		body["tdMode"] = "cash"
		if req.IsMarket() {
			body["tgtCcy"] = "base_ccy"
		}
	}
	if !req.IsMarket() {
		body["px"] = models.FormatValue(req.Price)
	}
	for k, v := range req.Extra {
		body[k] = v
	}
	data, err := d.do(ctx, proxy, http.MethodPost, "/api/v5/trade/order", signer.Params{}, body, &keys, transport.NoRetry())
	if err != nil {
		return models.Order{}, err
	}
	v, err := first(data, "order")
	if err != nil {
		return models.Order{}, err
	}
	return models.Order{
		ID:            normalize.Str(v, "ordId"),
		ClientOrderID: normalize.Str(v, "clOrdId"),
		Symbol:        req.Symbol,
		Price:         req.Price,
		Amount:        req.Amount,
		Remaining:     req.Amount,
		Side:          strings.ToLower(req.Side),
		Type:          strings.ToLower(req.Type),
		Status:        models.StatusOpen,
		Timestamp:     normalize.Int(v, "ts"),
		Info:          exchange.RawJSON(v),
	}, nil
}

func (d *Driver) CancelOrder(ctx context.Context, proxy string, keys models.ApiKeys, id, symbol string, extra models.Params) (models.CancelResult, error) {
	inst, err := d.instrument(symbol)
	if err != nil {
		return models.CancelResult{}, err
	}
	body := map[string]interface{}{"instId": inst.id}
	if id != "" {
		body["ordId"] = id
	}
	for k, v := range extra {
		body[k] = v
	}
	data, err := d.do(ctx, proxy, http.MethodPost, "/api/v5/trade/cancel-order", signer.Params{}, body, &keys)
	if err != nil {
		return models.CancelResult{}, err
	}
	v, err := first(data, "cancel")
	if err != nil {
		return models.CancelResult{}, err
	}
	return models.CancelResult{
		ID:            normalize.Str(v, "ordId"),
		ClientOrderID: normalize.Str(v, "clOrdId"),
		Symbol:        symbol,
		Info:          exchange.RawJSON(v),
	}, nil
}

func (d *Driver) FetchOrder(ctx context.Context, proxy string, keys models.ApiKeys, id, symbol string, extra models.Params) (models.Order, error) {
	inst, err := d.instrument(symbol)
	if err != nil {
		return models.Order{}, err
	}
	var q signer.Params
	q.Add("instId", inst.id).Add("ordId", id).AddExtra(extra)
	data, err := d.do(ctx, proxy, http.MethodGet, "/api/v5/trade/order", q, nil, &keys)
	if err != nil {
		return models.Order{}, err
	}
	v, err := first(data, "order")
	if err != nil {
		return models.Order{}, err
	}
	return orders.Order(v, symbol), nil
}

func (d *Driver) listOrders(ctx context.Context, proxy, path string, keys models.ApiKeys, oq models.OrderQuery) ([]models.Order, error) {
	inst, err := d.instrument(oq.Symbol)
	if err != nil {
		return nil, err
	}
	var q signer.Params
	q.Add("instType", inst.typ).Add("instId", inst.id).AddIf("begin", oq.Since).AddIf("limit", oq.Limit).AddExtra(oq.Extra)
	data, err := d.do(ctx, proxy, http.MethodGet, path, q, nil, &keys)
	if err != nil {
		return nil, err
	}
	return orders.Orders(data, oq.Symbol), nil
}

func (d *Driver) FetchOpenOrders(ctx context.Context, proxy string, keys models.ApiKeys, q models.OrderQuery) ([]models.Order, error) {
	return d.listOrders(ctx, proxy, "/api/v5/trade/orders-pending", keys, q)
}

func (d *Driver) FetchClosedOrders(ctx context.Context, proxy string, keys models.ApiKeys, q models.OrderQuery) ([]models.Order, error) {
	return d.listOrders(ctx, proxy, "/api/v5/trade/orders-history", keys, q)
}

func (d *Driver) FetchMyTrades(ctx context.Context, proxy string, keys models.ApiKeys, oq models.OrderQuery) ([]models.Trade, error) {
	inst, err := d.instrument(oq.Symbol)
	if err != nil {
		return nil, err
	}
	var q signer.Params
	q.Add("instType", inst.typ).Add("instId", inst.id).AddIf("begin", oq.Since).AddIf("limit", oq.Limit).AddExtra(oq.Extra)
	data, err := d.do(ctx, proxy, http.MethodGet, "/api/v5/trade/fills", q, nil, &keys)
	if err != nil {
		return nil, err
	}
	return trades.Trades(data, oq.Symbol), nil
}

func (d *Driver) CustomRequest(ctx context.Context, proxy string, keys *models.ApiKeys, req models.CustomRequest) (json.RawMessage, error) {
	return exchange.Custom(ctx, d.client, proxy, keys, d.signer, req)
}

// Withdraw sends an on-chain withdrawal (dest 4). A tag is appended to
// the address as OKX expects.
func (d *Driver) Withdraw(ctx context.Context, proxy string, keys models.ApiKeys, req models.WithdrawRequest) (json.RawMessage, error) {
	if req.Coin == "" || req.Address == "" || req.Amount <= 0 {
		return nil, exchange.Invalid(Name, "coin, address and a positive amount are required")
	}
	addr := req.Address
	if req.Tag != "" {
		addr += ":" + req.Tag
	}
	body := map[string]interface{}{
		"ccy":    strings.ToUpper(req.Coin),
		"amt":    models.FormatValue(req.Amount),
		"dest":   "4",
		"toAddr": addr,
	}
	if req.Network != "" {
		body["chain"] = req.Network
	}
	for k, v := range req.Extra {
		body[k] = v
	}
	data, err := d.do(ctx, proxy, http.MethodPost, "/api/v5/asset/withdrawal", signer.Params{}, body, &keys, transport.NoRetry())
	if err != nil {
		return nil, err
	}
	out, _ := json.Marshal(rawList(data))
	return out, nil
}

func rawList(data []*fastjson.Value) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(data))
	for _, v := range data {
		out = append(out, exchange.RawJSON(v))
	}
	return out
}
