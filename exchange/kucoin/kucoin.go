// Package kucoin drives the KuCoin spot and futures APIs, which live on
// separate hosts.
package kucoin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fastjson"

	"cointrade/exchange"
	"cointrade/internal/normalize"
	"cointrade/internal/signer"
	"cointrade/internal/symbols"
	"cointrade/internal/transport"
	"cointrade/models"
)

const (
	Name      = "kucoin"
	SpotURL   = "https://api.kucoin.com"
	LinearURL = "https://api-futures.kucoin.com"
	Timeout   = 5 * time.Second
)

// KuCoin reports order state as isActive/cancelExist flags; futures
// orders add a status of open or done.
func orderStatus(v *fastjson.Value) string {
	switch {
	case normalize.Str(v, "isActive") == "true":
		return string(models.StatusOpen)
	case normalize.Str(v, "cancelExist") == "true":
		return string(models.StatusCanceled)
	case normalize.Str(v, "status") == "open":
		return string(models.StatusOpen)
	}
	return string(models.StatusClosed)
}

var orders = normalize.OrderMapping{
	ID:            normalize.At("id"),
	ClientOrderID: normalize.At("clientOid"),
	Price:         normalize.NumAt("price"),
	Amount:        normalize.NumAt("size"),
	Filled: normalize.Func(func(v *fastjson.Value) string {
		if s := normalize.Str(v, "filledSize"); s != "" {
			return s
		}
		return normalize.Str(v, "dealSize")
	}),
	Average: normalize.Func(func(v *fastjson.Value) string {
		size := normalize.Num(v, "dealSize")
		if size == 0 {
			size = normalize.Num(v, "filledSize")
		}
		funds := normalize.Num(v, "dealFunds")
		if funds == 0 {
			funds = normalize.Num(v, "filledValue")
		}
		if size == 0 {
			return "0"
		}
		return models.FormatValue(funds / size)
	}),
	Side:      normalize.LowerAt("side"),
	Type:      normalize.LowerAt("type"),
	Status:    normalize.Func(orderStatus),
	Timestamp: normalize.MillisAt("createdAt"),
}

type Driver struct {
	exchange.Base
	now       func() int64
	client    *transport.Client
	signer    signer.KuCoin
	spotURL   string
	linearURL string
	newID     func() string
}

func New(opts exchange.Options) *Driver {
	return &Driver{
		Base:      exchange.Base{Exchange: Name},
		now:       opts.NowMillis,
		client:    opts.Client(Name, SpotURL, Timeout, transport.CodeEnvelope("code", []string{"200000"}, []string{"msg"}), map[string]string{"Content-Type": "application/json"}),
		signer:    signer.KuCoin{Now: opts.Clock()},
		spotURL:   opts.URL("spot", SpotURL),
		linearURL: opts.URL("linear", LinearURL),
		newID:     uuid.NewString,
	}
}

// market resolves symbol to its native form and the host serving it.
func (d *Driver) market(symbol string) (models.Market, string, string, error) {
	m, err := symbols.Parse(symbol)
	if err != nil {
		return m, "", "", err
	}
	switch m.MarketType {
	case models.MarketSpot:
		return m, symbols.Native(Name, m), d.spotURL, nil
	case models.MarketLinear:
		return m, symbols.Native(Name, m), d.linearURL, nil
	}
	return m, "", "", exchange.UnsupportedMarket(Name, m)
}

func (d *Driver) do(ctx context.Context, proxy, method, target string, q signer.Params, body interface{}, keys *models.ApiKeys, opts ...transport.Option) (*fastjson.Value, error) {
	req := signer.NewRequest(method, target)
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

func (d *Driver) FetchTicker(ctx context.Context, proxy, symbol string) (models.Ticker, error) {
	m, native, host, err := d.market(symbol)
	if err != nil {
		return models.Ticker{}, err
	}
	path := "/api/v1/market/orderbook/level1"
	if m.MarketType == models.MarketLinear {
		path = "/api/v1/ticker"
	}
	var q signer.Params
	q.Add("symbol", native)
	data, err := d.do(ctx, proxy, http.MethodGet, host+path, q, nil, nil)
	if err != nil {
		return models.Ticker{}, err
	}
	bid, ask := "bestBid", "bestAsk"
	if m.MarketType == models.MarketLinear {
		bid, ask = "bestBidPrice", "bestAskPrice"
	}
	return models.Ticker{
		Symbol: symbol,
		Last:   normalize.Num(data, "price"),
		Bid:    normalize.Num(data, bid),
		Ask:    normalize.Num(data, ask),
	}, nil
}

// FetchOrderBook reads the 20 level snapshot and truncates it to limit.
func (d *Driver) FetchOrderBook(ctx context.Context, proxy, symbol string, limit int) (models.OrderBook, error) {
	m, native, host, err := d.market(symbol)
	if err != nil {
		return models.OrderBook{}, err
	}
	limit, err = exchange.CheckLimit(Name, limit, 5)
	if err != nil {
		return models.OrderBook{}, err
	}
	if limit > 20 {
		return models.OrderBook{}, exchange.Invalid(Name, "order book limit %d exceeds 20", limit)
	}
	path := "/api/v1/market/orderbook/level2_20"
	if m.MarketType == models.MarketLinear {
		path = "/api/v1/level2/depth20"
	}
	var q signer.Params
	q.Add("symbol", native)
	data, err := d.do(ctx, proxy, http.MethodGet, host+path, q, nil, nil)
	if err != nil {
		return models.OrderBook{}, err
	}
	return normalize.Book(symbol, normalize.Millis(normalize.Int(data, "ts")),
		normalize.Levels(normalize.Array(data, "asks"), normalize.ArrayLevels),
		normalize.Levels(normalize.Array(data, "bids"), normalize.ArrayLevels),
		limit, nil), nil
}

// FetchBalance sums every spot account type per currency.
func (d *Driver) FetchBalance(ctx context.Context, proxy string, keys models.ApiKeys, coin string) (models.Balance, error) {
	var q signer.Params
	q.AddIf("currency", strings.ToUpper(coin))
	data, err := d.do(ctx, proxy, http.MethodGet, d.spotURL+"/api/v1/accounts", q, nil, &keys)
	if err != nil {
		return models.Balance{}, err
	}
	bal := models.Balance{Info: exchange.RawJSON(data), Timestamp: d.now(), Assets: map[string]models.BalanceEntry{}}
	for _, a := range data.GetArray() {
		cur := strings.ToUpper(normalize.Str(a, "currency"))
		e := bal.Assets[cur]
		e.Free += normalize.Num(a, "available")
		e.Used += normalize.Num(a, "holds")
		e.Total += normalize.Num(a, "balance")
		bal.Assets[cur] = e
	}
	return bal, nil
}

func (d *Driver) CreateOrder(ctx context.Context, proxy string, keys models.ApiKeys, req models.OrderRequest) (models.Order, error) {
	if err := exchange.CheckOrder(Name, req); err != nil {
		return models.Order{}, err
	}
	m, native, host, err := d.market(req.Symbol)
	if err != nil {
		return models.Order{}, err
	}
	body := map[string]interface{}{
		"clientOid": d.newID(),
		"symbol":    native,
		"side":      strings.ToLower(req.Side),
		"type":      strings.ToLower(req.Type),
		"size":      models.FormatValue(req.Amount),
	}
	if !req.IsMarket() {
		body["price"] = models.FormatValue(req.Price)
	}
	if m.MarketType == models.MarketLinear {
		body["leverage"] = 1
	}
	for k, v := range req.Extra {
		body[k] = v
	}
	data, err := d.do(ctx, proxy, http.MethodPost, host+"/api/v1/orders", signer.Params{}, body, &keys, transport.NoRetry())
	if err != nil {
		return models.Order{}, err
	}
	client, _ := body["clientOid"].(string)
	return models.Order{
		ID:            normalize.Str(data, "orderId"),
		ClientOrderID: client,
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
	_, _, host, err := d.market(symbol)
	if err != nil {
		return models.CancelResult{}, err
	}
	data, err := d.do(ctx, proxy, http.MethodDelete, host+"/api/v1/orders/"+url.PathEscape(id), signer.ParamsFrom(extra), nil, &keys)
	if err != nil {
		return models.CancelResult{}, err
	}
	return models.CancelResult{ID: id, Symbol: symbol, Info: exchange.RawJSON(data)}, nil
}

func (d *Driver) CancelAllOrders(ctx context.Context, proxy string, keys models.ApiKeys, symbol string, extra models.Params) (models.CancelResult, error) {
	_, native, host, err := d.market(symbol)
	if err != nil {
		return models.CancelResult{}, err
	}
	var q signer.Params
	q.Add("symbol", native).AddExtra(extra)
	data, err := d.do(ctx, proxy, http.MethodDelete, host+"/api/v1/orders", q, nil, &keys)
	if err != nil {
		return models.CancelResult{}, err
	}
	return models.CancelResult{Symbol: symbol, Info: exchange.RawJSON(data)}, nil
}

func (d *Driver) FetchOrder(ctx context.Context, proxy string, keys models.ApiKeys, id, symbol string, extra models.Params) (models.Order, error) {
	_, _, host, err := d.market(symbol)
	if err != nil {
		return models.Order{}, err
	}
	data, err := d.do(ctx, proxy, http.MethodGet, host+"/api/v1/orders/"+url.PathEscape(id), signer.ParamsFrom(extra), nil, &keys)
	if err != nil {
		return models.Order{}, err
	}
	return orders.Order(data, symbol), nil
}

func (d *Driver) listOrders(ctx context.Context, proxy string, keys models.ApiKeys, oq models.OrderQuery, status string) ([]models.Order, error) {
	_, native, host, err := d.market(oq.Symbol)
	if err != nil {
		return nil, err
	}
	var q signer.Params
	q.Add("status", status).Add("symbol", native).AddIf("startAt", oq.Since).AddIf("pageSize", oq.Limit).AddExtra(oq.Extra)
	data, err := d.do(ctx, proxy, http.MethodGet, host+"/api/v1/orders", q, nil, &keys)
	if err != nil {
		return nil, err
	}
	return orders.Orders(normalize.Array(data, "items"), oq.Symbol), nil
}

func (d *Driver) FetchOpenOrders(ctx context.Context, proxy string, keys models.ApiKeys, q models.OrderQuery) ([]models.Order, error) {
	return d.listOrders(ctx, proxy, keys, q, "active")
}

func (d *Driver) FetchClosedOrders(ctx context.Context, proxy string, keys models.ApiKeys, q models.OrderQuery) ([]models.Order, error) {
	return d.listOrders(ctx, proxy, keys, q, "done")
}

func (d *Driver) CustomRequest(ctx context.Context, proxy string, keys *models.ApiKeys, req models.CustomRequest) (json.RawMessage, error) {
	return exchange.Custom(ctx, d.client, proxy, keys, d.signer, req)
}
