// Package binance drives Binance spot, USDT-M futures and the portfolio
// margin API.
package binance

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2/common"
	"github.com/valyala/fastjson"

	"cointrade/exchange"
	"cointrade/internal/normalize"
	"cointrade/internal/signer"
	"cointrade/internal/symbols"
	"cointrade/internal/transport"
	"cointrade/models"
)

const (
	Name = "binance"

	SpotURL      = "https://api.binance.com"
	LinearURL    = "https://fapi.binance.com"
	PortfolioURL = "https://papi.binance.com"

	Timeout = 10 * time.Second
)

var bookLimits = []int{5, 10, 20, 50, 100, 500, 1000}

// Statuses covers the spot, futures and portfolio margin vocabularies.
var Statuses = normalize.StatusTable{
	"NEW":                     models.StatusOpen,
	"PARTIALLY_FILLED":        models.StatusOpen,
	"PENDING_NEW":             models.StatusOpen,
	"PENDING_CANCEL":          models.StatusOpen,
	"TRIGGERED":               models.StatusOpen,
	"FILLED":                  models.StatusClosed,
	"CANCELED":                models.StatusCanceled,
	"PartiallyFilledCanceled": models.StatusCanceled,
	"REJECTED":                models.StatusRejected,
	"Rejected":                models.StatusRejected,
	"EXPIRED":                 models.StatusExpired,
	"EXPIRED_IN_MATCH":        models.StatusExpired,
}

var orders = normalize.OrderMapping{
	ID:            normalize.At("orderId"),
	ClientOrderID: normalize.At("clientOrderId"),
	Price:         normalize.NumAt("price"),
	Average:       normalize.Func(average),
	Amount:        normalize.NumAt("origQty"),
	Filled:        normalize.NumAt("executedQty"),
	Side:          normalize.LowerAt("side"),
	Type:          normalize.LowerAt("type"),
	Status:        normalize.At("status"),
	Timestamp:     normalize.Func(orderTime),
	Statuses:      Statuses,
}

var trades = normalize.TradeMapping{
	ID:          normalize.At("id"),
	OrderID:     normalize.At("orderId"),
	Side:        normalize.Func(tradeSide),
	Price:       normalize.NumAt("price"),
	Amount:      normalize.NumAt("qty"),
	Fee:         normalize.NumAt("commission"),
	FeeCurrency: normalize.At("commissionAsset"),
	Timestamp:   normalize.MillisAt("time"),
}

// average prefers avgPrice (futures) and derives it from the quote volume
// for spot orders.
func average(v *fastjson.Value) string {
	if s := normalize.Str(v, "avgPrice"); s != "" {
		return s
	}
	filled := normalize.Num(v, "executedQty")
	if filled == 0 {
		return "0"
	}
	return strconv.FormatFloat(normalize.Num(v, "cummulativeQuoteQty")/filled, 'f', -1, 64)
}

func orderTime(v *fastjson.Value) string {
	for _, k := range []string{"time", "updateTime", "transactTime"} {
		if s := normalize.Str(v, k); s != "" {
			return s
		}
	}
	return ""
}

func tradeSide(v *fastjson.Value) string {
	if s := normalize.Str(v, "side"); s != "" {
		return strings.ToLower(s)
	}
	if v.GetBool("isBuyer") {
		return "buy"
	}
	return "sell"
}

// envelope decodes Binance's {code, msg} error body. Some successful
// portfolio margin replies carry a positive code, so only negative codes
// or HTTP failures count.
func envelope(status int, v *fastjson.Value) *models.ExchangeError {
	if v.Type() != fastjson.TypeObject || v.Get("code") == nil || v.Get("msg") == nil {
		return nil
	}
	var apiErr common.APIError
	if err := json.Unmarshal(v.MarshalTo(nil), &apiErr); err != nil {
		return nil
	}
	if apiErr.Code >= 0 && status < http.StatusBadRequest {
		return nil
	}
	return &models.ExchangeError{Code: strconv.FormatInt(apiErr.Code, 10), Message: apiErr.Message}
}

type Driver struct {
	exchange.Base
	opts   exchange.Options
	client *transport.Client
	signer signer.Binance
}

func New(opts exchange.Options) *Driver {
	return &Driver{
		Base:   exchange.Base{Exchange: Name},
		opts:   opts,
		client: opts.Client(Name, SpotURL, Timeout, envelope, map[string]string{"Content-Type": "application/json"}),
		signer: signer.Binance{Now: opts.Clock(), RecvWindow: opts.RecvWindow},
	}
}

// publicURL resolves a market data endpoint for spot or USDT-M markets.
func (d *Driver) publicURL(m models.Market, spotPath, linearPath string) (string, error) {
	switch m.MarketType {
	case models.MarketSpot:
		return d.opts.URL("spot", SpotURL) + spotPath, nil
	case models.MarketLinear:
		return d.opts.URL("linear", LinearURL) + linearPath, nil
	}
	return "", exchange.UnsupportedMarket(Name, m)
}

// privateURL routes spot orders to the spot API and everything else to
// the portfolio margin UM endpoints.
func (d *Driver) privateURL(m models.Market, spotPath, umPath string) string {
	if m.MarketType == models.MarketSpot {
		return d.opts.URL("spot", SpotURL) + spotPath
	}
	return d.opts.URL("papi", PortfolioURL) + umPath
}

func (d *Driver) market(symbol string) (models.Market, string, error) {
	m, err := symbols.Parse(symbol)
	if err != nil {
		return m, "", err
	}
	return m, symbols.Native(Name, m), nil
}

func (d *Driver) get(ctx context.Context, proxy, url string, q signer.Params) (*fastjson.Value, error) {
	req := signer.NewRequest(http.MethodGet, url)
	req.Query = q
	resp, err := d.client.Do(ctx, proxy, req)
	if err != nil {
		return nil, err
	}
	return exchange.Decode(Name, resp)
}

func (d *Driver) private(ctx context.Context, proxy string, keys models.ApiKeys, method, url string, q signer.Params, opts ...transport.Option) (*fastjson.Value, error) {
	req := signer.NewRequest(method, url)
	req.Query = q
	resp, err := d.client.Do(ctx, proxy, req, append(opts, transport.Signed(d.signer, keys))...)
	if err != nil {
		return nil, err
	}
	return exchange.Decode(Name, resp)
}

func (d *Driver) FetchTicker(ctx context.Context, proxy, symbol string) (models.Ticker, error) {
	m, native, err := d.market(symbol)
	if err != nil {
		return models.Ticker{}, err
	}
	url, err := d.publicURL(m, "/api/v3/ticker/price", "/fapi/v2/ticker/price")
	if err != nil {
		return models.Ticker{}, err
	}
	var q signer.Params
	q.Add("symbol", native)
	v, err := d.get(ctx, proxy, url, q)
	if err != nil {
		return models.Ticker{}, err
	}
	return models.Ticker{Symbol: symbol, Last: normalize.Num(v, "price")}, nil
}

func (d *Driver) FetchOrderBook(ctx context.Context, proxy, symbol string, limit int) (models.OrderBook, error) {
	m, native, err := d.market(symbol)
	if err != nil {
		return models.OrderBook{}, err
	}
	limit, err = exchange.CheckLimit(Name, limit, 5, bookLimits...)
	if err != nil {
		return models.OrderBook{}, err
	}
	url, err := d.publicURL(m, "/api/v3/depth", "/fapi/v1/depth")
	if err != nil {
		return models.OrderBook{}, err
	}
	var q signer.Params
	q.Add("symbol", native).Add("limit", limit)
	v, err := d.get(ctx, proxy, url, q)
	if err != nil {
		return models.OrderBook{}, err
	}
	return normalize.Book(symbol, normalize.Int(v, "E"),
		normalize.Levels(normalize.Array(v, "asks"), normalize.ArrayLevels),
		normalize.Levels(normalize.Array(v, "bids"), normalize.ArrayLevels),
		limit, nil), nil
}

func (d *Driver) FetchOHLCV(ctx context.Context, proxy, symbol, timeframe string, since int64, limit int) ([]models.OHLCV, error) {
	m, native, err := d.market(symbol)
	if err != nil {
		return nil, err
	}
	url, err := d.publicURL(m, "/api/v3/klines", "/fapi/v1/klines")
	if err != nil {
		return nil, err
	}
	if timeframe == "" {
		timeframe = "1m"
	}
	var q signer.Params
	q.Add("symbol", native).Add("interval", timeframe).AddIf("limit", limit).AddIf("startTime", since)
	v, err := d.get(ctx, proxy, url, q)
	if err != nil {
		return nil, err
	}
	return normalize.Candles(v.GetArray(), normalize.CandleSpec{}), nil
}

func (d *Driver) FetchBalance(ctx context.Context, proxy string, keys models.ApiKeys, coin string) (models.Balance, error) {
	var q signer.Params
	q.AddIf("asset", strings.ToUpper(coin))
	v, err := d.private(ctx, proxy, keys, http.MethodGet, d.opts.URL("papi", PortfolioURL)+"/papi/v1/balance", q)
	if err != nil {
		return models.Balance{}, err
	}
	rows := v.GetArray()
	if v.Type() == fastjson.TypeObject {
		rows = []*fastjson.Value{v}
	}
	bal := models.Balance{Info: exchange.RawJSON(v), Timestamp: d.opts.NowMillis(), Assets: map[string]models.BalanceEntry{}}
	for _, r := range rows {
		bal.Assets[normalize.Str(r, "asset")] = models.BalanceEntry{
			Free:  normalize.Num(r, "crossMarginFree"),
			Used:  normalize.Num(r, "crossMarginLocked"),
			Total: normalize.Num(r, "totalWalletBalance"),
		}
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
	var q signer.Params
	q.Add("symbol", native).
		Add("side", strings.ToUpper(req.Side)).
		Add("type", strings.ToUpper(req.Type)).
		Add("quantity", req.Amount)
	if !req.IsMarket() {
		q.Add("price", req.Price)
		if req.Extra.String("timeInForce") == "" {
			q.Add("timeInForce", "GTC")
		}
	}
	q.AddExtra(req.Extra)
	v, err := d.private(ctx, proxy, keys, http.MethodPost, d.privateURL(m, "/api/v3/order", "/papi/v1/um/order"), q, transport.NoRetry())
	if err != nil {
		return models.Order{}, err
	}
	return orders.Order(v, req.Symbol), nil
}

func (d *Driver) CancelOrder(ctx context.Context, proxy string, keys models.ApiKeys, id, symbol string, extra models.Params) (models.CancelResult, error) {
	m, native, err := d.market(symbol)
	if err != nil {
		return models.CancelResult{}, err
	}
	var q signer.Params
	q.Add("symbol", native).AddIf("orderId", id).AddExtra(extra)
	v, err := d.private(ctx, proxy, keys, http.MethodDelete, d.privateURL(m, "/api/v3/order", "/papi/v1/um/order"), q)
	if err != nil {
		return models.CancelResult{}, err
	}
	return models.CancelResult{
		ID:            normalize.Str(v, "orderId"),
		ClientOrderID: normalize.Str(v, "clientOrderId"),
		Symbol:        symbol,
		Info:          exchange.RawJSON(v),
	}, nil
}

func (d *Driver) CancelAllOrders(ctx context.Context, proxy string, keys models.ApiKeys, symbol string, extra models.Params) (models.CancelResult, error) {
	m, native, err := d.market(symbol)
	if err != nil {
		return models.CancelResult{}, err
	}
	var q signer.Params
	q.Add("symbol", native).AddExtra(extra)
	v, err := d.private(ctx, proxy, keys, http.MethodDelete, d.privateURL(m, "/api/v3/openOrders", "/papi/v1/um/allOpenOrders"), q)
	if err != nil {
		return models.CancelResult{}, err
	}
	return models.CancelResult{Symbol: symbol, Info: exchange.RawJSON(v)}, nil
}

func (d *Driver) FetchOrder(ctx context.Context, proxy string, keys models.ApiKeys, id, symbol string, extra models.Params) (models.Order, error) {
	m, native, err := d.market(symbol)
	if err != nil {
		return models.Order{}, err
	}
	var q signer.Params
	q.Add("symbol", native).AddIf("orderId", id).AddExtra(extra)
	v, err := d.private(ctx, proxy, keys, http.MethodGet, d.privateURL(m, "/api/v3/order", "/papi/v1/um/order"), q)
	if err != nil {
		return models.Order{}, err
	}
	return orders.Order(v, symbol), nil
}

func (d *Driver) FetchOpenOrders(ctx context.Context, proxy string, keys models.ApiKeys, oq models.OrderQuery) ([]models.Order, error) {
	m, native, err := d.market(oq.Symbol)
	if err != nil {
		return nil, err
	}
	var q signer.Params
	q.Add("symbol", native).AddExtra(oq.Extra)
	v, err := d.private(ctx, proxy, keys, http.MethodGet, d.privateURL(m, "/api/v3/openOrders", "/papi/v1/um/openOrders"), q)
	if err != nil {
		return nil, err
	}
	return orders.Orders(v.GetArray(), oq.Symbol), nil
}

// FetchClosedOrders reads the order history and drops orders that are
// still working.
func (d *Driver) FetchClosedOrders(ctx context.Context, proxy string, keys models.ApiKeys, oq models.OrderQuery) ([]models.Order, error) {
	m, native, err := d.market(oq.Symbol)
	if err != nil {
		return nil, err
	}
	var q signer.Params
	q.Add("symbol", native).AddIf("startTime", oq.Since).AddIf("limit", oq.Limit).AddExtra(oq.Extra)
	v, err := d.private(ctx, proxy, keys, http.MethodGet, d.privateURL(m, "/api/v3/allOrders", "/papi/v1/um/allOrders"), q)
	if err != nil {
		return nil, err
	}
	all := orders.Orders(v.GetArray(), oq.Symbol)
	out := all[:0]
	for _, o := range all {
		if o.Status != models.StatusOpen {
			out = append(out, o)
		}
	}
	return out, nil
}

func (d *Driver) FetchMyTrades(ctx context.Context, proxy string, keys models.ApiKeys, oq models.OrderQuery) ([]models.Trade, error) {
	m, native, err := d.market(oq.Symbol)
	if err != nil {
		return nil, err
	}
	var q signer.Params
	q.Add("symbol", native).AddIf("startTime", oq.Since).AddIf("limit", oq.Limit).AddExtra(oq.Extra)
	v, err := d.private(ctx, proxy, keys, http.MethodGet, d.privateURL(m, "/api/v3/myTrades", "/papi/v1/um/userTrades"), q)
	if err != nil {
		return nil, err
	}
	return trades.Trades(v.GetArray(), oq.Symbol), nil
}

func (d *Driver) CustomRequest(ctx context.Context, proxy string, keys *models.ApiKeys, req models.CustomRequest) (json.RawMessage, error) {
	return exchange.Custom(ctx, d.client, proxy, keys, d.signer, req)
}

func (d *Driver) Withdraw(ctx context.Context, proxy string, keys models.ApiKeys, req models.WithdrawRequest) (json.RawMessage, error) {
	if req.Coin == "" || req.Address == "" || req.Amount <= 0 {
		return nil, exchange.Invalid(Name, "coin, address and a positive amount are required")
	}
	var q signer.Params
	q.Add("coin", strings.ToUpper(req.Coin)).
		Add("address", req.Address).
		Add("amount", req.Amount).
		AddIf("network", req.Network).
		AddIf("addressTag", req.Tag).
		AddExtra(req.Extra)
	v, err := d.private(ctx, proxy, keys, http.MethodPost, d.opts.URL("spot", SpotURL)+"/sapi/v1/capital/withdraw/apply", q, transport.NoRetry())
	if err != nil {
		return nil, err
	}
	return exchange.RawJSON(v), nil
}
