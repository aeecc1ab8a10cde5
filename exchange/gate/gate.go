// Package gate drives the Gate.io v4 spot and USDT futures API.
package gate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/valyala/fastjson"

	"cointrade/exchange"
	"cointrade/internal/normalize"
	"cointrade/internal/signer"
	"cointrade/internal/symbols"
	"cointrade/internal/transport"
	"cointrade/models"
)

const (
	Name    = "gate"
	BaseURL = "https://api.gateio.ws"
	Timeout = 5 * time.Second

	spotOrders    = "/api/v4/spot/orders"
	futuresOrders = "/api/v4/futures/usdt/orders"
)

var Statuses = normalize.StatusTable{
	"open":      models.StatusOpen,
	"closed":    models.StatusClosed,
	"finished":  models.StatusClosed,
	"cancelled": models.StatusCanceled,
}

var spot = normalize.OrderMapping{
	ID:            normalize.At("id"),
	ClientOrderID: normalize.At("text"),
	Price:         normalize.NumAt("price"),
	Average:       normalize.NumAt("avg_deal_price"),
	Amount:        normalize.NumAt("amount"),
	Filled:        normalize.NumAt("filled_amount"),
	Remaining:     normalize.NumAt("left"),
	Side:          normalize.LowerAt("side"),
	Type:          normalize.LowerAt("type"),
	Status:        normalize.At("status"),
	Timestamp:     normalize.MillisAt("create_time_ms"),
	Statuses:      Statuses,
}

// Futures orders carry a signed contract size; a finished order that
// did not fill reports why in finish_as.
var futures = normalize.OrderMapping{
	ID:            normalize.At("id"),
	ClientOrderID: normalize.At("text"),
	Price:         normalize.NumAt("price"),
	Average:       normalize.NumAt("fill_price"),
	Amount:        normalize.Func(func(v *fastjson.Value) string { return abs(v, "size").String() }),
	Filled: normalize.Func(func(v *fastjson.Value) string {
		return abs(v, "size").Sub(abs(v, "left")).String()
	}),
	Remaining: normalize.Func(func(v *fastjson.Value) string { return abs(v, "left").String() }),
	Side: normalize.Func(func(v *fastjson.Value) string {
		if strings.HasPrefix(normalize.Str(v, "size"), "-") {
			return "sell"
		}
		return "buy"
	}),
	Type: normalize.Func(func(v *fastjson.Value) string {
		if normalize.Num(v, "price") == 0 {
			return "market"
		}
		return "limit"
	}),
	Status: normalize.Func(func(v *fastjson.Value) string {
		switch normalize.Str(v, "finish_as") {
		case "cancelled", "ioc", "reduce_only", "position_closed", "stp":
			return "cancelled"
		}
		return normalize.Str(v, "status")
	}),
	Timestamp: normalize.MillisAt("create_time"),
	Statuses:  Statuses,
}

var trades = normalize.TradeMapping{
	ID:          normalize.At("id"),
	OrderID:     normalize.At("order_id"),
	Side:        normalize.LowerAt("side"),
	Price:       normalize.NumAt("price"),
	Amount:      normalize.NumAt("amount"),
	Fee:         normalize.NumAt("fee"),
	FeeCurrency: normalize.At("fee_currency"),
	Timestamp:   normalize.MillisAt("create_time_ms"),
}

func abs(v *fastjson.Value, key string) decimal.Decimal {
	d, err := decimal.NewFromString(normalize.Str(v, key))
	if err != nil {
		return decimal.Zero
	}
	return d.Abs()
}

// envelope reads Gate's {label, message} error object.
func envelope(status int, v *fastjson.Value) *models.ExchangeError {
	if v.Type() != fastjson.TypeObject {
		return nil
	}
	label := normalize.Str(v, "label")
	if label == "" {
		return nil
	}
	msg := normalize.Str(v, "message")
	if msg == "" {
		msg = label
	}
	return &models.ExchangeError{Code: label, Message: msg}
}

type Driver struct {
	exchange.Base
	now    func() int64
	client *transport.Client
	signer signer.Gate
}

func New(opts exchange.Options) *Driver {
	return &Driver{
		Base:   exchange.Base{Exchange: Name},
		now:    opts.NowMillis,
		client: opts.Client(Name, BaseURL, Timeout, envelope, map[string]string{"Content-Type": "application/json"}),
		signer: signer.Gate{Now: opts.Clock()},
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
	return exchange.Decode(Name, resp)
}

func (d *Driver) FetchTicker(ctx context.Context, proxy, symbol string) (models.Ticker, error) {
	m, native, err := d.market(symbol)
	if err != nil {
		return models.Ticker{}, err
	}
	if m.MarketType == models.MarketLinear {
		v, err := d.do(ctx, proxy, http.MethodGet, "/api/v4/futures/usdt/contracts/"+url.PathEscape(native), signer.Params{}, nil, nil)
		if err != nil {
			return models.Ticker{}, err
		}
		return models.Ticker{Symbol: symbol, Last: normalize.Num(v, "last_price")}, nil
	}
	var q signer.Params
	q.Add("currency_pair", native)
	v, err := d.do(ctx, proxy, http.MethodGet, "/api/v4/spot/tickers", q, nil, nil)
	if err != nil {
		return models.Ticker{}, err
	}
	rows := v.GetArray()
	if len(rows) == 0 {
		return models.Ticker{}, &models.ExchangeError{Exchange: Name, Message: "no ticker for " + native}
	}
	r := rows[0]
	return models.Ticker{
		Symbol: symbol,
		Last:   normalize.Num(r, "last"),
		Bid:    normalize.Num(r, "highest_bid"),
		Ask:    normalize.Num(r, "lowest_ask"),
		High:   normalize.Num(r, "high_24h"),
		Low:    normalize.Num(r, "low_24h"),
		Volume: normalize.Num(r, "base_volume"),
	}, nil
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
	path, spec := "/api/v4/spot/order_book", normalize.ArrayLevels
	if m.MarketType == models.MarketLinear {
		path, spec = "/api/v4/futures/usdt/order_book", normalize.LevelSpec{Price: "p", Size: "s"}
		q.Add("contract", native)
	} else {
		q.Add("currency_pair", native)
	}
	q.Add("limit", limit).Add("with_id", "true")
	v, err := d.do(ctx, proxy, http.MethodGet, path, q, nil, nil)
	if err != nil {
		return models.OrderBook{}, err
	}
	ts := normalize.Millis(int64(normalize.Num(v, "current")))
	return normalize.Book(symbol, ts,
		normalize.Levels(normalize.Array(v, "asks"), spec),
		normalize.Levels(normalize.Array(v, "bids"), spec),
		limit, nil), nil
}

// FetchBalance reports the account total valued in the quote currency
// Gate returns. Per-account details stay in Info.
func (d *Driver) FetchBalance(ctx context.Context, proxy string, keys models.ApiKeys, coin string) (models.Balance, error) {
	var q signer.Params
	q.AddIf("currency", strings.ToUpper(coin))
	v, err := d.do(ctx, proxy, http.MethodGet, "/api/v4/wallet/total_balance", q, nil, &keys)
	if err != nil {
		return models.Balance{}, err
	}
	bal := models.Balance{Info: exchange.RawJSON(v), Timestamp: d.now(), Assets: map[string]models.BalanceEntry{}}
	if cur := normalize.Str(v, "total", "currency"); cur != "" {
		total := normalize.Num(v, "total", "amount")
		bal.Assets[strings.ToUpper(cur)] = models.BalanceEntry{Free: total, Total: total}
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
	side := strings.ToLower(req.Side)
	var body map[string]interface{}
	path, mapping := spotOrders, spot
	if m.MarketType == models.MarketLinear {
		size := decimal.NewFromFloat(req.Amount)
		if side == "sell" {
			size = size.Neg()
		}
		body = map[string]interface{}{"contract": native, "size": json.Number(size.String()), "price": "0", "tif": "ioc"}
		if !req.IsMarket() {
			body["price"] = models.FormatValue(req.Price)
			body["tif"] = "gtc"
		}
		path, mapping = futuresOrders, futures
	} else {
		body = map[string]interface{}{
			"currency_pair": native,
			"side":          side,
			"type":          strings.ToLower(req.Type),
			"amount":        models.FormatValue(req.Amount),
			"account":       "unified",
		}
		if req.IsMarket() {
			body["time_in_force"] = "ioc"
		} else {
			body["price"] = models.FormatValue(req.Price)
		}
	}
	for k, v := range req.Extra {
		body[k] = v
	}
	v, err := d.do(ctx, proxy, http.MethodPost, path, signer.Params{}, body, &keys, transport.NoRetry())
	if err != nil {
		return models.Order{}, err
	}
	return mapping.Order(v, req.Symbol), nil
}

func (d *Driver) CancelOrder(ctx context.Context, proxy string, keys models.ApiKeys, id, symbol string, extra models.Params) (models.CancelResult, error) {
	m, native, err := d.market(symbol)
	if err != nil {
		return models.CancelResult{}, err
	}
	var q signer.Params
	path := futuresOrders + "/" + url.PathEscape(id)
	if m.MarketType == models.MarketSpot {
		path = spotOrders + "/" + url.PathEscape(id)
		q.Add("currency_pair", native)
	}
	q.AddExtra(extra)
	v, err := d.do(ctx, proxy, http.MethodDelete, path, q, nil, &keys)
	if err != nil {
		return models.CancelResult{}, err
	}
	return models.CancelResult{ID: normalize.Str(v, "id"), ClientOrderID: normalize.Str(v, "text"), Symbol: symbol, Info: exchange.RawJSON(v)}, nil
}

func (d *Driver) FetchOrder(ctx context.Context, proxy string, keys models.ApiKeys, id, symbol string, extra models.Params) (models.Order, error) {
	m, native, err := d.market(symbol)
	if err != nil {
		return models.Order{}, err
	}
	var q signer.Params
	path, mapping := futuresOrders+"/"+url.PathEscape(id), futures
	if m.MarketType == models.MarketSpot {
		path, mapping = spotOrders+"/"+url.PathEscape(id), spot
		q.Add("currency_pair", native)
	}
	q.AddExtra(extra)
	v, err := d.do(ctx, proxy, http.MethodGet, path, q, nil, &keys)
	if err != nil {
		return models.Order{}, err
	}
	return mapping.Order(v, symbol), nil
}

func (d *Driver) listOrders(ctx context.Context, proxy string, keys models.ApiKeys, oq models.OrderQuery, status string) ([]models.Order, error) {
	m, native, err := d.market(oq.Symbol)
	if err != nil {
		return nil, err
	}
	var q signer.Params
	path, mapping := futuresOrders, futures
	if m.MarketType == models.MarketSpot {
		path, mapping = spotOrders, spot
		q.Add("currency_pair", native)
	} else {
		q.Add("contract", native)
	}
	q.Add("status", status).AddIf("limit", oq.Limit)
	if oq.Since > 0 && status != "open" {
		q.Add("from", oq.Since/1000)
	}
	q.AddExtra(oq.Extra)
	v, err := d.do(ctx, proxy, http.MethodGet, path, q, nil, &keys)
	if err != nil {
		return nil, err
	}
	return mapping.Orders(v.GetArray(), oq.Symbol), nil
}

func (d *Driver) FetchOpenOrders(ctx context.Context, proxy string, keys models.ApiKeys, q models.OrderQuery) ([]models.Order, error) {
	return d.listOrders(ctx, proxy, keys, q, "open")
}

func (d *Driver) FetchClosedOrders(ctx context.Context, proxy string, keys models.ApiKeys, q models.OrderQuery) ([]models.Order, error) {
	return d.listOrders(ctx, proxy, keys, q, "finished")
}

func (d *Driver) FetchMyTrades(ctx context.Context, proxy string, keys models.ApiKeys, oq models.OrderQuery) ([]models.Trade, error) {
	m, native, err := d.market(oq.Symbol)
	if err != nil {
		return nil, err
	}
	if m.MarketType != models.MarketSpot {
		return nil, exchange.UnsupportedMarket(Name, m)
	}
	var q signer.Params
	q.Add("currency_pair", native).AddIf("limit", oq.Limit)
	if oq.Since > 0 {
		q.Add("from", oq.Since/1000)
	}
	q.AddExtra(oq.Extra)
	v, err := d.do(ctx, proxy, http.MethodGet, "/api/v4/spot/my_trades", q, nil, &keys)
	if err != nil {
		return nil, err
	}
	return trades.Trades(v.GetArray(), oq.Symbol), nil
}

func (d *Driver) CustomRequest(ctx context.Context, proxy string, keys *models.ApiKeys, req models.CustomRequest) (json.RawMessage, error) {
	return exchange.Custom(ctx, d.client, proxy, keys, d.signer, req)
}
