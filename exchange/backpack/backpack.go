// Package backpack drives the Backpack Exchange API. Every signed call
// names an instruction that is part of the ED25519 signature.
package backpack

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
	Name    = "backpack"
	BaseURL = "https://api.backpack.exchange"
	Timeout = 15 * time.Second
)

var Statuses = normalize.StatusTable{
	"New":             models.StatusOpen,
	"PartiallyFilled": models.StatusOpen,
	"TriggerPending":  models.StatusOpen,
	"TriggerFailed":   models.StatusRejected,
	"Filled":          models.StatusClosed,
	"Cancelled":       models.StatusCanceled,
	"Expired":         models.StatusExpired,
}

var orders = normalize.OrderMapping{
	ID:            normalize.At("id"),
	ClientOrderID: normalize.At("clientId"),
	Price:         normalize.NumAt("price"),
	Amount:        normalize.NumAt("quantity"),
	Filled:        normalize.NumAt("executedQuantity"),
	Side:          normalize.At("side"),
	Type:          normalize.LowerAt("orderType"),
	Status:        normalize.At("status"),
	Timestamp:     normalize.MillisAt("createdAt"),
	Statuses:      Statuses,
	Sides:         normalize.Sides{"Bid": "buy", "Ask": "sell"},
}

func envelope(status int, v *fastjson.Value) *models.ExchangeError {
	if v.Type() != fastjson.TypeObject || v.Get("code") == nil {
		return nil
	}
	msg := normalize.Str(v, "message")
	if msg == "" {
		return nil
	}
	return &models.ExchangeError{Code: normalize.Str(v, "code"), Message: "Backpack error:" + msg}
}

// instruction binds a Backpack instruction to the request before signing.
type instruction struct {
	signer.Backpack
	name string
}

func (s instruction) Sign(req *signer.Request, keys models.ApiKeys) error {
	if req.Instruction == "" {
		req.Instruction = s.name
	}
	return s.Backpack.Sign(req, keys)
}

type Driver struct {
	exchange.Base
	now    func() int64
	client *transport.Client
	signer signer.Backpack
}

func New(opts exchange.Options) *Driver {
	return &Driver{
		Base:   exchange.Base{Exchange: Name},
		now:    opts.NowMillis,
		client: opts.Client(Name, BaseURL, Timeout, envelope, map[string]string{"Content-Type": "application/json"}),
		signer: signer.Backpack{Now: opts.Clock()},
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

func (d *Driver) do(ctx context.Context, proxy, method, path, instr string, q signer.Params, body interface{}, keys *models.ApiKeys, opts ...transport.Option) (*fastjson.Value, error) {
	req := signer.NewRequest(method, path)
	req.Query = q
	req.Instruction = instr
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
	_, native, err := d.market(symbol)
	if err != nil {
		return models.Ticker{}, err
	}
	var q signer.Params
	q.Add("symbol", native)
	v, err := d.do(ctx, proxy, http.MethodGet, "/api/v1/ticker", "", q, nil, nil)
	if err != nil {
		return models.Ticker{}, err
	}
	return models.Ticker{
		Symbol: symbol,
		Last:   normalize.Num(v, "lastPrice"),
		High:   normalize.Num(v, "high"),
		Low:    normalize.Num(v, "low"),
		Volume: normalize.Num(v, "volume"),
	}, nil
}

// FetchOrderBook returns the full depth snapshot unless limit is set.
func (d *Driver) FetchOrderBook(ctx context.Context, proxy, symbol string, limit int) (models.OrderBook, error) {
	_, native, err := d.market(symbol)
	if err != nil {
		return models.OrderBook{}, err
	}
	limit, err = exchange.CheckLimit(Name, limit, 0)
	if err != nil {
		return models.OrderBook{}, err
	}
	var q signer.Params
	q.Add("symbol", native)
	v, err := d.do(ctx, proxy, http.MethodGet, "/api/v1/depth", "", q, nil, nil)
	if err != nil {
		return models.OrderBook{}, err
	}
	asks := normalize.Levels(normalize.Array(v, "asks"), normalize.ArrayLevels)
	bids := normalize.Reverse(normalize.Levels(normalize.Array(v, "bids"), normalize.ArrayLevels))
	return normalize.Book(symbol, normalize.Millis(normalize.Int(v, "timestamp")), asks, bids, limit, nil), nil
}

// FetchBalance returns the account settings in Info; Backpack keeps
// per-asset balances on the capital endpoint.
func (d *Driver) FetchBalance(ctx context.Context, proxy string, keys models.ApiKeys, coin string) (models.Balance, error) {
	v, err := d.do(ctx, proxy, http.MethodGet, "/api/v1/account", "accountQuery", signer.Params{}, nil, &keys)
	if err != nil {
		return models.Balance{}, err
	}
	return models.Balance{Info: exchange.RawJSON(v), Timestamp: d.now(), Assets: map[string]models.BalanceEntry{}}, nil
}

func (d *Driver) CreateOrder(ctx context.Context, proxy string, keys models.ApiKeys, req models.OrderRequest) (models.Order, error) {
	if err := exchange.CheckOrder(Name, req); err != nil {
		return models.Order{}, err
	}
	_, native, err := d.market(req.Symbol)
	if err != nil {
		return models.Order{}, err
	}
	side, typ := "Ask", "Limit"
	if strings.EqualFold(req.Side, "buy") {
		side = "Bid"
	}
	if req.IsMarket() {
		typ = "Market"
	}
	body := map[string]interface{}{
		"symbol":    native,
		"side":      side,
		"orderType": typ,
		"quantity":  models.FormatValue(req.Amount),
	}
	if !req.IsMarket() {
		body["price"] = models.FormatValue(req.Price)
	}
	for k, v := range req.Extra {
		body[k] = v
	}
	v, err := d.do(ctx, proxy, http.MethodPost, "/api/v1/order", "orderExecute", signer.Params{}, body, &keys, transport.NoRetry())
	if err != nil {
		return models.Order{}, err
	}
	return orders.Order(v, req.Symbol), nil
}

func (d *Driver) CancelOrder(ctx context.Context, proxy string, keys models.ApiKeys, id, symbol string, extra models.Params) (models.CancelResult, error) {
	_, native, err := d.market(symbol)
	if err != nil {
		return models.CancelResult{}, err
	}
	body := map[string]interface{}{"orderId": id, "symbol": native}
	for k, v := range extra {
		body[k] = v
	}
	v, err := d.do(ctx, proxy, http.MethodDelete, "/api/v1/order", "orderCancel", signer.Params{}, body, &keys)
	if err != nil {
		return models.CancelResult{}, err
	}
	return models.CancelResult{ID: normalize.Str(v, "id"), ClientOrderID: normalize.Str(v, "clientId"), Symbol: symbol, Info: exchange.RawJSON(v)}, nil
}

func (d *Driver) FetchOpenOrders(ctx context.Context, proxy string, keys models.ApiKeys, oq models.OrderQuery) ([]models.Order, error) {
	_, native, err := d.market(oq.Symbol)
	if err != nil {
		return nil, err
	}
	var q signer.Params
	q.Add("symbol", native).AddExtra(oq.Extra)
	v, err := d.do(ctx, proxy, http.MethodGet, "/api/v1/orders", "orderQueryAll", q, nil, &keys)
	if err != nil {
		return nil, err
	}
	return orders.Orders(v.GetArray(), oq.Symbol), nil
}

// CustomRequest signs with the instruction named in Extra["instruction"].
func (d *Driver) CustomRequest(ctx context.Context, proxy string, keys *models.ApiKeys, req models.CustomRequest) (json.RawMessage, error) {
	s := instruction{Backpack: d.signer, name: req.Extra.String("instruction")}
	req.Extra = req.Extra.Without("instruction")
	return exchange.Custom(ctx, d.client, proxy, keys, s, req)
}
