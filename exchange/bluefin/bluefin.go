// Package bluefin drives the Bluefin perpetuals API on Sui. Prices and
// sizes travel as 18-decimal fixed point integers. Orders are serialized,
// hashed and signed with the account's Sui key before they are posted.
package bluefin

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/valyala/fastjson"

	"cointrade/exchange"
	"cointrade/internal/normalize"
	"cointrade/internal/session"
	"cointrade/internal/signer"
	"cointrade/internal/symbols"
	"cointrade/internal/transport"
	"cointrade/models"
)

const (
	Name     = "bluefin"
	BaseURL  = "https://dapi.api.sui-prod.bluefin.io"
	Timeout  = 5 * time.Second
	TokenTTL = 30 * time.Minute

	// DefaultLeverage applies when the order carries no leverage param.
	DefaultLeverage = 5
	orderExpiry     = 30 * 24 * time.Hour
	contractsTTL    = 4 * time.Hour

	onboardingMessage = `{"onboardingUrl":"https://trade-sui.bluefin.exchange"}`
	decimals          = 18
)

var Statuses = normalize.StatusTable{
	"PENDING":          models.StatusOpen,
	"CANCELLING":       models.StatusOpen,
	"PARTIAL_FILLED":   models.StatusOpen,
	"STAND_BY":         models.StatusOpen,
	"STAND_BY_PENDING": models.StatusOpen,
	"OPEN":             models.StatusOpen,
	"FILLED":           models.StatusClosed,
	"CANCELLED":        models.StatusCanceled,
	"EXPIRED":          models.StatusExpired,
	"REJECTED":         models.StatusRejected,
}

var (
	openStatuses   = []string{"OPEN", "PENDING", "PARTIAL_FILLED", "STAND_BY", "STAND_BY_PENDING", "CANCELLING"}
	closedStatuses = []string{"FILLED", "CANCELLED", "EXPIRED", "REJECTED"}
)

var orders = normalize.OrderMapping{
	ID:            normalize.At("id"),
	ClientOrderID: normalize.At("clientId"),
	Symbol:        normalize.At("symbol"),
	Price:         normalize.E18At("price"),
	Average:       normalize.E18At("avgFillPrice"),
	Amount:        normalize.E18At("quantity"),
	Filled:        normalize.E18At("filledQty"),
	Side:          normalize.LowerAt("side"),
	Type:          normalize.LowerAt("orderType"),
	Status:        normalize.At("orderStatus"),
	Timestamp:     normalize.MillisAt("createdAt"),
	Statuses:      Statuses,
	SymbolFrom: func(native string) string {
		return symbols.FromNative(Name, native)
	},
}

var candles = normalize.CandleSpec{Decimals: decimals}

var levels = normalize.LevelSpec{Decimals: decimals}

type Driver struct {
	exchange.Base
	now       func() int64
	client    *transport.Client
	tokens    *session.Cache[string]
	contracts *session.Cache[*fastjson.Value]
	salt      func() int64
}

func New(opts exchange.Options) *Driver {
	tokens := session.New[string](opts.TTL(TokenTTL))
	contracts := session.New[*fastjson.Value](contractsTTL)
	if opts.Now != nil {
		tokens.SetClock(opts.Now)
		contracts.SetClock(opts.Now)
	}
	return &Driver{
		Base:      exchange.Base{Exchange: Name},
		now:       opts.NowMillis,
		client:    opts.Client(Name, BaseURL, Timeout, transport.FieldEnvelope("Bluefin error:", "error"), map[string]string{"Content-Type": "application/json"}),
		tokens:    tokens,
		contracts: contracts,
		salt:      func() int64 { return rand.Int63n(1 << 60) },
	}
}

func (d *Driver) native(symbol string) (string, error) {
	m, err := symbols.Parse(symbol)
	if err != nil {
		return "", err
	}
	if m.MarketType != models.MarketLinear {
		return "", exchange.UnsupportedMarket(Name, m)
	}
	return symbols.Native(Name, m), nil
}

// token signs the onboarding message with the account's Sui key and
// trades it for a bearer token.
func (d *Driver) token(ctx context.Context, proxy string, keys models.ApiKeys) (string, error) {
	if err := models.RequireKeys(Name, keys, "apiKey", "secret"); err != nil {
		return "", err
	}
	return d.tokens.Get(ctx, keys.Fingerprint(), func(ctx context.Context) (string, error) {
		key, err := signer.ParseSuiKey(Name, keys.Secret)
		if err != nil {
			return "", err
		}
		req := signer.NewRequest(http.MethodPost, "/authorize")
		err = req.SetJSON(map[string]interface{}{
			"signature":      key.SignPersonalMessage([]byte(onboardingMessage)),
			"userAddress":    key.Address(),
			"isTermAccepted": true,
		})
		if err != nil {
			return "", err
		}
		resp, err := d.client.Do(ctx, proxy, req)
		if err != nil {
			return "", err
		}
		v, err := exchange.Decode(Name, resp)
		if err != nil {
			return "", err
		}
		tok := normalize.Str(v, "token")
		if tok == "" {
			return "", &models.ExchangeError{Exchange: Name, Status: resp.Status, Message: "Bluefin error:authorize returned no token"}
		}
		return tok, nil
	})
}

func (d *Driver) get(ctx context.Context, proxy, path string, q signer.Params, keys *models.ApiKeys) (*fastjson.Value, error) {
	return d.do(ctx, proxy, http.MethodGet, path, q, nil, keys)
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
		tok, err := d.token(ctx, proxy, *keys)
		if err != nil {
			return nil, err
		}
		opts = append(opts, transport.Signed(signer.Bearer{Exchange: Name, Token: tok}, *keys))
	}
	resp, err := d.client.Do(ctx, proxy, req, opts...)
	if err != nil {
		var ex *models.ExchangeError
		if keys != nil && errors.As(err, &ex) && ex.Status == http.StatusUnauthorized {
			d.tokens.Invalidate(keys.Fingerprint())
		}
		return nil, err
	}
	return exchange.Decode(Name, resp)
}

func (d *Driver) FetchTicker(ctx context.Context, proxy, symbol string) (models.Ticker, error) {
	native, err := d.native(symbol)
	if err != nil {
		return models.Ticker{}, err
	}
	var q signer.Params
	q.Add("symbol", native)
	v, err := d.get(ctx, proxy, "/marketData", q, nil)
	if err != nil {
		return models.Ticker{}, err
	}
	e18 := func(k string) float64 { return normalize.ScaleE18(normalize.Str(v, k)) }
	return models.Ticker{
		Symbol: symbol,
		Last:   e18("lastPrice"),
		Bid:    e18("bestBidPrice"),
		Ask:    e18("bestAskPrice"),
		High:   e18("_24hrHighPrice"),
		Low:    e18("_24hrLowPrice"),
		Volume: e18("_24hrVolume"),
	}, nil
}

func (d *Driver) FetchOrderBook(ctx context.Context, proxy, symbol string, limit int) (models.OrderBook, error) {
	native, err := d.native(symbol)
	if err != nil {
		return models.OrderBook{}, err
	}
	limit, err = exchange.CheckLimit(Name, limit, 2)
	if err != nil {
		return models.OrderBook{}, err
	}
	var q signer.Params
	q.Add("symbol", native).Add("limit", limit)
	v, err := d.get(ctx, proxy, "/orderbook", q, nil)
	if err != nil {
		return models.OrderBook{}, err
	}
	return normalize.Book(symbol, normalize.Int(v, "lastUpdatedAt"),
		normalize.Levels(normalize.Array(v, "asks"), levels),
		normalize.Levels(normalize.Array(v, "bids"), levels),
		limit, nil), nil
}

func (d *Driver) FetchOHLCV(ctx context.Context, proxy, symbol, timeframe string, since int64, limit int) ([]models.OHLCV, error) {
	native, err := d.native(symbol)
	if err != nil {
		return nil, err
	}
	limit, err = exchange.CheckLimit(Name, limit, 20)
	if err != nil {
		return nil, err
	}
	if timeframe == "" {
		timeframe = "1m"
	}
	var q signer.Params
	q.Add("symbol", native).Add("interval", timeframe).Add("limit", limit).AddIf("startTime", since)
	v, err := d.get(ctx, proxy, "/candlestickData", q, nil)
	if err != nil {
		return nil, err
	}
	return normalize.Candles(v.GetArray(), candles), nil
}

// FetchBalance reports the USDC margin account.
func (d *Driver) FetchBalance(ctx context.Context, proxy string, keys models.ApiKeys, coin string) (models.Balance, error) {
	v, err := d.get(ctx, proxy, "/account", signer.Params{}, &keys)
	if err != nil {
		return models.Balance{}, err
	}
	free := normalize.ScaleE18(normalize.Str(v, "freeCollateral"))
	total := normalize.ScaleE18(normalize.Str(v, "walletBalance"))
	bal := models.Balance{
		Info:      exchange.RawJSON(v),
		Timestamp: normalize.Int(v, "updateTimeInMs"),
		Assets:    map[string]models.BalanceEntry{"USDC": {Free: free, Total: total}},
	}
	if bal.Timestamp == 0 {
		bal.Timestamp = d.now()
	}
	if coin != "" && !strings.EqualFold(coin, "USDC") {
		bal.Assets = map[string]models.BalanceEntry{}
	}
	return bal, nil
}

func (d *Driver) listOrders(ctx context.Context, proxy string, keys models.ApiKeys, symbol, id string, statuses []string, extra models.Params) ([]models.Order, error) {
	var q signer.Params
	if symbol != "" {
		native, err := d.native(symbol)
		if err != nil {
			return nil, err
		}
		q.Add("symbol", native)
	}
	q.AddIf("orderId", id)
	for _, s := range statuses {
		q.Add("statuses", s)
	}
	q.AddExtra(extra)
	v, err := d.get(ctx, proxy, "/orders", q, &keys)
	if err != nil {
		return nil, err
	}
	return orders.Orders(v.GetArray(), symbol), nil
}

func (d *Driver) FetchOrder(ctx context.Context, proxy string, keys models.ApiKeys, id, symbol string, extra models.Params) (models.Order, error) {
	all := append(append([]string{}, openStatuses...), closedStatuses...)
	got, err := d.listOrders(ctx, proxy, keys, "", id, all, extra)
	if err != nil {
		return models.Order{}, err
	}
	if len(got) == 0 {
		return models.Order{}, &models.ExchangeError{Exchange: Name, Code: "order_not_found", Message: "Bluefin error:order " + id + " not found"}
	}
	return got[0], nil
}

func (d *Driver) FetchOpenOrders(ctx context.Context, proxy string, keys models.ApiKeys, q models.OrderQuery) ([]models.Order, error) {
	return d.listOrders(ctx, proxy, keys, q.Symbol, "", openStatuses, q.Extra)
}

func (d *Driver) FetchClosedOrders(ctx context.Context, proxy string, keys models.ApiKeys, q models.OrderQuery) ([]models.Order, error) {
	return d.listOrders(ctx, proxy, keys, q.Symbol, "", closedStatuses, q.Extra)
}

// CustomRequest sends the bearer token when keys are given.
func (d *Driver) CustomRequest(ctx context.Context, proxy string, keys *models.ApiKeys, req models.CustomRequest) (json.RawMessage, error) {
	if keys == nil {
		return exchange.Custom(ctx, d.client, proxy, nil, nil, req)
	}
	tok, err := d.token(ctx, proxy, *keys)
	if err != nil {
		return nil, err
	}
	return exchange.Custom(ctx, d.client, proxy, keys, signer.Bearer{Exchange: Name, Token: tok}, req)
}

// marketID resolves the perpetual's on-chain object id from the contract
// address listing, unless extra carries "market".
func (d *Driver) marketID(ctx context.Context, proxy, native string, extra models.Params) (string, error) {
	if id := extra.String("market"); id != "" {
		return id, nil
	}
	v, err := d.contracts.Get(ctx, "contracts", func(ctx context.Context) (*fastjson.Value, error) {
		return d.get(ctx, proxy, "/marketData/contractAddresses", signer.Params{}, nil)
	})
	if err != nil {
		return "", err
	}
	for _, path := range [][]string{{native, "Perpetual", "id"}, {"auxiliaryContractsAddresses", "objects", native, "id"}, {"objects", native, "id"}} {
		if id := normalize.Str(v, path...); id != "" {
			return id, nil
		}
	}
	return "", &models.ExchangeError{Exchange: Name, Code: "market_not_found", Message: "Bluefin error:no perpetual listed for " + native}
}

// CreateOrder signs and posts a perpetual order. Leverage defaults to
// DefaultLeverage; extra may set leverage, reduceOnly, postOnly and
// clientId.
func (d *Driver) CreateOrder(ctx context.Context, proxy string, keys models.ApiKeys, req models.OrderRequest) (models.Order, error) {
	if err := models.RequireKeys(Name, keys, "apiKey", "secret"); err != nil {
		return models.Order{}, err
	}
	if err := exchange.CheckOrder(Name, req); err != nil {
		return models.Order{}, err
	}
	native, err := d.native(req.Symbol)
	if err != nil {
		return models.Order{}, err
	}
	key, err := signer.ParseSuiKey(Name, keys.Secret)
	if err != nil {
		return models.Order{}, err
	}
	market, err := d.marketID(ctx, proxy, native, req.Extra)
	if err != nil {
		return models.Order{}, err
	}

	leverage := float64(DefaultLeverage)
	if l := req.Extra.String("leverage"); l != "" {
		leverage = normalize.Scale(l, 0)
		if leverage <= 0 {
			return models.Order{}, exchange.Invalid(Name, "leverage must be positive, got %q", l)
		}
	}
	price := 0.0
	if !req.IsMarket() {
		price = req.Price
	}
	order := signer.BluefinOrder{
		Market:        market,
		Maker:         key.Address(),
		Price:         normalize.Unscale(price, decimals),
		Quantity:      normalize.Unscale(req.Amount, decimals),
		Leverage:      normalize.Unscale(leverage, decimals),
		Salt:          d.salt(),
		Expiration:    d.now() + orderExpiry.Milliseconds(),
		IsBuy:         strings.EqualFold(req.Side, "buy"),
		ReduceOnly:    req.Extra.String("reduceOnly") == "true",
		PostOnly:      req.Extra.String("postOnly") == "true",
		OrderbookOnly: true,
		IOC:           req.IsMarket(),
	}
	_, sig, err := key.SignBluefinOrder(order)
	if err != nil {
		return models.Order{}, exchange.Invalid(Name, "%v", err)
	}
	tif := "GTT"
	if order.IOC {
		tif = "IOC"
	}
	body := map[string]interface{}{
		"symbol":         native,
		"userAddress":    order.Maker,
		"orderType":      strings.ToUpper(req.Type),
		"price":          order.Price,
		"quantity":       order.Quantity,
		"leverage":       order.Leverage,
		"side":           strings.ToUpper(req.Side),
		"reduceOnly":     order.ReduceOnly,
		"postOnly":       order.PostOnly,
		"salt":           order.Salt,
		"expiration":     order.Expiration,
		"orderSignature": sig,
		"timeInForce":    tif,
		"cancelOnRevert": false,
	}
	if id := req.Extra.String("clientId"); id != "" {
		body["clientId"] = id
	}
	v, err := d.do(ctx, proxy, http.MethodPost, "/orders", signer.Params{}, body, &keys, transport.NoRetry())
	if err != nil {
		return models.Order{}, err
	}
	o := orders.Order(v, req.Symbol)
	if o.Timestamp == 0 {
		o.Timestamp = d.now()
	}
	return o, nil
}

// CancelOrder cancels by order hash, taken from extra["orderHash"] or,
// when absent, the id itself. symbol is required.
func (d *Driver) CancelOrder(ctx context.Context, proxy string, keys models.ApiKeys, id, symbol string, extra models.Params) (models.CancelResult, error) {
	if err := models.RequireKeys(Name, keys, "apiKey", "secret"); err != nil {
		return models.CancelResult{}, err
	}
	if symbol == "" {
		return models.CancelResult{}, exchange.Invalid(Name, "cancelOrder requires a symbol")
	}
	native, err := d.native(symbol)
	if err != nil {
		return models.CancelResult{}, err
	}
	hash := extra.String("orderHash")
	if hash == "" {
		hash = id
	}
	if hash == "" {
		return models.CancelResult{}, exchange.Invalid(Name, "cancelOrder requires an order hash")
	}
	key, err := signer.ParseSuiKey(Name, keys.Secret)
	if err != nil {
		return models.CancelResult{}, err
	}
	hashes := []string{hash}
	sig, err := key.SignBluefinCancel(hashes)
	if err != nil {
		return models.CancelResult{}, err
	}
	v, err := d.do(ctx, proxy, http.MethodDelete, "/orders/hash", signer.Params{}, map[string]interface{}{
		"symbol":          native,
		"orderHashes":     hashes,
		"cancelSignature": sig,
	}, &keys)
	if err != nil {
		return models.CancelResult{}, err
	}
	info := v.Get("data")
	if info == nil {
		info = v
	}
	return models.CancelResult{ID: id, Symbol: symbol, Info: exchange.RawJSON(info)}, nil
}
