// Package polymarket drives the Polymarket CLOB. Symbols are outcome
// token ids. Requests are signed with the CLOB API credentials (L2);
// orders and API key management additionally need the wallet key (L1).
package polymarket

import (
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/valyala/fastjson"

	"cointrade/exchange"
	"cointrade/internal/normalize"
	"cointrade/internal/signer"
	"cointrade/internal/transport"
	"cointrade/models"
)

const (
	Name     = "polymarket"
	BaseURL  = "https://clob.polymarket.com"
	Timeout  = 5 * time.Second
	maxLevel = 10

	zeroAddress     = "0x0000000000000000000000000000000000000000"
	defaultTickSize = "0.001"
)

var Statuses = normalize.StatusTable{
	"LIVE":      models.StatusOpen,
	"DELAYED":   models.StatusOpen,
	"UNMATCHED": models.StatusOpen,
	"MATCHED":   models.StatusClosed,
	"CANCELED":  models.StatusCanceled,
}

var orders = normalize.OrderMapping{
	ID:        normalize.At("id"),
	Symbol:    normalize.At("asset_id"),
	Price:     normalize.NumAt("price"),
	Amount:    normalize.NumAt("original_size"),
	Filled:    normalize.NumAt("size_matched"),
	Side:      normalize.LowerAt("side"),
	Type:      normalize.Func(func(*fastjson.Value) string { return "limit" }),
	Status:    normalize.UpperAt("status"),
	Timestamp: normalize.MillisAt("created_at"),
	Statuses:  Statuses,
}

type Driver struct {
	exchange.Base
	now    func() int64
	client *transport.Client
	signer signer.Polymarket
	clock  signer.Clock
	salt   func() int64
}

func New(opts exchange.Options) *Driver {
	return &Driver{
		Base:   exchange.Base{Exchange: Name},
		now:    opts.NowMillis,
		client: opts.Client(Name, BaseURL, Timeout, transport.FieldEnvelope("polymarket error:", "error"), map[string]string{"Content-Type": "application/json"}),
		signer: signer.Polymarket{Now: opts.Clock()},
		clock:  opts.Clock(),
		salt:   func() int64 { return rand.Int63n(opts.NowMillis()) },
	}
}

func token(symbol string) (string, error) {
	s := strings.TrimSpace(symbol)
	if s == "" || strings.ContainsAny(s, "/: ") {
		return "", &models.InvalidSymbolError{Input: symbol}
	}
	return s, nil
}

func (d *Driver) do(ctx context.Context, proxy string, req *signer.Request, keys *models.ApiKeys, opts ...transport.Option) (*fastjson.Value, error) {
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
	id, err := token(symbol)
	if err != nil {
		return models.Ticker{}, err
	}
	req := signer.NewRequest(http.MethodGet, "/price")
	req.Query.Add("token_id", id).Add("side", "buy")
	v, err := d.do(ctx, proxy, req, nil)
	if err != nil {
		return models.Ticker{}, err
	}
	return models.Ticker{Symbol: symbol, Last: normalize.Num(v, "price")}, nil
}

// FetchOrderBook returns at most 10 levels per side, best first.
func (d *Driver) FetchOrderBook(ctx context.Context, proxy, symbol string, limit int) (models.OrderBook, error) {
	id, err := token(symbol)
	if err != nil {
		return models.OrderBook{}, err
	}
	limit, err = exchange.CheckLimit(Name, limit, maxLevel)
	if err != nil {
		return models.OrderBook{}, err
	}
	if limit > maxLevel {
		limit = maxLevel
	}
	req := signer.NewRequest(http.MethodGet, "/book")
	req.Query.Add("token_id", id)
	v, err := d.do(ctx, proxy, req, nil)
	if err != nil {
		return models.OrderBook{}, err
	}
	spec := normalize.LevelSpec{Price: "price", Size: "size"}
	asks := normalize.Reverse(normalize.Levels(normalize.Array(v, "asks"), spec))
	bids := normalize.Reverse(normalize.Levels(normalize.Array(v, "bids"), spec))
	info := map[string]string{"market": normalize.Str(v, "market"), "asset_id": normalize.Str(v, "asset_id")}
	return normalize.Book(symbol, normalize.Millis(normalize.Int(v, "timestamp")), asks, bids, limit, info), nil
}

// FetchBalance returns an empty balance; collateral lives on chain.
func (d *Driver) FetchBalance(ctx context.Context, proxy string, keys models.ApiKeys, coin string) (models.Balance, error) {
	if err := models.RequireKeys(Name, keys, "apiKey", "secret", "password"); err != nil {
		return models.Balance{}, err
	}
	return models.Balance{Timestamp: d.now(), Assets: map[string]models.BalanceEntry{}}, nil
}

// wallet parses extra["privateKey"] and fills keys.UID with its address
// when unset.
func wallet(keys *models.ApiKeys, extra models.Params) (signer.EVMKey, error) {
	pk := extra.String("privateKey")
	if pk == "" {
		return signer.EVMKey{}, &models.CredentialError{Exchange: Name, Missing: []string{"privateKey"}}
	}
	key, err := signer.ParseEVMKey(Name, pk)
	if err != nil {
		return signer.EVMKey{}, err
	}
	if keys != nil && keys.UID == "" {
		keys.UID = key.Address
	}
	return key, nil
}

func (d *Driver) CreateOrder(ctx context.Context, proxy string, keys models.ApiKeys, req models.OrderRequest) (models.Order, error) {
	if err := exchange.CheckOrder(Name, req); err != nil {
		return models.Order{}, err
	}
	id, err := token(req.Symbol)
	if err != nil {
		return models.Order{}, err
	}
	if err := models.RequireKeys(Name, keys, "apiKey", "secret", "password"); err != nil {
		return models.Order{}, err
	}
	key, err := wallet(&keys, req.Extra)
	if err != nil {
		return models.Order{}, err
	}
	tick := req.Extra.String("tickSize")
	if tick == "" {
		tick = defaultTickSize
	}
	r, ok := roundings[tick]
	if !ok {
		return models.Order{}, exchange.Invalid(Name, "unsupported tick size %s", tick)
	}
	price := req.Price
	if req.IsMarket() || price == 0 {
		price = 1
	}
	side := strings.ToUpper(req.Side)
	maker, taker := rawAmounts(side, req.Amount, price, r)
	order := signer.PolymarketOrder{
		Salt:        d.salt(),
		Maker:       key.Address,
		Signer:      key.Address,
		Taker:       zeroAddress,
		TokenID:     id,
		MakerAmount: maker,
		TakerAmount: taker,
		Expiration:  "0",
		Nonce:       "0",
		FeeRateBps:  "0",
		Side:        side,
	}
	if err := signer.SignPolymarketOrder(key, &order); err != nil {
		return models.Order{}, err
	}
	orderType := "GTC"
	if s := req.Extra.String("orderType"); s != "" {
		orderType = strings.ToUpper(s)
	}
	sreq := signer.NewRequest(http.MethodPost, "/order")
	if err := sreq.SetJSON(map[string]interface{}{"order": order, "owner": keys.APIKey, "orderType": orderType}); err != nil {
		return models.Order{}, err
	}
	v, err := d.do(ctx, proxy, sreq, &keys, transport.NoRetry())
	if err != nil {
		return models.Order{}, err
	}
	if v.Get("success") != nil && !v.GetBool("success") {
		return models.Order{}, &models.ExchangeError{Exchange: Name, Message: "polymarket error:" + normalize.Str(v, "errorMsg")}
	}
	status := models.StatusOpen
	if strings.EqualFold(normalize.Str(v, "status"), "matched") {
		status = models.StatusClosed
	}
	return models.Order{
		ID:        normalize.Str(v, "orderID"),
		Symbol:    req.Symbol,
		Price:     price,
		Amount:    req.Amount,
		Remaining: req.Amount,
		Side:      strings.ToLower(side),
		Type:      strings.ToLower(req.Type),
		Status:    status,
		Timestamp: d.now(),
		Info:      exchange.RawJSON(v),
	}, nil
}

func (d *Driver) CancelOrder(ctx context.Context, proxy string, keys models.ApiKeys, id, symbol string, extra models.Params) (models.CancelResult, error) {
	if _, err := wallet(&keys, extra); err != nil && keys.UID == "" {
		return models.CancelResult{}, err
	}
	req := signer.NewRequest(http.MethodDelete, "/order")
	if err := req.SetJSON(map[string]string{"orderID": id}); err != nil {
		return models.CancelResult{}, err
	}
	v, err := d.do(ctx, proxy, req, &keys)
	if err != nil {
		return models.CancelResult{}, err
	}
	if reason := normalize.Str(v, "not_canceled", id); reason != "" {
		return models.CancelResult{}, &models.ExchangeError{Exchange: Name, Message: "polymarket error:" + reason}
	}
	return models.CancelResult{ID: id, Symbol: symbol, Info: exchange.RawJSON(v)}, nil
}

func (d *Driver) FetchOpenOrders(ctx context.Context, proxy string, keys models.ApiKeys, q models.OrderQuery) ([]models.Order, error) {
	if _, err := wallet(&keys, q.Extra); err != nil && keys.UID == "" {
		return nil, err
	}
	req := signer.NewRequest(http.MethodGet, "/data/orders")
	if q.Symbol != "" {
		id, err := token(q.Symbol)
		if err != nil {
			return nil, err
		}
		req.Query.Add("asset_id", id)
	}
	req.Query.AddExtra(q.Extra.Without("privateKey"))
	v, err := d.do(ctx, proxy, req, &keys)
	if err != nil {
		return nil, err
	}
	rows := v.GetArray()
	if v.Type() == fastjson.TypeObject {
		rows = normalize.Array(v, "data")
	}
	return orders.Orders(rows, q.Symbol), nil
}

// CreateAPIKey registers a new CLOB API key for the wallet.
func (d *Driver) CreateAPIKey(ctx context.Context, proxy, privateKey string, nonce int64) (json.RawMessage, error) {
	return d.keyRequest(ctx, proxy, http.MethodPost, "/auth/api-key", privateKey, nonce)
}

// DeriveAPIKey recovers the CLOB API key bound to the wallet and nonce.
func (d *Driver) DeriveAPIKey(ctx context.Context, proxy, privateKey string, nonce int64) (json.RawMessage, error) {
	return d.keyRequest(ctx, proxy, http.MethodGet, "/auth/derive-api-key", privateKey, nonce)
}

func (d *Driver) keyRequest(ctx context.Context, proxy, method, path, privateKey string, nonce int64) (json.RawMessage, error) {
	key, err := signer.ParseEVMKey(Name, privateKey)
	if err != nil {
		return nil, err
	}
	headers, err := signer.PolymarketL1Headers(key, d.clock, nonce)
	if err != nil {
		return nil, err
	}
	req := signer.NewRequest(method, path)
	for k, v := range headers {
		req.SetHeader(k, v)
	}
	var opts []transport.Option
	if method == http.MethodPost {
		opts = append(opts, transport.NoRetry())
	}
	resp, err := d.client.Do(ctx, proxy, req, opts...)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(resp.Body), nil
}

// CustomRequest signs with the API credentials; extra["privateKey"]
// supplies the wallet address when keys.UID is empty.
func (d *Driver) CustomRequest(ctx context.Context, proxy string, keys *models.ApiKeys, req models.CustomRequest) (json.RawMessage, error) {
	if keys != nil {
		k := *keys
		if _, err := wallet(&k, req.Extra); err != nil && k.UID == "" {
			return nil, err
		}
		keys = &k
	}
	req.Extra = req.Extra.Without("privateKey")
	return exchange.Custom(ctx, d.client, proxy, keys, d.signer, req)
}
