// Package grvt drives the GRVT perpetuals exchange. Private calls ride a
// cookie session obtained from an API key login; orders carry an EIP-712
// signature made with the account's EVM key.
package grvt

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
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
	Name          = "grvt"
	TradesURL     = "https://trades.grvt.io"
	MarketDataURL = "https://market-data.grvt.io"
	EdgeURL       = "https://edge.grvt.io"
	Timeout       = 5 * time.Second
	SessionTTL    = 23 * time.Hour

	orderLifetime = 29 * 24 * time.Hour
	priceDecimals = 9
)

var Statuses = normalize.StatusTable{
	"PENDING":   models.StatusOpen,
	"OPEN":      models.StatusOpen,
	"FILLED":    models.StatusClosed,
	"CANCELLED": models.StatusCanceled,
	"REJECTED":  models.StatusRejected,
}

var orders = normalize.OrderMapping{
	ID:            normalize.At("order_id"),
	ClientOrderID: normalize.At("metadata", "client_order_id"),
	Symbol:        normalize.At("legs", "0", "instrument"),
	Price:         normalize.NumAt("legs", "0", "limit_price"),
	Average:       normalize.NumAt("state", "avg_fill_price", "0"),
	Amount:        normalize.NumAt("legs", "0", "size"),
	Filled:        normalize.NumAt("state", "traded_size", "0"),
	Side: normalize.Func(func(v *fastjson.Value) string {
		if v.GetBool("legs", "0", "is_buying_asset") {
			return "buy"
		}
		return "sell"
	}),
	Type: normalize.Func(func(v *fastjson.Value) string {
		if v.GetBool("is_market") {
			return "market"
		}
		return "limit"
	}),
	Status:    normalize.At("state", "status"),
	Timestamp: normalize.MillisAt("metadata", "create_time"),
	Statuses:  Statuses,
	SymbolFrom: func(native string) string {
		return symbols.FromNative(Name, native)
	},
}

func envelope(status int, v *fastjson.Value) *models.ExchangeError {
	if v.Type() != fastjson.TypeObject || v.Get("code") == nil {
		return nil
	}
	return &models.ExchangeError{Code: normalize.Str(v, "code"), Message: "Grvt error:" + normalize.Str(v, "message")}
}

// auth is the cached login: the session cookie and the account id header.
type auth struct {
	Cookie    string
	AccountID string
}

func (a auth) headers() signer.Headers {
	return signer.Headers{"Cookie": a.Cookie, "X-Grvt-Account-Id": a.AccountID}
}

type Driver struct {
	exchange.Base
	client   *transport.Client
	market   string
	edge     string
	sessions *session.Cache[auth]
	now      func() time.Time
	nonce    func() uint32
}

func New(opts exchange.Options) *Driver {
	sessions := session.New[auth](opts.TTL(SessionTTL))
	if opts.Now != nil {
		sessions.SetClock(opts.Now)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Driver{
		Base:     exchange.Base{Exchange: Name},
		client:   opts.Client(Name, TradesURL, Timeout, envelope, map[string]string{"Content-Type": "application/json"}),
		market:   opts.URL("market", MarketDataURL),
		edge:     opts.URL("edge", EdgeURL),
		sessions: sessions,
		now:      now,
		nonce:    rand.Uint32,
	}
}

func (d *Driver) instrument(symbol string) (Instrument, error) {
	m, err := symbols.Parse(symbol)
	if err != nil {
		return Instrument{}, err
	}
	if m.MarketType != models.MarketLinear {
		return Instrument{}, exchange.UnsupportedMarket(Name, m)
	}
	native := symbols.Native(Name, m)
	in, ok := Lookup(native)
	if !ok {
		return Instrument{Name: native, Base: m.Base()}, nil
	}
	return in, nil
}

// login exchanges the API key for a session cookie.
func (d *Driver) login(ctx context.Context, proxy string, keys models.ApiKeys) (auth, error) {
	return d.sessions.Get(ctx, keys.Fingerprint(), func(ctx context.Context) (auth, error) {
		req := signer.NewRequest(http.MethodPost, d.edge+"/auth/api_key/login")
		req.SetHeader("Cookie", "rm=true;")
		if err := req.SetJSON(map[string]string{"api_key": keys.APIKey}); err != nil {
			return auth{}, err
		}
		resp, err := d.client.Do(ctx, proxy, req)
		if err != nil {
			return auth{}, err
		}
		a := auth{AccountID: resp.Header.Get("X-Grvt-Account-Id")}
		if cookies := resp.Header.Values("Set-Cookie"); len(cookies) > 0 {
			a.Cookie = strings.TrimSpace(strings.SplitN(cookies[0], ";", 2)[0])
		}
		if a.Cookie == "" {
			return auth{}, &models.ExchangeError{Exchange: Name, Status: resp.Status, Message: "Grvt error:login returned no session cookie"}
		}
		return a, nil
	})
}

func (d *Driver) post(ctx context.Context, proxy, url string, body interface{}, keys *models.ApiKeys, opts ...transport.Option) (*fastjson.Value, error) {
	req := signer.NewRequest(http.MethodPost, url)
	if err := req.SetJSON(body); err != nil {
		return nil, err
	}
	if keys != nil {
		if err := models.RequireKeys(Name, *keys, "apiKey"); err != nil {
			return nil, err
		}
		a, err := d.login(ctx, proxy, *keys)
		if err != nil {
			return nil, err
		}
		opts = append(opts, transport.Signed(a.headers(), *keys))
	}
	resp, err := d.client.Do(ctx, proxy, req, opts...)
	if err != nil {
		var ex *models.ExchangeError
		if keys != nil && errors.As(err, &ex) && ex.Status == http.StatusUnauthorized {
			d.sessions.Invalidate(keys.Fingerprint())
		}
		return nil, err
	}
	v, err := exchange.Decode(Name, resp)
	if err != nil {
		return nil, err
	}
	return v.Get("result"), nil
}

func subAccount(keys models.ApiKeys, extra models.Params) (string, error) {
	if id := extra.String("sub_account_id"); id != "" {
		return id, nil
	}
	if keys.UID != "" {
		return keys.UID, nil
	}
	return "", &models.CredentialError{Exchange: Name, Missing: []string{"uid (sub account id)"}}
}

func (d *Driver) FetchTicker(ctx context.Context, proxy, symbol string) (models.Ticker, error) {
	in, err := d.instrument(symbol)
	if err != nil {
		return models.Ticker{}, err
	}
	v, err := d.post(ctx, proxy, d.market+"/full/v1/mini", map[string]string{"instrument": in.Name}, nil)
	if err != nil {
		return models.Ticker{}, err
	}
	return models.Ticker{
		Symbol: symbol,
		Last:   normalize.Num(v, "last_price"),
		Bid:    normalize.Num(v, "best_bid_price"),
		Ask:    normalize.Num(v, "best_ask_price"),
		Volume: normalize.Num(v, "last_size"),
	}, nil
}

func (d *Driver) FetchOrderBook(ctx context.Context, proxy, symbol string, limit int) (models.OrderBook, error) {
	in, err := d.instrument(symbol)
	if err != nil {
		return models.OrderBook{}, err
	}
	limit, err = exchange.CheckLimit(Name, limit, 10, 10, 50, 100, 500)
	if err != nil {
		return models.OrderBook{}, err
	}
	v, err := d.post(ctx, proxy, d.market+"/full/v1/book", map[string]interface{}{"instrument": in.Name, "depth": limit}, nil)
	if err != nil {
		return models.OrderBook{}, err
	}
	spec := normalize.LevelSpec{Price: "price", Size: "size"}
	return normalize.Book(symbol, normalize.Millis(normalize.Int(v, "event_time")),
		normalize.Levels(normalize.Array(v, "asks"), spec),
		normalize.Levels(normalize.Array(v, "bids"), spec),
		limit, nil), nil
}

// FetchBalance reads the sub account named by keys.UID. Available
// balance applies to the settlement currency.
func (d *Driver) FetchBalance(ctx context.Context, proxy string, keys models.ApiKeys, coin string) (models.Balance, error) {
	sub, err := subAccount(keys, nil)
	if err != nil {
		return models.Balance{}, err
	}
	v, err := d.post(ctx, proxy, d.client.BaseURL()+"/full/v1/account_summary", map[string]string{"sub_account_id": sub}, &keys)
	if err != nil {
		return models.Balance{}, err
	}
	bal := models.Balance{Info: exchange.RawJSON(v), Timestamp: normalize.Millis(normalize.Int(v, "event_time")), Assets: map[string]models.BalanceEntry{}}
	settle := strings.ToUpper(normalize.Str(v, "settle_currency"))
	for _, b := range normalize.Array(v, "spot_balances") {
		cur := strings.ToUpper(normalize.Str(b, "currency"))
		total := normalize.Num(b, "balance")
		e := models.BalanceEntry{Free: total, Total: total}
		if cur == settle {
			e.Free = normalize.Num(v, "available_balance")
			e.Used = normalize.Sub(total, e.Free)
		}
		bal.Assets[cur] = e
	}
	if coin != "" {
		c := strings.ToUpper(coin)
		for k := range bal.Assets {
			if k != c {
				delete(bal.Assets, k)
			}
		}
	}
	if bal.Timestamp == 0 {
		bal.Timestamp = d.now().UnixMilli()
	}
	return bal, nil
}

// scaled floors f * 10^decimals to an integer string.
func scaled(f float64, decimals int32) string {
	return decimal.NewFromFloat(f).Shift(decimals).Floor().String()
}

func (d *Driver) CreateOrder(ctx context.Context, proxy string, keys models.ApiKeys, req models.OrderRequest) (models.Order, error) {
	if err := exchange.CheckOrder(Name, req); err != nil {
		return models.Order{}, err
	}
	if err := models.RequireKeys(Name, keys, "apiKey", "secret"); err != nil {
		return models.Order{}, err
	}
	in, err := d.instrument(req.Symbol)
	if err != nil {
		return models.Order{}, err
	}
	if in.Hash == "" {
		return models.Order{}, exchange.Invalid(Name, "instrument %s is not in the signing table", in.Name)
	}
	sub, err := subAccount(keys, req.Extra)
	if err != nil {
		return models.Order{}, err
	}
	key, err := signer.ParseEVMKey(Name, keys.Secret)
	if err != nil {
		return models.Order{}, err
	}

	buying := strings.EqualFold(req.Side, "buy")
	price := req.Price
	if req.IsMarket() {
		price = 0
	}
	tif := "GOOD_TILL_TIME"
	if s := req.Extra.String("time_in_force"); s != "" {
		tif = s
	}
	if _, ok := signer.GRVTTimeInForce[tif]; !ok {
		return models.Order{}, exchange.Invalid(Name, "unknown time_in_force %q", tif)
	}
	now := d.now()
	sig, err := signer.SignGRVTOrder(key, signer.GRVTOrder{
		SubAccountID: sub,
		IsMarket:     req.IsMarket(),
		TimeInForce:  tif,
		Legs: []signer.GRVTLeg{{
			AssetID:      in.Hash,
			ContractSize: scaled(req.Amount, in.BaseDecimals),
			LimitPrice:   scaled(price, priceDecimals),
			IsBuying:     buying,
		}},
		Nonce:      d.nonce(),
		Expiration: now.Add(orderLifetime).UnixNano(),
	})
	if err != nil {
		return models.Order{}, err
	}
	body := map[string]interface{}{
		"order": map[string]interface{}{
			"sub_account_id": sub,
			"is_market":      req.IsMarket(),
			"time_in_force":  tif,
			"post_only":      false,
			"reduce_only":    false,
			"legs": []map[string]interface{}{{
				"instrument":      in.Name,
				"size":            models.FormatValue(req.Amount),
				"limit_price":     models.FormatValue(price),
				"is_buying_asset": buying,
			}},
			"signature": sig,
			"metadata":  map[string]string{"client_order_id": strconv.FormatInt(now.UnixMilli(), 10)},
		},
	}
	v, err := d.post(ctx, proxy, d.client.BaseURL()+"/full/v1/create_order", body, &keys, transport.NoRetry())
	if err != nil {
		return models.Order{}, err
	}
	return orders.Order(v, req.Symbol), nil
}

func (d *Driver) CancelOrder(ctx context.Context, proxy string, keys models.ApiKeys, id, symbol string, extra models.Params) (models.CancelResult, error) {
	sub, err := subAccount(keys, extra)
	if err != nil {
		return models.CancelResult{}, err
	}
	v, err := d.post(ctx, proxy, d.client.BaseURL()+"/full/v1/cancel_order", map[string]string{"sub_account_id": sub, "order_id": id}, &keys)
	if err != nil {
		return models.CancelResult{}, err
	}
	return models.CancelResult{ID: id, Symbol: symbol, Info: exchange.RawJSON(v)}, nil
}

func (d *Driver) FetchOpenOrders(ctx context.Context, proxy string, keys models.ApiKeys, q models.OrderQuery) ([]models.Order, error) {
	sub, err := subAccount(keys, q.Extra)
	if err != nil {
		return nil, err
	}
	body := map[string]interface{}{"sub_account_id": sub, "kind": []string{"PERPETUAL"}}
	if q.Symbol != "" {
		in, err := d.instrument(q.Symbol)
		if err != nil {
			return nil, err
		}
		body["base"] = []string{in.Base}
		body["quote"] = []string{"USDT"}
	}
	v, err := d.post(ctx, proxy, d.client.BaseURL()+"/full/v1/open_orders", body, &keys)
	if err != nil {
		return nil, err
	}
	return orders.Orders(v.GetArray(), q.Symbol), nil
}

// CustomRequest attaches the session cookie when keys are given.
func (d *Driver) CustomRequest(ctx context.Context, proxy string, keys *models.ApiKeys, req models.CustomRequest) (json.RawMessage, error) {
	if keys == nil {
		return exchange.Custom(ctx, d.client, proxy, nil, nil, req)
	}
	a, err := d.login(ctx, proxy, *keys)
	if err != nil {
		return nil, err
	}
	return exchange.Custom(ctx, d.client, proxy, keys, a.headers(), req)
}
