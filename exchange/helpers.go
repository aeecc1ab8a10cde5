package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/valyala/fastjson"

	"cointrade/internal/signer"
	"cointrade/internal/transport"
	"cointrade/models"
)

// Invalid reports arguments rejected before any request is made.
func Invalid(exchange, format string, args ...interface{}) error {
	return &models.ExchangeError{Exchange: exchange, Code: "invalid_argument", Message: fmt.Sprintf(format, args...)}
}

// UnsupportedMarket rejects a market type the exchange cannot address.
func UnsupportedMarket(exchange string, m models.Market) error {
	return &models.ExchangeError{
		Exchange: exchange,
		Code:     "unsupported_market",
		Message:  fmt.Sprintf("%s markets are not supported (%s)", m.MarketType, m.Symbol),
	}
}

// CheckLimit returns def for a zero limit and rejects values outside
// allowed. An empty allowed list accepts any positive limit.
func CheckLimit(exchange string, limit, def int, allowed ...int) (int, error) {
	if limit == 0 {
		limit = def
	}
	if limit < 0 {
		return 0, Invalid(exchange, "limit must be positive, got %d", limit)
	}
	if len(allowed) == 0 {
		return limit, nil
	}
	for _, a := range allowed {
		if a == limit {
			return limit, nil
		}
	}
	parts := make([]string, len(allowed))
	for i, a := range allowed {
		parts[i] = strconv.Itoa(a)
	}
	return 0, Invalid(exchange, "limit must be one of %s", strings.Join(parts, ", "))
}

// CheckOrder validates the parts of an order request every exchange
// agrees on.
func CheckOrder(exchange string, req models.OrderRequest) error {
	switch strings.ToLower(req.Side) {
	case "buy", "sell":
	default:
		return Invalid(exchange, "side must be buy or sell, got %q", req.Side)
	}
	switch strings.ToLower(req.Type) {
	case "market":
	case "limit":
		if req.Price <= 0 {
			return Invalid(exchange, "price is required for limit orders")
		}
	default:
		return Invalid(exchange, "type must be market or limit, got %q", req.Type)
	}
	if req.Amount <= 0 {
		return Invalid(exchange, "amount must be positive")
	}
	return nil
}

// Decode parses a response body.
func Decode(exchange string, resp *transport.Response) (*fastjson.Value, error) {
	v, err := resp.JSON()
	if err != nil {
		return nil, &models.NetworkRequestError{Exchange: exchange, Status: resp.Status, Err: fmt.Errorf("malformed response: %w", err)}
	}
	return v, nil
}

// Custom issues a raw request. GET and DELETE send Data as the query,
// other methods as a JSON body; Extra always goes to the query. POST
// requests are never retried.
func Custom(ctx context.Context, c *transport.Client, proxy string, keys *models.ApiKeys, s signer.Signer, req models.CustomRequest) (json.RawMessage, error) {
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}
	r := signer.NewRequest(method, req.Path)
	switch method {
	case http.MethodGet, http.MethodDelete:
		r.Query.AddExtra(req.Data)
	default:
		if len(req.Data) > 0 {
			if err := r.SetJSON(req.Data); err != nil {
				return nil, err
			}
		}
	}
	r.Query.AddExtra(req.Extra)

	var opts []transport.Option
	if keys != nil {
		opts = append(opts, transport.Signed(s, *keys))
	}
	if method == http.MethodPost {
		opts = append(opts, transport.NoRetry())
	}
	resp, err := c.Do(ctx, proxy, r, opts...)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(resp.Body), nil
}

// RawJSON copies the JSON text of v.
func RawJSON(v *fastjson.Value) json.RawMessage {
	if v == nil {
		return nil
	}
	return json.RawMessage(v.MarshalTo(nil))
}
