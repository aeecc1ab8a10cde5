package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	bybitapi "github.com/bybit-exchange/bybit.go.api"

	"cointrade/exchange"
	"cointrade/internal/normalize"
	"cointrade/models"
)

// Allowed depths per category; spot tops out at 200.
var bookLimits = map[string]int{"spot": 200, "linear": 500, "inverse": 500, "option": 25}

// statusRecorder remembers the last HTTP status seen by the SDK client,
// which otherwise only reports a decode failure for error responses.
type statusRecorder struct {
	next   http.RoundTripper
	status int
}

func (s *statusRecorder) RoundTrip(r *http.Request) (*http.Response, error) {
	resp, err := s.next.RoundTrip(r)
	if resp != nil {
		s.status = resp.StatusCode
	}
	return resp, err
}

// FetchOrderBook goes through the official SDK, dialing over the same
// proxy-cached transport as every other call.
func (d *Driver) FetchOrderBook(ctx context.Context, proxy, symbol string, limit int) (models.OrderBook, error) {
	category, native, err := d.market(symbol)
	if err != nil {
		return models.OrderBook{}, err
	}
	if limit == 0 {
		limit = 25
		if category == "option" {
			limit = 5
		}
	}
	if max := bookLimits[category]; limit < 1 || limit > max {
		return models.OrderBook{}, exchange.Invalid(Name, "limit must be between 1 and %d for %s", max, category)
	}

	var book models.OrderBook
	err = d.client.Call(ctx, proxy, func(ctx context.Context, t *http.Transport) error {
		rec := &statusRecorder{next: t}
		c := bybitapi.NewBybitHttpClient("", "", bybitapi.WithBaseURL(d.client.BaseURL()))
		c.HTTPClient = &http.Client{Transport: rec, Timeout: Timeout}

		params := map[string]interface{}{"category": category, "symbol": native, "limit": limit}
		resp, err := c.NewUtaBybitServiceWithParams(params).GetOrderBookInfo(ctx)
		if err != nil {
			return classify(rec.status, err)
		}
		if resp.RetCode != 0 {
			return &models.ExchangeError{Exchange: Name, Code: strconv.Itoa(resp.RetCode), Message: resp.RetMsg, Status: rec.status}
		}
		raw, err := json.Marshal(resp.Result)
		if err != nil {
			return err
		}
		v, err := normalize.Parse(raw)
		if err != nil {
			return &models.NetworkRequestError{Exchange: Name, Status: rec.status, Retryable: true, Err: err}
		}
		book = normalize.Book(symbol, normalize.Int(v, "ts"),
			normalize.Levels(normalize.Array(v, "a"), normalize.ArrayLevels),
			normalize.Levels(normalize.Array(v, "b"), normalize.ArrayLevels),
			limit, nil)
		return nil
	})
	return book, err
}

// classify applies the transport's status rules to an SDK failure.
func classify(status int, err error) error {
	switch {
	case status == http.StatusTooManyRequests:
		return &models.NetworkRequestError{Exchange: Name, Status: status, Err: err}
	case status >= 400 && status < 500:
		return &models.ExchangeError{Exchange: Name, Status: status, Message: fmt.Sprintf("order book request rejected: %v", err)}
	}
	return &models.NetworkRequestError{Exchange: Name, Status: status, Retryable: true, Err: err}
}
