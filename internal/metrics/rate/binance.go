package rate

import (
	"context"
	"net/http"

	futures "github.com/adshao/go-binance/v2/futures"
)

// FetchRequestWeightLimit queries Binance exchangeInfo endpoint to retrieve the
// REQUEST_WEIGHT per minute limit. It returns 0 if the limit cannot be
// determined.
func FetchRequestWeightLimit(ctx context.Context, client *futures.Client) (int64, error) {
	info, err := client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return 0, err
	}
	for _, rl := range info.RateLimits {
		if rl.RateLimitType == "REQUEST_WEIGHT" && rl.Interval == "MINUTE" {
			return rl.Limit, nil
		}
	}
	return 0, nil
}

// NewBinanceFuturesClient returns an unauthenticated futures client that
// talks to baseURL over transport.
func NewBinanceFuturesClient(baseURL string, transport http.RoundTripper) *futures.Client {
	c := futures.NewClient("", "")
	if baseURL != "" {
		c.BaseURL = baseURL
	}
	c.HTTPClient = &http.Client{Transport: transport}
	return c
}

func binanceUsage(h http.Header) (Usage, bool) {
	used, ok := headerInt(h, "X-MBX-USED-WEIGHT-1m", "X-MBX-USED-WEIGHT-1M", "X-MBX-USED-WEIGHT")
	if !ok {
		return Usage{}, false
	}
	return Usage{Used: used}, true
}
