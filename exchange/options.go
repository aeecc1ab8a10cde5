package exchange

import (
	"time"

	"cointrade/internal/proxy"
	"cointrade/internal/signer"
	"cointrade/internal/transport"
)

// Options carries the per-exchange settings a driver is built with. Zero
// values select the exchange defaults.
type Options struct {
	// BaseURL replaces every host the driver talks to unless AltURLs
	// names that host explicitly.
	BaseURL string
	// AltURLs overrides individual hosts by name (for example "linear"
	// or "papi" for Binance).
	AltURLs map[string]string

	Timeout    time.Duration
	Retries    int
	Backoff    time.Duration
	RateLimit  float64
	Burst      int
	RecvWindow int

	// SessionTTL bounds cached logins for exchanges that need one.
	SessionTTL time.Duration

	Proxies *proxy.Cache
	Now     func() time.Time
}

// URL resolves the host named name, falling back to def.
func (o Options) URL(name, def string) string {
	if u, ok := o.AltURLs[name]; ok && u != "" {
		return u
	}
	if o.BaseURL != "" {
		return o.BaseURL
	}
	return def
}

// Clock is the time source handed to signers.
func (o Options) Clock() signer.Clock {
	if o.Now == nil {
		return nil
	}
	return signer.Clock(o.Now)
}

// NowMillis is the current time in milliseconds.
func (o Options) NowMillis() int64 {
	if o.Now != nil {
		return o.Now().UnixMilli()
	}
	return time.Now().UnixMilli()
}

// TTL returns SessionTTL or def.
func (o Options) TTL(def time.Duration) time.Duration {
	if o.SessionTTL > 0 {
		return o.SessionTTL
	}
	return def
}

// Client builds the exchange's transport. defaultURL is the primary host
// and timeout the exchange's fixed timeout; both yield to Options.
func (o Options) Client(exchange, defaultURL string, timeout time.Duration, env transport.Envelope, headers map[string]string) *transport.Client {
	if o.Timeout > 0 {
		timeout = o.Timeout
	}
	return transport.New(transport.Config{
		Exchange:  exchange,
		BaseURL:   o.URL("", defaultURL),
		Timeout:   timeout,
		Retries:   o.Retries,
		Backoff:   o.Backoff,
		RateLimit: o.RateLimit,
		Burst:     o.Burst,
		Headers:   headers,
		Envelope:  env,
	}, o.Proxies)
}
