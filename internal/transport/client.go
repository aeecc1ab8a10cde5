// Package transport is the per-exchange HTTP client. It routes every
// request through the proxy cache, applies the exchange's error
// envelope, and retries transient failures with linear backoff.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/valyala/fastjson"
	"golang.org/x/time/rate"

	ratemetrics "cointrade/internal/metrics/rate"
	"cointrade/internal/proxy"
	"cointrade/internal/signer"
	"cointrade/logger"
	"cointrade/models"
)

const (
	DefaultRetries = 3
	DefaultBackoff = time.Second
	DefaultTimeout = 5 * time.Second
)

// Config is the fixed per-exchange client configuration.
type Config struct {
	Exchange string
	BaseURL  string
	Timeout  time.Duration
	// Retries is the number of extra attempts for transient failures.
	// Zero selects DefaultRetries; negative disables retries.
	Retries int
	Backoff time.Duration
	// RateLimit is requests per second; zero means unlimited.
	RateLimit float64
	Burst     int
	Headers   map[string]string
	Envelope  Envelope
}

// Response is a successful exchange response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// JSON parses the body.
func (r *Response) JSON() (*fastjson.Value, error) {
	return fastjson.ParseBytes(r.Body)
}

// Option adjusts a single Do call.
type Option func(*callOptions)

type callOptions struct {
	retries int
	signer  signer.Signer
	keys    models.ApiKeys
}

// NoRetry disables retries. Non-idempotent writes use it so a timed out
// order is never placed twice.
func NoRetry() Option { return func(o *callOptions) { o.retries = 0 } }

// Signed authenticates the request with s before every attempt.
func Signed(s signer.Signer, keys models.ApiKeys) Option {
	return func(o *callOptions) {
		o.signer = s
		o.keys = keys
	}
}

type restyEntry struct {
	transport *http.Transport
	client    *resty.Client
}

// Client issues requests for one exchange.
type Client struct {
	cfg     Config
	proxies *proxy.Cache
	limiter *rate.Limiter
	log     *logger.Log

	// Sleep waits between attempts; tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error

	mu      sync.Mutex
	clients map[string]restyEntry
}

// New builds a client. proxies may be shared between exchanges.
func New(cfg Config, proxies *proxy.Cache) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	switch {
	case cfg.Retries == 0:
		cfg.Retries = DefaultRetries
	case cfg.Retries < 0:
		cfg.Retries = 0
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultBackoff
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	if proxies == nil {
		proxies = proxy.NewCache(proxy.DefaultTTL, proxy.PoolConfig{})
	}
	return &Client{
		cfg:     cfg,
		proxies: proxies,
		limiter: rate.NewLimiter(limit, burst),
		log:     logger.GetLogger(),
		Sleep:   sleepContext,
		clients: map[string]restyEntry{},
	}
}

// Exchange returns the exchange name the client serves.
func (c *Client) Exchange() string { return c.cfg.Exchange }

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string { return c.cfg.BaseURL }

// HTTPTransport returns the proxy-aware transport for proxyURI, for SDK
// clients that need their own http.Client.
func (c *Client) HTTPTransport(proxyURI string) (*http.Transport, error) {
	t, err := c.proxies.Transport(proxyURI)
	if err != nil {
		return nil, &models.NetworkRequestError{Exchange: c.cfg.Exchange, Err: err}
	}
	return t, nil
}

// Do executes req. Credentials are checked before any I/O; each attempt
// signs its own copy of req.
func (c *Client) Do(ctx context.Context, proxyURI string, req *signer.Request, opts ...Option) (*Response, error) {
	o := callOptions{retries: c.cfg.Retries}
	for _, opt := range opts {
		opt(&o)
	}
	if o.signer != nil {
		if err := o.signer.Sign(req.Clone(), o.keys); err != nil {
			return nil, err
		}
	}

	var lastErr error
	for attempt := 0; attempt <= o.retries; attempt++ {
		if attempt > 0 {
			if err := c.Sleep(ctx, c.cfg.Backoff*time.Duration(attempt)); err != nil {
				return nil, &models.NetworkRequestError{Exchange: c.cfg.Exchange, Err: err}
			}
		}
		resp, err := c.attempt(ctx, proxyURI, req, o, attempt)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !models.IsRetryable(err) || ctx.Err() != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

// Call wraps an SDK invocation in the same retry policy as Do. fn
// receives the proxy-aware transport for the attempt.
func (c *Client) Call(ctx context.Context, proxyURI string, fn func(ctx context.Context, t *http.Transport) error) error {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.Retries; attempt++ {
		if attempt > 0 {
			if err := c.Sleep(ctx, c.cfg.Backoff*time.Duration(attempt)); err != nil {
				return &models.NetworkRequestError{Exchange: c.cfg.Exchange, Err: err}
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return &models.NetworkRequestError{Exchange: c.cfg.Exchange, Err: err}
		}
		t, err := c.HTTPTransport(proxyURI)
		if err != nil {
			return err
		}
		err = fn(ctx, t)
		logger.RecordRequest(c.cfg.Exchange, attempt, err != nil, false)
		if err == nil {
			return nil
		}
		lastErr = err
		if !models.IsRetryable(err) || ctx.Err() != nil {
			return err
		}
	}
	return lastErr
}

func (c *Client) attempt(ctx context.Context, proxyURI string, orig *signer.Request, o callOptions, attempt int) (*Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &models.NetworkRequestError{Exchange: c.cfg.Exchange, Err: err}
	}
	req := orig.Clone()
	if o.signer != nil {
		if err := o.signer.Sign(req, o.keys); err != nil {
			return nil, err
		}
	}
	rc, err := c.resty(proxyURI)
	if err != nil {
		return nil, err
	}

	r := rc.R().SetContext(ctx)
	for k, v := range c.cfg.Headers {
		if req.Header.Get(k) == "" {
			r.SetHeader(k, v)
		}
	}
	r.SetHeaderMultiValues(req.Header)
	if len(req.Body) > 0 {
		r.SetBody(req.Body)
	}

	start := time.Now()
	resp, err := r.Execute(req.Method, req.URL())
	status := 0
	if resp != nil {
		status = resp.StatusCode()
	}
	err = c.classify(err, status)
	c.observe(req, proxyURI, resp, status, attempt, time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return &Response{Status: status, Header: resp.Header(), Body: resp.Body()}, nil
}

// classify turns a raw resty error into the error taxonomy. Errors
// produced by the envelope middleware are already typed.
func (c *Client) classify(err error, status int) error {
	if err == nil {
		return nil
	}
	var ex *models.ExchangeError
	var ne *models.NetworkRequestError
	if errors.As(err, &ex) || errors.As(err, &ne) {
		return err
	}
	retryable := !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	var ue *url.Error
	if errors.As(err, &ue) && ue.Timeout() {
		retryable = true
	}
	return &models.NetworkRequestError{Exchange: c.cfg.Exchange, Status: status, Retryable: retryable, Err: err}
}

func (c *Client) observe(req *signer.Request, proxyURI string, resp *resty.Response, status, attempt int, d time.Duration, err error) {
	label := proxyLabel(proxyURI)
	path := req.RequestPath()
	fields := logger.Fields{
		"exchange": c.cfg.Exchange,
		"method":   req.Method,
		"path":     path,
		"status":   status,
		"attempt":  attempt,
	}
	if label != "" {
		fields["proxy"] = label
	}
	entry := c.log.WithExchange(c.cfg.Exchange)
	if err != nil {
		entry = entry.WithError(err)
	}
	logger.LogPerformanceEntry(entry, c.cfg.Exchange+"_transport", "http_request", d, fields)
	logger.RecordRequest(c.cfg.Exchange, attempt, err != nil, status == http.StatusTooManyRequests)

	if resp != nil {
		if c.log.DebugEnabled() && resp.Request != nil {
			entry.WithFields(logger.Fields{"headers": logger.SafeHeaders(resp.Request.Header)}).Debug("request headers")
		}
		ratemetrics.ReportUsedWeight(c.log, c.cfg.Exchange, resp.Header(), label)
	}
	ratemetrics.ReportStatus(c.log, c.cfg.Exchange, path, label, status)
	var ex *models.ExchangeError
	if errors.As(err, &ex) {
		ratemetrics.ReportLimitFromMessage(c.log, c.cfg.Exchange, path, label, ex.Message)
	}
}

func (c *Client) resty(proxyURI string) (*resty.Client, error) {
	t, err := c.HTTPTransport(proxyURI)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.clients[proxyURI]; ok && e.transport == t {
		return e.client, nil
	}
	rc := resty.NewWithClient(&http.Client{Transport: t, Timeout: c.cfg.Timeout})
	rc.SetBaseURL(strings.TrimRight(c.cfg.BaseURL, "/"))
	rc.OnAfterResponse(c.checkResponse)
	c.clients[proxyURI] = restyEntry{transport: t, client: rc}
	return rc, nil
}

// checkResponse is the resty middleware applying the status and envelope
// rules.
func (c *Client) checkResponse(_ *resty.Client, resp *resty.Response) error {
	status := resp.StatusCode()
	body := resp.Body()

	var v *fastjson.Value
	if len(strings.TrimSpace(string(body))) > 0 {
		parsed, err := fastjson.ParseBytes(body)
		if err == nil {
			v = parsed
		} else if status < 400 {
			return &models.NetworkRequestError{Exchange: c.cfg.Exchange, Status: status, Retryable: true, Err: fmt.Errorf("malformed response: %w", err)}
		}
	}

	var ex *models.ExchangeError
	if c.cfg.Envelope != nil && v != nil {
		ex = c.cfg.Envelope(status, v)
		if ex != nil {
			ex.Exchange = c.cfg.Exchange
			ex.Status = status
		}
	}

	switch {
	case status == http.StatusTooManyRequests:
		return &models.NetworkRequestError{Exchange: c.cfg.Exchange, Status: status, Err: errorText(ex, body)}
	case status >= 500:
		return &models.NetworkRequestError{Exchange: c.cfg.Exchange, Status: status, Retryable: true, Err: errorText(ex, body)}
	case ex != nil:
		return ex
	case status >= 400:
		return &models.ExchangeError{Exchange: c.cfg.Exchange, Status: status, Message: strings.TrimSpace(errorText(nil, body).Error())}
	}
	return nil
}

func errorText(ex *models.ExchangeError, body []byte) error {
	if ex != nil && ex.Message != "" {
		return errors.New(ex.Message)
	}
	text := strings.TrimSpace(string(body))
	if len(text) > 256 {
		text = text[:256]
	}
	if text == "" {
		text = "empty response"
	}
	return errors.New(text)
}

// proxyLabel strips credentials from a proxy URI for logging.
func proxyLabel(uri string) string {
	if uri == "" {
		return ""
	}
	u, err := url.Parse(uri)
	if err != nil {
		return "invalid"
	}
	return u.Scheme + "://" + u.Host
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
