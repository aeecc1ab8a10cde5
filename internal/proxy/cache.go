// Package proxy keeps one reusable HTTP transport per proxy URI.
package proxy

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	xproxy "golang.org/x/net/proxy"
)

const DefaultTTL = time.Hour

// PoolConfig sizes the connection pool of every transport the cache builds.
type PoolConfig struct {
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	MaxConnsPerHost     int
	IdleConnTimeout     time.Duration
}

func (p PoolConfig) withDefaults() PoolConfig {
	if p.MaxIdleConns <= 0 {
		p.MaxIdleConns = 100
	}
	if p.MaxIdleConnsPerHost <= 0 {
		p.MaxIdleConnsPerHost = 10
	}
	if p.IdleConnTimeout <= 0 {
		p.IdleConnTimeout = 90 * time.Second
	}
	return p
}

type entry struct {
	transport *http.Transport
	lastUsed  time.Time
}

// Cache maps a proxy URI to a shared transport. Entries idle for longer
// than the TTL are dropped on the next access and rebuilt on demand.
type Cache struct {
	ttl  time.Duration
	pool PoolConfig
	now  func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
	direct  *http.Transport
}

// NewCache returns a cache with the given TTL (DefaultTTL when zero).
func NewCache(ttl time.Duration, pool PoolConfig) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{
		ttl:     ttl,
		pool:    pool.withDefaults(),
		now:     time.Now,
		entries: make(map[string]*entry),
	}
	c.direct = c.newTransport(nil)
	return c
}

// SetClock replaces the time source.
func (c *Cache) SetClock(now func() time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

// Transport returns the transport for uri. An empty uri means a direct
// connection. Every call refreshes the entry's last-used time.
func (c *Cache) Transport(uri string) (*http.Transport, error) {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return c.direct, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for k, e := range c.entries {
		if now.Sub(e.lastUsed) > c.ttl {
			e.transport.CloseIdleConnections()
			delete(c.entries, k)
		}
	}

	if e, ok := c.entries[uri]; ok {
		e.lastUsed = now
		return e.transport, nil
	}

	dial, err := dialerFor(uri)
	if err != nil {
		return nil, err
	}
	e := &entry{transport: c.newTransport(dial), lastUsed: now}
	c.entries[uri] = e
	return e.transport, nil
}

// Len reports the number of cached proxy transports.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) newTransport(dial func(ctx context.Context, network, addr string) (net.Conn, error)) *http.Transport {
	t := &http.Transport{
		Proxy:               nil,
		MaxIdleConns:        c.pool.MaxIdleConns,
		MaxIdleConnsPerHost: c.pool.MaxIdleConnsPerHost,
		MaxConnsPerHost:     c.pool.MaxConnsPerHost,
		IdleConnTimeout:     c.pool.IdleConnTimeout,
		TLSHandshakeTimeout: 10 * time.Second,
		ForceAttemptHTTP2:   true,
	}
	if dial != nil {
		t.DialContext = dial
	} else {
		d := &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}
		t.DialContext = d.DialContext
	}
	return t
}

// dialerFor builds a SOCKS5 dialer. socks:// is accepted as an alias of
// socks5:// and credentials in the userinfo are passed through.
func dialerFor(uri string) (func(ctx context.Context, network, addr string) (net.Conn, error), error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("parse proxy uri: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "socks", "socks5":
		u.Scheme = "socks5"
	case "socks5h":
	default:
		return nil, fmt.Errorf("unsupported proxy scheme %q", u.Scheme)
	}
	d, err := xproxy.FromURL(u, &net.Dialer{Timeout: 30 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("build proxy dialer: %w", err)
	}
	if cd, ok := d.(xproxy.ContextDialer); ok {
		return cd.DialContext, nil
	}
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return d.Dial(network, addr)
	}, nil
}
