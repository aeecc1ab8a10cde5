// Package registry builds one driver per supported exchange at startup and
// looks them up by name.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"cointrade/exchange"
	"cointrade/exchange/backpack"
	"cointrade/exchange/binance"
	"cointrade/exchange/bitget"
	"cointrade/exchange/bluefin"
	"cointrade/exchange/bybit"
	"cointrade/exchange/gate"
	"cointrade/exchange/grvt"
	"cointrade/exchange/kucoin"
	"cointrade/exchange/okx"
	"cointrade/exchange/polymarket"
	"cointrade/logger"
	"cointrade/models"
)

// Factory builds a driver from its options.
type Factory func(exchange.Options) exchange.Driver

var factories = map[string]Factory{
	binance.Name:    func(o exchange.Options) exchange.Driver { return binance.New(o) },
	bybit.Name:      func(o exchange.Options) exchange.Driver { return bybit.New(o) },
	okx.Name:        func(o exchange.Options) exchange.Driver { return okx.New(o) },
	bitget.Name:     func(o exchange.Options) exchange.Driver { return bitget.New(o) },
	gate.Name:       func(o exchange.Options) exchange.Driver { return gate.New(o) },
	kucoin.Name:     func(o exchange.Options) exchange.Driver { return kucoin.New(o) },
	backpack.Name:   func(o exchange.Options) exchange.Driver { return backpack.New(o) },
	grvt.Name:       func(o exchange.Options) exchange.Driver { return grvt.New(o) },
	bluefin.Name:    func(o exchange.Options) exchange.Driver { return bluefin.New(o) },
	polymarket.Name: func(o exchange.Options) exchange.Driver { return polymarket.New(o) },
}

// Supported lists every exchange name the registry can build.
func Supported() []string {
	names := make([]string, 0, len(factories))
	for n := range factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// UnknownExchangeError is returned by Get for names not in the registry.
type UnknownExchangeError struct {
	Name string
}

func (e *UnknownExchangeError) Error() string {
	return fmt.Sprintf("unknown exchange %q (supported: %s)", e.Name, strings.Join(Supported(), ", "))
}

// KeyManager is implemented by drivers that can issue API credentials
// from a wallet key.
type KeyManager interface {
	CreateAPIKey(ctx context.Context, proxy, privateKey string, nonce int64) (json.RawMessage, error)
	DeriveAPIKey(ctx context.Context, proxy, privateKey string, nonce int64) (json.RawMessage, error)
}

type Registry struct {
	drivers map[string]exchange.Driver
	log     *logger.Log
}

// New builds every supported driver. opts holds per-exchange overrides
// keyed by name; exchanges without an entry get defaults.
func New(defaults exchange.Options, opts map[string]exchange.Options) *Registry {
	r := &Registry{drivers: make(map[string]exchange.Driver, len(factories)), log: logger.GetLogger()}
	for name, f := range factories {
		o, ok := opts[name]
		if !ok {
			o = defaults
		}
		if o.Proxies == nil {
			o.Proxies = defaults.Proxies
		}
		if o.Now == nil {
			o.Now = defaults.Now
		}
		r.drivers[name] = f(o)
	}
	r.log.WithComponent("registry").WithFields(logger.Fields{"exchanges": len(r.drivers)}).Debug("drivers registered")
	return r
}

// Register adds or replaces a driver.
func (r *Registry) Register(d exchange.Driver) {
	r.drivers[d.Name()] = d
}

// Get returns the driver for name, matched case-insensitively.
func (r *Registry) Get(name string) (exchange.Driver, error) {
	d, ok := r.drivers[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, &UnknownExchangeError{Name: name}
	}
	return d, nil
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.drivers))
	for n := range r.drivers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// KeyManager returns the key management capability of the named driver.
func (r *Registry) KeyManager(name string) (KeyManager, bool) {
	d, err := r.Get(name)
	if err != nil {
		return nil, false
	}
	km, ok := d.(KeyManager)
	return km, ok
}

// CheckKeys probes the credentials with a balance request. Any failure,
// including a panic inside the driver, reports false with the cause.
func CheckKeys(ctx context.Context, d exchange.Driver, proxy string, keys models.ApiKeys) (ok bool, err error) {
	defer func() {
		if p := recover(); p != nil {
			ok, err = false, fmt.Errorf("%s: check keys: %v", d.Name(), p)
		}
	}()
	if _, err := d.FetchBalance(ctx, proxy, keys, ""); err != nil {
		logger.GetLogger().WithComponent("registry").WithFields(logger.Fields{
			"exchange": d.Name(),
			"kind":     models.Kind(err),
		}).Debug("credential check failed")
		return false, err
	}
	return true, nil
}
