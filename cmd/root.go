// Package cmd is the cointrade command line. Every subcommand resolves one
// driver from the registry, calls it once and prints the result as JSON.
package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"cointrade/config"
	"cointrade/exchange"
	"cointrade/exchange/bluefin"
	"cointrade/exchange/grvt"
	"cointrade/internal/proxy"
	"cointrade/logger"
	"cointrade/models"
	"cointrade/registry"
	"cointrade/writer"
)

type flags struct {
	config   string
	exchange string
	proxy    string
	apiKey   string
	secret   string
	password string
	uid      string
	params   string
}

type app struct {
	flags    flags
	cfg      *config.Config
	registry *registry.Registry
	shards   *config.ProxyShards
	journal  *writer.Journal
	log      *logger.Log
	out      io.Writer
}

// Execute runs the command line and returns the process exit code.
func Execute(ctx context.Context, args []string) int {
	root, a := newRootCmd()
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	a.journal.Stop()
	if err != nil {
		printError(os.Stderr, err)
		return 1
	}
	return 0
}

func printError(w io.Writer, err error) {
	kind := models.Kind(err)
	if kind == "unknown" {
		kind = "error"
	}
	fmt.Fprintf(w, "%s: %v\n", kind, err)
}

func newRootCmd() (*cobra.Command, *app) {
	a := &app{log: logger.GetLogger(), out: os.Stdout}
	root := &cobra.Command{
		Use:           "cointrade",
		Short:         "Uniform access to crypto exchange REST APIs",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd.Context())
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.config, "config", config.DefaultPath, "path to configuration file")
	pf.StringVarP(&a.flags.exchange, "exchange", "e", "", "exchange name")
	pf.StringVar(&a.flags.proxy, "proxy", "", "SOCKS5 proxy URI (overrides config)")
	pf.StringVar(&a.flags.apiKey, "api-key", "", "API key (default $COINTRADE_API_KEY)")
	pf.StringVar(&a.flags.secret, "secret", "", "API secret (default $COINTRADE_SECRET)")
	pf.StringVar(&a.flags.password, "password", "", "API passphrase (default $COINTRADE_PASSWORD)")
	pf.StringVar(&a.flags.uid, "uid", "", "account id or wallet address (default $COINTRADE_UID)")
	pf.StringVar(&a.flags.params, "params", "", "extra exchange parameters as a JSON object")

	root.AddCommand(
		a.tickerCmd(), a.bookCmd(), a.ohlcvCmd(),
		a.balanceCmd(), a.orderCmd(), a.tradesCmd(), a.customCmd(), a.withdrawCmd(),
		a.checkKeysCmd(), a.watchCmd(), a.exchangesCmd(), a.limitsCmd(), a.keysCmd(),
	)
	return root, a
}

func (a *app) init(ctx context.Context) error {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		a.log.WithError(err).Warn("Error loading .env file")
	}
	cfg, err := config.LoadConfig(a.flags.config)
	if err != nil {
		return err
	}
	if err := a.log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		return err
	}
	a.cfg = cfg

	if cfg.Metrics.CloudWatch.Enabled {
		logger.InitCloudWatch(cfg.Metrics.CloudWatch.Region, cfg.Metrics.CloudWatch.Namespace, cfg.Metrics.CloudWatch.Dashboard, registry.Supported())
	}
	if strings.ToLower(cfg.Logging.Level) == "report" {
		logger.StartReport(ctx, a.log, cfg.Metrics.ReportInterval)
	}
	if cfg.Proxy.ShardsFile != "" {
		if a.shards, err = config.LoadProxyShards(cfg.Proxy.ShardsFile); err != nil {
			return err
		}
	}

	proxies := proxy.NewCache(cfg.Proxy.TTL, proxy.PoolConfig{
		MaxIdleConns:    cfg.Proxy.MaxIdleConns,
		MaxConnsPerHost: cfg.Proxy.MaxConnsPerHost,
		IdleConnTimeout: cfg.Proxy.IdleConnTimeout,
	})
	defaults, perExchange := exchangeOptions(cfg, proxies)
	a.registry = registry.New(defaults, perExchange)

	a.log.WithComponent("cli").WithFields(logger.Fields{
		"service":     cfg.App.Name,
		"version":     cfg.App.Version,
		"environment": cfg.App.Environment,
	}).Debug("cointrade initialized")
	return nil
}

// exchangeOptions turns the exchanges and sessions sections into driver
// options.
func exchangeOptions(cfg *config.Config, proxies *proxy.Cache) (exchange.Options, map[string]exchange.Options) {
	defaults := exchange.Options{Proxies: proxies}
	out := make(map[string]exchange.Options, len(registry.Supported()))
	for _, name := range registry.Supported() {
		ec := cfg.Exchanges[name]
		o := exchange.Options{
			BaseURL:    ec.BaseURL,
			AltURLs:    ec.AltBaseURLs,
			Timeout:    ec.Timeout,
			Retries:    ec.Retries,
			Backoff:    ec.RetryBackoff,
			RateLimit:  ec.RateLimitRPS,
			Burst:      ec.RateLimitBurst,
			RecvWindow: ec.RecvWindow,
			Proxies:    proxies,
		}
		switch name {
		case grvt.Name:
			o.SessionTTL = cfg.Sessions.GRVTTTL
		case bluefin.Name:
			o.SessionTTL = cfg.Sessions.BluefinTokenTTL
		}
		out[name] = o
	}
	return defaults, out
}

func (a *app) driver() (exchange.Driver, error) {
	if a.flags.exchange == "" {
		return nil, fmt.Errorf("--exchange is required (one of %s)", strings.Join(registry.Supported(), ", "))
	}
	return a.registry.Get(a.flags.exchange)
}

// proxyURI prefers the flag, then the shard assignment, then the default.
func (a *app) proxyURI() string {
	if a.flags.proxy != "" {
		return a.flags.proxy
	}
	if p := a.shards.ProxyFor(a.flags.exchange); p != "" {
		return p
	}
	if a.cfg != nil {
		return a.cfg.Proxy.Default
	}
	return ""
}

// keys merges credential flags over the environment.
func (a *app) keys() models.ApiKeys {
	k := config.EnvCredentials()
	if a.flags.apiKey != "" {
		k.APIKey = a.flags.apiKey
	}
	if a.flags.secret != "" {
		k.Secret = a.flags.secret
	}
	if a.flags.password != "" {
		k.Password = a.flags.password
	}
	if a.flags.uid != "" {
		k.UID = a.flags.uid
	}
	return k
}

func (a *app) extra() (models.Params, error) {
	return parseParams(a.flags.params)
}

// parseParams decodes a JSON object keeping numbers verbatim.
func parseParams(s string) (models.Params, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	var p models.Params
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("--params must be a JSON object: %w", err)
	}
	return p, nil
}

func (a *app) print(v interface{}) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printRaw indents a raw JSON body, falling back to the bytes as given.
func (a *app) printRaw(raw []byte) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		_, err = a.out.Write(append(raw, '\n'))
		return err
	}
	buf.WriteByte('\n')
	_, err := a.out.Write(buf.Bytes())
	return err
}

// journalFor builds the configured journal once. Disabled sections give
// a no-op journal.
func (a *app) journalFor(ctx context.Context) *writer.Journal {
	if a.journal != nil {
		return a.journal
	}
	j, err := writer.FromConfig(ctx, a.cfg.Journal)
	if err != nil {
		a.log.WithComponent("cli").WithError(err).Warn("journal disabled")
		j = writer.NewJournal()
	}
	a.journal = j
	return j
}
