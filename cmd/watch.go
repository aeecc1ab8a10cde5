package cmd

import (
	"context"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"cointrade/internal/metrics"
	"cointrade/logger"
	"cointrade/models"
	"cointrade/watcher"
)

func (a *app) watchCmd() *cobra.Command {
	var (
		interval time.Duration
		limit    int
		since    int64
	)
	cmd := &cobra.Command{
		Use:   "watch SYMBOL",
		Short: "Poll the account's fills until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.driver()
			if err != nil {
				return err
			}
			extra, err := a.extra()
			if err != nil {
				return err
			}
			if interval <= 0 {
				interval = a.cfg.Watcher.Interval
			}
			if limit <= 0 {
				limit = a.cfg.Watcher.Limit
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			var throttled atomic.Int64
			stopTap := metrics.Subscribe(func(m metrics.Metric) {
				if m.Fields["exchange"] == d.Name() {
					throttled.Add(1)
				}
			}, "rate_limit_exceeded", "ip_ban")
			defer stopTap()

			w := watcher.New(d, watcher.Config{
				Proxy:    a.proxyURI(),
				Keys:     a.keys(),
				Symbol:   args[0],
				Interval: interval,
				Limit:    limit,
				Since:    since,
				Extra:    extra,
			}, a.journalFor(ctx), &printSink{app: a})
			if err := w.Start(ctx); err != nil {
				return err
			}

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigChan)

			select {
			case sig := <-sigChan:
				a.log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")
			case <-ctx.Done():
			}

			cancel()
			done := make(chan struct{})
			go func() {
				w.Stop()
				close(done)
			}()
			select {
			case <-done:
				a.log.WithFields(logger.Fields{
					"last_checked": w.LastChecked(),
					"rate_limited": throttled.Load(),
				}).Info("graceful shutdown completed")
			case <-time.After(30 * time.Second):
				a.log.Warn("graceful shutdown timeout exceeded")
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 0, "poll interval (default from config)")
	cmd.Flags().IntVar(&limit, "limit", 0, "trades per poll (default from config)")
	cmd.Flags().Int64Var(&since, "since", 0, "first lower bound in milliseconds (default now)")
	return cmd
}

// printSink writes each batch of trades to stdout.
type printSink struct {
	app *app
}

func (p *printSink) PublishTrades(_ context.Context, _ string, trades []models.Trade) error {
	return p.app.print(trades)
}
