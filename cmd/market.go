package cmd

import (
	"github.com/spf13/cobra"
)

func (a *app) tickerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ticker SYMBOL",
		Short: "Fetch the latest ticker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.driver()
			if err != nil {
				return err
			}
			t, err := d.FetchTicker(cmd.Context(), a.proxyURI(), args[0])
			if err != nil {
				return err
			}
			return a.print(t)
		},
	}
}

func (a *app) bookCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "book SYMBOL",
		Short: "Fetch the order book, best levels first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.driver()
			if err != nil {
				return err
			}
			b, err := d.FetchOrderBook(cmd.Context(), a.proxyURI(), args[0], limit)
			if err != nil {
				return err
			}
			return a.print(b)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "levels per side (0 for the exchange default)")
	return cmd
}

func (a *app) ohlcvCmd() *cobra.Command {
	var (
		timeframe string
		since     int64
		limit     int
	)
	cmd := &cobra.Command{
		Use:   "ohlcv SYMBOL",
		Short: "Fetch candles, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.driver()
			if err != nil {
				return err
			}
			c, err := d.FetchOHLCV(cmd.Context(), a.proxyURI(), args[0], timeframe, since, limit)
			if err != nil {
				return err
			}
			return a.print(c)
		},
	}
	cmd.Flags().StringVar(&timeframe, "timeframe", "1m", "candle interval")
	cmd.Flags().Int64Var(&since, "since", 0, "start time in milliseconds")
	cmd.Flags().IntVar(&limit, "limit", 0, "number of candles")
	return cmd
}
