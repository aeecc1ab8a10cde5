package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"cointrade/models"
	"cointrade/registry"
)

func (a *app) balanceCmd() *cobra.Command {
	var coin string
	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Fetch account balances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := a.driver()
			if err != nil {
				return err
			}
			b, err := d.FetchBalance(cmd.Context(), a.proxyURI(), a.keys(), coin)
			if err != nil {
				return err
			}
			return a.print(b)
		},
	}
	cmd.Flags().StringVar(&coin, "coin", "", "restrict to one asset where the exchange supports it")
	return cmd
}

func (a *app) tradesCmd() *cobra.Command {
	var q models.OrderQuery
	cmd := &cobra.Command{
		Use:   "trades SYMBOL",
		Short: "List the account's fills",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.driver()
			if err != nil {
				return err
			}
			q.Symbol = args[0]
			if q.Extra, err = a.extra(); err != nil {
				return err
			}
			trades, err := d.FetchMyTrades(cmd.Context(), a.proxyURI(), a.keys(), q)
			if err != nil {
				return err
			}
			return a.print(trades)
		},
	}
	cmd.Flags().Int64Var(&q.Since, "since", 0, "start time in milliseconds")
	cmd.Flags().IntVar(&q.Limit, "limit", 0, "maximum number of trades")
	return cmd
}

func (a *app) customCmd() *cobra.Command {
	var (
		method string
		data   string
		public bool
	)
	cmd := &cobra.Command{
		Use:   "custom PATH",
		Short: "Send a raw request and print the exchange's reply",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.driver()
			if err != nil {
				return err
			}
			req := models.CustomRequest{Path: args[0], Method: method}
			if req.Data, err = parseParams(data); err != nil {
				return fmt.Errorf("--data: %w", err)
			}
			if req.Extra, err = a.extra(); err != nil {
				return err
			}
			var keys *models.ApiKeys
			if !public {
				k := a.keys()
				keys = &k
			}
			raw, err := d.CustomRequest(cmd.Context(), a.proxyURI(), keys, req)
			if err != nil {
				return err
			}
			return a.printRaw(raw)
		},
	}
	cmd.Flags().StringVar(&method, "method", "GET", "HTTP method")
	cmd.Flags().StringVar(&data, "data", "", "request data as a JSON object")
	cmd.Flags().BoolVar(&public, "public", false, "send unsigned")
	return cmd
}

func (a *app) withdrawCmd() *cobra.Command {
	var req models.WithdrawRequest
	cmd := &cobra.Command{
		Use:   "withdraw",
		Short: "Withdraw funds to an external address",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := a.driver()
			if err != nil {
				return err
			}
			if req.Coin == "" || req.Address == "" || req.Amount <= 0 {
				return fmt.Errorf("--coin, --address and a positive --amount are required")
			}
			if req.Extra, err = a.extra(); err != nil {
				return err
			}
			raw, err := d.Withdraw(cmd.Context(), a.proxyURI(), a.keys(), req)
			if err != nil {
				return err
			}
			return a.printRaw(raw)
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.Coin, "coin", "", "asset to withdraw")
	f.Float64Var(&req.Amount, "amount", 0, "amount to withdraw")
	f.StringVar(&req.Address, "address", "", "destination address")
	f.StringVar(&req.Tag, "tag", "", "destination memo or tag")
	f.StringVar(&req.Network, "network", "", "withdrawal network")
	return cmd
}

func (a *app) checkKeysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-keys",
		Short: "Verify credentials with a balance request",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := a.driver()
			if err != nil {
				return err
			}
			ok, err := registry.CheckKeys(cmd.Context(), d, a.proxyURI(), a.keys())
			out := map[string]interface{}{"exchange": d.Name(), "valid": ok}
			if err != nil {
				out["error"] = err.Error()
				out["kind"] = models.Kind(err)
			}
			return a.print(out)
		},
	}
}
