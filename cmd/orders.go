package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"cointrade/exchange"
	"cointrade/models"
)

func (a *app) orderCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "order", Short: "Create, cancel and query orders"}
	cmd.AddCommand(a.orderCreateCmd(), a.orderCancelCmd(), a.orderCancelAllCmd(), a.orderGetCmd(),
		a.orderListCmd("open", "List open orders", exchange.Driver.FetchOpenOrders),
		a.orderListCmd("closed", "List closed orders", exchange.Driver.FetchClosedOrders),
	)
	return cmd
}

// parseOrder validates the positional arguments of order create.
func parseOrder(args []string) (models.OrderRequest, error) {
	req := models.OrderRequest{Symbol: args[0], Side: strings.ToLower(args[1]), Type: strings.ToLower(args[2])}
	amount, err := strconv.ParseFloat(args[3], 64)
	if err != nil || amount <= 0 {
		return req, fmt.Errorf("amount must be a positive number, got %q", args[3])
	}
	req.Amount = amount
	if len(args) == 5 {
		price, err := strconv.ParseFloat(args[4], 64)
		if err != nil || price <= 0 {
			return req, fmt.Errorf("price must be a positive number, got %q", args[4])
		}
		req.Price = price
	}
	if req.Type == "limit" && req.Price == 0 {
		return req, fmt.Errorf("limit orders need a price")
	}
	return req, nil
}

func (a *app) orderCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create SYMBOL buy|sell market|limit AMOUNT [PRICE]",
		Short: "Place an order",
		Args:  cobra.RangeArgs(4, 5),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.driver()
			if err != nil {
				return err
			}
			req, err := parseOrder(args)
			if err != nil {
				return err
			}
			if req.Extra, err = a.extra(); err != nil {
				return err
			}
			o, err := d.CreateOrder(cmd.Context(), a.proxyURI(), a.keys(), req)
			if err != nil {
				return err
			}
			a.journalFor(cmd.Context()).RecordOrder(cmd.Context(), d.Name(), o)
			return a.print(o)
		},
	}
}

func (a *app) orderCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel ORDER_ID [SYMBOL]",
		Short: "Cancel one order",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.driver()
			if err != nil {
				return err
			}
			extra, err := a.extra()
			if err != nil {
				return err
			}
			var symbol string
			if len(args) == 2 {
				symbol = args[1]
			}
			res, err := d.CancelOrder(cmd.Context(), a.proxyURI(), a.keys(), args[0], symbol, extra)
			if err != nil {
				return err
			}
			a.journalFor(cmd.Context()).RecordCancel(cmd.Context(), d.Name(), res)
			return a.print(res)
		},
	}
}

func (a *app) orderCancelAllCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel-all SYMBOL",
		Short: "Cancel every open order on a symbol",
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
			res, err := d.CancelAllOrders(cmd.Context(), a.proxyURI(), a.keys(), args[0], extra)
			if err != nil {
				return err
			}
			a.journalFor(cmd.Context()).RecordCancel(cmd.Context(), d.Name(), res)
			return a.print(res)
		},
	}
}

func (a *app) orderGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get ORDER_ID SYMBOL",
		Short: "Fetch one order",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.driver()
			if err != nil {
				return err
			}
			extra, err := a.extra()
			if err != nil {
				return err
			}
			o, err := d.FetchOrder(cmd.Context(), a.proxyURI(), a.keys(), args[0], args[1], extra)
			if err != nil {
				return err
			}
			return a.print(o)
		},
	}
}

type listFunc func(exchange.Driver, context.Context, string, models.ApiKeys, models.OrderQuery) ([]models.Order, error)

func (a *app) orderListCmd(use, short string, list listFunc) *cobra.Command {
	var q models.OrderQuery
	cmd := &cobra.Command{
		Use:   use + " [SYMBOL]",
		Short: short,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.driver()
			if err != nil {
				return err
			}
			if len(args) == 1 {
				q.Symbol = args[0]
			}
			if q.Extra, err = a.extra(); err != nil {
				return err
			}
			orders, err := list(d, cmd.Context(), a.proxyURI(), a.keys(), q)
			if err != nil {
				return err
			}
			return a.print(orders)
		},
	}
	cmd.Flags().Int64Var(&q.Since, "since", 0, "start time in milliseconds")
	cmd.Flags().IntVar(&q.Limit, "limit", 0, "maximum number of orders")
	return cmd
}
