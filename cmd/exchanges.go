package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"cointrade/exchange/binance"
	"cointrade/internal/metrics/rate"
	"cointrade/internal/proxy"
	"cointrade/logger"
)

func (a *app) exchangesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "exchanges",
		Short: "List supported exchanges",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			type row struct {
				Name       string `json:"name"`
				KeyManager bool   `json:"keyManager"`
				ProxyShard string `json:"proxy,omitempty"`
			}
			var rows []row
			for _, n := range a.registry.Names() {
				_, km := a.registry.KeyManager(n)
				rows = append(rows, row{Name: n, KeyManager: km, ProxyShard: a.shards.ProxyFor(n)})
			}
			return a.print(rows)
		},
	}
}

// limitsCmd reads Binance's published request-weight budget.
func (a *app) limitsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "limits",
		Short: "Show Binance futures request-weight limit per minute",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p := a.proxyURI()
			pc := proxy.NewCache(a.cfg.Proxy.TTL, proxy.PoolConfig{})
			t, err := pc.Transport(p)
			if err != nil {
				return err
			}
			base := a.cfg.Exchanges[binance.Name].AltBaseURLs["linear"]
			if base == "" {
				base = binance.LinearURL
			}
			limit, err := rate.FetchRequestWeightLimit(cmd.Context(), rate.NewBinanceFuturesClient(base, t))
			if err != nil {
				return fmt.Errorf("binance exchange info: %w", err)
			}
			a.log.WithComponent("cli").WithFields(logger.Fields{"limit": limit}).Debug("request weight limit")
			return a.print(map[string]interface{}{"exchange": binance.Name, "requestWeightPerMinute": limit})
		},
	}
}

func (a *app) keysCmd() *cobra.Command {
	var (
		privateKey string
		nonce      int64
	)
	cmd := &cobra.Command{
		Use:   "keys create|derive",
		Short: "Create or derive API credentials from a wallet key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.flags.exchange == "" {
				return fmt.Errorf("--exchange is required")
			}
			km, ok := a.registry.KeyManager(a.flags.exchange)
			if !ok {
				if _, err := a.registry.Get(a.flags.exchange); err != nil {
					return err
				}
				return fmt.Errorf("%s does not manage API keys", a.flags.exchange)
			}
			if privateKey == "" {
				privateKey = a.keys().Secret
			}
			var (
				raw []byte
				err error
			)
			switch args[0] {
			case "create":
				raw, err = km.CreateAPIKey(cmd.Context(), a.proxyURI(), privateKey, nonce)
			case "derive":
				raw, err = km.DeriveAPIKey(cmd.Context(), a.proxyURI(), privateKey, nonce)
			default:
				return fmt.Errorf("unknown action %q, want create or derive", args[0])
			}
			if err != nil {
				return err
			}
			return a.printRaw(raw)
		},
	}
	cmd.Flags().StringVar(&privateKey, "private-key", "", "hex wallet key (default --secret)")
	cmd.Flags().Int64Var(&nonce, "nonce", 0, "key nonce")
	return cmd
}
