package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/dexarb/bootstrap"
	"github.com/michaelpento.lv/dexarb/config"
	"github.com/michaelpento.lv/dexarb/utils"
)

// funding transactions are priced at 50 gwei unless configured
const bootstrapGasPriceGwei = "50"

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Mint test tokens, seed liquidity and set venue prices",
	Long: `Mint TokenA and TokenB to the wallet, approve both routers, add
liquidity to both pairs and set the router prices, so the arbitrage command
has a price gap to act on.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runBootstrap(ctx, cfgFile, utils.GetLogger())
	},
}

func init() {
	rootCmd.AddCommand(bootstrapCmd)
}

func runBootstrap(ctx context.Context, path string, log *zap.Logger) error {
	cfg, err := loadConfig(path, func(c *config.Config) {
		if c.Gas.PriceGwei == "" {
			c.Gas.PriceGwei = bootstrapGasPriceGwei
		}
	})
	if err != nil {
		return err
	}

	plan, err := bootstrapPlan(cfg)
	if err != nil {
		return err
	}

	rt, err := newRuntime(ctx, cfg, os.Stdout, log)
	if err != nil {
		return err
	}
	defer rt.Close()

	plan.Venues[0].Venue = rt.uniswap
	plan.Venues[1].Venue = rt.sushiswap

	b := bootstrap.NewLiquidityBootstrapper(rt.ledger, rt.quotes, rt.approvals, rt.gas, rt.tokenA, rt.tokenB, log)
	return b.Run(ctx, plan)
}

// bootstrapPlan parses the configured amounts; venues are filled in once
// the runtime has resolved them
func bootstrapPlan(cfg *config.Config) (bootstrap.Plan, error) {
	mintA, mintB, err := cfg.Mints()
	if err != nil {
		return bootstrap.Plan{}, err
	}

	plan := bootstrap.Plan{MintA: mintA, MintB: mintB}
	for _, vc := range []config.VenueConfig{cfg.Uniswap, cfg.Sushiswap} {
		f, err := cfg.Funding(vc)
		if err != nil {
			return bootstrap.Plan{}, err
		}
		plan.Venues = append(plan.Venues, bootstrap.Funding{
			LiquidityA: f.LiquidityA,
			LiquidityB: f.LiquidityB,
			Price:      f.Price,
		})
	}
	return plan, nil
}
