package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/dexarb/config"
	"github.com/michaelpento.lv/dexarb/dex"
	"github.com/michaelpento.lv/dexarb/strategies/arbitrage"
	"github.com/michaelpento.lv/dexarb/utils"
)

type arbitrageOptions struct {
	amount      string
	interval    time.Duration
	metricsAddr string
}

var arbOpts arbitrageOptions

var arbitrageCmd = &cobra.Command{
	Use:     "arbitrage",
	Aliases: []string{"run"},
	Short:   "Run arbitrage cycles between the two venues",
	Long: `Fetch quotes from both venues, and when prices differ buy on the
cheaper venue and sell on the dearer one. With --interval 0 a single cycle
runs and the command exits.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runArbitrage(ctx, cfgFile, arbOpts, utils.GetLogger())
	},
}

func init() {
	rootCmd.AddCommand(arbitrageCmd)
	arbitrageCmd.Flags().StringVar(&arbOpts.amount, "amount", "", "TokenA amount per trade, e.g. 1.5 (overrides config)")
	arbitrageCmd.Flags().DurationVar(&arbOpts.interval, "interval", 0, "time between cycles (overrides config); 0 runs a single cycle")
	arbitrageCmd.Flags().StringVar(&arbOpts.metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address, e.g. :9090")
}

func runArbitrage(ctx context.Context, path string, opts arbitrageOptions, log *zap.Logger) error {
	cfg, err := loadConfig(path, func(c *config.Config) {
		if opts.amount != "" {
			c.Amount = opts.amount
		}
		if opts.metricsAddr != "" {
			c.MetricsAddr = opts.metricsAddr
		}
		if opts.interval != 0 {
			c.Interval = opts.interval
		}
	})
	if err != nil {
		return err
	}
	amountIn, err := cfg.AmountIn()
	if err != nil {
		return err
	}

	rt, err := newRuntime(ctx, cfg, os.Stdout, log)
	if err != nil {
		return err
	}
	defer rt.Close()

	if cfg.MetricsAddr != "" {
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: rt.metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Metrics server failed", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		log.Info("Serving metrics", zap.String("addr", cfg.MetricsAddr))
	}

	swapper := dex.NewRouterSwapper(rt.ledger, rt.gas, 0, log)
	executor := arbitrage.NewTradeExecutor(rt.ledger, rt.approvals, swapper, rt.tokenA, rt.tokenB, rt.audit, rt.metrics, log)
	pipeline := arbitrage.NewPipeline(arbitrage.PipelineConfig{
		VenueA:   rt.uniswap,
		VenueB:   rt.sushiswap,
		TokenA:   rt.tokenA,
		TokenB:   rt.tokenB,
		AmountIn: amountIn,
	}, rt.ledger, rt.quotes, executor, rt.gas, rt.audit, rt.metrics, log)

	defer logSummary(rt, log)

	if cfg.Interval == 0 {
		report, err := pipeline.RunOnce(ctx)
		if err != nil {
			return err
		}
		log.Info("Cycle finished", zap.String("cycle", report.ID), zap.String("outcome", report.Outcome))
		return nil
	}

	log.Info("Starting arbitrage loop", zap.Duration("interval", cfg.Interval))
	return pipeline.Run(ctx, cfg.Interval)
}

func logSummary(rt *runtime, log *zap.Logger) {
	summary, err := rt.metrics.Summary()
	if err != nil {
		log.Warn("Failed to collect metrics summary", zap.Error(err))
		return
	}
	fields := make([]zap.Field, 0, len(summary))
	for name, value := range summary {
		fields = append(fields, zap.Float64(name, value))
	}
	log.Info("Run summary", fields...)
}
