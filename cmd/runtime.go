package cmd

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/michaelpento.lv/dexarb/audit"
	"github.com/michaelpento.lv/dexarb/config"
	"github.com/michaelpento.lv/dexarb/dex"
	"github.com/michaelpento.lv/dexarb/gas"
	"github.com/michaelpento.lv/dexarb/ledger"
	"github.com/michaelpento.lv/dexarb/strategies/arbitrage"
	"github.com/michaelpento.lv/dexarb/types"
	"github.com/michaelpento.lv/dexarb/utils/metrics"
)

// runtime holds the components shared by the arbitrage and bootstrap commands
type runtime struct {
	cfg       *config.Config
	ledger    *ledger.EthLedger
	audit     *audit.Log
	metrics   *metrics.ArbitrageMetrics
	gas       *gas.Estimator
	quotes    *dex.QuoteFetcher
	approvals *arbitrage.ApprovalManager
	tokenA    types.Token
	tokenB    types.Token
	uniswap   types.Venue
	sushiswap types.Venue
	logger    *zap.Logger
}

// loadConfig loads the configuration, applies flag overrides and validates
// the result. It never touches the network, so a bad setup fails before any
// RPC call.
func loadConfig(path string, overrides ...func(*config.Config)) (*config.Config, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	for _, override := range overrides {
		override(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newRuntime connects to the node and wires the components for cfg
func newRuntime(ctx context.Context, cfg *config.Config, console io.Writer, logger *zap.Logger) (*runtime, error) {
	tokenA, tokenB, err := cfg.Tokens()
	if err != nil {
		return nil, err
	}
	uni, sushi, err := cfg.Venues()
	if err != nil {
		return nil, err
	}
	gasCfg, err := cfg.GasConfig()
	if err != nil {
		return nil, err
	}
	lctx, err := cfg.LedgerContext()
	if err != nil {
		return nil, err
	}

	auditLog, err := audit.Open(cfg.AuditLog, console, logger)
	if err != nil {
		return nil, err
	}

	client, err := ledger.Dial(ctx, lctx, logger)
	if err != nil {
		_ = auditLog.Close()
		return nil, err
	}

	quotes, err := dex.NewQuoteFetcher(client, tokenA.Address, tokenB.Address, logger)
	if err != nil {
		client.Close()
		_ = auditLog.Close()
		return nil, fmt.Errorf("failed to create quote fetcher: %w", err)
	}

	m := metrics.NewArbitrageMetrics("dexarb")
	estimator := gas.NewEstimator(client, gasCfg, logger)

	return &runtime{
		cfg:       cfg,
		ledger:    client,
		audit:     auditLog,
		metrics:   m,
		gas:       estimator,
		quotes:    quotes,
		approvals: arbitrage.NewApprovalManager(client, estimator, auditLog, m, logger),
		tokenA:    tokenA,
		tokenB:    tokenB,
		uniswap:   uni,
		sushiswap: sushi,
		logger:    logger,
	}, nil
}

func (r *runtime) Close() {
	r.ledger.Close()
	if err := r.audit.Close(); err != nil {
		r.logger.Warn("Failed to close audit log", zap.Error(err))
	}
}

// logFatal reports err with any revert reason and data before the process exits
func logFatal(logger *zap.Logger, msg string, err error) {
	fields := []zap.Field{zap.Error(err)}
	if reason, data, ok := types.RevertDetails(err); ok {
		fields = append(fields, zap.String("revert_reason", reason))
		if data != "" {
			fields = append(fields, zap.String("revert_data", data))
		}
	}
	logger.Error(msg, fields...)
}
