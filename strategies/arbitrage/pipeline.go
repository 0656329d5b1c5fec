package arbitrage

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/dexarb/audit"
	"github.com/michaelpento.lv/dexarb/dex"
	"github.com/michaelpento.lv/dexarb/ledger"
	"github.com/michaelpento.lv/dexarb/types"
	"github.com/michaelpento.lv/dexarb/utils"
	"github.com/michaelpento.lv/dexarb/utils/metrics"
)

// CostEstimator reports the gas budget of a cycle; only used for logging
type CostEstimator interface {
	EstimateArbitrageGas() uint64
	EstimateGasCost(ctx context.Context, gasLimit uint64) (*big.Int, error)
}

// PipelineConfig describes the pair and venues a pipeline trades
type PipelineConfig struct {
	VenueA   types.Venue
	VenueB   types.Venue
	TokenA   types.Token
	TokenB   types.Token
	AmountIn *big.Int
}

// CycleReport summarizes one arbitrage cycle
type CycleReport struct {
	ID          string
	Outcome     string
	QuoteA      *types.Quote
	QuoteB      *types.Quote
	Opportunity *types.Opportunity
	Trade       *TradeResult
}

// Pipeline runs fetch → evaluate → execute cycles for one wallet. At most
// one cycle is in flight per Pipeline; separate pipelines sharing a wallet
// are not coordinated.
type Pipeline struct {
	mu       sync.Mutex
	cfg      PipelineConfig
	ledger   ledger.Client
	quotes   dex.QuoteSource
	executor *TradeExecutor
	costs    CostEstimator
	audit    audit.Recorder
	metrics  *metrics.ArbitrageMetrics
	logger   *zap.Logger
}

// NewPipeline creates a pipeline. costs may be nil.
func NewPipeline(
	cfg PipelineConfig,
	client ledger.Client,
	quotes dex.QuoteSource,
	executor *TradeExecutor,
	costs CostEstimator,
	recorder audit.Recorder,
	m *metrics.ArbitrageMetrics,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		ledger:   client,
		quotes:   quotes,
		executor: executor,
		costs:    costs,
		audit:    recorder,
		metrics:  m,
		logger:   logger,
	}
}

// RunOnce performs a single cycle. An unreachable venue is logged and
// reported with a nil error; approval and swap failures are returned.
func (p *Pipeline) RunOnce(ctx context.Context) (*CycleReport, error) {
	if !p.mu.TryLock() {
		return nil, types.ErrCycleInFlight
	}
	defer p.mu.Unlock()

	report := &CycleReport{ID: uuid.NewString()}
	logger := p.logger.With(zap.String("cycle", report.ID))

	p.recordBalances(ctx, logger)

	quoteA, quoteB, err := p.quotes.FetchPair(ctx, p.cfg.VenueA, p.cfg.VenueB)
	if err != nil {
		if errors.Is(err, types.ErrVenueUnreachable) {
			report.Outcome = metrics.OutcomeVenueUnreachable
			p.metrics.Cycles.WithLabelValues(report.Outcome).Inc()
			p.audit.Recordf("Failed to fetch quotes, skipping cycle: %v", err)
			logger.Warn("Venue unreachable, skipping cycle", zap.Error(err))
			return report, nil
		}
		return report, fmt.Errorf("failed to fetch quotes: %w", err)
	}
	report.QuoteA, report.QuoteB = quoteA, quoteB

	p.recordQuote(quoteA)
	p.recordQuote(quoteB)

	opp := Evaluate(quoteA, quoteB)
	if opp == nil {
		report.Outcome = metrics.OutcomeNoOpportunity
		p.metrics.Cycles.WithLabelValues(report.Outcome).Inc()
		p.metrics.Spread.Set(0)
		p.audit.Record("No arbitrage opportunity: venue prices are equal")
		return report, nil
	}
	report.Opportunity = opp

	p.metrics.Opportunities.Inc()
	p.metrics.Spread.Set(toFloat(opp.Spread, p.cfg.TokenB.Decimals))
	p.audit.Recordf("Arbitrage opportunity: Buy on %s, sell on %s (spread %s %s)",
		opp.Buy.Venue.Name, opp.Sell.Venue.Name,
		utils.FormatUnits(opp.Spread, p.cfg.TokenB.Decimals), p.cfg.TokenB.Symbol)
	p.logGasBudget(ctx, logger)

	// Submitted transactions cannot be withdrawn, so shutdown signals must
	// not interrupt a trade; confirmation waits stay bounded by the ledger.
	trade, err := p.executor.Execute(context.WithoutCancel(ctx), opp, p.cfg.AmountIn)
	report.Trade = trade
	if err != nil {
		report.Outcome = metrics.OutcomeFailed
		p.metrics.Cycles.WithLabelValues(report.Outcome).Inc()
		return report, err
	}

	report.Outcome = metrics.OutcomeCompleted
	p.metrics.Cycles.WithLabelValues(report.Outcome).Inc()
	return report, nil
}

// Run repeats cycles every interval until ctx is cancelled or a cycle fails
func (p *Pipeline) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := p.RunOnce(ctx); err != nil {
			if errors.Is(err, types.ErrCycleInFlight) {
				p.logger.Warn("Previous cycle still running, skipping tick")
			} else {
				return err
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (p *Pipeline) recordBalances(ctx context.Context, logger *zap.Logger) {
	wallet := p.ledger.Address()
	for _, token := range []types.Token{p.cfg.TokenA, p.cfg.TokenB} {
		balance, err := p.ledger.BalanceOf(ctx, token.Address, wallet)
		if err != nil {
			logger.Warn("Failed to read wallet balance", zap.String("token", token.Symbol), zap.Error(err))
			continue
		}
		p.audit.Recordf("Wallet %s balance: %s", token.Symbol, utils.FormatUnits(balance, token.Decimals))
	}
}

func (p *Pipeline) recordQuote(q *types.Quote) {
	a, b := p.cfg.TokenA, p.cfg.TokenB
	p.audit.Recordf("%s Pair Reserves: %s %s, %s %s", q.Venue.Name,
		utils.FormatUnits(q.ReserveA, a.Decimals), a.Symbol,
		utils.FormatUnits(q.ReserveB, b.Decimals), b.Symbol)
	p.audit.Recordf("%s: 1 %s = %s %s", q.Venue.Name, a.Symbol,
		utils.FormatUnits(q.Price, b.Decimals), b.Symbol)
	p.metrics.VenuePrice.WithLabelValues(q.Venue.Name).Set(toFloat(q.Price, b.Decimals))
}

func (p *Pipeline) logGasBudget(ctx context.Context, logger *zap.Logger) {
	if p.costs == nil {
		return
	}
	gasLimit := p.costs.EstimateArbitrageGas()
	cost, err := p.costs.EstimateGasCost(ctx, gasLimit)
	if err != nil {
		logger.Warn("Failed to estimate gas cost", zap.Error(err))
		return
	}
	fields := []zap.Field{zap.Uint64("gas_limit", gasLimit)}
	if cost != nil {
		fields = append(fields, zap.String("max_cost_eth", utils.FormatUnits(cost, types.TokenDecimals)))
	}
	logger.Info("Gas budget for arbitrage", fields...)
}

func toFloat(amount *big.Int, decimals int32) float64 {
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(amount), new(big.Float).SetInt(
		new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))).Float64()
	return f
}
