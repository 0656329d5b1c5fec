package gas

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/michaelpento.lv/dexarb/ledger"
)

// Operation names the kind of write call gas parameters are requested for
type Operation string

const (
	OpApprove      Operation = "approve"
	OpSwap         Operation = "swap"
	OpMint         Operation = "mint"
	OpSetPrice     Operation = "set_price"
	OpAddLiquidity Operation = "add_liquidity"
)

// DefaultLimits are the gas limits used when the configuration has none
var DefaultLimits = map[Operation]uint64{
	OpApprove:      100000,
	OpSwap:         250000,
	OpMint:         100000,
	OpSetPrice:     100000,
	OpAddLiquidity: 1000000,
}

// Source hands out gas parameters for write calls
type Source interface {
	Params(ctx context.Context, op Operation) (ledger.GasParams, error)
}

// PriceSuggester is implemented by ledgers that can query the node's gas price
type PriceSuggester interface {
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// Config controls gas pricing. A nil GasPrice means use the node suggestion.
type Config struct {
	GasPrice    *big.Int
	MaxGasPrice *big.Int
	Limits      map[Operation]uint64
	RefreshTTL  time.Duration
}

// Estimator provides gas parameters for each write call
type Estimator struct {
	suggester PriceSuggester
	cfg       Config
	logger    *zap.Logger

	mu        sync.RWMutex
	suggested *big.Int
	fetchedAt time.Time
}

// NewEstimator creates a new gas estimator. suggester may be nil, in which
// case unpriced calls fall back to the transactor's EIP-1559 defaults.
func NewEstimator(suggester PriceSuggester, cfg Config, logger *zap.Logger) *Estimator {
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 12 * time.Second
	}
	return &Estimator{
		suggester: suggester,
		cfg:       cfg,
		logger:    logger,
	}
}

// Limit returns the gas limit for op
func (e *Estimator) Limit(op Operation) uint64 {
	if limit, ok := e.cfg.Limits[op]; ok && limit > 0 {
		return limit
	}
	return DefaultLimits[op]
}

// Params returns the gas limit and price to attach to a write call
func (e *Estimator) Params(ctx context.Context, op Operation) (ledger.GasParams, error) {
	params := ledger.GasParams{GasLimit: e.Limit(op)}

	price, err := e.price(ctx)
	if err != nil {
		return ledger.GasParams{}, err
	}
	params.GasPrice = price

	return params, nil
}

// EstimateGasCost estimates the cost of spending gasLimit at the current price
func (e *Estimator) EstimateGasCost(ctx context.Context, gasLimit uint64) (*big.Int, error) {
	price, err := e.price(ctx)
	if err != nil {
		return nil, err
	}
	if price == nil {
		return nil, nil
	}
	return new(big.Int).Mul(price, new(big.Int).SetUint64(gasLimit)), nil
}

// EstimateArbitrageGas returns the gas limit budget of a two-leg arbitrage:
// one approval and one swap per leg
func (e *Estimator) EstimateArbitrageGas() uint64 {
	return 2 * (e.Limit(OpApprove) + e.Limit(OpSwap))
}

func (e *Estimator) price(ctx context.Context) (*big.Int, error) {
	if e.cfg.GasPrice != nil {
		return new(big.Int).Set(e.cfg.GasPrice), nil
	}
	if e.suggester == nil {
		return nil, nil
	}

	e.mu.RLock()
	if e.suggested != nil && time.Since(e.fetchedAt) < e.cfg.RefreshTTL {
		price := new(big.Int).Set(e.suggested)
		e.mu.RUnlock()
		return price, nil
	}
	e.mu.RUnlock()

	suggested, err := e.suggester.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}

	if e.cfg.MaxGasPrice != nil && suggested.Cmp(e.cfg.MaxGasPrice) > 0 {
		e.logger.Warn("Suggested gas price above cap",
			zap.String("suggested", suggested.String()),
			zap.String("max", e.cfg.MaxGasPrice.String()))
		suggested = new(big.Int).Set(e.cfg.MaxGasPrice)
	}

	e.mu.Lock()
	e.suggested = suggested
	e.fetchedAt = time.Now()
	e.mu.Unlock()

	return new(big.Int).Set(suggested), nil
}
