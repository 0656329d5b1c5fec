package arbitrage

import (
	"context"
	"errors"
	"fmt"
	"math/big"
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

// State is a step of the two-leg execution
type State string

const (
	StateIdle          State = "idle"
	StateApprovingBuy  State = "approving_buy"
	StateBuyingIn      State = "buying_in"
	StateApprovingSell State = "approving_sell"
	StateSellingOut    State = "selling_out"
	StateCompleted     State = "completed"
	StateFailed        State = "failed"
)

// Terminal reports whether no further transition is possible
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// TradeResult is the outcome of one Execute call
type TradeResult struct {
	ID         string
	Direction  string
	State      State
	FailedAt   State
	AmountIn   *big.Int
	Approvals  []*ApprovalReceipt
	BuyLeg     *types.TradeLeg
	SellLeg    *types.TradeLeg
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// Unhedged reports whether the buy leg confirmed but the sell leg did not,
// leaving the wallet holding the intermediate token
func (r *TradeResult) Unhedged() bool {
	buyDone := r.BuyLeg != nil && r.BuyLeg.Status == types.LegConfirmed
	sellDone := r.SellLeg != nil && r.SellLeg.Status == types.LegConfirmed
	return buyDone && !sellDone
}

// Profit returns the realized gain in the input token of a completed trade
func (r *TradeResult) Profit() *big.Int {
	if r.State != StateCompleted || r.SellLeg == nil || r.SellLeg.RealizedOut == nil {
		return nil
	}
	return new(big.Int).Sub(r.SellLeg.RealizedOut, r.AmountIn)
}

// execution is the mutable state threaded through the transitions
type execution struct {
	opp    *types.Opportunity
	result *TradeResult
}

type transition func(ctx context.Context, ex *execution) (State, error)

// TradeExecutor drives the approve → buy → approve → sell sequence. Each
// step waits for the previous one to confirm; the sell amount is the buy
// leg's realized output.
type TradeExecutor struct {
	ledger    ledger.Client
	approvals *ApprovalManager
	swapper   dex.Swapper
	tokenIn   types.Token
	tokenOut  types.Token
	audit     audit.Recorder
	metrics   *metrics.ArbitrageMetrics
	logger    *zap.Logger
	steps     map[State]transition
	now       func() time.Time
}

// NewTradeExecutor creates an executor trading tokenIn → tokenOut on the buy
// venue and back on the sell venue
func NewTradeExecutor(
	client ledger.Client,
	approvals *ApprovalManager,
	swapper dex.Swapper,
	tokenIn, tokenOut types.Token,
	recorder audit.Recorder,
	m *metrics.ArbitrageMetrics,
	logger *zap.Logger,
) *TradeExecutor {
	e := &TradeExecutor{
		ledger:    client,
		approvals: approvals,
		swapper:   swapper,
		tokenIn:   tokenIn,
		tokenOut:  tokenOut,
		audit:     recorder,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
	}
	e.steps = map[State]transition{
		StateIdle:          e.start,
		StateApprovingBuy:  e.approveBuy,
		StateBuyingIn:      e.buy,
		StateApprovingSell: e.approveSell,
		StateSellingOut:    e.sell,
	}
	return e
}

// Execute runs the trade for opp with amountIn of the input token. It stops
// at the first failing step; confirmed transactions are never rolled back.
func (e *TradeExecutor) Execute(ctx context.Context, opp *types.Opportunity, amountIn *big.Int) (*TradeResult, error) {
	if opp == nil {
		return nil, errors.New("no opportunity to execute")
	}
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, fmt.Errorf("invalid input amount %v", amountIn)
	}

	ex := &execution{
		opp: opp,
		result: &TradeResult{
			ID:        uuid.NewString(),
			Direction: opp.Direction(),
			State:     StateIdle,
			AmountIn:  new(big.Int).Set(amountIn),
			StartedAt: e.now(),
		},
	}
	result := ex.result

	for !result.State.Terminal() {
		step, ok := e.steps[result.State]
		if !ok {
			e.fail(result, fmt.Errorf("no transition from state %s", result.State))
			break
		}

		next, err := step(ctx, ex)
		if err != nil {
			e.fail(result, err)
			break
		}

		e.logger.Debug("Arbitrage transition",
			zap.String("id", result.ID),
			zap.String("from", string(result.State)),
			zap.String("to", string(next)))
		result.State = next
	}

	result.FinishedAt = e.now()
	e.metrics.ExecutionTime.Observe(result.FinishedAt.Sub(result.StartedAt).Seconds())

	if result.State == StateCompleted {
		e.recordCompleted(result)
		return result, nil
	}
	return result, result.Err
}

func (e *TradeExecutor) start(ctx context.Context, ex *execution) (State, error) {
	e.audit.Recordf("Arbitrage %s started: %s with %s %s",
		ex.result.ID, ex.result.Direction,
		utils.FormatUnits(ex.result.AmountIn, e.tokenIn.Decimals), e.tokenIn.Symbol)
	return StateApprovingBuy, nil
}

func (e *TradeExecutor) approveBuy(ctx context.Context, ex *execution) (State, error) {
	receipt, err := e.approvals.EnsureAllowance(ctx, e.ledger.Address(), e.tokenIn, ex.opp.Buy.Venue.Router, ex.result.AmountIn)
	if receipt != nil {
		ex.result.Approvals = append(ex.result.Approvals, receipt)
	}
	if err != nil {
		return "", err
	}
	return StateBuyingIn, nil
}

func (e *TradeExecutor) buy(ctx context.Context, ex *execution) (State, error) {
	venue := ex.opp.Buy.Venue
	leg, err := e.swapper.Swap(ctx, venue, e.tokenIn.Address, e.tokenOut.Address, ex.result.AmountIn)
	ex.result.BuyLeg = leg
	if err != nil {
		e.metrics.Swaps.WithLabelValues(venue.Name, metrics.ResultFailed).Inc()
		return "", err
	}
	e.metrics.Swaps.WithLabelValues(venue.Name, metrics.ResultConfirmed).Inc()
	e.metrics.GasUsed.Observe(float64(leg.GasUsed))

	e.audit.Recordf("Buy trade executed on %s: %s, received %s %s (quoted %s)",
		venue.Name, leg.TxHash.Hex(),
		utils.FormatUnits(leg.RealizedOut, e.tokenOut.Decimals), e.tokenOut.Symbol,
		utils.FormatUnits(leg.ExpectedOut, e.tokenOut.Decimals))

	if leg.RealizedOut.Sign() <= 0 {
		// nothing is held, so the position is not unhedged
		leg.Status = types.LegFailed
		return "", fmt.Errorf("%w: buy leg %s credited no %s", types.ErrSwapFailed, leg.TxHash.Hex(), e.tokenOut.Symbol)
	}
	return StateApprovingSell, nil
}

func (e *TradeExecutor) approveSell(ctx context.Context, ex *execution) (State, error) {
	amount := ex.result.BuyLeg.RealizedOut
	receipt, err := e.approvals.EnsureAllowance(ctx, e.ledger.Address(), e.tokenOut, ex.opp.Sell.Venue.Router, amount)
	if receipt != nil {
		ex.result.Approvals = append(ex.result.Approvals, receipt)
	}
	if err != nil {
		return "", err
	}
	return StateSellingOut, nil
}

func (e *TradeExecutor) sell(ctx context.Context, ex *execution) (State, error) {
	venue := ex.opp.Sell.Venue
	leg, err := e.swapper.Swap(ctx, venue, e.tokenOut.Address, e.tokenIn.Address, ex.result.BuyLeg.RealizedOut)
	ex.result.SellLeg = leg
	if err != nil {
		e.metrics.Swaps.WithLabelValues(venue.Name, metrics.ResultFailed).Inc()
		return "", err
	}
	e.metrics.Swaps.WithLabelValues(venue.Name, metrics.ResultConfirmed).Inc()
	e.metrics.GasUsed.Observe(float64(leg.GasUsed))

	e.audit.Recordf("Sell trade executed on %s: %s, received %s %s",
		venue.Name, leg.TxHash.Hex(),
		utils.FormatUnits(leg.RealizedOut, e.tokenIn.Decimals), e.tokenIn.Symbol)

	if leg.RealizedOut.Sign() <= 0 {
		return "", fmt.Errorf("%w: sell leg %s credited no %s", types.ErrSwapFailed, leg.TxHash.Hex(), e.tokenIn.Symbol)
	}
	return StateCompleted, nil
}

func (e *TradeExecutor) recordCompleted(result *TradeResult) {
	profit := result.Profit()
	e.audit.Recordf("Arbitrage completed: %s (%s %s net)",
		result.Direction, utils.FormatUnits(profit, e.tokenIn.Decimals), e.tokenIn.Symbol)
	e.logger.Info("Arbitrage completed",
		zap.String("id", result.ID),
		zap.String("direction", result.Direction),
		zap.String("profit", profit.String()))
}

func (e *TradeExecutor) fail(result *TradeResult, err error) {
	result.FailedAt = result.State
	result.State = StateFailed
	result.Err = fmt.Errorf("arbitrage %s failed at %s: %w", result.ID, result.FailedAt, err)

	e.audit.Recordf("Arbitrage %s failed at %s: %v", result.Direction, result.FailedAt, err)
	if reason, data, ok := types.RevertDetails(err); ok {
		e.audit.Recordf("Revert reason: %s", reason)
		if data != "" {
			e.audit.Recordf("Revert data: %s", data)
		}
	}

	fields := []zap.Field{
		zap.String("id", result.ID),
		zap.String("failed_at", string(result.FailedAt)),
		zap.Error(err),
	}

	if result.Unhedged() {
		held := result.BuyLeg.RealizedOut
		e.audit.Recordf("UNHEDGED POSITION: holding %s %s from buy %s on %s; reconcile manually",
			utils.FormatUnits(held, e.tokenOut.Decimals), e.tokenOut.Symbol,
			result.BuyLeg.TxHash.Hex(), result.BuyLeg.Venue.Name)
		e.logger.Error("Arbitrage left an unhedged position",
			append(fields, zap.String("held", held.String()), zap.String("token", e.tokenOut.Symbol))...)
		return
	}

	e.logger.Error("Arbitrage failed", fields...)
}
