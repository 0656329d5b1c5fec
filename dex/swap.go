package dex

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/dexarb/gas"
	"github.com/michaelpento.lv/dexarb/ledger"
	"github.com/michaelpento.lv/dexarb/types"
)

// DefaultSwapDeadline is how long a submitted swap stays valid on-chain
const DefaultSwapDeadline = 5 * time.Minute

// RouterSwapper submits swapExactTokensForTokens on a venue router
type RouterSwapper struct {
	ledger   ledger.Client
	gas      gas.Source
	deadline time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewRouterSwapper creates a swapper; a zero deadline uses DefaultSwapDeadline
func NewRouterSwapper(client ledger.Client, gasSource gas.Source, deadline time.Duration, logger *zap.Logger) *RouterSwapper {
	if deadline <= 0 {
		deadline = DefaultSwapDeadline
	}
	return &RouterSwapper{
		ledger:   client,
		gas:      gasSource,
		deadline: deadline,
		logger:   logger,
		now:      time.Now,
	}
}

// Swap trades amountIn of tokenIn for tokenOut on venue and waits for the
// transaction to confirm. The returned leg carries the output actually
// credited to the wallet, read from the receipt's Transfer logs. On failure
// the leg is still returned when a transaction was submitted.
func (s *RouterSwapper) Swap(ctx context.Context, venue types.Venue, tokenIn, tokenOut common.Address, amountIn *big.Int) (*types.TradeLeg, error) {
	wallet := s.ledger.Address()
	router := ledger.NewContract(venue.Router, RouterABI)
	path := []common.Address{tokenIn, tokenOut}

	leg := &types.TradeLeg{
		Venue:    venue,
		TokenIn:  tokenIn,
		TokenOut: tokenOut,
		AmountIn: new(big.Int).Set(amountIn),
		Status:   types.LegPending,
	}

	fail := func(err error) (*types.TradeLeg, error) {
		leg.Status = types.LegFailed
		return leg, fmt.Errorf("%w: %s: %w", types.ErrSwapFailed, venue.Name, err)
	}

	expected, err := s.EstimateOut(ctx, venue, amountIn, path)
	if err != nil {
		return fail(err)
	}
	leg.ExpectedOut = expected

	gasParams, err := s.gas.Params(ctx, gas.OpSwap)
	if err != nil {
		return fail(err)
	}

	// amountOutMin of zero: slippage protection is out of scope
	deadline := big.NewInt(s.now().Add(s.deadline).Unix())
	tx, err := s.ledger.WriteCall(ctx, router, "swapExactTokensForTokens", gasParams,
		amountIn, big.NewInt(0), path, wallet, deadline)
	if err != nil {
		return fail(err)
	}
	leg.TxHash = tx.Hash()

	s.logger.Info("Swap submitted",
		zap.String("venue", venue.Name),
		zap.String("tx_hash", tx.Hash().Hex()),
		zap.String("amount_in", amountIn.String()),
		zap.String("expected_out", expected.String()))

	receipt, err := s.ledger.WaitConfirmed(ctx, tx)
	if err != nil {
		return fail(err)
	}
	leg.GasUsed = receipt.GasUsed

	realized, err := RealizedOutput(receipt, tokenOut, wallet)
	if err != nil {
		return fail(err)
	}
	leg.RealizedOut = realized
	leg.Status = types.LegConfirmed

	return leg, nil
}

// EstimateOut asks the router for the output of swapping amountIn along path
func (s *RouterSwapper) EstimateOut(ctx context.Context, venue types.Venue, amountIn *big.Int, path []common.Address) (*big.Int, error) {
	out, err := s.ledger.ReadCall(ctx, ledger.NewContract(venue.Router, RouterABI), "getAmountsOut", amountIn, path)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty getAmountsOut result")
	}
	amounts, ok := out[0].([]*big.Int)
	if !ok || len(amounts) != len(path) {
		return nil, fmt.Errorf("unexpected getAmountsOut result %v", out[0])
	}
	return amounts[len(amounts)-1], nil
}

// RealizedOutput sums the ERC20 Transfer events of token to recipient in receipt
func RealizedOutput(receipt *ethtypes.Receipt, token, recipient common.Address) (*big.Int, error) {
	transfer := ledger.ERC20ABI.Events["Transfer"]
	total := new(big.Int)
	found := false

	for _, log := range receipt.Logs {
		if log.Address != token || len(log.Topics) != 3 || log.Topics[0] != transfer.ID {
			continue
		}
		if common.BytesToAddress(log.Topics[2].Bytes()) != recipient {
			continue
		}

		values, err := ledger.ERC20ABI.Unpack("Transfer", log.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode Transfer log: %w", err)
		}
		value, err := ledger.FirstBigInt(values)
		if err != nil {
			return nil, fmt.Errorf("failed to decode Transfer value: %w", err)
		}
		total.Add(total, value)
		found = true
	}

	if !found {
		return nil, fmt.Errorf("no transfer of %s to %s in tx %s", token.Hex(), recipient.Hex(), receipt.TxHash.Hex())
	}
	return total, nil
}
