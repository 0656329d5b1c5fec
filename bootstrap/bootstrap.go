package bootstrap

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/dexarb/dex"
	"github.com/michaelpento.lv/dexarb/gas"
	"github.com/michaelpento.lv/dexarb/ledger"
	"github.com/michaelpento.lv/dexarb/strategies/arbitrage"
	"github.com/michaelpento.lv/dexarb/types"
	"github.com/michaelpento.lv/dexarb/utils"
)

// Funding is the liquidity and price seeded on one venue
type Funding struct {
	Venue      types.Venue
	LiquidityA *big.Int
	LiquidityB *big.Int
	Price      *big.Int
}

// Plan lists what the bootstrapper mints and seeds
type Plan struct {
	MintA  *big.Int
	MintB  *big.Int
	Venues []Funding
}

// LiquidityBootstrapper funds the wallet and prepares both venues so the
// arbitrage flow has liquidity and a price gap to act on
type LiquidityBootstrapper struct {
	ledger    ledger.Client
	quotes    *dex.QuoteFetcher
	approvals *arbitrage.ApprovalManager
	gas       gas.Source
	tokenA    types.Token
	tokenB    types.Token
	logger    *zap.Logger
}

// NewLiquidityBootstrapper creates a new bootstrapper
func NewLiquidityBootstrapper(
	client ledger.Client,
	quotes *dex.QuoteFetcher,
	approvals *arbitrage.ApprovalManager,
	gasSource gas.Source,
	tokenA, tokenB types.Token,
	logger *zap.Logger,
) *LiquidityBootstrapper {
	return &LiquidityBootstrapper{
		ledger:    client,
		quotes:    quotes,
		approvals: approvals,
		gas:       gasSource,
		tokenA:    tokenA,
		tokenB:    tokenB,
		logger:    logger,
	}
}

// Run mints, approves, adds liquidity and sets prices. Liquidity failures
// are logged and skipped; any other failure aborts.
func (b *LiquidityBootstrapper) Run(ctx context.Context, plan Plan) error {
	if len(plan.Venues) == 0 {
		return fmt.Errorf("%w: bootstrap plan has no venues", types.ErrInvalidConfiguration)
	}

	last := plan.Venues[len(plan.Venues)-1].Venue
	for _, token := range []types.Token{b.tokenA, b.tokenB} {
		if err := b.logHoldings(ctx, token, last.Router); err != nil {
			return err
		}
	}

	if err := b.mint(ctx, b.tokenA, plan.MintA); err != nil {
		return err
	}
	if err := b.mint(ctx, b.tokenB, plan.MintB); err != nil {
		return err
	}

	wallet := b.ledger.Address()
	for _, f := range plan.Venues {
		if _, err := b.approvals.EnsureAllowance(ctx, wallet, b.tokenA, f.Venue.Router, f.LiquidityA); err != nil {
			return err
		}
		if _, err := b.approvals.EnsureAllowance(ctx, wallet, b.tokenB, f.Venue.Router, f.LiquidityB); err != nil {
			return err
		}
	}

	for _, f := range plan.Venues {
		if err := b.addLiquidity(ctx, f.Venue); err != nil {
			fields := []zap.Field{zap.String("venue", f.Venue.Name), zap.Error(err)}
			if reason, data, ok := types.RevertDetails(err); ok {
				fields = append(fields, zap.String("revert_reason", reason), zap.String("revert_data", data))
			}
			b.logger.Error("Adding liquidity failed, continuing", fields...)
		}
	}

	for _, f := range plan.Venues {
		if err := b.setPrice(ctx, f.Venue, f.Price); err != nil {
			return err
		}
	}

	b.logger.Info("Bootstrap finished", zap.Int("venues", len(plan.Venues)))
	return nil
}

func (b *LiquidityBootstrapper) logHoldings(ctx context.Context, token types.Token, spender common.Address) error {
	wallet := b.ledger.Address()
	balance, err := b.ledger.BalanceOf(ctx, token.Address, wallet)
	if err != nil {
		return fmt.Errorf("failed to read %s balance: %w", token.Symbol, err)
	}
	allowance, err := b.ledger.AllowanceOf(ctx, token.Address, wallet, spender)
	if err != nil {
		return fmt.Errorf("failed to read %s allowance: %w", token.Symbol, err)
	}

	b.logger.Info("Wallet holdings",
		zap.String("token", token.Symbol),
		zap.String("balance", utils.FormatUnits(balance, token.Decimals)),
		zap.String("spender", spender.Hex()),
		zap.String("allowance", utils.FormatUnits(allowance, token.Decimals)))
	return nil
}

func (b *LiquidityBootstrapper) mint(ctx context.Context, token types.Token, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	b.logger.Info("Minting tokens",
		zap.String("token", token.Symbol),
		zap.String("amount", utils.FormatUnits(amount, token.Decimals)),
		zap.String("to", b.ledger.Address().Hex()))

	contract := ledger.NewContract(token.Address, ledger.ERC20ABI)
	if _, err := b.submit(ctx, contract, "mint", gas.OpMint, b.ledger.Address(), amount); err != nil {
		return fmt.Errorf("failed to mint %s: %w", token.Symbol, err)
	}
	return nil
}

func (b *LiquidityBootstrapper) addLiquidity(ctx context.Context, venue types.Venue) error {
	token0, err := b.quotes.TokenOrder(ctx, venue)
	if err != nil {
		return fmt.Errorf("failed to read pair tokens: %w", err)
	}

	first, second := b.tokenB.Address, b.tokenA.Address
	if token0 == b.tokenA.Address {
		first, second = b.tokenA.Address, b.tokenB.Address
	}

	if quote, err := b.quotes.Fetch(ctx, venue); err == nil {
		b.logger.Info("Pair reserves before liquidity",
			zap.String("venue", venue.Name),
			zap.String("token0", token0.Hex()),
			zap.String(b.tokenA.Symbol, utils.FormatUnits(quote.ReserveA, b.tokenA.Decimals)),
			zap.String(b.tokenB.Symbol, utils.FormatUnits(quote.ReserveB, b.tokenB.Decimals)))
	} else {
		b.logger.Warn("Failed to read pair reserves", zap.String("venue", venue.Name), zap.Error(err))
	}

	contract := ledger.NewContract(venue.Router, dex.RouterABI)
	if _, err := b.submit(ctx, contract, "addLiquidity", gas.OpAddLiquidity, first, second); err != nil {
		return err
	}
	b.logger.Info("Liquidity added", zap.String("venue", venue.Name))
	return nil
}

func (b *LiquidityBootstrapper) setPrice(ctx context.Context, venue types.Venue, price *big.Int) error {
	if price == nil || price.Sign() <= 0 {
		return fmt.Errorf("%w: price for %s must be positive", types.ErrInvalidConfiguration, venue.Name)
	}
	b.logger.Info("Setting venue price",
		zap.String("venue", venue.Name),
		zap.String("price", utils.FormatUnits(price, b.tokenB.Decimals)))

	contract := ledger.NewContract(venue.Router, dex.RouterABI)
	if _, err := b.submit(ctx, contract, "setPrice", gas.OpSetPrice, price); err != nil {
		return fmt.Errorf("failed to set price on %s: %w", venue.Name, err)
	}
	return nil
}

func (b *LiquidityBootstrapper) submit(ctx context.Context, contract ledger.Contract, method string, op gas.Operation, args ...interface{}) (*ethtypes.Receipt, error) {
	params, err := b.gas.Params(ctx, op)
	if err != nil {
		return nil, err
	}

	tx, err := b.ledger.WriteCall(ctx, contract, method, params, args...)
	if err != nil {
		return nil, err
	}
	b.logger.Info("Transaction sent", zap.String("method", method), zap.String("tx_hash", tx.Hash().Hex()))

	receipt, err := b.ledger.WaitConfirmed(ctx, tx)
	if err != nil {
		return receipt, err
	}
	b.logger.Debug("Transaction confirmed",
		zap.String("method", method),
		zap.Uint64("gas_used", receipt.GasUsed),
		zap.Uint64("block", receipt.BlockNumber.Uint64()))
	return receipt, nil
}
