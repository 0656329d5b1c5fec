package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/michaelpento.lv/dexarb/types"
)

// EthLedger implements Client on top of a JSON-RPC node
type EthLedger struct {
	client  *ethclient.Client
	lctx    Context
	chainID *big.Int
	from    common.Address
	limiter *rate.Limiter
	logger  *zap.Logger
}

// Dial connects to the node described by lctx
func Dial(ctx context.Context, lctx Context, logger *zap.Logger) (*EthLedger, error) {
	if lctx.PrivateKey == nil {
		return nil, fmt.Errorf("%w: private key is required", types.ErrInvalidConfiguration)
	}

	client, err := ethclient.DialContext(ctx, lctx.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Ethereum node: %w", err)
	}

	chainID := lctx.ChainID
	if chainID == nil {
		chainID, err = client.ChainID(ctx)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to get chain id: %w", err)
		}
	}

	limit := lctx.RateLimit
	if limit <= 0 {
		limit = rate.Inf
	}
	burst := lctx.Burst
	if burst <= 0 {
		burst = 1
	}

	l := &EthLedger{
		client:  client,
		lctx:    lctx,
		chainID: chainID,
		from:    lctx.From(),
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
	}

	logger.Info("Connected to Ethereum node",
		zap.String("chain_id", chainID.String()),
		zap.String("wallet", l.from.Hex()))

	return l, nil
}

// Address returns the signing wallet
func (l *EthLedger) Address() common.Address {
	return l.from
}

// Close releases the RPC connection
func (l *EthLedger) Close() {
	l.client.Close()
}

// SuggestGasPrice exposes the node's legacy gas price suggestion
func (l *EthLedger) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return l.client.SuggestGasPrice(ctx)
}

// ReadCall performs a read-only call against contract
func (l *EthLedger) ReadCall(ctx context.Context, contract Contract, method string, args ...interface{}) ([]interface{}, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	bound := bind.NewBoundContract(contract.Address, contract.ABI, l.client, l.client, l.client)

	var out []interface{}
	if err := bound.Call(&bind.CallOpts{Context: ctx, From: l.from}, &out, method, args...); err != nil {
		return nil, fmt.Errorf("call %s on %s: %w", method, contract.Address.Hex(), err)
	}
	return out, nil
}

// WriteCall signs and broadcasts a transaction calling method on contract
func (l *EthLedger) WriteCall(ctx context.Context, contract Contract, method string, gas GasParams, args ...interface{}) (*ethtypes.Transaction, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	opts, err := bind.NewKeyedTransactorWithChainID(l.lctx.PrivateKey, l.chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %w", err)
	}
	opts.Context = ctx
	opts.GasLimit = gas.GasLimit
	if gas.GasPrice != nil {
		opts.GasPrice = new(big.Int).Set(gas.GasPrice)
	}

	bound := bind.NewBoundContract(contract.Address, contract.ABI, l.client, l.client, l.client)
	tx, err := bound.Transact(opts, method, args...)
	if err != nil {
		// bind only estimates gas, and so replays the call, when GasLimit is zero
		if revert := RevertFromError(err, common.Hash{}); revert != nil {
			return nil, fmt.Errorf("send %s to %s: %w", method, contract.Address.Hex(), revert)
		}
		return nil, fmt.Errorf("send %s to %s: %w", method, contract.Address.Hex(), err)
	}

	l.logger.Debug("Transaction sent",
		zap.String("method", method),
		zap.String("to", contract.Address.Hex()),
		zap.String("tx_hash", tx.Hash().Hex()),
		zap.Uint64("nonce", tx.Nonce()))

	return tx, nil
}

// WaitConfirmed waits for tx to be mined, bounded by the confirmation timeout
func (l *EthLedger) WaitConfirmed(ctx context.Context, tx *ethtypes.Transaction) (*ethtypes.Receipt, error) {
	waitCtx := ctx
	if l.lctx.ConfirmationTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, l.lctx.ConfirmationTimeout)
		defer cancel()
	}

	receipt, err := bind.WaitMined(waitCtx, l.client, tx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: tx %s not confirmed within %s",
				types.ErrConfirmationTimeout, tx.Hash().Hex(), l.lctx.ConfirmationTimeout)
		}
		return nil, fmt.Errorf("wait for tx %s: %w", tx.Hash().Hex(), err)
	}

	if receipt.Status == ethtypes.ReceiptStatusFailed {
		return receipt, l.replayRevert(ctx, tx, receipt)
	}

	return receipt, nil
}

// replayRevert re-executes a failed transaction at its block to recover the revert reason
func (l *EthLedger) replayRevert(ctx context.Context, tx *ethtypes.Transaction, receipt *ethtypes.Receipt) error {
	msg := ethereum.CallMsg{
		From:     l.from,
		To:       tx.To(),
		Gas:      tx.Gas(),
		GasPrice: tx.GasPrice(),
		Value:    tx.Value(),
		Data:     tx.Data(),
	}
	_, err := l.client.CallContract(ctx, msg, receipt.BlockNumber)
	if revert := RevertFromError(err, tx.Hash()); revert != nil {
		return revert
	}
	return &types.RevertError{TxHash: tx.Hash()}
}

// BalanceOf returns the token balance of owner
func (l *EthLedger) BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	out, err := l.ReadCall(ctx, NewContract(token, ERC20ABI), "balanceOf", owner)
	if err != nil {
		return nil, err
	}
	return FirstBigInt(out)
}

// AllowanceOf returns the amount spender may transfer on behalf of owner
func (l *EthLedger) AllowanceOf(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	out, err := l.ReadCall(ctx, NewContract(token, ERC20ABI), "allowance", owner, spender)
	if err != nil {
		return nil, err
	}
	return FirstBigInt(out)
}

// FirstBigInt extracts a single uint256 result
func FirstBigInt(out []interface{}) (*big.Int, error) {
	if len(out) == 0 {
		return nil, fmt.Errorf("empty call result")
	}
	value, ok := out[0].(*big.Int)
	if !ok || value == nil {
		return nil, fmt.Errorf("unexpected result type %T", out[0])
	}
	return value, nil
}
