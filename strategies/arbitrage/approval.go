package arbitrage

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/dexarb/audit"
	"github.com/michaelpento.lv/dexarb/gas"
	"github.com/michaelpento.lv/dexarb/ledger"
	"github.com/michaelpento.lv/dexarb/types"
	"github.com/michaelpento.lv/dexarb/utils"
	"github.com/michaelpento.lv/dexarb/utils/metrics"
)

// ApprovalReceipt describes the outcome of EnsureAllowance
type ApprovalReceipt struct {
	Token   types.Token
	Spender common.Address
	Amount  *big.Int
	// Skipped is set when the existing allowance already covered Amount
	Skipped bool
	TxHash  common.Hash
	Receipt *ethtypes.Receipt
}

// ApprovalManager makes sure a router may spend the wallet's tokens,
// approving only when the current allowance is insufficient
type ApprovalManager struct {
	ledger  ledger.Client
	gas     gas.Source
	audit   audit.Recorder
	metrics *metrics.ArbitrageMetrics
	logger  *zap.Logger
}

// NewApprovalManager creates a new approval manager
func NewApprovalManager(client ledger.Client, gasSource gas.Source, recorder audit.Recorder, m *metrics.ArbitrageMetrics, logger *zap.Logger) *ApprovalManager {
	return &ApprovalManager{
		ledger:  client,
		gas:     gasSource,
		audit:   recorder,
		metrics: m,
		logger:  logger,
	}
}

// EnsureAllowance guarantees spender may transfer at least amount of token
// from owner. It blocks until any approval transaction is confirmed.
func (m *ApprovalManager) EnsureAllowance(ctx context.Context, owner common.Address, token types.Token, spender common.Address, amount *big.Int) (*ApprovalReceipt, error) {
	if owner != m.ledger.Address() {
		return nil, fmt.Errorf("%w: owner %s is not the signing wallet %s",
			types.ErrApprovalFailed, owner.Hex(), m.ledger.Address().Hex())
	}

	result := &ApprovalReceipt{Token: token, Spender: spender, Amount: new(big.Int).Set(amount)}

	current, err := m.ledger.AllowanceOf(ctx, token.Address, owner, spender)
	if err != nil {
		return nil, m.fail(token, spender, fmt.Errorf("failed to query allowance: %w", err))
	}

	if current.Cmp(amount) >= 0 {
		result.Skipped = true
		m.metrics.Approvals.WithLabelValues(metrics.ResultSkipped).Inc()
		m.audit.Recordf("Allowance of %s %s for %s already covers %s, skipping approval",
			utils.FormatUnits(current, token.Decimals), token.Symbol, spender.Hex(),
			utils.FormatUnits(amount, token.Decimals))
		return result, nil
	}

	gasParams, err := m.gas.Params(ctx, gas.OpApprove)
	if err != nil {
		return nil, m.fail(token, spender, err)
	}

	tx, err := m.ledger.WriteCall(ctx, ledger.NewContract(token.Address, ledger.ERC20ABI), "approve", gasParams, spender, amount)
	if err != nil {
		return nil, m.fail(token, spender, err)
	}
	result.TxHash = tx.Hash()
	m.metrics.Approvals.WithLabelValues(metrics.ResultSubmitted).Inc()
	m.audit.Recordf("Approved %s %s for %s: %s",
		utils.FormatUnits(amount, token.Decimals), token.Symbol, spender.Hex(), tx.Hash().Hex())

	receipt, err := m.ledger.WaitConfirmed(ctx, tx)
	if err != nil {
		return result, m.fail(token, spender, err)
	}
	result.Receipt = receipt
	m.metrics.GasUsed.Observe(float64(receipt.GasUsed))

	m.logger.Info("Approval confirmed",
		zap.String("token", token.Symbol),
		zap.String("spender", spender.Hex()),
		zap.String("amount", amount.String()),
		zap.String("tx_hash", tx.Hash().Hex()))

	return result, nil
}

func (m *ApprovalManager) fail(token types.Token, spender common.Address, err error) error {
	m.metrics.Approvals.WithLabelValues(metrics.ResultFailed).Inc()
	return fmt.Errorf("%w: %s for %s: %w", types.ErrApprovalFailed, token.Symbol, spender.Hex(), err)
}
