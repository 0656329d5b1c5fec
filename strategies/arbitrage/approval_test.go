package arbitrage

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelpento.lv/dexarb/types"
	"github.com/michaelpento.lv/dexarb/utils/metrics"
	"github.com/michaelpento.lv/dexarb/utils/testutils"
)

func TestEnsureAllowanceApprovesExactAmount(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	receipt, err := h.approvals.EnsureAllowance(ctx, testutils.Wallet, h.tokenA, testutils.UniswapRouter, testutils.Units(3))
	require.NoError(t, err)

	assert.False(t, receipt.Skipped)
	assert.NotEqual(t, common.Hash{}, receipt.TxHash)
	require.NotNil(t, receipt.Receipt)
	assert.Equal(t, []string{"approve"}, h.fake.WriteMethods())

	approve := h.fake.Writes[0]
	assert.Equal(t, testutils.TokenA, approve.Contract)
	assert.Equal(t, testutils.UniswapRouter, approve.Args[0])
	assert.Equal(t, testutils.Units(3), approve.Args[1])

	assert.True(t, h.audit.contains("Approved 3 WETH for "+testutils.UniswapRouter.Hex()))
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.Approvals.WithLabelValues(metrics.ResultSubmitted)))
}

func TestEnsureAllowanceIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := h.approvals.EnsureAllowance(ctx, testutils.Wallet, h.tokenA, testutils.UniswapRouter, testutils.Units(1))
		require.NoError(t, err)
	}

	assert.Equal(t, 1, h.fake.CountWrites("approve"))
	assert.Equal(t, float64(2), testutil.ToFloat64(h.metrics.Approvals.WithLabelValues(metrics.ResultSkipped)))
}

func TestEnsureAllowanceSkipsWhenCovered(t *testing.T) {
	h := newHarness(t)
	h.fake.SetAllowance(testutils.TokenB, testutils.SushiswapRouter, testutils.Units(5000))

	receipt, err := h.approvals.EnsureAllowance(context.Background(), testutils.Wallet, h.tokenB, testutils.SushiswapRouter, testutils.Units(5000))
	require.NoError(t, err)

	assert.True(t, receipt.Skipped)
	assert.Empty(t, h.fake.Writes)
	assert.True(t, h.audit.contains("skipping approval"))
}

func TestEnsureAllowanceRejectsForeignOwner(t *testing.T) {
	h := newHarness(t)
	other := common.HexToAddress("0x00000000000000000000000000000000000000b2")

	_, err := h.approvals.EnsureAllowance(context.Background(), other, h.tokenA, testutils.UniswapRouter, testutils.Units(1))
	assert.True(t, errors.Is(err, types.ErrApprovalFailed))
	assert.Empty(t, h.fake.Reads)
	assert.Empty(t, h.fake.Writes)
}

func TestEnsureAllowanceFailures(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(f *testutils.FakeLedger)
		wantErr error
	}{
		{
			name:    "allowance read fails",
			setup:   func(f *testutils.FakeLedger) { f.ReadErrors["allowance"] = errors.New("connection refused") },
			wantErr: types.ErrApprovalFailed,
		},
		{
			name:    "submission rejected",
			setup:   func(f *testutils.FakeLedger) { f.WriteErrors["approve"] = errors.New("insufficient funds for gas") },
			wantErr: types.ErrApprovalFailed,
		},
		{
			name:    "reverted",
			setup:   func(f *testutils.FakeLedger) { f.Reverts["approve"] = "ERC20: approve to the zero address" },
			wantErr: types.ErrTxReverted,
		},
		{
			name:    "confirmation timeout",
			setup:   func(f *testutils.FakeLedger) { f.ConfirmErrors["approve"] = types.ErrConfirmationTimeout },
			wantErr: types.ErrConfirmationTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			tt.setup(h.fake)

			_, err := h.approvals.EnsureAllowance(context.Background(), testutils.Wallet, h.tokenA, testutils.UniswapRouter, testutils.Units(1))
			require.Error(t, err)
			assert.True(t, errors.Is(err, types.ErrApprovalFailed))
			assert.True(t, errors.Is(err, tt.wantErr))
			assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.Approvals.WithLabelValues(metrics.ResultFailed)))
		})
	}
}
