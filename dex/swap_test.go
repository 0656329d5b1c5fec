package dex

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/michaelpento.lv/dexarb/gas"
	"github.com/michaelpento.lv/dexarb/types"
	"github.com/michaelpento.lv/dexarb/utils/testutils"
)

func newSwapper(t *testing.T, fake *testutils.FakeLedger) *RouterSwapper {
	est := gas.NewEstimator(nil, gas.Config{GasPrice: big.NewInt(50_000_000_000)}, zaptest.NewLogger(t))
	return NewRouterSwapper(fake, est, 0, zaptest.NewLogger(t))
}

func TestSwapUsesRealizedOutput(t *testing.T) {
	fake := testutils.NewFakeLedger()
	fake.RealizedOut[testutils.SushiswapRouter] = testutils.Units(990)

	_, sushi := testVenues(t)
	leg, err := newSwapper(t, fake).Swap(context.Background(), sushi, testutils.TokenA, testutils.TokenB, testutils.Units(1))
	require.NoError(t, err)

	assert.Equal(t, types.LegConfirmed, leg.Status)
	assert.Equal(t, testutils.Units(1000), leg.ExpectedOut)
	assert.Equal(t, testutils.Units(990), leg.RealizedOut)
	assert.NotEqual(t, common.Hash{}, leg.TxHash)
	assert.Equal(t, []string{"swapExactTokensForTokens"}, fake.WriteMethods())

	swap := fake.Writes[0]
	assert.Equal(t, testutils.SushiswapRouter, swap.Contract)
	assert.Equal(t, testutils.Units(1), swap.Args[0])
	assert.Equal(t, []common.Address{testutils.TokenA, testutils.TokenB}, swap.Args[2])
	assert.Equal(t, testutils.Wallet, swap.Args[3])
}

func TestSwapRevert(t *testing.T) {
	fake := testutils.NewFakeLedger()
	fake.Reverts["swapExactTokensForTokens"] = "UniswapV2: K"

	uni, _ := testVenues(t)
	leg, err := newSwapper(t, fake).Swap(context.Background(), uni, testutils.TokenB, testutils.TokenA, testutils.Units(1000))
	require.Error(t, err)

	assert.True(t, errors.Is(err, types.ErrSwapFailed))
	assert.True(t, errors.Is(err, types.ErrTxReverted))
	assert.Equal(t, types.LegFailed, leg.Status)
	assert.NotEqual(t, common.Hash{}, leg.TxHash)

	reason, _, ok := types.RevertDetails(err)
	assert.True(t, ok)
	assert.Equal(t, "UniswapV2: K", reason)
}

func TestSwapConfirmationTimeout(t *testing.T) {
	fake := testutils.NewFakeLedger()
	fake.ConfirmErrors["swapExactTokensForTokens"] = types.ErrConfirmationTimeout

	uni, _ := testVenues(t)
	_, err := newSwapper(t, fake).Swap(context.Background(), uni, testutils.TokenA, testutils.TokenB, testutils.Units(1))
	assert.True(t, errors.Is(err, types.ErrSwapFailed))
	assert.True(t, errors.Is(err, types.ErrConfirmationTimeout))
}

func TestRealizedOutputIgnoresOtherTransfers(t *testing.T) {
	fake := testutils.NewFakeLedger()
	uni, _ := testVenues(t)
	leg, err := newSwapper(t, fake).Swap(context.Background(), uni, testutils.TokenA, testutils.TokenB, testutils.Units(2))
	require.NoError(t, err)
	assert.Equal(t, testutils.Units(2400), leg.RealizedOut)

	_, err = RealizedOutput(&ethtypes.Receipt{}, testutils.TokenB, testutils.Wallet)
	assert.Error(t, err)
}
