package gas

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type stubSuggester struct {
	price *big.Int
	err   error
	calls int
}

func (s *stubSuggester) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return new(big.Int).Set(s.price), nil
}

func TestFixedGasPrice(t *testing.T) {
	fixed := big.NewInt(50_000_000_000) // 50 gwei
	suggester := &stubSuggester{price: big.NewInt(1)}
	est := NewEstimator(suggester, Config{GasPrice: fixed}, zaptest.NewLogger(t))

	params, err := est.Params(context.Background(), OpApprove)
	require.NoError(t, err)
	assert.Equal(t, uint64(100000), params.GasLimit)
	assert.Equal(t, fixed, params.GasPrice)
	assert.Zero(t, suggester.calls)

	params, err = est.Params(context.Background(), OpAddLiquidity)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000000), params.GasLimit)
}

func TestSuggestedPriceIsCappedAndCached(t *testing.T) {
	suggester := &stubSuggester{price: big.NewInt(900)}
	est := NewEstimator(suggester, Config{MaxGasPrice: big.NewInt(500)}, zaptest.NewLogger(t))

	params, err := est.Params(context.Background(), OpSwap)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(500), params.GasPrice)

	_, err = est.Params(context.Background(), OpSwap)
	require.NoError(t, err)
	assert.Equal(t, 1, suggester.calls)
}

func TestSuggesterError(t *testing.T) {
	est := NewEstimator(&stubSuggester{err: errors.New("rpc down")}, Config{}, zaptest.NewLogger(t))

	_, err := est.Params(context.Background(), OpSwap)
	assert.Error(t, err)
}

func TestConfiguredLimitsAndCycleBudget(t *testing.T) {
	est := NewEstimator(nil, Config{Limits: map[Operation]uint64{OpSwap: 300000}}, zaptest.NewLogger(t))

	params, err := est.Params(context.Background(), OpSwap)
	require.NoError(t, err)
	assert.Equal(t, uint64(300000), params.GasLimit)
	assert.Nil(t, params.GasPrice)

	assert.Equal(t, uint64(2*(100000+300000)), est.EstimateArbitrageGas())

	cost, err := est.EstimateGasCost(context.Background(), 21000)
	require.NoError(t, err)
	assert.Nil(t, cost)
}
