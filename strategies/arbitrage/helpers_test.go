package arbitrage

import (
	"fmt"
	"math/big"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/michaelpento.lv/dexarb/dex"
	"github.com/michaelpento.lv/dexarb/gas"
	"github.com/michaelpento.lv/dexarb/types"
	"github.com/michaelpento.lv/dexarb/utils/metrics"
	"github.com/michaelpento.lv/dexarb/utils/testutils"
)

// memRecorder keeps audit records in memory
type memRecorder struct {
	mu      sync.Mutex
	records []string
}

func (r *memRecorder) Record(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, message)
}

func (r *memRecorder) Recordf(format string, args ...interface{}) {
	r.Record(fmt.Sprintf(format, args...))
}

func (r *memRecorder) contains(substr string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records {
		if strings.Contains(rec, substr) {
			return true
		}
	}
	return false
}

type harness struct {
	fake      *testutils.FakeLedger
	audit     *memRecorder
	metrics   *metrics.ArbitrageMetrics
	estimator *gas.Estimator
	approvals *ApprovalManager
	executor  *TradeExecutor
	tokenA    types.Token
	tokenB    types.Token
	uniswap   types.Venue
	sushiswap types.Venue
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := zaptest.NewLogger(t)

	tokenA, err := types.NewToken("WETH", testutils.TokenA)
	require.NoError(t, err)
	tokenB, err := types.NewToken("DAI", testutils.TokenB)
	require.NoError(t, err)
	uni, err := types.NewVenue("uniswap", testutils.UniswapRouter, testutils.UniswapPair)
	require.NoError(t, err)
	sushi, err := types.NewVenue("sushiswap", testutils.SushiswapRouter, testutils.SushiswapPair)
	require.NoError(t, err)

	h := &harness{
		fake:      testutils.NewFakeLedger(),
		audit:     &memRecorder{},
		metrics:   metrics.NewArbitrageMetrics("test"),
		estimator: gas.NewEstimator(nil, gas.Config{GasPrice: big.NewInt(20_000_000_000)}, logger),
		tokenA:    tokenA,
		tokenB:    tokenB,
		uniswap:   uni,
		sushiswap: sushi,
	}
	h.approvals = NewApprovalManager(h.fake, h.estimator, h.audit, h.metrics, logger)
	swapper := dex.NewRouterSwapper(h.fake, h.estimator, 0, logger)
	h.executor = NewTradeExecutor(h.fake, h.approvals, swapper, tokenA, tokenB, h.audit, h.metrics, logger)
	return h
}

func (h *harness) pipeline(t *testing.T) *Pipeline {
	t.Helper()
	logger := zaptest.NewLogger(t)
	fetcher, err := dex.NewQuoteFetcher(h.fake, testutils.TokenA, testutils.TokenB, logger)
	require.NoError(t, err)

	cfg := PipelineConfig{
		VenueA:   h.uniswap,
		VenueB:   h.sushiswap,
		TokenA:   h.tokenA,
		TokenB:   h.tokenB,
		AmountIn: testutils.Units(1),
	}
	return NewPipeline(cfg, h.fake, fetcher, h.executor, h.estimator, h.audit, h.metrics, logger)
}

// opportunity buys on sushiswap (1000) and sells on uniswap (1200)
func (h *harness) opportunity() *types.Opportunity {
	return &types.Opportunity{
		Buy:    &types.Quote{Venue: h.sushiswap, Price: testutils.Units(1000)},
		Sell:   &types.Quote{Venue: h.uniswap, Price: testutils.Units(1200)},
		Spread: testutils.Units(200),
	}
}
