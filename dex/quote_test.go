package dex

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/michaelpento.lv/dexarb/types"
	"github.com/michaelpento.lv/dexarb/utils/testutils"
)

func testVenues(t *testing.T) (types.Venue, types.Venue) {
	uni, err := types.NewVenue("uniswap", testutils.UniswapRouter, testutils.UniswapPair)
	require.NoError(t, err)
	sushi, err := types.NewVenue("sushiswap", testutils.SushiswapRouter, testutils.SushiswapPair)
	require.NoError(t, err)
	return uni, sushi
}

func TestFetchQuote(t *testing.T) {
	fake := testutils.NewFakeLedger()
	fetcher, err := NewQuoteFetcher(fake, testutils.TokenA, testutils.TokenB, zaptest.NewLogger(t))
	require.NoError(t, err)

	uni, _ := testVenues(t)
	quote, err := fetcher.Fetch(context.Background(), uni)
	require.NoError(t, err)

	assert.Equal(t, testutils.Units(1200), quote.Price)
	// token0 is TokenB, so reserve1 is the TokenA side
	assert.Equal(t, testutils.Units(3000), quote.ReserveA)
	assert.Equal(t, testutils.Units(3600000), quote.ReserveB)
	assert.Equal(t, uint32(1700000000), quote.BlockTimestamp)
	assert.False(t, quote.ObservedAt.IsZero())
}

func TestFetchQuoteTokenAFirst(t *testing.T) {
	fake := testutils.NewFakeLedger()
	fake.Token0[testutils.SushiswapPair] = testutils.TokenA
	fake.Reserves[testutils.SushiswapPair] = [2]*big.Int{testutils.Units(1000), testutils.Units(1000000)}

	fetcher, err := NewQuoteFetcher(fake, testutils.TokenA, testutils.TokenB, zaptest.NewLogger(t))
	require.NoError(t, err)

	_, sushi := testVenues(t)
	quote, err := fetcher.Fetch(context.Background(), sushi)
	require.NoError(t, err)
	assert.Equal(t, testutils.Units(1000), quote.ReserveA)
	assert.Equal(t, testutils.Units(1000000), quote.ReserveB)
}

func TestPairOrderingIsCached(t *testing.T) {
	fake := testutils.NewFakeLedger()
	fetcher, err := NewQuoteFetcher(fake, testutils.TokenA, testutils.TokenB, zaptest.NewLogger(t))
	require.NoError(t, err)

	uni, _ := testVenues(t)
	for i := 0; i < 3; i++ {
		_, err := fetcher.Fetch(context.Background(), uni)
		require.NoError(t, err)
	}

	token0Reads := 0
	for _, r := range fake.Reads {
		if r.Method == "token0" {
			token0Reads++
		}
	}
	assert.Equal(t, 1, token0Reads)
}

func TestFetchQuoteReadFailure(t *testing.T) {
	fake := testutils.NewFakeLedger()
	fake.ReadErrors["getReserves"] = errors.New("connection reset")

	fetcher, err := NewQuoteFetcher(fake, testutils.TokenA, testutils.TokenB, zaptest.NewLogger(t))
	require.NoError(t, err)

	uni, _ := testVenues(t)
	_, err = fetcher.Fetch(context.Background(), uni)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrVenueUnreachable))
	assert.Empty(t, fake.Writes)
}

func TestFetchQuoteForeignPair(t *testing.T) {
	fake := testutils.NewFakeLedger()
	fake.Token0[testutils.UniswapPair] = testutils.Wallet

	fetcher, err := NewQuoteFetcher(fake, testutils.TokenA, testutils.TokenB, zaptest.NewLogger(t))
	require.NoError(t, err)

	uni, _ := testVenues(t)
	_, err = fetcher.Fetch(context.Background(), uni)
	assert.True(t, errors.Is(err, types.ErrVenueUnreachable))
}

func TestFetchPair(t *testing.T) {
	fake := testutils.NewFakeLedger()
	fetcher, err := NewQuoteFetcher(fake, testutils.TokenA, testutils.TokenB, zaptest.NewLogger(t))
	require.NoError(t, err)

	uni, sushi := testVenues(t)
	a, b, err := fetcher.FetchPair(context.Background(), uni, sushi)
	require.NoError(t, err)
	assert.Equal(t, "uniswap", a.Venue.Name)
	assert.Equal(t, "sushiswap", b.Venue.Name)
	assert.Equal(t, testutils.Units(1000), b.Price)
}
