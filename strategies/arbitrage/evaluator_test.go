package arbitrage

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelpento.lv/dexarb/types"
	"github.com/michaelpento.lv/dexarb/utils/testutils"
)

func quote(name string, price int64) *types.Quote {
	return &types.Quote{
		Venue: types.Venue{Name: name},
		Price: testutils.Units(price),
	}
}

func TestEvaluatePicksCheaperVenue(t *testing.T) {
	a := quote("uniswap", 1000)
	b := quote("sushiswap", 1200)

	opp := Evaluate(a, b)
	require.NotNil(t, opp)
	assert.Equal(t, "uniswap", opp.Buy.Venue.Name)
	assert.Equal(t, "sushiswap", opp.Sell.Venue.Name)
	assert.Equal(t, 0, opp.Spread.Cmp(testutils.Units(200)))
	assert.Equal(t, "uniswap-to-sushiswap", opp.Direction())

	opp = Evaluate(b, a)
	require.NotNil(t, opp)
	assert.Equal(t, "uniswap", opp.Buy.Venue.Name)
	assert.Equal(t, "sushiswap", opp.Sell.Venue.Name)
}

func TestEvaluateEqualPrices(t *testing.T) {
	assert.Nil(t, Evaluate(quote("uniswap", 1000), quote("sushiswap", 1000)))
}

func TestEvaluateBuyIsAlwaysStrictlyCheaper(t *testing.T) {
	prices := []int64{0, 1, 999, 1000, 1001, 1200, 5000}
	for _, pa := range prices {
		for _, pb := range prices {
			opp := Evaluate(quote("a", pa), quote("b", pb))
			if pa == pb {
				assert.Nil(t, opp)
				continue
			}
			require.NotNil(t, opp)
			assert.Equal(t, -1, opp.Buy.Price.Cmp(opp.Sell.Price))
			assert.Equal(t, 1, opp.Spread.Sign())
		}
	}
}

func TestEvaluateMissingQuote(t *testing.T) {
	assert.Nil(t, Evaluate(nil, quote("b", 1)))
	assert.Nil(t, Evaluate(&types.Quote{}, &types.Quote{Price: big.NewInt(1)}))
}
