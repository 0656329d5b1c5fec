package dex

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/michaelpento.lv/dexarb/types"
)

// QuoteSource returns a price and reserve snapshot for a venue
type QuoteSource interface {
	Fetch(ctx context.Context, venue types.Venue) (*types.Quote, error)
	FetchPair(ctx context.Context, a, b types.Venue) (*types.Quote, *types.Quote, error)
}

// Swapper executes a state-changing swap and reports the realized output
type Swapper interface {
	Swap(ctx context.Context, venue types.Venue, tokenIn, tokenOut common.Address, amountIn *big.Int) (*types.TradeLeg, error)
}
