package dex

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/michaelpento.lv/dexarb/ledger"
	"github.com/michaelpento.lv/dexarb/types"
)

const orderingCacheSize = 64

// QuoteFetcher reads router prices and pair reserves for the TokenA/TokenB pair
type QuoteFetcher struct {
	ledger   ledger.Client
	tokenA   common.Address
	tokenB   common.Address
	ordering *lru.Cache // pair address -> token0
	logger   *zap.Logger
	now      func() time.Time
}

// NewQuoteFetcher creates a new quote fetcher
func NewQuoteFetcher(client ledger.Client, tokenA, tokenB common.Address, logger *zap.Logger) (*QuoteFetcher, error) {
	cache, err := lru.New(orderingCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create ordering cache: %w", err)
	}

	return &QuoteFetcher{
		ledger:   client,
		tokenA:   tokenA,
		tokenB:   tokenB,
		ordering: cache,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Fetch returns a fresh quote for venue. The price and reserve reads are
// issued concurrently; any failure is reported as ErrVenueUnreachable.
func (f *QuoteFetcher) Fetch(ctx context.Context, venue types.Venue) (*types.Quote, error) {
	var (
		price              *big.Int
		reserve0, reserve1 *big.Int
		blockTimestamp     uint32
		token0             common.Address
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		price, err = f.price(gctx, venue)
		return err
	})

	g.Go(func() error {
		var err error
		reserve0, reserve1, blockTimestamp, err = f.reserves(gctx, venue)
		return err
	})

	g.Go(func() error {
		var err error
		token0, err = f.token0(gctx, venue)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", types.ErrVenueUnreachable, venue.Name, err)
	}

	quote := &types.Quote{
		Venue:          venue,
		Price:          price,
		BlockTimestamp: blockTimestamp,
		ObservedAt:     f.now().UTC(),
	}

	switch token0 {
	case f.tokenA:
		quote.ReserveA, quote.ReserveB = reserve0, reserve1
	case f.tokenB:
		quote.ReserveA, quote.ReserveB = reserve1, reserve0
	default:
		return nil, fmt.Errorf("%w: %s: pair %s does not trade token %s",
			types.ErrVenueUnreachable, venue.Name, venue.Pair.Hex(), token0.Hex())
	}

	return quote, nil
}

// FetchPair fetches quotes for two venues concurrently
func (f *QuoteFetcher) FetchPair(ctx context.Context, a, b types.Venue) (*types.Quote, *types.Quote, error) {
	var quoteA, quoteB *types.Quote

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		quoteA, err = f.Fetch(gctx, a)
		return err
	})
	g.Go(func() error {
		var err error
		quoteB, err = f.Fetch(gctx, b)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return quoteA, quoteB, nil
}

// TokenOrder returns the pair's token0, resolving it once per pool
func (f *QuoteFetcher) TokenOrder(ctx context.Context, venue types.Venue) (common.Address, error) {
	return f.token0(ctx, venue)
}

func (f *QuoteFetcher) price(ctx context.Context, venue types.Venue) (*big.Int, error) {
	out, err := f.ledger.ReadCall(ctx, ledger.NewContract(venue.Router, RouterABI), "price")
	if err != nil {
		return nil, err
	}
	price, err := ledger.FirstBigInt(out)
	if err != nil {
		return nil, fmt.Errorf("failed to parse price: %w", err)
	}
	return price, nil
}

func (f *QuoteFetcher) reserves(ctx context.Context, venue types.Venue) (*big.Int, *big.Int, uint32, error) {
	out, err := f.ledger.ReadCall(ctx, ledger.NewContract(venue.Pair, PairABI), "getReserves")
	if err != nil {
		return nil, nil, 0, err
	}
	if len(out) < 3 {
		return nil, nil, 0, fmt.Errorf("failed to parse reserves: got %d values", len(out))
	}

	reserve0, ok := out[0].(*big.Int)
	if !ok || reserve0 == nil {
		return nil, nil, 0, fmt.Errorf("failed to parse reserve0")
	}
	reserve1, ok := out[1].(*big.Int)
	if !ok || reserve1 == nil {
		return nil, nil, 0, fmt.Errorf("failed to parse reserve1")
	}
	if reserve0.Sign() < 0 || reserve1.Sign() < 0 {
		return nil, nil, 0, fmt.Errorf("negative reserves")
	}
	timestamp, ok := out[2].(uint32)
	if !ok {
		return nil, nil, 0, fmt.Errorf("failed to parse blockTimestampLast")
	}

	return reserve0, reserve1, timestamp, nil
}

func (f *QuoteFetcher) token0(ctx context.Context, venue types.Venue) (common.Address, error) {
	if cached, ok := f.ordering.Get(venue.Pair); ok {
		return cached.(common.Address), nil
	}

	out, err := f.ledger.ReadCall(ctx, ledger.NewContract(venue.Pair, PairABI), "token0")
	if err != nil {
		return common.Address{}, err
	}
	if len(out) == 0 {
		return common.Address{}, fmt.Errorf("failed to parse token0 address")
	}
	token0, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("failed to parse token0 address")
	}

	f.ordering.Add(venue.Pair, token0)
	f.logger.Debug("Resolved pair ordering",
		zap.String("venue", venue.Name),
		zap.String("pair", venue.Pair.Hex()),
		zap.String("token0", token0.Hex()))

	return token0, nil
}
