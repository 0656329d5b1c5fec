package types

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// TokenDecimals is the fixed precision of every token the bot trades
const TokenDecimals = 18

// Token represents an ERC20 asset
type Token struct {
	Symbol   string
	Address  common.Address
	Decimals int32
}

// NewToken creates a token with the default precision
func NewToken(symbol string, address common.Address) (Token, error) {
	if err := CheckAddress(symbol, address); err != nil {
		return Token{}, err
	}
	return Token{Symbol: symbol, Address: address, Decimals: TokenDecimals}, nil
}

// Venue is a router contract and the pair contract it trades against
type Venue struct {
	Name   string
	Router common.Address
	Pair   common.Address
}

// NewVenue creates a venue after validating both contract addresses
func NewVenue(name string, router, pair common.Address) (Venue, error) {
	if err := CheckAddress(name+" router", router); err != nil {
		return Venue{}, err
	}
	if err := CheckAddress(name+" pair", pair); err != nil {
		return Venue{}, err
	}
	return Venue{Name: name, Router: router, Pair: pair}, nil
}

func (v Venue) String() string {
	return v.Name
}

// Quote is a snapshot of one venue's price and pool reserves
type Quote struct {
	Venue          Venue
	Price          *big.Int // TokenB per TokenA, 18 decimals
	ReserveA       *big.Int
	ReserveB       *big.Int
	BlockTimestamp uint32
	ObservedAt     time.Time
}

// Opportunity is a detected price discrepancy between two venues
type Opportunity struct {
	Buy    *Quote
	Sell   *Quote
	Spread *big.Int
}

// Direction returns a short label such as "sushiswap-to-uniswap"
func (o *Opportunity) Direction() string {
	return fmt.Sprintf("%s-to-%s", o.Buy.Venue.Name, o.Sell.Venue.Name)
}

// LegStatus is the lifecycle of a single swap
type LegStatus string

const (
	LegPending   LegStatus = "pending"
	LegConfirmed LegStatus = "confirmed"
	LegFailed    LegStatus = "failed"
)

// TradeLeg represents one directional swap within an arbitrage
type TradeLeg struct {
	Venue       Venue
	TokenIn     common.Address
	TokenOut    common.Address
	AmountIn    *big.Int
	ExpectedOut *big.Int
	RealizedOut *big.Int
	TxHash      common.Hash
	GasUsed     uint64
	Status      LegStatus
}

// CheckAddress rejects the zero address
func CheckAddress(name string, address common.Address) error {
	if address == (common.Address{}) {
		return fmt.Errorf("%w: invalid %s address: %s", ErrInvalidConfiguration, name, address.Hex())
	}
	return nil
}

// ParseAddress validates a hex string and returns the address it encodes
func ParseAddress(name, value string) (common.Address, error) {
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("%w: invalid %s address: %q", ErrInvalidConfiguration, name, value)
	}
	address := common.HexToAddress(value)
	if err := CheckAddress(name, address); err != nil {
		return common.Address{}, err
	}
	return address, nil
}
