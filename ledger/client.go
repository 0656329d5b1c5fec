package ledger

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/time/rate"
)

// Client is the narrow contract the arbitrage core uses to talk to the chain
type Client interface {
	// Address returns the wallet that signs write calls
	Address() common.Address

	// ReadCall performs a read-only contract call
	ReadCall(ctx context.Context, contract Contract, method string, args ...interface{}) ([]interface{}, error)

	// WriteCall signs and broadcasts a state-changing contract call
	WriteCall(ctx context.Context, contract Contract, method string, gas GasParams, args ...interface{}) (*ethtypes.Transaction, error)

	// WaitConfirmed blocks until tx is mined; a reverted tx yields *types.RevertError
	WaitConfirmed(ctx context.Context, tx *ethtypes.Transaction) (*ethtypes.Receipt, error)

	BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error)
	AllowanceOf(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
}

// Contract binds an address to the ABI used to encode calls against it
type Contract struct {
	Address common.Address
	ABI     abi.ABI
}

// NewContract creates a contract handle
func NewContract(address common.Address, contractABI abi.ABI) Contract {
	return Contract{Address: address, ABI: contractABI}
}

// GasParams are the gas settings attached to a write call. A nil GasPrice
// lets the node suggest EIP-1559 fees.
type GasParams struct {
	GasLimit uint64
	GasPrice *big.Int
}

// Context holds everything needed to reach the chain as one wallet. It is
// passed explicitly so independent contexts can coexist.
type Context struct {
	Endpoint            string
	PrivateKey          *ecdsa.PrivateKey
	ChainID             *big.Int // nil means ask the node
	ConfirmationTimeout time.Duration
	RateLimit           rate.Limit
	Burst               int
}

// From returns the wallet address derived from the private key
func (c Context) From() common.Address {
	if c.PrivateKey == nil {
		return common.Address{}
	}
	return crypto.PubkeyToAddress(c.PrivateKey.PublicKey)
}
