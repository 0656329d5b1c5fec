package testutils

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/michaelpento.lv/dexarb/ledger"
	"github.com/michaelpento.lv/dexarb/types"
)

var (
	// Wallet is the default signer of the fake ledger
	Wallet = common.HexToAddress("0x00000000000000000000000000000000000000a1")

	TokenA = common.HexToAddress("0x0000000000000000000000000000000000000a0a")
	TokenB = common.HexToAddress("0x0000000000000000000000000000000000000b0b")

	UniswapRouter   = common.HexToAddress("0x0000000000000000000000000000000000001001")
	UniswapPair     = common.HexToAddress("0x0000000000000000000000000000000000001002")
	SushiswapRouter = common.HexToAddress("0x0000000000000000000000000000000000002001")
	SushiswapPair   = common.HexToAddress("0x0000000000000000000000000000000000002002")

	transferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))
	one           = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
)

// Units converts a whole token amount to 18-decimal base units
func Units(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), one)
}

// Call records one contract call made against the fake ledger
type Call struct {
	Contract common.Address
	Method   string
	Args     []interface{}
}

type allowanceKey struct {
	token   common.Address
	spender common.Address
}

// FakeLedger is an in-memory ledger.Client. Write calls take effect when
// their transaction is confirmed.
type FakeLedger struct {
	mu sync.Mutex

	Wallet     common.Address
	TokenA     common.Address
	Prices     map[common.Address]*big.Int    // router -> TokenB per TokenA
	Reserves   map[common.Address][2]*big.Int // pair -> reserve0, reserve1
	Token0     map[common.Address]common.Address
	Balances   map[common.Address]*big.Int // token -> wallet balance
	allowances map[allowanceKey]*big.Int

	// RealizedOut overrides the output credited by a swap on a router
	RealizedOut map[common.Address]*big.Int

	ReadErrors    map[string]error
	WriteErrors   map[string]error
	ConfirmErrors map[string]error
	Reverts       map[string]string // method -> revert reason
	// RouterReverts reverts every swap confirmed on a router
	RouterReverts map[common.Address]string

	Reads  []Call
	Writes []Call

	nonce   uint64
	pending map[common.Hash]Call
}

var _ ledger.Client = (*FakeLedger)(nil)

// NewFakeLedger returns a ledger with two venues priced 1200 (uniswap) and
// 1000 (sushiswap) TokenB per TokenA, funded wallet balances and no allowances
func NewFakeLedger() *FakeLedger {
	return &FakeLedger{
		Wallet: Wallet,
		TokenA: TokenA,
		Prices: map[common.Address]*big.Int{
			UniswapRouter:   Units(1200),
			SushiswapRouter: Units(1000),
		},
		Reserves: map[common.Address][2]*big.Int{
			UniswapPair:   {Units(3600000), Units(3000)},
			SushiswapPair: {Units(1000000), Units(1000)},
		},
		Token0: map[common.Address]common.Address{
			UniswapPair:   TokenB,
			SushiswapPair: TokenB,
		},
		Balances: map[common.Address]*big.Int{
			TokenA: Units(10),
			TokenB: Units(10000),
		},
		allowances:    make(map[allowanceKey]*big.Int),
		RealizedOut:   make(map[common.Address]*big.Int),
		ReadErrors:    make(map[string]error),
		WriteErrors:   make(map[string]error),
		ConfirmErrors: make(map[string]error),
		Reverts:       make(map[string]string),
		RouterReverts: make(map[common.Address]string),
		pending:       make(map[common.Hash]Call),
	}
}

// SetAllowance sets the wallet's allowance for spender on token
func (f *FakeLedger) SetAllowance(token, spender common.Address, amount *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.allowances[allowanceKey{token, spender}] = new(big.Int).Set(amount)
}

// WriteMethods returns the methods of all submitted write calls, in order
func (f *FakeLedger) WriteMethods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	methods := make([]string, len(f.Writes))
	for i, w := range f.Writes {
		methods[i] = w.Method
	}
	return methods
}

// CountWrites returns how many write calls used method
func (f *FakeLedger) CountWrites(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, w := range f.Writes {
		if w.Method == method {
			n++
		}
	}
	return n
}

func (f *FakeLedger) Address() common.Address {
	return f.Wallet
}

func (f *FakeLedger) ReadCall(ctx context.Context, contract ledger.Contract, method string, args ...interface{}) ([]interface{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Reads = append(f.Reads, Call{Contract: contract.Address, Method: method, Args: args})
	if err := f.ReadErrors[method]; err != nil {
		return nil, err
	}

	addr := contract.Address
	switch method {
	case "price":
		price, ok := f.Prices[addr]
		if !ok {
			return nil, fmt.Errorf("execution reverted: no router at %s", addr.Hex())
		}
		return []interface{}{new(big.Int).Set(price)}, nil
	case "getReserves":
		reserves, ok := f.Reserves[addr]
		if !ok {
			return nil, fmt.Errorf("execution reverted: no pair at %s", addr.Hex())
		}
		return []interface{}{new(big.Int).Set(reserves[0]), new(big.Int).Set(reserves[1]), uint32(1700000000)}, nil
	case "token0":
		return []interface{}{f.Token0[addr]}, nil
	case "getAmountsOut":
		amountIn := args[0].(*big.Int)
		path := args[1].([]common.Address)
		return []interface{}{[]*big.Int{new(big.Int).Set(amountIn), f.quoteOut(addr, amountIn, path)}}, nil
	case "balanceOf":
		return []interface{}{f.balance(addr)}, nil
	case "allowance":
		spender := args[1].(common.Address)
		return []interface{}{f.allowance(addr, spender)}, nil
	}
	return nil, fmt.Errorf("unexpected read %s", method)
}

func (f *FakeLedger) WriteCall(ctx context.Context, contract ledger.Contract, method string, gas ledger.GasParams, args ...interface{}) (*ethtypes.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	call := Call{Contract: contract.Address, Method: method, Args: args}
	f.Writes = append(f.Writes, call)
	if err := f.WriteErrors[method]; err != nil {
		return nil, err
	}

	gasPrice := big.NewInt(0)
	if gas.GasPrice != nil {
		gasPrice = gas.GasPrice
	}
	to := contract.Address
	tx := ethtypes.NewTx(&ethtypes.LegacyTx{
		Nonce:    f.nonce,
		To:       &to,
		Gas:      gas.GasLimit,
		GasPrice: gasPrice,
		Value:    big.NewInt(0),
		Data:     []byte(method),
	})
	f.nonce++
	f.pending[tx.Hash()] = call

	return tx, nil
}

func (f *FakeLedger) WaitConfirmed(ctx context.Context, tx *ethtypes.Transaction) (*ethtypes.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	call, ok := f.pending[tx.Hash()]
	if !ok {
		return nil, fmt.Errorf("unknown transaction %s", tx.Hash().Hex())
	}
	delete(f.pending, tx.Hash())

	if err := f.ConfirmErrors[call.Method]; err != nil {
		return nil, err
	}

	receipt := &ethtypes.Receipt{
		Status:      ethtypes.ReceiptStatusSuccessful,
		TxHash:      tx.Hash(),
		GasUsed:     50000,
		BlockNumber: new(big.Int).SetUint64(tx.Nonce() + 1),
	}

	reason, ok := f.Reverts[call.Method]
	if !ok && call.Method == "swapExactTokensForTokens" {
		reason, ok = f.RouterReverts[call.Contract]
	}
	if ok {
		receipt.Status = ethtypes.ReceiptStatusFailed
		return receipt, &types.RevertError{TxHash: tx.Hash(), Reason: reason, Data: []byte(reason)}
	}

	f.apply(call, receipt)
	return receipt, nil
}

func (f *FakeLedger) BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	out, err := f.ReadCall(ctx, ledger.NewContract(token, ledger.ERC20ABI), "balanceOf", owner)
	if err != nil {
		return nil, err
	}
	return ledger.FirstBigInt(out)
}

func (f *FakeLedger) AllowanceOf(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	out, err := f.ReadCall(ctx, ledger.NewContract(token, ledger.ERC20ABI), "allowance", owner, spender)
	if err != nil {
		return nil, err
	}
	return ledger.FirstBigInt(out)
}

func (f *FakeLedger) apply(call Call, receipt *ethtypes.Receipt) {
	switch call.Method {
	case "approve":
		spender := call.Args[0].(common.Address)
		f.allowances[allowanceKey{call.Contract, spender}] = new(big.Int).Set(call.Args[1].(*big.Int))
	case "mint":
		amount := call.Args[1].(*big.Int)
		f.Balances[call.Contract] = new(big.Int).Add(f.balance(call.Contract), amount)
	case "setPrice":
		f.Prices[call.Contract] = new(big.Int).Set(call.Args[0].(*big.Int))
	case "swapExactTokensForTokens":
		router := call.Contract
		amountIn := call.Args[0].(*big.Int)
		path := call.Args[2].([]common.Address)
		to := call.Args[3].(common.Address)
		tokenIn, tokenOut := path[0], path[len(path)-1]

		out := f.quoteOut(router, amountIn, path)
		if override, ok := f.RealizedOut[router]; ok {
			out = new(big.Int).Set(override)
		}

		key := allowanceKey{tokenIn, router}
		f.allowances[key] = new(big.Int).Sub(f.allowance(tokenIn, router), amountIn)
		f.Balances[tokenIn] = new(big.Int).Sub(f.balance(tokenIn), amountIn)
		f.Balances[tokenOut] = new(big.Int).Add(f.balance(tokenOut), out)

		receipt.Logs = []*ethtypes.Log{
			transferLog(tokenIn, f.Wallet, router, amountIn),
			transferLog(tokenOut, router, to, out),
		}
	}
}

func (f *FakeLedger) quoteOut(router common.Address, amountIn *big.Int, path []common.Address) *big.Int {
	price := f.Prices[router]
	if price == nil || price.Sign() == 0 {
		return big.NewInt(0)
	}
	if path[0] == f.TokenA {
		return new(big.Int).Div(new(big.Int).Mul(amountIn, price), one)
	}
	return new(big.Int).Div(new(big.Int).Mul(amountIn, one), price)
}

func (f *FakeLedger) balance(token common.Address) *big.Int {
	if b, ok := f.Balances[token]; ok {
		return new(big.Int).Set(b)
	}
	return big.NewInt(0)
}

func (f *FakeLedger) allowance(token, spender common.Address) *big.Int {
	if a, ok := f.allowances[allowanceKey{token, spender}]; ok {
		return new(big.Int).Set(a)
	}
	return big.NewInt(0)
}

func transferLog(token, from, to common.Address, value *big.Int) *ethtypes.Log {
	return &ethtypes.Log{
		Address: token,
		Topics: []common.Hash{
			transferTopic,
			common.BytesToHash(from.Bytes()),
			common.BytesToHash(to.Bytes()),
		},
		Data: common.LeftPadBytes(value.Bytes(), 32),
	}
}
