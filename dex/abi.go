package dex

import (
	"github.com/michaelpento.lv/dexarb/ledger"
)

// Pair contract ABI
const pairABIJson = `[{
	"constant": true,
	"inputs": [],
	"name": "getReserves",
	"outputs": [
		{"name": "reserve0", "type": "uint112"},
		{"name": "reserve1", "type": "uint112"},
		{"name": "blockTimestampLast", "type": "uint32"}
	],
	"payable": false,
	"stateMutability": "view",
	"type": "function"
}, {
	"constant": true,
	"inputs": [],
	"name": "token0",
	"outputs": [{"name": "", "type": "address"}],
	"payable": false,
	"stateMutability": "view",
	"type": "function"
}, {
	"constant": true,
	"inputs": [],
	"name": "token1",
	"outputs": [{"name": "", "type": "address"}],
	"payable": false,
	"stateMutability": "view",
	"type": "function"
}]`

// Router contract ABI. price/setPrice/addLiquidity are exposed by the
// testnet routers the bot is deployed against.
const routerABIJson = `[{
	"inputs": [],
	"name": "price",
	"outputs": [{"name": "", "type": "uint256"}],
	"stateMutability": "view",
	"type": "function"
}, {
	"inputs": [{"name": "_price", "type": "uint256"}],
	"name": "setPrice",
	"outputs": [],
	"stateMutability": "nonpayable",
	"type": "function"
}, {
	"inputs": [
		{"name": "amountIn", "type": "uint256"},
		{"name": "path", "type": "address[]"}
	],
	"name": "getAmountsOut",
	"outputs": [{"name": "amounts", "type": "uint256[]"}],
	"stateMutability": "view",
	"type": "function"
}, {
	"inputs": [
		{"name": "amountIn", "type": "uint256"},
		{"name": "amountOutMin", "type": "uint256"},
		{"name": "path", "type": "address[]"},
		{"name": "to", "type": "address"},
		{"name": "deadline", "type": "uint256"}
	],
	"name": "swapExactTokensForTokens",
	"outputs": [{"name": "amounts", "type": "uint256[]"}],
	"stateMutability": "nonpayable",
	"type": "function"
}, {
	"inputs": [
		{"name": "tokenA", "type": "address"},
		{"name": "tokenB", "type": "address"}
	],
	"name": "addLiquidity",
	"outputs": [
		{"name": "amountA", "type": "uint256"},
		{"name": "amountB", "type": "uint256"},
		{"name": "liquidity", "type": "uint256"}
	],
	"stateMutability": "nonpayable",
	"type": "function"
}]`

var (
	PairABI   = ledger.MustParseABI(pairABIJson)
	RouterABI = ledger.MustParseABI(routerABIJson)
)
