package arbitrage

import (
	"math/big"

	"github.com/michaelpento.lv/dexarb/types"
)

// Evaluate compares two quotes and returns the opportunity of buying on the
// cheaper venue and selling on the dearer one, or nil when prices are equal.
// Any strictly positive spread is actionable; no gas or slippage costs are
// subtracted.
func Evaluate(a, b *types.Quote) *types.Opportunity {
	if a == nil || b == nil || a.Price == nil || b.Price == nil {
		return nil
	}

	switch a.Price.Cmp(b.Price) {
	case 1:
		return &types.Opportunity{Buy: b, Sell: a, Spread: new(big.Int).Sub(a.Price, b.Price)}
	case -1:
		return &types.Opportunity{Buy: a, Sell: b, Spread: new(big.Int).Sub(b.Price, a.Price)}
	default:
		return nil
	}
}
