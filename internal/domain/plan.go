package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// RightsPerIntent is the amount of trading-rights token (in whole tokens)
// the venue requires staked per posted intent.
const RightsPerIntent = 250

// RebalancePlan is the output of one planning pass: what each token balance
// should become, what must change, and whether the plan can be executed with
// the trading rights currently held.
type RebalancePlan struct {
	// GoalBalances are the target balances in raw units, before flooring.
	GoalBalances map[common.Address]float64
	// DeltaBalances are floor(goal − current) per token. Positive means the
	// engine must acquire the token, negative that it must dispose of it.
	// The ETH entry already has the current WETH balance subtracted.
	DeltaBalances map[common.Address]*big.Int

	// NeededWETH is how much WETH (raw 18-decimal units) must be wrapped
	// before trading can fund all buy-side deltas, net of the current WETH
	// balance. Negative means the current WETH balance already suffices.
	NeededWETH *big.Int

	// NeededIntents is the number of distinct pairs that must be opened.
	NeededIntents int
	// Intents are the pairs to post: WETH→token for buys, token→ETH for sells.
	Intents []Intent

	// Executable is false when the trading-rights balance cannot cover
	// RightsPerIntent × NeededIntents, or the rights lookup failed.
	Executable bool
	// MissingRights is the exact shortfall in whole rights tokens when not
	// executable for lack of rights; nil otherwise.
	MissingRights *big.Int
}

// Delta returns the delta for a token, or zero if the plan has none.
func (p *RebalancePlan) Delta(token common.Address) *big.Int {
	if d, ok := p.DeltaBalances[token]; ok && d != nil {
		return d
	}
	return new(big.Int)
}
