package engine

import (
	"context"
	"fmt"
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/swapmaker/swapmaker/internal/domain"
)

// Plan converts goal fractions into goal and delta balances, the intents to
// post and the trading-rights requirement. It reads the latest portfolio
// snapshot and mutates no engine state: a failed plan leaves nothing behind.
//
// The returned plan is not executable when the rights balance falls short
// (MissingRights set) or when the rights lookup failed; in the latter case
// the transient error is also returned so the caller can decide on retry.
func (e *Engine) Plan(ctx context.Context, goal map[common.Address]float64) (*domain.RebalancePlan, error) {
	sum := sumFractions(goal)
	if math.Abs(sum-1) > e.cfg.FractionTolerance {
		return nil, &domain.ConfigurationError{Sum: sum, Tolerance: e.cfg.FractionTolerance}
	}

	e.mu.Lock()
	state := e.portfolio
	e.mu.Unlock()

	plan := &domain.RebalancePlan{
		GoalBalances:  make(map[common.Address]float64),
		DeltaBalances: make(map[common.Address]*big.Int),
	}

	for token, fraction := range goal {
		if token == e.registry.WETH {
			// WETH is already folded into the ETH fraction and goal.
			continue
		}
		props, okProps := e.registry.Props(token)
		usd := state.USDPrices[token]
		if !okProps || usd <= 0 {
			continue
		}
		scale, _ := props.Scale().Float64()
		goalBalance := state.TotalValueUSD * fraction / usd * scale
		plan.GoalBalances[token] = goalBalance

		delta := decimal.NewFromFloat(goalBalance).
			Sub(decimal.NewFromBigInt(state.Balance(token), 0)).
			Floor().BigInt()
		plan.DeltaBalances[token] = delta
	}

	// Inbound WETH counts as already-acquired ETH exposure: anyone can send
	// it regardless of balance, and reducing ETH means wrapping manually.
	if wethBal, ok := state.Balances[e.registry.WETH]; ok {
		if ethDelta, okEth := plan.DeltaBalances[e.registry.ETH]; okEth {
			ethDelta.Sub(ethDelta, wethBal)
		}
	}

	plan.NeededWETH = e.neededWETH(plan, state)
	plan.Intents = e.planIntents(plan, state)
	plan.NeededIntents = len(plan.Intents)

	rightsBal, err := e.rights.TradingRightsBalance(ctx, e.signer.Address())
	if err != nil {
		// Not executable until the lookup succeeds.
		return plan, fmt.Errorf("engine.Plan: trading rights lookup: %w", err)
	}

	needed := big.NewInt(int64(domain.RightsPerIntent * plan.NeededIntents))
	if rightsBal.Cmp(needed) < 0 {
		plan.MissingRights = new(big.Int).Sub(needed, rightsBal)
	} else {
		plan.Executable = true
	}
	return plan, nil
}

// neededWETH totals the WETH required to fund every buy-side delta, in raw
// 18-decimal units, minus the WETH already held.
func (e *Engine) neededWETH(plan *domain.RebalancePlan, state *domain.PortfolioState) *big.Int {
	usdETH := state.USDPrices[e.registry.ETH]
	var selling float64
	for token, delta := range plan.DeltaBalances {
		if token == e.registry.ETH || token == e.registry.WETH {
			continue
		}
		if delta.Sign() <= 0 {
			continue
		}
		props, ok := e.registry.Props(token)
		usd := state.USDPrices[token]
		if !ok || usd <= 0 || usdETH <= 0 {
			continue
		}
		selling += props.Human(delta) * usd / usdETH
	}

	needed := decimal.NewFromFloat(selling).Mul(decimal.New(1, 18)).Floor().BigInt()
	return needed.Sub(needed, state.Balance(e.registry.WETH))
}

// planIntents derives the trading pairs: buy deltas are quoted WETH→token,
// sell deltas token→ETH. Reference prices come from the current snapshot.
func (e *Engine) planIntents(plan *domain.RebalancePlan, state *domain.PortfolioState) []domain.Intent {
	var intents []domain.Intent
	for _, token := range e.registry.List() {
		if token == e.registry.ETH || token == e.registry.WETH {
			continue
		}
		delta, ok := plan.DeltaBalances[token]
		if !ok || delta.Sign() == 0 {
			continue
		}
		var maker, taker common.Address
		if delta.Sign() > 0 {
			maker, taker = e.registry.WETH, token
		} else {
			maker, taker = token, e.registry.ETH
		}
		makerProps, okM := e.registry.Props(maker)
		takerProps, okT := e.registry.Props(taker)
		if !okM || !okT {
			continue
		}
		intents = append(intents, domain.Intent{
			MakerToken: maker,
			TakerToken: taker,
			Price: domain.ReferencePrice(
				state.USDPrices[maker], state.USDPrices[taker], makerProps, takerProps),
		})
	}
	return intents
}

func sumFractions(goal map[common.Address]float64) float64 {
	var sum float64
	for _, f := range goal {
		sum += f
	}
	return sum
}
