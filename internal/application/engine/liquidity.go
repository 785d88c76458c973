package engine

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/swapmaker/swapmaker/internal/domain"
)

// recomputeLiquidityLocked rebuilds the tradable liquidity ledger from
// scratch: for every pair with both a configured limit and a known balance,
// liquidity = min(limit, balance) − Σ maker amounts of open orders on that
// pair. It is the single source of truth for how much may still be quoted
// and runs after every balance refresh, limit change and order lifecycle
// event. Caller holds mu.
func (e *Engine) recomputeLiquidityLocked() {
	liquidity := domain.NewPairMap[*big.Int]()

	e.limitAmounts.ForEach(func(maker, taker common.Address, limit *big.Int) {
		balance, ok := e.portfolio.Balances[maker]
		if !ok || limit == nil {
			return
		}
		available := new(big.Int).Set(limit)
		if balance.Cmp(available) < 0 {
			available.Set(balance)
		}
		for _, open := range e.openOrders {
			if open.Order.MakerToken == maker && open.Order.TakerToken == taker {
				available.Sub(available, open.Order.MakerAmount)
			}
		}
		liquidity.Set(maker, taker, available)
	})

	e.liquidity = liquidity
}

// Liquidity returns the remaining quotable maker amount for a pair.
func (e *Engine) Liquidity(maker, taker common.Address) (*big.Int, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.liquidity.Get(maker, taker)
	if !ok {
		return nil, false
	}
	return new(big.Int).Set(v), true
}
