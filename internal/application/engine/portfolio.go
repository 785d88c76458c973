package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/swapmaker/swapmaker/internal/domain"
)

// Refresh fetches USD prices and on-chain balances, recomputes the total
// portfolio value and per-token fractions, and rebuilds liquidity. Price and
// balance fetches run concurrently, like the two independent lookups they
// are; either failing fails the refresh and leaves the previous snapshot in
// place. Transient fetch errors propagate unretried.
func (e *Engine) Refresh(ctx context.Context) error {
	var (
		wg          sync.WaitGroup
		usdBySymbol map[string]float64
		balances    map[common.Address]*big.Int
		priceErr    error
		balanceErr  error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		usdBySymbol, priceErr = e.prices.FetchUSDPrices(ctx, e.registry.Symbols())
	}()
	go func() {
		defer wg.Done()
		balances, balanceErr = e.fetchBalances(ctx)
	}()
	wg.Wait()

	if priceErr != nil {
		return fmt.Errorf("engine.Refresh: fetch usd prices: %w", priceErr)
	}
	if balanceErr != nil {
		return fmt.Errorf("engine.Refresh: fetch balances: %w", balanceErr)
	}

	// The price feed does not quote wrapped ETH; it trades 1:1 with ETH.
	if wethProps, ok := e.registry.Props(e.registry.WETH); ok {
		if ethProps, okEth := e.registry.Props(e.registry.ETH); okEth {
			usdBySymbol[wethProps.Symbol] = usdBySymbol[ethProps.Symbol]
		}
	}

	state := e.buildState(usdBySymbol, balances)

	e.mu.Lock()
	e.portfolio = state
	e.updateIntentPricesLocked()
	e.recomputeLiquidityLocked()
	e.mu.Unlock()

	slog.Debug("portfolio refreshed",
		"total_usd", fmt.Sprintf("%.2f", state.TotalValueUSD),
		"tokens", len(state.Balances),
	)
	return nil
}

// fetchBalances reads every registered token's balance for the maker wallet.
func (e *Engine) fetchBalances(ctx context.Context) (map[common.Address]*big.Int, error) {
	owner := e.signer.Address()
	balances := make(map[common.Address]*big.Int)
	for _, token := range e.registry.List() {
		bal, err := e.chain.TokenBalance(ctx, token, owner)
		if err != nil {
			return nil, fmt.Errorf("balance of %s: %w", token.Hex(), err)
		}
		balances[token] = bal
	}
	return balances, nil
}

// buildState derives USD prices by token, the total value and the value
// fractions. The WETH fraction is folded into the ETH entry: wrapped and
// native ETH are one allocation bucket even though they are two balances.
func (e *Engine) buildState(usdBySymbol map[string]float64, balances map[common.Address]*big.Int) *domain.PortfolioState {
	usdByToken := make(map[common.Address]float64, len(balances))
	for _, token := range e.registry.List() {
		props, ok := e.registry.Props(token)
		if !ok {
			continue
		}
		if usd, okUSD := usdBySymbol[props.Symbol]; okUSD && usd > 0 {
			usdByToken[token] = usd
		}
	}

	var total float64
	values := make(map[common.Address]float64, len(balances))
	for token, bal := range balances {
		props, ok := e.registry.Props(token)
		if !ok {
			continue
		}
		usd, okUSD := usdByToken[token]
		if !okUSD {
			continue
		}
		v := props.Human(bal) * usd
		values[token] = v
		total += v
	}

	fractions := make(map[common.Address]float64, len(values))
	fractions[e.registry.ETH] = 0
	if total > 0 {
		for token, v := range values {
			fractions[token] = v / total
		}
	}
	if wethFrac, ok := fractions[e.registry.WETH]; ok {
		fractions[e.registry.ETH] += wethFrac
		delete(fractions, e.registry.WETH)
	}

	return &domain.PortfolioState{
		Balances:      balances,
		USDPrices:     usdByToken,
		TotalValueUSD: total,
		Fractions:     fractions,
		RefreshedAt:   time.Now(),
	}
}

// updateIntentPricesLocked refreshes each intent's reference price from the
// latest USD valuations. Caller holds mu.
func (e *Engine) updateIntentPricesLocked() {
	for i, intent := range e.intents {
		makerProps, okM := e.registry.Props(intent.MakerToken)
		takerProps, okT := e.registry.Props(intent.TakerToken)
		if !okM || !okT {
			continue
		}
		usdMaker := e.portfolio.USDPrices[intent.MakerToken]
		usdTaker := e.portfolio.USDPrices[intent.TakerToken]
		if p := domain.ReferencePrice(usdMaker, usdTaker, makerProps, takerProps); p > 0 {
			e.intents[i].Price = p
		}
	}
}
