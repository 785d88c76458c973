package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// PortfolioState is one refresh of balances, USD prices and derived value
// fractions. Balances are raw units. Fractions have WETH already folded into
// the ETH entry, so the map never carries a standalone WETH fraction.
type PortfolioState struct {
	Balances      map[common.Address]*big.Int
	USDPrices     map[common.Address]float64
	TotalValueUSD float64
	Fractions     map[common.Address]float64
	RefreshedAt   time.Time
}

// Balance returns the raw balance for a token, or zero if unknown.
func (s *PortfolioState) Balance(token common.Address) *big.Int {
	if b, ok := s.Balances[token]; ok && b != nil {
		return b
	}
	return new(big.Int)
}

// CycleSummary is the lightweight per-iteration record kept for auditing.
type CycleSummary struct {
	At             time.Time
	TotalValueUSD  float64
	OpenOrders     int
	ActiveIntents  int
	AlgorithmState string
}
