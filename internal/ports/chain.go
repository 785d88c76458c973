package ports

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// BalanceReader reads on-chain token balances.
type BalanceReader interface {
	// TokenBalance returns the raw unit balance of owner for the given
	// token. The registry's ETH sentinel address maps to the native balance.
	TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error)
}

// TradingRightsSource looks up the staked trading-rights token balance that
// gates how many simultaneous intents may be posted.
type TradingRightsSource interface {
	// TradingRightsBalance returns the rights balance in whole tokens.
	TradingRightsBalance(ctx context.Context, owner common.Address) (*big.Int, error)
}
