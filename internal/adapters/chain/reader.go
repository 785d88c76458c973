package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
)

// balanceOfSelector is the 4-byte selector of ERC-20 balanceOf(address).
var balanceOfSelector = []byte{0x70, 0xa0, 0x82, 0x31}

// Reader implements ports.BalanceReader and ports.TradingRightsSource over a
// JSON-RPC chain client. A configured sentinel address maps to the native
// ETH balance; everything else is read with an eth_call to balanceOf.
type Reader struct {
	cli *ethclient.Client

	ethSentinel    common.Address
	rightsToken    common.Address
	rightsDecimals int
}

// Dial connects to the chain RPC endpoint.
func Dial(ctx context.Context, rpcURL string, ethSentinel, rightsToken common.Address, rightsDecimals int) (*Reader, error) {
	cli, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("chain.Dial: %w", err)
	}
	return &Reader{
		cli:            cli,
		ethSentinel:    ethSentinel,
		rightsToken:    rightsToken,
		rightsDecimals: rightsDecimals,
	}, nil
}

// Close releases the underlying RPC connection.
func (r *Reader) Close() {
	r.cli.Close()
}

// TokenBalance returns the raw unit balance of owner for token.
func (r *Reader) TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	if token == r.ethSentinel {
		bal, err := r.cli.BalanceAt(ctx, owner, nil)
		if err != nil {
			return nil, fmt.Errorf("chain.TokenBalance: native balance: %w", err)
		}
		return bal, nil
	}

	data := make([]byte, 0, 36)
	data = append(data, balanceOfSelector...)
	data = append(data, common.LeftPadBytes(owner.Bytes(), 32)...)

	out, err := r.cli.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("chain.TokenBalance: balanceOf %s: %w", token.Hex(), err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("chain.TokenBalance: empty balanceOf result for %s", token.Hex())
	}
	return new(big.Int).SetBytes(out), nil
}

// TradingRightsBalance returns the rights-token balance in whole tokens,
// truncated. The venue counts intents in whole tokens staked.
func (r *Reader) TradingRightsBalance(ctx context.Context, owner common.Address) (*big.Int, error) {
	raw, err := r.TokenBalance(ctx, r.rightsToken, owner)
	if err != nil {
		return nil, fmt.Errorf("chain.TradingRightsBalance: %w", err)
	}
	whole := decimal.NewFromBigInt(raw, 0).
		Div(decimal.New(1, int32(r.rightsDecimals))).
		Floor().BigInt()
	return whole, nil
}
