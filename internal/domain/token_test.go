package domain

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

func TestTokenProps_Human(t *testing.T) {
	usdc := TokenProps{Symbol: "USDC", Decimals: 6}
	assert.InDelta(t, 1.5, usdc.Human(big.NewInt(1_500_000)), 1e-9)

	weth := TokenProps{Symbol: "WETH", Decimals: 18}
	raw, _ := new(big.Int).SetString("2500000000000000000", 10)
	assert.InDelta(t, 2.5, weth.Human(raw), 1e-9)

	assert.Equal(t, 0.0, usdc.Human(nil))
}

func TestRegistry_ListIsSortedAndStable(t *testing.T) {
	r := NewRegistry(tokA, tokB)
	r.Add(tokC, TokenProps{Symbol: "CCC", Decimals: 18})
	r.Add(tokA, TokenProps{Symbol: "ETH", Decimals: 18})
	r.Add(tokB, TokenProps{Symbol: "WETH", Decimals: 18})

	list := r.List()
	assert.Equal(t, []common.Address{tokA, tokB, tokC}, list)
	assert.Equal(t, list, r.List())
}

func TestRegistry_Symbols_Deduped(t *testing.T) {
	r := NewRegistry(tokA, tokB)
	r.Add(tokA, TokenProps{Symbol: "ETH", Decimals: 18})
	r.Add(tokB, TokenProps{Symbol: "WETH", Decimals: 18})
	r.Add(tokC, TokenProps{Symbol: "ETH", Decimals: 18}) // duplicate symbol

	syms := r.Symbols()
	count := 0
	for _, s := range syms {
		if s == "ETH" {
			count++
		}
	}
	assert.Equal(t, 1, count)
	assert.Contains(t, syms, "WETH")
}
