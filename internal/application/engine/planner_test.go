package engine

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swapmaker/swapmaker/internal/domain"
)

func TestPlan_ToleranceViolation(t *testing.T) {
	f := newFixture(Config{})

	_, err := f.engine.Plan(context.Background(), map[common.Address]float64{
		ethAddr: 0.5,
		tkaAddr: 0.4, // sums to 0.9
	})
	require.Error(t, err)

	var cfgErr *domain.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.InDelta(t, 0.9, cfgErr.Sum, 0.0001)
}

func TestPlan_WithinTolerance(t *testing.T) {
	f := newFixture(Config{FractionTolerance: 0.01})
	require.NoError(t, f.engine.Refresh(context.Background()))

	_, err := f.engine.Plan(context.Background(), map[common.Address]float64{
		ethAddr: 0.5,
		tkaAddr: 0.295,
		tkbAddr: 0.2, // sums to 0.995, inside 0.01
	})
	assert.NoError(t, err)
}

func TestPlan_DeltasAndIntents(t *testing.T) {
	f := newFixture(Config{})
	require.NoError(t, f.engine.Refresh(context.Background()))

	plan, err := f.engine.Plan(context.Background(), standardGoal())
	require.NoError(t, err)

	// $1000 total: goal TKA = 1000×0.3/10 = 30, held 0, buy 30.
	// Goal TKB = 1000×0.2/20 = 10, held 25, sell 15.
	assert.InDelta(t, 30e18, plan.GoalBalances[tkaAddr], 1e6)
	assert.InDelta(t, 10e18, plan.GoalBalances[tkbAddr], 1e6)
	assert.Equal(t, 0, plan.Delta(tkaAddr).Cmp(eth(30)))
	assert.Equal(t, 0, plan.Delta(tkbAddr).Cmp(eth(-15)))
	assert.Equal(t, 0, plan.Delta(ethAddr).Sign())

	// Buying 30 TKA costs $300 = 3 ETH of WETH; none held.
	assert.Equal(t, 0, plan.NeededWETH.Cmp(eth(3)))

	require.Len(t, plan.Intents, 2)
	assert.Equal(t, 2, plan.NeededIntents)

	buy := plan.Intents[0]
	assert.Equal(t, wethAddr, buy.MakerToken)
	assert.Equal(t, tkaAddr, buy.TakerToken)
	assert.InDelta(t, 10.0, buy.Price, 0.0001) // $100 WETH / $10 TKA

	sell := plan.Intents[1]
	assert.Equal(t, tkbAddr, sell.MakerToken)
	assert.Equal(t, ethAddr, sell.TakerToken)
	assert.InDelta(t, 0.2, sell.Price, 0.0001) // $20 TKB / $100 ETH

	assert.True(t, plan.Executable)
	assert.Nil(t, plan.MissingRights)
}

func TestPlan_WETHCountsTowardETHDelta(t *testing.T) {
	f := newFixture(Config{})
	f.chain.setBalance(makerAddr, tkbAddr, big.NewInt(0))
	f.chain.setBalance(makerAddr, wethAddr, eth(2)) // $200 wrapped
	require.NoError(t, f.engine.Refresh(context.Background()))

	// Total $700, all of it ETH exposure already.
	plan, err := f.engine.Plan(context.Background(), map[common.Address]float64{ethAddr: 1.0})
	require.NoError(t, err)

	// Goal 7 ETH, held 5 native: raw delta +2, cancelled by the 2 WETH held.
	assert.Equal(t, 0, plan.Delta(ethAddr).Sign())
	assert.Empty(t, plan.Intents)
	assert.True(t, plan.Executable)
}

func TestPlan_HeldWETHReducesNeededWETH(t *testing.T) {
	f := newFixture(Config{})
	f.chain.setBalance(makerAddr, wethAddr, eth(1))
	require.NoError(t, f.engine.Refresh(context.Background()))

	goal := map[common.Address]float64{
		ethAddr: 0.5 + 100.0/1100.0*0.5, // keep sums honest with the extra $100
		tkaAddr: 0.3 * 1000.0 / 1100.0,
		tkbAddr: 0.2 * 1000.0 / 1100.0,
	}
	sum := 0.0
	for _, v := range goal {
		sum += v
	}
	require.InDelta(t, 1.0, sum, 0.001)

	plan, err := f.engine.Plan(context.Background(), goal)
	require.NoError(t, err)

	// Buy side still needs 3 ETH worth of WETH; 1 is already wrapped.
	assert.Equal(t, 0, plan.NeededWETH.Cmp(eth(2)))
}

func TestPlan_RightsShortfall(t *testing.T) {
	f := newFixture(Config{})
	require.NoError(t, f.engine.Refresh(context.Background()))

	f.chain.mu.Lock()
	f.chain.rights = big.NewInt(499) // two intents need 500
	f.chain.mu.Unlock()

	plan, err := f.engine.Plan(context.Background(), standardGoal())
	require.NoError(t, err)
	assert.False(t, plan.Executable)
	require.NotNil(t, plan.MissingRights)
	assert.Equal(t, int64(1), plan.MissingRights.Int64())
}

func TestPlan_RightsLookupFailure(t *testing.T) {
	f := newFixture(Config{})
	require.NoError(t, f.engine.Refresh(context.Background()))

	f.chain.mu.Lock()
	f.chain.rightsErr = errBoom
	f.chain.mu.Unlock()

	plan, err := f.engine.Plan(context.Background(), standardGoal())
	require.Error(t, err)
	require.NotNil(t, plan)
	assert.False(t, plan.Executable)
	// The portfolio math is still intact for inspection.
	assert.Equal(t, 2, plan.NeededIntents)
}

func TestPlan_LeavesEngineStateUntouched(t *testing.T) {
	f := newFixture(Config{})
	require.NoError(t, f.engine.Refresh(context.Background()))

	_, err := f.engine.Plan(context.Background(), standardGoal())
	require.NoError(t, err)

	assert.Nil(t, f.engine.LastPlan())
	assert.Empty(t, f.engine.Intents())
	_, ok := f.engine.GetPrice(wethAddr, tkaAddr)
	assert.False(t, ok)
}
