package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/swapmaker/swapmaker/internal/domain"
)

// State is the scheduling loop's lifecycle state.
type State int32

const (
	// StateIdle: background balance/price polling only.
	StateIdle State = iota
	// StateStarting: validating, planning and posting intents.
	StateStarting
	// StateRunning: periodic refresh → plan → safety → limits iterations.
	StateRunning
	// StateStopping: tearing down offers, timers and the active-run flag.
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	}
	return "unknown"
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	return State(e.algState.Load())
}

func (e *Engine) casState(from, to State) bool {
	return e.algState.CompareAndSwap(int32(from), int32(to))
}

// Run drives the engine until ctx is cancelled. One ticker serves both
// modes: while idle each tick refreshes balances and prices, while a
// rebalancing run is active each tick executes a full iteration. The two are
// mutually exclusive by construction, and a tick that fires while the
// previous one is still suspended on I/O is skipped, never queued.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("engine starting", "poll_interval", e.cfg.PollInterval)

	e.tick(ctx)

	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if e.State() == StateRunning {
				if err := e.StopAlgorithm(context.Background(), "shutdown"); err != nil {
					slog.Warn("stop on shutdown", "err", err)
				}
			}
			slog.Info("engine stopped")
			return nil
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

// tick runs one scheduled unit of work, skipping if the previous one is
// still in flight.
func (e *Engine) tick(ctx context.Context) {
	if !e.inFlight.CompareAndSwap(false, true) {
		slog.Debug("tick skipped: previous iteration still in flight")
		return
	}
	defer e.inFlight.Store(false)

	switch e.State() {
	case StateIdle:
		if err := e.Refresh(ctx); err != nil {
			slog.Warn("background refresh failed", "err", err)
		}
	case StateRunning:
		e.iterate(ctx)
	default:
		// Starting and Stopping own the scheduler; nothing to do.
	}
}

// onOrderUpdate reacts to an order leaving the books: an active run gets a
// full out-of-band iteration, an idle engine just refreshes its ledger.
func (e *Engine) onOrderUpdate(ctx context.Context) {
	go func() {
		if !e.inFlight.CompareAndSwap(false, true) {
			return
		}
		defer e.inFlight.Store(false)

		if e.State() == StateRunning {
			e.iterate(ctx)
			return
		}
		if err := e.Refresh(ctx); err != nil {
			slog.Warn("refresh after order update failed", "err", err)
		}
	}()
}

// StartAlgorithm validates the goal fractions, computes the initial plan,
// posts and confirms intents, publishes initial prices and enters Running.
// Any failure rolls back to Idle with no partial run state left behind.
func (e *Engine) StartAlgorithm(ctx context.Context, goal map[common.Address]float64) error {
	if !e.casState(StateIdle, StateStarting) {
		return domain.ErrAlgorithmActive
	}

	if err := e.start(ctx, goal); err != nil {
		e.algState.Store(int32(StateIdle))
		return err
	}

	e.algState.Store(int32(StateRunning))
	slog.Info("rebalancing algorithm running", "intents", len(e.Intents()))
	e.notify(ctx, "Rebalancing started.")

	// First iteration runs immediately; the ticker takes over afterwards.
	if e.inFlight.CompareAndSwap(false, true) {
		e.iterate(ctx)
		e.inFlight.Store(false)
	}
	return nil
}

func (e *Engine) start(ctx context.Context, goal map[common.Address]float64) error {
	sum := sumFractions(goal)
	if math.Abs(sum-1) > e.cfg.FractionTolerance {
		return &domain.ConfigurationError{Sum: sum, Tolerance: e.cfg.FractionTolerance}
	}

	if err := e.Refresh(ctx); err != nil {
		return fmt.Errorf("engine.StartAlgorithm: %w", err)
	}

	plan, err := e.Plan(ctx, goal)
	if err != nil {
		return err
	}
	if !plan.Executable {
		err := &domain.InsufficientRightsError{Needed: plan.NeededIntents, Missing: plan.MissingRights}
		e.notify(ctx, "Cannot start rebalancing: "+err.Error())
		return err
	}

	if err := e.transport.PostIntents(ctx, plan.Intents); err != nil {
		return fmt.Errorf("engine.StartAlgorithm: post intents: %w", err)
	}
	confirmed, err := e.transport.GetIntents(ctx)
	if err != nil {
		return fmt.Errorf("engine.StartAlgorithm: confirm intents: %w", err)
	}

	e.mu.Lock()
	e.intents = confirmed
	e.mu.Unlock()

	// Re-read prices and balances once more so the first published quotes
	// and the initial snapshot rest on fresh data.
	if err := e.Refresh(ctx); err != nil {
		return fmt.Errorf("engine.StartAlgorithm: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.goalFractions = make(map[common.Address]float64, len(goal))
	for token, f := range goal {
		e.goalFractions[token] = f
	}
	e.plan = plan

	for _, intent := range e.intents {
		if price := e.cfg.PriceModifier * intent.Price; price > 0 {
			e.limitPrices.Set(intent.MakerToken, intent.TakerToken, price)
		}
	}

	// Immutable baseline for the relative drift breaker, plus one empty
	// tracker per quoted pair for the rolling-average breaker.
	e.initialPrices = e.limitPrices.Clone()
	e.trackers = domain.NewPairMap[*domain.PriceTracker]()
	e.initialPrices.ForEach(func(maker, taker common.Address, _ float64) {
		e.trackers.Set(maker, taker, domain.NewPriceTracker(domain.PriceTrackerWindow))
	})

	return nil
}

// StopAlgorithm tears the active run down: every per-order expiry watcher is
// cancelled, open orders are dropped, all price offers and trackers are
// cleared, and background polling re-arms. No stale quote survives a stop.
func (e *Engine) StopAlgorithm(ctx context.Context, reason string) error {
	if !e.casState(StateRunning, StateStopping) && !e.casState(StateStarting, StateStopping) {
		return domain.ErrAlgorithmIdle
	}
	slog.Info("stopping rebalancing algorithm", "reason", reason)

	e.mu.Lock()
	for signature, stop := range e.watchers {
		close(stop)
		delete(e.watchers, signature)
	}
	cancelled := make([]string, 0, len(e.openOrders))
	for signature := range e.openOrders {
		cancelled = append(cancelled, signature)
	}
	e.openOrders = make(map[string]domain.OpenOrder)

	e.limitPrices = domain.NewPairMap[float64]()
	e.limitAmounts = domain.NewPairMap[*big.Int]()
	e.initialPrices = nil
	e.trackers = nil
	e.goalFractions = nil
	e.recomputeLiquidityLocked()
	e.mu.Unlock()

	if e.audit != nil {
		now := e.now()
		for _, signature := range cancelled {
			if err := e.audit.MarkOrderClosed(ctx, signature, "cancelled", now); err != nil {
				slog.Warn("audit write failed", "err", err)
			}
		}
		if err := e.audit.RecordHalt(ctx, reason, now); err != nil {
			slog.Warn("audit write failed", "err", err)
		}
	}

	e.algState.Store(int32(StateIdle))
	e.notify(ctx, "Rebalancing stopped: "+reason)
	return nil
}

// iterate is one Running cycle: refresh state, replan, run the safety
// breakers, republish prices and limits, rebuild liquidity. Any halt
// condition stops the algorithm synchronously, before the offending price
// would be published.
func (e *Engine) iterate(ctx context.Context) {
	start := e.now()

	if err := e.Refresh(ctx); err != nil {
		slog.Warn("iteration skipped: refresh failed", "err", err)
		return
	}

	e.mu.Lock()
	goal := e.goalFractions
	e.mu.Unlock()
	if goal == nil {
		return // stopped while refreshing
	}

	plan, err := e.Plan(ctx, goal)
	if err != nil {
		var cfgErr *domain.ConfigurationError
		if errors.As(err, &cfgErr) {
			// Cannot happen mid-run without operator interference, but if
			// it does the run must not act on a broken goal set.
			e.halt(ctx, cfgErr.Error())
			return
		}
		// Transient rights lookup failure: the plan is not executable until
		// the lookup succeeds, so this cycle does not act on it.
		slog.Warn("iteration skipped: plan not executable", "err", err)
		return
	}
	if !plan.Executable {
		err := &domain.InsufficientRightsError{Needed: plan.NeededIntents, Missing: plan.MissingRights}
		e.halt(ctx, err.Error())
		return
	}

	e.mu.Lock()
	e.plan = plan

	for _, intent := range e.intents {
		if e.cfg.ContinuousUpdate {
			live := e.cfg.PriceModifier * intent.Price
			if drift := e.checkDriftLocked(intent, live); drift != nil {
				e.mu.Unlock()
				e.halt(ctx, drift.Error())
				return
			}
			if live > 0 {
				e.limitPrices.Set(intent.MakerToken, intent.TakerToken, live)
			}
		}
		e.applyLimitAmountLocked(intent, plan)
	}
	e.recomputeLiquidityLocked()

	summary := domain.CycleSummary{
		At:             start,
		TotalValueUSD:  e.portfolio.TotalValueUSD,
		OpenOrders:     len(e.openOrders),
		ActiveIntents:  len(e.intents),
		AlgorithmState: e.State().String(),
	}
	e.mu.Unlock()

	if e.audit != nil {
		if err := e.audit.RecordCycle(ctx, summary); err != nil {
			slog.Warn("audit write failed", "err", err)
		}
	}

	slog.Info("iteration complete",
		"total_usd", fmt.Sprintf("%.2f", summary.TotalValueUSD),
		"intents", summary.ActiveIntents,
		"open_orders", summary.OpenOrders,
		"duration", time.Since(start).Round(time.Millisecond),
	)
}

// applyLimitAmountLocked derives the quotable limit amount for one intent
// from the plan's deltas. Sell intents (token→ETH) are limited to the amount
// being disposed of; buy intents (WETH→token) convert the taker-side delta
// into WETH raw units through the decimals ratio and the pair price. Other
// intents carry no limit. Caller holds mu.
func (e *Engine) applyLimitAmountLocked(intent domain.Intent, plan *domain.RebalancePlan) {
	switch {
	case intent.TakerToken == e.registry.ETH && plan.Delta(intent.MakerToken).Sign() < 0:
		limit := new(big.Int).Neg(plan.Delta(intent.MakerToken))
		e.limitAmounts.Set(intent.MakerToken, intent.TakerToken, limit)

	case intent.MakerToken == e.registry.WETH && plan.Delta(intent.TakerToken).Sign() > 0:
		price, ok := e.limitPrices.Get(intent.MakerToken, intent.TakerToken)
		if !ok || price <= 0 {
			return
		}
		makerProps, okM := e.registry.Props(intent.MakerToken)
		takerProps, okT := e.registry.Props(intent.TakerToken)
		if !okM || !okT {
			return
		}
		limit := decimal.NewFromBigInt(plan.Delta(intent.TakerToken), 0).
			Div(takerProps.Scale()).
			Mul(makerProps.Scale()).
			Div(decimal.NewFromFloat(price)).
			Floor().BigInt()
		e.limitAmounts.Set(intent.MakerToken, intent.TakerToken, limit)
	}
}

// halt stops the run from inside an iteration, synchronously.
func (e *Engine) halt(ctx context.Context, reason string) {
	if err := e.StopAlgorithm(ctx, reason); err != nil {
		slog.Warn("halt", "reason", reason, "err", err)
	}
}
