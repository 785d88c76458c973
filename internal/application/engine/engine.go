package engine

import (
	"context"
	"log/slog"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/swapmaker/swapmaker/internal/domain"
	"github.com/swapmaker/swapmaker/internal/ports"
)

const (
	defaultPollInterval     = 30 * time.Second
	defaultExpirationWindow = 300 * time.Second
	defaultRelativeLimit    = 0.20
	defaultAverageLimit     = 0.10
	defaultTolerance        = 0.001
	defaultPriceModifier    = 1.0

	// expiryResolution is how often each open order is checked against its
	// expiration timestamp.
	expiryResolution = time.Second
)

// Config holds the engine tunables.
type Config struct {
	PollInterval        time.Duration
	ExpirationWindow    time.Duration
	RelativeChangeLimit float64
	AverageChangeLimit  float64
	FractionTolerance   float64
	PriceModifier       float64
	// ContinuousUpdate enables live repricing and the drift circuit
	// breakers during an active run. When false, quoted prices stay at
	// their initial values for the whole run.
	ContinuousUpdate bool
	// Blacklist lists requester addresses that are silently ignored.
	Blacklist []common.Address
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.ExpirationWindow <= 0 {
		c.ExpirationWindow = defaultExpirationWindow
	}
	if c.RelativeChangeLimit <= 0 {
		c.RelativeChangeLimit = defaultRelativeLimit
	}
	if c.AverageChangeLimit <= 0 {
		c.AverageChangeLimit = defaultAverageLimit
	}
	if c.FractionTolerance <= 0 {
		c.FractionTolerance = defaultTolerance
	}
	if c.PriceModifier <= 0 {
		c.PriceModifier = defaultPriceModifier
	}
	return c
}

// Engine owns all market-making state: the latest portfolio snapshot, limit
// prices and amounts, computed liquidity, open orders and the rebalancing
// run. External collaborators reach it only through its methods; shared state
// is guarded by mu and never held across I/O.
type Engine struct {
	cfg      Config
	registry *domain.Registry

	prices    ports.PriceSource
	chain     ports.BalanceReader
	rights    ports.TradingRightsSource
	transport ports.OrderTransport
	signer    ports.OrderSigner
	notifier  ports.Notifier
	audit     ports.AuditLog // nil = auditing disabled

	mu           sync.Mutex
	portfolio    *domain.PortfolioState
	limitPrices  *domain.PairMap[float64]
	limitAmounts *domain.PairMap[*big.Int]
	liquidity    *domain.PairMap[*big.Int]
	openOrders   map[string]domain.OpenOrder
	watchers     map[string]chan struct{}
	blacklist    map[common.Address]bool

	goalFractions map[common.Address]float64
	intents       []domain.Intent
	plan          *domain.RebalancePlan
	initialPrices *domain.PairMap[float64]
	trackers      *domain.PairMap[*domain.PriceTracker]

	algState atomic.Int32
	inFlight atomic.Bool

	// now is swappable in tests.
	now func() time.Time
}

// New wires an Engine from its collaborators. audit may be nil.
func New(
	cfg Config,
	registry *domain.Registry,
	prices ports.PriceSource,
	chain ports.BalanceReader,
	rights ports.TradingRightsSource,
	transport ports.OrderTransport,
	signer ports.OrderSigner,
	notifier ports.Notifier,
	audit ports.AuditLog,
) *Engine {
	cfg = cfg.withDefaults()

	blacklist := make(map[common.Address]bool, len(cfg.Blacklist))
	for _, a := range cfg.Blacklist {
		blacklist[a] = true
	}

	return &Engine{
		cfg:          cfg,
		registry:     registry,
		prices:       prices,
		chain:        chain,
		rights:       rights,
		transport:    transport,
		signer:       signer,
		notifier:     notifier,
		audit:        audit,
		portfolio:    &domain.PortfolioState{},
		limitPrices:  domain.NewPairMap[float64](),
		limitAmounts: domain.NewPairMap[*big.Int](),
		liquidity:    domain.NewPairMap[*big.Int](),
		openOrders:   make(map[string]domain.OpenOrder),
		watchers:     make(map[string]chan struct{}),
		blacklist:    blacklist,
		now:          time.Now,
	}
}

// Portfolio returns the last refreshed portfolio state.
func (e *Engine) Portfolio() *domain.PortfolioState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.portfolio
}

// LastPlan returns the most recent rebalance plan, or nil before the first one.
func (e *Engine) LastPlan() *domain.RebalancePlan {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.plan
}

// Intents returns the intents currently confirmed on the venue.
func (e *Engine) Intents() []domain.Intent {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.Intent, len(e.intents))
	copy(out, e.intents)
	return out
}

// OpenOrders returns a snapshot of the outstanding signed offers.
func (e *Engine) OpenOrders() []domain.OpenOrder {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.OpenOrder, 0, len(e.openOrders))
	for _, o := range e.openOrders {
		out = append(out, o)
	}
	return out
}

func (e *Engine) notify(ctx context.Context, message string) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Notify(ctx, message); err != nil {
		slog.Warn("notifier error", "err", err)
	}
}
