package engine

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/swapmaker/swapmaker/internal/domain"
	"github.com/swapmaker/swapmaker/internal/ports"
)

// Shared fakes and fixture for the engine tests. The standard fixture is a
// three-asset portfolio:
//
//	ETH  $100, balance 5    → $500
//	TKA  $10,  balance 0    → $0     (goal 0.3: buy 30, intent WETH→TKA)
//	TKB  $20,  balance 25   → $500   (goal 0.2: sell 15, intent TKB→ETH)
//
// Total $1000, goal {ETH 0.5, TKA 0.3, TKB 0.2}.
var (
	ethAddr   = common.HexToAddress("0x00000000000000000000000000000000000000E1")
	wethAddr  = common.HexToAddress("0x00000000000000000000000000000000000000E2")
	tkaAddr   = common.HexToAddress("0x00000000000000000000000000000000000000A1")
	tkbAddr   = common.HexToAddress("0x00000000000000000000000000000000000000B1")
	makerAddr = common.HexToAddress("0x00000000000000000000000000000000000000F1")
	takerAddr = common.HexToAddress("0x00000000000000000000000000000000000000F2")
)

func eth(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

type fakePrices struct {
	mu  sync.Mutex
	usd map[string]float64
	err error
}

func (f *fakePrices) FetchUSDPrices(context.Context, []string) (map[string]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]float64, len(f.usd))
	for k, v := range f.usd {
		out[k] = v
	}
	return out, nil
}

func (f *fakePrices) set(symbol string, usd float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.usd[symbol] = usd
}

type fakeChain struct {
	mu        sync.Mutex
	balances  map[common.Address]map[common.Address]*big.Int // owner → token → balance
	rights    *big.Int
	rightsErr error
	// balanceDelay stalls TokenBalance, letting tests hold several order
	// requests in flight at once.
	balanceDelay time.Duration
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		balances: make(map[common.Address]map[common.Address]*big.Int),
		rights:   big.NewInt(1000),
	}
}

func (f *fakeChain) setBalance(owner, token common.Address, bal *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.balances[owner] == nil {
		f.balances[owner] = make(map[common.Address]*big.Int)
	}
	f.balances[owner][token] = bal
}

func (f *fakeChain) TokenBalance(_ context.Context, token, owner common.Address) (*big.Int, error) {
	f.mu.Lock()
	delay := f.balanceDelay
	f.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if bal, ok := f.balances[owner][token]; ok {
		return new(big.Int).Set(bal), nil
	}
	return big.NewInt(0), nil
}

func (f *fakeChain) TradingRightsBalance(context.Context, common.Address) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rightsErr != nil {
		return nil, f.rightsErr
	}
	return new(big.Int).Set(f.rights), nil
}

type sentOrder struct {
	Taker     common.Address
	RequestID string
	Order     domain.SignedOrder
}

type fakeTransport struct {
	mu      sync.Mutex
	posted  []domain.Intent
	sent    []sentOrder
	postErr error
	sendErr error
}

func (f *fakeTransport) PostIntents(_ context.Context, intents []domain.Intent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.postErr != nil {
		return f.postErr
	}
	f.posted = append([]domain.Intent(nil), intents...)
	return nil
}

func (f *fakeTransport) GetIntents(context.Context) ([]domain.Intent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Intent(nil), f.posted...), nil
}

func (f *fakeTransport) SetOrderHandler(ports.OrderHandler) {}

func (f *fakeTransport) SendOrder(_ context.Context, taker common.Address, requestID string, order domain.SignedOrder) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, sentOrder{Taker: taker, RequestID: requestID, Order: order})
	return nil
}

func (f *fakeTransport) sentOrders() []sentOrder {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentOrder(nil), f.sent...)
}

type fakeSigner struct {
	mu sync.Mutex
	n  int
}

func (f *fakeSigner) Address() common.Address { return makerAddr }

func (f *fakeSigner) SignOrder(_ context.Context, fields domain.OrderFields) (domain.SignedOrder, error) {
	f.mu.Lock()
	f.n++
	n := f.n
	f.mu.Unlock()
	return domain.SignedOrder{
		OrderFields: fields,
		SigV:        27,
		SigR:        fmt.Sprintf("0x%064x", n),
		SigS:        fmt.Sprintf("0x%064x", n+1),
	}, nil
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (f *fakeNotifier) Notify(_ context.Context, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, message)
	return nil
}

func (f *fakeNotifier) all() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.messages...)
}

type auditEvent struct {
	kind      string
	signature string
	reason    string
}

type fakeAudit struct {
	mu     sync.Mutex
	events []auditEvent
}

func (f *fakeAudit) RecordOrder(_ context.Context, order domain.OpenOrder) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, auditEvent{kind: "order", signature: order.Order.Signature()})
	return nil
}

func (f *fakeAudit) MarkOrderClosed(_ context.Context, signature, reason string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, auditEvent{kind: "closed", signature: signature, reason: reason})
	return nil
}

func (f *fakeAudit) RecordHalt(_ context.Context, reason string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, auditEvent{kind: "halt", reason: reason})
	return nil
}

func (f *fakeAudit) RecordCycle(context.Context, domain.CycleSummary) error { return nil }

func (f *fakeAudit) byKind(kind string) []auditEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []auditEvent
	for _, ev := range f.events {
		if ev.kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

// fakeClock drives the engine's notion of now.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	engine    *Engine
	registry  *domain.Registry
	prices    *fakePrices
	chain     *fakeChain
	transport *fakeTransport
	signer    *fakeSigner
	notifier  *fakeNotifier
	audit     *fakeAudit
	clock     *fakeClock
}

func newFixture(cfg Config) *fixture {
	registry := domain.NewRegistry(ethAddr, wethAddr)
	registry.Add(ethAddr, domain.TokenProps{Symbol: "ETH", Decimals: 18})
	registry.Add(wethAddr, domain.TokenProps{Symbol: "WETH", Decimals: 18})
	registry.Add(tkaAddr, domain.TokenProps{Symbol: "TKA", Decimals: 18})
	registry.Add(tkbAddr, domain.TokenProps{Symbol: "TKB", Decimals: 18})

	prices := &fakePrices{usd: map[string]float64{"ETH": 100, "TKA": 10, "TKB": 20}}
	chain := newFakeChain()
	chain.setBalance(makerAddr, ethAddr, eth(5))
	chain.setBalance(makerAddr, tkbAddr, eth(25))

	transport := &fakeTransport{}
	signer := &fakeSigner{}
	notifier := &fakeNotifier{}
	audit := &fakeAudit{}
	clock := newFakeClock()

	eng := New(cfg, registry, prices, chain, chain, transport, signer, notifier, audit)
	eng.now = clock.Now

	return &fixture{
		engine:    eng,
		registry:  registry,
		prices:    prices,
		chain:     chain,
		transport: transport,
		signer:    signer,
		notifier:  notifier,
		audit:     audit,
		clock:     clock,
	}
}

func standardGoal() map[common.Address]float64 {
	return map[common.Address]float64{
		ethAddr: 0.5,
		tkaAddr: 0.3,
		tkbAddr: 0.2,
	}
}

var errBoom = errors.New("boom")
