package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/swapmaker/swapmaker/internal/domain"
	"github.com/swapmaker/swapmaker/internal/ports"
)

// SetPrice sets the maker→taker limit price for a pair. Non-positive prices
// are ignored.
func (e *Engine) SetPrice(maker, taker common.Address, price float64) {
	if price <= 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.limitPrices.Set(maker, taker, price)
}

// GetPrice returns the limit price for a pair and whether one is set.
func (e *Engine) GetPrice(maker, taker common.Address) (float64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.limitPrices.Get(maker, taker)
}

// SetLimitAmount sets the maximum maker-side quantity quotable on a pair and
// recomputes liquidity.
func (e *Engine) SetLimitAmount(maker, taker common.Address, amount *big.Int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.limitAmounts.Set(maker, taker, new(big.Int).Set(amount))
	e.recomputeLiquidityLocked()
}

// GetLimitAmount returns the configured limit amount for a pair.
func (e *Engine) GetLimitAmount(maker, taker common.Address) (*big.Int, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.limitAmounts.Get(maker, taker)
	if !ok {
		return nil, false
	}
	return new(big.Int).Set(v), true
}

// RemovePriceOffer stops answering requests for a pair.
func (e *Engine) RemovePriceOffer(maker, taker common.Address) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.limitPrices.Delete(maker, taker)
}

// HandleOrderRequest answers one inbound quote request. Safe to call from
// many goroutines at once: the balance lookups suspend without holding mu,
// so other requests interleave freely. Every rejection is log-only; no
// response is sent for requests the engine will not fill.
func (e *Engine) HandleOrderRequest(ctx context.Context, req ports.OrderRequest) {
	if e.blacklist[req.TakerAddress] {
		return
	}
	if !req.OneSided() {
		// Neither or both amounts set: the engine only fills one-sided
		// requests.
		return
	}

	makerProps, okM := e.registry.Props(req.MakerToken)
	takerProps, okT := e.registry.Props(req.TakerToken)
	if !okM || !okT {
		return
	}

	e.mu.Lock()
	price, okPrice := e.limitPrices.Get(req.MakerToken, req.TakerToken)
	_, okLiq := e.liquidity.Get(req.MakerToken, req.TakerToken)
	e.mu.Unlock()
	if !okPrice || !okLiq {
		return
	}

	if req.MakerAmount != nil {
		slog.Info("order request: counterparty buys maker token",
			"from", req.TakerAddress.Hex(),
			"amount", fmt.Sprintf("%.6f %s", makerProps.Human(req.MakerAmount), makerProps.Symbol),
			"pays_in", takerProps.Symbol,
		)
	} else {
		slog.Info("order request: counterparty sells taker token",
			"from", req.TakerAddress.Hex(),
			"amount", fmt.Sprintf("%.6f %s", takerProps.Human(req.TakerAmount), takerProps.Symbol),
			"buys", makerProps.Symbol,
		)
	}

	counterpartyBalance, err := e.fetchCounterpartyBalance(ctx, req)
	if err != nil {
		slog.Warn("order request dropped: counterparty balance lookup failed",
			"from", req.TakerAddress.Hex(), "err", err)
		return
	}

	answerMaker, answerTaker := sizeOrder(req, price)
	if answerMaker == nil || answerTaker == nil || answerMaker.Sign() <= 0 || answerTaker.Sign() <= 0 {
		return
	}

	if counterpartyBalance.Cmp(answerTaker) < 0 {
		slog.Info("order rejected: counterparty balance insufficient",
			"from", req.TakerAddress.Hex(),
			"has", fmt.Sprintf("%.6f %s", takerProps.Human(counterpartyBalance), takerProps.Symbol),
			"needs", fmt.Sprintf("%.6f %s", takerProps.Human(answerTaker), takerProps.Symbol),
		)
		return
	}

	expiresAt := e.now().Add(e.cfg.ExpirationWindow)
	fields := domain.OrderFields{
		MakerAddress: e.signer.Address(),
		MakerAmount:  answerMaker,
		MakerToken:   req.MakerToken,
		TakerAddress: req.TakerAddress,
		TakerAmount:  answerTaker,
		TakerToken:   req.TakerToken,
		Expiration:   expiresAt.Unix(),
		Nonce:        uuid.NewString(),
	}
	signed, err := e.signer.SignOrder(ctx, fields)
	if err != nil {
		slog.Warn("order signing failed", "err", err)
		return
	}

	open := domain.OpenOrder{
		Order:     signed,
		CreatedAt: e.now(),
		ExpiresAt: expiresAt,
	}
	signature := signed.Signature()

	// Liquidity is checked and the order booked under one lock hold, so
	// requests suspended on the balance lookup above cannot both claim the
	// same inventory. The liquidity read at the top only gates whether the
	// pair is quoted at all.
	e.mu.Lock()
	liquidity, ok := e.liquidity.Get(req.MakerToken, req.TakerToken)
	if !ok || liquidity.Cmp(answerMaker) < 0 {
		e.mu.Unlock()
		slog.Info("order rejected: own liquidity insufficient",
			"pair", makerProps.Symbol+"/"+takerProps.Symbol,
			"asked", fmt.Sprintf("%.6f %s", makerProps.Human(answerMaker), makerProps.Symbol),
		)
		return
	}
	stop := make(chan struct{})
	e.openOrders[signature] = open
	e.watchers[signature] = stop
	e.recomputeLiquidityLocked()
	e.mu.Unlock()

	if err := e.transport.SendOrder(ctx, req.TakerAddress, req.ID, signed); err != nil {
		slog.Warn("order response not sent", "to", req.TakerAddress.Hex(), "err", err)
		e.mu.Lock()
		if _, booked := e.openOrders[signature]; booked {
			delete(e.openOrders, signature)
			delete(e.watchers, signature)
			e.recomputeLiquidityLocked()
		}
		e.mu.Unlock()
		return
	}

	slog.Info("order sent",
		"to", req.TakerAddress.Hex(),
		"maker", fmt.Sprintf("%.6f %s", makerProps.Human(answerMaker), makerProps.Symbol),
		"taker", fmt.Sprintf("%.6f %s", takerProps.Human(answerTaker), takerProps.Symbol),
		"expires", expiresAt.Format(time.RFC3339),
	)

	if e.audit != nil {
		if err := e.audit.RecordOrder(ctx, open); err != nil {
			slog.Warn("audit write failed", "err", err)
		}
	}

	go e.watchExpiration(ctx, open, stop)
}

// fetchCounterpartyBalance reads the requester's balances of both tokens and
// returns the taker-side one, which gates whether they can pay.
func (e *Engine) fetchCounterpartyBalance(ctx context.Context, req ports.OrderRequest) (*big.Int, error) {
	var (
		takerSide *big.Int
		errTaker  error
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		takerSide, errTaker = e.chain.TokenBalance(ctx, req.TakerToken, req.TakerAddress)
	}()
	// The maker-side balance is informational only.
	makerSide, errMaker := e.chain.TokenBalance(ctx, req.MakerToken, req.TakerAddress)
	<-done

	if errTaker != nil {
		return nil, errTaker
	}
	if errMaker == nil {
		slog.Debug("counterparty balances",
			"address", req.TakerAddress.Hex(),
			"maker_side", makerSide.String(),
			"taker_side", takerSide.String(),
		)
	}
	return takerSide, nil
}

// sizeOrder fills in the missing side of a one-sided request from the limit
// price, rounding to whole raw units.
func sizeOrder(req ports.OrderRequest, price float64) (makerAmount, takerAmount *big.Int) {
	p := decimal.NewFromFloat(price)
	if p.Sign() <= 0 {
		return nil, nil
	}
	if req.MakerAmount != nil {
		makerAmount = req.MakerAmount
		takerAmount = decimal.NewFromBigInt(req.MakerAmount, 0).Mul(p).Round(0).BigInt()
		return makerAmount, takerAmount
	}
	takerAmount = req.TakerAmount
	makerAmount = decimal.NewFromBigInt(req.TakerAmount, 0).DivRound(p, 0).BigInt()
	return makerAmount, takerAmount
}

// watchExpiration checks the order against its expiration once a second.
// When the order expires while still open it is removed, liquidity is
// recomputed, and an update is kicked so an active run can react to the
// freed or consumed liquidity. The watcher fires at most once and is
// cancelled through stop when the order leaves the books by another path.
func (e *Engine) watchExpiration(ctx context.Context, order domain.OpenOrder, stop <-chan struct{}) {
	ticker := time.NewTicker(expiryResolution)
	defer ticker.Stop()

	signature := order.Order.Signature()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !order.Expired(e.now()) {
				continue
			}

			e.mu.Lock()
			_, stillOpen := e.openOrders[signature]
			if stillOpen {
				delete(e.openOrders, signature)
				delete(e.watchers, signature)
				e.recomputeLiquidityLocked()
			}
			e.mu.Unlock()

			if stillOpen {
				slog.Info("order expired", "signature", shortSig(signature))
				if e.audit != nil {
					if err := e.audit.MarkOrderClosed(ctx, signature, "expired", e.now()); err != nil {
						slog.Warn("audit write failed", "err", err)
					}
				}
				e.onOrderUpdate(ctx)
			}
			return
		}
	}
}

func shortSig(sig string) string {
	if len(sig) > 18 {
		return sig[:18] + "…"
	}
	return sig
}
