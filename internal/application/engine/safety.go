package engine

import (
	"github.com/swapmaker/swapmaker/internal/domain"
)

// checkDriftLocked runs both drift circuit breakers for one intent against
// the live price about to be quoted. Order matters: the relative check
// compares against the immutable snapshot taken at algorithm start, then the
// live price is pushed into the pair's tracker and compared against the
// rolling average. A non-nil result means the algorithm must halt before the
// triggering price is published. Caller holds mu.
func (e *Engine) checkDriftLocked(intent domain.Intent, live float64) *domain.PriceDriftError {
	if live <= 0 || e.initialPrices == nil || e.trackers == nil {
		return nil
	}
	makerProps, _ := e.registry.Props(intent.MakerToken)
	takerProps, _ := e.registry.Props(intent.TakerToken)

	if initial, ok := e.initialPrices.Get(intent.MakerToken, intent.TakerToken); ok && initial > 0 {
		ratio := initial / live
		if ratio > 1+e.cfg.RelativeChangeLimit || ratio < 1-e.cfg.RelativeChangeLimit {
			return &domain.PriceDriftError{
				Kind:        domain.DriftRelative,
				MakerSymbol: makerProps.Symbol,
				TakerSymbol: takerProps.Symbol,
				Ratio:       ratio,
			}
		}
	}

	if tracker, ok := e.trackers.Get(intent.MakerToken, intent.TakerToken); ok {
		tracker.Push(live)
		ratio := tracker.Average() / live
		if ratio > 1+e.cfg.AverageChangeLimit || ratio < 1-e.cfg.AverageChangeLimit {
			return &domain.PriceDriftError{
				Kind:        domain.DriftAverage,
				MakerSymbol: makerProps.Symbol,
				TakerSymbol: takerProps.Symbol,
				Ratio:       ratio,
			}
		}
	}

	return nil
}
