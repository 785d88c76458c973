package domain

import (
	"errors"
	"fmt"
	"math/big"
)

// ErrAlgorithmActive is returned when a start is requested while a
// rebalancing run is already active.
var ErrAlgorithmActive = errors.New("rebalancing algorithm already active")

// ErrAlgorithmIdle is returned when a stop is requested with no active run.
var ErrAlgorithmIdle = errors.New("rebalancing algorithm not active")

// ConfigurationError reports goal fractions that do not sum to 1 within
// tolerance. It is fatal to starting; no partial plan state is produced.
type ConfigurationError struct {
	Sum       float64
	Tolerance float64
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("goal fractions sum to %.6f, off from 1 by more than %.4f", e.Sum, e.Tolerance)
}

// InsufficientRightsError reports that the trading-rights balance cannot
// cover the intents the plan needs. Recoverable: acquire rights and restart.
type InsufficientRightsError struct {
	Needed  int
	Missing *big.Int
}

func (e *InsufficientRightsError) Error() string {
	return fmt.Sprintf("trading rights short by %s for %d intents", e.Missing, e.Needed)
}

// DriftKind distinguishes the two drift circuit breakers.
type DriftKind string

const (
	// DriftRelative fires when the live price leaves the band around the
	// initial snapshot taken at algorithm start.
	DriftRelative DriftKind = "relative"
	// DriftAverage fires when the live price leaves the band around the
	// rolling average of recently quoted prices.
	DriftAverage DriftKind = "average"
)

// PriceDriftError reports the pair whose live price tripped a drift bound.
// The engine halts before the triggering price is ever published.
type PriceDriftError struct {
	Kind        DriftKind
	MakerSymbol string
	TakerSymbol string
	Ratio       float64
}

func (e *PriceDriftError) Error() string {
	return fmt.Sprintf("%s price drift on %s/%s: ratio %.4f", e.Kind, e.MakerSymbol, e.TakerSymbol, e.Ratio)
}
