package domain

import "github.com/ethereum/go-ethereum/common"

// PairMap is a two-level map keyed by (makerToken, takerToken). An absent pair
// is distinct from a pair present with a zero value, which matters for limit
// prices and liquidity where "unset" means "do not quote".
type PairMap[V any] struct {
	m map[common.Address]map[common.Address]V
}

// NewPairMap creates an empty PairMap.
func NewPairMap[V any]() *PairMap[V] {
	return &PairMap[V]{m: make(map[common.Address]map[common.Address]V)}
}

// Get returns the value for (maker, taker) and whether it is set.
func (p *PairMap[V]) Get(maker, taker common.Address) (V, bool) {
	inner, ok := p.m[maker]
	if !ok {
		var zero V
		return zero, false
	}
	v, ok := inner[taker]
	return v, ok
}

// Set stores the value for (maker, taker).
func (p *PairMap[V]) Set(maker, taker common.Address, v V) {
	inner, ok := p.m[maker]
	if !ok {
		inner = make(map[common.Address]V)
		p.m[maker] = inner
	}
	inner[taker] = v
}

// Delete removes the pair if present.
func (p *PairMap[V]) Delete(maker, taker common.Address) {
	inner, ok := p.m[maker]
	if !ok {
		return
	}
	delete(inner, taker)
	if len(inner) == 0 {
		delete(p.m, maker)
	}
}

// Len returns the number of pairs set.
func (p *PairMap[V]) Len() int {
	n := 0
	for _, inner := range p.m {
		n += len(inner)
	}
	return n
}

// ForEach calls fn for every (maker, taker, value) triple. Iteration order is
// unspecified. fn must not mutate the map.
func (p *PairMap[V]) ForEach(fn func(maker, taker common.Address, v V)) {
	for maker, inner := range p.m {
		for taker, v := range inner {
			fn(maker, taker, v)
		}
	}
}

// Clone returns a shallow copy: pair structure is copied, values are not.
func (p *PairMap[V]) Clone() *PairMap[V] {
	c := NewPairMap[V]()
	p.ForEach(func(maker, taker common.Address, v V) {
		c.Set(maker, taker, v)
	})
	return c
}
