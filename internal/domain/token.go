package domain

import (
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// TokenProps describes a tradable asset: its display symbol and the decimal
// precision used to convert between raw integer units and human units.
type TokenProps struct {
	Symbol   string
	Decimals int
}

// Scale returns the scaling factor 10^decimals.
func (p TokenProps) Scale() decimal.Decimal {
	return decimal.New(1, int32(p.Decimals))
}

// Human converts a raw unit amount into human units for display and logging.
// Precision loss is acceptable here; raw amounts stay exact everywhere else.
func (p TokenProps) Human(raw *big.Int) float64 {
	if raw == nil {
		return 0
	}
	f, _ := decimal.NewFromBigInt(raw, 0).Div(p.Scale()).Float64()
	return f
}

// Registry holds the known tokens and their properties. ETH and WETH are two
// distinct entries on-chain even though they form one allocation bucket.
type Registry struct {
	ETH  common.Address
	WETH common.Address

	props map[common.Address]TokenProps
}

// NewRegistry creates a Registry with the given ETH and wrapped-ETH addresses.
func NewRegistry(eth, weth common.Address) *Registry {
	return &Registry{
		ETH:   eth,
		WETH:  weth,
		props: make(map[common.Address]TokenProps),
	}
}

// Add registers a token. Re-adding an address overwrites its properties.
func (r *Registry) Add(addr common.Address, props TokenProps) {
	r.props[addr] = props
}

// Props returns the properties of a token and whether it is known.
func (r *Registry) Props(addr common.Address) (TokenProps, bool) {
	p, ok := r.props[addr]
	return p, ok
}

// List returns all registered token addresses in a stable order.
func (r *Registry) List() []common.Address {
	addrs := make([]common.Address, 0, len(r.props))
	for a := range r.props {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool {
		return addrs[i].Cmp(addrs[j]) < 0
	})
	return addrs
}

// Symbols returns the symbols of all registered tokens, deduplicated, in the
// same stable order as List.
func (r *Registry) Symbols() []string {
	seen := make(map[string]bool, len(r.props))
	symbols := make([]string, 0, len(r.props))
	for _, addr := range r.List() {
		s := r.props[addr].Symbol
		if seen[s] {
			continue
		}
		seen[s] = true
		symbols = append(symbols, s)
	}
	return symbols
}
