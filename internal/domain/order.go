package domain

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// OrderFields are the unsigned fields of a swap order. Amounts are raw
// integer units. Expiration is an absolute unix timestamp in seconds.
type OrderFields struct {
	MakerAddress common.Address
	MakerAmount  *big.Int
	MakerToken   common.Address
	TakerAddress common.Address
	TakerAmount  *big.Int
	TakerToken   common.Address
	Expiration   int64
	Nonce        string
}

// SignedOrder is an order plus its ECDSA signature components.
type SignedOrder struct {
	OrderFields

	SigV uint8
	SigR string // 0x-prefixed 32-byte hex
	SigS string // 0x-prefixed 32-byte hex
}

// Signature returns the concatenated v+r+s string that uniquely identifies
// the order. Used as the key for open-order tracking.
func (o SignedOrder) Signature() string {
	return fmt.Sprintf("%d%s%s", o.SigV, o.SigR, o.SigS)
}

// OpenOrder is a signed, outstanding offer the engine has handed to a
// counterparty. It stays open until its expiration passes; fills are detected
// only by the order being gone from our books when the expiry check fires.
type OpenOrder struct {
	Order     SignedOrder
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the order's expiration has passed at the given time.
func (o OpenOrder) Expired(now time.Time) bool {
	return now.After(o.ExpiresAt)
}
