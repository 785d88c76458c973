package ports

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/swapmaker/swapmaker/internal/domain"
)

// OrderRequest is an inbound request for a quote on a (maker, taker) pair.
// Exactly one of MakerAmount/TakerAmount should be set (nil = unspecified);
// the engine only fills one-sided requests.
type OrderRequest struct {
	// ID is the transport-level request id echoed back in the response.
	ID string
	// TakerAddress is the counterparty asking for the quote.
	TakerAddress common.Address

	MakerToken  common.Address
	TakerToken  common.Address
	MakerAmount *big.Int
	TakerAmount *big.Int
}

// OneSided reports whether exactly one amount is specified.
func (r OrderRequest) OneSided() bool {
	return (r.MakerAmount == nil) != (r.TakerAmount == nil)
}

// OrderHandler answers inbound order requests. Implementations must be
// re-entrant: the transport dispatches each request on its own goroutine and
// several may be in flight while earlier ones await balance lookups.
type OrderHandler interface {
	HandleOrderRequest(ctx context.Context, req OrderRequest)
}

// OrderTransport is the connection to the swap venue: intent management,
// inbound request delivery and outbound signed-order responses.
type OrderTransport interface {
	// PostIntents replaces the set of intents posted on the venue.
	PostIntents(ctx context.Context, intents []domain.Intent) error

	// GetIntents re-reads the intents currently registered on the venue.
	GetIntents(ctx context.Context) ([]domain.Intent, error)

	// SetOrderHandler registers the handler invoked for inbound requests.
	SetOrderHandler(h OrderHandler)

	// SendOrder returns a signed order to the counterparty that requested it.
	SendOrder(ctx context.Context, taker common.Address, requestID string, order domain.SignedOrder) error
}

// OrderSigner signs order fields with the maker's wallet key.
type OrderSigner interface {
	// SignOrder hashes and signs the fields, returning the order verbatim
	// with its signature attached.
	SignOrder(ctx context.Context, fields domain.OrderFields) (domain.SignedOrder, error)

	// Address is the maker wallet address the signatures belong to.
	Address() common.Address
}
