package ports

import "context"

// PriceSource fetches current USD valuations for token symbols.
type PriceSource interface {
	// FetchUSDPrices returns the USD price per symbol. Symbols the source
	// does not know are absent from the result. The source is treated as
	// unreliable: errors are transient and the engine does not retry them.
	FetchUSDPrices(ctx context.Context, symbols []string) (map[string]float64, error)
}
