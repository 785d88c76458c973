package domain

import "github.com/ethereum/go-ethereum/common"

// Intent declares willingness to trade a (maker, taker) pair. Price is the
// reference maker→taker exchange rate in raw units, derived from external USD
// valuations and the tokens' decimal scaling.
type Intent struct {
	MakerToken common.Address
	TakerToken common.Address
	Price      float64
}

// ReferencePrice computes the raw-unit exchange rate for a pair from USD
// prices: how many taker raw units one maker raw unit is worth.
//
//	price = usdMaker/usdTaker × 10^takerDecimals / 10^makerDecimals
//
// Returns 0 if either USD price is unknown or non-positive.
func ReferencePrice(usdMaker, usdTaker float64, makerProps, takerProps TokenProps) float64 {
	if usdMaker <= 0 || usdTaker <= 0 {
		return 0
	}
	scaleRatio, _ := takerProps.Scale().Div(makerProps.Scale()).Float64()
	return usdMaker / usdTaker * scaleRatio
}
