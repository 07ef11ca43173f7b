package chain

import "math/big"

// weiPerTokenExp and weiPerToken (10^18) are the fixed-point divisor applied
// to every on-chain vote weight and quorum reading: governance tokens are
// expressed as unsigned 256-bit integers in 18-decimal fixed point, and the
// indexer stores them as float64 token units. Amounts beyond 2^53 base
// units (about 0.009 tokens) are no longer exact to the base unit; that
// trade-off is deliberate and documented here rather than re-derived at each
// call site.
const weiPerTokenExp = 18

var weiPerToken = new(big.Float).SetFloat64(1e18)

// WeiToFloat converts a raw 18-decimal fixed-point uint256 (as returned by
// an ERC20Votes-style balance or vote weight) into a float64 token amount.
func WeiToFloat(raw *big.Int) float64 {
	if raw == nil {
		return 0
	}
	f := new(big.Float).SetInt(raw)
	f.Quo(f, weiPerToken)
	v, _ := f.Float64()
	return v
}

// WeiToFloatString converts a decimal-string-encoded uint256 (as carried on
// decoded log events) into a float64 token amount. Invalid input converts
// to 0 rather than panicking, since by the time a vote event reaches this
// conversion its numeric field has already round-tripped through
// abi.Arguments.Unpack.
func WeiToFloatString(raw string) float64 {
	n, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return 0
	}
	return WeiToFloat(n)
}
