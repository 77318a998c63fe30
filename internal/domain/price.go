package domain

import "math/bits"

// Price is a trade price expressed as a ratio of two integer amounts:
// BaseAmount of the base asset per QuoteAmount of the quote asset. Prices
// are never stored or compared as floats; comparison is exact via
// cross-multiplication.
type Price struct {
	BaseAmount  int64
	QuoteAmount int64
}

// Cmp compares two prices as ratios: a/b against c/d is decided by a*d
// against c*b. The products are computed in 128 bits so no int64 amount pair
// can overflow. Amounts must be non-negative. Returns -1, 0 or 1.
func (p Price) Cmp(o Price) int {
	lhsHi, lhsLo := bits.Mul64(uint64(p.BaseAmount), uint64(o.QuoteAmount))
	rhsHi, rhsLo := bits.Mul64(uint64(o.BaseAmount), uint64(p.QuoteAmount))
	if lhsHi != rhsHi {
		if lhsHi < rhsHi {
			return -1
		}
		return 1
	}
	if lhsLo != rhsLo {
		if lhsLo < rhsLo {
			return -1
		}
		return 1
	}
	return 0
}

// Less reports whether p is a lower price than o.
func (p Price) Less(o Price) bool {
	return p.Cmp(o) < 0
}

// Equal reports whether p and o are the same ratio. Note that 2/1 and 4/2
// are equal as prices even though the amount pairs differ.
func (p Price) Equal(o Price) bool {
	return p.Cmp(o) == 0
}

// Float64 converts the ratio for display and export only. Never use the
// result for high/low comparisons.
func (p Price) Float64() float64 {
	if p.QuoteAmount == 0 {
		return 0
	}
	return float64(p.BaseAmount) / float64(p.QuoteAmount)
}
