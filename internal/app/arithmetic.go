package app

import (
	"math"
	"math/bits"

	errorsmod "cosmossdk.io/errors"
)

func addUint64Checked(a uint64, b uint64, field string) (uint64, error) {
	if a > ^uint64(0)-b {
		return 0, errorsmod.Wrapf(ErrOverflow, "%s overflows uint64", field)
	}
	return a + b, nil
}

func mulUint64Checked(a uint64, b uint64, field string) (uint64, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	if a > ^uint64(0)/b {
		return 0, errorsmod.Wrapf(ErrOverflow, "%s overflows uint64", field)
	}
	return a * b, nil
}

func addInt64AndU64Checked(base int64, delta uint64, field string) (int64, error) {
	if delta > uint64(math.MaxInt64) {
		return 0, errorsmod.Wrapf(ErrOverflow, "%s overflows int64", field)
	}
	d := int64(delta)
	if base > math.MaxInt64-d {
		return 0, errorsmod.Wrapf(ErrOverflow, "%s overflows int64", field)
	}
	return base + d, nil
}

// shareCut returns amount*bps/10000 rounded down, so rounding dust always
// stays with the payer.
func shareCut(amount uint64, bps uint32) uint64 {
	if amount == 0 || bps == 0 {
		return 0
	}
	if bps > 10000 {
		bps = 10000
	}
	hi, lo := bits.Mul64(amount, uint64(bps))
	q, _ := bits.Div64(hi, lo, 10000)
	return q
}
