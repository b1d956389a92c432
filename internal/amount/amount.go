// Package amount renders and parses fixed-point token amounts.
package amount

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// USDTDecimals is the decimal exponent of the tracked stablecoin on both chains.
const USDTDecimals = 6

var ErrNegative = errors.New("amount: negative value")

// Format renders v as "{whole}.{fraction}" with exactly decimals fractional
// digits. A nil v is treated as zero. Negative values are rendered with their
// sign; use FormatChecked where that must be rejected.
func Format(v *big.Int, decimals uint) string {
	if v == nil {
		v = new(big.Int)
	}
	return decimal.NewFromBigInt(v, -int32(decimals)).StringFixed(int32(decimals))
}

// FormatChecked is Format for values that must be non-negative.
func FormatChecked(v *big.Int, decimals uint) (string, error) {
	if v != nil && v.Sign() < 0 {
		return "", ErrNegative
	}
	return Format(v, decimals), nil
}

// Parse converts a decimal string back into the token's smallest unit.
// More fractional precision than decimals allows is an error, never rounded.
func Parse(s string, decimals uint) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("amount: parse %q: %w", s, err)
	}
	if d.Sign() < 0 {
		return nil, ErrNegative
	}
	units := d.Shift(int32(decimals))
	if !units.Equal(units.Truncate(0)) {
		return nil, fmt.Errorf("amount: %q has more than %d fractional digits", s, decimals)
	}
	return units.BigInt(), nil
}

// Sum adds values without mutating them.
func Sum(values ...*big.Int) *big.Int {
	total := new(big.Int)
	for _, v := range values {
		if v != nil {
			total.Add(total, v)
		}
	}
	return total
}
