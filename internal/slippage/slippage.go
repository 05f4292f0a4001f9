// Package slippage computes bounded output amounts and transaction
// deadlines. All values submitted on-chain are derived with integer
// arithmetic; floating point never touches a final amount.
package slippage

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// Default bounds, matching the protocol conventions.
const (
	DefaultPct = 0.5 // percent
	MinPct     = 0.1
	MaxPct     = 5.0

	DefaultDeadlineWindow = 30 * time.Minute
)

// ErrInvalidInput is returned for out-of-range amounts, percentages or
// deadline windows.
var ErrInvalidInput = errors.New("invalid input")

const bpsDenominator = 10_000

// MinOutput returns the minimum acceptable output for a desired amount at
// the given slippage tolerance: desired × (10000 − bps) / 10000, where
// bps = round(pct × 100). Tolerances finer than one basis point (0.01%)
// are rejected, so the result is always strictly less than desired.
func MinOutput(desired *big.Int, pct float64) (*big.Int, error) {
	if desired == nil || desired.Sign() <= 0 {
		return nil, fmt.Errorf("%w: desired amount must be positive", ErrInvalidInput)
	}
	if pct < 0.01 || pct > 100 {
		return nil, fmt.Errorf("%w: slippage percent must be in [0.01,100], got %g", ErrInvalidInput, pct)
	}

	// Round, not truncate: pct arrives as a float and 0.29×100 lands just
	// below 29.
	bps := int64(math.Round(pct * 100))
	out := new(big.Int).Mul(desired, big.NewInt(bpsDenominator-bps))
	out.Div(out, big.NewInt(bpsDenominator))
	return out, nil
}

// Deadline returns the Unix-seconds deadline for a transaction submitted
// at now with the given validity window.
func Deadline(now time.Time, window time.Duration) (int64, error) {
	if window <= 0 {
		return 0, fmt.Errorf("%w: deadline window must be positive", ErrInvalidInput)
	}
	return now.Unix() + int64(window/time.Second), nil
}

// SplitHalf splits an amount 50/50. The second half absorbs the
// remainder, so first + second always equals the original and the two
// halves differ by at most one minimal unit.
func SplitHalf(amount *big.Int) (first, second *big.Int) {
	first = new(big.Int).Rsh(amount, 1)
	second = new(big.Int).Sub(amount, first)
	return first, second
}

// ParseAmount converts a human decimal string into base units at the
// given token precision. The conversion is exact; fractional parts finer
// than the precision are rejected.
func ParseAmount(s string, decimals int) (*big.Int, error) {
	if decimals < 0 {
		return nil, fmt.Errorf("%w: negative decimals", ErrInvalidInput)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q is not a decimal number", ErrInvalidInput, s)
	}
	scaled := d.Shift(int32(decimals))
	if !scaled.IsInteger() {
		return nil, fmt.Errorf("%w: %q has more than %d decimal places", ErrInvalidInput, s, decimals)
	}
	return scaled.BigInt(), nil
}

// FormatAmount renders base units as a human decimal string at the given
// token precision.
func FormatAmount(amount *big.Int, decimals int) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount, -int32(decimals)).String()
}
