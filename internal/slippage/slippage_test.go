package slippage

import (
	"errors"
	"math/big"
	"testing"
	"time"
)

func TestMinOutput_HalfPercent(t *testing.T) {
	// 1000000 at 0.5% → 1000000 × 9950 / 10000 = 995000
	out, err := MinOutput(big.NewInt(1_000_000), 0.5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Int64() != 995_000 {
		t.Errorf("expected 995000, got %s", out)
	}
}

func TestMinOutput_FullRange(t *testing.T) {
	// For all valid pct: result = d×(10000-bps)/10000 exactly, and result < d.
	desired := big.NewInt(123_456_789)
	for _, pct := range []float64{0.1, 0.5, 1, 2.5, 5, 50, 100} {
		out, err := MinOutput(desired, pct)
		if err != nil {
			t.Fatalf("pct %g: unexpected error: %v", pct, err)
		}
		bps := int64(pct * 100)
		want := new(big.Int).Mul(desired, big.NewInt(10_000-bps))
		want.Div(want, big.NewInt(10_000))
		if out.Cmp(want) != 0 {
			t.Errorf("pct %g: expected %s, got %s", pct, want, out)
		}
		if out.Cmp(desired) >= 0 {
			t.Errorf("pct %g: minOutput %s not strictly less than desired %s", pct, out, desired)
		}
	}
}

func TestMinOutput_RoundsToNearestBasisPoint(t *testing.T) {
	// 0.29×100 is 28.999... in binary floating point; truncation would
	// yield 28 bps. The tolerance must map to 29 bps exactly.
	out, err := MinOutput(big.NewInt(10_000), 0.29)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Int64() != 9_971 {
		t.Errorf("expected 9971, got %s", out)
	}

	// One basis point is the floor of the domain; the output must still be
	// strictly below the desired amount.
	out, err = MinOutput(big.NewInt(10_000), 0.01)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Int64() != 9_999 {
		t.Errorf("expected 9999, got %s", out)
	}
}

func TestMinOutput_DoesNotMutateInput(t *testing.T) {
	desired := big.NewInt(1_000_000)
	if _, err := MinOutput(desired, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if desired.Int64() != 1_000_000 {
		t.Errorf("desired was mutated: %s", desired)
	}
}

func TestMinOutput_InvalidInput(t *testing.T) {
	cases := []struct {
		name    string
		desired *big.Int
		pct     float64
	}{
		{"zero amount", big.NewInt(0), 0.5},
		{"negative amount", big.NewInt(-1), 0.5},
		{"nil amount", nil, 0.5},
		{"zero pct", big.NewInt(100), 0},
		{"negative pct", big.NewInt(100), -1},
		{"pct below one basis point", big.NewInt(100), 0.005},
		{"pct above 100", big.NewInt(100), 100.01},
	}
	for _, tc := range cases {
		if _, err := MinOutput(tc.desired, tc.pct); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("%s: expected ErrInvalidInput, got %v", tc.name, err)
		}
	}
}

func TestDeadline(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	got, err := Deadline(now, 30*time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 1_700_000_000+1800 {
		t.Errorf("expected %d, got %d", 1_700_000_000+1800, got)
	}

	if _, err := Deadline(now, 0); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for zero window, got %v", err)
	}
}

func TestSplitHalf_SumInvariant(t *testing.T) {
	for _, n := range []int64{1, 2, 3, 100, 101, 999_999_999} {
		amount := big.NewInt(n)
		a, b := SplitHalf(amount)

		sum := new(big.Int).Add(a, b)
		if sum.Cmp(amount) != 0 {
			t.Errorf("n=%d: halves sum to %s, want %s", n, sum, amount)
		}
		diff := new(big.Int).Sub(b, a)
		if diff.CmpAbs(big.NewInt(1)) > 0 {
			t.Errorf("n=%d: halves differ by %s, want at most 1", n, diff)
		}
	}
}

func TestParseAmount(t *testing.T) {
	// USDC-style 6 decimals
	got, err := ParseAmount("100", 6)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Int64() != 100_000_000 {
		t.Errorf("expected 100000000, got %s", got)
	}

	got, err = ParseAmount("0.5", 6)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Int64() != 500_000 {
		t.Errorf("expected 500000, got %s", got)
	}

	// Finer than the token precision must be rejected, not rounded.
	if _, err := ParseAmount("0.0000001", 6); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for sub-precision amount, got %v", err)
	}
	if _, err := ParseAmount("abc", 6); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for non-decimal, got %v", err)
	}
}

func TestFormatAmount_RoundTrip(t *testing.T) {
	for _, s := range []string{"100", "0.5", "123.456789"} {
		parsed, err := ParseAmount(s, 6)
		if err != nil {
			t.Fatalf("parse %q: %v", s, err)
		}
		if got := FormatAmount(parsed, 6); got != s {
			t.Errorf("round trip %q → %q", s, got)
		}
	}
}
