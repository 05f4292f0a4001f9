package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// FlowKind identifies which saga a request or error belongs to.
type FlowKind string

const (
	FlowDeposit  FlowKind = "deposit"
	FlowWithdraw FlowKind = "withdraw"
)

// ErrInvalidRequest is returned when a flow request fails validation.
// Validation failures are rejected before any step runs and never
// trigger recovery.
var ErrInvalidRequest = errors.New("invalid request")

// DepositRequest describes one deposit flow: convert Amount of the base
// asset into the two pool assets, add liquidity and stake the result.
type DepositRequest struct {
	Amount      string  // base-asset units, decimal string
	SlippagePct float64 // 0 = use the agent default
	UseBatching bool
	OptimizeGas bool
}

// Validate checks the request shape.
func (r DepositRequest) Validate() error {
	amt, err := decimal.NewFromString(r.Amount)
	if err != nil {
		return fmt.Errorf("%w: amount %q is not a decimal number", ErrInvalidRequest, r.Amount)
	}
	if amt.Sign() <= 0 {
		return fmt.Errorf("%w: amount must be positive, got %s", ErrInvalidRequest, r.Amount)
	}
	return validateSlippage(r.SlippagePct)
}

// WithdrawRequest describes one withdraw flow: unstake Percentage of the
// staked position, remove liquidity and swap both sides back to the base
// asset.
type WithdrawRequest struct {
	Percentage  int // 1-100
	SlippagePct float64
	UseBatching bool
	OptimizeGas bool
}

// Validate checks the request shape.
func (r WithdrawRequest) Validate() error {
	if r.Percentage < 1 || r.Percentage > 100 {
		return fmt.Errorf("%w: percentage must be in [1,100], got %d", ErrInvalidRequest, r.Percentage)
	}
	return validateSlippage(r.SlippagePct)
}

func validateSlippage(pct float64) error {
	if pct == 0 {
		return nil // agent default applies
	}
	// One basis point is the finest tolerance the amount math can express.
	if pct < 0.01 || pct > 100 {
		return fmt.Errorf("%w: slippage must be in [0.01,100], got %g", ErrInvalidRequest, pct)
	}
	return nil
}
