// Package ledger defines the gateway the agent uses to talk to the
// chain: balance reads, approvals, and submit-and-confirm transaction
// primitives. Concrete implementations live in the evm and memory
// subpackages.
package ledger

import (
	"context"
	"math/big"

	"base-lp-agent/internal/domain"
)

// Route describes one swap hop.
type Route struct {
	From   string
	To     string
	Stable bool
}

// SwapParams parameterizes a swap submission.
type SwapParams struct {
	Op        domain.StepOp
	Route     Route
	AmountIn  *big.Int
	MinOut    *big.Int
	Deadline  int64 // Unix seconds
}

// AddLiquidityParams parameterizes an add-liquidity submission.
type AddLiquidityParams struct {
	TokenA, TokenB   string
	Stable           bool
	AmountA, AmountB *big.Int
	MinA, MinB       *big.Int
	Deadline         int64
}

// RemoveLiquidityParams parameterizes a remove-liquidity submission.
type RemoveLiquidityParams struct {
	TokenA, TokenB string
	Stable         bool
	Liquidity      *big.Int
	MinA, MinB     *big.Int
	Deadline       int64
}

// CallKind tags one batched sub-call.
type CallKind string

const (
	CallApprove CallKind = "approve"
	CallSwap    CallKind = "swap"
)

// Call is one independent sub-call inside a batch. InputAsset and
// OutputAsset declare the call's data flow so the batch executor can
// verify mutual independence before submission.
type Call struct {
	Kind        CallKind
	Op          domain.StepOp
	InputAsset  string
	OutputAsset string // empty when the call produces no asset (approvals)

	// Approval fields
	Token   string
	Spender string
	Amount  *big.Int

	// Swap fields
	Swap *SwapParams
}

// BatchMode selects batch failure semantics.
type BatchMode string

const (
	// BestEffort submits one transaction that tolerates individual
	// sub-call failure; each sub-call reports success independently.
	BestEffort BatchMode = "best_effort"
	// AllOrNothing rolls the whole batch back if any sub-call fails.
	AllOrNothing BatchMode = "all_or_nothing"
)

// Reserves is the raw pool state read for discovery.
type Reserves struct {
	TokenA      string
	TokenB      string
	ReserveA    *big.Int
	ReserveB    *big.Int
	TotalSupply *big.Int
}

// Reader is the read-only surface used by resource discovery. All calls
// are idempotent and side-effect free.
type Reader interface {
	// PoolFor returns the pool address for a pair and variant, or ""
	// if no such pool exists.
	PoolFor(ctx context.Context, tokenA, tokenB string, stable bool) (string, error)
	// GaugeFor returns the gauge address for a pool, or "" if the pool
	// has no gauge.
	GaugeFor(ctx context.Context, pool string) (string, error)
	// PoolState reads the pool's tokens, reserves and total supply.
	PoolState(ctx context.Context, pool string) (Reserves, error)
}

// Gateway exposes every chain primitive the flows need. Each call is
// atomic and awaitable: it blocks until the operation is confirmed or
// failed, honoring the context deadline, and returns either a result or
// a typed error.
type Gateway interface {
	Reader

	// Owner is the wallet address the gateway signs for.
	Owner() string
	// Router is the swap/liquidity router the agent approves as spender.
	Router() string

	Balance(ctx context.Context, token string) (*big.Int, error)
	StakedBalance(ctx context.Context, gauge string) (*big.Int, error)

	// QuoteSwap returns the expected output of a swap at current pool
	// state. Read-only; the bounded minimum is derived from it.
	QuoteSwap(ctx context.Context, route Route, amountIn *big.Int) (*big.Int, error)

	// EnsureApproval makes sure spender may move at least amount of
	// token. Idempotent: a sufficient existing allowance is a no-op.
	EnsureApproval(ctx context.Context, token, spender string, amount *big.Int) error

	SubmitSwap(ctx context.Context, p SwapParams) (domain.StepResult, error)
	SubmitAddLiquidity(ctx context.Context, p AddLiquidityParams) (domain.StepResult, error)
	SubmitRemoveLiquidity(ctx context.Context, p RemoveLiquidityParams) (domain.StepResult, error)
	SubmitStake(ctx context.Context, gauge string, amount *big.Int) (domain.StepResult, error)
	SubmitUnstake(ctx context.Context, gauge string, amount *big.Int) (domain.StepResult, error)

	// SubmitBatch submits independent sub-calls as one transaction.
	// Implementations without batch support return ErrUnsupportedBatch.
	SubmitBatch(ctx context.Context, calls []Call, mode BatchMode) ([]domain.StepResult, error)
}
