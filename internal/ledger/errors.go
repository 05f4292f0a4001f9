package ledger

import "errors"

// Typed gateway failures. Every gateway call fails with one of these
// sentinels (possibly wrapped) rather than an opaque error.
var (
	// ErrInsufficientBalance is returned when a balance or allowance
	// cannot cover the requested amount.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrApprovalFailed is returned when an approval transaction fails.
	ErrApprovalFailed = errors.New("approval failed")

	// ErrReverted is returned when a submitted transaction reverts.
	ErrReverted = errors.New("transaction reverted")

	// ErrTimeout is returned when confirmation exceeds the caller's
	// deadline. Treated as a step failure, not a separate error class.
	ErrTimeout = errors.New("confirmation timeout")

	// ErrNetwork is returned for transport-level failures.
	ErrNetwork = errors.New("network error")

	// ErrUnsupportedBatch is returned by gateways that cannot submit
	// batched calls; callers fall back to sequential execution.
	ErrUnsupportedBatch = errors.New("batch submission not supported")
)
