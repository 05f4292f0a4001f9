package domain

import "math/big"

// ErrorContext captures one flow failure for the recovery engine.
// Created exactly once per failure and retained in recovery history.
type ErrorContext struct {
	Flow            FlowKind
	FailedStep      StepOp
	RequestedAmount *big.Int // base-asset units for deposits, nil otherwise
	Err             error
	Timestamp       int64 // Unix timestamp in milliseconds
}

// RecoveryKind classifies a compensating action.
type RecoveryKind string

const (
	RecoveryRefund       RecoveryKind = "refund"
	RecoveryRetry        RecoveryKind = "retry"
	RecoveryRollback     RecoveryKind = "rollback"
	RecoveryRecoverStuck RecoveryKind = "recover_stuck"
	RecoveryManual       RecoveryKind = "manual"
)

// RecoveryAttempt records one executed compensating action.
type RecoveryAttempt struct {
	Kind        RecoveryKind
	Description string
	Result      StepResult
}

// ErrorRecord is the persisted form of a handled flow failure.
type ErrorRecord struct {
	RecordID        string
	Flow            FlowKind
	FailedStep      StepOp
	RequestedAmount string // base-asset units, empty when unknown
	ErrMessage      string
	Recovered       bool
	Manual          bool
	Timestamp       int64 // Unix timestamp in milliseconds, failure time
}

// RecoveryStats are process-wide recovery counters.
type RecoveryStats struct {
	TotalErrors         uint64
	RecoveredErrors     uint64 // a corrective (non-manual) action ran successfully
	ManualInterventions uint64 // the chain terminated on the manual report
}

// OperationStats are process-wide flow counters. total = successful + failed
// holds between flows.
type OperationStats struct {
	Total      uint64
	Successful uint64
	Failed     uint64
	Recovery   RecoveryStats
}
