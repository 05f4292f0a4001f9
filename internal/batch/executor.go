// Package batch submits groups of independent sub-calls as a single
// ledger transaction, falling back to sequential execution when the
// gateway cannot batch.
package batch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"base-lp-agent/internal/domain"
	"base-lp-agent/internal/ledger"
	"base-lp-agent/internal/observability"
)

// Mode selects batch failure semantics. Re-exported so callers do not
// need to import the ledger package for it.
type Mode = ledger.BatchMode

const (
	BestEffort   = ledger.BestEffort
	AllOrNothing = ledger.AllOrNothing
)

// ErrDependentCalls is returned when a batch violates the independence
// precondition: some call consumes the output of another call in the
// same batch.
var ErrDependentCalls = errors.New("batch contains dependent calls")

// Executor submits batches through a ledger gateway.
type Executor struct {
	gateway ledger.Gateway
}

// NewExecutor creates a batch executor.
func NewExecutor(gateway ledger.Gateway) *Executor {
	return &Executor{gateway: gateway}
}

// Execute runs the calls as one atomic batch when possible. All calls
// must be mutually independent; dependent calls fail with
// ErrDependentCalls before anything is submitted. Gateways that cannot
// batch degrade to sequential execution in call order, preserving
// per-call results.
func (e *Executor) Execute(ctx context.Context, calls []ledger.Call, mode Mode) ([]domain.StepResult, error) {
	if len(calls) == 0 {
		return nil, nil
	}
	if err := checkIndependence(calls); err != nil {
		return nil, err
	}
	if len(calls) == 1 {
		res, err := e.executeOne(ctx, calls[0])
		return []domain.StepResult{res}, err
	}

	results, err := e.gateway.SubmitBatch(ctx, calls, mode)
	if errors.Is(err, ledger.ErrUnsupportedBatch) {
		return e.executeSequential(ctx, calls, mode)
	}
	observability.RecordBatch(string(mode), len(calls), err == nil)
	return results, err
}

// checkIndependence verifies no call's declared input asset is produced
// by another call in the batch.
func checkIndependence(calls []ledger.Call) error {
	produced := make(map[string]domain.StepOp, len(calls))
	for _, c := range calls {
		if c.OutputAsset != "" {
			produced[strings.ToLower(c.OutputAsset)] = c.Op
		}
	}
	for _, c := range calls {
		if c.InputAsset == "" {
			continue
		}
		if producer, ok := produced[strings.ToLower(c.InputAsset)]; ok {
			return fmt.Errorf("%w: %s consumes the output of %s", ErrDependentCalls, c.Op, producer)
		}
	}
	return nil
}

// executeSequential runs calls one by one. In AllOrNothing mode the
// first failure aborts the remainder; already-submitted calls cannot be
// rolled back without ledger-native atomicity, so their results are
// still reported.
func (e *Executor) executeSequential(ctx context.Context, calls []ledger.Call, mode Mode) ([]domain.StepResult, error) {
	results := make([]domain.StepResult, 0, len(calls))
	for _, call := range calls {
		res, err := e.executeOne(ctx, call)
		results = append(results, res)
		if err != nil && mode == AllOrNothing {
			return results, fmt.Errorf("sequential batch aborted at %s: %w", call.Op, err)
		}
	}
	return results, nil
}

func (e *Executor) executeOne(ctx context.Context, call ledger.Call) (domain.StepResult, error) {
	switch call.Kind {
	case ledger.CallApprove:
		if err := e.gateway.EnsureApproval(ctx, call.Token, call.Spender, call.Amount); err != nil {
			return domain.StepResult{Op: call.Op, Err: err.Error()}, err
		}
		return domain.StepResult{Op: call.Op, Success: true}, nil
	case ledger.CallSwap:
		return e.gateway.SubmitSwap(ctx, *call.Swap)
	default:
		err := fmt.Errorf("unknown call kind %q", call.Kind)
		return domain.StepResult{Op: call.Op, Err: err.Error()}, err
	}
}
