// Package saga runs the deposit and withdraw flows: ordered sequences of
// dependent chain operations driven by an explicit state machine, with
// failure handed to the recovery engine and outcomes recorded as
// immutable receipts.
package saga

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"

	"base-lp-agent/internal/batch"
	"base-lp-agent/internal/discovery"
	"base-lp-agent/internal/domain"
	"base-lp-agent/internal/ledger"
	"base-lp-agent/internal/observability"
	"base-lp-agent/internal/recovery"
	"base-lp-agent/internal/slippage"
	"base-lp-agent/internal/stats"
)

var (
	// ErrNotInitialized is returned when a flow starts before Initialize
	// has discovered the pool.
	ErrNotInitialized = errors.New("agent not initialized")

	// ErrFlowInProgress is returned when a second flow is started while
	// one is already running on the session.
	ErrFlowInProgress = errors.New("another flow is in progress")

	// ErrNothingStaked is returned when a withdraw flow finds a zero
	// staked balance.
	ErrNothingStaked = errors.New("nothing staked")
)

// StepSink receives the analytics projection of every executed step.
// Called after the flow reaches a terminal state. May be nil.
type StepSink func(domain.StepEvent)

// Options configures an Agent. Gateway, BaseToken, TokenA and TokenB
// are required; everything else has a working default.
type Options struct {
	Gateway ledger.Gateway

	BaseToken string // the asset deposited and returned
	TokenA    string
	TokenB    string

	// BaseDecimals is the base asset's decimal precision. Zero selects 6.
	BaseDecimals int

	// SlippagePct bounds every swap and liquidity operation. Zero selects
	// the default tolerance.
	SlippagePct float64

	// DeadlineWindow bounds transaction validity. Zero selects 30m.
	DeadlineWindow time.Duration

	// Stats receives flow and recovery counters. Nil creates a fresh ledger.
	Stats *stats.Ledger

	// Recovery handles flow failures. Nil builds an engine over Gateway.
	Recovery *recovery.Engine

	// Batch submits independent sub-calls. Nil builds one over Gateway.
	Batch *batch.Executor

	StepSink StepSink
	Logger   *log.Logger
}

// FlowResult is the outcome of one flow invocation. Err is set when
// Success is false; the step list covers every step that completed.
type FlowResult struct {
	Success    bool
	Steps      []domain.StepResult
	FailedStep domain.StepOp
	Err        error

	Position   *domain.PositionReceipt
	Withdrawal *domain.WithdrawalReceipt
	Recovery   *recovery.Result
}

// Agent orchestrates flows against one pool session. At most one flow
// runs at a time; a second invocation fails with ErrFlowInProgress.
type Agent struct {
	gateway  ledger.Gateway
	stats    *stats.Ledger
	recovery *recovery.Engine
	batch    *batch.Executor
	sink     StepSink
	logger   *log.Logger

	baseToken    string
	tokenA       string
	tokenB       string
	baseDecimals int
	slippagePct  float64
	deadline     time.Duration

	flowMu sync.Mutex // held for the duration of one flow

	mu          sync.RWMutex
	initialized bool
	pool        *domain.PoolInfo
}

// NewAgent creates an agent. Initialize must run before the first flow.
func NewAgent(opts Options) (*Agent, error) {
	if opts.Gateway == nil {
		return nil, errors.New("saga: gateway is required")
	}
	if opts.BaseToken == "" || opts.TokenA == "" || opts.TokenB == "" {
		return nil, errors.New("saga: base token and both pool tokens are required")
	}
	if opts.BaseDecimals == 0 {
		opts.BaseDecimals = 6
	}
	if opts.SlippagePct == 0 {
		opts.SlippagePct = slippage.DefaultPct
	} else if opts.SlippagePct < 0.01 || opts.SlippagePct > 100 {
		return nil, fmt.Errorf("saga: slippage percent must be in [0.01,100], got %g", opts.SlippagePct)
	}
	if opts.DeadlineWindow <= 0 {
		opts.DeadlineWindow = slippage.DefaultDeadlineWindow
	}
	if opts.Stats == nil {
		opts.Stats = stats.NewLedger()
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Recovery == nil {
		opts.Recovery = recovery.NewEngine(opts.Gateway, opts.Stats, recovery.Config{
			BaseToken:      opts.BaseToken,
			TokenA:         opts.TokenA,
			TokenB:         opts.TokenB,
			DeadlineWindow: opts.DeadlineWindow,
		}, opts.Logger)
	}
	if opts.Batch == nil {
		opts.Batch = batch.NewExecutor(opts.Gateway)
	}

	return &Agent{
		gateway:      opts.Gateway,
		stats:        opts.Stats,
		recovery:     opts.Recovery,
		batch:        opts.Batch,
		sink:         opts.StepSink,
		logger:       opts.Logger,
		baseToken:    opts.BaseToken,
		tokenA:       opts.TokenA,
		tokenB:       opts.TokenB,
		baseDecimals: opts.BaseDecimals,
		slippagePct:  opts.SlippagePct,
		deadline:     opts.DeadlineWindow,
	}, nil
}

// Initialize discovers the pool and gauge for the configured pair and
// shares the result with the recovery engine. Idempotent.
func (a *Agent) Initialize(ctx context.Context) error {
	pool, err := discovery.Discover(ctx, a.gateway, a.tokenA, a.tokenB)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	a.mu.Lock()
	a.pool = pool
	a.initialized = true
	a.mu.Unlock()

	a.recovery.UpdatePool(pool)
	a.logger.Printf("[saga] initialized: pool=%s stable=%t gauge=%s", pool.Address, pool.Stable, pool.GaugeAddress)
	return nil
}

// RefreshPool re-runs discovery and replaces the cached pool state.
func (a *Agent) RefreshPool(ctx context.Context) error {
	pool, err := discovery.Discover(ctx, a.gateway, a.tokenA, a.tokenB)
	if err != nil {
		return fmt.Errorf("refresh pool: %w", err)
	}

	a.mu.Lock()
	a.pool = pool
	a.mu.Unlock()

	a.recovery.UpdatePool(pool)
	return nil
}

// PoolInfo returns a copy of the discovered pool, or nil before
// initialization.
func (a *Agent) PoolInfo() *domain.PoolInfo {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.pool == nil {
		return nil
	}
	pool := *a.pool
	return &pool
}

// Status reports the agent's current state and counters.
func (a *Agent) Status() domain.AgentStatus {
	a.mu.RLock()
	defer a.mu.RUnlock()

	status := domain.AgentStatus{
		Initialized:    a.initialized,
		PoolDiscovered: a.pool != nil,
		Stats:          a.stats.Snapshot(),
	}
	if a.pool != nil {
		pool := *a.pool
		status.Pool = &pool
	}
	return status
}

// RecoveryHistory returns the handled failures accumulated since the
// last ClearRecoveryHistory call.
func (a *Agent) RecoveryHistory() []recovery.HistoryEntry {
	return a.recovery.History()
}

// ClearRecoveryHistory drops the accumulated failure history, typically
// after the caller has persisted it.
func (a *Agent) ClearRecoveryHistory() {
	a.recovery.ClearHistory()
}

// currentPool returns the cached pool or ErrNotInitialized.
func (a *Agent) currentPool() (*domain.PoolInfo, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if !a.initialized || a.pool == nil {
		return nil, ErrNotInitialized
	}
	pool := *a.pool
	return &pool, nil
}

// runStep executes one state transition: advance the machine, run the
// operation, record its result. The returned error leaves the session
// ready for failFlow.
func (a *Agent) runStep(ctx context.Context, sess *session, next flowState, fn func(context.Context) (domain.StepResult, error)) error {
	if err := sess.advance(next); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("canceled before %s: %w", next, err)
	}

	res, err := fn(ctx)
	sess.mutated = true
	if err != nil {
		return err
	}
	sess.record(res)
	return nil
}

// failFlow transitions to the terminal failed state, updates counters
// and runs the recovery chain. Failures before the first mutating call
// skip recovery: there is nothing to compensate.
func (a *Agent) failFlow(ctx context.Context, sess *session, op domain.StepOp, requested *big.Int, err error) FlowResult {
	_ = sess.advance(stateFailed)
	a.stats.RecordFlowFailure()
	a.logger.Printf("[saga] %s flow failed at %s: %v", sess.flow, op, err)

	result := FlowResult{
		Steps:      sess.steps,
		FailedStep: op,
		Err:        err,
	}

	if sess.mutated {
		rec := a.recovery.Handle(ctx, domain.ErrorContext{
			Flow:            sess.flow,
			FailedStep:      op,
			RequestedAmount: requested,
			Err:             err,
			Timestamp:       time.Now().UnixMilli(),
		})
		result.Recovery = &rec
	}

	a.emitSteps(sess)
	observability.RecordFlow(string(sess.flow), false, time.Since(sess.startedAt))
	return result
}

// emitSteps publishes the session's steps to the metrics registry and
// the configured sink.
func (a *Agent) emitSteps(sess *session) {
	// Per-step latency is the gap between consecutive completion times;
	// the first step is measured from the session start.
	prev := sess.startedAt.UnixMilli()
	for _, step := range sess.steps {
		latencyMs := step.Timestamp - prev
		if latencyMs < 0 {
			latencyMs = 0
		}
		prev = step.Timestamp

		observability.RecordStep(string(step.Op), step.Success, step.GasUsed,
			time.Duration(latencyMs)*time.Millisecond)
		if a.sink == nil {
			continue
		}
		a.sink(domain.StepEvent{
			FlowID:    sess.id,
			Flow:      sess.flow,
			Op:        step.Op,
			Success:   step.Success,
			TxHash:    step.TxHash,
			GasUsed:   step.GasUsed,
			LatencyMs: latencyMs,
			Timestamp: step.Timestamp,
		})
	}
}

// newFlowID returns the identifier shared by the receipt and the step
// events of one flow.
func newFlowID() string {
	return uuid.NewString()
}
