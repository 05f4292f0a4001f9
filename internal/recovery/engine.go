// Package recovery runs the compensation chain after a flow failure: an
// ordered list of actions per flow kind, executed until the first one
// reports success. The manual-intervention report always succeeds, so
// every chain terminates with an auditable record.
package recovery

import (
	"context"
	"log"
	"math/big"
	"sync"
	"time"

	"base-lp-agent/internal/domain"
	"base-lp-agent/internal/ledger"
	"base-lp-agent/internal/observability"
	"base-lp-agent/internal/stats"
)

// DefaultDustThreshold is the balance below which stuck tokens are not
// worth recovering (0.001 at 18 decimals).
var DefaultDustThreshold = big.NewInt(1_000_000_000_000_000)

// Config parameterizes the engine.
type Config struct {
	BaseToken string
	TokenA    string
	TokenB    string
	// DustThreshold applies to TokenA/TokenB balances during stuck-token
	// recovery. Nil selects DefaultDustThreshold.
	DustThreshold *big.Int
	// DeadlineWindow bounds recovery swap validity. Zero selects 30m.
	DeadlineWindow time.Duration
}

// Result is the outcome of one recovery chain.
type Result struct {
	Recovered        bool
	Attempts         []domain.RecoveryAttempt
	FinalBaseBalance *big.Int
}

// HistoryEntry is one recorded failure and how its chain ended.
type HistoryEntry struct {
	Context    domain.ErrorContext
	Recovered  bool // a corrective action succeeded
	Manual     bool // the manual report completed the chain
	RecordedAt int64
}

// Engine executes recovery chains.
type Engine struct {
	gateway ledger.Gateway
	stats   *stats.Ledger
	cfg     Config
	logger  *log.Logger

	mu      sync.Mutex
	gauge   string
	history []HistoryEntry
}

// NewEngine creates a recovery engine. logger may be nil.
func NewEngine(gateway ledger.Gateway, ledgerStats *stats.Ledger, cfg Config, logger *log.Logger) *Engine {
	if cfg.DustThreshold == nil {
		cfg.DustThreshold = DefaultDustThreshold
	}
	if cfg.DeadlineWindow <= 0 {
		cfg.DeadlineWindow = 30 * time.Minute
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{gateway: gateway, stats: ledgerStats, cfg: cfg, logger: logger}
}

// actionTable maps a flow kind to its ordered compensation chain. The
// chain is data; Handle dispatches each kind to its executor.
var actionTable = map[domain.FlowKind][]domain.RecoveryKind{
	domain.FlowDeposit:  {domain.RecoveryRefund, domain.RecoveryRecoverStuck, domain.RecoveryManual},
	domain.FlowWithdraw: {domain.RecoveryRetry, domain.RecoveryRollback, domain.RecoveryManual},
}

// genericChain handles unknown flow kinds.
var genericChain = []domain.RecoveryKind{domain.RecoveryRecoverStuck, domain.RecoveryManual}

var actionDescriptions = map[domain.RecoveryKind]string{
	domain.RecoveryRefund:       "report base-asset balance in excess of the requested amount as refundable",
	domain.RecoveryRecoverStuck: "liquidate residual pool-asset balances back to the base asset",
	domain.RecoveryRetry:        "retry the withdrawal's remaining liquidation steps",
	domain.RecoveryRollback:     "emergency-unstake remaining liquidity tokens",
	domain.RecoveryManual:       "produce a manual-intervention report",
}

// Handle runs the compensation chain for a failure. Actions run strictly
// in order and the chain stops at the first success; every invocation is
// recorded in history and in the operation stats regardless of outcome.
func (e *Engine) Handle(ctx context.Context, ectx domain.ErrorContext) Result {
	e.logger.Printf("[recovery] %s flow failed at %s: %v", ectx.Flow, ectx.FailedStep, ectx.Err)

	chain, ok := actionTable[ectx.Flow]
	if !ok {
		chain = genericChain
	}

	var result Result
	var manualRan bool

	for _, kind := range chain {
		attempt := domain.RecoveryAttempt{
			Kind:        kind,
			Description: actionDescriptions[kind],
			Result:      e.run(ctx, kind, ectx),
		}
		result.Attempts = append(result.Attempts, attempt)
		e.logger.Printf("[recovery] action %s: success=%t", kind, attempt.Result.Success)
		observability.RecordRecoveryAction(string(kind), attempt.Result.Success)

		if attempt.Result.Success {
			if kind == domain.RecoveryManual {
				manualRan = true
			} else {
				result.Recovered = true
			}
			break
		}
	}

	if balance, err := e.gateway.Balance(ctx, e.cfg.BaseToken); err == nil {
		result.FinalBaseBalance = balance
	}

	e.mu.Lock()
	e.history = append(e.history, HistoryEntry{
		Context:    ectx,
		Recovered:  result.Recovered,
		Manual:     manualRan,
		RecordedAt: time.Now().UnixMilli(),
	})
	e.mu.Unlock()

	e.stats.RecordRecovery(stats.RecoveryOutcome{
		Corrective: result.Recovered,
		Manual:     manualRan,
	})

	return result
}

// History returns a copy of every recorded failure.
func (e *Engine) History() []HistoryEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]HistoryEntry, len(e.history))
	copy(out, e.history)
	return out
}

// ClearHistory drops recorded failures.
func (e *Engine) ClearHistory() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history = nil
}

func (e *Engine) run(ctx context.Context, kind domain.RecoveryKind, ectx domain.ErrorContext) domain.StepResult {
	switch kind {
	case domain.RecoveryRefund:
		return e.refundExcess(ctx, ectx)
	case domain.RecoveryRecoverStuck, domain.RecoveryRetry:
		// A withdrawal retry and stuck-token recovery share the same
		// corrective move: liquidate residual assets to the base token.
		return e.liquidateResiduals(ctx, kind)
	case domain.RecoveryRollback:
		return e.emergencyUnstake(ctx)
	case domain.RecoveryManual:
		return e.manualReport(ctx, ectx)
	default:
		return failed("unknown recovery action")
	}
}
