package recovery

import (
	"context"
	"math/big"
	"time"

	"github.com/google/uuid"

	"base-lp-agent/internal/domain"
	"base-lp-agent/internal/ledger"
	"base-lp-agent/internal/slippage"
)

// UpdatePool shares the discovered pool with the engine so rollback can
// reach the gauge. Called by the agent after discovery; the engine only
// reads the gauge address.
func (e *Engine) UpdatePool(pool *domain.PoolInfo) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.gauge = pool.GaugeAddress
}

// refundExcess reports any base-asset balance above the originally
// requested amount as refundable. Succeeds only when there is an actual
// excess; nothing to refund lets the chain continue.
func (e *Engine) refundExcess(ctx context.Context, ectx domain.ErrorContext) domain.StepResult {
	if ectx.RequestedAmount == nil {
		return failed("no requested amount recorded")
	}
	balance, err := e.gateway.Balance(ctx, e.cfg.BaseToken)
	if err != nil {
		return failed("read base balance: " + err.Error())
	}
	excess := new(big.Int).Sub(balance, ectx.RequestedAmount)
	if excess.Sign() <= 0 {
		return failed("no excess base-asset balance to refund")
	}

	// The excess stays in the wallet; this action reports it so the
	// caller can return it to the user.
	e.logger.Printf("[recovery] excess base balance available for refund: %s", excess)
	return succeeded()
}

// liquidateResiduals swaps any non-dust TokenA/TokenB balances back to
// the base asset. Succeeds when at least one residual was liquidated.
func (e *Engine) liquidateResiduals(ctx context.Context, kind domain.RecoveryKind) domain.StepResult {
	deadline, err := slippage.Deadline(time.Now(), e.cfg.DeadlineWindow)
	if err != nil {
		return failed(err.Error())
	}

	recovered := 0
	for _, route := range []struct {
		token string
		op    domain.StepOp
	}{
		{e.cfg.TokenA, domain.OpSwapAToBase},
		{e.cfg.TokenB, domain.OpSwapBToBase},
	} {
		balance, err := e.gateway.Balance(ctx, route.token)
		if err != nil {
			return failed("read balance of " + route.token + ": " + err.Error())
		}
		if balance.Cmp(e.cfg.DustThreshold) <= 0 {
			continue // below dust, not worth acting on
		}

		// Emergency path: completion beats price, so the swap runs
		// unbounded.
		res, err := e.gateway.SubmitSwap(ctx, ledger.SwapParams{
			Op:       route.op,
			Route:    ledger.Route{From: route.token, To: e.cfg.BaseToken},
			AmountIn: balance,
			MinOut:   new(big.Int),
			Deadline: deadline,
		})
		if err != nil {
			e.logger.Printf("[recovery] %s: liquidate %s failed: %v", kind, route.token, err)
			continue
		}
		if res.Success {
			recovered++
		}
	}

	if recovered == 0 {
		return failed("no residual balances above the dust threshold")
	}
	return succeeded()
}

// emergencyUnstake pulls every remaining liquidity token out of the
// gauge. Succeeds only when something was actually staked.
func (e *Engine) emergencyUnstake(ctx context.Context) domain.StepResult {
	e.mu.Lock()
	gauge := e.gauge
	e.mu.Unlock()
	if gauge == "" {
		return failed("no gauge known to the engine")
	}

	staked, err := e.gateway.StakedBalance(ctx, gauge)
	if err != nil {
		return failed("read staked balance: " + err.Error())
	}
	if staked.Sign() == 0 {
		return failed("nothing staked")
	}

	res, err := e.gateway.SubmitUnstake(ctx, gauge, staked)
	if err != nil {
		return failed("unstake: " + err.Error())
	}
	return res
}

// manualReport snapshots balances and logs an intervention record. This
// is a reporting action, not a corrective one; it always succeeds so
// the chain never exhausts silently.
func (e *Engine) manualReport(ctx context.Context, ectx domain.ErrorContext) domain.StepResult {
	reportID := "manual-" + uuid.NewString()

	e.logger.Printf("[recovery] manual intervention required (%s)", reportID)
	e.logger.Printf("[recovery]   flow=%s step=%s err=%v", ectx.Flow, ectx.FailedStep, ectx.Err)
	for _, token := range []string{e.cfg.BaseToken, e.cfg.TokenA, e.cfg.TokenB} {
		if token == "" {
			continue
		}
		if balance, err := e.gateway.Balance(ctx, token); err == nil {
			e.logger.Printf("[recovery]   balance %s = %s", token, balance)
		}
	}
	e.logger.Printf("[recovery]   check transaction status, approvals, pool liquidity and gauge state")

	res := succeeded()
	res.TxHash = "" // reporting only, nothing submitted
	return res
}

func succeeded() domain.StepResult {
	return domain.StepResult{Success: true, Timestamp: time.Now().UnixMilli()}
}

func failed(msg string) domain.StepResult {
	return domain.StepResult{Err: msg, Timestamp: time.Now().UnixMilli()}
}
