package saga

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"base-lp-agent/internal/domain"
	"base-lp-agent/internal/ledger"
	"base-lp-agent/internal/observability"
	"base-lp-agent/internal/slippage"
)

// maxApproval is the allowance granted for approvals whose exact amount
// is not known in advance (batched anticipated approvals).
var maxApproval = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// ExecuteDeposit runs the deposit flow: split the base amount in half,
// swap each half into one pool asset, add the full resulting balances as
// liquidity and stake the minted tokens. A non-nil error means the flow
// was rejected before it started; once started, the outcome is reported
// through the FlowResult.
func (a *Agent) ExecuteDeposit(ctx context.Context, req domain.DepositRequest) (FlowResult, error) {
	if err := req.Validate(); err != nil {
		return FlowResult{}, err
	}
	amount, err := slippage.ParseAmount(req.Amount, a.baseDecimals)
	if err != nil {
		return FlowResult{}, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}
	pool, err := a.currentPool()
	if err != nil {
		return FlowResult{}, err
	}
	if !a.flowMu.TryLock() {
		return FlowResult{}, ErrFlowInProgress
	}
	defer a.flowMu.Unlock()

	pct := req.SlippagePct
	if pct == 0 {
		pct = a.slippagePct
	}

	a.stats.RecordFlowStart()
	sess := newSession(newFlowID(), domain.FlowDeposit)
	startedAt := time.Now().UnixMilli()
	a.logger.Printf("[saga] deposit start: amount=%s slippage=%.2f%% batching=%t optimize_gas=%t",
		req.Amount, pct, req.UseBatching, req.OptimizeGas)

	// Balance check is read-only: failure aborts with no compensation.
	if err := sess.advance(stateCheckBalance); err != nil {
		return a.failFlow(ctx, sess, domain.OpCheckBalance, amount, err), nil
	}
	balance, err := a.gateway.Balance(ctx, a.baseToken)
	if err != nil {
		return a.failFlow(ctx, sess, domain.OpCheckBalance, amount, err), nil
	}
	if balance.Cmp(amount) < 0 {
		err := fmt.Errorf("%w: have %s, need %s", ledger.ErrInsufficientBalance, balance, amount)
		return a.failFlow(ctx, sess, domain.OpCheckBalance, amount, err), nil
	}

	halfA, halfB := slippage.SplitHalf(amount)

	if req.UseBatching {
		if res, failed := a.depositBatched(ctx, sess, pool, pct, amount, halfA, halfB); failed {
			return res, nil
		}
	} else {
		if res, failed := a.depositSequential(ctx, sess, pct, amount, halfA, halfB); failed {
			return res, nil
		}
	}

	// Add liquidity consumes the full current balances of both assets,
	// residuals included. Never batched with the swaps that fund it.
	var lpTokens *big.Int
	err = a.runStep(ctx, sess, stateAddLiquidity, func(ctx context.Context) (domain.StepResult, error) {
		balA, err := a.gateway.Balance(ctx, a.tokenA)
		if err != nil {
			return domain.StepResult{}, err
		}
		balB, err := a.gateway.Balance(ctx, a.tokenB)
		if err != nil {
			return domain.StepResult{}, err
		}
		if err := a.gateway.EnsureApproval(ctx, a.tokenA, a.gateway.Router(), balA); err != nil {
			return domain.StepResult{}, err
		}
		if err := a.gateway.EnsureApproval(ctx, a.tokenB, a.gateway.Router(), balB); err != nil {
			return domain.StepResult{}, err
		}
		minA, err := slippage.MinOutput(balA, pct)
		if err != nil {
			return domain.StepResult{}, err
		}
		minB, err := slippage.MinOutput(balB, pct)
		if err != nil {
			return domain.StepResult{}, err
		}
		deadline, err := slippage.Deadline(time.Now(), a.deadline)
		if err != nil {
			return domain.StepResult{}, err
		}
		return a.gateway.SubmitAddLiquidity(ctx, ledger.AddLiquidityParams{
			TokenA: a.tokenA, TokenB: a.tokenB, Stable: pool.Stable,
			AmountA: balA, AmountB: balB,
			MinA: minA, MinB: minB,
			Deadline: deadline,
		})
	})
	if err != nil {
		return a.failFlow(ctx, sess, domain.OpAddLiquidity, amount, err), nil
	}

	err = a.runStep(ctx, sess, stateStake, func(ctx context.Context) (domain.StepResult, error) {
		lp, err := a.gateway.Balance(ctx, pool.Address)
		if err != nil {
			return domain.StepResult{}, err
		}
		if err := a.gateway.EnsureApproval(ctx, pool.Address, pool.GaugeAddress, lp); err != nil {
			return domain.StepResult{}, err
		}
		lpTokens = lp
		return a.gateway.SubmitStake(ctx, pool.GaugeAddress, lp)
	})
	if err != nil {
		return a.failFlow(ctx, sess, domain.OpStake, amount, err), nil
	}

	if err := sess.advance(stateCompleted); err != nil {
		return a.failFlow(ctx, sess, domain.OpStake, amount, err), nil
	}

	staked, err := a.gateway.StakedBalance(ctx, pool.GaugeAddress)
	if err != nil {
		staked = lpTokens
	}

	receipt := &domain.PositionReceipt{
		PositionID:    sess.id,
		UserAddress:   a.gateway.Owner(),
		DepositAmount: req.Amount,
		LPTokens:      lpTokens.String(),
		StakedAmount:  staked.String(),
		PoolAddress:   pool.Address,
		GaugeAddress:  pool.GaugeAddress,
		Timestamp:     startedAt,
		Steps:         sess.steps,
	}

	a.stats.RecordFlowSuccess()
	a.emitSteps(sess)
	observability.RecordFlow(string(sess.flow), true, time.Since(sess.startedAt))
	a.logger.Printf("[saga] deposit complete: position=%s staked=%s", receipt.PositionID, receipt.StakedAmount)

	return FlowResult{Success: true, Steps: sess.steps, Position: receipt}, nil
}

// depositSequential runs the two acquisition swaps one at a time, each
// preceded by its own approval.
func (a *Agent) depositSequential(ctx context.Context, sess *session, pct float64, amount, halfA, halfB *big.Int) (FlowResult, bool) {
	swaps := []struct {
		state flowState
		op    domain.StepOp
		to    string
		in    *big.Int
	}{
		{stateSwapA, domain.OpSwapBaseToA, a.tokenA, halfA},
		{stateSwapB, domain.OpSwapBaseToB, a.tokenB, halfB},
	}

	for _, sw := range swaps {
		sw := sw
		err := a.runStep(ctx, sess, sw.state, func(ctx context.Context) (domain.StepResult, error) {
			if err := a.gateway.EnsureApproval(ctx, a.baseToken, a.gateway.Router(), sw.in); err != nil {
				return domain.StepResult{}, err
			}
			params, err := a.swapParams(ctx, sw.op, a.baseToken, sw.to, sw.in, pct)
			if err != nil {
				return domain.StepResult{}, err
			}
			return a.gateway.SubmitSwap(ctx, params)
		})
		if err != nil {
			return a.failFlow(ctx, sess, sw.op, amount, err), true
		}
	}
	return FlowResult{}, false
}

// depositBatched groups the approvals for the whole flow into one
// best-effort batch, then submits both acquisition swaps as a second,
// all-or-nothing batch. The two swaps consume the same input asset and
// produce different outputs, so they are mutually independent.
func (a *Agent) depositBatched(ctx context.Context, sess *session, pool *domain.PoolInfo, pct float64, amount, halfA, halfB *big.Int) (FlowResult, bool) {
	router := a.gateway.Router()

	approvals := []ledger.Call{
		{Kind: ledger.CallApprove, Op: domain.OpApprove, InputAsset: a.baseToken, Token: a.baseToken, Spender: router, Amount: amount},
		{Kind: ledger.CallApprove, Op: domain.OpApprove, InputAsset: a.tokenA, Token: a.tokenA, Spender: router, Amount: maxApproval},
		{Kind: ledger.CallApprove, Op: domain.OpApprove, InputAsset: a.tokenB, Token: a.tokenB, Spender: router, Amount: maxApproval},
		{Kind: ledger.CallApprove, Op: domain.OpApprove, InputAsset: pool.Address, Token: pool.Address, Spender: pool.GaugeAddress, Amount: maxApproval},
	}

	sess.mutated = true
	results, err := a.batch.Execute(ctx, approvals, ledger.BestEffort)
	if err != nil {
		return a.failFlow(ctx, sess, domain.OpApprove, amount, err), true
	}
	for _, res := range results {
		if !res.Success {
			sess.record(results...)
			err := fmt.Errorf("%w: %s", ledger.ErrApprovalFailed, res.Err)
			return a.failFlow(ctx, sess, domain.OpApprove, amount, err), true
		}
	}
	sess.record(results...)

	paramsA, err := a.swapParams(ctx, domain.OpSwapBaseToA, a.baseToken, a.tokenA, halfA, pct)
	if err != nil {
		return a.failFlow(ctx, sess, domain.OpSwapBaseToA, amount, err), true
	}
	paramsB, err := a.swapParams(ctx, domain.OpSwapBaseToB, a.baseToken, a.tokenB, halfB, pct)
	if err != nil {
		return a.failFlow(ctx, sess, domain.OpSwapBaseToB, amount, err), true
	}

	swaps := []ledger.Call{
		{Kind: ledger.CallSwap, Op: domain.OpSwapBaseToA, InputAsset: a.baseToken, OutputAsset: a.tokenA, Swap: &paramsA},
		{Kind: ledger.CallSwap, Op: domain.OpSwapBaseToB, InputAsset: a.baseToken, OutputAsset: a.tokenB, Swap: &paramsB},
	}

	if err := sess.advance(stateSwapA); err != nil {
		return a.failFlow(ctx, sess, domain.OpBatch, amount, err), true
	}
	if err := sess.advance(stateSwapB); err != nil {
		return a.failFlow(ctx, sess, domain.OpBatch, amount, err), true
	}

	results, err = a.batch.Execute(ctx, swaps, ledger.AllOrNothing)
	if err != nil {
		return a.failFlow(ctx, sess, domain.OpBatch, amount, err), true
	}
	sess.record(results...)
	return FlowResult{}, false
}

// swapParams quotes a swap and derives its bounded minimum and deadline.
func (a *Agent) swapParams(ctx context.Context, op domain.StepOp, from, to string, amountIn *big.Int, pct float64) (ledger.SwapParams, error) {
	quote, err := a.gateway.QuoteSwap(ctx, ledger.Route{From: from, To: to}, amountIn)
	if err != nil {
		return ledger.SwapParams{}, fmt.Errorf("quote %s: %w", op, err)
	}
	minOut, err := slippage.MinOutput(quote, pct)
	if err != nil {
		return ledger.SwapParams{}, err
	}
	deadline, err := slippage.Deadline(time.Now(), a.deadline)
	if err != nil {
		return ledger.SwapParams{}, err
	}
	return ledger.SwapParams{
		Op:       op,
		Route:    ledger.Route{From: from, To: to},
		AmountIn: amountIn,
		MinOut:   minOut,
		Deadline: deadline,
	}, nil
}
