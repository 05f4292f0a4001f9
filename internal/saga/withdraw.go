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

// ExecuteWithdraw runs the withdraw flow: unstake the requested share of
// liquidity tokens, remove them from the pool and swap the freed assets
// back to the base asset. Zero balances skip their liquidation step. A
// non-nil error means the flow was rejected before it started.
func (a *Agent) ExecuteWithdraw(ctx context.Context, req domain.WithdrawRequest) (FlowResult, error) {
	if err := req.Validate(); err != nil {
		return FlowResult{}, err
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
	sess := newSession(newFlowID(), domain.FlowWithdraw)
	startedAt := time.Now().UnixMilli()
	a.logger.Printf("[saga] withdraw start: percentage=%d%% slippage=%.2f%%", req.Percentage, pct)

	// Staked-balance check is read-only: failure aborts with no
	// compensation.
	if err := sess.advance(stateCheckStaked); err != nil {
		return a.failFlow(ctx, sess, domain.OpCheckStaked, nil, err), nil
	}
	staked, err := a.gateway.StakedBalance(ctx, pool.GaugeAddress)
	if err != nil {
		return a.failFlow(ctx, sess, domain.OpCheckStaked, nil, err), nil
	}
	if staked.Sign() == 0 {
		return a.failFlow(ctx, sess, domain.OpCheckStaked, nil, ErrNothingStaked), nil
	}

	// stakedBalance × percentage / 100, integer math.
	liquidity := new(big.Int).Mul(staked, big.NewInt(int64(req.Percentage)))
	liquidity.Div(liquidity, big.NewInt(100))

	err = a.runStep(ctx, sess, stateUnstake, func(ctx context.Context) (domain.StepResult, error) {
		return a.gateway.SubmitUnstake(ctx, pool.GaugeAddress, liquidity)
	})
	if err != nil {
		return a.failFlow(ctx, sess, domain.OpUnstake, nil, err), nil
	}

	err = a.runStep(ctx, sess, stateRemoveLiquidity, func(ctx context.Context) (domain.StepResult, error) {
		if err := a.gateway.EnsureApproval(ctx, pool.Address, a.gateway.Router(), liquidity); err != nil {
			return domain.StepResult{}, err
		}
		minA, minB, err := a.removalMinimums(ctx, pool, liquidity, pct)
		if err != nil {
			return domain.StepResult{}, err
		}
		deadline, err := slippage.Deadline(time.Now(), a.deadline)
		if err != nil {
			return domain.StepResult{}, err
		}
		return a.gateway.SubmitRemoveLiquidity(ctx, ledger.RemoveLiquidityParams{
			TokenA: a.tokenA, TokenB: a.tokenB, Stable: pool.Stable,
			Liquidity: liquidity,
			MinA:      minA, MinB: minB,
			Deadline: deadline,
		})
	})
	if err != nil {
		return a.failFlow(ctx, sess, domain.OpRemoveLiquidity, nil, err), nil
	}

	liquidations := []struct {
		state flowState
		op    domain.StepOp
		token string
	}{
		{stateLiquidateA, domain.OpSwapAToBase, a.tokenA},
		{stateLiquidateB, domain.OpSwapBToBase, a.tokenB},
	}

	for _, liq := range liquidations {
		liq := liq
		balance, err := a.gateway.Balance(ctx, liq.token)
		if err != nil {
			return a.failFlow(ctx, sess, liq.op, nil, err), nil
		}
		// A zero balance skips the step entirely; it is not a failure.
		if balance.Sign() == 0 {
			continue
		}

		err = a.runStep(ctx, sess, liq.state, func(ctx context.Context) (domain.StepResult, error) {
			if err := a.gateway.EnsureApproval(ctx, liq.token, a.gateway.Router(), balance); err != nil {
				return domain.StepResult{}, err
			}
			params, err := a.swapParams(ctx, liq.op, liq.token, a.baseToken, balance, pct)
			if err != nil {
				return domain.StepResult{}, err
			}
			return a.gateway.SubmitSwap(ctx, params)
		})
		if err != nil {
			return a.failFlow(ctx, sess, liq.op, nil, err), nil
		}
	}

	if err := sess.advance(stateCompleted); err != nil {
		return a.failFlow(ctx, sess, domain.OpSwapBToBase, nil, err), nil
	}

	finalBase, err := a.gateway.Balance(ctx, a.baseToken)
	if err != nil {
		finalBase = new(big.Int)
	}

	receipt := &domain.WithdrawalReceipt{
		WithdrawalID:    sess.id,
		UserAddress:     a.gateway.Owner(),
		WithdrawnAmount: liquidity.String(),
		ReturnedBase:    slippage.FormatAmount(finalBase, a.baseDecimals),
		PoolAddress:     pool.Address,
		GaugeAddress:    pool.GaugeAddress,
		Timestamp:       startedAt,
		Steps:           sess.steps,
	}

	a.stats.RecordFlowSuccess()
	a.emitSteps(sess)
	observability.RecordFlow(string(sess.flow), true, time.Since(sess.startedAt))
	a.logger.Printf("[saga] withdraw complete: withdrawal=%s returned=%s", receipt.WithdrawalID, receipt.ReturnedBase)

	return FlowResult{Success: true, Steps: sess.steps, Withdrawal: receipt}, nil
}

// removalMinimums derives the bounded minimum amounts for a liquidity
// removal from the pool's current reserve share.
func (a *Agent) removalMinimums(ctx context.Context, pool *domain.PoolInfo, liquidity *big.Int, pct float64) (*big.Int, *big.Int, error) {
	state, err := a.gateway.PoolState(ctx, pool.Address)
	if err != nil {
		return nil, nil, fmt.Errorf("read pool state: %w", err)
	}
	if state.TotalSupply == nil || state.TotalSupply.Sign() == 0 {
		return new(big.Int), new(big.Int), nil
	}

	expectedA := new(big.Int).Mul(state.ReserveA, liquidity)
	expectedA.Div(expectedA, state.TotalSupply)
	expectedB := new(big.Int).Mul(state.ReserveB, liquidity)
	expectedB.Div(expectedB, state.TotalSupply)

	minA := new(big.Int)
	if expectedA.Sign() > 0 {
		if minA, err = slippage.MinOutput(expectedA, pct); err != nil {
			return nil, nil, err
		}
	}
	minB := new(big.Int)
	if expectedB.Sign() > 0 {
		if minB, err = slippage.MinOutput(expectedB, pct); err != nil {
			return nil, nil, err
		}
	}
	return minA, minB, nil
}
