package saga

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"base-lp-agent/internal/domain"
)

func TestExecuteWithdraw_Success(t *testing.T) {
	gw := newTestGateway()
	gw.SetStaked(gaugeAddr, big.NewInt(1_000_000))
	agent, ledgerStats := newTestAgent(t, gw)

	res, err := agent.ExecuteWithdraw(context.Background(), domain.WithdrawRequest{Percentage: 50})
	if err != nil {
		t.Fatalf("ExecuteWithdraw rejected: %v", err)
	}
	if !res.Success {
		t.Fatalf("flow failed: %v", res.Err)
	}

	wantOps := []domain.StepOp{
		domain.OpUnstake,
		domain.OpRemoveLiquidity,
		domain.OpSwapAToBase,
		domain.OpSwapBToBase,
	}
	if len(res.Steps) != len(wantOps) {
		t.Fatalf("expected %d steps, got %d", len(wantOps), len(res.Steps))
	}
	for i, op := range wantOps {
		if res.Steps[i].Op != op {
			t.Errorf("step %d: got %s, want %s", i, res.Steps[i].Op, op)
		}
	}

	if res.Withdrawal == nil {
		t.Fatal("expected a withdrawal receipt")
	}
	if res.Withdrawal.WithdrawnAmount != "500000" {
		t.Errorf("WithdrawnAmount: got %s, want 500000", res.Withdrawal.WithdrawnAmount)
	}
	// 500000 liquidity splits 250000/250000, both swapped 1:1 to base.
	if res.Withdrawal.ReturnedBase != "0.5" {
		t.Errorf("ReturnedBase: got %s, want 0.5", res.Withdrawal.ReturnedBase)
	}

	remaining, _ := gw.StakedBalance(context.Background(), gaugeAddr)
	if remaining.Cmp(big.NewInt(500_000)) != 0 {
		t.Errorf("staked remainder: got %s, want 500000", remaining)
	}

	snap := ledgerStats.Snapshot()
	if snap.Total != 1 || snap.Successful != 1 {
		t.Errorf("stats: %+v", snap)
	}
}

func TestExecuteWithdraw_SkipsZeroBalanceLiquidation(t *testing.T) {
	gw := newTestGateway()
	// Removing 1 unit of liquidity credits 0 to asset A and 1 to asset B,
	// so the A-side liquidation must be skipped without being recorded.
	gw.SetStaked(gaugeAddr, big.NewInt(1))
	agent, _ := newTestAgent(t, gw)

	res, err := agent.ExecuteWithdraw(context.Background(), domain.WithdrawRequest{Percentage: 100})
	if err != nil {
		t.Fatalf("ExecuteWithdraw rejected: %v", err)
	}
	if !res.Success {
		t.Fatalf("flow failed: %v", res.Err)
	}

	for _, step := range res.Steps {
		if step.Op == domain.OpSwapAToBase {
			t.Fatal("zero-balance liquidation must be skipped, not executed")
		}
	}
	wantOps := []domain.StepOp{domain.OpUnstake, domain.OpRemoveLiquidity, domain.OpSwapBToBase}
	if len(res.Steps) != len(wantOps) {
		t.Fatalf("expected %d steps, got %d", len(wantOps), len(res.Steps))
	}
	for i, op := range wantOps {
		if res.Steps[i].Op != op {
			t.Errorf("step %d: got %s, want %s", i, res.Steps[i].Op, op)
		}
	}
}

func TestExecuteWithdraw_NothingStaked(t *testing.T) {
	gw := newTestGateway()
	agent, ledgerStats := newTestAgent(t, gw)

	res, err := agent.ExecuteWithdraw(context.Background(), domain.WithdrawRequest{Percentage: 100})
	if err != nil {
		t.Fatalf("ExecuteWithdraw rejected: %v", err)
	}
	if res.Success {
		t.Fatal("expected failure")
	}
	if !errors.Is(res.Err, ErrNothingStaked) {
		t.Errorf("expected ErrNothingStaked, got %v", res.Err)
	}
	if len(res.Steps) != 0 {
		t.Errorf("expected zero steps, got %d", len(res.Steps))
	}
	if res.Recovery != nil {
		t.Error("recovery must not run for a pre-mutation abort")
	}

	snap := ledgerStats.Snapshot()
	if snap.Failed != 1 || snap.Recovery.TotalErrors != 0 {
		t.Errorf("stats: %+v", snap)
	}
}

func TestExecuteWithdraw_LiquidationFailureRunsWithdrawChain(t *testing.T) {
	gw := newTestGateway()
	gw.SetStaked(gaugeAddr, big.NewInt(1_000_000))
	gw.FailOn(domain.OpSwapBToBase, errors.New("router reverted"))
	agent, _ := newTestAgent(t, gw)

	res, err := agent.ExecuteWithdraw(context.Background(), domain.WithdrawRequest{Percentage: 50})
	if err != nil {
		t.Fatalf("ExecuteWithdraw rejected: %v", err)
	}
	if res.Success {
		t.Fatal("expected failure")
	}
	if res.FailedStep != domain.OpSwapBToBase {
		t.Errorf("FailedStep: got %s", res.FailedStep)
	}
	if res.Recovery == nil {
		t.Fatal("expected a recovery result")
	}
	// The withdraw chain: the retry finds only dust to liquidate and
	// fails, then the emergency unstake drains the remaining stake.
	var sawRollback bool
	for _, attempt := range res.Recovery.Attempts {
		if attempt.Kind == domain.RecoveryRollback && attempt.Result.Success {
			sawRollback = true
		}
	}
	if !sawRollback {
		t.Errorf("expected a successful rollback attempt: %+v", res.Recovery.Attempts)
	}
}

func TestExecuteWithdraw_OrderingNeverRemovesBeforeUnstake(t *testing.T) {
	gw := newTestGateway()
	gw.SetStaked(gaugeAddr, big.NewInt(1_000_000))
	agent, _ := newTestAgent(t, gw)

	if _, err := agent.ExecuteWithdraw(context.Background(), domain.WithdrawRequest{Percentage: 25}); err != nil {
		t.Fatalf("ExecuteWithdraw rejected: %v", err)
	}

	var unstaked bool
	for _, op := range gw.CallLog() {
		switch op {
		case domain.OpUnstake:
			unstaked = true
		case domain.OpRemoveLiquidity:
			if !unstaked {
				t.Fatal("remove_liquidity submitted before unstake")
			}
		}
	}
}

func TestExecuteWithdraw_ValidationRejectedBeforeFlow(t *testing.T) {
	gw := newTestGateway()
	agent, ledgerStats := newTestAgent(t, gw)

	_, err := agent.ExecuteWithdraw(context.Background(), domain.WithdrawRequest{Percentage: 0})
	if !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	_, err = agent.ExecuteWithdraw(context.Background(), domain.WithdrawRequest{Percentage: 101})
	if !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}

	if snap := ledgerStats.Snapshot(); snap.Total != 0 {
		t.Errorf("rejected requests must not count as flows: %+v", snap)
	}
}
