package recovery

import (
	"context"
	"errors"
	"log"
	"math/big"
	"os"
	"testing"
	"time"

	"base-lp-agent/internal/domain"
	"base-lp-agent/internal/ledger"
	"base-lp-agent/internal/ledger/memory"
	"base-lp-agent/internal/stats"
)

const (
	base   = "0xusdc"
	assetA = "0xweth"
	assetB = "0xvirtual"
	pool   = "0xpool"
	gauge  = "0xgauge"
)

func newEngine(gw *memory.Gateway) (*Engine, *stats.Ledger) {
	l := stats.NewLedger()
	e := NewEngine(gw, l, Config{
		BaseToken:     base,
		TokenA:        assetA,
		TokenB:        assetB,
		DustThreshold: big.NewInt(100),
	}, log.New(os.Stderr, "", 0))
	e.UpdatePool(&domain.PoolInfo{Address: pool, GaugeAddress: gauge})
	return e, l
}

func depositContext(requested int64) domain.ErrorContext {
	return domain.ErrorContext{
		Flow:            domain.FlowDeposit,
		FailedStep:      domain.OpAddLiquidity,
		RequestedAmount: big.NewInt(requested),
		Err:             errors.New("add liquidity reverted"),
		Timestamp:       time.Now().UnixMilli(),
	}
}

func TestHandle_RefundShortCircuitsChain(t *testing.T) {
	gw := memory.NewGateway("0xowner")
	gw.SetBalance(base, big.NewInt(1_500)) // excess over the requested 1000
	gw.SetBalance(assetA, big.NewInt(5_000))

	e, l := newEngine(gw)
	res := e.Handle(context.Background(), depositContext(1_000))

	if !res.Recovered {
		t.Fatal("expected recovery via refund-excess")
	}
	if len(res.Attempts) != 1 {
		t.Fatalf("expected 1 attempt (short-circuit), got %d", len(res.Attempts))
	}
	if res.Attempts[0].Kind != domain.RecoveryRefund {
		t.Errorf("expected refund action, got %s", res.Attempts[0].Kind)
	}
	// The stuck assetA balance must not have been touched.
	balance, _ := gw.Balance(context.Background(), assetA)
	if balance.Int64() != 5_000 {
		t.Errorf("later actions ran after short-circuit: assetA balance %s", balance)
	}

	s := l.Snapshot()
	if s.Recovery.TotalErrors != 1 || s.Recovery.RecoveredErrors != 1 || s.Recovery.ManualInterventions != 0 {
		t.Errorf("unexpected recovery stats: %+v", s.Recovery)
	}
}

func TestHandle_RecoversStuckTokens(t *testing.T) {
	gw := memory.NewGateway("0xowner")
	gw.SetBalance(base, big.NewInt(500)) // no excess over the requested 1000
	gw.SetBalance(assetA, big.NewInt(5_000))
	gw.SetBalance(assetB, big.NewInt(50)) // dust, must be skipped

	e, _ := newEngine(gw)
	res := e.Handle(context.Background(), depositContext(1_000))

	if !res.Recovered {
		t.Fatal("expected recovery via stuck-token liquidation")
	}
	if len(res.Attempts) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(res.Attempts))
	}
	if res.Attempts[1].Kind != domain.RecoveryRecoverStuck {
		t.Errorf("expected recover_stuck second, got %s", res.Attempts[1].Kind)
	}

	// assetA was swapped back 1:1, dust assetB untouched.
	baseBalance, _ := gw.Balance(context.Background(), base)
	if baseBalance.Int64() != 5_500 {
		t.Errorf("expected base balance 5500 after liquidation, got %s", baseBalance)
	}
	dust, _ := gw.Balance(context.Background(), assetB)
	if dust.Int64() != 50 {
		t.Errorf("dust balance was liquidated: %s", dust)
	}
}

func TestHandle_FallsThroughToManual(t *testing.T) {
	gw := memory.NewGateway("0xowner")
	gw.SetBalance(base, big.NewInt(500)) // no excess, no stuck tokens

	e, l := newEngine(gw)
	res := e.Handle(context.Background(), depositContext(1_000))

	if res.Recovered {
		t.Fatal("manual report must not count as corrective recovery")
	}
	if len(res.Attempts) != 3 {
		t.Fatalf("expected full chain of 3 attempts, got %d", len(res.Attempts))
	}
	last := res.Attempts[2]
	if last.Kind != domain.RecoveryManual {
		t.Errorf("expected manual action last, got %s", last.Kind)
	}
	if !last.Result.Success {
		t.Error("manual report must always succeed")
	}

	s := l.Snapshot()
	if s.Recovery.RecoveredErrors != 0 || s.Recovery.ManualInterventions != 1 {
		t.Errorf("unexpected recovery stats: %+v", s.Recovery)
	}
}

func TestHandle_WithdrawEmergencyUnstake(t *testing.T) {
	gw := memory.NewGateway("0xowner")
	gw.AddPool(assetA, assetB, false, pool, gauge, ledger.Reserves{
		ReserveA:    big.NewInt(1),
		ReserveB:    big.NewInt(1),
		TotalSupply: big.NewInt(1),
	})
	gw.SetStaked(gauge, big.NewInt(700))

	e, _ := newEngine(gw)
	res := e.Handle(context.Background(), domain.ErrorContext{
		Flow:       domain.FlowWithdraw,
		FailedStep: domain.OpRemoveLiquidity,
		Err:        errors.New("remove liquidity reverted"),
		Timestamp:  time.Now().UnixMilli(),
	})

	if !res.Recovered {
		t.Fatal("expected recovery via emergency unstake")
	}
	if got := res.Attempts[len(res.Attempts)-1].Kind; got != domain.RecoveryRollback {
		t.Errorf("expected rollback action, got %s", got)
	}
	staked, _ := gw.StakedBalance(context.Background(), gauge)
	if staked.Sign() != 0 {
		t.Errorf("expected gauge drained, still staked: %s", staked)
	}
}

func TestHandle_UnknownFlowUsesGenericChain(t *testing.T) {
	gw := memory.NewGateway("0xowner")

	e, _ := newEngine(gw)
	res := e.Handle(context.Background(), domain.ErrorContext{
		Flow:       domain.FlowKind("rebalance"),
		FailedStep: domain.OpBatch,
		Err:        errors.New("boom"),
	})

	if len(res.Attempts) != 2 {
		t.Fatalf("expected generic chain of 2 attempts, got %d", len(res.Attempts))
	}
	if res.Attempts[0].Kind != domain.RecoveryRecoverStuck || res.Attempts[1].Kind != domain.RecoveryManual {
		t.Errorf("unexpected generic chain: %+v", res.Attempts)
	}
}

func TestHandle_HistoryAccumulates(t *testing.T) {
	gw := memory.NewGateway("0xowner")

	e, l := newEngine(gw)
	e.Handle(context.Background(), depositContext(1_000))
	e.Handle(context.Background(), depositContext(2_000))

	history := e.History()
	if len(history) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(history))
	}
	if history[0].Context.RequestedAmount.Int64() != 1_000 {
		t.Errorf("history order wrong: %+v", history[0].Context)
	}
	if l.Snapshot().Recovery.TotalErrors != 2 {
		t.Errorf("expected TotalErrors 2, got %d", l.Snapshot().Recovery.TotalErrors)
	}

	e.ClearHistory()
	if len(e.History()) != 0 {
		t.Error("expected empty history after clear")
	}
}
