package main

import (
	"context"
	"errors"
	"io"
	"log"
	"math/big"
	"strings"
	"testing"

	"base-lp-agent/internal/domain"
	"base-lp-agent/internal/ledger"
	memledger "base-lp-agent/internal/ledger/memory"
	"base-lp-agent/internal/saga"
	"base-lp-agent/internal/storage/memory"
)

func newTestSetup(t *testing.T) (*saga.Agent, *agentStores, *memledger.Gateway, gatewayConfig) {
	t.Helper()

	cfg := gatewayConfig{
		useMemory: true,
		router:    defaultRouter,
		baseToken: defaultBaseToken,
		tokenA:    defaultTokenA,
		tokenB:    defaultTokenB,
	}
	g := seededMemoryGateway(cfg)

	agent, err := saga.NewAgent(saga.Options{
		Gateway:   g,
		BaseToken: cfg.baseToken,
		TokenA:    cfg.tokenA,
		TokenB:    cfg.tokenB,
		Logger:    log.New(io.Discard, "", 0),
	})
	if err != nil {
		t.Fatalf("NewAgent: %v", err)
	}
	if err := agent.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	stores := &agentStores{
		receipts:   memory.NewReceiptStore(),
		errors:     memory.NewErrorHistoryStore(),
		stepEvents: memory.NewStepEventStore(),
	}
	return agent, stores, g, cfg
}

// A deposit that aborts mid-flow returns a failed FlowResult with a nil
// Position; runDeposit must surface the failure as an error instead of
// persisting the receipt.
func TestRunDeposit_FailedFlowReturnsError(t *testing.T) {
	agent, stores, g, cfg := newTestSetup(t)
	logger := log.New(io.Discard, "", 0)

	// Wallet far short of the requested amount.
	g.SetBalance(cfg.baseToken, big.NewInt(10))

	err := runDeposit(context.Background(), agent, stores, domain.DepositRequest{
		Amount: "1000000",
	}, logger)
	if err == nil {
		t.Fatal("expected error for underfunded deposit, got nil")
	}
	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Errorf("error = %v, want wrapped ErrInsufficientBalance", err)
	}
	if !strings.Contains(err.Error(), "check_balance") {
		t.Errorf("error %q does not name the failed step", err)
	}
}

// Withdrawing with nothing staked fails before any mutation; runWithdraw
// must report that instead of dereferencing a nil Withdrawal receipt.
func TestRunWithdraw_FailedFlowReturnsError(t *testing.T) {
	agent, stores, _, _ := newTestSetup(t)
	logger := log.New(io.Discard, "", 0)

	err := runWithdraw(context.Background(), agent, stores, domain.WithdrawRequest{
		Percentage: 50,
	}, logger)
	if err == nil {
		t.Fatal("expected error for withdraw with no staked position, got nil")
	}
}
