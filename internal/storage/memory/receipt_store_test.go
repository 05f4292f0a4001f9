package memory

import (
	"context"
	"errors"
	"testing"

	"base-lp-agent/internal/domain"
	"base-lp-agent/internal/storage"
)

func TestReceiptStore_InsertAndGetPosition(t *testing.T) {
	store := NewReceiptStore()
	ctx := context.Background()

	r := &domain.PositionReceipt{
		PositionID:    "pos-1",
		UserAddress:   "0xuser",
		DepositAmount: "1000000000",
		LPTokens:      "500000000000000000",
		StakedAmount:  "500000000000000000",
		PoolAddress:   "0xpool",
		GaugeAddress:  "0xgauge",
		Timestamp:     1704067200000,
		Steps: []domain.StepResult{
			{Op: domain.OpSwapBaseToA, Success: true, TxHash: "0x1", Timestamp: 1704067200001},
			{Op: domain.OpSwapBaseToB, Success: true, TxHash: "0x2", Timestamp: 1704067200002},
		},
	}

	if err := store.InsertPosition(ctx, r); err != nil {
		t.Fatalf("InsertPosition failed: %v", err)
	}

	got, err := store.GetPosition(ctx, "pos-1")
	if err != nil {
		t.Fatalf("GetPosition failed: %v", err)
	}
	if got.DepositAmount != r.DepositAmount {
		t.Errorf("DepositAmount mismatch: got %s, want %s", got.DepositAmount, r.DepositAmount)
	}
	if len(got.Steps) != 2 {
		t.Fatalf("Steps length mismatch: got %d, want 2", len(got.Steps))
	}
	if got.Steps[0].Op != domain.OpSwapBaseToA {
		t.Errorf("first step op mismatch: got %s", got.Steps[0].Op)
	}
}

func TestReceiptStore_PositionDuplicateKey(t *testing.T) {
	store := NewReceiptStore()
	ctx := context.Background()

	r := &domain.PositionReceipt{PositionID: "pos-1", UserAddress: "0xuser", Timestamp: 1}
	if err := store.InsertPosition(ctx, r); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	if err := store.InsertPosition(ctx, r); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}
}

func TestReceiptStore_PositionNotFound(t *testing.T) {
	store := NewReceiptStore()

	_, err := store.GetPosition(context.Background(), "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestReceiptStore_ReturnedCopyIsIndependent(t *testing.T) {
	store := NewReceiptStore()
	ctx := context.Background()

	r := &domain.PositionReceipt{
		PositionID:  "pos-1",
		UserAddress: "0xuser",
		Steps:       []domain.StepResult{{Op: domain.OpStake, Success: true}},
	}
	if err := store.InsertPosition(ctx, r); err != nil {
		t.Fatalf("InsertPosition failed: %v", err)
	}

	got, err := store.GetPosition(ctx, "pos-1")
	if err != nil {
		t.Fatalf("GetPosition failed: %v", err)
	}
	got.Steps[0].Success = false

	again, err := store.GetPosition(ctx, "pos-1")
	if err != nil {
		t.Fatalf("GetPosition failed: %v", err)
	}
	if !again.Steps[0].Success {
		t.Error("mutation of returned receipt leaked into the store")
	}
}

func TestReceiptStore_ListPositionsByUserOrdered(t *testing.T) {
	store := NewReceiptStore()
	ctx := context.Background()

	receipts := []*domain.PositionReceipt{
		{PositionID: "pos-b", UserAddress: "0xuser", Timestamp: 200},
		{PositionID: "pos-a", UserAddress: "0xuser", Timestamp: 100},
		{PositionID: "pos-c", UserAddress: "0xother", Timestamp: 50},
	}
	for _, r := range receipts {
		if err := store.InsertPosition(ctx, r); err != nil {
			t.Fatalf("InsertPosition(%s) failed: %v", r.PositionID, err)
		}
	}

	got, err := store.ListPositionsByUser(ctx, "0xuser")
	if err != nil {
		t.Fatalf("ListPositionsByUser failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 receipts, got %d", len(got))
	}
	if got[0].PositionID != "pos-a" || got[1].PositionID != "pos-b" {
		t.Errorf("wrong order: got %s, %s", got[0].PositionID, got[1].PositionID)
	}
}

func TestReceiptStore_InsertAndGetWithdrawal(t *testing.T) {
	store := NewReceiptStore()
	ctx := context.Background()

	r := &domain.WithdrawalReceipt{
		WithdrawalID:    "wd-1",
		UserAddress:     "0xuser",
		WithdrawnAmount: "250000000000000000",
		ReturnedBase:    "990000000",
		PoolAddress:     "0xpool",
		GaugeAddress:    "0xgauge",
		Timestamp:       1704067200000,
		Steps:           []domain.StepResult{{Op: domain.OpUnstake, Success: true}},
	}

	if err := store.InsertWithdrawal(ctx, r); err != nil {
		t.Fatalf("InsertWithdrawal failed: %v", err)
	}

	got, err := store.GetWithdrawal(ctx, "wd-1")
	if err != nil {
		t.Fatalf("GetWithdrawal failed: %v", err)
	}
	if got.ReturnedBase != r.ReturnedBase {
		t.Errorf("ReturnedBase mismatch: got %s, want %s", got.ReturnedBase, r.ReturnedBase)
	}

	if err := store.InsertWithdrawal(ctx, r); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}
}

func TestReceiptStore_InvalidInput(t *testing.T) {
	store := NewReceiptStore()
	ctx := context.Background()

	if err := store.InsertPosition(ctx, nil); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for nil, got %v", err)
	}
	if err := store.InsertPosition(ctx, &domain.PositionReceipt{}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for empty id, got %v", err)
	}
	if err := store.InsertWithdrawal(ctx, &domain.WithdrawalReceipt{}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for empty id, got %v", err)
	}
}
