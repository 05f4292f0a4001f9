package clickhouse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"base-lp-agent/internal/domain"
	"base-lp-agent/internal/storage"
)

func TestStepEventStore_InsertBulkAndGetByFlowID(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewStepEventStore(conn)
	ctx := context.Background()

	events := []*domain.StepEvent{
		{FlowID: "pos-1", Flow: domain.FlowDeposit, Op: domain.OpSwapBaseToA, Success: true, TxHash: "0x1", GasUsed: 180000, LatencyMs: 420, Timestamp: 1704067200000},
		{FlowID: "pos-1", Flow: domain.FlowDeposit, Op: domain.OpSwapBaseToB, Success: true, TxHash: "0x2", GasUsed: 180000, LatencyMs: 385, Timestamp: 1704067201000},
		{FlowID: "pos-2", Flow: domain.FlowDeposit, Op: domain.OpAddLiquidity, Success: false, GasUsed: 0, LatencyMs: 30000, Timestamp: 1704067202000},
	}
	require.NoError(t, store.InsertBulk(ctx, events))

	got, err := store.GetByFlowID(ctx, "pos-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, domain.OpSwapBaseToA, got[0].Op)
	require.Equal(t, domain.OpSwapBaseToB, got[1].Op)
	require.True(t, got[0].Success)
	require.Equal(t, uint64(180000), got[0].GasUsed)
	require.Equal(t, int64(1704067200000), got[0].Timestamp)
}

func TestStepEventStore_GetByTimeRange(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewStepEventStore(conn)
	ctx := context.Background()

	require.NoError(t, store.InsertBulk(ctx, []*domain.StepEvent{
		{FlowID: "wd-1", Flow: domain.FlowWithdraw, Op: domain.OpUnstake, Success: true, Timestamp: 1000},
		{FlowID: "wd-1", Flow: domain.FlowWithdraw, Op: domain.OpRemoveLiquidity, Success: true, Timestamp: 2000},
		{FlowID: "wd-1", Flow: domain.FlowWithdraw, Op: domain.OpSwapAToBase, Success: true, Timestamp: 3000},
	}))

	got, err := store.GetByTimeRange(ctx, 1500, 3000)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, domain.OpRemoveLiquidity, got[0].Op)
	require.Equal(t, domain.OpSwapAToBase, got[1].Op)
}

func TestStepEventStore_InvalidInput(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewStepEventStore(conn)
	ctx := context.Background()

	err := store.Insert(ctx, &domain.StepEvent{})
	require.ErrorIs(t, err, storage.ErrInvalidInput)

	err = store.InsertBulk(ctx, []*domain.StepEvent{{FlowID: "ok", Timestamp: 1}, nil})
	require.ErrorIs(t, err, storage.ErrInvalidInput)
}
