package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"base-lp-agent/internal/domain"
	"base-lp-agent/internal/storage"
)

func TestErrorHistoryStore_RoundTrip(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewErrorHistoryStore(pool)
	ctx := context.Background()

	rec := &domain.ErrorRecord{
		RecordID:        "err-1",
		Flow:            domain.FlowDeposit,
		FailedStep:      domain.OpAddLiquidity,
		RequestedAmount: "1000000000",
		ErrMessage:      "transaction reverted",
		Recovered:       false,
		Manual:          true,
		Timestamp:       1704067200000,
	}
	require.NoError(t, store.Insert(ctx, rec))

	got, err := store.ListByFlow(ctx, domain.FlowDeposit)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, domain.OpAddLiquidity, got[0].FailedStep)
	require.Equal(t, "transaction reverted", got[0].ErrMessage)
	require.True(t, got[0].Manual)
	require.False(t, got[0].Recovered)
}

func TestErrorHistoryStore_DuplicateKey(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewErrorHistoryStore(pool)
	ctx := context.Background()

	rec := &domain.ErrorRecord{RecordID: "err-1", Flow: domain.FlowWithdraw, FailedStep: domain.OpUnstake, Timestamp: 1}
	require.NoError(t, store.Insert(ctx, rec))

	err := store.Insert(ctx, rec)
	require.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestErrorHistoryStore_ListByTimeRangeOrdered(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewErrorHistoryStore(pool)
	ctx := context.Background()

	for _, rec := range []*domain.ErrorRecord{
		{RecordID: "err-3", Flow: domain.FlowDeposit, FailedStep: domain.OpStake, Timestamp: 300},
		{RecordID: "err-1", Flow: domain.FlowDeposit, FailedStep: domain.OpSwapBaseToA, Timestamp: 100},
		{RecordID: "err-2", Flow: domain.FlowWithdraw, FailedStep: domain.OpUnstake, Timestamp: 200},
	} {
		require.NoError(t, store.Insert(ctx, rec))
	}

	got, err := store.ListByTimeRange(ctx, 100, 200)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "err-1", got[0].RecordID)
	require.Equal(t, "err-2", got[1].RecordID)
}
