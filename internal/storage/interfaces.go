package storage

import (
	"context"

	"base-lp-agent/internal/domain"
)

// ReceiptStore provides access to position and withdrawal receipts.
// Receipts are terminal records and never updated after insert.
type ReceiptStore interface {
	// InsertPosition adds a new position receipt. Returns ErrDuplicateKey
	// if position_id exists.
	InsertPosition(ctx context.Context, r *domain.PositionReceipt) error

	// GetPosition retrieves a position receipt by its ID. Returns
	// ErrNotFound if not exists.
	GetPosition(ctx context.Context, positionID string) (*domain.PositionReceipt, error)

	// ListPositionsByUser retrieves all position receipts for a user,
	// ordered by timestamp ASC.
	ListPositionsByUser(ctx context.Context, userAddress string) ([]*domain.PositionReceipt, error)

	// InsertWithdrawal adds a new withdrawal receipt. Returns
	// ErrDuplicateKey if withdrawal_id exists.
	InsertWithdrawal(ctx context.Context, r *domain.WithdrawalReceipt) error

	// GetWithdrawal retrieves a withdrawal receipt by its ID. Returns
	// ErrNotFound if not exists.
	GetWithdrawal(ctx context.Context, withdrawalID string) (*domain.WithdrawalReceipt, error)

	// ListWithdrawalsByUser retrieves all withdrawal receipts for a user,
	// ordered by timestamp ASC.
	ListWithdrawalsByUser(ctx context.Context, userAddress string) ([]*domain.WithdrawalReceipt, error)
}

// ErrorHistoryStore provides access to the handled-failure log.
type ErrorHistoryStore interface {
	// Insert adds a new error record. Returns ErrDuplicateKey if
	// record_id exists.
	Insert(ctx context.Context, rec *domain.ErrorRecord) error

	// ListByFlow retrieves all records for a flow kind, ordered by
	// timestamp ASC.
	ListByFlow(ctx context.Context, flow domain.FlowKind) ([]*domain.ErrorRecord, error)

	// ListByTimeRange retrieves records within [start, end] (inclusive),
	// ordered by timestamp ASC.
	ListByTimeRange(ctx context.Context, start, end int64) ([]*domain.ErrorRecord, error)
}

// StepEventStore provides access to per-step analytics rows.
type StepEventStore interface {
	// Insert adds a single step event.
	Insert(ctx context.Context, e *domain.StepEvent) error

	// InsertBulk adds multiple step events in one round trip.
	InsertBulk(ctx context.Context, events []*domain.StepEvent) error

	// GetByFlowID retrieves all events for a flow, ordered by timestamp ASC.
	GetByFlowID(ctx context.Context, flowID string) ([]*domain.StepEvent, error)

	// GetByTimeRange retrieves events within [start, end] (inclusive),
	// ordered by timestamp ASC.
	GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.StepEvent, error)
}
