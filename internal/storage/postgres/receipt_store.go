package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"base-lp-agent/internal/domain"
	"base-lp-agent/internal/observability"
	"base-lp-agent/internal/storage"
)

// ReceiptStore implements storage.ReceiptStore using PostgreSQL.
// Step lists are stored as JSONB alongside the receipt row.
type ReceiptStore struct {
	pool *Pool
}

// NewReceiptStore creates a new ReceiptStore.
func NewReceiptStore(pool *Pool) *ReceiptStore {
	return &ReceiptStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ReceiptStore = (*ReceiptStore)(nil)

// InsertPosition adds a new position receipt. Returns ErrDuplicateKey if position_id exists.
func (s *ReceiptStore) InsertPosition(ctx context.Context, r *domain.PositionReceipt) error {
	steps, err := json.Marshal(r.Steps)
	if err != nil {
		return fmt.Errorf("marshal steps: %w", err)
	}

	query := `
		INSERT INTO position_receipts (
			position_id, user_address, deposit_amount, lp_tokens, staked_amount,
			pool_address, gauge_address, timestamp_ms, steps
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	start := time.Now()
	_, err = s.pool.Exec(ctx, query,
		r.PositionID,
		r.UserAddress,
		r.DepositAmount,
		r.LPTokens,
		r.StakedAmount,
		r.PoolAddress,
		r.GaugeAddress,
		r.Timestamp,
		steps,
	)
	observability.RecordDBQuery("postgres", "insert_position", time.Since(start), err)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert position receipt: %w", err)
	}
	return nil
}

// GetPosition retrieves a position receipt by its ID. Returns ErrNotFound if not exists.
func (s *ReceiptStore) GetPosition(ctx context.Context, positionID string) (*domain.PositionReceipt, error) {
	query := `
		SELECT position_id, user_address, deposit_amount, lp_tokens, staked_amount,
		       pool_address, gauge_address, timestamp_ms, steps
		FROM position_receipts
		WHERE position_id = $1
	`

	row := s.pool.QueryRow(ctx, query, positionID)
	r, err := scanPosition(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get position receipt: %w", err)
	}
	return r, nil
}

// ListPositionsByUser retrieves all position receipts for a user, ordered by timestamp ASC.
func (s *ReceiptStore) ListPositionsByUser(ctx context.Context, userAddress string) ([]*domain.PositionReceipt, error) {
	query := `
		SELECT position_id, user_address, deposit_amount, lp_tokens, staked_amount,
		       pool_address, gauge_address, timestamp_ms, steps
		FROM position_receipts
		WHERE user_address = $1
		ORDER BY timestamp_ms ASC, position_id ASC
	`

	rows, err := s.pool.Query(ctx, query, userAddress)
	if err != nil {
		return nil, fmt.Errorf("list position receipts: %w", err)
	}
	defer rows.Close()

	var result []*domain.PositionReceipt
	for rows.Next() {
		r, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan position receipt: %w", err)
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate position receipts: %w", err)
	}
	return result, nil
}

// InsertWithdrawal adds a new withdrawal receipt. Returns ErrDuplicateKey if withdrawal_id exists.
func (s *ReceiptStore) InsertWithdrawal(ctx context.Context, r *domain.WithdrawalReceipt) error {
	steps, err := json.Marshal(r.Steps)
	if err != nil {
		return fmt.Errorf("marshal steps: %w", err)
	}

	query := `
		INSERT INTO withdrawal_receipts (
			withdrawal_id, user_address, withdrawn_amount, returned_base,
			pool_address, gauge_address, timestamp_ms, steps
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	start := time.Now()
	_, err = s.pool.Exec(ctx, query,
		r.WithdrawalID,
		r.UserAddress,
		r.WithdrawnAmount,
		r.ReturnedBase,
		r.PoolAddress,
		r.GaugeAddress,
		r.Timestamp,
		steps,
	)
	observability.RecordDBQuery("postgres", "insert_withdrawal", time.Since(start), err)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert withdrawal receipt: %w", err)
	}
	return nil
}

// GetWithdrawal retrieves a withdrawal receipt by its ID. Returns ErrNotFound if not exists.
func (s *ReceiptStore) GetWithdrawal(ctx context.Context, withdrawalID string) (*domain.WithdrawalReceipt, error) {
	query := `
		SELECT withdrawal_id, user_address, withdrawn_amount, returned_base,
		       pool_address, gauge_address, timestamp_ms, steps
		FROM withdrawal_receipts
		WHERE withdrawal_id = $1
	`

	row := s.pool.QueryRow(ctx, query, withdrawalID)
	r, err := scanWithdrawal(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get withdrawal receipt: %w", err)
	}
	return r, nil
}

// ListWithdrawalsByUser retrieves all withdrawal receipts for a user, ordered by timestamp ASC.
func (s *ReceiptStore) ListWithdrawalsByUser(ctx context.Context, userAddress string) ([]*domain.WithdrawalReceipt, error) {
	query := `
		SELECT withdrawal_id, user_address, withdrawn_amount, returned_base,
		       pool_address, gauge_address, timestamp_ms, steps
		FROM withdrawal_receipts
		WHERE user_address = $1
		ORDER BY timestamp_ms ASC, withdrawal_id ASC
	`

	rows, err := s.pool.Query(ctx, query, userAddress)
	if err != nil {
		return nil, fmt.Errorf("list withdrawal receipts: %w", err)
	}
	defer rows.Close()

	var result []*domain.WithdrawalReceipt
	for rows.Next() {
		r, err := scanWithdrawal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan withdrawal receipt: %w", err)
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate withdrawal receipts: %w", err)
	}
	return result, nil
}

func scanPosition(row pgx.Row) (*domain.PositionReceipt, error) {
	var r domain.PositionReceipt
	var steps []byte

	err := row.Scan(
		&r.PositionID,
		&r.UserAddress,
		&r.DepositAmount,
		&r.LPTokens,
		&r.StakedAmount,
		&r.PoolAddress,
		&r.GaugeAddress,
		&r.Timestamp,
		&steps,
	)
	if err != nil {
		return nil, err
	}

	if len(steps) > 0 {
		if err := json.Unmarshal(steps, &r.Steps); err != nil {
			return nil, fmt.Errorf("unmarshal steps: %w", err)
		}
	}
	return &r, nil
}

func scanWithdrawal(row pgx.Row) (*domain.WithdrawalReceipt, error) {
	var r domain.WithdrawalReceipt
	var steps []byte

	err := row.Scan(
		&r.WithdrawalID,
		&r.UserAddress,
		&r.WithdrawnAmount,
		&r.ReturnedBase,
		&r.PoolAddress,
		&r.GaugeAddress,
		&r.Timestamp,
		&steps,
	)
	if err != nil {
		return nil, err
	}

	if len(steps) > 0 {
		if err := json.Unmarshal(steps, &r.Steps); err != nil {
			return nil, fmt.Errorf("unmarshal steps: %w", err)
		}
	}
	return &r, nil
}
