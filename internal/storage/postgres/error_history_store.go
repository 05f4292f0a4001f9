package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"base-lp-agent/internal/domain"
	"base-lp-agent/internal/observability"
	"base-lp-agent/internal/storage"
)

// ErrorHistoryStore implements storage.ErrorHistoryStore using PostgreSQL.
type ErrorHistoryStore struct {
	pool *Pool
}

// NewErrorHistoryStore creates a new ErrorHistoryStore.
func NewErrorHistoryStore(pool *Pool) *ErrorHistoryStore {
	return &ErrorHistoryStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ErrorHistoryStore = (*ErrorHistoryStore)(nil)

// Insert adds a new error record. Returns ErrDuplicateKey if record_id exists.
func (s *ErrorHistoryStore) Insert(ctx context.Context, rec *domain.ErrorRecord) error {
	query := `
		INSERT INTO error_history (
			record_id, flow, failed_step, requested_amount, err_message,
			recovered, manual, timestamp_ms
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	start := time.Now()
	_, err := s.pool.Exec(ctx, query,
		rec.RecordID,
		string(rec.Flow),
		string(rec.FailedStep),
		rec.RequestedAmount,
		rec.ErrMessage,
		rec.Recovered,
		rec.Manual,
		rec.Timestamp,
	)
	observability.RecordDBQuery("postgres", "insert_error_record", time.Since(start), err)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert error record: %w", err)
	}
	return nil
}

// ListByFlow retrieves all records for a flow kind, ordered by timestamp ASC.
func (s *ErrorHistoryStore) ListByFlow(ctx context.Context, flow domain.FlowKind) ([]*domain.ErrorRecord, error) {
	query := `
		SELECT record_id, flow, failed_step, requested_amount, err_message,
		       recovered, manual, timestamp_ms
		FROM error_history
		WHERE flow = $1
		ORDER BY timestamp_ms ASC, record_id ASC
	`

	rows, err := s.pool.Query(ctx, query, string(flow))
	if err != nil {
		return nil, fmt.Errorf("list error records by flow: %w", err)
	}
	defer rows.Close()

	return scanErrorRecords(rows)
}

// ListByTimeRange retrieves records within [start, end] (inclusive), ordered by timestamp ASC.
func (s *ErrorHistoryStore) ListByTimeRange(ctx context.Context, start, end int64) ([]*domain.ErrorRecord, error) {
	query := `
		SELECT record_id, flow, failed_step, requested_amount, err_message,
		       recovered, manual, timestamp_ms
		FROM error_history
		WHERE timestamp_ms >= $1 AND timestamp_ms <= $2
		ORDER BY timestamp_ms ASC, record_id ASC
	`

	rows, err := s.pool.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("list error records by time range: %w", err)
	}
	defer rows.Close()

	return scanErrorRecords(rows)
}

func scanErrorRecords(rows pgx.Rows) ([]*domain.ErrorRecord, error) {
	var result []*domain.ErrorRecord
	for rows.Next() {
		var rec domain.ErrorRecord
		var flow, step string

		err := rows.Scan(
			&rec.RecordID,
			&flow,
			&step,
			&rec.RequestedAmount,
			&rec.ErrMessage,
			&rec.Recovered,
			&rec.Manual,
			&rec.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("scan error record: %w", err)
		}
		rec.Flow = domain.FlowKind(flow)
		rec.FailedStep = domain.StepOp(step)
		result = append(result, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate error records: %w", err)
	}
	return result, nil
}
