package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"base-lp-agent/internal/domain"
	"base-lp-agent/internal/observability"
	"base-lp-agent/internal/storage"
)

// StepEventStore implements storage.StepEventStore using ClickHouse.
// Step events are append-only facts; MergeTree does not enforce
// uniqueness and the store does not attempt to.
type StepEventStore struct {
	conn *Conn
}

// NewStepEventStore creates a new StepEventStore.
func NewStepEventStore(conn *Conn) *StepEventStore {
	return &StepEventStore{conn: conn}
}

// Compile-time interface check.
var _ storage.StepEventStore = (*StepEventStore)(nil)

// Insert adds a single step event.
func (s *StepEventStore) Insert(ctx context.Context, e *domain.StepEvent) error {
	if e == nil || e.FlowID == "" {
		return storage.ErrInvalidInput
	}
	return s.InsertBulk(ctx, []*domain.StepEvent{e})
}

// InsertBulk adds multiple step events in one round trip.
func (s *StepEventStore) InsertBulk(ctx context.Context, events []*domain.StepEvent) error {
	if len(events) == 0 {
		return nil
	}
	for _, e := range events {
		if e == nil || e.FlowID == "" {
			return storage.ErrInvalidInput
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO step_events (
			flow_id, flow, op, success, tx_hash, gas_used, latency_ms, timestamp_ms
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, e := range events {
		success := uint8(0)
		if e.Success {
			success = 1
		}
		err = batch.Append(
			e.FlowID, string(e.Flow), string(e.Op), success,
			e.TxHash, e.GasUsed, e.LatencyMs, uint64(e.Timestamp),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	start := time.Now()
	err = batch.Send()
	observability.RecordDBQuery("clickhouse", "insert_step_events", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByFlowID retrieves all events for a flow, ordered by timestamp ASC.
func (s *StepEventStore) GetByFlowID(ctx context.Context, flowID string) ([]*domain.StepEvent, error) {
	query := `
		SELECT flow_id, flow, op, success, tx_hash, gas_used, latency_ms, timestamp_ms
		FROM step_events
		WHERE flow_id = ?
		ORDER BY timestamp_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, flowID)
	if err != nil {
		return nil, fmt.Errorf("query by flow id: %w", err)
	}
	defer rows.Close()

	return scanStepEvents(rows)
}

// GetByTimeRange retrieves events within [start, end] (inclusive), ordered by timestamp ASC.
func (s *StepEventStore) GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.StepEvent, error) {
	query := `
		SELECT flow_id, flow, op, success, tx_hash, gas_used, latency_ms, timestamp_ms
		FROM step_events
		WHERE timestamp_ms >= ? AND timestamp_ms <= ?
		ORDER BY timestamp_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, uint64(start), uint64(end))
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	return scanStepEvents(rows)
}

func scanStepEvents(rows driver.Rows) ([]*domain.StepEvent, error) {
	var result []*domain.StepEvent
	for rows.Next() {
		var (
			e           domain.StepEvent
			flow, op    string
			success     uint8
			timestampMs uint64
		)
		err := rows.Scan(
			&e.FlowID, &flow, &op, &success,
			&e.TxHash, &e.GasUsed, &e.LatencyMs, &timestampMs,
		)
		if err != nil {
			return nil, fmt.Errorf("scan step event: %w", err)
		}
		e.Flow = domain.FlowKind(flow)
		e.Op = domain.StepOp(op)
		e.Success = success != 0
		e.Timestamp = int64(timestampMs)
		result = append(result, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate step events: %w", err)
	}
	return result, nil
}
