package memory

import (
	"context"
	"sort"
	"sync"

	"base-lp-agent/internal/domain"
	"base-lp-agent/internal/storage"
)

// ErrorHistoryStore is an in-memory implementation of storage.ErrorHistoryStore.
type ErrorHistoryStore struct {
	mu   sync.RWMutex
	data map[string]*domain.ErrorRecord // keyed by record_id
}

// NewErrorHistoryStore creates a new in-memory error history store.
func NewErrorHistoryStore() *ErrorHistoryStore {
	return &ErrorHistoryStore{
		data: make(map[string]*domain.ErrorRecord),
	}
}

// Compile-time interface check.
var _ storage.ErrorHistoryStore = (*ErrorHistoryStore)(nil)

// Insert adds a new error record. Returns ErrDuplicateKey if record_id exists.
func (s *ErrorHistoryStore) Insert(_ context.Context, rec *domain.ErrorRecord) error {
	if rec == nil || rec.RecordID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[rec.RecordID]; exists {
		return storage.ErrDuplicateKey
	}

	recCopy := *rec
	s.data[rec.RecordID] = &recCopy
	return nil
}

// ListByFlow retrieves all records for a flow kind, ordered by timestamp ASC.
func (s *ErrorHistoryStore) ListByFlow(_ context.Context, flow domain.FlowKind) ([]*domain.ErrorRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ErrorRecord
	for _, rec := range s.data {
		if rec.Flow == flow {
			recCopy := *rec
			result = append(result, &recCopy)
		}
	}

	sortRecords(result)
	return result, nil
}

// ListByTimeRange retrieves records within [start, end] (inclusive), ordered by timestamp ASC.
func (s *ErrorHistoryStore) ListByTimeRange(_ context.Context, start, end int64) ([]*domain.ErrorRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ErrorRecord
	for _, rec := range s.data {
		if rec.Timestamp >= start && rec.Timestamp <= end {
			recCopy := *rec
			result = append(result, &recCopy)
		}
	}

	sortRecords(result)
	return result, nil
}

func sortRecords(recs []*domain.ErrorRecord) {
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].Timestamp != recs[j].Timestamp {
			return recs[i].Timestamp < recs[j].Timestamp
		}
		return recs[i].RecordID < recs[j].RecordID
	})
}
