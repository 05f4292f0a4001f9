package memory

import (
	"context"
	"sort"
	"sync"

	"base-lp-agent/internal/domain"
	"base-lp-agent/internal/storage"
)

// StepEventStore is an in-memory implementation of storage.StepEventStore.
// Events are append-only; duplicates are allowed, matching the ClickHouse
// implementation.
type StepEventStore struct {
	mu     sync.RWMutex
	events []*domain.StepEvent
}

// NewStepEventStore creates a new in-memory step event store.
func NewStepEventStore() *StepEventStore {
	return &StepEventStore{}
}

// Compile-time interface check.
var _ storage.StepEventStore = (*StepEventStore)(nil)

// Insert adds a single step event.
func (s *StepEventStore) Insert(_ context.Context, e *domain.StepEvent) error {
	if e == nil || e.FlowID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	eventCopy := *e
	s.events = append(s.events, &eventCopy)
	return nil
}

// InsertBulk adds multiple step events.
func (s *StepEventStore) InsertBulk(_ context.Context, events []*domain.StepEvent) error {
	for _, e := range events {
		if e == nil || e.FlowID == "" {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range events {
		eventCopy := *e
		s.events = append(s.events, &eventCopy)
	}
	return nil
}

// GetByFlowID retrieves all events for a flow, ordered by timestamp ASC.
func (s *StepEventStore) GetByFlowID(_ context.Context, flowID string) ([]*domain.StepEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.StepEvent
	for _, e := range s.events {
		if e.FlowID == flowID {
			eventCopy := *e
			result = append(result, &eventCopy)
		}
	}

	sortEvents(result)
	return result, nil
}

// GetByTimeRange retrieves events within [start, end] (inclusive), ordered by timestamp ASC.
func (s *StepEventStore) GetByTimeRange(_ context.Context, start, end int64) ([]*domain.StepEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.StepEvent
	for _, e := range s.events {
		if e.Timestamp >= start && e.Timestamp <= end {
			eventCopy := *e
			result = append(result, &eventCopy)
		}
	}

	sortEvents(result)
	return result, nil
}

func sortEvents(events []*domain.StepEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp < events[j].Timestamp
	})
}
