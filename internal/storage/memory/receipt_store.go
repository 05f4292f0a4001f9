package memory

import (
	"context"
	"sort"
	"sync"

	"base-lp-agent/internal/domain"
	"base-lp-agent/internal/storage"
)

// ReceiptStore is an in-memory implementation of storage.ReceiptStore.
type ReceiptStore struct {
	mu          sync.RWMutex
	positions   map[string]*domain.PositionReceipt   // keyed by position_id
	withdrawals map[string]*domain.WithdrawalReceipt // keyed by withdrawal_id
}

// NewReceiptStore creates a new in-memory receipt store.
func NewReceiptStore() *ReceiptStore {
	return &ReceiptStore{
		positions:   make(map[string]*domain.PositionReceipt),
		withdrawals: make(map[string]*domain.WithdrawalReceipt),
	}
}

// Compile-time interface check.
var _ storage.ReceiptStore = (*ReceiptStore)(nil)

// InsertPosition adds a new position receipt. Returns ErrDuplicateKey if position_id exists.
func (s *ReceiptStore) InsertPosition(_ context.Context, r *domain.PositionReceipt) error {
	if r == nil || r.PositionID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.positions[r.PositionID]; exists {
		return storage.ErrDuplicateKey
	}

	s.positions[r.PositionID] = copyPosition(r)
	return nil
}

// GetPosition retrieves a position receipt by its ID. Returns ErrNotFound if not exists.
func (s *ReceiptStore) GetPosition(_ context.Context, positionID string) (*domain.PositionReceipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, exists := s.positions[positionID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return copyPosition(r), nil
}

// ListPositionsByUser retrieves all position receipts for a user, ordered by timestamp ASC.
func (s *ReceiptStore) ListPositionsByUser(_ context.Context, userAddress string) ([]*domain.PositionReceipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.PositionReceipt
	for _, r := range s.positions {
		if r.UserAddress == userAddress {
			result = append(result, copyPosition(r))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Timestamp != result[j].Timestamp {
			return result[i].Timestamp < result[j].Timestamp
		}
		return result[i].PositionID < result[j].PositionID
	})
	return result, nil
}

// InsertWithdrawal adds a new withdrawal receipt. Returns ErrDuplicateKey if withdrawal_id exists.
func (s *ReceiptStore) InsertWithdrawal(_ context.Context, r *domain.WithdrawalReceipt) error {
	if r == nil || r.WithdrawalID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.withdrawals[r.WithdrawalID]; exists {
		return storage.ErrDuplicateKey
	}

	s.withdrawals[r.WithdrawalID] = copyWithdrawal(r)
	return nil
}

// GetWithdrawal retrieves a withdrawal receipt by its ID. Returns ErrNotFound if not exists.
func (s *ReceiptStore) GetWithdrawal(_ context.Context, withdrawalID string) (*domain.WithdrawalReceipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, exists := s.withdrawals[withdrawalID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return copyWithdrawal(r), nil
}

// ListWithdrawalsByUser retrieves all withdrawal receipts for a user, ordered by timestamp ASC.
func (s *ReceiptStore) ListWithdrawalsByUser(_ context.Context, userAddress string) ([]*domain.WithdrawalReceipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.WithdrawalReceipt
	for _, r := range s.withdrawals {
		if r.UserAddress == userAddress {
			result = append(result, copyWithdrawal(r))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Timestamp != result[j].Timestamp {
			return result[i].Timestamp < result[j].Timestamp
		}
		return result[i].WithdrawalID < result[j].WithdrawalID
	})
	return result, nil
}

// copyPosition deep-copies a receipt so callers cannot mutate stored state.
func copyPosition(r *domain.PositionReceipt) *domain.PositionReceipt {
	c := *r
	c.Steps = append([]domain.StepResult(nil), r.Steps...)
	return &c
}

func copyWithdrawal(r *domain.WithdrawalReceipt) *domain.WithdrawalReceipt {
	c := *r
	c.Steps = append([]domain.StepResult(nil), r.Steps...)
	return &c
}
