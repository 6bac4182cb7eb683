package transaction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Service records and settles transactions.
type Service struct {
	repo Repository
}

// NewService builds a transaction service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Record stores a new transaction, assigning its identifier and timestamps.
func (s *Service) Record(ctx context.Context, tx Transaction) (Transaction, error) {
	if !tx.Amount.IsPositive() {
		return Transaction{}, fmt.Errorf("amount must be positive")
	}
	switch tx.Status {
	case StatusPending, StatusCompleted, StatusFailed:
	default:
		return Transaction{}, fmt.Errorf("invalid status %q", tx.Status)
	}
	if tx.ClientRef == "" {
		tx.ClientRef = uuid.NewString()
	}
	tx.ID = uuid.NewString()
	tx.CreatedAt = time.Now().UTC()
	tx.UpdatedAt = tx.CreatedAt

	if err := s.repo.Create(ctx, tx); err != nil {
		if errors.Is(err, ErrDuplicateTransaction) {
			existing, findErr := s.repo.FindByClientRef(ctx, tx.ClientRef)
			if findErr == nil {
				return existing, ErrDuplicateTransaction
			}
		}
		return Transaction{}, err
	}
	return tx, nil
}

// FindByClientRef returns the record written for an order, if any.
func (s *Service) FindByClientRef(ctx context.Context, clientRef string) (Transaction, error) {
	return s.repo.FindByClientRef(ctx, clientRef)
}

// Recent lists the latest records for a user.
func (s *Service) Recent(ctx context.Context, userID string, limit int) ([]Transaction, error) {
	return s.repo.ListByUser(ctx, userID, limit)
}

// Settle applies a terminal status reported for a rail reference.
func (s *Service) Settle(ctx context.Context, reference string, status Status) (Transaction, error) {
	if reference == "" {
		return Transaction{}, fmt.Errorf("reference is required")
	}
	if !status.Terminal() {
		return Transaction{}, fmt.Errorf("status %s is not terminal", status)
	}
	return s.repo.Settle(ctx, reference, status)
}
