package transaction

import (
	"context"
	"sort"
	"sync"
	"time"
)

type inMemoryRepository struct {
	mu          sync.RWMutex
	byID        map[string]Transaction
	byClientRef map[string]string
	byReference map[string]string
}

// NewInMemory creates a concurrency-safe record store useful for unit tests.
func NewInMemory() Repository {
	return &inMemoryRepository{
		byID:        make(map[string]Transaction),
		byClientRef: make(map[string]string),
		byReference: make(map[string]string),
	}
}

func (r *inMemoryRepository) Create(_ context.Context, tx Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if tx.ClientRef != "" {
		if _, exists := r.byClientRef[tx.ClientRef]; exists {
			return ErrDuplicateTransaction
		}
	}
	if tx.Reference != "" {
		if _, exists := r.byReference[tx.Reference]; exists {
			return ErrDuplicateTransaction
		}
	}
	r.byID[tx.ID] = tx
	if tx.ClientRef != "" {
		r.byClientRef[tx.ClientRef] = tx.ID
	}
	if tx.Reference != "" {
		r.byReference[tx.Reference] = tx.ID
	}
	return nil
}

func (r *inMemoryRepository) FindByClientRef(_ context.Context, clientRef string) (Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byClientRef[clientRef]
	if !ok {
		return Transaction{}, ErrNotFound
	}
	return r.byID[id], nil
}

func (r *inMemoryRepository) ListByUser(_ context.Context, userID string, limit int) ([]Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Transaction
	for _, tx := range r.byID {
		if tx.UserID == userID {
			out = append(out, tx)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *inMemoryRepository) Settle(_ context.Context, reference string, status Status) (Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byReference[reference]
	if !ok {
		return Transaction{}, ErrNotFound
	}
	tx := r.byID[id]
	if tx.Status.Terminal() {
		return tx, ErrAlreadySettled
	}
	tx.Status = status
	tx.UpdatedAt = time.Now().UTC()
	r.byID[id] = tx
	return tx, nil
}
