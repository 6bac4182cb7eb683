package wallet

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

type memoryRepository struct {
	mu      sync.RWMutex
	storage map[string]Wallet
}

// NewMemoryRepository constructs an in-memory repository for tests and development.
func NewMemoryRepository() Repository {
	return &memoryRepository{storage: make(map[string]Wallet)}
}

func addressKey(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

func (r *memoryRepository) Create(_ context.Context, wallet Wallet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := addressKey(wallet.Address)
	if _, exists := r.storage[key]; exists {
		return ErrExists
	}
	r.storage[key] = wallet
	return nil
}

func (r *memoryRepository) FindByAddress(_ context.Context, address string) (Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	wallet, ok := r.storage[addressKey(address)]
	if !ok {
		return Wallet{}, ErrNotFound
	}
	return wallet, nil
}

func (r *memoryRepository) FindByOwner(_ context.Context, ownerID string) (Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, wallet := range r.storage {
		if wallet.OwnerID == ownerID {
			return wallet, nil
		}
	}
	return Wallet{}, ErrNotFound
}

func (r *memoryRepository) UpdateBalance(_ context.Context, address string, balance decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := addressKey(address)
	wallet, ok := r.storage[key]
	if !ok {
		return ErrNotFound
	}
	wallet.Balance = balance
	wallet.UpdatedAt = time.Now().UTC()
	r.storage[key] = wallet
	return nil
}
