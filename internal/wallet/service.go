package wallet

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/congo_ussd/internal/chain"
)

const (
	statusActive = "active"
)

// Service exposes wallet records and their on-chain balance.
type Service struct {
	repo     Repository
	token    chain.Token
	currency string
}

// NewService builds a wallet service instance. currency is the token symbol wallets hold.
func NewService(repo Repository, token chain.Token, currency string) *Service {
	return &Service{repo: repo, token: token, currency: currency}
}

// CreateInput captures data required to record a wallet.
type CreateInput struct {
	OwnerID  string
	Address  string
	Currency string
}

// Create records a derived wallet for its owner.
func (s *Service) Create(ctx context.Context, input CreateInput) (Wallet, error) {
	if _, err := uuid.Parse(input.OwnerID); err != nil {
		return Wallet{}, err
	}
	if !common.IsHexAddress(input.Address) {
		return Wallet{}, fmt.Errorf("invalid wallet address %q", input.Address)
	}

	currency := input.Currency
	if currency == "" {
		currency = s.currency
	}

	now := time.Now().UTC()
	wallet := Wallet{
		ID:        uuid.New().String(),
		OwnerID:   input.OwnerID,
		Address:   common.HexToAddress(input.Address).Hex(),
		Currency:  currency,
		Balance:   decimal.Zero,
		Status:    statusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Create(ctx, wallet); err != nil {
		return Wallet{}, err
	}

	return wallet, nil
}

// FindByAddress retrieves wallet metadata by address.
func (s *Service) FindByAddress(ctx context.Context, address string) (Wallet, error) {
	return s.repo.FindByAddress(ctx, address)
}

// FindByOwner retrieves the wallet belonging to a user.
func (s *Service) FindByOwner(ctx context.Context, ownerID string) (Wallet, error) {
	return s.repo.FindByOwner(ctx, ownerID)
}

// Balance reads the token balance for an address and refreshes the cached value.
// A failed cache write does not fail the read.
func (s *Service) Balance(ctx context.Context, address string) (Balance, error) {
	if !common.IsHexAddress(address) {
		return Balance{}, fmt.Errorf("invalid wallet address %q", address)
	}
	amount, err := s.token.Balance(ctx, s.currency, common.HexToAddress(address))
	if err != nil {
		return Balance{}, err
	}
	_ = s.repo.UpdateBalance(ctx, address, amount)
	return Balance{Address: address, Currency: s.currency, Amount: amount, AsOf: time.Now().UTC()}, nil
}

// Currency is the token symbol wallets hold.
func (s *Service) Currency() string {
	return s.currency
}
