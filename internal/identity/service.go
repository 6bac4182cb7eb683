package identity

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/congo-pay/congo_ussd/internal/walletid"
)

// Service manages identity lifecycle.
type Service struct {
	repo Repository
}

// NewService creates a new identity service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Register creates a user keyed by the phone hash and stores a bcrypt hash of the PIN.
func (s *Service) Register(ctx context.Context, reg Registration) (User, error) {
	if !walletid.ValidPIN(reg.PIN) {
		return User{}, errors.New("PIN must be exactly 4 digits")
	}
	if reg.WalletAddress == "" {
		return User{}, errors.New("wallet address is required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(reg.PIN), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}

	user := User{
		ID:            uuid.New().String(),
		PhoneHash:     walletid.HashPhone(reg.Phone),
		PINHash:       hash,
		WalletAddress: reg.WalletAddress,
		CreatedAt:     time.Now().UTC(),
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return User{}, err
	}

	return user, nil
}

// Get fetches a user by identifier.
func (s *Service) Get(ctx context.Context, id string) (User, error) {
	return s.repo.FindByID(ctx, id)
}

// FindByPhone resolves a user from a raw phone number without storing it.
func (s *Service) FindByPhone(ctx context.Context, phone string) (User, error) {
	return s.repo.FindByPhoneHash(ctx, walletid.HashPhone(phone))
}
