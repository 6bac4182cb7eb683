package funding

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Rail represents a connector to the external fiat payment provider.
type Rail interface {
	InitiateDeposit(ctx context.Context, req DepositRequest) (RailResult, error)
	InitiateWithdrawal(ctx context.Context, req WithdrawalRequest) (RailResult, error)
}

// RailResult captures the provider's answer to an initiation.
type RailResult struct {
	Reference string
	Status    string
}

// DepositRequest asks the rail to collect fiat from the payer's phone.
type DepositRequest struct {
	Amount    decimal.Decimal
	Phone     string
	ClientRef string
}

// WithdrawalRequest asks the rail to pay fiat out to an account at a bank.
type WithdrawalRequest struct {
	Amount    decimal.Decimal
	Account   string
	Bank      string
	ClientRef string
}

// StaticRail simulates a provider that accepts every request and settles later.
type StaticRail struct{}

// InitiateDeposit accepts the deposit with a synthetic reference.
func (StaticRail) InitiateDeposit(_ context.Context, _ DepositRequest) (RailResult, error) {
	return RailResult{Reference: syntheticReference("DEP"), Status: "PENDING"}, nil
}

// InitiateWithdrawal accepts the withdrawal with a synthetic reference.
func (StaticRail) InitiateWithdrawal(_ context.Context, _ WithdrawalRequest) (RailResult, error) {
	return RailResult{Reference: syntheticReference("WDR"), Status: "PENDING"}, nil
}

func syntheticReference(prefix string) string {
	id := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return prefix + "-" + id[:12]
}
