package wallet

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet is the stored record of a derived wallet. The private key is never part of it.
type Wallet struct {
	ID        string
	OwnerID   string
	Address   string
	Currency  string
	Balance   decimal.Decimal
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Balance is a token balance read from the chain.
type Balance struct {
	Address  string
	Currency string
	Amount   decimal.Decimal
	AsOf     time.Time
}
