package transaction

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Kind classifies a transaction record.
type Kind string

const (
	KindDeposit    Kind = "DEPOSIT"
	KindWithdrawal Kind = "WITHDRAWAL"
	KindTransfer   Kind = "TRANSFER"
)

// Status is the lifecycle position of a record. PENDING may move to a terminal status once.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ParseStatus normalises a status reported by an external system.
func ParseStatus(v string) (Status, error) {
	switch Status(v) {
	case StatusPending, StatusCompleted, StatusFailed:
		return Status(v), nil
	}
	switch v {
	case "pending", "processing", "initiated":
		return StatusPending, nil
	case "success", "successful", "completed", "approved":
		return StatusCompleted, nil
	case "failed", "declined", "reversed":
		return StatusFailed, nil
	}
	return "", errors.New("unknown transaction status " + v)
}

var (
	// ErrNotFound is returned when no record matches.
	ErrNotFound = errors.New("transaction not found")

	// ErrDuplicateTransaction indicates the client reference was already recorded; the
	// caller should treat the existing record as the outcome.
	ErrDuplicateTransaction = errors.New("duplicate transaction")

	// ErrAlreadySettled is returned when a record has already left PENDING.
	ErrAlreadySettled = errors.New("transaction already settled")
)

// Transaction is an append-only record of a deposit, withdrawal or transfer.
type Transaction struct {
	ID            string
	UserID        string
	Amount        decimal.Decimal
	Currency      string
	Kind          Kind
	Status        Status
	Reference     string
	ClientRef     string
	TxHash        string
	WalletAddress string
	Counterparty  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
