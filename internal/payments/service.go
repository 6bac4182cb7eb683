package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/congo_ussd/internal/chain"
	"github.com/congo-pay/congo_ussd/internal/notification"
	"github.com/congo-pay/congo_ussd/internal/transaction"
	"github.com/congo-pay/congo_ussd/internal/walletid"
)

var (
	// ErrSelfTransfer rejects transfers whose recipient is the sender's own wallet.
	ErrSelfTransfer = errors.New("cannot transfer to own wallet")

	// ErrTransferFailed indicates the token transfer was rejected or reverted on chain.
	ErrTransferFailed = errors.New("token transfer failed")
)

// Service signs token transfers with the sender's derived key and records the outcome.
type Service struct {
	token    chain.Token
	records  *transaction.Service
	notifier notification.Notifier
	symbol   string
	timeout  time.Duration
}

// NewService constructs a payment service.
func NewService(token chain.Token, records *transaction.Service, notifier notification.Notifier, symbol string, timeout time.Duration) *Service {
	if symbol == "" {
		symbol = "USDC.e"
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Service{token: token, records: records, notifier: notifier, symbol: symbol, timeout: timeout}
}

// TransferInput captures the data needed to move tokens between wallets.
type TransferInput struct {
	OrderID   string
	UserID    string
	From      walletid.Identity
	Recipient common.Address
	Amount    decimal.Decimal
}

// TransferResult describes the recorded outcome of a transfer.
type TransferResult struct {
	Transaction transaction.Transaction
	Replayed    bool
}

// Transfer sends tokens on chain exactly once per order.
func (s *Service) Transfer(ctx context.Context, input TransferInput) (TransferResult, error) {
	if !input.Amount.IsPositive() {
		return TransferResult{}, fmt.Errorf("amount must be positive")
	}
	if input.OrderID == "" {
		return TransferResult{}, fmt.Errorf("order id is required")
	}
	if input.From.PrivateKey() == nil {
		return TransferResult{}, fmt.Errorf("sender key is required")
	}
	if input.Recipient == input.From.Address {
		return TransferResult{}, ErrSelfTransfer
	}

	lookupCtx, cancel := context.WithTimeout(ctx, s.timeout)
	existing, err := s.records.FindByClientRef(lookupCtx, input.OrderID)
	cancel()
	switch {
	case err == nil:
		if existing.Status == transaction.StatusFailed {
			return TransferResult{Transaction: existing, Replayed: true}, ErrTransferFailed
		}
		return TransferResult{Transaction: existing, Replayed: true}, nil
	case !errors.Is(err, transaction.ErrNotFound):
		return TransferResult{}, err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	receipt, sendErr := s.token.Transfer(callCtx, input.From.PrivateKey(), s.symbol, input.Recipient, input.Amount)
	cancel()

	// Broadcast but not mined before the deadline: the outcome is still open.
	submitted := receipt.TxHash != "" && (errors.Is(sendErr, context.DeadlineExceeded) || errors.Is(sendErr, context.Canceled))
	if submitted {
		sendErr = nil
	}

	record := transaction.Transaction{
		UserID:        input.UserID,
		Amount:        input.Amount,
		Currency:      s.symbol,
		Kind:          transaction.KindTransfer,
		Status:        transaction.StatusCompleted,
		ClientRef:     input.OrderID,
		TxHash:        receipt.TxHash,
		Reference:     receipt.TxHash,
		WalletAddress: input.From.Address.Hex(),
		Counterparty:  input.Recipient.Hex(),
	}
	switch {
	case submitted:
		record.Status = transaction.StatusPending
	case sendErr != nil || !receipt.Success:
		record.Status = transaction.StatusFailed
	}

	// A broadcast transfer must be recorded even if the request went away meanwhile.
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	saved, err := s.records.Record(recordCtx, record)
	cancel()
	if err != nil && !errors.Is(err, transaction.ErrDuplicateTransaction) {
		if sendErr != nil {
			return TransferResult{}, fmt.Errorf("%w: %v (recording failure: %v)", ErrTransferFailed, sendErr, err)
		}
		return TransferResult{}, fmt.Errorf("record transfer %s: %w", receipt.TxHash, err)
	}

	if sendErr != nil {
		if errors.Is(sendErr, chain.ErrInsufficientFunds) {
			return TransferResult{Transaction: saved}, fmt.Errorf("%w: %w", ErrTransferFailed, sendErr)
		}
		return TransferResult{Transaction: saved}, fmt.Errorf("%w: %v", ErrTransferFailed, sendErr)
	}
	if !submitted && !receipt.Success {
		return TransferResult{Transaction: saved}, fmt.Errorf("%w: reverted in %s", ErrTransferFailed, receipt.TxHash)
	}

	if s.notifier != nil && !submitted {
		_ = s.notifier.Send(ctx, notification.Message{
			Kind:        notification.KindTransferReceived,
			Destination: input.Recipient.Hex(),
			Body:        fmt.Sprintf("received %s %s from %s", input.Amount.String(), s.symbol, walletid.Shorten(input.From.Address.Hex())),
		})
	}

	return TransferResult{Transaction: saved}, nil
}
