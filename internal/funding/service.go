package funding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/congo_ussd/internal/notification"
	"github.com/congo-pay/congo_ussd/internal/transaction"
)

// ErrRailFailed marks a deposit or withdrawal the payment rail did not accept.
var ErrRailFailed = errors.New("payment rail failure")

// Options configures currencies and limits of the funding flows.
type Options struct {
	FiatCurrency   string
	TokenCurrency  string
	WithdrawalBank string
	CallTimeout    time.Duration
}

// Service coordinates deposits and withdrawals through the payment rail and records each outcome.
type Service struct {
	rail     Rail
	records  *transaction.Service
	notifier notification.Notifier
	opts     Options
}

// NewService prepares a funding service. A nil rail selects StaticRail.
func NewService(rail Rail, records *transaction.Service, notifier notification.Notifier, opts Options) (*Service, error) {
	if records == nil {
		return nil, fmt.Errorf("transaction service is required")
	}
	if rail == nil {
		rail = StaticRail{}
	}
	if opts.FiatCurrency == "" {
		opts.FiatCurrency = "NGN"
	}
	if opts.TokenCurrency == "" {
		opts.TokenCurrency = "USDC.e"
	}
	if opts.WithdrawalBank == "" {
		opts.WithdrawalBank = "mock-bank"
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 15 * time.Second
	}
	return &Service{rail: rail, records: records, notifier: notifier, opts: opts}, nil
}

// Input captures one confirmed deposit or withdrawal order.
type Input struct {
	OrderID       string
	UserID        string
	WalletAddress string
	Phone         string
	Amount        decimal.Decimal
}

// Result is the recorded outcome. Replayed is set when the order had already been executed.
type Result struct {
	Transaction transaction.Transaction
	Replayed    bool
}

// Deposit initiates a fiat collection from the user's phone and records it.
func (s *Service) Deposit(ctx context.Context, input Input) (Result, error) {
	return s.execute(ctx, transaction.KindDeposit, s.opts.FiatCurrency, input, func(ctx context.Context) (RailResult, error) {
		return s.rail.InitiateDeposit(ctx, DepositRequest{Amount: input.Amount, Phone: input.Phone, ClientRef: input.OrderID})
	})
}

// Withdraw initiates a fiat payout to the user's phone account and records it.
func (s *Service) Withdraw(ctx context.Context, input Input) (Result, error) {
	return s.execute(ctx, transaction.KindWithdrawal, s.opts.TokenCurrency, input, func(ctx context.Context) (RailResult, error) {
		return s.rail.InitiateWithdrawal(ctx, WithdrawalRequest{
			Amount:    input.Amount,
			Account:   input.Phone,
			Bank:      s.opts.WithdrawalBank,
			ClientRef: input.OrderID,
		})
	})
}

// Settle applies the rail's final status to a pending record.
func (s *Service) Settle(ctx context.Context, req CallbackRequest) (transaction.Transaction, error) {
	status, err := transaction.ParseStatus(req.Status)
	if err != nil {
		return transaction.Transaction{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	defer cancel()
	return s.records.Settle(ctx, req.Reference, status)
}

func (s *Service) execute(ctx context.Context, kind transaction.Kind, currency string, input Input, call func(context.Context) (RailResult, error)) (Result, error) {
	if !input.Amount.IsPositive() {
		return Result{}, fmt.Errorf("amount must be positive")
	}
	if input.OrderID == "" {
		return Result{}, fmt.Errorf("order id is required")
	}

	lookupCtx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	existing, err := s.records.FindByClientRef(lookupCtx, input.OrderID)
	cancel()
	switch {
	case err == nil:
		if existing.Status == transaction.StatusFailed {
			return Result{Transaction: existing, Replayed: true}, ErrRailFailed
		}
		return Result{Transaction: existing, Replayed: true}, nil
	case !errors.Is(err, transaction.ErrNotFound):
		return Result{}, err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	decision, err := call(callCtx)
	cancel()

	record := transaction.Transaction{
		UserID:        input.UserID,
		Amount:        input.Amount,
		Currency:      currency,
		Kind:          kind,
		ClientRef:     input.OrderID,
		WalletAddress: input.WalletAddress,
	}

	// The outcome is recorded even if the request was abandoned during the rail call.
	recordCtx, cancelRecord := context.WithTimeout(context.WithoutCancel(ctx), s.opts.CallTimeout)
	defer cancelRecord()

	if err != nil {
		record.Status = transaction.StatusFailed
		if _, recErr := s.records.Record(recordCtx, record); recErr != nil {
			return Result{}, fmt.Errorf("%w: %v (recording failure: %v)", ErrRailFailed, err, recErr)
		}
		return Result{}, fmt.Errorf("%w: %v", ErrRailFailed, err)
	}

	status, parseErr := transaction.ParseStatus(decision.Status)
	if parseErr != nil {
		status = transaction.StatusPending
	}
	record.Status = status
	record.Reference = decision.Reference

	saved, err := s.records.Record(recordCtx, record)
	if err != nil {
		if errors.Is(err, transaction.ErrDuplicateTransaction) {
			return Result{Transaction: saved, Replayed: true}, nil
		}
		return Result{}, fmt.Errorf("record %s %s: %w", kind, decision.Reference, err)
	}

	if s.notifier != nil && status != transaction.StatusFailed {
		_ = s.notifier.Send(ctx, notification.Message{
			Kind:        notificationKind(kind),
			Destination: input.WalletAddress,
			Body:        fmt.Sprintf("%s of %s %s initiated, reference %s", kind, input.Amount.String(), currency, decision.Reference),
		})
	}

	if status == transaction.StatusFailed {
		return Result{Transaction: saved}, ErrRailFailed
	}
	return Result{Transaction: saved}, nil
}

func notificationKind(kind transaction.Kind) string {
	if kind == transaction.KindWithdrawal {
		return notification.KindWithdrawal
	}
	return notification.KindDeposit
}
