package ussd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/congo-pay/congo_ussd/internal/funding"
	"github.com/congo-pay/congo_ussd/internal/logging"
	"github.com/congo-pay/congo_ussd/internal/metrics"
	"github.com/congo-pay/congo_ussd/internal/payments"
	"github.com/congo-pay/congo_ussd/internal/session"
	"github.com/congo-pay/congo_ussd/internal/transaction"
	"github.com/congo-pay/congo_ussd/internal/walletid"
)

// TransactionFailedMessage is the reply for any order that could not be executed.
const TransactionFailedMessage = "An error occurred while processing your transaction. Please try again."

// Orchestrator executes confirmed orders against the payment rail or the token contract.
type Orchestrator struct {
	funding  *funding.Service
	payments *payments.Service
	deriver  walletid.Deriver
	fiat     string
	token    string
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// OrchestratorConfig wires the orchestrator's collaborators.
type OrchestratorConfig struct {
	Funding      *funding.Service
	Payments     *payments.Service
	Deriver      walletid.Deriver
	FiatCurrency string
	TokenSymbol  string
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
}

// NewOrchestrator builds an orchestrator.
func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	return &Orchestrator{
		funding:  cfg.Funding,
		payments: cfg.Payments,
		deriver:  cfg.Deriver,
		fiat:     cfg.FiatCurrency,
		token:    cfg.TokenSymbol,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
	}
}

// Execution is a confirmed order together with who confirmed it.
type Execution struct {
	Order   session.Order
	Account session.Account
	Phone   string
	PIN     string
}

// Execute runs the order and returns the terminal message for the subscriber. On failure the message
// is TransactionFailedMessage and the error carries the cause.
func (o *Orchestrator) Execute(ctx context.Context, exec Execution) (string, error) {
	var (
		msg    string
		status transaction.Status
		err    error
	)
	switch exec.Order.Kind {
	case transaction.KindDeposit:
		msg, status, err = o.deposit(ctx, exec)
	case transaction.KindWithdrawal:
		msg, status, err = o.withdraw(ctx, exec)
	case transaction.KindTransfer:
		msg, status, err = o.transfer(ctx, exec)
	default:
		err = fmt.Errorf("unknown order kind %q", exec.Order.Kind)
	}

	if status == "" {
		status = transaction.StatusFailed
	}
	o.metrics.ObserveTransaction(string(exec.Order.Kind), string(status))

	if err != nil {
		o.logger.Warn("order failed",
			slog.String("order_id", exec.Order.ID),
			slog.String("kind", string(exec.Order.Kind)),
			slog.String("user_id", exec.Account.UserID),
			slog.Any("error", err))
		return TransactionFailedMessage, newError(KindCollaborator, "execute "+strings.ToLower(string(exec.Order.Kind)), err)
	}
	o.logger.Info("order executed",
		slog.String("order_id", exec.Order.ID),
		slog.String("kind", string(exec.Order.Kind)),
		slog.String("user_id", exec.Account.UserID),
		slog.String("status", string(status)))
	return msg, nil
}

func (o *Orchestrator) fundingInput(exec Execution) funding.Input {
	return funding.Input{
		OrderID:       exec.Order.ID,
		UserID:        exec.Account.UserID,
		WalletAddress: exec.Account.WalletAddress,
		Phone:         exec.Phone,
		Amount:        exec.Order.Amount,
	}
}

func (o *Orchestrator) deposit(ctx context.Context, exec Execution) (string, transaction.Status, error) {
	res, err := o.funding.Deposit(ctx, o.fundingInput(exec))
	if err != nil {
		return "", res.Transaction.Status, err
	}
	tx := res.Transaction
	return fmt.Sprintf("Deposit initiated successfully!\nAmount: %s %s\nReference: %s\nYou will receive your %s shortly.",
		tx.Amount.String(), o.fiat, tx.Reference, o.token), tx.Status, nil
}

func (o *Orchestrator) withdraw(ctx context.Context, exec Execution) (string, transaction.Status, error) {
	res, err := o.funding.Withdraw(ctx, o.fundingInput(exec))
	if err != nil {
		return "", res.Transaction.Status, err
	}
	tx := res.Transaction
	return fmt.Sprintf("Withdrawal initiated successfully!\nAmount: %s %s\nReference: %s\nYou will receive your funds shortly.",
		tx.Amount.String(), o.token, tx.Reference), tx.Status, nil
}

func (o *Orchestrator) transfer(ctx context.Context, exec Execution) (string, transaction.Status, error) {
	if o.payments == nil {
		return "", "", errors.New("transfers are not configured")
	}
	if !common.IsHexAddress(exec.Order.Recipient) {
		return "", "", fmt.Errorf("invalid recipient %q", exec.Order.Recipient)
	}
	from, err := o.deriver.Derive(exec.Phone, exec.PIN)
	if err != nil {
		return "", "", err
	}
	if !strings.EqualFold(from.Address.Hex(), exec.Account.WalletAddress) {
		return "", "", errors.New("confirmed PIN no longer derives the session wallet")
	}

	res, err := o.payments.Transfer(ctx, payments.TransferInput{
		OrderID:   exec.Order.ID,
		UserID:    exec.Account.UserID,
		From:      from,
		Recipient: common.HexToAddress(exec.Order.Recipient),
		Amount:    exec.Order.Amount,
	})
	if err != nil {
		return "", res.Transaction.Status, err
	}
	tx := res.Transaction
	if tx.Status == transaction.StatusPending {
		return fmt.Sprintf("Transfer submitted, pending confirmation.\nAmount: %s %s\nTo: %s\nTx: %s",
			tx.Amount.String(), o.token, walletid.Shorten(tx.Counterparty), walletid.Shorten(tx.TxHash)), tx.Status, nil
	}
	return fmt.Sprintf("Transfer successful!\nAmount: %s %s\nTo: %s\nTx: %s",
		tx.Amount.String(), o.token, walletid.Shorten(tx.Counterparty), walletid.Shorten(tx.TxHash)), tx.Status, nil
}
