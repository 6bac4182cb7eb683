package ussd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/congo_ussd/internal/identity"
	"github.com/congo-pay/congo_ussd/internal/logging"
	"github.com/congo-pay/congo_ussd/internal/metrics"
	"github.com/congo-pay/congo_ussd/internal/session"
	"github.com/congo-pay/congo_ussd/internal/transaction"
	"github.com/congo-pay/congo_ussd/internal/wallet"
	"github.com/congo-pay/congo_ussd/internal/walletid"
)

const (
	defaultBootstrapPIN = "0000"
	statementSize       = 3
)

// Config wires a Machine.
type Config struct {
	Sessions     *session.Manager
	Users        *identity.Service
	Wallets      *wallet.Service
	Records      *transaction.Service
	Orchestrator *Orchestrator
	Deriver      walletid.Deriver
	AppName      string
	BootstrapPIN string
	FiatCurrency string
	TokenSymbol  string
	// TokenDecimals bounds the precision of token-denominated amounts.
	TokenDecimals int32
	CallTimeout   time.Duration
	Logger        *slog.Logger
	Metrics       *metrics.Metrics
}

// Machine is the USSD menu state machine. It is safe for concurrent use; requests for the same
// session are serialised by the session manager.
type Machine struct {
	cfg    Config
	logger *slog.Logger
}

// NewMachine validates cfg and fills in defaults.
func NewMachine(cfg Config) (*Machine, error) {
	if cfg.Sessions == nil || cfg.Users == nil || cfg.Wallets == nil || cfg.Records == nil || cfg.Orchestrator == nil {
		return nil, errors.New("ussd machine: sessions, users, wallets, records and orchestrator are required")
	}
	if cfg.Deriver.Salt == "" {
		cfg.Deriver = walletid.NewDeriver("")
	}
	if cfg.AppName == "" {
		cfg.AppName = "Avanomad"
	}
	if cfg.BootstrapPIN == "" {
		cfg.BootstrapPIN = defaultBootstrapPIN
	}
	if cfg.FiatCurrency == "" {
		cfg.FiatCurrency = "NGN"
	}
	if cfg.TokenSymbol == "" {
		cfg.TokenSymbol = "USDC.e"
	}
	if cfg.TokenDecimals <= 0 {
		cfg.TokenDecimals = 6
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 15 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	return &Machine{cfg: cfg, logger: cfg.Logger}, nil
}

// Handle processes one gateway request and returns the encoded CON/END reply. It never fails:
// every error and panic is reduced to a generic terminal reply.
func (m *Machine) Handle(ctx context.Context, sessionKey, phone, text string) string {
	lease, err := m.cfg.Sessions.Open(ctx, sessionKey, phone, m.bootstrap)
	if err != nil {
		m.logger.Error("open session failed", slog.String("session_id", sessionKey), slog.Any("error", err))
		return Encode(false, Message(KindInternal))
	}
	s := lease.Session
	defer func() {
		if err := lease.Close(context.WithoutCancel(ctx)); err != nil {
			m.logger.Error("persist session failed", slog.String("session_id", sessionKey), slog.Any("error", err))
		}
	}()

	if !lease.Created && text != "" && text == s.LastInput && s.LastReply != "" {
		m.logger.Debug("replayed request", slog.String("session_id", sessionKey), slog.String("phone_hash", s.PhoneHash))
		return s.LastReply
	}

	state := s.State()
	m.cfg.Metrics.ObserveRequest(string(state))

	out, err := m.safeDispatch(ctx, lease, phone, text)
	if err != nil {
		kind := KindOf(err)
		level := slog.LevelWarn
		if kind == KindInternal {
			level = slog.LevelError
		}
		m.logger.Log(ctx, level, "ussd request failed",
			slog.String("session_id", sessionKey),
			slog.String("phone_hash", s.PhoneHash),
			slog.String("state", string(state)),
			slog.String("kind", kind.String()),
			slog.Any("error", err))
		m.reset(ctx, lease)
		out = end(Message(kind))
	}

	encoded := out.String()
	s.LastInput = text
	s.LastReply = encoded
	m.logger.Debug("ussd request handled",
		slog.String("session_id", sessionKey),
		slog.String("phone_hash", s.PhoneHash),
		slog.String("from", string(state)),
		slog.String("to", string(s.State())))
	return encoded
}

func (m *Machine) safeDispatch(ctx context.Context, lease *session.Lease, phone, text string) (out reply, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = newError(KindInternal, "dispatch", fmt.Errorf("panic: %v", r))
		}
	}()
	return m.dispatch(ctx, lease, phone, text)
}

// reset returns the session to MAIN, or drops it when no account is attached yet.
func (m *Machine) reset(ctx context.Context, lease *session.Lease) {
	if lease.Session.Account != nil {
		lease.Session.Step = session.MainMenu{}
		return
	}
	if err := lease.Delete(ctx); err != nil {
		m.logger.Warn("drop session failed", slog.String("session_id", lease.Session.Key), slog.Any("error", err))
	}
}

func (m *Machine) dispatch(ctx context.Context, lease *session.Lease, phone, text string) (reply, error) {
	s := lease.Session
	if text == "" {
		return m.start(s), nil
	}
	input := LastSegment(text)

	switch step := s.Step.(type) {
	case session.CreateAccount:
		return m.createAccount(s, input), nil
	case session.SetPIN:
		return m.setPIN(ctx, s, phone, input)
	case session.MainMenu:
		return m.mainMenu(ctx, lease, input)
	case session.CheckBalance:
		return m.checkBalance(ctx, s, phone, input)
	case session.AmountEntry:
		return m.amountEntry(s, step, input), nil
	case session.TransferEntry:
		return m.transferEntry(ctx, s, step, input)
	case session.PINEntry:
		return m.pinEntry(s, step, phone, input)
	case session.Confirmation:
		return m.confirm(ctx, s, step, phone, input), nil
	default:
		return reply{}, newError(KindInternal, "dispatch", fmt.Errorf("unhandled state %s", s.State()))
	}
}

func (m *Machine) bootstrap(ctx context.Context, phone string) (session.Step, *session.Account, error) {
	probe, err := m.cfg.Deriver.AddressOf(phone, m.cfg.BootstrapPIN)
	if err != nil {
		return nil, nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, m.cfg.CallTimeout)
	defer cancel()

	w, err := m.cfg.Wallets.FindByAddress(callCtx, probe)
	switch {
	case err == nil:
		user, err := m.cfg.Users.Get(callCtx, w.OwnerID)
		if err == nil {
			return session.MainMenu{}, &session.Account{UserID: user.ID, WalletAddress: w.Address}, nil
		}
		if !errors.Is(err, identity.ErrNotFound) {
			return nil, nil, err
		}
	case !errors.Is(err, wallet.ErrNotFound):
		return nil, nil, err
	}

	// The probe only finds accounts whose PIN is the placeholder; fall back to the phone hash.
	user, err := m.cfg.Users.FindByPhone(callCtx, phone)
	if errors.Is(err, identity.ErrNotFound) {
		return session.CreateAccount{}, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return session.MainMenu{}, &session.Account{UserID: user.ID, WalletAddress: user.WalletAddress}, nil
}

func (m *Machine) start(s *session.Session) reply {
	if s.Account == nil {
		s.Step = session.CreateAccount{}
		return con(fmt.Sprintf("Welcome to %s\nYou need to create an account first\n1. Create account", m.cfg.AppName))
	}
	s.Step = session.MainMenu{}
	return con(fmt.Sprintf("Welcome to %s\n%s", m.cfg.AppName, mainMenuOptions))
}

const mainMenuOptions = "1. Deposit\n2. Withdraw\n3. Check balance\n4. Send\n5. Mini statement\n0. Exit"

func (m *Machine) createAccount(s *session.Session, input string) reply {
	if input == "1" {
		s.Step = session.SetPIN{}
		return con("Please set a 4-digit PIN for your account:")
	}
	return con("Invalid option.\n1. Create account")
}

func (m *Machine) setPIN(ctx context.Context, s *session.Session, phone, pin string) (reply, error) {
	if !walletid.ValidPIN(pin) {
		return con("Invalid PIN. Please enter a 4-digit PIN:"), nil
	}
	address, err := m.cfg.Deriver.AddressOf(phone, pin)
	if err != nil {
		return reply{}, newError(KindInternal, "derive wallet", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, m.cfg.CallTimeout)
	defer cancel()

	user, err := m.cfg.Users.Register(callCtx, identity.Registration{Phone: phone, PIN: pin, WalletAddress: address})
	if err != nil {
		return reply{}, newError(KindCollaborator, "register user", err)
	}
	w, err := m.cfg.Wallets.Create(callCtx, wallet.CreateInput{OwnerID: user.ID, Address: address})
	if err != nil {
		return reply{}, newError(KindCollaborator, "create wallet", err)
	}

	s.Account = &session.Account{UserID: user.ID, WalletAddress: w.Address}
	s.Step = session.MainMenu{}
	m.logger.Info("account created", slog.String("user_id", user.ID), slog.String("phone_hash", s.PhoneHash), slog.String("wallet", w.Address))
	return end(fmt.Sprintf("Account created successfully!\nYour wallet address: %s\nRemember your PIN - it's needed to access your wallet!",
		walletid.Shorten(w.Address))), nil
}

func (m *Machine) mainMenu(ctx context.Context, lease *session.Lease, input string) (reply, error) {
	s := lease.Session
	if s.Account == nil {
		return m.start(s), nil
	}
	switch input {
	case "1":
		s.Step = session.AmountEntry{Kind: transaction.KindDeposit}
		return con("Enter amount to deposit (in local currency):"), nil
	case "2":
		s.Step = session.AmountEntry{Kind: transaction.KindWithdrawal}
		return con(fmt.Sprintf("Enter amount to withdraw (in %s):", m.cfg.TokenSymbol)), nil
	case "3":
		s.Step = session.CheckBalance{}
		return con("Enter your PIN to check balance:"), nil
	case "4":
		s.Step = session.TransferEntry{}
		return con("Enter recipient phone number:"), nil
	case "5":
		return m.statement(ctx, s)
	case "0":
		if err := lease.Delete(ctx); err != nil {
			return reply{}, newError(KindInternal, "delete session", err)
		}
		return end(fmt.Sprintf("Thank you for using %s.", m.cfg.AppName)), nil
	}
	return con("Invalid option.\n" + mainMenuOptions), nil
}

func (m *Machine) statement(ctx context.Context, s *session.Session) (reply, error) {
	callCtx, cancel := context.WithTimeout(ctx, m.cfg.CallTimeout)
	defer cancel()

	txs, err := m.cfg.Records.Recent(callCtx, s.Account.UserID, statementSize)
	if err != nil {
		return reply{}, newError(KindCollaborator, "recent transactions", err)
	}
	if len(txs) == 0 {
		return end("No transactions yet."), nil
	}
	var b strings.Builder
	b.WriteString("Last transactions:")
	for i, tx := range txs {
		fmt.Fprintf(&b, "\n%d. %s %s %s %s", i+1, tx.Kind, tx.Amount.String(), tx.Currency, tx.Status)
	}
	return end(b.String()), nil
}

func (m *Machine) checkBalance(ctx context.Context, s *session.Session, phone, pin string) (reply, error) {
	if !walletid.ValidPIN(pin) {
		return con("Invalid PIN. Please enter a 4-digit PIN:"), nil
	}
	if err := m.authenticate(s, phone, pin); err != nil {
		return reply{}, err
	}

	callCtx, cancel := context.WithTimeout(ctx, m.cfg.CallTimeout)
	defer cancel()

	bal, err := m.cfg.Wallets.Balance(callCtx, s.Account.WalletAddress)
	if err != nil {
		return reply{}, newError(KindCollaborator, "balance", err)
	}
	s.Step = session.MainMenu{}
	return end(fmt.Sprintf("Your balance:\n%s: %s\nAddress: %s", bal.Currency, bal.Amount.String(), walletid.Shorten(bal.Address))), nil
}

// authenticate checks that (phone, pin) derives the session's wallet. It is the only gate in front
// of balance queries and order execution.
func (m *Machine) authenticate(s *session.Session, phone, pin string) error {
	if s.Account == nil {
		return newError(KindInternal, "authenticate", errors.New("no account attached to session"))
	}
	ok, err := m.cfg.Deriver.Verify(phone, pin, s.Account.WalletAddress)
	if err != nil {
		return newError(KindInternal, "authenticate", err)
	}
	if !ok {
		return newError(KindAuth, "authenticate", errors.New("PIN does not derive session wallet"))
	}
	return nil
}

func (m *Machine) parseAmount(input string, kind transaction.Kind) (decimal.Decimal, bool) {
	amount, err := decimal.NewFromString(input)
	if err != nil || !amount.IsPositive() {
		return decimal.Decimal{}, false
	}
	if kind != transaction.KindDeposit && amount.Exponent() < -m.cfg.TokenDecimals {
		return decimal.Decimal{}, false
	}
	return amount, true
}

func (m *Machine) amountEntry(s *session.Session, step session.AmountEntry, input string) reply {
	amount, ok := m.parseAmount(input, step.Kind)
	if !ok {
		return con("Invalid amount. Please enter a valid amount:")
	}
	order := session.Order{ID: uuid.NewString(), Kind: step.Kind, Amount: amount}
	s.Step = session.PINEntry{Order: order, Next: session.StateConfirm}
	if step.Kind == transaction.KindWithdrawal {
		return con("Enter your PIN to confirm withdrawal:")
	}
	return con("Enter your PIN to confirm deposit:")
}

func (m *Machine) transferEntry(ctx context.Context, s *session.Session, step session.TransferEntry, input string) (reply, error) {
	if step.Recipient == "" {
		if input == "" {
			return con("Enter recipient phone number:"), nil
		}
		callCtx, cancel := context.WithTimeout(ctx, m.cfg.CallTimeout)
		defer cancel()

		recipient, err := m.cfg.Users.FindByPhone(callCtx, input)
		if errors.Is(err, identity.ErrNotFound) {
			return con("Recipient not found. Enter recipient phone number:"), nil
		}
		if err != nil {
			return reply{}, newError(KindCollaborator, "find recipient", err)
		}
		if strings.EqualFold(recipient.WalletAddress, s.Account.WalletAddress) {
			return con("You cannot send to yourself. Enter recipient phone number:"), nil
		}
		s.Step = session.TransferEntry{Recipient: recipient.WalletAddress}
		return con(fmt.Sprintf("Enter amount to send (in %s):", m.cfg.TokenSymbol)), nil
	}

	amount, ok := m.parseAmount(input, transaction.KindTransfer)
	if !ok {
		return con("Invalid amount. Please enter a valid amount:"), nil
	}
	order := session.Order{ID: uuid.NewString(), Kind: transaction.KindTransfer, Amount: amount, Recipient: step.Recipient}
	s.Step = session.PINEntry{Order: order, Next: session.StateConfirm}
	return con("Enter your PIN to confirm transfer:"), nil
}

func (m *Machine) pinEntry(s *session.Session, step session.PINEntry, phone, pin string) (reply, error) {
	if !walletid.ValidPIN(pin) {
		return con("Invalid PIN. Please enter a 4-digit PIN:"), nil
	}
	if err := m.authenticate(s, phone, pin); err != nil {
		return reply{}, err
	}
	if step.Next != session.StateConfirm {
		return reply{}, newError(KindInternal, "pin entry", fmt.Errorf("unexpected continuation %s", step.Next))
	}

	next := session.Confirmation{Order: step.Order}
	if step.Order.Kind == transaction.KindTransfer {
		next.PIN = pin
	}
	s.Step = next
	return con(m.confirmationPrompt(step.Order)), nil
}

func (m *Machine) confirmationPrompt(order session.Order) string {
	var head string
	switch order.Kind {
	case transaction.KindWithdrawal:
		head = fmt.Sprintf("Confirm withdrawal of %s %s:", order.Amount.String(), m.cfg.TokenSymbol)
	case transaction.KindTransfer:
		head = fmt.Sprintf("Confirm sending %s %s to %s:", order.Amount.String(), m.cfg.TokenSymbol, walletid.Shorten(order.Recipient))
	default:
		head = fmt.Sprintf("Confirm deposit of %s to your wallet:", order.Amount.String())
	}
	return head + "\n1. Confirm\n2. Cancel"
}

func (m *Machine) confirm(ctx context.Context, s *session.Session, step session.Confirmation, phone, input string) reply {
	switch input {
	case "1":
		s.Step = session.MainMenu{}
		msg, err := m.cfg.Orchestrator.Execute(ctx, Execution{
			Order:   step.Order,
			Account: *s.Account,
			Phone:   phone,
			PIN:     step.PIN,
		})
		if err != nil {
			return end(TransactionFailedMessage)
		}
		return end(msg)
	case "2":
		s.Step = session.MainMenu{}
		return end("Transaction cancelled.")
	}
	s.Step = session.MainMenu{}
	return con("Invalid option. Transaction not confirmed.\n" + mainMenuOptions)
}
