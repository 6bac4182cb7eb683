package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/congo_ussd/internal/transaction"
)

// DefaultTTL is how long an idle session survives before the sweeper removes it.
const DefaultTTL = time.Hour

var (
	// ErrNotFound is returned when no session is stored under a key.
	ErrNotFound = errors.New("session not found")

	// ErrLocked is returned when a session key could not be acquired before the context ended.
	ErrLocked = errors.New("session is locked")

	// ErrLockLost is returned when a lease's lock expired before the session was written back.
	ErrLockLost = errors.New("session lock lost")
)

// State names the menu position of a session.
type State string

const (
	StateMain          State = "MAIN"
	StateCheckBalance  State = "CHECK_BALANCE"
	StateDeposit       State = "DEPOSIT"
	StateWithdraw      State = "WITHDRAW"
	StateTransfer      State = "TRANSFER"
	StateEnterPIN      State = "ENTER_PIN"
	StateConfirm       State = "CONFIRM_TRANSACTION"
	StateCreateAccount State = "CREATE_ACCOUNT"
	StateSetPIN        State = "SET_PIN"
)

// Step is the state-specific payload of a session. Each variant carries only what its transition needs.
type Step interface {
	State() State
}

// Order is a transaction the user is assembling. ID doubles as the client reference of the
// resulting record so a retried confirmation cannot execute twice.
type Order struct {
	ID        string           `json:"id"`
	Kind      transaction.Kind `json:"kind"`
	Amount    decimal.Decimal  `json:"amount"`
	Recipient string           `json:"recipient,omitempty"`
}

type MainMenu struct{}

type CreateAccount struct{}

type SetPIN struct{}

type CheckBalance struct{}

// AmountEntry waits for the amount of a deposit or withdrawal.
type AmountEntry struct {
	Kind transaction.Kind `json:"kind"`
}

// TransferEntry waits for the recipient phone, then for the amount once Recipient is set.
type TransferEntry struct {
	Recipient string `json:"recipient,omitempty"`
}

// PINEntry waits for the PIN that authorises Order before moving to Next.
type PINEntry struct {
	Order Order `json:"order"`
	Next  State `json:"next"`
}

// Confirmation waits for the final 1/2 choice. PIN is only kept for orders that sign on chain.
type Confirmation struct {
	Order Order  `json:"order"`
	PIN   string `json:"pin,omitempty"`
}

func (MainMenu) State() State      { return StateMain }
func (CreateAccount) State() State { return StateCreateAccount }
func (SetPIN) State() State        { return StateSetPIN }
func (CheckBalance) State() State  { return StateCheckBalance }
func (TransferEntry) State() State { return StateTransfer }
func (PINEntry) State() State      { return StateEnterPIN }
func (Confirmation) State() State  { return StateConfirm }

func (s AmountEntry) State() State {
	if s.Kind == transaction.KindWithdrawal {
		return StateWithdraw
	}
	return StateDeposit
}

// Account is the resolved user and wallet attached to a session.
type Account struct {
	UserID        string `json:"user_id"`
	WalletAddress string `json:"wallet_address"`
}

// Session is the server-side state of one USSD conversation. The raw phone number is never kept.
type Session struct {
	Key          string
	PhoneHash    string
	Step         Step
	Account      *Account
	LastInput    string
	LastReply    string
	CreatedAt    time.Time
	LastActivity time.Time
}

// State reports the active menu state.
func (s *Session) State() State {
	if s.Step == nil {
		return StateMain
	}
	return s.Step.State()
}

// Clone returns a copy that shares no mutable memory with s.
func (s *Session) Clone() *Session {
	out := *s
	if s.Account != nil {
		acc := *s.Account
		out.Account = &acc
	}
	return &out
}

// Expired reports whether the session has been idle for longer than ttl at now.
func (s *Session) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(s.LastActivity) > ttl
}

type envelope struct {
	Key          string          `json:"key"`
	PhoneHash    string          `json:"phone_hash"`
	State        State           `json:"state"`
	Step         json.RawMessage `json:"step,omitempty"`
	Account      *Account        `json:"account,omitempty"`
	LastInput    string          `json:"last_input,omitempty"`
	LastReply    string          `json:"last_reply,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	LastActivity time.Time       `json:"last_activity"`
}

// MarshalJSON encodes the step as a {state, step} pair.
func (s Session) MarshalJSON() ([]byte, error) {
	env := envelope{
		Key:          s.Key,
		PhoneHash:    s.PhoneHash,
		State:        s.State(),
		Account:      s.Account,
		LastInput:    s.LastInput,
		LastReply:    s.LastReply,
		CreatedAt:    s.CreatedAt,
		LastActivity: s.LastActivity,
	}
	if s.Step != nil {
		raw, err := json.Marshal(s.Step)
		if err != nil {
			return nil, err
		}
		env.Step = raw
	}
	return json.Marshal(env)
}

// UnmarshalJSON restores the concrete step variant named by state.
func (s *Session) UnmarshalJSON(data []byte) error {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	step, err := decodeStep(env.State, env.Step)
	if err != nil {
		return err
	}
	*s = Session{
		Key:          env.Key,
		PhoneHash:    env.PhoneHash,
		Step:         step,
		Account:      env.Account,
		LastInput:    env.LastInput,
		LastReply:    env.LastReply,
		CreatedAt:    env.CreatedAt,
		LastActivity: env.LastActivity,
	}
	return nil
}

func decodeStep(state State, raw json.RawMessage) (Step, error) {
	var step Step
	switch state {
	case StateMain:
		return MainMenu{}, nil
	case StateCreateAccount:
		return CreateAccount{}, nil
	case StateSetPIN:
		return SetPIN{}, nil
	case StateCheckBalance:
		return CheckBalance{}, nil
	case StateDeposit, StateWithdraw:
		var v AmountEntry
		if err := unmarshalStep(raw, &v); err != nil {
			return nil, err
		}
		step = v
	case StateTransfer:
		var v TransferEntry
		if err := unmarshalStep(raw, &v); err != nil {
			return nil, err
		}
		step = v
	case StateEnterPIN:
		var v PINEntry
		if err := unmarshalStep(raw, &v); err != nil {
			return nil, err
		}
		step = v
	case StateConfirm:
		var v Confirmation
		if err := unmarshalStep(raw, &v); err != nil {
			return nil, err
		}
		step = v
	default:
		return nil, fmt.Errorf("unknown session state %q", state)
	}
	return step, nil
}

func unmarshalStep(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}
