package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
)

type inMemoryToken struct {
	mu         sync.RWMutex
	symbols    map[string]struct{}
	balances   map[string]decimal.Decimal
	allowances map[string]decimal.Decimal
	decimals   int32
	seq        atomic.Uint64
}

// NewInMemory creates a concurrency-safe token backend for development and unit tests.
// Unknown owners have a zero balance.
func NewInMemory(symbols ...string) Token {
	t := &inMemoryToken{
		symbols:    make(map[string]struct{}),
		balances:   make(map[string]decimal.Decimal),
		allowances: make(map[string]decimal.Decimal),
		decimals:   DefaultDecimals,
	}
	if len(symbols) == 0 {
		for symbol := range DefaultTokens {
			symbols = append(symbols, symbol)
		}
	}
	for _, symbol := range symbols {
		t.symbols[symbol] = struct{}{}
	}
	return t
}

func balanceKey(symbol string, owner common.Address) string {
	return symbol + ":" + owner.Hex()
}

func (t *inMemoryToken) Balance(_ context.Context, symbol string, owner common.Address) (decimal.Decimal, error) {
	if _, ok := t.symbols[symbol]; !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnsupportedToken, symbol)
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.balances[balanceKey(symbol, owner)], nil
}

func (t *inMemoryToken) Transfer(_ context.Context, from *ecdsa.PrivateKey, symbol string, to common.Address, amount decimal.Decimal) (Receipt, error) {
	if _, ok := t.symbols[symbol]; !ok {
		return Receipt{}, fmt.Errorf("%w: %s", ErrUnsupportedToken, symbol)
	}
	if !validAmount(amount, t.decimals) {
		return Receipt{}, ErrInvalidAmount
	}
	sender := crypto.PubkeyToAddress(from.PublicKey)

	t.mu.Lock()
	defer t.mu.Unlock()

	fromKey, toKey := balanceKey(symbol, sender), balanceKey(symbol, to)
	fromBalance := t.balances[fromKey]
	if fromBalance.LessThan(amount) {
		return Receipt{}, ErrInsufficientFunds
	}
	t.balances[fromKey] = fromBalance.Sub(amount)
	t.balances[toKey] = t.balances[toKey].Add(amount)

	return t.receipt("transfer", sender, to, amount), nil
}

func (t *inMemoryToken) Approve(_ context.Context, owner *ecdsa.PrivateKey, symbol string, spender common.Address, amount decimal.Decimal) (Receipt, error) {
	if _, ok := t.symbols[symbol]; !ok {
		return Receipt{}, fmt.Errorf("%w: %s", ErrUnsupportedToken, symbol)
	}
	if !validAmount(amount, t.decimals) {
		return Receipt{}, ErrInvalidAmount
	}
	holder := crypto.PubkeyToAddress(owner.PublicKey)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.allowances[balanceKey(symbol, holder)+">"+spender.Hex()] = amount

	return t.receipt("approve", holder, spender, amount), nil
}

func (t *inMemoryToken) receipt(kind string, from, to common.Address, amount decimal.Decimal) Receipt {
	n := t.seq.Add(1)
	hash := crypto.Keccak256Hash([]byte(fmt.Sprintf("%s:%s:%s:%s:%d", kind, from.Hex(), to.Hex(), amount.String(), n)))
	return Receipt{TxHash: hash.Hex(), BlockNumber: n, Success: true}
}
