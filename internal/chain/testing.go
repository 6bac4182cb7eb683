package chain

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// SeedBalance is a test helper that sets an owner's balance when using the in-memory token.
func SeedBalance(t Token, symbol string, owner common.Address, amount decimal.Decimal) {
	if mem, ok := t.(*inMemoryToken); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		mem.balances[balanceKey(symbol, owner)] = amount
	}
}
