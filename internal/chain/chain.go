package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

var (
	// ErrUnsupportedToken is returned for a symbol with no configured contract.
	ErrUnsupportedToken = errors.New("token not supported")

	// ErrInsufficientFunds occurs when the sender's token balance cannot cover a transfer.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInvalidAmount rejects non-positive amounts or amounts finer than the token decimals.
	ErrInvalidAmount = errors.New("invalid token amount")
)

// DefaultDecimals matches the USDC.e and USDT.e bridged stablecoins.
const DefaultDecimals = 6

// DefaultTokens lists the stablecoin contracts on Avalanche C-Chain.
var DefaultTokens = map[string]common.Address{
	"USDC.e": common.HexToAddress("0xA7D7079b0FEaD91F3e65f86E8915Cb59c1a4C664"),
	"USDT.e": common.HexToAddress("0xc7198437980c041c805A1EDcbA50c1Ce5db95118"),
}

// Receipt summarises a mined token transaction.
type Receipt struct {
	TxHash      string
	BlockNumber uint64
	Success     bool
}

// Token is the balance/transfer surface of an ERC-20 style stablecoin.
type Token interface {
	Balance(ctx context.Context, symbol string, owner common.Address) (decimal.Decimal, error)
	Transfer(ctx context.Context, from *ecdsa.PrivateKey, symbol string, to common.Address, amount decimal.Decimal) (Receipt, error)
	Approve(ctx context.Context, owner *ecdsa.PrivateKey, symbol string, spender common.Address, amount decimal.Decimal) (Receipt, error)
}

func validAmount(amount decimal.Decimal, decimals int32) bool {
	return amount.IsPositive() && amount.Shift(decimals).IsInteger()
}
