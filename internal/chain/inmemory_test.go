package chain

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
)

func TestInMemoryToken_TransferMaintainsSupply(t *testing.T) {
	tok := NewInMemory("USDC.e")
	ctx := context.Background()

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	sender := crypto.PubkeyToAddress(key.PublicKey)
	recipient := common.HexToAddress("0x00000000000000000000000000000000000000b0")

	SeedBalance(tok, "USDC.e", sender, decimal.NewFromInt(100))

	receipt, err := tok.Transfer(ctx, key, "USDC.e", recipient, decimal.RequireFromString("12.5"))
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if !receipt.Success || receipt.TxHash == "" {
		t.Fatalf("unexpected receipt %+v", receipt)
	}

	from, _ := tok.Balance(ctx, "USDC.e", sender)
	to, _ := tok.Balance(ctx, "USDC.e", recipient)
	if !from.Equal(decimal.RequireFromString("87.5")) || !to.Equal(decimal.RequireFromString("12.5")) {
		t.Fatalf("unexpected balances from=%s to=%s", from, to)
	}
}

func TestInMemoryToken_Rejections(t *testing.T) {
	tok := NewInMemory("USDC.e")
	ctx := context.Background()
	key, _ := crypto.GenerateKey()
	to := common.HexToAddress("0x01")

	if _, err := tok.Transfer(ctx, key, "USDC.e", to, decimal.NewFromInt(1)); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if _, err := tok.Transfer(ctx, key, "USDC.e", to, decimal.Zero); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
	if _, err := tok.Transfer(ctx, key, "USDC.e", to, decimal.RequireFromString("0.0000001")); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount for sub-unit value, got %v", err)
	}
	if _, err := tok.Balance(ctx, "DOGE", to); !errors.Is(err, ErrUnsupportedToken) {
		t.Fatalf("expected unsupported token, got %v", err)
	}
}

func TestInMemoryToken_Approve(t *testing.T) {
	tok := NewInMemory()
	key, _ := crypto.GenerateKey()
	receipt, err := tok.Approve(context.Background(), key, "USDT.e", common.HexToAddress("0x02"), decimal.NewFromInt(5))
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if !receipt.Success {
		t.Fatalf("expected successful receipt")
	}
}

func TestInMemoryToken_ConcurrentTransfers(t *testing.T) {
	tok := NewInMemory("USDC.e")
	ctx := context.Background()
	key, _ := crypto.GenerateKey()
	sender := crypto.PubkeyToAddress(key.PublicKey)
	recipient := common.HexToAddress("0x03")
	SeedBalance(tok, "USDC.e", sender, decimal.NewFromInt(1_000))

	const workers = 10
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := tok.Transfer(ctx, key, "USDC.e", recipient, decimal.NewFromInt(50)); err != nil {
				t.Errorf("transfer failed: %v", err)
			}
		}()
	}
	wg.Wait()

	from, _ := tok.Balance(ctx, "USDC.e", sender)
	to, _ := tok.Balance(ctx, "USDC.e", recipient)
	if !from.Add(to).Equal(decimal.NewFromInt(1_000)) || !to.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("supply not conserved: from=%s to=%s", from, to)
	}
}
