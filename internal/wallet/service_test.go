package wallet

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/congo_ussd/internal/chain"
)

const testAddress = "0x9fb29aac15b9a4b7f17c3385939b007540f4d791"

func TestServiceCreateAndBalance(t *testing.T) {
	repo := NewMemoryRepository()
	tok := chain.NewInMemory("USDC.e")
	svc := NewService(repo, tok, "USDC.e")

	ctx := context.Background()
	ownerID := uuid.NewString()
	wallet, err := svc.Create(ctx, CreateInput{OwnerID: ownerID, Address: testAddress})
	if err != nil {
		t.Fatalf("create wallet: %v", err)
	}
	if wallet.Currency != "USDC.e" || wallet.Address != common.HexToAddress(testAddress).Hex() {
		t.Fatalf("unexpected wallet %+v", wallet)
	}

	fetched, err := svc.FindByAddress(ctx, strings.ToUpper(testAddress[2:]))
	if err == nil {
		t.Fatalf("lookup without 0x prefix should not match, got %+v", fetched)
	}
	fetched, err = svc.FindByAddress(ctx, strings.ToUpper(testAddress))
	if err != nil {
		t.Fatalf("find wallet: %v", err)
	}
	if fetched.ID != wallet.ID || fetched.OwnerID != ownerID {
		t.Fatalf("expected wallet ID %s, got %s", wallet.ID, fetched.ID)
	}

	chain.SeedBalance(tok, "USDC.e", common.HexToAddress(testAddress), decimal.RequireFromString("25.5"))

	balance, err := svc.Balance(ctx, testAddress)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if !balance.Amount.Equal(decimal.RequireFromString("25.5")) {
		t.Fatalf("expected balance 25.5, got %s", balance.Amount)
	}

	cached, _ := svc.FindByOwner(ctx, ownerID)
	if !cached.Balance.Equal(balance.Amount) {
		t.Fatalf("expected cached balance %s, got %s", balance.Amount, cached.Balance)
	}
}

func TestServiceCreateRejectsDuplicatesAndBadInput(t *testing.T) {
	svc := NewService(NewMemoryRepository(), chain.NewInMemory(), "USDC.e")
	ctx := context.Background()

	if _, err := svc.Create(ctx, CreateInput{OwnerID: "nope", Address: testAddress}); err == nil {
		t.Fatalf("expected owner id error")
	}
	if _, err := svc.Create(ctx, CreateInput{OwnerID: uuid.NewString(), Address: "0x12"}); err == nil {
		t.Fatalf("expected address error")
	}
	if _, err := svc.Create(ctx, CreateInput{OwnerID: uuid.NewString(), Address: testAddress}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Create(ctx, CreateInput{OwnerID: uuid.NewString(), Address: testAddress}); !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
}
