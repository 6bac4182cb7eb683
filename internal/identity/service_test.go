package identity

import (
	"context"
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestRegisterStoresOnlyHashes(t *testing.T) {
	repo := NewMemoryRepository()
	svc := NewService(repo)

	ctx := context.Background()
	user, err := svc.Register(ctx, Registration{Phone: "+2348012345678", PIN: "1234", WalletAddress: "0xabc"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if strings.Contains(user.PhoneHash, "2348012345678") {
		t.Fatalf("phone number stored in clear")
	}
	if string(user.PINHash) == "1234" {
		t.Fatalf("PIN stored in clear")
	}
	if err := bcrypt.CompareHashAndPassword(user.PINHash, []byte("1234")); err != nil {
		t.Fatalf("PIN hash does not match: %v", err)
	}

	found, err := svc.FindByPhone(ctx, "+2348012345678")
	if err != nil {
		t.Fatalf("find by phone: %v", err)
	}
	if found.ID != user.ID || found.WalletAddress != "0xabc" {
		t.Fatalf("unexpected user %+v", found)
	}

	byID, err := svc.Get(ctx, user.ID)
	if err != nil || byID.PhoneHash != user.PhoneHash {
		t.Fatalf("get by id: %+v %v", byID, err)
	}
}

func TestRegisterRejectsDuplicatePhone(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()

	if _, err := svc.Register(ctx, Registration{Phone: "123", PIN: "1234", WalletAddress: "0x1"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.Register(ctx, Registration{Phone: "123", PIN: "9999", WalletAddress: "0x2"}); !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
}

func TestRegisterRejectsMalformedPIN(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	for _, pin := range []string{"", "123", "12345", "abcd"} {
		if _, err := svc.Register(context.Background(), Registration{Phone: "1", PIN: pin, WalletAddress: "0x1"}); err == nil {
			t.Fatalf("expected error for PIN %q", pin)
		}
	}
}

func TestFindByPhoneUnknown(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	if _, err := svc.FindByPhone(context.Background(), "nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
