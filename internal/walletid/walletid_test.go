package walletid

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
)

func TestDeriveIsDeterministic(t *testing.T) {
	first, err := Derive("+2348012345678", "1234", "")
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	for i := 0; i < 3; i++ {
		again, err := Derive("+2348012345678", "1234", "")
		if err != nil {
			t.Fatalf("derive again: %v", err)
		}
		if again.Address != first.Address {
			t.Fatalf("expected %s, got %s", first.Address.Hex(), again.Address.Hex())
		}
	}
	if crypto.PubkeyToAddress(first.PrivateKey().PublicKey) != first.Address {
		t.Fatalf("private key does not match address")
	}
}

func TestDeriveSeparatesInputs(t *testing.T) {
	base, _ := AddressOf("+2348012345678", "1234", "")
	otherPIN, _ := AddressOf("+2348012345678", "4321", "")
	otherPhone, _ := AddressOf("+2348012345679", "1234", "")
	otherSalt, _ := AddressOf("+2348012345678", "1234", "staging")

	for name, addr := range map[string]string{"pin": otherPIN, "phone": otherPhone, "salt": otherSalt} {
		if addr == base {
			t.Fatalf("changing %s should change the address", name)
		}
	}
}

func TestDefaultSaltMatchesEmptySalt(t *testing.T) {
	explicit, _ := AddressOf("555", "0000", DefaultSalt)
	implicit, _ := AddressOf("555", "0000", "")
	if explicit != implicit {
		t.Fatalf("empty salt should select the default salt")
	}
	if got, _ := NewDeriver("").AddressOf("555", "0000"); got != explicit {
		t.Fatalf("deriver with empty salt should use default salt")
	}
}

func TestVerifyIgnoresCase(t *testing.T) {
	addr, err := AddressOf("+2348012345678", "1234", "")
	if err != nil {
		t.Fatalf("address: %v", err)
	}
	for _, candidate := range []string{addr, strings.ToLower(addr), strings.ToUpper("0x" + addr[2:])} {
		ok, err := Verify("+2348012345678", "1234", candidate, "")
		if err != nil {
			t.Fatalf("verify: %v", err)
		}
		if !ok {
			t.Fatalf("expected %s to verify", candidate)
		}
	}
	ok, _ := Verify("+2348012345678", "9999", addr, "")
	if ok {
		t.Fatalf("wrong PIN must not verify")
	}
}

func TestValidPIN(t *testing.T) {
	cases := map[string]bool{
		"1234":  true,
		"0000":  true,
		"123":   false,
		"12345": false,
		"12a4":  false,
		"":      false,
		"１２３４":  false,
	}
	for pin, want := range cases {
		if got := ValidPIN(pin); got != want {
			t.Fatalf("ValidPIN(%q) = %v, want %v", pin, got, want)
		}
	}
}

func TestHashPhoneHidesNumber(t *testing.T) {
	h := HashPhone("+2348012345678")
	if len(h) != 64 || strings.Contains(h, "2348012345678") {
		t.Fatalf("unexpected phone hash %q", h)
	}
	if h != HashPhone("+2348012345678") {
		t.Fatalf("phone hash must be stable")
	}
}

func TestShorten(t *testing.T) {
	got := Shorten("0x1234567890abcdef1234567890abcdef12345678")
	if got != "0x123456...345678" {
		t.Fatalf("unexpected short form %q", got)
	}
}

func TestLogValueHidesKey(t *testing.T) {
	id, _ := Derive("1", "1234", "")
	if id.LogValue().String() != id.Address.Hex() {
		t.Fatalf("log value should be the address")
	}
}
