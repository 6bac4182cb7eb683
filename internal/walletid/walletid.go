package walletid

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip32"
	"github.com/tyler-smith/go-bip39"
)

// DefaultSalt is used when neither the caller nor the configuration provides one.
const DefaultSalt = "avanomad-avalanche-wallet"

// entropyBytes is the BIP-39 entropy length taken from the seed digest (12 words).
const entropyBytes = 16

// ErrDerivation wraps any failure while expanding a seed into key material.
var ErrDerivation = errors.New("wallet derivation failed")

// m/44'/60'/0'/0/0
var ethereumPath = []uint32{
	bip32.FirstHardenedChild + 44,
	bip32.FirstHardenedChild + 60,
	bip32.FirstHardenedChild + 0,
	0,
	0,
}

// Identity is the key material reproducibly derived from a phone number and PIN.
type Identity struct {
	Address common.Address
	key     *ecdsa.PrivateKey
}

// PrivateKey returns the signing key. It is never persisted.
func (i Identity) PrivateKey() *ecdsa.PrivateKey {
	return i.key
}

// LogValue keeps key material out of structured logs.
func (i Identity) LogValue() slog.Value {
	return slog.StringValue(i.Address.Hex())
}

// Derive maps (phone, pin, salt) to a wallet identity. An empty salt selects DefaultSalt.
func Derive(phone, pin, salt string) (Identity, error) {
	if salt == "" {
		salt = DefaultSalt
	}
	digest := sha256.Sum256([]byte(phone + "-" + pin + "-" + salt))

	mnemonic, err := bip39.NewMnemonic(digest[:entropyBytes])
	if err != nil {
		return Identity{}, fmt.Errorf("%w: mnemonic: %v", ErrDerivation, err)
	}
	seed := bip39.NewSeed(mnemonic, "")

	node, err := bip32.NewMasterKey(seed)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: master key: %v", ErrDerivation, err)
	}
	for _, idx := range ethereumPath {
		node, err = node.NewChildKey(idx)
		if err != nil {
			return Identity{}, fmt.Errorf("%w: child %d: %v", ErrDerivation, idx, err)
		}
	}

	key, err := crypto.ToECDSA(common.LeftPadBytes(node.Key, 32))
	if err != nil {
		return Identity{}, fmt.Errorf("%w: ecdsa: %v", ErrDerivation, err)
	}
	return Identity{Address: crypto.PubkeyToAddress(key.PublicKey), key: key}, nil
}

// AddressOf returns the checksummed address for (phone, pin, salt).
func AddressOf(phone, pin, salt string) (string, error) {
	id, err := Derive(phone, pin, salt)
	if err != nil {
		return "", err
	}
	return id.Address.Hex(), nil
}

// Verify reports whether (phone, pin, salt) derives candidate. Comparison ignores case.
func Verify(phone, pin, candidate, salt string) (bool, error) {
	addr, err := AddressOf(phone, pin, salt)
	if err != nil {
		return false, err
	}
	return strings.EqualFold(addr, strings.TrimSpace(candidate)), nil
}

// HashPhone is the only form of a phone number that may be stored or logged.
func HashPhone(phone string) string {
	sum := sha256.Sum256([]byte(phone))
	return hex.EncodeToString(sum[:])
}

// ValidPIN reports whether pin is exactly four ASCII digits.
func ValidPIN(pin string) bool {
	if len(pin) != 4 {
		return false
	}
	for i := 0; i < len(pin); i++ {
		if pin[i] < '0' || pin[i] > '9' {
			return false
		}
	}
	return true
}

// Shorten renders an address as 0x123456...abcdef for menu replies.
func Shorten(address string) string {
	if len(address) <= 14 {
		return address
	}
	return address[:8] + "..." + address[len(address)-6:]
}

// Deriver binds an application salt so callers only deal with phone and PIN.
type Deriver struct {
	Salt string
}

// NewDeriver returns a Deriver for salt, falling back to DefaultSalt.
func NewDeriver(salt string) Deriver {
	if salt == "" {
		salt = DefaultSalt
	}
	return Deriver{Salt: salt}
}

// Derive is Derive with the bound salt.
func (d Deriver) Derive(phone, pin string) (Identity, error) {
	return Derive(phone, pin, d.Salt)
}

// AddressOf is AddressOf with the bound salt.
func (d Deriver) AddressOf(phone, pin string) (string, error) {
	return AddressOf(phone, pin, d.Salt)
}

// Verify is Verify with the bound salt.
func (d Deriver) Verify(phone, pin, candidate string) (bool, error) {
	return Verify(phone, pin, candidate, d.Salt)
}
