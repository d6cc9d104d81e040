package solana

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// PublicKeySize is the length of a Solana public key in bytes.
const PublicKeySize = 32

// ErrInvalidPublicKey is returned for strings that are not base58 32-byte keys.
var ErrInvalidPublicKey = errors.New("invalid public key")

// Well-known program ids.
const (
	TokenProgramID           = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	AssociatedTokenProgramID = "ATokenGPvbdGVxr1b1hve8Ugt5rWV6G1sv4HoQkZeJNpz"
)

// maxSeedLength is the longest seed accepted for program addresses.
const maxSeedLength = 32

// ParsePublicKey decodes a base58 public key.
func ParsePublicKey(s string) ([]byte, error) {
	if s == "" {
		return nil, fmt.Errorf("empty key: %w", ErrInvalidPublicKey)
	}
	b, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("decode %q: %v: %w", s, err, ErrInvalidPublicKey)
	}
	if len(b) != PublicKeySize {
		return nil, fmt.Errorf("key %q has %d bytes: %w", s, len(b), ErrInvalidPublicKey)
	}
	return b, nil
}

// ValidatePublicKey reports whether s is a well-formed public key.
// Program-derived addresses are valid even though they are off the curve.
func ValidatePublicKey(s string) error {
	_, err := ParsePublicKey(s)
	return err
}

// IsOnCurve reports whether point is a valid ed25519 point, i.e. an address
// that can have a private key.
func IsOnCurve(point []byte) bool {
	if len(point) != PublicKeySize {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}

// CreateProgramAddress derives a program address from seeds.
// Fails if the result lies on the curve.
func CreateProgramAddress(seeds [][]byte, programID []byte) ([]byte, error) {
	h := sha256.New()
	for _, seed := range seeds {
		if len(seed) > maxSeedLength {
			return nil, fmt.Errorf("seed of %d bytes exceeds %d", len(seed), maxSeedLength)
		}
		h.Write(seed)
	}
	h.Write(programID)
	h.Write([]byte("ProgramDerivedAddress"))
	addr := h.Sum(nil)

	if IsOnCurve(addr) {
		return nil, errors.New("derived address is on the curve")
	}
	return addr, nil
}

// FindProgramAddress searches bump seeds from 255 down for the first valid program address.
func FindProgramAddress(seeds [][]byte, programID []byte) ([]byte, uint8, error) {
	withBump := append(append([][]byte(nil), seeds...), nil)
	for bump := 255; bump >= 0; bump-- {
		withBump[len(seeds)] = []byte{uint8(bump)}
		addr, err := CreateProgramAddress(withBump, programID)
		if err == nil {
			return addr, uint8(bump), nil
		}
	}
	return nil, 0, errors.New("no viable bump seed")
}

// AssociatedTokenAddress returns the associated token account of owner for mint.
func AssociatedTokenAddress(owner, mint string) (string, error) {
	ownerKey, err := ParsePublicKey(owner)
	if err != nil {
		return "", fmt.Errorf("owner: %w", err)
	}
	mintKey, err := ParsePublicKey(mint)
	if err != nil {
		return "", fmt.Errorf("mint: %w", err)
	}
	tokenProgram, _ := base58.Decode(TokenProgramID)
	ataProgram, _ := base58.Decode(AssociatedTokenProgramID)

	addr, _, err := FindProgramAddress([][]byte{ownerKey, tokenProgram, mintKey}, ataProgram)
	if err != nil {
		return "", err
	}
	return base58.Encode(addr), nil
}
