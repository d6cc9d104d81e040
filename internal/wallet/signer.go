// Package wallet holds the signing key the engine trades with.
package wallet

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/mr-tron/base58"

	"solana-alpha-engine/internal/solana"
)

// ErrInvalidKey is returned for secret keys that cannot be loaded.
var ErrInvalidKey = errors.New("invalid wallet key")

// Signer signs transactions for one wallet. Key material never leaves the implementation.
type Signer interface {
	// PublicKey returns the base58 wallet address.
	PublicKey() string

	// SignTransaction signs a serialized transaction and returns it with the signature filled in.
	SignTransaction(ctx context.Context, tx []byte) ([]byte, error)
}

// KeypairSigner signs with an in-process ed25519 keypair.
type KeypairSigner struct {
	key    ed25519.PrivateKey
	pubkey string
}

// NewKeypairSigner loads a Solana secret key, either base58-encoded or as the
// JSON byte array written by the Solana CLI. The key is the 64-byte
// seed-and-public-key form; a bare 32-byte seed is also accepted.
func NewKeypairSigner(secret string) (*KeypairSigner, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, fmt.Errorf("empty secret: %w", ErrInvalidKey)
	}

	var raw []byte
	if strings.HasPrefix(secret, "[") {
		var ints []int
		if err := json.Unmarshal([]byte(secret), &ints); err != nil {
			return nil, fmt.Errorf("parse key array: %v: %w", err, ErrInvalidKey)
		}
		raw = make([]byte, len(ints))
		for i, v := range ints {
			if v < 0 || v > 255 {
				return nil, fmt.Errorf("key byte %d out of range: %w", v, ErrInvalidKey)
			}
			raw[i] = byte(v)
		}
	} else {
		decoded, err := base58.Decode(secret)
		if err != nil {
			return nil, fmt.Errorf("decode key: %v: %w", err, ErrInvalidKey)
		}
		raw = decoded
	}

	var key ed25519.PrivateKey
	switch len(raw) {
	case ed25519.SeedSize:
		key = ed25519.NewKeyFromSeed(raw)
	case ed25519.PrivateKeySize:
		key = ed25519.NewKeyFromSeed(raw[:ed25519.SeedSize])
		if !key.Public().(ed25519.PublicKey).Equal(ed25519.PublicKey(raw[ed25519.SeedSize:])) {
			return nil, fmt.Errorf("public half does not match seed: %w", ErrInvalidKey)
		}
	default:
		return nil, fmt.Errorf("key has %d bytes: %w", len(raw), ErrInvalidKey)
	}

	pub := key.Public().(ed25519.PublicKey)
	if !solana.IsOnCurve(pub) {
		return nil, fmt.Errorf("public key off curve: %w", ErrInvalidKey)
	}

	return &KeypairSigner{key: key, pubkey: base58.Encode(pub)}, nil
}

// LoadKeypairFile reads a secret key file in either supported format.
func LoadKeypairFile(path string) (*KeypairSigner, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keypair file: %w", err)
	}
	return NewKeypairSigner(string(data))
}

// PublicKey returns the base58 wallet address.
func (s *KeypairSigner) PublicKey() string {
	return s.pubkey
}

// SignTransaction fills this wallet's signature slot. The wallet must be one
// of the transaction's required signers.
func (s *KeypairSigner) SignTransaction(ctx context.Context, tx []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	parsed, err := solana.ParseTransaction(tx)
	if err != nil {
		return nil, err
	}

	idx := parsed.SignerIndex(s.key.Public().(ed25519.PublicKey))
	if idx < 0 {
		return nil, fmt.Errorf("wallet %s is not a required signer", s.pubkey)
	}
	parsed.Signatures[idx] = ed25519.Sign(s.key, parsed.Message)

	return parsed.Serialize(), nil
}

var _ Signer = (*KeypairSigner)(nil)
