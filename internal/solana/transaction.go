package solana

import (
	"bytes"
	"errors"
	"fmt"
)

// SignatureSize is the length of an ed25519 signature.
const SignatureSize = 64

// ErrMalformedTransaction is returned when wire bytes cannot be parsed.
var ErrMalformedTransaction = errors.New("malformed transaction")

// RawTransaction is a serialized transaction split into its signature slots
// and the message they sign. Both legacy and versioned messages are supported.
type RawTransaction struct {
	Signatures [][]byte
	Message    []byte

	RequiredSignatures int
	AccountKeys        [][]byte // static keys, signers first
}

// ParseTransaction parses the wire format of a transaction.
func ParseTransaction(b []byte) (*RawTransaction, error) {
	n, off, err := decodeCompactU16(b)
	if err != nil {
		return nil, fmt.Errorf("signature count: %w", err)
	}
	if len(b) < off+n*SignatureSize {
		return nil, fmt.Errorf("%d signatures truncated: %w", n, ErrMalformedTransaction)
	}

	tx := &RawTransaction{Signatures: make([][]byte, n)}
	for i := 0; i < n; i++ {
		sig := make([]byte, SignatureSize)
		copy(sig, b[off:off+SignatureSize])
		tx.Signatures[i] = sig
		off += SignatureSize
	}
	tx.Message = append([]byte(nil), b[off:]...)

	msg := tx.Message
	if len(msg) == 0 {
		return nil, fmt.Errorf("empty message: %w", ErrMalformedTransaction)
	}
	// A set high bit marks a versioned message; the header follows the version byte.
	if msg[0]&0x80 != 0 {
		msg = msg[1:]
	}
	if len(msg) < 3 {
		return nil, fmt.Errorf("short header: %w", ErrMalformedTransaction)
	}
	tx.RequiredSignatures = int(msg[0])
	msg = msg[3:]

	keys, off, err := decodeCompactU16(msg)
	if err != nil {
		return nil, fmt.Errorf("account count: %w", err)
	}
	if len(msg) < off+keys*PublicKeySize {
		return nil, fmt.Errorf("%d account keys truncated: %w", keys, ErrMalformedTransaction)
	}
	for i := 0; i < keys; i++ {
		tx.AccountKeys = append(tx.AccountKeys, msg[off:off+PublicKeySize])
		off += PublicKeySize
	}

	if tx.RequiredSignatures != n || tx.RequiredSignatures > keys {
		return nil, fmt.Errorf("header wants %d signers, have %d slots and %d keys: %w",
			tx.RequiredSignatures, n, keys, ErrMalformedTransaction)
	}
	return tx, nil
}

// SignerIndex returns the signature slot for pubkey, or -1 if it is not a required signer.
func (t *RawTransaction) SignerIndex(pubkey []byte) int {
	for i := 0; i < t.RequiredSignatures && i < len(t.AccountKeys); i++ {
		if bytes.Equal(t.AccountKeys[i], pubkey) {
			return i
		}
	}
	return -1
}

// Serialize returns the wire format of the transaction.
func (t *RawTransaction) Serialize() []byte {
	var buf bytes.Buffer
	buf.Write(encodeCompactU16(len(t.Signatures)))
	for _, sig := range t.Signatures {
		buf.Write(sig)
	}
	buf.Write(t.Message)
	return buf.Bytes()
}

// decodeCompactU16 reads a shortvec length: 7 bits per byte, at most 3 bytes.
func decodeCompactU16(b []byte) (int, int, error) {
	var v int
	for i := 0; i < 3; i++ {
		if i >= len(b) {
			return 0, 0, fmt.Errorf("truncated length: %w", ErrMalformedTransaction)
		}
		v |= int(b[i]&0x7f) << (7 * i)
		if b[i]&0x80 == 0 {
			return v, i + 1, nil
		}
	}
	return 0, 0, fmt.Errorf("length overflows u16: %w", ErrMalformedTransaction)
}

func encodeCompactU16(v int) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v == 0 {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}
