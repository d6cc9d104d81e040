// Package stub provides an in-memory solana.RPCClient for tests.
package stub

import (
	"context"
	"crypto/sha256"
	"errors"
	"sync"

	"github.com/mr-tron/base58"

	"solana-alpha-engine/internal/solana"
)

// ErrSendFailed is returned by SendTransaction when FailSend is set.
var ErrSendFailed = errors.New("send failed")

// RPCClient implements solana.RPCClient for testing.
// Sent transactions land at the status set in Landing.
type RPCClient struct {
	mu sync.Mutex

	Balances      map[string]uint64
	TokenBalances map[string]*solana.TokenAmount
	Supplies      map[string]*solana.TokenAmount // by mint
	Statuses      map[string]*solana.SignatureStatus
	Sent          [][]byte

	// Landing is the status given to sent transactions, nil leaves them unknown.
	Landing  *solana.SignatureStatus
	FailSend error
	Slot     int64
}

// NewRPCClient creates a stub whose sent transactions finalize immediately.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		Balances:      make(map[string]uint64),
		TokenBalances: make(map[string]*solana.TokenAmount),
		Supplies:      make(map[string]*solana.TokenAmount),
		Statuses:      make(map[string]*solana.SignatureStatus),
		Landing:       &solana.SignatureStatus{Slot: 1, ConfirmationStatus: solana.CommitmentFinalized},
	}
}

// GetBalance returns the stored lamport balance, zero for unknown accounts.
func (c *RPCClient) GetBalance(_ context.Context, pubkey string) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Balances[pubkey], nil
}

// GetTokenAccountBalance returns the stored token balance, nil for unknown accounts.
func (c *RPCClient) GetTokenAccountBalance(_ context.Context, account string) (*solana.TokenAmount, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.TokenBalances[account], nil
}

// GetTokenSupply returns the stored mint supply, nil for unknown mints.
func (c *RPCClient) GetTokenSupply(_ context.Context, mint string) (*solana.TokenAmount, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Supplies[mint], nil
}

// SendTransaction records tx and returns a signature derived from its bytes.
func (c *RPCClient) SendTransaction(_ context.Context, tx []byte) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailSend != nil {
		return "", c.FailSend
	}

	c.Sent = append(c.Sent, append([]byte(nil), tx...))
	sum := sha256.Sum256(append(append([]byte(nil), tx...), byte(len(c.Sent))))
	sig := base58.Encode(sum[:])
	if c.Landing != nil {
		st := *c.Landing
		c.Statuses[sig] = &st
	}
	return sig, nil
}

// GetSignatureStatuses returns the stored statuses in request order.
func (c *RPCClient) GetSignatureStatuses(_ context.Context, signatures []string) ([]*solana.SignatureStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*solana.SignatureStatus, len(signatures))
	for i, sig := range signatures {
		if st, ok := c.Statuses[sig]; ok {
			cp := *st
			out[i] = &cp
		}
	}
	return out, nil
}

// GetSlot returns Slot.
func (c *RPCClient) GetSlot(_ context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Slot, nil
}

// SetStatus sets the status of a signature.
func (c *RPCClient) SetStatus(signature string, st *solana.SignatureStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Statuses[signature] = st
}

// SentCount returns how many transactions were sent.
func (c *RPCClient) SentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Sent)
}

var _ solana.RPCClient = (*RPCClient)(nil)
