package solana

import "context"

// RPCClient defines the Solana JSON-RPC calls the engine needs.
type RPCClient interface {
	// GetBalance returns the lamport balance of an account.
	GetBalance(ctx context.Context, pubkey string) (uint64, error)

	// GetTokenAccountBalance returns the balance of an SPL token account.
	// Returns nil if the account does not exist.
	GetTokenAccountBalance(ctx context.Context, account string) (*TokenAmount, error)

	// GetTokenSupply returns the supply of an SPL mint, which carries its decimals.
	// Returns nil if the mint does not exist.
	GetTokenSupply(ctx context.Context, mint string) (*TokenAmount, error)

	// SendTransaction submits a signed, serialized transaction and returns its signature.
	SendTransaction(ctx context.Context, tx []byte) (string, error)

	// GetSignatureStatuses returns the status of each signature, nil for unknown ones.
	GetSignatureStatuses(ctx context.Context, signatures []string) ([]*SignatureStatus, error)

	// GetSlot returns the current slot.
	GetSlot(ctx context.Context) (int64, error)
}
