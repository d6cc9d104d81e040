package execution

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"solana-alpha-engine/internal/solana"
	solanastub "solana-alpha-engine/internal/solana/stub"
)

func TestRPCConfirmer(t *testing.T) {
	rpc := solanastub.NewRPCClient()
	rpc.SetStatus("confirmed", &solana.SignatureStatus{ConfirmationStatus: solana.CommitmentConfirmed})
	rpc.SetStatus("processed", &solana.SignatureStatus{ConfirmationStatus: solana.CommitmentProcessed})
	rpc.SetStatus("failed", &solana.SignatureStatus{ConfirmationStatus: solana.CommitmentConfirmed, Err: map[string]interface{}{"InstructionError": 1}})

	c := NewRPCConfirmer(rpc, 5*time.Millisecond, solana.CommitmentConfirmed, nil)

	assert.NoError(t, c.Confirm(context.Background(), "confirmed"))
	assert.ErrorIs(t, c.Confirm(context.Background(), "failed"), ErrTxFailed)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.Confirm(ctx, "processed"), context.DeadlineExceeded)

	ctx2, cancel2 := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel2()
	assert.ErrorIs(t, c.Confirm(ctx2, "unknown"), context.DeadlineExceeded)
}

func TestRPCConfirmer_LandsWhilePolling(t *testing.T) {
	rpc := solanastub.NewRPCClient()
	c := NewRPCConfirmer(rpc, 5*time.Millisecond, solana.CommitmentFinalized, nil)

	go func() {
		time.Sleep(15 * time.Millisecond)
		rpc.SetStatus("sig", &solana.SignatureStatus{ConfirmationStatus: solana.CommitmentFinalized})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, c.Confirm(ctx, "sig"))
}
