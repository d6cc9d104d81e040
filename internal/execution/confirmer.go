package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"solana-alpha-engine/internal/solana"
)

// DefaultPollInterval is how often RPCConfirmer polls signature statuses.
const DefaultPollInterval = 2 * time.Second

// RPCConfirmer confirms transactions by polling getSignatureStatuses.
type RPCConfirmer struct {
	rpc        solana.RPCClient
	interval   time.Duration
	commitment string
	logger     logrus.FieldLogger
}

// NewRPCConfirmer creates a confirmer waiting for commitment (default confirmed).
func NewRPCConfirmer(rpc solana.RPCClient, interval time.Duration, commitment string, logger logrus.FieldLogger) *RPCConfirmer {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if commitment == "" {
		commitment = solana.CommitmentConfirmed
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &RPCConfirmer{
		rpc:        rpc,
		interval:   interval,
		commitment: commitment,
		logger:     logger.WithField("component", "confirmer"),
	}
}

// Confirm polls until txRef reaches the commitment level or ctx ends.
// Poll errors are logged and retried; only ctx bounds the wait.
func (c *RPCConfirmer) Confirm(ctx context.Context, txRef string) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		statuses, err := c.rpc.GetSignatureStatuses(ctx, []string{txRef})
		switch {
		case err != nil:
			if ctx.Err() == nil {
				c.logger.WithError(err).WithField("tx", txRef).Debug("signature status poll failed")
			}
		case len(statuses) == 1 && statuses[0] != nil:
			st := statuses[0]
			if st.Failed() {
				return fmt.Errorf("%s: %v: %w", txRef, st.Err, ErrTxFailed)
			}
			if st.Reached(c.commitment) {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("confirm %s: %w", txRef, ctx.Err())
		case <-ticker.C:
		}
	}
}

var _ Confirmer = (*RPCConfirmer)(nil)
