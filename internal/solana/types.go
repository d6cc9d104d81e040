package solana

import "strconv"

// LamportsPerSOL is the number of lamports in one SOL.
const LamportsPerSOL = 1_000_000_000

// Commitment levels reported by getSignatureStatuses, in increasing order.
const (
	CommitmentProcessed = "processed"
	CommitmentConfirmed = "confirmed"
	CommitmentFinalized = "finalized"
)

// SignatureStatus is one entry of getSignatureStatuses.
type SignatureStatus struct {
	Slot               int64       `json:"slot"`
	Confirmations      *int64      `json:"confirmations"` // nil once finalized
	Err                interface{} `json:"err"`
	ConfirmationStatus string      `json:"confirmationStatus"`
}

// Failed reports whether the transaction landed with an error.
func (s *SignatureStatus) Failed() bool {
	return s.Err != nil
}

// Reached reports whether the status is at least the given commitment.
func (s *SignatureStatus) Reached(commitment string) bool {
	return commitmentRank(s.ConfirmationStatus) >= commitmentRank(commitment)
}

func commitmentRank(c string) int {
	switch c {
	case CommitmentProcessed:
		return 1
	case CommitmentConfirmed:
		return 2
	case CommitmentFinalized:
		return 3
	default:
		return 0
	}
}

// TokenAmount is an SPL token balance.
type TokenAmount struct {
	Amount         string   `json:"amount"` // raw integer amount
	Decimals       int      `json:"decimals"`
	UIAmount       *float64 `json:"uiAmount"`
	UIAmountString string   `json:"uiAmountString"`
}

// Float returns the balance in token units.
func (t *TokenAmount) Float() float64 {
	if t.UIAmountString != "" {
		if v, err := strconv.ParseFloat(t.UIAmountString, 64); err == nil {
			return v
		}
	}
	if t.UIAmount != nil {
		return *t.UIAmount
	}
	raw, err := strconv.ParseFloat(t.Amount, 64)
	if err != nil {
		return 0
	}
	for i := 0; i < t.Decimals; i++ {
		raw /= 10
	}
	return raw
}

// LamportsToSOL converts lamports to SOL.
func LamportsToSOL(lamports uint64) float64 {
	return float64(lamports) / LamportsPerSOL
}
