package domain

import "time"

// Direction is the side of an execution.
type Direction string

const (
	DirectionBuy  Direction = "buy"
	DirectionSell Direction = "sell"
)

// String returns the string representation of Direction.
func (d Direction) String() string {
	return string(d)
}

// IsValid checks if the direction is a known value.
func (d Direction) IsValid() bool {
	return d == DirectionBuy || d == DirectionSell
}

// ExecutionStatus is the state of an execution request.
// Transitions only pending -> confirmed or pending -> failed.
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionConfirmed ExecutionStatus = "confirmed"
	ExecutionFailed    ExecutionStatus = "failed"
)

// String returns the string representation of ExecutionStatus.
func (s ExecutionStatus) String() string {
	return string(s)
}

// IsTerminal reports whether no further transition is possible.
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionConfirmed || s == ExecutionFailed
}

// ExecutionRequest is a single attempt to change a position's quantity via a swap.
type ExecutionRequest struct {
	ID          string          `json:"id"`
	Direction   Direction       `json:"direction"`
	Symbol      string          `json:"symbol"`
	AssetID     string          `json:"asset_id"`
	Amount      float64         `json:"amount"` // buy: quote currency to spend; sell: token quantity
	PriceHint   float64         `json:"price_hint"`
	Status      ExecutionStatus `json:"status"`
	TxRef       string          `json:"tx_ref,omitempty"`
	RetryCount  int             `json:"retry_count"`
	Router      string          `json:"router,omitempty"`
	Error       string          `json:"error,omitempty"`
	ExitPercent float64         `json:"exit_percent,omitempty"` // sells only
	Reason      string          `json:"reason,omitempty"`

	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
}

// Fill is the confirmed outcome of a swap.
type Fill struct {
	AmountIn  float64 // units of the input asset spent
	AmountOut float64 // units of the output asset received
	Price     float64 // quote currency per token
	TxRef     string
	Router    string
}
