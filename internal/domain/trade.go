package domain

// TradeRecord is one confirmed execution as persisted by the ledger.
// Corresponds to trade_records table.
type TradeRecord struct {
	TradeID     string    `json:"trade_id"`     // deterministic hash of execution id and tx reference
	ExecutionID string    `json:"execution_id"` // originating execution request
	PositionID  string    `json:"position_id"`  // position the trade opened, grew or reduced
	Symbol      string    `json:"symbol"`       // token symbol
	AssetID     string    `json:"asset_id"`     // token mint
	Direction   Direction `json:"direction"`    // buy | sell

	AmountIn  float64 `json:"amount_in"`  // input units spent (quote currency for buys, tokens for sells)
	AmountOut float64 `json:"amount_out"` // output units received
	Quantity  float64 `json:"quantity"`   // token quantity traded
	Price     float64 `json:"price"`      // fill price, quote currency per token
	Value     float64 `json:"value"`      // quote currency value of the trade

	RealizedPnL   float64 `json:"realized_pnl"`   // sells only: proceeds minus pro-rata entry value
	UnrealizedPnL float64 `json:"unrealized_pnl"` // remaining position PnL after the trade

	TxRef      string `json:"tx_ref"`      // on-chain transaction signature
	Router     string `json:"router"`      // router that filled the swap
	ExecutedAt int64  `json:"executed_at"` // Unix timestamp in milliseconds
}
