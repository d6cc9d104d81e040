package domain

// PriceSample is one monitored price observation.
// Corresponds to price_samples table in ClickHouse.
type PriceSample struct {
	AssetID     string  `json:"asset_id"`     // token mint
	Symbol      string  `json:"symbol"`       // token symbol
	TimestampMs int64   `json:"timestamp_ms"` // Unix timestamp in milliseconds
	Price       float64 `json:"price"`        // observed price
	Source      string  `json:"source"`       // market-data source that answered
}
