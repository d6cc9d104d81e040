package domain

// TokenQuote is the raw market snapshot a market-data source reports for one token.
type TokenQuote struct {
	Symbol         string  // ticker symbol, e.g. "BONK"
	AssetID        string  // token mint address (base58)
	Source         string  // market-data source name
	Price          float64 // price in quote currency
	Volume24h      float64 // 24h traded volume
	MarketCap      float64 // market capitalization
	PriceChange24h float64 // 24h price change in percent
	Holders        int     // holder count (0 = unknown)
	Liquidity      float64 // pool liquidity estimate
}

// Completeness returns the number of populated market fields.
// Used to pick a winner when two sources report the same asset.
func (q TokenQuote) Completeness() int {
	n := 0
	if q.Symbol != "" {
		n++
	}
	if q.Price > 0 {
		n++
	}
	if q.Volume24h > 0 {
		n++
	}
	if q.MarketCap > 0 {
		n++
	}
	if q.PriceChange24h != 0 {
		n++
	}
	if q.Holders > 0 {
		n++
	}
	if q.Liquidity > 0 {
		n++
	}
	return n
}

// Candidate is a scored token surfaced by one scan cycle.
// It is never mutated after scoring and is not persisted.
type Candidate struct {
	TokenQuote
	Confidence float64 // composite score in [0, 100]
}
