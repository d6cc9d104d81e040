package domain

import "time"

// SourceState is the health of one market-data source after a scan.
type SourceState string

const (
	SourceOK     SourceState = "ok"
	SourceFailed SourceState = "failed"
	SourceOpen   SourceState = "open" // circuit breaker open, not polled
)

// String returns the string representation of SourceState.
func (s SourceState) String() string {
	return string(s)
}

// SourceHealth reports how a source behaved in the latest scan.
type SourceHealth struct {
	Name      string        `json:"name"`
	State     SourceState   `json:"state"`
	Quotes    int           `json:"quotes"`
	LastError string        `json:"last_error,omitempty"`
	Latency   time.Duration `json:"latency"`
	Cached    bool          `json:"cached"` // snapshot reused within the source's poll interval
}
