package domain

import "errors"

// Error classes shared by all components. Concrete errors wrap one of these
// with fmt.Errorf("...: %w", ErrX) so callers can classify with errors.Is.
var (
	// ErrTransient marks external failures worth retrying: timeouts, rate limits, no quote.
	ErrTransient = errors.New("transient external failure")

	// ErrDataQuality marks missing, stale or incomplete market data.
	// The affected symbol is skipped for the cycle.
	ErrDataQuality = errors.New("data quality failure")

	// ErrInvariant marks a violated engine invariant. The operation is aborted and not retried.
	ErrInvariant = errors.New("invariant violation")
)

// IsTransient reports whether err is classified as transient.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
