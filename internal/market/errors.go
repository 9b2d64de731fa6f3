package market

import "errors"

// Failure taxonomy surfaced to the orchestrator. The fetcher never retries
// internally; it classifies and reports.
var (
	// ErrTransientNetwork marks timeouts, 5xx responses and transport
	// failures. The orchestrator retries these within the work item budget.
	ErrTransientNetwork = errors.New("transient network error")

	// ErrRateLimited marks 429/418 class responses. Treated as transient
	// with extra backoff upstream.
	ErrRateLimited = errors.New("rate limited by exchange")

	// ErrSymbolUnknown marks a symbol the exchange does not list. Not
	// retried.
	ErrSymbolUnknown = errors.New("unknown symbol")

	// ErrInsufficientData is returned when the final assembled window is
	// shorter than the minimum required. Not retried.
	ErrInsufficientData = errors.New("insufficient candle data")
)

// IsRetryable reports whether the orchestrator should retry the fetch.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransientNetwork) || errors.Is(err, ErrRateLimited)
}
