package solana

import "errors"

// Sentinel errors for data-source failures. Callers match with errors.Is
// and substitute their documented fallback behavior.
var (
	// ErrDataUnavailable means the account or transaction could not be
	// fetched (missing, timeout, endpoint failure).
	ErrDataUnavailable = errors.New("data unavailable")

	// ErrRateLimited means the endpoint rejected the request with 429.
	ErrRateLimited = errors.New("rate limited")
)
