package chaindata

import "errors"

// Sentinel errors of the chain data client.
var (
	// ErrTransientFetch marks failures worth retrying: network errors,
	// throttling, 5xx responses, GraphQL error envelopes, unreadable bodies
	// and an open circuit breaker.
	ErrTransientFetch = errors.New("transient chain data fetch failure")
	// ErrDecode marks a response that could not be decoded.
	ErrDecode = errors.New("decode chain data response")
	// ErrRequest marks a request the provider rejected as invalid.
	ErrRequest = errors.New("chain data request rejected")
	// ErrAssetNotFound means the provider has no asset with the requested id.
	ErrAssetNotFound = errors.New("asset not found")
)
