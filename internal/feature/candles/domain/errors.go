// Package domain defines domain-level errors for the candles feature.
package domain

import "errors"

// Domain errors for candle ingestion.
// Callers match on these with errors.Is; the wrapped cause carries the detail.
var (
	// ErrInvalidInterval indicates an interval token with an unknown unit or a non-positive count.
	// It is returned before any network call is made.
	ErrInvalidInterval = errors.New("invalid interval")

	// ErrInvalidRequest indicates an ingestion request that cannot be executed
	// (empty symbol, start after end, non-positive candle budget, unparsable date).
	ErrInvalidRequest = errors.New("invalid ingestion request")

	// ErrFetch indicates the exchange could not be reached, timed out or answered with a non-2xx status
	// after the client's own retry policy gave up.
	ErrFetch = errors.New("fetch error")

	// ErrMalformedData indicates a row from the exchange that does not match the kline schema.
	// The whole ingestion is aborted rather than skipping the row.
	ErrMalformedData = errors.New("malformed data")

	// ErrStorage indicates the persistence layer failed on a single candle.
	ErrStorage = errors.New("storage error")
)
