package weather

import "errors"

var (
	// ErrNetwork wraps transport failures, timeouts and non-success upstream statuses.
	ErrNetwork = errors.New("network error")

	// ErrMalformedResponse is returned when a body cannot be decoded at all.
	// A decoded but sparse document is not an error.
	ErrMalformedResponse = errors.New("malformed response")
)
