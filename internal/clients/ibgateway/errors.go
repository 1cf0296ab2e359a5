package ibgateway

import "errors"

// Sentinel errors for classifying upstream failures.
// Callers match with errors.Is to decide whether a failure is fatal to the
// whole run (ErrUnavailable) or isolated to one instrument (ErrRequestFailed).
var (
	// ErrUnavailable - connection-level failure reaching the gateway
	// (gateway not running or not authenticated)
	ErrUnavailable = errors.New("upstream gateway unavailable")

	// ErrRequestFailed - the gateway answered with a non-2xx status
	ErrRequestFailed = errors.New("upstream request failed")

	// ErrMalformedPayload - the gateway answered 2xx but the body does not
	// match the expected shape
	ErrMalformedPayload = errors.New("malformed upstream payload")
)
