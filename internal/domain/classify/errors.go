package classify

import "errors"

var (
	// ErrClassification is returned when every attempt against the classifier failed.
	ErrClassification = errors.New("classification failed")
	// ErrMalformedResponse marks a classifier body that is not JSON.
	ErrMalformedResponse = errors.New("malformed classifier response")
	// ErrTransport wraps a non-success status or transport failure for one attempt.
	ErrTransport = errors.New("classifier transport error")
)
