package domain

import "errors"

var (
	ErrInvalidRequest = errors.New("invalid_request")
	// ErrConflict means a request ID was replayed with different
	// parameters.
	ErrConflict = errors.New("request_conflict")
)
