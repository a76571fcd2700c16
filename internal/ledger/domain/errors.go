package domain

import "errors"

var (
	ErrInvalidUser         = errors.New("invalid_user")
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrInvalidReason       = errors.New("invalid_reason")
	ErrInsufficientBalance = errors.New("insufficient_balance")
	ErrEntryNotFound       = errors.New("entry_not_found")
)
