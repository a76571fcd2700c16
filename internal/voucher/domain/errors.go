package domain

import "errors"

var (
	ErrVoucherNotFound   = errors.New("voucher_not_found")
	ErrInvalidTransition = errors.New("invalid_transition")
	ErrVoucherExpired    = errors.New("voucher_expired")
	ErrCodeExhausted     = errors.New("voucher_code_exhausted")
)
