package domain

import "errors"

var (
	ErrInvalidCode   = errors.New("invalid_promo_code")
	ErrInvalidAmount = errors.New("invalid_amount")
	ErrInvalidType   = errors.New("invalid_promo_type")
)
