package domain

import "errors"

var (
	ErrBadRequest     = errors.New("bad_request")
	ErrBadSignature   = errors.New("bad_signature")
	ErrAmountMismatch = errors.New("amount_mismatch")
	ErrEmailMissing   = errors.New("email_missing")
	ErrInternal       = errors.New("internal_error")
)
