package domain

import (
	"errors"

	promodomain "github.com/smallbiznis/coursepay/internal/promo/domain"
)

var (
	ErrInvalidEmail       = errors.New("invalid_email")
	ErrProductNotFound    = errors.New("product_not_found")
	ErrPromoInvalid       = errors.New("promo_invalid")
	ErrInvalidAmount      = errors.New("invalid_amount")
	ErrInvalidInvoiceID   = errors.New("invalid_invoice_id")
	ErrInvoiceIDExhausted = errors.New("invoice_id_exhausted")
	ErrGatewayNotReady    = errors.New("gateway_not_configured")
)

// PromoError carries the rejection reason of a promo code. It matches
// ErrPromoInvalid with errors.Is.
type PromoError struct {
	Reason promodomain.Reason
}

func (e *PromoError) Error() string {
	return ErrPromoInvalid.Error() + ": " + string(e.Reason)
}

func (e *PromoError) Is(target error) bool {
	return target == ErrPromoInvalid
}
