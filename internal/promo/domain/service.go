package domain

import (
	"context"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Service interface {
	// Validate has no side effects. A rejected code is reported through
	// Validation.Reason; the error is reserved for storage failures.
	Validate(ctx context.Context, req ValidateRequest) (*Validation, error)
	// RecordUsage appends to the usage ledger inside the settling transaction.
	// Callers hold the SettlementLocker for the code until that transaction
	// commits.
	RecordUsage(ctx context.Context, tx *gorm.DB, req RecordUsageRequest) error
}

// SettlementLocker serializes promo settlement per code. The release func
// must run after the settling transaction has committed.
type SettlementLocker interface {
	Acquire(ctx context.Context, code string) (func(), error)
}

type ValidateRequest struct {
	Code       string
	Email      string
	BaseAmount decimal.Decimal
}

type Validation struct {
	OK          bool
	Reason      Reason
	Code        string
	Type        Type
	Value       decimal.Decimal
	BaseAmount  decimal.Decimal
	FinalAmount decimal.Decimal
}

// Discount is the amount taken off the base price.
func (v Validation) Discount() decimal.Decimal {
	return v.BaseAmount.Sub(v.FinalAmount)
}

type RecordUsageRequest struct {
	Code      string
	Email     string
	InvoiceID int64
}
