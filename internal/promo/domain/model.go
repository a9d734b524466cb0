package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Type string

const (
	TypePercent Type = "percent"
	TypeFixed   Type = "fixed"
)

func (t Type) Valid() bool {
	return t == TypePercent || t == TypeFixed
}

// Reason explains why a code was rejected.
type Reason string

const (
	ReasonNotFound   Reason = "not_found"
	ReasonExpired    Reason = "expired"
	ReasonMinAmount  Reason = "min_amount"
	ReasonUsageLimit Reason = "usage_limit"
	ReasonEmailLimit Reason = "email_limit"
)

// PromoCode is stored with an upper-case code. Zero caps mean unlimited.
type PromoCode struct {
	Code            string          `gorm:"column:code;type:text;primaryKey"`
	Type            Type            `gorm:"column:type;type:text;not null"`
	Value           decimal.Decimal `gorm:"column:value;type:numeric(12,2);not null"`
	MinAmount       decimal.Decimal `gorm:"column:min_amount;type:numeric(12,2);not null;default:0"`
	ExpiresAt       *time.Time      `gorm:"column:expires_at"`
	MaxUses         int             `gorm:"column:max_uses;not null;default:0"`
	MaxUsesPerEmail int             `gorm:"column:max_uses_per_email;not null;default:0"`
	CreatedAt       time.Time       `gorm:"column:created_at;not null"`
}

func (PromoCode) TableName() string { return "promo_codes" }

// PromoUsage is one settled redemption. Rows are never updated.
type PromoUsage struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	Code      string       `gorm:"column:code;type:text;not null;index"`
	Email     string       `gorm:"column:email;type:text;not null;index"`
	InvoiceID int64        `gorm:"column:invoice_id;not null;uniqueIndex"`
	UsedAt    time.Time    `gorm:"column:used_at;not null"`
}

func (PromoUsage) TableName() string { return "promo_usages" }

// Apply returns the discounted amount rounded half-up to cents.
func (p PromoCode) Apply(base decimal.Decimal) decimal.Decimal {
	var final decimal.Decimal
	switch p.Type {
	case TypePercent:
		factor := decimal.NewFromInt(1).Sub(p.Value.Div(decimal.NewFromInt(100)))
		final = base.Mul(factor)
	default:
		final = base.Sub(p.Value)
	}
	if final.IsNegative() {
		final = decimal.Zero
	}
	return final.Round(2)
}
