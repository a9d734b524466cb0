package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
)

type Source string

const (
	SourceCheckout Source = "checkout"
	// SourceWebhook marks orders created from a verified callback that had no
	// local record.
	SourceWebhook Source = "webhook"
)

// Order is one checkout attempt. Amount and Receipt are frozen at creation
// and Status only moves from pending to paid.
type Order struct {
	InvoiceID     int64          `gorm:"column:invoice_id;primaryKey;autoIncrement:false"`
	Email         string         `gorm:"column:email;type:text;not null;index"`
	ProductCode   string         `gorm:"column:product_code;type:text;not null"`
	Amount        string         `gorm:"column:amount;type:text;not null"`
	PromoCode     *string        `gorm:"column:promo_code;type:text"`
	PromoDiscount *string        `gorm:"column:promo_discount;type:text"`
	Status        Status         `gorm:"column:status;type:text;not null;index"`
	Source        Source         `gorm:"column:source;type:text;not null"`
	Receipt       datatypes.JSON `gorm:"column:receipt"`
	CreatedAt     time.Time      `gorm:"column:created_at;not null"`
	PaidAt        *time.Time     `gorm:"column:paid_at"`
}

func (Order) TableName() string { return "orders" }

func (o Order) IsPaid() bool {
	return o.Status == StatusPaid
}

// AmountTolerance bounds the accepted difference between the signed amount
// and the one confirmed by the gateway.
var AmountTolerance = decimal.RequireFromString("0.001")

// FormatAmount renders the canonical OutSum string.
func FormatAmount(d decimal.Decimal) string {
	return d.Round(2).StringFixed(2)
}

// AmountsMatch reports whether two amounts differ by no more than
// AmountTolerance. Unparseable amounts never match.
func AmountsMatch(stored, incoming string) bool {
	a, err := decimal.NewFromString(stored)
	if err != nil {
		return false
	}
	b, err := decimal.NewFromString(incoming)
	if err != nil {
		return false
	}
	return a.Sub(b).Abs().LessThanOrEqual(AmountTolerance)
}

// Receipt is the fiscal receipt snapshot sent with the checkout request.
type Receipt struct {
	Sno   string        `json:"sno,omitempty"`
	Items []ReceiptItem `json:"items"`
}

type ReceiptItem struct {
	Name          string      `json:"name"`
	Quantity      int         `json:"quantity"`
	Sum           json.Number `json:"sum"`
	PaymentMethod string      `json:"payment_method"`
	PaymentObject string      `json:"payment_object"`
	Tax           string      `json:"tax"`
}
