package domain

import (
	"context"

	"github.com/smallbiznis/coursepay/internal/config"
	"gorm.io/gorm"
)

type Service interface {
	CreateOrder(ctx context.Context, req CreateOrderRequest) (*Checkout, error)
	FindByInvoiceID(ctx context.Context, db *gorm.DB, invoiceID int64) (*Order, error)
	CreateFromWebhook(ctx context.Context, tx *gorm.DB, req WebhookOrderRequest) (*Order, error)
	MarkPaid(ctx context.Context, tx *gorm.DB, invoiceID int64) (bool, error)
	// Quote prices a product with an optional promo code without creating
	// an order.
	Quote(ctx context.Context, req QuoteRequest) (*Quote, error)
}

// Catalog is the authoritative price list.
type Catalog interface {
	Product(code string) (config.Product, bool)
	DefaultProductCode() string
}

type CreateOrderRequest struct {
	Email       string
	ProductCode string
	PromoCode   string
}

// Checkout is what the client submits to the gateway.
type Checkout struct {
	Endpoint  string            `json:"endpoint"`
	Params    map[string]string `json:"params"`
	InvoiceID int64             `json:"-"`
}

type WebhookOrderRequest struct {
	InvoiceID   int64
	Email       string
	Amount      string
	ProductCode string
	PromoCode   string
}

type QuoteRequest struct {
	Email       string
	ProductCode string
	PromoCode   string
}

type Quote struct {
	Product    config.Product
	BaseAmount string
	Amount     string
	PromoCode  string
	PromoType  string
	PromoValue string
}
