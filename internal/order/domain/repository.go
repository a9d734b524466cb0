package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	ExistsByInvoiceID(ctx context.Context, db *gorm.DB, invoiceID int64) (bool, error)
	Insert(ctx context.Context, db *gorm.DB, order *Order) error
	FindByInvoiceID(ctx context.Context, db *gorm.DB, invoiceID int64) (*Order, error)
	// MarkPaid flips a pending order to paid and reports whether this call
	// performed the transition.
	MarkPaid(ctx context.Context, db *gorm.DB, invoiceID int64, paidAt time.Time) (bool, error)
}
