package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/coursepay/internal/order/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) ExistsByInvoiceID(ctx context.Context, db *gorm.DB, invoiceID int64) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM orders WHERE invoice_id = ?`,
		invoiceID,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, order *domain.Order) error {
	return db.WithContext(ctx).Create(order).Error
}

func (r *repo) FindByInvoiceID(ctx context.Context, db *gorm.DB, invoiceID int64) (*domain.Order, error) {
	var items []domain.Order
	err := db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Limit(1).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

func (r *repo) MarkPaid(ctx context.Context, db *gorm.DB, invoiceID int64, paidAt time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE orders
		 SET status = ?, paid_at = ?
		 WHERE invoice_id = ? AND status = ?`,
		string(domain.StatusPaid),
		paidAt,
		invoiceID,
		string(domain.StatusPending),
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
