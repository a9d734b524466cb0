package repository

import (
	"context"

	"github.com/smallbiznis/coursepay/internal/promo/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByCode(ctx context.Context, db *gorm.DB, code string) (*domain.PromoCode, error) {
	var items []domain.PromoCode
	err := db.WithContext(ctx).
		Where("code = ?", code).
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

func (r *repo) CountUsages(ctx context.Context, db *gorm.DB, code string) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM promo_usages WHERE code = ?`,
		code,
	).Scan(&count).Error
	return count, err
}

func (r *repo) CountUsagesByEmail(ctx context.Context, db *gorm.DB, code, email string) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM promo_usages WHERE code = ? AND email = ?`,
		code,
		email,
	).Scan(&count).Error
	return count, err
}

// InsertUsage is idempotent per invoice.
func (r *repo) InsertUsage(ctx context.Context, db *gorm.DB, usage *domain.PromoUsage) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "invoice_id"}}, DoNothing: true}).
		Create(usage)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) InsertCodeIfMissing(ctx context.Context, db *gorm.DB, code *domain.PromoCode) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "code"}}, DoNothing: true}).
		Create(code)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
