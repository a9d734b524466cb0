package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	FindByCode(ctx context.Context, db *gorm.DB, code string) (*PromoCode, error)
	CountUsages(ctx context.Context, db *gorm.DB, code string) (int64, error)
	CountUsagesByEmail(ctx context.Context, db *gorm.DB, code, email string) (int64, error)
	InsertUsage(ctx context.Context, db *gorm.DB, usage *PromoUsage) (bool, error)
	InsertCodeIfMissing(ctx context.Context, db *gorm.DB, code *PromoCode) (bool, error)
}
