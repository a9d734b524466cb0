package seed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/coursepay/internal/config"
	promodomain "github.com/smallbiznis/coursepay/internal/promo/domain"
	promorepository "github.com/smallbiznis/coursepay/internal/promo/repository"
	promoservice "github.com/smallbiznis/coursepay/internal/promo/service"
	"gorm.io/gorm"
)

// EnsurePromoCodes inserts catalog promo codes that are not stored yet.
// Existing rows are left untouched so operators can edit them in place.
func EnsurePromoCodes(db *gorm.DB, seeds []config.PromoSeed, now time.Time) (int, error) {
	if db == nil {
		return 0, errors.New("seed database handle is required")
	}
	if len(seeds) == 0 {
		return 0, nil
	}

	codes := make([]*promodomain.PromoCode, 0, len(seeds))
	for _, s := range seeds {
		code, err := promoCodeFromSeed(s, now)
		if err != nil {
			return 0, err
		}
		codes = append(codes, code)
	}

	repo := promorepository.Provide()
	ctx := context.Background()
	inserted := 0
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, code := range codes {
			ok, err := repo.InsertCodeIfMissing(ctx, tx, code)
			if err != nil {
				return fmt.Errorf("seed promo %s: %w", code.Code, err)
			}
			if ok {
				inserted++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

func promoCodeFromSeed(s config.PromoSeed, now time.Time) (*promodomain.PromoCode, error) {
	code := promoservice.NormalizeCode(s.Code)
	if code == "" {
		return nil, errors.New("seed promo code is empty")
	}

	typ := promodomain.Type(strings.ToLower(strings.TrimSpace(s.Type)))
	if !typ.Valid() {
		return nil, fmt.Errorf("seed promo %s: %w", code, promodomain.ErrInvalidType)
	}

	value, err := decimal.NewFromString(strings.TrimSpace(s.Value))
	if err != nil || value.IsNegative() {
		return nil, fmt.Errorf("seed promo %s: %w", code, promodomain.ErrInvalidAmount)
	}
	if typ == promodomain.TypePercent && value.GreaterThan(decimal.NewFromInt(100)) {
		return nil, fmt.Errorf("seed promo %s: %w", code, promodomain.ErrInvalidAmount)
	}

	minAmount := decimal.Zero
	if raw := strings.TrimSpace(s.MinAmount); raw != "" {
		minAmount, err = decimal.NewFromString(raw)
		if err != nil || minAmount.IsNegative() {
			return nil, fmt.Errorf("seed promo %s: %w", code, promodomain.ErrInvalidAmount)
		}
	}

	var expiresAt *time.Time
	if raw := strings.TrimSpace(s.ExpiresAt); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, fmt.Errorf("seed promo %s: parse expiresAt: %w", code, err)
		}
		t = t.UTC()
		expiresAt = &t
	}

	if s.MaxUses < 0 || s.MaxUsesPerEmail < 0 {
		return nil, fmt.Errorf("seed promo %s: usage caps must not be negative", code)
	}

	return &promodomain.PromoCode{
		Code:            code,
		Type:            typ,
		Value:           value.Round(2),
		MinAmount:       minAmount.Round(2),
		ExpiresAt:       expiresAt,
		MaxUses:         s.MaxUses,
		MaxUsesPerEmail: s.MaxUsesPerEmail,
		CreatedAt:       now.UTC(),
	}, nil
}
