package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/coursepay/internal/clock"
	"github.com/smallbiznis/coursepay/internal/observability/tracing"
	"github.com/smallbiznis/coursepay/internal/promo/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func NewService(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("promo.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (s *Service) Validate(ctx context.Context, req domain.ValidateRequest) (*domain.Validation, error) {
	ctx, span := tracing.Start(ctx, "promo.validate", attribute.String("promo_code", NormalizeCode(req.Code)))
	defer span.End()

	result, err := s.validate(ctx, req)
	if err != nil {
		tracing.Fail(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.Bool("ok", result.OK), attribute.String("reason", string(result.Reason)))
	return result, nil
}

func (s *Service) validate(ctx context.Context, req domain.ValidateRequest) (*domain.Validation, error) {
	if req.BaseAmount.IsNegative() {
		return nil, domain.ErrInvalidAmount
	}

	code := NormalizeCode(req.Code)
	result := &domain.Validation{
		Code:        code,
		BaseAmount:  req.BaseAmount,
		FinalAmount: req.BaseAmount,
	}
	if code == "" {
		result.Reason = domain.ReasonNotFound
		return result, nil
	}

	db := s.db.WithContext(ctx)
	promo, err := s.repo.FindByCode(ctx, db, code)
	if err != nil {
		return nil, fmt.Errorf("find promo code: %w", err)
	}
	if promo == nil {
		result.Reason = domain.ReasonNotFound
		return result, nil
	}
	result.Type = promo.Type
	result.Value = promo.Value

	if promo.ExpiresAt != nil && s.clock.Now().After(*promo.ExpiresAt) {
		result.Reason = domain.ReasonExpired
		return result, nil
	}
	if req.BaseAmount.LessThan(promo.MinAmount) {
		result.Reason = domain.ReasonMinAmount
		return result, nil
	}

	if promo.MaxUses > 0 {
		used, err := s.repo.CountUsages(ctx, db, code)
		if err != nil {
			return nil, fmt.Errorf("count promo usages: %w", err)
		}
		if used >= int64(promo.MaxUses) {
			result.Reason = domain.ReasonUsageLimit
			return result, nil
		}
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if promo.MaxUsesPerEmail > 0 && email != "" {
		used, err := s.repo.CountUsagesByEmail(ctx, db, code, email)
		if err != nil {
			return nil, fmt.Errorf("count promo usages by email: %w", err)
		}
		if used >= int64(promo.MaxUsesPerEmail) {
			result.Reason = domain.ReasonEmailLimit
			return result, nil
		}
	}

	result.OK = true
	result.FinalAmount = promo.Apply(req.BaseAmount)
	return result, nil
}

func (s *Service) RecordUsage(ctx context.Context, tx *gorm.DB, req domain.RecordUsageRequest) error {
	code := NormalizeCode(req.Code)
	if code == "" {
		return domain.ErrInvalidCode
	}

	promo, err := s.repo.FindByCode(ctx, tx, code)
	if err != nil {
		return err
	}
	if promo != nil && promo.MaxUses > 0 {
		used, err := s.repo.CountUsages(ctx, tx, code)
		if err != nil {
			return err
		}
		// The caller holds the settlement lock for code, so used is exact.
		// Over-cap settlements are logged, not rejected: the payment is done.
		if used >= int64(promo.MaxUses) {
			s.log.Warn("promo usage cap exceeded at settlement",
				zap.String("code", code),
				zap.Int64("used", used),
				zap.Int("max_uses", promo.MaxUses),
				zap.Int64("invoice_id", req.InvoiceID),
			)
		}
	}

	inserted, err := s.repo.InsertUsage(ctx, tx, &domain.PromoUsage{
		ID:        s.genID.Generate(),
		Code:      code,
		Email:     strings.ToLower(strings.TrimSpace(req.Email)),
		InvoiceID: req.InvoiceID,
		UsedAt:    s.clock.Now(),
	})
	if err != nil {
		return fmt.Errorf("insert promo usage: %w", err)
	}
	if !inserted {
		s.log.Debug("promo usage already recorded", zap.Int64("invoice_id", req.InvoiceID))
	}
	return nil
}
