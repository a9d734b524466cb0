package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/coursepay/internal/clock"
	"github.com/smallbiznis/coursepay/internal/promo/domain"
	"github.com/smallbiznis/coursepay/internal/promo/repository"
	dbpkg "github.com/smallbiznis/coursepay/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var testNow = time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

func setupPromo(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()

	db := dbpkg.NewTest(t, &domain.PromoCode{}, &domain.PromoUsage{})
	node, err := snowflake.NewNode(2)
	require.NoError(t, err)

	svc := NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.NewFakeClock(testNow),
		Repo:  repository.Provide(),
	}).(*Service)
	return svc, db
}

func seedCode(t *testing.T, db *gorm.DB, code domain.PromoCode) {
	t.Helper()
	if code.CreatedAt.IsZero() {
		code.CreatedAt = testNow
	}
	require.NoError(t, db.Create(&code).Error)
}

func TestValidatePercentCode(t *testing.T) {
	svc, db := setupPromo(t)
	seedCode(t, db, domain.PromoCode{Code: "SUMMER10", Type: domain.TypePercent, Value: decimal.NewFromInt(10)})

	res, err := svc.Validate(context.Background(), domain.ValidateRequest{
		Code:       "summer10",
		Email:      "a@b.com",
		BaseAmount: decimal.RequireFromString("1000.00"),
	})
	require.NoError(t, err)

	assert.True(t, res.OK)
	assert.Equal(t, "SUMMER10", res.Code)
	assert.Equal(t, "900.00", res.FinalAmount.StringFixed(2))
	assert.Equal(t, "100.00", res.Discount().StringFixed(2))
}

func TestValidateFixedCodeNeverNegative(t *testing.T) {
	svc, db := setupPromo(t)
	seedCode(t, db, domain.PromoCode{Code: "MINUS500", Type: domain.TypeFixed, Value: decimal.NewFromInt(500)})

	res, err := svc.Validate(context.Background(), domain.ValidateRequest{Code: "MINUS500", BaseAmount: decimal.NewFromInt(300)})
	require.NoError(t, err)

	assert.True(t, res.OK)
	assert.True(t, res.FinalAmount.IsZero())
}

func TestValidateRoundsHalfUp(t *testing.T) {
	svc, db := setupPromo(t)
	seedCode(t, db, domain.PromoCode{Code: "THIRD", Type: domain.TypePercent, Value: decimal.RequireFromString("33")})

	res, err := svc.Validate(context.Background(), domain.ValidateRequest{Code: "third", BaseAmount: decimal.RequireFromString("10.05")})
	require.NoError(t, err)

	// 10.05 * 0.67 = 6.7335
	assert.Equal(t, "6.73", res.FinalAmount.StringFixed(2))

	res, err = svc.Validate(context.Background(), domain.ValidateRequest{Code: "third", BaseAmount: decimal.RequireFromString("0.50")})
	require.NoError(t, err)
	// 0.50 * 0.67 = 0.335
	assert.Equal(t, "0.34", res.FinalAmount.StringFixed(2))
}

func TestValidateReasons(t *testing.T) {
	expired := testNow.Add(-time.Hour)

	cases := []struct {
		name   string
		code   domain.PromoCode
		usages []domain.PromoUsage
		base   string
		email  string
		want   domain.Reason
	}{
		{
			name: "not found",
			base: "1000",
			want: domain.ReasonNotFound,
		},
		{
			name: "expired",
			code: domain.PromoCode{Code: "X", Type: domain.TypePercent, Value: decimal.NewFromInt(10), ExpiresAt: &expired, MinAmount: decimal.NewFromInt(5000)},
			base: "1000",
			want: domain.ReasonExpired,
		},
		{
			name: "below min amount",
			code: domain.PromoCode{Code: "X", Type: domain.TypePercent, Value: decimal.NewFromInt(10), MinAmount: decimal.NewFromInt(5000), MaxUses: 1},
			usages: []domain.PromoUsage{
				{ID: 1, Code: "X", Email: "z@b.com", InvoiceID: 1, UsedAt: testNow},
			},
			base: "1000",
			want: domain.ReasonMinAmount,
		},
		{
			name: "global cap",
			code: domain.PromoCode{Code: "X", Type: domain.TypePercent, Value: decimal.NewFromInt(10), MaxUses: 2, MaxUsesPerEmail: 1},
			usages: []domain.PromoUsage{
				{ID: 1, Code: "X", Email: "a@b.com", InvoiceID: 1, UsedAt: testNow},
				{ID: 2, Code: "X", Email: "c@d.com", InvoiceID: 2, UsedAt: testNow},
			},
			base:  "1000",
			email: "a@b.com",
			want:  domain.ReasonUsageLimit,
		},
		{
			name: "per email cap",
			code: domain.PromoCode{Code: "X", Type: domain.TypePercent, Value: decimal.NewFromInt(10), MaxUses: 10, MaxUsesPerEmail: 1},
			usages: []domain.PromoUsage{
				{ID: 1, Code: "X", Email: "a@b.com", InvoiceID: 1, UsedAt: testNow},
			},
			base:  "1000",
			email: "A@B.com",
			want:  domain.ReasonEmailLimit,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, db := setupPromo(t)
			if tc.code.Code != "" {
				seedCode(t, db, tc.code)
			}
			for _, u := range tc.usages {
				require.NoError(t, db.Create(&u).Error)
			}

			res, err := svc.Validate(context.Background(), domain.ValidateRequest{
				Code:       "x",
				Email:      tc.email,
				BaseAmount: decimal.RequireFromString(tc.base),
			})
			require.NoError(t, err)
			assert.False(t, res.OK)
			assert.Equal(t, tc.want, res.Reason)
			assert.Equal(t, tc.base, res.FinalAmount.String())
		})
	}
}

func TestValidateHasNoSideEffects(t *testing.T) {
	svc, db := setupPromo(t)
	seedCode(t, db, domain.PromoCode{Code: "SUMMER10", Type: domain.TypePercent, Value: decimal.NewFromInt(10), MaxUsesPerEmail: 1})

	for i := 0; i < 3; i++ {
		res, err := svc.Validate(context.Background(), domain.ValidateRequest{Code: "SUMMER10", Email: "a@b.com", BaseAmount: decimal.NewFromInt(1000)})
		require.NoError(t, err)
		assert.True(t, res.OK)
	}

	var count int64
	require.NoError(t, db.Model(&domain.PromoUsage{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestRecordUsageThenEmailLimit(t *testing.T) {
	svc, db := setupPromo(t)
	seedCode(t, db, domain.PromoCode{Code: "SUMMER10", Type: domain.TypePercent, Value: decimal.NewFromInt(10), MaxUsesPerEmail: 1})
	ctx := context.Background()

	require.NoError(t, svc.RecordUsage(ctx, db, domain.RecordUsageRequest{Code: "summer10", Email: "A@b.com", InvoiceID: 77}))
	// same invoice settles once
	require.NoError(t, svc.RecordUsage(ctx, db, domain.RecordUsageRequest{Code: "SUMMER10", Email: "a@b.com", InvoiceID: 77}))

	var count int64
	require.NoError(t, db.Model(&domain.PromoUsage{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	res, err := svc.Validate(ctx, domain.ValidateRequest{Code: "SUMMER10", Email: "a@b.com", BaseAmount: decimal.NewFromInt(1000)})
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, domain.ReasonEmailLimit, res.Reason)

	res, err = svc.Validate(ctx, domain.ValidateRequest{Code: "SUMMER10", Email: "other@b.com", BaseAmount: decimal.NewFromInt(1000)})
	require.NoError(t, err)
	assert.True(t, res.OK)
}

func TestRecordUsageRejectsEmptyCode(t *testing.T) {
	svc, db := setupPromo(t)
	err := svc.RecordUsage(context.Background(), db, domain.RecordUsageRequest{Code: "  ", InvoiceID: 1})
	assert.ErrorIs(t, err, domain.ErrInvalidCode)
}
