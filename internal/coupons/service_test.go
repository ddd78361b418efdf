package coupons

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/brightline-dev/storefront-backend/pkg/db/models"
	"github.com/brightline-dev/storefront-backend/pkg/enums"
	"github.com/brightline-dev/storefront-backend/pkg/errors"
)

type fakeRepository struct {
	coupon      *models.Coupon
	getErr      error
	incremented bool
	incremental func() (bool, error)
}

func (f *fakeRepository) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeRepository) GetByCode(ctx context.Context, code string) (*models.Coupon, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	if f.coupon == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return f.coupon, nil
}

func (f *fakeRepository) IncrementUsage(ctx context.Context, code string) (bool, error) {
	f.incremented = true
	if f.incremental != nil {
		return f.incremental()
	}
	return true, nil
}

func ptrInt64(v int64) *int64 { return &v }

func ptrDecimal(v string) *decimal.Decimal {
	d := decimal.RequireFromString(v)
	return &d
}

func validCoupon(now time.Time) *models.Coupon {
	return &models.Coupon{
		Code:            "SAVE10",
		DiscountType:    enums.DiscountTypePercentage,
		DiscountPercent: ptrDecimal("10"),
		ValidFrom:       now.Add(-time.Hour),
		ValidUntil:      now.Add(time.Hour),
		IsActive:        true,
	}
}

func TestService_Validate(t *testing.T) {
	now := time.Now()
	repo := &fakeRepository{coupon: validCoupon(now)}
	svc, err := NewService(repo)
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}

	result, err := svc.Validate(context.Background(), "SAVE10", 10000, now)
	if err != nil {
		t.Fatalf("Validate error: %v", err)
	}
	if result.DiscountCents != 1000 {
		t.Fatalf("discount = %d, want 1000", result.DiscountCents)
	}
	if result.Coupon.Code != "SAVE10" {
		t.Fatalf("unexpected coupon: %+v", result.Coupon)
	}
}

func TestService_ValidateRejections(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name       string
		mutate     func(c *models.Coupon)
		subtotal   int64
		wantReason string
		wantCode   errors.Code
	}{
		{
			name:       "inactive",
			mutate:     func(c *models.Coupon) { c.IsActive = false },
			subtotal:   10000,
			wantReason: ReasonInactive,
			wantCode:   errors.CodeStateConflict,
		},
		{
			name:       "not yet valid",
			mutate:     func(c *models.Coupon) { c.ValidFrom = now.Add(time.Hour) },
			subtotal:   10000,
			wantReason: ReasonNotYetValid,
			wantCode:   errors.CodeStateConflict,
		},
		{
			name:       "expired",
			mutate:     func(c *models.Coupon) { c.ValidUntil = now.Add(-time.Minute) },
			subtotal:   10000,
			wantReason: ReasonExpired,
			wantCode:   errors.CodeStateConflict,
		},
		{
			name: "usage limit reached",
			mutate: func(c *models.Coupon) {
				c.UsageLimit = 5
				c.UsageCount = 5
			},
			subtotal:   10000,
			wantReason: ReasonUsageLimitReached,
			wantCode:   errors.CodeStateConflict,
		},
		{
			name:       "below minimum order",
			mutate:     func(c *models.Coupon) { c.MinOrderCents = ptrInt64(5000) },
			subtotal:   4999,
			wantReason: ReasonBelowMinimumOrder,
			wantCode:   errors.CodeStateConflict,
		},
		{
			// inactive wins even when the coupon is also expired
			name: "inactive reported before expired",
			mutate: func(c *models.Coupon) {
				c.IsActive = false
				c.ValidUntil = now.Add(-time.Minute)
			},
			subtotal:   10000,
			wantReason: ReasonInactive,
			wantCode:   errors.CodeStateConflict,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			coupon := validCoupon(now)
			tc.mutate(coupon)
			svc, err := NewService(&fakeRepository{coupon: coupon})
			if err != nil {
				t.Fatalf("unexpected service error: %v", err)
			}

			_, err = svc.Validate(context.Background(), coupon.Code, tc.subtotal, now)
			typed := errors.As(err)
			if typed == nil {
				t.Fatalf("expected coded error, got %v", err)
			}
			if typed.Code() != tc.wantCode {
				t.Fatalf("code = %s, want %s", typed.Code(), tc.wantCode)
			}
			details, ok := typed.Details().(map[string]any)
			if !ok || details["reason"] != tc.wantReason {
				t.Fatalf("reason = %v, want %s", typed.Details(), tc.wantReason)
			}
		})
	}
}

func TestService_ValidateNotFound(t *testing.T) {
	svc, err := NewService(&fakeRepository{})
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}

	_, err = svc.Validate(context.Background(), "NOPE", 1000, time.Now())
	typed := errors.As(err)
	if typed == nil || typed.Code() != errors.CodeNotFound {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestService_ConsumeUsageExhausted(t *testing.T) {
	repo := &fakeRepository{incremental: func() (bool, error) { return false, nil }}
	svc, err := NewService(repo)
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}

	err = svc.ConsumeUsage(context.Background(), nil, "SAVE10")
	typed := errors.As(err)
	if typed == nil || typed.Code() != errors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
	if !repo.incremented {
		t.Fatal("expected usage increment attempt")
	}
}
