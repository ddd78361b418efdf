package coupons

import (
	"context"
	stdErrors "errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/brightline-dev/storefront-backend/internal/pricing"
	"github.com/brightline-dev/storefront-backend/pkg/db/models"
	"github.com/brightline-dev/storefront-backend/pkg/errors"
)

// Machine-readable rejection reasons surfaced in error details.
const (
	ReasonNotFound          = "COUPON_NOT_FOUND"
	ReasonInactive          = "COUPON_INACTIVE"
	ReasonNotYetValid       = "COUPON_NOT_YET_VALID"
	ReasonExpired           = "COUPON_EXPIRED"
	ReasonUsageLimitReached = "COUPON_USAGE_LIMIT_REACHED"
	ReasonBelowMinimumOrder = "COUPON_BELOW_MINIMUM_ORDER"
)

// ValidationResult is a successfully validated coupon with the discount it
// grants against the evaluated subtotal.
type ValidationResult struct {
	Coupon        *models.Coupon
	DiscountCents int64
}

// Service validates coupon codes and consumes usage slots.
type Service interface {
	// Validate runs the rejection checks in a fixed order and, on
	// success, returns the coupon with its clamped discount. The usage
	// slot is NOT consumed here; that happens at order commit.
	Validate(ctx context.Context, code string, subtotalCents int64, now time.Time) (*ValidationResult, error)
	// ConsumeUsage claims a usage slot inside the caller's transaction.
	// It fails with a conflict when the limit was exhausted between
	// validation and commit.
	ConsumeUsage(ctx context.Context, tx *gorm.DB, code string) error
}

type service struct {
	repo Repository
}

// NewService wires a coupon service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("coupon repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Validate(ctx context.Context, code string, subtotalCents int64, now time.Time) (*ValidationResult, error) {
	if code == "" {
		return nil, errors.New(errors.CodeValidation, "coupon code is required")
	}

	coupon, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		if stdErrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, rejection(errors.CodeNotFound, "coupon not found", ReasonNotFound, code)
		}
		return nil, errors.Wrap(errors.CodeInternal, err, "loading coupon")
	}

	// Checks run in a fixed order so a code failing several of them
	// always reports the same reason.
	switch {
	case !coupon.IsActive:
		return nil, rejection(errors.CodeStateConflict, "coupon is inactive", ReasonInactive, code)
	case now.Before(coupon.ValidFrom):
		return nil, rejection(errors.CodeStateConflict, "coupon is not yet valid", ReasonNotYetValid, code)
	case now.After(coupon.ValidUntil):
		return nil, rejection(errors.CodeStateConflict, "coupon has expired", ReasonExpired, code)
	case coupon.UsageLimit > 0 && coupon.UsageCount >= coupon.UsageLimit:
		return nil, rejection(errors.CodeStateConflict, "coupon usage limit reached", ReasonUsageLimitReached, code)
	case coupon.MinOrderCents != nil && subtotalCents < *coupon.MinOrderCents:
		return nil, errors.New(errors.CodeStateConflict, "order below coupon minimum").
			WithReason(ReasonBelowMinimumOrder, map[string]any{
				"code":            coupon.Code,
				"min_order_cents": *coupon.MinOrderCents,
				"subtotal_cents":  subtotalCents,
			})
	}

	return &ValidationResult{
		Coupon:        coupon,
		DiscountCents: pricing.CouponDiscountCents(coupon, subtotalCents),
	}, nil
}

func (s *service) ConsumeUsage(ctx context.Context, tx *gorm.DB, code string) error {
	claimed, err := s.repo.WithTx(tx).IncrementUsage(ctx, code)
	if err != nil {
		return errors.Wrap(errors.CodeInternal, err, "incrementing coupon usage")
	}
	if !claimed {
		return errors.New(errors.CodeStateConflict, "coupon usage limit reached").
			WithReason(ReasonUsageLimitReached, map[string]any{"code": code})
	}
	return nil
}

func rejection(code errors.Code, message, reason, couponCode string) *errors.Error {
	return errors.New(code, message).
		WithReason(reason, map[string]any{"code": couponCode})
}
