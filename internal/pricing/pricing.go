// Package pricing is the single source of truth for money math. Every
// amount is an integer cent count; percentage math goes through decimal
// and rounds half-up exactly once per derived amount.
package pricing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/brightline-dev/storefront-backend/pkg/db/models"
	"github.com/brightline-dev/storefront-backend/pkg/enums"
)

var oneHundred = decimal.NewFromInt(100)

// Line is one priced cart line.
type Line struct {
	UnitPriceCents int64
	Quantity       int
}

// Totals is the derived amount breakdown for a cart or order.
type Totals struct {
	SubtotalCents int64
	DiscountCents int64
	TotalCents    int64
}

// PercentOf returns percent% of the amount in cents, rounded half-up.
func PercentOf(amountCents int64, percent decimal.Decimal) int64 {
	return decimal.NewFromInt(amountCents).
		Mul(percent).
		Div(oneHundred).
		Round(0).
		IntPart()
}

// SaleActive reports whether the variant's sale descriptor applies at the
// given instant. A nil SaleEndsAt means the sale has no scheduled end.
func SaleActive(variant *models.ProductVariant, now time.Time) bool {
	if variant == nil || !variant.IsOnSale || variant.DiscountType == nil {
		return false
	}
	if variant.SaleEndsAt != nil && !now.Before(*variant.SaleEndsAt) {
		return false
	}
	switch *variant.DiscountType {
	case enums.DiscountTypePercentage:
		return variant.DiscountPercent != nil
	case enums.DiscountTypeFixed:
		return variant.DiscountAmountCents != nil
	}
	return false
}

// EffectiveUnitPriceCents resolves the current sell price for a variant.
// The result is never negative.
func EffectiveUnitPriceCents(variant *models.ProductVariant, now time.Time) int64 {
	if variant == nil {
		return 0
	}
	base := variant.BasePriceCents
	if !SaleActive(variant, now) {
		return maxCents(base, 0)
	}

	var discount int64
	switch *variant.DiscountType {
	case enums.DiscountTypePercentage:
		discount = PercentOf(base, *variant.DiscountPercent)
	case enums.DiscountTypeFixed:
		discount = *variant.DiscountAmountCents
	}
	return maxCents(base-discount, 0)
}

// CouponDiscountCents computes the discount a coupon grants against the
// subtotal: the raw amount clamped by the coupon cap and by the subtotal
// itself, so the discount can never push a total negative.
func CouponDiscountCents(coupon *models.Coupon, subtotalCents int64) int64 {
	if coupon == nil || subtotalCents <= 0 {
		return 0
	}

	var raw int64
	switch coupon.DiscountType {
	case enums.DiscountTypePercentage:
		if coupon.DiscountPercent == nil {
			return 0
		}
		raw = PercentOf(subtotalCents, *coupon.DiscountPercent)
	case enums.DiscountTypeFixed:
		if coupon.DiscountAmountCents == nil {
			return 0
		}
		raw = *coupon.DiscountAmountCents
	default:
		return 0
	}

	if coupon.MaxDiscountCents != nil && raw > *coupon.MaxDiscountCents {
		raw = *coupon.MaxDiscountCents
	}
	if raw > subtotalCents {
		raw = subtotalCents
	}
	return maxCents(raw, 0)
}

// ComputeTotals folds the priced lines and an optional coupon into the
// amount breakdown. Lines with non-positive quantity contribute nothing.
func ComputeTotals(lines []Line, coupon *models.Coupon) Totals {
	var subtotal int64
	for _, line := range lines {
		if line.Quantity <= 0 {
			continue
		}
		subtotal += line.UnitPriceCents * int64(line.Quantity)
	}

	discount := CouponDiscountCents(coupon, subtotal)
	return Totals{
		SubtotalCents: subtotal,
		DiscountCents: discount,
		TotalCents:    maxCents(subtotal-discount, 0),
	}
}

func maxCents(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
