package pricing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/brightline-dev/storefront-backend/pkg/db/models"
	"github.com/brightline-dev/storefront-backend/pkg/enums"
)

func ptrInt64(v int64) *int64 { return &v }

func ptrDecimal(v string) *decimal.Decimal {
	d := decimal.RequireFromString(v)
	return &d
}

func ptrDiscountType(t enums.DiscountType) *enums.DiscountType { return &t }

func TestEffectiveUnitPriceCents(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name    string
		variant models.ProductVariant
		want    int64
	}{
		{
			name:    "no sale uses base price",
			variant: models.ProductVariant{BasePriceCents: 5000},
			want:    5000,
		},
		{
			name: "percentage sale",
			variant: models.ProductVariant{
				BasePriceCents:  5000,
				IsOnSale:        true,
				DiscountType:    ptrDiscountType(enums.DiscountTypePercentage),
				DiscountPercent: ptrDecimal("20"),
				SaleEndsAt:      &future,
			},
			want: 4000,
		},
		{
			name: "percentage sale rounds half-up",
			variant: models.ProductVariant{
				BasePriceCents:  999,
				IsOnSale:        true,
				DiscountType:    ptrDiscountType(enums.DiscountTypePercentage),
				DiscountPercent: ptrDecimal("15"),
			},
			// 15% of 999 = 149.85, rounds to 150
			want: 849,
		},
		{
			name: "fixed sale",
			variant: models.ProductVariant{
				BasePriceCents:      5000,
				IsOnSale:            true,
				DiscountType:        ptrDiscountType(enums.DiscountTypeFixed),
				DiscountAmountCents: ptrInt64(750),
			},
			want: 4250,
		},
		{
			name: "fixed sale larger than base clamps to zero",
			variant: models.ProductVariant{
				BasePriceCents:      500,
				IsOnSale:            true,
				DiscountType:        ptrDiscountType(enums.DiscountTypeFixed),
				DiscountAmountCents: ptrInt64(900),
			},
			want: 0,
		},
		{
			name: "expired sale uses base price",
			variant: models.ProductVariant{
				BasePriceCents:  5000,
				IsOnSale:        true,
				DiscountType:    ptrDiscountType(enums.DiscountTypePercentage),
				DiscountPercent: ptrDecimal("20"),
				SaleEndsAt:      &past,
			},
			want: 5000,
		},
		{
			name: "sale flag without descriptor uses base price",
			variant: models.ProductVariant{
				BasePriceCents: 5000,
				IsOnSale:       true,
			},
			want: 5000,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := EffectiveUnitPriceCents(&tc.variant, now); got != tc.want {
				t.Fatalf("EffectiveUnitPriceCents = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestCouponDiscountCents(t *testing.T) {
	tests := []struct {
		name     string
		coupon   models.Coupon
		subtotal int64
		want     int64
	}{
		{
			name: "percentage",
			coupon: models.Coupon{
				DiscountType:    enums.DiscountTypePercentage,
				DiscountPercent: ptrDecimal("10"),
			},
			subtotal: 10000,
			want:     1000,
		},
		{
			name: "percentage clamped by cap",
			coupon: models.Coupon{
				DiscountType:     enums.DiscountTypePercentage,
				DiscountPercent:  ptrDecimal("10"),
				MaxDiscountCents: ptrInt64(500),
			},
			subtotal: 10000,
			want:     500,
		},
		{
			name: "fixed clamped by subtotal",
			coupon: models.Coupon{
				DiscountType:        enums.DiscountTypeFixed,
				DiscountAmountCents: ptrInt64(2500),
			},
			subtotal: 1800,
			want:     1800,
		},
		{
			name: "percentage rounds half-up",
			coupon: models.Coupon{
				DiscountType:    enums.DiscountTypePercentage,
				DiscountPercent: ptrDecimal("7.5"),
			},
			// 7.5% of 1234 = 92.55, rounds to 93
			subtotal: 1234,
			want:     93,
		},
		{
			name: "zero subtotal",
			coupon: models.Coupon{
				DiscountType:        enums.DiscountTypeFixed,
				DiscountAmountCents: ptrInt64(500),
			},
			subtotal: 0,
			want:     0,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := CouponDiscountCents(&tc.coupon, tc.subtotal); got != tc.want {
				t.Fatalf("CouponDiscountCents = %d, want %d", got, tc.want)
			}
		})
	}
}

// Two $50 items with a 10% coupon (min order $50, cap $20) come out at $90.
func TestComputeTotals_PercentCouponScenario(t *testing.T) {
	coupon := &models.Coupon{
		Code:             "SAVE10",
		DiscountType:     enums.DiscountTypePercentage,
		DiscountPercent:  ptrDecimal("10"),
		MinOrderCents:    ptrInt64(5000),
		MaxDiscountCents: ptrInt64(2000),
	}

	totals := ComputeTotals([]Line{{UnitPriceCents: 5000, Quantity: 2}}, coupon)

	if totals.SubtotalCents != 10000 {
		t.Fatalf("subtotal = %d, want 10000", totals.SubtotalCents)
	}
	if totals.DiscountCents != 1000 {
		t.Fatalf("discount = %d, want 1000", totals.DiscountCents)
	}
	if totals.TotalCents != 9000 {
		t.Fatalf("total = %d, want 9000", totals.TotalCents)
	}
}

func TestComputeTotals_NoCoupon(t *testing.T) {
	totals := ComputeTotals([]Line{
		{UnitPriceCents: 1299, Quantity: 3},
		{UnitPriceCents: 450, Quantity: 1},
	}, nil)

	if totals.SubtotalCents != 4347 {
		t.Fatalf("subtotal = %d, want 4347", totals.SubtotalCents)
	}
	if totals.DiscountCents != 0 || totals.TotalCents != 4347 {
		t.Fatalf("unexpected totals: %+v", totals)
	}
}

func TestComputeTotals_DiscountNeverExceedsSubtotal(t *testing.T) {
	coupon := &models.Coupon{
		DiscountType:        enums.DiscountTypeFixed,
		DiscountAmountCents: ptrInt64(100000),
	}

	totals := ComputeTotals([]Line{{UnitPriceCents: 100, Quantity: 1}}, coupon)

	if totals.DiscountCents != 100 {
		t.Fatalf("discount = %d, want 100", totals.DiscountCents)
	}
	if totals.TotalCents != 0 {
		t.Fatalf("total = %d, want 0", totals.TotalCents)
	}
}
