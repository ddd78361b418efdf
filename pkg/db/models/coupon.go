package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/brightline-dev/storefront-backend/pkg/enums"
)

// Coupon is a reusable discount code. UsageCount is monotonically
// non-decreasing and never exceeds UsageLimit (0 = unlimited); the
// increment is a conditional update serialized at the storage layer.
type Coupon struct {
	ID                  uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	Code                string             `gorm:"column:code;not null;uniqueIndex"`
	DiscountType        enums.DiscountType `gorm:"column:discount_type;type:text;not null"`
	DiscountPercent     *decimal.Decimal   `gorm:"column:discount_percent;type:numeric(5,2)"`
	DiscountAmountCents *int64             `gorm:"column:discount_amount_cents"`
	MinOrderCents       *int64             `gorm:"column:min_order_cents"`
	MaxDiscountCents    *int64             `gorm:"column:max_discount_cents"`
	ValidFrom           time.Time          `gorm:"column:valid_from;not null"`
	ValidUntil          time.Time          `gorm:"column:valid_until;not null"`
	UsageCount          int                `gorm:"column:usage_count;not null;default:0"`
	UsageLimit          int                `gorm:"column:usage_limit;not null;default:0"`
	IsActive            bool               `gorm:"column:is_active;not null;default:true"`
	CreatedAt           time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
