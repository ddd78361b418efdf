package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/brightline-dev/storefront-backend/pkg/enums"
)

// Cart is the single active cart owned by a user. Totals are a derived
// cache: they are recomputed from live catalog pricing on every read and
// never trusted at checkout.
type Cart struct {
	ID            uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	UserID        uuid.UUID        `gorm:"column:user_id;type:uuid;not null;index"`
	Status        enums.CartStatus `gorm:"column:status;type:text;not null;default:'active'"`
	CouponCode    *string          `gorm:"column:coupon_code"`
	Currency      enums.Currency   `gorm:"column:currency;type:text;not null;default:'USD'"`
	SubtotalCents int64            `gorm:"column:subtotal_cents;not null;default:0"`
	DiscountCents int64            `gorm:"column:discount_cents;not null;default:0"`
	TotalCents    int64            `gorm:"column:total_cents;not null;default:0"`
	ConvertedAt   *time.Time       `gorm:"column:converted_at"`
	Items         []CartItem       `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE"`
	CreatedAt     time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}
