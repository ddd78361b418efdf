package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/brightline-dev/storefront-backend/pkg/enums"
	"github.com/brightline-dev/storefront-backend/pkg/types"
)

// Order is the immutable result of a committed checkout. Amounts and the
// address are frozen snapshots; only Status may change afterwards.
// IdempotencyKey carries the unique index that makes checkout retries
// return the original order instead of creating a duplicate.
type Order struct {
	ID              uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	UserID          uuid.UUID              `gorm:"column:user_id;type:uuid;not null;index"`
	OrderNumber     string                 `gorm:"column:order_number;not null;uniqueIndex"`
	IdempotencyKey  string                 `gorm:"column:idempotency_key;not null;uniqueIndex"`
	Status          enums.OrderStatus      `gorm:"column:status;type:text;not null;default:'confirmed'"`
	Currency        enums.Currency         `gorm:"column:currency;type:text;not null;default:'USD'"`
	CouponCode      *string                `gorm:"column:coupon_code"`
	ShippingAddress types.AddressSnapshot  `gorm:"column:shipping_address;type:jsonb;serializer:json"`
	BillingAddress  *types.AddressSnapshot `gorm:"column:billing_address;type:jsonb;serializer:json"`
	PaymentRef      string                 `gorm:"column:payment_ref;not null"`
	SubtotalCents   int64                  `gorm:"column:subtotal_cents;not null"`
	DiscountCents   int64                  `gorm:"column:discount_cents;not null;default:0"`
	ShippingCents   int64                  `gorm:"column:shipping_cents;not null;default:0"`
	TaxCents        int64                  `gorm:"column:tax_cents;not null;default:0"`
	TotalCents      int64                  `gorm:"column:total_cents;not null"`
	Items           []OrderItem            `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt       time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}
