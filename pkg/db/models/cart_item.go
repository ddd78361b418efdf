package models

import (
	"time"

	"github.com/google/uuid"
)

// CartItem is one variant line in a cart. PriceAtAddCents is informational
// only; lines are re-priced from the catalog at read and checkout time.
type CartItem struct {
	ID              uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	CartID          uuid.UUID `gorm:"column:cart_id;type:uuid;not null;index:idx_cart_items_cart_variant,unique"`
	VariantID       uuid.UUID `gorm:"column:variant_id;type:uuid;not null;index:idx_cart_items_cart_variant,unique"`
	Quantity        int       `gorm:"column:quantity;not null"`
	PriceAtAddCents int64     `gorm:"column:price_at_add_cents;not null"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
