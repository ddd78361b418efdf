package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderItem captures the snapshot of one cart line at commit time.
// UnitPriceCents is frozen at order time and never re-derived from the
// variant afterward.
type OrderItem struct {
	ID                uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	OrderID           uuid.UUID `gorm:"column:order_id;type:uuid;not null;index"`
	VariantID         uuid.UUID `gorm:"column:variant_id;type:uuid;not null"`
	SKU               string    `gorm:"column:sku;not null"`
	Name              string    `gorm:"column:name;not null"`
	Quantity          int       `gorm:"column:quantity;not null"`
	UnitPriceCents    int64     `gorm:"column:unit_price_cents;not null"`
	LineSubtotalCents int64     `gorm:"column:line_subtotal_cents;not null"`
	CreatedAt         time.Time `gorm:"column:created_at;autoCreateTime"`
}
