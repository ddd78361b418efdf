package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/brightline-dev/storefront-backend/pkg/enums"
)

// StockReservation is the compensating-action log for checkout. A row is
// written in the same transaction as the inventory decrement; the recovery
// sweep releases held rows older than the reservation TTL so a crash
// between reserve and commit never leaks stock.
type StockReservation struct {
	ID         uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	AttemptKey string                  `gorm:"column:attempt_key;not null;index"`
	VariantID  uuid.UUID               `gorm:"column:variant_id;type:uuid;not null"`
	Qty        int                     `gorm:"column:qty;not null"`
	Status     enums.ReservationStatus `gorm:"column:status;type:text;not null;default:'held'"`
	CreatedAt  time.Time               `gorm:"column:created_at;autoCreateTime;index"`
	UpdatedAt  time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}
