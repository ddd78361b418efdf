package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/brightline-dev/storefront-backend/pkg/enums"
)

// ProductVariant is a purchasable SKU. The checkout core reads it and,
// through the inventory ledger, decrements its stock; catalog CRUD owns
// everything else.
type ProductVariant struct {
	ID                  uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	SKU                 string              `gorm:"column:sku;not null;uniqueIndex"`
	Name                string              `gorm:"column:name;not null"`
	BasePriceCents      int64               `gorm:"column:base_price_cents;not null"`
	IsActive            bool                `gorm:"column:is_active;not null;default:true"`
	IsOnSale            bool                `gorm:"column:is_on_sale;not null;default:false"`
	DiscountType        *enums.DiscountType `gorm:"column:discount_type;type:text"`
	DiscountPercent     *decimal.Decimal    `gorm:"column:discount_percent;type:numeric(5,2)"`
	DiscountAmountCents *int64              `gorm:"column:discount_amount_cents"`
	SaleEndsAt          *time.Time          `gorm:"column:sale_ends_at"`
	Inventory           *InventoryItem      `gorm:"foreignKey:VariantID"`
	CreatedAt           time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
