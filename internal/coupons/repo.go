package coupons

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/brightline-dev/storefront-backend/pkg/db/models"
)

// Repository manages persistence for coupon codes.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	GetByCode(ctx context.Context, code string) (*models.Coupon, error)
	// IncrementUsage bumps usage_count only while the limit still holds,
	// reporting whether a row was updated. Unlimited coupons (limit 0)
	// always increment.
	IncrementUsage(ctx context.Context, code string) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a coupon repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) GetByCode(ctx context.Context, code string) (*models.Coupon, error) {
	var coupon models.Coupon
	if err := r.db.WithContext(ctx).
		First(&coupon, "code = ?", normalizeCode(code)).Error; err != nil {
		return nil, err
	}
	return &coupon, nil
}

func (r *repository) IncrementUsage(ctx context.Context, code string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Coupon{}).
		Where("code = ? AND (usage_limit = 0 OR usage_count < usage_limit)", normalizeCode(code)).
		UpdateColumn("usage_count", gorm.Expr("usage_count + 1"))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
