package cart

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/brightline-dev/storefront-backend/pkg/db/models"
	"github.com/brightline-dev/storefront-backend/pkg/enums"
)

// Repository manages persistence for carts and their lines. The partial
// unique index on (user_id) WHERE status='active' keeps each user at one
// active cart.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	GetActiveByUserID(ctx context.Context, userID uuid.UUID) (*models.Cart, error)
	GetOrCreateActive(ctx context.Context, userID uuid.UUID) (*models.Cart, error)
	GetItem(ctx context.Context, cartID, variantID uuid.UUID) (*models.CartItem, error)
	CreateItem(ctx context.Context, item *models.CartItem) error
	UpdateItemQuantity(ctx context.Context, itemID uuid.UUID, quantity int) error
	DeleteItem(ctx context.Context, itemID uuid.UUID) error
	DeleteItems(ctx context.Context, cartID uuid.UUID) error
	UpdateCoupon(ctx context.Context, cartID uuid.UUID, code *string) error
	UpdateTotals(ctx context.Context, cartID uuid.UUID, subtotal, discount, total int64) error
	// MarkConverted flips an active cart to converted, reporting whether
	// the transition happened. A false return means the cart was already
	// converted by a concurrent checkout.
	MarkConverted(ctx context.Context, cartID uuid.UUID, at time.Time) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a cart repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) GetActiveByUserID(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	var cart models.Cart
	if err := r.db.WithContext(ctx).
		Preload("Items").
		Where("user_id = ? AND status = ?", userID, enums.CartStatusActive).
		First(&cart).Error; err != nil {
		return nil, err
	}
	return &cart, nil
}

func (r *repository) GetOrCreateActive(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	cart, err := r.GetActiveByUserID(ctx, userID)
	if err == nil {
		return cart, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	created := &models.Cart{
		UserID:   userID,
		Status:   enums.CartStatusActive,
		Currency: enums.CurrencyUSD,
	}
	if err := r.db.WithContext(ctx).Create(created).Error; err != nil {
		// Lost the race against a concurrent create; the winner's row
		// is the one the unique index admitted.
		if existing, getErr := r.GetActiveByUserID(ctx, userID); getErr == nil {
			return existing, nil
		}
		return nil, err
	}
	return created, nil
}

func (r *repository) GetItem(ctx context.Context, cartID, variantID uuid.UUID) (*models.CartItem, error) {
	var item models.CartItem
	if err := r.db.WithContext(ctx).
		Where("cart_id = ? AND variant_id = ?", cartID, variantID).
		First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repository) CreateItem(ctx context.Context, item *models.CartItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

func (r *repository) UpdateItemQuantity(ctx context.Context, itemID uuid.UUID, quantity int) error {
	return r.db.WithContext(ctx).
		Model(&models.CartItem{}).
		Where("id = ?", itemID).
		Update("quantity", quantity).Error
}

func (r *repository) DeleteItem(ctx context.Context, itemID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Delete(&models.CartItem{}, "id = ?", itemID).Error
}

func (r *repository) DeleteItems(ctx context.Context, cartID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Delete(&models.CartItem{}, "cart_id = ?", cartID).Error
}

func (r *repository) UpdateCoupon(ctx context.Context, cartID uuid.UUID, code *string) error {
	return r.db.WithContext(ctx).
		Model(&models.Cart{}).
		Where("id = ?", cartID).
		Update("coupon_code", code).Error
}

func (r *repository) UpdateTotals(ctx context.Context, cartID uuid.UUID, subtotal, discount, total int64) error {
	return r.db.WithContext(ctx).
		Model(&models.Cart{}).
		Where("id = ?", cartID).
		Updates(map[string]any{
			"subtotal_cents": subtotal,
			"discount_cents": discount,
			"total_cents":    total,
		}).Error
}

func (r *repository) MarkConverted(ctx context.Context, cartID uuid.UUID, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Cart{}).
		Where("id = ? AND status = ?", cartID, enums.CartStatusActive).
		Updates(map[string]any{
			"status":       enums.CartStatusConverted,
			"converted_at": at,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
