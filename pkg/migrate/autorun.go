package migrate

import (
	"context"
	"fmt"

	"github.com/brightline-dev/storefront-backend/pkg/config"
	"github.com/brightline-dev/storefront-backend/pkg/db"
	"github.com/brightline-dev/storefront-backend/pkg/db/models"
	"github.com/brightline-dev/storefront-backend/pkg/logger"
)

// MaybeRunDev applies the schema via gorm AutoMigrate when the dev flag is
// set. Production schema changes go through goose migrations only.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if cfg == nil || client == nil {
		return nil
	}
	if !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	if cfg.App.IsProd() {
		return fmt.Errorf("auto-migrate is not allowed in prod")
	}

	if err := client.DB().WithContext(ctx).AutoMigrate(
		&models.ProductVariant{},
		&models.InventoryItem{},
		&models.Cart{},
		&models.CartItem{},
		&models.Coupon{},
		&models.Order{},
		&models.OrderItem{},
		&models.StockReservation{},
		&models.Address{},
	); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}

	if logg != nil {
		logg.Info(ctx, "dev auto-migrate complete")
	}
	return nil
}
