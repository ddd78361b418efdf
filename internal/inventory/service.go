package inventory

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/brightline-dev/storefront-backend/pkg/db/models"
	"github.com/brightline-dev/storefront-backend/pkg/enums"
	"github.com/brightline-dev/storefront-backend/pkg/logger"
)

type dbClient interface {
	DB() *gorm.DB
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service exposes the recovery sweep over the reservation journal.
type Service interface {
	// ReleaseExpired returns stock held by attempts that never settled
	// within the TTL, reporting how many attempts were swept.
	ReleaseExpired(ctx context.Context, olderThan time.Time) (int, error)
}

type service struct {
	client dbClient
	logger *logger.Logger
}

// NewService wires the inventory sweep service.
func NewService(client dbClient, logg *logger.Logger) (Service, error) {
	if client == nil {
		return nil, fmt.Errorf("db client required")
	}
	return &service{client: client, logger: logg}, nil
}

func (s *service) ReleaseExpired(ctx context.Context, olderThan time.Time) (int, error) {
	var keys []string
	if err := s.client.DB().WithContext(ctx).
		Model(&models.StockReservation{}).
		Where("status = ? AND created_at < ?", enums.ReservationStatusHeld, olderThan).
		Distinct("attempt_key").
		Pluck("attempt_key", &keys).Error; err != nil {
		return 0, fmt.Errorf("listing expired reservations: %w", err)
	}

	swept := 0
	var errs error
	for _, key := range keys {
		err := s.client.WithTx(ctx, func(tx *gorm.DB) error {
			return Release(ctx, tx, key)
		})
		if err != nil {
			// Keep sweeping the rest; failed attempts are retried on
			// the next pass.
			if s.logger != nil {
				s.logger.Error(ctx, "releasing expired reservation", err)
			}
			errs = multierr.Append(errs, fmt.Errorf("attempt %s: %w", key, err))
			continue
		}
		swept++
	}
	return swept, errs
}
