package catalog

import (
	"context"
	stdErrors "errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/brightline-dev/storefront-backend/pkg/db/models"
	"github.com/brightline-dev/storefront-backend/pkg/errors"
)

// Service exposes the catalog reads the checkout pipeline depends on.
type Service interface {
	GetVariant(ctx context.Context, id uuid.UUID) (*models.ProductVariant, error)
	GetSellableVariant(ctx context.Context, id uuid.UUID) (*models.ProductVariant, error)
	GetVariants(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.ProductVariant, error)
}

type service struct {
	repo Repository
}

// NewService wires a catalog service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) GetVariant(ctx context.Context, id uuid.UUID) (*models.ProductVariant, error) {
	if id == uuid.Nil {
		return nil, errors.New(errors.CodeValidation, "variant id is required")
	}
	variant, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if stdErrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New(errors.CodeNotFound, "variant not found").
				WithReason("VARIANT_NOT_FOUND", map[string]any{"variant_id": id})
		}
		return nil, errors.Wrap(errors.CodeInternal, err, "loading variant")
	}
	return variant, nil
}

// GetSellableVariant loads a variant and rejects inactive ones. Carts and
// checkout only ever price sellable variants.
func (s *service) GetSellableVariant(ctx context.Context, id uuid.UUID) (*models.ProductVariant, error) {
	variant, err := s.GetVariant(ctx, id)
	if err != nil {
		return nil, err
	}
	if !variant.IsActive {
		return nil, errors.New(errors.CodeStateConflict, "variant is not purchasable").
			WithReason("VARIANT_INACTIVE", map[string]any{"variant_id": id})
	}
	return variant, nil
}

// GetVariants batch-loads variants keyed by id. Missing ids are simply
// absent from the map; callers decide whether that is an error.
func (s *service) GetVariants(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.ProductVariant, error) {
	variants, err := s.repo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "loading variants")
	}
	byID := make(map[uuid.UUID]models.ProductVariant, len(variants))
	for _, variant := range variants {
		byID[variant.ID] = variant
	}
	return byID, nil
}
