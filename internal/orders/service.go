package orders

import (
	"context"
	stdErrors "errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/brightline-dev/storefront-backend/pkg/db/models"
	"github.com/brightline-dev/storefront-backend/pkg/errors"
)

// Service is the owner-scoped read side for committed orders. Writes only
// happen through the checkout pipeline.
type Service interface {
	GetForUser(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error)
	ListForUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Order, error)
}

type service struct {
	repo Repository
}

// NewService wires an order service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("order repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) GetForUser(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, errors.New(errors.CodeValidation, "order id is required")
	}
	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		if stdErrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound(orderID)
		}
		return nil, errors.Wrap(errors.CodeInternal, err, "loading order")
	}
	// Other users' orders are indistinguishable from missing ones.
	if order.UserID != userID {
		return nil, notFound(orderID)
	}
	return order, nil
}

func (s *service) ListForUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Order, error) {
	if userID == uuid.Nil {
		return nil, errors.New(errors.CodeValidation, "user id is required")
	}
	orders, err := s.repo.ListByUserID(ctx, userID, limit, offset)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "listing orders")
	}
	return orders, nil
}

func notFound(orderID uuid.UUID) *errors.Error {
	return errors.New(errors.CodeNotFound, "order not found").
		WithReason("ORDER_NOT_FOUND", map[string]any{"order_id": orderID})
}
