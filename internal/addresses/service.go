package addresses

import (
	"context"
	stdErrors "errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/brightline-dev/storefront-backend/pkg/db/models"
	"github.com/brightline-dev/storefront-backend/pkg/errors"
	"github.com/brightline-dev/storefront-backend/pkg/types"
)

// Service exposes address-book reads plus the snapshot lookup checkout
// needs. Address ownership is enforced here, not at the controller.
type Service interface {
	List(ctx context.Context, userID uuid.UUID) ([]models.Address, error)
	Create(ctx context.Context, address *models.Address) (*models.Address, error)
	// SnapshotForUser resolves an address the user owns into the frozen
	// form orders embed.
	SnapshotForUser(ctx context.Context, userID, addressID uuid.UUID) (*types.AddressSnapshot, error)
}

type service struct {
	repo Repository
}

// NewService wires an address service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("address repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) List(ctx context.Context, userID uuid.UUID) ([]models.Address, error) {
	if userID == uuid.Nil {
		return nil, errors.New(errors.CodeValidation, "user id is required")
	}
	addresses, err := s.repo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "listing addresses")
	}
	return addresses, nil
}

func (s *service) Create(ctx context.Context, address *models.Address) (*models.Address, error) {
	if address == nil || address.UserID == uuid.Nil {
		return nil, errors.New(errors.CodeValidation, "address owner is required")
	}
	if !snapshotOf(address).Validate() {
		return nil, errors.New(errors.CodeValidation, "address is incomplete")
	}
	if err := s.repo.Create(ctx, address); err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "creating address")
	}
	return address, nil
}

func (s *service) SnapshotForUser(ctx context.Context, userID, addressID uuid.UUID) (*types.AddressSnapshot, error) {
	if addressID == uuid.Nil {
		return nil, errors.New(errors.CodeValidation, "address id is required")
	}

	address, err := s.repo.GetByID(ctx, addressID)
	if err != nil {
		if stdErrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound(addressID)
		}
		return nil, errors.Wrap(errors.CodeInternal, err, "loading address")
	}
	// Owned-by check hides other users' addresses entirely.
	if address.UserID != userID {
		return nil, notFound(addressID)
	}

	snapshot := snapshotOf(address)
	if !snapshot.Validate() {
		return nil, errors.New(errors.CodeValidation, "address is incomplete")
	}
	return snapshot, nil
}

func snapshotOf(address *models.Address) *types.AddressSnapshot {
	return &types.AddressSnapshot{
		FullName:   address.FullName,
		Line1:      address.Line1,
		Line2:      address.Line2,
		City:       address.City,
		State:      address.State,
		PostalCode: address.PostalCode,
		Country:    address.Country,
		Phone:      address.Phone,
	}
}

func notFound(addressID uuid.UUID) *errors.Error {
	return errors.New(errors.CodeNotFound, "address not found").
		WithReason("ADDRESS_NOT_FOUND", map[string]any{"address_id": addressID})
}
