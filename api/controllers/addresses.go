package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/brightline-dev/storefront-backend/api/responses"
	"github.com/brightline-dev/storefront-backend/api/validators"
	"github.com/brightline-dev/storefront-backend/internal/addresses"
	"github.com/brightline-dev/storefront-backend/pkg/db/models"
	"github.com/brightline-dev/storefront-backend/pkg/logger"
)

type addressResponse struct {
	ID         uuid.UUID `json:"id"`
	FullName   string    `json:"full_name"`
	Line1      string    `json:"line1"`
	Line2      *string   `json:"line2,omitempty"`
	City       string    `json:"city"`
	State      string    `json:"state"`
	PostalCode string    `json:"postal_code"`
	Country    string    `json:"country"`
	Phone      *string   `json:"phone,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func newAddressResponse(address *models.Address) addressResponse {
	return addressResponse{
		ID:         address.ID,
		FullName:   address.FullName,
		Line1:      address.Line1,
		Line2:      address.Line2,
		City:       address.City,
		State:      address.State,
		PostalCode: address.PostalCode,
		Country:    address.Country,
		Phone:      address.Phone,
		CreatedAt:  address.CreatedAt,
	}
}

// ListAddresses returns the caller's address book.
func ListAddresses(svc addresses.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := userIDFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.List(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := make([]addressResponse, 0, len(list))
		for i := range list {
			out = append(out, newAddressResponse(&list[i]))
		}
		responses.WriteSuccess(w, out)
	}
}

type createAddressRequest struct {
	FullName   string  `json:"full_name" validate:"required,min=1,max=200"`
	Line1      string  `json:"line1" validate:"required,min=1,max=200"`
	Line2      *string `json:"line2" validate:"omitempty,max=200"`
	City       string  `json:"city" validate:"required,min=1,max=100"`
	State      string  `json:"state" validate:"required,min=1,max=100"`
	PostalCode string  `json:"postal_code" validate:"required,min=1,max=20"`
	Country    string  `json:"country" validate:"required,len=2"`
	Phone      *string `json:"phone" validate:"omitempty,max=30"`
}

// CreateAddress adds an address-book entry for the caller.
func CreateAddress(svc addresses.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := userIDFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload createAddressRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		created, err := svc.Create(r.Context(), &models.Address{
			UserID:     userID,
			FullName:   payload.FullName,
			Line1:      payload.Line1,
			Line2:      payload.Line2,
			City:       payload.City,
			State:      payload.State,
			PostalCode: payload.PostalCode,
			Country:    payload.Country,
			Phone:      payload.Phone,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newAddressResponse(created))
	}
}
