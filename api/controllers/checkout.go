package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/brightline-dev/storefront-backend/api/responses"
	"github.com/brightline-dev/storefront-backend/api/validators"
	"github.com/brightline-dev/storefront-backend/internal/checkout"
	pkgerrors "github.com/brightline-dev/storefront-backend/pkg/errors"
	"github.com/brightline-dev/storefront-backend/pkg/logger"
)

const maxIdempotencyKeyLen = 128

type createOrderRequest struct {
	ShippingAddressID uuid.UUID  `json:"shipping_address_id" validate:"required"`
	BillingAddressID  *uuid.UUID `json:"billing_address_id"`
}

// CreateOrder runs checkout for the caller's active cart. The
// Idempotency-Key header is mandatory; replaying it returns the order
// created by the first attempt.
func CreateOrder(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := userIDFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
		if key == "" || len(key) > maxIdempotencyKeyLen {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header is required").
					WithDetails(map[string]any{"max_length": maxIdempotencyKeyLen}))
			return
		}

		var payload createOrderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Execute(r.Context(), userID, checkout.Input{
			IdempotencyKey:    key,
			ShippingAddressID: payload.ShippingAddressID,
			BillingAddressID:  payload.BillingAddressID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newOrderResponse(order))
	}
}
