package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/brightline-dev/storefront-backend/api/middleware"
	"github.com/brightline-dev/storefront-backend/api/responses"
	"github.com/brightline-dev/storefront-backend/api/validators"
	cartsvc "github.com/brightline-dev/storefront-backend/internal/cart"
	pkgerrors "github.com/brightline-dev/storefront-backend/pkg/errors"
	"github.com/brightline-dev/storefront-backend/pkg/logger"
)

type cartResponse struct {
	CartID       uuid.UUID            `json:"cart_id"`
	Status       string               `json:"status"`
	Currency     string               `json:"currency"`
	CouponCode   *string              `json:"coupon_code,omitempty"`
	CouponReason string               `json:"coupon_reason,omitempty"`
	Lines        []cartsvc.PricedLine `json:"lines"`
	Subtotal     int64                `json:"subtotal_cents"`
	Discount     int64                `json:"discount_cents"`
	Total        int64                `json:"total_cents"`
}

func newCartResponse(view *cartsvc.View) cartResponse {
	resp := cartResponse{
		Lines:        view.Lines,
		CouponReason: view.CouponReason,
		Subtotal:     view.Totals.SubtotalCents,
		Discount:     view.Totals.DiscountCents,
		Total:        view.Totals.TotalCents,
	}
	if view.Cart != nil {
		resp.CartID = view.Cart.ID
		resp.Status = string(view.Cart.Status)
		resp.Currency = string(view.Cart.Currency)
		resp.CouponCode = view.Cart.CouponCode
	}
	return resp
}

func userIDFrom(r *http.Request) (uuid.UUID, error) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == uuid.Nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	return userID, nil
}

// GetCart returns the caller's active cart with live pricing.
func GetCart(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := userIDFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.GetCart(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartResponse(view))
	}
}

type addCartItemRequest struct {
	VariantID uuid.UUID `json:"variant_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"required"`
}

// AddCartItem adds a variant to the cart, merging duplicate lines.
func AddCartItem(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := userIDFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload addCartItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.AddItem(r.Context(), userID, payload.VariantID, payload.Quantity)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newCartResponse(view))
	}
}

type updateCartItemRequest struct {
	Quantity int `json:"quantity"`
}

// UpdateCartItem sets a line's quantity; zero removes the line.
func UpdateCartItem(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := userIDFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		variantID, err := validators.ParseUUIDParam(r, "variantID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload updateCartItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.UpdateItem(r.Context(), userID, variantID, payload.Quantity)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartResponse(view))
	}
}

// RemoveCartItem deletes a line from the cart.
func RemoveCartItem(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := userIDFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		variantID, err := validators.ParseUUIDParam(r, "variantID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.RemoveItem(r.Context(), userID, variantID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartResponse(view))
	}
}

// ClearCart drops every line and the attached coupon.
func ClearCart(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := userIDFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.Clear(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartResponse(view))
	}
}

type attachCouponRequest struct {
	Code string `json:"code" validate:"required,min=1,max=64"`
}

// AttachCartCoupon validates and stores a coupon code on the cart.
func AttachCartCoupon(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := userIDFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload attachCouponRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.AttachCoupon(r.Context(), userID, payload.Code)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartResponse(view))
	}
}

// DetachCartCoupon removes the coupon from the cart.
func DetachCartCoupon(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := userIDFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.DetachCoupon(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartResponse(view))
	}
}
