package controllers

import (
	"net/http"
	"time"

	"github.com/brightline-dev/storefront-backend/api/responses"
	"github.com/brightline-dev/storefront-backend/api/validators"
	cartsvc "github.com/brightline-dev/storefront-backend/internal/cart"
	"github.com/brightline-dev/storefront-backend/internal/coupons"
	pkgerrors "github.com/brightline-dev/storefront-backend/pkg/errors"
	"github.com/brightline-dev/storefront-backend/pkg/logger"
)

type validateCouponRequest struct {
	Code string `json:"code" validate:"required,min=1,max=64"`
}

type validateCouponResponse struct {
	Valid         bool   `json:"valid"`
	Reason        string `json:"reason,omitempty"`
	Code          string `json:"code"`
	DiscountCents int64  `json:"discount_cents"`
	SubtotalCents int64  `json:"subtotal_cents"`
}

// ValidateCoupon checks a code against the caller's current cart
// subtotal without attaching it. Rejections come back as a payload,
// not an error status, so storefronts can render the reason inline.
func ValidateCoupon(cartService cartsvc.Service, couponService coupons.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := userIDFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload validateCouponRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := cartService.GetCart(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		subtotal := view.Totals.SubtotalCents

		result, err := couponService.Validate(r.Context(), payload.Code, subtotal, time.Now())
		if err != nil {
			if reason := couponRejectionReason(err); reason != "" {
				responses.WriteSuccess(w, validateCouponResponse{
					Valid:         false,
					Reason:        reason,
					Code:          payload.Code,
					SubtotalCents: subtotal,
				})
				return
			}
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, validateCouponResponse{
			Valid:         true,
			Code:          result.Coupon.Code,
			DiscountCents: result.DiscountCents,
			SubtotalCents: subtotal,
		})
	}
}

func couponRejectionReason(err error) string {
	coded := pkgerrors.As(err)
	if coded == nil {
		return ""
	}
	if coded.Code() != pkgerrors.CodeNotFound && coded.Code() != pkgerrors.CodeStateConflict {
		return ""
	}
	details, ok := coded.Details().(map[string]any)
	if !ok {
		return ""
	}
	reason, _ := details["reason"].(string)
	return reason
}
