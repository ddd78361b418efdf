package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/brightline-dev/storefront-backend/api/responses"
	"github.com/brightline-dev/storefront-backend/api/validators"
	"github.com/brightline-dev/storefront-backend/internal/orders"
	"github.com/brightline-dev/storefront-backend/pkg/db/models"
	"github.com/brightline-dev/storefront-backend/pkg/logger"
	"github.com/brightline-dev/storefront-backend/pkg/types"
)

type orderItemResponse struct {
	VariantID         uuid.UUID `json:"variant_id"`
	SKU               string    `json:"sku"`
	Name              string    `json:"name"`
	Quantity          int       `json:"quantity"`
	UnitPriceCents    int64     `json:"unit_price_cents"`
	LineSubtotalCents int64     `json:"line_subtotal_cents"`
}

type orderResponse struct {
	ID              uuid.UUID              `json:"id"`
	OrderNumber     string                 `json:"order_number"`
	Status          string                 `json:"status"`
	Currency        string                 `json:"currency"`
	CouponCode      *string                `json:"coupon_code,omitempty"`
	ShippingAddress types.AddressSnapshot  `json:"shipping_address"`
	BillingAddress  *types.AddressSnapshot `json:"billing_address,omitempty"`
	PaymentRef      string                 `json:"payment_ref"`
	SubtotalCents   int64                  `json:"subtotal_cents"`
	DiscountCents   int64                  `json:"discount_cents"`
	TotalCents      int64                  `json:"total_cents"`
	Items           []orderItemResponse    `json:"items"`
	CreatedAt       time.Time              `json:"created_at"`
}

func newOrderResponse(order *models.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemResponse{
			VariantID:         item.VariantID,
			SKU:               item.SKU,
			Name:              item.Name,
			Quantity:          item.Quantity,
			UnitPriceCents:    item.UnitPriceCents,
			LineSubtotalCents: item.LineSubtotalCents,
		})
	}
	return orderResponse{
		ID:              order.ID,
		OrderNumber:     order.OrderNumber,
		Status:          string(order.Status),
		Currency:        string(order.Currency),
		CouponCode:      order.CouponCode,
		ShippingAddress: order.ShippingAddress,
		BillingAddress:  order.BillingAddress,
		PaymentRef:      order.PaymentRef,
		SubtotalCents:   order.SubtotalCents,
		DiscountCents:   order.DiscountCents,
		TotalCents:      order.TotalCents,
		Items:           items,
		CreatedAt:       order.CreatedAt,
	}
}

// ListOrders returns the caller's orders, newest first.
func ListOrders(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := userIDFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", 20, 1, 100)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		offset, err := validators.ParseQueryInt(r, "offset", 0, 0, 100000)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.ListForUser(r.Context(), userID, limit, offset)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := make([]orderResponse, 0, len(list))
		for i := range list {
			out = append(out, newOrderResponse(&list[i]))
		}
		responses.WriteSuccess(w, out)
	}
}

// GetOrder returns one of the caller's orders by id.
func GetOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := userIDFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		orderID, err := validators.ParseUUIDParam(r, "orderID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.GetForUser(r.Context(), userID, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderResponse(order))
	}
}
