package cart

import (
	"context"
	stdErrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/brightline-dev/storefront-backend/internal/catalog"
	"github.com/brightline-dev/storefront-backend/internal/coupons"
	"github.com/brightline-dev/storefront-backend/internal/pricing"
	"github.com/brightline-dev/storefront-backend/pkg/db/models"
	"github.com/brightline-dev/storefront-backend/pkg/errors"
)

// PricedLine is one cart line with its live catalog price applied.
type PricedLine struct {
	VariantID         uuid.UUID `json:"variant_id"`
	SKU               string    `json:"sku"`
	Name              string    `json:"name"`
	Quantity          int       `json:"quantity"`
	UnitPriceCents    int64     `json:"unit_price_cents"`
	LineSubtotalCents int64     `json:"line_subtotal_cents"`
}

// View is a cart rendered with live pricing. Totals come from the catalog
// at read time; the persisted totals are only a display cache. When the
// attached coupon no longer validates, CouponReason carries the rejection
// reason and the totals exclude the discount.
type View struct {
	Cart         *models.Cart   `json:"cart"`
	Lines        []PricedLine   `json:"lines"`
	Totals       pricing.Totals `json:"totals"`
	CouponReason string         `json:"coupon_reason,omitempty"`
}

// Service owns cart mutation and read-side pricing.
type Service interface {
	GetCart(ctx context.Context, userID uuid.UUID) (*View, error)
	AddItem(ctx context.Context, userID, variantID uuid.UUID, quantity int) (*View, error)
	UpdateItem(ctx context.Context, userID, variantID uuid.UUID, quantity int) (*View, error)
	RemoveItem(ctx context.Context, userID, variantID uuid.UUID) (*View, error)
	Clear(ctx context.Context, userID uuid.UUID) (*View, error)
	AttachCoupon(ctx context.Context, userID uuid.UUID, code string) (*View, error)
	DetachCoupon(ctx context.Context, userID uuid.UUID) (*View, error)
	// Price renders a cart snapshot without touching storage. Checkout
	// uses it inside its own transaction boundaries.
	Price(ctx context.Context, cart *models.Cart, now time.Time) (*View, error)
}

type service struct {
	repo    Repository
	catalog catalog.Service
	coupons coupons.Service
}

// NewService wires a cart service with its collaborators.
func NewService(repo Repository, catalogSvc catalog.Service, couponSvc coupons.Service) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if catalogSvc == nil {
		return nil, fmt.Errorf("catalog service required")
	}
	if couponSvc == nil {
		return nil, fmt.Errorf("coupon service required")
	}
	return &service{repo: repo, catalog: catalogSvc, coupons: couponSvc}, nil
}

func (s *service) GetCart(ctx context.Context, userID uuid.UUID) (*View, error) {
	cart, err := s.activeCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.priceAndPersist(ctx, cart)
}

func (s *service) AddItem(ctx context.Context, userID, variantID uuid.UUID, quantity int) (*View, error) {
	if quantity <= 0 {
		return nil, invalidQuantity(quantity)
	}

	variant, err := s.catalog.GetSellableVariant(ctx, variantID)
	if err != nil {
		return nil, err
	}

	cart, err := s.repo.GetOrCreateActive(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "loading cart")
	}

	existing, err := s.repo.GetItem(ctx, cart.ID, variantID)
	switch {
	case err == nil:
		// Adding a variant already in the cart merges quantities.
		if err := s.repo.UpdateItemQuantity(ctx, existing.ID, existing.Quantity+quantity); err != nil {
			return nil, errors.Wrap(errors.CodeInternal, err, "merging cart line")
		}
	case stdErrors.Is(err, gorm.ErrRecordNotFound):
		item := &models.CartItem{
			CartID:          cart.ID,
			VariantID:       variantID,
			Quantity:        quantity,
			PriceAtAddCents: pricing.EffectiveUnitPriceCents(variant, time.Now()),
		}
		if err := s.repo.CreateItem(ctx, item); err != nil {
			return nil, errors.Wrap(errors.CodeInternal, err, "creating cart line")
		}
	default:
		return nil, errors.Wrap(errors.CodeInternal, err, "loading cart line")
	}

	return s.reload(ctx, userID)
}

func (s *service) UpdateItem(ctx context.Context, userID, variantID uuid.UUID, quantity int) (*View, error) {
	if quantity < 0 {
		return nil, invalidQuantity(quantity)
	}

	cart, err := s.activeCart(ctx, userID)
	if err != nil {
		return nil, err
	}

	item, err := s.repo.GetItem(ctx, cart.ID, variantID)
	if err != nil {
		if stdErrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New(errors.CodeNotFound, "cart line not found").
				WithReason("CART_LINE_NOT_FOUND", map[string]any{"variant_id": variantID})
		}
		return nil, errors.Wrap(errors.CodeInternal, err, "loading cart line")
	}

	// Quantity zero removes the line.
	if quantity == 0 {
		if err := s.repo.DeleteItem(ctx, item.ID); err != nil {
			return nil, errors.Wrap(errors.CodeInternal, err, "removing cart line")
		}
	} else if err := s.repo.UpdateItemQuantity(ctx, item.ID, quantity); err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "updating cart line")
	}

	return s.reload(ctx, userID)
}

func (s *service) RemoveItem(ctx context.Context, userID, variantID uuid.UUID) (*View, error) {
	return s.UpdateItem(ctx, userID, variantID, 0)
}

func (s *service) Clear(ctx context.Context, userID uuid.UUID) (*View, error) {
	cart, err := s.activeCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.DeleteItems(ctx, cart.ID); err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "clearing cart")
	}
	if err := s.repo.UpdateCoupon(ctx, cart.ID, nil); err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "detaching coupon")
	}
	return s.reload(ctx, userID)
}

func (s *service) AttachCoupon(ctx context.Context, userID uuid.UUID, code string) (*View, error) {
	cart, err := s.activeCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(cart.Items) == 0 {
		return nil, errors.New(errors.CodeValidation, "cannot apply a coupon to an empty cart").
			WithReason("CART_EMPTY", nil)
	}

	view, err := s.Price(ctx, cart, time.Now())
	if err != nil {
		return nil, err
	}

	result, err := s.coupons.Validate(ctx, code, view.Totals.SubtotalCents, time.Now())
	if err != nil {
		return nil, err
	}

	if err := s.repo.UpdateCoupon(ctx, cart.ID, &result.Coupon.Code); err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "attaching coupon")
	}
	return s.reload(ctx, userID)
}

func (s *service) DetachCoupon(ctx context.Context, userID uuid.UUID) (*View, error) {
	cart, err := s.activeCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateCoupon(ctx, cart.ID, nil); err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "detaching coupon")
	}
	return s.reload(ctx, userID)
}

func (s *service) Price(ctx context.Context, cart *models.Cart, now time.Time) (*View, error) {
	if cart == nil {
		return nil, errors.New(errors.CodeValidation, "cart is required")
	}

	ids := make([]uuid.UUID, 0, len(cart.Items))
	for _, item := range cart.Items {
		ids = append(ids, item.VariantID)
	}
	variants, err := s.catalog.GetVariants(ctx, ids)
	if err != nil {
		return nil, err
	}

	lines := make([]PricedLine, 0, len(cart.Items))
	priceLines := make([]pricing.Line, 0, len(cart.Items))
	for _, item := range cart.Items {
		variant, ok := variants[item.VariantID]
		if !ok || !variant.IsActive {
			return nil, errors.New(errors.CodeStateConflict, "cart contains an unavailable variant").
				WithReason("VARIANT_UNAVAILABLE", map[string]any{"variant_id": item.VariantID})
		}
		unit := pricing.EffectiveUnitPriceCents(&variant, now)
		lines = append(lines, PricedLine{
			VariantID:         item.VariantID,
			SKU:               variant.SKU,
			Name:              variant.Name,
			Quantity:          item.Quantity,
			UnitPriceCents:    unit,
			LineSubtotalCents: unit * int64(item.Quantity),
		})
		priceLines = append(priceLines, pricing.Line{UnitPriceCents: unit, Quantity: item.Quantity})
	}

	view := &View{Cart: cart, Lines: lines}

	var coupon *models.Coupon
	if cart.CouponCode != nil {
		subtotal := pricing.ComputeTotals(priceLines, nil).SubtotalCents
		result, err := s.coupons.Validate(ctx, *cart.CouponCode, subtotal, now)
		switch {
		case err == nil:
			coupon = result.Coupon
		case errors.As(err) != nil:
			// Stale coupon: render without the discount and surface
			// the rejection reason instead of failing the read.
			view.CouponReason = rejectionReason(err)
		default:
			return nil, err
		}
	}

	view.Totals = pricing.ComputeTotals(priceLines, coupon)
	return view, nil
}

func (s *service) activeCart(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	if userID == uuid.Nil {
		return nil, errors.New(errors.CodeValidation, "user id is required")
	}
	cart, err := s.repo.GetOrCreateActive(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "loading cart")
	}
	return cart, nil
}

func (s *service) reload(ctx context.Context, userID uuid.UUID) (*View, error) {
	cart, err := s.repo.GetActiveByUserID(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "reloading cart")
	}
	// An empty cart carries no coupon; removing the last line detaches it.
	if len(cart.Items) == 0 && cart.CouponCode != nil {
		if err := s.repo.UpdateCoupon(ctx, cart.ID, nil); err != nil {
			return nil, errors.Wrap(errors.CodeInternal, err, "detaching coupon")
		}
		cart.CouponCode = nil
	}
	return s.priceAndPersist(ctx, cart)
}

func (s *service) priceAndPersist(ctx context.Context, cart *models.Cart) (*View, error) {
	view, err := s.Price(ctx, cart, time.Now())
	if err != nil {
		return nil, err
	}
	// Cache the derived totals for listing surfaces; failures here do not
	// affect the response.
	if err := s.repo.UpdateTotals(ctx, cart.ID,
		view.Totals.SubtotalCents, view.Totals.DiscountCents, view.Totals.TotalCents); err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "caching cart totals")
	}
	cart.SubtotalCents = view.Totals.SubtotalCents
	cart.DiscountCents = view.Totals.DiscountCents
	cart.TotalCents = view.Totals.TotalCents
	return view, nil
}

func invalidQuantity(quantity int) *errors.Error {
	return errors.New(errors.CodeValidation, "quantity is invalid").
		WithReason("INVALID_QUANTITY", map[string]any{"quantity": quantity})
}

func rejectionReason(err error) string {
	typed := errors.As(err)
	if typed == nil {
		return ""
	}
	if details, ok := typed.Details().(map[string]any); ok {
		if reason, ok := details["reason"].(string); ok {
			return reason
		}
	}
	return string(typed.Code())
}
