// Package checkout orchestrates the validate, reserve, authorize, commit
// pipeline. Stock is held before payment and either committed with the
// order or released; the idempotency key makes the whole attempt
// replay-safe.
package checkout

import (
	"context"
	stdErrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/brightline-dev/storefront-backend/internal/cart"
	"github.com/brightline-dev/storefront-backend/internal/inventory"
	"github.com/brightline-dev/storefront-backend/internal/orders"
	"github.com/brightline-dev/storefront-backend/internal/payments"
	"github.com/brightline-dev/storefront-backend/pkg/config"
	"github.com/brightline-dev/storefront-backend/pkg/db/models"
	"github.com/brightline-dev/storefront-backend/pkg/enums"
	"github.com/brightline-dev/storefront-backend/pkg/errors"
	"github.com/brightline-dev/storefront-backend/pkg/logger"
	"github.com/brightline-dev/storefront-backend/pkg/metrics"
	"github.com/brightline-dev/storefront-backend/pkg/types"
)

const (
	ReasonCartEmpty         = "CART_EMPTY"
	ReasonInFlight          = "CHECKOUT_IN_FLIGHT"
	ReasonCartConverted     = "CART_ALREADY_CONVERTED"
	ReasonInsufficientStock = inventory.ReasonInsufficientStock
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type inflightGuard interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	CheckoutKey(parts ...string) string
}

type cartPricer interface {
	Price(ctx context.Context, record *models.Cart, now time.Time) (*cart.View, error)
}

type addressResolver interface {
	SnapshotForUser(ctx context.Context, userID, addressID uuid.UUID) (*types.AddressSnapshot, error)
}

type usageConsumer interface {
	ConsumeUsage(ctx context.Context, tx *gorm.DB, code string) error
}

// Input is one checkout attempt. The idempotency key is chosen by the
// client and scopes retries: replays with the same key return the
// original order.
type Input struct {
	IdempotencyKey    string
	ShippingAddressID uuid.UUID
	BillingAddressID  *uuid.UUID
}

// Service executes checkout orchestration.
type Service interface {
	Execute(ctx context.Context, userID uuid.UUID, input Input) (*models.Order, error)
}

type service struct {
	tx         txRunner
	cartRepo   cart.Repository
	pricer     cartPricer
	coupons    usageConsumer
	addresses  addressResolver
	orderRepo  orders.Repository
	authorizer payments.Authorizer
	guard      inflightGuard
	metrics    *metrics.CheckoutMetrics
	logger     *logger.Logger
	cfg        config.CheckoutConfig
}

// NewService builds the checkout service.
func NewService(
	tx txRunner,
	cartRepo cart.Repository,
	pricer cartPricer,
	couponSvc usageConsumer,
	addressSvc addressResolver,
	orderRepo orders.Repository,
	authorizer payments.Authorizer,
	guard inflightGuard,
	checkoutMetrics *metrics.CheckoutMetrics,
	logg *logger.Logger,
	cfg config.CheckoutConfig,
) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if cartRepo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if pricer == nil {
		return nil, fmt.Errorf("cart pricer required")
	}
	if couponSvc == nil {
		return nil, fmt.Errorf("coupon service required")
	}
	if addressSvc == nil {
		return nil, fmt.Errorf("address service required")
	}
	if orderRepo == nil {
		return nil, fmt.Errorf("order repository required")
	}
	if authorizer == nil {
		return nil, fmt.Errorf("payment authorizer required")
	}
	if guard == nil {
		return nil, fmt.Errorf("inflight guard required")
	}
	if cfg.ReserveAttempts <= 0 {
		cfg.ReserveAttempts = 1
	}
	return &service{
		tx:         tx,
		cartRepo:   cartRepo,
		pricer:     pricer,
		coupons:    couponSvc,
		addresses:  addressSvc,
		orderRepo:  orderRepo,
		authorizer: authorizer,
		guard:      guard,
		metrics:    checkoutMetrics,
		logger:     logg,
		cfg:        cfg,
	}, nil
}

func (s *service) Execute(ctx context.Context, userID uuid.UUID, input Input) (*models.Order, error) {
	started := time.Now()
	order, err := s.execute(ctx, userID, input)
	if err != nil {
		s.observe("failure", failureReason(err), started)
		return nil, err
	}
	s.observe("success", "", started)
	return order, nil
}

func (s *service) execute(ctx context.Context, userID uuid.UUID, input Input) (*models.Order, error) {
	if userID == uuid.Nil {
		return nil, errors.New(errors.CodeValidation, "user id is required")
	}
	input.IdempotencyKey = strings.TrimSpace(input.IdempotencyKey)
	if input.IdempotencyKey == "" {
		return nil, errors.New(errors.CodeValidation, "idempotency key is required")
	}
	if input.ShippingAddressID == uuid.Nil {
		return nil, errors.New(errors.CodeValidation, "shipping address is required")
	}

	// A replayed key returns the original order without touching stock.
	if existing, err := s.findExisting(ctx, userID, input.IdempotencyKey); existing != nil || err != nil {
		return existing, err
	}

	inflightKey := s.guard.CheckoutKey("inflight", input.IdempotencyKey)
	acquired, err := s.guard.SetNX(ctx, inflightKey, "1", s.cfg.InflightTTL)
	if err != nil {
		return nil, errors.Wrap(errors.CodeDependency, err, "acquiring checkout guard")
	}
	if !acquired {
		return nil, errors.New(errors.CodeConflict, "checkout attempt already in progress").
			WithReason(ReasonInFlight, map[string]any{"idempotency_key": input.IdempotencyKey})
	}
	defer func() {
		if err := s.guard.Del(context.WithoutCancel(ctx), inflightKey); err != nil && s.logger != nil {
			s.logger.Warn(ctx, "releasing checkout guard failed")
		}
	}()

	record, err := s.cartRepo.GetActiveByUserID(ctx, userID)
	if err != nil {
		if stdErrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, emptyCart()
		}
		return nil, errors.Wrap(errors.CodeInternal, err, "loading cart")
	}
	if len(record.Items) == 0 {
		return nil, emptyCart()
	}

	shipping, err := s.addresses.SnapshotForUser(ctx, userID, input.ShippingAddressID)
	if err != nil {
		return nil, err
	}
	var billing *types.AddressSnapshot
	if input.BillingAddressID != nil {
		billing, err = s.addresses.SnapshotForUser(ctx, userID, *input.BillingAddressID)
		if err != nil {
			return nil, err
		}
	}

	now := time.Now()
	view, err := s.pricer.Price(ctx, record, now)
	if err != nil {
		return nil, err
	}

	couponCode := record.CouponCode
	if view.CouponReason != "" {
		if s.cfg.StrictCoupons {
			return nil, errors.New(errors.CodeStateConflict, "attached coupon no longer valid").
				WithReason(view.CouponReason, map[string]any{"code": deref(couponCode)})
		}
		// Lenient mode proceeds without the discount.
		if s.logger != nil {
			s.logger.Warn(s.logger.WithField(ctx, "coupon_reason", view.CouponReason),
				"dropping stale coupon at checkout")
		}
		couponCode = nil
	}

	if err := s.reserve(ctx, input.IdempotencyKey, view.Lines); err != nil {
		return nil, err
	}

	auth, err := s.authorizer.Authorize(ctx, payments.AuthorizeInput{
		AmountCents:    view.Totals.TotalCents,
		Currency:       record.Currency,
		IdempotencyKey: input.IdempotencyKey,
	})
	if err != nil {
		s.release(ctx, input.IdempotencyKey)
		return nil, err
	}

	order, err := s.commit(ctx, userID, input, record, view, couponCode, shipping, billing, auth.PaymentRef, now)
	if err != nil {
		// A concurrent attempt with the same key may have won the
		// unique-index race; its order is the canonical result.
		if isUniqueViolation(err) {
			if existing, findErr := s.findExisting(ctx, userID, input.IdempotencyKey); findErr == nil && existing != nil {
				s.release(ctx, input.IdempotencyKey)
				return existing, nil
			}
		}
		s.release(ctx, input.IdempotencyKey)
		return nil, err
	}
	return order, nil
}

// findExisting resolves a replayed idempotency key. A key already used by
// a different user is rejected rather than leaking their order.
func (s *service) findExisting(ctx context.Context, userID uuid.UUID, key string) (*models.Order, error) {
	existing, err := s.orderRepo.GetByIdempotencyKey(ctx, key)
	if err != nil {
		if stdErrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(errors.CodeInternal, err, "checking idempotency key")
	}
	if existing.UserID != userID {
		return nil, errors.New(errors.CodeIdempotency, "idempotency key already used")
	}
	return existing, nil
}

// reserve holds stock for every line in one transaction, retrying
// transient storage failures. A short line rolls the whole hold back and
// fails the attempt with the per-line reasons.
func (s *service) reserve(ctx context.Context, attemptKey string, lines []cart.PricedLine) error {
	requests := make([]inventory.Request, len(lines))
	for i, line := range lines {
		requests[i] = inventory.Request{VariantID: line.VariantID, Qty: line.Quantity}
	}

	errShort := stdErrors.New("short stock")
	var results []inventory.Result

	var lastErr error
	for attempt := 0; attempt < s.cfg.ReserveAttempts; attempt++ {
		lastErr = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			batch, err := inventory.Reserve(ctx, tx, attemptKey, requests)
			if err != nil {
				return err
			}
			results = batch
			if !inventory.AllReserved(batch) {
				return errShort
			}
			return nil
		})
		if lastErr == nil {
			return nil
		}
		if stdErrors.Is(lastErr, errShort) {
			return shortStockError(results)
		}
		if typed := errors.As(lastErr); typed != nil {
			return lastErr
		}
		// Transient storage failure; retry the whole hold.
	}
	return errors.Wrap(errors.CodeConflict, lastErr, "reserving stock")
}

func (s *service) commit(
	ctx context.Context,
	userID uuid.UUID,
	input Input,
	record *models.Cart,
	view *cart.View,
	couponCode *string,
	shipping *types.AddressSnapshot,
	billing *types.AddressSnapshot,
	paymentRef string,
	now time.Time,
) (*models.Order, error) {
	order := &models.Order{
		UserID:          userID,
		OrderNumber:     orderNumber(now),
		IdempotencyKey:  input.IdempotencyKey,
		Status:          enums.OrderStatusConfirmed,
		Currency:        record.Currency,
		CouponCode:      couponCode,
		ShippingAddress: *shipping,
		BillingAddress:  billing,
		PaymentRef:      paymentRef,
		SubtotalCents:   view.Totals.SubtotalCents,
		DiscountCents:   view.Totals.DiscountCents,
		TotalCents:      view.Totals.TotalCents,
	}
	for _, line := range view.Lines {
		order.Items = append(order.Items, models.OrderItem{
			VariantID:         line.VariantID,
			SKU:               line.SKU,
			Name:              line.Name,
			Quantity:          line.Quantity,
			UnitPriceCents:    line.UnitPriceCents,
			LineSubtotalCents: line.LineSubtotalCents,
		})
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if couponCode != nil {
			if err := s.coupons.ConsumeUsage(ctx, tx, *couponCode); err != nil {
				return err
			}
		}

		converted, err := s.cartRepo.WithTx(tx).MarkConverted(ctx, record.ID, now)
		if err != nil {
			return errors.Wrap(errors.CodeInternal, err, "converting cart")
		}
		if !converted {
			return errors.New(errors.CodeConflict, "cart was already checked out").
				WithReason(ReasonCartConverted, map[string]any{"cart_id": record.ID})
		}

		if err := s.orderRepo.WithTx(tx).Create(ctx, order); err != nil {
			return err
		}
		return inventory.Commit(ctx, tx, input.IdempotencyKey)
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// release returns held stock after a failed attempt. Failures are logged
// and left to the recovery sweep.
func (s *service) release(ctx context.Context, attemptKey string) {
	// The request context may already be cancelled (payment timeout is the
	// usual path here); the release must still reach storage.
	detached := context.WithoutCancel(ctx)
	err := s.tx.WithTx(detached, func(tx *gorm.DB) error {
		return inventory.Release(detached, tx, attemptKey)
	})
	if err != nil && s.logger != nil {
		s.logger.Error(detached, "releasing checkout reservation", err)
	}
}

func (s *service) observe(outcome, reason string, started time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveAttempt(outcome, reason, time.Since(started))
	}
}

func shortStockError(results []inventory.Result) error {
	failed := make([]map[string]any, 0)
	for _, result := range results {
		if result.Reserved {
			continue
		}
		failed = append(failed, map[string]any{
			"variant_id": result.VariantID,
			"qty":        result.Qty,
			"reason":     result.Reason,
		})
	}
	return errors.New(errors.CodeStateConflict, "insufficient stock").
		WithReason(ReasonInsufficientStock, map[string]any{"lines": failed})
}

func emptyCart() error {
	return errors.New(errors.CodeValidation, "cart contains no items").
		WithReason(ReasonCartEmpty, nil)
}

func failureReason(err error) string {
	typed := errors.As(err)
	if typed == nil {
		return "internal"
	}
	if details, ok := typed.Details().(map[string]any); ok {
		if reason, ok := details["reason"].(string); ok {
			return reason
		}
	}
	return string(typed.Code())
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
