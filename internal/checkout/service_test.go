package checkout

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/brightline-dev/storefront-backend/internal/cart"
	"github.com/brightline-dev/storefront-backend/internal/coupons"
	"github.com/brightline-dev/storefront-backend/internal/orders"
	"github.com/brightline-dev/storefront-backend/internal/payments"
	"github.com/brightline-dev/storefront-backend/pkg/config"
	"github.com/brightline-dev/storefront-backend/pkg/db/models"
	"github.com/brightline-dev/storefront-backend/pkg/enums"
	pkgerrors "github.com/brightline-dev/storefront-backend/pkg/errors"
	"github.com/brightline-dev/storefront-backend/pkg/types"
)

type testClient struct {
	db *gorm.DB
}

func (c *testClient) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return c.db.Transaction(fn)
}

type stubCartRepo struct {
	record    *models.Cart
	converted bool
}

func (s *stubCartRepo) WithTx(tx *gorm.DB) cart.Repository { return s }

func (s *stubCartRepo) GetActiveByUserID(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	if s.record == nil || s.record.Status != enums.CartStatusActive {
		return nil, gorm.ErrRecordNotFound
	}
	return s.record, nil
}

func (s *stubCartRepo) GetOrCreateActive(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	return s.GetActiveByUserID(ctx, userID)
}

func (s *stubCartRepo) GetItem(ctx context.Context, cartID, variantID uuid.UUID) (*models.CartItem, error) {
	return nil, gorm.ErrRecordNotFound
}

func (s *stubCartRepo) CreateItem(ctx context.Context, item *models.CartItem) error { return nil }

func (s *stubCartRepo) UpdateItemQuantity(ctx context.Context, itemID uuid.UUID, quantity int) error {
	return nil
}

func (s *stubCartRepo) DeleteItem(ctx context.Context, itemID uuid.UUID) error  { return nil }
func (s *stubCartRepo) DeleteItems(ctx context.Context, cartID uuid.UUID) error { return nil }

func (s *stubCartRepo) UpdateCoupon(ctx context.Context, cartID uuid.UUID, code *string) error {
	return nil
}

func (s *stubCartRepo) UpdateTotals(ctx context.Context, cartID uuid.UUID, subtotal, discount, total int64) error {
	return nil
}

func (s *stubCartRepo) MarkConverted(ctx context.Context, cartID uuid.UUID, at time.Time) (bool, error) {
	if s.record.Status != enums.CartStatusActive {
		return false, nil
	}
	s.record.Status = enums.CartStatusConverted
	s.converted = true
	return true, nil
}

type stubPricer struct {
	view *cart.View
}

func (s *stubPricer) Price(ctx context.Context, record *models.Cart, now time.Time) (*cart.View, error) {
	return s.view, nil
}

type stubAddresses struct{}

func (stubAddresses) SnapshotForUser(ctx context.Context, userID, addressID uuid.UUID) (*types.AddressSnapshot, error) {
	return &types.AddressSnapshot{
		FullName:   "Pat Doe",
		Line1:      "1 Main St",
		City:       "Portland",
		State:      "OR",
		PostalCode: "97201",
		Country:    "US",
	}, nil
}

type stubCoupons struct {
	consumeFn func(code string) error
	consumed  []string
}

func (s *stubCoupons) ConsumeUsage(ctx context.Context, tx *gorm.DB, code string) error {
	if s.consumeFn != nil {
		if err := s.consumeFn(code); err != nil {
			return err
		}
	}
	s.consumed = append(s.consumed, code)
	return nil
}

type stubGuard struct {
	held map[string]bool
}

func newStubGuard() *stubGuard { return &stubGuard{held: map[string]bool{}} }

func (g *stubGuard) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if g.held[key] {
		return false, nil
	}
	g.held[key] = true
	return true, nil
}

func (g *stubGuard) Del(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(g.held, key)
	}
	return nil
}

func (g *stubGuard) CheckoutKey(parts ...string) string {
	return strings.Join(append([]string{"sf", "checkout"}, parts...), ":")
}

type declineAuthorizer struct{}

func (declineAuthorizer) Authorize(ctx context.Context, input payments.AuthorizeInput) (*payments.Authorization, error) {
	return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment declined").
		WithReason(payments.ReasonDeclined, nil)
}

// timeoutAuthorizer kills the request context before failing, the shape a
// gateway timeout leaves behind.
type timeoutAuthorizer struct {
	cancel context.CancelFunc
}

func (a timeoutAuthorizer) Authorize(ctx context.Context, input payments.AuthorizeInput) (*payments.Authorization, error) {
	a.cancel()
	return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, context.DeadlineExceeded, "payment gateway timeout")
}

type checkoutFixture struct {
	db       *gorm.DB
	cartRepo *stubCartRepo
	coupons  *stubCoupons
	guard    *stubGuard
	userID   uuid.UUID
	variant  uuid.UUID
	view     *cart.View
}

func newFixture(t *testing.T, availableQty, wantQty int) *checkoutFixture {
	t.Helper()

	dsn := "file:checkout_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(
		&models.InventoryItem{},
		&models.StockReservation{},
		&models.Order{},
		&models.OrderItem{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	variantID := uuid.New()
	if err := db.Create(&models.InventoryItem{VariantID: variantID, AvailableQty: availableQty}).Error; err != nil {
		t.Fatalf("seed inventory: %v", err)
	}

	userID := uuid.New()
	record := &models.Cart{
		ID:       uuid.New(),
		UserID:   userID,
		Status:   enums.CartStatusActive,
		Currency: enums.CurrencyUSD,
		Items: []models.CartItem{
			{ID: uuid.New(), VariantID: variantID, Quantity: wantQty},
		},
	}

	unit := int64(4500)
	view := &cart.View{
		Cart: record,
		Lines: []cart.PricedLine{
			{
				VariantID:         variantID,
				SKU:               "SKU-1",
				Name:              "Widget",
				Quantity:          wantQty,
				UnitPriceCents:    unit,
				LineSubtotalCents: unit * int64(wantQty),
			},
		},
	}
	view.Totals.SubtotalCents = unit * int64(wantQty)
	view.Totals.TotalCents = view.Totals.SubtotalCents

	return &checkoutFixture{
		db:       db,
		cartRepo: &stubCartRepo{record: record},
		coupons:  &stubCoupons{},
		guard:    newStubGuard(),
		userID:   userID,
		variant:  variantID,
		view:     view,
	}
}

func (f *checkoutFixture) service(t *testing.T, authorizer payments.Authorizer, cfg config.CheckoutConfig) Service {
	t.Helper()
	if cfg.ReserveAttempts == 0 {
		cfg.ReserveAttempts = 3
	}
	if cfg.InflightTTL == 0 {
		cfg.InflightTTL = 30 * time.Second
	}
	svc, err := NewService(
		&testClient{db: f.db},
		f.cartRepo,
		&stubPricer{view: f.view},
		f.coupons,
		stubAddresses{},
		orders.NewRepository(f.db),
		authorizer,
		f.guard,
		nil,
		nil,
		cfg,
	)
	if err != nil {
		t.Fatalf("build service: %v", err)
	}
	return svc
}

func (f *checkoutFixture) inventory(t *testing.T) models.InventoryItem {
	t.Helper()
	var item models.InventoryItem
	if err := f.db.First(&item, "variant_id = ?", f.variant).Error; err != nil {
		t.Fatalf("load inventory: %v", err)
	}
	return item
}

func TestExecuteCommitsOrder(t *testing.T) {
	t.Parallel()

	fixture := newFixture(t, 5, 2)
	svc := fixture.service(t, payments.StubAuthorizer{}, config.CheckoutConfig{})

	order, err := svc.Execute(context.Background(), fixture.userID, Input{
		IdempotencyKey:    "attempt-1",
		ShippingAddressID: uuid.New(),
	})
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}

	if order.Status != enums.OrderStatusConfirmed {
		t.Fatalf("status = %s, want confirmed", order.Status)
	}
	if order.TotalCents != 9000 || order.SubtotalCents != 9000 {
		t.Fatalf("unexpected amounts: %+v", order)
	}
	if len(order.Items) != 1 || order.Items[0].Quantity != 2 {
		t.Fatalf("unexpected items: %+v", order.Items)
	}
	if order.PaymentRef == "" {
		t.Fatal("expected payment ref")
	}
	if !strings.HasPrefix(order.OrderNumber, "SF-") {
		t.Fatalf("order number = %q", order.OrderNumber)
	}
	if !fixture.cartRepo.converted {
		t.Fatal("cart was not converted")
	}

	inv := fixture.inventory(t)
	if inv.AvailableQty != 3 || inv.ReservedQty != 0 {
		t.Fatalf("unexpected inventory: %+v", inv)
	}

	var journal models.StockReservation
	if err := fixture.db.First(&journal, "attempt_key = ?", "attempt-1").Error; err != nil {
		t.Fatalf("load journal: %v", err)
	}
	if journal.Status != enums.ReservationStatusCommitted {
		t.Fatalf("journal status = %s, want committed", journal.Status)
	}
}

func TestExecuteInsufficientStock(t *testing.T) {
	t.Parallel()

	fixture := newFixture(t, 1, 2)
	svc := fixture.service(t, payments.StubAuthorizer{}, config.CheckoutConfig{})

	_, err := svc.Execute(context.Background(), fixture.userID, Input{
		IdempotencyKey:    "attempt-1",
		ShippingAddressID: uuid.New(),
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}

	// The failed hold rolled back; nothing stays reserved.
	inv := fixture.inventory(t)
	if inv.AvailableQty != 1 || inv.ReservedQty != 0 {
		t.Fatalf("unexpected inventory: %+v", inv)
	}

	var count int64
	if err := fixture.db.Model(&models.Order{}).Count(&count).Error; err != nil {
		t.Fatalf("count orders: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no orders, got %d", count)
	}
}

func TestExecuteOversellSecondAttemptFails(t *testing.T) {
	t.Parallel()

	fixture := newFixture(t, 1, 1)
	svc := fixture.service(t, payments.StubAuthorizer{}, config.CheckoutConfig{})

	if _, err := svc.Execute(context.Background(), fixture.userID, Input{
		IdempotencyKey:    "attempt-1",
		ShippingAddressID: uuid.New(),
	}); err != nil {
		t.Fatalf("first Execute error: %v", err)
	}

	// Reset cart state to simulate a second buyer chasing the same unit.
	fixture.cartRepo.record.Status = enums.CartStatusActive
	fixture.cartRepo.record.UserID = fixture.userID

	_, err := svc.Execute(context.Background(), fixture.userID, Input{
		IdempotencyKey:    "attempt-2",
		ShippingAddressID: uuid.New(),
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected insufficient stock, got %v", err)
	}

	inv := fixture.inventory(t)
	if inv.AvailableQty != 0 || inv.ReservedQty != 0 {
		t.Fatalf("unit sold twice: %+v", inv)
	}
}

func TestExecuteDeclineReleasesStock(t *testing.T) {
	t.Parallel()

	fixture := newFixture(t, 5, 2)
	svc := fixture.service(t, declineAuthorizer{}, config.CheckoutConfig{})

	_, err := svc.Execute(context.Background(), fixture.userID, Input{
		IdempotencyKey:    "attempt-1",
		ShippingAddressID: uuid.New(),
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected decline error, got %v", err)
	}

	inv := fixture.inventory(t)
	if inv.AvailableQty != 5 || inv.ReservedQty != 0 {
		t.Fatalf("stock not released after decline: %+v", inv)
	}

	var journal models.StockReservation
	if err := fixture.db.First(&journal, "attempt_key = ?", "attempt-1").Error; err != nil {
		t.Fatalf("load journal: %v", err)
	}
	if journal.Status != enums.ReservationStatusReleased {
		t.Fatalf("journal status = %s, want released", journal.Status)
	}
}

func TestExecuteReleasesStockAfterContextCancel(t *testing.T) {
	t.Parallel()

	fixture := newFixture(t, 5, 2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc := fixture.service(t, timeoutAuthorizer{cancel: cancel}, config.CheckoutConfig{})

	_, err := svc.Execute(ctx, fixture.userID, Input{
		IdempotencyKey:    "attempt-1",
		ShippingAddressID: uuid.New(),
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeDependency {
		t.Fatalf("expected dependency error, got %v", err)
	}

	// The caller is gone, but the reservation must still be undone.
	inv := fixture.inventory(t)
	if inv.AvailableQty != 5 || inv.ReservedQty != 0 {
		t.Fatalf("stock not released after cancelled request: %+v", inv)
	}

	var journal models.StockReservation
	if err := fixture.db.First(&journal, "attempt_key = ?", "attempt-1").Error; err != nil {
		t.Fatalf("load journal: %v", err)
	}
	if journal.Status != enums.ReservationStatusReleased {
		t.Fatalf("journal status = %s, want released", journal.Status)
	}
}

func TestExecuteReplayReturnsOriginalOrder(t *testing.T) {
	t.Parallel()

	fixture := newFixture(t, 5, 2)
	svc := fixture.service(t, payments.StubAuthorizer{}, config.CheckoutConfig{})

	first, err := svc.Execute(context.Background(), fixture.userID, Input{
		IdempotencyKey:    "attempt-1",
		ShippingAddressID: uuid.New(),
	})
	if err != nil {
		t.Fatalf("first Execute error: %v", err)
	}

	second, err := svc.Execute(context.Background(), fixture.userID, Input{
		IdempotencyKey:    "attempt-1",
		ShippingAddressID: uuid.New(),
	})
	if err != nil {
		t.Fatalf("replay Execute error: %v", err)
	}

	if second.ID != first.ID {
		t.Fatalf("replay created a new order: %s vs %s", second.ID, first.ID)
	}

	// No extra stock was touched by the replay.
	inv := fixture.inventory(t)
	if inv.AvailableQty != 3 || inv.ReservedQty != 0 {
		t.Fatalf("unexpected inventory after replay: %+v", inv)
	}
}

func TestExecuteReplayByOtherUserRejected(t *testing.T) {
	t.Parallel()

	fixture := newFixture(t, 5, 2)
	svc := fixture.service(t, payments.StubAuthorizer{}, config.CheckoutConfig{})

	if _, err := svc.Execute(context.Background(), fixture.userID, Input{
		IdempotencyKey:    "attempt-1",
		ShippingAddressID: uuid.New(),
	}); err != nil {
		t.Fatalf("Execute error: %v", err)
	}

	_, err := svc.Execute(context.Background(), uuid.New(), Input{
		IdempotencyKey:    "attempt-1",
		ShippingAddressID: uuid.New(),
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeIdempotency {
		t.Fatalf("expected idempotency error, got %v", err)
	}
}

func TestExecuteInFlightGuard(t *testing.T) {
	t.Parallel()

	fixture := newFixture(t, 5, 2)
	svc := fixture.service(t, payments.StubAuthorizer{}, config.CheckoutConfig{})

	fixture.guard.held["sf:checkout:inflight:attempt-1"] = true

	_, err := svc.Execute(context.Background(), fixture.userID, Input{
		IdempotencyKey:    "attempt-1",
		ShippingAddressID: uuid.New(),
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestExecuteEmptyCart(t *testing.T) {
	t.Parallel()

	fixture := newFixture(t, 5, 2)
	fixture.cartRepo.record.Items = nil
	svc := fixture.service(t, payments.StubAuthorizer{}, config.CheckoutConfig{})

	_, err := svc.Execute(context.Background(), fixture.userID, Input{
		IdempotencyKey:    "attempt-1",
		ShippingAddressID: uuid.New(),
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestExecuteCouponExhaustedAtCommit(t *testing.T) {
	t.Parallel()

	fixture := newFixture(t, 5, 2)
	code := "SAVE10"
	fixture.cartRepo.record.CouponCode = &code
	fixture.view.Totals.DiscountCents = 900
	fixture.view.Totals.TotalCents = fixture.view.Totals.SubtotalCents - 900
	fixture.coupons.consumeFn = func(string) error {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "coupon usage limit reached").
			WithReason(coupons.ReasonUsageLimitReached, map[string]any{"code": code})
	}
	svc := fixture.service(t, payments.StubAuthorizer{}, config.CheckoutConfig{})

	_, err := svc.Execute(context.Background(), fixture.userID, Input{
		IdempotencyKey:    "attempt-1",
		ShippingAddressID: uuid.New(),
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}

	// Whole commit rolled back and the hold was released.
	inv := fixture.inventory(t)
	if inv.AvailableQty != 5 || inv.ReservedQty != 0 {
		t.Fatalf("unexpected inventory: %+v", inv)
	}
	var count int64
	if err := fixture.db.Model(&models.Order{}).Count(&count).Error; err != nil {
		t.Fatalf("count orders: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no orders, got %d", count)
	}
}

func TestExecuteStrictCouponRejectsStale(t *testing.T) {
	t.Parallel()

	fixture := newFixture(t, 5, 2)
	code := "SAVE10"
	fixture.cartRepo.record.CouponCode = &code
	fixture.view.CouponReason = coupons.ReasonExpired
	svc := fixture.service(t, payments.StubAuthorizer{}, config.CheckoutConfig{StrictCoupons: true})

	_, err := svc.Execute(context.Background(), fixture.userID, Input{
		IdempotencyKey:    "attempt-1",
		ShippingAddressID: uuid.New(),
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestExecuteLenientCouponDropsDiscount(t *testing.T) {
	t.Parallel()

	fixture := newFixture(t, 5, 2)
	code := "SAVE10"
	fixture.cartRepo.record.CouponCode = &code
	fixture.view.CouponReason = coupons.ReasonExpired
	svc := fixture.service(t, payments.StubAuthorizer{}, config.CheckoutConfig{StrictCoupons: false})

	order, err := svc.Execute(context.Background(), fixture.userID, Input{
		IdempotencyKey:    "attempt-1",
		ShippingAddressID: uuid.New(),
	})
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}

	if order.CouponCode != nil {
		t.Fatalf("stale coupon leaked onto order: %v", *order.CouponCode)
	}
	if len(fixture.coupons.consumed) != 0 {
		t.Fatalf("stale coupon usage consumed: %v", fixture.coupons.consumed)
	}
}
