package orders

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/brightline-dev/storefront-backend/pkg/db/models"
	"github.com/brightline-dev/storefront-backend/pkg/enums"
	"github.com/brightline-dev/storefront-backend/pkg/types"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:orders_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Order{}, &models.OrderItem{}))
	return db
}

func buildOrder(userID uuid.UUID, seq int) *models.Order {
	return &models.Order{
		UserID:         userID,
		OrderNumber:    fmt.Sprintf("SF-20250815-%08d", seq),
		IdempotencyKey: fmt.Sprintf("attempt-%s-%d", userID, seq),
		Status:         enums.OrderStatusConfirmed,
		Currency:       enums.CurrencyUSD,
		ShippingAddress: types.AddressSnapshot{
			FullName:   "Test Buyer",
			Line1:      "1 Main St",
			City:       "Springfield",
			State:      "IL",
			PostalCode: "62704",
			Country:    "US",
		},
		PaymentRef:    fmt.Sprintf("pay-%d", seq),
		SubtotalCents: 10000,
		TotalCents:    10000,
		Items: []models.OrderItem{
			{VariantID: uuid.New(), SKU: "SKU-1", Name: "Widget", Quantity: 2, UnitPriceCents: 5000, LineSubtotalCents: 10000},
		},
	}
}

func TestRepositoryCreateAndFetch(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	userID := uuid.New()

	order := buildOrder(userID, 1)
	require.NoError(t, repo.Create(ctx, order))
	require.NotEqual(t, uuid.Nil, order.ID)

	byKey, err := repo.GetByIdempotencyKey(ctx, order.IdempotencyKey)
	require.NoError(t, err)
	require.Equal(t, order.ID, byKey.ID)
	require.Len(t, byKey.Items, 1)
	require.Equal(t, int64(5000), byKey.Items[0].UnitPriceCents)

	byID, err := repo.GetByID(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, order.OrderNumber, byID.OrderNumber)
	require.Equal(t, "US", byID.ShippingAddress.Country)
}

func TestRepositoryDuplicateIdempotencyKey(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	userID := uuid.New()

	first := buildOrder(userID, 1)
	require.NoError(t, repo.Create(ctx, first))

	dup := buildOrder(userID, 2)
	dup.IdempotencyKey = first.IdempotencyKey
	require.Error(t, repo.Create(ctx, dup))
}

func TestRepositoryListByUserID(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	userID := uuid.New()

	for i := 1; i <= 3; i++ {
		require.NoError(t, repo.Create(ctx, buildOrder(userID, i)))
	}
	require.NoError(t, repo.Create(ctx, buildOrder(uuid.New(), 4)))

	all, err := repo.ListByUserID(ctx, userID, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	for _, order := range all {
		require.Equal(t, userID, order.UserID)
	}

	page, err := repo.ListByUserID(ctx, userID, 2, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)

	rest, err := repo.ListByUserID(ctx, userID, 2, 2)
	require.NoError(t, err)
	require.Len(t, rest, 1)
}
