package inventory

import (
	"context"
	stdErrors "errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/brightline-dev/storefront-backend/pkg/db/models"
	"github.com/brightline-dev/storefront-backend/pkg/enums"
	pkgerrors "github.com/brightline-dev/storefront-backend/pkg/errors"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:inventory_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.InventoryItem{}, &models.StockReservation{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func loadInventory(t *testing.T, db *gorm.DB, variantID uuid.UUID) models.InventoryItem {
	t.Helper()
	var item models.InventoryItem
	if err := db.First(&item, "variant_id = ?", variantID).Error; err != nil {
		t.Fatalf("load inventory: %v", err)
	}
	return item
}

func TestReserve(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	variantA := uuid.New()
	variantB := uuid.New()

	for _, item := range []models.InventoryItem{
		{VariantID: variantA, AvailableQty: 5},
		{VariantID: variantB, AvailableQty: 1},
	} {
		if err := db.Create(&item).Error; err != nil {
			t.Fatalf("seed inventory: %v", err)
		}
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		results, terr := Reserve(ctx, tx, "attempt-1", []Request{
			{VariantID: variantA, Qty: 3},
			{VariantID: variantA, Qty: 4},
			{VariantID: variantB, Qty: 1},
		})
		if terr != nil {
			return terr
		}
		if len(results) != 3 {
			t.Fatalf("expected 3 results, got %d", len(results))
		}
		if !results[0].Reserved || results[0].Reason != "" {
			t.Fatalf("expected first reservation to succeed: %+v", results[0])
		}
		if results[1].Reserved || results[1].Reason != ReasonInsufficientStock {
			t.Fatalf("expected second reservation to fail: %+v", results[1])
		}
		if !results[2].Reserved {
			t.Fatalf("expected third reservation to succeed: %+v", results[2])
		}
		if AllReserved(results) {
			t.Fatal("batch with a failed line must not report all reserved")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("reserve transaction: %v", err)
	}

	invA := loadInventory(t, db, variantA)
	invB := loadInventory(t, db, variantB)
	if invA.AvailableQty != 2 || invA.ReservedQty != 3 {
		t.Fatalf("unexpected inventory a state: %+v", invA)
	}
	if invB.AvailableQty != 0 || invB.ReservedQty != 1 {
		t.Fatalf("unexpected inventory b state: %+v", invB)
	}

	var journal []models.StockReservation
	if err := db.Where("attempt_key = ?", "attempt-1").Find(&journal).Error; err != nil {
		t.Fatalf("load journal: %v", err)
	}
	if len(journal) != 2 {
		t.Fatalf("expected 2 journal rows, got %d", len(journal))
	}
}

var errShortStock = stdErrors.New("short stock")

func TestReserveConcurrentNeverOversells(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("raw db: %v", err)
	}
	// One connection keeps sqlite from throwing busy errors at the racing
	// writers; the conditional decrement is still what decides who wins.
	sqlDB.SetMaxOpenConns(1)

	ctx := context.Background()
	variant := uuid.New()
	const stock = 3
	const attempts = 10
	if err := db.Create(&models.InventoryItem{VariantID: variant, AvailableQty: stock}).Error; err != nil {
		t.Fatalf("seed inventory: %v", err)
	}

	var wg sync.WaitGroup
	var wins atomic.Int32
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := fmt.Sprintf("attempt-%d", n)
			err := db.Transaction(func(tx *gorm.DB) error {
				results, terr := Reserve(ctx, tx, key, []Request{{VariantID: variant, Qty: 1}})
				if terr != nil {
					return terr
				}
				if !AllReserved(results) {
					return errShortStock
				}
				return nil
			})
			switch {
			case err == nil:
				wins.Add(1)
			case !stdErrors.Is(err, errShortStock):
				t.Errorf("attempt %d: %v", n, err)
			}
		}(i)
	}
	wg.Wait()

	if got := wins.Load(); got != stock {
		t.Fatalf("successful reservations = %d, want %d", got, stock)
	}

	inv := loadInventory(t, db, variant)
	if inv.AvailableQty != 0 || inv.ReservedQty != stock {
		t.Fatalf("unexpected inventory after race: %+v", inv)
	}

	var held int64
	if err := db.Model(&models.StockReservation{}).
		Where("status = ?", enums.ReservationStatusHeld).
		Count(&held).Error; err != nil {
		t.Fatalf("count journal: %v", err)
	}
	if held != stock {
		t.Fatalf("held journal rows = %d, want %d", held, stock)
	}
}

func TestReserveUnknownVariant(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	results, err := Reserve(context.Background(), db, "attempt-1", []Request{
		{VariantID: uuid.New(), Qty: 1},
	})
	if err != nil {
		t.Fatalf("Reserve error: %v", err)
	}
	if results[0].Reserved || results[0].Reason != ReasonNotStocked {
		t.Fatalf("expected not-stocked failure: %+v", results[0])
	}
}

func TestReserveInvalidQty(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	_, err := Reserve(context.Background(), db, "attempt-1", []Request{
		{VariantID: uuid.New(), Qty: 0},
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestReleaseRestoresStock(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	variant := uuid.New()
	if err := db.Create(&models.InventoryItem{VariantID: variant, AvailableQty: 5}).Error; err != nil {
		t.Fatalf("seed inventory: %v", err)
	}

	if _, err := Reserve(ctx, db, "attempt-1", []Request{{VariantID: variant, Qty: 3}}); err != nil {
		t.Fatalf("Reserve error: %v", err)
	}
	if err := Release(ctx, db, "attempt-1"); err != nil {
		t.Fatalf("Release error: %v", err)
	}

	inv := loadInventory(t, db, variant)
	if inv.AvailableQty != 5 || inv.ReservedQty != 0 {
		t.Fatalf("unexpected inventory after release: %+v", inv)
	}

	// A second release is a no-op.
	if err := Release(ctx, db, "attempt-1"); err != nil {
		t.Fatalf("second Release error: %v", err)
	}
	inv = loadInventory(t, db, variant)
	if inv.AvailableQty != 5 || inv.ReservedQty != 0 {
		t.Fatalf("release must be idempotent: %+v", inv)
	}
}

func TestCommitConsumesStock(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	variant := uuid.New()
	if err := db.Create(&models.InventoryItem{VariantID: variant, AvailableQty: 5}).Error; err != nil {
		t.Fatalf("seed inventory: %v", err)
	}

	if _, err := Reserve(ctx, db, "attempt-1", []Request{{VariantID: variant, Qty: 2}}); err != nil {
		t.Fatalf("Reserve error: %v", err)
	}
	if err := Commit(ctx, db, "attempt-1"); err != nil {
		t.Fatalf("Commit error: %v", err)
	}

	inv := loadInventory(t, db, variant)
	if inv.AvailableQty != 3 || inv.ReservedQty != 0 {
		t.Fatalf("unexpected inventory after commit: %+v", inv)
	}

	var row models.StockReservation
	if err := db.First(&row, "attempt_key = ?", "attempt-1").Error; err != nil {
		t.Fatalf("load journal: %v", err)
	}
	if row.Status != enums.ReservationStatusCommitted {
		t.Fatalf("status = %s, want committed", row.Status)
	}

	// Releasing after commit must not resurrect stock.
	if err := Release(ctx, db, "attempt-1"); err != nil {
		t.Fatalf("Release error: %v", err)
	}
	inv = loadInventory(t, db, variant)
	if inv.AvailableQty != 3 || inv.ReservedQty != 0 {
		t.Fatalf("release after commit must be a no-op: %+v", inv)
	}
}

type fakeClient struct {
	db *gorm.DB
}

func (f *fakeClient) DB() *gorm.DB { return f.db }

func (f *fakeClient) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return f.db.Transaction(fn)
}

func TestServiceReleaseExpired(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	variant := uuid.New()
	if err := db.Create(&models.InventoryItem{VariantID: variant, AvailableQty: 5}).Error; err != nil {
		t.Fatalf("seed inventory: %v", err)
	}

	if _, err := Reserve(ctx, db, "stale-attempt", []Request{{VariantID: variant, Qty: 2}}); err != nil {
		t.Fatalf("Reserve error: %v", err)
	}
	if _, err := Reserve(ctx, db, "fresh-attempt", []Request{{VariantID: variant, Qty: 1}}); err != nil {
		t.Fatalf("Reserve error: %v", err)
	}

	// Age the first attempt past the cutoff.
	staleAt := time.Now().Add(-time.Hour)
	if err := db.Model(&models.StockReservation{}).
		Where("attempt_key = ?", "stale-attempt").
		Update("created_at", staleAt).Error; err != nil {
		t.Fatalf("age reservation: %v", err)
	}

	svc, err := NewService(&fakeClient{db: db}, nil)
	if err != nil {
		t.Fatalf("NewService error: %v", err)
	}

	swept, err := svc.ReleaseExpired(ctx, time.Now().Add(-30*time.Minute))
	if err != nil {
		t.Fatalf("ReleaseExpired error: %v", err)
	}
	if swept != 1 {
		t.Fatalf("swept = %d, want 1", swept)
	}

	inv := loadInventory(t, db, variant)
	if inv.AvailableQty != 4 || inv.ReservedQty != 1 {
		t.Fatalf("unexpected inventory after sweep: %+v", inv)
	}
}
