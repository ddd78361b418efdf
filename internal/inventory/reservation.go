// Package inventory is the stock ledger for checkout. Reservations move
// quantity from available to reserved with conditional updates, so two
// concurrent attempts can never claim the same unit, and every hold is
// journaled as a stock_reservations row for crash recovery.
package inventory

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/brightline-dev/storefront-backend/pkg/db/models"
	"github.com/brightline-dev/storefront-backend/pkg/enums"
	"github.com/brightline-dev/storefront-backend/pkg/errors"
)

const (
	ReasonInsufficientStock = "INSUFFICIENT_STOCK"
	ReasonNotStocked        = "VARIANT_NOT_STOCKED"
)

// Request asks for qty units of a variant to be held.
type Request struct {
	VariantID uuid.UUID
	Qty       int
}

// Result reports the outcome for one requested line.
type Result struct {
	VariantID uuid.UUID
	Qty       int
	Reserved  bool
	Reason    string
}

// AllReserved reports whether every line in the batch was held.
func AllReserved(results []Result) bool {
	for _, result := range results {
		if !result.Reserved {
			return false
		}
	}
	return true
}

// Reserve attempts to hold stock for each request inside the caller's
// transaction. Lines are processed independently; a failed line reports
// its reason and leaves the others' holds in place, so the caller decides
// whether to commit or roll back the batch. Every successful hold writes
// a journal row tagged with attemptKey.
func Reserve(ctx context.Context, tx *gorm.DB, attemptKey string, requests []Request) ([]Result, error) {
	if tx == nil {
		return nil, errors.New(errors.CodeInternal, "transaction handle required")
	}
	if attemptKey == "" {
		return nil, errors.New(errors.CodeValidation, "attempt key is required")
	}
	for _, request := range requests {
		if request.VariantID == uuid.Nil {
			return nil, errors.New(errors.CodeValidation, "variant id is required")
		}
		if request.Qty <= 0 {
			return nil, errors.New(errors.CodeValidation, "reservation quantity must be positive")
		}
	}

	results := make([]Result, 0, len(requests))
	for _, request := range requests {
		result := Result{VariantID: request.VariantID, Qty: request.Qty}

		update := tx.WithContext(ctx).
			Model(&models.InventoryItem{}).
			Where("variant_id = ? AND available_qty >= ?", request.VariantID, request.Qty).
			Updates(map[string]any{
				"available_qty": gorm.Expr("available_qty - ?", request.Qty),
				"reserved_qty":  gorm.Expr("reserved_qty + ?", request.Qty),
			})
		if update.Error != nil {
			return nil, errors.Wrap(errors.CodeInternal, update.Error, "reserving stock")
		}

		if update.RowsAffected == 0 {
			result.Reason = classifyFailure(ctx, tx, request.VariantID)
			results = append(results, result)
			continue
		}

		journal := &models.StockReservation{
			AttemptKey: attemptKey,
			VariantID:  request.VariantID,
			Qty:        request.Qty,
			Status:     enums.ReservationStatusHeld,
		}
		if err := tx.WithContext(ctx).Create(journal).Error; err != nil {
			return nil, errors.Wrap(errors.CodeInternal, err, "journaling reservation")
		}

		result.Reserved = true
		results = append(results, result)
	}
	return results, nil
}

// Release returns all still-held stock for an attempt to the available
// pool. Safe to call more than once; rows already released or committed
// are skipped via the conditional status flip.
func Release(ctx context.Context, tx *gorm.DB, attemptKey string) error {
	return settle(ctx, tx, attemptKey, enums.ReservationStatusReleased)
}

// Commit finalizes all held stock for an attempt: the reserved quantity is
// consumed and the journal rows flip to committed.
func Commit(ctx context.Context, tx *gorm.DB, attemptKey string) error {
	return settle(ctx, tx, attemptKey, enums.ReservationStatusCommitted)
}

func settle(ctx context.Context, tx *gorm.DB, attemptKey string, target enums.ReservationStatus) error {
	if tx == nil {
		return errors.New(errors.CodeInternal, "transaction handle required")
	}
	if attemptKey == "" {
		return errors.New(errors.CodeValidation, "attempt key is required")
	}

	var held []models.StockReservation
	if err := tx.WithContext(ctx).
		Where("attempt_key = ? AND status = ?", attemptKey, enums.ReservationStatusHeld).
		Find(&held).Error; err != nil {
		return errors.Wrap(errors.CodeInternal, err, "loading reservations")
	}

	for _, row := range held {
		if err := settleRow(ctx, tx, row, target); err != nil {
			return err
		}
	}
	return nil
}

func settleRow(ctx context.Context, tx *gorm.DB, row models.StockReservation, target enums.ReservationStatus) error {
	// Flip the journal row first; zero rows affected means another path
	// already settled it and the inventory must not be touched again.
	flip := tx.WithContext(ctx).
		Model(&models.StockReservation{}).
		Where("id = ? AND status = ?", row.ID, enums.ReservationStatusHeld).
		Update("status", target)
	if flip.Error != nil {
		return errors.Wrap(errors.CodeInternal, flip.Error, "settling reservation")
	}
	if flip.RowsAffected == 0 {
		return nil
	}

	updates := map[string]any{
		"reserved_qty": gorm.Expr("reserved_qty - ?", row.Qty),
	}
	if target == enums.ReservationStatusReleased {
		updates["available_qty"] = gorm.Expr("available_qty + ?", row.Qty)
	}
	if err := tx.WithContext(ctx).
		Model(&models.InventoryItem{}).
		Where("variant_id = ?", row.VariantID).
		Updates(updates).Error; err != nil {
		return errors.Wrap(errors.CodeInternal, err, "adjusting inventory")
	}
	return nil
}

func classifyFailure(ctx context.Context, tx *gorm.DB, variantID uuid.UUID) string {
	var count int64
	if err := tx.WithContext(ctx).
		Model(&models.InventoryItem{}).
		Where("variant_id = ?", variantID).
		Count(&count).Error; err != nil || count == 0 {
		return ReasonNotStocked
	}
	return ReasonInsufficientStock
}
