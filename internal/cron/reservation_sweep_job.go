package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/brightline-dev/storefront-backend/pkg/logger"
)

const defaultReservationTTL = 15 * time.Minute

type reservationSweeper interface {
	ReleaseExpired(ctx context.Context, olderThan time.Time) (int, error)
}

// ReservationSweepJobParams configure the reservation sweep.
type ReservationSweepJobParams struct {
	Logger    *logger.Logger
	Inventory reservationSweeper
	TTL       time.Duration
}

// NewReservationSweepJob returns the job that releases stock held by
// checkout attempts that crashed between reserve and commit.
func NewReservationSweepJob(params ReservationSweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Inventory == nil {
		return nil, fmt.Errorf("inventory service required")
	}
	ttl := params.TTL
	if ttl <= 0 {
		ttl = defaultReservationTTL
	}
	return &reservationSweepJob{
		logg:      params.Logger,
		inventory: params.Inventory,
		ttl:       ttl,
		now:       time.Now,
	}, nil
}

type reservationSweepJob struct {
	logg      *logger.Logger
	inventory reservationSweeper
	ttl       time.Duration
	now       func() time.Time
}

func (j *reservationSweepJob) Name() string { return "reservation-sweep" }

func (j *reservationSweepJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.ttl)
	swept, err := j.inventory.ReleaseExpired(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("reservation sweep: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":         cutoff,
		"attempts_swept": swept,
	})
	j.logg.Info(logCtx, "reservation sweep complete")
	return nil
}
