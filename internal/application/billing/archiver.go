package billing

import (
	"context"
	"fmt"

	"github.com/arungoks/tankerapp/internal/domain/shared"
	"github.com/arungoks/tankerapp/internal/domain/tanker"
	"github.com/arungoks/tankerapp/internal/infrastructure/cache"
	"go.uber.org/zap"
)

// CycleArchiver closes the open billing cycle: it archives the cycle's tanker
// total and moves the boundary forward, both in one store transaction.
type CycleArchiver struct {
	store  tanker.Store
	locker cache.Locker
	logger *zap.Logger
}

// NewCycleArchiver creates a CycleArchiver. When locker is not nil every
// close runs while holding cache.CycleCloseLockKey.
func NewCycleArchiver(store tanker.Store, locker cache.Locker, logger *zap.Logger) *CycleArchiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CycleArchiver{store: store, locker: locker, logger: logger.Named("archiver")}
}

// Close archives the cycle (current.StartDate, today] and returns it with the
// new boundary.
//
// current must equal the stored boundary, otherwise another close already
// happened and ConcurrencyConflict is returned. today must be after the
// boundary (InvalidState otherwise). On any error nothing is written.
func (a *CycleArchiver) Close(ctx context.Context, current tanker.CycleBoundary, today tanker.Date) (tanker.BillingCycle, tanker.CycleBoundary, error) {
	if today.IsZero() {
		return tanker.BillingCycle{}, current, shared.NewValidationError("close date is required")
	}

	if a.locker != nil {
		release, err := a.locker.Obtain(ctx, cache.CycleCloseLockKey)
		if err != nil {
			return tanker.BillingCycle{}, current, err
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				a.logger.Warn("Failed to release cycle close lock", zap.Error(err))
			}
		}()
	}

	var cycle *tanker.BillingCycle
	next := tanker.CycleBoundary{StartDate: today}
	err := a.store.Transact(ctx, func(tx tanker.Tables) error {
		stored, ok, err := tx.Cycles().Boundary(ctx)
		if err != nil {
			return err
		}
		if ok && stored != current {
			return shared.NewDomainError(shared.CodeConcurrencyConflict,
				fmt.Sprintf("cycle boundary moved from %s to %s", current.StartDate, stored.StartDate))
		}
		if !today.After(current.StartDate) {
			return shared.NewDomainError(shared.CodeInvalidState,
				fmt.Sprintf("nothing to close: %s is not after the last report date %s", today, current.StartDate))
		}

		events, err := tx.TankerEvents().All(ctx)
		if err != nil {
			return err
		}
		total := tanker.TotalTankers(events, current.RangeUntil(today))
		if cycle, err = tanker.NewBillingCycle(current.StartDate, today, total); err != nil {
			return err
		}
		if err := tx.Cycles().Append(ctx, *cycle); err != nil {
			return err
		}
		return tx.Cycles().AdvanceBoundary(ctx, next)
	})
	if err != nil {
		return tanker.BillingCycle{}, current, err
	}

	a.logger.Info("Billing cycle closed",
		zap.String("cycle_id", cycle.ID.String()),
		zap.Stringer("start", cycle.StartDate),
		zap.Stringer("end", cycle.EndDate),
		zap.Int("total_tankers", cycle.TotalTankersSnapshot),
	)
	return *cycle, next, nil
}
