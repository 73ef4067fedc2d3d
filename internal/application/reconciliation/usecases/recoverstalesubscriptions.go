package usecases

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/storesync/storesync/internal/domain/subscription"
	"github.com/storesync/storesync/internal/infrastructure/metrics"
	"github.com/storesync/storesync/internal/shared/biztime"
	"github.com/storesync/storesync/internal/shared/logger"
)

const defaultRecoveryBatchSize = 100

// RecoverStaleSubscriptionsUseCase is the periodic sweep over live records
// whose period ended more than grace ago without a notification moving
// them on.
type RecoverStaleSubscriptionsUseCase struct {
	subscriptionRepo subscription.Repository
	recoverer        *RecoverSubscriptionUseCase
	grace            time.Duration
	batchSize        int
	logger           logger.Interface
}

func NewRecoverStaleSubscriptionsUseCase(
	subscriptionRepo subscription.Repository,
	recoverer *RecoverSubscriptionUseCase,
	grace time.Duration,
	batchSize int,
	logger logger.Interface,
) *RecoverStaleSubscriptionsUseCase {
	if batchSize <= 0 {
		batchSize = defaultRecoveryBatchSize
	}
	return &RecoverStaleSubscriptionsUseCase{
		subscriptionRepo: subscriptionRepo,
		recoverer:        recoverer,
		grace:            grace,
		batchSize:        batchSize,
		logger:           logger,
	}
}

// Execute processes one batch and returns the number of records whose
// state changed. Per-record failures are logged and joined into the error;
// they do not stop the batch.
func (uc *RecoverStaleSubscriptionsUseCase) Execute(ctx context.Context) (int, error) {
	cutoff := biztime.NowUTC().Add(-uc.grace)
	stale, err := uc.subscriptionRepo.ListStale(ctx, cutoff, uc.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale subscriptions: %w", err)
	}
	if len(stale) == 0 {
		return 0, nil
	}

	uc.logger.Infow("found stale subscriptions to recover", "count", len(stale), "cutoff", cutoff)

	var (
		changed int
		errs    []error
	)
	for _, sub := range stale {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}

		res, err := uc.recoverer.recover(ctx, sub)
		if err != nil {
			metrics.RecoverySweepRecords.WithLabelValues("failed").Inc()
			uc.logger.Errorw("failed to recover subscription",
				"user_id", sub.UserID(),
				"environment", sub.Environment(),
				"platform", sub.DeviceType(),
				"error", err,
			)
			errs = append(errs, fmt.Errorf("user %d (%s): %w", sub.UserID(), sub.Environment(), err))
			continue
		}
		if !res.Applied {
			metrics.RecoverySweepRecords.WithLabelValues("unchanged").Inc()
			continue
		}

		changed++
		metrics.RecoverySweepRecords.WithLabelValues("changed").Inc()
		uc.logger.Infow("subscription recovered",
			"user_id", sub.UserID(),
			"environment", sub.Environment(),
			"kind", res.Kind,
			"previous_status", res.PreviousStatus,
			"status", res.Status,
		)
	}

	return changed, errors.Join(errs...)
}
