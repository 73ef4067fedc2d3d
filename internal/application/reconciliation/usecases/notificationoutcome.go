package usecases

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/storesync/storesync/internal/domain/delivery"
	"github.com/storesync/storesync/internal/domain/subscription"
	vo "github.com/storesync/storesync/internal/domain/subscription/valueobjects"
	"github.com/storesync/storesync/internal/infrastructure/metrics"
	apperrors "github.com/storesync/storesync/internal/shared/errors"
	"github.com/storesync/storesync/internal/shared/logger"
)

const maxRecordedErrorLen = 990

// NotificationResult is what a webhook delivery came to. Webhooks answer
// 200 for every result; Err carries the reason for rejected and failed
// deliveries.
type NotificationResult struct {
	Outcome        delivery.Outcome
	NotificationID string
	Kind           vo.EventKind
	Err            error
}

// classifyReconcileError maps a reconciliation error onto a delivery
// outcome. Rejected deliveries will never succeed on redelivery; failed
// ones may.
func classifyReconcileError(err error) delivery.Outcome {
	switch {
	case err == nil:
		return delivery.OutcomeApplied
	case errors.Is(err, subscription.ErrTransitionNotAllowed),
		errors.Is(err, subscription.ErrUnknownEventKind),
		apperrors.IsUnknownEventError(err):
		return delivery.OutcomeIgnored
	case apperrors.IsMalformedPayload(err),
		apperrors.IsVerificationError(err),
		apperrors.IsValidationError(err),
		apperrors.IsPlanNotFoundError(err),
		apperrors.IsNotFoundError(err),
		apperrors.IsStoreRejection(err):
		return delivery.OutcomeRejected
	default:
		return delivery.OutcomeFailed
	}
}

// verificationOutcome maps a failed signature check. A key set that could
// not be fetched in time is retryable; anything else is not.
func verificationOutcome(err error) delivery.Outcome {
	if apperrors.IsHistoryFetchError(err) {
		return delivery.OutcomeFailed
	}
	return delivery.OutcomeRejected
}

func outcomeOf(res *ReconcileResult) delivery.Outcome {
	switch {
	case res == nil, res.Ignored:
		return delivery.OutcomeIgnored
	case res.Outcome.Duplicate:
		return delivery.OutcomeDuplicate
	default:
		return delivery.OutcomeApplied
	}
}

// deliveryLog finishes a delivery: the audit row, the metric and the log
// line all come from here.
type deliveryLog struct {
	repo     delivery.Repository
	claimer  DeliveryClaimer
	platform vo.DeviceType
	logger   logger.Interface
}

func (l *deliveryLog) claim(ctx context.Context, id string) bool {
	if l.claimer == nil || id == "" {
		return true
	}
	return l.claimer.Claim(ctx, l.platform.String(), id)
}

func (l *deliveryLog) finish(ctx context.Context, rec *delivery.Record, res *NotificationResult, payload any) {
	rec.Platform = l.platform
	rec.NotificationID = res.NotificationID
	rec.Outcome = res.Outcome
	if res.Err != nil {
		msg := res.Err.Error()
		if len(msg) > maxRecordedErrorLen {
			msg = msg[:maxRecordedErrorLen]
		}
		rec.Error = msg
	}
	if payload != nil {
		if raw, err := json.Marshal(payload); err == nil {
			rec.Payload = raw
		}
	}

	metrics.NotificationsTotal.WithLabelValues(l.platform.String(), string(res.Outcome)).Inc()

	fields := []any{
		"notification_id", res.NotificationID,
		"type", rec.NotificationType,
		"subtype", rec.Subtype,
		"kind", res.Kind,
		"outcome", res.Outcome,
	}
	switch res.Outcome {
	case delivery.OutcomeFailed:
		l.logger.Errorw("notification acknowledged but not applied", append(fields, "error", res.Err)...)
		// let a redelivery try again
		if l.claimer != nil && res.NotificationID != "" {
			l.claimer.Release(ctx, l.platform.String(), res.NotificationID)
		}
	case delivery.OutcomeRejected:
		l.logger.Warnw("notification rejected", append(fields, "error", res.Err)...)
	default:
		l.logger.Infow("notification processed", fields...)
	}

	if err := l.repo.Record(ctx, rec); err != nil {
		l.logger.Errorw("failed to record notification", "notification_id", res.NotificationID, "error", err)
	}
}
