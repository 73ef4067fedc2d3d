package usecases

import (
	"context"
	"fmt"

	"github.com/storesync/storesync/internal/domain/ledger"
	"github.com/storesync/storesync/internal/domain/subscription"
	"github.com/storesync/storesync/internal/infrastructure/metrics"
	apperrors "github.com/storesync/storesync/internal/shared/errors"
	"github.com/storesync/storesync/internal/shared/logger"
)

// LedgerWriter turns the ledger action of an applied event into ledger rows.
// It must run in the same transaction as the subscription write.
type LedgerWriter struct {
	repo   ledger.Repository
	logger logger.Interface
}

func NewLedgerWriter(repo ledger.Repository, logger logger.Interface) *LedgerWriter {
	return &LedgerWriter{repo: repo, logger: logger}
}

func (w *LedgerWriter) Write(ctx context.Context, sub *subscription.Subscription, evt subscription.Event, action subscription.LedgerAction) error {
	switch action {
	case subscription.LedgerNone:
		return nil
	case subscription.LedgerAppend:
		return w.append(ctx, sub, evt)
	case subscription.LedgerRefund:
		return w.refund(ctx, sub, evt)
	default:
		return fmt.Errorf("unknown ledger action %d", action)
	}
}

func (w *LedgerWriter) params(sub *subscription.Subscription, evt subscription.Event) ledger.EntryParams {
	return ledger.EntryParams{
		TransactionID: evt.TransactionID,
		UserID:        sub.UserID(),
		PlanID:        sub.PlanID(),
		Platform:      evt.Platform,
		AnchorID:      evt.AnchorID,
		Environment:   evt.Environment,
		Amount:        evt.AmountMinor,
		Currency:      evt.Currency,
		PaidAt:        evt.PurchasedAt,
	}
}

func (w *LedgerWriter) append(ctx context.Context, sub *subscription.Subscription, evt subscription.Event) error {
	entry, err := ledger.NewEntry(w.params(sub, evt))
	if err != nil {
		return fmt.Errorf("failed to build ledger entry: %w", err)
	}

	err = w.repo.Append(ctx, entry)
	if apperrors.IsDuplicateTransaction(err) {
		metrics.LedgerWritesTotal.WithLabelValues("append", "duplicate").Inc()
		w.logger.Debugw("ledger entry already recorded", "transaction_id", evt.TransactionID)
		return nil
	}
	if err != nil {
		metrics.LedgerWritesTotal.WithLabelValues("append", "error").Inc()
		return err
	}

	metrics.LedgerWritesTotal.WithLabelValues("append", "ok").Inc()
	w.logger.Infow("ledger entry appended",
		"transaction_id", evt.TransactionID,
		"user_id", sub.UserID(),
		"plan_id", sub.PlanID(),
		"amount", evt.AmountMinor,
		"currency", evt.Currency,
	)
	return nil
}

// refund flips the entry of the transaction to refunded. A refund that
// arrives before its purchase leaves a refunded row behind, which the later
// purchase append then sees as a duplicate.
func (w *LedgerWriter) refund(ctx context.Context, sub *subscription.Subscription, evt subscription.Event) error {
	if evt.TransactionID == "" {
		w.logger.Warnw("refund without transaction id, ledger untouched",
			"user_id", sub.UserID(),
			"anchor_id", evt.AnchorID,
		)
		return nil
	}

	found, err := w.repo.MarkRefunded(ctx, evt.TransactionID)
	if err != nil {
		metrics.LedgerWritesTotal.WithLabelValues("refund", "error").Inc()
		return err
	}
	if found {
		metrics.LedgerWritesTotal.WithLabelValues("refund", "ok").Inc()
		w.logger.Infow("ledger entry refunded", "transaction_id", evt.TransactionID, "user_id", sub.UserID())
		return nil
	}

	entry, err := ledger.NewRefundedEntry(w.params(sub, evt))
	if err != nil {
		return fmt.Errorf("failed to build refunded ledger entry: %w", err)
	}
	err = w.repo.Append(ctx, entry)
	if apperrors.IsDuplicateTransaction(err) {
		// the purchase row landed in between
		if _, err := w.repo.MarkRefunded(ctx, evt.TransactionID); err != nil {
			return err
		}
		err = nil
	}
	if err != nil {
		metrics.LedgerWritesTotal.WithLabelValues("refund", "error").Inc()
		return err
	}

	metrics.LedgerWritesTotal.WithLabelValues("refund", "inserted").Inc()
	w.logger.Warnw("refund for unknown transaction recorded",
		"transaction_id", evt.TransactionID,
		"user_id", sub.UserID(),
	)
	return nil
}
