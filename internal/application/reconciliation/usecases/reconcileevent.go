package usecases

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/storesync/storesync/internal/domain/plan"
	"github.com/storesync/storesync/internal/domain/subscription"
	vo "github.com/storesync/storesync/internal/domain/subscription/valueobjects"
	"github.com/storesync/storesync/internal/domain/user"
	"github.com/storesync/storesync/internal/infrastructure/email"
	"github.com/storesync/storesync/internal/infrastructure/metrics"
	"github.com/storesync/storesync/internal/infrastructure/pubsub"
	"github.com/storesync/storesync/internal/shared/biztime"
	"github.com/storesync/storesync/internal/shared/db"
	apperrors "github.com/storesync/storesync/internal/shared/errors"
	"github.com/storesync/storesync/internal/shared/goroutine"
	"github.com/storesync/storesync/internal/shared/logger"
)

const (
	defaultMaxSaveRetries    = 3
	defaultSideEffectTimeout = 10 * time.Second
)

// ReconcileCommand applies one normalized event. UserID is set when the
// caller already knows the user (receipt validation, recovery); otherwise
// the user is correlated from the event.
type ReconcileCommand struct {
	Event  subscription.Event
	UserID uint
}

type ReconcileResult struct {
	Subscription *subscription.Subscription
	Outcome      subscription.Outcome
	// Ignored is true for UNKNOWN events, which are logged and dropped.
	Ignored bool
}

type ReconcileEventUseCase struct {
	subscriptionRepo subscription.Repository
	ledgerWriter     *LedgerWriter
	catalog          plan.Catalog
	users            user.Directory
	txManager        db.Transactor
	publisher        ChangePublisher // optional
	alerter          OperatorAlerter // optional
	maxRetries       int
	logger           logger.Interface
}

func NewReconcileEventUseCase(
	subscriptionRepo subscription.Repository,
	ledgerWriter *LedgerWriter,
	catalog plan.Catalog,
	users user.Directory,
	txManager db.Transactor,
	logger logger.Interface,
) *ReconcileEventUseCase {
	return &ReconcileEventUseCase{
		subscriptionRepo: subscriptionRepo,
		ledgerWriter:     ledgerWriter,
		catalog:          catalog,
		users:            users,
		txManager:        txManager,
		maxRetries:       defaultMaxSaveRetries,
		logger:           logger,
	}
}

// SetPublisher sets the change publisher (optional dependency injection)
func (uc *ReconcileEventUseCase) SetPublisher(p ChangePublisher) {
	uc.publisher = p
}

// SetAlerter sets the operator alerter (optional dependency injection)
func (uc *ReconcileEventUseCase) SetAlerter(a OperatorAlerter) {
	uc.alerter = a
}

func (uc *ReconcileEventUseCase) SetMaxRetries(n int) {
	if n > 0 {
		uc.maxRetries = n
	}
}

func (uc *ReconcileEventUseCase) Execute(ctx context.Context, cmd ReconcileCommand) (*ReconcileResult, error) {
	evt := cmd.Event
	log := uc.logger.With(
		"platform", evt.Platform,
		"kind", evt.Kind,
		"environment", evt.Environment,
		"anchor_id", evt.AnchorID,
		"transaction_id", evt.TransactionID,
	)

	if evt.Kind == vo.EventUnknown {
		metrics.EventsTotal.WithLabelValues(evt.Kind.String(), "ignored").Inc()
		log.Infow("unknown event kind ignored", "notification_id", evt.NotificationID)
		return &ReconcileResult{Ignored: true}, nil
	}
	if err := evt.Validate(); err != nil {
		metrics.EventsTotal.WithLabelValues(evt.Kind.String(), "rejected").Inc()
		return nil, apperrors.NewMalformedPayloadError("invalid reconciliation event", err.Error())
	}

	planID, err := uc.resolvePlan(ctx, evt)
	if err != nil {
		metrics.EventsTotal.WithLabelValues(evt.Kind.String(), "rejected").Inc()
		return nil, err
	}

	userID := cmd.UserID
	if userID == 0 {
		userID, err = uc.correlateUser(ctx, evt)
		if err != nil {
			metrics.EventsTotal.WithLabelValues(evt.Kind.String(), "failed").Inc()
			return nil, err
		}
		if userID == 0 {
			metrics.EventsTotal.WithLabelValues(evt.Kind.String(), "rejected").Inc()
			log.Warnw("no user matches the purchase", "app_account_token", evt.AppAccountToken)
			return nil, apperrors.NewNotFoundError("no user matches the purchase", evt.AnchorID)
		}
	}
	log = log.With("user_id", userID)

	var (
		result  *ReconcileResult
		wasNew  bool
		lastErr error
	)
	for attempt := 1; attempt <= uc.maxRetries; attempt++ {
		result, wasNew, lastErr = uc.applyOnce(ctx, userID, evt, planID)
		if !errors.Is(lastErr, subscription.ErrConcurrentModification) {
			break
		}
		log.Debugw("subscription modified concurrently, retrying", "attempt", attempt)
	}

	if lastErr != nil {
		switch {
		case errors.Is(lastErr, subscription.ErrConcurrentModification):
			metrics.EventsTotal.WithLabelValues(evt.Kind.String(), "failed").Inc()
			log.Errorw("gave up after concurrent modifications", "attempts", uc.maxRetries)
			return nil, apperrors.NewConflictError("subscription modified concurrently", lastErr.Error())
		case errors.Is(lastErr, subscription.ErrTransitionNotAllowed):
			metrics.EventsTotal.WithLabelValues(evt.Kind.String(), "ignored").Inc()
			log.Warnw("event not applicable to current state", "error", lastErr)
			return nil, lastErr
		default:
			metrics.EventsTotal.WithLabelValues(evt.Kind.String(), "failed").Inc()
			log.Errorw("failed to reconcile event", "error", lastErr)
			return nil, lastErr
		}
	}

	if result.Outcome.Duplicate {
		metrics.EventsTotal.WithLabelValues(evt.Kind.String(), "duplicate").Inc()
		log.Infow("event already applied")
		return result, nil
	}

	metrics.EventsTotal.WithLabelValues(evt.Kind.String(), "applied").Inc()
	log.Infow("event applied",
		"previous_status", result.Outcome.PreviousStatus,
		"status", result.Outcome.Status,
		"ledger", result.Outcome.Ledger.String(),
	)

	if wasNew || result.Outcome.StatusChanged() {
		uc.publishChange(ctx, result.Subscription, evt, result.Outcome)
	}
	return result, nil
}

// applyOnce reads, applies and writes inside one transaction. The premium
// flag and the ledger commit together with the record.
func (uc *ReconcileEventUseCase) applyOnce(ctx context.Context, userID uint, evt subscription.Event, planID string) (*ReconcileResult, bool, error) {
	var (
		result *ReconcileResult
		wasNew bool
	)
	err := uc.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		sub, err := uc.subscriptionRepo.Get(ctx, userID, evt.Environment)
		if err != nil {
			return err
		}
		if sub == nil {
			sub, err = subscription.NewSubscription(userID, evt.Platform, evt.Environment)
			if err != nil {
				return err
			}
		}
		wasNew = sub.IsNew()

		out, err := sub.Apply(evt, planID)
		if err != nil {
			return err
		}
		result = &ReconcileResult{Subscription: sub, Outcome: out}
		if out.Duplicate || !out.Changed {
			return nil
		}

		if err := uc.subscriptionRepo.Save(ctx, sub); err != nil {
			return err
		}
		if err := uc.ledgerWriter.Write(ctx, sub, evt, out.Ledger); err != nil {
			return err
		}
		if wasNew || out.PreviousStatus.IsEntitled() != out.Status.IsEntitled() {
			return uc.setPremium(ctx, userID, out.Status.IsEntitled())
		}
		return nil
	})
	return result, wasNew, err
}

func (uc *ReconcileEventUseCase) setPremium(ctx context.Context, userID uint, premium bool) error {
	err := uc.users.SetPremium(ctx, userID, premium)
	if apperrors.IsNotFoundError(err) {
		uc.logger.Warnw("user row missing, premium flag not updated", "user_id", userID)
		return nil
	}
	return err
}

// resolvePlan maps the product id onto a plan. Billing events must resolve;
// other kinds may carry no product id at all.
func (uc *ReconcileEventUseCase) resolvePlan(ctx context.Context, evt subscription.Event) (string, error) {
	if evt.ProductID == "" {
		if evt.Kind.IsBilling() {
			return "", uc.planNotFound(ctx, evt)
		}
		return "", nil
	}
	entry, err := uc.catalog.FindByProductID(ctx, evt.Platform, evt.ProductID)
	if err != nil {
		return "", fmt.Errorf("plan lookup failed: %w", err)
	}
	if entry == nil {
		return "", uc.planNotFound(ctx, evt)
	}
	return entry.PlanID, nil
}

func (uc *ReconcileEventUseCase) planNotFound(ctx context.Context, evt subscription.Event) error {
	metrics.PlanNotFoundTotal.WithLabelValues(evt.Platform.String()).Inc()
	uc.logger.Errorw("no plan for store product, catalog needs attention",
		"platform", evt.Platform,
		"environment", evt.Environment,
		"product_id", evt.ProductID,
		"transaction_id", evt.TransactionID,
	)

	if uc.alerter != nil {
		alert := email.PlanNotFoundAlert{
			Platform:      evt.Platform.String(),
			Environment:   evt.Environment.String(),
			ProductID:     evt.ProductID,
			TransactionID: evt.TransactionID,
			OccurredAt:    biztime.NowUTC(),
		}
		goroutine.SafeGoWithTimeout(ctx, uc.logger, "plan-not-found-alert", defaultSideEffectTimeout, func(ctx context.Context) {
			if err := uc.alerter.SendPlanNotFound(ctx, alert); err != nil {
				uc.logger.Errorw("failed to send plan not found alert", "product_id", alert.ProductID, "error", err)
			}
		})
	}
	return apperrors.NewPlanNotFoundError("no plan for product", evt.ProductID)
}

// correlateUser finds the user an event belongs to: first by the record
// already holding the anchor, then by the anchor the purchase replaced,
// then by the account token the app attached to the purchase.
func (uc *ReconcileEventUseCase) correlateUser(ctx context.Context, evt subscription.Event) (uint, error) {
	for _, anchor := range []string{evt.AnchorID, evt.LinkedAnchorID} {
		if anchor == "" {
			continue
		}
		sub, err := uc.subscriptionRepo.FindByAnchor(ctx, evt.Platform, anchor, evt.Environment)
		if err != nil {
			return 0, err
		}
		if sub != nil {
			return sub.UserID(), nil
		}
	}

	if evt.AppAccountToken == "" {
		return 0, nil
	}
	userID, err := uc.users.ResolveAccountToken(ctx, evt.AppAccountToken)
	if err != nil || userID != 0 {
		return userID, err
	}

	// Android apps may pass the numeric user id as the obfuscated account id.
	if id, perr := strconv.ParseUint(evt.AppAccountToken, 10, 64); perr == nil && id > 0 {
		exists, err := uc.users.Exists(ctx, uint(id))
		if err != nil {
			return 0, err
		}
		if exists {
			return uint(id), nil
		}
	}
	return 0, nil
}

func (uc *ReconcileEventUseCase) publishChange(ctx context.Context, sub *subscription.Subscription, evt subscription.Event, out subscription.Outcome) {
	if uc.publisher == nil {
		return
	}
	event := pubsub.SubscriptionChangeEvent{
		UserID:         sub.UserID(),
		Environment:    sub.Environment().String(),
		Platform:       sub.DeviceType().String(),
		PlanID:         sub.PlanID(),
		EventKind:      evt.Kind.String(),
		PreviousStatus: out.PreviousStatus.String(),
		Status:         out.Status.String(),
		Entitled:       out.Status.IsEntitled(),
		Timestamp:      biztime.NowUTC().Unix(),
	}
	goroutine.SafeGoWithTimeout(ctx, uc.logger, "publish-subscription-change", defaultSideEffectTimeout, func(ctx context.Context) {
		if err := uc.publisher.Publish(ctx, event); err != nil {
			uc.logger.Warnw("subscription change not published", "user_id", event.UserID, "error", err)
		}
	})
}
