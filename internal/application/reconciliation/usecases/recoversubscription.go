package usecases

import (
	"context"
	"errors"
	"time"

	"github.com/storesync/storesync/internal/domain/plan"
	"github.com/storesync/storesync/internal/domain/subscription"
	vo "github.com/storesync/storesync/internal/domain/subscription/valueobjects"
	"github.com/storesync/storesync/internal/infrastructure/appstore"
	"github.com/storesync/storesync/internal/shared/biztime"
	apperrors "github.com/storesync/storesync/internal/shared/errors"
	"github.com/storesync/storesync/internal/shared/logger"
)

type RecoverCommand struct {
	UserID      uint
	Environment vo.Environment
}

// RecoverResult reports what re-deriving a record from its store changed.
type RecoverResult struct {
	Kind           vo.EventKind
	PreviousStatus vo.SubscriptionStatus
	Status         vo.SubscriptionStatus
	Applied        bool
}

// RecoverSubscriptionUseCase re-derives one record from the store's own
// view of its anchor. It covers notifications that never arrived.
type RecoverSubscriptionUseCase struct {
	subscriptionRepo subscription.Repository
	catalog          plan.Catalog
	verifier         SignedPayloadVerifier
	history          HistoryFetcher  // nil when App Store API access is not configured
	purchases        PurchaseFetcher // nil when Play API access is not configured
	reconciler       *ReconcileEventUseCase
	externalTimeout  time.Duration
	logger           logger.Interface
}

func NewRecoverSubscriptionUseCase(
	subscriptionRepo subscription.Repository,
	catalog plan.Catalog,
	verifier SignedPayloadVerifier,
	history HistoryFetcher,
	purchases PurchaseFetcher,
	reconciler *ReconcileEventUseCase,
	externalTimeout time.Duration,
	logger logger.Interface,
) *RecoverSubscriptionUseCase {
	return &RecoverSubscriptionUseCase{
		subscriptionRepo: subscriptionRepo,
		catalog:          catalog,
		verifier:         verifier,
		history:          history,
		purchases:        purchases,
		reconciler:       reconciler,
		externalTimeout:  externalTimeout,
		logger:           logger,
	}
}

func (uc *RecoverSubscriptionUseCase) Execute(ctx context.Context, cmd RecoverCommand) (*RecoverResult, error) {
	sub, err := uc.subscriptionRepo.Get(ctx, cmd.UserID, cmd.Environment)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, apperrors.NewNotFoundError("subscription not found")
	}
	return uc.recover(ctx, sub)
}

func (uc *RecoverSubscriptionUseCase) recover(ctx context.Context, sub *subscription.Subscription) (*RecoverResult, error) {
	if sub.AnchorID() == "" {
		return nil, apperrors.NewValidationError("subscription has no store anchor")
	}

	var (
		evt  subscription.Event
		skip bool
		err  error
	)
	switch sub.DeviceType() {
	case vo.DeviceTypeIOS:
		evt, skip, err = uc.appStoreEvent(ctx, sub)
	case vo.DeviceTypeAndroid:
		evt, skip, err = uc.playEvent(ctx, sub)
	default:
		return nil, apperrors.NewValidationError("unknown platform", sub.DeviceType().String())
	}
	if err != nil {
		return nil, err
	}

	result := &RecoverResult{PreviousStatus: sub.Status(), Status: sub.Status(), Kind: evt.Kind}
	if skip {
		return result, nil
	}

	res, err := uc.reconciler.Execute(ctx, ReconcileCommand{Event: evt, UserID: sub.UserID()})
	if errors.Is(err, subscription.ErrTransitionNotAllowed) {
		uc.logger.Warnw("store state cannot be applied to record",
			"user_id", sub.UserID(),
			"environment", sub.Environment(),
			"kind", evt.Kind,
			"status", sub.Status(),
		)
		return result, nil
	}
	if err != nil {
		return nil, err
	}

	result.Status = res.Outcome.Status
	result.Applied = !res.Outcome.Duplicate && res.Outcome.Changed
	return result, nil
}

// appStoreEvent skips a past_due record whose last transaction has run
// out: Apple is still retrying the charge and ends the retry with its own
// EXPIRED notification.
func (uc *RecoverSubscriptionUseCase) appStoreEvent(ctx context.Context, sub *subscription.Subscription) (subscription.Event, bool, error) {
	if uc.history == nil {
		return subscription.Event{}, false, apperrors.NewInternalError("App Store API access is not configured")
	}
	fctx, cancel := context.WithTimeout(ctx, uc.externalTimeout)
	defer cancel()

	signed, err := uc.history.FetchHistory(fctx, sub.Environment(), sub.AnchorID())
	if err != nil {
		return subscription.Event{}, false, err
	}
	if len(signed) == 0 {
		return subscription.Event{}, false, apperrors.NewStoreRejectionError("transaction history is empty", sub.AnchorID())
	}
	latest, err := appstore.SelectLatest(fctx, uc.verifier, signed, uc.logger)
	if err != nil {
		return subscription.Event{}, false, err
	}

	kind := deriveKind(sub, authoritativeState{
		TransactionID: latest.TransactionID,
		Revoked:       latest.IsRevoked(),
		ExpiresAt:     latest.ExpiresAt(),
	}, biztime.NowUTC())
	billingRetry := kind == vo.EventExpired && sub.Status() == vo.StatusPastDue
	evt, err := NormalizeAppStoreTransaction(kind, latest)
	return evt, billingRetry, err
}

// playEvent resolves the product id through the plan the record holds,
// since the record does not keep the store product id. Purchases on hold
// report an expiry in the past but are not over; they are skipped.
func (uc *RecoverSubscriptionUseCase) playEvent(ctx context.Context, sub *subscription.Subscription) (subscription.Event, bool, error) {
	if uc.purchases == nil {
		return subscription.Event{}, false, apperrors.NewInternalError("Play API access is not configured")
	}
	entry, err := uc.catalog.FindByPlanID(ctx, sub.PlanID())
	if err != nil {
		return subscription.Event{}, false, err
	}
	if entry == nil || entry.AndroidProductID == "" {
		return subscription.Event{}, false, apperrors.NewPlanNotFoundError("no Android product for plan", sub.PlanID())
	}

	fctx, cancel := context.WithTimeout(ctx, uc.externalTimeout)
	purchase, err := uc.purchases.GetSubscription(fctx, entry.AndroidProductID, sub.AnchorID())
	cancel()
	if err != nil {
		return subscription.Event{}, false, err
	}

	now := biztime.NowUTC()
	kind := deriveKind(sub, authoritativeState{
		TransactionID: orderIDOrToken(purchase.OrderId, sub.AnchorID()),
		ExpiresAt:     purchase.ExpiresAt(),
	}, now)
	onHold := kind == vo.EventExpired && purchase.Payment() == vo.PaymentStatePending && !purchase.IsCanceled()
	return NormalizePlayPurchase(kind, sub.AnchorID(), entry.AndroidProductID, purchase, now), onHold, nil
}
