package usecases

import (
	"context"
	"strconv"
	"time"

	"github.com/storesync/storesync/internal/domain/delivery"
	"github.com/storesync/storesync/internal/domain/subscription"
	vo "github.com/storesync/storesync/internal/domain/subscription/valueobjects"
	"github.com/storesync/storesync/internal/infrastructure/playstore"
	apperrors "github.com/storesync/storesync/internal/shared/errors"
	"github.com/storesync/storesync/internal/shared/goroutine"
	"github.com/storesync/storesync/internal/shared/logger"
)

type PlayNotificationCommand struct {
	Body []byte
}

type HandlePlayNotificationUseCase struct {
	purchases           PurchaseFetcher
	signatures          PurchaseSignatureVerifier // optional
	subscriptionRepo    subscription.Repository
	reconciler          *ReconcileEventUseCase
	log                 *deliveryLog
	acceptTestPurchases bool
	externalTimeout     time.Duration
	logger              logger.Interface
}

func NewHandlePlayNotificationUseCase(
	purchases PurchaseFetcher,
	subscriptionRepo subscription.Repository,
	reconciler *ReconcileEventUseCase,
	notifications delivery.Repository,
	claimer DeliveryClaimer,
	externalTimeout time.Duration,
	logger logger.Interface,
) *HandlePlayNotificationUseCase {
	return &HandlePlayNotificationUseCase{
		purchases:        purchases,
		subscriptionRepo: subscriptionRepo,
		reconciler:       reconciler,
		log: &deliveryLog{
			repo:     notifications,
			claimer:  claimer,
			platform: vo.DeviceTypeAndroid,
			logger:   logger,
		},
		externalTimeout: externalTimeout,
		logger:          logger,
	}
}

// SetSignatureVerifier enables the embedded-signature check.
func (uc *HandlePlayNotificationUseCase) SetSignatureVerifier(v PurchaseSignatureVerifier) {
	uc.signatures = v
}

func (uc *HandlePlayNotificationUseCase) SetAcceptTestPurchases(accept bool) {
	uc.acceptTestPurchases = accept
}

// Execute processes one RTDN push delivery. The returned error is set only
// for bodies that are not push envelopes carrying a developer notification.
func (uc *HandlePlayNotificationUseCase) Execute(ctx context.Context, cmd PlayNotificationCommand) (*NotificationResult, error) {
	d, err := playstore.DecodePush(cmd.Body)
	if err != nil {
		return nil, err
	}
	n := d.Notification

	res := &NotificationResult{NotificationID: d.MessageID, Kind: vo.EventUnknown}
	rec := &delivery.Record{NotificationType: notificationTypeOf(n), Environment: vo.EnvironmentProduction}
	payload := map[string]any{"notification": n}

	if !uc.log.claim(ctx, d.MessageID) {
		uc.logger.Infow("push delivery already being handled", "message_id", d.MessageID)
		res.Outcome = delivery.OutcomeDuplicate
		return res, nil
	}

	if n.PackageName != uc.purchases.PackageName() {
		res.Outcome = delivery.OutcomeRejected
		res.Err = apperrors.NewVerificationError("notification for another package", n.PackageName)
		uc.log.finish(ctx, rec, res, payload)
		return res, nil
	}

	if d.Signature != "" || n.OneTimeProductNotification != nil {
		if err := uc.verifySignature(d); err != nil {
			res.Outcome, res.Err = delivery.OutcomeRejected, err
			uc.log.finish(ctx, rec, res, payload)
			return res, nil
		}
	}

	switch {
	case n.SubscriptionNotification != nil:
		uc.handleSubscription(ctx, n, rec, res, payload)
	case n.VoidedPurchaseNotification != nil:
		uc.handleVoided(ctx, n, rec, res)
	default:
		// test and one-time product notifications carry nothing to reconcile
		res.Outcome = delivery.OutcomeIgnored
	}

	uc.log.finish(ctx, rec, res, payload)
	return res, nil
}

func (uc *HandlePlayNotificationUseCase) verifySignature(d *playstore.Delivery) error {
	if uc.signatures == nil {
		return apperrors.NewVerificationError("no public key configured for signed notifications")
	}
	if d.Signature == "" {
		return apperrors.NewVerificationError("signed notification without signature")
	}
	return uc.signatures.Verify(d.Data, d.Signature)
}

func (uc *HandlePlayNotificationUseCase) handleSubscription(ctx context.Context, n *playstore.DeveloperNotification, rec *delivery.Record, res *NotificationResult, payload map[string]any) {
	sn := n.SubscriptionNotification
	rec.Subtype = sn.SubscriptionID
	res.Kind = PlayKind(sn.NotificationType)
	if res.Kind == vo.EventUnknown {
		res.Outcome = delivery.OutcomeIgnored
		return
	}

	fctx, cancel := context.WithTimeout(ctx, uc.externalTimeout)
	purchase, err := uc.purchases.GetSubscription(fctx, sn.SubscriptionID, sn.PurchaseToken)
	cancel()
	if err != nil {
		res.Err = err
		if apperrors.IsHistoryFetchError(err) {
			res.Outcome = delivery.OutcomeFailed
		} else {
			res.Outcome = delivery.OutcomeRejected
		}
		return
	}
	payload["purchase"] = purchase
	rec.Environment = purchase.Environment()

	if purchase.IsTest() && !uc.acceptTestPurchases {
		uc.logger.Infow("test purchase ignored", "message_id", res.NotificationID, "subscription_id", sn.SubscriptionID)
		res.Outcome = delivery.OutcomeIgnored
		return
	}

	evt := NormalizePlayPurchase(res.Kind, sn.PurchaseToken, sn.SubscriptionID, purchase, n.EventTime())
	evt.NotificationID = res.NotificationID

	out, err := uc.reconciler.Execute(ctx, ReconcileCommand{Event: evt})
	if err != nil {
		res.Outcome, res.Err = classifyReconcileError(err), err
		return
	}
	res.Outcome = outcomeOf(out)

	if res.Outcome == delivery.OutcomeApplied && res.Kind == vo.EventPurchased {
		uc.acknowledge(ctx, sn.SubscriptionID, sn.PurchaseToken, purchase)
	}
}

// handleVoided refunds a voided subscription purchase. Voided notifications
// carry no purchase resource, so the record holding the token supplies the
// user and the environment.
func (uc *HandlePlayNotificationUseCase) handleVoided(ctx context.Context, n *playstore.DeveloperNotification, rec *delivery.Record, res *NotificationResult) {
	vn := n.VoidedPurchaseNotification
	if vn.ProductType != playstore.VoidedProductSubscription {
		res.Outcome = delivery.OutcomeIgnored
		return
	}
	res.Kind = vo.EventRefunded

	var sub *subscription.Subscription
	for _, env := range []vo.Environment{vo.EnvironmentProduction, vo.EnvironmentSandbox} {
		found, err := uc.subscriptionRepo.FindByAnchor(ctx, vo.DeviceTypeAndroid, vn.PurchaseToken, env)
		if err != nil {
			res.Outcome, res.Err = delivery.OutcomeFailed, err
			return
		}
		if found != nil {
			sub = found
			break
		}
	}
	if sub == nil {
		res.Outcome = delivery.OutcomeRejected
		res.Err = apperrors.NewNotFoundError("no subscription holds the voided purchase token")
		return
	}
	rec.Environment = sub.Environment()

	evt := NormalizePlayVoided(vn, sub.Environment(), n.EventTime())
	evt.NotificationID = res.NotificationID
	out, err := uc.reconciler.Execute(ctx, ReconcileCommand{Event: evt, UserID: sub.UserID()})
	if err != nil {
		res.Outcome, res.Err = classifyReconcileError(err), err
		return
	}
	res.Outcome = outcomeOf(out)
}

// acknowledge confirms a new purchase to Play, which refunds purchases left
// unacknowledged for three days.
func (uc *HandlePlayNotificationUseCase) acknowledge(ctx context.Context, subscriptionID, token string, p *playstore.SubscriptionPurchase) {
	if p.IsAcknowledged() || p.Payment() == vo.PaymentStatePending {
		return
	}
	goroutine.SafeGoWithTimeout(ctx, uc.logger, "play-acknowledge", uc.externalTimeout, func(ctx context.Context) {
		if err := uc.purchases.Acknowledge(ctx, subscriptionID, token); err != nil {
			uc.logger.Errorw("failed to acknowledge purchase", "subscription_id", subscriptionID, "order_id", p.OrderId, "error", err)
			return
		}
		uc.logger.Infow("purchase acknowledged", "subscription_id", subscriptionID, "order_id", p.OrderId)
	})
}

func notificationTypeOf(n *playstore.DeveloperNotification) string {
	switch {
	case n.SubscriptionNotification != nil:
		return "subscription:" + n.SubscriptionNotification.NotificationType.String()
	case n.VoidedPurchaseNotification != nil:
		return "voided:" + strconv.Itoa(n.VoidedPurchaseNotification.ProductType)
	case n.OneTimeProductNotification != nil:
		return "one_time:" + strconv.Itoa(n.OneTimeProductNotification.NotificationType)
	case n.TestNotification != nil:
		return "test"
	}
	return "unknown"
}
