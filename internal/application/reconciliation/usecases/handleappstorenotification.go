package usecases

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/storesync/storesync/internal/domain/delivery"
	vo "github.com/storesync/storesync/internal/domain/subscription/valueobjects"
	"github.com/storesync/storesync/internal/infrastructure/appstore"
	apperrors "github.com/storesync/storesync/internal/shared/errors"
	"github.com/storesync/storesync/internal/shared/logger"
)

type AppStoreNotificationCommand struct {
	// Endpoint is the environment of the URL the notification was posted to.
	Endpoint vo.Environment
	Body     []byte
}

type HandleAppStoreNotificationUseCase struct {
	verifier        SignedPayloadVerifier
	reconciler      *ReconcileEventUseCase
	log             *deliveryLog
	externalTimeout time.Duration
	logger          logger.Interface
}

func NewHandleAppStoreNotificationUseCase(
	verifier SignedPayloadVerifier,
	reconciler *ReconcileEventUseCase,
	notifications delivery.Repository,
	claimer DeliveryClaimer,
	externalTimeout time.Duration,
	logger logger.Interface,
) *HandleAppStoreNotificationUseCase {
	return &HandleAppStoreNotificationUseCase{
		verifier:   verifier,
		reconciler: reconciler,
		log: &deliveryLog{
			repo:     notifications,
			claimer:  claimer,
			platform: vo.DeviceTypeIOS,
			logger:   logger,
		},
		externalTimeout: externalTimeout,
		logger:          logger,
	}
}

// Execute processes one App Store Server Notification V2. The returned
// error is set only when the body is not a notification envelope at all;
// every other problem is reported through the result and recorded.
func (uc *HandleAppStoreNotificationUseCase) Execute(ctx context.Context, cmd AppStoreNotificationCommand) (*NotificationResult, error) {
	var envelope appstore.NotificationEnvelope
	if err := json.Unmarshal(cmd.Body, &envelope); err != nil {
		return nil, apperrors.NewMalformedPayloadError("body is not a notification envelope", err.Error())
	}
	if strings.TrimSpace(envelope.SignedPayload) == "" {
		return nil, apperrors.NewMalformedPayloadError("signedPayload is required")
	}

	vctx, cancel := context.WithTimeout(ctx, uc.externalTimeout)
	defer cancel()

	rec := &delivery.Record{Environment: cmd.Endpoint}
	res := &NotificationResult{Kind: vo.EventUnknown}

	claims, err := uc.verifier.VerifyNotification(vctx, envelope.SignedPayload)
	if err != nil {
		res.Outcome, res.Err = verificationOutcome(err), err
		uc.log.finish(ctx, rec, res, nil)
		return res, nil
	}
	res.NotificationID = claims.NotificationUUID
	rec.NotificationType = claims.NotificationType
	rec.Subtype = claims.Subtype

	if !uc.log.claim(ctx, claims.NotificationUUID) {
		uc.logger.Infow("notification already being handled", "notification_id", claims.NotificationUUID)
		res.Outcome = delivery.OutcomeDuplicate
		return res, nil
	}

	payload := map[string]any{"notification": redactNotification(claims)}

	env, err := vo.ParseEnvironment(claims.Data.Environment)
	if err != nil {
		res.Outcome, res.Err = delivery.OutcomeRejected, apperrors.NewMalformedPayloadError("unknown notification environment", claims.Data.Environment)
		uc.log.finish(ctx, rec, res, payload)
		return res, nil
	}
	rec.Environment = env
	if env != cmd.Endpoint {
		res.Outcome = delivery.OutcomeIgnored
		uc.logger.Warnw("notification posted to the endpoint of another environment",
			"notification_id", claims.NotificationUUID,
			"environment", env,
			"endpoint", cmd.Endpoint,
		)
		uc.log.finish(ctx, rec, res, payload)
		return res, nil
	}

	res.Kind = AppStoreKind(claims.NotificationType, claims.Subtype)
	if res.Kind == vo.EventUnknown || claims.Data.SignedTransactionInfo == "" {
		res.Outcome = delivery.OutcomeIgnored
		uc.log.finish(ctx, rec, res, payload)
		return res, nil
	}

	tx, err := uc.verifier.VerifyTransaction(vctx, claims.Data.SignedTransactionInfo)
	if err != nil {
		res.Outcome, res.Err = verificationOutcome(err), err
		uc.log.finish(ctx, rec, res, payload)
		return res, nil
	}
	payload["transaction"] = tx
	if !tx.IsSubscription() {
		res.Outcome = delivery.OutcomeIgnored
		uc.logger.Infow("notification is not for a subscription", "notification_id", claims.NotificationUUID, "type", tx.Type)
		uc.log.finish(ctx, rec, res, payload)
		return res, nil
	}

	var renewal *appstore.RenewalInfoClaims
	if claims.Data.SignedRenewalInfo != "" {
		renewal, err = uc.verifier.VerifyRenewalInfo(vctx, claims.Data.SignedRenewalInfo)
		if err != nil {
			res.Outcome, res.Err = verificationOutcome(err), err
			uc.log.finish(ctx, rec, res, payload)
			return res, nil
		}
		payload["renewal_info"] = renewal
	}

	evt, err := NormalizeAppStoreTransaction(res.Kind, tx)
	if err != nil {
		res.Outcome, res.Err = delivery.OutcomeRejected, apperrors.NewMalformedPayloadError("transaction cannot be normalized", err.Error())
		uc.log.finish(ctx, rec, res, payload)
		return res, nil
	}
	evt.NotificationID = claims.NotificationUUID
	if renewal != nil && res.Kind == vo.EventGracePeriod {
		evt.GraceExpiresAt = renewal.GracePeriodExpiresAt()
	}

	out, err := uc.reconciler.Execute(ctx, ReconcileCommand{Event: evt})
	if err != nil {
		res.Outcome, res.Err = classifyReconcileError(err), err
	} else {
		res.Outcome = outcomeOf(out)
	}
	uc.log.finish(ctx, rec, res, payload)
	return res, nil
}

// redactNotification drops the nested signed blobs; the decoded transaction
// and renewal info are recorded next to it.
func redactNotification(c *appstore.NotificationClaims) appstore.NotificationClaims {
	cp := *c
	cp.Data.SignedTransactionInfo = ""
	cp.Data.SignedRenewalInfo = ""
	return cp
}
