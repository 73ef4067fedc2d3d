package usecases

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/storesync/storesync/internal/application/reconciliation/dto"
	"github.com/storesync/storesync/internal/domain/subscription"
	vo "github.com/storesync/storesync/internal/domain/subscription/valueobjects"
	"github.com/storesync/storesync/internal/infrastructure/appstore"
	"github.com/storesync/storesync/internal/shared/biztime"
	apperrors "github.com/storesync/storesync/internal/shared/errors"
	"github.com/storesync/storesync/internal/shared/goroutine"
	"github.com/storesync/storesync/internal/shared/logger"
)

// ValidateReceiptCommand is a client receipt. For IOS the receipt is a
// signed transaction; for ANDROID it is a purchase token, optionally with
// the signed purchase data and its signature.
type ValidateReceiptCommand struct {
	UserID     uint
	Platform   vo.DeviceType
	Receipt    string
	ProductID  string
	SignedData string
	Signature  string
}

// playPurchaseData is the signed purchase JSON the Play billing library
// hands to the app.
type playPurchaseData struct {
	PackageName   string `json:"packageName"`
	ProductID     string `json:"productId"`
	PurchaseToken string `json:"purchaseToken"`
}

type ValidateReceiptUseCase struct {
	verifier            SignedPayloadVerifier
	history             HistoryFetcher
	purchases           PurchaseFetcher
	signatures          PurchaseSignatureVerifier // optional
	subscriptionRepo    subscription.Repository
	reconciler          *ReconcileEventUseCase
	acceptTestPurchases bool
	externalTimeout     time.Duration
	logger              logger.Interface
}

func NewValidateReceiptUseCase(
	verifier SignedPayloadVerifier,
	history HistoryFetcher,
	purchases PurchaseFetcher,
	subscriptionRepo subscription.Repository,
	reconciler *ReconcileEventUseCase,
	externalTimeout time.Duration,
	logger logger.Interface,
) *ValidateReceiptUseCase {
	return &ValidateReceiptUseCase{
		verifier:         verifier,
		history:          history,
		purchases:        purchases,
		subscriptionRepo: subscriptionRepo,
		reconciler:       reconciler,
		externalTimeout:  externalTimeout,
		logger:           logger,
	}
}

func (uc *ValidateReceiptUseCase) SetSignatureVerifier(v PurchaseSignatureVerifier) {
	uc.signatures = v
}

func (uc *ValidateReceiptUseCase) SetAcceptTestPurchases(accept bool) {
	uc.acceptTestPurchases = accept
}

func (uc *ValidateReceiptUseCase) Execute(ctx context.Context, cmd ValidateReceiptCommand) (*dto.SubscriptionSnapshotDTO, error) {
	if cmd.UserID == 0 {
		return nil, apperrors.NewUnauthorizedError("user is required")
	}
	if strings.TrimSpace(cmd.Receipt) == "" && cmd.SignedData == "" {
		return nil, apperrors.NewValidationError("receipt is required")
	}

	var (
		evt subscription.Event
		ack func()
		err error
	)
	switch cmd.Platform {
	case vo.DeviceTypeIOS:
		evt, err = uc.appStoreEvent(ctx, cmd)
	case vo.DeviceTypeAndroid:
		evt, ack, err = uc.playEvent(ctx, cmd)
	default:
		return nil, apperrors.NewValidationError("unsupported platform", string(cmd.Platform))
	}
	if err != nil {
		uc.logger.Warnw("receipt rejected", "user_id", cmd.UserID, "platform", cmd.Platform, "error", err)
		return nil, err
	}

	res, err := uc.reconciler.Execute(ctx, ReconcileCommand{Event: evt, UserID: cmd.UserID})
	if errors.Is(err, subscription.ErrTransitionNotAllowed) {
		// the store state cannot be applied on top of ours; report ours
		current, gerr := uc.subscriptionRepo.Get(ctx, cmd.UserID, evt.Environment)
		if gerr != nil {
			return nil, gerr
		}
		if current == nil {
			return nil, apperrors.NewStoreRejectionError("receipt does not describe an active subscription", evt.Kind.String())
		}
		return dto.ToSubscriptionSnapshotDTO(current), nil
	}
	if err != nil {
		return nil, err
	}
	if res.Ignored || res.Subscription == nil {
		return nil, apperrors.NewStoreRejectionError("receipt does not describe a subscription")
	}

	if ack != nil && !res.Outcome.Duplicate && evt.Kind == vo.EventPurchased {
		ack()
	}

	uc.logger.Infow("receipt validated",
		"user_id", cmd.UserID,
		"platform", cmd.Platform,
		"kind", evt.Kind,
		"status", res.Subscription.Status(),
		"duplicate", res.Outcome.Duplicate,
	)
	return dto.ToSubscriptionSnapshotDTO(res.Subscription), nil
}

// appStoreEvent never trusts the client transaction by itself: it only
// names the original transaction whose history is fetched.
func (uc *ValidateReceiptUseCase) appStoreEvent(ctx context.Context, cmd ValidateReceiptCommand) (subscription.Event, error) {
	vctx, cancel := context.WithTimeout(ctx, uc.externalTimeout)
	defer cancel()

	clientTx, err := uc.verifier.VerifyTransaction(vctx, cmd.Receipt)
	if err != nil {
		return subscription.Event{}, err
	}
	env, err := vo.ParseEnvironment(clientTx.Environment)
	if err != nil {
		return subscription.Event{}, apperrors.NewMalformedPayloadError("unknown transaction environment", clientTx.Environment)
	}

	signed, err := uc.history.FetchHistory(vctx, env, clientTx.OriginalTransactionID)
	if err != nil {
		return subscription.Event{}, err
	}
	if len(signed) == 0 {
		return subscription.Event{}, apperrors.NewStoreRejectionError("transaction history is empty", clientTx.OriginalTransactionID)
	}
	latest, err := appstore.SelectLatest(vctx, uc.verifier, signed, uc.logger)
	if err != nil {
		return subscription.Event{}, err
	}

	if err := uc.checkOwnership(ctx, cmd.UserID, vo.DeviceTypeIOS, latest.OriginalTransactionID, env); err != nil {
		return subscription.Event{}, err
	}
	current, err := uc.subscriptionRepo.Get(ctx, cmd.UserID, env)
	if err != nil {
		return subscription.Event{}, err
	}

	kind := deriveKind(current, authoritativeState{
		TransactionID: latest.TransactionID,
		Revoked:       latest.IsRevoked(),
		ExpiresAt:     latest.ExpiresAt(),
	}, biztime.NowUTC())
	evt, err := NormalizeAppStoreTransaction(kind, latest)
	if err != nil {
		return subscription.Event{}, apperrors.NewMalformedPayloadError("transaction cannot be normalized", err.Error())
	}
	return evt, nil
}

func (uc *ValidateReceiptUseCase) playEvent(ctx context.Context, cmd ValidateReceiptCommand) (subscription.Event, func(), error) {
	token, productID := strings.TrimSpace(cmd.Receipt), cmd.ProductID

	if cmd.SignedData != "" {
		if uc.signatures == nil {
			return subscription.Event{}, nil, apperrors.NewVerificationError("signed purchase data cannot be verified")
		}
		if err := uc.signatures.Verify([]byte(cmd.SignedData), cmd.Signature); err != nil {
			return subscription.Event{}, nil, err
		}
		var data playPurchaseData
		if err := json.Unmarshal([]byte(cmd.SignedData), &data); err != nil {
			return subscription.Event{}, nil, apperrors.NewMalformedPayloadError("signed data is not purchase JSON", err.Error())
		}
		if data.PackageName != "" && data.PackageName != uc.purchases.PackageName() {
			return subscription.Event{}, nil, apperrors.NewVerificationError("purchase belongs to another package", data.PackageName)
		}
		if token == "" {
			token = data.PurchaseToken
		}
		if productID == "" {
			productID = data.ProductID
		}
	}
	if token == "" || productID == "" {
		return subscription.Event{}, nil, apperrors.NewValidationError("purchase token and product id are required")
	}

	fctx, cancel := context.WithTimeout(ctx, uc.externalTimeout)
	purchase, err := uc.purchases.GetSubscription(fctx, productID, token)
	cancel()
	if err != nil {
		return subscription.Event{}, nil, err
	}
	if purchase.IsTest() && !uc.acceptTestPurchases {
		return subscription.Event{}, nil, apperrors.NewStoreRejectionError("test purchases are not accepted")
	}

	env := purchase.Environment()
	if err := uc.checkOwnership(ctx, cmd.UserID, vo.DeviceTypeAndroid, token, env); err != nil {
		return subscription.Event{}, nil, err
	}
	current, err := uc.subscriptionRepo.Get(ctx, cmd.UserID, env)
	if err != nil {
		return subscription.Event{}, nil, err
	}

	now := biztime.NowUTC()
	kind := deriveKind(current, authoritativeState{
		TransactionID: orderIDOrToken(purchase.OrderId, token),
		ExpiresAt:     purchase.ExpiresAt(),
	}, now)

	ack := func() {
		if purchase.IsAcknowledged() || purchase.Payment() == vo.PaymentStatePending {
			return
		}
		goroutine.SafeGoWithTimeout(ctx, uc.logger, "play-acknowledge", uc.externalTimeout, func(ctx context.Context) {
			if err := uc.purchases.Acknowledge(ctx, productID, token); err != nil {
				uc.logger.Errorw("failed to acknowledge purchase", "subscription_id", productID, "order_id", purchase.OrderId, "error", err)
			}
		})
	}
	return NormalizePlayPurchase(kind, token, productID, purchase, now), ack, nil
}

// checkOwnership refuses a purchase that is already attached to another
// user in the same environment.
func (uc *ValidateReceiptUseCase) checkOwnership(ctx context.Context, userID uint, platform vo.DeviceType, anchorID string, env vo.Environment) error {
	owner, err := uc.subscriptionRepo.FindByAnchor(ctx, platform, anchorID, env)
	if err != nil {
		return err
	}
	if owner != nil && owner.UserID() != userID {
		uc.logger.Warnw("purchase already belongs to another user",
			"user_id", userID,
			"owner_id", owner.UserID(),
			"anchor_id", anchorID,
		)
		return apperrors.NewConflictError("purchase belongs to another account")
	}
	return nil
}

func orderIDOrToken(orderID, token string) string {
	if orderID != "" {
		return orderID
	}
	return token
}
