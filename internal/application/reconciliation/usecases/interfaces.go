package usecases

import (
	"context"

	vo "github.com/storesync/storesync/internal/domain/subscription/valueobjects"
	"github.com/storesync/storesync/internal/infrastructure/appstore"
	"github.com/storesync/storesync/internal/infrastructure/email"
	"github.com/storesync/storesync/internal/infrastructure/playstore"
	"github.com/storesync/storesync/internal/infrastructure/pubsub"
)

// SignedPayloadVerifier verifies App Store JWS payloads.
type SignedPayloadVerifier interface {
	VerifyNotification(ctx context.Context, signedPayload string) (*appstore.NotificationClaims, error)
	VerifyTransaction(ctx context.Context, signedTransaction string) (*appstore.TransactionClaims, error)
	VerifyRenewalInfo(ctx context.Context, signedRenewalInfo string) (*appstore.RenewalInfoClaims, error)
}

// HistoryFetcher pages through the App Store transaction history of one
// original transaction.
type HistoryFetcher interface {
	FetchHistory(ctx context.Context, env vo.Environment, originalTransactionID string) ([]string, error)
}

// PurchaseFetcher reads and acknowledges Play subscription purchases.
type PurchaseFetcher interface {
	PackageName() string
	GetSubscription(ctx context.Context, subscriptionID, token string) (*playstore.SubscriptionPurchase, error)
	Acknowledge(ctx context.Context, subscriptionID, token string) error
}

// PurchaseSignatureVerifier checks the RSA signature Play attaches to
// purchase data.
type PurchaseSignatureVerifier interface {
	Verify(data []byte, signature string) error
}

// ChangePublisher announces committed status changes to other services.
type ChangePublisher interface {
	Publish(ctx context.Context, event pubsub.SubscriptionChangeEvent) error
}

// OperatorAlerter notifies a human about configuration drift.
type OperatorAlerter interface {
	SendPlanNotFound(ctx context.Context, alert email.PlanNotFoundAlert) error
}

// DeliveryClaimer suppresses concurrent or repeated handling of one
// notification delivery. Claim returns false when the delivery was
// already claimed.
type DeliveryClaimer interface {
	Claim(ctx context.Context, platform, deliveryID string) bool
	Release(ctx context.Context, platform, deliveryID string)
}
