package playstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/androidpublisher/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	vo "github.com/storesync/storesync/internal/domain/subscription/valueobjects"
	"github.com/storesync/storesync/internal/infrastructure/metrics"
	"github.com/storesync/storesync/internal/shared/biztime"
	apperrors "github.com/storesync/storesync/internal/shared/errors"
	"github.com/storesync/storesync/internal/shared/logger"
)

// Payment states of a subscription purchase.
const (
	PaymentPending   int64 = 0
	PaymentReceived  int64 = 1
	PaymentFreeTrial int64 = 2
	PaymentDeferred  int64 = 3
)

// AckAcknowledged is the acknowledgementState of an acknowledged purchase.
const AckAcknowledged int64 = 1

// SubscriptionPurchase is the purchases.subscriptions resource with the
// domain vocabulary on top.
type SubscriptionPurchase struct {
	androidpublisher.SubscriptionPurchase
}

func (p *SubscriptionPurchase) StartedAt() time.Time { return biztime.FromUnixMilli(p.StartTimeMillis) }
func (p *SubscriptionPurchase) ExpiresAt() *time.Time {
	return biztime.FromUnixMilliPtr(p.ExpiryTimeMillis)
}

// IsTest reports whether the purchase was made from a license test account.
// Play omits purchaseType for real purchases.
func (p *SubscriptionPurchase) IsTest() bool {
	return p.PurchaseType != nil && *p.PurchaseType == 0
}

func (p *SubscriptionPurchase) Environment() vo.Environment {
	if p.IsTest() {
		return vo.EnvironmentSandbox
	}
	return vo.EnvironmentProduction
}

// Payment maps paymentState onto the domain vocabulary. Deferred purchases
// keep their entitlement and count as received.
func (p *SubscriptionPurchase) Payment() vo.PaymentState {
	if p.PaymentState == nil {
		return ""
	}
	switch *p.PaymentState {
	case PaymentPending:
		return vo.PaymentStatePending
	case PaymentFreeTrial:
		return vo.PaymentStateFreeTrial
	default:
		return vo.PaymentStateReceived
	}
}

func (p *SubscriptionPurchase) IsAcknowledged() bool {
	return p.AcknowledgementState == AckAcknowledged
}

// IsCanceled reports whether the user or Play stopped renewal. cancelReason
// 0 (user) is indistinguishable from absent, so the cancellation time
// stands in for it.
func (p *SubscriptionPurchase) IsCanceled() bool {
	return p.CancelReason != 0 || p.UserCancellationTimeMillis != 0
}

type PurchaseClientConfig struct {
	PackageName string
	// BaseURL overrides the API endpoint. Empty uses Google's.
	BaseURL string
}

// PurchaseClient reads and acknowledges subscription purchases through the
// Play Developer API. A successful read is what verifies a purchase token.
type PurchaseClient struct {
	packageName   string
	subscriptions *androidpublisher.PurchasesSubscriptionsService
	logger        logger.Interface
}

// NewPurchaseClient builds the client. opts carry the credentials, usually
// the ones from ServiceAccountOptions.
func NewPurchaseClient(ctx context.Context, cfg PurchaseClientConfig, log logger.Interface, opts ...option.ClientOption) (*PurchaseClient, error) {
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithEndpoint(strings.TrimRight(cfg.BaseURL, "/")+"/"))
	}
	svc, err := androidpublisher.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create androidpublisher service: %w", err)
	}
	return &PurchaseClient{
		packageName:   cfg.PackageName,
		subscriptions: svc.Purchases.Subscriptions,
		logger:        log,
	}, nil
}

// ServiceAccountOptions authenticates with a service account key file and
// the androidpublisher scope. Call deadlines come from the caller's context.
func ServiceAccountOptions(ctx context.Context, keyFile string) ([]option.ClientOption, error) {
	data, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, fmt.Errorf("read service account key: %w", err)
	}
	conf, err := google.JWTConfigFromJSON(data, androidpublisher.AndroidpublisherScope)
	if err != nil {
		return nil, fmt.Errorf("parse service account key: %w", err)
	}
	return []option.ClientOption{
		option.WithTokenSource(conf.TokenSource(ctx)),
		option.WithUserAgent("storesync"),
	}, nil
}

func (c *PurchaseClient) PackageName() string {
	return c.packageName
}

// GetSubscription fetches the purchase resource for a token.
func (c *PurchaseClient) GetSubscription(ctx context.Context, subscriptionID, token string) (*SubscriptionPurchase, error) {
	if subscriptionID == "" || token == "" {
		return nil, apperrors.NewValidationError("subscription id and purchase token are required")
	}
	started := time.Now()
	p, err := c.subscriptions.Get(c.packageName, subscriptionID, token).Context(ctx).Do()
	err = classifyPlayError(err)
	metrics.ObserveStoreCall("playstore", "get_subscription", started, err)
	if err != nil {
		return nil, err
	}
	return &SubscriptionPurchase{SubscriptionPurchase: *p}, nil
}

// Acknowledge acknowledges a subscription purchase. Play refunds purchases
// left unacknowledged for three days.
func (c *PurchaseClient) Acknowledge(ctx context.Context, subscriptionID, token string) error {
	started := time.Now()
	err := c.subscriptions.Acknowledge(c.packageName, subscriptionID, token,
		&androidpublisher.SubscriptionPurchasesAcknowledgeRequest{}).Context(ctx).Do()
	err = classifyPlayError(err)
	metrics.ObserveStoreCall("playstore", "acknowledge", started, err)
	return err
}

// classifyPlayError treats an unknown or expired token as a failed
// verification. Everything else is retryable.
func classifyPlayError(err error) error {
	if err == nil {
		return nil
	}
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return apperrors.NewHistoryFetchError("Play request failed", err.Error())
	}
	detail := fmt.Sprintf("status %d: %s", gerr.Code, gerr.Message)

	switch gerr.Code {
	case http.StatusBadRequest, http.StatusNotFound, http.StatusGone:
		return apperrors.NewVerificationError("Play rejected the purchase token", detail)
	case http.StatusForbidden:
		return apperrors.NewStoreRejectionError("Play denied access to the purchase", detail)
	default:
		return apperrors.NewHistoryFetchError("Play request failed", detail)
	}
}
