package appstore

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/storesync/storesync/internal/shared/biztime"
)

// Notification types of App Store Server Notifications V2.
const (
	NotificationSubscribed             = "SUBSCRIBED"
	NotificationDidChangeRenewalPref   = "DID_CHANGE_RENEWAL_PREF"
	NotificationDidChangeRenewalStatus = "DID_CHANGE_RENEWAL_STATUS"
	NotificationDidRenew               = "DID_RENEW"
	NotificationDidFailToRenew         = "DID_FAIL_TO_RENEW"
	NotificationDidRecover             = "DID_RECOVER"
	NotificationExpired                = "EXPIRED"
	NotificationRevoke                 = "REVOKE"
	NotificationRefund                 = "REFUND"
	NotificationTest                   = "TEST"
)

// Notification subtypes.
const (
	SubtypeInitialBuy        = "INITIAL_BUY"
	SubtypeResubscribe       = "RESUBSCRIBE"
	SubtypeGracePeriod       = "GRACE_PERIOD"
	SubtypeAutoRenewEnabled  = "AUTO_RENEW_ENABLED"
	SubtypeAutoRenewDisabled = "AUTO_RENEW_DISABLED"
	SubtypeVoluntary         = "VOLUNTARY"
	SubtypeUpgrade           = "UPGRADE"
	SubtypeBillingRecovery   = "BILLING_RECOVERY"
)

// TypeAutoRenewable is the transaction type of an auto-renewable
// subscription.
const TypeAutoRenewable = "Auto-Renewable Subscription"

// TransactionClaims is the decoded payload of a signed transaction.
// Instants are epoch milliseconds; price is in milliunits of Currency.
type TransactionClaims struct {
	TransactionID               string `json:"transactionId"`
	OriginalTransactionID       string `json:"originalTransactionId"`
	WebOrderLineItemID          string `json:"webOrderLineItemId,omitempty"`
	BundleID                    string `json:"bundleId"`
	ProductID                   string `json:"productId"`
	SubscriptionGroupIdentifier string `json:"subscriptionGroupIdentifier,omitempty"`
	PurchaseDate                int64  `json:"purchaseDate"`
	OriginalPurchaseDate        int64  `json:"originalPurchaseDate,omitempty"`
	ExpiresDate                 int64  `json:"expiresDate,omitempty"`
	Quantity                    int    `json:"quantity,omitempty"`
	Type                        string `json:"type"`
	AppAccountToken             string `json:"appAccountToken,omitempty"`
	InAppOwnershipType          string `json:"inAppOwnershipType,omitempty"`
	SignedDate                  int64  `json:"signedDate,omitempty"`
	RevocationReason            *int   `json:"revocationReason,omitempty"`
	RevocationDate              int64  `json:"revocationDate,omitempty"`
	IsUpgraded                  bool   `json:"isUpgraded,omitempty"`
	OfferType                   int    `json:"offerType,omitempty"`
	OfferIdentifier             string `json:"offerIdentifier,omitempty"`
	Environment                 string `json:"environment"`
	Storefront                  string `json:"storefront,omitempty"`
	TransactionReason           string `json:"transactionReason,omitempty"`
	Currency                    string `json:"currency,omitempty"`
	Price                       int64  `json:"price,omitempty"`

	jwt.RegisteredClaims
}

func (c *TransactionClaims) PurchasedAt() time.Time { return biztime.FromUnixMilli(c.PurchaseDate) }
func (c *TransactionClaims) ExpiresAt() *time.Time { return biztime.FromUnixMilliPtr(c.ExpiresDate) }
func (c *TransactionClaims) RevokedAt() *time.Time { return biztime.FromUnixMilliPtr(c.RevocationDate) }
func (c *TransactionClaims) IsRevoked() bool { return c.RevocationDate != 0 }

// IsFreeTrial reports an introductory offer (offerType 1) with no price.
func (c *TransactionClaims) IsFreeTrial() bool {
	return c.OfferType == 1 && c.Price == 0
}

// IsSubscription reports whether the transaction belongs to an
// auto-renewable subscription.
func (c *TransactionClaims) IsSubscription() bool {
	return c.Type == TypeAutoRenewable
}

// RenewalInfoClaims is the decoded payload of signed renewal info.
type RenewalInfoClaims struct {
	OriginalTransactionID       string `json:"originalTransactionId"`
	AutoRenewProductID          string `json:"autoRenewProductId"`
	ProductID                   string `json:"productId"`
	AutoRenewStatus             int    `json:"autoRenewStatus"`
	ExpirationIntent            int    `json:"expirationIntent,omitempty"`
	GracePeriodExpiresDate      int64  `json:"gracePeriodExpiresDate,omitempty"`
	IsInBillingRetryPeriod      bool   `json:"isInBillingRetryPeriod,omitempty"`
	Environment                 string `json:"environment"`
	SignedDate                  int64  `json:"signedDate,omitempty"`
	RenewalDate                 int64  `json:"renewalDate,omitempty"`
	RecentSubscriptionStartDate int64  `json:"recentSubscriptionStartDate,omitempty"`
	AppAccountToken             string `json:"appAccountToken,omitempty"`

	jwt.RegisteredClaims
}

func (c *RenewalInfoClaims) GracePeriodExpiresAt() *time.Time {
	return biztime.FromUnixMilliPtr(c.GracePeriodExpiresDate)
}

// NotificationData is the data object of a V2 notification.
type NotificationData struct {
	AppAppleID            int64  `json:"appAppleId,omitempty"`
	BundleID              string `json:"bundleId"`
	BundleVersion         string `json:"bundleVersion,omitempty"`
	Environment           string `json:"environment"`
	SignedTransactionInfo string `json:"signedTransactionInfo,omitempty"`
	SignedRenewalInfo     string `json:"signedRenewalInfo,omitempty"`
	Status                int    `json:"status,omitempty"`
}

// NotificationClaims is the decoded signedPayload of a V2 notification.
type NotificationClaims struct {
	NotificationType string           `json:"notificationType"`
	Subtype          string           `json:"subtype,omitempty"`
	NotificationUUID string           `json:"notificationUUID"`
	Data             NotificationData `json:"data"`
	Version          string           `json:"version,omitempty"`
	SignedDate       int64            `json:"signedDate,omitempty"`

	jwt.RegisteredClaims
}

// NotificationEnvelope is the HTTP body Apple posts.
type NotificationEnvelope struct {
	SignedPayload string `json:"signedPayload"`
}
