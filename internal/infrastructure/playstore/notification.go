// Package playstore talks to Google Play: real-time developer notifications
// delivered over Cloud Pub/Sub push, the embedded-signature check for
// one-time purchases and the Play Developer API purchase resources.
package playstore

import (
	"encoding/base64"
	"encoding/json"
	"strconv"
	"time"

	"github.com/storesync/storesync/internal/shared/biztime"
	apperrors "github.com/storesync/storesync/internal/shared/errors"
)

// NotificationType is the subscriptionNotification.notificationType code.
type NotificationType int

const (
	TypeRecovered               NotificationType = 1
	TypeRenewed                 NotificationType = 2
	TypeCanceled                NotificationType = 3
	TypePurchased               NotificationType = 4
	TypeOnHold                  NotificationType = 5
	TypeInGracePeriod           NotificationType = 6
	TypeRestarted               NotificationType = 7
	TypePriceChangeConfirmed    NotificationType = 8
	TypeDeferred                NotificationType = 9
	TypePaused                  NotificationType = 10
	TypePauseScheduleChanged    NotificationType = 11
	TypeRevoked                 NotificationType = 12
	TypeExpired                 NotificationType = 13
	TypePendingPurchaseCanceled NotificationType = 20
)

func (t NotificationType) String() string {
	return strconv.Itoa(int(t))
}

// Voided purchase product types.
const (
	VoidedProductSubscription = 1
	VoidedProductOneTime      = 2
)

// PushEnvelope is the body Cloud Pub/Sub POSTs to a push endpoint.
type PushEnvelope struct {
	Message      PushMessage `json:"message"`
	Subscription string      `json:"subscription"`
}

type PushMessage struct {
	Data        string            `json:"data"`
	MessageID   string            `json:"messageId"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	PublishTime string            `json:"publishTime,omitempty"`
}

type SubscriptionNotification struct {
	Version          string           `json:"version"`
	NotificationType NotificationType `json:"notificationType"`
	PurchaseToken    string           `json:"purchaseToken"`
	SubscriptionID   string           `json:"subscriptionId"`
}

type OneTimeProductNotification struct {
	Version          string `json:"version"`
	NotificationType int    `json:"notificationType"`
	PurchaseToken    string `json:"purchaseToken"`
	SKU              string `json:"sku"`
}

type VoidedPurchaseNotification struct {
	PurchaseToken string `json:"purchaseToken"`
	OrderID       string `json:"orderId"`
	ProductType   int    `json:"productType"`
	RefundType    int    `json:"refundType"`
}

type TestNotification struct {
	Version string `json:"version"`
}

// DeveloperNotification is the decoded message data.
type DeveloperNotification struct {
	Version                    string                      `json:"version"`
	PackageName                string                      `json:"packageName"`
	EventTimeMillis            int64                       `json:"eventTimeMillis,string"`
	SubscriptionNotification   *SubscriptionNotification   `json:"subscriptionNotification,omitempty"`
	OneTimeProductNotification *OneTimeProductNotification `json:"oneTimeProductNotification,omitempty"`
	VoidedPurchaseNotification *VoidedPurchaseNotification `json:"voidedPurchaseNotification,omitempty"`
	TestNotification           *TestNotification           `json:"testNotification,omitempty"`
}

func (n *DeveloperNotification) EventTime() time.Time {
	return biztime.FromUnixMilli(n.EventTimeMillis)
}

// PurchaseToken returns the token of whichever notification is present.
func (n *DeveloperNotification) PurchaseToken() string {
	switch {
	case n.SubscriptionNotification != nil:
		return n.SubscriptionNotification.PurchaseToken
	case n.VoidedPurchaseNotification != nil:
		return n.VoidedPurchaseNotification.PurchaseToken
	case n.OneTimeProductNotification != nil:
		return n.OneTimeProductNotification.PurchaseToken
	}
	return ""
}

// Delivery is a decoded push delivery. Data holds the raw decoded message
// bytes, which the embedded signature, when present, covers.
type Delivery struct {
	MessageID    string
	Subscription string
	Signature    string
	Data         []byte
	Notification *DeveloperNotification
}

// DecodePush parses a Pub/Sub push body. Anything that is not a push
// envelope carrying a developer notification is a malformed payload.
func DecodePush(body []byte) (*Delivery, error) {
	var env PushEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, apperrors.NewMalformedPayloadError("body is not a push envelope", err.Error())
	}
	if env.Message.Data == "" {
		return nil, apperrors.NewMalformedPayloadError("push message has no data")
	}
	data, err := base64.StdEncoding.DecodeString(env.Message.Data)
	if err != nil {
		return nil, apperrors.NewMalformedPayloadError("push message data is not base64", err.Error())
	}

	var n DeveloperNotification
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, apperrors.NewMalformedPayloadError("message data is not a developer notification", err.Error())
	}
	if n.PackageName == "" {
		return nil, apperrors.NewMalformedPayloadError("developer notification has no package name")
	}
	if n.SubscriptionNotification == nil && n.OneTimeProductNotification == nil &&
		n.VoidedPurchaseNotification == nil && n.TestNotification == nil {
		return nil, apperrors.NewMalformedPayloadError("developer notification is empty")
	}

	return &Delivery{
		MessageID:    env.Message.MessageID,
		Subscription: env.Subscription,
		Signature:    env.Message.Attributes["signature"],
		Data:         data,
		Notification: &n,
	}, nil
}
