package usecases

import (
	"fmt"
	"time"

	"github.com/storesync/storesync/internal/domain/subscription"
	vo "github.com/storesync/storesync/internal/domain/subscription/valueobjects"
	"github.com/storesync/storesync/internal/infrastructure/appstore"
	"github.com/storesync/storesync/internal/infrastructure/playstore"
	"github.com/storesync/storesync/internal/shared/utils"
)

type appStoreKey struct {
	notificationType string
	subtype          string
}

// anySubtype matches every subtype of a notification type that has no
// more specific entry.
const anySubtype = "*"

var appStoreKinds = map[appStoreKey]vo.EventKind{
	{appstore.NotificationSubscribed, appstore.SubtypeInitialBuy}:                    vo.EventPurchased,
	{appstore.NotificationSubscribed, appstore.SubtypeResubscribe}:                   vo.EventRestarted,
	{appstore.NotificationDidChangeRenewalPref, appstore.SubtypeResubscribe}:         vo.EventRestarted,
	{appstore.NotificationDidRenew, anySubtype}:                                      vo.EventRenewed,
	{appstore.NotificationDidFailToRenew, appstore.SubtypeGracePeriod}:               vo.EventGracePeriod,
	{appstore.NotificationDidFailToRenew, anySubtype}:                                vo.EventOnHold,
	{appstore.NotificationRevoke, anySubtype}:                                        vo.EventExpired,
	{appstore.NotificationExpired, anySubtype}:                                       vo.EventExpired,
	{appstore.NotificationRefund, anySubtype}:                                        vo.EventRefunded,
	{appstore.NotificationDidChangeRenewalStatus, appstore.SubtypeAutoRenewDisabled}: vo.EventAutoRenewDisabled,
	{appstore.NotificationDidChangeRenewalStatus, appstore.SubtypeAutoRenewEnabled}:  vo.EventAutoRenewEnabled,
	{appstore.NotificationDidRecover, anySubtype}:                                    vo.EventRecovered,
	{appstore.NotificationTest, anySubtype}:                                          vo.EventUnknown,
}

// AppStoreKind maps a V2 notification type and subtype onto an event kind.
// Pairs without a mapping are UNKNOWN.
func AppStoreKind(notificationType, subtype string) vo.EventKind {
	if k, ok := appStoreKinds[appStoreKey{notificationType, subtype}]; ok {
		return k
	}
	if k, ok := appStoreKinds[appStoreKey{notificationType, anySubtype}]; ok {
		return k
	}
	return vo.EventUnknown
}

var playKinds = map[playstore.NotificationType]vo.EventKind{
	playstore.TypeRecovered:     vo.EventRecovered,
	playstore.TypeRenewed:       vo.EventRenewed,
	playstore.TypeCanceled:      vo.EventCanceled,
	playstore.TypePurchased:     vo.EventPurchased,
	playstore.TypeOnHold:        vo.EventOnHold,
	playstore.TypeInGracePeriod: vo.EventGracePeriod,
	playstore.TypeRestarted:     vo.EventRestarted,
	playstore.TypeRevoked:       vo.EventRefunded,
	playstore.TypeExpired:       vo.EventExpired,
}

// PlayKind maps an RTDN subscription notification type onto an event kind.
func PlayKind(t playstore.NotificationType) vo.EventKind {
	if k, ok := playKinds[t]; ok {
		return k
	}
	return vo.EventUnknown
}

// NormalizeAppStoreTransaction builds the event for kind from a verified
// transaction.
func NormalizeAppStoreTransaction(kind vo.EventKind, tx *appstore.TransactionClaims) (subscription.Event, error) {
	env, err := vo.ParseEnvironment(tx.Environment)
	if err != nil {
		return subscription.Event{}, fmt.Errorf("transaction %s: %w", tx.TransactionID, err)
	}

	currency := utils.NormalizeCurrency(tx.Currency)
	payment := vo.PaymentStateReceived
	if tx.IsFreeTrial() {
		payment = vo.PaymentStateFreeTrial
	}

	evt := subscription.Event{
		Platform:        vo.DeviceTypeIOS,
		Kind:            kind,
		Environment:     env,
		ProductID:       tx.ProductID,
		AnchorID:        tx.OriginalTransactionID,
		TransactionID:   tx.TransactionID,
		Currency:        currency,
		PurchasedAt:     tx.PurchasedAt(),
		ExpiresAt:       tx.ExpiresAt(),
		AppAccountToken: tx.AppAccountToken,
		PaymentState:    payment,
	}
	if currency != "" {
		evt.AmountMinor = utils.MilliunitsToMinor(tx.Price, currency)
	}
	return evt, nil
}

// NormalizePlayPurchase builds the event for kind from the purchase resource
// behind token. eventTime is when Play emitted the notification; it becomes
// the period start of renewals since the resource only carries the start of
// the whole subscription.
func NormalizePlayPurchase(kind vo.EventKind, token, subscriptionID string, p *playstore.SubscriptionPurchase, eventTime time.Time) subscription.Event {
	currency := utils.NormalizeCurrency(p.PriceCurrencyCode)

	purchasedAt := eventTime
	if purchasedAt.IsZero() || kind == vo.EventPurchased || kind == vo.EventRestarted {
		purchasedAt = p.StartedAt()
	}

	txID := p.OrderId
	if txID == "" {
		txID = token
	}

	evt := subscription.Event{
		Platform:        vo.DeviceTypeAndroid,
		Kind:            kind,
		Environment:     p.Environment(),
		ProductID:       subscriptionID,
		AnchorID:        token,
		TransactionID:   txID,
		Currency:        currency,
		PurchasedAt:     purchasedAt,
		ExpiresAt:       p.ExpiresAt(),
		AppAccountToken: p.ObfuscatedExternalAccountId,
		PaymentState:    p.Payment(),
		LinkedAnchorID:  p.LinkedPurchaseToken,
	}
	if currency != "" {
		evt.AmountMinor = utils.MicrosToMinor(p.PriceAmountMicros, currency)
	}
	return evt
}

// NormalizePlayVoided builds the REFUNDED event for a voided subscription
// purchase. Voided notifications carry no purchase resource, so the
// environment is the one of the record holding the token.
func NormalizePlayVoided(n *playstore.VoidedPurchaseNotification, env vo.Environment, eventTime time.Time) subscription.Event {
	txID := n.OrderID
	if txID == "" {
		txID = n.PurchaseToken
	}
	return subscription.Event{
		Platform:      vo.DeviceTypeAndroid,
		Kind:          vo.EventRefunded,
		Environment:   env,
		AnchorID:      n.PurchaseToken,
		TransactionID: txID,
		PurchasedAt:   eventTime,
	}
}
