package usecases

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vo "github.com/storesync/storesync/internal/domain/subscription/valueobjects"
	"github.com/storesync/storesync/internal/infrastructure/appstore"
	"github.com/storesync/storesync/internal/infrastructure/playstore"
)

func TestAppStoreKind(t *testing.T) {
	tests := []struct {
		typ, subtype string
		want         vo.EventKind
	}{
		{appstore.NotificationSubscribed, appstore.SubtypeInitialBuy, vo.EventPurchased},
		{appstore.NotificationSubscribed, appstore.SubtypeResubscribe, vo.EventRestarted},
		{appstore.NotificationDidChangeRenewalPref, appstore.SubtypeResubscribe, vo.EventRestarted},
		{appstore.NotificationDidChangeRenewalPref, appstore.SubtypeUpgrade, vo.EventUnknown},
		{appstore.NotificationDidRenew, "", vo.EventRenewed},
		{appstore.NotificationDidRenew, appstore.SubtypeBillingRecovery, vo.EventRenewed},
		{appstore.NotificationDidFailToRenew, "", vo.EventOnHold},
		{appstore.NotificationDidFailToRenew, appstore.SubtypeGracePeriod, vo.EventGracePeriod},
		{appstore.NotificationRevoke, "", vo.EventExpired},
		{appstore.NotificationExpired, appstore.SubtypeVoluntary, vo.EventExpired},
		{appstore.NotificationRefund, "", vo.EventRefunded},
		{appstore.NotificationDidChangeRenewalStatus, appstore.SubtypeAutoRenewDisabled, vo.EventAutoRenewDisabled},
		{appstore.NotificationDidChangeRenewalStatus, appstore.SubtypeAutoRenewEnabled, vo.EventAutoRenewEnabled},
		{appstore.NotificationDidRecover, "", vo.EventRecovered},
		{appstore.NotificationTest, "", vo.EventUnknown},
		{"CONSUMPTION_REQUEST", "", vo.EventUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, AppStoreKind(tt.typ, tt.subtype), "%s/%s", tt.typ, tt.subtype)
	}
}

func TestPlayKind(t *testing.T) {
	tests := map[playstore.NotificationType]vo.EventKind{
		1:  vo.EventRecovered,
		2:  vo.EventRenewed,
		3:  vo.EventCanceled,
		4:  vo.EventPurchased,
		5:  vo.EventOnHold,
		6:  vo.EventGracePeriod,
		7:  vo.EventRestarted,
		8:  vo.EventUnknown,
		10: vo.EventUnknown,
		12: vo.EventRefunded,
		13: vo.EventExpired,
		99: vo.EventUnknown,
	}
	for typ, want := range tests {
		assert.Equal(t, want, PlayKind(typ), "type %d", typ)
	}
}

func TestNormalizeAppStoreTransaction(t *testing.T) {
	purchased := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	tx := &appstore.TransactionClaims{
		TransactionID:         "2000000010",
		OriginalTransactionID: "2000000001",
		ProductID:             testIOSProductID,
		PurchaseDate:          purchased.UnixMilli(),
		ExpiresDate:           purchased.AddDate(0, 1, 0).UnixMilli(),
		AppAccountToken:       "token-42",
		Environment:           "Sandbox",
		Currency:              "JPY",
		Price:                 1200000,
	}

	evt, err := NormalizeAppStoreTransaction(vo.EventRenewed, tx)
	require.NoError(t, err)

	assert.Equal(t, vo.DeviceTypeIOS, evt.Platform)
	assert.Equal(t, vo.EventRenewed, evt.Kind)
	assert.Equal(t, vo.EnvironmentSandbox, evt.Environment)
	assert.Equal(t, "2000000001", evt.AnchorID)
	assert.Equal(t, "2000000010", evt.TransactionID)
	assert.Equal(t, "jpy", evt.Currency)
	assert.Equal(t, int64(1200), evt.AmountMinor)
	assert.Equal(t, purchased, evt.PurchasedAt)
	assert.Equal(t, purchased.AddDate(0, 1, 0), *evt.ExpiresAt)
	assert.Equal(t, vo.PaymentStateReceived, evt.PaymentState)

	tx.OfferType, tx.Price = 1, 0
	evt, err = NormalizeAppStoreTransaction(vo.EventPurchased, tx)
	require.NoError(t, err)
	assert.Equal(t, vo.PaymentStateFreeTrial, evt.PaymentState)

	tx.Environment = "Staging"
	_, err = NormalizeAppStoreTransaction(vo.EventPurchased, tx)
	assert.Error(t, err)
}

func TestNormalizePlayPurchase(t *testing.T) {
	start := time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)
	eventTime := start.AddDate(0, 2, 0)
	p := playPurchase("GPA.3", start)
	p.LinkedPurchaseToken = "old-token"

	evt := NormalizePlayPurchase(vo.EventRenewed, "token-3", testAndroidSKU, p, eventTime)

	assert.Equal(t, vo.DeviceTypeAndroid, evt.Platform)
	assert.Equal(t, vo.EnvironmentProduction, evt.Environment)
	assert.Equal(t, "token-3", evt.AnchorID)
	assert.Equal(t, "GPA.3", evt.TransactionID)
	assert.Equal(t, testAndroidSKU, evt.ProductID)
	assert.Equal(t, int64(499), evt.AmountMinor)
	assert.Equal(t, "eur", evt.Currency)
	assert.Equal(t, eventTime, evt.PurchasedAt)
	assert.Equal(t, "42", evt.AppAccountToken)
	assert.Equal(t, "old-token", evt.LinkedAnchorID)

	purchase := NormalizePlayPurchase(vo.EventPurchased, "token-3", testAndroidSKU, p, eventTime)
	assert.Equal(t, start, purchase.PurchasedAt)

	p.OrderId = ""
	noOrder := NormalizePlayPurchase(vo.EventRenewed, "token-3", testAndroidSKU, p, eventTime)
	assert.Equal(t, "token-3", noOrder.TransactionID)
}

func TestNormalizePlayVoided(t *testing.T) {
	now := time.Now().UTC()
	evt := NormalizePlayVoided(&playstore.VoidedPurchaseNotification{PurchaseToken: "token-1", OrderID: "GPA.1"}, vo.EnvironmentSandbox, now)

	assert.Equal(t, vo.EventRefunded, evt.Kind)
	assert.Equal(t, vo.EnvironmentSandbox, evt.Environment)
	assert.Equal(t, "token-1", evt.AnchorID)
	assert.Equal(t, "GPA.1", evt.TransactionID)
}
