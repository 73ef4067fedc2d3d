package subscription

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vo "github.com/storesync/storesync/internal/domain/subscription/valueobjects"
)

// --- helpers ---

var (
	t0 = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	t1 = t0.AddDate(0, 1, 0)
	t2 = t1.AddDate(0, 1, 0)
)

func ptr(t time.Time) *time.Time { return &t }

func newRecord(t *testing.T) *Subscription {
	t.Helper()
	sub, err := NewSubscription(42, vo.DeviceTypeIOS, vo.EnvironmentProduction)
	require.NoError(t, err)
	return sub
}

func persistedRecord(t *testing.T, status vo.SubscriptionStatus) *Subscription {
	t.Helper()
	sub, err := ReconstructSubscription(ReconstructParams{
		ID:                   1,
		UserID:               42,
		PlanID:               "premium_monthly",
		DeviceType:           vo.DeviceTypeIOS,
		Environment:          vo.EnvironmentProduction,
		AnchorID:             "1000000001",
		CurrentTransactionID: "2000000001",
		BilledTransactionID:  "2000000001",
		LastEventKind:        vo.EventPurchased,
		Amount:               999,
		Currency:             "usd",
		Status:               status,
		CurrentPeriodStart:   t0,
		CurrentPeriodEnd:     ptr(t1),
		Version:              3,
		CreatedAt:            t0,
		UpdatedAt:            t0,
	})
	require.NoError(t, err)
	return sub
}

func event(kind vo.EventKind, txID string) Event {
	return Event{
		Platform:      vo.DeviceTypeIOS,
		Kind:          kind,
		Environment:   vo.EnvironmentProduction,
		ProductID:     "com.example.premium.monthly",
		AnchorID:      "1000000001",
		TransactionID: txID,
		AmountMinor:   999,
		Currency:      "usd",
		PurchasedAt:   t1,
		ExpiresAt:     ptr(t2),
	}
}

// --- construction ---

func TestNewSubscription_Validation(t *testing.T) {
	_, err := NewSubscription(0, vo.DeviceTypeIOS, vo.EnvironmentProduction)
	assert.Error(t, err)

	_, err = NewSubscription(1, vo.DeviceTypeIOS, "")
	assert.Error(t, err)

	sub := newRecord(t)
	assert.True(t, sub.IsNew())
	assert.Equal(t, vo.StatusIncomplete, sub.Status())
}

func TestReconstructSubscription_RejectsInvalidState(t *testing.T) {
	_, err := ReconstructSubscription(ReconstructParams{ID: 1, UserID: 1, Status: "expired", Version: 1})
	assert.Error(t, err)

	_, err = ReconstructSubscription(ReconstructParams{ID: 1, UserID: 1, Status: vo.StatusActive, Version: 0})
	assert.Error(t, err)
}

// --- PURCHASED ---

func TestApply_PurchasedOnNewRecord(t *testing.T) {
	tests := []struct {
		name       string
		payment    vo.PaymentState
		wantStatus vo.SubscriptionStatus
		wantLedger LedgerAction
	}{
		{"paid", vo.PaymentStateReceived, vo.StatusActive, LedgerAppend},
		{"unspecified payment is paid", "", vo.StatusActive, LedgerAppend},
		{"free trial", vo.PaymentStateFreeTrial, vo.StatusTrialing, LedgerNone},
		{"pending", vo.PaymentStatePending, vo.StatusIncomplete, LedgerNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := newRecord(t)
			evt := event(vo.EventPurchased, "2000000001")
			evt.PurchasedAt = t0
			evt.ExpiresAt = ptr(t1)
			evt.PaymentState = tt.payment

			out, err := sub.Apply(evt, "premium_monthly")
			require.NoError(t, err)

			assert.True(t, out.Changed)
			assert.Equal(t, tt.wantStatus, sub.Status())
			assert.Equal(t, tt.wantLedger, out.Ledger)
			assert.Equal(t, "premium_monthly", sub.PlanID())
			assert.Equal(t, "1000000001", sub.AnchorID())
			assert.Equal(t, "2000000001", sub.CurrentTransactionID())
			assert.Equal(t, t0, sub.CurrentPeriodStart())
			assert.Equal(t, t1, *sub.CurrentPeriodEnd())
			assert.Equal(t, int64(999), sub.Amount())
		})
	}
}

func TestApply_PurchasedRejectedOnActiveRecord(t *testing.T) {
	sub := persistedRecord(t, vo.StatusActive)

	out, err := sub.Apply(event(vo.EventPurchased, "2000000099"), "premium_monthly")

	assert.ErrorIs(t, err, ErrTransitionNotAllowed)
	assert.False(t, out.Changed)
	assert.Equal(t, vo.StatusActive, sub.Status())
	assert.Equal(t, "2000000001", sub.CurrentTransactionID())
}

func TestApply_PurchasedAfterCancelStartsNewAnchor(t *testing.T) {
	sub := persistedRecord(t, vo.StatusCanceled)
	evt := event(vo.EventPurchased, "3000000001")
	evt.AnchorID = "3000000000"

	out, err := sub.Apply(evt, "premium_yearly")
	require.NoError(t, err)

	assert.True(t, out.StatusChanged())
	assert.Equal(t, vo.StatusActive, sub.Status())
	assert.Equal(t, "3000000000", sub.AnchorID())
	assert.Equal(t, "premium_yearly", sub.PlanID())
}

// --- RENEWED ---

func TestApply_RenewedAdvancesPeriodAndAppendsLedger(t *testing.T) {
	sub := persistedRecord(t, vo.StatusActive)

	out, err := sub.Apply(event(vo.EventRenewed, "2000000002"), "premium_monthly")
	require.NoError(t, err)

	assert.Equal(t, LedgerAppend, out.Ledger)
	assert.False(t, out.StatusChanged())
	assert.True(t, out.Changed)
	assert.Equal(t, t1, sub.CurrentPeriodStart())
	assert.Equal(t, t2, *sub.CurrentPeriodEnd())
	assert.Equal(t, "2000000002", sub.CurrentTransactionID())
	assert.Equal(t, vo.EventRenewed, sub.LastEventKind())
}

func TestApply_RenewedNeverShortensPeriod(t *testing.T) {
	sub := persistedRecord(t, vo.StatusActive)
	late := event(vo.EventRenewed, "2000000000")
	late.PurchasedAt = t0.AddDate(0, -1, 0)
	late.ExpiresAt = ptr(t0)

	_, err := sub.Apply(late, "premium_monthly")
	require.NoError(t, err)

	assert.Equal(t, t1, *sub.CurrentPeriodEnd())
	assert.Equal(t, t0, sub.CurrentPeriodStart())
}

func TestApply_RenewedRejectedWhenCanceled(t *testing.T) {
	sub := persistedRecord(t, vo.StatusCanceled)

	_, err := sub.Apply(event(vo.EventRenewed, "2000000002"), "premium_monthly")

	assert.ErrorIs(t, err, ErrTransitionNotAllowed)
	assert.Equal(t, vo.StatusCanceled, sub.Status())
}

func TestApply_RenewedFromPastDueReactivates(t *testing.T) {
	sub := persistedRecord(t, vo.StatusPastDue)

	out, err := sub.Apply(event(vo.EventRenewed, "2000000002"), "premium_monthly")
	require.NoError(t, err)

	assert.Equal(t, vo.StatusActive, out.Status)
	assert.True(t, out.StatusChanged())
}

// --- status-only transitions ---

func TestApply_StatusTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    vo.SubscriptionStatus
		kind    vo.EventKind
		want    vo.SubscriptionStatus
		wantErr error
	}{
		{"recovered from past_due", vo.StatusPastDue, vo.EventRecovered, vo.StatusActive, nil},
		{"recovered from active rejected", vo.StatusActive, vo.EventRecovered, vo.StatusActive, ErrTransitionNotAllowed},
		{"recovered from lapsed canceled", vo.StatusCanceled, vo.EventRecovered, vo.StatusActive, nil},
		{"restarted from canceled", vo.StatusCanceled, vo.EventRestarted, vo.StatusActive, nil},
		{"restarted from canceling", vo.StatusCanceling, vo.EventRestarted, vo.StatusActive, nil},
		{"restarted from active rejected", vo.StatusActive, vo.EventRestarted, vo.StatusActive, ErrTransitionNotAllowed},
		{"auto renew disabled from active", vo.StatusActive, vo.EventAutoRenewDisabled, vo.StatusCanceling, nil},
		{"auto renew disabled from trialing", vo.StatusTrialing, vo.EventAutoRenewDisabled, vo.StatusCanceling, nil},
		{"auto renew disabled from past_due rejected", vo.StatusPastDue, vo.EventAutoRenewDisabled, vo.StatusPastDue, ErrTransitionNotAllowed},
		{"auto renew enabled from canceling", vo.StatusCanceling, vo.EventAutoRenewEnabled, vo.StatusActive, nil},
		{"auto renew enabled from active rejected", vo.StatusActive, vo.EventAutoRenewEnabled, vo.StatusActive, ErrTransitionNotAllowed},
		{"on hold from active", vo.StatusActive, vo.EventOnHold, vo.StatusPastDue, nil},
		{"grace period from active", vo.StatusActive, vo.EventGracePeriod, vo.StatusPastDue, nil},
		{"grace period from canceled rejected", vo.StatusCanceled, vo.EventGracePeriod, vo.StatusCanceled, ErrTransitionNotAllowed},
		{"canceled from active", vo.StatusActive, vo.EventCanceled, vo.StatusCanceling, nil},
		{"canceled from past_due", vo.StatusPastDue, vo.EventCanceled, vo.StatusCanceling, nil},
		{"canceled keeps canceled", vo.StatusCanceled, vo.EventCanceled, vo.StatusCanceled, nil},
		{"expired from canceling", vo.StatusCanceling, vo.EventExpired, vo.StatusCanceled, nil},
		{"expired from active", vo.StatusActive, vo.EventExpired, vo.StatusCanceled, nil},
		{"refunded from active", vo.StatusActive, vo.EventRefunded, vo.StatusCanceled, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := persistedRecord(t, tt.from)

			out, err := sub.Apply(event(tt.kind, "2000000002"), "premium_monthly")

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.False(t, out.Changed)
			} else {
				require.NoError(t, err)
				assert.True(t, out.Changed)
			}
			assert.Equal(t, tt.want, sub.Status())
		})
	}
}

func TestApply_GracePeriodExtendsAccess(t *testing.T) {
	sub := persistedRecord(t, vo.StatusActive)
	evt := event(vo.EventGracePeriod, "2000000001")
	graceEnd := t1.Add(16 * 24 * time.Hour)
	evt.GraceExpiresAt = &graceEnd

	_, err := sub.Apply(evt, "premium_monthly")
	require.NoError(t, err)

	assert.Equal(t, vo.StatusPastDue, sub.Status())
	assert.Equal(t, graceEnd, *sub.CurrentPeriodEnd())
	assert.Equal(t, t0, sub.CurrentPeriodStart())
}

func TestApply_LedgerActions(t *testing.T) {
	tests := []struct {
		from vo.SubscriptionStatus
		kind vo.EventKind
		want LedgerAction
	}{
		{vo.StatusPastDue, vo.EventRecovered, LedgerAppend},
		{vo.StatusCanceled, vo.EventRestarted, LedgerAppend},
		{vo.StatusActive, vo.EventAutoRenewDisabled, LedgerNone},
		{vo.StatusActive, vo.EventOnHold, LedgerNone},
		{vo.StatusActive, vo.EventCanceled, LedgerNone},
		{vo.StatusActive, vo.EventExpired, LedgerNone},
		{vo.StatusActive, vo.EventRefunded, LedgerRefund},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			out, err := persistedRecord(t, tt.from).Apply(event(tt.kind, "2000000002"), "premium_monthly")
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.Ledger)
		})
	}
}

// --- lifecycle kinds on a record that does not exist yet ---

func TestApply_NonBillingKindsRejectedOnNewRecord(t *testing.T) {
	for _, kind := range []vo.EventKind{
		vo.EventAutoRenewDisabled,
		vo.EventAutoRenewEnabled,
		vo.EventOnHold,
		vo.EventGracePeriod,
		vo.EventCanceled,
		vo.EventExpired,
	} {
		t.Run(string(kind), func(t *testing.T) {
			out, err := newRecord(t).Apply(event(kind, "2000000002"), "premium_monthly")
			assert.ErrorIs(t, err, ErrTransitionNotAllowed)
			assert.False(t, out.Changed)
		})
	}
}

func TestApply_RefundOnNewRecordCreatesRevokedRecord(t *testing.T) {
	sub := newRecord(t)

	out, err := sub.Apply(event(vo.EventRefunded, "2000000001"), "premium_monthly")
	require.NoError(t, err)

	assert.Equal(t, LedgerRefund, out.Ledger)
	assert.Equal(t, vo.StatusCanceled, sub.Status())
	assert.True(t, sub.IsRevoked())
	assert.Equal(t, "1000000001", sub.AnchorID())
}

// --- idempotence and guards ---

func TestApply_SameEventTwiceIsDuplicate(t *testing.T) {
	sub := persistedRecord(t, vo.StatusActive)
	evt := event(vo.EventRenewed, "2000000002")

	first, err := sub.Apply(evt, "premium_monthly")
	require.NoError(t, err)
	require.True(t, first.Changed)
	endAfterFirst := *sub.CurrentPeriodEnd()

	second, err := sub.Apply(evt, "premium_monthly")
	require.NoError(t, err)

	assert.True(t, second.Duplicate)
	assert.False(t, second.Changed)
	assert.Equal(t, LedgerNone, second.Ledger)
	assert.Equal(t, vo.StatusActive, sub.Status())
	assert.Equal(t, endAfterFirst, *sub.CurrentPeriodEnd())
}

func TestApply_SameTransactionDifferentKindIsNotDuplicate(t *testing.T) {
	sub := persistedRecord(t, vo.StatusActive)

	out, err := sub.Apply(event(vo.EventAutoRenewDisabled, "2000000001"), "premium_monthly")
	require.NoError(t, err)

	assert.False(t, out.Duplicate)
	assert.Equal(t, vo.StatusCanceling, sub.Status())
}

func TestApply_RedeliveredChargeAfterLifecycleEventIsDuplicate(t *testing.T) {
	sub := persistedRecord(t, vo.StatusActive)
	renewal := event(vo.EventRenewed, "2000000002")
	_, err := sub.Apply(renewal, "premium_monthly")
	require.NoError(t, err)
	_, err = sub.Apply(event(vo.EventAutoRenewDisabled, "2000000002"), "premium_monthly")
	require.NoError(t, err)
	require.Equal(t, vo.StatusCanceling, sub.Status())

	out, err := sub.Apply(renewal, "premium_monthly")
	require.NoError(t, err)

	assert.True(t, out.Duplicate)
	assert.False(t, out.Changed)
	assert.Equal(t, LedgerNone, out.Ledger)
	assert.Equal(t, vo.StatusCanceling, sub.Status())
	assert.Equal(t, "2000000002", sub.BilledTransactionID())
}

func TestApply_ChargeOnLifecycleTransactionIsNotDuplicate(t *testing.T) {
	sub := persistedRecord(t, vo.StatusActive)
	_, err := sub.Apply(event(vo.EventOnHold, "2000000002"), "premium_monthly")
	require.NoError(t, err)

	out, err := sub.Apply(event(vo.EventRecovered, "2000000002"), "premium_monthly")
	require.NoError(t, err)

	assert.False(t, out.Duplicate)
	assert.Equal(t, vo.StatusActive, sub.Status())
	assert.Equal(t, LedgerAppend, out.Ledger)
}

func TestApply_PendingPurchaseSettlesUnderSameTransaction(t *testing.T) {
	sub := newRecord(t)
	pending := event(vo.EventPurchased, "2000000001")
	pending.PaymentState = vo.PaymentStatePending
	_, err := sub.Apply(pending, "premium_monthly")
	require.NoError(t, err)
	sub.MarkPersisted(1)

	again, err := sub.Apply(pending, "premium_monthly")
	require.NoError(t, err)
	assert.True(t, again.Duplicate)

	settled := pending
	settled.PaymentState = vo.PaymentStateReceived
	out, err := sub.Apply(settled, "premium_monthly")
	require.NoError(t, err)

	assert.False(t, out.Duplicate)
	assert.Equal(t, vo.StatusActive, sub.Status())
	assert.Equal(t, LedgerAppend, out.Ledger)
}

func TestApply_RecoveredRejectedAfterRefund(t *testing.T) {
	sub := persistedRecord(t, vo.StatusActive)
	_, err := sub.Apply(event(vo.EventRefunded, "2000000001"), "premium_monthly")
	require.NoError(t, err)

	_, err = sub.Apply(event(vo.EventRecovered, "2000000002"), "premium_monthly")

	assert.ErrorIs(t, err, ErrTransitionNotAllowed)
	assert.Equal(t, vo.StatusCanceled, sub.Status())
}

func TestApply_ExpiredAfterRefundKeepsRevocation(t *testing.T) {
	sub := persistedRecord(t, vo.StatusActive)
	_, err := sub.Apply(event(vo.EventRefunded, "2000000001"), "premium_monthly")
	require.NoError(t, err)
	revokedAt := sub.RevokedAt()

	out, err := sub.Apply(event(vo.EventExpired, "2000000001"), "premium_monthly")
	require.NoError(t, err)

	assert.False(t, out.StatusChanged())
	assert.Equal(t, vo.StatusCanceled, sub.Status())
	assert.Equal(t, revokedAt, sub.RevokedAt())
}

func TestApply_LatePurchaseCannotResurrectRefundedTransaction(t *testing.T) {
	sub := newRecord(t)
	_, err := sub.Apply(event(vo.EventRefunded, "2000000001"), "premium_monthly")
	require.NoError(t, err)
	sub.MarkPersisted(1)

	_, err = sub.Apply(event(vo.EventPurchased, "2000000001"), "premium_monthly")

	assert.ErrorIs(t, err, ErrTransitionNotAllowed)
	assert.Equal(t, vo.StatusCanceled, sub.Status())
}

func TestApply_EnvironmentMismatch(t *testing.T) {
	sub := persistedRecord(t, vo.StatusActive)
	evt := event(vo.EventRenewed, "2000000002")
	evt.Environment = vo.EnvironmentSandbox

	_, err := sub.Apply(evt, "premium_monthly")

	assert.ErrorIs(t, err, ErrEnvironmentMismatch)
	assert.Equal(t, t1, *sub.CurrentPeriodEnd())
}

func TestApply_UnknownKind(t *testing.T) {
	sub := persistedRecord(t, vo.StatusActive)

	out, err := sub.Apply(event(vo.EventUnknown, "2000000002"), "premium_monthly")

	assert.True(t, errors.Is(err, ErrUnknownEventKind))
	assert.False(t, out.Changed)
	assert.Equal(t, "2000000001", sub.CurrentTransactionID())
}

func TestEvent_Validate(t *testing.T) {
	evt := event(vo.EventRenewed, "")
	assert.Error(t, evt.Validate())

	evt = event(vo.EventCanceled, "")
	assert.NoError(t, evt.Validate())

	evt.AnchorID = ""
	assert.Error(t, evt.Validate())
}
