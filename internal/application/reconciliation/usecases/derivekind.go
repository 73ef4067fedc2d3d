package usecases

import (
	"time"

	"github.com/storesync/storesync/internal/domain/subscription"
	vo "github.com/storesync/storesync/internal/domain/subscription/valueobjects"
)

// authoritativeState is what a store reports about the latest transaction
// of a subscription, independent of any notification.
type authoritativeState struct {
	TransactionID string
	Revoked       bool
	ExpiresAt     *time.Time
}

// deriveKind picks the event kind that moves the stored record to the
// state the store reports. It is used where no notification names the
// kind: receipt validation and the recovery sweep.
func deriveKind(sub *subscription.Subscription, st authoritativeState, now time.Time) vo.EventKind {
	if st.Revoked {
		return vo.EventRefunded
	}
	if st.ExpiresAt != nil && !st.ExpiresAt.After(now) {
		return vo.EventExpired
	}
	if sub != nil && !sub.IsNew() && st.TransactionID != "" &&
		st.TransactionID == sub.CurrentTransactionID() && sub.LastEventKind() != "" {
		// already reflected; replaying the last kind makes it a duplicate
		return sub.LastEventKind()
	}
	if sub == nil || sub.IsNew() || sub.Status() == vo.StatusIncomplete {
		return vo.EventPurchased
	}
	switch sub.Status() {
	case vo.StatusCanceled:
		return vo.EventRestarted
	case vo.StatusPastDue:
		return vo.EventRecovered
	default:
		return vo.EventRenewed
	}
}
