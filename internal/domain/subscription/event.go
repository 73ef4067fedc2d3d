package subscription

import (
	"fmt"
	"time"

	vo "github.com/storesync/storesync/internal/domain/subscription/valueobjects"
)

// Event is one normalized lifecycle notification, independent of the store
// it came from.
type Event struct {
	Platform        vo.DeviceType
	Kind            vo.EventKind
	Environment     vo.Environment
	ProductID       string
	AnchorID        string
	TransactionID   string
	AmountMinor     int64
	Currency        string
	PurchasedAt     time.Time
	ExpiresAt       *time.Time
	AppAccountToken string
	PaymentState    vo.PaymentState

	// NotificationID is the delivery id, carried for logging only.
	NotificationID string
	// LinkedAnchorID is the anchor this purchase replaced, if the store
	// reported one (Android upgrades and resubscriptions).
	LinkedAnchorID string
	// GraceExpiresAt is when a billing grace period ends. Access lasts
	// until then.
	GraceExpiresAt *time.Time
}

// Validate checks the fields every kind needs.
func (e Event) Validate() error {
	if e.Platform == "" {
		return fmt.Errorf("event platform is required")
	}
	if e.Environment == "" {
		return fmt.Errorf("event environment is required")
	}
	if e.AnchorID == "" {
		return fmt.Errorf("event anchor id is required")
	}
	if e.Kind.IsBilling() && e.TransactionID == "" {
		return fmt.Errorf("%s event needs a transaction id", e.Kind)
	}
	return nil
}

// IsPaid reports whether a PURCHASED event represents collected money.
func (e Event) IsPaid() bool {
	return e.PaymentState == "" || e.PaymentState == vo.PaymentStateReceived
}

// IsExpiredAt reports whether the event's expiry lies before now.
func (e Event) IsExpiredAt(now time.Time) bool {
	return e.ExpiresAt != nil && !e.ExpiresAt.After(now)
}
