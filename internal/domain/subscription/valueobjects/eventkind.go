package valueobjects

import "fmt"

// EventKind is the store-agnostic lifecycle event vocabulary. The set is
// closed: code switching over it must handle every value.
type EventKind string

const (
	EventPurchased         EventKind = "PURCHASED"
	EventRenewed           EventKind = "RENEWED"
	EventRecovered         EventKind = "RECOVERED"
	EventRestarted         EventKind = "RESTARTED"
	EventAutoRenewDisabled EventKind = "AUTO_RENEW_DISABLED"
	EventAutoRenewEnabled  EventKind = "AUTO_RENEW_ENABLED"
	EventGracePeriod       EventKind = "GRACE_PERIOD"
	EventOnHold            EventKind = "ON_HOLD"
	EventCanceled          EventKind = "CANCELED"
	EventExpired           EventKind = "EXPIRED"
	EventRefunded          EventKind = "REFUNDED"
	EventUnknown           EventKind = "UNKNOWN"
)

var knownKinds = map[EventKind]bool{
	EventPurchased:         true,
	EventRenewed:           true,
	EventRecovered:         true,
	EventRestarted:         true,
	EventAutoRenewDisabled: true,
	EventAutoRenewEnabled:  true,
	EventGracePeriod:       true,
	EventOnHold:            true,
	EventCanceled:          true,
	EventExpired:           true,
	EventRefunded:          true,
	EventUnknown:           true,
}

func ParseEventKind(s string) (EventKind, error) {
	k := EventKind(s)
	if !knownKinds[k] {
		return "", fmt.Errorf("invalid event kind: %q", s)
	}
	return k, nil
}

func (k EventKind) String() string {
	return string(k)
}

// IsBilling reports whether the kind carries a new paid period.
func (k EventKind) IsBilling() bool {
	switch k {
	case EventPurchased, EventRenewed, EventRecovered, EventRestarted:
		return true
	default:
		return false
	}
}
