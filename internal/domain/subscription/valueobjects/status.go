package valueobjects

import "fmt"

type SubscriptionStatus string

const (
	StatusIncomplete SubscriptionStatus = "incomplete"
	StatusTrialing   SubscriptionStatus = "trialing"
	StatusActive     SubscriptionStatus = "active"
	StatusPastDue    SubscriptionStatus = "past_due"
	StatusCanceling  SubscriptionStatus = "canceling"
	StatusCanceled   SubscriptionStatus = "canceled"
)

var validStatuses = map[SubscriptionStatus]bool{
	StatusIncomplete: true,
	StatusTrialing:   true,
	StatusActive:     true,
	StatusPastDue:    true,
	StatusCanceling:  true,
	StatusCanceled:   true,
}

func ParseStatus(s string) (SubscriptionStatus, error) {
	st := SubscriptionStatus(s)
	if !validStatuses[st] {
		return "", fmt.Errorf("invalid subscription status: %q", s)
	}
	return st, nil
}

func (s SubscriptionStatus) String() string {
	return string(s)
}

// IsEntitled reports whether the user keeps premium access in this status.
// A canceling subscription stays entitled until its period ends.
func (s SubscriptionStatus) IsEntitled() bool {
	switch s {
	case StatusTrialing, StatusActive, StatusPastDue, StatusCanceling:
		return true
	default:
		return false
	}
}

// IsLive reports whether the platform still owes us lifecycle notifications
// for this status. The recovery sweep only looks at live records.
func (s SubscriptionStatus) IsLive() bool {
	return s != StatusIncomplete && s != StatusCanceled
}

// LiveStatuses lists the statuses for which IsLive is true.
func LiveStatuses() []SubscriptionStatus {
	return []SubscriptionStatus{StatusTrialing, StatusActive, StatusPastDue, StatusCanceling}
}
