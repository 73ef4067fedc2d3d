// Package delivery records every store notification received, so operators
// can audit deliveries that were acknowledged but not applied.
package delivery

import (
	"context"
	"encoding/json"
	"time"

	vo "github.com/storesync/storesync/internal/domain/subscription/valueobjects"
)

type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeRejected  Outcome = "rejected"
	OutcomeFailed    Outcome = "failed"
)

// Record is one received notification.
type Record struct {
	ID               uint
	Platform         vo.DeviceType
	NotificationID   string
	NotificationType string
	Subtype          string
	Environment      vo.Environment
	Outcome          Outcome
	Error            string
	Payload          json.RawMessage
	ReceivedAt       time.Time
}

type Repository interface {
	// Record stores r. A second record for the same platform and
	// notification id overwrites the outcome of the first.
	Record(ctx context.Context, r *Record) error
	ListFailed(ctx context.Context, since time.Time, limit int) ([]*Record, error)
}
