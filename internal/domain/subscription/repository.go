package subscription

import (
	"context"
	"time"

	vo "github.com/storesync/storesync/internal/domain/subscription/valueobjects"
)

// Repository persists subscription records keyed by (userID, environment).
type Repository interface {
	// Get returns nil, nil when no record exists.
	Get(ctx context.Context, userID uint, env vo.Environment) (*Subscription, error)
	// FindByAnchor returns nil, nil when no record carries the anchor.
	FindByAnchor(ctx context.Context, platform vo.DeviceType, anchorID string, env vo.Environment) (*Subscription, error)
	// Save inserts a new record or compare-and-sets an existing one on its
	// version. A lost race returns ErrConcurrentModification.
	Save(ctx context.Context, sub *Subscription) error
	// ListStale returns live records whose period ended before cutoff.
	ListStale(ctx context.Context, cutoff time.Time, limit int) ([]*Subscription, error)
}
