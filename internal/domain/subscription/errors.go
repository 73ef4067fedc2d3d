package subscription

import (
	"errors"
	"fmt"

	vo "github.com/storesync/storesync/internal/domain/subscription/valueobjects"
)

var (
	ErrSubscriptionNotFound   = errors.New("subscription not found")
	ErrTransitionNotAllowed   = errors.New("transition not allowed")
	ErrUnknownEventKind       = errors.New("unknown event kind")
	ErrEnvironmentMismatch    = errors.New("event environment does not match record")
	ErrConcurrentModification = errors.New("subscription modified concurrently")
)

func errTransition(kind vo.EventKind, from vo.SubscriptionStatus, isNew bool) error {
	if isNew {
		return fmt.Errorf("%w: %s on a new record", ErrTransitionNotAllowed, kind)
	}
	return fmt.Errorf("%w: %s from %s", ErrTransitionNotAllowed, kind, from)
}
