package subscription

import (
	"fmt"
	"time"

	vo "github.com/storesync/storesync/internal/domain/subscription/valueobjects"
	"github.com/storesync/storesync/internal/shared/biztime"
)

// LedgerAction tells the caller what an applied event means for the ledger.
type LedgerAction int

const (
	LedgerNone LedgerAction = iota
	LedgerAppend
	LedgerRefund
)

func (a LedgerAction) String() string {
	switch a {
	case LedgerAppend:
		return "append"
	case LedgerRefund:
		return "refund"
	default:
		return "none"
	}
}

// Outcome describes the effect of Apply.
type Outcome struct {
	PreviousStatus vo.SubscriptionStatus
	Status         vo.SubscriptionStatus
	// Changed is true when the record must be persisted.
	Changed bool
	// Duplicate is true when the event was already applied.
	Duplicate bool
	Ledger    LedgerAction
}

// StatusChanged reports whether the visible status moved.
func (o Outcome) StatusChanged() bool {
	return o.Changed && o.PreviousStatus != o.Status
}

// Subscription is the per-user, per-environment subscription record.
type Subscription struct {
	id                   uint
	userID               uint
	planID               string
	deviceType           vo.DeviceType
	environment          vo.Environment
	anchorID             string
	currentTransactionID string
	billedTransactionID  string
	lastEventKind        vo.EventKind
	amount               int64
	currency             string
	status               vo.SubscriptionStatus
	currentPeriodStart   time.Time
	currentPeriodEnd     *time.Time
	revokedAt            *time.Time
	version              int
	createdAt            time.Time
	updatedAt            time.Time
}

// NewSubscription returns an unsaved, empty record. Only PURCHASED,
// RENEWED, RECOVERED, RESTARTED and REFUNDED may be applied to it.
func NewSubscription(userID uint, deviceType vo.DeviceType, env vo.Environment) (*Subscription, error) {
	if userID == 0 {
		return nil, fmt.Errorf("user ID is required")
	}
	if env == "" {
		return nil, fmt.Errorf("environment is required")
	}
	now := biztime.NowUTC()
	return &Subscription{
		userID:      userID,
		deviceType:  deviceType,
		environment: env,
		status:      vo.StatusIncomplete,
		createdAt:   now,
		updatedAt:   now,
	}, nil
}

// ReconstructParams carries persisted state back into an aggregate.
type ReconstructParams struct {
	ID                   uint
	UserID               uint
	PlanID               string
	DeviceType           vo.DeviceType
	Environment          vo.Environment
	AnchorID             string
	CurrentTransactionID string
	BilledTransactionID  string
	LastEventKind        vo.EventKind
	Amount               int64
	Currency             string
	Status               vo.SubscriptionStatus
	CurrentPeriodStart   time.Time
	CurrentPeriodEnd     *time.Time
	RevokedAt            *time.Time
	Version              int
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

func ReconstructSubscription(p ReconstructParams) (*Subscription, error) {
	if p.ID == 0 {
		return nil, fmt.Errorf("subscription ID cannot be zero")
	}
	if p.UserID == 0 {
		return nil, fmt.Errorf("user ID is required")
	}
	if _, err := vo.ParseStatus(string(p.Status)); err != nil {
		return nil, err
	}
	if p.Version < 1 {
		return nil, fmt.Errorf("persisted subscription must have version >= 1")
	}
	return &Subscription{
		id:                   p.ID,
		userID:               p.UserID,
		planID:               p.PlanID,
		deviceType:           p.DeviceType,
		environment:          p.Environment,
		anchorID:             p.AnchorID,
		currentTransactionID: p.CurrentTransactionID,
		billedTransactionID:  p.BilledTransactionID,
		lastEventKind:        p.LastEventKind,
		amount:               p.Amount,
		currency:             p.Currency,
		status:               p.Status,
		currentPeriodStart:   p.CurrentPeriodStart,
		currentPeriodEnd:     p.CurrentPeriodEnd,
		revokedAt:            p.RevokedAt,
		version:              p.Version,
		createdAt:            p.CreatedAt,
		updatedAt:            p.UpdatedAt,
	}, nil
}

func (s *Subscription) ID() uint { return s.id }
func (s *Subscription) UserID() uint { return s.userID }
func (s *Subscription) PlanID() string { return s.planID }
func (s *Subscription) DeviceType() vo.DeviceType { return s.deviceType }
func (s *Subscription) Environment() vo.Environment { return s.environment }
func (s *Subscription) AnchorID() string { return s.anchorID }
func (s *Subscription) CurrentTransactionID() string { return s.currentTransactionID }
func (s *Subscription) LastEventKind() vo.EventKind { return s.lastEventKind }

// BilledTransactionID is the transaction of the last billing event applied.
func (s *Subscription) BilledTransactionID() string { return s.billedTransactionID }
func (s *Subscription) Amount() int64 { return s.amount }
func (s *Subscription) Currency() string { return s.currency }
func (s *Subscription) Status() vo.SubscriptionStatus { return s.status }
func (s *Subscription) CurrentPeriodStart() time.Time { return s.currentPeriodStart }
func (s *Subscription) CurrentPeriodEnd() *time.Time { return s.currentPeriodEnd }
func (s *Subscription) RevokedAt() *time.Time { return s.revokedAt }
func (s *Subscription) Version() int { return s.version }
func (s *Subscription) CreatedAt() time.Time { return s.createdAt }
func (s *Subscription) UpdatedAt() time.Time { return s.updatedAt }
func (s *Subscription) SetID(id uint) { s.id = id }
func (s *Subscription) IsRevoked() bool { return s.revokedAt != nil }
func (s *Subscription) IsEntitled() bool { return s.status.IsEntitled() }
func (s *Subscription) IsExpiredAt(now time.Time) bool {
	return s.currentPeriodEnd != nil && !s.currentPeriodEnd.After(now)
}

// IsNew reports whether the record has never been persisted.
func (s *Subscription) IsNew() bool {
	return s.version == 0
}

// MarkPersisted is called by the repository after a successful write.
func (s *Subscription) MarkPersisted(version int) {
	s.version = version
}

// IsDuplicate reports whether evt has already been applied. A billing
// event is keyed by its transaction alone, so a redelivered charge stays a
// duplicate after later lifecycle events. The one exception is a pending
// purchase settling under the same transaction.
func (s *Subscription) IsDuplicate(evt Event) bool {
	if evt.TransactionID == "" {
		return false
	}
	if evt.Kind.IsBilling() {
		if evt.TransactionID != s.billedTransactionID {
			return false
		}
		settling := s.status == vo.StatusIncomplete && evt.PaymentState != vo.PaymentStatePending
		return !settling
	}
	return evt.TransactionID == s.currentTransactionID && evt.Kind == s.lastEventKind
}

// Apply runs evt through the transition table. planID is the catalog plan
// resolved for evt.ProductID and is recorded on billing events.
//
// A precondition failure returns ErrTransitionNotAllowed and leaves the
// record untouched. UNKNOWN returns ErrUnknownEventKind.
func (s *Subscription) Apply(evt Event, planID string) (Outcome, error) {
	out := Outcome{PreviousStatus: s.status, Status: s.status}

	if evt.Environment != s.environment {
		return out, fmt.Errorf("%w: %s event for %s record", ErrEnvironmentMismatch, evt.Environment, s.environment)
	}
	isNew := s.IsNew()
	from := s.status

	// A refunded transaction never comes back to life.
	if s.IsRevoked() && evt.Kind.IsBilling() && evt.TransactionID == s.currentTransactionID {
		return out, errTransition(evt.Kind, from, isNew)
	}
	if s.IsDuplicate(evt) {
		out.Duplicate = true
		return out, nil
	}

	switch evt.Kind {
	case vo.EventPurchased:
		if !isNew && from != vo.StatusIncomplete && from != vo.StatusCanceled {
			return out, errTransition(evt.Kind, from, isNew)
		}
		switch evt.PaymentState {
		case vo.PaymentStateFreeTrial:
			s.status = vo.StatusTrialing
		case vo.PaymentStatePending:
			s.status = vo.StatusIncomplete
		default:
			s.status = vo.StatusActive
		}
		s.startNewAnchor(evt, planID)
		if s.status == vo.StatusActive && evt.IsPaid() {
			out.Ledger = LedgerAppend
		}

	case vo.EventRenewed:
		if from == vo.StatusCanceled && !isNew {
			return out, errTransition(evt.Kind, from, isNew)
		}
		s.status = vo.StatusActive
		s.recordBilling(evt, planID)
		s.advancePeriod(evt, false)
		out.Ledger = LedgerAppend

	case vo.EventRecovered:
		// a lapsed record that was never refunded can still recover
		lapsed := from == vo.StatusCanceled && !s.IsRevoked()
		if !isNew && from != vo.StatusPastDue && from != vo.StatusIncomplete && !lapsed {
			return out, errTransition(evt.Kind, from, isNew)
		}
		s.status = vo.StatusActive
		s.recordBilling(evt, planID)
		s.advancePeriod(evt, false)
		out.Ledger = LedgerAppend

	case vo.EventRestarted:
		if !isNew && from != vo.StatusCanceled && from != vo.StatusCanceling {
			return out, errTransition(evt.Kind, from, isNew)
		}
		s.status = vo.StatusActive
		s.startNewAnchor(evt, planID)
		out.Ledger = LedgerAppend

	case vo.EventAutoRenewDisabled:
		if isNew || (from != vo.StatusActive && from != vo.StatusTrialing) {
			return out, errTransition(evt.Kind, from, isNew)
		}
		s.status = vo.StatusCanceling

	case vo.EventAutoRenewEnabled:
		if isNew || from != vo.StatusCanceling {
			return out, errTransition(evt.Kind, from, isNew)
		}
		s.status = vo.StatusActive

	case vo.EventOnHold, vo.EventGracePeriod:
		if isNew || (from != vo.StatusActive && from != vo.StatusTrialing) {
			return out, errTransition(evt.Kind, from, isNew)
		}
		s.status = vo.StatusPastDue
		s.extendForGrace(evt.GraceExpiresAt)

	case vo.EventCanceled:
		if isNew {
			return out, errTransition(evt.Kind, from, isNew)
		}
		if from != vo.StatusCanceled {
			s.status = vo.StatusCanceling
		}

	case vo.EventExpired:
		if isNew {
			return out, errTransition(evt.Kind, from, isNew)
		}
		if !s.IsRevoked() {
			s.status = vo.StatusCanceled
		}

	case vo.EventRefunded:
		now := biztime.NowUTC()
		s.status = vo.StatusCanceled
		s.revokedAt = &now
		if isNew {
			s.anchorID = evt.AnchorID
			s.planID = planID
			s.deviceType = evt.Platform
		}
		out.Ledger = LedgerRefund

	case vo.EventUnknown:
		return out, ErrUnknownEventKind

	default:
		return out, fmt.Errorf("%w: %q", ErrUnknownEventKind, evt.Kind)
	}

	if s.anchorID == "" {
		s.anchorID = evt.AnchorID
	}
	if evt.TransactionID != "" {
		s.currentTransactionID = evt.TransactionID
		if evt.Kind.IsBilling() {
			s.billedTransactionID = evt.TransactionID
		}
	}
	s.lastEventKind = evt.Kind
	s.updatedAt = biztime.NowUTC()

	out.Status = s.status
	out.Changed = true
	return out, nil
}

// startNewAnchor begins a new billing lineage: bounds reset to the event's
// period and any earlier revocation is cleared.
func (s *Subscription) startNewAnchor(evt Event, planID string) {
	s.anchorID = evt.AnchorID
	s.deviceType = evt.Platform
	s.revokedAt = nil
	s.recordBilling(evt, planID)
	s.advancePeriod(evt, true)
}

// extendForGrace moves the period end out to the end of a grace period.
func (s *Subscription) extendForGrace(until *time.Time) {
	if until == nil {
		return
	}
	if s.currentPeriodEnd == nil || until.After(*s.currentPeriodEnd) {
		s.currentPeriodEnd = biztime.ToUTCPtr(until)
	}
}

func (s *Subscription) recordBilling(evt Event, planID string) {
	if planID != "" {
		s.planID = planID
	}
	if evt.Currency != "" {
		s.amount = evt.AmountMinor
		s.currency = evt.Currency
	}
}

// advancePeriod moves the period forward. Without reset, an event whose
// expiry is not later than the stored one leaves the bounds alone so a late
// delivery cannot shorten a period.
func (s *Subscription) advancePeriod(evt Event, reset bool) {
	if !reset && s.currentPeriodEnd != nil && evt.ExpiresAt != nil && !evt.ExpiresAt.After(*s.currentPeriodEnd) {
		return
	}
	if !evt.PurchasedAt.IsZero() {
		s.currentPeriodStart = evt.PurchasedAt.UTC()
	}
	if evt.ExpiresAt != nil {
		s.currentPeriodEnd = biztime.ToUTCPtr(evt.ExpiresAt)
	}
}
