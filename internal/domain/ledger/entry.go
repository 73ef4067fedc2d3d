package ledger

import (
	"fmt"
	"time"

	vo "github.com/storesync/storesync/internal/domain/subscription/valueobjects"
	"github.com/storesync/storesync/internal/shared/biztime"
)

type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusRefunded  Status = "refunded"
)

// Entry is one completed monetary event. The transaction id is unique; an
// entry only ever moves from succeeded to refunded.
type Entry struct {
	id            uint
	transactionID string
	userID        uint
	planID        string
	platform      vo.DeviceType
	anchorID      string
	environment   vo.Environment
	status        Status
	amount        int64
	currency      string
	paidAt        time.Time
	refundedAt    *time.Time
	createdAt     time.Time
	updatedAt     time.Time
}

// EntryParams describes the money movement behind a transaction.
type EntryParams struct {
	TransactionID string
	UserID        uint
	PlanID        string
	Platform      vo.DeviceType
	AnchorID      string
	Environment   vo.Environment
	Amount        int64
	Currency      string
	PaidAt        time.Time
}

func (p EntryParams) validate() error {
	if p.TransactionID == "" {
		return fmt.Errorf("transaction ID is required")
	}
	if p.UserID == 0 {
		return fmt.Errorf("user ID is required")
	}
	if p.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if p.Amount < 0 {
		return fmt.Errorf("amount cannot be negative")
	}
	return nil
}

// NewEntry returns a succeeded entry.
func NewEntry(p EntryParams) (*Entry, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	now := biztime.NowUTC()
	paidAt := p.PaidAt
	if paidAt.IsZero() {
		paidAt = now
	}
	return &Entry{
		transactionID: p.TransactionID,
		userID:        p.UserID,
		planID:        p.PlanID,
		platform:      p.Platform,
		anchorID:      p.AnchorID,
		environment:   p.Environment,
		status:        StatusSucceeded,
		amount:        p.Amount,
		currency:      p.Currency,
		paidAt:        paidAt.UTC(),
		createdAt:     now,
		updatedAt:     now,
	}, nil
}

// NewRefundedEntry records a refund whose purchase was never seen. The row
// blocks a later purchase delivery from inserting a succeeded entry.
func NewRefundedEntry(p EntryParams) (*Entry, error) {
	e, err := NewEntry(p)
	if err != nil {
		return nil, err
	}
	e.status = StatusRefunded
	e.refundedAt = &e.createdAt
	return e, nil
}

func ReconstructEntry(
	id uint,
	p EntryParams,
	status Status,
	refundedAt *time.Time,
	createdAt, updatedAt time.Time,
) (*Entry, error) {
	if id == 0 {
		return nil, fmt.Errorf("ledger entry ID cannot be zero")
	}
	if status != StatusSucceeded && status != StatusRefunded {
		return nil, fmt.Errorf("invalid ledger status: %s", status)
	}
	return &Entry{
		id:            id,
		transactionID: p.TransactionID,
		userID:        p.UserID,
		planID:        p.PlanID,
		platform:      p.Platform,
		anchorID:      p.AnchorID,
		environment:   p.Environment,
		status:        status,
		amount:        p.Amount,
		currency:      p.Currency,
		paidAt:        p.PaidAt,
		refundedAt:    refundedAt,
		createdAt:     createdAt,
		updatedAt:     updatedAt,
	}, nil
}

func (e *Entry) ID() uint { return e.id }
func (e *Entry) TransactionID() string { return e.transactionID }
func (e *Entry) UserID() uint { return e.userID }
func (e *Entry) PlanID() string { return e.planID }
func (e *Entry) Platform() vo.DeviceType { return e.platform }
func (e *Entry) AnchorID() string { return e.anchorID }
func (e *Entry) Environment() vo.Environment { return e.environment }
func (e *Entry) Status() Status { return e.status }
func (e *Entry) Amount() int64 { return e.amount }
func (e *Entry) Currency() string { return e.currency }
func (e *Entry) PaidAt() time.Time { return e.paidAt }
func (e *Entry) RefundedAt() *time.Time { return e.refundedAt }
func (e *Entry) CreatedAt() time.Time { return e.createdAt }
func (e *Entry) UpdatedAt() time.Time { return e.updatedAt }
func (e *Entry) SetID(id uint) { e.id = id }
func (e *Entry) IsRefunded() bool { return e.status == StatusRefunded }
