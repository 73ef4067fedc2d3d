package models

import (
	"time"

	"github.com/storesync/storesync/internal/shared/constants"
)

// LedgerEntryModel is one row per store transaction. Rows are never deleted.
type LedgerEntryModel struct {
	ID            uint      `gorm:"primarykey"`
	TransactionID string    `gorm:"not null;size:255;uniqueIndex:uk_transaction_id"`
	UserID        uint      `gorm:"not null;index:idx_ledger_user"`
	PlanID        string    `gorm:"size:64"`
	Platform      string    `gorm:"not null;size:16"`
	AnchorID      string    `gorm:"size:255"`
	Environment   string    `gorm:"not null;size:16"`
	Status        string    `gorm:"not null;size:16"`
	Amount        int64     `gorm:"not null;default:0"`
	Currency      string    `gorm:"size:3"`
	PaidAt        time.Time `gorm:"not null"`
	RefundedAt    *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (LedgerEntryModel) TableName() string {
	return constants.TableLedgerEntries
}
