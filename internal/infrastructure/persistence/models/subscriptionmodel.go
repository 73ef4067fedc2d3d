package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/storesync/storesync/internal/shared/constants"
)

// SubscriptionModel represents the database persistence model for subscriptions
// This is the anti-corruption layer between domain and database
type SubscriptionModel struct {
	ID                   uint       `gorm:"primarykey"`
	UserID               uint       `gorm:"not null;uniqueIndex:uk_user_environment,priority:1"`
	Environment          string     `gorm:"not null;size:16;uniqueIndex:uk_user_environment,priority:2;index:idx_anchor,priority:3"`
	PlanID               string     `gorm:"size:64"`
	DeviceType           string     `gorm:"not null;size:16;index:idx_anchor,priority:1"`
	ExternalAnchorID     string     `gorm:"size:255;index:idx_anchor,priority:2"`
	CurrentTransactionID string     `gorm:"size:255"`
	BilledTransactionID  string     `gorm:"size:255"`
	LastEventKind        string     `gorm:"size:32"`
	Amount               int64      `gorm:"not null;default:0"`
	Currency             string     `gorm:"size:3"`
	Status               string     `gorm:"not null;size:20;index:idx_status_period_end,priority:1"`
	CurrentPeriodStart   time.Time  `gorm:"not null"`
	CurrentPeriodEnd     *time.Time `gorm:"index:idx_status_period_end,priority:2"`
	RevokedAt            *time.Time
	Version              int `gorm:"not null;default:1"`
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// TableName specifies the table name for GORM
func (SubscriptionModel) TableName() string {
	return constants.TableSubscriptions
}

// BeforeCreate hook for GORM
func (s *SubscriptionModel) BeforeCreate(tx *gorm.DB) error {
	if s.Version == 0 {
		s.Version = 1
	}
	return nil
}
