package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/storesync/storesync/internal/shared/constants"
)

// NotificationLogModel records every store notification delivery.
type NotificationLogModel struct {
	ID               uint   `gorm:"primarykey"`
	Platform         string `gorm:"not null;size:16;uniqueIndex:uk_platform_notification,priority:1"`
	NotificationID   string `gorm:"not null;size:128;uniqueIndex:uk_platform_notification,priority:2"`
	NotificationType string `gorm:"size:64"`
	Subtype          string `gorm:"size:64"`
	Environment      string `gorm:"size:16"`
	Outcome          string `gorm:"not null;size:16;index:idx_outcome_received,priority:1"`
	Error            string `gorm:"size:1000"`
	Payload          datatypes.JSON
	ReceivedAt       time.Time `gorm:"not null;index:idx_outcome_received,priority:2"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (NotificationLogModel) TableName() string {
	return constants.TableNotifications
}
