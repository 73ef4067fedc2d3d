package models

import (
	"time"

	"github.com/storesync/storesync/internal/shared/constants"
)

// UserModel is the subset of the users table this service reads and writes.
type UserModel struct {
	ID              uint    `gorm:"primarykey"`
	AppAccountToken *string `gorm:"size:36;uniqueIndex:uk_app_account_token"`
	IsPremium       bool    `gorm:"not null;default:false"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (UserModel) TableName() string {
	return constants.TableUsers
}
