package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/storesync/storesync/internal/domain/user"
	"github.com/storesync/storesync/internal/infrastructure/persistence/models"
	"github.com/storesync/storesync/internal/shared/biztime"
	"github.com/storesync/storesync/internal/shared/db"
	apperrors "github.com/storesync/storesync/internal/shared/errors"
	"github.com/storesync/storesync/internal/shared/logger"
)

// UserDirectoryImpl reads and writes the billing columns of the users table.
type UserDirectoryImpl struct {
	db     *gorm.DB
	logger logger.Interface
}

func NewUserDirectory(db *gorm.DB, logger logger.Interface) user.Directory {
	return &UserDirectoryImpl{db: db, logger: logger}
}

// ResolveAccountToken looks up the user whose app account token matches.
// Tokens are UUIDs; anything else resolves to no user.
func (r *UserDirectoryImpl) ResolveAccountToken(ctx context.Context, token string) (uint, error) {
	parsed, err := uuid.Parse(token)
	if err != nil {
		return 0, nil
	}
	var model models.UserModel
	err = db.GetTxFromContext(ctx, r.db).
		Select("id").
		Where("app_account_token = ?", parsed.String()).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to resolve app account token: %w", err)
	}
	return model.ID, nil
}

func (r *UserDirectoryImpl) Exists(ctx context.Context, userID uint) (bool, error) {
	var count int64
	if err := db.GetTxFromContext(ctx, r.db).
		Model(&models.UserModel{}).
		Where("id = ?", userID).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check user: %w", err)
	}
	return count > 0, nil
}

func (r *UserDirectoryImpl) SetPremium(ctx context.Context, userID uint, premium bool) error {
	result := db.GetTxFromContext(ctx, r.db).
		Model(&models.UserModel{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"is_premium": premium,
			"updated_at": biztime.NowUTC(),
		})
	if result.Error != nil {
		r.logger.Errorw("failed to set premium flag", "user_id", userID, "premium", premium, "error", result.Error)
		return fmt.Errorf("failed to set premium flag: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.NewNotFoundError("user not found", fmt.Sprintf("user_id=%d", userID))
	}
	return nil
}
