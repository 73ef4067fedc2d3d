package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/storesync/storesync/internal/domain/ledger"
	"github.com/storesync/storesync/internal/infrastructure/persistence/mappers"
	"github.com/storesync/storesync/internal/infrastructure/persistence/models"
	"github.com/storesync/storesync/internal/shared/biztime"
	"github.com/storesync/storesync/internal/shared/db"
	apperrors "github.com/storesync/storesync/internal/shared/errors"
	"github.com/storesync/storesync/internal/shared/logger"
)

type LedgerRepositoryImpl struct {
	db     *gorm.DB
	logger logger.Interface
}

func NewLedgerRepository(db *gorm.DB, logger logger.Interface) ledger.Repository {
	return &LedgerRepositoryImpl{db: db, logger: logger}
}

// Append relies on the unique transaction id: a second insert for the same
// transaction affects no rows and reports a duplicate.
func (r *LedgerRepositoryImpl) Append(ctx context.Context, e *ledger.Entry) error {
	model := mappers.LedgerEntryToModel(e)
	model.ID = 0

	result := db.GetTxFromContext(ctx, r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "transaction_id"}},
		DoNothing: true,
	}).Create(model)
	if result.Error != nil {
		r.logger.Errorw("failed to append ledger entry", "transaction_id", model.TransactionID, "error", result.Error)
		return fmt.Errorf("failed to append ledger entry: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.NewDuplicateTransactionError("transaction already recorded", model.TransactionID)
	}
	e.SetID(model.ID)
	return nil
}

func (r *LedgerRepositoryImpl) MarkRefunded(ctx context.Context, transactionID string) (bool, error) {
	tx := db.GetTxFromContext(ctx, r.db)
	now := biztime.NowUTC()

	result := tx.Model(&models.LedgerEntryModel{}).
		Where("transaction_id = ? AND status = ?", transactionID, string(ledger.StatusSucceeded)).
		Updates(map[string]interface{}{
			"status":      string(ledger.StatusRefunded),
			"refunded_at": now,
			"updated_at":  now,
		})
	if result.Error != nil {
		r.logger.Errorw("failed to mark ledger entry refunded", "transaction_id", transactionID, "error", result.Error)
		return false, fmt.Errorf("failed to mark ledger entry refunded: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		return true, nil
	}

	var count int64
	if err := tx.Model(&models.LedgerEntryModel{}).
		Where("transaction_id = ?", transactionID).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check ledger entry: %w", err)
	}
	return count > 0, nil
}

func (r *LedgerRepositoryImpl) GetByTransactionID(ctx context.Context, transactionID string) (*ledger.Entry, error) {
	var model models.LedgerEntryModel
	err := db.GetTxFromContext(ctx, r.db).Where("transaction_id = ?", transactionID).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger entry: %w", err)
	}
	return mappers.LedgerEntryToEntity(&model)
}

func (r *LedgerRepositoryImpl) ListByUser(ctx context.Context, userID uint) ([]*ledger.Entry, error) {
	var rows []*models.LedgerEntryModel
	if err := db.GetTxFromContext(ctx, r.db).
		Where("user_id = ?", userID).
		Order("paid_at ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}

	entries := make([]*ledger.Entry, 0, len(rows))
	for _, row := range rows {
		e, err := mappers.LedgerEntryToEntity(row)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}
