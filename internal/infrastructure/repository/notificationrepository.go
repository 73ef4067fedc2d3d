package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/storesync/storesync/internal/domain/delivery"
	"github.com/storesync/storesync/internal/infrastructure/persistence/mappers"
	"github.com/storesync/storesync/internal/infrastructure/persistence/models"
	"github.com/storesync/storesync/internal/shared/db"
	"github.com/storesync/storesync/internal/shared/logger"
)

type NotificationRepositoryImpl struct {
	db     *gorm.DB
	logger logger.Interface
}

func NewNotificationRepository(db *gorm.DB, logger logger.Interface) delivery.Repository {
	return &NotificationRepositoryImpl{db: db, logger: logger}
}

// Record upserts on (platform, notification_id). Deliveries without an id
// are keyed by their receive time.
func (r *NotificationRepositoryImpl) Record(ctx context.Context, rec *delivery.Record) error {
	if rec.ReceivedAt.IsZero() {
		rec.ReceivedAt = time.Now().UTC()
	}
	if rec.NotificationID == "" {
		rec.NotificationID = fmt.Sprintf("anon-%d", rec.ReceivedAt.UnixNano())
	}
	model := mappers.NotificationRecordToModel(rec)

	err := db.GetTxFromContext(ctx, r.db).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "platform"}, {Name: "notification_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"notification_type", "subtype", "environment", "outcome", "error", "payload", "updated_at",
		}),
	}).Create(model).Error
	if err != nil {
		r.logger.Errorw("failed to record notification",
			"platform", rec.Platform,
			"notification_id", rec.NotificationID,
			"error", err,
		)
		return fmt.Errorf("failed to record notification: %w", err)
	}
	rec.ID = model.ID
	return nil
}

func (r *NotificationRepositoryImpl) ListFailed(ctx context.Context, since time.Time, limit int) ([]*delivery.Record, error) {
	var rows []*models.NotificationLogModel
	if err := db.GetTxFromContext(ctx, r.db).
		Where("outcome = ? AND received_at >= ?", string(delivery.OutcomeFailed), since.UTC()).
		Order("received_at ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list failed notifications: %w", err)
	}

	out := make([]*delivery.Record, 0, len(rows))
	for _, row := range rows {
		out = append(out, mappers.NotificationRecordToEntity(row))
	}
	return out, nil
}
