package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/storesync/storesync/internal/domain/subscription"
	vo "github.com/storesync/storesync/internal/domain/subscription/valueobjects"
	"github.com/storesync/storesync/internal/infrastructure/persistence/mappers"
	"github.com/storesync/storesync/internal/infrastructure/persistence/models"
	"github.com/storesync/storesync/internal/shared/biztime"
	"github.com/storesync/storesync/internal/shared/db"
	"github.com/storesync/storesync/internal/shared/logger"
)

type SubscriptionRepositoryImpl struct {
	db     *gorm.DB
	mapper mappers.SubscriptionMapper
	logger logger.Interface
}

func NewSubscriptionRepository(db *gorm.DB, logger logger.Interface) subscription.Repository {
	return &SubscriptionRepositoryImpl{
		db:     db,
		mapper: mappers.NewSubscriptionMapper(),
		logger: logger,
	}
}

func (r *SubscriptionRepositoryImpl) Get(ctx context.Context, userID uint, env vo.Environment) (*subscription.Subscription, error) {
	var model models.SubscriptionModel
	err := db.GetTxFromContext(ctx, r.db).
		Where("user_id = ? AND environment = ?", userID, env.String()).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		r.logger.Errorw("failed to get subscription", "user_id", userID, "environment", env, "error", err)
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return r.mapper.ToEntity(&model)
}

func (r *SubscriptionRepositoryImpl) FindByAnchor(ctx context.Context, platform vo.DeviceType, anchorID string, env vo.Environment) (*subscription.Subscription, error) {
	if anchorID == "" {
		return nil, nil
	}
	var model models.SubscriptionModel
	err := db.GetTxFromContext(ctx, r.db).
		Where("device_type = ? AND external_anchor_id = ? AND environment = ?", platform.String(), anchorID, env.String()).
		Order("updated_at DESC").
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		r.logger.Errorw("failed to find subscription by anchor", "platform", platform, "anchor_id", anchorID, "error", err)
		return nil, fmt.Errorf("failed to find subscription by anchor: %w", err)
	}
	return r.mapper.ToEntity(&model)
}

// Save inserts a new record with INSERT ... ON CONFLICT DO NOTHING, or
// updates an existing one only if its version is unchanged since it was
// read. Either way a lost race surfaces as ErrConcurrentModification.
func (r *SubscriptionRepositoryImpl) Save(ctx context.Context, sub *subscription.Subscription) error {
	tx := db.GetTxFromContext(ctx, r.db)
	model := r.mapper.ToModel(sub)

	if sub.IsNew() {
		model.ID = 0
		model.Version = 1
		result := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "environment"}},
			DoNothing: true,
		}).Create(model)
		if result.Error != nil {
			r.logger.Errorw("failed to insert subscription", "user_id", model.UserID, "error", result.Error)
			return fmt.Errorf("failed to insert subscription: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: record for user %d in %s created concurrently",
				subscription.ErrConcurrentModification, model.UserID, model.Environment)
		}
		sub.SetID(model.ID)
		sub.MarkPersisted(1)
		r.logger.Debugw("subscription created", "id", model.ID, "user_id", model.UserID, "status", model.Status)
		return nil
	}

	next := model.Version + 1
	result := tx.Model(&models.SubscriptionModel{}).
		Where("id = ? AND version = ?", model.ID, model.Version).
		Updates(map[string]interface{}{
			"plan_id":                model.PlanID,
			"device_type":            model.DeviceType,
			"external_anchor_id":     model.ExternalAnchorID,
			"current_transaction_id": model.CurrentTransactionID,
			"billed_transaction_id":  model.BilledTransactionID,
			"last_event_kind":        model.LastEventKind,
			"amount":                 model.Amount,
			"currency":               model.Currency,
			"status":                 model.Status,
			"current_period_start":   model.CurrentPeriodStart,
			"current_period_end":     model.CurrentPeriodEnd,
			"revoked_at":             model.RevokedAt,
			"version":                next,
			"updated_at":             biztime.NowUTC(),
		})
	if result.Error != nil {
		r.logger.Errorw("failed to update subscription", "id", model.ID, "error", result.Error)
		return fmt.Errorf("failed to update subscription: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: subscription %d is no longer at version %d",
			subscription.ErrConcurrentModification, model.ID, model.Version)
	}
	sub.MarkPersisted(next)
	r.logger.Debugw("subscription updated", "id", model.ID, "version", next, "status", model.Status)
	return nil
}

func (r *SubscriptionRepositoryImpl) ListStale(ctx context.Context, cutoff time.Time, limit int) ([]*subscription.Subscription, error) {
	live := make([]string, 0, len(vo.LiveStatuses()))
	for _, s := range vo.LiveStatuses() {
		live = append(live, s.String())
	}

	var rows []*models.SubscriptionModel
	if err := db.GetTxFromContext(ctx, r.db).
		Where("status IN ?", live).
		Where("current_period_end IS NOT NULL AND current_period_end < ?", cutoff.UTC()).
		Order("current_period_end ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		r.logger.Errorw("failed to list stale subscriptions", "cutoff", cutoff, "error", err)
		return nil, fmt.Errorf("failed to list stale subscriptions: %w", err)
	}
	return r.mapper.ToEntities(rows)
}
