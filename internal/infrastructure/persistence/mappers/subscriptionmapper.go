package mappers

import (
	"fmt"

	"github.com/storesync/storesync/internal/domain/subscription"
	vo "github.com/storesync/storesync/internal/domain/subscription/valueobjects"
	"github.com/storesync/storesync/internal/infrastructure/persistence/models"
)

type SubscriptionMapper interface {
	ToEntity(model *models.SubscriptionModel) (*subscription.Subscription, error)
	ToModel(entity *subscription.Subscription) *models.SubscriptionModel
	ToEntities(models []*models.SubscriptionModel) ([]*subscription.Subscription, error)
}

type SubscriptionMapperImpl struct{}

func NewSubscriptionMapper() SubscriptionMapper {
	return &SubscriptionMapperImpl{}
}

func (m *SubscriptionMapperImpl) ToEntity(model *models.SubscriptionModel) (*subscription.Subscription, error) {
	if model == nil {
		return nil, nil
	}

	status, err := vo.ParseStatus(model.Status)
	if err != nil {
		return nil, fmt.Errorf("subscription %d: %w", model.ID, err)
	}

	entity, err := subscription.ReconstructSubscription(subscription.ReconstructParams{
		ID:                   model.ID,
		UserID:               model.UserID,
		PlanID:               model.PlanID,
		DeviceType:           vo.DeviceType(model.DeviceType),
		Environment:          vo.Environment(model.Environment),
		AnchorID:             model.ExternalAnchorID,
		CurrentTransactionID: model.CurrentTransactionID,
		BilledTransactionID:  model.BilledTransactionID,
		LastEventKind:        vo.EventKind(model.LastEventKind),
		Amount:               model.Amount,
		Currency:             model.Currency,
		Status:               status,
		CurrentPeriodStart:   model.CurrentPeriodStart.UTC(),
		CurrentPeriodEnd:     utcPtr(model.CurrentPeriodEnd),
		RevokedAt:            utcPtr(model.RevokedAt),
		Version:              model.Version,
		CreatedAt:            model.CreatedAt,
		UpdatedAt:            model.UpdatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to reconstruct subscription: %w", err)
	}
	return entity, nil
}

// ToModel copies the aggregate. Version is the one currently persisted; the
// repository bumps it on write.
func (m *SubscriptionMapperImpl) ToModel(entity *subscription.Subscription) *models.SubscriptionModel {
	if entity == nil {
		return nil
	}
	return &models.SubscriptionModel{
		ID:                   entity.ID(),
		UserID:               entity.UserID(),
		Environment:          entity.Environment().String(),
		PlanID:               entity.PlanID(),
		DeviceType:           entity.DeviceType().String(),
		ExternalAnchorID:     entity.AnchorID(),
		CurrentTransactionID: entity.CurrentTransactionID(),
		BilledTransactionID:  entity.BilledTransactionID(),
		LastEventKind:        entity.LastEventKind().String(),
		Amount:               entity.Amount(),
		Currency:             entity.Currency(),
		Status:               entity.Status().String(),
		CurrentPeriodStart:   entity.CurrentPeriodStart(),
		CurrentPeriodEnd:     entity.CurrentPeriodEnd(),
		RevokedAt:            entity.RevokedAt(),
		Version:              entity.Version(),
		CreatedAt:            entity.CreatedAt(),
		UpdatedAt:            entity.UpdatedAt(),
	}
}

func (m *SubscriptionMapperImpl) ToEntities(models []*models.SubscriptionModel) ([]*subscription.Subscription, error) {
	entities := make([]*subscription.Subscription, 0, len(models))
	for _, model := range models {
		entity, err := m.ToEntity(model)
		if err != nil {
			return nil, err
		}
		entities = append(entities, entity)
	}
	return entities, nil
}
