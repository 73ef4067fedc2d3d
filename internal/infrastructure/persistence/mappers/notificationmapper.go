package mappers

import (
	"encoding/json"

	"gorm.io/datatypes"

	"github.com/storesync/storesync/internal/domain/delivery"
	vo "github.com/storesync/storesync/internal/domain/subscription/valueobjects"
	"github.com/storesync/storesync/internal/infrastructure/persistence/models"
)

func NotificationRecordToModel(r *delivery.Record) *models.NotificationLogModel {
	var payload datatypes.JSON
	if len(r.Payload) > 0 && json.Valid(r.Payload) {
		payload = datatypes.JSON(r.Payload)
	}
	return &models.NotificationLogModel{
		ID:               r.ID,
		Platform:         r.Platform.String(),
		NotificationID:   r.NotificationID,
		NotificationType: r.NotificationType,
		Subtype:          r.Subtype,
		Environment:      r.Environment.String(),
		Outcome:          string(r.Outcome),
		Error:            truncate(r.Error, 990),
		Payload:          payload,
		ReceivedAt:       r.ReceivedAt,
	}
}

func NotificationRecordToEntity(m *models.NotificationLogModel) *delivery.Record {
	return &delivery.Record{
		ID:               m.ID,
		Platform:         vo.DeviceType(m.Platform),
		NotificationID:   m.NotificationID,
		NotificationType: m.NotificationType,
		Subtype:          m.Subtype,
		Environment:      vo.Environment(m.Environment),
		Outcome:          delivery.Outcome(m.Outcome),
		Error:            m.Error,
		Payload:          json.RawMessage(m.Payload),
		ReceivedAt:       m.ReceivedAt.UTC(),
	}
}
