package dto

import (
	"time"

	"github.com/storesync/storesync/internal/domain/subscription"
)

// SubscriptionSnapshotDTO is the subscription state returned to the app
// after a receipt was validated.
type SubscriptionSnapshotDTO struct {
	UserID             uint       `json:"user_id"`
	PlanID             string     `json:"plan_id"`
	Platform           string     `json:"platform"`
	Environment        string     `json:"environment"`
	Status             string     `json:"status"`
	IsPremium          bool       `json:"is_premium"`
	Amount             int64      `json:"amount"`   // minor units
	Currency           string     `json:"currency"` // lower-case ISO 4217
	CurrentPeriodStart time.Time  `json:"current_period_start"`
	CurrentPeriodEnd   *time.Time `json:"current_period_end,omitempty"`
	RevokedAt          *time.Time `json:"revoked_at,omitempty"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

func ToSubscriptionSnapshotDTO(sub *subscription.Subscription) *SubscriptionSnapshotDTO {
	if sub == nil {
		return nil
	}
	return &SubscriptionSnapshotDTO{
		UserID:             sub.UserID(),
		PlanID:             sub.PlanID(),
		Platform:           sub.DeviceType().String(),
		Environment:        sub.Environment().String(),
		Status:             sub.Status().String(),
		IsPremium:          sub.IsEntitled(),
		Amount:             sub.Amount(),
		Currency:           sub.Currency(),
		CurrentPeriodStart: sub.CurrentPeriodStart(),
		CurrentPeriodEnd:   sub.CurrentPeriodEnd(),
		RevokedAt:          sub.RevokedAt(),
		UpdatedAt:          sub.UpdatedAt(),
	}
}
