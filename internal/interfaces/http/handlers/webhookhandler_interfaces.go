package handlers

import (
	"context"

	"github.com/storesync/storesync/internal/application/reconciliation/dto"
	"github.com/storesync/storesync/internal/application/reconciliation/usecases"
)

// Use case interfaces for the handlers - enables unit testing with mocks.

type appStoreNotificationHandler interface {
	Execute(ctx context.Context, cmd usecases.AppStoreNotificationCommand) (*usecases.NotificationResult, error)
}

type playNotificationHandler interface {
	Execute(ctx context.Context, cmd usecases.PlayNotificationCommand) (*usecases.NotificationResult, error)
}

type receiptValidator interface {
	Execute(ctx context.Context, cmd usecases.ValidateReceiptCommand) (*dto.SubscriptionSnapshotDTO, error)
}
