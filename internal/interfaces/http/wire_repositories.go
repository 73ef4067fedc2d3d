package http

import (
	"gorm.io/gorm"

	"github.com/storesync/storesync/internal/domain/delivery"
	"github.com/storesync/storesync/internal/domain/ledger"
	"github.com/storesync/storesync/internal/domain/subscription"
	"github.com/storesync/storesync/internal/domain/user"
	"github.com/storesync/storesync/internal/infrastructure/repository"
	"github.com/storesync/storesync/internal/shared/db"
	"github.com/storesync/storesync/internal/shared/logger"
)

type repositories struct {
	subscriptionRepo subscription.Repository
	ledgerRepo       ledger.Repository
	notificationRepo delivery.Repository
	userDirectory    user.Directory
	txManager        *db.TransactionManager
}

// newRepositories creates all repository instances from the database connection.
func newRepositories(gdb *gorm.DB, log logger.Interface) *repositories {
	return &repositories{
		subscriptionRepo: repository.NewSubscriptionRepository(gdb, log.Named("subscription_repo")),
		ledgerRepo:       repository.NewLedgerRepository(gdb, log.Named("ledger_repo")),
		notificationRepo: repository.NewNotificationRepository(gdb, log.Named("notification_repo")),
		userDirectory:    repository.NewUserDirectory(gdb, log.Named("user_directory")),
		txManager:        db.NewTransactionManager(gdb),
	}
}
