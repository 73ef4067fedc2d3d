package http

import (
	"github.com/storesync/storesync/internal/application/reconciliation/usecases"
	"github.com/storesync/storesync/internal/infrastructure/cache"
)

type allUseCases struct {
	reconcileEvent      *usecases.ReconcileEventUseCase
	handleAppStore      *usecases.HandleAppStoreNotificationUseCase
	handlePlay          *usecases.HandlePlayNotificationUseCase
	validateReceipt     *usecases.ValidateReceiptUseCase
	recoverSubscription *usecases.RecoverSubscriptionUseCase
	recoverStale        *usecases.RecoverStaleSubscriptionsUseCase
}

// ============================================================
// Section 3: Reconciliation use cases
// ============================================================

func (c *Container) initUseCases() {
	cfg := c.cfg
	log := c.log
	repos := c.repos
	stores := c.stores
	timeout := cfg.Reconciliation.ExternalTimeout

	ledgerWriter := usecases.NewLedgerWriter(repos.ledgerRepo, log.Named("ledger_writer"))

	reconciler := usecases.NewReconcileEventUseCase(
		repos.subscriptionRepo,
		ledgerWriter,
		stores.catalog,
		repos.userDirectory,
		repos.txManager,
		log.Named("reconcile_event"),
	)
	reconciler.SetMaxRetries(cfg.Reconciliation.MaxSaveRetries)
	if publisher := newChangePublisher(c.redis, log); publisher != nil {
		reconciler.SetPublisher(publisher)
	}
	if alerter := newOperatorAlerter(cfg, c.redis, log); alerter != nil {
		reconciler.SetAlerter(alerter)
	}

	var claimer usecases.DeliveryClaimer
	if c.redis != nil {
		claimer = cache.NewDeliveryDeduplicator(c.redis, cfg.Reconciliation.DeliveryTTL, log.Named("delivery_dedup"))
	}

	handleAppStore := usecases.NewHandleAppStoreNotificationUseCase(
		stores.verifier,
		reconciler,
		repos.notificationRepo,
		claimer,
		timeout,
		log.Named("appstore_webhook"),
	)

	handlePlay := usecases.NewHandlePlayNotificationUseCase(
		stores.purchases,
		repos.subscriptionRepo,
		reconciler,
		repos.notificationRepo,
		claimer,
		timeout,
		log.Named("playstore_webhook"),
	)
	handlePlay.SetAcceptTestPurchases(cfg.PlayStore.AcceptTestPurchases)

	validateReceipt := usecases.NewValidateReceiptUseCase(
		stores.verifier,
		stores.history,
		stores.purchases,
		repos.subscriptionRepo,
		reconciler,
		timeout,
		log.Named("validate_receipt"),
	)
	validateReceipt.SetAcceptTestPurchases(cfg.PlayStore.AcceptTestPurchases)

	if stores.signatures != nil {
		handlePlay.SetSignatureVerifier(stores.signatures)
		validateReceipt.SetSignatureVerifier(stores.signatures)
	}

	recoverSubscription := usecases.NewRecoverSubscriptionUseCase(
		repos.subscriptionRepo,
		stores.catalog,
		stores.verifier,
		stores.history,
		stores.purchases,
		reconciler,
		timeout,
		log.Named("recover_subscription"),
	)

	c.ucs = &allUseCases{
		reconcileEvent:      reconciler,
		handleAppStore:      handleAppStore,
		handlePlay:          handlePlay,
		validateReceipt:     validateReceipt,
		recoverSubscription: recoverSubscription,
		recoverStale: usecases.NewRecoverStaleSubscriptionsUseCase(
			repos.subscriptionRepo,
			recoverSubscription,
			cfg.Scheduler.RecoveryGrace,
			cfg.Scheduler.BatchSize,
			log.Named("recovery_sweep"),
		),
	}
}
