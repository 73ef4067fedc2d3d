package constants

const (
	EnvDevelopment = "development"
	EnvTest        = "test"
	EnvProduction  = "production"

	HeaderAuthorization = "Authorization"
	HeaderXRequestID    = "X-Request-ID"

	ContextKeyUserID    = "user_id"
	ContextKeyRequestID = "request_id"

	TableUsers         = "users"
	TableSubscriptions = "subscriptions"
	TableLedgerEntries = "ledger_entries"
	TableNotifications = "billing_notifications"

	// ChannelSubscriptionChange carries committed subscription status changes.
	ChannelSubscriptionChange = "storesync:subscription:change"

	RedisKeyDeliveryPrefix = "storesync:delivery:"
	RedisKeyAlertPrefix    = "storesync:alert:"
)
