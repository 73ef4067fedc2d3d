package http

import (
	"github.com/storesync/storesync/internal/interfaces/http/handlers"
)

type allHandlers struct {
	webhookHandler *handlers.WebhookHandler
	receiptHandler *handlers.ReceiptHandler
}

// ============================================================
// Section 4: Handlers
// ============================================================

func (c *Container) initHandlers() {
	c.hdlrs = &allHandlers{
		webhookHandler: handlers.NewWebhookHandler(c.ucs.handleAppStore, c.ucs.handlePlay, c.log.Named("webhook_handler")),
		receiptHandler: handlers.NewReceiptHandler(c.ucs.validateReceipt, c.log.Named("receipt_handler")),
	}
}
