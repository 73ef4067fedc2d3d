package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/storesync/storesync/internal/application/reconciliation/usecases"
	vo "github.com/storesync/storesync/internal/domain/subscription/valueobjects"
	"github.com/storesync/storesync/internal/shared/errors"
	"github.com/storesync/storesync/internal/shared/logger"
	"github.com/storesync/storesync/internal/shared/utils"
)

// maxWebhookBody bounds a notification body. Signed App Store payloads are
// a few kilobytes; RTDN pushes are smaller.
const maxWebhookBody = 1 << 20

// WebhookResponse is the body of every acknowledged webhook delivery.
type WebhookResponse struct {
	Outcome        string `json:"outcome"`
	NotificationID string `json:"notification_id,omitempty"`
	Kind           string `json:"kind,omitempty"`
}

// WebhookHandler receives store server notifications. Once the envelope
// parses, the store always gets a 200 so it stops redelivering; what
// happened to the delivery is in the notification log.
type WebhookHandler struct {
	appStore appStoreNotificationHandler
	play     playNotificationHandler
	logger   logger.Interface
}

func NewWebhookHandler(
	appStore *usecases.HandleAppStoreNotificationUseCase,
	play *usecases.HandlePlayNotificationUseCase,
	logger logger.Interface,
) *WebhookHandler {
	return &WebhookHandler{
		appStore: appStore,
		play:     play,
		logger:   logger,
	}
}

// PlayStore handles a Pub/Sub push carrying a Real-Time Developer
// Notification.
//
//	@Summary	Play Store RTDN webhook
//	@Tags		webhooks
//	@Accept		json
//	@Produce	json
//	@Success	200	{object}	utils.APIResponse{data=WebhookResponse}
//	@Failure	400	{object}	utils.APIResponse	"Body is not a push envelope"
//	@Router		/webhooks/playstore [post]
func (h *WebhookHandler) PlayStore(c *gin.Context) {
	body, ok := h.readBody(c)
	if !ok {
		return
	}

	result, err := h.play.Execute(c.Request.Context(), usecases.PlayNotificationCommand{Body: body})
	if err != nil {
		h.logger.Warnw("rejected malformed play store push", "error", err, "size", len(body))
		utils.ErrorResponseWithError(c, err)
		return
	}

	h.acknowledge(c, "play", result)
}

// AppStoreSandbox handles App Store Server Notifications V2 sent to the
// sandbox URL.
//
//	@Summary	App Store sandbox notification webhook
//	@Tags		webhooks
//	@Accept		json
//	@Produce	json
//	@Success	200	{object}	utils.APIResponse{data=WebhookResponse}
//	@Failure	400	{object}	utils.APIResponse	"Body is not a signed notification envelope"
//	@Router		/webhooks/appstore/sandbox [post]
func (h *WebhookHandler) AppStoreSandbox(c *gin.Context) {
	h.handleAppStore(c, vo.EnvironmentSandbox)
}

// AppStoreProduction handles App Store Server Notifications V2 sent to the
// production URL.
//
//	@Summary	App Store production notification webhook
//	@Tags		webhooks
//	@Accept		json
//	@Produce	json
//	@Success	200	{object}	utils.APIResponse{data=WebhookResponse}
//	@Failure	400	{object}	utils.APIResponse	"Body is not a signed notification envelope"
//	@Router		/webhooks/appstore/production [post]
func (h *WebhookHandler) AppStoreProduction(c *gin.Context) {
	h.handleAppStore(c, vo.EnvironmentProduction)
}

func (h *WebhookHandler) handleAppStore(c *gin.Context, endpoint vo.Environment) {
	body, ok := h.readBody(c)
	if !ok {
		return
	}

	result, err := h.appStore.Execute(c.Request.Context(), usecases.AppStoreNotificationCommand{
		Endpoint: endpoint,
		Body:     body,
	})
	if err != nil {
		h.logger.Warnw("rejected malformed app store notification",
			"error", err,
			"endpoint", endpoint,
			"size", len(body),
		)
		utils.ErrorResponseWithError(c, err)
		return
	}

	h.acknowledge(c, "app_store", result)
}

func (h *WebhookHandler) readBody(c *gin.Context) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		h.logger.Warnw("failed to read webhook body", "path", c.FullPath(), "error", err)
		utils.ErrorResponseWithError(c, errors.NewMalformedPayloadError("unreadable request body", err.Error()))
		return nil, false
	}
	if len(body) == 0 {
		utils.ErrorResponseWithError(c, errors.NewMalformedPayloadError("empty request body"))
		return nil, false
	}
	return body, true
}

func (h *WebhookHandler) acknowledge(c *gin.Context, store string, result *usecases.NotificationResult) {
	if result.Err != nil {
		h.logger.Infow("webhook delivery acknowledged without applying",
			"store", store,
			"outcome", result.Outcome,
			"notification_id", result.NotificationID,
			"error", result.Err,
		)
	}

	resp := WebhookResponse{
		Outcome:        string(result.Outcome),
		NotificationID: result.NotificationID,
	}
	if result.Kind != vo.EventUnknown {
		resp.Kind = string(result.Kind)
	}
	utils.SuccessResponse(c, http.StatusOK, "notification received", resp)
}
