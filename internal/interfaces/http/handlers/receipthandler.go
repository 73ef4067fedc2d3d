package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/storesync/storesync/internal/application/reconciliation/usecases"
	vo "github.com/storesync/storesync/internal/domain/subscription/valueobjects"
	"github.com/storesync/storesync/internal/shared/constants"
	"github.com/storesync/storesync/internal/shared/errors"
	"github.com/storesync/storesync/internal/shared/logger"
	"github.com/storesync/storesync/internal/shared/utils"
)

// ValidateReceiptRequest is a receipt the app got from the store. For IOS
// receipt is the signed transaction; for ANDROID it is the purchase token,
// or signed_data and signature replace it.
type ValidateReceiptRequest struct {
	Platform   string `json:"platform" binding:"required" validate:"required,oneof=IOS ANDROID ios android"`
	Receipt    string `json:"receipt" validate:"required_without=SignedData"`
	ProductID  string `json:"product_id" validate:"omitempty,max=255"`
	SignedData string `json:"signed_data"`
	Signature  string `json:"signature" validate:"required_with=SignedData"`
}

type ReceiptHandler struct {
	validateReceipt receiptValidator
	logger          logger.Interface
}

func NewReceiptHandler(validateReceipt *usecases.ValidateReceiptUseCase, logger logger.Interface) *ReceiptHandler {
	return &ReceiptHandler{
		validateReceipt: validateReceipt,
		logger:          logger,
	}
}

// Validate godoc
//
//	@Summary		Validate a store receipt
//	@Description	Verifies the receipt with its store and reconciles the caller's subscription from the authoritative state
//	@Security		Bearer
//	@Tags			receipts
//	@Accept			json
//	@Produce		json
//	@Param			request	body		ValidateReceiptRequest	true	"Receipt"
//	@Success		200		{object}	utils.APIResponse{data=dto.SubscriptionSnapshotDTO}
//	@Failure		400		{object}	utils.APIResponse	"Invalid receipt"
//	@Failure		401		{object}	utils.APIResponse	"Unauthorized"
//	@Failure		404		{object}	utils.APIResponse	"No plan for the product"
//	@Failure		409		{object}	utils.APIResponse	"Purchase belongs to another user"
//	@Failure		502		{object}	utils.APIResponse	"Store API unavailable"
//	@Router			/api/v1/receipts/validate [post]
func (h *ReceiptHandler) Validate(c *gin.Context) {
	var req ValidateReceiptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warnw("invalid request body for validate receipt", "error", err)
		utils.ErrorResponseWithError(c, errors.NewValidationError("Invalid request body", err.Error()))
		return
	}

	if err := utils.ValidateStruct(&req); err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	userID, ok := currentUserID(c)
	if !ok {
		utils.ErrorResponseWithError(c, errors.NewUnauthorizedError("User not authenticated"))
		return
	}

	platform, err := vo.ParseDeviceType(req.Platform)
	if err != nil {
		utils.ErrorResponseWithError(c, errors.NewValidationError("Unsupported platform", req.Platform))
		return
	}

	snapshot, err := h.validateReceipt.Execute(c.Request.Context(), usecases.ValidateReceiptCommand{
		UserID:     userID,
		Platform:   platform,
		Receipt:    req.Receipt,
		ProductID:  req.ProductID,
		SignedData: req.SignedData,
		Signature:  req.Signature,
	})
	if err != nil {
		h.logger.Warnw("receipt validation failed",
			"user_id", userID,
			"platform", platform,
			"error", err,
		)
		utils.ErrorResponseWithError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "receipt validated", snapshot)
}

func currentUserID(c *gin.Context) (uint, bool) {
	v, exists := c.Get(constants.ContextKeyUserID)
	if !exists {
		return 0, false
	}
	id, ok := v.(uint)
	return id, ok && id != 0
}
