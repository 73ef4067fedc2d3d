package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_ClassificationSurvivesWrapping(t *testing.T) {
	base := NewHistoryFetchError("history request failed", "status 503")
	wrapped := fmt.Errorf("fetch page 2: %w", base)

	assert.True(t, IsHistoryFetchError(wrapped))
	assert.True(t, IsRetryable(wrapped))
	assert.False(t, IsVerificationError(wrapped))
	assert.Equal(t, http.StatusBadGateway, GetAppError(wrapped).Code)
	assert.Equal(t, "history_fetch_failed: history request failed (status 503)", base.Error())
}

func TestAppError_StatusCodes(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		code int
	}{
		{"malformed", NewMalformedPayloadError("bad json"), http.StatusBadRequest},
		{"verification", NewVerificationError("bad signature"), http.StatusBadRequest},
		{"plan", NewPlanNotFoundError("no plan"), http.StatusNotFound},
		{"conflict", NewConflictError("taken"), http.StatusConflict},
		{"duplicate", NewDuplicateTransactionError("seen"), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
		})
	}
}

func TestIsDuplicateError(t *testing.T) {
	assert.True(t, IsDuplicateError(errors.New("Error 1062: Duplicate entry 'x' for key 'uk'")))
	assert.True(t, IsDuplicateError(errors.New("UNIQUE constraint failed: billing_ledger.transaction_id")))
	assert.False(t, IsDuplicateError(errors.New("connection refused")))
	assert.False(t, IsDuplicateError(nil))
}

func TestGetAppError_PlainError(t *testing.T) {
	assert.Nil(t, GetAppError(errors.New("plain")))
	assert.False(t, IsAppError(errors.New("plain")))
}
