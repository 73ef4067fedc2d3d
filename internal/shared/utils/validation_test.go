package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/storesync/storesync/internal/shared/errors"
)

type sampleRequest struct {
	Platform string `json:"platform" validate:"required,oneof=ios android"`
	Receipt  string `json:"receipt" validate:"required"`
}

func TestValidateStruct(t *testing.T) {
	assert.NoError(t, ValidateStruct(sampleRequest{Platform: "ios", Receipt: "x"}))

	err := ValidateStruct(sampleRequest{Platform: "web"})
	assert.True(t, errors.IsValidationError(err))
	details := errors.GetAppError(err).Details
	assert.Contains(t, details, "platform must be one of [ios android]")
	assert.Contains(t, details, "receipt is required")
}
