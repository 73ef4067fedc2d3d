package valueobjects

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEnvironment(t *testing.T) {
	tests := map[string]Environment{
		"Production":   EnvironmentProduction,
		"Sandbox":      EnvironmentSandbox,
		"Xcode":        EnvironmentSandbox,
		"LocalTesting": EnvironmentSandbox,
	}
	for in, want := range tests {
		got, err := ParseEnvironment(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseEnvironment("staging")
	assert.Error(t, err)
}

func TestParseDeviceType(t *testing.T) {
	d, err := ParseDeviceType("ios")
	require.NoError(t, err)
	assert.Equal(t, DeviceTypeIOS, d)

	_, err = ParseDeviceType("web")
	assert.Error(t, err)
}

func TestSubscriptionStatus(t *testing.T) {
	assert.True(t, StatusCanceling.IsEntitled())
	assert.False(t, StatusCanceled.IsEntitled())
	assert.False(t, StatusIncomplete.IsEntitled())
	assert.False(t, StatusIncomplete.IsLive())

	_, err := ParseStatus("expired")
	assert.Error(t, err)
}

func TestEventKind(t *testing.T) {
	k, err := ParseEventKind("RENEWED")
	require.NoError(t, err)
	assert.True(t, k.IsBilling())
	assert.False(t, EventCanceled.IsBilling())

	_, err = ParseEventKind("SOMETHING")
	assert.Error(t, err)
}
