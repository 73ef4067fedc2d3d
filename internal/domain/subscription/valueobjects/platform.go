package valueobjects

import (
	"fmt"
	"strings"
)

// DeviceType identifies the store a subscription was bought in.
type DeviceType string

const (
	DeviceTypeAndroid DeviceType = "ANDROID"
	DeviceTypeIOS     DeviceType = "IOS"
)

// ParseDeviceType accepts ANDROID/IOS in any case.
func ParseDeviceType(s string) (DeviceType, error) {
	switch DeviceType(strings.ToUpper(strings.TrimSpace(s))) {
	case DeviceTypeAndroid:
		return DeviceTypeAndroid, nil
	case DeviceTypeIOS:
		return DeviceTypeIOS, nil
	}
	return "", fmt.Errorf("invalid device type: %q", s)
}

func (d DeviceType) String() string {
	return string(d)
}

// Environment separates sandbox purchases from real ones. Records of the two
// environments never overwrite each other.
type Environment string

const (
	EnvironmentSandbox    Environment = "sandbox"
	EnvironmentProduction Environment = "production"
)

// ParseEnvironment maps store vocabularies onto Environment. Apple reports
// "Sandbox", "Production", "Xcode" and "LocalTesting"; the last two are
// treated as sandbox.
func ParseEnvironment(s string) (Environment, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "production":
		return EnvironmentProduction, nil
	case "sandbox", "xcode", "localtesting":
		return EnvironmentSandbox, nil
	}
	return "", fmt.Errorf("invalid environment: %q", s)
}

func (e Environment) String() string {
	return string(e)
}

// PaymentState is the store's view of whether the current period was paid.
type PaymentState string

const (
	PaymentStatePending   PaymentState = "pending"
	PaymentStateReceived  PaymentState = "received"
	PaymentStateFreeTrial PaymentState = "free_trial"
)
