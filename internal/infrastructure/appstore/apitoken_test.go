package appstore

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPITokenSigner_Claims(t *testing.T) {
	key := mustKey(t)
	signer := NewAPITokenSigner("57246542-96fe-1a63-e053-0824d011072a", "2X9R4HXF34", testBundleID, key)

	raw, err := signer.Token()
	require.NoError(t, err)

	claims := jwt.MapClaims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) { return &key.PublicKey, nil },
		jwt.WithValidMethods([]string{"ES256"}), jwt.WithAudience(apiAudience))
	require.NoError(t, err)

	assert.Equal(t, "2X9R4HXF34", tok.Header["kid"])
	assert.Equal(t, "57246542-96fe-1a63-e053-0824d011072a", claims["iss"])
	assert.Equal(t, apiAudience, claims["aud"])
	assert.Equal(t, testBundleID, claims["bid"])

	exp, err := claims.GetExpirationTime()
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(apiTokenLifetime), exp.Time, 5*time.Second)
}

func TestAPITokenSigner_ReusesUntilRenewalWindow(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	signer := NewAPITokenSigner("issuer", "kid", testBundleID, mustKey(t))
	signer.now = func() time.Time { return now }

	first, err := signer.Token()
	require.NoError(t, err)

	now = now.Add(apiTokenLifetime - apiTokenRenewal - time.Minute)
	second, err := signer.Token()
	require.NoError(t, err)
	assert.Equal(t, first, second)

	now = now.Add(2 * time.Minute)
	third, err := signer.Token()
	require.NoError(t, err)
	assert.NotEqual(t, first, third)
}
