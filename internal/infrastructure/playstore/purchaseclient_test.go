package playstore

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	vo "github.com/storesync/storesync/internal/domain/subscription/valueobjects"
	apperrors "github.com/storesync/storesync/internal/shared/errors"
	"github.com/storesync/storesync/internal/shared/logger"
)

const purchaseJSON = `{
  "kind": "androidpublisher#subscriptionPurchase",
  "startTimeMillis": "1700000000000",
  "expiryTimeMillis": "1702592000000",
  "autoRenewing": true,
  "priceCurrencyCode": "EUR",
  "priceAmountMicros": "8990000",
  "countryCode": "DE",
  "paymentState": 1,
  "orderId": "GPA.3345-1234-5678-90123",
  "linkedPurchaseToken": "OLD_TOKEN",
  "acknowledgementState": 0,
  "obfuscatedExternalAccountId": "42"
}`

func newTestPurchaseClient(t *testing.T, srv *httptest.Server) *PurchaseClient {
	t.Helper()
	c, err := NewPurchaseClient(context.Background(),
		PurchaseClientConfig{PackageName: "com.example.dating", BaseURL: srv.URL},
		logger.NewNopLogger(), option.WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	return c
}

func TestGetSubscription(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		assert.Equal(t, http.MethodGet, r.Method)
		_, _ = io.WriteString(w, purchaseJSON)
	}))
	defer srv.Close()

	p, err := newTestPurchaseClient(t, srv).GetSubscription(context.Background(), "premium_monthly", "TOKEN.1")
	require.NoError(t, err)

	assert.Equal(t, "/androidpublisher/v3/applications/com.example.dating/purchases/subscriptions/premium_monthly/tokens/TOKEN.1", path)
	assert.Equal(t, "GPA.3345-1234-5678-90123", p.OrderId)
	assert.Equal(t, int64(8990000), p.PriceAmountMicros)
	assert.Equal(t, int64(1700000000000), p.StartedAt().UnixMilli())
	require.NotNil(t, p.ExpiresAt())
	assert.Equal(t, int64(1702592000000), p.ExpiresAt().UnixMilli())
	assert.Equal(t, vo.PaymentStateReceived, p.Payment())
	assert.Equal(t, vo.EnvironmentProduction, p.Environment())
	assert.False(t, p.IsAcknowledged())
	assert.False(t, p.IsCanceled())
	assert.Equal(t, "42", p.ObfuscatedExternalAccountId)
}

func TestSubscriptionPurchase_Vocabulary(t *testing.T) {
	zero, two, pending := int64(0), PaymentFreeTrial, PaymentPending

	test := &SubscriptionPurchase{}
	test.PurchaseType, test.PaymentState = &zero, &two
	assert.True(t, test.IsTest())
	assert.Equal(t, vo.EnvironmentSandbox, test.Environment())
	assert.Equal(t, vo.PaymentStateFreeTrial, test.Payment())

	settling := &SubscriptionPurchase{}
	settling.PaymentState = &pending
	assert.Equal(t, vo.PaymentStatePending, settling.Payment())
	assert.Equal(t, vo.PaymentState(""), (&SubscriptionPurchase{}).Payment())
	assert.Nil(t, (&SubscriptionPurchase{}).ExpiresAt())
}

func TestAcknowledge(t *testing.T) {
	var method, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	err := newTestPurchaseClient(t, srv).Acknowledge(context.Background(), "premium_monthly", "tok")

	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, method)
	assert.Equal(t, "/androidpublisher/v3/applications/com.example.dating/purchases/subscriptions/premium_monthly/tokens/tok:acknowledge", path)
}

func TestGetSubscription_ClassifiesFailures(t *testing.T) {
	tests := []struct {
		status int
		check  func(error) bool
	}{
		{http.StatusNotFound, apperrors.IsVerificationError},
		{http.StatusGone, apperrors.IsVerificationError},
		{http.StatusBadRequest, apperrors.IsVerificationError},
		{http.StatusForbidden, apperrors.IsStoreRejection},
		{http.StatusInternalServerError, apperrors.IsHistoryFetchError},
		{http.StatusTooManyRequests, apperrors.IsHistoryFetchError},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = fmt.Fprintf(w, `{"error":{"code":%d,"message":"The subscription purchase is no longer available for query."}}`, tt.status)
			}))
			defer srv.Close()

			_, err := newTestPurchaseClient(t, srv).GetSubscription(context.Background(), "premium_monthly", "tok")
			assert.True(t, tt.check(err), "got %v", err)
		})
	}
}

func TestGetSubscription_RequiresToken(t *testing.T) {
	c, err := NewPurchaseClient(context.Background(),
		PurchaseClientConfig{PackageName: "p", BaseURL: "http://unused.invalid"},
		logger.NewNopLogger(), option.WithHTTPClient(http.DefaultClient))
	require.NoError(t, err)
	_, err = c.GetSubscription(context.Background(), "premium_monthly", "")
	assert.True(t, apperrors.IsValidationError(err))
}

func TestServiceAccountOptions(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	raw, err := json.Marshal(map[string]string{
		"type":           "service_account",
		"client_email":   "storesync@example.iam.gserviceaccount.com",
		"private_key_id": "abc123",
		"private_key":    string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})),
		"token_uri":      "https://oauth2.googleapis.com/token",
	})
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "sa.json")
	require.NoError(t, os.WriteFile(path, raw, 0o600))

	opts, err := ServiceAccountOptions(context.Background(), path)
	require.NoError(t, err)
	assert.Len(t, opts, 2)

	_, err = ServiceAccountOptions(context.Background(), filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorContains(t, err, "read service account key")
}
