package appstore

import (
	"crypto/ecdsa"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	apiAudience = "appstoreconnect-v1"
	// Apple rejects API tokens that live longer than an hour.
	apiTokenLifetime = 30 * time.Minute
	apiTokenRenewal  = 5 * time.Minute
)

// APITokenSigner mints ES256 bearer tokens for the App Store Server API and
// reuses one until shortly before it expires.
type APITokenSigner struct {
	issuerID string
	keyID    string
	bundleID string
	key      *ecdsa.PrivateKey
	now      func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
}

func NewAPITokenSigner(issuerID, keyID, bundleID string, key *ecdsa.PrivateKey) *APITokenSigner {
	return &APITokenSigner{
		issuerID: issuerID,
		keyID:    keyID,
		bundleID: bundleID,
		key:      key,
		now:      time.Now,
	}
}

// LoadAPITokenSigner reads the App Store Connect .p8 key from disk.
func LoadAPITokenSigner(issuerID, keyID, bundleID, keyPath string) (*APITokenSigner, error) {
	pemBytes, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("read App Store private key: %w", err)
	}
	key, err := jwt.ParseECPrivateKeyFromPEM(pemBytes)
	if err != nil {
		return nil, fmt.Errorf("parse App Store private key: %w", err)
	}
	return NewAPITokenSigner(issuerID, keyID, bundleID, key), nil
}

// Token returns a valid bearer token.
func (s *APITokenSigner) Token() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.token != "" && now.Add(apiTokenRenewal).Before(s.expires) {
		return s.token, nil
	}

	expires := now.Add(apiTokenLifetime)
	t := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.MapClaims{
		"iss": s.issuerID,
		"iat": now.Unix(),
		"exp": expires.Unix(),
		"aud": apiAudience,
		"bid": s.bundleID,
	})
	t.Header["kid"] = s.keyID

	signed, err := t.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("sign App Store API token: %w", err)
	}
	s.token = signed
	s.expires = expires
	return signed, nil
}
