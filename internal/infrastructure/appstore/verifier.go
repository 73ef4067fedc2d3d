package appstore

import (
	"context"
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/asn1"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/storesync/storesync/internal/shared/errors"
	"github.com/storesync/storesync/internal/shared/logger"
)

var (
	// Marker extension on Apple's App Store receipt signing leaf.
	oidAppleLeafMarker = asn1.ObjectIdentifier{1, 2, 840, 113635, 100, 6, 11, 1}
	// Marker extension on Apple's WWDR intermediate.
	oidAppleIntermediateMarker = asn1.ObjectIdentifier{1, 2, 840, 113635, 100, 6, 2, 1}
)

// KeyProvider resolves the key named by a token's kid header.
type KeyProvider interface {
	KeyfuncCtx(ctx context.Context) jwt.Keyfunc
}

// VerifierConfig configures SignedPayloadVerifier.
type VerifierConfig struct {
	// Roots are the pinned certificates an x5c chain must lead to.
	Roots *x509.CertPool
	// KeySet resolves tokens that carry a kid instead of a chain. Optional.
	KeySet   KeyProvider
	BundleID string
	// Now overrides the clock used for certificate validity.
	Now func() time.Time
}

// SignedPayloadVerifier verifies App Store JWS payloads. Only ES256 is
// accepted; the key comes from an x5c chain validated against pinned roots,
// or from the configured key set when the header names a kid.
type SignedPayloadVerifier struct {
	roots    *x509.CertPool
	keySet   KeyProvider
	bundleID string
	now      func() time.Time
	parser   *jwt.Parser
	logger   logger.Interface
}

func NewSignedPayloadVerifier(cfg VerifierConfig, log logger.Interface) (*SignedPayloadVerifier, error) {
	if cfg.Roots == nil && cfg.KeySet == nil {
		return nil, fmt.Errorf("appstore verifier needs root certificates or a key set")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &SignedPayloadVerifier{
		roots:    cfg.Roots,
		keySet:   cfg.KeySet,
		bundleID: cfg.BundleID,
		now:      now,
		parser:   jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodES256.Alg()})),
		logger:   log,
	}, nil
}

// VerifyNotification verifies the signedPayload of a V2 notification.
func (v *SignedPayloadVerifier) VerifyNotification(ctx context.Context, signedPayload string) (*NotificationClaims, error) {
	claims := &NotificationClaims{}
	if err := v.verify(ctx, signedPayload, claims); err != nil {
		return nil, err
	}
	if claims.NotificationType == "" {
		return nil, apperrors.NewMalformedPayloadError("notification has no type")
	}
	// TEST notifications carry no data beyond the bundle id.
	if v.bundleID != "" && claims.Data.BundleID != "" && claims.Data.BundleID != v.bundleID {
		return nil, apperrors.NewVerificationError("bundle id mismatch", claims.Data.BundleID)
	}
	return claims, nil
}

// VerifyTransaction verifies a signed transaction.
func (v *SignedPayloadVerifier) VerifyTransaction(ctx context.Context, signedTransaction string) (*TransactionClaims, error) {
	claims := &TransactionClaims{}
	if err := v.verify(ctx, signedTransaction, claims); err != nil {
		return nil, err
	}
	if claims.TransactionID == "" || claims.OriginalTransactionID == "" {
		return nil, apperrors.NewMalformedPayloadError("transaction has no id")
	}
	if v.bundleID != "" && claims.BundleID != v.bundleID {
		return nil, apperrors.NewVerificationError("bundle id mismatch", claims.BundleID)
	}
	return claims, nil
}

// VerifyRenewalInfo verifies signed renewal info.
func (v *SignedPayloadVerifier) VerifyRenewalInfo(ctx context.Context, signedRenewalInfo string) (*RenewalInfoClaims, error) {
	claims := &RenewalInfoClaims{}
	if err := v.verify(ctx, signedRenewalInfo, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

func (v *SignedPayloadVerifier) verify(ctx context.Context, token string, claims jwt.Claims) error {
	_, err := v.parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return v.resolveKey(ctx, t)
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, jwt.ErrTokenMalformed) {
		return apperrors.NewMalformedPayloadError("malformed signed payload", err.Error())
	}
	if ctx.Err() != nil {
		return apperrors.NewHistoryFetchError("key lookup did not finish", err.Error())
	}
	if appErr := apperrors.GetAppError(err); appErr != nil {
		return appErr
	}
	v.logger.Debugw("signed payload rejected", "error", err)
	return apperrors.NewVerificationError("signed payload verification failed", err.Error())
}

func (v *SignedPayloadVerifier) resolveKey(ctx context.Context, t *jwt.Token) (any, error) {
	if raw, ok := t.Header["x5c"]; ok {
		return v.keyFromChain(raw)
	}
	if kid, ok := t.Header["kid"].(string); ok && kid != "" {
		if v.keySet == nil {
			return nil, fmt.Errorf("token names key %q but no key set is configured", kid)
		}
		return v.keySet.KeyfuncCtx(ctx)(t)
	}
	return nil, fmt.Errorf("token header has neither x5c nor kid")
}

// keyFromChain validates the x5c chain against the pinned roots and returns
// the leaf's public key.
func (v *SignedPayloadVerifier) keyFromChain(raw any) (*ecdsa.PublicKey, error) {
	if v.roots == nil {
		return nil, fmt.Errorf("token carries a certificate chain but no roots are pinned")
	}
	entries, ok := raw.([]any)
	if !ok || len(entries) < 2 {
		return nil, fmt.Errorf("x5c must hold at least leaf and intermediate")
	}

	certs := make([]*x509.Certificate, 0, len(entries))
	for i, e := range entries {
		s, ok := e.(string)
		if !ok {
			return nil, fmt.Errorf("x5c[%d] is not a string", i)
		}
		der, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("x5c[%d]: %w", i, err)
		}
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return nil, fmt.Errorf("x5c[%d]: %w", i, err)
		}
		certs = append(certs, cert)
	}

	leaf, intermediate := certs[0], certs[1]
	if !hasExtension(leaf, oidAppleLeafMarker) {
		return nil, fmt.Errorf("leaf certificate lacks the receipt signing marker")
	}
	if !hasExtension(intermediate, oidAppleIntermediateMarker) {
		return nil, fmt.Errorf("intermediate certificate lacks the WWDR marker")
	}

	intermediates := x509.NewCertPool()
	for _, c := range certs[1:] {
		intermediates.AddCert(c)
	}
	if _, err := leaf.Verify(x509.VerifyOptions{
		Roots:         v.roots,
		Intermediates: intermediates,
		CurrentTime:   v.now(),
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	}); err != nil {
		return nil, fmt.Errorf("certificate chain: %w", err)
	}

	pub, ok := leaf.PublicKey.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("leaf key is %T, want ECDSA", leaf.PublicKey)
	}
	return pub, nil
}

func hasExtension(cert *x509.Certificate, oid asn1.ObjectIdentifier) bool {
	for _, ext := range cert.Extensions {
		if ext.Id.Equal(oid) {
			return true
		}
	}
	return false
}

// LoadRootCertificates reads PEM or DER certificates into a pool.
func LoadRootCertificates(paths []string) (*x509.CertPool, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	pool := x509.NewCertPool()
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read root certificate %s: %w", p, err)
		}
		if block, _ := pem.Decode(data); block != nil {
			if !pool.AppendCertsFromPEM(data) {
				return nil, fmt.Errorf("no certificates in %s", p)
			}
			continue
		}
		cert, err := x509.ParseCertificate(data)
		if err != nil {
			return nil, fmt.Errorf("parse root certificate %s: %w", p, err)
		}
		pool.AddCert(cert)
	}
	return pool, nil
}
