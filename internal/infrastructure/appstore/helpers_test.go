package appstore

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"math/big"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/storesync/storesync/internal/shared/logger"
)

const testBundleID = "com.example.dating"

var asn1Null = []byte{0x05, 0x00}

// testChain is a throwaway root -> intermediate -> leaf hierarchy shaped
// like Apple's, with the marker extensions in place.
type testChain struct {
	roots   *x509.CertPool
	x5c     []string
	leafKey *ecdsa.PrivateKey
}

type chainOptions struct {
	skipLeafMarker         bool
	skipIntermediateMarker bool
}

func newTestChain(t *testing.T, opts chainOptions) *testChain {
	t.Helper()
	now := time.Now()

	rootKey := mustKey(t)
	rootTmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "Test Root CA - G3"},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(24 * time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
	}
	rootDER, err := x509.CreateCertificate(rand.Reader, rootTmpl, rootTmpl, &rootKey.PublicKey, rootKey)
	require.NoError(t, err)
	root, err := x509.ParseCertificate(rootDER)
	require.NoError(t, err)

	interKey := mustKey(t)
	interTmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(2),
		Subject:               pkix.Name{CommonName: "Test WWDR CA"},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(24 * time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
	}
	if !opts.skipIntermediateMarker {
		interTmpl.ExtraExtensions = []pkix.Extension{{Id: oidAppleIntermediateMarker, Value: asn1Null}}
	}
	interDER, err := x509.CreateCertificate(rand.Reader, interTmpl, root, &interKey.PublicKey, rootKey)
	require.NoError(t, err)
	inter, err := x509.ParseCertificate(interDER)
	require.NoError(t, err)

	leafKey := mustKey(t)
	leafTmpl := &x509.Certificate{
		SerialNumber: big.NewInt(3),
		Subject:      pkix.Name{CommonName: "Test Receipt Signing"},
		NotBefore:    now.Add(-time.Hour),
		NotAfter:     now.Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	if !opts.skipLeafMarker {
		leafTmpl.ExtraExtensions = []pkix.Extension{{Id: oidAppleLeafMarker, Value: asn1Null}}
	}
	leafDER, err := x509.CreateCertificate(rand.Reader, leafTmpl, inter, &leafKey.PublicKey, interKey)
	require.NoError(t, err)

	pool := x509.NewCertPool()
	pool.AddCert(root)

	return &testChain{
		roots: pool,
		x5c: []string{
			base64.StdEncoding.EncodeToString(leafDER),
			base64.StdEncoding.EncodeToString(interDER),
			base64.StdEncoding.EncodeToString(rootDER),
		},
		leafKey: leafKey,
	}
}

func (c *testChain) sign(t *testing.T, claims jwt.Claims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	tok.Header["x5c"] = c.x5c
	s, err := tok.SignedString(c.leafKey)
	require.NoError(t, err)
	return s
}

func (c *testChain) verifier(t *testing.T) *SignedPayloadVerifier {
	t.Helper()
	v, err := NewSignedPayloadVerifier(VerifierConfig{Roots: c.roots, BundleID: testBundleID}, logger.NewNopLogger())
	require.NoError(t, err)
	return v
}

func mustKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	k, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return k
}

func fixtureTransaction(txID string, purchaseMillis int64) *TransactionClaims {
	return &TransactionClaims{
		TransactionID:         txID,
		OriginalTransactionID: "1000000001",
		BundleID:              testBundleID,
		ProductID:             "com.example.dating.premium.monthly",
		PurchaseDate:          purchaseMillis,
		ExpiresDate:           purchaseMillis + 30*24*3600*1000,
		Type:                  TypeAutoRenewable,
		AppAccountToken:       "7e3fb20b-4cdb-47cc-936d-99d65f608138",
		Environment:           "Production",
		TransactionReason:     "RENEWAL",
		Currency:              "USD",
		Price:                 9990,
	}
}

