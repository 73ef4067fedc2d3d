package playstore

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"strings"

	apperrors "github.com/storesync/storesync/internal/shared/errors"
)

// SignatureVerifier checks the SHA1withRSA signature Play attaches to
// purchase data, using the app's license key from the Play Console.
type SignatureVerifier struct {
	key *rsa.PublicKey
}

// NewSignatureVerifier parses the base64 DER (PKIX) public key.
func NewSignatureVerifier(base64Key string) (*SignatureVerifier, error) {
	der, err := base64.StdEncoding.DecodeString(strings.TrimSpace(base64Key))
	if err != nil {
		return nil, fmt.Errorf("decode play public key: %w", err)
	}
	pub, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("parse play public key: %w", err)
	}
	key, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("play public key is %T, want RSA", pub)
	}
	return &SignatureVerifier{key: key}, nil
}

// Verify checks signature (base64) over data.
func (v *SignatureVerifier) Verify(data []byte, signature string) error {
	if signature == "" {
		return apperrors.NewVerificationError("purchase data is not signed")
	}
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return apperrors.NewMalformedPayloadError("signature is not base64", err.Error())
	}
	digest := sha1.Sum(data)
	if err := rsa.VerifyPKCS1v15(v.key, crypto.SHA1, digest[:], sig); err != nil {
		return apperrors.NewVerificationError("purchase signature mismatch")
	}
	return nil
}
