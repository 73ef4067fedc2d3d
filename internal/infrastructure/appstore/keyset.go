package appstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/MicahParks/keyfunc/v3"

	"github.com/storesync/storesync/internal/shared/logger"
)

// NewRemoteKeySet serves keys from a published JWKS document. The set is
// refreshed in the background until ctx ends, and an unknown kid triggers a
// rate-limited refresh.
func NewRemoteKeySet(ctx context.Context, url string, log logger.Interface) (KeyProvider, error) {
	kf, err := keyfunc.NewDefaultCtx(ctx, []string{url})
	if err != nil {
		return nil, fmt.Errorf("load key set %s: %w", url, err)
	}
	log.Infow("key set loaded", "url", url)
	return kf, nil
}

// NewStaticKeySet serves keys from a JWKS document held in memory.
func NewStaticKeySet(raw []byte) (KeyProvider, error) {
	kf, err := keyfunc.NewJWKSetJSON(json.RawMessage(raw))
	if err != nil {
		return nil, fmt.Errorf("parse key set: %w", err)
	}
	return kf, nil
}
