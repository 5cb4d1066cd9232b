/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package authority

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AMD-AIG-AIMA/relay/pkg/crypto"
	dbclient "github.com/AMD-AIG-AIMA/relay/pkg/database/client"
	relayerrors "github.com/AMD-AIG-AIMA/relay/pkg/errors"
	apiutils "github.com/AMD-AIG-AIMA/relay/pkg/handlers/utils"
)

const (
	HeaderApiKey = "X-Api-Key"

	// Context keys set after a successful authentication.
	OrganizationId = "organizationId"
	ApiKeyId       = "apiKeyId"
)

// KeyStore is the slice of the durable store the authenticator needs.
// *dbclient.Client satisfies it.
type KeyStore interface {
	SelectApiKeysByPrefix(ctx context.Context, prefix string) ([]*dbclient.ApiKey, error)
}

// Authenticator resolves API keys to organizations. Keys are matched by
// indexed prefix then verified against the bcrypt hash; revocation and
// expiry are checked only after a hash match so timing does not leak which
// check failed.
type Authenticator struct {
	store KeyStore
}

func NewAuthenticator(store KeyStore) *Authenticator {
	return &Authenticator{store: store}
}

// Middleware authenticates every request of a route group and injects the
// caller's organization id into the gin context.
func (a *Authenticator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey, err := a.Authenticate(c.Request.Context(), c.GetHeader(HeaderApiKey))
		if err != nil {
			apiutils.AbortWithApiError(c, err)
			return
		}
		c.Set(OrganizationId, apiKey.OrganizationId)
		c.Set(ApiKeyId, apiKey.KeyId)
		c.Next()
	}
}

// Authenticate resolves a plaintext API key to its row.
func (a *Authenticator) Authenticate(ctx context.Context, key string) (*dbclient.ApiKey, error) {
	if key == "" {
		return nil, relayerrors.NewUnauthorized("missing api key")
	}
	candidates, err := a.store.SelectApiKeysByPrefix(ctx, crypto.KeyPrefix(key))
	if err != nil {
		return nil, relayerrors.NewUnauthorized("failed to resolve api key")
	}
	for _, candidate := range candidates {
		if !crypto.VerifySecret(candidate.KeyHash, key) {
			continue
		}
		if candidate.RevokedAt.Valid {
			return nil, relayerrors.NewUnauthorized("api key has been revoked")
		}
		if candidate.ExpiresAt.Valid && candidate.ExpiresAt.Time.Before(time.Now()) {
			return nil, relayerrors.NewUnauthorized("api key has expired")
		}
		return candidate, nil
	}
	return nil, relayerrors.NewUnauthorized("invalid api key")
}
