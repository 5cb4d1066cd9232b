/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package authority

import (
	"context"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AMD-AIG-AIMA/relay/pkg/crypto"
	dbclient "github.com/AMD-AIG-AIMA/relay/pkg/database/client"
	relayerrors "github.com/AMD-AIG-AIMA/relay/pkg/errors"
)

type fakeKeyStore struct {
	keys map[string][]*dbclient.ApiKey
	err  error
}

func (f *fakeKeyStore) SelectApiKeysByPrefix(ctx context.Context, prefix string) ([]*dbclient.ApiKey, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.keys[prefix], nil
}

func newKeyRow(t *testing.T, key, organizationId string) *dbclient.ApiKey {
	t.Helper()
	hash, err := crypto.HashSecret(key)
	require.NoError(t, err)
	return &dbclient.ApiKey{
		KeyId:          crypto.NewId(),
		OrganizationId: organizationId,
		Name:           "test-key",
		KeyHash:        hash,
		KeyPrefix:      crypto.KeyPrefix(key),
	}
}

func TestAuthenticateValidKey(t *testing.T) {
	key, err := crypto.GenerateApiKey()
	require.NoError(t, err)
	row := newKeyRow(t, key, "o1")
	a := NewAuthenticator(&fakeKeyStore{keys: map[string][]*dbclient.ApiKey{
		crypto.KeyPrefix(key): {row},
	}})

	resolved, err := a.Authenticate(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, "o1", resolved.OrganizationId)
	assert.Equal(t, row.KeyId, resolved.KeyId)
}

func TestAuthenticateMissingKey(t *testing.T) {
	a := NewAuthenticator(&fakeKeyStore{})
	_, err := a.Authenticate(context.Background(), "")
	require.Error(t, err)
	assert.True(t, relayerrors.IsUnauthorized(err))
}

func TestAuthenticateUnknownKey(t *testing.T) {
	key, err := crypto.GenerateApiKey()
	require.NoError(t, err)
	a := NewAuthenticator(&fakeKeyStore{})

	_, err = a.Authenticate(context.Background(), key)
	require.Error(t, err)
	assert.True(t, relayerrors.IsUnauthorized(err))
	assert.Equal(t, "invalid api key", err.Error())
}

func TestAuthenticateWrongSecretSamePrefix(t *testing.T) {
	key, err := crypto.GenerateApiKey()
	require.NoError(t, err)
	// A different key stored under the same prefix must not match.
	other := crypto.KeyPrefix(key) + "differentsuffix"
	row := newKeyRow(t, other, "o1")
	a := NewAuthenticator(&fakeKeyStore{keys: map[string][]*dbclient.ApiKey{
		crypto.KeyPrefix(key): {row},
	}})

	_, err = a.Authenticate(context.Background(), key)
	require.Error(t, err)
	assert.Equal(t, "invalid api key", err.Error())
}

func TestAuthenticateRevokedKey(t *testing.T) {
	key, err := crypto.GenerateApiKey()
	require.NoError(t, err)
	row := newKeyRow(t, key, "o1")
	row.RevokedAt = pq.NullTime{Time: time.Now(), Valid: true}
	a := NewAuthenticator(&fakeKeyStore{keys: map[string][]*dbclient.ApiKey{
		crypto.KeyPrefix(key): {row},
	}})

	_, err = a.Authenticate(context.Background(), key)
	require.Error(t, err)
	assert.Equal(t, "api key has been revoked", err.Error())
}

func TestAuthenticateExpiredKey(t *testing.T) {
	key, err := crypto.GenerateApiKey()
	require.NoError(t, err)
	row := newKeyRow(t, key, "o1")
	row.ExpiresAt = pq.NullTime{Time: time.Now().Add(-time.Hour), Valid: true}
	a := NewAuthenticator(&fakeKeyStore{keys: map[string][]*dbclient.ApiKey{
		crypto.KeyPrefix(key): {row},
	}})

	_, err = a.Authenticate(context.Background(), key)
	require.Error(t, err)
	assert.Equal(t, "api key has expired", err.Error())
}

func TestAuthenticateFutureExpiryAccepted(t *testing.T) {
	key, err := crypto.GenerateApiKey()
	require.NoError(t, err)
	row := newKeyRow(t, key, "o1")
	row.ExpiresAt = pq.NullTime{Time: time.Now().Add(time.Hour), Valid: true}
	a := NewAuthenticator(&fakeKeyStore{keys: map[string][]*dbclient.ApiKey{
		crypto.KeyPrefix(key): {row},
	}})

	_, err = a.Authenticate(context.Background(), key)
	assert.NoError(t, err)
}

func TestAuthenticateStoreError(t *testing.T) {
	key, err := crypto.GenerateApiKey()
	require.NoError(t, err)
	a := NewAuthenticator(&fakeKeyStore{err: relayerrors.NewTransient("db down")})

	_, err = a.Authenticate(context.Background(), key)
	require.Error(t, err)
	assert.True(t, relayerrors.IsUnauthorized(err))
}
