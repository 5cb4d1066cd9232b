/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateApiKeyFormat(t *testing.T) {
	key, err := GenerateApiKey()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, ApiKeyPrefix))
	assert.Equal(t, len(ApiKeyPrefix)+ApiKeyRandomLen, len(key))

	other, err := GenerateApiKey()
	require.NoError(t, err)
	assert.NotEqual(t, key, other)
}

func TestKeyPrefix(t *testing.T) {
	key := "sk_abcdefghijklmnop"
	assert.Equal(t, "sk_abcde", KeyPrefix(key))
	assert.Equal(t, "sk_a", KeyPrefix("sk_a"))
}

func TestHashAndVerifySecret(t *testing.T) {
	key, err := GenerateApiKey()
	require.NoError(t, err)

	hash, err := HashSecret(key)
	require.NoError(t, err)
	assert.NotEqual(t, key, hash)

	assert.True(t, VerifySecret(hash, key))
	assert.False(t, VerifySecret(hash, key+"x"))
}

func TestConstantTimeEquals(t *testing.T) {
	assert.True(t, ConstantTimeEquals("abc", "abc"))
	assert.False(t, ConstantTimeEquals("abc", "abd"))
	assert.False(t, ConstantTimeEquals("abc", "abcd"))
}

func TestNewIdUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewId()
		assert.False(t, seen[id])
		seen[id] = true
	}
}
