/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"math/big"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	ApiKeyPrefix    = "sk_"
	ApiKeyRandomLen = 40
	// KeyPrefixLen is the number of leading characters indexed for
	// candidate lookup. The full key is never stored in clear.
	KeyPrefixLen = 8

	base62Chars = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// NewId returns a random identifier for durable records.
func NewId() string {
	return uuid.NewString()
}

func NewTraceId() string {
	return randomHex(16)
}

func NewSpanId() string {
	return randomHex(8)
}

func randomHex(byteLen int) string {
	buf := make([]byte, byteLen)
	if _, err := rand.Read(buf); err != nil {
		return hex.EncodeToString([]byte(uuid.NewString()))[:byteLen*2]
	}
	return hex.EncodeToString(buf)
}

// GenerateApiKey returns a fresh plaintext API key. The caller is expected
// to store only the bcrypt hash and the indexable prefix.
func GenerateApiKey() (string, error) {
	key := make([]byte, ApiKeyRandomLen)
	max := big.NewInt(int64(len(base62Chars)))
	for i := range key {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		key[i] = base62Chars[n.Int64()]
	}
	return ApiKeyPrefix + string(key), nil
}

// GenerateClusterToken returns a fresh plaintext cluster token, returned to
// the relayer exactly once at registration.
func GenerateClusterToken() (string, error) {
	return GenerateApiKey()
}

// KeyPrefix returns the indexed prefix of a plaintext key.
func KeyPrefix(key string) string {
	if len(key) < KeyPrefixLen {
		return key
	}
	return key[:KeyPrefixLen]
}

// HashSecret hashes a plaintext secret with bcrypt.
func HashSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifySecret reports whether secret matches the stored bcrypt hash.
// bcrypt comparison is constant time with respect to the secret.
func VerifySecret(hash, secret string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}

// ConstantTimeEquals compares two strings without leaking the position of
// the first differing byte.
func ConstantTimeEquals(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
