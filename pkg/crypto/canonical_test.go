/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package crypto

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalHashStableUnderKeyOrder(t *testing.T) {
	var a, b map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(`{"name":"x","image":"r.io/a/b:1","warmPoolSize":2}`), &a))
	require.NoError(t, json.Unmarshal([]byte(`{"warmPoolSize":2,"image":"r.io/a/b:1","name":"x"}`), &b))

	hashA, err := CanonicalHash(a)
	require.NoError(t, err)
	hashB, err := CanonicalHash(b)
	require.NoError(t, err)
	assert.Equal(t, hashA, hashB)
}

func TestCanonicalHashChangesWithValue(t *testing.T) {
	hashA, err := CanonicalHash(map[string]interface{}{"name": "x", "warmPoolSize": 2})
	require.NoError(t, err)
	hashB, err := CanonicalHash(map[string]interface{}{"name": "x", "warmPoolSize": 3})
	require.NoError(t, err)
	assert.NotEqual(t, hashA, hashB)
}

func TestCanonicalMarshalNestedSort(t *testing.T) {
	data, err := CanonicalMarshal(map[string]interface{}{
		"b": map[string]interface{}{"z": 1, "a": 2},
		"a": []interface{}{"x"},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"a":["x"],"b":{"a":2,"z":1}}`, string(data))
}

func TestCanonicalMarshalPreservesNumbers(t *testing.T) {
	data, err := CanonicalMarshal(map[string]interface{}{"n": json.Number("10.50")})
	require.NoError(t, err)
	assert.Equal(t, `{"n":10.50}`, string(data))
}

func TestCanonicalMarshalNull(t *testing.T) {
	data, err := CanonicalMarshal(map[string]interface{}{"n": nil})
	require.NoError(t, err)
	assert.Equal(t, `{"n":null}`, string(data))
}
