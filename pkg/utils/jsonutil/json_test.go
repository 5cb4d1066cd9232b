/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package jsonutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestUnmarshalWithCheck(t *testing.T) {
	s := sample{}
	require.NoError(t, UnmarshalWithCheck([]byte(`{"name":"x","count":2}`), &s))
	assert.Equal(t, "x", s.Name)
	assert.Equal(t, 2, s.Count)

	assert.Error(t, UnmarshalWithCheck([]byte(`{"name":"x","unknown":true}`), &sample{}))
	assert.Error(t, UnmarshalWithCheck([]byte(`not json`), &sample{}))
}

func TestMarshalSilently(t *testing.T) {
	assert.Nil(t, MarshalSilently(nil))
	assert.JSONEq(t, `{"name":"x","count":0}`, string(MarshalSilently(sample{Name: "x"})))
	// Unmarshalable values collapse to nil instead of an error.
	assert.Nil(t, MarshalSilently(func() {}))
}

func TestDecodeFromMapWithJson(t *testing.T) {
	s := sample{}
	require.NoError(t, DecodeFromMapWithJson(map[string]interface{}{"name": "y", "count": 3}, &s))
	assert.Equal(t, "y", s.Name)
	assert.Equal(t, 3, s.Count)
}
