/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package backoff

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	relayerrors "github.com/AMD-AIG-AIMA/relay/pkg/errors"
	"github.com/AMD-AIG-AIMA/relay/pkg/types"
)

func TestDelayConstant(t *testing.T) {
	assert.Equal(t, time.Second, Delay(types.BackoffConstant, time.Second, 1))
	assert.Equal(t, time.Second, Delay(types.BackoffConstant, time.Second, 5))
}

func TestDelayLinear(t *testing.T) {
	assert.Equal(t, 2*time.Second, Delay(types.BackoffLinear, time.Second, 1))
	assert.Equal(t, 4*time.Second, Delay(types.BackoffLinear, time.Second, 3))
}

func TestDelayExponential(t *testing.T) {
	assert.Equal(t, 2*time.Second, Delay(types.BackoffExponential, time.Second, 1))
	assert.Equal(t, 8*time.Second, Delay(types.BackoffExponential, time.Second, 3))
}

func TestDelayUnknownPolicyFallsBackToConstant(t *testing.T) {
	assert.Equal(t, time.Second, Delay("random", time.Second, 4))
}

func TestTransientRetryRecovers(t *testing.T) {
	calls := 0
	err := TransientRetry(func() error {
		calls++
		if calls < 3 {
			return relayerrors.NewTransient("flaky")
		}
		return nil
	}, 3, time.Millisecond)
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestTransientRetryStopsOnPermanentError(t *testing.T) {
	calls := 0
	err := TransientRetry(func() error {
		calls++
		return fmt.Errorf("permanent")
	}, 3, time.Millisecond)
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestTransientRetryExhausts(t *testing.T) {
	calls := 0
	err := TransientRetry(func() error {
		calls++
		return relayerrors.NewTransient("still down")
	}, 3, time.Millisecond)
	assert.Error(t, err)
	assert.Equal(t, 3, calls)
}
