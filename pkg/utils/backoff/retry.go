/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package backoff

import (
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/AMD-AIG-AIMA/relay/pkg/errors"
)

func Retry(f backoff.Operation, maxElapsedTime, maxInterval time.Duration) error {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = maxElapsedTime
	b.MaxInterval = maxInterval
	if err := backoff.Retry(f, b); err != nil {
		return err
	}
	return nil
}

// TransientRetry retries f while it fails with a transient error, up to
// count attempts with a fixed interval.
func TransientRetry(f backoff.Operation, count int, interval time.Duration) error {
	var err error
	for i := 0; i < count; i++ {
		err = f()
		if err == nil {
			return nil
		}
		if i == count-1 || !errors.IsTransient(err) {
			return err
		}
		time.Sleep(interval)
	}
	return err
}

// Delay computes the retry delay for a failed attempt under the given
// policy. Attempt numbering starts at 1 for the first attempt.
func Delay(policy string, initialDelay time.Duration, attempt int) time.Duration {
	switch policy {
	case "linear":
		return initialDelay * time.Duration(attempt+1)
	case "exponential":
		return initialDelay * time.Duration(1<<attempt)
	default:
		return initialDelay
	}
}
