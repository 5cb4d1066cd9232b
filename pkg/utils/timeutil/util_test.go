/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDuration(t *testing.T) {
	d, err := ParseDuration("30s")
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, d)

	d, err = ParseDuration("5m")
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, d)

	d, err = ParseDuration("2h")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Hour, d)
}

func TestParseDurationInvalid(t *testing.T) {
	for _, value := range []string{"", "5", "5d", "m5", "-5m", "5ms"} {
		_, err := ParseDuration(value)
		assert.Error(t, err, value)
	}
}

func TestFormatRFC3339(t *testing.T) {
	assert.Equal(t, "", FormatRFC3339(nil))

	zero := time.Time{}
	assert.Equal(t, "", FormatRFC3339(&zero))

	ts := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)
	assert.Equal(t, "2025-06-01T12:30:00", FormatRFC3339(&ts))
}

func TestCvtMilliSecToTime(t *testing.T) {
	ts := CvtMilliSecToTime(1700000000500)
	assert.Equal(t, int64(1700000000), ts.Unix())
	assert.Equal(t, 500000000, ts.Nanosecond())
}
