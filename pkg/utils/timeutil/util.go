/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package timeutil

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

const (
	TimeRFC3339Short = "2006-01-02T15:04:05"
	TimeRFC3339Milli = "2006-01-02T15:04:05.999Z"
)

var durationPattern = regexp.MustCompile(`^(\d+)(s|m|h)$`)

func FormatRFC3339(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(TimeRFC3339Short)
}

func CvtStrUnixToTime(strTime string) time.Time {
	if strTime == "" {
		return time.Time{}
	}
	intTime, err := strconv.ParseInt(strTime, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(intTime, 0).UTC()
}

func CvtMilliSecToTime(milliseconds int64) time.Time {
	seconds := milliseconds / 1000
	nanoseconds := (milliseconds % 1000) * 1000000
	return time.Unix(seconds, nanoseconds).UTC()
}

// ParseDuration parses the restricted duration syntax used by agent
// resource profiles, a positive integer with an s, m or h suffix.
func ParseDuration(value string) (time.Duration, error) {
	matches := durationPattern.FindStringSubmatch(value)
	if matches == nil {
		return 0, fmt.Errorf("invalid duration %q", value)
	}
	n, err := strconv.ParseInt(matches[1], 10, 64)
	if err != nil {
		return 0, err
	}
	switch matches[2] {
	case "s":
		return time.Duration(n) * time.Second, nil
	case "m":
		return time.Duration(n) * time.Minute, nil
	default:
		return time.Duration(n) * time.Hour, nil
	}
}
