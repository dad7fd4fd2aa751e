package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Normalize converts t to the storage convention: UTC, truncated to whole
// seconds. Stored instants carry no zone of their own; every timestamp in the
// database is read as UTC wall-clock time.
func Normalize(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

// NormalizePtr is Normalize for optional timestamps.
func NormalizePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	n := Normalize(*t)
	return &n
}

// ParseClock parses an HH:MM wall-clock time. A bare hour ("7") means minute zero.
func ParseClock(value string) (hour, minute int, err error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) == 0 || len(parts) > 2 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", value)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", value)
	}
	if len(parts) == 2 {
		minute, err = strconv.Atoi(parts[1])
		if err != nil || minute < 0 || minute > 59 {
			return 0, 0, fmt.Errorf("invalid minute in %q", value)
		}
	}
	return hour, minute, nil
}
