package ics

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// formatTrigger renders a reminder offset as a VALARM TRIGGER duration
// relative to the event start.
func formatTrigger(minutesBefore int) string {
	switch {
	case minutesBefore == 0:
		return "PT0S"
	case minutesBefore < 0:
		return fmt.Sprintf("PT%dM", -minutesBefore)
	default:
		return fmt.Sprintf("-PT%dM", minutesBefore)
	}
}

// maxDuration bounds parsed durations; larger triggers are rejected rather
// than overflowing time.Duration.
const maxDuration = 10 * 366 * 24 * time.Hour

// parseDuration parses an RFC 5545 duration such as "-PT15M", "P1D" or "-P1DT2H".
func parseDuration(value string) (time.Duration, error) {
	v := strings.ToUpper(strings.TrimSpace(value))
	if v == "" {
		return 0, errors.New("empty duration")
	}

	sign := time.Duration(1)
	switch v[0] {
	case '-':
		sign = -1
		v = v[1:]
	case '+':
		v = v[1:]
	}
	if !strings.HasPrefix(v, "P") || len(v) < 2 {
		return 0, fmt.Errorf("invalid duration %q", value)
	}
	v = v[1:]

	var total time.Duration
	inTime := false
	num := ""
	for _, r := range v {
		switch {
		case r >= '0' && r <= '9':
			num += string(r)
			continue
		case r == 'T':
			if inTime || num != "" {
				return 0, fmt.Errorf("invalid duration %q", value)
			}
			inTime = true
			continue
		}
		if num == "" {
			return 0, fmt.Errorf("invalid duration %q", value)
		}
		n, err := strconv.Atoi(num)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q: %w", value, err)
		}
		num = ""
		unit, err := durationUnit(r, inTime)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q: %w", value, err)
		}
		if int64(n) > int64(maxDuration/unit) {
			return 0, fmt.Errorf("invalid duration %q: out of range", value)
		}
		total += time.Duration(n) * unit
		if total > maxDuration {
			return 0, fmt.Errorf("invalid duration %q: out of range", value)
		}
	}
	if num != "" {
		return 0, fmt.Errorf("invalid duration %q: dangling number", value)
	}
	return sign * total, nil
}

func durationUnit(r rune, inTime bool) (time.Duration, error) {
	if inTime {
		switch r {
		case 'H':
			return time.Hour, nil
		case 'M':
			return time.Minute, nil
		case 'S':
			return time.Second, nil
		}
	} else {
		switch r {
		case 'W':
			return 7 * 24 * time.Hour, nil
		case 'D':
			return 24 * time.Hour, nil
		}
	}
	return 0, fmt.Errorf("unexpected unit %q", r)
}
