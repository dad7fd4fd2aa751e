package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDateParser(t *testing.T) {
	clock := newFakeClock(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))
	p := NewDateParser(time.UTC, clock)

	cases := map[string]time.Time{
		"2024-05-02T10:30:00":       time.Date(2024, 5, 2, 10, 30, 0, 0, time.UTC),
		"2024-05-02T10:30:00+02:00": time.Date(2024, 5, 2, 8, 30, 0, 0, time.UTC),
		"2024-05-02 10:30":          time.Date(2024, 5, 2, 10, 30, 0, 0, time.UTC),
		"2024-05-02":                time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC),
		"2024-5-2 9:05":             time.Date(2024, 5, 2, 9, 5, 0, 0, time.UTC),
	}
	for in, want := range cases {
		got, ok := p.Parse(in)
		if assert.True(t, ok, in) {
			assert.True(t, want.Equal(got), "%s: got %s", in, got)
			assert.Equal(t, time.UTC, got.Location())
		}
	}

	for _, bad := range []string{"", "   ", "not-a-date", "tomorrow-ish"} {
		_, ok := p.Parse(bad)
		assert.False(t, ok, bad)
	}
}

func TestDateParserUsesLocation(t *testing.T) {
	zone := time.FixedZone("UTC+3", 3*3600)
	p := NewDateParser(zone, newFakeClock(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)))

	got, ok := p.Parse("2024-05-02T12:00:00")
	assert.True(t, ok)
	assert.True(t, got.Equal(time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC)))
}
