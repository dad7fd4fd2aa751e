package service

import (
	"strings"
	"time"

	"github.com/jinzhu/now"

	"daily-calendar/internal/model"
)

// isoLayouts are tried first, in the configured location unless the value has an offset.
var isoLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// looseFormats feed jinzhu/now for everything that is not ISO. Time-only values
// resolve against the current day.
var looseFormats = []string{
	"2006-1-2 15:4:5",
	"2006-1-2 15:4",
	"2006-1-2",
	"2006/1/2 15:4",
	"2006/1/2",
	"1/2/2006 15:4",
	"1/2/2006",
	"2 Jan 2006 15:04",
	"2 Jan 2006",
	"Jan 2, 2006 15:04",
	"Jan 2, 2006 3:04 PM",
	"Jan 2, 2006",
	"January 2, 2006",
	"15:4:5",
	"15:4",
	"3:04PM",
	"3:04 PM",
	"3PM",
	"3 PM",
}

// DateParser turns loosely formatted date strings from chat input into
// storage-normalized instants.
type DateParser struct {
	loc   *time.Location
	clock Clock
}

func NewDateParser(loc *time.Location, clock Clock) *DateParser {
	if loc == nil {
		loc = time.UTC
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &DateParser{loc: loc, clock: clock}
}

// Parse reports false when value is empty or matches no known layout.
func (p *DateParser) Parse(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}

	for _, layout := range isoLayouts {
		if t, err := time.ParseInLocation(layout, value, p.loc); err == nil {
			return model.Normalize(t), true
		}
	}

	cfg := &now.Config{
		WeekStartDay: time.Monday,
		TimeLocation: p.loc,
		TimeFormats:  looseFormats,
	}
	t, err := cfg.With(p.clock.Now().In(p.loc)).Parse(value)
	if err != nil {
		return time.Time{}, false
	}
	return model.Normalize(t), true
}
