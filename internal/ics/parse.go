package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	"daily-calendar/internal/model"
)

// UntitledEvent is the title given to a VEVENT without SUMMARY.
const UntitledEvent = "Untitled Event"

// ParsedEvent is a VEVENT normalized to the storage convention: Start and End
// are UTC with no zone information of their own, all-day events are anchored
// at midnight.
type ParsedEvent struct {
	UID         string
	Summary     string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
	AllDay      bool
	Categories  []string
	// AlarmMinutes holds the offsets of DISPLAY alarms with a duration trigger.
	AlarmMinutes []int
}

// Parse reads every VEVENT of an ICS document. Any malformed component fails
// the whole parse; no partial result is returned.
func Parse(body []byte) ([]ParsedEvent, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errors.New("empty ICS body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse calendar: %w", err)
	}

	events := make([]ParsedEvent, 0)
	for i, comp := range cal.Events() {
		ev, err := parseVEvent(comp)
		if err != nil {
			return nil, fmt.Errorf("vevent %d: %w", i, err)
		}
		events = append(events, ev)
	}
	return events, nil
}

func parseVEvent(ve *ical.VEvent) (ParsedEvent, error) {
	var out ParsedEvent

	out.UID = propText(ve, ical.ComponentPropertyUniqueId)
	if out.UID == "" {
		out.UID = uuid.NewString()
	}
	out.Summary = propText(ve, ical.ComponentPropertySummary)
	if out.Summary == "" {
		out.Summary = UntitledEvent
	}
	out.Description = propText(ve, ical.ComponentPropertyDescription)
	out.Location = propText(ve, ical.ComponentPropertyLocation)

	startProp := ve.GetProperty(ical.ComponentPropertyDtStart)
	if startProp == nil || strings.TrimSpace(startProp.Value) == "" {
		return out, errors.New("missing DTSTART")
	}
	start, allDay, err := parseTimeProp(startProp)
	if err != nil {
		return out, fmt.Errorf("DTSTART: %w", err)
	}
	out.Start = start
	out.AllDay = allDay

	switch endProp := ve.GetProperty(ical.ComponentPropertyDtEnd); {
	case endProp != nil && strings.TrimSpace(endProp.Value) != "":
		end, _, err := parseTimeProp(endProp)
		if err != nil {
			return out, fmt.Errorf("DTEND: %w", err)
		}
		out.End = end
	case ve.GetProperty(ical.ComponentProperty("DURATION")) != nil:
		d, err := parseDuration(ve.GetProperty(ical.ComponentProperty("DURATION")).Value)
		if err != nil {
			return out, fmt.Errorf("DURATION: %w", err)
		}
		out.End = out.Start.Add(d)
	case allDay:
		out.End = out.Start.AddDate(0, 0, 1)
	default:
		out.End = out.Start.Add(time.Hour)
	}

	for _, p := range ve.GetProperties(propCategories) {
		out.Categories = append(out.Categories, splitList(p.Value)...)
	}

	for _, child := range ve.Components {
		alarm, ok := child.(*ical.VAlarm)
		if !ok {
			continue
		}
		if minutes, ok := alarmMinutes(alarm); ok {
			out.AlarmMinutes = append(out.AlarmMinutes, minutes)
		}
	}

	return out, nil
}

func alarmMinutes(alarm *ical.VAlarm) (int, bool) {
	action := alarm.GetProperty(propAction)
	if action == nil || !strings.EqualFold(strings.TrimSpace(action.Value), actionDisplay) {
		return 0, false
	}
	trigger := alarm.GetProperty(propTrigger)
	if trigger == nil {
		return 0, false
	}
	if vs, ok := trigger.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE-TIME") {
		return 0, false
	}
	d, err := parseDuration(trigger.Value)
	if err != nil {
		return 0, false
	}
	minutes := int(d / time.Minute)
	if minutes < 0 {
		minutes = -minutes
	}
	return minutes, true
}

func propText(ve *ical.VEvent, prop ical.ComponentProperty) string {
	p := ve.GetProperty(prop)
	if p == nil {
		return ""
	}
	return strings.TrimSpace(p.Value)
}

// parseTimeProp converts a DATE or DATE-TIME property into a storage instant.
// Date-only values mark the event all-day and are anchored at UTC midnight.
// Zone-aware values (trailing Z or TZID) are converted to UTC; floating values
// are read as UTC wall-clock.
func parseTimeProp(p *ical.IANAProperty) (time.Time, bool, error) {
	v := strings.TrimSpace(p.Value)

	dateOnly := !strings.Contains(v, "T")
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		dateOnly = true
	}
	if dateOnly {
		t, err := time.ParseInLocation("20060102", v, time.UTC)
		if err != nil {
			return time.Time{}, false, err
		}
		return t, true, nil
	}

	if strings.HasSuffix(v, "Z") {
		t, err := time.Parse("20060102T150405Z", v)
		if err != nil {
			return time.Time{}, false, err
		}
		return model.Normalize(t), false, nil
	}

	loc := time.UTC
	if tzs, ok := p.ICalParameters["TZID"]; ok && len(tzs) > 0 {
		l, err := time.LoadLocation(strings.Trim(tzs[0], `"`))
		if err != nil {
			return time.Time{}, false, fmt.Errorf("unknown TZID %q: %w", tzs[0], err)
		}
		loc = l
	}
	t, err := time.ParseInLocation("20060102T150405", v, loc)
	if err != nil {
		return time.Time{}, false, err
	}
	return model.Normalize(t), false, nil
}
