package ics

import (
	"strings"
	"time"
	"unicode/utf8"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	"daily-calendar/internal/model"
)

// ProductID is written as PRODID on every exported calendar.
const ProductID = "-//Daily Calendar//EN"

const (
	propAction     = ical.ComponentProperty("ACTION")
	propTrigger    = ical.ComponentProperty("TRIGGER")
	propCategories = ical.ComponentProperty("CATEGORIES")
	actionDisplay  = "DISPLAY"

	crlf          = "\r\n"
	maxLineOctets = 75
)

// Encode renders event as a single-event VCALENDAR document stamped at stamp.
//
// An event without an ICS identity is assigned a fresh UUID in place; the
// caller is expected to persist it so later exports keep the same UID.
func Encode(event *model.Event, stamp time.Time) string {
	if event.ICSUID == "" {
		event.ICSUID = uuid.NewString()
	}

	cal := ical.NewCalendar()
	cal.SetProductId(ProductID)

	ve := cal.AddEvent(event.ICSUID)
	ve.SetSummary(event.Title)
	if event.Description != "" {
		ve.SetDescription(event.Description)
	}
	if event.Location != "" {
		ve.SetLocation(event.Location)
	}

	if event.IsAllDay {
		ve.SetAllDayStartAt(event.StartTime.UTC())
		ve.SetAllDayEndAt(event.EndTime.UTC())
	} else {
		ve.SetStartAt(event.StartTime.UTC())
		ve.SetEndAt(event.EndTime.UTC())
	}

	for _, reminder := range event.Reminders {
		alarm := ve.AddAlarm()
		alarm.SetProperty(propAction, actionDisplay)
		alarm.SetProperty(ical.ComponentPropertyDescription, "Reminder: "+event.Title)
		alarm.SetProperty(propTrigger, formatTrigger(reminder.MinutesBefore))
	}

	ve.SetDtStampTime(stamp.UTC())
	if !event.CreatedAt.IsZero() {
		ve.SetCreatedTime(event.CreatedAt.UTC())
	}
	if !event.UpdatedAt.IsZero() {
		ve.SetModifiedAt(event.UpdatedAt.UTC())
	}

	out := cal.Serialize(ical.WithNewLineWindows)
	if names := event.TagNames(); len(names) > 0 {
		out = insertEventProperty(out, categoriesLine(names))
	}
	return out
}

// categoriesLine renders CATEGORIES as one multi-valued property. golang-ical
// escapes every comma of a TEXT value, so the list separators would come out
// as "\," and read back as a single category.
func categoriesLine(names []string) string {
	values := make([]string, 0, len(names))
	for _, name := range names {
		values = append(values, ical.ToText(name))
	}
	return foldLine(string(propCategories) + ":" + strings.Join(values, ","))
}

// insertEventProperty places a serialized property line after the VEVENT's
// own properties, ahead of any VALARM.
func insertEventProperty(doc, line string) string {
	at := strings.Index(doc, crlf+"BEGIN:VALARM"+crlf)
	if at < 0 {
		at = strings.Index(doc, crlf+"END:VEVENT"+crlf)
	}
	if at < 0 {
		return doc
	}
	at += len(crlf)
	return doc[:at] + line + doc[at:]
}

// foldLine splits a content line into 75-octet pieces joined by CRLF and a
// leading space, never inside a UTF-8 sequence.
func foldLine(line string) string {
	var b strings.Builder
	limit := maxLineOctets
	for len(line) > limit {
		cut := limit
		for cut > 0 && !utf8.RuneStart(line[cut]) {
			cut--
		}
		b.WriteString(line[:cut])
		b.WriteString(crlf + " ")
		line = line[cut:]
		limit = maxLineOctets - 1
	}
	b.WriteString(line)
	b.WriteString(crlf)
	return b.String()
}
