package service

import (
	"context"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"daily-calendar/internal/model"
	"daily-calendar/internal/repository"
)

func icsDoc(events ...string) []byte {
	return []byte("BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:-//test//EN\r\n" + strings.Join(events, "") + "END:VCALENDAR\r\n")
}

func vevent(uid, summary, start, end, categories string, alarms ...string) string {
	var sb strings.Builder
	sb.WriteString("BEGIN:VEVENT\r\nUID:" + uid + "\r\nDTSTAMP:20240101T000000Z\r\nSUMMARY:" + summary + "\r\n")
	sb.WriteString("DTSTART:" + start + "\r\nDTEND:" + end + "\r\n")
	if categories != "" {
		sb.WriteString("CATEGORIES:" + categories + "\r\n")
	}
	for _, trigger := range alarms {
		sb.WriteString("BEGIN:VALARM\r\nACTION:DISPLAY\r\nDESCRIPTION:x\r\nTRIGGER:" + trigger + "\r\nEND:VALARM\r\n")
	}
	sb.WriteString("END:VEVENT\r\n")
	return sb.String()
}

func tagNames(tags []model.Tag) []string {
	names := make([]string, 0, len(tags))
	for _, tag := range tags {
		names = append(names, tag.Name)
	}
	sort.Strings(names)
	return names
}

func TestCreateEventDefaultsAndValidation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, false)
	user := env.user(t, "alice")

	event, err := env.calendar.CreateEvent(ctx, user.ID, EventInput{Title: "Lunch", StartTime: at(12, 0), EndTime: at(13, 0)})
	require.NoError(t, err)
	assert.NotEmpty(t, event.ICSUID)
	assert.Equal(t, []int{15}, reminderOffsets(event.Reminders))

	_, err = env.calendar.CreateEvent(ctx, user.ID, EventInput{Title: "Backwards", StartTime: at(13, 0), EndTime: at(12, 0)})
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "end_time", vErr.Field)

	_, err = env.calendar.CreateEvent(ctx, user.ID, EventInput{StartTime: at(12, 0), EndTime: at(13, 0)})
	require.ErrorAs(t, err, &vErr)

	_, err = env.calendar.CreateEvent(ctx, user.ID, EventInput{Title: "Tagged", StartTime: at(12, 0), EndTime: at(13, 0), TagIDs: []uint{99}})
	assert.ErrorIs(t, err, ErrNotFound)

	events, err := env.calendar.ListEvents(ctx, user.ID, repository.EventFilter{})
	require.NoError(t, err)
	assert.Len(t, events, 1, "rejected creates leave nothing behind")
}

func TestListEventsFilters(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, false)
	user := env.user(t, "alice")
	other := env.user(t, "bob")

	work, err := env.tagSvc.Create(ctx, user.ID, "work", "")
	require.NoError(t, err)
	_, err = env.calendar.CreateEvent(ctx, user.ID, EventInput{Title: "Morning", StartTime: at(8, 0), EndTime: at(9, 0), TagIDs: []uint{work.ID}})
	require.NoError(t, err)
	_, err = env.calendar.CreateEvent(ctx, user.ID, EventInput{Title: "Evening", StartTime: at(18, 0), EndTime: at(19, 0)})
	require.NoError(t, err)
	_, err = env.calendar.CreateEvent(ctx, other.ID, EventInput{Title: "Foreign", StartTime: at(8, 0), EndTime: at(9, 0)})
	require.NoError(t, err)

	all, err := env.calendar.ListEvents(ctx, user.ID, repository.EventFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	tagged, err := env.calendar.ListEvents(ctx, user.ID, repository.EventFilter{TagID: &work.ID})
	require.NoError(t, err)
	require.Len(t, tagged, 1)
	assert.Equal(t, "Morning", tagged[0].Title)
	assert.Equal(t, []string{"work"}, tagged[0].TagNames())

	ranged, err := env.calendar.ListEvents(ctx, user.ID, repository.EventFilter{From: ptr(at(12, 0)), To: ptr(at(23, 0))})
	require.NoError(t, err)
	require.Len(t, ranged, 1)
	assert.Equal(t, "Evening", ranged[0].Title)

	_, err = env.calendar.ListEvents(ctx, user.ID, repository.EventFilter{TagID: ptr(uint(404))})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = env.calendar.GetEvent(ctx, other.ID, tagged[0].ID)
	assert.ErrorIs(t, err, ErrNotFound, "events of other users are invisible")
}

func TestUpdateEventReplacesRemindersAndTags(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, false)
	user := env.user(t, "alice")
	a, err := env.tagSvc.Create(ctx, user.ID, "a", "")
	require.NoError(t, err)
	b, err := env.tagSvc.Create(ctx, user.ID, "b", "#ff0000")
	require.NoError(t, err)

	event, err := env.calendar.CreateEvent(ctx, user.ID, EventInput{Title: "Plan", StartTime: at(10, 0), EndTime: at(11, 0), TagIDs: []uint{a.ID}, Reminders: []int{5, 10}})
	require.NoError(t, err)
	uid := event.ICSUID

	updated, err := env.calendar.UpdateEvent(ctx, user.ID, event.ID, EventInput{
		Title: "Plan v2", StartTime: at(10, 0), EndTime: at(12, 0), TagIDs: []uint{b.ID}, Reminders: []int{30},
	})
	require.NoError(t, err)
	assert.Equal(t, "Plan v2", updated.Title)
	assert.Equal(t, uid, updated.ICSUID, "the ICS identity never changes")
	assert.Equal(t, []int{30}, reminderOffsets(updated.Reminders))
	assert.Equal(t, []string{"b"}, updated.TagNames())

	_, err = env.calendar.UpdateEvent(ctx, user.ID, event.ID, EventInput{Title: "x", StartTime: at(12, 0), EndTime: at(11, 0)})
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)

	_, err = env.calendar.UpdateEvent(ctx, user.ID, 999, EventInput{Title: "x", StartTime: at(10, 0), EndTime: at(11, 0)})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRescheduleKeepsSentFlagByDefault(t *testing.T) {
	for _, reset := range []bool{false, true} {
		ctx := context.Background()
		env := newTestEnv(t, reset)
		user := env.user(t, "alice")

		event, err := env.calendar.CreateEvent(ctx, user.ID, EventInput{Title: "Call", StartTime: at(10, 0), EndTime: at(11, 0)})
		require.NoError(t, err)
		marked, err := env.events.MarkReminderSent(ctx, event.Reminders[0].ID)
		require.NoError(t, err)
		require.True(t, marked)

		updated, err := env.calendar.UpdateEvent(ctx, user.ID, event.ID, EventInput{Title: "Call", StartTime: at(15, 0), EndTime: at(16, 0)})
		require.NoError(t, err)
		require.Len(t, updated.Reminders, 1)
		assert.Equal(t, !reset, updated.Reminders[0].IsSent, "reset=%v", reset)
	}
}

func TestDeleteEventRemovesReminders(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, false)
	user := env.user(t, "alice")

	event, err := env.calendar.CreateEvent(ctx, user.ID, EventInput{Title: "Gone", StartTime: at(10, 0), EndTime: at(11, 0)})
	require.NoError(t, err)
	require.NoError(t, env.calendar.DeleteEvent(ctx, user.ID, event.ID))

	var count int64
	require.NoError(t, env.db.Model(&model.Reminder{}).Count(&count).Error)
	assert.Zero(t, count)
	assert.ErrorIs(t, env.calendar.DeleteEvent(ctx, user.ID, event.ID), ErrNotFound)
}

func TestImportUpsertsByUID(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, false)
	user := env.user(t, "alice")

	first := icsDoc(vevent("uid-1", "Standup", "20240501T090000Z", "20240501T091500Z", "Work,Daily", "-PT10M", "-PT30M"))
	imported, err := env.calendar.ImportICS(ctx, user.ID, first)
	require.NoError(t, err)
	require.Len(t, imported, 1)
	assert.Equal(t, "uid-1", imported[0].ICSUID)
	assert.ElementsMatch(t, []int{10, 30}, reminderOffsets(imported[0].Reminders))
	assert.Equal(t, []string{"Daily", "Work"}, tagNames(imported[0].Tags))

	second := icsDoc(vevent("uid-1", "Standup (moved)", "20240501T100000Z", "20240501T101500Z", "Work", "-PT5M"))
	imported, err = env.calendar.ImportICS(ctx, user.ID, second)
	require.NoError(t, err)
	require.Len(t, imported, 1)

	events, err := env.calendar.ListEvents(ctx, user.ID, repository.EventFilter{})
	require.NoError(t, err)
	require.Len(t, events, 1, "same UID is updated, not duplicated")
	got := events[0]
	assert.Equal(t, "Standup (moved)", got.Title)
	assert.True(t, got.StartTime.Equal(at(10, 0)))
	assert.Equal(t, []int{5}, reminderOffsets(got.Reminders), "reminders are replaced, not merged")
	assert.Equal(t, []string{"Daily", "Work"}, tagNames(got.Tags), "tag links are only ever added")

	tags, err := env.tagSvc.List(ctx, user.ID)
	require.NoError(t, err)
	assert.Len(t, tags, 2)

	other := env.user(t, "bob")
	_, err = env.calendar.ImportICS(ctx, other.ID, first)
	require.NoError(t, err)
	var total int64
	require.NoError(t, env.db.Model(&model.Event{}).Count(&total).Error)
	assert.Equal(t, int64(2), total, "the same UID may exist once per user")
}

func TestImportIsAtomic(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, false)
	user := env.user(t, "alice")

	doc := icsDoc(
		vevent("ok-1", "Fine", "20240501T090000Z", "20240501T100000Z", "New"),
		vevent("bad-2", "Backwards", "20240501T120000Z", "20240501T110000Z", ""),
	)
	_, err := env.calendar.ImportICS(ctx, user.ID, doc)
	var importErr *ImportError
	require.ErrorAs(t, err, &importErr)
	assert.Equal(t, 1, importErr.Component)
	assert.Equal(t, "bad-2", importErr.UID)

	var events, tags int64
	require.NoError(t, env.db.Model(&model.Event{}).Count(&events).Error)
	require.NoError(t, env.db.Model(&model.Tag{}).Count(&tags).Error)
	assert.Zero(t, events)
	assert.Zero(t, tags)

	_, err = env.calendar.ImportICS(ctx, user.ID, []byte("not a calendar"))
	require.ErrorAs(t, err, &importErr)
	assert.Equal(t, -1, importErr.Component)
}

func TestExportImportRoundTripThroughStore(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, false)
	alice := env.user(t, "alice")
	bob := env.user(t, "bob")

	work, err := env.tagSvc.Create(ctx, alice.ID, "work", "")
	require.NoError(t, err)
	home, err := env.tagSvc.Create(ctx, alice.ID, "home", "")
	require.NoError(t, err)
	event, err := env.calendar.CreateEvent(ctx, alice.ID, EventInput{
		Title: "Offsite", Location: "HQ, floor 3", Description: "Bring laptop",
		StartTime: at(9, 30), EndTime: at(17, 0), TagIDs: []uint{work.ID, home.ID}, Reminders: []int{15, 120},
	})
	require.NoError(t, err)

	body, err := env.calendar.ExportICS(ctx, alice.ID, event.ID)
	require.NoError(t, err)
	imported, err := env.calendar.ImportICS(ctx, bob.ID, []byte(body))
	require.NoError(t, err)
	require.Len(t, imported, 1)

	got := imported[0]
	assert.Equal(t, event.ICSUID, got.ICSUID)
	assert.Equal(t, event.Title, got.Title)
	assert.Equal(t, event.Location, got.Location)
	assert.True(t, event.StartTime.Equal(got.StartTime))
	assert.True(t, event.EndTime.Equal(got.EndTime))
	assert.Equal(t, tagNames(event.Tags), tagNames(got.Tags))
	assert.ElementsMatch(t, reminderOffsets(event.Reminders), reminderOffsets(got.Reminders))
}

func TestExportAssignsAndPersistsUID(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, false)
	user := env.user(t, "alice")

	event, err := env.calendar.CreateEvent(ctx, user.ID, EventInput{Title: "Legacy", StartTime: at(10, 0), EndTime: at(11, 0)})
	require.NoError(t, err)
	require.NoError(t, env.db.Model(&model.Event{}).Where("id = ?", event.ID).Update("ics_uid", "").Error)

	body, err := env.calendar.ExportICS(ctx, user.ID, event.ID)
	require.NoError(t, err)

	reloaded, err := env.calendar.GetEvent(ctx, user.ID, event.ID)
	require.NoError(t, err)
	require.NotEmpty(t, reloaded.ICSUID)
	assert.Contains(t, body, "UID:"+reloaded.ICSUID)

	again, err := env.calendar.ExportICS(ctx, user.ID, event.ID)
	require.NoError(t, err)
	assert.Contains(t, again, "UID:"+reloaded.ICSUID)
}
