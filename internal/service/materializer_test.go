package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"daily-calendar/internal/extraction"
	"daily-calendar/internal/model"
)

func newMaterializer(env *testEnv) *Materializer {
	return NewMaterializer(env.events, env.todos, NewDateParser(time.UTC, env.clock), env.clock)
}

func TestMaterializeTodoWithUnparseableDeadline(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, false)
	user := env.user(t, "alice")

	out, err := newMaterializer(env).Materialize(ctx, extraction.Intent{
		Kind:   extraction.KindTodo,
		Fields: map[string]any{"title": "Water plants", "deadline": "not-a-date"},
	}, user)
	require.NoError(t, err)
	require.NotNil(t, out.Todo)
	assert.Nil(t, out.Event)

	stored, err := env.todoSvc.GetTodo(ctx, user.ID, out.Todo.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.Deadline)
	assert.Empty(t, stored.Reminders)
	assert.Equal(t, model.PriorityLow, stored.Priority)
}

func TestMaterializeTodoWithDeadline(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, false)
	user := env.user(t, "alice")

	out, err := newMaterializer(env).Materialize(ctx, extraction.Intent{
		Kind:   extraction.KindTodo,
		Fields: map[string]any{"title": "Taxes", "deadline": "2024-05-03T17:00:00", "priority": "High"},
	}, user)
	require.NoError(t, err)

	stored, err := env.todoSvc.GetTodo(ctx, user.ID, out.Todo.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Deadline)
	assert.True(t, stored.Deadline.Equal(time.Date(2024, 5, 3, 17, 0, 0, 0, time.UTC)))
	assert.Equal(t, model.PriorityHigh, stored.Priority)
	require.Len(t, stored.Reminders, 1)
	assert.Equal(t, 60, stored.Reminders[0].MinutesBefore)
}

func TestMaterializeEventDefaults(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, false)
	user := env.user(t, "alice")
	env.clock.Set(at(9, 15))

	out, err := newMaterializer(env).Materialize(ctx, extraction.Intent{
		Kind:   extraction.KindEvent,
		Fields: map[string]any{"start_time": "whenever"},
	}, user)
	require.NoError(t, err)
	require.NotNil(t, out.Event)

	stored, err := env.calendar.GetEvent(ctx, user.ID, out.Event.ID)
	require.NoError(t, err)
	assert.Equal(t, "Untitled Event", stored.Title)
	assert.True(t, stored.StartTime.Equal(at(9, 15)), "unparseable start falls back to now")
	assert.True(t, stored.EndTime.Equal(at(10, 15)), "missing end is start plus one hour")
	assert.Equal(t, []int{15}, reminderOffsets(stored.Reminders))
	assert.NotEmpty(t, stored.ICSUID)
}

func TestMaterializeEventToleratesInvertedRange(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, false)
	user := env.user(t, "alice")

	out, err := newMaterializer(env).Materialize(ctx, extraction.Intent{
		Kind: extraction.KindEvent,
		Fields: map[string]any{
			"title":      "Odd",
			"start_time": "2024-05-01T15:00:00",
			"end_time":   "2024-05-01T14:00:00",
			"location":   "Park",
			"is_all_day": false,
		},
	}, user)
	require.NoError(t, err)
	assert.True(t, out.Event.EndTime.Before(out.Event.StartTime))
	assert.Equal(t, "Park", out.Event.Location)
}

func TestMaterializeIsNotIdempotent(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, false)
	user := env.user(t, "alice")
	m := newMaterializer(env)

	intent := extraction.Intent{Kind: extraction.KindTodo, Fields: map[string]any{"title": "Same"}}
	first, err := m.Materialize(ctx, intent, user)
	require.NoError(t, err)
	second, err := m.Materialize(ctx, intent, user)
	require.NoError(t, err)
	assert.NotEqual(t, first.Todo.ID, second.Todo.ID)

	defaulted, err := m.Materialize(ctx, extraction.Intent{Kind: extraction.KindTodo}, user)
	require.NoError(t, err)
	assert.Equal(t, "Untitled Todo", defaulted.Todo.Title)
}

func TestMaterializeUnknownKind(t *testing.T) {
	env := newTestEnv(t, false)
	user := env.user(t, "alice")

	_, err := newMaterializer(env).Materialize(context.Background(), extraction.Intent{Kind: "note"}, user)
	var vErr *ValidationError
	assert.ErrorAs(t, err, &vErr)
}
