package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"daily-calendar/internal/model"
	"daily-calendar/internal/repository"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{now: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []Notification
	fail func(Notification) error
}

func (r *recordingNotifier) Notify(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		if err := r.fail(n); err != nil {
			return err
		}
	}
	r.sent = append(r.sent, n)
	return nil
}

func (r *recordingNotifier) take() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.sent
	r.sent = nil
	return out
}

type testEnv struct {
	db       *gorm.DB
	users    *repository.UserRepository
	tags     *repository.TagRepository
	events   *repository.EventRepository
	todos    *repository.TodoRepository
	clock    *fakeClock
	notifier *recordingNotifier

	userSvc  *UserService
	tagSvc   *TagService
	calendar *CalendarService
	todoSvc  *TodoService
}

func newTestEnv(t *testing.T, resetOnReschedule bool) *testEnv {
	t.Helper()
	db, err := repository.NewDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	env := &testEnv{
		db:       db,
		users:    repository.NewUserRepository(db),
		tags:     repository.NewTagRepository(db),
		events:   repository.NewEventRepository(db),
		todos:    repository.NewTodoRepository(db),
		clock:    newFakeClock(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)),
		notifier: &recordingNotifier{},
	}
	env.userSvc = NewUserService(env.users)
	env.tagSvc = NewTagService(env.tags)
	env.calendar = NewCalendarService(db, env.events, env.tags, env.clock, resetOnReschedule)
	env.todoSvc = NewTodoService(db, env.todos, env.events, env.clock, time.UTC, resetOnReschedule)
	return env
}

func (e *testEnv) user(t *testing.T, username string) *model.User {
	t.Helper()
	user, err := e.userSvc.Create(context.Background(), UserInput{Username: username})
	require.NoError(t, err)
	return user
}

func at(hour, minute int) time.Time {
	return time.Date(2024, 5, 1, hour, minute, 0, 0, time.UTC)
}

func ptr[T any](v T) *T {
	return &v
}

func reminderOffsets(reminders []model.Reminder) []int {
	out := make([]int, 0, len(reminders))
	for _, r := range reminders {
		out = append(out, r.MinutesBefore)
	}
	return out
}
