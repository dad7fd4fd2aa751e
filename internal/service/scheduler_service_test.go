package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerRejectsBadSpec(t *testing.T) {
	s := NewSchedulerService(time.UTC)

	_, err := s.Schedule("every minute", func() {})
	assert.Error(t, err)

	// five-field specs are rejected: the parser expects seconds
	_, err = s.Schedule("* * * * *", func() {})
	assert.Error(t, err)
}

func TestSchedulerEveryMinuteRegisters(t *testing.T) {
	s := NewSchedulerService(nil)

	id, err := s.ScheduleEveryMinute(func() {})
	require.NoError(t, err)

	entry := s.cron.Entry(id)
	require.NotNil(t, entry.Schedule)
	from := time.Date(2024, 5, 1, 9, 0, 30, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 5, 1, 9, 1, 0, 0, time.UTC), entry.Schedule.Next(from))

	s.Start()
	s.Stop()
}
