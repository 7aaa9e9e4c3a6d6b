package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/taskly/internal/localtime"
)

func tehran(y int, m time.Month, d, h, mi int) time.Time {
	return time.Date(y, m, d, h, mi, 0, 0, localtime.Tehran)
}

func TestDailyReportSchedule(t *testing.T) {
	anchor := tehran(2025, time.March, 1, 0, 0)
	s, err := ParseSchedule(anchor, DefaultConfig().DailyReport...)
	require.NoError(t, err)

	// Wednesday evening: next is Thursday's early report.
	next := s.Next(tehran(2025, time.March, 5, 17, 0))
	assert.True(t, next.Equal(tehran(2025, time.March, 6, 12, 45)), next)

	// Thursday afternoon: Friday is skipped.
	next = s.Next(tehran(2025, time.March, 6, 13, 0))
	assert.True(t, next.Equal(tehran(2025, time.March, 8, 16, 45)), next)
}

func TestForceCloseScheduleUsesAnchorZone(t *testing.T) {
	s, err := ParseSchedule(tehran(2025, time.March, 1, 0, 0), DefaultConfig().ForceClose...)
	require.NoError(t, err)
	next := s.Next(tehran(2025, time.March, 3, 21, 58).UTC())
	assert.True(t, next.Equal(tehran(2025, time.March, 3, 22, 0)), next)
	assert.Equal(t, 18, next.UTC().Hour())
	assert.Equal(t, 30, next.UTC().Minute())
}

func TestParseScheduleRejectsGarbage(t *testing.T) {
	_, err := ParseSchedule(time.Now(), "FREQ=SOMETIMES")
	assert.Error(t, err)
	_, err = ParseSchedule(time.Now())
	assert.Error(t, err)
}

func TestWeekly(t *testing.T) {
	assert.Equal(t, "FREQ=WEEKLY;BYDAY=SA,SU;BYHOUR=9;BYMINUTE=5;BYSECOND=0", Weekly("sa, su", 9, 5, 0))
}

func TestParseClock(t *testing.T) {
	h, m, s, err := ParseClock("09:30:15")
	require.NoError(t, err)
	assert.Equal(t, []int{9, 30, 15}, []int{h, m, s})

	h, m, s, err = ParseClock("13:05")
	require.NoError(t, err)
	assert.Equal(t, []int{13, 5, 0}, []int{h, m, s})

	_, _, _, err = ParseClock("25:00")
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{}.WithDefaults()
	assert.NoError(t, cfg.Validate([]TimeBlock{{Type: BlockFocus, StartTime: "09:00:00", EndTime: "10:30:00"}}))
	assert.Error(t, cfg.Validate([]TimeBlock{{Type: "Nap", StartTime: "09:00"}}))
	assert.Error(t, cfg.Validate([]TimeBlock{{Type: BlockBreak, StartTime: "nine"}}))

	cfg.ForceClose = []string{"FREQ=NEVER"}
	assert.Error(t, cfg.Validate(nil))
}

func TestTimeBlockMessageKey(t *testing.T) {
	assert.Equal(t, "notifications.focus", TimeBlock{Type: BlockFocus}.MessageKey())
	assert.Equal(t, "notifications.break", TimeBlock{Type: BlockBreak}.MessageKey())
	assert.Equal(t, "notifications.lunch", TimeBlock{Type: BlockHalf}.MessageKey())
}
