package localtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tehran(y int, m time.Month, d, h, mi, s int) time.Time {
	return time.Date(y, m, d, h, mi, s, 0, Tehran)
}

func TestLocalDayRangeBoundaries(t *testing.T) {
	c := New(nil)
	start, end := c.LocalDayRange(tehran(2025, 3, 10, 12, 0, 0))
	assert.Equal(t, time.Date(2025, 3, 9, 20, 30, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2025, 3, 10, 20, 29, 59, 999_000_000, time.UTC), end)
	assert.Equal(t, time.UTC, start.Location())
}

func TestLocalDayRangeContiguousAcrossMidnight(t *testing.T) {
	c := New(nil)
	before := tehran(2025, 3, 10, 23, 59, 59)
	after := before.Add(2 * time.Second)

	s1, e1 := c.LocalDayRange(before)
	s2, e2 := c.LocalDayRange(after)
	assert.Equal(t, e1.Add(time.Millisecond), s2)
	assert.True(t, e1.Before(s2))
	assert.True(t, e2.After(s2))

	// 23:59:59 is inside the current day, not the next.
	assert.False(t, before.Before(s1) || before.After(e1))
	assert.True(t, before.Before(s2))
}

func TestLocalDayRangeUTCDateDiffersFromLocal(t *testing.T) {
	c := New(nil)
	// 21:00 UTC on the 10th is 00:30 local on the 11th.
	s, _ := c.LocalDayRange(time.Date(2025, 3, 10, 21, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2025, 3, 10, 20, 30, 0, 0, time.UTC), s)
}

func TestDiffMinutes(t *testing.T) {
	t0 := time.Date(2025, 1, 1, 5, 30, 0, 0, time.UTC)
	assert.Equal(t, 45, DiffMinutes(t0, t0.Add(45*time.Minute)))
	assert.Equal(t, 2, DiffMinutes(t0, t0.Add(90*time.Second)))
	assert.Equal(t, 1, DiffMinutes(t0, t0.Add(89*time.Second)))
	assert.Equal(t, 0, DiffMinutes(t0, t0.Add(29*time.Second)))
	// Same instants in different zones give the same diff.
	assert.Equal(t, 45, DiffMinutes(t0.In(Tehran), t0.Add(45*time.Minute).In(time.UTC)))
}

func TestLocalHourAndFormat(t *testing.T) {
	c := New(nil)
	instant := time.Date(2025, 1, 1, 5, 30, 0, 0, time.UTC)
	assert.Equal(t, 9, c.LocalHour(instant))
	assert.Equal(t, "09:00", c.FormatLocalTime(instant))
}

func TestNowUTCUsesInjectedClock(t *testing.T) {
	fixed := tehran(2025, 6, 1, 10, 0, 0)
	c := New(nil).WithNow(func() time.Time { return fixed })
	assert.Equal(t, fixed.UTC(), c.NowUTC())
	s, _ := c.Today()
	assert.Equal(t, time.Date(2025, 5, 31, 20, 30, 0, 0, time.UTC), s)
}

func TestLoad(t *testing.T) {
	loc, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Tehran, loc)

	loc, err = Load("Europe/Berlin")
	require.NoError(t, err)
	assert.Equal(t, "Europe/Berlin", loc.String())

	_, err = Load("Mars/Olympus")
	assert.Error(t, err)
}
