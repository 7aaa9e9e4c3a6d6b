// Package localtime converts between UTC instants and the bot's operating timezone.
//
// Durations are always computed on instants. Local wall-clock fields are
// used only for display and for day boundaries.
package localtime

import (
	"fmt"
	"math"
	"time"
	_ "time/tzdata"
)

// Tehran is the default zone: UTC+03:30 without DST.
var Tehran = time.FixedZone("Asia/Tehran", 3*3600+30*60)

// Clock is the time authority. The zero value is not usable; use New.
type Clock struct {
	loc *time.Location
	now func() time.Time
}

// New returns a clock in loc; a nil loc means Tehran.
func New(loc *time.Location) *Clock {
	if loc == nil {
		loc = Tehran
	}
	return &Clock{loc: loc, now: time.Now}
}

// Load resolves an IANA zone name. Empty or "Asia/Tehran" gives the fixed Tehran offset.
func Load(name string) (*time.Location, error) {
	if name == "" || name == "Asia/Tehran" {
		return Tehran, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("localtime: %w", err)
	}
	return loc, nil
}

// WithNow returns a copy of c reading the time from now.
func (c *Clock) WithNow(now func() time.Time) *Clock {
	cp := *c
	cp.now = now
	return &cp
}

// Location returns the operating timezone.
func (c *Clock) Location() *time.Location { return c.loc }

// NowUTC returns the current instant in UTC.
func (c *Clock) NowUTC() time.Time { return c.now().UTC() }

// LocalHour returns the hour of day of t in the operating timezone.
func (c *Clock) LocalHour(t time.Time) int { return t.In(c.loc).Hour() }

// FormatLocalTime renders t as "HH:MM" local time.
func (c *Clock) FormatLocalTime(t time.Time) string { return t.In(c.loc).Format("15:04") }

// DiffMinutes returns b-a rounded to whole minutes.
func DiffMinutes(a, b time.Time) int {
	return int(math.Round(b.Sub(a).Minutes()))
}

// LocalDayRange returns the UTC instants of 00:00:00.000 and 23:59:59.999 local
// time on the local date that contains t.
func (c *Clock) LocalDayRange(t time.Time) (time.Time, time.Time) {
	y, m, d := t.In(c.loc).Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, c.loc)
	end := time.Date(y, m, d, 23, 59, 59, int(999*time.Millisecond), c.loc)
	return start.UTC(), end.UTC()
}

// Today is LocalDayRange(NowUTC()).
func (c *Clock) Today() (time.Time, time.Time) {
	return c.LocalDayRange(c.NowUTC())
}
