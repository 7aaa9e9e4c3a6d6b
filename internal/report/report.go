// Package report renders a day's tasks and sessions as chat text.
package report

import (
	"strings"
	"time"

	"github.com/m3rciful/taskly/core/telegram/format"
	"github.com/m3rciful/taskly/internal/domain"
	"github.com/m3rciful/taskly/internal/i18n"
	"github.com/m3rciful/taskly/internal/localtime"
)

// Options selects the report variant.
type Options struct {
	// Automatic marks reports pushed by the scheduler.
	Automatic bool
	// Now is the instant open sessions are measured up to.
	Now time.Time
}

// SessionMinutes is the closed duration, or the minutes elapsed so far for an open session.
func SessionMinutes(s domain.Session, now time.Time) int {
	if s.Duration != nil {
		return *s.Duration
	}
	if m := localtime.DiffMinutes(s.StartTime, format.Deref(s.EndTime, now)); m > 0 {
		return m
	}
	return 0
}

// Render builds the report text. An empty list renders the "no tasks today" line.
func Render(p i18n.Printer, clock *localtime.Clock, tasks []domain.TaskReport, opts Options) string {
	if len(tasks) == 0 {
		return p.T("menu.noTaskToday")
	}
	now := opts.Now
	if now.IsZero() {
		now = clock.NowUTC()
	}

	var b strings.Builder
	if opts.Automatic {
		b.WriteString(p.T("report.autoTitle"))
	} else {
		b.WriteString(p.T("report.title"))
	}
	day := 0
	for _, t := range tasks {
		b.WriteString("\n📌 ")
		b.WriteString(t.Name)
		b.WriteByte('\n')
		taskMinutes := 0
		for _, s := range t.Sessions {
			end := p.T("report.now")
			if s.EndTime != nil {
				end = clock.FormatLocalTime(*s.EndTime)
			}
			b.WriteString(p.T("time.fromTo", i18n.Params{
				"start": clock.FormatLocalTime(s.StartTime),
				"end":   end,
			}))
			b.WriteByte('\n')
			taskMinutes += SessionMinutes(s, now)
		}
		day += taskMinutes
		b.WriteString(p.T("report.totalLabel", i18n.Params{"time": p.Minutes(taskMinutes)}))
		b.WriteByte('\n')
	}
	b.WriteString("\n")
	b.WriteString(p.T("report.total", i18n.Params{"time": p.Minutes(day)}))
	return b.String()
}
