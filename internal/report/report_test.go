package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/m3rciful/taskly/internal/domain"
	"github.com/m3rciful/taskly/internal/i18n"
	"github.com/m3rciful/taskly/internal/localtime"
)

func at(h, m int) time.Time {
	return time.Date(2025, time.March, 3, h, m, 0, 0, localtime.Tehran).UTC()
}

func closed(start, end time.Time) domain.Session {
	d := localtime.DiffMinutes(start, end)
	return domain.Session{StartTime: start, EndTime: &end, Duration: &d}
}

func TestRenderClosedAndOpenSessions(t *testing.T) {
	p := i18n.NewTranslator(i18n.MustLoad(), nil).In(domain.LanguageSecondary)
	clock := localtime.New(localtime.Tehran)
	tasks := []domain.TaskReport{
		{Task: domain.Task{Name: "Design"}, Sessions: []domain.Session{closed(at(9, 0), at(9, 45))}},
		{Task: domain.Task{Name: "Review"}, Sessions: []domain.Session{{StartTime: at(10, 0)}}},
	}
	got := Render(p, clock, tasks, Options{Now: at(11, 30)})

	want := "📊 Today's report:\n" +
		"\n📌 Design\n" +
		"⏱ 09:00 to 09:45\n" +
		"🧮 Total: 45 minutes\n" +
		"\n📌 Review\n" +
		"⏱ 10:00 to Now\n" +
		"🧮 Total: 1 hours 30 minutes\n" +
		"\n🧮 Total today: 2 hours 15 minutes"
	assert.Equal(t, want, got)
}

func TestRenderEmptyAndAutomatic(t *testing.T) {
	p := i18n.NewTranslator(i18n.MustLoad(), nil).In(domain.LanguageSecondary)
	clock := localtime.New(nil)
	assert.Equal(t, "No tasks registered today.", Render(p, clock, nil, Options{}))

	got := Render(p, clock, []domain.TaskReport{{Task: domain.Task{Name: "A"}}}, Options{Automatic: true, Now: at(12, 0)})
	assert.Contains(t, got, "(Automatic)")
	assert.Contains(t, got, "🧮 Total today: 0 minutes")
}

func TestSessionMinutes(t *testing.T) {
	open := domain.Session{StartTime: at(9, 0)}
	assert.Equal(t, 30, SessionMinutes(open, at(9, 30)))
	assert.Equal(t, 0, SessionMinutes(open, at(8, 0)))
	assert.Equal(t, 45, SessionMinutes(closed(at(9, 0), at(9, 45)), at(23, 0)))
}
