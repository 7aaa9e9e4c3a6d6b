package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/taskly/internal/domain"
	"github.com/m3rciful/taskly/internal/i18n"
	"github.com/m3rciful/taskly/internal/ledger"
	"github.com/m3rciful/taskly/internal/localtime"
	"github.com/m3rciful/taskly/internal/storage/memory"
)

type sent struct {
	chatID int64
	text   string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sent
	fail map[int64]bool
}

func (n *fakeNotifier) Notify(_ context.Context, chatID int64, text string, _ ...interface{}) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail[chatID] {
		return errors.New("unreachable")
	}
	n.sent = append(n.sent, sent{chatID: chatID, text: text})
	return nil
}

func (n *fakeNotifier) NotifySeq(ctx context.Context, chatID int64, texts ...string) error {
	for _, text := range texts {
		if err := n.Notify(ctx, chatID, text); err != nil {
			return err
		}
	}
	return nil
}

func (n *fakeNotifier) Send(ctx context.Context, chatID int64, text string, opts ...interface{}) (*tele.Message, error) {
	if err := n.Notify(ctx, chatID, text, opts...); err != nil {
		return nil, err
	}
	return &tele.Message{Text: text}, nil
}

func (n *fakeNotifier) to(chatID int64) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, s := range n.sent {
		if s.chatID == chatID {
			out = append(out, s.text)
		}
	}
	return out
}

type fakeRefresher struct {
	mu       sync.Mutex
	closed   []domain.ClosedSession
	notifier *fakeNotifier
	// seen holds the messages the chat had received when its refresh ran.
	seen map[int64][]string
}

func (r *fakeRefresher) RefreshAfterForcedClose(_ context.Context, c domain.ClosedSession) error {
	seen := r.notifier.to(c.TelegramID)
	r.mu.Lock()
	r.closed = append(r.closed, c)
	r.seen[c.TelegramID] = seen
	r.mu.Unlock()
	return nil
}

type env struct {
	ctx       context.Context
	now       atomic.Pointer[time.Time]
	ledger    *ledger.Ledger
	notifier  *fakeNotifier
	refresher *fakeRefresher
	sched     *Scheduler
}

func (e *env) set(t time.Time) { e.now.Store(&t) }

func newEnv(t *testing.T, blocks ...TimeBlock) *env {
	t.Helper()
	n := &fakeNotifier{fail: map[int64]bool{}}
	e := &env{ctx: context.Background(), notifier: n, refresher: &fakeRefresher{notifier: n, seen: map[int64][]string{}}}
	e.set(tehran(2025, time.March, 5, 17, 0))
	clock := localtime.New(localtime.Tehran).WithNow(func() time.Time { return *e.now.Load() })
	e.ledger = ledger.New(memory.New(), clock)
	sched, err := New(Config{}.WithDefaults(), blocks, Deps{
		Ledger:     e.ledger,
		Translator: i18n.NewTranslator(i18n.MustLoad(), e.ledger),
		Notifier:   e.notifier,
		Refresher:  e.refresher,
	})
	require.NoError(t, err)
	e.sched = sched
	return e
}

func (e *env) user(t *testing.T, tgID int64, s domain.Settings) domain.User {
	t.Helper()
	u, err := e.ledger.EnsureUser(e.ctx, tgID, "", "")
	require.NoError(t, err)
	_, err = e.ledger.UpdateUserSettings(e.ctx, u.ID, domain.SettingsPatch{
		Reminder:    &s.Reminder,
		FocusAlerts: &s.FocusAlerts,
		Language:    &s.Language,
	})
	require.NoError(t, err)
	return u
}

func TestJobsListedSoonestFirst(t *testing.T) {
	e := newEnv(t, TimeBlock{Type: BlockFocus, StartTime: "09:00:00"})
	jobs := e.sched.Jobs()
	require.Len(t, jobs, 4)
	names := make([]string, len(jobs))
	for i, j := range jobs {
		names[i] = j.Name
	}
	assert.Equal(t, []string{JobForceClose, JobMorningReminder, "time_block.focus.090000", JobDailyReport}, names)
	assert.True(t, jobs[0].Next.Equal(tehran(2025, time.March, 5, 22, 0)))
}

func TestForceCloseNotifiesAndRefreshes(t *testing.T) {
	e := newEnv(t)
	u := e.user(t, 100, domain.Settings{Language: domain.LanguageSecondary})
	e.set(tehran(2025, time.March, 5, 21, 58))
	task, _, err := e.ledger.GetOrCreateTask(e.ctx, u.ID, "Design")
	require.NoError(t, err)
	_, _, err = e.ledger.StartTask(e.ctx, u.ID, task)
	require.NoError(t, err)

	e.set(tehran(2025, time.March, 5, 22, 0))
	require.NoError(t, e.sched.RunNow(e.ctx, JobForceClose))
	assert.Equal(t, []string{"⏹️ Task \"Design\" was automatically ended."}, e.notifier.to(100))
	require.Len(t, e.refresher.closed, 1)
	assert.Equal(t, 2, e.refresher.closed[0].Duration)
	assert.Equal(t, task.ID, e.refresher.closed[0].TaskID)
	assert.Equal(t, e.notifier.to(100), e.refresher.seen[100], "refresh ran before the notice was delivered")

	require.NoError(t, e.sched.RunNow(e.ctx, JobForceClose))
	assert.Len(t, e.notifier.to(100), 1)
}

func TestDailyReportContinuesPastFailures(t *testing.T) {
	e := newEnv(t)
	e.user(t, 1, domain.Settings{Reminder: true, Language: domain.LanguageSecondary})
	e.user(t, 2, domain.Settings{Reminder: true, Language: domain.LanguageSecondary})
	e.user(t, 3, domain.Settings{Reminder: false, Language: domain.LanguageSecondary})
	e.notifier.fail[1] = true

	require.NoError(t, e.sched.RunNow(e.ctx, JobDailyReport))
	got := e.notifier.to(2)
	require.Len(t, got, 2)
	assert.Equal(t, "No tasks registered today.", got[0])
	assert.Contains(t, got[1], "Friendly reminder")
	assert.Empty(t, e.notifier.to(3))
}

func TestMorningReminderAndTimeBlocks(t *testing.T) {
	e := newEnv(t, TimeBlock{Type: BlockHalf, StartTime: "13:00"})
	e.user(t, 1, domain.Settings{Reminder: true, Language: domain.LanguagePrimary})
	e.user(t, 2, domain.Settings{FocusAlerts: true, Language: domain.LanguageSecondary})

	require.NoError(t, e.sched.RunNow(e.ctx, JobMorningReminder))
	assert.Equal(t, []string{"☀️ صبح بخیر! یادت نره تسک‌های امروز رو ثبت کنی 📌"}, e.notifier.to(1))

	require.NoError(t, e.sched.RunNow(e.ctx, "time_block.half.130000"))
	assert.Equal(t, []string{"Lunch time! 🍽️"}, e.notifier.to(2))
	assert.Len(t, e.notifier.to(1), 1)

	assert.Error(t, e.sched.RunNow(e.ctx, "nope"))
}

func TestTimeBlocksDifferingInSecondsGetDistinctJobs(t *testing.T) {
	e := newEnv(t,
		TimeBlock{Type: BlockFocus, StartTime: "09:00:00"},
		TimeBlock{Type: BlockFocus, StartTime: "09:00:30"},
	)
	e.user(t, 1, domain.Settings{FocusAlerts: true, Language: domain.LanguageSecondary})

	var names []string
	for _, j := range e.sched.Jobs() {
		if strings.HasPrefix(j.Name, "time_block.") {
			names = append(names, j.Name)
		}
	}
	assert.ElementsMatch(t, []string{"time_block.focus.090000", "time_block.focus.090030"}, names)

	require.NoError(t, e.sched.RunNow(e.ctx, "time_block.focus.090030"))
	assert.Len(t, e.notifier.to(1), 1)
}

func TestStartStopRunsLoops(t *testing.T) {
	defer goleak.VerifyNone(t)

	sched, err := ParseSchedule(time.Now().Truncate(time.Second), "FREQ=SECONDLY")
	require.NoError(t, err)
	var runs atomic.Int32
	s := NewScheduler(nil,
		Job{Name: "tick", Schedule: sched, Run: func(context.Context) error {
			runs.Add(1)
			return errors.New("keeps going")
		}},
		Job{Name: "panics", Schedule: sched, Run: func(context.Context) error {
			panic("boom")
		}},
	)
	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), errAlreadyRunning)

	require.Eventually(t, func() bool { return runs.Load() >= 2 }, 5*time.Second, 20*time.Millisecond)
	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop())
}
