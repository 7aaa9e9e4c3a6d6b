package conversation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/taskly/core/logger"
	"github.com/m3rciful/taskly/core/telegram/callbacks"
	"github.com/m3rciful/taskly/internal/domain"
	"github.com/m3rciful/taskly/internal/i18n"
	"github.com/m3rciful/taskly/internal/ledger"
	"github.com/m3rciful/taskly/internal/localtime"
	"github.com/m3rciful/taskly/internal/scheduler"
	"github.com/m3rciful/taskly/internal/storage/memory"

	tele "gopkg.in/telebot.v4"
)

type outMsg struct {
	id     int
	text   string
	opts   []interface{}
	markup *tele.ReplyMarkup
}

func (o outMsg) buttons() []string {
	if o.markup == nil {
		return nil
	}
	var out []string
	for _, row := range o.markup.ReplyKeyboard {
		for _, b := range row {
			out = append(out, b.Text)
		}
	}
	for _, row := range o.markup.InlineKeyboard {
		for _, b := range row {
			out = append(out, b.Text)
		}
	}
	return out
}

type fakeOutbox struct {
	mu    sync.Mutex
	next  int
	sent  []outMsg
	edits []int
	// editErr fails every EditControls call when set.
	editErr error
}

func (f *fakeOutbox) Send(_ context.Context, _ int64, text string, opts ...interface{}) (*tele.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	msg := outMsg{id: 100 + f.next, text: text, opts: opts}
	for _, o := range opts {
		if mk, ok := o.(*tele.ReplyMarkup); ok {
			msg.markup = mk
		}
	}
	f.sent = append(f.sent, msg)
	return &tele.Message{ID: msg.id}, nil
}

func (f *fakeOutbox) EditControls(_ context.Context, _ int64, messageID int, _ *tele.ReplyMarkup) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, messageID)
	return f.editErr
}

func (f *fakeOutbox) last() outMsg {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return outMsg{}
	}
	return f.sent[len(f.sent)-1]
}

func (f *fakeOutbox) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeOutbox) since(n int) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, m := range f.sent[n:] {
		out = append(out, m.text)
	}
	return out
}

const chat = int64(42)

type harness struct {
	t      *testing.T
	ctx    context.Context
	now    atomic.Pointer[time.Time]
	ledger *ledger.Ledger
	out    *fakeOutbox
	m      *Machine
	p      i18n.Printer
	user   domain.User
}

func at(h, m int) time.Time {
	return time.Date(2025, time.March, 3, h, m, 0, 0, localtime.Tehran)
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{t: t, ctx: context.Background(), out: &fakeOutbox{}}
	h.setNow(at(9, 0))
	clock := localtime.New(localtime.Tehran).WithNow(func() time.Time { return *h.now.Load() })
	h.ledger = ledger.New(memory.New(), clock)
	tr := i18n.NewTranslator(i18n.MustLoad(), h.ledger)
	h.m = New(Options{Ledger: h.ledger, Translator: tr, Outbox: h.out})
	h.p = tr.In(domain.LanguageSecondary)

	require.NoError(t, h.m.HandleStart(h.ctx, h.event("/start")))
	u, err := h.ledger.UserByTelegramID(h.ctx, chat)
	require.NoError(t, err)
	h.user = u
	en := domain.LanguageSecondary
	_, err = h.ledger.UpdateUserSettings(h.ctx, u.ID, domain.SettingsPatch{Language: &en})
	require.NoError(t, err)
	return h
}

func (h *harness) setNow(t time.Time) { h.now.Store(&t) }

func (h *harness) event(text string) TextMessage {
	return TextMessage{ChatID: chat, From: Sender{TelegramID: chat, FirstName: "Neo"}, Text: text}
}

func (h *harness) say(text string) outMsg {
	h.t.Helper()
	require.NoError(h.t, h.m.HandleText(h.ctx, h.event(text)))
	return h.out.last()
}

func (h *harness) press(key string) outMsg {
	h.t.Helper()
	return h.say(h.p.T(key))
}

func (h *harness) state() Scratch {
	h.t.Helper()
	sc, ok := h.m.Snapshot(chat)
	require.True(h.t, ok)
	return sc
}

func (h *harness) addTask(name string) {
	h.t.Helper()
	h.press("buttons.ADD_TASK")
	h.say(name)
	require.Equal(h.t, TaskActions, h.state().State)
}

func (h *harness) active() *domain.TaskSession {
	h.t.Helper()
	s, err := h.ledger.GetActiveSession(h.ctx, h.user.ID)
	require.NoError(h.t, err)
	return s
}

func TestStartSendsWelcome(t *testing.T) {
	h := newHarness(t)
	first := h.out.sent[0]
	assert.Contains(t, first.text, "سلام Neo")
	assert.Contains(t, first.opts, tele.ModeMarkdown)
	assert.Equal(t, MainMenu, h.state().State)

	require.NoError(t, h.m.HandleStart(h.ctx, TextMessage{ChatID: chat, From: Sender{TelegramID: chat, FirstName: "neo_x"}}))
	assert.Contains(t, h.out.last().text, `Hello neo\_x`)

	require.NoError(t, h.m.HandleStart(h.ctx, TextMessage{ChatID: chat, From: Sender{TelegramID: chat}}))
	assert.Contains(t, h.out.last().text, "Hello My Friend")
}

func TestUnknownSenderGetsNoReply(t *testing.T) {
	h := newHarness(t)
	before := h.out.count()
	require.NoError(t, h.m.HandleText(h.ctx, TextMessage{ChatID: 5, Text: "hi"}))
	require.NoError(t, h.m.HandleCallback(h.ctx, CallbackEvent{ChatID: 5, Data: callbacks.Encode("cancel", "")}))
	assert.Equal(t, before, h.out.count())
}

func TestMainMenuRejectsFreeText(t *testing.T) {
	h := newHarness(t)
	msg := h.say("hello?")
	assert.Equal(t, h.p.T("menu.useButtonsOnly"), msg.text)
	assert.Contains(t, msg.buttons(), h.p.T("buttons.ADD_TASK"))
}

func TestAddTaskFlow(t *testing.T) {
	h := newHarness(t)
	hint := h.press("buttons.ADD_TASK")
	assert.Equal(t, h.p.T("cancel.hint"), hint.text)
	assert.Equal(t, []string{h.p.T("buttons.CANCEL")}, hint.buttons())
	sc := h.state()
	assert.Equal(t, AddingTaskName, sc.State)
	assert.Equal(t, hint.id, sc.PendingCancel)

	msg := h.say("Design")
	assert.Equal(t, "✅ Task \"Design\" created!\nDo you want to start it or go back?", msg.text)
	assert.Contains(t, msg.buttons(), h.p.T("buttons.START_SELECTED_TASK"))
	sc = h.state()
	assert.Equal(t, TaskActions, sc.State)
	require.NotNil(t, sc.SelectedTask)
	assert.Equal(t, "Design", sc.SelectedTask.Name)
	assert.Zero(t, sc.PendingCancel)
	assert.Equal(t, []int{hint.id}, h.out.edits)
}

func TestDuplicateNameStaysInInput(t *testing.T) {
	h := newHarness(t)
	h.addTask("Design")
	h.press("buttons.BACK")
	h.press("buttons.BACK")
	h.press("buttons.ADD_TASK")
	msg := h.say("Design")
	assert.Equal(t, h.p.T("task.duplicateToday"), msg.text)
	assert.Equal(t, AddingTaskName, h.state().State)
}

func TestNavLabelIsTakenLiterallyAsName(t *testing.T) {
	h := newHarness(t)
	h.press("buttons.ADD_TASK")
	h.say(h.p.T("buttons.BACK"))
	sc := h.state()
	assert.Equal(t, TaskActions, sc.State)
	require.NotNil(t, sc.SelectedTask)
	assert.Equal(t, h.p.T("buttons.BACK"), sc.SelectedTask.Name)
}

func TestStartEndShowsReport(t *testing.T) {
	h := newHarness(t)
	h.addTask("Design")

	msg := h.press("buttons.START_SELECTED_TASK")
	assert.Equal(t, h.p.T("task.started"), msg.text)
	assert.Contains(t, msg.buttons(), h.p.T("buttons.END_SELECTED_TASK"))
	require.NotNil(t, h.active())

	h.setNow(at(9, 45))
	n := h.out.count()
	h.press("buttons.END_SELECTED_TASK")
	texts := h.out.since(n)
	require.Len(t, texts, 2)
	assert.Equal(t, "⏹️ Task \"Design\" ended.", texts[0])
	assert.Contains(t, texts[1], "⏱ 09:00 to 09:45")
	assert.Contains(t, texts[1], "🧮 Total: 45 minutes")
	assert.Nil(t, h.active())
	assert.Equal(t, TaskActions, h.state().State)

	msg = h.press("buttons.END_SELECTED_TASK")
	assert.Equal(t, h.p.T("task.notRunning"), msg.text)
}

func TestStartRefusedOutsideWorkingHours(t *testing.T) {
	h := newHarness(t)
	h.addTask("Late")
	h.setNow(at(23, 0))
	msg := h.press("buttons.START_SELECTED_TASK")
	assert.Equal(t, h.p.T("notifications.outsideHours"), msg.text)
	assert.Nil(t, h.active())
	assert.Equal(t, TaskActions, h.state().State)
}

func TestSwitchActiveTaskAfterConfirm(t *testing.T) {
	h := newHarness(t)
	h.addTask("A")
	h.press("buttons.START_SELECTED_TASK")
	h.press("buttons.BACK")
	h.press("buttons.BACK")
	h.addTask("B")

	h.setNow(at(9, 30))
	msg := h.press("buttons.START_SELECTED_TASK")
	assert.Contains(t, msg.text, "You already have an active task: A")
	assert.Equal(t, ConfirmStartNewTaskAfterEndingActive, h.state().State)

	msg = h.press("buttons.START_NEW_TASK_AFTER_ENDING_ACTIVE")
	assert.Equal(t, "⏹️ Previous task ended and \"B\" started.", msg.text)
	assert.Equal(t, TaskActions, h.state().State)
	active := h.active()
	require.NotNil(t, active)
	assert.Equal(t, "B", active.TaskName)

	report, err := h.ledger.TodayReport(h.ctx, h.user.ID)
	require.NoError(t, err)
	require.Len(t, report, 2)
	assert.Equal(t, 30, *report[0].Sessions[0].Duration)
}

func TestConfirmCancelClearsSelection(t *testing.T) {
	h := newHarness(t)
	h.addTask("A")
	h.press("buttons.START_SELECTED_TASK")
	h.press("buttons.BACK")
	h.press("buttons.BACK")
	h.addTask("B")
	h.press("buttons.START_SELECTED_TASK")

	msg := h.press("buttons.CANCEL")
	assert.Equal(t, h.p.T("menu.main"), msg.text)
	sc := h.state()
	assert.Equal(t, MainMenu, sc.State)
	assert.Nil(t, sc.SelectedTask)
	assert.Equal(t, "A", h.active().TaskName)
}

func TestConfirmIsHourGated(t *testing.T) {
	h := newHarness(t)
	h.addTask("A")
	h.press("buttons.START_SELECTED_TASK")
	h.press("buttons.BACK")
	h.press("buttons.BACK")
	h.addTask("B")
	h.setNow(at(21, 59))
	h.press("buttons.START_SELECTED_TASK")

	h.setNow(at(22, 1))
	msg := h.press("buttons.START_NEW_TASK_AFTER_ENDING_ACTIVE")
	assert.Equal(t, h.p.T("notifications.outsideHours"), msg.text)
	assert.Equal(t, "A", h.active().TaskName)
	assert.Equal(t, TaskActions, h.state().State)
}

func TestDeleteActiveTaskRefused(t *testing.T) {
	h := newHarness(t)
	h.addTask("Design")
	h.press("buttons.START_SELECTED_TASK")

	msg := h.press("buttons.DELETE_SELECTED_TASK")
	assert.Equal(t, "⛔ Task \"Design\" is active and cannot be deleted.", msg.text)
	require.NotNil(t, h.active())
	tasks, err := h.ledger.TodayTasks(h.ctx, h.user.ID)
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}

func TestDeleteNavigatesByRemainingCount(t *testing.T) {
	h := newHarness(t)
	h.addTask("A")
	h.press("buttons.BACK")
	h.press("buttons.BACK")
	h.addTask("B")

	msg := h.press("buttons.DELETE_SELECTED_TASK")
	assert.Equal(t, h.p.T("menu.selectTask"), msg.text)
	assert.Equal(t, []string{"A", h.p.T("buttons.BACK")}, msg.buttons())
	assert.Equal(t, SelectingTask, h.state().State)

	h.say("A")
	msg = h.press("buttons.DELETE_SELECTED_TASK")
	assert.Equal(t, h.p.T("task.deleted"), msg.text)
	assert.Equal(t, MainMenu, h.state().State)
}

func TestSelectTaskFromList(t *testing.T) {
	h := newHarness(t)
	msg := h.press("buttons.TASK_LIST")
	assert.Equal(t, h.p.T("menu.noTaskToday"), msg.text)
	assert.Equal(t, MainMenu, h.state().State)

	h.addTask("A")
	h.press("buttons.START_SELECTED_TASK")
	msg = h.press("buttons.BACK")
	assert.Equal(t, SelectingTask, h.state().State)

	msg = h.say("Z")
	assert.Equal(t, h.p.T("task.notFound"), msg.text)

	msg = h.say("A")
	assert.Equal(t, "Selected task:\n📌 A\n"+h.p.T("task.inProgress"), msg.text)
	assert.Contains(t, msg.buttons(), h.p.T("buttons.END_SELECTED_TASK"))
}

func TestEditTaskName(t *testing.T) {
	h := newHarness(t)
	h.addTask("A")
	h.press("buttons.BACK")
	h.press("buttons.BACK")
	h.addTask("B")

	h.press("buttons.EDIT_TASK")
	assert.Equal(t, EditingTaskName, h.state().State)
	msg := h.say("A")
	assert.Equal(t, h.p.T("task.nameTaken"), msg.text)
	assert.Equal(t, EditingTaskName, h.state().State)

	msg = h.say("C")
	assert.Equal(t, "✅ Changes saved\nNew name: C", msg.text)
	sc := h.state()
	assert.Equal(t, TaskActions, sc.State)
	assert.Equal(t, "C", sc.SelectedTask.Name)
	assert.Zero(t, sc.PendingCancel)
}

func TestCancelButtonReturnsToMainMenu(t *testing.T) {
	h := newHarness(t)
	hint := h.press("buttons.ADD_TASK")
	require.NoError(t, h.m.HandleCallback(h.ctx, CallbackEvent{
		ChatID:    chat,
		From:      Sender{TelegramID: chat},
		Data:      callbacks.Encode("cancel", ""),
		MessageID: hint.id,
	}))
	assert.Equal(t, h.p.T("cancel.done"), h.out.last().text)
	assert.Equal(t, MainMenu, h.state().State)
	assert.Equal(t, []int{hint.id}, h.out.edits)
}

func TestStaleCancelButtonEditFailureIsLogged(t *testing.T) {
	var buf bytes.Buffer
	prev := logger.L
	logger.L = slog.New(slog.NewTextHandler(&buf, nil))
	t.Cleanup(func() { logger.L = prev })

	h := newHarness(t)
	hint := h.press("buttons.ADD_TASK")
	h.out.editErr = errors.New("message to edit not found")
	require.NoError(t, h.m.HandleCallback(h.ctx, CallbackEvent{
		ChatID:    chat,
		From:      Sender{TelegramID: chat},
		Data:      callbacks.Encode("cancel", ""),
		MessageID: 7,
	}))

	assert.Equal(t, MainMenu, h.state().State)
	assert.Equal(t, h.p.T("cancel.done"), h.out.last().text)
	assert.Equal(t, []int{7, hint.id}, h.out.edits)
	assert.Contains(t, buf.String(), "event=cancel.retract.failed message_id=7")
	assert.Contains(t, buf.String(), fmt.Sprintf("message_id=%d", hint.id))
}

func TestStartCommandRetractsPendingCancel(t *testing.T) {
	h := newHarness(t)
	hint := h.press("buttons.ADD_TASK")
	h.say("/start")
	assert.Equal(t, MainMenu, h.state().State)
	assert.Equal(t, []int{hint.id}, h.out.edits)
}

func TestSettingsToggleAndLanguage(t *testing.T) {
	h := newHarness(t)
	msg := h.press("buttons.SETTINGS")
	assert.Contains(t, msg.text, "🔔 Reminder: ✅ Enabled")
	assert.Contains(t, msg.text, "⏰ Focus Alerts: ❌ Disabled")
	assert.Equal(t, SettingsMenu, h.state().State)

	msg = h.press("buttons.REMINDER")
	assert.Equal(t, "🔔 Reminder: ❌ Disabled", msg.text)
	assert.Equal(t, MainMenu, h.state().State)
	s, err := h.ledger.GetUserSettings(h.ctx, h.user.ID)
	require.NoError(t, err)
	assert.False(t, s.Reminder)

	h.press("buttons.SETTINGS")
	h.press("buttons.LANGUAGE")
	assert.Equal(t, SelectingLanguage, h.state().State)
	n := h.out.count()
	h.say("🇮🇷 فارسی")
	texts := h.out.since(n)
	require.Len(t, texts, 2)
	assert.Equal(t, "🌐 زبان شما به 🇮🇷 فارسی تغییر کرد!", texts[0])
	assert.Contains(t, texts[1], "⚙️ تنظیمات شما:")
	assert.Equal(t, SettingsMenu, h.state().State)
	s, err = h.ledger.GetUserSettings(h.ctx, h.user.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LanguagePrimary, s.Language)
}

func TestRefreshAfterForcedClose(t *testing.T) {
	h := newHarness(t)
	h.addTask("Design")
	h.setNow(at(21, 58))
	h.press("buttons.START_SELECTED_TASK")

	h.setNow(at(22, 0))
	closed, err := h.ledger.ForceCloseAllActiveSessions(h.ctx)
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.Equal(t, 2, closed[0].Duration)

	require.NoError(t, h.m.RefreshAfterForcedClose(h.ctx, closed[0]))
	msg := h.out.last()
	assert.Equal(t, "Selected task:\n📌 Design", msg.text)
	assert.Contains(t, msg.buttons(), h.p.T("buttons.START_SELECTED_TASK"))

	n := h.out.count()
	require.NoError(t, h.m.RefreshAfterForcedClose(h.ctx, domain.ClosedSession{TaskID: 999, TelegramID: chat}))
	require.NoError(t, h.m.RefreshAfterForcedClose(h.ctx, domain.ClosedSession{TaskID: 1, TelegramID: 777}))
	assert.Equal(t, n, h.out.count())
}

type fakeJobs []scheduler.JobInfo

func (f fakeJobs) Jobs() []scheduler.JobInfo { return f }

func TestHandleJobsListsNextRuns(t *testing.T) {
	h := newHarness(t)
	h.m.SetJobs(fakeJobs{{Name: scheduler.JobForceClose, Next: at(22, 0)}})
	require.NoError(t, h.m.HandleJobs(h.ctx, h.event("/jobs")))
	assert.Equal(t, "🗓 Scheduled jobs:\n• force_close: Mon 2025-03-03 22:00", h.out.last().text)
}

func TestWorkingHours(t *testing.T) {
	w := DefaultWorkingHours()
	assert.True(t, w.Allows(8))
	assert.True(t, w.Allows(21))
	assert.False(t, w.Allows(22))
	assert.False(t, w.Allows(7))
	assert.NoError(t, w.Validate())
	assert.Error(t, WorkingHours{Start: 10, End: 9}.Validate())
	assert.Error(t, WorkingHours{Start: 0, End: 25}.Validate())
}

func TestIsCommand(t *testing.T) {
	assert.True(t, isCommand("/start", "start"))
	assert.True(t, isCommand("/start@taskly_bot payload", "start"))
	assert.False(t, isCommand("start", "start"))
	assert.False(t, isCommand("/started", "start"))
}
