package conversation

import (
	"errors"
	"strings"

	"github.com/m3rciful/taskly/core/telegram/keyboard"
	"github.com/m3rciful/taskly/internal/domain"
	"github.com/m3rciful/taskly/internal/i18n"
	"github.com/m3rciful/taskly/internal/ledger"
	"github.com/m3rciful/taskly/internal/report"

	tele "gopkg.in/telebot.v4"
)

func (m *Machine) onMainMenu(t *turn, sc *Scratch) error {
	p := t.p
	switch t.text {
	case p.T("buttons.ADD_TASK"):
		m.promptName(t, sc, AddingTaskName, "task.enterName")
		return nil
	case p.T("buttons.TASK_LIST"):
		return m.showTaskList(t, sc)
	case p.T("buttons.TODAY_REPORT"):
		return m.sendReport(t, mainMenu(p))
	case p.T("buttons.SETTINGS"):
		return m.showSettings(t, sc)
	}
	m.reply(t, p.T("menu.useButtonsOnly"), mainMenu(p))
	return nil
}

func (m *Machine) onNav(t *turn, sc *Scratch) error {
	m.retractCancel(t, sc)
	if sc.State == TaskActions {
		sc.SelectedTask = nil
		return m.showTaskList(t, sc)
	}
	m.showMain(t, sc, "menu.main")
	return nil
}

func (m *Machine) onCancelButton(t *turn, sc *Scratch, messageID int) {
	if messageID != 0 && messageID != sc.PendingCancel {
		m.clearControls(t, messageID)
	}
	m.retractCancel(t, sc)
	m.showMain(t, sc, "cancel.done")
}

func (m *Machine) showMain(t *turn, sc *Scratch, key string) {
	sc.reset()
	m.reply(t, t.p.T(key), mainMenu(t.p))
}

// promptName asks for a task name and offers the inline cancel button.
func (m *Machine) promptName(t *turn, sc *Scratch, next State, key string) {
	m.retractCancel(t, sc)
	m.reply(t, t.p.T(key), keyboard.RemoveKeyboard())
	if msg := m.reply(t, t.p.T("cancel.hint"), keyboard.SingleCancelMarkup(t.p.T("buttons.CANCEL"))); msg != nil {
		sc.PendingCancel = msg.ID
	}
	sc.State = next
}

func (m *Machine) showTaskList(t *turn, sc *Scratch) error {
	tasks, err := m.ledger.TodayTasks(t.ctx, t.user.ID)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		m.showMain(t, sc, "menu.noTaskToday")
		return nil
	}
	sc.State = SelectingTask
	sc.SelectedTask = nil
	m.reply(t, t.p.T("menu.selectTask"), taskList(t.p, tasks))
	return nil
}

func (m *Machine) onSelectTask(t *turn, sc *Scratch) error {
	tasks, err := m.ledger.TodayTasks(t.ctx, t.user.ID)
	if err != nil {
		return err
	}
	for _, task := range tasks {
		if task.Name == t.text {
			return m.showTask(t, sc, task)
		}
	}
	if len(tasks) == 0 {
		m.showMain(t, sc, "menu.noTaskToday")
		return nil
	}
	m.reply(t, t.p.T("task.notFound"), taskList(t.p, tasks))
	return nil
}

func (m *Machine) running(t *turn, taskID int64) (*domain.TaskSession, bool, error) {
	active, err := m.ledger.GetActiveSession(t.ctx, t.user.ID)
	if err != nil {
		return nil, false, err
	}
	return active, active != nil && active.TaskID == taskID, nil
}

// showTask selects task and renders its actions menu.
func (m *Machine) showTask(t *turn, sc *Scratch, task domain.Task) error {
	_, running, err := m.running(t, task.ID)
	if err != nil {
		return err
	}
	text := t.p.T("task.selected", i18n.Params{"name": task.Name})
	if running {
		text += "\n" + t.p.T("task.inProgress")
	}
	sc.SelectedTask = &task
	sc.State = TaskActions
	m.reply(t, text, taskActions(t.p, running))
	return nil
}

// currentTask reloads the selected task. ok is false when it vanished; the
// user has then been sent back to the list.
func (m *Machine) currentTask(t *turn, sc *Scratch) (domain.Task, bool, error) {
	if sc.SelectedTask == nil {
		return domain.Task{}, false, errNoSelection
	}
	task, err := m.ledger.GetTask(t.ctx, sc.SelectedTask.ID)
	if err == nil && task.UserID != t.user.ID {
		err = ledger.ErrTaskNotFound
	}
	if errors.Is(err, ledger.ErrTaskNotFound) {
		m.reply(t, t.p.T("task.notFound"))
		return domain.Task{}, false, m.showTaskList(t, sc)
	}
	if err != nil {
		return domain.Task{}, false, err
	}
	sc.SelectedTask = &task
	return task, true, nil
}

func (m *Machine) onTaskAction(t *turn, sc *Scratch) error {
	task, ok, err := m.currentTask(t, sc)
	if !ok {
		return err
	}
	p := t.p
	switch t.text {
	case p.T("buttons.START_SELECTED_TASK"):
		return m.startSelected(t, sc, task)
	case p.T("buttons.END_SELECTED_TASK"):
		return m.endSelected(t, task)
	case p.T("buttons.DELETE_SELECTED_TASK"):
		return m.deleteSelected(t, sc, task)
	case p.T("buttons.EDIT_TASK"):
		m.promptName(t, sc, EditingTaskName, "task.enterNewName")
		return nil
	}
	_, running, err := m.running(t, task.ID)
	if err != nil {
		return err
	}
	m.reply(t, p.T("menu.useButtonsOnly"), taskActions(p, running))
	return nil
}

func (m *Machine) withinHours() bool {
	clock := m.ledger.Clock()
	return m.hours.Allows(clock.LocalHour(clock.NowUTC()))
}

func (m *Machine) askToSwitch(t *turn, sc *Scratch, activeName string) {
	sc.State = ConfirmStartNewTaskAfterEndingActive
	m.reply(t, t.p.T("task.activeExists", i18n.Params{"name": activeName}), confirmMenu(t.p))
}

func (m *Machine) startSelected(t *turn, sc *Scratch, task domain.Task) error {
	active, running, err := m.running(t, task.ID)
	if err != nil {
		return err
	}
	if running {
		m.reply(t, t.p.T("task.inProgress"), taskActions(t.p, true))
		return nil
	}
	if active != nil {
		m.askToSwitch(t, sc, active.TaskName)
		return nil
	}
	if !m.withinHours() {
		m.reply(t, t.p.T("notifications.outsideHours"), taskActions(t.p, false))
		return nil
	}
	s, _, err := m.ledger.StartTask(t.ctx, t.user.ID, task)
	if err != nil {
		return err
	}
	if s.TaskID != task.ID {
		m.askToSwitch(t, sc, s.TaskName)
		return nil
	}
	m.reply(t, t.p.T("task.started"), taskActions(t.p, true))
	return nil
}

func (m *Machine) endSelected(t *turn, task domain.Task) error {
	_, running, err := m.running(t, task.ID)
	if err != nil {
		return err
	}
	if !running {
		m.reply(t, t.p.T("task.notRunning"), taskActions(t.p, false))
		return nil
	}
	ended, err := m.ledger.EndTask(t.ctx, t.user.ID)
	if err != nil {
		return err
	}
	if ended == nil {
		m.reply(t, t.p.T("task.notRunning"), taskActions(t.p, false))
		return nil
	}
	m.reply(t, t.p.T("task.ended", i18n.Params{"name": ended.TaskName}))
	return m.sendReport(t, taskActions(t.p, false))
}

func (m *Machine) deleteSelected(t *turn, sc *Scratch, task domain.Task) error {
	blocked := func() {
		m.reply(t, t.p.T("task.deleteBlocked", i18n.Params{"name": task.Name}), taskActions(t.p, true))
	}
	_, running, err := m.running(t, task.ID)
	if err != nil {
		return err
	}
	if running {
		blocked()
		return nil
	}
	remaining, err := m.ledger.DeleteTask(t.ctx, task.ID, t.user.ID)
	switch {
	case errors.Is(err, ledger.ErrTaskActive):
		blocked()
		return nil
	case errors.Is(err, ledger.ErrTaskNotFound):
		m.reply(t, t.p.T("task.notFound"))
		return m.showTaskList(t, sc)
	case err != nil:
		return err
	}
	sc.SelectedTask = nil
	if remaining == 0 {
		m.showMain(t, sc, "task.deleted")
		return nil
	}
	m.reply(t, t.p.T("task.deleted"))
	return m.showTaskList(t, sc)
}

func (m *Machine) onConfirm(t *turn, sc *Scratch) error {
	task, ok, err := m.currentTask(t, sc)
	if !ok {
		return err
	}
	if t.text != t.p.T("buttons.START_NEW_TASK_AFTER_ENDING_ACTIVE") {
		m.reply(t, t.p.T("menu.useButtonsOnly"), confirmMenu(t.p))
		return nil
	}
	if !m.withinHours() {
		sc.State = TaskActions
		m.reply(t, t.p.T("notifications.outsideHours"), taskActions(t.p, false))
		return nil
	}
	if _, err := m.ledger.EndTask(t.ctx, t.user.ID); err != nil {
		return err
	}
	s, _, err := m.ledger.StartTask(t.ctx, t.user.ID, task)
	if err != nil {
		return err
	}
	if s.TaskID != task.ID {
		m.askToSwitch(t, sc, s.TaskName)
		return nil
	}
	sc.State = TaskActions
	m.reply(t, t.p.T("task.endedAndStartedNew", i18n.Params{"name": task.Name}), taskActions(t.p, true))
	return nil
}

func (m *Machine) onTaskName(t *turn, sc *Scratch) error {
	task, existed, err := m.ledger.GetOrCreateTask(t.ctx, t.user.ID, t.text)
	switch {
	case errors.Is(err, ledger.ErrEmptyTaskName):
		m.reply(t, t.p.T("task.enterName"))
		return nil
	case err != nil:
		return err
	case existed:
		m.reply(t, t.p.T("task.duplicateToday"))
		return nil
	}
	m.retractCancel(t, sc)
	sc.SelectedTask = &task
	sc.State = TaskActions
	m.reply(t, t.p.T("task.created", i18n.Params{"name": task.Name}), taskActions(t.p, false))
	return nil
}

func (m *Machine) onNewName(t *turn, sc *Scratch) error {
	if sc.SelectedTask == nil {
		m.retractCancel(t, sc)
		m.showMain(t, sc, "menu.main")
		return errNoSelection
	}
	renamed, err := m.ledger.UpdateTask(t.ctx, sc.SelectedTask.ID, t.text)
	switch {
	case errors.Is(err, ledger.ErrEmptyTaskName):
		m.reply(t, t.p.T("task.enterNewName"))
		return nil
	case errors.Is(err, ledger.ErrTaskNotFound):
		m.retractCancel(t, sc)
		m.reply(t, t.p.T("task.notFound"))
		return m.showTaskList(t, sc)
	case err != nil:
		return err
	case renamed == nil:
		m.reply(t, t.p.T("task.nameTaken"))
		return nil
	}
	m.retractCancel(t, sc)
	_, running, err := m.running(t, renamed.ID)
	if err != nil {
		return err
	}
	sc.SelectedTask = renamed
	sc.State = TaskActions
	m.reply(t, t.p.T("task.editSaved", i18n.Params{"name": renamed.Name}), taskActions(t.p, running))
	return nil
}

func (m *Machine) sendReport(t *turn, markup *tele.ReplyMarkup) error {
	tasks, err := m.ledger.TodayReport(t.ctx, t.user.ID)
	if err != nil {
		return err
	}
	m.reply(t, report.Render(t.p, m.ledger.Clock(), tasks, report.Options{}), markup)
	return nil
}

func (m *Machine) stateLabel(p i18n.Printer, on bool) string {
	if on {
		return p.T("settings.enabled")
	}
	return p.T("settings.disabled")
}

func (m *Machine) showSettings(t *turn, sc *Scratch) error {
	s, err := m.ledger.GetUserSettings(t.ctx, t.user.ID)
	if err != nil {
		return err
	}
	p := t.p
	lines := []string{
		p.T("settings.title"),
		p.T("buttons.REMINDER") + ": " + m.stateLabel(p, s.Reminder),
		p.T("buttons.FOCUS_ALERTS") + ": " + m.stateLabel(p, s.FocusAlerts),
		p.T("buttons.LANGUAGE") + ": " + p.T("languages."+string(s.Language)),
	}
	sc.State = SettingsMenu
	m.reply(t, strings.Join(lines, "\n"), settingsMenu(p))
	return nil
}

// toggleField is a boolean setting flipped from the settings menu.
type toggleField struct {
	label string
	get   func(domain.Settings) bool
	patch func(bool) domain.SettingsPatch
}

var (
	reminderField = toggleField{
		label: "buttons.REMINDER",
		get:   func(s domain.Settings) bool { return s.Reminder },
		patch: func(v bool) domain.SettingsPatch { return domain.SettingsPatch{Reminder: &v} },
	}
	focusAlertsField = toggleField{
		label: "buttons.FOCUS_ALERTS",
		get:   func(s domain.Settings) bool { return s.FocusAlerts },
		patch: func(v bool) domain.SettingsPatch { return domain.SettingsPatch{FocusAlerts: &v} },
	}
)

func (m *Machine) onSettings(t *turn, sc *Scratch) error {
	p := t.p
	switch t.text {
	case p.T(reminderField.label):
		return m.toggle(t, sc, reminderField)
	case p.T(focusAlertsField.label):
		return m.toggle(t, sc, focusAlertsField)
	case p.T("buttons.LANGUAGE"):
		sc.State = SelectingLanguage
		m.reply(t, p.T("menu.selectLanguage"), languageMenu(p))
		return nil
	}
	m.reply(t, p.T("menu.useButtonsOnly"), settingsMenu(p))
	return nil
}

func (m *Machine) toggle(t *turn, sc *Scratch, f toggleField) error {
	cur, err := m.ledger.GetUserSettings(t.ctx, t.user.ID)
	if err != nil {
		return err
	}
	next, err := m.ledger.UpdateUserSettings(t.ctx, t.user.ID, f.patch(!f.get(cur)))
	if err != nil {
		return err
	}
	sc.reset()
	m.reply(t, t.p.T("settings.toggled", i18n.Params{
		"setting": t.p.T(f.label),
		"state":   m.stateLabel(t.p, f.get(next)),
	}), mainMenu(t.p))
	return nil
}

func (m *Machine) onLanguage(t *turn, sc *Scratch) error {
	for _, lang := range languages {
		if t.text != t.p.T("languages."+string(lang)) {
			continue
		}
		if _, err := m.ledger.UpdateUserSettings(t.ctx, t.user.ID, domain.SettingsPatch{Language: &lang}); err != nil {
			return err
		}
		t.p = m.tr.In(lang)
		m.reply(t, t.p.T("settings.languageChanged", i18n.Params{"language": t.p.T("languages." + string(lang))}))
		return m.showSettings(t, sc)
	}
	m.reply(t, t.p.T("menu.useButtonsOnly"), languageMenu(t.p))
	return nil
}
