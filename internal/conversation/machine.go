// Package conversation drives each chat through the Taskly menus.
//
// Every chat has one Scratch, and updates for a chat are handled one at a
// time. Cross-chat and scheduler races are resolved by the ledger.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/m3rciful/taskly/core/logger"
	"github.com/m3rciful/taskly/core/telegram/callbacks"
	"github.com/m3rciful/taskly/core/telegram/format"
	"github.com/m3rciful/taskly/core/telegram/keyboard"
	"github.com/m3rciful/taskly/core/telegram/state"
	"github.com/m3rciful/taskly/internal/domain"
	"github.com/m3rciful/taskly/internal/i18n"
	"github.com/m3rciful/taskly/internal/ledger"
	"github.com/m3rciful/taskly/internal/scheduler"

	tele "gopkg.in/telebot.v4"
)

const component = "conversation"

var errNoSelection = errors.New("conversation: no task selected")

// Outbox is the delivery side the machine talks through.
type Outbox interface {
	Send(ctx context.Context, chatID int64, text string, opts ...interface{}) (*tele.Message, error)
	EditControls(ctx context.Context, chatID int64, messageID int, markup *tele.ReplyMarkup) error
}

// JobLister lists scheduled jobs for the admin /jobs command.
type JobLister interface {
	Jobs() []scheduler.JobInfo
}

// WorkingHours is the local-hour window [Start, End) in which sessions may start.
type WorkingHours struct {
	Start int `yaml:"start" envconfig:"TASKLY_WORK_START"`
	End   int `yaml:"end" envconfig:"TASKLY_WORK_END"`
}

// DefaultWorkingHours is 08:00 to 22:00.
func DefaultWorkingHours() WorkingHours { return WorkingHours{Start: 8, End: 22} }

// Allows reports whether a session may start at the local hour.
func (w WorkingHours) Allows(hour int) bool { return hour >= w.Start && hour < w.End }

// Validate checks 0 <= Start < End <= 24.
func (w WorkingHours) Validate() error {
	if w.Start < 0 || w.End > 24 || w.Start >= w.End {
		return fmt.Errorf("working_hours: need 0 <= start < end <= 24, got %d..%d", w.Start, w.End)
	}
	return nil
}

// Options configures a Machine.
type Options struct {
	Ledger       *ledger.Ledger
	Translator   *i18n.Translator
	Outbox       Outbox
	WorkingHours WorkingHours
	// State tunes idle scratch eviction.
	State state.Options
}

// Machine is the per-chat conversation state machine.
type Machine struct {
	ledger *ledger.Ledger
	tr     *i18n.Translator
	out    Outbox
	hours  WorkingHours
	states *state.Store[Scratch]
	jobs   JobLister
}

// New builds a machine. A zero WorkingHours means the default window.
func New(opts Options) *Machine {
	hours := opts.WorkingHours
	if hours == (WorkingHours{}) {
		hours = DefaultWorkingHours()
	}
	return &Machine{
		ledger: opts.Ledger,
		tr:     opts.Translator,
		out:    opts.Outbox,
		hours:  hours,
		states: state.NewStore(opts.State, newScratch),
	}
}

// SetJobs attaches the scheduler listing. Call before serving updates.
func (m *Machine) SetJobs(jobs JobLister) { m.jobs = jobs }

// States exposes the scratch store for eviction.
func (m *Machine) States() *state.Store[Scratch] { return m.states }

// Snapshot returns a copy of the chat's scratch, for diagnostics and tests.
func (m *Machine) Snapshot(chatID int64) (Scratch, bool) { return m.states.Get(chatID) }

type turn struct {
	ctx    context.Context
	chatID int64
	user   domain.User
	p      i18n.Printer
	text   string
}

func (m *Machine) newTurn(ctx context.Context, chatID int64, user domain.User, text string) *turn {
	return &turn{ctx: ctx, chatID: chatID, user: user, p: m.tr.For(ctx, user.ID), text: text}
}

// resolve finds or creates the sender's user. ok is false when the sender is unknown.
func (m *Machine) resolve(ctx context.Context, from Sender) (domain.User, bool, error) {
	if from.TelegramID == 0 {
		return domain.User{}, false, nil
	}
	u, err := m.ledger.UserByTelegramID(ctx, from.TelegramID)
	if err == nil {
		return u, true, nil
	}
	if !errors.Is(err, ledger.ErrNotFound) {
		return domain.User{}, false, err
	}
	u, err = m.ledger.EnsureUser(ctx, from.TelegramID, from.Username, from.FirstName)
	if err != nil {
		return domain.User{}, false, err
	}
	return u, true, nil
}

func isCommand(text, name string) bool {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return false
	}
	cmd, _, _ := strings.Cut(fields[0], "@")
	return strings.EqualFold(cmd, "/"+name)
}

// HandleText processes a text message.
func (m *Machine) HandleText(ctx context.Context, ev TextMessage) error {
	text := strings.TrimSpace(ev.Text)
	if isCommand(text, "start") {
		return m.HandleStart(ctx, ev)
	}
	user, ok, err := m.resolve(ctx, ev.From)
	if err != nil || !ok {
		return err
	}
	return m.states.With(ev.ChatID, func(sc *Scratch) error {
		t := m.newTurn(ctx, ev.ChatID, user, text)
		from := sc.State
		err := m.dispatch(t, sc)
		m.logTransition(ctx, from, sc.State)
		return err
	})
}

// HandleStart registers the sender, resets the chat and sends the welcome.
func (m *Machine) HandleStart(ctx context.Context, ev TextMessage) error {
	if ev.From.TelegramID == 0 {
		return nil
	}
	user, err := m.ledger.EnsureUser(ctx, ev.From.TelegramID, ev.From.Username, ev.From.FirstName)
	if err != nil {
		return err
	}
	return m.states.With(ev.ChatID, func(sc *Scratch) error {
		t := m.newTurn(ctx, ev.ChatID, user, "")
		from := sc.State
		m.retractCancel(t, sc)
		sc.reset()
		name := strings.TrimSpace(ev.From.FirstName)
		if name == "" {
			name = t.p.T("myFriend")
		}
		welcome := t.p.T("welcomeMessage", i18n.Params{"name": format.MustEscapeV1(name)})
		m.reply(t, welcome, tele.ModeMarkdown, mainMenu(t.p))
		m.logTransition(ctx, from, sc.State)
		return nil
	})
}

// HandleCallback processes an inline-button press.
func (m *Machine) HandleCallback(ctx context.Context, ev CallbackEvent) error {
	user, ok, err := m.resolve(ctx, ev.From)
	if err != nil || !ok {
		return err
	}
	key, _ := callbacks.ParseCallbackData(ev.Data)
	return m.states.With(ev.ChatID, func(sc *Scratch) error {
		t := m.newTurn(ctx, ev.ChatID, user, "")
		from := sc.State
		switch key {
		case keyboard.CancelKey:
			m.onCancelButton(t, sc, ev.MessageID)
		default:
			logger.Debug(ctx, component, "callback.unknown", slog.String("cb_key", key))
		}
		m.logTransition(ctx, from, sc.State)
		return nil
	})
}

// HandleJobs lists scheduled jobs with their next local fire time.
func (m *Machine) HandleJobs(ctx context.Context, ev TextMessage) error {
	user, ok, err := m.resolve(ctx, ev.From)
	if err != nil || !ok {
		return err
	}
	t := m.newTurn(ctx, ev.ChatID, user, "")
	var b strings.Builder
	b.WriteString(t.p.T("admin.jobs"))
	if m.jobs != nil {
		loc := m.ledger.Clock().Location()
		for _, j := range m.jobs.Jobs() {
			next := "-"
			if !j.Next.IsZero() {
				next = j.Next.In(loc).Format("Mon 2006-01-02 15:04")
			}
			b.WriteByte('\n')
			b.WriteString(t.p.T("admin.jobLine", i18n.Params{"name": j.Name, "next": next}))
		}
	}
	m.reply(t, b.String())
	return nil
}

// RefreshAfterForcedClose re-renders the task menu of a chat that is looking
// at the task the forced close just ended. Private chats share the user's Telegram ID.
func (m *Machine) RefreshAfterForcedClose(ctx context.Context, closed domain.ClosedSession) error {
	chatID := closed.TelegramID
	if _, ok := m.states.Get(chatID); !ok {
		return nil
	}
	return m.states.With(chatID, func(sc *Scratch) error {
		if sc.State != TaskActions || sc.SelectedTask == nil || sc.SelectedTask.ID != closed.TaskID {
			return nil
		}
		t := m.newTurn(ctx, chatID, domain.User{ID: closed.UserID, TelegramID: closed.TelegramID}, "")
		return m.showTask(t, sc, *sc.SelectedTask)
	})
}

func (m *Machine) dispatch(t *turn, sc *Scratch) error {
	// Input states take any text literally, nav labels included.
	if !sc.State.takesInput() && (t.text == t.p.T("buttons.BACK") || t.text == t.p.T("buttons.CANCEL")) {
		return m.onNav(t, sc)
	}
	switch sc.State {
	case AddingTaskName:
		return m.onTaskName(t, sc)
	case EditingTaskName:
		return m.onNewName(t, sc)
	case SelectingTask:
		return m.onSelectTask(t, sc)
	case TaskActions:
		return m.onTaskAction(t, sc)
	case ConfirmStartNewTaskAfterEndingActive:
		return m.onConfirm(t, sc)
	case SettingsMenu:
		return m.onSettings(t, sc)
	case SelectingLanguage:
		return m.onLanguage(t, sc)
	default:
		return m.onMainMenu(t, sc)
	}
}

// reply sends one message. Delivery failures are already logged by the
// gateway and do not roll the conversation back.
func (m *Machine) reply(t *turn, text string, opts ...interface{}) *tele.Message {
	msg, err := m.out.Send(t.ctx, t.chatID, text, opts...)
	if err != nil {
		return nil
	}
	return msg
}

// retractCancel disables the pending inline cancel button, if any.
func (m *Machine) retractCancel(t *turn, sc *Scratch) {
	if sc.PendingCancel == 0 {
		return
	}
	id := sc.PendingCancel
	sc.PendingCancel = 0
	m.clearControls(t, id)
}

// clearControls strips the inline keyboard from a sent message.
func (m *Machine) clearControls(t *turn, messageID int) {
	if err := m.out.EditControls(t.ctx, t.chatID, messageID, keyboard.EmptyInline()); err != nil {
		logger.Warn(t.ctx, component, "cancel.retract.failed",
			slog.Int("message_id", messageID),
			slog.String("err", logger.Err(err)),
		)
	}
}

func (m *Machine) logTransition(ctx context.Context, from, to State) {
	if from == to {
		return
	}
	logger.Debug(ctx, component, "state.transition",
		slog.String("from", string(from)),
		slog.String("to", string(to)),
	)
}
