package conversation

import "github.com/m3rciful/taskly/internal/domain"

// State is where a chat is in the menu flow.
type State string

const (
	MainMenu                             State = "MainMenu"
	AddingTaskName                       State = "AddingTaskName"
	SelectingTask                        State = "SelectingTask"
	TaskActions                          State = "TaskActions"
	ConfirmStartNewTaskAfterEndingActive State = "ConfirmStartNewTaskAfterEndingActive"
	EditingTaskName                      State = "EditingTaskName"
	SettingsMenu                         State = "SettingsMenu"
	SelectingLanguage                    State = "SelectingLanguage"
)

// takesInput reports whether free text in s is data rather than a button press.
func (s State) takesInput() bool {
	return s == AddingTaskName || s == EditingTaskName
}

// Scratch is the per-chat conversation memory.
type Scratch struct {
	State        State
	SelectedTask *domain.Task
	// PendingCancel is the message carrying the inline cancel button, 0 if none.
	PendingCancel int
}

func newScratch() Scratch {
	return Scratch{State: MainMenu}
}

func (s *Scratch) reset() {
	s.State = MainMenu
	s.SelectedTask = nil
}

// Sender identifies who sent an update.
type Sender struct {
	TelegramID int64
	Username   string
	FirstName  string
}

// TextMessage is an inbound text update.
type TextMessage struct {
	ChatID int64
	From   Sender
	Text   string
}

// CallbackEvent is an inbound inline-button press.
type CallbackEvent struct {
	ChatID    int64
	From      Sender
	Data      string
	MessageID int
}
