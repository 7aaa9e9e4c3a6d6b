package conversation

import (
	"github.com/m3rciful/taskly/core/telegram/keyboard"
	"github.com/m3rciful/taskly/internal/domain"
	"github.com/m3rciful/taskly/internal/i18n"

	tele "gopkg.in/telebot.v4"
)

var languages = []domain.Language{domain.LanguagePrimary, domain.LanguageSecondary}

func mainMenu(p i18n.Printer) *tele.ReplyMarkup {
	return keyboard.ReplyButtons(
		[]string{p.T("buttons.ADD_TASK"), p.T("buttons.TASK_LIST")},
		[]string{p.T("buttons.TODAY_REPORT"), p.T("buttons.SETTINGS")},
	)
}

func taskList(p i18n.Printer, tasks []domain.Task) *tele.ReplyMarkup {
	names := make([]string, len(tasks))
	for i, t := range tasks {
		names[i] = t.Name
	}
	rows := keyboard.Columns(names, 2)
	rows = append(rows, []string{p.T("buttons.BACK")})
	return keyboard.ReplyButtons(rows...)
}

func taskActions(p i18n.Printer, running bool) *tele.ReplyMarkup {
	toggle := p.T("buttons.START_SELECTED_TASK")
	if running {
		toggle = p.T("buttons.END_SELECTED_TASK")
	}
	return keyboard.ReplyButtons(
		[]string{toggle},
		[]string{p.T("buttons.EDIT_TASK"), p.T("buttons.DELETE_SELECTED_TASK")},
		[]string{p.T("buttons.BACK")},
	)
}

func confirmMenu(p i18n.Printer) *tele.ReplyMarkup {
	return keyboard.ReplyButtons(
		[]string{p.T("buttons.START_NEW_TASK_AFTER_ENDING_ACTIVE")},
		[]string{p.T("buttons.CANCEL")},
	)
}

func settingsMenu(p i18n.Printer) *tele.ReplyMarkup {
	return keyboard.ReplyButtons(
		[]string{p.T("buttons.REMINDER"), p.T("buttons.FOCUS_ALERTS")},
		[]string{p.T("buttons.LANGUAGE")},
		[]string{p.T("buttons.BACK")},
	)
}

func languageMenu(p i18n.Printer) *tele.ReplyMarkup {
	labels := make([]string, len(languages))
	for i, l := range languages {
		labels[i] = p.T("languages." + string(l))
	}
	return keyboard.ReplyButtons(labels, []string{p.T("buttons.BACK")})
}
