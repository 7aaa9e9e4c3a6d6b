package keyboard

import tele "gopkg.in/telebot.v4"

// CancelKey is the callback key carried by cancel affordances.
const CancelKey = "cancel"

// InlineBtn describes a convenience wrapper for inline button properties.
type InlineBtn struct {
	Text   string
	Unique string
	Data   string
}

// RemoveKeyboard returns a markup that hides the keyboard.
func RemoveKeyboard() *tele.ReplyMarkup {
	return &tele.ReplyMarkup{RemoveKeyboard: true}
}

// ReplyButtons builds a resized reply keyboard from rows of text.
func ReplyButtons(rows ...[]string) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{ResizeKeyboard: true}
	keyboard := make([]tele.Row, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		buttons := make([]tele.Btn, 0, len(row))
		for _, label := range row {
			buttons = append(buttons, markup.Text(label))
		}
		keyboard = append(keyboard, markup.Row(buttons...))
	}
	markup.Reply(keyboard...)
	return markup
}

// Columns splits labels into rows with up to n labels each.
func Columns(labels []string, n int) [][]string {
	if n < 1 {
		n = 1
	}
	rows := make([][]string, 0, (len(labels)+n-1)/n)
	for i := 0; i < len(labels); i += n {
		end := min(i+n, len(labels))
		rows = append(rows, labels[i:end])
	}
	return rows
}

// InlineButtonsRows builds an inline keyboard from rows of InlineBtn.
func InlineButtonsRows(rows ...[]InlineBtn) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}
	inline := make([][]tele.InlineButton, len(rows))
	for i, row := range rows {
		r := make([]tele.InlineButton, len(row))
		for j, btn := range row {
			r[j] = *markup.Data(btn.Text, btn.Unique, btn.Data).Inline()
		}
		inline[i] = r
	}
	markup.InlineKeyboard = inline
	return markup
}

// SingleCancelMarkup creates an inline keyboard with one cancel button.
func SingleCancelMarkup(label string) *tele.ReplyMarkup {
	if label == "" {
		label = "❌ Cancel"
	}
	return InlineButtonsRows([]InlineBtn{{Text: label, Unique: CancelKey}})
}

// EmptyInline is the markup used to retract inline controls from a sent message.
func EmptyInline() *tele.ReplyMarkup {
	return &tele.ReplyMarkup{InlineKeyboard: [][]tele.InlineButton{}}
}
