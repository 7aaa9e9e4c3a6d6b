package app

import (
	"github.com/m3rciful/taskly/internal/conversation"

	tele "gopkg.in/telebot.v4"
)

func senderOf(c tele.Context) conversation.Sender {
	u := c.Sender()
	if u == nil {
		return conversation.Sender{}
	}
	return conversation.Sender{TelegramID: u.ID, Username: u.Username, FirstName: u.FirstName}
}

func chatOf(c tele.Context) int64 {
	if ch := c.Chat(); ch != nil {
		return ch.ID
	}
	return 0
}

func textEvent(c tele.Context) conversation.TextMessage {
	return conversation.TextMessage{ChatID: chatOf(c), From: senderOf(c), Text: c.Text()}
}

func callbackEvent(c tele.Context) conversation.CallbackEvent {
	ev := conversation.CallbackEvent{ChatID: chatOf(c), From: senderOf(c)}
	if cb := c.Callback(); cb != nil {
		ev.Data = cb.Data
		if cb.Unique != "" {
			ev.Data = "\f" + cb.Unique + "|" + cb.Data
		}
		if cb.Message != nil {
			ev.MessageID = cb.Message.ID
		}
	}
	return ev
}
