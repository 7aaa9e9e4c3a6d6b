package callbacks

import (
	"strings"

	tele "gopkg.in/telebot.v4"
)

// ParseCallbackData splits Telebot's "\f<unique>|<payload>" encoding.
// Data without the form-feed prefix is treated as a bare key.
func ParseCallbackData(data string) (string, string) {
	raw := strings.TrimPrefix(data, "\f")
	key, payload, _ := strings.Cut(raw, "|")
	return strings.TrimSpace(key), payload
}

// Encode builds callback data the way markup.Data does, for tests and synthetic events.
func Encode(key, payload string) string {
	if payload == "" {
		return "\f" + key
	}
	return "\f" + key + "|" + payload
}

// CallbackKey returns cb.Unique if present; otherwise parses it from Data.
func CallbackKey(c tele.Context) string {
	cb := c.Callback()
	if cb == nil {
		return ""
	}
	if cb.Unique != "" {
		return cb.Unique
	}
	k, _ := ParseCallbackData(cb.Data)
	return k
}

// CallbackPayload returns the part after '|'.
// cb.Unique is empty on the generic OnCallback endpoint, so Data is always parsed.
func CallbackPayload(c tele.Context) string {
	cb := c.Callback()
	if cb == nil {
		return ""
	}
	_, payload := ParseCallbackData(cb.Data)
	return payload
}
