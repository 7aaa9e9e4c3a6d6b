package router

import (
	"strings"
	"time"

	tg "github.com/m3rciful/taskly/core/telegram"
	"github.com/m3rciful/taskly/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// TextOptions controls how free text is routed.
type TextOptions struct {
	// Conversation receives every text that is not a registered command.
	Conversation tele.HandlerFunc
	UnknownText  tele.HandlerFunc
}

// TextRoutes builds the OnText handler. Slash text matching a registered command
// alias goes to that command; everything else goes to the conversation.
func TextRoutes(reg *tg.Registry, opts TextOptions) []tg.Route {
	handler := func(c tele.Context) error {
		start := time.Now()

		if text := c.Text(); reg != nil && strings.HasPrefix(text, "/") {
			if key, cmd, ok := reg.LookupCommand(text); ok && cmd.Handler != nil {
				return handleWithSummary(c, normalizeHandlerName(key), start, "", "", func() error {
					return cmd.Handler(c)
				})
			}
		}

		if opts.Conversation != nil {
			return handleWithSummary(c, "conversation.text", start, "", "", func() error {
				return opts.Conversation(c)
			})
		}

		if reg != nil {
			if fb := reg.TextFallback(); fb != nil {
				return handleWithSummary(c, "fallback", start, "", "", func() error {
					return fb(c)
				})
			}
		}

		if opts.UnknownText != nil {
			return handleWithSummary(c, "unknown_text", start, "", "", func() error {
				return opts.UnknownText(c)
			})
		}

		logHandlerSummary(c, "unknown_text", start, "skip", "ok", nil)
		return nil
	}

	return []tg.Route{{
		Endpoint: tele.OnText,
		Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(handler)),
	}}
}
