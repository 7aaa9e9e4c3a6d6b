// Package commands describes slash commands published to the Telegram menu.
package commands

import (
	tele "gopkg.in/telebot.v4"
)

// Command is one slash command.
type Command struct {
	Handler     tele.HandlerFunc
	Description string
	// AdminOnly commands reach only telegram.admin_id and stay out of the public menu.
	AdminOnly bool
	// Hidden commands work but are not published.
	Hidden  bool
	Aliases []string
}

// Public reports whether the command belongs in the public command menu.
func (c Command) Public() bool {
	return !c.Hidden && !c.AdminOnly
}
