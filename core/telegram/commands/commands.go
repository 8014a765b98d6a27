package commands

import (
	tele "gopkg.in/telebot.v4"
)

// Command is a slash command with its handler and menu metadata.
type Command struct {
	Handler     tele.HandlerFunc
	Description string
	// AdminOnly commands are rejected for everyone but telegram.admin_id.
	AdminOnly bool
	// Hidden commands work but are not published via setMyCommands.
	Hidden  bool
	Aliases []string
}

// Matches reports whether name is the canonical name or one of the aliases.
func (c Command) Matches(canonical, name string) bool {
	if name == canonical {
		return true
	}
	for _, alias := range c.Aliases {
		if alias == name || "/"+alias == name {
			return true
		}
	}
	return false
}
