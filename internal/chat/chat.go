// Package chat holds the transport-neutral message types shared by the
// conversation engine, the command router and the transport adapters.
package chat

import (
	"context"
	"strings"
)

// Inbound is a text message received from a user.
type Inbound struct {
	UserID    int64
	ChatID    int64
	Username  string // transport handle without the leading @, may be empty
	FirstName string
	Text      string
}

// DisplayName returns the name stored on the user record: the handle when
// there is one, otherwise the first name.
func (m Inbound) DisplayName() string {
	if m.Username != "" {
		return m.Username
	}
	return m.FirstName
}

// Mention returns how the user is referred to in group messages.
func (m Inbound) Mention() string {
	if m.Username != "" {
		return "@" + m.Username
	}
	return m.FirstName
}

// IsCommand reports whether the text is a slash command.
func (m Inbound) IsCommand() bool {
	return strings.HasPrefix(strings.TrimSpace(m.Text), "/")
}

// Command returns the command name without the slash or any @botname
// suffix, lower-cased. It returns "" for plain text.
func (m Inbound) Command() string {
	if !m.IsCommand() {
		return ""
	}
	fields := strings.Fields(strings.TrimSpace(m.Text))
	name := strings.TrimPrefix(fields[0], "/")
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	return strings.ToLower(name)
}

// Reply is an outbound text message.
type Reply struct {
	ChatID int64
	Text   string

	// Keyboard suggests a one-row menu of replies. Only used for prompts
	// that accept a closed set of tokens.
	Keyboard []string

	// RemoveKeyboard hides a previously suggested menu.
	RemoveKeyboard bool
}

// Sender delivers outbound messages.
type Sender interface {
	Send(ctx context.Context, r Reply) error
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, r Reply) error

func (f SenderFunc) Send(ctx context.Context, r Reply) error { return f(ctx, r) }
