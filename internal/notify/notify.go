// Package notify delivers best-effort announcements to the team's group chat.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/joescharf/teambot/internal/chat"
	"github.com/joescharf/teambot/internal/models"
)

// Dispatcher sends summaries to a fixed group chat. Delivery failures are
// logged and dropped: callers never see them and nothing is retried.
type Dispatcher struct {
	sender      chat.Sender
	groupChatID int64
	log         *slog.Logger
}

// NewDispatcher creates a Dispatcher. A zero groupChatID disables delivery.
func NewDispatcher(sender chat.Sender, groupChatID int64, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{sender: sender, groupChatID: groupChatID, log: logger}
}

// Broadcast sends text to the group chat.
func (d *Dispatcher) Broadcast(ctx context.Context, text string) {
	if d.groupChatID == 0 {
		d.log.Warn("group chat not configured, notification dropped")
		return
	}
	if err := d.sender.Send(ctx, chat.Reply{ChatID: d.groupChatID, Text: text}); err != nil {
		d.log.Error("send group notification", "chat_id", d.groupChatID, "error", err)
	}
}

// IdeaSubmitted announces a newly recorded idea.
func (d *Dispatcher) IdeaSubmitted(ctx context.Context, idea *models.Idea, author string) {
	d.Broadcast(ctx, FormatIdea(idea, author))
}

// FormatIdea renders the group announcement for an idea.
func FormatIdea(idea *models.Idea, author string) string {
	var b strings.Builder
	b.WriteString("💡 New idea!\n\n")
	fmt.Fprintf(&b, "Title: %s\n", idea.Title)
	fmt.Fprintf(&b, "Description: %s\n", idea.Description)
	fmt.Fprintf(&b, "Priority: %s\n", idea.Priority.Label())
	fmt.Fprintf(&b, "Submitted by: %s", author)
	return b.String()
}
