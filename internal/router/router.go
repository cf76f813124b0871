// Package router maps inbound chat messages to queries or conversation flows.
package router

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/joescharf/teambot/internal/chat"
	"github.com/joescharf/teambot/internal/conversation"
	"github.com/joescharf/teambot/internal/models"
	"github.com/joescharf/teambot/internal/store"
)

// Store is the subset of store.Store the router reads and writes.
type Store interface {
	EnsureUser(ctx context.Context, id int64, displayName string) error
	TasksFor(ctx context.Context, userID int64) ([]*models.Task, error)
	AllIdeas(ctx context.Context) ([]*models.Idea, error)
	KarmaOf(ctx context.Context, userID int64) (int, error)
	TopByKarma(ctx context.Context, n int) ([]*models.User, error)
	Stats(ctx context.Context) (*store.Stats, error)
}

// Command names, without the leading slash.
const (
	CmdStart   = "start"
	CmdHelp    = "help"
	CmdIdea    = "idea"
	CmdTask    = "task"
	CmdMyTasks = "mytasks"
	CmdIdeas   = "ideas"
	CmdKarma   = "karma"
	CmdCancel  = "cancel"
	CmdStats   = "stats"
)

// Router dispatches each inbound message. It ensures the sender has a user
// record before anything else runs, so flows can rely on the author existing.
type Router struct {
	store  Store
	flows  *conversation.Engine
	sender chat.Sender
	admins map[int64]bool
	log    *slog.Logger
}

// New creates a Router. adminIDs may be empty.
func New(s Store, flows *conversation.Engine, sender chat.Sender, adminIDs []int64, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	admins := make(map[int64]bool, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = true
	}
	return &Router{store: s, flows: flows, sender: sender, admins: admins, log: logger}
}

// IsAdmin reports whether userID is in the configured admin list.
func (r *Router) IsAdmin(userID int64) bool {
	return r.admins[userID]
}

// Dispatch handles one inbound message. Unknown commands, and plain text
// outside a flow, are ignored.
func (r *Router) Dispatch(ctx context.Context, in chat.Inbound) error {
	if err := r.store.EnsureUser(ctx, in.UserID, in.DisplayName()); err != nil {
		// A flow cannot continue without its user row.
		if _, aborted := r.flows.Abort(ctx, in, err); !aborted {
			r.replyFailure(ctx, in)
		}
		return fmt.Errorf("ensure user %d: %w", in.UserID, err)
	}

	if !in.IsCommand() {
		_, handled, err := r.flows.Handle(ctx, in)
		if !handled {
			r.log.Debug("ignoring text outside a flow", "user_id", in.UserID)
		}
		return err
	}

	switch cmd := in.Command(); cmd {
	case CmdStart, CmdHelp:
		return r.reply(ctx, in, welcomeText(in, r.IsAdmin(in.UserID)))
	case CmdIdea:
		_, err := r.flows.Start(ctx, in, conversation.KindIdea)
		return err
	case CmdTask:
		_, err := r.flows.Start(ctx, in, conversation.KindTask)
		return err
	case CmdCancel:
		_, _, err := r.flows.Cancel(ctx, in)
		return err
	case CmdMyTasks:
		return r.myTasks(ctx, in)
	case CmdIdeas:
		return r.listIdeas(ctx, in)
	case CmdKarma:
		return r.karma(ctx, in)
	case CmdStats:
		return r.stats(ctx, in)
	default:
		r.log.Debug("ignoring unknown command", "user_id", in.UserID, "command", cmd)
		return nil
	}
}

func (r *Router) myTasks(ctx context.Context, in chat.Inbound) error {
	tasks, err := r.store.TasksFor(ctx, in.UserID)
	if err != nil {
		r.replyFailure(ctx, in)
		return fmt.Errorf("list tasks: %w", err)
	}
	return r.reply(ctx, in, formatTasks(tasks))
}

func (r *Router) listIdeas(ctx context.Context, in chat.Inbound) error {
	ideas, err := r.store.AllIdeas(ctx)
	if err != nil {
		r.replyFailure(ctx, in)
		return fmt.Errorf("list ideas: %w", err)
	}
	for _, part := range splitMessage(formatIdeas(ideas), MaxMessageLen) {
		if err := r.reply(ctx, in, part); err != nil {
			return err
		}
	}
	return nil
}

func (r *Router) karma(ctx context.Context, in chat.Inbound) error {
	k, err := r.store.KarmaOf(ctx, in.UserID)
	if err != nil {
		r.replyFailure(ctx, in)
		return fmt.Errorf("get karma: %w", err)
	}
	top, err := r.store.TopByKarma(ctx, leaderboardSize)
	if err != nil {
		r.replyFailure(ctx, in)
		return fmt.Errorf("karma leaderboard: %w", err)
	}
	return r.reply(ctx, in, formatKarma(k, top))
}

func (r *Router) stats(ctx context.Context, in chat.Inbound) error {
	if !r.IsAdmin(in.UserID) {
		return r.reply(ctx, in, msgAdminOnly)
	}
	st, err := r.store.Stats(ctx)
	if err != nil {
		r.replyFailure(ctx, in)
		return fmt.Errorf("stats: %w", err)
	}
	return r.reply(ctx, in, formatStats(st))
}

func (r *Router) reply(ctx context.Context, in chat.Inbound, text string) error {
	if err := r.sender.Send(ctx, chat.Reply{ChatID: in.ChatID, Text: text}); err != nil {
		return fmt.Errorf("send reply: %w", err)
	}
	return nil
}

func (r *Router) replyFailure(ctx context.Context, in chat.Inbound) {
	if err := r.reply(ctx, in, msgFailure); err != nil {
		r.log.Error("send failure notice", "user_id", in.UserID, "error", err)
	}
}
