package conversation

import (
	"fmt"

	"github.com/joescharf/teambot/internal/chat"
	"github.com/joescharf/teambot/internal/models"
)

type promptKey struct {
	kind  Kind
	state State
}

var prompts = map[promptKey]string{
	{KindIdea, StateAwaitingTitle}:       "Great, a new idea! Send its title (or /cancel):",
	{KindIdea, StateAwaitingDescription}: "Good. Now write a short description of the idea:",
	{KindIdea, StateAwaitingPriority}:    "Pick the idea's priority:",
	{KindTask, StateAwaitingTitle}:       "Send the title of the new task (or /cancel):",
	{KindTask, StateAwaitingDescription}: "Describe the task:",
	{KindTask, StateAwaitingAssignee}:    "Send the numeric user ID of the assignee:",
	{KindTask, StateAwaitingDueDate}:     "Send the due date as YYYY-MM-DD (e.g. 2024-12-31):",
}

var invalidHints = map[State]string{
	StateAwaitingTitle:    "The title cannot be empty.",
	StateAwaitingPriority: "Please choose one of the offered options.",
	StateAwaitingAssignee: "That is not a valid numeric ID.",
	StateAwaitingDueDate:  "That is not a valid YYYY-MM-DD date.",
}

const (
	msgIdeaCommitted = "Your idea was recorded (ID %d) 🎉\nYou earned %d karma!"
	msgTaskCommitted = "Task created (ID %d) ✅"
	msgCancelled     = "Cancelled."
	msgFailed        = "Something went wrong and nothing was saved. Please try again later."
)

// promptReply builds the prompt sent on entering state.
func promptReply(chatID int64, kind Kind, state State) chat.Reply {
	r := chat.Reply{ChatID: chatID, Text: prompts[promptKey{kind, state}]}
	switch state {
	case StateAwaitingPriority:
		r.Keyboard = models.PriorityLabels()
	case initialState:
		r.RemoveKeyboard = true
	}
	return r
}

// repromptReply repeats the prompt for state after rejected input.
func repromptReply(chatID int64, kind Kind, state State) chat.Reply {
	r := promptReply(chatID, kind, state)
	r.RemoveKeyboard = false
	if hint, ok := invalidHints[state]; ok {
		r.Text = hint + "\n" + r.Text
	}
	return r
}

func committedText(kind Kind, id int64) string {
	if kind == KindIdea {
		return fmt.Sprintf(msgIdeaCommitted, id, models.IdeaKarma)
	}
	return fmt.Sprintf(msgTaskCommitted, id)
}
