package conversation

import (
	"strconv"
	"strings"
	"time"

	"github.com/joescharf/teambot/internal/models"
)

// Kind identifies which record a flow collects.
type Kind string

const (
	KindIdea Kind = "idea"
	KindTask Kind = "task"
)

// Kinds lists every flow kind.
var Kinds = []Kind{KindIdea, KindTask}

// State is the position of a flow in its state machine.
type State int

const (
	StateAwaitingTitle State = iota
	StateAwaitingDescription
	StateAwaitingPriority
	StateAwaitingAssignee
	StateAwaitingDueDate

	// Terminal states.
	StateCommitted
	StateCancelled
	StateFailed
)

var stateNames = map[State]string{
	StateAwaitingTitle:       "awaiting_title",
	StateAwaitingDescription: "awaiting_description",
	StateAwaitingPriority:    "awaiting_priority",
	StateAwaitingAssignee:    "awaiting_assignee",
	StateAwaitingDueDate:     "awaiting_due_date",
	StateCommitted:           "committed",
	StateCancelled:           "cancelled",
	StateFailed:              "failed",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "state(" + strconv.Itoa(int(s)) + ")"
}

// Terminal reports whether no further input is accepted in s.
func (s State) Terminal() bool {
	return s == StateCommitted || s == StateCancelled || s == StateFailed
}

// Draft accumulates validated field values until commit.
type Draft struct {
	Title       string
	Description string
	Priority    models.Priority
	AssigneeID  int64
	DueDate     string
}

// step is the transition out of one non-terminal state. accept validates the
// raw text and, only when it returns true, stores the typed value in the
// draft. A false return keeps the flow in place and triggers a re-prompt.
type step struct {
	accept func(d *Draft, text string) bool
	next   State
}

// transitions is the full state table. A next state of StateCommitted means
// the flow commits after the step is accepted.
var transitions = map[Kind]map[State]step{
	KindIdea: {
		StateAwaitingTitle:       {accept: acceptTitle, next: StateAwaitingDescription},
		StateAwaitingDescription: {accept: acceptDescription, next: StateAwaitingPriority},
		StateAwaitingPriority:    {accept: acceptPriority, next: StateCommitted},
	},
	KindTask: {
		StateAwaitingTitle:       {accept: acceptTitle, next: StateAwaitingDescription},
		StateAwaitingDescription: {accept: acceptDescription, next: StateAwaitingAssignee},
		StateAwaitingAssignee:    {accept: acceptAssignee, next: StateAwaitingDueDate},
		StateAwaitingDueDate:     {accept: acceptDueDate, next: StateCommitted},
	},
}

// initialState is where every flow starts.
const initialState = StateAwaitingTitle

func acceptTitle(d *Draft, text string) bool {
	title := strings.TrimSpace(text)
	if title == "" {
		return false
	}
	d.Title = title
	return true
}

func acceptDescription(d *Draft, text string) bool {
	d.Description = strings.TrimSpace(text)
	return true
}

func acceptPriority(d *Draft, text string) bool {
	p, ok := models.ParsePriorityLabel(text)
	if !ok {
		return false
	}
	d.Priority = p
	return true
}

func acceptAssignee(d *Draft, text string) bool {
	id, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
	if err != nil {
		return false
	}
	d.AssigneeID = id
	return true
}

// acceptDueDate requires a real calendar date in models.DueDateLayout. The
// text is stored exactly as entered.
func acceptDueDate(d *Draft, text string) bool {
	if _, err := time.Parse(models.DueDateLayout, text); err != nil {
		return false
	}
	d.DueDate = text
	return true
}
