package models

import "time"

// Priority is the urgency an author assigns to an idea.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

var priorityLabels = map[Priority]string{
	PriorityLow:    "Low",
	PriorityMedium: "Medium",
	PriorityHigh:   "High",
}

// PriorityLabels lists the user-facing priority tokens in menu order.
func PriorityLabels() []string {
	return []string{priorityLabels[PriorityLow], priorityLabels[PriorityMedium], priorityLabels[PriorityHigh]}
}

// Label returns the user-facing token for p.
func (p Priority) Label() string {
	if l, ok := priorityLabels[p]; ok {
		return l
	}
	return string(p)
}

// ParsePriorityLabel maps a user-facing token back to a Priority. Matching is
// exact and case-sensitive.
func ParsePriorityLabel(label string) (Priority, bool) {
	for p, l := range priorityLabels {
		if l == label {
			return p, true
		}
	}
	return "", false
}

// IdeaKarma is the karma an author earns for each submitted idea.
const IdeaKarma = 10

// Idea is a proposal submitted by a team member.
type Idea struct {
	ID          int64
	Title       string
	Description string
	AuthorID    int64
	AuthorName  string // populated on reads that join users
	Priority    Priority
	Votes       int
	CreatedAt   time.Time
}
