package models

import "time"

// TaskStatus represents the state of a task.
type TaskStatus string

const (
	TaskStatusToDo       TaskStatus = "ToDo"
	TaskStatusInProgress TaskStatus = "InProgress"
	TaskStatusDone       TaskStatus = "Done"
)

// DueDateLayout is the text layout due dates are entered and stored in.
const DueDateLayout = "2006-01-02"

// Task is a unit of work assigned to a user.
//
// AssigneeID is not checked against the users table: work can be assigned to
// someone who has never talked to the bot.
type Task struct {
	ID          int64
	Title       string
	Description string
	AssigneeID  int64
	CreatorID   int64
	Status      TaskStatus
	DueDate     string
	CreatedAt   time.Time
}
