package store

import (
	"context"
	"errors"

	"github.com/joescharf/teambot/internal/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Stats holds row counts for the admin overview.
type Stats struct {
	Users      int
	Ideas      int
	Tasks      int
	TotalKarma int
}

// Store defines the persistence interface for teambot.
type Store interface {
	// Users
	EnsureUser(ctx context.Context, id int64, displayName string) error
	GetUser(ctx context.Context, id int64) (*models.User, error)
	KarmaOf(ctx context.Context, userID int64) (int, error)
	TopByKarma(ctx context.Context, n int) ([]*models.User, error)

	// Ideas
	RecordIdea(ctx context.Context, idea *models.Idea) error
	AllIdeas(ctx context.Context) ([]*models.Idea, error)

	// Tasks
	RecordTask(ctx context.Context, task *models.Task) error
	TasksFor(ctx context.Context, userID int64) ([]*models.Task, error)

	Stats(ctx context.Context) (*Stats, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
