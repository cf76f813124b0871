package cmd

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/teambot/internal/models"
	"github.com/joescharf/teambot/internal/store"
)

// seedStore opens the test store and captures UI output.
func seedStore(t *testing.T) (store.Store, *bytes.Buffer) {
	t.Helper()
	testEnv(t)

	s, err := getStore()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	var out bytes.Buffer
	ui.Out = &out
	return s, &out
}

func TestIdeasRun(t *testing.T) {
	s, out := seedStore(t)
	ctx := context.Background()

	require.NoError(t, s.EnsureUser(ctx, 1, "Alice"))
	require.NoError(t, s.RecordIdea(ctx, &models.Idea{Title: "Dark mode", AuthorID: 1, Priority: models.PriorityHigh}))
	require.NoError(t, s.RecordIdea(ctx, &models.Idea{Title: "Offsite", AuthorID: 1, Priority: models.PriorityLow}))

	require.NoError(t, ideasRun())
	assert.Contains(t, out.String(), "Dark mode")
	assert.Contains(t, out.String(), "Offsite")
	assert.Contains(t, out.String(), "Alice")
}

func TestIdeasRun_PriorityFilter(t *testing.T) {
	s, out := seedStore(t)
	ctx := context.Background()

	require.NoError(t, s.EnsureUser(ctx, 1, "Alice"))
	require.NoError(t, s.RecordIdea(ctx, &models.Idea{Title: "Dark mode", AuthorID: 1, Priority: models.PriorityHigh}))
	require.NoError(t, s.RecordIdea(ctx, &models.Idea{Title: "Offsite", AuthorID: 1, Priority: models.PriorityLow}))

	ideasPriority = "high"
	t.Cleanup(func() { ideasPriority = "" })

	require.NoError(t, ideasRun())
	assert.Contains(t, out.String(), "Dark mode")
	assert.NotContains(t, out.String(), "Offsite")
}

func TestIdeasRun_FilterMatchesNothing(t *testing.T) {
	s, out := seedStore(t)
	ctx := context.Background()

	require.NoError(t, s.EnsureUser(ctx, 1, "Alice"))
	require.NoError(t, s.RecordIdea(ctx, &models.Idea{Title: "Offsite", AuthorID: 1, Priority: models.PriorityLow}))

	ideasPriority = "high"
	t.Cleanup(func() { ideasPriority = "" })

	require.NoError(t, ideasRun())
	assert.Contains(t, out.String(), "No high-priority ideas (1 in total).")
	assert.NotContains(t, out.String(), "No ideas submitted yet.")
}

func TestIdeasRun_InvalidPriority(t *testing.T) {
	seedStore(t)
	ideasPriority = "urgent"
	t.Cleanup(func() { ideasPriority = "" })

	err := ideasRun()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid priority")
}

func TestIdeasRun_Empty(t *testing.T) {
	_, out := seedStore(t)

	require.NoError(t, ideasRun())
	assert.Contains(t, out.String(), "No ideas")
}

func TestTasksRun(t *testing.T) {
	s, out := seedStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordTask(ctx, &models.Task{Title: "Ship release", AssigneeID: 2, CreatorID: 1, DueDate: "2030-01-15"}))
	require.NoError(t, s.RecordTask(ctx, &models.Task{Title: "Other person", AssigneeID: 3, CreatorID: 1}))

	require.NoError(t, tasksRun("2"))
	assert.Contains(t, out.String(), "Ship release")
	assert.Contains(t, out.String(), "2030-01-15")
	assert.NotContains(t, out.String(), "Other person")
}

func TestTasksRun_InvalidUserID(t *testing.T) {
	seedStore(t)

	err := tasksRun("bob")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid user id")
}

func TestTasksRun_None(t *testing.T) {
	_, out := seedStore(t)

	require.NoError(t, tasksRun("42"))
	assert.Contains(t, out.String(), "No tasks assigned to user 42")
}

func TestKarmaRun(t *testing.T) {
	s, out := seedStore(t)
	ctx := context.Background()

	require.NoError(t, s.EnsureUser(ctx, 1, "Alice"))
	require.NoError(t, s.RecordIdea(ctx, &models.Idea{Title: "Dark mode", AuthorID: 1, Priority: models.PriorityMedium}))

	require.NoError(t, karmaRun("1"))
	assert.Contains(t, out.String(), "Alice (1): 10 karma")
}

func TestKarmaRun_UnknownUser(t *testing.T) {
	_, out := seedStore(t)

	require.NoError(t, karmaRun("99"))
	assert.Contains(t, out.String(), "unknown user (99): 0 karma")
}

func TestStatusRun(t *testing.T) {
	s, out := seedStore(t)
	ctx := context.Background()

	require.NoError(t, s.EnsureUser(ctx, 1, "Alice"))
	require.NoError(t, s.RecordIdea(ctx, &models.Idea{Title: "Dark mode", AuthorID: 1, Priority: models.PriorityMedium}))

	require.NoError(t, statusRun())
	assert.Contains(t, out.String(), "not running")
	assert.Contains(t, out.String(), "Total karma")
}
