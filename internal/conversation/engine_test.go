package conversation

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/teambot/internal/chat"
	"github.com/joescharf/teambot/internal/models"
	"github.com/joescharf/teambot/internal/notify"
	"github.com/joescharf/teambot/internal/store"
)

const groupChatID = -1001

// ---------------------------------------------------------------------------
// Test doubles
// ---------------------------------------------------------------------------

type recordingSender struct {
	mu      sync.Mutex
	replies []chat.Reply
	failFor map[int64]bool
}

func (r *recordingSender) Send(_ context.Context, reply chat.Reply) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failFor[reply.ChatID] {
		return errors.New("transport unavailable")
	}
	r.replies = append(r.replies, reply)
	return nil
}

func (r *recordingSender) last(t *testing.T) chat.Reply {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.replies)
	return r.replies[len(r.replies)-1]
}

func (r *recordingSender) to(chatID int64) []chat.Reply {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []chat.Reply
	for _, reply := range r.replies {
		if reply.ChatID == chatID {
			out = append(out, reply)
		}
	}
	return out
}

type failingStore struct {
	err error
}

func (f *failingStore) RecordIdea(context.Context, *models.Idea) error { return f.err }
func (f *failingStore) RecordTask(context.Context, *models.Task) error { return f.err }

type countingNotifier struct {
	ideas   []*models.Idea
	authors []string
}

func (c *countingNotifier) IdeaSubmitted(_ context.Context, idea *models.Idea, author string) {
	c.ideas = append(c.ideas, idea)
	c.authors = append(c.authors, author)
}

// manualClock is a settable time source.
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

type harness struct {
	engine *Engine
	store  *store.SQLiteStore
	sender *recordingSender
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	s := newTestStore(t)
	sender := &recordingSender{}
	d := notify.NewDispatcher(sender, groupChatID, nil)
	return &harness{engine: NewEngine(s, d, sender, nil), store: s, sender: sender}
}

func user(id int64) chat.Inbound {
	return chat.Inbound{UserID: id, ChatID: id, Username: fmt.Sprintf("user%d", id), FirstName: "User"}
}

func say(in chat.Inbound, text string) chat.Inbound {
	in.Text = text
	return in
}

func ensure(t *testing.T, s store.Store, in chat.Inbound) {
	t.Helper()
	require.NoError(t, s.EnsureUser(context.Background(), in.UserID, in.DisplayName()))
}

func feed(t *testing.T, e *Engine, in chat.Inbound, texts ...string) Outcome {
	t.Helper()
	var out Outcome
	for _, text := range texts {
		var handled bool
		var err error
		out, handled, err = e.Handle(context.Background(), say(in, text))
		require.NoError(t, err)
		require.True(t, handled, "input %q not handled", text)
	}
	return out
}

// ---------------------------------------------------------------------------
// Transition table
// ---------------------------------------------------------------------------

func TestTransitions_EveryFlowReachesCommit(t *testing.T) {
	for _, kind := range Kinds {
		t.Run(string(kind), func(t *testing.T) {
			table, ok := transitions[kind]
			require.True(t, ok)

			seen := map[State]bool{}
			state := initialState
			for state != StateCommitted {
				require.False(t, seen[state], "cycle at %s", state)
				seen[state] = true
				require.False(t, state.Terminal())

				st, ok := table[state]
				require.True(t, ok, "no transition from %s", state)
				require.NotNil(t, st.accept)
				assert.NotEmpty(t, prompts[promptKey{kind, state}], "no prompt for %s", state)
				state = st.next
			}
			assert.Len(t, seen, len(table), "unreachable states in table")
		})
	}
}

func TestTransitions_RejectedInputLeavesDraft(t *testing.T) {
	cases := []struct {
		state State
		text  string
	}{
		{StateAwaitingTitle, "   "},
		{StateAwaitingPriority, "urgent"},
		{StateAwaitingPriority, "high"},
		{StateAwaitingAssignee, "bob"},
		{StateAwaitingDueDate, "tomorrow"},
		{StateAwaitingDueDate, "2024-02-30"},
		{StateAwaitingDueDate, "2024-1-5"},
	}
	for _, tc := range cases {
		t.Run(tc.state.String()+"/"+tc.text, func(t *testing.T) {
			var st step
			for _, kind := range Kinds {
				if s, ok := transitions[kind][tc.state]; ok {
					st = s
				}
			}
			require.NotNil(t, st.accept)

			d := Draft{Title: "keep", AssigneeID: 7}
			before := d
			assert.False(t, st.accept(&d, tc.text))
			assert.Equal(t, before, d)
		})
	}
}

// ---------------------------------------------------------------------------
// Idea flow
// ---------------------------------------------------------------------------

func TestIdeaFlow_CommitsOnceWithKarma(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := user(1)
	ensure(t, h.store, alice)

	out, err := h.engine.Start(ctx, alice, KindIdea)
	require.NoError(t, err)
	assert.Equal(t, StateAwaitingTitle, out.State)
	assert.NotEmpty(t, out.FlowID)

	out = feed(t, h.engine, alice, "Dark mode")
	assert.Equal(t, StateAwaitingDescription, out.State)

	out = feed(t, h.engine, alice, "Easier on the eyes")
	assert.Equal(t, StateAwaitingPriority, out.State)
	assert.Equal(t, models.PriorityLabels(), h.sender.last(t).Keyboard)

	out = feed(t, h.engine, alice, "High")
	assert.Equal(t, StateCommitted, out.State)
	assert.NotZero(t, out.RecordID)

	ideas, err := h.store.AllIdeas(ctx)
	require.NoError(t, err)
	require.Len(t, ideas, 1)
	assert.Equal(t, "Dark mode", ideas[0].Title)
	assert.Equal(t, "Easier on the eyes", ideas[0].Description)
	assert.Equal(t, models.PriorityHigh, ideas[0].Priority)

	karma, err := h.store.KarmaOf(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 10, karma)

	ack := h.sender.last(t)
	assert.Equal(t, int64(1), ack.ChatID)
	assert.True(t, ack.RemoveKeyboard)
	assert.Contains(t, ack.Text, fmt.Sprintf("ID %d", out.RecordID))

	group := h.sender.to(groupChatID)
	require.Len(t, group, 1)
	assert.Contains(t, group[0].Text, "Dark mode")
	assert.Contains(t, group[0].Text, "@user1")

	assert.False(t, h.engine.Active(1), "session must be disposed after commit")
	_, handled, err := h.engine.Handle(ctx, say(alice, "more text"))
	require.NoError(t, err)
	assert.False(t, handled)
}

func TestIdeaFlow_InvalidPriorityReprompts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := user(1)
	ensure(t, h.store, alice)

	_, err := h.engine.Start(ctx, alice, KindIdea)
	require.NoError(t, err)
	feed(t, h.engine, alice, "Title", "Desc")

	out := feed(t, h.engine, alice, "urgent")
	assert.Equal(t, StateAwaitingPriority, out.State)
	reprompt := h.sender.last(t)
	assert.Contains(t, reprompt.Text, prompts[promptKey{KindIdea, StateAwaitingPriority}])
	assert.Equal(t, models.PriorityLabels(), reprompt.Keyboard)

	state, ok := h.engine.State(1, KindIdea)
	require.True(t, ok)
	assert.Equal(t, StateAwaitingPriority, state)

	ideas, err := h.store.AllIdeas(ctx)
	require.NoError(t, err)
	assert.Empty(t, ideas)

	out = feed(t, h.engine, alice, "Low")
	assert.Equal(t, StateCommitted, out.State)
}

func TestIdeaFlow_NotificationFailureDoesNotAffectCommit(t *testing.T) {
	s := newTestStore(t)
	sender := &recordingSender{failFor: map[int64]bool{groupChatID: true}}
	e := NewEngine(s, notify.NewDispatcher(sender, groupChatID, nil), sender, nil)
	ctx := context.Background()
	alice := user(1)
	ensure(t, s, alice)

	_, err := e.Start(ctx, alice, KindIdea)
	require.NoError(t, err)
	out := feed(t, e, alice, "Title", "Desc", "Medium")
	assert.Equal(t, StateCommitted, out.State)

	karma, err := s.KarmaOf(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 10, karma)
	assert.Contains(t, sender.last(t).Text, "recorded")
}

func TestIdeaFlow_StorageFailureAborts(t *testing.T) {
	sender := &recordingSender{}
	n := &countingNotifier{}
	e := NewEngine(&failingStore{err: errors.New("disk I/O error")}, n, sender, nil)
	ctx := context.Background()
	alice := user(1)

	_, err := e.Start(ctx, alice, KindIdea)
	require.NoError(t, err)
	feed(t, e, alice, "Title", "Desc")

	out, handled, err := e.Handle(ctx, say(alice, "High"))
	require.Error(t, err)
	assert.True(t, handled)
	assert.Contains(t, err.Error(), "disk I/O error")
	assert.Equal(t, StateFailed, out.State)

	assert.Equal(t, msgFailed, sender.last(t).Text)
	assert.Empty(t, n.ideas, "nothing is announced for a failed commit")
	assert.False(t, e.Active(1))
}

func TestIdeaFlow_NotifierGetsAuthorMention(t *testing.T) {
	s := newTestStore(t)
	sender := &recordingSender{}
	n := &countingNotifier{}
	e := NewEngine(s, n, sender, nil)
	ctx := context.Background()
	bob := chat.Inbound{UserID: 2, ChatID: 2, FirstName: "Bob"}
	ensure(t, s, bob)

	_, err := e.Start(ctx, bob, KindIdea)
	require.NoError(t, err)
	feed(t, e, bob, "T", "D", "Low")

	require.Len(t, n.ideas, 1)
	assert.Equal(t, "Bob", n.authors[0])
	assert.Equal(t, int64(2), n.ideas[0].AuthorID)
}

// ---------------------------------------------------------------------------
// Task flow
// ---------------------------------------------------------------------------

func TestTaskFlow_InvalidAssigneeKeepsFields(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := user(1)

	_, err := h.engine.Start(ctx, alice, KindTask)
	require.NoError(t, err)
	feed(t, h.engine, alice, "Write docs", "README and examples")

	out := feed(t, h.engine, alice, "not-a-number")
	assert.Equal(t, StateAwaitingAssignee, out.State)
	assert.Contains(t, h.sender.last(t).Text, invalidHints[StateAwaitingAssignee])

	out = feed(t, h.engine, alice, "999")
	assert.Equal(t, StateAwaitingDueDate, out.State)

	out = feed(t, h.engine, alice, "next week")
	assert.Equal(t, StateAwaitingDueDate, out.State)

	out = feed(t, h.engine, alice, "2024-12-31")
	assert.Equal(t, StateCommitted, out.State)

	tasks, err := h.store.TasksFor(ctx, 999)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "Write docs", tasks[0].Title)
	assert.Equal(t, "README and examples", tasks[0].Description)
	assert.Equal(t, "2024-12-31", tasks[0].DueDate)
	assert.Equal(t, models.TaskStatusToDo, tasks[0].Status)
	assert.Equal(t, int64(1), tasks[0].CreatorID)

	assert.Empty(t, h.sender.to(groupChatID), "tasks are not announced")
	assert.Contains(t, h.sender.last(t).Text, "Task created")
}

// ---------------------------------------------------------------------------
// Cancellation and restart
// ---------------------------------------------------------------------------

func TestCancel_FromEveryState(t *testing.T) {
	inputs := map[Kind][]string{
		KindIdea: {"Title", "Desc"},
		KindTask: {"Title", "Desc", "42"},
	}
	for _, kind := range Kinds {
		for n := 0; n <= len(inputs[kind]); n++ {
			t.Run(fmt.Sprintf("%s/after_%d_inputs", kind, n), func(t *testing.T) {
				h := newHarness(t)
				ctx := context.Background()
				alice := user(1)
				ensure(t, h.store, alice)

				_, err := h.engine.Start(ctx, alice, kind)
				require.NoError(t, err)
				if n > 0 {
					feed(t, h.engine, alice, inputs[kind][:n]...)
				}

				outs, handled, err := h.engine.Cancel(ctx, say(alice, "/cancel"))
				require.NoError(t, err)
				require.True(t, handled)
				require.Len(t, outs, 1)
				assert.Equal(t, StateCancelled, outs[0].State)
				assert.Equal(t, msgCancelled, h.sender.last(t).Text)

				st, err := h.store.Stats(ctx)
				require.NoError(t, err)
				assert.Zero(t, st.Ideas)
				assert.Zero(t, st.Tasks)
				assert.Zero(t, st.TotalKarma)
				assert.False(t, h.engine.Active(1))
			})
		}
	}
}

func TestCancel_NothingActive(t *testing.T) {
	h := newHarness(t)

	outs, handled, err := h.engine.Cancel(context.Background(), user(1))
	require.NoError(t, err)
	assert.False(t, handled)
	assert.Empty(t, outs)
	assert.Empty(t, h.sender.replies)
}

func TestStart_SameKindResetsDraft(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := user(1)
	ensure(t, h.store, alice)

	first, err := h.engine.Start(ctx, alice, KindIdea)
	require.NoError(t, err)
	feed(t, h.engine, alice, "Old title", "Old desc")

	second, err := h.engine.Start(ctx, alice, KindIdea)
	require.NoError(t, err)
	assert.NotEqual(t, first.FlowID, second.FlowID)

	state, ok := h.engine.State(1, KindIdea)
	require.True(t, ok)
	assert.Equal(t, StateAwaitingTitle, state)

	feed(t, h.engine, alice, "New title", "New desc", "Medium")
	ideas, err := h.store.AllIdeas(ctx)
	require.NoError(t, err)
	require.Len(t, ideas, 1)
	assert.Equal(t, "New title", ideas[0].Title)
	assert.Equal(t, "New desc", ideas[0].Description)
}

func TestHandle_RoutesToMostRecentFlow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := user(1)

	_, err := h.engine.Start(ctx, alice, KindIdea)
	require.NoError(t, err)
	_, err = h.engine.Start(ctx, alice, KindTask)
	require.NoError(t, err)

	out := feed(t, h.engine, alice, "Task title")
	assert.Equal(t, KindTask, out.Kind)

	ideaState, ok := h.engine.State(1, KindIdea)
	require.True(t, ok)
	assert.Equal(t, StateAwaitingTitle, ideaState)

	outs, _, err := h.engine.Cancel(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, outs, 2)
}

func TestStart_UnknownKind(t *testing.T) {
	h := newHarness(t)

	_, err := h.engine.Start(context.Background(), user(1), Kind("poll"))
	assert.Error(t, err)
}

// ---------------------------------------------------------------------------
// Concurrency
// ---------------------------------------------------------------------------

func TestConcurrentUsers_IndependentFlows(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	const users = 8
	for i := int64(1); i <= users; i++ {
		ensure(t, h.store, user(i))
	}

	var wg sync.WaitGroup
	errs := make(chan error, users)
	for i := int64(1); i <= users; i++ {
		wg.Add(1)
		go func(in chat.Inbound) {
			defer wg.Done()
			if _, err := h.engine.Start(ctx, in, KindIdea); err != nil {
				errs <- err
				return
			}
			for _, text := range []string{fmt.Sprintf("idea of %d", in.UserID), "desc", "High"} {
				if _, _, err := h.engine.Handle(ctx, say(in, text)); err != nil {
					errs <- err
					return
				}
			}
		}(user(i))
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	ideas, err := h.store.AllIdeas(ctx)
	require.NoError(t, err)
	assert.Len(t, ideas, users)
	for i := int64(1); i <= users; i++ {
		karma, err := h.store.KarmaOf(ctx, i)
		require.NoError(t, err)
		assert.Equal(t, 10, karma, "user %d", i)
	}
}

// ---------------------------------------------------------------------------
// Expiry
// ---------------------------------------------------------------------------

func newClockedHarness(t *testing.T, ttl time.Duration) (*harness, *manualClock) {
	t.Helper()
	s := newTestStore(t)
	sender := &recordingSender{}
	clock := &manualClock{now: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)}
	d := notify.NewDispatcher(sender, groupChatID, nil)
	e := NewEngine(s, d, sender, nil, WithTTL(ttl), WithClock(clock.Now))
	return &harness{engine: e, store: s, sender: sender}, clock
}

func TestExpiry_IdleFlowIsDropped(t *testing.T) {
	h, clock := newClockedHarness(t, 10*time.Minute)
	ctx := context.Background()
	alice := user(1)
	ensure(t, h.store, alice)

	_, err := h.engine.Start(ctx, alice, KindIdea)
	require.NoError(t, err)

	clock.Advance(5 * time.Minute)
	feed(t, h.engine, alice, "Title")

	// Activity refreshed the flow, so 9 more idle minutes keep it.
	clock.Advance(9 * time.Minute)
	state, ok := h.engine.State(1, KindIdea)
	require.True(t, ok)
	assert.Equal(t, StateAwaitingDescription, state)

	clock.Advance(2 * time.Minute)
	assert.False(t, h.engine.Active(1))

	_, handled, err := h.engine.Handle(ctx, say(alice, "Desc"))
	require.NoError(t, err)
	assert.False(t, handled)

	ideas, err := h.store.AllIdeas(ctx)
	require.NoError(t, err)
	assert.Empty(t, ideas)
}

func TestExpiry_StartSweepsAbandonedFlows(t *testing.T) {
	h, clock := newClockedHarness(t, 10*time.Minute)
	ctx := context.Background()

	_, err := h.engine.Start(ctx, user(1), KindIdea)
	require.NoError(t, err)
	_, err = h.engine.Start(ctx, user(2), KindTask)
	require.NoError(t, err)

	clock.Advance(11 * time.Minute)
	_, err = h.engine.Start(ctx, user(3), KindIdea)
	require.NoError(t, err)

	h.engine.mu.Lock()
	n := len(h.engine.sessions)
	h.engine.mu.Unlock()
	assert.Equal(t, 1, n, "only the new flow stays registered")
}

func TestExpiry_CancelIgnoresExpiredFlow(t *testing.T) {
	h, clock := newClockedHarness(t, time.Minute)
	ctx := context.Background()

	_, err := h.engine.Start(ctx, user(1), KindIdea)
	require.NoError(t, err)
	clock.Advance(2 * time.Minute)

	outs, handled, err := h.engine.Cancel(ctx, user(1))
	require.NoError(t, err)
	assert.False(t, handled)
	assert.Empty(t, outs)
}

func TestExpiry_ZeroTTLKeepsFlows(t *testing.T) {
	h, clock := newClockedHarness(t, 0)
	ctx := context.Background()

	_, err := h.engine.Start(ctx, user(1), KindIdea)
	require.NoError(t, err)
	clock.Advance(24 * time.Hour)

	assert.True(t, h.engine.Active(1))
}

// ---------------------------------------------------------------------------
// Abort
// ---------------------------------------------------------------------------

func TestAbort_FailsEveryActiveFlow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := user(1)

	_, err := h.engine.Start(ctx, alice, KindIdea)
	require.NoError(t, err)
	_, err = h.engine.Start(ctx, alice, KindTask)
	require.NoError(t, err)

	outs, aborted := h.engine.Abort(ctx, alice, errors.New("disk I/O error"))
	require.True(t, aborted)
	require.Len(t, outs, 2)
	for _, out := range outs {
		assert.Equal(t, StateFailed, out.State)
	}
	assert.False(t, h.engine.Active(1))

	last := h.sender.last(t)
	assert.Equal(t, msgFailed, last.Text)
	assert.True(t, last.RemoveKeyboard)
}

func TestAbort_NothingActive(t *testing.T) {
	h := newHarness(t)

	outs, aborted := h.engine.Abort(context.Background(), user(1), errors.New("boom"))
	assert.False(t, aborted)
	assert.Empty(t, outs)
	assert.Empty(t, h.sender.replies)
}
