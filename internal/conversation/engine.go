// Package conversation runs the per-user multi-step dialogs that collect
// ideas and tasks.
package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/joescharf/teambot/internal/chat"
	"github.com/joescharf/teambot/internal/models"
)

// Store is the persistence the engine commits through.
type Store interface {
	RecordIdea(ctx context.Context, idea *models.Idea) error
	RecordTask(ctx context.Context, task *models.Task) error
}

// Notifier receives committed ideas. Implementations must not block for long
// and must handle their own failures.
type Notifier interface {
	IdeaSubmitted(ctx context.Context, idea *models.Idea, author string)
}

// Outcome describes where a flow stands after an engine call.
type Outcome struct {
	FlowID   string
	Kind     Kind
	State    State
	RecordID int64 // set when State is StateCommitted
}

// session is one flow instance. Its draft lives only as long as the session
// is registered with the engine.
type session struct {
	mu sync.Mutex

	id     string
	userID int64
	kind   Kind
	state  State
	draft  Draft
	seq    uint64
	chatID int64

	lastSeen time.Time // guarded by Engine.mu
}

type sessionKey struct {
	userID int64
	kind   Kind
}

// Engine owns every active flow. Flows of different users are independent;
// each user has at most one flow per kind.
type Engine struct {
	store    Store
	notifier Notifier
	sender   chat.Sender
	log      *slog.Logger

	ttl time.Duration
	now func() time.Time

	mu       sync.Mutex
	sessions map[sessionKey]*session
	seq      uint64
}

// DefaultFlowTTL is how long a flow may sit idle before it is dropped.
const DefaultFlowTTL = 10 * time.Minute

// Option configures an Engine.
type Option func(*Engine)

// WithTTL sets the idle time after which a flow expires. Zero or less keeps
// flows until they finish.
func WithTTL(d time.Duration) Option {
	return func(e *Engine) { e.ttl = d }
}

// WithClock replaces time.Now for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an Engine. All dependencies are required except logger.
func NewEngine(store Store, notifier Notifier, sender chat.Sender, logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		store:    store,
		notifier: notifier,
		sender:   sender,
		log:      logger,
		ttl:      DefaultFlowTTL,
		now:      time.Now,
		sessions: make(map[sessionKey]*session),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start begins a new flow of the given kind for the sender of in. An active
// flow of the same kind for that user is discarded along with its draft.
func (e *Engine) Start(ctx context.Context, in chat.Inbound, kind Kind) (Outcome, error) {
	if _, ok := transitions[kind]; !ok {
		return Outcome{}, fmt.Errorf("unknown flow kind %q", kind)
	}

	e.mu.Lock()
	e.sweepLocked()
	e.seq++
	s := &session{
		id:       ulid.Make().String(),
		userID:   in.UserID,
		kind:     kind,
		state:    initialState,
		seq:      e.seq,
		chatID:   in.ChatID,
		lastSeen: e.now(),
	}
	key := sessionKey{in.UserID, kind}
	if old, ok := e.sessions[key]; ok {
		e.log.Info("flow replaced", "flow_id", old.id, "user_id", in.UserID, "kind", kind)
	}
	e.sessions[key] = s
	e.mu.Unlock()

	e.log.Info("flow started", "flow_id", s.id, "user_id", in.UserID, "kind", kind)

	out := Outcome{FlowID: s.id, Kind: kind, State: initialState}
	if err := e.sender.Send(ctx, promptReply(in.ChatID, kind, initialState)); err != nil {
		return out, fmt.Errorf("send prompt: %w", err)
	}
	return out, nil
}

// Active reports whether the user has any flow in progress.
func (e *Engine) Active(userID int64) bool {
	return e.current(userID) != nil
}

// State returns the state of the user's flow of the given kind.
func (e *Engine) State(userID int64, kind Kind) (State, bool) {
	e.mu.Lock()
	s := e.liveLocked(sessionKey{userID, kind})
	e.mu.Unlock()
	if s == nil {
		return 0, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, true
}

// current returns the user's most recently started flow, or nil.
func (e *Engine) current(userID int64) *session {
	e.mu.Lock()
	defer e.mu.Unlock()
	var latest *session
	for _, kind := range Kinds {
		if s := e.liveLocked(sessionKey{userID, kind}); s != nil && (latest == nil || s.seq > latest.seq) {
			latest = s
		}
	}
	return latest
}

// expiredLocked reports whether s has been idle longer than the TTL.
// Callers hold e.mu.
func (e *Engine) expiredLocked(s *session) bool {
	return e.ttl > 0 && e.now().Sub(s.lastSeen) > e.ttl
}

// liveLocked returns the session for key, dropping it first if it has
// expired. Callers hold e.mu.
func (e *Engine) liveLocked(key sessionKey) *session {
	s, ok := e.sessions[key]
	if !ok {
		return nil
	}
	if e.expiredLocked(s) {
		e.dropExpiredLocked(key, s)
		return nil
	}
	return s
}

// sweepLocked drops every expired session. Callers hold e.mu.
func (e *Engine) sweepLocked() {
	if e.ttl <= 0 {
		return
	}
	for key, s := range e.sessions {
		if e.expiredLocked(s) {
			e.dropExpiredLocked(key, s)
		}
	}
}

func (e *Engine) dropExpiredLocked(key sessionKey, s *session) {
	delete(e.sessions, key)
	e.log.Info("flow expired", "flow_id", s.id, "user_id", s.userID, "kind", s.kind,
		"idle", e.now().Sub(s.lastSeen))
}

// touch records activity on s if it is still the live session for its key.
// Callers hold s.mu.
func (e *Engine) touch(s *session) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sessions[sessionKey{s.userID, s.kind}] != s {
		return false
	}
	s.lastSeen = e.now()
	return true
}

// registered reports whether s is still the live session for its key.
// Callers hold s.mu.
func (e *Engine) registered(s *session) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessions[sessionKey{s.userID, s.kind}] == s
}

// remove drops s from the engine if it is still the live session for its key
// and clears its draft. Callers hold s.mu.
func (e *Engine) remove(s *session) {
	e.mu.Lock()
	key := sessionKey{s.userID, s.kind}
	if e.sessions[key] == s {
		delete(e.sessions, key)
	}
	e.mu.Unlock()
	s.draft = Draft{}
}

// Handle feeds plain text to the user's current flow. It reports false when
// the user has no flow in progress.
func (e *Engine) Handle(ctx context.Context, in chat.Inbound) (Outcome, bool, error) {
	s := e.current(in.UserID)
	if s == nil {
		return Outcome{}, false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Replaced, expired or finished while we waited for the lock.
	if s.state.Terminal() || !e.touch(s) {
		return Outcome{}, false, nil
	}

	out := Outcome{FlowID: s.id, Kind: s.kind, State: s.state}
	st, ok := transitions[s.kind][s.state]
	if !ok {
		return out, true, fmt.Errorf("flow %s: no transition from %s", s.id, s.state)
	}

	draft := s.draft
	if !st.accept(&draft, in.Text) {
		e.log.Debug("input rejected", "flow_id", s.id, "user_id", s.userID, "state", s.state)
		if err := e.sender.Send(ctx, repromptReply(in.ChatID, s.kind, s.state)); err != nil {
			return out, true, fmt.Errorf("send prompt: %w", err)
		}
		return out, true, nil
	}
	s.draft = draft

	if st.next == StateCommitted {
		out, err := e.commit(ctx, s, in)
		return out, true, err
	}

	s.state = st.next
	out.State = s.state
	e.log.Debug("flow advanced", "flow_id", s.id, "user_id", s.userID, "state", s.state)
	if err := e.sender.Send(ctx, promptReply(in.ChatID, s.kind, s.state)); err != nil {
		return out, true, fmt.Errorf("send prompt: %w", err)
	}
	return out, true, nil
}

// commit persists the draft, announces ideas, disposes of the session and
// acknowledges. A storage error aborts the flow with nothing persisted.
// Callers hold s.mu.
func (e *Engine) commit(ctx context.Context, s *session, in chat.Inbound) (Outcome, error) {
	out := Outcome{FlowID: s.id, Kind: s.kind, State: s.state}
	start := time.Now()

	var recordID int64
	switch s.kind {
	case KindIdea:
		idea := &models.Idea{
			Title:       s.draft.Title,
			Description: s.draft.Description,
			AuthorID:    s.userID,
			Priority:    s.draft.Priority,
		}
		if err := e.store.RecordIdea(ctx, idea); err != nil {
			return e.fail(ctx, s, in, err)
		}
		recordID = idea.ID
		e.notifier.IdeaSubmitted(ctx, idea, in.Mention())
	case KindTask:
		task := &models.Task{
			Title:       s.draft.Title,
			Description: s.draft.Description,
			AssigneeID:  s.draft.AssigneeID,
			CreatorID:   s.userID,
			Status:      models.TaskStatusToDo,
			DueDate:     s.draft.DueDate,
		}
		if err := e.store.RecordTask(ctx, task); err != nil {
			return e.fail(ctx, s, in, err)
		}
		recordID = task.ID
	}

	e.remove(s)
	s.state = StateCommitted
	out.State = StateCommitted
	out.RecordID = recordID
	e.log.Info("flow committed", "flow_id", s.id, "user_id", s.userID, "kind", s.kind,
		"record_id", recordID, "duration", time.Since(start))

	if err := e.sender.Send(ctx, chat.Reply{ChatID: in.ChatID, Text: committedText(s.kind, recordID), RemoveKeyboard: true}); err != nil {
		return out, fmt.Errorf("send acknowledgment: %w", err)
	}
	return out, nil
}

// fail ends the flow after a storage error. Callers hold s.mu.
func (e *Engine) fail(ctx context.Context, s *session, in chat.Inbound, cause error) (Outcome, error) {
	e.remove(s)
	s.state = StateFailed
	out := Outcome{FlowID: s.id, Kind: s.kind, State: StateFailed}

	err := fmt.Errorf("flow %s: commit %s: %w", s.id, s.kind, cause)
	if sendErr := e.sender.Send(ctx, chat.Reply{ChatID: in.ChatID, Text: msgFailed, RemoveKeyboard: true}); sendErr != nil {
		e.log.Error("send failure notice", "flow_id", s.id, "error", sendErr)
	}
	return out, err
}

// Cancel ends every flow the user has in progress without persisting
// anything. It reports false when there was nothing to cancel.
func (e *Engine) Cancel(ctx context.Context, in chat.Inbound) ([]Outcome, bool, error) {
	outs := e.endAll(in.UserID, StateCancelled)
	if len(outs) == 0 {
		return nil, false, nil
	}
	for _, out := range outs {
		e.log.Info("flow cancelled", "flow_id", out.FlowID, "user_id", in.UserID, "kind", out.Kind)
	}

	if err := e.sender.Send(ctx, chat.Reply{ChatID: in.ChatID, Text: msgCancelled, RemoveKeyboard: true}); err != nil {
		return outs, true, fmt.Errorf("send acknowledgment: %w", err)
	}
	return outs, true, nil
}

// Abort ends every flow the user has in progress in the Failed state after a
// storage error outside the engine, and tells the user. It reports false
// when there was nothing to abort.
func (e *Engine) Abort(ctx context.Context, in chat.Inbound, cause error) ([]Outcome, bool) {
	outs := e.endAll(in.UserID, StateFailed)
	if len(outs) == 0 {
		return nil, false
	}
	for _, out := range outs {
		e.log.Error("flow aborted", "flow_id", out.FlowID, "user_id", in.UserID, "kind", out.Kind, "error", cause)
	}

	if err := e.sender.Send(ctx, chat.Reply{ChatID: in.ChatID, Text: msgFailed, RemoveKeyboard: true}); err != nil {
		e.log.Error("send failure notice", "user_id", in.UserID, "error", err)
	}
	return outs, true
}

// endAll moves every live flow of the user to the terminal state and
// disposes of it.
func (e *Engine) endAll(userID int64, terminal State) []Outcome {
	e.mu.Lock()
	var active []*session
	for _, kind := range Kinds {
		if s := e.liveLocked(sessionKey{userID, kind}); s != nil {
			active = append(active, s)
		}
	}
	e.mu.Unlock()

	var outs []Outcome
	for _, s := range active {
		s.mu.Lock()
		if !s.state.Terminal() && e.registered(s) {
			e.remove(s)
			s.state = terminal
			outs = append(outs, Outcome{FlowID: s.id, Kind: s.kind, State: terminal})
		}
		s.mu.Unlock()
	}
	return outs
}
