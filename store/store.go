// Package store owns a conversation: the current chatmodel.State, the one
// active run feeding it, and the observers that see every new state.
package store

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/nikhilthomas300/myCompanion/chatmodel"
	"github.com/nikhilthomas300/myCompanion/client"
	"github.com/nikhilthomas300/myCompanion/internal/logging"
	"github.com/nikhilthomas300/myCompanion/protocol"
)

var (
	// ErrEmptyMessage is returned by Send for blank input.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrBusy is returned by Send while a run is loading.
	ErrBusy = errors.New("a run is already in progress")
)

// Runner opens streaming runs. *client.Client implements it.
type Runner interface {
	Run(ctx context.Context, input protocol.RunAgentInput) (*client.Run, error)
}

// Observer is notified with a snapshot after every state change.
type Observer interface {
	OnStateChange(state chatmodel.State)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(chatmodel.State)

// OnStateChange calls f.
func (f ObserverFunc) OnStateChange(state chatmodel.State) { f(state) }

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store's logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = logging.OrNop(l) }
}

// WithThreadID starts the store on an existing thread.
func WithThreadID(id string) Option {
	return func(s *Store) { s.state.ThreadID = id }
}

// Store is the single writer of a conversation's state. At most one run is
// active at a time.
type Store struct {
	runner     Runner
	reconciler *chatmodel.Reconciler
	logger     *slog.Logger
	subs       *broadcaster[chatmodel.State]
	cancel     context.CancelFunc
	observers  []Observer
	state      chatmodel.State
	generation uint64
	mu         sync.RWMutex
	publishMu  sync.Mutex
}

// New creates a store with an empty conversation on a fresh thread.
func New(runner Runner, opts ...Option) *Store {
	s := &Store{
		runner: runner,
		logger: logging.Nop(),
		state:  chatmodel.NewState(newThreadID()),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.reconciler = chatmodel.NewReconciler(s.logger)
	s.subs = newBroadcaster[chatmodel.State](s.logger)
	return s
}

func newThreadID() string  { return "thread_" + uuid.NewString() }
func newRunID() string     { return "run_" + uuid.NewString() }
func newMessageID() string { return "user_" + uuid.NewString() }

// State returns a deep copy of the current state.
func (s *Store) State() chatmodel.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// Send appends a user message and streams the agent's answer into the
// state, publishing after every event. It blocks until the run ends.
//
// Blank text returns ErrEmptyMessage and a send while loading returns
// ErrBusy; neither changes the state. A failed request or stream is
// recorded in the state's Error and returned. Stopping the run, resetting
// the store or canceling ctx ends Send with a nil error.
func (s *Store) Send(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		gen   uint64
		input protocol.RunAgentInput
		busy  bool
	)
	s.update(func(st *chatmodel.State) bool {
		if st.Loading {
			busy = true
			return false
		}
		if s.cancel != nil {
			s.cancel()
		}
		s.generation++
		gen = s.generation
		s.cancel = cancel

		next := *st
		next.Messages = append(append([]chatmodel.Message(nil), st.Messages...), chatmodel.Message{
			ID:      newMessageID(),
			Role:    chatmodel.RoleUser,
			Content: text,
		})
		next.RunID = newRunID()
		next.Loading = true
		next.Error = ""
		next.ToolInvocations = nil
		next.Artifacts = nil
		*st = next

		input = protocol.NewRunAgentInput(next.ThreadID, next.RunID, next.WireMessages(), next.AgentState)
		return true
	})
	if busy {
		return ErrBusy
	}

	logger := s.logger.With("threadId", input.ThreadID, "runId", input.RunID)
	logger.Debug("starting run")

	run, err := s.runner.Run(runCtx, input)
	if err != nil {
		return s.finish(runCtx, gen, err, logger)
	}

	buf := chatmodel.NewRunBuffers()
	for ev := range run.Events() {
		applied := s.update(func(st *chatmodel.State) bool {
			if gen != s.generation {
				return false
			}
			*st = s.reconciler.Apply(*st, buf, ev)
			return true
		})
		if !applied {
			run.Cancel()
			logger.Debug("run superseded, discarding remaining events")
			return nil
		}
	}
	if n := run.Dropped(); n > 0 {
		logger.Warn("skipped malformed events", "count", n)
	}
	return s.finish(runCtx, gen, run.Err(), logger)
}

// finish settles a run that ended on its own, failed or was canceled.
func (s *Store) finish(runCtx context.Context, gen uint64, err error, logger *slog.Logger) error {
	canceled := runCtx.Err() != nil
	if canceled {
		err = nil
	}
	s.update(func(st *chatmodel.State) bool {
		if gen != s.generation {
			return false
		}
		s.cancel = nil
		if !st.Loading && err == nil {
			return false
		}
		st.Loading = false
		if err != nil {
			st.Error = err.Error()
		}
		return true
	})

	switch {
	case err != nil:
		logger.Warn("run failed", "error", err)
	case canceled:
		logger.Debug("run canceled")
	default:
		logger.Debug("run finished")
	}
	return err
}

// StopStreaming cancels the active run, if any, and clears loading. State
// already reconciled is kept and no error is recorded.
func (s *Store) StopStreaming() {
	s.update(func(st *chatmodel.State) bool {
		s.cancelRunLocked()
		st.Loading = false
		return true
	})
}

// Reset cancels the active run and starts an empty conversation on a new
// thread.
func (s *Store) Reset() {
	s.update(func(st *chatmodel.State) bool {
		s.cancelRunLocked()
		*st = chatmodel.NewState(newThreadID())
		return true
	})
}

// Close cancels the active run and closes every subscription channel.
func (s *Store) Close() {
	s.mu.Lock()
	s.cancelRunLocked()
	s.mu.Unlock()
	s.subs.close()
}

func (s *Store) cancelRunLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.generation++
}

// AddObserver registers an observer. Observers are called synchronously,
// in publish order, from the goroutine that changed the state; they must
// not call Send, StopStreaming or Reset.
func (s *Store) AddObserver(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

// Subscribe returns a channel receiving every published state. A slow
// subscriber loses its oldest pending states, never the newest.
func (s *Store) Subscribe(bufSize int) (int, <-chan chatmodel.State) {
	return s.subs.subscribe(bufSize)
}

// Unsubscribe removes a subscription and closes its channel.
func (s *Store) Unsubscribe(id int) {
	s.subs.unsubscribe(id)
}

// update applies fn under the state lock and, if fn reports a change,
// publishes the new state before any later update can publish.
func (s *Store) update(fn func(*chatmodel.State) bool) bool {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	s.mu.Lock()
	if !fn(&s.state) {
		s.mu.Unlock()
		return false
	}
	snapshot := s.state.Clone()
	obs := s.observers
	s.mu.Unlock()

	for _, o := range obs {
		o.OnStateChange(snapshot)
	}
	s.subs.broadcast(snapshot)
	return true
}
