// Package authstate holds the session-scoped authentication state shared by
// the login and signup forms: a loading flag and the signed-in user.
package authstate

import (
	"context"
	"errors"
	"sync"

	"github.com/jobportal/authweb/internal/userapi"
)

// ErrSessionNotFound is returned by backends when a session has no state yet
var ErrSessionNotFound = errors.New("auth state not found")

// State is the shared auth state of one browser session
type State struct {
	Loading bool          `json:"loading"`
	User    *userapi.User `json:"user"`
}

// SignedIn reports whether a user identity is present
func (s State) SignedIn() bool {
	return s.User != nil
}

// Backend persists State per session
type Backend interface {
	Load(ctx context.Context, sessionID string) (State, error)
	Save(ctx context.Context, sessionID string, st State) error
	Delete(ctx context.Context, sessionID string) error
}

// Store dispatches state transitions for a single session.
// Writes go straight to the backend with last-write-wins semantics; two
// concurrent submissions in the same session can overwrite each other.
type Store struct {
	sessionID string
	backend   Backend

	mu        sync.Mutex
	state     State
	nextID    int
	listeners map[int]func(State)
}

// Open loads the state of sessionID. A session without stored state starts
// signed out and not loading.
func Open(ctx context.Context, backend Backend, sessionID string) (*Store, error) {
	st, err := backend.Load(ctx, sessionID)
	if err != nil && !errors.Is(err, ErrSessionNotFound) {
		return nil, err
	}
	return &Store{
		sessionID: sessionID,
		backend:   backend,
		state:     st,
		listeners: make(map[int]func(State)),
	}, nil
}

// SessionID returns the session the store is bound to
func (s *Store) SessionID() string {
	return s.sessionID
}

// Snapshot returns the current state
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetLoading sets the loading flag
func (s *Store) SetLoading(ctx context.Context, loading bool) error {
	return s.apply(ctx, func(st *State) { st.Loading = loading })
}

// SetUser stores the signed-in user
func (s *Store) SetUser(ctx context.Context, u *userapi.User) error {
	return s.apply(ctx, func(st *State) { st.User = u })
}

// Clear signs the session out and removes its persisted state
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.state = State{}
	st := s.state
	listeners := s.snapshotListeners()
	s.mu.Unlock()

	err := s.backend.Delete(ctx, s.sessionID)
	notify(listeners, st)
	return err
}

// Subscribe registers fn to run after every transition.
// The returned function removes the subscription.
func (s *Store) Subscribe(fn func(State)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Store) apply(ctx context.Context, mutate func(*State)) error {
	s.mu.Lock()
	mutate(&s.state)
	st := s.state
	listeners := s.snapshotListeners()
	s.mu.Unlock()

	// In-process state is updated even if the write fails.
	err := s.backend.Save(ctx, s.sessionID, st)
	notify(listeners, st)
	return err
}

// snapshotListeners must be called with mu held
func (s *Store) snapshotListeners() []func(State) {
	out := make([]func(State), 0, len(s.listeners))
	for i := 0; i < s.nextID; i++ {
		if fn, ok := s.listeners[i]; ok {
			out = append(out, fn)
		}
	}
	return out
}

func notify(listeners []func(State), st State) {
	for _, fn := range listeners {
		fn(st)
	}
}
