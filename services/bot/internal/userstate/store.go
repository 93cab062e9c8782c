package userstate

import (
	"sync"

	"github.com/example/anime-bot/services/bot/internal/domain"
)

// Store maps conversations to their State.
//
// Two levels of locking: Turn serializes whole event handlers of one
// conversation, while the data mutex guards the map itself for the short
// reads and writes issued from inside a turn and from persistence.
type Store struct {
	mu     sync.Mutex
	states map[domain.ConversationID]*State

	turnsMu sync.Mutex
	turns   map[domain.ConversationID]*turn
}

type turn struct {
	mu   sync.Mutex
	refs int
}

func NewStore() *Store {
	return &Store{
		states: map[domain.ConversationID]*State{},
		turns:  map[domain.ConversationID]*turn{},
	}
}

// Turn blocks until conv is free and returns the release func.
func (s *Store) Turn(conv domain.ConversationID) (release func()) {
	s.turnsMu.Lock()
	t := s.turns[conv]
	if t == nil {
		t = &turn{}
		s.turns[conv] = t
	}
	t.refs++
	s.turnsMu.Unlock()

	t.mu.Lock()
	return func() {
		t.mu.Unlock()
		s.turnsMu.Lock()
		t.refs--
		if t.refs == 0 {
			delete(s.turns, conv)
		}
		s.turnsMu.Unlock()
	}
}

// Get returns a copy of the conversation's state; a fresh state if none exists.
func (s *Store) Get(conv domain.ConversationID) *State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.states[conv]; ok {
		return st.Clone()
	}
	return New()
}

// Update applies fn to the conversation's state, creating it lazily.
func (s *Store) Update(conv domain.ConversationID, fn func(*State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[conv]
	if !ok {
		st = New()
		s.states[conv] = st
	}
	fn(st)
}

// PurgeSlug removes every reference to slug from every conversation in one
// pass. Returns the number of conversations that changed.
func (s *Store) PurgeSlug(slug string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, st := range s.states {
		if st.forget(slug) {
			n++
		}
	}
	return n
}

// RewriteProgress replaces the progress of every conversation that points at
// (slug, from) with to, or drops that progress when to is not positive.
// Returns the number of conversations that changed.
func (s *Store) RewriteProgress(slug string, from, to int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, st := range s.states {
		if ep, ok := st.Progress[slug]; ok && ep == from {
			if to > 0 {
				st.Progress[slug] = to
			} else {
				delete(st.Progress, slug)
			}
			n++
		}
	}
	return n
}

// Snapshot deep-copies every state, for persistence and export.
func (s *Store) Snapshot() map[domain.ConversationID]*State {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[domain.ConversationID]*State, len(s.states))
	for k, v := range s.states {
		out[k] = v.Clone()
	}
	return out
}

// Replace installs loaded states, dropping the current ones.
func (s *Store) Replace(states map[domain.ConversationID]*State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = make(map[domain.ConversationID]*State, len(states))
	for k, v := range states {
		s.states[k] = v
	}
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.states)
}
