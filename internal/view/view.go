// Package view holds the in-memory view state: the selected peer, the
// message list, loading and error flags, and the counterpart-typing flag.
// State is owned by an explicit, injectable Store and updated through pure
// reducer functions; there are no package-level singletons.
package view

import (
	"sync"

	"github.com/chatline-app/chatline/internal/model"
)

// State is the immutable view snapshot. Reducers return a new State and
// never mutate their input.
type State struct {
	Peer       *model.Peer     `json:"peer,omitempty"`
	Messages   []model.Message `json:"messages"`
	Loading    bool            `json:"loading"`
	Err        string          `json:"error,omitempty"`
	PeerTyping bool            `json:"peer_typing"`
}

// Reducer transforms one state into the next.
type Reducer func(State) State

// SetMessages replaces the message list wholesale.
func SetMessages(msgs []model.Message) Reducer {
	return func(s State) State {
		s.Messages = append([]model.Message(nil), msgs...)
		return s
	}
}

// AddMessage appends one message.
func AddMessage(m model.Message) Reducer {
	return func(s State) State {
		next := make([]model.Message, 0, len(s.Messages)+1)
		next = append(next, s.Messages...)
		next = append(next, m)
		s.Messages = next
		return s
	}
}

// SetPeer selects a new peer and clears the thread.
func SetPeer(p *model.Peer) Reducer {
	return func(s State) State {
		s.Peer = p
		s.Messages = nil
		s.PeerTyping = false
		s.Err = ""
		return s
	}
}

// SetLoading sets the loading flag.
func SetLoading(v bool) Reducer {
	return func(s State) State {
		s.Loading = v
		return s
	}
}

// SetError sets the user-visible error message.
func SetError(msg string) Reducer {
	return func(s State) State {
		s.Err = msg
		return s
	}
}

// SetPeerTyping sets the counterpart-typing flag.
func SetPeerTyping(v bool) Reducer {
	return func(s State) State {
		s.PeerTyping = v
		return s
	}
}

// Store owns a State and applies reducers to it. Safe for concurrent use.
type Store struct {
	mu    sync.RWMutex
	state State
}

// NewStore creates an empty view state store.
func NewStore() *Store {
	return &Store{}
}

// Apply runs reducers against the current state in order.
func (s *Store) Apply(reducers ...Reducer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range reducers {
		s.state = r(s.state)
	}
}

// State returns a snapshot of the current state. The message slice is
// copied so callers cannot alias store internals.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := s.state
	snap.Messages = append([]model.Message(nil), s.state.Messages...)
	return snap
}
