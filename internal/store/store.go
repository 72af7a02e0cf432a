// Package store holds the client's in-memory view of a Devika project:
// the message log, the latest agent state snapshot, token usage, the
// sending flag, connectivity, and the active selection. It is a pure
// state container with no I/O; persistence and network access live in
// other packages.
//
// Every field has exactly one authoritative writer class and all
// mutations are last-write-wins. Subscribers are notified synchronously
// after each mutation, outside the store lock.
package store

import "sync"

// Store is the client-side session state. It is safe for concurrent use.
type Store struct {
	mu         sync.RWMutex
	messages   []Message
	agentState *AgentState
	tokenUsage int
	sending    bool
	connected  bool
	selection  Selection

	subMu   sync.Mutex
	subs    map[int]func(Change)
	nextSub int
}

// New creates an empty store.
func New() *Store {
	return &Store{subs: make(map[int]func(Change))}
}

// Subscribe registers an observer that is called after every mutation.
// The returned function removes the subscription.
func (s *Store) Subscribe(fn func(Change)) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn

	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs, id)
	}
}

// notify delivers a change to all subscribers. Called without the state
// lock held so observers can read the store.
func (s *Store) notify(kind ChangeKind) {
	s.subMu.Lock()
	fns := make([]func(Change), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(Change{Kind: kind})
	}
}

// AppendMessage appends one message to the log. Streaming appends never
// reorder existing entries.
func (s *Store) AppendMessage(m Message) {
	s.mu.Lock()
	s.messages = append(s.messages, m)
	s.mu.Unlock()
	s.notify(ChangeMessages)
}

// ReplaceMessages replaces the whole message log. A fetch replace is
// authoritative and discards prior in-memory entries.
func (s *Store) ReplaceMessages(msgs []Message) {
	s.mu.Lock()
	s.messages = append([]Message(nil), msgs...)
	s.mu.Unlock()
	s.notify(ChangeMessages)
}

// Messages returns a copy of the message log.
func (s *Store) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Message(nil), s.messages...)
}

// SetAgentState replaces the agent state snapshot wholesale. A nil
// state is allowed and means "no snapshot known".
func (s *Store) SetAgentState(state *AgentState) {
	s.mu.Lock()
	if state == nil {
		s.agentState = nil
	} else {
		copied := *state
		s.agentState = &copied
	}
	s.mu.Unlock()
	s.notify(ChangeAgentState)
}

// AgentState returns a copy of the latest snapshot, or nil if none has
// been received.
func (s *Store) AgentState() *AgentState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.agentState == nil {
		return nil
	}
	copied := *s.agentState
	return &copied
}

// SetTokenUsage replaces the token counter. The server is the source of
// truth for the running total; the client never accumulates.
func (s *Store) SetTokenUsage(n int) {
	s.mu.Lock()
	s.tokenUsage = n
	s.mu.Unlock()
	s.notify(ChangeTokenUsage)
}

// TokenUsage returns the last reported token usage.
func (s *Store) TokenUsage() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokenUsage
}

// SetSending sets the "agent invocation outstanding" flag. Setting the
// flag to its current value is a no-op and produces no notification,
// which makes the dual-source clear (terminal agent-state or error
// advisory) idempotent.
func (s *Store) SetSending(v bool) {
	s.mu.Lock()
	if s.sending == v {
		s.mu.Unlock()
		return
	}
	s.sending = v
	s.mu.Unlock()
	s.notify(ChangeSending)
}

// Sending reports whether an agent invocation is outstanding.
func (s *Store) Sending() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sending
}

// SetConnected updates the connectivity flag.
func (s *Store) SetConnected(v bool) {
	s.mu.Lock()
	if s.connected == v {
		s.mu.Unlock()
		return
	}
	s.connected = v
	s.mu.Unlock()
	s.notify(ChangeConnected)
}

// Connected reports whether the backend is currently reachable.
func (s *Store) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// SetSelection replaces the active project/model/search-engine triple.
func (s *Store) SetSelection(sel Selection) {
	s.mu.Lock()
	s.selection = sel
	s.mu.Unlock()
	s.notify(ChangeSelection)
}

// Selection returns the active selection.
func (s *Store) Selection() Selection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selection
}
