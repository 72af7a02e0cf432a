package notify

import "sync"

// Monologue suppresses repeated emission of an identical
// internal-reasoning value. It is a two-state machine: idle until the
// first truthy value is observed, then tracking the last value shown.
//
// An empty value never fires and never resets the comparison, so a
// sequence like "plan", "", "plan" produces exactly one notification.
type Monologue struct {
	mu       sync.Mutex
	tracking bool
	lastSeen string
	emit     func(value string)
}

// NewMonologue creates a deduplicator that calls emit for each new
// distinct monologue value.
func NewMonologue(emit func(value string)) *Monologue {
	return &Monologue{emit: emit}
}

// Seed initializes the comparison state from the monologue value
// already present at subscription time, without emitting. This keeps a
// value that was shown before a reconnect from re-firing immediately
// after Attach. An empty value leaves the machine idle.
func (m *Monologue) Seed(current string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current == "" {
		m.tracking = false
		m.lastSeen = ""
		return
	}
	m.tracking = true
	m.lastSeen = current
}

// Observe evaluates one agent-state replacement.
func (m *Monologue) Observe(value string) {
	m.mu.Lock()

	if value == "" {
		m.mu.Unlock()
		return
	}
	if m.tracking && value == m.lastSeen {
		m.mu.Unlock()
		return
	}
	m.tracking = true
	m.lastSeen = value
	emit := m.emit
	m.mu.Unlock()

	if emit != nil {
		emit(value)
	}
}
