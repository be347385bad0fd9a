package ledger

import (
	"sort"
	"sync"
	"time"
)

// DefaultMaxMessages is the per-user history cap when none is configured.
const DefaultMaxMessages = 50

// Kind tags a message for admission filtering.
type Kind string

const (
	// KindHuman is a user turn. Always admissible.
	KindHuman Kind = "human"
	// KindAssistantFinal is an assistant turn with no outstanding tool or
	// action invocation. Admissible.
	KindAssistantFinal Kind = "assistant_final"
	// KindAssistantPending is an assistant turn that still has a tool or
	// action invocation in flight. Never stored: admitting it would feed
	// malformed context into a future model call.
	KindAssistantPending Kind = "assistant_with_pending_action"
)

// Message is a single conversation entry.
type Message struct {
	Kind      Kind      `json:"kind"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// admissible reports whether a message may enter stored history.
func (m Message) admissible() bool {
	return m.Kind == KindHuman || m.Kind == KindAssistantFinal
}

// Ledger holds bounded per-user conversation histories.
// Thread-safe for concurrent access from multiple workflow runs; the
// append/evict sequence is atomic per call.
type Ledger struct {
	mu          sync.RWMutex
	histories   map[int64][]Message
	maxMessages int
}

// New creates a ledger. maxMessages <= 0 uses DefaultMaxMessages.
func New(maxMessages int) *Ledger {
	if maxMessages <= 0 {
		maxMessages = DefaultMaxMessages
	}
	return &Ledger{
		histories:   make(map[int64][]Message),
		maxMessages: maxMessages,
	}
}

// Append admits the filtered subset of msgs into the user's history and
// returns the admitted count. Messages with a pending action are dropped
// silently. If the resulting history exceeds the cap, the oldest surplus
// entries are evicted so the length equals the cap exactly.
func (l *Ledger) Append(userID int64, msgs []Message) int {
	admitted := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if !m.admissible() {
			continue
		}
		if m.Timestamp.IsZero() {
			m.Timestamp = time.Now()
		}
		admitted = append(admitted, m)
	}
	if len(admitted) == 0 {
		return 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	history, ok := l.histories[userID]
	if !ok {
		history = make([]Message, 0, l.maxMessages)
	}
	history = append(history, admitted...)

	if excess := len(history) - l.maxMessages; excess > 0 {
		history = history[excess:]
	}
	l.histories[userID] = history

	return len(admitted)
}

// Recent returns the last k entries in chronological order. k <= 0 returns
// the entire stored history. Unknown users yield an empty slice, never an
// error.
func (l *Ledger) Recent(userID int64, k int) []Message {
	l.mu.RLock()
	defer l.mu.RUnlock()

	history := l.histories[userID]
	if k > 0 && k < len(history) {
		history = history[len(history)-k:]
	}

	out := make([]Message, len(history))
	copy(out, history)
	return out
}

// Clear removes all history for the user. Clearing an unknown or empty
// user is a no-op.
func (l *Ledger) Clear(userID int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.histories, userID)
}

// Count returns the stored message count for the user.
func (l *Ledger) Count(userID int64) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.histories[userID])
}

// KnownUsers returns the IDs with stored history, sorted ascending.
func (l *Ledger) KnownUsers() []int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	users := make([]int64, 0, len(l.histories))
	for id := range l.histories {
		users = append(users, id)
	}
	sort.Slice(users, func(i, j int) bool { return users[i] < users[j] })
	return users
}
