// Package undo provides per-run reversible operation logs. The stack never
// interprets payloads; whichever component pushed an entry is responsible
// for applying its inverse after a pop.
package undo

import (
	"encoding/json"
	"sync"
)

// Entry is one reversible operation recorded during a workflow run.
type Entry struct {
	RunID   string          `json:"run_id"`
	Seq     int             `json:"seq"`
	OpKind  string          `json:"op_kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Stacks holds independent per-run undo stacks. Safe for concurrent use;
// runs never coordinate with each other.
type Stacks struct {
	mu    sync.Mutex
	byRun map[string][]Entry
}

// NewStacks creates an empty stack set.
func NewStacks() *Stacks {
	return &Stacks{byRun: make(map[string][]Entry)}
}

// Push appends an entry to the run's stack and returns it with its
// sequence number assigned.
func (s *Stacks) Push(runID, opKind string, payload json.RawMessage) Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	stack := s.byRun[runID]
	entry := Entry{
		RunID:   runID,
		Seq:     len(stack),
		OpKind:  opKind,
		Payload: payload,
	}
	s.byRun[runID] = append(stack, entry)
	return entry
}

// Pop removes and returns the most recent entry for the run.
// ok is false when there is nothing to undo; that is an expected steady
// state, not an error.
func (s *Stacks) Pop(runID string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stack := s.byRun[runID]
	if len(stack) == 0 {
		return Entry{}, false
	}
	entry := stack[len(stack)-1]
	s.byRun[runID] = stack[:len(stack)-1]
	return entry, true
}

// Peek returns the most recent entry without removing it.
func (s *Stacks) Peek(runID string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stack := s.byRun[runID]
	if len(stack) == 0 {
		return Entry{}, false
	}
	return stack[len(stack)-1], true
}

// Len returns the entry count for the run.
func (s *Stacks) Len(runID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byRun[runID])
}

// Drop discards the run's stack entirely. Used when a run's entries are no
// longer reachable by any caller.
func (s *Stacks) Drop(runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byRun, runID)
}
