package undo

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushPop_LIFO(t *testing.T) {
	s := NewStacks()

	s.Push("run-1", "plan_persisted", json.RawMessage(`{"plan_id":1}`))
	s.Push("run-1", "tasks_scheduled", json.RawMessage(`{"count":3}`))

	entry, ok := s.Pop("run-1")
	require.True(t, ok)
	assert.Equal(t, "tasks_scheduled", entry.OpKind)
	assert.Equal(t, 1, entry.Seq)

	entry, ok = s.Pop("run-1")
	require.True(t, ok)
	assert.Equal(t, "plan_persisted", entry.OpKind)
	assert.Equal(t, 0, entry.Seq)

	_, ok = s.Pop("run-1")
	assert.False(t, ok)
}

func TestPop_EmptyIsNotAnError(t *testing.T) {
	s := NewStacks()
	_, ok := s.Pop("never-seen")
	assert.False(t, ok)
}

func TestPeek_DoesNotRemove(t *testing.T) {
	s := NewStacks()
	s.Push("run-1", "plan_persisted", nil)

	entry, ok := s.Peek("run-1")
	require.True(t, ok)
	assert.Equal(t, "plan_persisted", entry.OpKind)
	assert.Equal(t, 1, s.Len("run-1"))

	_, ok = s.Peek("other-run")
	assert.False(t, ok)
}

func TestStacks_PerRunIsolation(t *testing.T) {
	s := NewStacks()
	s.Push("run-a", "op-a", nil)
	s.Push("run-b", "op-b", nil)

	entry, ok := s.Pop("run-a")
	require.True(t, ok)
	assert.Equal(t, "op-a", entry.OpKind)
	assert.Equal(t, 1, s.Len("run-b"))
}

func TestDrop(t *testing.T) {
	s := NewStacks()
	s.Push("run-1", "op", nil)
	s.Drop("run-1")
	assert.Equal(t, 0, s.Len("run-1"))
}
