package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop(_ context.Context, _ *State) (Outcome, error) {
	return Outcome{}, nil
}

func TestBuild_Valid(t *testing.T) {
	g, err := NewBuilder().
		AddNode("a", noop).
		AddNode("b", noop).
		AddEdge("a", "b").
		AddEdge("b", End).
		Build()
	require.NoError(t, err)
	assert.True(t, g.Has("a"))
	assert.False(t, g.Has("missing"))
	assert.False(t, g.Has(End))
}

func TestBuild_Errors(t *testing.T) {
	tests := []struct {
		name  string
		build func() (*Graph, error)
	}{
		{"no nodes", func() (*Graph, error) {
			return NewBuilder().Build()
		}},
		{"duplicate node", func() (*Graph, error) {
			return NewBuilder().AddNode("a", noop).AddNode("a", noop).AddEdge("a", End).Build()
		}},
		{"nil handler", func() (*Graph, error) {
			return NewBuilder().AddNode("a", nil).AddEdge("a", End).Build()
		}},
		{"reserved name", func() (*Graph, error) {
			return NewBuilder().AddNode(End, noop).Build()
		}},
		{"edge to unregistered target", func() (*Graph, error) {
			return NewBuilder().AddNode("a", noop).AddEdge("a", "ghost").Build()
		}},
		{"edge from unregistered node", func() (*Graph, error) {
			return NewBuilder().AddNode("a", noop).AddEdge("a", End).AddEdge("ghost", "a").Build()
		}},
		{"node without outgoing edge", func() (*Graph, error) {
			return NewBuilder().AddNode("a", noop).Build()
		}},
		{"both edge kinds", func() (*Graph, error) {
			return NewBuilder().
				AddNode("a", noop).
				AddEdge("a", End).
				AddConditionalEdges("a", func(*State) string { return "x" }, map[string]string{"x": End}).
				Build()
		}},
		{"router target unregistered", func() (*Graph, error) {
			return NewBuilder().
				AddNode("a", noop).
				AddConditionalEdges("a", func(*State) string { return "x" }, map[string]string{"x": "ghost"}).
				Build()
		}},
		{"nil router", func() (*Graph, error) {
			return NewBuilder().AddNode("a", noop).AddConditionalEdges("a", nil, map[string]string{"x": End}).Build()
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.build()
			assert.Error(t, err)
		})
	}
}

func TestStateSnapshotRoundtrip(t *testing.T) {
	s := NewState("run-1", 7, "create_new_plan", "learn to juggle")
	s.ConfirmA = DecisionConfirm
	s.Validation = ValidationMinor
	s.Iterations = 2
	s.Warnings = []string{"tight schedule"}

	data, err := s.Marshal()
	require.NoError(t, err)

	restored, err := UnmarshalState(data)
	require.NoError(t, err)
	assert.Equal(t, s, restored)

	_, err = UnmarshalState([]byte("not json"))
	assert.Error(t, err)
}
