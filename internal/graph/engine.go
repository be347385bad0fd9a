package graph

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/MoeMoeen/smart-personal-planner-sub001/internal/graph"

// DefaultMaxIterations bounds router-triggered redirections per run.
const DefaultMaxIterations = 5

var (
	// ErrIterationLimit indicates the redirection ceiling was hit. The
	// run is terminal; the caller asks the user to restate the goal.
	ErrIterationLimit = errors.New("iteration limit exceeded")

	// ErrUnknownNode indicates a start or target node outside the graph.
	ErrUnknownNode = errors.New("unknown node")

	// ErrNoRoute indicates a router returned a key with no target.
	ErrNoRoute = errors.New("no route for key")
)

// StepError wraps a node failure with the node that produced it.
type StepError struct {
	Node string
	Err  error
}

// Error implements the error interface.
func (e *StepError) Error() string {
	return fmt.Sprintf("node %s failed: %v", e.Node, e.Err)
}

// Unwrap allows errors.Is and errors.As to reach the underlying error.
func (e *StepError) Unwrap() error {
	return e.Err
}

// Config tunes the engine.
type Config struct {
	// MaxIterations bounds router-triggered redirections (default 5).
	MaxIterations int
}

// RunResult reports how a walk ended.
type RunResult struct {
	// State is the final run state.
	State *State

	// Suspended is true when a node yielded awaiting user input.
	// SuspendedAt names that node; resuming restarts there.
	Suspended   bool
	SuspendedAt string

	// Prompt is the user-facing message from the last node.
	Prompt string
}

// Engine executes graph walks. One engine serves all runs; per-run state
// is confined to the State passed into Run.
type Engine struct {
	graph         *Graph
	maxIterations int
	logger        *zap.Logger

	tracer          trace.Tracer
	meter           metric.Meter
	redirectCounter metric.Int64Counter
}

// NewEngine creates an engine over a built graph.
func NewEngine(g *Graph, cfg Config, logger *zap.Logger) (*Engine, error) {
	if g == nil {
		return nil, errors.New("graph is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	maxIterations := cfg.MaxIterations
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}

	e := &Engine{
		graph:         g,
		maxIterations: maxIterations,
		logger:        logger,
		tracer:        otel.Tracer(instrumentationName),
		meter:         otel.Meter(instrumentationName),
	}

	var err error
	e.redirectCounter, err = e.meter.Int64Counter(
		"plannerd.graph.redirects_total",
		metric.WithDescription("Total router-triggered redirections to earlier nodes"),
		metric.WithUnit("{redirect}"),
	)
	if err != nil {
		logger.Warn("failed to create redirect counter", zap.Error(err))
	}

	return e, nil
}

// Run walks the graph from start until a node suspends, an edge reaches
// End, or the redirection ceiling is hit. The walk is strictly
// sequential; the state is never touched by two nodes at once.
func (e *Engine) Run(ctx context.Context, s *State, start string) (*RunResult, error) {
	if s == nil {
		return nil, errors.New("state is required")
	}
	if !e.graph.Has(start) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownNode, start)
	}

	ctx, span := e.tracer.Start(ctx, "graph.run",
		trace.WithAttributes(
			attribute.String("run_id", s.RunID),
			attribute.String("start", start),
		))
	defer span.End()

	current := start
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		fn := e.graph.nodes[current]
		outcome, err := fn(ctx, s)
		if err != nil {
			return nil, &StepError{Node: current, Err: err}
		}

		e.logger.Debug("node executed",
			zap.String("run_id", s.RunID),
			zap.String("node", current),
			zap.Bool("suspend", outcome.Suspend),
		)

		if outcome.Prompt != "" {
			s.Prompt = outcome.Prompt
		}
		if outcome.Suspend {
			return &RunResult{State: s, Suspended: true, SuspendedAt: current, Prompt: s.Prompt}, nil
		}
		if outcome.Halt {
			return &RunResult{State: s, Prompt: s.Prompt}, nil
		}

		next, redirected, err := e.next(current, s)
		if err != nil {
			return nil, err
		}
		if next == End {
			return &RunResult{State: s, Prompt: s.Prompt}, nil
		}

		if redirected {
			s.Iterations++
			if e.redirectCounter != nil {
				e.redirectCounter.Add(ctx, 1, metric.WithAttributes(
					attribute.String("from", current),
					attribute.String("to", next),
				))
			}
			if s.Iterations > e.maxIterations {
				e.logger.Warn("iteration limit exceeded",
					zap.String("run_id", s.RunID),
					zap.Int("iterations", s.Iterations),
				)
				return nil, fmt.Errorf("run %s after %d redirections: %w",
					s.RunID, s.Iterations, ErrIterationLimit)
			}
		}

		current = next
	}
}

// next resolves the successor of a node. redirected is true for a
// router-triggered re-entry of an earlier (or the same) node, which is
// what the iteration bound counts.
func (e *Engine) next(current string, s *State) (string, bool, error) {
	if c, ok := e.graph.conditionals[current]; ok {
		key := c.route(s)
		target, ok := c.targets[key]
		if !ok {
			return "", false, fmt.Errorf("%w: router %q returned %q", ErrNoRoute, current, key)
		}
		redirected := target != End && e.graph.order[target] <= e.graph.order[current]
		return target, redirected, nil
	}
	if target, ok := e.graph.edges[current]; ok {
		return target, false, nil
	}
	// Unreachable for a built graph.
	return "", false, fmt.Errorf("node %q has no outgoing edge", current)
}
