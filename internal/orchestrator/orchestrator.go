package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/MoeMoeen/smart-personal-planner-sub001/internal/config"
	"github.com/MoeMoeen/smart-personal-planner-sub001/internal/feedback"
	"github.com/MoeMoeen/smart-personal-planner-sub001/internal/generate"
	"github.com/MoeMoeen/smart-personal-planner-sub001/internal/graph"
	"github.com/MoeMoeen/smart-personal-planner-sub001/internal/intent"
	"github.com/MoeMoeen/smart-personal-planner-sub001/internal/ledger"
	"github.com/MoeMoeen/smart-personal-planner-sub001/internal/llm"
	"github.com/MoeMoeen/smart-personal-planner-sub001/internal/plan"
	"github.com/MoeMoeen/smart-personal-planner-sub001/internal/store"
	"github.com/MoeMoeen/smart-personal-planner-sub001/internal/undo"
)

const instrumentationName = "github.com/MoeMoeen/smart-personal-planner-sub001/internal/orchestrator"

var (
	// ErrEmptyMessage indicates a turn with no user text.
	ErrEmptyMessage = errors.New("empty message")

	// ErrUndoDisabled indicates Rollback was called with the undo
	// feature flag off.
	ErrUndoDisabled = errors.New("undo is disabled")
)

// Options carries the orchestrator's dependencies.
type Options struct {
	Store      *store.Store
	Ledger     *ledger.Ledger
	Classifier intent.Classifier
	Generator  generate.Generator
	Feedback   feedback.Service
	Chat       llm.Client // optional; conversational replies fall back to canned text
	Logger     *zap.Logger
	Planner    config.PlannerConfig
	Features   config.FeatureFlags
}

// Orchestrator owns the workflow graph and the per-turn lifecycle.
type Orchestrator struct {
	store      *store.Store
	ledger     *ledger.Ledger
	classifier intent.Classifier
	generator  generate.Generator
	feedback   feedback.Service
	chat       llm.Client
	logger     *zap.Logger
	planner    config.PlannerConfig
	features   config.FeatureFlags

	engine *graph.Engine
	undo   *undo.Stacks

	mu        sync.Mutex
	userLocks map[int64]*sync.Mutex

	tracer      trace.Tracer
	meter       metric.Meter
	turnCounter metric.Int64Counter
}

// New builds the workflow graph and returns an orchestrator over it.
func New(opts Options) (*Orchestrator, error) {
	if opts.Store == nil {
		return nil, errors.New("store is required")
	}
	if opts.Ledger == nil {
		return nil, errors.New("ledger is required")
	}
	if opts.Classifier == nil {
		return nil, errors.New("classifier is required")
	}
	if opts.Generator == nil {
		return nil, errors.New("generator is required")
	}
	if opts.Feedback == nil {
		return nil, errors.New("feedback service is required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Planner.ReviseTargetConfirmA == "" {
		opts.Planner.ReviseTargetConfirmA = NodePlanOutline
	}
	if opts.Planner.ReviseTargetConfirmB == "" {
		opts.Planner.ReviseTargetConfirmB = NodeTaskGeneration
	}

	o := &Orchestrator{
		store:      opts.Store,
		ledger:     opts.Ledger,
		classifier: opts.Classifier,
		generator:  opts.Generator,
		feedback:   opts.Feedback,
		chat:       opts.Chat,
		logger:     opts.Logger,
		planner:    opts.Planner,
		features:   opts.Features,
		undo:       undo.NewStacks(),
		userLocks:  make(map[int64]*sync.Mutex),
		tracer:     otel.Tracer(instrumentationName),
		meter:      otel.Meter(instrumentationName),
	}

	g, err := o.buildGraph()
	if err != nil {
		return nil, fmt.Errorf("build workflow graph: %w", err)
	}
	o.engine, err = graph.NewEngine(g, graph.Config{MaxIterations: opts.Planner.MaxIterations}, opts.Logger)
	if err != nil {
		return nil, err
	}

	o.turnCounter, err = o.meter.Int64Counter(
		"plannerd.orchestrator.turns_total",
		metric.WithDescription("Total user turns handled"),
		metric.WithUnit("{turn}"),
	)
	if err != nil {
		opts.Logger.Warn("failed to create turn counter", zap.Error(err))
	}

	return o, nil
}

// buildGraph wires the node and edge tables. Registration order matters:
// it defines which targets count as redirections for the iteration bound,
// so clarification goes last.
func (o *Orchestrator) buildGraph() (*graph.Graph, error) {
	return graph.NewBuilder().
		AddNode(NodeIntentRecognition, o.nodeIntentRecognition).
		AddNode(NodeStrategy, o.nodeStrategy).
		AddNode(NodePlanOutline, o.nodePlanOutline).
		AddNode(NodeConfirmA, o.nodeConfirmA).
		AddNode(NodeTaskGeneration, o.nodeTaskGeneration).
		AddNode(NodeWorldModel, o.nodeWorldModel).
		AddNode(NodeCalendarization, o.nodeCalendarization).
		AddNode(NodeValidation, o.nodeValidation).
		AddNode(NodeConfirmB, o.nodeConfirmB).
		AddNode(NodePersistence, o.nodePersistence).
		AddNode(NodeClarification, o.nodeClarification).
		AddEdge(NodeIntentRecognition, NodeStrategy).
		AddEdge(NodeStrategy, NodePlanOutline).
		AddEdge(NodePlanOutline, NodeConfirmA).
		AddConditionalEdges(NodeConfirmA, routeAfterConfirm(NodeConfirmA), map[string]string{
			keyConfirm: NodeTaskGeneration,
			keyRevise:  o.planner.ReviseTargetConfirmA,
			keyClarify: NodeClarification,
		}).
		AddConditionalEdges(NodeTaskGeneration, routeAfterTaskGeneration, map[string]string{
			keyOK:    NodeWorldModel,
			keyRetry: NodeTaskGeneration,
		}).
		AddEdge(NodeWorldModel, NodeCalendarization).
		AddEdge(NodeCalendarization, NodeValidation).
		AddConditionalEdges(NodeValidation, routeAfterValidation, map[string]string{
			keyClean:  NodeConfirmB,
			keyMinor:  NodeConfirmB,
			keySevere: NodeTaskGeneration,
		}).
		AddConditionalEdges(NodeConfirmB, routeAfterConfirm(NodeConfirmB), map[string]string{
			keyConfirm: NodePersistence,
			keyRevise:  o.planner.ReviseTargetConfirmB,
			keyClarify: NodeClarification,
		}).
		AddEdge(NodePersistence, graph.End).
		AddConditionalEdges(NodeClarification, routeAfterClarification, map[string]string{
			NodeConfirmA: NodeConfirmA,
			NodeConfirmB: NodeConfirmB,
		}).
		Build()
}

// userLock returns the serialization lock for one user's runs.
func (o *Orchestrator) userLock(userID int64) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	l, ok := o.userLocks[userID]
	if !ok {
		l = &sync.Mutex{}
		o.userLocks[userID] = l
	}
	return l
}

// undoPayload is the recorded inverse input for a persisted plan.
type undoPayload struct {
	PlanID int64 `json:"plan_id"`
}

// recordPlanCreated pushes an undo entry for a freshly persisted plan.
func (o *Orchestrator) recordPlanCreated(runID string, planID int64) {
	if !o.features.Undo {
		return
	}
	payload, err := json.Marshal(undoPayload{PlanID: planID})
	if err != nil {
		return
	}
	o.undo.Push(runID, opPlanCreated, payload)
}

const opPlanCreated = "plan_created"

// Rollback pops the run's undo stack and applies the inverse of every
// recorded operation, most recent first. It returns the number of
// operations reversed; zero with a nil error means there was nothing to
// undo.
func (o *Orchestrator) Rollback(ctx context.Context, runID string) (int, error) {
	if !o.features.Undo {
		return 0, ErrUndoDisabled
	}

	reversed := 0
	for {
		entry, ok := o.undo.Pop(runID)
		if !ok {
			return reversed, nil
		}
		if err := o.applyInverse(ctx, entry); err != nil {
			// Put the entry back so a later retry sees it.
			o.undo.Push(runID, entry.OpKind, entry.Payload)
			return reversed, fmt.Errorf("undo %s (seq %d): %w", entry.OpKind, entry.Seq, err)
		}
		reversed++
	}
}

func (o *Orchestrator) applyInverse(ctx context.Context, entry undo.Entry) error {
	switch entry.OpKind {
	case opPlanCreated:
		var p undoPayload
		if err := json.Unmarshal(entry.Payload, &p); err != nil {
			return err
		}
		err := o.store.UpdatePlanStatus(ctx, p.PlanID, plan.StatusCancelled)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	default:
		return fmt.Errorf("unknown undo operation %q", entry.OpKind)
	}
}
