// Package generate provides the plan/task generation boundary. The
// orchestrator's plan-outline and task-generation nodes call into it; the
// LLM-backed implementation produces structured drafts from goal text and
// bounded conversation context.
package generate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/MoeMoeen/smart-personal-planner-sub001/internal/ledger"
	"github.com/MoeMoeen/smart-personal-planner-sub001/internal/llm"
	"github.com/MoeMoeen/smart-personal-planner-sub001/internal/plan"
)

// ErrGeneration indicates the backend failed to produce a usable draft.
// Callers retry at most once before escalating.
var ErrGeneration = errors.New("plan generation failed")

// Request carries everything the generator needs for one draft.
type Request struct {
	// GoalDescription is the user's stated goal.
	GoalDescription string

	// History is bounded conversation context from the ledger.
	History []ledger.Message

	// SuggestedChanges carries refinement feedback from a prior draft.
	SuggestedChanges string

	// Outline is an earlier outline draft to expand into full tasks.
	Outline *plan.Draft
}

// Generator produces structured plan drafts.
type Generator interface {
	// Outline produces a high-level draft: title, summary, and milestone
	// tasks without schedules.
	Outline(ctx context.Context, req Request) (*plan.Draft, error)

	// Generate produces the full task breakdown for a goal, optionally
	// expanding a prior outline.
	Generate(ctx context.Context, req Request) (*plan.Draft, error)
}

const outlineSystemPrompt = `You are a planning assistant. Produce a short plan outline
for the user's goal as JSON: {"title": "...", "summary": "...",
"tasks": [{"title": "...", "notes": "...", "duration_minutes": 60}]}.
Keep it to 3-5 milestone tasks. Respond with JSON only.`

const generateSystemPrompt = `You are a planning assistant. Produce a complete task
breakdown for the user's goal as JSON: {"title": "...", "summary": "...",
"tasks": [{"title": "...", "notes": "...", "duration_minutes": 60}]}.
Every task needs a positive duration_minutes. Respond with JSON only.`

// LLMGenerator generates drafts via a chat completion backend.
type LLMGenerator struct {
	client llm.Client
	logger *zap.Logger
}

// NewLLMGenerator creates a generator backed by the given client.
func NewLLMGenerator(client llm.Client, logger *zap.Logger) (*LLMGenerator, error) {
	if client == nil {
		return nil, errors.New("llm client is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMGenerator{client: client, logger: logger}, nil
}

// Outline implements Generator.
func (g *LLMGenerator) Outline(ctx context.Context, req Request) (*plan.Draft, error) {
	return g.complete(ctx, outlineSystemPrompt, req)
}

// Generate implements Generator.
func (g *LLMGenerator) Generate(ctx context.Context, req Request) (*plan.Draft, error) {
	return g.complete(ctx, generateSystemPrompt, req)
}

func (g *LLMGenerator) complete(ctx context.Context, system string, req Request) (*plan.Draft, error) {
	if req.GoalDescription == "" {
		return nil, fmt.Errorf("%w: empty goal description", ErrGeneration)
	}

	answer, err := g.client.Complete(ctx, system, buildPrompt(req))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
	}

	draft, err := parseDraft(answer)
	if err != nil {
		g.logger.Warn("generator returned unparseable draft", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
	}

	return draft, nil
}

// buildPrompt assembles the user prompt from goal, context, and feedback.
func buildPrompt(req Request) string {
	var b strings.Builder
	b.WriteString("Goal: ")
	b.WriteString(req.GoalDescription)
	b.WriteString("\n")

	if len(req.History) > 0 {
		b.WriteString("\nConversation so far:\n")
		for _, m := range req.History {
			b.WriteString(string(m.Kind))
			b.WriteString(": ")
			b.WriteString(m.Content)
			b.WriteString("\n")
		}
	}

	if req.Outline != nil {
		outline, err := json.Marshal(req.Outline)
		if err == nil {
			b.WriteString("\nAgreed outline to expand:\n")
			b.Write(outline)
			b.WriteString("\n")
		}
	}

	if req.SuggestedChanges != "" {
		b.WriteString("\nRequested changes: ")
		b.WriteString(req.SuggestedChanges)
		b.WriteString("\n")
	}

	return b.String()
}

// parseDraft decodes the model answer, tolerating fenced code blocks.
func parseDraft(answer string) (*plan.Draft, error) {
	cleaned := strings.TrimSpace(answer)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var draft plan.Draft
	if err := json.Unmarshal([]byte(cleaned), &draft); err != nil {
		return nil, fmt.Errorf("invalid draft JSON: %w", err)
	}
	if draft.Title == "" {
		return nil, errors.New("draft missing title")
	}
	if len(draft.Tasks) == 0 {
		return nil, errors.New("draft has no tasks")
	}
	return &draft, nil
}

// StaticGenerator returns canned drafts. Used in tests and offline mode.
type StaticGenerator struct {
	// OutlineDraft and FullDraft are returned by the respective calls.
	OutlineDraft *plan.Draft
	FullDraft    *plan.Draft

	// Err, when set, is returned by every call.
	Err error

	// FailuresBeforeSuccess makes the first N calls fail, then succeed.
	FailuresBeforeSuccess int

	calls int
}

// Outline implements Generator.
func (g *StaticGenerator) Outline(_ context.Context, req Request) (*plan.Draft, error) {
	if err := g.maybeFail(); err != nil {
		return nil, err
	}
	if g.OutlineDraft != nil {
		return cloneDraft(g.OutlineDraft), nil
	}
	return defaultDraft(req.GoalDescription), nil
}

// Generate implements Generator.
func (g *StaticGenerator) Generate(_ context.Context, req Request) (*plan.Draft, error) {
	if err := g.maybeFail(); err != nil {
		return nil, err
	}
	if g.FullDraft != nil {
		return cloneDraft(g.FullDraft), nil
	}
	return defaultDraft(req.GoalDescription), nil
}

func (g *StaticGenerator) maybeFail() error {
	g.calls++
	if g.Err != nil {
		return g.Err
	}
	if g.calls <= g.FailuresBeforeSuccess {
		return fmt.Errorf("%w: transient backend failure", ErrGeneration)
	}
	return nil
}

func defaultDraft(goal string) *plan.Draft {
	return &plan.Draft{
		Title:   goal,
		Summary: "Plan for: " + goal,
		Tasks: []plan.DraftTask{
			{Title: "Get started", DurationMinutes: 60},
			{Title: "Keep going", DurationMinutes: 60},
			{Title: "Wrap up", DurationMinutes: 30},
		},
	}
}

func cloneDraft(d *plan.Draft) *plan.Draft {
	cp := *d
	cp.Tasks = make([]plan.DraftTask, len(d.Tasks))
	copy(cp.Tasks, d.Tasks)
	return &cp
}
