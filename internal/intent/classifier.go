package intent

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/MoeMoeen/smart-personal-planner-sub001/internal/ledger"
	"github.com/MoeMoeen/smart-personal-planner-sub001/internal/llm"
)

// Classifier maps free-form user text to a registry label.
// Implementations must degrade to a safe default (AskQuestion) rather
// than fail: turn handling continues even when the backend is down.
type Classifier interface {
	Classify(ctx context.Context, userText string, history []ledger.Message) Intent
}

const classifierSystemPrompt = `You classify a user's message for a personal planning assistant.
Respond with exactly one label from this list and nothing else:
create_new_plan, revise_plan, adaptive_replan, edit_existing_plan,
update_task, add_task, delete_task, complete_task, reschedule_task,
view_plan, view_tasks, cancel_plan, approve_plan, reject_plan,
refine_plan, ask_question, clarification, greeting, smalltalk`

// LLMClassifier classifies via a chat completion backend.
type LLMClassifier struct {
	client llm.Client
	logger *zap.Logger
}

// NewLLMClassifier creates a classifier backed by the given client.
func NewLLMClassifier(client llm.Client, logger *zap.Logger) *LLMClassifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMClassifier{client: client, logger: logger}
}

// Classify implements Classifier. Classification failure or an
// out-of-registry answer maps to AskQuestion, never to an error.
func (c *LLMClassifier) Classify(ctx context.Context, userText string, history []ledger.Message) Intent {
	var prompt strings.Builder
	if len(history) > 0 {
		prompt.WriteString("Recent conversation:\n")
		for _, m := range history {
			prompt.WriteString(string(m.Kind))
			prompt.WriteString(": ")
			prompt.WriteString(m.Content)
			prompt.WriteString("\n")
		}
		prompt.WriteString("\n")
	}
	prompt.WriteString("Message: ")
	prompt.WriteString(userText)

	answer, err := c.client.Complete(ctx, classifierSystemPrompt, prompt.String())
	if err != nil {
		c.logger.Warn("intent classification failed, using safe default",
			zap.Error(err))
		return AskQuestion
	}

	label := strings.TrimSpace(strings.ToLower(answer))
	if !IsValid(label) {
		c.logger.Warn("classifier returned out-of-registry label, using safe default",
			zap.String("label", label))
		return AskQuestion
	}

	return Intent(label)
}

// StaticClassifier returns a fixed label per exact text match, falling
// back to a default. Used in tests and offline mode.
type StaticClassifier struct {
	Mapping  map[string]Intent
	Fallback Intent
}

// Classify implements Classifier.
func (c *StaticClassifier) Classify(_ context.Context, userText string, _ []ledger.Message) Intent {
	if label, ok := c.Mapping[userText]; ok {
		return label
	}
	if c.Fallback != "" {
		return c.Fallback
	}
	return AskQuestion
}
