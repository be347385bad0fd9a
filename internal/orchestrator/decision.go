package orchestrator

import (
	"context"
	"strings"

	"github.com/MoeMoeen/smart-personal-planner-sub001/internal/graph"
	"github.com/MoeMoeen/smart-personal-planner-sub001/internal/intent"
)

// Deterministic phrase tables tried before the classifier. Matching is
// case-insensitive on the trimmed message.
var (
	confirmPhrases = []string{
		"yes", "y", "yep", "yeah", "sure", "ok", "okay", "confirm", "confirmed",
		"approve", "approved", "go ahead", "sounds good", "looks good", "lgtm",
		"do it", "proceed",
	}
	revisePhrases = []string{
		"revise", "refine", "redo", "rework", "change", "tweak", "adjust",
		"not quite", "try again", "different",
	}
	cancelPhrases = []string{
		"cancel", "abort", "stop", "quit", "never mind", "nevermind",
		"forget it", "drop it",
	}
)

// matchDecision maps free text onto a gate decision without a model
// call. Cancel wins over revise so "no, cancel the changes" stops the
// run instead of editing it.
func matchDecision(text string) graph.Decision {
	t := strings.ToLower(strings.TrimSpace(text))
	t = strings.Trim(t, ".!?,")
	if t == "" {
		return graph.DecisionUnknown
	}

	for _, p := range confirmPhrases {
		if t == p {
			return graph.DecisionConfirm
		}
	}
	for _, p := range cancelPhrases {
		if t == p || strings.Contains(t, p) {
			return graph.DecisionCancel
		}
	}
	for _, p := range revisePhrases {
		if t == p || strings.Contains(t, p) {
			return graph.DecisionRevise
		}
	}
	for _, p := range confirmPhrases {
		if len(p) > 2 && strings.Contains(t, p) {
			return graph.DecisionConfirm
		}
	}
	return graph.DecisionUnknown
}

// parseDecision resolves a suspended run's inbound message into a gate
// decision: the phrase tables first, then the intent classifier as a
// fallback. An answer neither can place stays unknown and triggers a
// clarification re-prompt.
func (o *Orchestrator) parseDecision(ctx context.Context, userID int64, text string) graph.Decision {
	if d := matchDecision(text); d != graph.DecisionUnknown {
		return d
	}

	switch o.classifier.Classify(ctx, text, o.ledger.Recent(userID, historyWindow)) {
	case intent.ApprovePlan:
		return graph.DecisionConfirm
	case intent.RefinePlan, intent.RevisePlan:
		return graph.DecisionRevise
	case intent.CancelPlan, intent.RejectPlan:
		return graph.DecisionCancel
	default:
		return graph.DecisionUnknown
	}
}
