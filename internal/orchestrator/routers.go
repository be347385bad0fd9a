package orchestrator

import (
	"github.com/MoeMoeen/smart-personal-planner-sub001/internal/graph"
)

// Router keys. Each keyed return is bound to a target node in buildGraph.
const (
	keyConfirm = "confirm"
	keyRevise  = "revise"
	keyClarify = "clarify"
	keyOK      = "ok"
	keyRetry   = "retry"
	keyClean   = "clean"
	keyMinor   = "minor"
	keySevere  = "severe"
)

// routeAfterConfirm returns the router for a confirmation gate. A revise
// decision is consumed here so the re-entered gate suspends again once
// the upstream node has produced a new draft.
func routeAfterConfirm(node string) graph.RouterFunc {
	return func(s *graph.State) string {
		switch gateDecision(s, node) {
		case graph.DecisionConfirm:
			return keyConfirm
		case graph.DecisionRevise:
			setGateDecision(s, node, graph.DecisionPending)
			return keyRevise
		default:
			return keyClarify
		}
	}
}

// routeAfterTaskGeneration retries generation when it failed twice in a
// row. The engine's iteration bound keeps the retry loop finite.
func routeAfterTaskGeneration(s *graph.State) string {
	if s.Validation == graph.ValidationSevere {
		return keyRetry
	}
	return keyOK
}

// routeAfterValidation sends severe findings back to task generation and
// everything else forward. An unset key routes as clean.
func routeAfterValidation(s *graph.State) string {
	switch s.Validation {
	case graph.ValidationSevere:
		return keySevere
	case graph.ValidationMinor:
		return keyMinor
	default:
		return keyClean
	}
}

// routeAfterClarification returns to the gate whose answer needed to be
// restated.
func routeAfterClarification(s *graph.State) string {
	return s.ClarifyReturn
}
