// Package intent defines the fixed registry of conversation intents and
// the classifier boundary that maps free-form user text onto it.
package intent

import (
	"errors"
	"fmt"
)

// Intent is one label from the fixed registry.
type Intent string

const (
	CreateNewPlan    Intent = "create_new_plan"
	RevisePlan       Intent = "revise_plan"
	AdaptiveReplan   Intent = "adaptive_replan"
	EditExistingPlan Intent = "edit_existing_plan"
	UpdateTask       Intent = "update_task"
	AddTask          Intent = "add_task"
	DeleteTask       Intent = "delete_task"
	CompleteTask     Intent = "complete_task"
	RescheduleTask   Intent = "reschedule_task"
	ViewPlan         Intent = "view_plan"
	ViewTasks        Intent = "view_tasks"
	CancelPlan       Intent = "cancel_plan"
	ApprovePlan      Intent = "approve_plan"
	RejectPlan       Intent = "reject_plan"
	RefinePlan       Intent = "refine_plan"
	AskQuestion      Intent = "ask_question"
	Clarification    Intent = "clarification"
	Greeting         Intent = "greeting"
	Smalltalk        Intent = "smalltalk"
)

// ErrUnsupported indicates a label outside the registry.
var ErrUnsupported = errors.New("unsupported intent")

// registry is the fixed label set. Never mutated at runtime.
var registry = map[Intent]struct{}{
	CreateNewPlan:    {},
	RevisePlan:       {},
	AdaptiveReplan:   {},
	EditExistingPlan: {},
	UpdateTask:       {},
	AddTask:          {},
	DeleteTask:       {},
	CompleteTask:     {},
	RescheduleTask:   {},
	ViewPlan:         {},
	ViewTasks:        {},
	CancelPlan:       {},
	ApprovePlan:      {},
	RejectPlan:       {},
	RefinePlan:       {},
	AskQuestion:      {},
	Clarification:    {},
	Greeting:         {},
	Smalltalk:        {},
}

// All returns every registered label.
func All() []Intent {
	out := make([]Intent, 0, len(registry))
	for label := range registry {
		out = append(out, label)
	}
	return out
}

// IsValid reports whether the label is in the registry.
func IsValid(label string) bool {
	_, ok := registry[Intent(label)]
	return ok
}

// Parse validates a label against the registry.
func Parse(label string) (Intent, error) {
	if !IsValid(label) {
		return "", fmt.Errorf("%w: %q", ErrUnsupported, label)
	}
	return Intent(label), nil
}

// TargetsExistingPlan reports whether the intent addresses a plan that
// already exists, which lets the orchestrator bypass discovery nodes.
func TargetsExistingPlan(label Intent) bool {
	switch label {
	case EditExistingPlan, UpdateTask, AddTask, DeleteTask, CompleteTask, RescheduleTask:
		return true
	}
	return false
}
