package orchestrator

import (
	"fmt"
	"strings"

	"github.com/MoeMoeen/smart-personal-planner-sub001/internal/graph"
	"github.com/MoeMoeen/smart-personal-planner-sub001/internal/plan"
)

const timeFormat = "Mon Jan 2 15:04"

func renderOutlinePrompt(s *graph.State) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Here's my outline for %q:\n\n", s.GoalDescription)
	if s.Strategy != "" {
		fmt.Fprintf(&b, "%s\n\n", s.Strategy)
	}
	if s.Draft != nil {
		fmt.Fprintf(&b, "%s\n", s.Draft.Title)
		for _, t := range s.Draft.Tasks {
			fmt.Fprintf(&b, "  - %s\n", t.Title)
		}
	}
	b.WriteString("\nShall I work this into a full schedule? (confirm / revise / cancel)")
	return b.String()
}

func renderSchedulePrompt(s *graph.State) string {
	var b strings.Builder
	if s.Draft != nil {
		fmt.Fprintf(&b, "Here's the full schedule for %q:\n\n", s.Draft.Title)
		for _, t := range s.Draft.Tasks {
			if t.StartAt != nil && t.EndAt != nil {
				fmt.Fprintf(&b, "  - %s (%s to %s)\n", t.Title, t.StartAt.Format(timeFormat), t.EndAt.Format(timeFormat))
			} else {
				fmt.Fprintf(&b, "  - %s\n", t.Title)
			}
		}
	}
	for _, w := range s.Warnings {
		fmt.Fprintf(&b, "\nHeads up: %s", w)
	}
	b.WriteString("\n\nShall I save this plan? (confirm / revise / cancel)")
	return b.String()
}

func renderPlan(p plan.Plan, tasks []plan.Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Plan #%d: %s [%s]\n", p.ID, p.Title, p.Status)
	if p.Summary != "" {
		fmt.Fprintf(&b, "%s\n", p.Summary)
	}
	for _, t := range tasks {
		marker := " "
		if t.Completed {
			marker = "x"
		}
		if t.StartAt != nil {
			fmt.Fprintf(&b, "  [%s] %s (%s)\n", marker, t.Title, t.StartAt.Format(timeFormat))
		} else {
			fmt.Fprintf(&b, "  [%s] %s\n", marker, t.Title)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderTasks(tasks []plan.Task) string {
	if len(tasks) == 0 {
		return "You have no scheduled tasks."
	}
	var b strings.Builder
	b.WriteString("Your scheduled tasks:\n")
	for _, t := range tasks {
		fmt.Fprintf(&b, "  - %s (%s to %s)\n", t.Title, t.StartAt.Format(timeFormat), t.EndAt.Format(timeFormat))
	}
	return strings.TrimRight(b.String(), "\n")
}
