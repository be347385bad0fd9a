// Package plan defines the planning domain model shared by the workflow
// orchestrator, the persistence store, and the feedback service: goals,
// plans, tasks, generator drafts, and plan feedback.
package plan
