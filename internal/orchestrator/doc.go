// Package orchestrator assembles the planning workflow graph and drives
// it turn by turn.
//
// # Overview
//
// A turn enters through HandleTurn: the user's text is classified onto
// the intent registry, dispatched to an entry node, and the graph engine
// walks nodes until the run ends, fails, or suspends at a confirmation
// gate. Suspended runs persist a minimal snapshot; the user's next
// message is parsed into a confirmation decision and the run resumes at
// the gate it stopped at.
//
// # Workflow
//
//	intent_recognition → strategy_interpretation → plan_outline →
//	user_confirm_a → task_generation → world_model_integration →
//	calendarization → validation → user_confirm_b → persistence
//
// Routers after the confirmation gates and the validation node may send
// the run back to an earlier node; the engine bounds those redirections.
// A clarification node re-prompts when a gate answer cannot be
// interpreted.
//
// # Entry dispatch
//
// Not every intent starts at the top. Edits to an existing plan enter at
// task generation with the stored plan as the working draft, reschedules
// enter at calendarization, and read-only or conversational intents are
// answered without starting a run at all. Plan feedback intents go
// through the feedback state machine; a refinement request immediately
// re-enters generation carrying the suggested changes.
//
// Runs for the same user are serialized; runs for different users proceed
// concurrently.
package orchestrator
