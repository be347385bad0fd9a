// Package feedback implements the plan feedback state machine: one
// immutable feedback record per plan, with approve/refine/reject
// semantics and the at-most-one-approved-plan-per-goal invariant.
package feedback
