// Package ledger provides the bounded per-user conversation memory used to
// assemble model context for LLM-backed workflow nodes. Admission filtering
// keeps assistant turns with outstanding tool calls out of stored history;
// a FIFO cap keeps each user's history within bounds.
package ledger
