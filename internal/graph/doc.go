// Package graph provides the workflow engine that drives a planning run
// through named nodes. The graph is built once at startup from an
// explicit node table plus static and conditional edges, validated
// before use, and then executed by an engine that bounds
// router-triggered redirections so partially cyclic graphs always
// terminate. Nodes never invoke each other; all routing belongs to the
// engine.
package graph
