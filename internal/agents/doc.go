// Package agents implements the handler nodes of the conversation graph: the
// router plus the task, calendar, onboarding, learning, and clarification
// handlers. Every node converts its own failures into a clarification
// handoff, so a turn never surfaces a handler error to the orchestrator.
package agents
