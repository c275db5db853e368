// Package orchestrator drives one conversation turn through the handler
// graph: it invokes the router, merges each handler's state updates, resolves
// handoff destinations against a per-node adjacency whitelist, and stops at a
// terminal or suspend marker. It enforces the turn-level invariants: exactly
// one active handler, bounded handoff chains, and no handler-to-handler calls
// outside the declared graph.
package orchestrator
