// Package checkpoint persists per-thread conversation state between turns.
// The store is the sole source of truth for a thread's phase and context;
// access is keyed strictly by thread ID, so turns for different threads need
// no coordination.
package checkpoint
