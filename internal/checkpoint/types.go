package checkpoint

import (
	"context"
	"errors"
	"time"

	"github.com/lumehq/lume/internal/conversation"
)

// ErrNotFound is returned by Load when the thread has no persisted state yet.
var ErrNotFound = errors.New("checkpoint not found")

// State is the subset of a turn's working record that survives across turns:
// the conversation phase, shared context, a bounded message window, and the
// cross-turn error accounting. Turn-transient fields (handoff target, hop
// count, scratch) are not persisted.
type State struct {
	Phase                 conversation.Phase     `json:"phase"`
	Context               map[string]any         `json:"context,omitempty"`
	Messages              []conversation.Message `json:"messages,omitempty"`
	ErrorRecoveryAttempts int                    `json:"error_recovery_attempts"`
	UpdatedAt             time.Time              `json:"updated_at"`
}

// Store persists State keyed by thread ID.
type Store interface {
	// Load returns the persisted state for a thread, or ErrNotFound.
	Load(ctx context.Context, threadID string) (*State, error)

	// Save persists the state for a thread, replacing any prior value.
	Save(ctx context.Context, threadID string, state *State) error

	// Delete removes a thread's state. Deleting an absent thread is not an error.
	Delete(ctx context.Context, threadID string) error

	// Close releases the store's resources.
	Close() error
}
