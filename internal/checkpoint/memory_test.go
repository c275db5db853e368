package checkpoint

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumehq/lume/internal/conversation"
)

func TestMemoryStore_SaveLoadRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	saved := &State{
		Phase: conversation.PhaseNormal,
		Context: map[string]any{
			"timezone": "Europe/Madrid",
		},
		Messages: []conversation.Message{
			{Role: conversation.RoleUser, Text: "add task: buy milk"},
			{Role: conversation.RoleAssistant, Text: "Added \"buy milk\"."},
		},
		ErrorRecoveryAttempts: 1,
		UpdatedAt:             time.Now().UTC(),
	}

	require.NoError(t, store.Save(ctx, "thread-1", saved))

	loaded, err := store.Load(ctx, "thread-1")
	require.NoError(t, err)
	assert.Equal(t, conversation.PhaseNormal, loaded.Phase)
	assert.Equal(t, "Europe/Madrid", loaded.Context["timezone"])
	assert.Len(t, loaded.Messages, 2)
	assert.Equal(t, 1, loaded.ErrorRecoveryAttempts)
}

func TestMemoryStore_LoadMissingThread(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.Load(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_CopiesStateOnSave(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	st := &State{
		Phase:   conversation.PhaseIdle,
		Context: map[string]any{"k": "v"},
	}
	require.NoError(t, store.Save(ctx, "t", st))

	// Mutating the caller's map must not leak into the store.
	st.Context["k"] = "mutated"

	loaded, err := store.Load(ctx, "t")
	require.NoError(t, err)
	assert.Equal(t, "v", loaded.Context["k"])
}

func TestMemoryStore_DeleteIsIdempotent(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "t", &State{Phase: conversation.PhaseIdle}))
	require.NoError(t, store.Delete(ctx, "t"))
	require.NoError(t, store.Delete(ctx, "t"))

	_, err := store.Load(ctx, "t")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_ClosedRejectsOperations(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Close())

	err := store.Save(context.Background(), "t", &State{})
	assert.Error(t, err)
	_, err = store.Load(context.Background(), "t")
	assert.Error(t, err)
}

func TestMemoryStore_RequiresThreadID(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.Load(context.Background(), "")
	assert.Error(t, err)
	assert.Error(t, store.Save(context.Background(), "", &State{}))
}

func TestThreadKey_SanitizesInvalidRunes(t *testing.T) {
	assert.Equal(t, "user_42", threadKey("user 42"))
	assert.Equal(t, "tg_1234", threadKey("tg:1234"))
	assert.Equal(t, "plain-id_ok.v1", threadKey("plain-id_ok.v1"))
}
